package sandbox

import (
	"regexp"
	"strings"
)

// ConfirmationReason names why a permitted command still warrants asking
// the user before it runs.
type ConfirmationReason string

const (
	ConfirmRecursiveRemove ConfirmationReason = "recursive_remove"
	ConfirmForcePush       ConfirmationReason = "git_force_push"
	ConfirmResetHard       ConfirmationReason = "git_reset_hard"
	ConfirmDropTable       ConfirmationReason = "sql_drop_table"
	ConfirmTruncateTable   ConfirmationReason = "sql_truncate"
	ConfirmDockerPrune     ConfirmationReason = "docker_prune"
)

var (
	rmFlags       = regexp.MustCompile(`\brm\b.*-[a-zA-Z]*r[a-zA-Z]*f|\brm\b.*-[a-zA-Z]*f[a-zA-Z]*r`)
	rmRecursive   = regexp.MustCompile(`\brm\b\s+(-[a-zA-Z]*r\b|--recursive\b)`)
	gitForcePush  = regexp.MustCompile(`\bgit\s+push\b.*(--force\b|-f\b)`)
	gitResetHard  = regexp.MustCompile(`\bgit\s+reset\b.*--hard\b`)
	sqlDropTable  = regexp.MustCompile(`(?i)\bdrop\s+table\b`)
	sqlTruncate   = regexp.MustCompile(`(?i)\btruncate\s+table\b`)
	dockerPruneRe = regexp.MustCompile(`\bdocker\s+(system\s+)?prune\b|\bdocker\s+rm\b`)
)

// NeedsConfirmation inspects an already-allowed command for operations that
// are destructive enough to warrant asking the user before execution, even
// though the validator did not block them outright. Returns the empty
// string when no confirmation is warranted.
func NeedsConfirmation(command string) ConfirmationReason {
	lower := strings.ToLower(command)

	if rmFlags.MatchString(lower) || rmRecursive.MatchString(lower) {
		return ConfirmRecursiveRemove
	}
	if gitForcePush.MatchString(lower) {
		return ConfirmForcePush
	}
	if gitResetHard.MatchString(lower) {
		return ConfirmResetHard
	}
	if sqlDropTable.MatchString(command) {
		return ConfirmDropTable
	}
	if sqlTruncate.MatchString(command) {
		return ConfirmTruncateTable
	}
	if dockerPruneRe.MatchString(lower) {
		return ConfirmDockerPrune
	}
	return ""
}
