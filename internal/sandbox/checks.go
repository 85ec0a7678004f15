package sandbox

import (
	"regexp"
	"strings"
)

// CheckType identifies which layer of the validation pipeline produced a
// CheckResult.
type CheckType string

const (
	CheckTypeHeredocInjection    CheckType = "heredoc_injection"
	CheckDangerousPattern        CheckType = "dangerous_pattern"
	CheckTypeCriticalPathRemoval CheckType = "critical_path_removal"
	CheckShellMetacharacter      CheckType = "shell_metacharacter"
	CheckTypeVariableInjection   CheckType = "variable_injection"
)

// WarningSeverity ranks a non-blocking observation surfaced alongside an
// otherwise-passing check.
type WarningSeverity int

const (
	WarnInfo WarningSeverity = iota
	WarnWarning
)

// Warning is a non-blocking note attached to a passing CheckResult.
type Warning struct {
	Message  string
	Severity WarningSeverity
	Check    CheckType
}

// CheckResult is the uniform outcome every check in the pipeline returns.
type CheckResult struct {
	Allowed  bool
	Warnings []Warning
	Check    CheckType
	Reason   string
	Severity Severity
}

func pass(check CheckType, warnings ...Warning) CheckResult {
	for i := range warnings {
		warnings[i].Check = check
	}
	return CheckResult{Allowed: true, Check: check, Warnings: warnings}
}

func block(check CheckType, severity Severity, reason string) CheckResult {
	return CheckResult{Allowed: false, Check: check, Reason: reason, Severity: severity}
}

// Context carries the per-call configuration the checks consult: whether
// chaining/backgrounding is tolerated (permissive) or rejected (strict),
// and the working directory used to resolve relative rm/rmdir targets.
type Context struct {
	Strict           bool
	WorkingDirectory string
	// DangerousCommands lets callers extend the literal substring table
	// checked by CheckDangerousPatterns beyond the built-in defaults.
	DangerousCommands []string
}

// DefaultContext returns a strict validation context with no working
// directory override.
func DefaultContext() Context {
	return Context{Strict: true}
}

// PermissiveContext allows chaining/backgrounding, demoting what strict mode
// blocks to a warning.
func PermissiveContext() Context {
	return Context{Strict: false}
}

// --- 1. Heredoc injection -------------------------------------------------

// heredocStart matches `<<DELIM` or `<<'DELIM'`/`<<"DELIM"`, and
// heredocVarRef matches a variable reference after it: the combination that
// lets an attacker smuggle shell expansion through an apparently-literal
// heredoc body.
var heredocStart = regexp.MustCompile(`<<-?\s*['"]?([A-Za-z_][A-Za-z0-9_]*)['"]?`)
var heredocVarRef = regexp.MustCompile(`\$\{?[A-Za-z_][A-Za-z0-9_]*\}?`)

// CheckHeredocInjection detects `<<DELIM ... $VAR ... DELIM` where the
// opening delimiter is unquoted (so the shell expands variables in the
// body) and the body actually references a variable. A quoted delimiter
// (`<<'EOF'`) disables expansion and is always allowed.
func CheckHeredocInjection(command string, ctx Context) CheckResult {
	loc := heredocStart.FindStringSubmatchIndex(command)
	if loc == nil {
		return pass(CheckTypeHeredocInjection)
	}

	// Quoted delimiter: `<<'EOF'` or `<<"EOF"` - shell does not expand the
	// body, so variable references inside it are inert.
	matched := command[loc[0]:loc[1]]
	if strings.ContainsAny(matched, `'"`) {
		return pass(CheckTypeHeredocInjection)
	}

	body := command[loc[1]:]
	if !heredocVarRef.MatchString(body) {
		return pass(CheckTypeHeredocInjection)
	}

	if ctx.Strict {
		return block(CheckTypeHeredocInjection, SeverityHigh,
			"heredoc with unquoted delimiter references a shell variable in its body")
	}
	return pass(CheckTypeHeredocInjection, Warning{
		Message:  "heredoc body references a variable under an unquoted delimiter",
		Severity: WarnWarning,
	})
}

// --- 2. Dangerous pattern --------------------------------------------------

// dangerousPatterns is a literal substring table of destructive commands.
// Substring (not word-boundary) matching is intentional: these patterns are
// specific enough that false positives are rare, and it catches the command
// embedded inside a larger pipeline or subshell.
var dangerousPatterns = []string{
	":(){:|:&};:",
	"dd if=/dev/zero of=/dev/sda",
	"dd if=/dev/random of=/dev/sda",
	"mkfs.",
	"> /dev/sda",
	"shutdown",
	"reboot",
	"halt -f",
	"init 0",
	"chmod -R 777 /",
	"chmod -r 777 /",
	"chown -R root /",
}

// CheckDangerousPatterns matches the command against a literal substring
// table of known-destructive commands (fork bombs, disk wipes, recursive
// chmod on root). Any match blocks unconditionally regardless of strictness
// - there is no permissive variant of this check.
func CheckDangerousPatterns(command string, ctx Context) CheckResult {
	lower := strings.ToLower(command)
	for _, pattern := range dangerousPatterns {
		if strings.Contains(lower, strings.ToLower(pattern)) {
			return block(CheckDangerousPattern, SeverityCritical,
				"command matches a known-destructive pattern: "+pattern)
		}
	}
	for _, extra := range ctx.DangerousCommands {
		if extra == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(extra)) {
			return block(CheckDangerousPattern, SeverityCritical,
				"command matches a configured dangerous pattern: "+extra)
		}
	}
	return pass(CheckDangerousPattern)
}

// --- 3. Critical path removal ----------------------------------------------

var removalCommand = regexp.MustCompile(`(?:^|[;&|]\s*)(rm|rmdir)\b`)

// criticalPathPrefixes are path prefixes an rm/rmdir may never target,
// regardless of flags. Home directories are allowed only with an explicit
// subdirectory (bare `~` or `$HOME` is still critical).
var criticalPathPrefixes = []string{"/", "/usr", "/etc", "/var", "/bin", "/sbin", "/lib", "/boot", "/sys", "/proc"}

// CheckCriticalPathRemoval blocks rm/rmdir invocations whose argument
// resolves to a disallowed path prefix. It operates on raw command text
// (no shell execution), so it looks at whitespace-separated tokens after
// the command name, skipping flag-looking tokens (leading `-`).
func CheckCriticalPathRemoval(command string, ctx Context) CheckResult {
	if !removalCommand.MatchString(command) {
		return pass(CheckTypeCriticalPathRemoval)
	}

	fields := strings.Fields(command)
	cmdIdx := -1
	for i, f := range fields {
		if f == "rm" || f == "rmdir" || strings.HasSuffix(f, "/rm") || strings.HasSuffix(f, "/rmdir") {
			cmdIdx = i
			break
		}
	}
	if cmdIdx == -1 {
		return pass(CheckTypeCriticalPathRemoval)
	}

	for _, arg := range fields[cmdIdx+1:] {
		if strings.HasPrefix(arg, "-") {
			continue
		}
		target := strings.Trim(arg, `'"`)
		if isCriticalPath(target) {
			return block(CheckTypeCriticalPathRemoval, SeverityCritical,
				"command blocked by removal check: target resolves to a protected system path: "+target)
		}
	}
	return pass(CheckTypeCriticalPathRemoval)
}

func isCriticalPath(target string) bool {
	if target == "" {
		return false
	}
	if target == "~" || target == "$HOME" || target == "${HOME}" {
		return true
	}
	for _, prefix := range criticalPathPrefixes {
		if target == prefix {
			return true
		}
		if prefix != "/" && strings.HasPrefix(target, prefix+"/") {
			return true
		}
	}
	if target == "/" || target == "/*" {
		return true
	}
	return false
}

// --- 4. Shell metacharacter -------------------------------------------------

// scanOutsideQuotes walks command tracking single/double quote state and
// invokes visit(i) for every index not inside a quoted span.
func scanOutsideQuotes(command string, visit func(i int, c byte)) {
	inSingle, inDouble := false, false
	for i := 0; i < len(command); i++ {
		c := command[i]
		switch {
		case c == '\'' && !inDouble:
			inSingle = !inSingle
			continue
		case c == '"' && !inSingle:
			inDouble = !inDouble
			continue
		}
		if inSingle || inDouble {
			continue
		}
		visit(i, c)
	}
}

func hasCommandSeparator(command string) bool {
	found := false
	scanOutsideQuotes(command, func(i int, c byte) {
		if found {
			return
		}
		if c == ';' {
			found = true
			return
		}
		if c == '&' && i+1 < len(command) && command[i+1] == '&' {
			found = true
			return
		}
		if c == '|' && i+1 < len(command) && command[i+1] == '|' {
			found = true
		}
	})
	return found
}

func hasPipe(command string) bool {
	found := false
	scanOutsideQuotes(command, func(i int, c byte) {
		if found || c != '|' {
			return
		}
		next := byte(0)
		if i+1 < len(command) {
			next = command[i+1]
		}
		prev := byte(0)
		if i > 0 {
			prev = command[i-1]
		}
		if next != '|' && prev != '|' {
			found = true
		}
	})
	return found
}

func hasBackground(command string) bool {
	found := false
	scanOutsideQuotes(command, func(i int, c byte) {
		if found || c != '&' {
			return
		}
		next := byte(0)
		if i+1 < len(command) {
			next = command[i+1]
		}
		prev := byte(0)
		if i > 0 {
			prev = command[i-1]
		}
		if next != '&' && prev != '&' {
			found = true
		}
	})
	return found
}

func hasSubshell(command string) bool {
	return strings.Contains(command, "$(") || (strings.Contains(command, "(") && strings.Contains(command, ")"))
}

// CheckShellMetacharacters detects command chaining (`;`, `&&`, `||`),
// unpiped `|` and backgrounding `&` outside quoted spans, and subshells
// (`(...)`, `$(...)`) anywhere in the command, quoted text included. In a
// strict context, chaining and backgrounding block; a
// bare pipe or subshell is always at most an info-level warning.
func CheckShellMetacharacters(command string, ctx Context) CheckResult {
	var warnings []Warning

	if hasCommandSeparator(command) {
		if ctx.Strict {
			return block(CheckShellMetacharacter, SeverityMedium,
				"command chaining with ; && || is not allowed in strict mode")
		}
		warnings = append(warnings, Warning{Message: "command contains chaining operators (;, &&, ||)", Severity: WarnInfo})
	}

	if hasPipe(command) {
		warnings = append(warnings, Warning{Message: "command contains a pipe operator", Severity: WarnInfo})
	}

	if hasBackground(command) {
		if ctx.Strict {
			return block(CheckShellMetacharacter, SeverityMedium,
				"background execution (&) is not allowed in strict mode")
		}
		warnings = append(warnings, Warning{Message: "command will run in background; output may be delayed", Severity: WarnWarning})
	}

	if hasSubshell(command) {
		warnings = append(warnings, Warning{Message: "command contains subshell execution", Severity: WarnInfo})
	}

	return pass(CheckShellMetacharacter, warnings...)
}

// --- 5. Variable injection --------------------------------------------------

// dangerousVars are environment variable names whose expansion can change
// how every subsequent command in the shell resolves or links.
var dangerousVars = map[string]bool{
	"IFS":        true,
	"PATH":       true,
	"LD_PRELOAD": true,
	"LD_LIBRARY_PATH": true,
}

var varExpansion = regexp.MustCompile(`\$\{?([A-Za-z_][A-Za-z0-9_]*)\}?`)

// CheckVariableInjection flags expansions of known-dangerous environment
// variables (IFS, PATH, LD_PRELOAD, …) that could redirect command
// resolution or library loading out from under the sandbox.
func CheckVariableInjection(command string, ctx Context) CheckResult {
	matches := varExpansion.FindAllStringSubmatch(command, -1)
	var warnings []Warning
	for _, m := range matches {
		name := strings.ToUpper(m[1])
		if dangerousVars[name] {
			if ctx.Strict {
				return block(CheckTypeVariableInjection, SeverityHigh,
					"command expands a dangerous environment variable: "+name)
			}
			warnings = append(warnings, Warning{
				Message:  "command expands a dangerous environment variable: " + name,
				Severity: WarnWarning,
			})
		}
	}
	return pass(CheckTypeVariableInjection, warnings...)
}
