package hooks

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// HookFilename is the expected filename for hook definitions.
	HookFilename = "HOOK.md"

	// FrontmatterDelimiter marks the beginning and end of YAML frontmatter.
	FrontmatterDelimiter = "---"
)

// HookConfig is the YAML frontmatter of a HOOK.md definition.
type HookConfig struct {
	// Name is the unique identifier for this hook.
	Name string `json:"name" yaml:"name"`

	// Description explains what the hook does.
	Description string `json:"description" yaml:"description"`

	// Events lists the event keys this hook listens for, as "type" or
	// "type:action" (e.g. "lifecycle.startup", "command.detected:help").
	Events []string `json:"events" yaml:"events"`

	// Requires gates the hook on binaries, env vars, config, or OS.
	Requires *HookRequirements `json:"requires,omitempty" yaml:"requires"`

	// Enabled turns the hook off when explicitly false.
	Enabled *bool `json:"enabled,omitempty" yaml:"enabled"`

	// Priority orders handlers (lower = earlier; default PriorityNormal).
	Priority Priority `json:"priority,omitempty" yaml:"priority"`

	// Always skips every eligibility check.
	Always bool `json:"always,omitempty" yaml:"always"`
}

// HookRequirements are the eligibility gates a hook declares.
type HookRequirements struct {
	// Bins requires every listed binary on PATH.
	Bins []string `json:"bins,omitempty" yaml:"bins"`

	// AnyBins requires at least one listed binary.
	AnyBins []string `json:"anyBins,omitempty" yaml:"anyBins"`

	// Env requires every listed environment variable to be set.
	Env []string `json:"env,omitempty" yaml:"env"`

	// Config requires every listed config path to be truthy.
	Config []string `json:"config,omitempty" yaml:"config"`

	// OS restricts the hook to the named platforms.
	OS []string `json:"os,omitempty" yaml:"os"`
}

// HookEntry is one discovered hook: its parsed config, markdown body, and
// where it came from.
type HookEntry struct {
	Config         HookConfig
	Content        string
	Path           string
	Source         SourceType
	SourcePriority int
}

// SourceType names where a hook was discovered from.
type SourceType string

const (
	SourceBundled   SourceType = "bundled"   // Shipped with the sage binary
	SourceLocal     SourceType = "local"     // ~/.sage/hooks/
	SourceWorkspace SourceType = "workspace" // <workspace>/hooks/
	SourceExtra     SourceType = "extra"     // extra configured directories
)

// Source priorities; on a name conflict the higher-priority source wins.
const (
	PriorityExtra     = 10
	PriorityBundled   = 20
	PriorityLocal     = 30
	PriorityWorkspace = 40
)

// DiscoverySource scans one location for hooks.
type DiscoverySource interface {
	Type() SourceType
	Priority() int
	Discover(ctx context.Context) ([]*HookEntry, error)
}

// WatchableSource exposes paths for file watching.
type WatchableSource interface {
	WatchPaths() []string
}

// LocalSource discovers hooks in a real directory: every subdirectory
// holding a HOOK.md is a candidate.
type LocalSource struct {
	path       string
	sourceType SourceType
	priority   int
	logger     *slog.Logger
}

// NewLocalSource creates a directory-backed discovery source.
func NewLocalSource(path string, sourceType SourceType, priority int) *LocalSource {
	return &LocalSource{
		path:       path,
		sourceType: sourceType,
		priority:   priority,
		logger:     slog.Default().With("component", "hooks", "source", string(sourceType)),
	}
}

func (s *LocalSource) Type() SourceType { return s.sourceType }
func (s *LocalSource) Priority() int    { return s.priority }

// Discover scans the directory; a missing directory yields nothing rather
// than an error, since most sources are optional.
func (s *LocalSource) Discover(ctx context.Context) ([]*HookEntry, error) {
	info, err := os.Stat(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", s.path)
	}

	entries, err := os.ReadDir(s.path)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}

	var found []*HookEntry
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return found, err
		}
		if !entry.IsDir() {
			continue
		}
		hookDir := filepath.Join(s.path, entry.Name())
		hook, err := ParseHookFile(filepath.Join(hookDir, HookFilename))
		if os.IsNotExist(err) {
			continue
		}
		if err == nil {
			err = ValidateHook(hook)
		}
		if err != nil {
			s.logger.Warn("skipping hook", "path", hookDir, "error", err)
			continue
		}
		hook.Source = s.sourceType
		hook.SourcePriority = s.priority
		found = append(found, hook)
	}

	s.logger.Info("discovered hooks", "count", len(found), "path", s.path)
	return found, nil
}

// WatchPaths returns the directory to watch for hook changes.
func (s *LocalSource) WatchPaths() []string {
	return []string{s.path}
}

// FSSource discovers hooks from an fs.FS, used for the definitions
// embedded in the binary.
type FSSource struct {
	fsys       fs.FS
	sourceType SourceType
	priority   int
	logger     *slog.Logger
}

// NewFSSource creates a discovery source over fsys. Each top-level
// directory containing a HOOK.md is a candidate hook.
func NewFSSource(fsys fs.FS, sourceType SourceType, priority int) *FSSource {
	return &FSSource{
		fsys:       fsys,
		sourceType: sourceType,
		priority:   priority,
		logger:     slog.Default().With("component", "hooks", "source", string(sourceType)),
	}
}

func (s *FSSource) Type() SourceType { return s.sourceType }
func (s *FSSource) Priority() int    { return s.priority }

func (s *FSSource) Discover(ctx context.Context) ([]*HookEntry, error) {
	entries, err := fs.ReadDir(s.fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read embedded hooks: %w", err)
	}

	var found []*HookEntry
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return found, err
		}
		if !entry.IsDir() {
			continue
		}
		data, err := fs.ReadFile(s.fsys, path.Join(entry.Name(), HookFilename))
		if err != nil {
			continue
		}
		hook, err := ParseHook(data, entry.Name())
		if err == nil {
			err = ValidateHook(hook)
		}
		if err != nil {
			s.logger.Warn("skipping embedded hook", "dir", entry.Name(), "error", err)
			continue
		}
		hook.Source = s.sourceType
		hook.SourcePriority = s.priority
		found = append(found, hook)
	}

	s.logger.Info("discovered embedded hooks", "count", len(found))
	return found, nil
}

// ParseHookFile parses the HOOK.md at filePath.
func ParseHookFile(filePath string) (*HookEntry, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return ParseHook(data, filepath.Dir(filePath))
}

// ParseHook splits HOOK.md content into YAML frontmatter and markdown body.
func ParseHook(data []byte, hookPath string) (*HookEntry, error) {
	frontmatter, body, err := splitFrontmatter(string(data))
	if err != nil {
		return nil, fmt.Errorf("split frontmatter: %w", err)
	}

	var config HookConfig
	if err := yaml.Unmarshal([]byte(frontmatter), &config); err != nil {
		return nil, fmt.Errorf("parse frontmatter: %w", err)
	}

	return &HookEntry{
		Config:  config,
		Content: strings.TrimSpace(body),
		Path:    hookPath,
	}, nil
}

// splitFrontmatter cuts "---\n<yaml>\n---\n<body>" into its halves.
func splitFrontmatter(data string) (frontmatter, body string, err error) {
	lines := strings.Split(data, "\n")
	if strings.TrimSpace(data) == "" {
		return "", "", fmt.Errorf("empty file")
	}
	if strings.TrimSpace(lines[0]) != FrontmatterDelimiter {
		return "", "", fmt.Errorf("missing opening frontmatter delimiter")
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == FrontmatterDelimiter {
			return strings.Join(lines[1:i], "\n"), strings.Join(lines[i+1:], "\n"), nil
		}
	}
	return "", "", fmt.Errorf("missing closing frontmatter delimiter")
}

// hookNamePattern constrains hook names to lowercase-hyphen identifiers.
var hookNamePattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// ValidateHook rejects entries without a well-formed name or any events.
func ValidateHook(entry *HookEntry) error {
	if entry.Config.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !hookNamePattern.MatchString(entry.Config.Name) {
		return fmt.Errorf("name must be lowercase alphanumeric with hyphens: got %q", entry.Config.Name)
	}
	if len(entry.Config.Events) == 0 {
		return fmt.Errorf("at least one event is required")
	}
	return nil
}

// EligibilityResult reports whether a hook may load and, if not, why.
type EligibilityResult struct {
	Eligible bool
	Reason   string
}

// GatingContext caches the environment lookups eligibility checks make.
type GatingContext struct {
	OS           string
	PathBins     map[string]bool
	EnvVars      map[string]bool
	ConfigValues map[string]any
}

// NewGatingContext builds a context for the current process environment.
func NewGatingContext(configValues map[string]any) *GatingContext {
	return &GatingContext{
		OS:           runtime.GOOS,
		PathBins:     make(map[string]bool),
		EnvVars:      make(map[string]bool),
		ConfigValues: configValues,
	}
}

// CheckBinary reports whether a binary is on PATH, caching the lookup.
func (c *GatingContext) CheckBinary(name string) bool {
	if cached, ok := c.PathBins[name]; ok {
		return cached
	}
	_, err := exec.LookPath(name)
	c.PathBins[name] = err == nil
	return err == nil
}

// CheckEnv reports whether an environment variable is set, cached.
func (c *GatingContext) CheckEnv(name string) bool {
	if cached, ok := c.EnvVars[name]; ok {
		return cached
	}
	_, exists := os.LookupEnv(name)
	c.EnvVars[name] = exists
	return exists
}

// CheckConfig walks a dotted path through ConfigValues and reports whether
// the leaf is truthy.
func (c *GatingContext) CheckConfig(dotted string) bool {
	var current any = c.ConfigValues
	for _, part := range strings.Split(dotted, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return false
		}
		current = m[part]
	}
	return isTruthy(current)
}

func isTruthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != "" && val != "false" && val != "0"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return val != 0
	default:
		return true
	}
}

// CheckEligibility evaluates the entry's gates against ctx. Explicit
// disable wins, Always skips every check, and the requirement groups are
// evaluated in declaration order with the first failure reported.
func (entry *HookEntry) CheckEligibility(ctx *GatingContext) EligibilityResult {
	config := entry.Config
	if config.Enabled != nil && !*config.Enabled {
		return EligibilityResult{false, "disabled in config"}
	}
	if config.Always {
		return EligibilityResult{true, "always enabled"}
	}
	reqs := config.Requires
	if reqs == nil {
		return EligibilityResult{true, ""}
	}

	if len(reqs.OS) > 0 && !containsString(reqs.OS, ctx.OS) {
		return EligibilityResult{false, fmt.Sprintf("requires OS %v, have %s", reqs.OS, ctx.OS)}
	}
	for _, bin := range reqs.Bins {
		if !ctx.CheckBinary(bin) {
			return EligibilityResult{false, "missing required binary: " + bin}
		}
	}
	if len(reqs.AnyBins) > 0 {
		anyFound := false
		for _, bin := range reqs.AnyBins {
			if ctx.CheckBinary(bin) {
				anyFound = true
				break
			}
		}
		if !anyFound {
			return EligibilityResult{false, fmt.Sprintf("requires one of: %v", reqs.AnyBins)}
		}
	}
	for _, env := range reqs.Env {
		if !ctx.CheckEnv(env) {
			return EligibilityResult{false, "missing environment variable: " + env}
		}
	}
	for _, configPath := range reqs.Config {
		if !ctx.CheckConfig(configPath) {
			return EligibilityResult{false, "config not truthy: " + configPath}
		}
	}
	return EligibilityResult{true, ""}
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// FilterEligible keeps only the hooks whose gates pass.
func FilterEligible(hooks []*HookEntry, ctx *GatingContext) []*HookEntry {
	var eligible []*HookEntry
	for _, hook := range hooks {
		if hook.CheckEligibility(ctx).Eligible {
			eligible = append(eligible, hook)
		}
	}
	return eligible
}

// DiscoverAll merges every source's hooks, resolving name conflicts by
// source priority. A failing source is logged and skipped, not fatal.
func DiscoverAll(ctx context.Context, sources []DiscoverySource) ([]*HookEntry, error) {
	byName := make(map[string]*HookEntry)
	for _, source := range sources {
		found, err := source.Discover(ctx)
		if err != nil {
			slog.Warn("hook discovery failed", "source", source.Type(), "error", err)
			continue
		}
		for _, hook := range found {
			if existing, ok := byName[hook.Config.Name]; ok && existing.SourcePriority >= hook.SourcePriority {
				continue
			}
			byName[hook.Config.Name] = hook
		}
	}

	out := make([]*HookEntry, 0, len(byName))
	for _, hook := range byName {
		out = append(out, hook)
	}
	return out, nil
}

// BuildDefaultSources assembles the standard source set, lowest priority
// first: extra dirs, bundled, ~/.sage/hooks, then the workspace.
func BuildDefaultSources(workspacePath, localPath, bundledPath string, extraDirs []string) []DiscoverySource {
	var sources []DiscoverySource
	for _, dir := range extraDirs {
		sources = append(sources, NewLocalSource(dir, SourceExtra, PriorityExtra))
	}
	if bundledPath != "" {
		sources = append(sources, NewLocalSource(bundledPath, SourceBundled, PriorityBundled))
	}
	if localPath != "" {
		sources = append(sources, NewLocalSource(localPath, SourceLocal, PriorityLocal))
	}
	if workspacePath != "" {
		sources = append(sources, NewLocalSource(filepath.Join(workspacePath, "hooks"), SourceWorkspace, PriorityWorkspace))
	}
	return sources
}

// DefaultLocalPath returns the per-user hook directory.
func DefaultLocalPath() string {
	home, _ := os.UserHomeDir()
	if strings.TrimSpace(home) == "" {
		home = "."
	}
	return filepath.Join(home, ".sage", "hooks")
}
