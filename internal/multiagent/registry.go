// Package multiagent implements the sub-agent registry: static definitions
// keyed by agent type plus live running instances keyed by agent id, with
// cancellation tokens and progress tracking folded in per definition.
package multiagent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Status is a running instance's lifecycle state. Once an instance reaches
// a terminal status it never re-enters Running.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether s is absorbing.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Progress is only meaningful while an instance is Running; GetProgress
// returns nothing for instances outside that state.
type Progress struct {
	CurrentStep  int
	TokenCount   int64
	ToolUseCount int
}

// WorkingDirectoryKind selects how a sub-agent resolves its working
// directory relative to its parent.
type WorkingDirectoryKind int

const (
	// WDInherited uses the parent's working directory.
	WDInherited WorkingDirectoryKind = iota
	// WDCwd uses the process's current working directory, ignoring the parent.
	WDCwd
	// WDFixed pins a specific path, carried in WorkingDirectoryPolicy.Path.
	WDFixed
	// WDTemporary allocates a scratch directory for the run.
	WDTemporary
)

// WorkingDirectoryPolicy selects how a child agent resolves its working
// directory against the parent's.
type WorkingDirectoryPolicy struct {
	Kind WorkingDirectoryKind
	Path string // only meaningful when Kind == WDFixed
}

// ToolAccessKind selects how a sub-agent's tool set is derived.
type ToolAccessKind int

const (
	// TAInherited carries forward the parent's allow/deny set verbatim.
	TAInherited ToolAccessKind = iota
	// TAAll grants every registered tool regardless of parent restrictions.
	TAAll
	// TAAllow restricts to exactly the names listed.
	TAAllow
	// TADeny grants everything except the names listed.
	TADeny
)

// ToolAccess selects which of the parent's tools a child agent may use.
type ToolAccess struct {
	Kind  ToolAccessKind
	Names []string // meaningful for TAAllow (allow-list) and TADeny (deny-list)
}

// Definition is a static, named sub-agent type registered once at startup.
type Definition struct {
	AgentType   string
	Name        string
	Description string
	SystemHint  string
}

// Config configures one running instance, folding in parent context so
// ResolveWorkingDirectory and AllowsTool can be answered without a second
// lookup into the parent.
type Config struct {
	AgentType              string
	Prompt                 string
	ResumeID               string
	RunInBackground        bool
	ModelOverride          string
	Thoroughness           string
	WorkingDirectoryPolicy WorkingDirectoryPolicy
	ToolAccess             ToolAccess
	ParentCwd              string
	ParentTools            []string
}

// ResolveWorkingDirectory folds c.WorkingDirectoryPolicy against the parent
// context captured in c.ParentCwd and returns the directory the sub-agent
// should run in.
func (c Config) ResolveWorkingDirectory(tempDirFactory func() (string, error)) (string, error) {
	switch c.WorkingDirectoryPolicy.Kind {
	case WDFixed:
		return c.WorkingDirectoryPolicy.Path, nil
	case WDTemporary:
		if tempDirFactory == nil {
			return "", errors.New("multiagent: temporary working directory requested with no factory")
		}
		return tempDirFactory()
	case WDCwd:
		return ".", nil
	default: // WDInherited
		return c.ParentCwd, nil
	}
}

// AllowsTool reports whether name is usable by a sub-agent configured with
// c, folding c.ToolAccess against c.ParentTools (the parent's own allowed
// set — a child can never exceed it under TAInherited/TAAllow/TADeny).
func (c Config) AllowsTool(name string) bool {
	switch c.ToolAccess.Kind {
	case TAAll:
		return true
	case TAAllow:
		for _, n := range c.ToolAccess.Names {
			if n == name {
				return parentAllows(c.ParentTools, name)
			}
		}
		return false
	case TADeny:
		for _, n := range c.ToolAccess.Names {
			if n == name {
				return false
			}
		}
		return parentAllows(c.ParentTools, name)
	default: // TAInherited
		return parentAllows(c.ParentTools, name)
	}
}

func parentAllows(parentTools []string, name string) bool {
	if parentTools == nil {
		// No parent restriction recorded: inherit-all.
		return true
	}
	for _, n := range parentTools {
		if n == name {
			return true
		}
	}
	return false
}

// Instance is one live (or terminated) sub-agent run.
type Instance struct {
	AgentID  string
	Type     string
	Status   Status
	Progress Progress
	Result   string
	Reason   string

	cancel context.CancelFunc
}

// Registry holds static Definitions keyed by agent type and dynamic
// Instances keyed by agent id. Safe for concurrent use; clone the handle
// by sharing the pointer — callers never need their own copy of the maps.
type Registry struct {
	mu          sync.RWMutex
	definitions map[string]Definition
	running     map[string]*Instance
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		definitions: make(map[string]Definition),
		running:     make(map[string]*Instance),
	}
}

// Register adds or replaces a static definition by its AgentType.
func (r *Registry) Register(def Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.definitions[def.AgentType] = def
}

// Get looks up a definition by agent type.
func (r *Registry) Get(agentType string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.definitions[agentType]
	return d, ok
}

// GetByName looks up a definition by its human-readable Name, since callers
// sometimes only have the display name at hand.
func (r *Registry) GetByName(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.definitions {
		if d.Name == name {
			return d, true
		}
	}
	return Definition{}, false
}

// ListDefinitions returns every registered definition, order unspecified.
func (r *Registry) ListDefinitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.definitions))
	for _, d := range r.definitions {
		out = append(out, d)
	}
	return out
}

// ClearDefinitions removes every registered definition.
func (r *Registry) ClearDefinitions() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.definitions = make(map[string]Definition)
}

// CreateRunningAgent allocates a fresh agent id, records a Pending instance,
// and returns both the id and the cancellation func to wire into the
// sub-agent's own execution loop.
func (r *Registry) CreateRunningAgent(cfg Config) (string, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	_ = ctx // the context itself is consumed by the caller driving the loop; Registry only needs the cancel func

	id := uuid.NewString()
	r.mu.Lock()
	r.running[id] = &Instance{
		AgentID: id,
		Type:    cfg.AgentType,
		Status:  StatusPending,
		cancel:  cancel,
	}
	r.mu.Unlock()
	return id, cancel
}

// UpdateStatus transitions the instance's status. Once an instance is in a
// terminal status this is a no-op, preserving the absorbing-state invariant.
func (r *Registry) UpdateStatus(id string, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.running[id]
	if !ok {
		return fmt.Errorf("multiagent: unknown agent %q", id)
	}
	if inst.Status.IsTerminal() {
		return nil
	}
	inst.Status = status
	return nil
}

// UpdateProgress records progress, but only while the instance is Running —
// progress updates outside Running are dropped silently.
func (r *Registry) UpdateProgress(id string, p Progress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.running[id]
	if !ok {
		return fmt.Errorf("multiagent: unknown agent %q", id)
	}
	if inst.Status != StatusRunning {
		return nil
	}
	inst.Progress = p
	return nil
}

// GetProgress returns the instance's progress, or false if it isn't Running.
func (r *Registry) GetProgress(id string) (Progress, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.running[id]
	if !ok || inst.Status != StatusRunning {
		return Progress{}, false
	}
	return inst.Progress, true
}

// RunningSnapshot is one row of ListRunning's point-in-time view.
type RunningSnapshot struct {
	AgentID string
	Type    string
	Status  Status
}

// ListRunning returns a snapshot of every tracked instance, including
// terminated ones still held in the map (callers Remove/ClearRunning to
// reclaim them).
func (r *Registry) ListRunning() []RunningSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RunningSnapshot, 0, len(r.running))
	for _, inst := range r.running {
		out = append(out, RunningSnapshot{AgentID: inst.AgentID, Type: inst.Type, Status: inst.Status})
	}
	return out
}

// Kill fires the instance's cancellation token and marks it Cancelled.
// Idempotent: killing an already-terminal instance succeeds without effect.
// Unknown ids are an error.
func (r *Registry) Kill(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.running[id]
	if !ok {
		return fmt.Errorf("multiagent: unknown agent %q", id)
	}
	if inst.Status.IsTerminal() {
		return nil
	}
	if inst.cancel != nil {
		inst.cancel()
	}
	inst.Status = StatusCancelled
	return nil
}

// Remove drops an instance from the running map entirely.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.running, id)
}

// ClearRunning drops every tracked instance.
func (r *Registry) ClearRunning() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running = make(map[string]*Instance)
}

// GetCancelToken returns the cancellation func for id so a caller can wire
// it into a child's own context tree without reaching into Instance.
func (r *Registry) GetCancelToken(id string) (context.CancelFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.running[id]
	if !ok {
		return nil, false
	}
	return inst.cancel, true
}

// Snapshot returns a copy of the instance for read-only inspection (e.g. the
// UI status tool), or false if id is unknown.
func (r *Registry) Snapshot(id string) (Instance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.running[id]
	if !ok {
		return Instance{}, false
	}
	return *inst, true
}

// Complete transitions id to Completed and records its result. A no-op on
// an already-terminal instance.
func (r *Registry) Complete(id, result string) error {
	return r.finish(id, StatusCompleted, result, "")
}

// Fail transitions id to Failed and records the failure reason. A no-op on
// an already-terminal instance.
func (r *Registry) Fail(id, reason string) error {
	return r.finish(id, StatusFailed, "", reason)
}

func (r *Registry) finish(id string, status Status, result, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.running[id]
	if !ok {
		return fmt.Errorf("multiagent: unknown agent %q", id)
	}
	if inst.Status.IsTerminal() {
		return nil
	}
	inst.Status = status
	inst.Result = result
	inst.Reason = reason
	return nil
}
