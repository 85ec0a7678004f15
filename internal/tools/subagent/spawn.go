// Package subagent provides tools for spawning and managing sub-agents.
package subagent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sagerun/sage/internal/agent"
	"github.com/sagerun/sage/internal/eventbus"
	"github.com/sagerun/sage/internal/multiagent"
	"github.com/sagerun/sage/internal/sessions"
	"github.com/sagerun/sage/internal/tools/policy"
)

// SubAgent represents a spawned sub-agent.
type SubAgent struct {
	ID           string    `json:"id"`
	ParentID     string    `json:"parent_id"`
	SessionID    string    `json:"session_id"`
	Name         string    `json:"name"`
	Task         string    `json:"task"`
	Status       string    `json:"status"` // running, completed, failed, cancelled
	CreatedAt    time.Time `json:"created_at"`
	CompletedAt  time.Time `json:"completed_at,omitempty"`
	Result       string    `json:"result,omitempty"`
	Error        string    `json:"error,omitempty"`
	AllowedTools []string  `json:"allowed_tools,omitempty"`
	DeniedTools  []string  `json:"denied_tools,omitempty"`

	// registryID is the multiagent.Registry instance id tracking this
	// sub-agent's canonical Pending/Running/terminal status and progress.
	registryID string
}

// contextKey distinguishes subagent's context values from other packages'.
type contextKey struct{}

var parentKey = contextKey{}

// ParentInfo carries the spawning agent/session identity through ctx so a
// tool's Execute method can read it without a global lookup.
type ParentInfo struct {
	AgentID   string
	SessionID string
}

// WithParent attaches parent into ctx for ParentFromContext.
func WithParent(ctx context.Context, parent ParentInfo) context.Context {
	return context.WithValue(ctx, parentKey, parent)
}

// ParentFromContext returns the parent identity stashed by WithParent, or
// the zero value if none was attached.
func ParentFromContext(ctx context.Context) ParentInfo {
	p, _ := ctx.Value(parentKey).(ParentInfo)
	return p
}

// Manager manages sub-agent lifecycle: it spawns each sub-agent as its own
// agent.Loop over a tool registry filtered by that sub-agent's allow/deny
// policy, inheriting the parent's provider, recorder, and working directory
// per the working-directory/tool-access inheritance rules.
type Manager struct {
	mu          sync.RWMutex
	agents      map[string]*SubAgent
	cancels     map[string]context.CancelFunc
	provider    agent.LLMProvider
	registry    *agent.ToolRegistry
	recorder    *sessions.Recorder
	bus         *eventbus.Bus
	resolver    *policy.Resolver
	model       string
	workdir     string
	maxActive   int
	activeCount int64
	announcer   func(ctx context.Context, parentSession string, msg string) error
	queue       *AnnounceQueue
	subagents   *multiagent.Registry
	defaultPol  *policy.Policy
}

// ManagerConfig supplies the shared collaborators every spawned sub-agent's
// Loop is built from.
type ManagerConfig struct {
	Provider         agent.LLMProvider
	ParentRegistry   *agent.ToolRegistry
	Recorder         *sessions.Recorder
	Bus              *eventbus.Bus
	Model            string
	WorkingDirectory string
	MaxActive        int
	// SubAgentRegistry tracks Pending/Running/terminal status and progress
	// for every spawned agent. Defaults to a fresh *multiagent.Registry if
	// nil, since a Manager is never useful without one.
	SubAgentRegistry *multiagent.Registry
	// DefaultPolicy applies when a spawn request carries no allow/deny
	// lists of its own. Nil means such spawns inherit every parent tool.
	DefaultPolicy *policy.Policy
}

// NewManager creates a new sub-agent manager.
func NewManager(cfg ManagerConfig) *Manager {
	maxActive := cfg.MaxActive
	if maxActive <= 0 {
		maxActive = 5
	}
	reg := cfg.SubAgentRegistry
	if reg == nil {
		reg = multiagent.NewRegistry()
	}
	return &Manager{
		agents:     make(map[string]*SubAgent),
		cancels:    make(map[string]context.CancelFunc),
		provider:   cfg.Provider,
		registry:   cfg.ParentRegistry,
		recorder:   cfg.Recorder,
		bus:        cfg.Bus,
		resolver:   policy.NewResolver(),
		model:      cfg.Model,
		workdir:    cfg.WorkingDirectory,
		maxActive:  maxActive,
		queue:      NewAnnounceQueue(),
		subagents:  reg,
		defaultPol: cfg.DefaultPolicy,
	}
}

// PolicyResolver exposes the resolver sub-agent tool policies evaluate
// against, so callers (the MCP bridge) can publish tool groups into it.
func (m *Manager) PolicyResolver() *policy.Resolver {
	return m.resolver
}

// SetAnnouncer sets the function to announce sub-agent spawns.
func (m *Manager) SetAnnouncer(fn func(ctx context.Context, parentSession string, msg string) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.announcer = fn
}

// Spawn creates and starts a new sub-agent running in the background.
func (m *Manager) Spawn(ctx context.Context, parentID, parentSession, name, task string, allowedTools, deniedTools []string) (*SubAgent, error) {
	if atomic.LoadInt64(&m.activeCount) >= int64(m.maxActive) {
		return nil, fmt.Errorf("max active sub-agents reached (%d)", m.maxActive)
	}

	sa := &SubAgent{
		ID:           uuid.NewString(),
		ParentID:     parentID,
		SessionID:    parentSession + "-" + uuid.NewString()[:8],
		Name:         name,
		Task:         task,
		Status:       "running",
		CreatedAt:    time.Now(),
		AllowedTools: allowedTools,
		DeniedTools:  deniedTools,
	}

	runCtx, cancel := context.WithCancel(context.Background())

	toolAccess := multiagent.ToolAccess{Kind: multiagent.TAAll}
	if len(allowedTools) > 0 {
		toolAccess = multiagent.ToolAccess{Kind: multiagent.TAAllow, Names: allowedTools}
	} else if len(deniedTools) > 0 {
		toolAccess = multiagent.ToolAccess{Kind: multiagent.TADeny, Names: deniedTools}
	}
	regID, regCancel := m.subagents.CreateRunningAgent(multiagent.Config{
		AgentType:  name,
		Prompt:     task,
		ToolAccess: toolAccess,
	})
	sa.registryID = regID
	_ = m.subagents.UpdateStatus(regID, multiagent.StatusRunning)

	m.mu.Lock()
	m.agents[sa.ID] = sa
	// cancel tears down the sub-agent's own context; regCancel fires the
	// registry's tracked cancellation token. Cancel fires both so a kill
	// from either side (tool-level Cancel or registry.Kill) is effective.
	m.cancels[sa.ID] = func() { cancel(); regCancel() }
	announcer := m.announcer
	m.mu.Unlock()

	atomic.AddInt64(&m.activeCount, 1)

	if announcer != nil {
		announcement := fmt.Sprintf("spawning sub-agent %q to: %s", name, task)
		m.queue.Enqueue(parentSession, &AnnounceQueueItem{
			Prompt:      announcement,
			SummaryLine: fmt.Sprintf("spawn:%s", name),
			EnqueuedAt:  time.Now(),
			SessionID:   parentSession,
		}, nil)
		_ = announcer(ctx, parentSession, announcement)
	}

	go m.runSubAgent(runCtx, sa)

	return sa, nil
}

// runSubAgent drives sa's own execution loop to completion.
func (m *Manager) runSubAgent(ctx context.Context, sa *SubAgent) {
	defer atomic.AddInt64(&m.activeCount, -1)

	// Allow-only spawns get exactly the named tools; deny-only spawns get
	// everything else; a spawn with neither falls back to the manager's
	// default policy, or full inheritance.
	toolPolicy := &policy.Policy{Allow: sa.AllowedTools, Deny: sa.DeniedTools}
	switch {
	case len(sa.AllowedTools) == 0 && len(sa.DeniedTools) == 0 && m.defaultPol != nil:
		toolPolicy = m.defaultPol
	case len(sa.AllowedTools) == 0:
		toolPolicy.Profile = policy.ProfileFull
	}
	registry := m.filteredRegistry(toolPolicy)
	executor := agent.NewExecutor(registry, agent.ExecutorConfig{})
	systemPrompt := BuildSubagentSystemPrompt(SubagentSystemPromptParams{
		ChildSessionID: sa.SessionID,
		Label:           sa.Name,
		Task:            sa.Task,
	})
	loop := agent.NewLoop(m.provider, executor, m.recorder, m.bus, agent.LoopConfig{
		Model:  m.model,
		System: systemPrompt,
		OnProgress: func(stepNumber int, tokenCount int64, toolUseCount int) {
			_ = m.subagents.UpdateProgress(sa.registryID, multiagent.Progress{
				CurrentStep:  stepNumber,
				TokenCount:   tokenCount,
				ToolUseCount: toolUseCount,
			})
		},
	})

	if _, err := m.recorder.StartSession(ctx, sessions.SessionMeta{
		WorkingDirectory: m.workdir,
		Model:            m.model,
		Name:             fmt.Sprintf("subagent:%s", sa.Name),
	}); err != nil {
		m.completeSubAgent(sa.ID, "", err.Error())
		_ = m.subagents.Fail(sa.registryID, err.Error())
		return
	}

	startedAt := time.Now()
	outcome := loop.Run(ctx, sa.SessionID, sa.Task, 0, false)
	switch outcome.Kind {
	case agent.OutcomeSuccess:
		result := ""
		if n := len(outcome.Messages); n > 0 {
			result = outcome.Messages[n-1].Content
		}
		m.completeSubAgent(sa.ID, result, "")
		_ = m.subagents.Complete(sa.registryID, result)
		m.announceCompletion(sa, startedAt, &SubagentRunOutcome{Status: "ok"}, result)
	case agent.OutcomeUserCancelled, agent.OutcomeInterrupted:
		m.mu.Lock()
		if inst, ok := m.agents[sa.ID]; ok && inst.Status == "running" {
			inst.Status = "cancelled"
			inst.CompletedAt = time.Now()
		}
		m.mu.Unlock()
		_ = m.subagents.Kill(sa.registryID)
	case agent.OutcomeMaxStepsReached:
		errMsg := outcome.Reason
		m.completeSubAgent(sa.ID, "", errMsg)
		_ = m.subagents.Fail(sa.registryID, errMsg)
		m.announceCompletion(sa, startedAt, &SubagentRunOutcome{Status: "timeout"}, "")
	default:
		errMsg := outcome.Reason
		if outcome.Err != nil {
			errMsg = outcome.Err.Error()
		}
		m.completeSubAgent(sa.ID, "", errMsg)
		_ = m.subagents.Fail(sa.registryID, errMsg)
		m.announceCompletion(sa, startedAt, &SubagentRunOutcome{Status: "error", Error: errMsg}, "")
	}
}

// announceCompletion queues and delivers a trigger message summarizing a
// finished sub-agent run, so the parent session learns about background
// work without polling subagent_status.
func (m *Manager) announceCompletion(sa *SubAgent, startedAt time.Time, outcome *SubagentRunOutcome, reply string) {
	m.mu.RLock()
	announcer := m.announcer
	m.mu.RUnlock()
	if announcer == nil {
		return
	}

	stats := BuildStatsLine(&StatsLine{
		Runtime:   FormatDurationShort(time.Since(startedAt)),
		SessionID: sa.SessionID,
	})
	msg := BuildTriggerMessage(TriggerMessageParams{
		Label:     sa.Name,
		Task:      sa.Task,
		Outcome:   outcome,
		Reply:     reply,
		StatsLine: stats,
	})

	parentSession := parentSessionOf(sa.SessionID)
	m.queue.Enqueue(parentSession, &AnnounceQueueItem{
		Prompt:      msg,
		SummaryLine: fmt.Sprintf("subagent:%s:%s", sa.Name, outcome.Status),
		EnqueuedAt:  time.Now(),
		SessionID:   parentSession,
	}, nil)

	ctx := context.Background()
	_ = announcer(ctx, parentSession, msg)
}

// parentSessionOf recovers the parent session key a spawned sub-agent's
// session ID was derived from (see Spawn, which appends "-<suffix>").
func parentSessionOf(childSessionID string) string {
	if idx := lastDash(childSessionID); idx >= 0 {
		return childSessionID[:idx]
	}
	return childSessionID
}

func lastDash(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '-' {
			return i
		}
	}
	return -1
}

// filteredRegistry builds a registry exposing only the tools toolPolicy
// allows out of the parent registry, so a sub-agent never gains a capability
// its parent didn't grant it.
func (m *Manager) filteredRegistry(toolPolicy *policy.Policy) *agent.ToolRegistry {
	filtered := agent.NewToolRegistry()
	if m.registry == nil {
		return filtered
	}
	allowed := m.resolver.FilterAllowed(toolPolicy, m.registry.Names())
	for _, name := range allowed {
		if t, ok := m.registry.Get(name); ok {
			filtered.Register(t)
		}
	}
	return filtered
}

// completeSubAgent marks a sub-agent as completed or failed.
func (m *Manager) completeSubAgent(id, result, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sa, ok := m.agents[id]
	if !ok || sa.Status != "running" {
		return
	}

	sa.CompletedAt = time.Now()
	if errMsg != "" {
		sa.Status = "failed"
		sa.Error = errMsg
	} else {
		sa.Status = "completed"
		sa.Result = result
	}
}

// Get returns a sub-agent by ID.
func (m *Manager) Get(id string) (*SubAgent, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sa, ok := m.agents[id]
	return sa, ok
}

// List returns all sub-agents for a parent.
func (m *Manager) List(parentID string) []*SubAgent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*SubAgent
	for _, sa := range m.agents {
		if sa.ParentID == parentID {
			result = append(result, sa)
		}
	}
	return result
}

// Cancel cancels a running sub-agent by firing its cancellation token.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sa, ok := m.agents[id]
	if !ok {
		return fmt.Errorf("sub-agent not found: %s", id)
	}
	if sa.Status != "running" {
		return fmt.Errorf("sub-agent not running: %s", sa.Status)
	}

	if cancel, ok := m.cancels[id]; ok {
		cancel()
	}
	sa.Status = "cancelled"
	sa.CompletedAt = time.Now()
	sa.Error = "cancelled by user"
	_ = m.subagents.Kill(sa.registryID)
	return nil
}

// ActiveCount returns the number of active sub-agents.
func (m *Manager) ActiveCount() int {
	return int(atomic.LoadInt64(&m.activeCount))
}

// SpawnTool is a tool for spawning sub-agents.
type SpawnTool struct {
	manager *Manager
}

// NewSpawnTool creates a new spawn tool.
func NewSpawnTool(manager *Manager) *SpawnTool {
	return &SpawnTool{manager: manager}
}

func (t *SpawnTool) Name() string { return "spawn_subagent" }

func (t *SpawnTool) Description() string {
	return "Spawn a sub-agent to work on a specific task. Returns the sub-agent ID for tracking."
}

func (t *SpawnTool) Schema() json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name": map[string]any{
				"type":        "string",
				"description": "A short name for the sub-agent (e.g., 'researcher', 'coder')",
			},
			"task": map[string]any{
				"type":        "string",
				"description": "The task for the sub-agent to complete",
			},
			"allowed_tools": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Tools the sub-agent is allowed to use (optional, defaults to all)",
			},
			"denied_tools": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Tools the sub-agent is NOT allowed to use (optional)",
			},
		},
		"required": []string{"name", "task"},
	}
	payload, _ := json.Marshal(schema)
	return payload
}

func (t *SpawnTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Name         string   `json:"name"`
		Task         string   `json:"task"`
		AllowedTools []string `json:"allowed_tools"`
		DeniedTools  []string `json:"denied_tools"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return &agent.ToolResult{IsError: true, Content: fmt.Sprintf("invalid input: %v", err)}, nil
	}
	if input.Name == "" {
		return &agent.ToolResult{IsError: true, Content: "name is required"}, nil
	}
	if input.Task == "" {
		return &agent.ToolResult{IsError: true, Content: "task is required"}, nil
	}

	parent := ParentFromContext(ctx)
	sa, err := t.manager.Spawn(ctx, parent.AgentID, parent.SessionID, input.Name, input.Task, input.AllowedTools, input.DeniedTools)
	if err != nil {
		return &agent.ToolResult{IsError: true, Content: err.Error()}, nil
	}

	return &agent.ToolResult{Content: fmt.Sprintf(
		"Sub-agent %q spawned with ID: %s\nTask: %s\nUse subagent_status to check progress.",
		input.Name, sa.ID, input.Task,
	)}, nil
}

// StatusTool is a tool for checking sub-agent status.
type StatusTool struct {
	manager *Manager
}

// NewStatusTool creates a new status tool.
func NewStatusTool(manager *Manager) *StatusTool {
	return &StatusTool{manager: manager}
}

func (t *StatusTool) Name() string        { return "subagent_status" }
func (t *StatusTool) Description() string { return "Check the status of a sub-agent or list all sub-agents." }

func (t *StatusTool) Schema() json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"id": map[string]any{
				"type":        "string",
				"description": "Sub-agent ID to check (optional, omit to list all)",
			},
		},
	}
	payload, _ := json.Marshal(schema)
	return payload
}

func (t *StatusTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return &agent.ToolResult{IsError: true, Content: fmt.Sprintf("invalid input: %v", err)}, nil
	}

	if input.ID != "" {
		sa, ok := t.manager.Get(input.ID)
		if !ok {
			return &agent.ToolResult{IsError: true, Content: fmt.Sprintf("sub-agent not found: %s", input.ID)}, nil
		}
		result := fmt.Sprintf("Sub-agent: %s (%s)\nStatus: %s\nTask: %s\n", sa.Name, sa.ID, sa.Status, sa.Task)
		if sa.Status == "completed" {
			result += fmt.Sprintf("Result: %s\n", sa.Result)
		}
		if sa.Status == "failed" {
			result += fmt.Sprintf("Error: %s\n", sa.Error)
		}
		return &agent.ToolResult{Content: result}, nil
	}

	parent := ParentFromContext(ctx)
	agents := t.manager.List(parent.AgentID)
	if len(agents) == 0 {
		return &agent.ToolResult{Content: "No sub-agents found."}, nil
	}

	result := fmt.Sprintf("Active sub-agents: %d/%d\n\n", t.manager.ActiveCount(), t.manager.maxActive)
	for _, sa := range agents {
		result += fmt.Sprintf("- %s (%s): %s - %s\n", sa.Name, sa.ID, sa.Status, truncate(sa.Task, 50))
	}
	return &agent.ToolResult{Content: result}, nil
}

// CancelTool is a tool for cancelling sub-agents.
type CancelTool struct {
	manager *Manager
}

// NewCancelTool creates a new cancel tool.
func NewCancelTool(manager *Manager) *CancelTool {
	return &CancelTool{manager: manager}
}

func (t *CancelTool) Name() string        { return "subagent_cancel" }
func (t *CancelTool) Description() string { return "Cancel a running sub-agent." }

func (t *CancelTool) Schema() json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"id": map[string]any{
				"type":        "string",
				"description": "Sub-agent ID to cancel",
			},
		},
		"required": []string{"id"},
	}
	payload, _ := json.Marshal(schema)
	return payload
}

func (t *CancelTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return &agent.ToolResult{IsError: true, Content: fmt.Sprintf("invalid input: %v", err)}, nil
	}
	if input.ID == "" {
		return &agent.ToolResult{IsError: true, Content: "id is required"}, nil
	}

	if err := t.manager.Cancel(input.ID); err != nil {
		return &agent.ToolResult{IsError: true, Content: err.Error()}, nil
	}
	return &agent.ToolResult{Content: fmt.Sprintf("Sub-agent %s cancelled.", input.ID)}, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
