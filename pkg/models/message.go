// Package models defines the core data types shared across the execution
// loop, tool executor, MCP subsystem, sub-agent registry, and session
// storage.
package models

import (
	"encoding/json"
	"time"
)

// MessageType discriminates the kind of entry recorded in a session.
type MessageType string

const (
	MessageTypeUser       MessageType = "user"
	MessageTypeAssistant  MessageType = "assistant"
	MessageTypeToolResult MessageType = "tool_result"
	MessageTypeError      MessageType = "error"
	MessageTypeThinking   MessageType = "thinking"
	MessageTypeSystem     MessageType = "system"
)

// Role is the conversational role a message's content is attributed to.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Attachment is a piece of binary or referenced content (image, file) carried
// alongside a message or tool result. URL may be a data: URL for inline
// content or an http(s) URL for referenced content.
type Attachment struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	URL      string `json:"url"`
	Filename string `json:"filename,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// Usage tracks token accounting for an assistant turn.
type Usage struct {
	InputTokens      int `json:"input_tokens,omitempty"`
	OutputTokens     int `json:"output_tokens,omitempty"`
	CacheReadTokens  int `json:"cache_read_tokens,omitempty"`
	CacheWriteTokens int `json:"cache_write_tokens,omitempty"`
}

// ToolCall is an LLM's request to invoke a named tool with a set of
// arguments. Input stays as json.RawMessage on the wire (tagged "arguments"
// for the external session format); callers that need canonicalization
// decode into a map (see internal/cache fingerprint).
type ToolCall struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Input        json.RawMessage `json:"arguments"`
	UpstreamCall string          `json:"upstream_call_id,omitempty"`
}

// ToolResult is the structured outcome of executing a ToolCall. The
// invariant success=true ⇒ output present ∧ error absent (and vice versa)
// is enforced by NewToolSuccess/NewToolFailure rather than left to callers.
type ToolResult struct {
	CallID          string         `json:"call_id"`
	ToolName        string         `json:"tool_name"`
	Success         bool           `json:"success"`
	Output          string         `json:"output,omitempty"`
	Error           string         `json:"error,omitempty"`
	ExitCode        *int           `json:"exit_code,omitempty"`
	ExecutionTimeMs int64          `json:"execution_time_ms,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// NewToolSuccess builds a ToolResult satisfying the success invariant.
func NewToolSuccess(callID, toolName, output string) ToolResult {
	return ToolResult{CallID: callID, ToolName: toolName, Success: true, Output: output}
}

// NewToolFailure builds a ToolResult satisfying the failure invariant.
func NewToolFailure(callID, toolName, errMsg string) ToolResult {
	return ToolResult{CallID: callID, ToolName: toolName, Success: false, Error: errMsg}
}

// Valid reports whether the result satisfies the success/output/error
// invariant from the data model.
func (r ToolResult) Valid() bool {
	if r.Success {
		return r.Output != "" || r.Error == ""
	}
	return r.Error != ""
}

// Message is one entry in a session's append-only log. ParentUUID links to
// an earlier message in the same session; sidechain messages additionally
// carry BranchID/BranchParentUUID. No two messages in a session share a
// UUID.
type Message struct {
	UUID             string         `json:"uuid"`
	ParentUUID       string         `json:"parent_uuid,omitempty"`
	BranchID         string         `json:"branch_id,omitempty"`
	BranchParentUUID string         `json:"branch_parent_uuid,omitempty"`
	Type             MessageType    `json:"type"`
	Timestamp        time.Time      `json:"timestamp"`
	SessionID        string         `json:"session_id"`
	Role             Role           `json:"role"`
	Content          string         `json:"content"`
	ToolCalls        []ToolCall     `json:"tool_calls,omitempty"`
	ToolResults      []ToolResult   `json:"tool_results,omitempty"`
	Usage            *Usage         `json:"usage,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	IsSidechain      bool           `json:"is_sidechain"`

	// Attachments carry inline or referenced binary content (images,
	// files) alongside the message; provider adapters convert them to
	// their wire format's content blocks.
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Valid reports the per-message invariants that don't require looking at
// the rest of the session (parent-uuid existence is session-wide and is
// checked by the recorder, not here).
func (m Message) Valid() bool {
	if m.Type == MessageTypeToolResult && len(m.ToolResults) == 0 {
		return false
	}
	if m.IsSidechain && m.BranchID == "" {
		return false
	}
	return true
}

// SessionState is the lifecycle state of a Session. Transitions are
// monotonic: Active -> {Completed, Failed}, never reversed.
type SessionState string

const (
	SessionActive    SessionState = "active"
	SessionCompleted SessionState = "completed"
	SessionFailed    SessionState = "failed"
)

// Session is a durable conversation/task thread. MessageCount mirrors
// len(messages) so storage can report it without loading the full log.
type Session struct {
	ID               string         `json:"id"`
	WorkingDirectory string         `json:"working_directory"`
	GitBranch        string         `json:"git_branch,omitempty"`
	Model            string         `json:"model,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	MessageCount     int            `json:"message_count"`
	State            SessionState   `json:"state"`
	Name             string         `json:"name,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// CanTransitionTo reports whether moving from the session's current state
// to next is a legal, forward-only transition.
func (s Session) CanTransitionTo(next SessionState) bool {
	if s.State == next {
		return true
	}
	return s.State == SessionActive && (next == SessionCompleted || next == SessionFailed)
}

// SessionFile is the on-disk representation of a session plus its full
// message log, matching the external session file format.
type SessionFile struct {
	Session
	Messages []*Message `json:"messages"`
}

// LLMInteraction is one request/response exchange with the model, recorded
// inside a Trajectory for archival/debugging.
type LLMInteraction struct {
	Timestamp time.Time `json:"timestamp"`
	Request   string    `json:"request"`
	Response  string    `json:"response"`
	Usage     *Usage    `json:"usage,omitempty"`
}

// AgentStep is one iteration of the execution loop, archived inside a
// Trajectory.
type AgentStep struct {
	StepNumber  int          `json:"step_number"`
	Content     string       `json:"content,omitempty"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// Trajectory is an immutable archival snapshot of one completed task,
// distinct from the live session log.
type Trajectory struct {
	ID               string           `json:"id"`
	Task             string           `json:"task"`
	StartTime        time.Time        `json:"start_time"`
	EndTime          time.Time        `json:"end_time"`
	Provider         string           `json:"provider"`
	Model            string           `json:"model"`
	MaxSteps         int              `json:"max_steps,omitempty"`
	LLMInteractions  []LLMInteraction `json:"llm_interactions"`
	AgentSteps       []AgentStep      `json:"agent_steps"`
	Success          bool             `json:"success"`
	FinalResult      string           `json:"final_result,omitempty"`
	ExecutionTimeSec float64          `json:"execution_time_secs"`
}
