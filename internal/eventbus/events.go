// Package eventbus implements the single-writer, multi-reader event stream
// the execution loop publishes to and UIs/loggers subscribe to.
package eventbus

import "time"

// EventType discriminates the kinds of events the loop publishes.
type EventType string

const (
	EventSessionStarted         EventType = "session_started"
	EventSessionEnded           EventType = "session_ended"
	EventStepStarted            EventType = "step_started"
	EventThinkingStarted        EventType = "thinking_started"
	EventThinkingStopped        EventType = "thinking_stopped"
	EventContentStreamStarted   EventType = "content_stream_started"
	EventContentChunk           EventType = "content_chunk"
	EventContentStreamEnded     EventType = "content_stream_ended"
	EventToolExecutionStarted   EventType = "tool_execution_started"
	EventToolExecutionCompleted EventType = "tool_execution_completed"
	EventUserInputRequested     EventType = "user_input_requested"
	EventUserInputReceived      EventType = "user_input_received"
	EventErrorOccurred          EventType = "error_occurred"
	EventGitBranchChanged       EventType = "git_branch_changed"
	EventWorkingDirectoryChanged EventType = "working_directory_changed"
)

// Event is the envelope published on the bus. Only the fields relevant to
// Type are populated; the rest are left at their zero value.
type Event struct {
	Type      EventType
	SessionID string
	Timestamp time.Time

	StepIndex int

	ContentChunk string

	ToolCallID   string
	ToolName     string
	ToolSuccess  bool
	ToolError    string
	ToolDuration time.Duration

	Prompt string
	Input  string

	Err string

	GitBranch        string
	WorkingDirectory string
}
