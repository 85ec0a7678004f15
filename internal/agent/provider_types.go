package agent

import (
	"context"
	"encoding/json"

	"github.com/sagerun/sage/pkg/models"
)

// Tool is the capability surface the execution loop and tool executor
// dispatch against. Implementations are expected to be safe for concurrent
// use: the executor may invoke Execute from multiple goroutines when a
// batch is parallelized.
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

// TimeoutHint is implemented by tools that want a non-default per-tool
// execution timeout. When absent, the executor's own MaxExecutionTime
// applies.
type TimeoutHint interface {
	MaxExecutionTime() int64 // milliseconds
}

// ParallelSafe is implemented by tools that declare themselves safe to run
// concurrently with other calls in the same batch.
type ParallelSafe interface {
	SupportsParallelExecution() bool
}

// Validator is implemented by tools with structural validation beyond
// generic JSON-Schema checks (e.g. path traversal, argument ranges).
// validate_batch calls this, if present, before any call in the batch is
// dispatched.
type Validator interface {
	Validate(call models.ToolCall) error
}

// ToolResult is the outcome of a single tool invocation, as seen by the
// execution loop and the tools that produce it. This is intentionally
// simpler than models.ToolResult: it is the shape every built-in tool
// returns, and the executor lifts it into a models.ToolResult (adding
// call id, tool name, timing) when recording the step.
type ToolResult struct {
	Content  string
	IsError  bool
	Metadata map[string]any
}

// ToolSchema is the externally visible description of a tool, returned by
// ToolRegistry.Schemas for passing to an LLM provider.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// CompletionToolResult is the wire-shape a tool result takes when replayed
// back into an LLM request as conversation history.
type CompletionToolResult struct {
	ToolCallID  string
	Content     string
	IsError     bool
	Attachments []models.Attachment
}

// CompletionMessage is one turn of conversation passed to a provider. Role
// is one of "system", "user", "assistant", "tool".
type CompletionMessage struct {
	Role        string
	Content     string
	ToolCalls   []models.ToolCall
	ToolResults []CompletionToolResult
	Attachments []models.Attachment
}

// CompletionRequest is a provider-agnostic request for the next assistant
// turn.
type CompletionRequest struct {
	Model                string
	Messages             []CompletionMessage
	System               string
	Tools                []Tool
	MaxTokens            int
	Temperature          float64
	TopP                 float64
	EnableThinking       bool
	ThinkingBudgetTokens int
}

// CompletionChunk is one unit of a streamed completion. Exactly one of
// Text/Thinking/ThinkingStart/ThinkingEnd/ToolCall/Done/Error is
// meaningful per chunk; callers should check Error first.
type CompletionChunk struct {
	Text          string
	Thinking      string
	ThinkingStart bool
	ThinkingEnd   bool
	ToolCall      *models.ToolCall
	Done          bool
	InputTokens   int
	OutputTokens  int
	Error         error
}

// Model describes one model a provider can serve.
type Model struct {
	ID             string
	Name           string
	ContextSize    int
	SupportsVision bool
}

// LLMProvider is the common interface every LLM backend implements. Complete
// returns a channel of chunks; the channel is closed after a Done or Error
// chunk is sent. Models lists what the provider can serve without making a
// network call.
type LLMProvider interface {
	Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)
	Models() []Model
	Name() string
}
