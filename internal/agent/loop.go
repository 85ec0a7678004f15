package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sagerun/sage/internal/eventbus"
	capmodels "github.com/sagerun/sage/internal/models"
	"github.com/sagerun/sage/internal/observability"
	"github.com/sagerun/sage/internal/sageerr"
	"github.com/sagerun/sage/pkg/models"
)

// OutcomeKind discriminates the variants of ExecutionOutcome. Go has no sum
// types, so - matching how sageerr.Error models its Kind enum - it is a
// single struct tagged by an enum rather than an interface hierarchy.
type OutcomeKind string

const (
	OutcomeSuccess         OutcomeKind = "success"
	OutcomeMaxStepsReached OutcomeKind = "max_steps_reached"
	OutcomeInterrupted     OutcomeKind = "interrupted"
	OutcomeUserCancelled   OutcomeKind = "user_cancelled"
	OutcomeFailed          OutcomeKind = "failed"
)

// Execution is the accumulated record of one run() call: the step count
// reached and the final conversation state, independent of how it ended.
type Execution struct {
	SessionID string
	Steps     int
	Messages  []CompletionMessage
}

// ExecutionOutcome is the terminal result of Loop.Run.
type ExecutionOutcome struct {
	Kind Outcome
	Execution
	Reason         string
	PendingQuestion string
	Err            error
}

// Outcome is an alias kept separate from OutcomeKind's name so call sites
// read naturally: outcome.Kind == agent.OutcomeSuccess.
type Outcome = OutcomeKind

// SessionRecorder is the loop's view of the session log: every record call returns the
// assigned message (with its UUID) so the loop can track lineage without
// owning storage itself.
type SessionRecorder interface {
	RecordUser(ctx context.Context, sessionID, content string) (models.Message, error)
	RecordAssistant(ctx context.Context, sessionID, content string, toolCalls []models.ToolCall, usage *models.Usage) (models.Message, error)
	RecordToolResult(ctx context.Context, sessionID string, result models.ToolResult) (models.Message, error)
	RecordError(ctx context.Context, sessionID, kind, message string) (models.Message, error)
	EndSession(ctx context.Context, sessionID string, success bool) error
}

// LoopConfig configures a Loop.
type LoopConfig struct {
	Model                string
	System               string
	MaxTokens            int
	Temperature          float64
	EnableThinking       bool
	ThinkingBudgetTokens int

	// OnProgress, if set, is called after every step with the running step
	// count, cumulative token usage, and cumulative tool-call count. A
	// sub-agent registry wires this in to keep its Progress view live while
	// the instance is Running.
	OnProgress func(stepNumber int, tokenCount int64, toolUseCount int)

	// OnUsage, if set, is called once per step that reported token usage.
	// The CLI wires this into the provider usage tracker.
	OnUsage func(usage models.Usage)
}

// Loop is the execution loop: it owns the session
// recorder handle and the tool executor reference, and drives the
// LLM/tool-call/repeat cycle to one of the terminal ExecutionOutcome kinds.
type Loop struct {
	provider LLMProvider
	executor *Executor
	recorder SessionRecorder
	bus      *eventbus.Bus
	config   LoopConfig
	logger   *slog.Logger
}

// NewLoop builds a Loop. bus may be nil, in which case events are dropped
// rather than published.
func NewLoop(provider LLMProvider, executor *Executor, recorder SessionRecorder, bus *eventbus.Bus, config LoopConfig) *Loop {
	return &Loop{
		provider: provider,
		executor: executor,
		recorder: recorder,
		bus:      bus,
		config:   config,
		logger:   slog.Default(),
	}
}

func (l *Loop) publish(ev eventbus.Event) {
	if l.bus == nil {
		return
	}
	l.bus.Publish(ev)
}

// Run drives the step loop for sessionID starting from initialPrompt.
// With hasMaxSteps set, the run ends with MaxStepsReached once the step
// number exceeds maxSteps, so any maxSteps <= 0 yields an immediate
// MaxStepsReached outcome; hasMaxSteps=false runs without a step cap.
func (l *Loop) Run(ctx context.Context, sessionID, initialPrompt string, maxSteps int, hasMaxSteps bool) ExecutionOutcome {
	return l.Resume(ctx, sessionID, nil, initialPrompt, maxSteps, hasMaxSteps)
}

// Resume is Run with prior conversation context: history (already in
// provider shape, see HistoryMessages) seeds the conversation before the
// new prompt. History is context only - it was recorded when it first
// happened and is not re-recorded here.
func (l *Loop) Resume(ctx context.Context, sessionID string, history []CompletionMessage, initialPrompt string, maxSteps int, hasMaxSteps bool) ExecutionOutcome {
	exec := Execution{SessionID: sessionID}
	detector := &repetitionDetector{}

	l.publish(eventbus.Event{Type: eventbus.EventSessionStarted, SessionID: sessionID})

	exec.Messages = append(exec.Messages, history...)

	if _, err := l.recorder.RecordUser(ctx, sessionID, initialPrompt); err != nil {
		return l.fail(exec, err)
	}
	exec.Messages = append(exec.Messages, CompletionMessage{Role: "user", Content: initialPrompt})

	stepNumber := 1
	var cumulativeTokens int64
	var cumulativeToolCalls int
	for {
		// 1. max_steps bound.
		if hasMaxSteps && stepNumber > maxSteps {
			l.recorder.EndSession(ctx, sessionID, false)
			return ExecutionOutcome{Kind: OutcomeMaxStepsReached, Execution: exec, Reason: "Reached maximum steps"}
		}

		// 2. cancellation.
		if ctx.Err() != nil {
			l.publish(eventbus.Event{Type: eventbus.EventSessionEnded, SessionID: sessionID})
			l.recorder.EndSession(ctx, sessionID, false)
			return ExecutionOutcome{Kind: OutcomeInterrupted, Execution: exec}
		}

		observability.RecordLoopStep()

		l.publish(eventbus.Event{Type: eventbus.EventStepStarted, SessionID: sessionID, StepIndex: stepNumber})

		// 3-4. assemble + request next assistant message, clamped to what
		// the model actually accepts.
		caps := capmodels.CapabilitiesFor(l.config.Model)
		maxTokens := l.config.MaxTokens
		if caps.MaxOutputTokens > 0 && maxTokens > caps.MaxOutputTokens {
			maxTokens = caps.MaxOutputTokens
		}
		thinking := l.config.EnableThinking && caps.SupportsThinking
		thinkingBudget := l.config.ThinkingBudgetTokens
		if caps.MaxThinkingBudget > 0 && thinkingBudget > caps.MaxThinkingBudget {
			thinkingBudget = caps.MaxThinkingBudget
		}

		l.publish(eventbus.Event{Type: eventbus.EventThinkingStarted, SessionID: sessionID})
		chunks, err := l.provider.Complete(ctx, &CompletionRequest{
			Model:                l.config.Model,
			Messages:             exec.Messages,
			System:               l.config.System,
			MaxTokens:            maxTokens,
			Temperature:          l.config.Temperature,
			EnableThinking:       thinking,
			ThinkingBudgetTokens: thinkingBudget,
		})
		if err != nil {
			return l.handleLLMError(ctx, exec, sessionID, err)
		}

		content, toolCalls, usage, chunkErr := l.drain(chunks)
		l.publish(eventbus.Event{Type: eventbus.EventThinkingStopped, SessionID: sessionID})
		if chunkErr != nil {
			return l.handleLLMError(ctx, exec, sessionID, chunkErr)
		}

		// 5. repetition detector.
		forcedComplete := detector.observe(content)
		if forcedComplete {
			l.logger.Warn("repetition detector forced step completion", "session_id", sessionID, "step", stepNumber)
		}

		// 6. record assistant message, dispatch tool calls, record results.
		if _, err := l.recorder.RecordAssistant(ctx, sessionID, content, toolCalls, usage); err != nil {
			return l.fail(exec, err)
		}
		exec.Messages = append(exec.Messages, CompletionMessage{Role: "assistant", Content: content, ToolCalls: toolCalls})

		if usage != nil {
			cumulativeTokens += int64(usage.InputTokens) + int64(usage.OutputTokens)
			if l.config.OnUsage != nil {
				l.config.OnUsage(*usage)
			}
		}
		cumulativeToolCalls += len(toolCalls)
		if l.config.OnProgress != nil {
			l.config.OnProgress(stepNumber, cumulativeTokens, cumulativeToolCalls)
		}

		if len(toolCalls) > 0 {
			results := l.executor.ExecuteBatch(ctx, toolCalls)
			toolResults := make([]CompletionToolResult, 0, len(results))
			for _, res := range results {
				l.publish(eventbus.Event{
					Type: eventbus.EventToolExecutionCompleted, SessionID: sessionID,
					ToolCallID: res.CallID, ToolName: res.ToolName, ToolSuccess: res.Success, ToolError: res.Error,
				})
				if _, err := l.recorder.RecordToolResult(ctx, sessionID, res); err != nil {
					return l.fail(exec, err)
				}
				toolResults = append(toolResults, CompletionToolResult{
					ToolCallID: res.CallID, Content: toolResultContent(res), IsError: !res.Success,
				})
			}
			exec.Messages = append(exec.Messages, CompletionMessage{Role: "tool", ToolResults: toolResults})
		}

		exec.Steps = stepNumber

		// 7. completion.
		if forcedComplete {
			l.recorder.EndSession(ctx, sessionID, true)
			return ExecutionOutcome{Kind: OutcomeSuccess, Execution: exec}
		}
		if len(toolCalls) == 0 {
			l.recorder.EndSession(ctx, sessionID, true)
			return ExecutionOutcome{Kind: OutcomeSuccess, Execution: exec}
		}

		stepNumber++
	}
}

func toolResultContent(res models.ToolResult) string {
	if res.Success {
		return res.Output
	}
	return res.Error
}

// drain consumes a completion chunk stream to its terminal Done/Error chunk,
// accumulating text and tool calls along the way.
func (l *Loop) drain(chunks <-chan *CompletionChunk) (content string, toolCalls []models.ToolCall, usage *models.Usage, err error) {
	var text string
	for chunk := range chunks {
		if chunk.Error != nil {
			return text, toolCalls, usage, chunk.Error
		}
		if chunk.Text != "" {
			text += chunk.Text
		}
		if chunk.ToolCall != nil {
			toolCalls = append(toolCalls, *chunk.ToolCall)
		}
		if chunk.Done {
			usage = &models.Usage{InputTokens: chunk.InputTokens, OutputTokens: chunk.OutputTokens}
		}
	}
	return text, toolCalls, usage, nil
}

// handleLLMError classifies err via the taxonomy; cancellation maps to
// UserCancelled, everything else records an error step and completes Failed.
func (l *Loop) handleLLMError(ctx context.Context, exec Execution, sessionID string, err error) ExecutionOutcome {
	l.publish(eventbus.Event{Type: eventbus.EventErrorOccurred, SessionID: sessionID, Err: err.Error()})

	if sageErr, ok := sageerr.As(err); ok && sageErr.Kind == sageerr.KindCancelled {
		return ExecutionOutcome{Kind: OutcomeUserCancelled, Execution: exec}
	}
	if ctx.Err() != nil {
		return ExecutionOutcome{Kind: OutcomeUserCancelled, Execution: exec}
	}

	l.recorder.RecordError(ctx, sessionID, "llm", err.Error())
	l.recorder.EndSession(ctx, sessionID, false)
	return ExecutionOutcome{Kind: OutcomeFailed, Execution: exec, Err: err}
}

func (l *Loop) fail(exec Execution, err error) ExecutionOutcome {
	return ExecutionOutcome{Kind: OutcomeFailed, Execution: exec, Err: fmt.Errorf("execution loop: %w", err)}
}
