package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sagerun/sage/internal/cache"
	"github.com/sagerun/sage/internal/observability"
	"github.com/sagerun/sage/pkg/models"
)

// ErrToolPanic and ErrToolTimeout are sentinel errors wrapped into the error
// returned by runTool when a tool call panics or exceeds its timeout.
var (
	ErrToolPanic   = errors.New("tool panicked")
	ErrToolTimeout = errors.New("tool execution timed out")
)

// DefaultToolTimeout is the effective timeout applied when a tool declares
// no TimeoutHint of its own.
const DefaultToolTimeout = 300 * time.Second

// ExecutorConfig configures an Executor.
type ExecutorConfig struct {
	// DefaultTimeout overrides DefaultToolTimeout when non-zero.
	DefaultTimeout time.Duration
	// AllowParallel gates whether ExecuteBatch may run calls concurrently
	// at all. Even when true, a batch only parallelizes if every tool in
	// it is also ParallelSafe.
	AllowParallel bool
	// Cache, when non-nil, memoizes successful results of cacheable tools
	// keyed by (tool, canonical-args). Mutating tools are excluded by the
	// cache's own configuration.
	Cache *cache.ToolCache
	// ValidateArgs rejects calls whose arguments don't conform to the
	// tool's declared parameter schema before the tool runs.
	ValidateArgs bool
}

// ExecutorCounters tallies executor activity for observability.
type ExecutorCounters struct {
	mu        sync.Mutex
	Executed  int64
	Succeeded int64
	Failed    int64
	TimedOut  int64
	Panicked  int64
	NotFound  int64
}

func (s *ExecutorCounters) snapshot() ExecutorCounters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ExecutorCounters{
		Executed:  s.Executed,
		Succeeded: s.Succeeded,
		Failed:    s.Failed,
		TimedOut:  s.TimedOut,
		Panicked:  s.Panicked,
		NotFound:  s.NotFound,
	}
}

// Executor dispatches ToolCalls against a ToolRegistry. It never returns an
// error from Execute/ExecuteBatch for a tool-side failure - those become
// models.ToolResult values with Success=false, so the execution loop can
// always feed a result back to the model regardless of what went wrong.
type Executor struct {
	registry *ToolRegistry
	config   ExecutorConfig
	counters ExecutorCounters
	schemas  *schemaChecker
}

// NewExecutor builds an Executor dispatching against registry.
func NewExecutor(registry *ToolRegistry, config ExecutorConfig) *Executor {
	if config.DefaultTimeout <= 0 {
		config.DefaultTimeout = DefaultToolTimeout
	}
	e := &Executor{registry: registry, config: config}
	if config.ValidateArgs {
		e.schemas = newSchemaChecker()
	}
	return e
}

// ExecutorStats describes the executor's configured surface: how many
// tools are registered and under what names, the default per-call bound,
// and whether batches may parallelize.
type ExecutorStats struct {
	TotalTools       int
	Names            []string
	MaxExecutionTime time.Duration
	AllowParallel    bool
}

// Stats returns the executor's registry/config snapshot. Names are sorted
// for deterministic output.
func (e *Executor) Stats() ExecutorStats {
	names := e.registry.Names()
	sort.Strings(names)
	return ExecutorStats{
		TotalTools:       len(names),
		Names:            names,
		MaxExecutionTime: e.config.DefaultTimeout,
		AllowParallel:    e.config.AllowParallel,
	}
}

// Counters returns a snapshot of the executor's activity counters.
func (e *Executor) Counters() ExecutorCounters {
	return e.counters.snapshot()
}

func (e *Executor) effectiveTimeout(tool Tool) time.Duration {
	if hinted, ok := tool.(TimeoutHint); ok {
		if ms := hinted.MaxExecutionTime(); ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return e.config.DefaultTimeout
}

// Execute dispatches a single ToolCall and always returns a models.ToolResult
// satisfying the success invariant, never an error.
func (e *Executor) Execute(ctx context.Context, call models.ToolCall) models.ToolResult {
	e.counters.mu.Lock()
	e.counters.Executed++
	e.counters.mu.Unlock()

	tool, ok := e.registry.Get(call.Name)
	if !ok {
		e.counters.mu.Lock()
		e.counters.NotFound++
		e.counters.Failed++
		e.counters.mu.Unlock()
		return models.NewToolFailure(call.ID, call.Name, fmt.Sprintf("tool not found: %s", call.Name))
	}

	if validator, ok := tool.(Validator); ok {
		if err := validator.Validate(call); err != nil {
			e.counters.mu.Lock()
			e.counters.Failed++
			e.counters.mu.Unlock()
			return models.NewToolFailure(call.ID, call.Name, fmt.Sprintf("validation failed: %v", err))
		}
	}

	if e.schemas != nil {
		if err := e.schemas.check(tool, call.Input); err != nil {
			e.counters.mu.Lock()
			e.counters.Failed++
			e.counters.mu.Unlock()
			return models.NewToolFailure(call.ID, call.Name, fmt.Sprintf("invalid arguments: %v", err))
		}
	}

	cacheArgs, cacheable := e.cacheArgs(call)
	if cacheable {
		if cached, ok := e.config.Cache.Get(call.Name, cacheArgs, time.Now()); ok {
			e.counters.mu.Lock()
			e.counters.Succeeded++
			e.counters.mu.Unlock()

			out := models.NewToolSuccess(call.ID, call.Name, string(cached))
			out.Metadata = map[string]any{"cached": true}
			return out
		}
	}

	timeout := e.effectiveTimeout(tool)
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	execCtx, span := observability.StartSpan(execCtx, "tool.execute")
	defer span.End()

	start := time.Now()
	result, err := e.runTool(execCtx, tool, call)
	elapsed := time.Since(start)
	observability.RecordToolExecution(call.Name, err == nil && result != nil && !result.IsError, elapsed)

	if err != nil {
		e.counters.mu.Lock()
		if execCtx.Err() == context.DeadlineExceeded {
			e.counters.TimedOut++
		}
		e.counters.Failed++
		e.counters.mu.Unlock()

		out := models.NewToolFailure(call.ID, call.Name, err.Error())
		out.ExecutionTimeMs = elapsed.Milliseconds()
		return out
	}

	e.counters.mu.Lock()
	if result.IsError {
		e.counters.Failed++
	} else {
		e.counters.Succeeded++
	}
	e.counters.mu.Unlock()

	var out models.ToolResult
	if result.IsError {
		out = models.NewToolFailure(call.ID, call.Name, result.Content)
	} else {
		out = models.NewToolSuccess(call.ID, call.Name, result.Content)
		if cacheable {
			e.config.Cache.Put(call.Name, cacheArgs, []byte(out.Output), true, time.Now())
		}
	}
	out.ExecutionTimeMs = elapsed.Milliseconds()
	out.Metadata = result.Metadata
	return out
}

// cacheArgs decodes the call's arguments for cache keying. A nil cache or
// arguments that aren't a JSON object make the call uncacheable.
func (e *Executor) cacheArgs(call models.ToolCall) (map[string]any, bool) {
	if e.config.Cache == nil {
		return nil, false
	}
	args := map[string]any{}
	if len(call.Input) > 0 {
		if err := json.Unmarshal(call.Input, &args); err != nil {
			return nil, false
		}
	}
	return args, true
}

// runTool invokes tool.Execute, converting a timeout or panic into an error
// rather than letting either escape as an undefined state. The in-flight
// call is abandoned (its goroutine leaks until it notices ctx.Done) once the
// timeout fires, surfaced via the ErrToolTimeout/ErrToolPanic sentinels.
func (e *Executor) runTool(ctx context.Context, tool Tool, call models.ToolCall) (*ToolResult, error) {
	type outcome struct {
		result *ToolResult
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.counters.mu.Lock()
				e.counters.Panicked++
				e.counters.mu.Unlock()
				done <- outcome{err: fmt.Errorf("%w: %v", ErrToolPanic, r)}
			}
		}()
		result, err := tool.Execute(ctx, call.Input)
		done <- outcome{result: result, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s", ErrToolTimeout, tool.Name())
	case o := <-done:
		return o.result, o.err
	}
}

// ValidateBatch runs every call's Validator (if the resolved tool has one)
// without executing anything, returning the first error encountered or nil.
func (e *Executor) ValidateBatch(calls []models.ToolCall) error {
	for _, call := range calls {
		tool, ok := e.registry.Get(call.Name)
		if !ok {
			return fmt.Errorf("tool not found: %s", call.Name)
		}
		if validator, ok := tool.(Validator); ok {
			if err := validator.Validate(call); err != nil {
				return fmt.Errorf("%s: %w", call.Name, err)
			}
		}
	}
	return nil
}

// batchParallelSafe reports whether every call in calls resolves to a tool
// declaring itself ParallelSafe. Calls resolving to unknown tools are
// treated as safe (their failure is a fast, cheap not-found result either
// way) so one bad name doesn't force an otherwise-parallel batch serial.
func (e *Executor) batchParallelSafe(calls []models.ToolCall) bool {
	for _, call := range calls {
		tool, ok := e.registry.Get(call.Name)
		if !ok {
			continue
		}
		safe, ok := tool.(ParallelSafe)
		if !ok || !safe.SupportsParallelExecution() {
			return false
		}
	}
	return true
}

// ExecuteBatch dispatches every call in calls, preserving input order in the
// returned slice regardless of whether execution was parallelized. A batch
// of exactly one call is always executed sequentially - there is nothing to
// parallelize and it avoids the goroutine/WaitGroup overhead for the common
// single-tool-call step.
func (e *Executor) ExecuteBatch(ctx context.Context, calls []models.ToolCall) []models.ToolResult {
	results := make([]models.ToolResult, len(calls))

	if len(calls) <= 1 || !e.config.AllowParallel || !e.batchParallelSafe(calls) {
		for i, call := range calls {
			results[i] = e.Execute(ctx, call)
		}
		return results
	}

	var wg sync.WaitGroup
	wg.Add(len(calls))
	for i, call := range calls {
		go func(i int, call models.ToolCall) {
			defer wg.Done()
			results[i] = e.Execute(ctx, call)
		}(i, call)
	}
	wg.Wait()
	return results
}
