package agent

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/sagerun/sage/internal/cache"
	"github.com/sagerun/sage/pkg/models"
)

type fakeTool struct {
	name         string
	result       *ToolResult
	err          error
	delay        time.Duration
	parallelSafe bool
	panics       bool
}

func (f *fakeTool) Name() string               { return f.name }
func (f *fakeTool) Description() string        { return "fake tool for tests" }
func (f *fakeTool) Schema() json.RawMessage     { return json.RawMessage(`{"type":"object"}`) }
func (f *fakeTool) SupportsParallelExecution() bool { return f.parallelSafe }

func (f *fakeTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	if f.panics {
		panic("fake tool panic")
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func newRegistry(tools ...Tool) *ToolRegistry {
	r := NewToolRegistry()
	r.RegisterBatch(tools)
	return r
}

func TestExecuteUnknownToolReturnsFailureNotError(t *testing.T) {
	exec := NewExecutor(newRegistry(), ExecutorConfig{})
	result := exec.Execute(context.Background(), models.ToolCall{ID: "1", Name: "missing"})

	if result.Success {
		t.Fatal("expected failure result for unknown tool")
	}
	if result.Error == "" {
		t.Fatal("expected a non-empty error message")
	}
}

func TestExecuteSuccess(t *testing.T) {
	tool := &fakeTool{name: "echo", result: &ToolResult{Content: "hi"}}
	exec := NewExecutor(newRegistry(tool), ExecutorConfig{})

	result := exec.Execute(context.Background(), models.ToolCall{ID: "1", Name: "echo"})
	if !result.Success || result.Output != "hi" {
		t.Fatalf("got %+v, want success with output hi", result)
	}
}

func TestExecuteTimeoutProducesFailureResult(t *testing.T) {
	tool := &fakeTool{name: "slow", delay: 50 * time.Millisecond, result: &ToolResult{Content: "too late"}}
	exec := NewExecutor(newRegistry(tool), ExecutorConfig{DefaultTimeout: 5 * time.Millisecond})

	result := exec.Execute(context.Background(), models.ToolCall{ID: "1", Name: "slow"})
	if result.Success {
		t.Fatal("expected timeout to produce a failure result")
	}
	stats := exec.Counters()
	if stats.TimedOut != 1 {
		t.Fatalf("TimedOut = %d, want 1", stats.TimedOut)
	}
}

func TestExecutePanicRecovered(t *testing.T) {
	tool := &fakeTool{name: "boom", panics: true}
	exec := NewExecutor(newRegistry(tool), ExecutorConfig{})

	result := exec.Execute(context.Background(), models.ToolCall{ID: "1", Name: "boom"})
	if result.Success {
		t.Fatal("expected panic to produce a failure result")
	}
	stats := exec.Counters()
	if stats.Panicked != 1 {
		t.Fatalf("Panicked = %d, want 1", stats.Panicked)
	}
}

func TestExecuteBatchPreservesOrder(t *testing.T) {
	a := &fakeTool{name: "a", result: &ToolResult{Content: "A"}, parallelSafe: true}
	b := &fakeTool{name: "b", result: &ToolResult{Content: "B"}, parallelSafe: true}
	exec := NewExecutor(newRegistry(a, b), ExecutorConfig{AllowParallel: true})

	calls := []models.ToolCall{{ID: "1", Name: "a"}, {ID: "2", Name: "b"}}
	results := exec.ExecuteBatch(context.Background(), calls)

	if len(results) != 2 || results[0].Output != "A" || results[1].Output != "B" {
		t.Fatalf("got %+v, want ordered [A, B]", results)
	}
}

func TestExecuteBatchOfOneNeverParallelizes(t *testing.T) {
	a := &fakeTool{name: "a", result: &ToolResult{Content: "A"}, parallelSafe: true}
	exec := NewExecutor(newRegistry(a), ExecutorConfig{AllowParallel: true})

	results := exec.ExecuteBatch(context.Background(), []models.ToolCall{{ID: "1", Name: "a"}})
	if len(results) != 1 || results[0].Output != "A" {
		t.Fatalf("got %+v", results)
	}
}

func TestExecuteBatchRequiresAllParallelSafe(t *testing.T) {
	safe := &fakeTool{name: "safe", result: &ToolResult{Content: "S"}, parallelSafe: true}
	unsafe := &fakeTool{name: "unsafe", result: &ToolResult{Content: "U"}, parallelSafe: false}
	exec := NewExecutor(newRegistry(safe, unsafe), ExecutorConfig{AllowParallel: true})

	calls := []models.ToolCall{{ID: "1", Name: "safe"}, {ID: "2", Name: "unsafe"}}
	results := exec.ExecuteBatch(context.Background(), calls)

	if len(results) != 2 || results[0].Output != "S" || results[1].Output != "U" {
		t.Fatalf("got %+v, want ordered [S, U] even though unsafe blocked parallelism", results)
	}
}

func TestStatsDescribesRegistryAndConfig(t *testing.T) {
	b := &fakeTool{name: "beta", result: &ToolResult{Content: "b"}}
	a := &fakeTool{name: "alpha", result: &ToolResult{Content: "a"}}
	exec := NewExecutor(newRegistry(b, a), ExecutorConfig{DefaultTimeout: 42 * time.Second, AllowParallel: true})

	stats := exec.Stats()
	if stats.TotalTools != 2 {
		t.Fatalf("TotalTools = %d, want 2", stats.TotalTools)
	}
	if len(stats.Names) != 2 || stats.Names[0] != "alpha" || stats.Names[1] != "beta" {
		t.Fatalf("Names = %v, want sorted [alpha beta]", stats.Names)
	}
	if stats.MaxExecutionTime != 42*time.Second {
		t.Fatalf("MaxExecutionTime = %v, want 42s", stats.MaxExecutionTime)
	}
	if !stats.AllowParallel {
		t.Fatal("AllowParallel = false, want true")
	}
}

func TestStatsDefaultTimeout(t *testing.T) {
	exec := NewExecutor(newRegistry(), ExecutorConfig{})
	stats := exec.Stats()
	if stats.MaxExecutionTime != DefaultToolTimeout {
		t.Fatalf("MaxExecutionTime = %v, want the %v default", stats.MaxExecutionTime, DefaultToolTimeout)
	}
	if stats.TotalTools != 0 || len(stats.Names) != 0 {
		t.Fatalf("empty registry stats = %+v", stats)
	}
}

type countingTool struct {
	fakeTool
	calls int
}

func (c *countingTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	c.calls++
	return c.fakeTool.Execute(ctx, params)
}

func TestExecuteServesRepeatCallsFromCache(t *testing.T) {
	tool := &countingTool{fakeTool: fakeTool{name: "read_file", result: &ToolResult{Content: "hello"}}}
	exec := NewExecutor(newRegistry(tool), ExecutorConfig{
		Cache: cache.NewToolCache(cache.DefaultToolCacheOptions()),
	})

	call := models.ToolCall{ID: "1", Name: "read_file", Input: json.RawMessage(`{"path":"a.txt"}`)}
	first := exec.Execute(context.Background(), call)
	if !first.Success || first.Output != "hello" {
		t.Fatalf("first call = %+v", first)
	}

	call.ID = "2"
	second := exec.Execute(context.Background(), call)
	if !second.Success || second.Output != "hello" {
		t.Fatalf("second call = %+v", second)
	}
	if cached, _ := second.Metadata["cached"].(bool); !cached {
		t.Fatal("expected second call to be served from cache")
	}
	if tool.calls != 1 {
		t.Fatalf("tool executed %d times, want 1", tool.calls)
	}
}

func TestExecuteCacheKeyIgnoresArgumentOrder(t *testing.T) {
	tool := &countingTool{fakeTool: fakeTool{name: "read_file", result: &ToolResult{Content: "data"}}}
	exec := NewExecutor(newRegistry(tool), ExecutorConfig{
		Cache: cache.NewToolCache(cache.DefaultToolCacheOptions()),
	})

	exec.Execute(context.Background(), models.ToolCall{ID: "1", Name: "read_file", Input: json.RawMessage(`{"path":"a.txt","offset":1}`)})
	exec.Execute(context.Background(), models.ToolCall{ID: "2", Name: "read_file", Input: json.RawMessage(`{"offset":1,"path":"a.txt"}`)})

	if tool.calls != 1 {
		t.Fatalf("tool executed %d times, want 1 (key should be order-insensitive)", tool.calls)
	}
}

func TestExecuteNeverCachesExcludedTools(t *testing.T) {
	tool := &countingTool{fakeTool: fakeTool{name: "exec", result: &ToolResult{Content: "ran"}}}
	exec := NewExecutor(newRegistry(tool), ExecutorConfig{
		Cache: cache.NewToolCache(cache.DefaultToolCacheOptions()),
	})

	call := models.ToolCall{ID: "1", Name: "exec", Input: json.RawMessage(`{"command":"ls"}`)}
	exec.Execute(context.Background(), call)
	call.ID = "2"
	exec.Execute(context.Background(), call)

	if tool.calls != 2 {
		t.Fatalf("tool executed %d times, want 2 (exec is cache-excluded)", tool.calls)
	}
}
