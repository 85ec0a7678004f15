package observability

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// The singletons are process-scoped one-shots, so this package's tests run
// against one shared initialization and assert the second-init error path.

func TestTelemetrySingleton(t *testing.T) {
	// Record before init must be a silent no-op.
	RecordToolExecution("ls", true, time.Millisecond)
	RecordLoopStep()
	RecordBusEvent(false)

	c, err := InitTelemetry()
	if err != nil {
		t.Fatalf("first InitTelemetry: %v", err)
	}
	if c == nil {
		t.Fatal("first InitTelemetry returned nil collector")
	}
	if Telemetry() != c {
		t.Error("Telemetry() should return the installed collector")
	}

	if _, err := InitTelemetry(); err == nil {
		t.Error("second InitTelemetry should error")
	}

	RecordToolExecution("ls", true, 5*time.Millisecond)
	RecordToolExecution("ls", false, time.Millisecond)
	RecordMCPRequest("files", nil)
	RecordLoopStep()
	RecordBusEvent(true)

	if got := testutil.ToFloat64(c.toolExecutions.WithLabelValues("ls", "success")); got != 1 {
		t.Errorf("tool success count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.toolExecutions.WithLabelValues("ls", "error")); got != 1 {
		t.Errorf("tool error count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.mcpRequests.WithLabelValues("files", "success")); got != 1 {
		t.Errorf("mcp success count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.busDropped); got != 1 {
		t.Errorf("bus dropped count = %v, want 1", got)
	}
}

func TestIconModeSingleton(t *testing.T) {
	if got := Icons(); got != IconModeAuto {
		t.Errorf("pre-init Icons() = %v, want auto", got)
	}
	if err := InitIconMode(IconModeNerdFonts); err != nil {
		t.Fatalf("first InitIconMode: %v", err)
	}
	if err := InitIconMode(IconModeASCII); err == nil {
		t.Error("second InitIconMode should error")
	}
	if got := Icons(); got != IconModeNerdFonts {
		t.Errorf("Icons() = %v, want nerd fonts", got)
	}
}

type captureAdapter struct {
	events []any
}

func (c *captureAdapter) Publish(event any) { c.events = append(c.events, event) }

func TestEventAdapterSingleton(t *testing.T) {
	if Adapter() != nil {
		t.Skip("adapter already installed by another test ordering")
	}
	if err := InitEventAdapter(nil); err == nil {
		t.Error("nil adapter should error")
	}

	a := &captureAdapter{}
	if err := InitEventAdapter(a); err != nil {
		t.Fatalf("first InitEventAdapter: %v", err)
	}
	if err := InitEventAdapter(&captureAdapter{}); err == nil {
		t.Error("second InitEventAdapter should error")
	}
	if Adapter() != EventAdapter(a) {
		t.Error("Adapter() should return the installed adapter")
	}
}

func TestSetupTracingDisabled(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), TracingOptions{Enabled: false})
	if err != nil {
		t.Fatalf("disabled SetupTracing: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("no-op shutdown: %v", err)
	}
}

func TestStartSpanWithoutProvider(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "test.op")
	if ctx == nil {
		t.Fatal("StartSpan returned nil context")
	}
	span.End()
}
