// Package observability holds the process-scoped singletons: the global
// telemetry collector, the icon mode flag, and the optional event adapter.
// Each is a one-shot initializer - a second Init call returns an error
// rather than panicking, and later reads are atomic loads.
package observability

import (
	"sync/atomic"

	"github.com/sagerun/sage/internal/sageerr"
)

// IconMode selects the glyph set the terminal renderer uses.
type IconMode int32

const (
	IconModeAuto IconMode = iota
	IconModeUnicode
	IconModeASCII
	IconModeNerdFonts
)

// EventAdapter receives every event the bus publishes, for hosts that want
// to mirror the stream somewhere beyond the in-process readers.
type EventAdapter interface {
	Publish(event any)
}

var (
	telemetry     atomic.Pointer[Collector]
	telemetryInit atomic.Bool

	iconMode     atomic.Int32
	iconModeInit atomic.Bool

	eventAdapter     atomic.Pointer[EventAdapter]
	eventAdapterInit atomic.Bool
)

// InitTelemetry installs the global telemetry collector. Calling it twice
// is an error; the first collector stays installed.
func InitTelemetry() (*Collector, error) {
	if !telemetryInit.CompareAndSwap(false, true) {
		return nil, sageerr.New(sageerr.KindAgent, "telemetry collector already initialized", nil)
	}
	c := newCollector()
	telemetry.Store(c)
	return c, nil
}

// Telemetry returns the installed collector, or nil when InitTelemetry has
// not run. The Record helpers below are nil-safe, so most callers never
// touch this directly.
func Telemetry() *Collector {
	return telemetry.Load()
}

// InitIconMode sets the process-wide icon mode once.
func InitIconMode(m IconMode) error {
	if !iconModeInit.CompareAndSwap(false, true) {
		return sageerr.New(sageerr.KindAgent, "icon mode already initialized", nil)
	}
	iconMode.Store(int32(m))
	return nil
}

// Icons returns the process-wide icon mode; IconModeAuto until initialized.
func Icons() IconMode {
	return IconMode(iconMode.Load())
}

// InitEventAdapter installs the optional global event adapter once.
func InitEventAdapter(a EventAdapter) error {
	if a == nil {
		return sageerr.New(sageerr.KindAgent, "event adapter is nil", nil)
	}
	if !eventAdapterInit.CompareAndSwap(false, true) {
		return sageerr.New(sageerr.KindAgent, "event adapter already initialized", nil)
	}
	eventAdapter.Store(&a)
	return nil
}

// Adapter returns the installed event adapter, or nil.
func Adapter() EventAdapter {
	p := eventAdapter.Load()
	if p == nil {
		return nil
	}
	return *p
}
