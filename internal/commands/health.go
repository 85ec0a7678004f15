package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// HealthSummary contains the overall health status.
type HealthSummary struct {
	OK          bool                     `json:"ok"`
	Ts          int64                    `json:"ts"`
	DurationMs  int64                    `json:"duration_ms"`
	Servers     map[string]*ServerHealth `json:"servers"`
	ServerOrder []string                 `json:"server_order"`
	Subagents   []*SubagentHealth        `json:"subagents"`
	Sessions    *SessionsHealth          `json:"sessions"`
}

// ServerHealth contains health status for one MCP server.
type ServerHealth struct {
	Status              string       `json:"status"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	LastPingAt          *int64       `json:"last_ping_at,omitempty"`
	Probe               *ServerProbe `json:"probe,omitempty"`
}

// ServerProbe contains the result of an active ping.
type ServerProbe struct {
	OK        bool   `json:"ok"`
	ElapsedMs int64  `json:"elapsed_ms,omitempty"`
	Error     string `json:"error,omitempty"`
}

// SubagentHealth contains status for one running sub-agent.
type SubagentHealth struct {
	AgentID string `json:"agent_id"`
	Type    string `json:"type"`
	Status  string `json:"status"`
}

// SessionsHealth contains session store status.
type SessionsHealth struct {
	Path   string           `json:"path"`
	Count  int              `json:"count"`
	Recent []*RecentSession `json:"recent"`
}

// RecentSession contains information about a recent session.
type RecentSession struct {
	ID        string `json:"id"`
	UpdatedAt *int64 `json:"updated_at,omitempty"`
	AgeMs     *int64 `json:"age_ms,omitempty"`
}

// ServerProber actively pings one MCP server. The checker treats a nil
// error as a healthy probe.
type ServerProber interface {
	Ping(ctx context.Context) error
	State() (status string, consecutiveFailures int, lastPing *time.Time)
}

// HealthCheckOptions tunes one Check call.
type HealthCheckOptions struct {
	TimeoutMs    int64
	ProbeServers *bool
}

// HealthChecker aggregates MCP server, sub-agent, and session store status
// into one summary. Sources are pluggable so the checker has no dependency
// on the packages it reports on.
type HealthChecker struct {
	mu        sync.RWMutex
	probers   map[string]ServerProber
	subagents func() []*SubagentHealth
	sessions  func() *SessionsHealth
}

// NewHealthChecker creates an empty checker.
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{probers: make(map[string]ServerProber)}
}

// AddServer registers a prober under the server's id, replacing any prior
// prober for the same id.
func (hc *HealthChecker) AddServer(id string, prober ServerProber) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.probers[id] = prober
}

// RemoveServer drops the prober for id, if present.
func (hc *HealthChecker) RemoveServer(id string) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	delete(hc.probers, id)
}

// SetSubagentSource sets the snapshot callback for sub-agent status.
func (hc *HealthChecker) SetSubagentSource(fn func() []*SubagentHealth) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.subagents = fn
}

// SetSessionSource sets the snapshot callback for session store status.
func (hc *HealthChecker) SetSessionSource(fn func() *SessionsHealth) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.sessions = fn
}

// Check runs the health check. Passive state is always collected; active
// server pings run only when opts.ProbeServers is true, bounded by the
// timeout.
func (hc *HealthChecker) Check(ctx context.Context, opts *HealthCheckOptions) (*HealthSummary, error) {
	start := time.Now()

	timeoutMs := int64(10000)
	probe := false
	if opts != nil {
		if opts.TimeoutMs > 0 {
			timeoutMs = opts.TimeoutMs
		}
		if opts.ProbeServers != nil {
			probe = *opts.ProbeServers
		}
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
	defer cancel()

	hc.mu.RLock()
	probers := make(map[string]ServerProber, len(hc.probers))
	for id, p := range hc.probers {
		probers[id] = p
	}
	subagents := hc.subagents
	sessions := hc.sessions
	hc.mu.RUnlock()

	summary := &HealthSummary{
		OK:      true,
		Ts:      start.UnixMilli(),
		Servers: make(map[string]*ServerHealth, len(probers)),
	}

	for id, p := range probers {
		status, failures, lastPing := p.State()
		sh := &ServerHealth{Status: status, ConsecutiveFailures: failures}
		if lastPing != nil {
			ms := lastPing.UnixMilli()
			sh.LastPingAt = &ms
		}
		if probe {
			probeStart := time.Now()
			err := p.Ping(ctx)
			sh.Probe = &ServerProbe{OK: err == nil, ElapsedMs: time.Since(probeStart).Milliseconds()}
			if err != nil {
				sh.Probe.Error = err.Error()
			}
		}
		if failures > 0 || (sh.Probe != nil && !sh.Probe.OK) {
			summary.OK = false
		}
		summary.Servers[id] = sh
		summary.ServerOrder = append(summary.ServerOrder, id)
	}
	sort.Strings(summary.ServerOrder)

	if subagents != nil {
		summary.Subagents = subagents()
	}
	if sessions != nil {
		summary.Sessions = sessions()
	}

	summary.DurationMs = time.Since(start).Milliseconds()
	return summary, nil
}

// FormatHealthSummary formats a health summary for display.
func FormatHealthSummary(summary *HealthSummary) string {
	if summary == nil {
		return "No health data"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Health Check (took %dms)\n", summary.DurationMs)
	fmt.Fprintf(&b, "Status: %s\n", formatOK(summary.OK))

	if len(summary.Servers) > 0 {
		b.WriteString("\nMCP Servers:\n")
		for _, id := range summary.ServerOrder {
			sh := summary.Servers[id]
			if sh == nil {
				continue
			}
			fmt.Fprintf(&b, "  %s: %s", id, sh.Status)
			if sh.ConsecutiveFailures > 0 {
				fmt.Fprintf(&b, " (%d consecutive failures)", sh.ConsecutiveFailures)
			}
			if sh.Probe != nil {
				if sh.Probe.OK {
					fmt.Fprintf(&b, ", ping ok in %dms", sh.Probe.ElapsedMs)
				} else {
					fmt.Fprintf(&b, ", ping failed: %s", sh.Probe.Error)
				}
			}
			b.WriteString("\n")
		}
	}

	if len(summary.Subagents) > 0 {
		b.WriteString("\nSub-agents:\n")
		for _, sa := range summary.Subagents {
			fmt.Fprintf(&b, "  %s (%s): %s\n", sa.AgentID, sa.Type, sa.Status)
		}
	}

	if summary.Sessions != nil {
		fmt.Fprintf(&b, "\nSessions: %d in %s\n", summary.Sessions.Count, summary.Sessions.Path)
		for _, rs := range summary.Sessions.Recent {
			fmt.Fprintf(&b, "  %s", rs.ID)
			if rs.AgeMs != nil {
				fmt.Fprintf(&b, " (%s ago)", formatAge(*rs.AgeMs))
			}
			b.WriteString("\n")
		}
	}

	return b.String()
}

func formatOK(ok bool) string {
	if ok {
		return "OK"
	}
	return "DEGRADED"
}

func formatAge(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
}
