package subagent

import (
	"time"

	"github.com/robfig/cron/v3"
)

// SweepCompleted drops every sub-agent whose terminal status (completed,
// failed, cancelled) is older than maxAge, returning the count removed.
// Running and pending agents are never swept.
func (m *Manager) SweepCompleted(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, sa := range m.agents {
		if sa.Status == "running" {
			continue
		}
		if sa.CompletedAt.IsZero() || sa.CompletedAt.After(cutoff) {
			continue
		}
		delete(m.agents, id)
		removed++
	}
	return removed
}

// Sweeper runs Manager.SweepCompleted on a schedule so a long-lived process
// doesn't accumulate terminal sub-agent records forever. A non-empty cron
// expression drives the schedule; otherwise fallbackInterval drives a plain
// time.Ticker.
type Sweeper struct {
	manager *Manager
	maxAge  time.Duration
	cron    *cron.Cron
	ticker  *time.Ticker
	done    chan struct{}
}

// NewSweeper builds a Sweeper over manager, removing terminal sub-agents
// older than maxAge each time it fires. Call Start to begin.
func NewSweeper(manager *Manager, maxAge time.Duration) *Sweeper {
	return &Sweeper{manager: manager, maxAge: maxAge}
}

// Start begins sweeping. schedule is a standard cron expression
// (e.g. "@every 5m"); when empty, fallbackInterval drives a ticker instead.
func (s *Sweeper) Start(schedule string, fallbackInterval time.Duration) error {
	if schedule != "" {
		c := cron.New()
		if _, err := c.AddFunc(schedule, func() {
			s.manager.SweepCompleted(s.maxAge)
		}); err != nil {
			return err
		}
		c.Start()
		s.cron = c
		return nil
	}

	if fallbackInterval <= 0 {
		fallbackInterval = 5 * time.Minute
	}
	ticker := time.NewTicker(fallbackInterval)
	done := make(chan struct{})
	s.ticker = ticker
	s.done = done
	go func() {
		for {
			select {
			case <-ticker.C:
				s.manager.SweepCompleted(s.maxAge)
			case <-done:
				return
			}
		}
	}()
	return nil
}

// Stop halts whichever scheduling path Start chose.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		s.cron.Stop()
		s.cron = nil
	}
	if s.ticker != nil {
		s.ticker.Stop()
		close(s.done)
		s.ticker = nil
	}
}
