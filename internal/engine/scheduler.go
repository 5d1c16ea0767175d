package engine

import (
	"context"
	"fmt"
	"time"

	rcron "github.com/robfig/cron/v3"

	"github.com/engramlabs/engram/internal/chat"
)

// Scheduler periodically sweeps tracked sessions and summarizes the ones
// that accumulated turns but went idle past the time threshold.
type Scheduler struct {
	engine *Engine
	cron   *rcron.Cron
}

// NewScheduler builds the sweep scheduler. Start must be called to run it.
func NewScheduler(e *Engine) *Scheduler {
	return &Scheduler{engine: e}
}

// Start schedules the sweep at the configured check interval. A time
// threshold of zero or less disables time-based triggering entirely.
func (s *Scheduler) Start() error {
	if s.engine.cfg.Summary.TimeThresholdSeconds <= 0 {
		s.engine.obs.Log().Info().Msg("time threshold disabled; scheduler not started")
		return nil
	}

	interval := s.engine.cfg.Summary.CheckIntervalSeconds
	if interval <= 0 {
		interval = 300
	}

	s.cron = rcron.New()
	spec := fmt.Sprintf("@every %ds", interval)
	if _, err := s.cron.AddFunc(spec, func() {
		s.engine.SweepOnce(context.Background())
	}); err != nil {
		return fmt.Errorf("failed to schedule memory sweep: %w", err)
	}
	s.cron.Start()

	s.engine.obs.Log().Info().
		Int("interval_seconds", interval).
		Int("threshold_seconds", s.engine.cfg.Summary.TimeThresholdSeconds).
		Msg("memory sweep scheduled")
	return nil
}

// stopGrace bounds how long Stop waits for an in-flight sweep.
const stopGrace = 5 * time.Second

// Stop halts the schedule and waits up to the grace period for a running
// sweep to return. A sweep still running after that is abandoned, not
// joined.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	if !waitWithGrace(s.cron.Stop().Done(), stopGrace) {
		s.engine.obs.Log().Warn().
			Int("grace_seconds", int(stopGrace/time.Second)).
			Msg("sweep still running after stop grace period; abandoning wait")
	}
}

// waitWithGrace waits for done up to grace, reporting whether it finished.
func waitWithGrace(done <-chan struct{}, grace time.Duration) bool {
	select {
	case <-done:
		return true
	case <-time.After(grace):
		return false
	}
}

// SweepOnce evaluates the time trigger for every tracked session. Each
// session is handled independently; one failing session never aborts the
// sweep.
func (e *Engine) SweepOnce(ctx context.Context) {
	threshold := e.cfg.Summary.TimeThresholdSeconds
	if threshold <= 0 {
		return
	}

	for _, sessionID := range e.sessions.SessionIDs() {
		e.sweepSession(ctx, sessionID, float64(threshold))
	}
}

func (e *Engine) sweepSession(ctx context.Context, sessionID string, threshold float64) {
	_, span := e.obs.StartSpan(ctx, "engine.sweep_session")
	defer span.End()

	lock := e.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	snap, ok := e.sessions.GetFullContext(sessionID)
	if !ok {
		return
	}
	if !e.sessions.AdjustCountIfNecessary(sessionID, len(snap.History)) {
		return
	}

	count := e.sessions.GetCount(sessionID)
	if count <= 0 {
		return
	}

	elapsed := float64(e.now().UnixNano())/float64(time.Second) - snap.LastSummaryTime
	if elapsed <= threshold {
		return
	}

	// The time trigger flushes everything pending, not just the last
	// threshold's worth of turns.
	transcript := chat.Transcript(snap.History, count)
	persona := e.resolvePersona(snap.Origin)

	e.launchSummarize(sessionID, persona, transcript)
	e.sessions.ResetCount(sessionID)
	e.sessions.UpdateSummaryTime(sessionID)

	e.met.TriggerFires.WithLabelValues("time").Inc()
	e.obs.Log().Info().
		Str("session", sessionID).
		Int("count", count).
		Int("idle_seconds", int(elapsed)).
		Msg("time trigger fired; summarization launched")
}
