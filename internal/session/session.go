// Package session is the single source of truth for per-session
// conversation state: in-memory history and origin handles, plus durable
// counters and summarization timestamps delegated to a CounterStore.
package session

import (
	"sync"
	"time"

	"github.com/engramlabs/engram/internal/chat"
	"github.com/engramlabs/engram/internal/observe"
	"github.com/engramlabs/engram/internal/store"
)

// Context is a read snapshot of one session's state.
type Context struct {
	History         []chat.Message
	LastSummaryTime float64
	// Origin is the opaque handle to the request context that created the
	// session; the scheduler uses it to resolve a persona for
	// background-triggered summarization.
	Origin any
}

type state struct {
	history         []chat.Message
	lastSummaryTime float64
	origin          any
}

// Store owns the session map. It is safe for concurrent use by the turn
// handler and the background scheduler.
//
// Durable-storage failures never propagate as errors: write paths report a
// boolean, read paths return zero values, and every failure is logged. The
// engine keeps operating in-memory-only for that call.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*state
	counters store.CounterStore
	obs      *observe.Observer

	now func() time.Time
}

func NewStore(counters store.CounterStore, obs *observe.Observer) *Store {
	if obs == nil {
		obs = observe.Discard()
	}
	return &Store{
		sessions: make(map[string]*state),
		counters: counters,
		obs:      obs,
		now:      time.Now,
	}
}

// EnsureSession is the single upsert entry point for session creation.
// If the session is already tracked it is a no-op and returns false.
// Otherwise it seeds the history, loads the last summary time from durable
// storage (initializing it to now, write-through, when absent) and returns
// true. Safe to call redundantly from both retrieval and response paths.
func (s *Store) EnsureSession(sessionID string, initial []chat.Message, origin any) bool {
	s.mu.Lock()
	if _, ok := s.sessions[sessionID]; ok {
		s.mu.Unlock()
		return false
	}
	st := &state{
		history: append([]chat.Message(nil), initial...),
		origin:  origin,
	}
	s.sessions[sessionID] = st
	s.mu.Unlock()

	if origin == nil {
		s.obs.Log().Warn().
			Str("session", sessionID).
			Msg("session created without origin handle; persona resolution will be unavailable")
	}

	ts, found, err := s.counters.GetLastSummaryTime(sessionID)
	if err != nil {
		s.obs.Log().Error().Str("session", sessionID).Err(err).
			Msg("failed to load last summary time; using current time in memory only")
		found = false
	}
	if !found {
		ts = float64(s.now().UnixNano()) / float64(time.Second)
		if err := s.counters.SetLastSummaryTime(sessionID, ts); err != nil {
			s.obs.Log().Error().Str("session", sessionID).Err(err).
				Msg("failed to persist initial summary time")
		}
	}

	s.mu.Lock()
	if cur, ok := s.sessions[sessionID]; ok {
		cur.lastSummaryTime = ts
	}
	s.mu.Unlock()
	return true
}

// AddMessage appends a turn to the session history, implicitly creating the
// session when untracked. Counters are untouched; callers increment
// separately.
func (s *Store) AddMessage(sessionID, role, content string, origin any) {
	s.EnsureSession(sessionID, nil, origin)

	msg := chat.Message{
		Role:      role,
		Content:   content,
		Timestamp: s.now().Format("2006-01-02 15:04:05"),
	}

	s.mu.Lock()
	if st, ok := s.sessions[sessionID]; ok {
		st.history = append(st.history, msg)
		if origin != nil && st.origin == nil {
			st.origin = origin
		}
	}
	s.mu.Unlock()
}

// IncrementCount bumps the durable un-summarized turn counter.
func (s *Store) IncrementCount(sessionID string) bool {
	if err := s.counters.IncrementCount(sessionID); err != nil {
		s.obs.Log().Error().Str("session", sessionID).Err(err).
			Msg("failed to increment message counter")
		return false
	}
	return true
}

// ResetCount zeroes the durable counter. Callers pair it with
// UpdateSummaryTime inside the trigger critical section.
func (s *Store) ResetCount(sessionID string) bool {
	if err := s.counters.ResetCount(sessionID); err != nil {
		s.obs.Log().Error().Str("session", sessionID).Err(err).
			Msg("failed to reset message counter")
		return false
	}
	return true
}

// GetCount reads the durable counter; failures degrade to zero.
func (s *Store) GetCount(sessionID string) int {
	count, err := s.counters.GetCount(sessionID)
	if err != nil {
		s.obs.Log().Error().Str("session", sessionID).Err(err).
			Msg("failed to read message counter")
		return 0
	}
	return count
}

// AdjustCountIfNecessary repairs counter drift: when the live history is
// shorter than the stored count (external truncation), the count is forced
// down to the history length. Returns false only on durable-storage
// failure; the no-op case is a success.
func (s *Store) AdjustCountIfNecessary(sessionID string, historyLen int) bool {
	// Read the counter directly; a degraded-to-zero read would mask a
	// storage failure as a no-op success.
	count, err := s.counters.GetCount(sessionID)
	if err != nil {
		s.obs.Log().Error().Str("session", sessionID).Err(err).
			Msg("failed to read message counter")
		return false
	}
	if historyLen >= count {
		return true
	}

	s.obs.Log().Warn().
		Str("session", sessionID).
		Int("history", historyLen).
		Int("count", count).
		Msg("history shorter than stored counter; reconciling")

	if err := s.counters.ReconcileCount(sessionID, historyLen); err != nil {
		s.obs.Log().Error().Str("session", sessionID).Err(err).
			Msg("failed to reconcile message counter")
		return false
	}
	return true
}

// UpdateSummaryTime sets the in-memory and durable last-summary timestamp
// to now.
func (s *Store) UpdateSummaryTime(sessionID string) {
	ts := float64(s.now().UnixNano()) / float64(time.Second)

	s.mu.Lock()
	if st, ok := s.sessions[sessionID]; ok {
		st.lastSummaryTime = ts
	}
	s.mu.Unlock()

	if err := s.counters.SetLastSummaryTime(sessionID, ts); err != nil {
		s.obs.Log().Error().Str("session", sessionID).Err(err).
			Msg("failed to persist summary time")
	}
}

// GetHistory returns a copy of the session history, empty for unknown
// sessions.
func (s *Store) GetHistory(sessionID string) []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	return append([]chat.Message(nil), st.history...)
}

// GetFullContext returns a snapshot of the session state and whether the
// session is tracked.
func (s *Store) GetFullContext(sessionID string) (Context, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[sessionID]
	if !ok {
		return Context{}, false
	}
	return Context{
		History:         append([]chat.Message(nil), st.history...),
		LastSummaryTime: st.lastSummaryTime,
		Origin:          st.origin,
	}, true
}

// SessionIDs snapshots the tracked session ids for the scheduler sweep.
func (s *Store) SessionIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Tracked reports whether a session exists in memory.
func (s *Store) Tracked(sessionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[sessionID]
	return ok
}
