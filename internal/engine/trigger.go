package engine

import (
	"context"

	"github.com/engramlabs/engram/internal/chat"
)

// OnResponse records the assistant turn and evaluates the count trigger.
// The trigger critical section captures the transcript, launches the
// summarization asynchronously, then resets the counter and summary time
// immediately so re-entrant calls see the trigger already consumed.
func (e *Engine) OnResponse(ctx context.Context, sessionID, assistantText string, origin any) {
	e.sessions.AddMessage(sessionID, chat.RoleAssistant, assistantText, origin)
	e.sessions.IncrementCount(sessionID)

	lock := e.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	history := e.sessions.GetHistory(sessionID)
	if !e.sessions.AdjustCountIfNecessary(sessionID, len(history)) {
		// Counter storage is failing; do not trigger on a value we cannot
		// trust or reset.
		return
	}

	threshold := e.cfg.Summary.NumPairs
	count := e.sessions.GetCount(sessionID)
	if threshold <= 0 || count < threshold {
		return
	}

	transcript := chat.Transcript(history, threshold)
	persona := e.resolvePersona(origin)

	e.launchSummarize(sessionID, persona, transcript)
	e.sessions.ResetCount(sessionID)
	e.sessions.UpdateSummaryTime(sessionID)

	e.met.TriggerFires.WithLabelValues("count").Inc()
	e.obs.Log().Info().
		Str("session", sessionID).
		Int("count", count).
		Msg("count trigger fired; summarization launched")
}

// launchSummarize runs the pipeline in the background. It deliberately uses
// a fresh context: the triggering request finishes long before the summary
// does, and its cancellation must not abort the store.
func (e *Engine) launchSummarize(sessionID, persona, transcript string) {
	e.pending.Add(1)
	go func() {
		defer e.pending.Done()
		e.summarize(context.Background(), sessionID, persona, transcript)
	}()
}
