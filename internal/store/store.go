package store

// CounterStore is the durable per-session state consumed by the session
// service: un-summarized turn counts and last-summarization timestamps.
// The two live in separate tables because they change at different moments;
// counts move per turn, timestamps per summarization.
type CounterStore interface {
	// IncrementCount adds one to the session's un-summarized turn count,
	// creating the row at zero first if absent.
	IncrementCount(sessionID string) error

	// ResetCount sets the session's count back to zero.
	ResetCount(sessionID string) error

	// GetCount returns the stored count, zero for unknown sessions.
	GetCount(sessionID string) (int, error)

	// ReconcileCount forces the stored count down to historyLen when the
	// stored value exceeds it. Counts are only ever forced down; a history
	// longer than the count is normal (turns may predate tracking).
	ReconcileCount(sessionID string, historyLen int) error

	// GetLastSummaryTime returns the stored timestamp in epoch seconds and
	// whether one exists for the session.
	GetLastSummaryTime(sessionID string) (float64, bool, error)

	// SetLastSummaryTime persists the timestamp in epoch seconds.
	SetLastSummaryTime(sessionID string, epochSeconds float64) error

	Close() error
}
