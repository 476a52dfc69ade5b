package solana

import "context"

// WSClient defines the logs subscription interface.
type WSClient interface {
	// SubscribeLogs subscribes to program logs matching the filter.
	SubscribeLogs(ctx context.Context, filter LogsFilter) (<-chan LogNotification, error)

	// Close closes the WebSocket connection and every subscription channel.
	Close() error
}

// LogsFilter selects transactions by the accounts they reference. An empty
// filter subscribes to every transaction.
type LogsFilter struct {
	Mentions []string
}

// LogNotification is one committed transaction's logs. Err is non-nil when
// the transaction failed.
type LogNotification struct {
	Signature string
	Slot      int64
	Logs      []string
	Err       any
}

// Params renders the logsSubscribe filter argument.
func (f LogsFilter) Params() any {
	if len(f.Mentions) > 0 {
		return map[string]any{"mentions": f.Mentions}
	}
	return "all"
}
