package domain

// EventKind names a program event recovered from transaction logs.
type EventKind string

const (
	EventConfigInit     EventKind = "config_init"
	EventConfigUpdate   EventKind = "config_update"
	EventConfigResize   EventKind = "config_resize"
	EventConfigClose    EventKind = "config_close"
	EventEscrowMake     EventKind = "escrow_make"
	EventEscrowTake     EventKind = "escrow_take"
	EventEscrowWithdraw EventKind = "escrow_withdraw"
	EventEscrowCancel   EventKind = "escrow_cancel"
)

// String returns the string representation of EventKind.
func (k EventKind) String() string {
	return string(k)
}

// IsValid checks if the kind is a known value.
func (k EventKind) IsValid() bool {
	switch k {
	case EventConfigInit, EventConfigUpdate, EventConfigResize, EventConfigClose,
		EventEscrowMake, EventEscrowTake, EventEscrowWithdraw, EventEscrowCancel:
		return true
	}
	return false
}

// Execution is one program event emitted by a committed transaction.
// Append-only: corresponds to the executions table in PostgreSQL and ClickHouse.
type Execution struct {
	Signature    string    // transaction signature
	EventIndex   int       // index of the event within the transaction
	Slot         int64     // slot the transaction landed in
	Timestamp    int64     // Unix timestamp in milliseconds
	Kind         EventKind // event kind
	Account      string    // escrow or config address the event is about
	Actor        string    // maker, taker or config authority
	Counterparty *string   // maker on take, destination on close; nullable
	OfferID      uint64    // escrow id, zero for config events
	AmountX      uint64    // X units moved, zero when not applicable
	AmountY      uint64    // Y units moved, zero when not applicable
	CreatedAt    int64     // record creation timestamp (ms)
}
