package domain

// OfferStatus is the lifecycle state of an escrow offer as seen by the indexer.
type OfferStatus string

const (
	OfferOpen      OfferStatus = "OPEN"
	OfferTaken     OfferStatus = "TAKEN"
	OfferWithdrawn OfferStatus = "WITHDRAWN"
	OfferCancelled OfferStatus = "CANCELLED"
)

// String returns the string representation of OfferStatus.
func (s OfferStatus) String() string {
	return string(s)
}

// IsValid checks if the status is a known value.
func (s OfferStatus) IsValid() bool {
	switch s {
	case OfferOpen, OfferTaken, OfferWithdrawn, OfferCancelled:
		return true
	}
	return false
}

// IsFinal reports whether no further transition is expected.
func (s OfferStatus) IsFinal() bool {
	return s == OfferWithdrawn || s == OfferCancelled
}

// Offer is the indexed view of one escrow record.
// Corresponds to the offers table in PostgreSQL.
type Offer struct {
	Escrow          string      // PRIMARY KEY, escrow record address
	Maker           string      // maker wallet
	OfferID         uint64      // maker-chosen id in the escrow seeds
	MintX           string      // offered asset
	MintY           string      // requested asset
	AmountX         uint64      // raw units of X
	AmountY         uint64      // raw units of Y
	DecimalX        uint8       // decimals of MintX
	DecimalY        uint8       // decimals of MintY
	Status          OfferStatus // lifecycle state
	Taker           *string     // set once taken
	OpenedSlot      int64       // slot of the make transaction
	OpenedSignature string      // signature of the make transaction
	ClosedSlot      *int64      // slot of the take or cancel transaction
	ClosedSignature *string     // signature of the take or cancel transaction
	UpdatedAt       int64       // Unix timestamp in milliseconds
}
