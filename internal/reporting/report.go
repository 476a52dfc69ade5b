// Package reporting summarizes indexed escrow activity: offers by status and
// pair, executions by kind within a slot range, and consistency problems found
// between the two.
package reporting

import (
	"time"

	"solana-escrow-lab/internal/domain"
)

// Report is the rendered-independent result of Generator.Generate.
type Report struct {
	GeneratedAt time.Time
	FromSlot    int64
	ToSlot      int64

	Offers     OfferSummary
	Pairs      []PairRow
	Makers     []MakerRow
	Executions []KindRow
	Integrity  []string // empty when offers and executions agree
}

// OfferSummary counts offers per lifecycle state.
type OfferSummary struct {
	Open      int
	Taken     int
	Withdrawn int
	Cancelled int
}

// Total returns the number of offers in any state.
func (s OfferSummary) Total() int {
	return s.Open + s.Taken + s.Withdrawn + s.Cancelled
}

// PairRow aggregates the offers of one (mint X, mint Y) pair.
// Settled covers taken and withdrawn offers; volumes are raw units of settled offers.
type PairRow struct {
	MintX     string
	MintY     string
	Open      int
	Settled   int
	Cancelled int
	VolumeX   uint64
	VolumeY   uint64
	DecimalX  uint8
	DecimalY  uint8
}

// MakerRow counts the offers of one maker.
type MakerRow struct {
	Maker   string
	Offers  int
	Open    int
	Settled int
}

// KindRow counts the executions of one event kind in the slot range.
type KindRow struct {
	Kind    domain.EventKind
	Count   int
	AmountX uint64
	AmountY uint64
}
