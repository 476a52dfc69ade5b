package reporting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"solana-escrow-lab/internal/domain"
	"solana-escrow-lab/internal/storage"
)

var offerStatuses = []domain.OfferStatus{
	domain.OfferOpen,
	domain.OfferTaken,
	domain.OfferWithdrawn,
	domain.OfferCancelled,
}

// kindOrder fixes the row order of the executions table.
var kindOrder = []domain.EventKind{
	domain.EventConfigInit,
	domain.EventConfigUpdate,
	domain.EventConfigResize,
	domain.EventConfigClose,
	domain.EventEscrowMake,
	domain.EventEscrowTake,
	domain.EventEscrowWithdraw,
	domain.EventEscrowCancel,
}

// Generator produces reports from the indexer stores.
type Generator struct {
	offers     storage.OfferStore
	executions storage.ExecutionStore
	now        func() time.Time
}

// NewGenerator creates a new report generator.
func NewGenerator(offers storage.OfferStore, executions storage.ExecutionStore) *Generator {
	return &Generator{
		offers:     offers,
		executions: executions,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate reports on offers opened and executions landed within
// [fromSlot, toSlot].
func (g *Generator) Generate(ctx context.Context, fromSlot, toSlot int64) (*Report, error) {
	if fromSlot < 0 || toSlot < fromSlot {
		return nil, fmt.Errorf("invalid slot range [%d, %d]", fromSlot, toSlot)
	}

	all := make(map[string]*domain.Offer)
	var inRange []*domain.Offer
	for _, status := range offerStatuses {
		offers, err := g.offers.GetByStatus(ctx, status)
		if err != nil {
			return nil, fmt.Errorf("load %s offers: %w", status, err)
		}
		for _, o := range offers {
			all[o.Escrow] = o
			if o.OpenedSlot >= fromSlot && o.OpenedSlot <= toSlot {
				inRange = append(inRange, o)
			}
		}
	}

	executions, err := g.executions.GetBySlotRange(ctx, fromSlot, toSlot)
	if err != nil {
		return nil, fmt.Errorf("load executions: %w", err)
	}

	r := &Report{
		GeneratedAt: g.now(),
		FromSlot:    fromSlot,
		ToSlot:      toSlot,
		Offers:      summarizeOffers(inRange),
		Pairs:       pairRows(inRange),
		Makers:      makerRows(inRange),
		Executions:  kindRows(executions),
	}
	r.Integrity = append(checkOffers(inRange), checkExecutions(executions, all)...)
	return r, nil
}

func settled(s domain.OfferStatus) bool {
	return s == domain.OfferTaken || s == domain.OfferWithdrawn
}

func summarizeOffers(offers []*domain.Offer) OfferSummary {
	var s OfferSummary
	for _, o := range offers {
		switch o.Status {
		case domain.OfferOpen:
			s.Open++
		case domain.OfferTaken:
			s.Taken++
		case domain.OfferWithdrawn:
			s.Withdrawn++
		case domain.OfferCancelled:
			s.Cancelled++
		}
	}
	return s
}

func pairRows(offers []*domain.Offer) []PairRow {
	type key struct{ x, y string }
	byPair := make(map[key]*PairRow)
	for _, o := range offers {
		k := key{o.MintX, o.MintY}
		row, ok := byPair[k]
		if !ok {
			row = &PairRow{MintX: o.MintX, MintY: o.MintY, DecimalX: o.DecimalX, DecimalY: o.DecimalY}
			byPair[k] = row
		}
		switch {
		case o.Status == domain.OfferOpen:
			row.Open++
		case settled(o.Status):
			row.Settled++
			row.VolumeX = addSaturating(row.VolumeX, o.AmountX)
			row.VolumeY = addSaturating(row.VolumeY, o.AmountY)
		case o.Status == domain.OfferCancelled:
			row.Cancelled++
		}
	}

	rows := make([]PairRow, 0, len(byPair))
	for _, row := range byPair {
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].MintX != rows[j].MintX {
			return rows[i].MintX < rows[j].MintX
		}
		return rows[i].MintY < rows[j].MintY
	})
	return rows
}

// makerRows orders makers by offer count, busiest first.
func makerRows(offers []*domain.Offer) []MakerRow {
	byMaker := make(map[string]*MakerRow)
	for _, o := range offers {
		row, ok := byMaker[o.Maker]
		if !ok {
			row = &MakerRow{Maker: o.Maker}
			byMaker[o.Maker] = row
		}
		row.Offers++
		if o.Status == domain.OfferOpen {
			row.Open++
		} else if settled(o.Status) {
			row.Settled++
		}
	}

	rows := make([]MakerRow, 0, len(byMaker))
	for _, row := range byMaker {
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Offers != rows[j].Offers {
			return rows[i].Offers > rows[j].Offers
		}
		return rows[i].Maker < rows[j].Maker
	})
	return rows
}

func kindRows(executions []*domain.Execution) []KindRow {
	byKind := make(map[domain.EventKind]*KindRow)
	for _, e := range executions {
		row, ok := byKind[e.Kind]
		if !ok {
			row = &KindRow{Kind: e.Kind}
			byKind[e.Kind] = row
		}
		row.Count++
		row.AmountX = addSaturating(row.AmountX, e.AmountX)
		row.AmountY = addSaturating(row.AmountY, e.AmountY)
	}

	var rows []KindRow
	for _, kind := range kindOrder {
		if row, ok := byKind[kind]; ok {
			rows = append(rows, *row)
		}
	}
	return rows
}

func checkOffers(offers []*domain.Offer) []string {
	var problems []string
	for _, o := range offers {
		if settled(o.Status) && o.Taker == nil {
			problems = append(problems, fmt.Sprintf("offer %s is %s without a taker", o.Escrow, o.Status))
		}
		if o.Status != domain.OfferOpen && o.ClosedSignature == nil {
			problems = append(problems, fmt.Sprintf("offer %s is %s without a closing signature", o.Escrow, o.Status))
		}
	}
	return problems
}

// checkExecutions flags escrow events whose offer was never indexed.
func checkExecutions(executions []*domain.Execution, offers map[string]*domain.Offer) []string {
	var problems []string
	for _, e := range executions {
		switch e.Kind {
		case domain.EventEscrowMake, domain.EventEscrowTake, domain.EventEscrowWithdraw, domain.EventEscrowCancel:
		default:
			continue
		}
		if _, ok := offers[e.Account]; !ok {
			problems = append(problems, fmt.Sprintf("%s %s#%d: no offer for escrow %s", e.Kind, e.Signature, e.EventIndex, e.Account))
		}
	}
	return problems
}

func addSaturating(a, b uint64) uint64 {
	if s := a + b; s >= a {
		return s
	}
	return ^uint64(0)
}
