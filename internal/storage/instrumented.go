package storage

import (
	"context"
	"errors"
	"time"

	"solana-escrow-lab/internal/domain"
	"solana-escrow-lab/internal/observability"
)

// observe records one query. Expected outcomes (not found, duplicate) do not
// count as errors.
func observe(m *observability.Metrics, db, op string, start time.Time, err error) {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrDuplicateKey) {
		err = nil
	}
	m.RecordDBQuery(db, op, time.Since(start).Seconds(), err)
}

type instrumentedOffers struct {
	next    OfferStore
	metrics *observability.Metrics
	db      string
}

// InstrumentOffers records query latency and errors of s under the db label.
func InstrumentOffers(s OfferStore, m *observability.Metrics, db string) OfferStore {
	if m == nil {
		return s
	}
	return &instrumentedOffers{next: s, metrics: m, db: db}
}

func (s *instrumentedOffers) Upsert(ctx context.Context, o *domain.Offer) (err error) {
	defer func(start time.Time) { observe(s.metrics, s.db, "offers_upsert", start, err) }(time.Now())
	return s.next.Upsert(ctx, o)
}

func (s *instrumentedOffers) GetByAddress(ctx context.Context, escrow string) (o *domain.Offer, err error) {
	defer func(start time.Time) { observe(s.metrics, s.db, "offers_get_by_address", start, err) }(time.Now())
	return s.next.GetByAddress(ctx, escrow)
}

func (s *instrumentedOffers) GetByMaker(ctx context.Context, maker string) (o []*domain.Offer, err error) {
	defer func(start time.Time) { observe(s.metrics, s.db, "offers_get_by_maker", start, err) }(time.Now())
	return s.next.GetByMaker(ctx, maker)
}

func (s *instrumentedOffers) GetByStatus(ctx context.Context, status domain.OfferStatus) (o []*domain.Offer, err error) {
	defer func(start time.Time) { observe(s.metrics, s.db, "offers_get_by_status", start, err) }(time.Now())
	return s.next.GetByStatus(ctx, status)
}

type instrumentedExecutions struct {
	next    ExecutionStore
	metrics *observability.Metrics
	db      string
}

// InstrumentExecutions records query latency and errors of s under the db label.
func InstrumentExecutions(s ExecutionStore, m *observability.Metrics, db string) ExecutionStore {
	if m == nil {
		return s
	}
	return &instrumentedExecutions{next: s, metrics: m, db: db}
}

func (s *instrumentedExecutions) Insert(ctx context.Context, e *domain.Execution) (err error) {
	defer func(start time.Time) { observe(s.metrics, s.db, "executions_insert", start, err) }(time.Now())
	return s.next.Insert(ctx, e)
}

func (s *instrumentedExecutions) InsertBulk(ctx context.Context, executions []*domain.Execution) (err error) {
	defer func(start time.Time) { observe(s.metrics, s.db, "executions_insert_bulk", start, err) }(time.Now())
	return s.next.InsertBulk(ctx, executions)
}

func (s *instrumentedExecutions) GetBySignature(ctx context.Context, signature string) (e []*domain.Execution, err error) {
	defer func(start time.Time) { observe(s.metrics, s.db, "executions_get_by_signature", start, err) }(time.Now())
	return s.next.GetBySignature(ctx, signature)
}

func (s *instrumentedExecutions) GetBySlotRange(ctx context.Context, start, end int64) (e []*domain.Execution, err error) {
	defer func(begin time.Time) { observe(s.metrics, s.db, "executions_get_by_slot_range", begin, err) }(time.Now())
	return s.next.GetBySlotRange(ctx, start, end)
}
