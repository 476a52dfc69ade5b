// Package indexer follows the settlement program's transactions and keeps the
// execution log and offer projections in storage up to date.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"solana-escrow-lab/internal/domain"
	"solana-escrow-lab/internal/observability"
	"solana-escrow-lab/internal/program"
	"solana-escrow-lab/internal/solana"
	"solana-escrow-lab/internal/storage"
)

// Defaults for Options left zero.
const (
	DefaultPageSize       = 100
	DefaultResyncInterval = 30 * time.Second
	DefaultFetchRetries   = 3
	DefaultRetryDelay     = 200 * time.Millisecond
)

// Metric stage labels.
const (
	stageParse = "parse"
	stageFetch = "fetch"
	stageStore = "store"
	stageOffer = "offer"
	stageSync  = "sync"
)

// Indexer subscribes to the program's logs and backfills what it missed.
//
// The progress cursor is a contiguous watermark: only backfill passes move it,
// because they walk every signature newer than the cursor. Live notifications
// are indexed as they arrive and the periodic resync picks up anything the
// subscription dropped. The execution store's (signature, event index) key
// makes reprocessing a transaction a no-op.
type Indexer struct {
	rpc            solana.RPCClient
	ws             solana.WSClient
	programID      string
	offers         storage.OfferStore
	executions     storage.ExecutionStore
	analytics      storage.ExecutionStore
	progress       storage.ProgressStore
	metrics        *observability.Metrics
	logger         zerolog.Logger
	pageSize       int
	resyncInterval time.Duration
	fetchRetries   int
	retryDelay     time.Duration
	now            func() time.Time
}

// Options contains configuration for creating an Indexer.
// RPC, Offers, Executions and Progress are required. WS may be nil for
// backfill-only use. Analytics, when set, receives a copy of every execution.
type Options struct {
	RPC            solana.RPCClient
	WS             solana.WSClient
	ProgramID      solana.PublicKey
	Offers         storage.OfferStore
	Executions     storage.ExecutionStore
	Analytics      storage.ExecutionStore
	Progress       storage.ProgressStore
	Metrics        *observability.Metrics
	Logger         *zerolog.Logger
	PageSize       int
	ResyncInterval time.Duration
	FetchRetries   int
	RetryDelay     time.Duration
	Clock          func() time.Time
}

// New creates an indexer.
func New(opts Options) (*Indexer, error) {
	if opts.RPC == nil || opts.Offers == nil || opts.Executions == nil || opts.Progress == nil {
		return nil, errors.New("indexer: rpc, offers, executions and progress are required")
	}

	ix := &Indexer{
		rpc:            opts.RPC,
		ws:             opts.WS,
		programID:      program.ProgramID.String(),
		offers:         opts.Offers,
		executions:     opts.Executions,
		analytics:      opts.Analytics,
		progress:       opts.Progress,
		metrics:        opts.Metrics,
		logger:         zerolog.Nop(),
		pageSize:       opts.PageSize,
		resyncInterval: opts.ResyncInterval,
		fetchRetries:   opts.FetchRetries,
		retryDelay:     opts.RetryDelay,
		now:            opts.Clock,
	}
	if !opts.ProgramID.IsZero() {
		ix.programID = opts.ProgramID.String()
	}
	if opts.Logger != nil {
		ix.logger = opts.Logger.With().Str("component", "indexer").Logger()
	}
	if ix.pageSize <= 0 {
		ix.pageSize = DefaultPageSize
	}
	if ix.resyncInterval <= 0 {
		ix.resyncInterval = DefaultResyncInterval
	}
	if ix.fetchRetries <= 0 {
		ix.fetchRetries = DefaultFetchRetries
	}
	if ix.retryDelay <= 0 {
		ix.retryDelay = DefaultRetryDelay
	}
	if ix.now == nil {
		ix.now = time.Now
	}
	return ix, nil
}

// Result contains statistics from one backfill pass.
type Result struct {
	Transactions int
	Events       int
	Duplicates   int
	Errors       int
	Duration     time.Duration
}

// Run subscribes to the program's logs, backfills from the saved cursor and then
// indexes live notifications, resyncing every ResyncInterval.
// It blocks until ctx is cancelled or the subscription ends.
func (ix *Indexer) Run(ctx context.Context) error {
	if ix.ws == nil {
		return errors.New("indexer: run needs a websocket client")
	}

	// Subscribe before the first backfill so nothing lands in between.
	logs, err := ix.ws.SubscribeLogs(ctx, solana.LogsFilter{Mentions: []string{ix.programID}})
	if err != nil {
		return fmt.Errorf("subscribe logs: %w", err)
	}
	ix.logger.Info().Str("program", ix.programID).Msg("subscribed to program logs")

	if _, err := ix.Backfill(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		ix.metrics.RecordIndexerError(stageSync)
		ix.logger.Error().Err(err).Msg("initial backfill failed")
	}

	ticker := time.NewTicker(ix.resyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			ix.logger.Info().Msg("indexer stopping")
			return ctx.Err()

		case notif, ok := <-logs:
			if !ok {
				return errors.New("indexer: logs subscription closed")
			}
			if err := ix.handleNotification(ctx, notif); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				ix.logger.Error().Err(err).Str("signature", notif.Signature).Msg("index notification")
			}

		case <-ticker.C:
			if _, err := ix.Backfill(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				ix.metrics.RecordIndexerError(stageSync)
				ix.logger.Error().Err(err).Msg("resync failed")
			}
		}
	}
}

// Backfill indexes every program transaction newer than the saved cursor,
// oldest first, advancing the cursor after each one.
func (ix *Indexer) Backfill(ctx context.Context) (*Result, error) {
	start := time.Now()
	result := &Result{}

	var until string
	cursor, err := ix.progress.GetLastProcessed(ctx)
	switch {
	case err == nil:
		until = cursor.Signature
	case errors.Is(err, storage.ErrNotFound):
	default:
		return result, fmt.Errorf("load cursor: %w", err)
	}

	sigs, err := ix.pendingSignatures(ctx, until)
	if err != nil {
		return result, err
	}
	if len(sigs) == 0 {
		return result, nil
	}

	ix.logger.Debug().Int("signatures", len(sigs)).Str("until", until).Msg("backfill started")

	for i := len(sigs) - 1; i >= 0; i-- {
		sig := sigs[i]
		if sig.Err == nil {
			n, err := ix.indexSignature(ctx, sig.Signature)
			switch {
			case errors.Is(err, ErrAlreadyIndexed):
				result.Duplicates++
			case err != nil:
				result.Errors++
				// The cursor must not pass a transaction that was not indexed.
				result.Duration = time.Since(start)
				return result, fmt.Errorf("index %s: %w", sig.Signature, err)
			default:
				result.Transactions++
				result.Events += n
			}
		}

		if err := ix.progress.SetLastProcessed(ctx, &storage.IndexerProgress{
			Slot:      sig.Slot,
			Signature: sig.Signature,
		}); err != nil {
			result.Duration = time.Since(start)
			return result, fmt.Errorf("save cursor: %w", err)
		}
	}

	result.Duration = time.Since(start)
	ix.logger.Info().
		Int("transactions", result.Transactions).
		Int("events", result.Events).
		Int("duplicates", result.Duplicates).
		Dur("duration", result.Duration).
		Msg("backfill complete")
	return result, nil
}

// pendingSignatures pages through the program's signatures newer than until,
// returned newest first.
func (ix *Indexer) pendingSignatures(ctx context.Context, until string) ([]solana.SignatureInfo, error) {
	var (
		all    []solana.SignatureInfo
		before string
	)
	for {
		page, err := ix.rpc.GetSignaturesForAddress(ctx, ix.programID, &solana.SignaturesOpts{
			Before: before,
			Until:  until,
			Limit:  ix.pageSize,
		})
		if err != nil {
			ix.metrics.RecordIndexerError(stageFetch)
			return nil, fmt.Errorf("get signatures: %w", err)
		}
		all = append(all, page...)
		if len(page) < ix.pageSize {
			return all, nil
		}
		before = page[len(page)-1].Signature
	}
}

// ErrAlreadyIndexed is returned for a transaction whose executions are stored.
var ErrAlreadyIndexed = errors.New("transaction already indexed")

func (ix *Indexer) handleNotification(ctx context.Context, notif solana.LogNotification) error {
	if notif.Err != nil {
		return nil
	}
	_, err := ix.indexSignature(ctx, notif.Signature)
	if errors.Is(err, ErrAlreadyIndexed) {
		return nil
	}
	return err
}

// indexSignature fetches one transaction and indexes its events.
func (ix *Indexer) indexSignature(ctx context.Context, signature string) (int, error) {
	known, err := ix.executions.GetBySignature(ctx, signature)
	if err != nil {
		ix.metrics.RecordIndexerError(stageStore)
		return 0, fmt.Errorf("lookup executions: %w", err)
	}
	if len(known) > 0 {
		return 0, ErrAlreadyIndexed
	}

	tx, err := ix.fetchTransaction(ctx, signature)
	if err != nil {
		ix.metrics.RecordIndexerError(stageFetch)
		return 0, err
	}
	if tx.Meta == nil {
		return 0, nil
	}
	if tx.Meta.Err != nil {
		return 0, nil
	}
	return ix.IndexTransaction(ctx, signature, tx.Slot, tx.BlockTime, tx.Meta.LogMessages)
}

// fetchTransaction retrieves a transaction with exponential backoff.
// A transaction the node does not know yet is retried like a failed call.
func (ix *Indexer) fetchTransaction(ctx context.Context, signature string) (*solana.Transaction, error) {
	delay := ix.retryDelay
	var lastErr error
	for attempt := 0; attempt < ix.fetchRetries; attempt++ {
		if attempt > 0 {
			ix.logger.Debug().Str("signature", signature).Int("attempt", attempt).Err(lastErr).Msg("retrying getTransaction")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			delay *= 2
		}

		tx, err := ix.rpc.GetTransaction(ctx, signature)
		if err == nil && tx != nil {
			return tx, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err == nil {
			err = fmt.Errorf("transaction %s not found", signature)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("get transaction: %w", lastErr)
}

// IndexTransaction parses the logs of one committed transaction, stores its
// executions and applies them to the offer projections. It returns the number
// of events indexed, or ErrAlreadyIndexed when the transaction was seen before.
func (ix *Indexer) IndexTransaction(ctx context.Context, signature string, slot, blockTime int64, logs []string) (int, error) {
	events, err := ParseEvents(logs, signature, slot, blockTime)
	if err != nil {
		// Well-formed events are still indexed.
		ix.metrics.RecordIndexerError(stageParse)
		ix.logger.Warn().Err(err).Str("signature", signature).Msg("malformed program event")
	}
	if len(events) == 0 {
		return 0, nil
	}

	now := ix.now().UnixMilli()
	executions := make([]*domain.Execution, len(events))
	for i, ev := range events {
		ev.Execution.CreatedAt = now
		executions[i] = ev.Execution
	}

	if err := ix.executions.InsertBulk(ctx, executions); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return 0, ErrAlreadyIndexed
		}
		ix.metrics.RecordIndexerError(stageStore)
		return 0, fmt.Errorf("store executions: %w", err)
	}
	if ix.analytics != nil {
		if err := ix.analytics.InsertBulk(ctx, executions); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
			ix.metrics.RecordIndexerError(stageStore)
			ix.logger.Warn().Err(err).Str("signature", signature).Msg("analytics copy failed")
		}
	}

	offersChanged := false
	for _, ev := range events {
		changed, err := applyOffer(ctx, ix.offers, ev, now)
		switch {
		case errors.Is(err, ErrUnknownOffer):
			ix.metrics.RecordIndexerError(stageOffer)
			ix.logger.Warn().Err(err).Str("signature", signature).Msg("skipping offer transition")
		case err != nil:
			ix.metrics.RecordIndexerError(stageOffer)
			return len(events), fmt.Errorf("apply %s: %w", ev.Execution.Kind, err)
		}
		offersChanged = offersChanged || changed
		ix.metrics.RecordEvent(ev.Execution.Kind.String(), slot)

		ix.logger.Debug().
			Str("kind", ev.Execution.Kind.String()).
			Str("account", ev.Execution.Account).
			Int64("slot", slot).
			Msg("indexed event")
	}

	if offersChanged && ix.metrics != nil {
		open, err := ix.offers.GetByStatus(ctx, domain.OfferOpen)
		if err != nil {
			ix.logger.Warn().Err(err).Msg("count open offers")
		} else {
			ix.metrics.SetOpenOffers(len(open))
		}
	}
	return len(events), nil
}
