// Package pipeline runs the scheduled market-data job: price the tracked
// symbols, record them, fire triggered orders and snapshot portfolios.
package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"papertrade/internal/quote"
)

// API defines the pipeline endpoints the runner drives.
type API interface {
	TrackedSymbols(ctx context.Context) ([]string, error)
	RecordPrices(ctx context.Context, prices []PriceEntry) (int, error)
	ScanTriggers(ctx context.Context) (int, error)
	ComputeSnapshots(ctx context.Context, recordedAt time.Time) (int, error)
}

// FetchError records a symbol whose price could not be fetched.
type FetchError struct {
	Symbol string
	Err    error
}

// RunResult contains the outcome of a pipeline run.
type RunResult struct {
	SymbolsTracked    int
	PricesRecorded    int
	OrdersExecuted    int
	SnapshotsRecorded int
	Errors            []FetchError
	Duration          time.Duration
}

// Runner executes one pipeline cycle.
type Runner struct {
	api    API
	source quote.Oracle
	config *Config
	logger *zap.SugaredLogger
	now    func() time.Time
}

// NewRunner creates a new Runner.
func NewRunner(api API, source quote.Oracle, cfg *Config, logger *zap.SugaredLogger) *Runner {
	return &Runner{api: api, source: source, config: cfg, logger: logger, now: time.Now}
}

// Run executes a single cycle. Fetch failures are collected per symbol; a
// failing scan or snapshot step is logged and does not abort the run.
func (r *Runner) Run(ctx context.Context) (*RunResult, error) {
	start := r.now()
	result := &RunResult{}

	symbols, err := r.api.TrackedSymbols(ctx)
	if err != nil {
		return nil, err
	}
	result.SymbolsTracked = len(symbols)

	if len(symbols) == 0 {
		r.logger.Info("no tracked symbols, skipping price fetch")
	} else {
		entries, fetchErrors := r.fetchPrices(ctx, symbols)
		result.Errors = fetchErrors

		if len(entries) > 0 {
			recorded, err := r.api.RecordPrices(ctx, entries)
			if err != nil {
				return nil, err
			}
			result.PricesRecorded = recorded
		} else {
			r.logger.Info("no prices fetched")
		}
	}

	if r.config.ScanTriggers {
		executed, err := r.api.ScanTriggers(ctx)
		if err != nil {
			r.logger.Warnw("failed to scan triggers", "error", err)
		} else {
			result.OrdersExecuted = executed
		}
	}

	if r.config.ComputeSnapshots {
		snapshots, err := r.api.ComputeSnapshots(ctx, start.Truncate(time.Second))
		if err != nil {
			r.logger.Warnw("failed to compute snapshots", "error", err)
		} else {
			result.SnapshotsRecorded = snapshots
		}
	}

	result.Duration = r.now().Sub(start)
	return result, nil
}

func (r *Runner) fetchPrices(ctx context.Context, symbols []string) ([]PriceEntry, []FetchError) {
	r.logger.Infow("fetching prices", "count", len(symbols))

	var (
		mu      sync.Mutex
		entries []PriceEntry
		errs    []FetchError
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.FetchConcurrency)
	for _, symbol := range symbols {
		g.Go(func() error {
			q, err := r.source.GetQuote(gctx, symbol)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, FetchError{Symbol: symbol, Err: err})
				return nil
			}
			entries = append(entries, PriceEntry{
				Symbol:     symbol,
				Price:      q.Price,
				RecordedAt: q.AsOf.UTC().Format(time.RFC3339),
			})
			return nil
		})
	}
	_ = g.Wait()

	return entries, errs
}
