// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package dispatch runs the tracker backlog through the orchestrator with
// a fixed pool of workers. Every identifier is worked under a persisted
// lease, so concurrent runs sharing one tracker file never process the
// same identifier at once, and a shared token bucket throttles download
// attempts across all workers. The pool makes repeated rounds over the
// backlog until it drains or the round ceiling is hit.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/meshintel/papertrack/internal/orchestrate"
	"github.com/meshintel/papertrack/internal/tracker"
	"github.com/meshintel/papertrack/pkg/types"
)

// Dispatcher fans the tracker backlog out to a pool of workers, each
// running one orchestrator pass per leased identifier.
type Dispatcher struct {
	store   *tracker.Store
	orch    *orchestrate.Orchestrator
	limiter *rate.Limiter

	workers   int
	leaseTTL  time.Duration
	maxPasses int
}

// New creates a dispatcher. Zero or negative config values fall back to
// the documented defaults.
func New(store *tracker.Store, orch *orchestrate.Orchestrator, cfg types.DispatchConfig) *Dispatcher {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	ttl := cfg.LeaseTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	passes := cfg.MaxPasses
	if passes <= 0 {
		passes = 3
	}
	rps := cfg.RatePerSecond
	if rps <= 0 {
		rps = 2
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 4
	}
	return &Dispatcher{
		store:     store,
		orch:      orch,
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
		workers:   workers,
		leaseTTL:  ttl,
		maxPasses: passes,
	}
}

// Result summarizes one dispatch run.
type Result struct {
	// Passes is the number of backlog rounds executed.
	Passes int

	// Attempted counts orchestrator passes handed to workers.
	Attempted int

	// Done counts identifiers that finished during this run.
	Done int

	// Exhausted counts identifiers that ran out of options during this run.
	Exhausted int

	// Skipped counts identifiers found leased by another worker.
	Skipped int

	// Errors counts tracker store failures.
	Errors int

	// Fetched counts successful downloads.
	Fetched int

	// Parsed counts successful parser runs.
	Parsed int

	// Remaining is the backlog size when the run stopped.
	Remaining int
}

// Backlog lists every record that still needs work: not fully processed
// and not exhausted. Workers impose no ordering of their own on top of
// the store listing.
func (d *Dispatcher) Backlog(ctx context.Context) ([]types.Record, error) {
	recs, err := d.store.List(ctx, tracker.Filter{})
	if err != nil {
		return nil, fmt.Errorf("listing backlog: %w", err)
	}
	var backlog []types.Record
	for _, rec := range recs {
		if d.orch.NeedsWork(rec) {
			backlog = append(backlog, rec)
		}
	}
	return backlog, nil
}

// Run works the backlog in rounds until it drains or the round ceiling
// is hit. Per-identifier progress lines go to w; structured run logs go
// to the default logger. Run returns early only when ctx is cancelled or
// the backlog itself cannot be listed.
func (d *Dispatcher) Run(ctx context.Context, w io.Writer) (Result, error) {
	var res Result
	runID := uuid.New().String()[:8]
	out := &syncWriter{w: w}

	backlog, err := d.Backlog(ctx)
	if err != nil {
		return res, err
	}
	for pass := 1; pass <= d.maxPasses && len(backlog) > 0; pass++ {
		res.Passes++
		slog.Info("dispatch round started",
			"run", runID, "round", pass, "backlog", len(backlog), "workers", d.workers)

		st := d.runPass(ctx, runID, backlog, out)
		res.Attempted += int(st.attempted.Load())
		res.Done += int(st.done.Load())
		res.Exhausted += int(st.exhausted.Load())
		res.Skipped += int(st.skipped.Load())
		res.Errors += int(st.errors.Load())
		res.Fetched += int(st.fetched.Load())
		res.Parsed += int(st.parsed.Load())

		slog.Info("dispatch round finished",
			"run", runID, "round", pass,
			"done", st.done.Load(), "exhausted", st.exhausted.Load(),
			"skipped", st.skipped.Load(), "errors", st.errors.Load())

		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		backlog, err = d.Backlog(ctx)
		if err != nil {
			return res, err
		}
	}
	res.Remaining = len(backlog)

	fmt.Fprintf(out, "\nDispatch summary: %d done, %d exhausted, %d errors, %d remaining (%d fetched, %d parsed)\n",
		res.Done, res.Exhausted, res.Errors, res.Remaining, res.Fetched, res.Parsed)
	return res, nil
}

// passStats aggregates worker results for one round.
type passStats struct {
	attempted atomic.Int64
	done      atomic.Int64
	exhausted atomic.Int64
	skipped   atomic.Int64
	errors    atomic.Int64
	fetched   atomic.Int64
	parsed    atomic.Int64
}

// runPass feeds one round of the backlog to the worker pool and waits
// for it to finish.
func (d *Dispatcher) runPass(ctx context.Context, runID string, backlog []types.Record, w io.Writer) *passStats {
	st := &passStats{}
	work := make(chan types.Record, len(backlog))
	var wg sync.WaitGroup

	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func(workerID string) {
			defer wg.Done()
			for rec := range work {
				if ctx.Err() != nil {
					return
				}
				d.workOne(ctx, workerID, rec, st, w)
			}
		}(fmt.Sprintf("%s/w%d", runID, i+1))
	}

	for _, rec := range backlog {
		work <- rec
	}
	close(work)
	wg.Wait()
	return st
}

// workOne gives one identifier one orchestrator pass under a lease. A
// lease held elsewhere is a skip, not an error: whoever holds it is
// already doing the work. Only passes that will hit the network wait for
// a download token; parse-only passes run unthrottled.
func (d *Dispatcher) workOne(ctx context.Context, workerID string, rec types.Record, st *passStats, w io.Writer) {
	lease, ok, err := d.store.AcquireLease(ctx, rec.ID, workerID, d.leaseTTL)
	if err != nil {
		st.errors.Add(1)
		slog.Error("lease acquire failed", "worker", workerID, "id", rec.ID, "error", err)
		return
	}
	if !ok {
		st.skipped.Add(1)
		slog.Debug("identifier leased elsewhere", "worker", workerID, "id", rec.ID)
		return
	}
	defer func() {
		// Release on a fresh context so a cancelled run still gives the
		// lease back instead of waiting out the TTL.
		if err := d.store.ReleaseLease(context.Background(), lease); err != nil {
			if errors.Is(err, tracker.ErrLeaseLost) {
				slog.Warn("lease expired mid-pass", "worker", workerID, "id", rec.ID)
			} else {
				slog.Error("lease release failed", "worker", workerID, "id", rec.ID, "error", err)
			}
		}
	}()

	if rec.Downloaded != types.TriYes {
		if err := d.limiter.Wait(ctx); err != nil {
			return
		}
	}

	st.attempted.Add(1)
	res, err := d.orch.ProcessOne(ctx, rec.ID, w)
	if err != nil {
		st.errors.Add(1)
		fmt.Fprintf(w, "error:   %s (%v)\n", rec.ID, err)
		slog.Error("pass failed", "worker", workerID, "id", rec.ID, "error", err)
		return
	}
	if res.Fetch != nil && res.Fetch.Kind == types.OutcomeSuccess {
		st.fetched.Add(1)
	}
	for _, p := range res.Parse {
		if p.OK {
			st.parsed.Add(1)
		}
	}
	switch {
	case res.Done:
		st.done.Add(1)
	case res.Exhausted:
		st.exhausted.Add(1)
	}
}

// syncWriter serializes writes from concurrent workers so progress lines
// never interleave mid-line.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
