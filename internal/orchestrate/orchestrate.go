// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package orchestrate drives one identifier through one acquisition pass:
// skip finished and exhausted records, try the single next eligible source,
// then run the parse stage once a PDF exists. All state changes flow
// through the tracker's mutation path, with the pass's events appended in
// the same transaction as the record update, so a crash between passes
// never leaves a half-recorded attempt.
package orchestrate

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/meshintel/papertrack/internal/parse"
	"github.com/meshintel/papertrack/internal/sources"
	"github.com/meshintel/papertrack/internal/state"
	"github.com/meshintel/papertrack/internal/tracker"
	"github.com/meshintel/papertrack/pkg/types"
)

// Orchestrator runs acquisition passes against the tracker. Fetchers are
// tried in slice order; the parse controller may be nil, which skips the
// parse stage (download-only operation).
type Orchestrator struct {
	store    *tracker.Store
	fetchers []sources.Fetcher
	parser   *parse.Controller

	papersDir    string
	retryCeiling int
	order        []string
	parsers      []string
}

// New creates an orchestrator. The fetcher slice order is the source
// priority order; the required parser set is taken from the controller's
// engines.
func New(store *tracker.Store, fetchers []sources.Fetcher, parser *parse.Controller, cfg types.AcquisitionConfig) *Orchestrator {
	o := &Orchestrator{
		store:        store,
		fetchers:     fetchers,
		parser:       parser,
		papersDir:    cfg.PapersDir,
		retryCeiling: cfg.RetryCeiling,
	}
	for _, f := range fetchers {
		o.order = append(o.order, f.Name())
	}
	if parser != nil {
		for _, e := range parser.Engines() {
			o.parsers = append(o.parsers, e.Name())
		}
	}
	return o
}

// PassResult reports what one pass did for one identifier.
type PassResult struct {
	// ID is the identifier the pass ran against.
	ID string

	// Record is the state after the pass.
	Record types.Record

	// Fetch is the source attempt made this pass, nil when acquisition
	// was skipped (already downloaded, nothing eligible, or terminal).
	Fetch *types.FetchOutcome

	// Parse lists the parser runs made this pass.
	Parse []types.ParseOutcome

	// Done reports that the identifier is fully processed.
	Done bool

	// Exhausted reports that acquisition has nothing left to try.
	Exhausted bool
}

// ProcessOne runs a single pass for one identifier. Fully processed and
// exhausted records are no-ops: no mutation, no event, no external call.
// Otherwise the pass tries at most one source, then runs whatever parsers
// still need the downloaded PDF. Collaborator failures are absorbed into
// the record as classified outcomes; the returned error is reserved for
// tracker store failures.
func (o *Orchestrator) ProcessOne(ctx context.Context, id string, w io.Writer) (PassResult, error) {
	rec, err := o.store.Get(ctx, id)
	if err != nil {
		return PassResult{ID: id}, err
	}

	res := PassResult{ID: id, Record: rec}
	if state.IsFullyProcessed(rec, o.parsers) {
		res.Done = true
		fmt.Fprintf(w, "done:    %s (already processed)\n", id)
		return res, nil
	}
	if state.IsExhausted(rec, o.order, o.retryCeiling) {
		res.Exhausted = true
		fmt.Fprintf(w, "skipped: %s (exhausted, retries %d)\n", id, rec.RetryCount)
		return res, nil
	}

	// One pass id ties this pass's events together in the audit log.
	passID := uuid.NewString()

	if rec.Downloaded != types.TriYes {
		rec, res.Fetch, err = o.fetchNext(ctx, id, rec, passID, w)
		if err != nil {
			return res, err
		}
		res.Record = rec
		res.Exhausted = state.IsExhausted(rec, o.order, o.retryCeiling)
		if res.Exhausted && res.Fetch != nil {
			fmt.Fprintf(w, "exhausted: %s (retries %d)\n", id, rec.RetryCount)
		}
		if rec.Downloaded != types.TriYes {
			// Failed or nothing eligible; the next pass moves on.
			return res, nil
		}
	}

	if o.parser != nil {
		rec, res.Parse, err = o.runParsers(ctx, id, rec, passID, w)
		if err != nil {
			return res, err
		}
		res.Record = rec
	}

	res.Done = state.IsFullyProcessed(rec, o.parsers)
	if res.Done {
		fmt.Fprintf(w, "done:    %s\n", id)
	}
	return res, nil
}

// fetchNext tries the next eligible source and records the outcome. When
// no source is eligible the record is marked exhausted instead. The
// attempt and its outcome land in one mutation, together with the
// exhausted event when this attempt spends the last of the budget.
func (o *Orchestrator) fetchNext(ctx context.Context, id string, rec types.Record, passID string, w io.Writer) (types.Record, *types.FetchOutcome, error) {
	src, ok := state.NextSource(rec, o.order)
	if !ok {
		rec, err := o.markExhausted(ctx, id, passID)
		if err != nil {
			return rec, nil, err
		}
		fmt.Fprintf(w, "exhausted: %s (all sources attempted)\n", id)
		return rec, nil, nil
	}

	out := o.fetcherFor(src).Fetch(ctx, id, sources.PDFPath(o.papersDir, id))

	next, err := o.store.ApplyMutation(ctx, id, func(cur types.Record) (types.Record, []types.Event, error) {
		now := time.Now().UTC()
		events := make([]types.Event, 0, 3)
		if cur.LastUpdated.IsZero() {
			events = append(events, types.Event{Type: types.EventCreated, Detail: map[string]any{"pass": passID}})
		}
		events = append(events, types.Event{
			Type:   types.EventSourceAttempt,
			Detail: map[string]any{"pass": passID, "source": src},
		})

		if out.Kind == types.OutcomeSuccess {
			events = append(events, types.Event{
				Type:   types.EventSourceSuccess,
				Detail: map[string]any{"pass": passID, "source": src, "url": out.URL, "path": out.PDFPath},
			})
		} else {
			events = append(events, types.Event{
				Type: types.EventSourceFailure,
				Detail: map[string]any{
					"pass": passID, "source": src, "kind": string(out.Kind), "error": out.Err,
				},
			})
		}

		after := state.ApplyFetchOutcome(cur, out, now)
		if !state.IsExhausted(cur, o.order, o.retryCeiling) && state.IsExhausted(after, o.order, o.retryCeiling) {
			events = append(events, types.Event{
				Type:   types.EventExhausted,
				Detail: map[string]any{"pass": passID, "retry_count": after.RetryCount},
			})
		}
		return after, events, nil
	})
	if err != nil {
		return rec, &out, fmt.Errorf("recording %s outcome for %s: %w", src, id, err)
	}

	switch out.Kind {
	case types.OutcomeSuccess:
		fmt.Fprintf(w, "fetched: %s [%s]\n", id, src)
	case types.OutcomeNotFound:
		fmt.Fprintf(w, "no-copy: %s [%s]\n", id, src)
	default:
		fmt.Fprintf(w, "failed:  %s [%s] (%s: %s)\n", id, src, out.Kind, out.Err)
	}
	return next, &out, nil
}

// markExhausted emits the exhausted event for a record whose sources are
// all spent. The event fires at most once: a record already exhausted at
// read time is left untouched.
func (o *Orchestrator) markExhausted(ctx context.Context, id, passID string) (types.Record, error) {
	return o.store.ApplyMutation(ctx, id, func(cur types.Record) (types.Record, []types.Event, error) {
		if state.IsExhausted(cur, o.order, o.retryCeiling) {
			return cur, nil, nil
		}
		return cur, []types.Event{{
			Type:   types.EventExhausted,
			Detail: map[string]any{"pass": passID, "retry_count": cur.RetryCount},
		}}, nil
	})
}

// runParsers executes the parse stage and records every outcome in one
// mutation.
func (o *Orchestrator) runParsers(ctx context.Context, id string, rec types.Record, passID string, w io.Writer) (types.Record, []types.ParseOutcome, error) {
	outcomes := o.parser.Run(ctx, rec, sources.PDFPath(o.papersDir, id), w)
	if len(outcomes) == 0 {
		return rec, nil, nil
	}

	next, err := o.store.ApplyMutation(ctx, id, func(cur types.Record) (types.Record, []types.Event, error) {
		now := time.Now().UTC()
		after := cur
		events := make([]types.Event, 0, 2*len(outcomes))
		for _, out := range outcomes {
			events = append(events, types.Event{
				Type:   types.EventParseAttempt,
				Detail: map[string]any{"pass": passID, "parser": out.Parser},
			})
			if out.OK {
				events = append(events, types.Event{
					Type: types.EventParseSuccess,
					Detail: map[string]any{
						"pass": passID, "parser": out.Parser,
						"output": out.OutputPath, "ingested": out.Ingested,
					},
				})
			} else {
				events = append(events, types.Event{
					Type:   types.EventParseFailure,
					Detail: map[string]any{"pass": passID, "parser": out.Parser, "error": out.Err},
				})
			}
			after = state.ApplyParseOutcome(after, out, o.retryCeiling, now)
		}
		return after, events, nil
	})
	if err != nil {
		return rec, outcomes, fmt.Errorf("recording parse outcomes for %s: %w", id, err)
	}
	return next, outcomes, nil
}

func (o *Orchestrator) fetcherFor(name string) sources.Fetcher {
	for _, f := range o.fetchers {
		if f.Name() == name {
			return f
		}
	}
	// NextSource only returns names derived from the fetcher slice.
	panic(fmt.Sprintf("no fetcher for source %q", name))
}

// NeedsWork reports whether rec still has acquisition or parse work left,
// i.e. it is neither fully processed nor exhausted. The dispatcher uses
// this to build its backlog.
func (o *Orchestrator) NeedsWork(rec types.Record) bool {
	return !state.IsFullyProcessed(rec, o.parsers) &&
		!state.IsExhausted(rec, o.order, o.retryCeiling)
}

// BatchResult aggregates pass results over a set of identifiers.
type BatchResult struct {
	Done      int // fully processed after their pass
	Exhausted int // nothing left to try
	Pending   int // need further passes
	Errors    int // tracker store failures

	Fetched int // PDFs downloaded during this batch
	Parsed  int // parser successes during this batch
}

// Total returns the number of identifiers processed.
func (r BatchResult) Total() int {
	return r.Done + r.Exhausted + r.Pending + r.Errors
}

// ProcessBatch runs one pass over each identifier in order, printing
// per-identifier progress to w and a trailing summary. Store failures are
// reported and counted but do not stop the batch.
func (o *Orchestrator) ProcessBatch(ctx context.Context, ids []string, w io.Writer) BatchResult {
	var result BatchResult
	for _, id := range ids {
		res, err := o.ProcessOne(ctx, id, w)
		if err != nil {
			fmt.Fprintf(w, "error:   %s (%v)\n", id, err)
			result.Errors++
			continue
		}

		if res.Fetch != nil && res.Fetch.Kind == types.OutcomeSuccess {
			result.Fetched++
		}
		for _, p := range res.Parse {
			if p.OK {
				result.Parsed++
			}
		}

		switch {
		case res.Done:
			result.Done++
		case res.Exhausted:
			result.Exhausted++
		default:
			result.Pending++
		}
	}

	fmt.Fprintf(w, "\nPass summary: %d done, %d exhausted, %d pending, %d errors (%d fetched, %d parsed)\n",
		result.Done, result.Exhausted, result.Pending, result.Errors, result.Fetched, result.Parsed)
	return result
}
