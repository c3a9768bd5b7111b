// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package state implements the pure transition logic for processing
// records. Nothing here touches the database or the network; every
// function takes a record and returns a new one, leaving the input
// untouched. The tracker store applies these transitions inside its
// write transaction.
package state

import (
	"time"

	"github.com/meshintel/papertrack/pkg/types"
)

// NextSource returns the first source in priority order that is still
// eligible for an attempt: not yet definitively attempted and not yet
// succeeded. Sources that returned transient errors stay eligible because
// their attempted flag never moved off unknown. The second return is false
// when every source has been attempted.
func NextSource(rec types.Record, order []string) (string, bool) {
	for _, name := range order {
		s := rec.Source(name)
		if s.Succeeded == types.TriYes {
			continue
		}
		if s.Attempted != types.TriYes {
			return name, true
		}
	}
	return "", false
}

// ApplyFetchOutcome returns the record after absorbing one source attempt.
//
// A success marks the source attempted and succeeded, stamps the download
// provenance, and clears the last error. A confirmed not-found marks the
// source attempted without success and costs no retry budget. A transient
// error leaves the attempted flag alone so the source stays eligible, but
// consumes budget. Invalid content marks the source attempted (the source
// answered, just not with a usable PDF) and consumes budget.
func ApplyFetchOutcome(rec types.Record, out types.FetchOutcome, now time.Time) types.Record {
	r := rec.Clone()
	s := r.Source(out.Source)

	switch out.Kind {
	case types.OutcomeSuccess:
		s.Attempted = types.TriYes
		s.Succeeded = types.TriYes
		r.Sources[out.Source] = s
		r.DownloadSource = out.Source
		r.DownloadTime = now
		r.LastError = ""

	case types.OutcomeNotFound:
		s.Attempted = types.TriYes
		s.Succeeded = types.TriNo
		r.Sources[out.Source] = s

	case types.OutcomeInvalid:
		s.Attempted = types.TriYes
		s.Succeeded = types.TriNo
		r.Sources[out.Source] = s
		r.RetryCount++
		r.LastError = out.Err

	case types.OutcomeTransient:
		r.RetryCount++
		r.LastError = out.Err
	}

	r.LastUpdated = now
	return Recompute(r)
}

// ApplyParseOutcome returns the record after absorbing one parser run.
// A parser that already reached success is left alone, so re-applying an
// outcome is harmless. Failures consume retry budget; when the budget is
// spent the parser goes terminally failed, otherwise it stays
// not_attempted for a later pass.
func ApplyParseOutcome(rec types.Record, out types.ParseOutcome, retryCeiling int, now time.Time) types.Record {
	r := rec.Clone()
	p := r.Parser(out.Parser)

	if p.Status == types.ParseSuccess {
		return r
	}

	if out.OK {
		p.Status = types.ParseSuccess
		p.Timestamp = now
		r.Parsers[out.Parser] = p
		r.LastError = ""
		if out.Ingested {
			r.ContentIngested = types.TriYes
		}
	} else {
		r.RetryCount++
		r.LastError = out.Err
		if r.RetryCount >= retryCeiling {
			p.Status = types.ParseFailed
			p.Timestamp = now
			r.Parsers[out.Parser] = p
		}
	}

	r.LastUpdated = now
	return r
}

// Recompute rederives the downloaded flag from per-source success. The flag
// is yes exactly when some source succeeded; it is no once any source has
// been definitively attempted without a success; it stays unknown for a
// record nothing has touched. Provenance fields are cleared whenever the
// flag is not yes.
func Recompute(rec types.Record) types.Record {
	r := rec.Clone()

	succeeded := false
	attempted := false
	for _, s := range r.Sources {
		if s.Succeeded == types.TriYes {
			succeeded = true
		}
		if s.Attempted == types.TriYes {
			attempted = true
		}
	}

	switch {
	case succeeded:
		r.Downloaded = types.TriYes
	case attempted:
		r.Downloaded = types.TriNo
	default:
		r.Downloaded = types.TriUnknown
	}

	if r.Downloaded != types.TriYes {
		r.DownloadSource = ""
		r.DownloadTime = time.Time{}
	}
	return r
}

// IsExhausted reports whether acquisition has nothing left to try: every
// source in the priority order has been attempted without a download, or
// the retry budget is spent. A downloaded record is never exhausted; once
// the PDF exists, only parse terminality matters.
func IsExhausted(rec types.Record, order []string, retryCeiling int) bool {
	if rec.Downloaded == types.TriYes {
		return false
	}
	if retryCeiling > 0 && rec.RetryCount >= retryCeiling {
		return true
	}
	if len(order) == 0 {
		return false
	}
	for _, name := range order {
		if rec.Source(name).Attempted != types.TriYes {
			return false
		}
	}
	return true
}

// IsFullyProcessed reports whether the identifier needs no further work:
// the PDF is downloaded, every required parser is terminal (success or
// failed), and, when at least one parser succeeded, the parsed content
// reached the content database.
func IsFullyProcessed(rec types.Record, parsers []string) bool {
	if rec.Downloaded != types.TriYes {
		return false
	}
	anySuccess := false
	for _, name := range parsers {
		switch rec.Parser(name).Status {
		case types.ParseSuccess:
			anySuccess = true
		case types.ParseFailed:
			// terminal
		default:
			return false
		}
	}
	if anySuccess && rec.ContentIngested != types.TriYes {
		return false
	}
	return true
}
