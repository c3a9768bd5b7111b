// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// TriState is a three-valued flag persisted as text. The zero value of the
// underlying column (empty string) is treated as TriUnknown so that records
// written by older schema versions read back cleanly.
type TriState string

const (
	TriUnknown TriState = "unknown"
	TriYes     TriState = "yes"
	TriNo      TriState = "no"
)

// NormalizeTriState maps raw column text to a TriState, folding the empty
// string into TriUnknown.
func NormalizeTriState(s string) TriState {
	switch TriState(s) {
	case TriYes:
		return TriYes
	case TriNo:
		return TriNo
	default:
		return TriUnknown
	}
}

// ParseStatus is the lifecycle state of one parser for one identifier.
type ParseStatus string

const (
	ParseNotAttempted ParseStatus = "not_attempted"
	ParseSuccess      ParseStatus = "success"
	ParseFailed       ParseStatus = "failed"
)

// Acquisition source names. The order in KnownSources is the default
// priority order: cheap, targeted endpoints first, the scraped mirror last.
const (
	SourceArxiv           = "arxiv"
	SourceUnpaywall       = "unpaywall"
	SourceBiorxiv         = "biorxiv"
	SourceEuropePMC       = "europepmc"
	SourceSemanticScholar = "semanticscholar"
	SourceSciHub          = "scihub"

	// SourceReconciled is a reserved pseudo-source recorded when a download
	// is discovered on disk rather than fetched. It never appears in a
	// priority order; it exists so the downloaded flag stays derivable from
	// per-source success.
	SourceReconciled = "reconciled"
)

// KnownSources returns every fetchable source in default priority order.
func KnownSources() []string {
	return []string{
		SourceArxiv,
		SourceUnpaywall,
		SourceBiorxiv,
		SourceEuropePMC,
		SourceSemanticScholar,
		SourceSciHub,
	}
}

// Parser names. The parsers are independent: each runs against the same PDF
// and produces its own output document.
const (
	ParserFast   = "fast"
	ParserGrobid = "grobid"
)

// KnownParsers returns every parser name.
func KnownParsers() []string {
	return []string{ParserFast, ParserGrobid}
}

// SourceState holds the acquisition progress against a single source.
// Attempted stays unknown across transient errors so the source remains
// eligible; it moves to yes only on a definitive outcome.
type SourceState struct {
	Attempted TriState `json:"attempted" yaml:"attempted"`
	Succeeded TriState `json:"succeeded" yaml:"succeeded"`
}

// ParserState holds the status and completion time of a single parser.
type ParserState struct {
	Status    ParseStatus `json:"status" yaml:"status"`
	Timestamp time.Time   `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
}

// Record is the full processing state for one identifier. Downloaded is
// derived: it is yes exactly when some source (including the reconciled
// pseudo-source) has succeeded, and is never written independently.
type Record struct {
	// ID is the normalized DOI.
	ID string `json:"id" yaml:"id"`

	// Sources maps source name to acquisition state. Absent entries read
	// as unknown/unknown.
	Sources map[string]SourceState `json:"sources" yaml:"sources"`

	// Downloaded is the derived acquisition flag.
	Downloaded TriState `json:"downloaded" yaml:"downloaded"`

	// DownloadSource names the source that produced the PDF. Empty until
	// Downloaded is yes.
	DownloadSource string `json:"download_source,omitempty" yaml:"download_source,omitempty"`

	// DownloadTime is when the PDF was obtained.
	DownloadTime time.Time `json:"download_timestamp,omitempty" yaml:"download_timestamp,omitempty"`

	// ContentIngested reports whether a parsed document reached the
	// content database.
	ContentIngested TriState `json:"content_ingested" yaml:"content_ingested"`

	// Parsers maps parser name to its status.
	Parsers map[string]ParserState `json:"parsers" yaml:"parsers"`

	// RetryCount counts transient fetch errors, invalid downloads, and
	// parse failures against the shared retry budget.
	RetryCount int `json:"retry_count" yaml:"retry_count"`

	// LastError is the most recent failure description, empty when the
	// last operation succeeded.
	LastError string `json:"last_error,omitempty" yaml:"last_error,omitempty"`

	// LastUpdated is the time of the last applied mutation.
	LastUpdated time.Time `json:"last_updated,omitempty" yaml:"last_updated,omitempty"`
}

// NewRecord returns the default record for an identifier: nothing attempted,
// nothing downloaded, zero retries.
func NewRecord(id string) Record {
	sources := make(map[string]SourceState, len(KnownSources())+1)
	for _, s := range KnownSources() {
		sources[s] = SourceState{Attempted: TriUnknown, Succeeded: TriUnknown}
	}
	sources[SourceReconciled] = SourceState{Attempted: TriUnknown, Succeeded: TriUnknown}

	parsers := make(map[string]ParserState, len(KnownParsers()))
	for _, p := range KnownParsers() {
		parsers[p] = ParserState{Status: ParseNotAttempted}
	}

	return Record{
		ID:              id,
		Sources:         sources,
		Downloaded:      TriUnknown,
		ContentIngested: TriUnknown,
		Parsers:         parsers,
	}
}

// Clone returns a deep copy. State transitions operate on clones so a
// caller's record is never mutated through the shared maps.
func (r Record) Clone() Record {
	out := r
	out.Sources = make(map[string]SourceState, len(r.Sources))
	for k, v := range r.Sources {
		out.Sources[k] = v
	}
	out.Parsers = make(map[string]ParserState, len(r.Parsers))
	for k, v := range r.Parsers {
		out.Parsers[k] = v
	}
	return out
}

// Source returns the state for a source name, defaulting to unknown/unknown.
func (r Record) Source(name string) SourceState {
	if s, ok := r.Sources[name]; ok {
		return s
	}
	return SourceState{Attempted: TriUnknown, Succeeded: TriUnknown}
}

// Parser returns the state for a parser name, defaulting to not_attempted.
func (r Record) Parser(name string) ParserState {
	if p, ok := r.Parsers[name]; ok {
		return p
	}
	return ParserState{Status: ParseNotAttempted}
}

// EventType identifies an entry in the append-only event log.
type EventType string

const (
	EventCreated       EventType = "created"
	EventSourceAttempt EventType = "source-attempt"
	EventSourceSuccess EventType = "source-success"
	EventSourceFailure EventType = "source-failure"
	EventParseAttempt  EventType = "parse-attempt"
	EventParseSuccess  EventType = "parse-success"
	EventParseFailure  EventType = "parse-failure"
	EventExhausted     EventType = "exhausted"
	EventReset         EventType = "reset"
	EventReconcileFix  EventType = "reconciliation-fix"
)

// Event is one entry in the audit log. Seq is assigned by the store on
// append and is strictly increasing per database.
type Event struct {
	Seq    int64          `json:"seq" yaml:"seq"`
	Time   time.Time      `json:"ts" yaml:"ts"`
	ID     string         `json:"id" yaml:"id"`
	Type   EventType      `json:"event_type" yaml:"event_type"`
	Detail map[string]any `json:"detail,omitempty" yaml:"detail,omitempty"`
}
