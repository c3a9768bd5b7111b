// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package tracker

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/meshintel/papertrack/pkg/types"
)

// Filter selects records for List. Zero values mean no constraint. Source
// and Parser must name known columns; the tri-state and status fields
// qualify them.
type Filter struct {
	Downloaded      types.TriState
	ContentIngested types.TriState

	Source          string
	SourceAttempted types.TriState
	SourceSucceeded types.TriState

	Parser      string
	ParseStatus types.ParseStatus

	// WithErrors keeps only records carrying a last error.
	WithErrors bool

	// MinRetries keeps records with at least this much budget spent.
	MinRetries int

	Limit int
}

func isKnownSource(name string) bool {
	for _, s := range allSources() {
		if s == name {
			return true
		}
	}
	return false
}

func isKnownParser(name string) bool {
	for _, p := range types.KnownParsers() {
		if p == name {
			return true
		}
	}
	return false
}

// List returns a snapshot of records matching the filter, ordered by id.
func (s *Store) List(ctx context.Context, f Filter) ([]types.Record, error) {
	q := sq.Select(trackerColumns()...).From("processing_tracker").OrderBy("id")

	if f.Downloaded != "" {
		q = q.Where(sq.Eq{"downloaded": string(f.Downloaded)})
	}
	if f.ContentIngested != "" {
		q = q.Where(sq.Eq{"content_ingested": string(f.ContentIngested)})
	}
	if f.Source != "" {
		if !isKnownSource(f.Source) {
			return nil, fmt.Errorf("unknown source %q", f.Source)
		}
		if f.SourceAttempted != "" {
			q = q.Where(sq.Eq{f.Source + "_attempted": string(f.SourceAttempted)})
		}
		if f.SourceSucceeded != "" {
			q = q.Where(sq.Eq{f.Source + "_succeeded": string(f.SourceSucceeded)})
		}
	}
	if f.Parser != "" {
		if !isKnownParser(f.Parser) {
			return nil, fmt.Errorf("unknown parser %q", f.Parser)
		}
		if f.ParseStatus != "" {
			q = q.Where(sq.Eq{f.Parser + "_status": string(f.ParseStatus)})
		}
	}
	if f.WithErrors {
		q = q.Where(sq.NotEq{"last_error": ""})
	}
	if f.MinRetries > 0 {
		q = q.Where(sq.GtOrEq{"retry_count": f.MinRetries})
	}
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building list query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	defer rows.Close()

	var records []types.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// SourceCount holds per-source attempt and success tallies.
type SourceCount struct {
	Attempted int `json:"attempted" yaml:"attempted"`
	Succeeded int `json:"succeeded" yaml:"succeeded"`
}

// Summary aggregates tracker-wide counts for reporting.
type Summary struct {
	Total      int `json:"total" yaml:"total"`
	Downloaded int `json:"downloaded" yaml:"downloaded"`
	NotFound   int `json:"not_downloaded" yaml:"not_downloaded"`
	Ingested   int `json:"ingested" yaml:"ingested"`
	WithErrors int `json:"with_errors" yaml:"with_errors"`

	Sources map[string]SourceCount              `json:"sources" yaml:"sources"`
	Parsers map[string]map[types.ParseStatus]int `json:"parsers" yaml:"parsers"`
}

// Stats computes the summary in a single aggregate query.
func (s *Store) Stats(ctx context.Context) (Summary, error) {
	count := func(cond string) string {
		return fmt.Sprintf("COALESCE(SUM(CASE WHEN %s THEN 1 ELSE 0 END), 0)", cond)
	}

	exprs := []string{
		"COUNT(*)",
		count("downloaded = 'yes'"),
		count("downloaded = 'no'"),
		count("content_ingested = 'yes'"),
		count("last_error != ''"),
	}
	srcs := types.KnownSources()
	for _, src := range srcs {
		exprs = append(exprs,
			count(fmt.Sprintf("%s_attempted = 'yes'", src)),
			count(fmt.Sprintf("%s_succeeded = 'yes'", src)),
		)
	}
	parsers := types.KnownParsers()
	statuses := []types.ParseStatus{types.ParseSuccess, types.ParseFailed, types.ParseNotAttempted}
	for _, p := range parsers {
		for _, st := range statuses {
			exprs = append(exprs, count(fmt.Sprintf("%s_status = '%s'", p, st)))
		}
	}

	query, _, err := sq.Select(exprs...).From("processing_tracker").ToSql()
	if err != nil {
		return Summary{}, fmt.Errorf("building stats query: %w", err)
	}

	vals := make([]int, len(exprs))
	dest := make([]any, len(exprs))
	for i := range vals {
		dest[i] = &vals[i]
	}
	if err := s.db.QueryRowContext(ctx, query).Scan(dest...); err != nil {
		return Summary{}, fmt.Errorf("computing stats: %w", err)
	}

	sum := Summary{
		Total:      vals[0],
		Downloaded: vals[1],
		NotFound:   vals[2],
		Ingested:   vals[3],
		WithErrors: vals[4],
		Sources:    make(map[string]SourceCount, len(srcs)),
		Parsers:    make(map[string]map[types.ParseStatus]int, len(parsers)),
	}
	i := 5
	for _, src := range srcs {
		sum.Sources[src] = SourceCount{Attempted: vals[i], Succeeded: vals[i+1]}
		i += 2
	}
	for _, p := range parsers {
		sum.Parsers[p] = make(map[types.ParseStatus]int, len(statuses))
		for _, st := range statuses {
			sum.Parsers[p][st] = vals[i]
			i++
		}
	}
	return sum, nil
}

// IDs returns every tracked identifier, ordered. Handy for exports and for
// reconciliation walks.
func (s *Store) IDs(ctx context.Context) ([]string, error) {
	query, _, err := sq.Select("id").From("processing_tracker").OrderBy("id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("building ids query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// FormatSummary renders the summary as aligned text for CLI output.
func FormatSummary(sum Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "tracked:     %d\n", sum.Total)
	fmt.Fprintf(&b, "downloaded:  %d\n", sum.Downloaded)
	fmt.Fprintf(&b, "missing:     %d\n", sum.NotFound)
	fmt.Fprintf(&b, "ingested:    %d\n", sum.Ingested)
	fmt.Fprintf(&b, "with errors: %d\n", sum.WithErrors)

	b.WriteString("\nsources:\n")
	for _, src := range types.KnownSources() {
		c := sum.Sources[src]
		fmt.Fprintf(&b, "  %-16s attempted %-6d succeeded %d\n", src, c.Attempted, c.Succeeded)
	}
	b.WriteString("\nparsers:\n")
	for _, p := range types.KnownParsers() {
		c := sum.Parsers[p]
		fmt.Fprintf(&b, "  %-16s success %-6d failed %-6d pending %d\n",
			p, c[types.ParseSuccess], c[types.ParseFailed], c[types.ParseNotAttempted])
	}
	return b.String()
}
