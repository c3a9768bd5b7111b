// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package reconcile repairs divergence between tracker state and what is
// actually on disk and in the content database. Files are ground truth
// for existence: a valid PDF nobody recorded becomes a download, a
// recorded download with no file behind it is taken back so acquisition
// can retry, and parser outputs and content rows are back-filled the
// same way. Process history (attempts, errors, events) is never
// rewritten; every correction goes through the tracker's mutation path
// and leaves a reconciliation-fix event behind.
package reconcile

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/meshintel/papertrack/internal/content"
	"github.com/meshintel/papertrack/internal/parse"
	"github.com/meshintel/papertrack/internal/sources"
	"github.com/meshintel/papertrack/internal/tracker"
	"github.com/meshintel/papertrack/pkg/types"
)

// Fix kinds recorded in reconciliation-fix events and the run report.
const (
	FixDownloadBackfill  = "downloaded-backfill"
	FixDownloadDowngrade = "downloaded-downgrade"
	FixParserBackfill    = "parser-backfill"
	FixContentBackfill   = "content-backfill"
	FixContentReingest   = "content-reingest"
	FixContentDowngrade  = "content-downgrade"
)

// Engine runs reconciliation passes. The content store may be nil for
// download-only deployments; content corrections are skipped then.
type Engine struct {
	store *tracker.Store
	docs  *content.Store

	papersDir     string
	outputDir     string
	parsers       []string
	removeInvalid bool
}

// New creates a reconciliation engine over the same directories and
// parser set the orchestrator uses. Empty config values fall back to the
// documented defaults.
func New(store *tracker.Store, docs *content.Store, acq types.AcquisitionConfig, parseCfg types.ParseConfig, cfg types.ReconcileConfig) *Engine {
	papersDir := acq.PapersDir
	if papersDir == "" {
		papersDir = "papers"
	}
	outputDir := parseCfg.OutputDir
	if outputDir == "" {
		outputDir = "parsed"
	}
	parsers := parseCfg.Parsers
	if len(parsers) == 0 {
		parsers = types.KnownParsers()
	}
	return &Engine{
		store:         store,
		docs:          docs,
		papersDir:     papersDir,
		outputDir:     outputDir,
		parsers:       parsers,
		removeInvalid: cfg.RemoveInvalid,
	}
}

// Fix describes one correction applied to one record.
type Fix struct {
	ID     string `json:"id" yaml:"id"`
	Kind   string `json:"kind" yaml:"kind"`
	Parser string `json:"parser,omitempty" yaml:"parser,omitempty"`
	Path   string `json:"path,omitempty" yaml:"path,omitempty"`
	Detail string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// Report summarizes one reconciliation run.
type Report struct {
	RanAt          time.Time `json:"ran_at" yaml:"ran_at"`
	Scanned        int       `json:"scanned" yaml:"scanned"`
	PDFs           int       `json:"pdfs_on_disk" yaml:"pdfs_on_disk"`
	Outputs        int       `json:"outputs_on_disk" yaml:"outputs_on_disk"`
	CreatedRecords int       `json:"created_records" yaml:"created_records"`
	Fixes          []Fix     `json:"fixes,omitempty" yaml:"fixes,omitempty"`
	Invalid        []string  `json:"invalid_files,omitempty" yaml:"invalid_files,omitempty"`
	Removed        []string  `json:"removed_files,omitempty" yaml:"removed_files,omitempty"`
	Unrecognized   []string  `json:"unrecognized_files,omitempty" yaml:"unrecognized_files,omitempty"`
}

// WriteReport writes the report as YAML.
func WriteReport(rep Report, path string) error {
	data, err := yaml.Marshal(rep)
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating report directory: %w", err)
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// fileEvidence is what the filesystem says about one identifier.
type fileEvidence struct {
	pdfPath string            // "" when no PDF is on disk
	outputs map[string]string // parser name to output file path
}

// Run reconciles every identifier that is tracked or has evidence on
// disk, printing one line per correction to w. The returned report lists
// everything that was fixed, flagged, or removed.
func (e *Engine) Run(ctx context.Context, w io.Writer) (Report, error) {
	rep := Report{RanAt: time.Now().UTC()}

	pdfs, badPDFNames, err := e.scanPapers()
	if err != nil {
		return rep, err
	}
	outputs, badOutNames, err := e.scanOutputs()
	if err != nil {
		return rep, err
	}
	rep.PDFs = len(pdfs)
	rep.Unrecognized = append(rep.Unrecognized, badPDFNames...)
	rep.Unrecognized = append(rep.Unrecognized, badOutNames...)
	for _, m := range outputs {
		rep.Outputs += len(m)
	}

	tracked, err := e.store.IDs(ctx)
	if err != nil {
		return rep, fmt.Errorf("listing tracked identifiers: %w", err)
	}

	idSet := make(map[string]struct{}, len(tracked))
	for _, id := range tracked {
		idSet[id] = struct{}{}
	}
	for id := range pdfs {
		idSet[id] = struct{}{}
	}
	for id := range outputs {
		idSet[id] = struct{}{}
	}
	ids := make([]string, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		ev := fileEvidence{pdfPath: pdfs[id], outputs: outputs[id]}
		if err := e.reconcileOne(ctx, id, ev, w, &rep); err != nil {
			return rep, err
		}
	}
	rep.Scanned = len(ids)

	fmt.Fprintf(w, "\nReconcile summary: %d records, %d fixes, %d invalid files, %d removed, %d created\n",
		rep.Scanned, len(rep.Fixes), len(rep.Invalid), len(rep.Removed), rep.CreatedRecords)
	return rep, nil
}

// scanPapers maps identifiers to PDF files in the papers directory.
// Files whose stem does not reverse to a DOI are reported, not touched.
func (e *Engine) scanPapers() (map[string]string, []string, error) {
	entries, err := os.ReadDir(e.papersDir)
	if os.IsNotExist(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("reading papers directory: %w", err)
	}

	pdfs := make(map[string]string)
	var unrecognized []string
	for _, ent := range entries {
		name := ent.Name()
		if ent.IsDir() || !strings.HasSuffix(name, ".pdf") {
			continue
		}
		doi, err := sources.NormalizeDOI(sources.DOIFromSlug(strings.TrimSuffix(name, ".pdf")))
		if err != nil {
			unrecognized = append(unrecognized, filepath.Join(e.papersDir, name))
			continue
		}
		pdfs[doi] = filepath.Join(e.papersDir, name)
	}
	return pdfs, unrecognized, nil
}

// scanOutputs maps identifiers to parser output files in the output
// directory. The fast parser's "_fast" suffix distinguishes its files.
func (e *Engine) scanOutputs() (map[string]map[string]string, []string, error) {
	entries, err := os.ReadDir(e.outputDir)
	if os.IsNotExist(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("reading output directory: %w", err)
	}

	outputs := make(map[string]map[string]string)
	var unrecognized []string
	for _, ent := range entries {
		name := ent.Name()
		if ent.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		stem := strings.TrimSuffix(name, ".json")
		parser := types.ParserGrobid
		if cut, ok := strings.CutSuffix(stem, "_fast"); ok {
			parser = types.ParserFast
			stem = cut
		}
		doi, err := sources.NormalizeDOI(sources.DOIFromSlug(stem))
		if err != nil {
			unrecognized = append(unrecognized, filepath.Join(e.outputDir, name))
			continue
		}
		if outputs[doi] == nil {
			outputs[doi] = make(map[string]string)
		}
		outputs[doi][parser] = filepath.Join(e.outputDir, name)
	}
	return outputs, unrecognized, nil
}

// reconcileOne applies every correction one identifier needs in a single
// mutation. Evidence is gathered before the transaction; re-ingestion
// into the content store happens before the flag is set, so a failure
// between the two leaves a state the next run converges from.
func (e *Engine) reconcileOne(ctx context.Context, id string, ev fileEvidence, w io.Writer, rep *Report) error {
	pdfValid := false
	pdfDetail := "no file on disk"
	if ev.pdfPath != "" {
		if err := sources.ValidatePDF(ev.pdfPath); err != nil {
			pdfDetail = err.Error()
			rep.Invalid = append(rep.Invalid, ev.pdfPath)
		} else {
			pdfValid = true
		}
	}

	validOut := make(map[string]string)
	for parser, path := range ev.outputs {
		if err := parse.ValidateOutput(path); err != nil {
			rep.Invalid = append(rep.Invalid, path)
			continue
		}
		validOut[parser] = path
	}

	// Re-ingest before touching the record: if the flag update below were
	// to fail, a stored document with an unset flag is exactly what the
	// content back-fill repairs on the next run.
	hasContent := false
	reingested := false
	if e.docs != nil {
		var err error
		hasContent, err = e.docs.Has(ctx, id)
		if err != nil {
			return fmt.Errorf("checking content store for %s: %w", id, err)
		}
		if !hasContent {
			if p, path, ok := e.reingestSource(validOut); ok {
				doc, err := parse.ReadOutput(path)
				if err == nil {
					doc.DOI = id
					doc.Slug = sources.Slug(id)
					if doc.Parser == "" {
						doc.Parser = p
					}
					if err := e.docs.Upsert(ctx, doc); err != nil {
						return fmt.Errorf("re-ingesting %s: %w", id, err)
					}
					hasContent = true
					reingested = true
				}
			}
		}
	}

	var (
		fixes   []Fix
		created bool
	)
	_, err := e.store.ApplyMutation(ctx, id, func(cur types.Record) (types.Record, []types.Event, error) {
		fixes = nil
		created = false
		r := cur.Clone()
		var events []types.Event

		addFix := func(f Fix) {
			f.ID = id
			fixes = append(fixes, f)
			detail := map[string]any{"kind": f.Kind}
			if f.Parser != "" {
				detail["parser"] = f.Parser
			}
			if f.Path != "" {
				detail["path"] = f.Path
			}
			if f.Detail != "" {
				detail["detail"] = f.Detail
			}
			events = append(events, types.Event{Type: types.EventReconcileFix, Detail: detail})
		}

		now := time.Now().UTC()

		if pdfValid && cur.Downloaded != types.TriYes {
			r.Sources[types.SourceReconciled] = types.SourceState{Attempted: types.TriYes, Succeeded: types.TriYes}
			r.DownloadSource = types.SourceReconciled
			r.DownloadTime = now
			addFix(Fix{Kind: FixDownloadBackfill, Path: ev.pdfPath})
		}

		if !pdfValid && cur.Downloaded == types.TriYes {
			// The recorded download has no valid file behind it. Clear the
			// acquisition axis and restore the budget so every source is
			// eligible again; the reconciled pseudo-source keeps the
			// derived flag at no rather than unknown.
			for _, src := range types.KnownSources() {
				r.Sources[src] = types.SourceState{Attempted: types.TriUnknown, Succeeded: types.TriUnknown}
			}
			r.Sources[types.SourceReconciled] = types.SourceState{Attempted: types.TriYes, Succeeded: types.TriNo}
			r.RetryCount = 0
			r.LastError = "reconciliation: " + pdfDetail
			addFix(Fix{Kind: FixDownloadDowngrade, Path: ev.pdfPath, Detail: pdfDetail})
		}

		for _, parser := range types.KnownParsers() {
			path, ok := validOut[parser]
			if !ok || r.Parser(parser).Status == types.ParseSuccess {
				continue
			}
			r.Parsers[parser] = types.ParserState{Status: types.ParseSuccess, Timestamp: now}
			addFix(Fix{Kind: FixParserBackfill, Parser: parser, Path: path})
		}

		if e.docs != nil {
			if hasContent && cur.ContentIngested != types.TriYes {
				r.ContentIngested = types.TriYes
				if reingested {
					addFix(Fix{Kind: FixContentReingest})
				} else {
					addFix(Fix{Kind: FixContentBackfill})
				}
			}
			if !hasContent && cur.ContentIngested == types.TriYes {
				r.ContentIngested = types.TriNo
				addFix(Fix{Kind: FixContentDowngrade, Detail: "content store has no document"})
			}
		}

		if len(fixes) > 0 && cur.LastUpdated.IsZero() {
			created = true
			events = append([]types.Event{{Type: types.EventCreated}}, events...)
		}
		return r, events, nil
	})
	if err != nil {
		return fmt.Errorf("reconciling %s: %w", id, err)
	}

	if created {
		rep.CreatedRecords++
	}
	for _, f := range fixes {
		rep.Fixes = append(rep.Fixes, f)
		fmt.Fprintf(w, "fixed:   %s (%s)\n", id, f.Kind)
	}

	if e.removeInvalid {
		e.removeInvalidFiles(id, ev, pdfValid, validOut, w, rep)
	}
	return nil
}

// reingestSource picks the output to restore a missing content row from.
// The last configured parser with a valid output wins, matching the
// controller's ingest order.
func (e *Engine) reingestSource(validOut map[string]string) (string, string, bool) {
	for i := len(e.parsers) - 1; i >= 0; i-- {
		if path, ok := validOut[e.parsers[i]]; ok {
			return e.parsers[i], path, true
		}
	}
	return "", "", false
}

// removeInvalidFiles deletes the files that failed validation for one
// identifier.
func (e *Engine) removeInvalidFiles(id string, ev fileEvidence, pdfValid bool, validOut map[string]string, w io.Writer, rep *Report) {
	var doomed []string
	if ev.pdfPath != "" && !pdfValid {
		doomed = append(doomed, ev.pdfPath)
	}
	for parser, path := range ev.outputs {
		if _, ok := validOut[parser]; !ok {
			doomed = append(doomed, path)
		}
	}
	for _, path := range doomed {
		if err := os.Remove(path); err != nil {
			fmt.Fprintf(w, "failed:  %s (removing %s: %v)\n", id, path, err)
			continue
		}
		rep.Removed = append(rep.Removed, path)
		fmt.Fprintf(w, "removed: %s\n", path)
	}
}
