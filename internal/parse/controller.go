// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package parse

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/meshintel/papertrack/internal/container"
	"github.com/meshintel/papertrack/internal/content"
	"github.com/meshintel/papertrack/pkg/types"
)

// Controller runs the configured engines against a downloaded PDF. Engines
// are independent: each produces its own output file, and each successful
// document is ingested into the content store, so the last engine in
// configuration order is the one whose text the store keeps.
type Controller struct {
	engines   []Engine
	outputDir string
	timeout   time.Duration
	store     *content.Store
}

// NewController creates a controller from the parse configuration. The
// store may be nil, in which case parsed documents are written to disk
// but not ingested.
func NewController(cfg types.ParseConfig, engines []Engine, store *content.Store) *Controller {
	return &Controller{
		engines:   engines,
		outputDir: cfg.OutputDir,
		timeout:   cfg.Timeout,
		store:     store,
	}
}

// Engines returns the controller's engines in run order.
func (c *Controller) Engines() []Engine { return c.engines }

// Run executes every engine that is not already terminal for this record.
// Successful and terminally failed engines are skipped; everything else
// runs, so a re-invocation after a partial failure picks up exactly the
// missing parsers. Each engine call is bounded by the configured timeout.
// Per-engine status lines go to w.
func (c *Controller) Run(ctx context.Context, rec types.Record, pdfPath string, w io.Writer) []types.ParseOutcome {
	slug := SlugFromPDF(pdfPath)
	outcomes := make([]types.ParseOutcome, 0, len(c.engines))

	for _, eng := range c.engines {
		name := eng.Name()
		switch rec.Parser(name).Status {
		case types.ParseSuccess:
			fmt.Fprintf(w, "skipped: %s [%s] (already parsed)\n", slug, name)
			continue
		case types.ParseFailed:
			fmt.Fprintf(w, "skipped: %s [%s] (failed terminally)\n", slug, name)
			continue
		}

		doc, err := c.runEngine(ctx, eng, pdfPath)
		if err != nil {
			fmt.Fprintf(w, "failed:  %s [%s] (%v)\n", slug, name, err)
			outcomes = append(outcomes, types.ParseOutcome{Parser: name, Err: err.Error()})
			continue
		}

		doc.DOI = rec.ID
		doc.Slug = slug
		outPath := OutputPath(c.outputDir, name, slug)
		if err := writeOutput(doc, outPath); err != nil {
			fmt.Fprintf(w, "failed:  %s [%s] (%v)\n", slug, name, err)
			outcomes = append(outcomes, types.ParseOutcome{Parser: name, Err: err.Error()})
			continue
		}

		out := types.ParseOutcome{Parser: name, OK: true, OutputPath: outPath}
		if c.store != nil {
			if err := c.store.Upsert(ctx, doc); err != nil {
				// The document is on disk; only the store write failed.
				// Report the parse as succeeded and carry the ingest error.
				out.Err = fmt.Sprintf("ingest: %v", err)
			} else {
				out.Ingested = true
			}
		}
		fmt.Fprintf(w, "parsed:  %s [%s]\n", slug, name)
		outcomes = append(outcomes, out)
	}

	return outcomes
}

func (c *Controller) runEngine(ctx context.Context, eng Engine, pdfPath string) (types.Document, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return eng.Parse(ctx, pdfPath)
}

// ForConfig builds the engines named in cfg.Parsers, in order. The fast
// engine needs a container runtime with its image pulled; GROBID needs a
// reachable service. Construction fails on the first engine that cannot
// be built so a misconfigured batch stops before any network work.
func ForConfig(cfg types.ParseConfig, client *http.Client, rt container.Runtime) ([]Engine, error) {
	engines := make([]Engine, 0, len(cfg.Parsers))
	for _, name := range cfg.Parsers {
		switch name {
		case types.ParserFast:
			eng, err := NewFastEngine(rt, cfg.FastImage)
			if err != nil {
				return nil, fmt.Errorf("building fast engine: %w", err)
			}
			engines = append(engines, eng)
		case types.ParserGrobid:
			engines = append(engines, NewGrobidEngine(client, cfg.GrobidURL))
		default:
			return nil, fmt.Errorf("unknown parser %q", name)
		}
	}
	return engines, nil
}
