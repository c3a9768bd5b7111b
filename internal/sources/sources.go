// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package sources implements the per-source PDF fetchers. Each fetcher
// resolves a DOI against one upstream (an API or a mirror), downloads the
// PDF when the upstream has it, and classifies the result; network and
// upstream failures never escape as raw errors. The shared download path
// validates every payload before a success is reported.
package sources

import (
	"context"
	"fmt"
	"net/http"

	"github.com/meshintel/papertrack/pkg/types"
)

// Fetcher retrieves one document PDF from one source.
type Fetcher interface {
	// Name returns the source name as recorded in the tracker.
	Name() string

	// Fetch resolves doi against the source and downloads the PDF to
	// destPath. The outcome carries the classification; Fetch never
	// returns a raw error.
	Fetch(ctx context.Context, doi, destPath string) types.FetchOutcome
}

// ForConfig builds fetchers for the configured sources, in configuration
// order. The order is the fallback priority. An unknown source name is an
// error; an empty list enables every known source in default order.
func ForConfig(cfg types.AcquisitionConfig, client *http.Client) ([]Fetcher, error) {
	names := cfg.Sources
	if len(names) == 0 {
		names = types.KnownSources()
	}

	fetchers := make([]Fetcher, 0, len(names))
	for _, name := range names {
		switch name {
		case types.SourceArxiv:
			fetchers = append(fetchers, &arxivFetcher{client: client, userAgent: cfg.UserAgent})
		case types.SourceUnpaywall:
			fetchers = append(fetchers, &unpaywallFetcher{
				client: client, userAgent: cfg.UserAgent, email: cfg.UnpaywallEmail,
			})
		case types.SourceBiorxiv:
			fetchers = append(fetchers, &biorxivFetcher{client: client, userAgent: cfg.UserAgent})
		case types.SourceEuropePMC:
			fetchers = append(fetchers, &europePMCFetcher{client: client, userAgent: cfg.UserAgent})
		case types.SourceSemanticScholar:
			fetchers = append(fetchers, &semanticScholarFetcher{
				client: client, userAgent: cfg.UserAgent, apiKey: cfg.SemanticScholarAPIKey,
			})
		case types.SourceSciHub:
			mirrors := cfg.SciHubMirrors
			if len(mirrors) == 0 {
				mirrors = defaultSciHubMirrors
			}
			fetchers = append(fetchers, &scihubFetcher{
				client: client, userAgent: cfg.UserAgent, mirrors: mirrors,
			})
		default:
			return nil, fmt.Errorf("unknown source %q", name)
		}
	}
	return fetchers, nil
}
