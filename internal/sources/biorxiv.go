// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/meshintel/papertrack/pkg/types"
)

// Base URLs for bioRxiv resolution, vars for test substitution.
var (
	biorxivAPIBase     = "https://api.biorxiv.org/details/biorxiv/"
	biorxivContentBase = "https://www.biorxiv.org/content/"
)

type biorxivFetcher struct {
	client    *http.Client
	userAgent string
}

func (f *biorxivFetcher) Name() string { return types.SourceBiorxiv }

// bioRxiv details API JSON structures.
type biorxivResponse struct {
	Collection []biorxivVersion `json:"collection"`
}

type biorxivVersion struct {
	DOI     string `json:"doi"`
	Version string `json:"version"`
}

// Fetch downloads a preprint from bioRxiv. Only 10.1101 DOIs live there;
// everything else is a confirmed not-found without touching the network.
func (f *biorxivFetcher) Fetch(ctx context.Context, doi, destPath string) types.FetchOutcome {
	out := types.FetchOutcome{Source: f.Name()}

	if !strings.HasPrefix(doi, "10.1101/") {
		out.Kind = types.OutcomeNotFound
		return out
	}

	version, kind, detail := f.latestVersion(ctx, doi)
	if kind != types.OutcomeSuccess {
		out.Kind = kind
		out.Err = detail
		return out
	}

	pdfURL := fmt.Sprintf("%s%sv%s.full.pdf", biorxivContentBase, doi, version)
	kind, detail = fetchToFile(ctx, f.client, pdfURL, destPath, f.userAgent)
	out.Kind = kind
	out.Err = detail
	if kind == types.OutcomeSuccess {
		out.PDFPath = destPath
		out.URL = pdfURL
	}
	return out
}

// latestVersion queries the details API for the newest posted version of
// the preprint. An empty collection means bioRxiv has never seen the DOI.
func (f *biorxivFetcher) latestVersion(ctx context.Context, doi string) (string, types.OutcomeKind, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, biorxivAPIBase+doi, nil)
	if err != nil {
		return "", types.OutcomeTransient, fmt.Sprintf("creating request: %v", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", types.OutcomeTransient, fmt.Sprintf("bioRxiv API request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", types.OutcomeTransient, fmt.Sprintf("bioRxiv API returned HTTP %d", resp.StatusCode)
	}

	var br biorxivResponse
	if err := json.NewDecoder(resp.Body).Decode(&br); err != nil {
		return "", types.OutcomeTransient, fmt.Sprintf("parsing bioRxiv response: %v", err)
	}

	if len(br.Collection) == 0 {
		return "", types.OutcomeNotFound, ""
	}

	// The API returns versions oldest first.
	version := br.Collection[len(br.Collection)-1].Version
	if version == "" {
		version = "1"
	}
	return version, types.OutcomeSuccess, ""
}
