// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/meshintel/papertrack/internal/httputil"
	"github.com/meshintel/papertrack/pkg/types"
)

// semanticScholarAPIBase is a var so tests can substitute an httptest server.
var semanticScholarAPIBase = "https://api.semanticscholar.org/graph/v1/paper/"

type semanticScholarFetcher struct {
	client    *http.Client
	userAgent string
	apiKey    string
}

func (f *semanticScholarFetcher) Name() string { return types.SourceSemanticScholar }

// Semantic Scholar Graph API JSON structures.
type semanticScholarPaper struct {
	IsOpenAccess  bool `json:"isOpenAccess"`
	OpenAccessPDF *struct {
		URL string `json:"url"`
	} `json:"openAccessPdf"`
}

// Fetch looks the DOI up in the Semantic Scholar Graph API and downloads
// the open-access PDF it points at. The API rate-limits unauthenticated
// clients aggressively, so lookups go through the retry helper.
func (f *semanticScholarFetcher) Fetch(ctx context.Context, doi, destPath string) types.FetchOutcome {
	out := types.FetchOutcome{Source: f.Name()}

	apiURL := fmt.Sprintf("%sDOI:%s?fields=%s", semanticScholarAPIBase, url.PathEscape(doi),
		url.QueryEscape("isOpenAccess,openAccessPdf"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		out.Kind = types.OutcomeTransient
		out.Err = fmt.Sprintf("creating request: %v", err)
		return out
	}
	req.Header.Set("User-Agent", f.userAgent)
	if f.apiKey != "" {
		req.Header.Set("x-api-key", f.apiKey)
	}

	resp, err := httputil.DoWithRetry(ctx, f.client, req, 2)
	if err != nil {
		out.Kind = types.OutcomeTransient
		out.Err = fmt.Sprintf("Semantic Scholar API request: %v", err)
		return out
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		out.Kind = types.OutcomeNotFound
		return out
	default:
		out.Kind = types.OutcomeTransient
		out.Err = fmt.Sprintf("Semantic Scholar API returned HTTP %d", resp.StatusCode)
		return out
	}

	var paper semanticScholarPaper
	if err := json.NewDecoder(resp.Body).Decode(&paper); err != nil {
		out.Kind = types.OutcomeTransient
		out.Err = fmt.Sprintf("parsing Semantic Scholar response: %v", err)
		return out
	}

	if paper.OpenAccessPDF == nil || paper.OpenAccessPDF.URL == "" {
		out.Kind = types.OutcomeNotFound
		return out
	}
	pdfURL := paper.OpenAccessPDF.URL

	// DOI-resolver URLs are redirects to the paywall, not PDFs.
	if strings.HasPrefix(pdfURL, "https://doi.org/") || strings.HasPrefix(pdfURL, "http://dx.doi.org/") {
		out.Kind = types.OutcomeNotFound
		return out
	}

	kind, detail := fetchToFile(ctx, f.client, pdfURL, destPath, f.userAgent)
	out.Kind = kind
	out.Err = detail
	if kind == types.OutcomeSuccess {
		out.PDFPath = destPath
		out.URL = pdfURL
	}
	return out
}
