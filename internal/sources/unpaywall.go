// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/meshintel/papertrack/pkg/types"
)

// unpaywallAPIBase is a var so tests can substitute an httptest server.
var unpaywallAPIBase = "https://api.unpaywall.org/v2/"

type unpaywallFetcher struct {
	client    *http.Client
	userAgent string
	email     string
}

func (f *unpaywallFetcher) Name() string { return types.SourceUnpaywall }

// Unpaywall API JSON structures.
type unpaywallResponse struct {
	IsOA           bool                `json:"is_oa"`
	BestOALocation *unpaywallLocation  `json:"best_oa_location"`
	OALocations    []unpaywallLocation `json:"oa_locations"`
}

type unpaywallLocation struct {
	URLForPDF string `json:"url_for_pdf"`
	Version   string `json:"version"`
	HostType  string `json:"host_type"`
}

// Fetch asks Unpaywall for the best open-access PDF location and downloads
// it. Papers that are closed access or have no direct PDF URL are a
// confirmed not-found for this source.
func (f *unpaywallFetcher) Fetch(ctx context.Context, doi, destPath string) types.FetchOutcome {
	out := types.FetchOutcome{Source: f.Name()}

	apiURL := fmt.Sprintf("%s%s?email=%s", unpaywallAPIBase, url.PathEscape(doi), url.QueryEscape(f.email))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		out.Kind = types.OutcomeTransient
		out.Err = fmt.Sprintf("creating request: %v", err)
		return out
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		out.Kind = types.OutcomeTransient
		out.Err = fmt.Sprintf("Unpaywall API request: %v", err)
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
		out.Err = fmt.Sprintf("Unpaywall API returned HTTP %d", resp.StatusCode)
		return out
	}

	var ur unpaywallResponse
	if err := json.NewDecoder(resp.Body).Decode(&ur); err != nil {
		out.Kind = types.OutcomeTransient
		out.Err = fmt.Sprintf("parsing Unpaywall response: %v", err)
		return out
	}

	pdfURL := bestUnpaywallPDF(ur)
	if pdfURL == "" {
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

// bestUnpaywallPDF picks the best direct PDF URL from the response,
// skipping DOI-resolver redirects which just bounce back to the
// publisher's paywall.
func bestUnpaywallPDF(ur unpaywallResponse) string {
	if !ur.IsOA {
		return ""
	}
	candidates := ur.OALocations
	if ur.BestOALocation != nil {
		candidates = append([]unpaywallLocation{*ur.BestOALocation}, candidates...)
	}
	for _, loc := range candidates {
		u := loc.URLForPDF
		if u == "" || strings.HasPrefix(u, "https://doi.org/") || strings.HasPrefix(u, "http://dx.doi.org/") {
			continue
		}
		return u
	}
	return ""
}
