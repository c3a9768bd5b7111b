// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/meshintel/papertrack/pkg/types"
)

// Base URLs for Europe PMC resolution, vars for test substitution.
var (
	europePMCAPIBase     = "https://www.ebi.ac.uk/europepmc/webservices/rest/search"
	europePMCArticleBase = "https://europepmc.org/articles/"
)

type europePMCFetcher struct {
	client    *http.Client
	userAgent string
}

func (f *europePMCFetcher) Name() string { return types.SourceEuropePMC }

// Europe PMC search API JSON structures.
type europePMCResponse struct {
	ResultList europePMCResultList `json:"resultList"`
}

type europePMCResultList struct {
	Results []europePMCResult `json:"result"`
}

type europePMCResult struct {
	PMCID           string `json:"pmcid"`
	InEPMC          string `json:"inEPMC"`
	HasPDF          string `json:"hasPDF"`
	IsOpenAccess    string `json:"isOpenAccess"`
	FullTextURLList *struct {
		FullTextURL []europePMCFullTextURL `json:"fullTextUrl"`
	} `json:"fullTextUrlList"`
}

type europePMCFullTextURL struct {
	DocumentStyle string `json:"documentStyle"`
	URL           string `json:"url"`
}

// Fetch searches Europe PMC for the DOI and downloads the PDF render of
// the PMC deposit. DOIs without a PMC deposit are a confirmed not-found.
func (f *europePMCFetcher) Fetch(ctx context.Context, doi, destPath string) types.FetchOutcome {
	out := types.FetchOutcome{Source: f.Name()}

	query := url.Values{}
	query.Set("query", fmt.Sprintf("DOI:%q", doi))
	query.Set("format", "json")
	query.Set("resultType", "core")
	apiURL := europePMCAPIBase + "?" + query.Encode()

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
		out.Err = fmt.Sprintf("Europe PMC API request: %v", err)
		return out
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		out.Kind = types.OutcomeTransient
		out.Err = fmt.Sprintf("Europe PMC API returned HTTP %d", resp.StatusCode)
		return out
	}

	var er europePMCResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		out.Kind = types.OutcomeTransient
		out.Err = fmt.Sprintf("parsing Europe PMC response: %v", err)
		return out
	}

	pdfURL := europePMCPDFURL(er)
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

// europePMCPDFURL extracts a PDF URL from the first search result,
// preferring an explicit pdf full-text link and falling back to the
// PMC PDF render endpoint.
func europePMCPDFURL(er europePMCResponse) string {
	if len(er.ResultList.Results) == 0 {
		return ""
	}
	r := er.ResultList.Results[0]

	if r.FullTextURLList != nil {
		for _, u := range r.FullTextURLList.FullTextURL {
			if u.DocumentStyle == "pdf" && u.URL != "" {
				return u.URL
			}
		}
	}

	if r.PMCID != "" && r.InEPMC == "Y" {
		return europePMCArticleBase + r.PMCID + "?pdf=render"
	}
	return ""
}
