// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sources

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/meshintel/papertrack/pkg/types"
)

// Base URLs for arXiv resolution. Declared as vars so tests can
// substitute httptest servers.
var (
	arxivPDFBase = "https://arxiv.org/pdf/"
	arxivAPIBase = "https://export.arxiv.org/api/query"
)

// arxivDOIPattern matches DataCite DOIs minted for arXiv papers:
// "10.48550/arXiv.2301.07041". The capture group is the arXiv ID.
var arxivDOIPattern = regexp.MustCompile(`(?i)^10\.48550/arxiv\.(.+)$`)

type arxivFetcher struct {
	client    *http.Client
	userAgent string
}

func (f *arxivFetcher) Name() string { return types.SourceArxiv }

// Fetch resolves the DOI to an arXiv PDF. DataCite arXiv DOIs embed the
// arXiv ID directly; anything else goes through the Atom API's DOI search.
func (f *arxivFetcher) Fetch(ctx context.Context, doi, destPath string) types.FetchOutcome {
	out := types.FetchOutcome{Source: f.Name()}

	arxivID := ""
	if m := arxivDOIPattern.FindStringSubmatch(doi); m != nil {
		arxivID = m[1]
	} else {
		id, kind, detail := f.lookupByDOI(ctx, doi)
		if kind != types.OutcomeSuccess {
			out.Kind = kind
			out.Err = detail
			return out
		}
		arxivID = id
	}

	pdfURL := arxivPDFBase + arxivID
	kind, detail := fetchToFile(ctx, f.client, pdfURL, destPath, f.userAgent)
	out.Kind = kind
	out.Err = detail
	if kind == types.OutcomeSuccess {
		out.PDFPath = destPath
		out.URL = pdfURL
	}
	return out
}

// arXiv Atom feed XML structures.
type arxivFeed struct {
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID  string `xml:"id"`
	DOI string `xml:"doi"`
}

// lookupByDOI searches the arXiv API for an entry whose DOI field matches.
// Most non-DataCite DOIs are not on arXiv, so a clean empty feed is a
// not-found, not an error.
func (f *arxivFetcher) lookupByDOI(ctx context.Context, doi string) (string, types.OutcomeKind, string) {
	apiURL := fmt.Sprintf("%s?search_query=doi:%s&max_results=1", arxivAPIBase, url.QueryEscape(fmt.Sprintf("%q", doi)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return "", types.OutcomeTransient, fmt.Sprintf("creating request: %v", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", types.OutcomeTransient, fmt.Sprintf("arXiv API request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", types.OutcomeTransient, fmt.Sprintf("arXiv API returned HTTP %d", resp.StatusCode)
	}

	var feed arxivFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return "", types.OutcomeTransient, fmt.Sprintf("parsing arXiv response: %v", err)
	}

	if len(feed.Entries) == 0 {
		return "", types.OutcomeNotFound, ""
	}

	// Entry IDs look like "http://arxiv.org/abs/2301.07041v2".
	id := feed.Entries[0].ID
	if i := strings.LastIndex(id, "/abs/"); i >= 0 {
		id = id[i+len("/abs/"):]
	}
	if id == "" {
		return "", types.OutcomeNotFound, ""
	}
	return id, types.OutcomeSuccess, ""
}
