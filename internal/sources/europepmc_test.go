// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/meshintel/papertrack/pkg/types"
)

func newEuropePMCFetcher(client *http.Client) *europePMCFetcher {
	return &europePMCFetcher{client: client, userAgent: "papertrack-test/0.1"}
}

func TestEuropePMCFetchFullTextURL(t *testing.T) {
	var gotQuery string
	var tsURL string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/search":
			gotQuery = r.URL.Query().Get("query")
			fmt.Fprintf(w, `{"resultList": {"result": [{
				"pmcid": "PMC5771330",
				"inEPMC": "Y",
				"hasPDF": "Y",
				"isOpenAccess": "Y",
				"fullTextUrlList": {"fullTextUrl": [
					{"documentStyle": "html", "url": "%s/article/html"},
					{"documentStyle": "pdf", "url": "%s/pdf/PMC5771330.pdf"}
				]}
			}]}}`, tsURL, tsURL)
		case r.URL.Path == "/pdf/PMC5771330.pdf":
			w.Write(fakePDF())
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()
	tsURL = ts.URL

	orig := europePMCAPIBase
	europePMCAPIBase = ts.URL + "/search"
	defer func() { europePMCAPIBase = orig }()

	dest := filepath.Join(t.TempDir(), "paper.pdf")
	out := newEuropePMCFetcher(ts.Client()).Fetch(context.Background(), "10.3892/mmr.2018.8370", dest)

	if out.Kind != types.OutcomeSuccess {
		t.Fatalf("Kind = %q (%s), want success", out.Kind, out.Err)
	}
	if !strings.Contains(gotQuery, `DOI:"10.3892/mmr.2018.8370"`) {
		t.Errorf("query = %q, want DOI clause", gotQuery)
	}
}

func TestEuropePMCFetchPDFRenderFallback(t *testing.T) {
	var gotRenderPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/search":
			fmt.Fprint(w, `{"resultList": {"result": [{"pmcid": "PMC5771330", "inEPMC": "Y"}]}}`)
		case strings.HasPrefix(r.URL.Path, "/articles/"):
			gotRenderPath = r.URL.Path + "?" + r.URL.RawQuery
			w.Write(fakePDF())
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	origAPI, origArticle := europePMCAPIBase, europePMCArticleBase
	europePMCAPIBase = ts.URL + "/search"
	europePMCArticleBase = ts.URL + "/articles/"
	defer func() { europePMCAPIBase, europePMCArticleBase = origAPI, origArticle }()

	out := newEuropePMCFetcher(ts.Client()).Fetch(context.Background(), "10.3892/mmr.2018.8370", filepath.Join(t.TempDir(), "p.pdf"))
	if out.Kind != types.OutcomeSuccess {
		t.Fatalf("Kind = %q (%s), want success", out.Kind, out.Err)
	}
	if !strings.Contains(gotRenderPath, "PMC5771330") || !strings.Contains(gotRenderPath, "pdf=render") {
		t.Errorf("render path = %q, want PMC render URL", gotRenderPath)
	}
}

func TestEuropePMCFetchNoDeposit(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"resultList": {"result": []}}`)
	}))
	defer ts.Close()

	orig := europePMCAPIBase
	europePMCAPIBase = ts.URL + "/search"
	defer func() { europePMCAPIBase = orig }()

	out := newEuropePMCFetcher(ts.Client()).Fetch(context.Background(), "10.9999/nowhere", filepath.Join(t.TempDir(), "p.pdf"))
	if out.Kind != types.OutcomeNotFound {
		t.Fatalf("Kind = %q, want not-found", out.Kind)
	}
}

func TestEuropePMCFetchResultWithoutPDF(t *testing.T) {
	// Indexed but not deposited: metadata exists, no PDF anywhere.
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"resultList": {"result": [{"pmcid": "", "inEPMC": "N"}]}}`)
	}))
	defer ts.Close()

	orig := europePMCAPIBase
	europePMCAPIBase = ts.URL + "/search"
	defer func() { europePMCAPIBase = orig }()

	out := newEuropePMCFetcher(ts.Client()).Fetch(context.Background(), "10.1016/j.cell.2023.01.001", filepath.Join(t.TempDir(), "p.pdf"))
	if out.Kind != types.OutcomeNotFound {
		t.Fatalf("Kind = %q, want not-found", out.Kind)
	}
}

func TestEuropePMCFetchAPIDown(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	orig := europePMCAPIBase
	europePMCAPIBase = ts.URL + "/search"
	defer func() { europePMCAPIBase = orig }()

	out := newEuropePMCFetcher(ts.Client()).Fetch(context.Background(), "10.3892/mmr.2018.8370", filepath.Join(t.TempDir(), "p.pdf"))
	if out.Kind != types.OutcomeTransient {
		t.Fatalf("Kind = %q, want transient-error", out.Kind)
	}
}
