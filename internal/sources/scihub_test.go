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

func newSciHubFetcher(client *http.Client, mirrors ...string) *scihubFetcher {
	return &scihubFetcher{client: client, userAgent: "papertrack-test/0.1", mirrors: mirrors}
}

func TestSciHubFetchEmbedTag(t *testing.T) {
	var tsURL string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/pdf/paper.pdf":
			w.Write(fakePDF())
		case strings.HasPrefix(r.URL.Path, "/10."):
			fmt.Fprintf(w, `<html><body><embed id="pdf" src="%s/pdf/paper.pdf#navpanes=0"></body></html>`, tsURL)
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()
	tsURL = ts.URL

	dest := filepath.Join(t.TempDir(), "paper.pdf")
	out := newSciHubFetcher(ts.Client(), ts.URL).Fetch(context.Background(), "10.1016/j.cell.2023.01.001", dest)

	if out.Kind != types.OutcomeSuccess {
		t.Fatalf("Kind = %q (%s), want success", out.Kind, out.Err)
	}
	if out.PDFPath != dest {
		t.Errorf("PDFPath = %q, want %q", out.PDFPath, dest)
	}
}

func TestSciHubFetchOnclickButton(t *testing.T) {
	var tsURL string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/pdf/paper.pdf":
			w.Write(fakePDF())
		case strings.HasPrefix(r.URL.Path, "/10."):
			fmt.Fprintf(w, `<html><body><button onclick="location.href='%s/pdf/paper.pdf?download=true'">save</button></body></html>`, tsURL)
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()
	tsURL = ts.URL

	out := newSciHubFetcher(ts.Client(), ts.URL).Fetch(context.Background(), "10.1016/j.cell.2023.01.001", filepath.Join(t.TempDir(), "p.pdf"))
	if out.Kind != types.OutcomeSuccess {
		t.Fatalf("Kind = %q (%s), want success", out.Kind, out.Err)
	}
}

func TestSciHubFetchProtocolRelativeURL(t *testing.T) {
	// Sci-Hub often emits //host/path.pdf; the scheme must be added.
	resolved := resolvePDFURL("//mirror.example/file.pdf", "https://sci-hub.se/10.1/x")
	if resolved != "https://mirror.example/file.pdf" {
		t.Errorf("resolved = %q", resolved)
	}

	resolved = resolvePDFURL("/downloads/file.pdf", "https://sci-hub.se/10.1/x")
	if resolved != "https://sci-hub.se/downloads/file.pdf" {
		t.Errorf("resolved = %q", resolved)
	}

	resolved = resolvePDFURL("https://cdn.example/file.pdf", "https://sci-hub.se/10.1/x")
	if resolved != "https://cdn.example/file.pdf" {
		t.Errorf("resolved = %q", resolved)
	}
}

func TestSciHubFetchCaptchaIsTransient(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><p>Please solve the CAPTCHA to continue</p></body></html>`)
	}))
	defer ts.Close()

	out := newSciHubFetcher(ts.Client(), ts.URL).Fetch(context.Background(), "10.1016/j.cell.2023.01.001", filepath.Join(t.TempDir(), "p.pdf"))
	if out.Kind != types.OutcomeTransient {
		t.Fatalf("Kind = %q, want transient-error", out.Kind)
	}
	if !strings.Contains(out.Err, "CAPTCHA") {
		t.Errorf("Err = %q, want CAPTCHA mention", out.Err)
	}
}

func TestSciHubFetchFallsThroughMirrors(t *testing.T) {
	// First mirror is down, second has the paper.
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	down.Close() // immediately, so connections are refused

	var upURL string
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/pdf/paper.pdf":
			w.Write(fakePDF())
		case strings.HasPrefix(r.URL.Path, "/10."):
			fmt.Fprintf(w, `<html><iframe id="pdf" src="%s/pdf/paper.pdf"></iframe></html>`, upURL)
		default:
			http.NotFound(w, r)
		}
	}))
	defer up.Close()
	upURL = up.URL

	out := newSciHubFetcher(up.Client(), down.URL, up.URL).Fetch(context.Background(), "10.1016/j.cell.2023.01.001", filepath.Join(t.TempDir(), "p.pdf"))
	if out.Kind != types.OutcomeSuccess {
		t.Fatalf("Kind = %q (%s), want success", out.Kind, out.Err)
	}
}

func TestSciHubFetchAllMirrorsMissing(t *testing.T) {
	// Every mirror answers cleanly with no PDF: confirmed not-found.
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><p>article not found</p></body></html>`)
	}))
	defer ts.Close()

	out := newSciHubFetcher(ts.Client(), ts.URL, ts.URL).Fetch(context.Background(), "10.9999/ghost", filepath.Join(t.TempDir(), "p.pdf"))
	if out.Kind != types.OutcomeNotFound {
		t.Fatalf("Kind = %q, want not-found", out.Kind)
	}
}

func TestSciHubFetchMirrorDownIsTransient(t *testing.T) {
	// One mirror 404s the article, the other is unreachable. The
	// unreachable mirror might still have it, so the aggregate stays
	// transient.
	notFound := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer notFound.Close()

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	down.Close()

	out := newSciHubFetcher(notFound.Client(), notFound.URL, down.URL).Fetch(context.Background(), "10.9999/ghost", filepath.Join(t.TempDir(), "p.pdf"))
	if out.Kind != types.OutcomeTransient {
		t.Fatalf("Kind = %q, want transient-error", out.Kind)
	}
}

func TestSciHubFetchInvalidPayload(t *testing.T) {
	var tsURL string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/pdf/paper.pdf":
			fmt.Fprint(w, "<html>not actually a pdf</html>")
		case strings.HasPrefix(r.URL.Path, "/10."):
			fmt.Fprintf(w, `<html><embed id="pdf" src="%s/pdf/paper.pdf"></html>`, tsURL)
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()
	tsURL = ts.URL

	dest := filepath.Join(t.TempDir(), "paper.pdf")
	out := newSciHubFetcher(ts.Client(), ts.URL).Fetch(context.Background(), "10.1016/j.cell.2023.01.001", dest)
	if out.Kind != types.OutcomeInvalid {
		t.Fatalf("Kind = %q (%s), want invalid-content", out.Kind, out.Err)
	}
}
