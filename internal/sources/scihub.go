// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/meshintel/papertrack/pkg/types"
)

// defaultSciHubMirrors is tried in order when the config lists none.
var defaultSciHubMirrors = []string{
	"https://sci-hub.se",
	"https://sci-hub.st",
	"https://sci-hub.ru",
}

// onclickHrefPattern pulls the target out of download buttons like
// onclick="location.href='//mirror/path.pdf?download=true'".
var onclickHrefPattern = regexp.MustCompile(`location\.href='([^']+)'`)

type scihubFetcher struct {
	client    *http.Client
	userAgent string
	mirrors   []string
}

func (f *scihubFetcher) Name() string { return types.SourceSciHub }

// Fetch walks the mirror list, scraping each article page for an embedded
// PDF URL. A mirror that answers but has no PDF is a not-found vote; a
// mirror that is down or serving a CAPTCHA is a transient vote. The
// aggregate is not-found only if every mirror answered without a PDF.
func (f *scihubFetcher) Fetch(ctx context.Context, doi, destPath string) types.FetchOutcome {
	out := types.FetchOutcome{Source: f.Name()}

	sawTransient := false
	var lastDetail string
	for _, mirror := range f.mirrors {
		pdfURL, kind, detail := f.scrapeMirror(ctx, mirror, doi)
		switch kind {
		case types.OutcomeSuccess:
			dlKind, dlDetail := fetchToFile(ctx, f.client, pdfURL, destPath, f.userAgent)
			if dlKind == types.OutcomeSuccess {
				out.Kind = types.OutcomeSuccess
				out.PDFPath = destPath
				out.URL = pdfURL
				return out
			}
			if dlKind == types.OutcomeInvalid {
				out.Kind = types.OutcomeInvalid
				out.Err = dlDetail
				return out
			}
			sawTransient = true
			lastDetail = dlDetail
		case types.OutcomeTransient:
			sawTransient = true
			lastDetail = detail
		case types.OutcomeNotFound:
			// keep trying remaining mirrors
		}
	}

	if sawTransient {
		out.Kind = types.OutcomeTransient
		out.Err = lastDetail
		return out
	}
	out.Kind = types.OutcomeNotFound
	return out
}

// scrapeMirror loads mirror/doi and hunts for the PDF URL in the usual
// places: the embed/iframe viewer, download buttons, and plain links.
func (f *scihubFetcher) scrapeMirror(ctx context.Context, mirror, doi string) (string, types.OutcomeKind, string) {
	pageURL := strings.TrimSuffix(mirror, "/") + "/" + doi

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", types.OutcomeTransient, fmt.Sprintf("creating request: %v", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", types.OutcomeTransient, fmt.Sprintf("%s: %v", mirror, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return "", types.OutcomeNotFound, ""
	default:
		return "", types.OutcomeTransient, fmt.Sprintf("%s returned HTTP %d", mirror, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", types.OutcomeTransient, fmt.Sprintf("parsing %s page: %v", mirror, err)
	}

	if strings.Contains(strings.ToLower(doc.Text()), "captcha") {
		return "", types.OutcomeTransient, fmt.Sprintf("%s served a CAPTCHA", mirror)
	}

	pdfURL := findPDFURL(doc)
	if pdfURL == "" {
		return "", types.OutcomeNotFound, ""
	}
	return resolvePDFURL(pdfURL, pageURL), types.OutcomeSuccess, ""
}

// findPDFURL tries the PDF locations Sci-Hub pages have used over the
// years, most common first.
func findPDFURL(doc *goquery.Document) string {
	if src, ok := doc.Find("embed#pdf").First().Attr("src"); ok && src != "" {
		return src
	}
	if src, ok := doc.Find("iframe#pdf").First().Attr("src"); ok && src != "" {
		return src
	}
	if src, ok := doc.Find("embed").First().Attr("src"); ok && src != "" {
		return src
	}
	if src, ok := doc.Find("iframe").First().Attr("src"); ok && src != "" {
		return src
	}

	pdfURL := ""
	doc.Find("button[onclick], a[onclick]").EachWithBreak(func(i int, s *goquery.Selection) bool {
		onclick, _ := s.Attr("onclick")
		if m := onclickHrefPattern.FindStringSubmatch(onclick); m != nil {
			pdfURL = m[1]
			return false
		}
		return true
	})
	if pdfURL != "" {
		return pdfURL
	}

	doc.Find("a[href]").EachWithBreak(func(i int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		if strings.Contains(strings.ToLower(href), ".pdf") {
			pdfURL = href
			return false
		}
		return true
	})
	return pdfURL
}

// resolvePDFURL makes a scraped URL absolute. Sci-Hub emits
// protocol-relative ("//mirror/...") and page-relative forms.
func resolvePDFURL(pdfURL, pageURL string) string {
	if strings.HasPrefix(pdfURL, "http://") || strings.HasPrefix(pdfURL, "https://") {
		return pdfURL
	}
	if strings.HasPrefix(pdfURL, "//") {
		return "https:" + pdfURL
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return pdfURL
	}
	ref, err := url.Parse(pdfURL)
	if err != nil {
		return pdfURL
	}
	return base.ResolveReference(ref).String()
}
