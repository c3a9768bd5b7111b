// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package parse

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/meshintel/papertrack/pkg/types"
)

const defaultGrobidURL = "http://localhost:8070"

// GrobidEngine parses PDFs through a running GROBID service and reduces
// the returned TEI XML to a document.
type GrobidEngine struct {
	client  *http.Client
	baseURL string
}

// NewGrobidEngine creates the engine. An empty baseURL selects the
// default local service address.
func NewGrobidEngine(client *http.Client, baseURL string) *GrobidEngine {
	if baseURL == "" {
		baseURL = defaultGrobidURL
	}
	return &GrobidEngine{client: client, baseURL: strings.TrimSuffix(baseURL, "/")}
}

func (e *GrobidEngine) Name() string { return types.ParserGrobid }

// Alive checks the service health endpoint. Callers use it to fail fast
// before queueing a batch against a service that is down.
func (e *GrobidEngine) Alive(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/api/isalive", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("GROBID health check: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GROBID health check returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// TEI XML structures, reduced to the fields the document needs.
type teiDocument struct {
	Title        string   `xml:"teiHeader>fileDesc>titleStmt>title"`
	AbstractPs   []string `xml:"teiHeader>profileDesc>abstract>p"`
	AbstractDivs []string `xml:"teiHeader>profileDesc>abstract>div>p"`
	BodyDivs     []teiDiv `xml:"text>body>div"`
}

type teiDiv struct {
	Head       string   `xml:"head"`
	Paragraphs []string `xml:"p"`
}

// Parse posts the PDF to the fulltext endpoint and reduces the TEI
// response.
func (e *GrobidEngine) Parse(ctx context.Context, pdfPath string) (types.Document, error) {
	f, err := os.Open(pdfPath)
	if err != nil {
		return types.Document{}, fmt.Errorf("opening PDF %s: %w", pdfPath, err)
	}
	defer f.Close()

	var body strings.Builder
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("input", filepath.Base(pdfPath))
	if err != nil {
		return types.Document{}, fmt.Errorf("building multipart request: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return types.Document{}, fmt.Errorf("reading PDF %s: %w", pdfPath, err)
	}
	if err := mw.WriteField("consolidateHeader", "1"); err != nil {
		return types.Document{}, fmt.Errorf("building multipart request: %w", err)
	}
	if err := mw.Close(); err != nil {
		return types.Document{}, fmt.Errorf("building multipart request: %w", err)
	}

	url := e.baseURL + "/api/processFulltextDocument"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(body.String()))
	if err != nil {
		return types.Document{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/xml")

	resp, err := e.client.Do(req)
	if err != nil {
		return types.Document{}, fmt.Errorf("GROBID request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.Document{}, fmt.Errorf("GROBID returned HTTP %d", resp.StatusCode)
	}

	var tei teiDocument
	if err := xml.NewDecoder(resp.Body).Decode(&tei); err != nil {
		return types.Document{}, fmt.Errorf("parsing TEI response: %w", err)
	}

	doc := reduceTEI(tei)
	doc.ParsedAt = time.Now().UTC()
	if doc.Body == "" && doc.Abstract == "" {
		return types.Document{}, fmt.Errorf("GROBID extracted no text from %s", pdfPath)
	}
	return doc, nil
}

// reduceTEI flattens the TEI structure into a document: abstract
// paragraphs joined, body sections joined with their headings.
func reduceTEI(tei teiDocument) types.Document {
	doc := types.Document{
		Parser: types.ParserGrobid,
		Title:  strings.TrimSpace(tei.Title),
	}

	abstract := append([]string{}, tei.AbstractPs...)
	abstract = append(abstract, tei.AbstractDivs...)
	doc.Abstract = joinParagraphs(abstract, " ")

	var sections []string
	for _, div := range tei.BodyDivs {
		var b strings.Builder
		if head := strings.TrimSpace(div.Head); head != "" {
			b.WriteString(head)
			b.WriteString("\n\n")
		}
		b.WriteString(joinParagraphs(div.Paragraphs, "\n\n"))
		if s := strings.TrimSpace(b.String()); s != "" {
			sections = append(sections, s)
		}
	}
	doc.Body = strings.Join(sections, "\n\n")
	return doc
}

func joinParagraphs(ps []string, sep string) string {
	var kept []string
	for _, p := range ps {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
