// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package parse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/meshintel/papertrack/internal/container"
	"github.com/meshintel/papertrack/pkg/types"
)

const defaultFastImage = "papertrack/fastparse:latest"

// FastEngine extracts text by piping the PDF through a containerized
// layout parser. It depends on a container.Runtime (docker or podman)
// injected at construction time.
type FastEngine struct {
	runtime container.Runtime
	image   string
}

// NewFastEngine creates the fast engine, verifying that the parser image
// exists locally before returning. An empty image selects the default.
func NewFastEngine(rt container.Runtime, image string) (*FastEngine, error) {
	if image == "" {
		image = defaultFastImage
	}
	if err := rt.ImageExists(image); err != nil {
		return nil, fmt.Errorf("fast parser image not available in %s: %w", rt.Name(), err)
	}
	return &FastEngine{runtime: rt, image: image}, nil
}

func (e *FastEngine) Name() string { return types.ParserFast }

// fastResult mirrors the JSON the parser container emits on stdout.
type fastResult struct {
	Metadata struct {
		Title     string `json:"title"`
		PageCount int    `json:"page_count"`
	} `json:"metadata"`
	StructuredText struct {
		Sections []struct {
			Title   string   `json:"title"`
			Content []string `json:"content"`
		} `json:"sections"`
		FullText  string `json:"full_text"`
		PageCount int    `json:"page_count"`
	} `json:"structured_text"`
}

// Parse pipes the PDF through the parser container and reduces the
// emitted structure to a document.
func (e *FastEngine) Parse(ctx context.Context, pdfPath string) (types.Document, error) {
	f, err := os.Open(pdfPath)
	if err != nil {
		return types.Document{}, fmt.Errorf("opening PDF %s: %w", pdfPath, err)
	}
	defer f.Close()

	var out bytes.Buffer
	if err := e.runtime.Run(ctx, e.image, f, &out); err != nil {
		return types.Document{}, fmt.Errorf("running fast parser on %s: %w", pdfPath, err)
	}
	if out.Len() == 0 {
		return types.Document{}, fmt.Errorf("fast parser produced empty output for %s", pdfPath)
	}

	var result fastResult
	if err := json.Unmarshal(out.Bytes(), &result); err != nil {
		return types.Document{}, fmt.Errorf("parsing fast parser output for %s: %w", pdfPath, err)
	}

	doc := types.Document{
		Parser:   types.ParserFast,
		Title:    strings.TrimSpace(result.Metadata.Title),
		Body:     strings.TrimSpace(result.StructuredText.FullText),
		Pages:    result.StructuredText.PageCount,
		ParsedAt: time.Now().UTC(),
	}
	if doc.Pages == 0 {
		doc.Pages = result.Metadata.PageCount
	}

	// The layout parser does not label the abstract; take the content of
	// a section titled "Abstract" when one was detected.
	for _, sec := range result.StructuredText.Sections {
		if strings.EqualFold(strings.TrimSpace(sec.Title), "abstract") {
			doc.Abstract = strings.TrimSpace(strings.Join(sec.Content, " "))
			break
		}
	}

	if doc.Body == "" {
		return types.Document{}, fmt.Errorf("fast parser extracted no text from %s", pdfPath)
	}
	return doc, nil
}
