// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package parse runs PDF parsers against downloaded papers and manages
// their JSON outputs. Two engines are supported: a fast layout-based
// extractor running in a container, and a GROBID service producing
// structured TEI. The controller decides which engines still need to run
// for a given record and classifies each attempt.
package parse

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/meshintel/papertrack/pkg/types"
)

// Engine runs one PDF parser and produces a normalized document.
type Engine interface {
	// Name returns the parser name as recorded in the tracker.
	Name() string

	// Parse extracts a document from the PDF at pdfPath.
	Parse(ctx context.Context, pdfPath string) (types.Document, error)
}

// Output shape floors. Anything below these is a failed parse that
// slipped through, not a document.
const (
	minOutputSize = 10
	minOutputText = 50
)

// OutputPath returns the canonical output file for a parser and slug.
// The fast engine's suffix keeps the two parsers' outputs side by side
// in one directory.
func OutputPath(outputDir, parser, slug string) string {
	if parser == types.ParserFast {
		return filepath.Join(outputDir, slug+"_fast.json")
	}
	return filepath.Join(outputDir, slug+".json")
}

// SlugFromPDF derives the identifier slug from a PDF path.
func SlugFromPDF(pdfPath string) string {
	base := filepath.Base(pdfPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ValidateOutput checks that a parser output file holds a real document:
// minimum size, a non-empty JSON object, and enough extracted text to be
// useful. Reconciliation uses this to decide whether an output on disk
// counts as parser success.
func ValidateOutput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}
	if info.Size() < minOutputSize {
		return fmt.Errorf("file too small (%d bytes)", info.Size())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}

	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("not valid JSON: %w", err)
	}
	if len(obj) == 0 {
		return fmt.Errorf("empty JSON object")
	}

	var doc types.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("not a document: %w", err)
	}
	text := strings.TrimSpace(doc.Title) + strings.TrimSpace(doc.Abstract) + strings.TrimSpace(doc.Body)
	if len(text) < minOutputText {
		return fmt.Errorf("document text too short (%d chars)", len(text))
	}
	return nil
}

// ReadOutput loads a document back from a parser output file.
func ReadOutput(path string) (types.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Document{}, fmt.Errorf("reading output: %w", err)
	}
	var doc types.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return types.Document{}, fmt.Errorf("parsing output: %w", err)
	}
	return doc, nil
}

// writeOutput writes the document JSON through a temporary file so a
// crash mid-write never leaves a half-document that reconciliation
// would misread.
func writeOutput(doc types.Document, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling document: %w", err)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".parse-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	_, writeErr := tmpFile.Write(data)
	closeErr := tmpFile.Close()
	if writeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing output: %w", writeErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
