// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package parse

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// fakeRuntime implements container.Runtime for testing. Run consumes
// stdin and writes canned output.
type fakeRuntime struct {
	imageErr error
	output   string
	runErr   error

	gotImage string
	gotInput []byte
}

func (f *fakeRuntime) Name() string { return "fake" }

func (f *fakeRuntime) Available() bool { return true }

func (f *fakeRuntime) ImageExists(image string) error { return f.imageErr }

func (f *fakeRuntime) Run(_ context.Context, image string, stdin io.Reader, stdout io.Writer) error {
	f.gotImage = image
	f.gotInput, _ = io.ReadAll(stdin)
	if f.runErr != nil {
		return f.runErr
	}
	_, err := io.WriteString(stdout, f.output)
	return err
}

const sampleFastJSON = `{
  "metadata": {"doi": "10.1234/example.5", "title": "Attention Is All You Need", "page_count": 11},
  "structured_text": {
    "sections": [
      {"title": "Abstract", "content": ["The dominant sequence transduction models are based on recurrent networks."]},
      {"title": "Introduction", "content": ["Recurrent neural networks have long dominated sequence modeling."]}
    ],
    "full_text": "The dominant sequence transduction models are based on recurrent networks.\n\nRecurrent neural networks have long dominated sequence modeling.",
    "page_count": 11
  }
}`

// writePDF creates a placeholder PDF file; the fake runtime never
// inspects the bytes.
func writePDF(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "10.1234_example.5.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4 fake"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNewFastEngineDefaultsImage(t *testing.T) {
	rt := &fakeRuntime{}
	eng, err := NewFastEngine(rt, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if eng.image != defaultFastImage {
		t.Errorf("image = %q, want %q", eng.image, defaultFastImage)
	}
}

func TestNewFastEngineMissingImage(t *testing.T) {
	rt := &fakeRuntime{imageErr: errors.New("no such image")}
	if _, err := NewFastEngine(rt, "custom:latest"); err == nil {
		t.Fatal("expected error when image is missing")
	}
}

func TestFastParse(t *testing.T) {
	rt := &fakeRuntime{output: sampleFastJSON}
	eng, err := NewFastEngine(rt, "custom:latest")
	if err != nil {
		t.Fatal(err)
	}

	doc, err := eng.Parse(context.Background(), writePDF(t))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if rt.gotImage != "custom:latest" {
		t.Errorf("ran image %q, want custom:latest", rt.gotImage)
	}
	if string(rt.gotInput) != "%PDF-1.4 fake" {
		t.Errorf("PDF bytes not piped to container, got %q", rt.gotInput)
	}
	if doc.Title != "Attention Is All You Need" {
		t.Errorf("title = %q", doc.Title)
	}
	if !strings.Contains(doc.Abstract, "dominant sequence transduction") {
		t.Errorf("abstract not taken from Abstract section: %q", doc.Abstract)
	}
	if !strings.Contains(doc.Body, "Recurrent neural networks") {
		t.Errorf("body missing full text: %q", doc.Body)
	}
	if doc.Pages != 11 {
		t.Errorf("pages = %d, want 11", doc.Pages)
	}
	if doc.ParsedAt.IsZero() {
		t.Error("ParsedAt not set")
	}
}

func TestFastParseFailures(t *testing.T) {
	tests := []struct {
		name    string
		rt      *fakeRuntime
		wantErr string
	}{
		{
			name:    "container run fails",
			rt:      &fakeRuntime{runErr: errors.New("exit status 137")},
			wantErr: "running fast parser",
		},
		{
			name:    "empty output",
			rt:      &fakeRuntime{output: ""},
			wantErr: "empty output",
		},
		{
			name:    "garbage output",
			rt:      &fakeRuntime{output: "Segmentation fault"},
			wantErr: "parsing fast parser output",
		},
		{
			name:    "no extracted text",
			rt:      &fakeRuntime{output: `{"metadata":{"title":"T"},"structured_text":{"full_text":""}}`},
			wantErr: "extracted no text",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng, err := NewFastEngine(tt.rt, "custom:latest")
			if err != nil {
				t.Fatal(err)
			}
			_, err = eng.Parse(context.Background(), writePDF(t))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestFastParseMissingPDF(t *testing.T) {
	eng, err := NewFastEngine(&fakeRuntime{}, "custom:latest")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Parse(context.Background(), filepath.Join(t.TempDir(), "gone.pdf")); err == nil {
		t.Fatal("expected error for missing PDF")
	}
}
