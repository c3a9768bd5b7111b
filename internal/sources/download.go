// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sources

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/meshintel/papertrack/internal/httputil"
	"github.com/meshintel/papertrack/pkg/types"
)

// minPDFSize is the smallest plausible paper PDF. Landing pages and error
// bodies saved by mistake are almost always smaller.
const minPDFSize = 1024

// ValidatePDF checks that the file at path looks like a complete PDF:
// at least minPDFSize bytes, a %PDF- header, and a %%EOF marker within
// the final 4096 bytes.
func ValidatePDF(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}
	if info.Size() < minPDFSize {
		return fmt.Errorf("file too small (%d bytes)", info.Size())
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	header := make([]byte, 5)
	if _, err := io.ReadFull(f, header); err != nil {
		return fmt.Errorf("reading header: %w", err)
	}
	if !bytes.Equal(header, []byte("%PDF-")) {
		return fmt.Errorf("missing %%PDF- header")
	}

	tailLen := int64(4096)
	off := info.Size() - tailLen
	if off < 0 {
		off = 0
		tailLen = info.Size()
	}
	tail := make([]byte, tailLen)
	if _, err := f.ReadAt(tail, off); err != nil {
		return fmt.Errorf("reading tail: %w", err)
	}
	if !bytes.Contains(tail, []byte("%%EOF")) {
		return fmt.Errorf("missing %%%%EOF marker")
	}
	return nil
}

// fetchToFile downloads rawURL to destPath through a temporary file and
// validates the payload. The returned kind classifies the result; the
// string describes the failure for transient and invalid outcomes.
//
// Rate-limit and overload responses are waited out by the retry helper
// before a transient classification is made.
func fetchToFile(ctx context.Context, client *http.Client, rawURL, destPath, userAgent string) (types.OutcomeKind, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return types.OutcomeTransient, fmt.Sprintf("creating request: %v", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/pdf")

	resp, err := httputil.DoWithRetry(ctx, client, req, 2)
	if err != nil {
		return types.OutcomeTransient, fmt.Sprintf("HTTP request: %v", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return types.OutcomeNotFound, ""
	default:
		return types.OutcomeTransient, fmt.Sprintf("HTTP %d from %s", resp.StatusCode, rawURL)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return types.OutcomeTransient, fmt.Sprintf("creating directory: %v", err)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".papertrack-*.tmp")
	if err != nil {
		return types.OutcomeTransient, fmt.Sprintf("creating temp file: %v", err)
	}
	tmpPath := tmpFile.Name()

	_, copyErr := io.Copy(tmpFile, resp.Body)
	closeErr := tmpFile.Close()
	if copyErr != nil {
		os.Remove(tmpPath)
		return types.OutcomeTransient, fmt.Sprintf("writing download: %v", copyErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return types.OutcomeTransient, fmt.Sprintf("closing temp file: %v", closeErr)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return types.OutcomeTransient, fmt.Sprintf("renaming temp file: %v", err)
	}

	if err := ValidatePDF(destPath); err != nil {
		os.Remove(destPath)
		return types.OutcomeInvalid, fmt.Sprintf("payload from %s: %v", rawURL, err)
	}
	return types.OutcomeSuccess, ""
}
