// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sources

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// doiPattern matches normalized DOIs: "10.1145/1234567.1234568".
var doiPattern = regexp.MustCompile(`^10\.\d{4,9}/[^\s]+$`)

// doiPrefixes are stripped during normalization, longest first.
var doiPrefixes = []string{
	"https://dx.doi.org/",
	"http://dx.doi.org/",
	"https://doi.org/",
	"http://doi.org/",
	"dx.doi.org/",
	"doi.org/",
	"doi:",
}

// NormalizeDOI strips resolver URLs and scheme prefixes from a raw
// identifier and validates the remainder: "https://doi.org/10.1/x",
// "doi:10.1/x", and "10.1/x" all normalize to "10.1/x".
func NormalizeDOI(raw string) (string, error) {
	doi := strings.TrimSpace(raw)
	for _, p := range doiPrefixes {
		if len(doi) >= len(p) && strings.EqualFold(doi[:len(p)], p) {
			doi = doi[len(p):]
			break
		}
	}
	if !doiPattern.MatchString(doi) {
		return "", fmt.Errorf("not a DOI: %q", raw)
	}
	return doi, nil
}

// Slug returns the filesystem-safe filename stem for a DOI: every slash
// becomes an underscore.
func Slug(doi string) string {
	return strings.ReplaceAll(doi, "/", "_")
}

// DOIFromSlug reverses Slug. Only the first underscore is restored to a
// slash: DOI prefixes ("10.1234") never contain underscores, while DOI
// suffixes may, so the first underscore is always the prefix separator.
func DOIFromSlug(slug string) string {
	return strings.Replace(slug, "_", "/", 1)
}

// PDFPath returns the canonical download location for a DOI.
func PDFPath(papersDir, doi string) string {
	return filepath.Join(papersDir, Slug(doi)+".pdf")
}
