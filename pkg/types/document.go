// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Document is the parsed representation of a paper produced by a parser
// engine. Every engine reduces its native output to this shape; the content
// database stores one document per identifier, keeping whichever parser
// wrote last.
type Document struct {
	// DOI is the normalized identifier of the source paper.
	DOI string `json:"doi" yaml:"doi"`

	// Slug is the filesystem-safe form of the DOI.
	Slug string `json:"slug" yaml:"slug"`

	// Parser names the engine that produced this document.
	Parser string `json:"parser" yaml:"parser"`

	// Title is the paper title, empty when the engine could not find one.
	Title string `json:"title,omitempty" yaml:"title,omitempty"`

	// Abstract is the paper abstract.
	Abstract string `json:"abstract,omitempty" yaml:"abstract,omitempty"`

	// Body is the extracted full text.
	Body string `json:"body" yaml:"body"`

	// Pages is the page count when the engine reports one.
	Pages int `json:"pages,omitempty" yaml:"pages,omitempty"`

	// ParsedAt is when the engine finished.
	ParsedAt time.Time `json:"parsed_at" yaml:"parsed_at"`
}
