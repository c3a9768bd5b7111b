// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// OutcomeKind classifies the result of a single fetch attempt against a
// single source.
//
//   - success: a valid PDF landed on disk.
//   - not-found: the source answered definitively that it does not hold the
//     document. Confirmed negatives are not retried against the same source
//     and do not consume retry budget.
//   - transient-error: timeout, rate limit, or server error. The source
//     remains eligible for a later pass.
//   - invalid-content: the source returned bytes that are not a usable PDF
//     (HTML landing page, truncated file). Counts against the retry budget.
type OutcomeKind string

const (
	OutcomeSuccess   OutcomeKind = "success"
	OutcomeNotFound  OutcomeKind = "not-found"
	OutcomeTransient OutcomeKind = "transient-error"
	OutcomeInvalid   OutcomeKind = "invalid-content"
)

// FetchOutcome is the classified result of one source attempt.
type FetchOutcome struct {
	// Source names the source that was tried.
	Source string `json:"source" yaml:"source"`

	// Kind classifies the result.
	Kind OutcomeKind `json:"kind" yaml:"kind"`

	// PDFPath is the local path of the downloaded file. Set only on success.
	PDFPath string `json:"pdf_path,omitempty" yaml:"pdf_path,omitempty"`

	// URL is the resolved download URL, recorded for the audit log when known.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`

	// Err describes the failure for transient-error and invalid-content.
	Err string `json:"error,omitempty" yaml:"error,omitempty"`
}

// ParseOutcome is the result of running one parser against a downloaded PDF.
type ParseOutcome struct {
	// Parser names the engine that ran.
	Parser string `json:"parser" yaml:"parser"`

	// OK reports whether parsing produced a document.
	OK bool `json:"ok" yaml:"ok"`

	// OutputPath is where the parsed document was written on success.
	OutputPath string `json:"output_path,omitempty" yaml:"output_path,omitempty"`

	// Ingested reports whether the document was stored in the content
	// database as part of this outcome.
	Ingested bool `json:"ingested,omitempty" yaml:"ingested,omitempty"`

	// Err describes the failure when OK is false.
	Err string `json:"error,omitempty" yaml:"error,omitempty"`
}
