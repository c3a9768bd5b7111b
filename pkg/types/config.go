package types

import "time"

// HTTPConfig holds shared HTTP settings used by components that make
// network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout (default 60s).
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "papertrack/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// TrackerConfig holds settings for the processing tracker database.
type TrackerConfig struct {
	// DBPath is the SQLite database file (default "tracker/tracker.db").
	DBPath string `json:"db_path" yaml:"db_path"`
}

// AcquisitionConfig holds settings for multi-source PDF acquisition.
type AcquisitionConfig struct {
	HTTPConfig `yaml:",inline"`

	// Sources lists enabled sources in priority order. The first source in
	// the list is tried first; order is the fallback order.
	Sources []string `json:"sources" yaml:"sources"`

	// PapersDir is the directory that receives downloaded PDFs
	// (default "papers").
	PapersDir string `json:"papers_dir" yaml:"papers_dir"`

	// RetryCeiling is the per-identifier retry budget shared by transient
	// fetch errors, invalid downloads, and parse failures (default 5).
	RetryCeiling int `json:"retry_ceiling" yaml:"retry_ceiling"`

	// UnpaywallEmail is the contact address the Unpaywall API requires.
	UnpaywallEmail string `json:"unpaywall_email,omitempty" yaml:"unpaywall_email,omitempty"`

	// SemanticScholarAPIKey raises Semantic Scholar rate limits. Optional.
	SemanticScholarAPIKey string `json:"semantic_scholar_api_key,omitempty" yaml:"semantic_scholar_api_key,omitempty"`

	// SciHubMirrors lists mirror base URLs tried in order.
	SciHubMirrors []string `json:"scihub_mirrors" yaml:"scihub_mirrors"`
}

// ParseConfig holds settings for the parse stage.
type ParseConfig struct {
	// Parsers lists the required parser engines (default "fast", "grobid").
	Parsers []string `json:"parsers" yaml:"parsers"`

	// OutputDir is the directory that receives parsed documents
	// (default "parsed").
	OutputDir string `json:"output_dir" yaml:"output_dir"`

	// GrobidURL is the base URL of the GROBID service
	// (default "http://localhost:8070").
	GrobidURL string `json:"grobid_url" yaml:"grobid_url"`

	// FastImage is the container image for the fast extractor
	// (default "papertrack/fastparse:latest").
	FastImage string `json:"fast_image" yaml:"fast_image"`

	// Timeout bounds a single parser run (default 120s).
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// DispatchConfig holds settings for the worker pool.
type DispatchConfig struct {
	// Workers is the number of concurrent workers (default 4).
	Workers int `json:"workers" yaml:"workers"`

	// LeaseTTL is how long a worker may hold an identifier before another
	// worker can steal it (default 10m).
	LeaseTTL time.Duration `json:"lease_ttl" yaml:"lease_ttl"`

	// MaxPasses bounds the number of backlog rounds in one run (default 3).
	MaxPasses int `json:"max_passes" yaml:"max_passes"`

	// RatePerSecond throttles downloads across all workers (default 2).
	RatePerSecond float64 `json:"rate_per_second" yaml:"rate_per_second"`

	// RateBurst is the token bucket burst size (default 4).
	RateBurst int `json:"rate_burst" yaml:"rate_burst"`
}

// ReconcileConfig holds settings for tracker reconciliation.
type ReconcileConfig struct {
	// RemoveInvalid deletes PDFs and parse outputs that fail validation
	// instead of only reporting them (default false).
	RemoveInvalid bool `json:"remove_invalid" yaml:"remove_invalid"`
}

// ContentConfig holds settings for the parsed-document database.
type ContentConfig struct {
	// DBPath is the SQLite database file (default "tracker/papers.db").
	DBPath string `json:"db_path" yaml:"db_path"`
}

// LogConfig holds logging settings. Structured logs go to stderr as text
// and, when File is set, to the file as JSON.
type LogConfig struct {
	// File is the JSON log file path; empty disables the file output.
	File string `json:"file,omitempty" yaml:"file,omitempty"`

	// Level is the minimum level: debug, info, warn, or error (default info).
	Level string `json:"level" yaml:"level"`
}

// Config groups all component configurations.
type Config struct {
	Tracker     TrackerConfig     `json:"tracker" yaml:"tracker"`
	Acquisition AcquisitionConfig `json:"acquisition" yaml:"acquisition"`
	Parse       ParseConfig       `json:"parse" yaml:"parse"`
	Dispatch    DispatchConfig    `json:"dispatch" yaml:"dispatch"`
	Reconcile   ReconcileConfig   `json:"reconcile" yaml:"reconcile"`
	Content     ContentConfig     `json:"content" yaml:"content"`
	Log         LogConfig         `json:"log" yaml:"log"`
}
