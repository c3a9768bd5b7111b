// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package content persists parsed documents in the downstream SQLite
// database. The tracker records that work happened; this store holds the
// work product. Reconciliation treats membership here as evidence that a
// document really was ingested.
package content

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/meshintel/papertrack/pkg/types"
)

// Store manages the parsed-documents SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the content database at cfg.DBPath, creating the
// schema when missing. Workers write here concurrently, so the connection
// uses WAL with a busy timeout.
func Open(cfg types.ContentConfig) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating content database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening content database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating content schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			doi TEXT PRIMARY KEY,
			slug TEXT NOT NULL,
			parser TEXT NOT NULL,
			title TEXT,
			abstract TEXT,
			body TEXT,
			pages INTEGER,
			parsed_at TEXT,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_parser ON documents(parser)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_slug ON documents(slug)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Upsert stores a parsed document, replacing any earlier parse of the
// same DOI.
func (s *Store) Upsert(ctx context.Context, doc types.Document) error {
	if doc.DOI == "" {
		return fmt.Errorf("document has no DOI")
	}

	parsedAt := ""
	if !doc.ParsedAt.IsZero() {
		parsedAt = doc.ParsedAt.UTC().Format(time.RFC3339Nano)
	}
	updatedAt := time.Now().UTC().Format(time.RFC3339Nano)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (doi, slug, parser, title, abstract, body, pages, parsed_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(doi) DO UPDATE SET
			slug=excluded.slug, parser=excluded.parser, title=excluded.title,
			abstract=excluded.abstract, body=excluded.body, pages=excluded.pages,
			parsed_at=excluded.parsed_at, updated_at=excluded.updated_at`,
		doc.DOI, doc.Slug, doc.Parser, doc.Title, doc.Abstract, doc.Body, doc.Pages, parsedAt, updatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting document %s: %w", doc.DOI, err)
	}
	return nil
}

// Has reports whether a document for the DOI has been ingested.
func (s *Store) Has(ctx context.Context, doi string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM documents WHERE doi = ?`, doi,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking document %s: %w", doi, err)
	}
	return true, nil
}

// Get returns the stored document for the DOI. The boolean reports
// whether a document was found.
func (s *Store) Get(ctx context.Context, doi string) (types.Document, bool, error) {
	var (
		doc      types.Document
		parsedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT doi, slug, parser, title, abstract, body, pages, parsed_at
		 FROM documents WHERE doi = ?`, doi,
	).Scan(&doc.DOI, &doc.Slug, &doc.Parser, &doc.Title, &doc.Abstract, &doc.Body, &doc.Pages, &parsedAt)
	if err == sql.ErrNoRows {
		return types.Document{}, false, nil
	}
	if err != nil {
		return types.Document{}, false, fmt.Errorf("reading document %s: %w", doi, err)
	}
	if parsedAt != "" {
		if t, perr := time.Parse(time.RFC3339Nano, parsedAt); perr == nil {
			doc.ParsedAt = t
		}
	}
	return doc, true, nil
}

// Count returns the number of ingested documents.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return n, nil
}
