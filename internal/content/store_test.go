// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package content

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshintel/papertrack/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(types.ContentConfig{DBPath: filepath.Join(t.TempDir(), "papers.db")})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleDocument() types.Document {
	return types.Document{
		DOI:      "10.1145/1234567.1234568",
		Slug:     "10.1145_1234567.1234568",
		Parser:   types.ParserFast,
		Title:    "A Study of Studies",
		Abstract: "We study the studying of studies.",
		Body:     "Introduction\n\nStudies have long been studied.",
		Pages:    12,
		ParsedAt: time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC),
	}
}

func TestStoreUpsertAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := sampleDocument()
	require.NoError(t, s.Upsert(ctx, doc))

	got, ok, err := s.Get(ctx, doc.DOI)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, doc.Title, got.Title)
	assert.Equal(t, doc.Abstract, got.Abstract)
	assert.Equal(t, doc.Body, got.Body)
	assert.Equal(t, doc.Pages, got.Pages)
	assert.Equal(t, doc.Parser, got.Parser)
	assert.True(t, doc.ParsedAt.Equal(got.ParsedAt), "ParsedAt = %v, want %v", got.ParsedAt, doc.ParsedAt)
}

func TestStoreGetMissing(t *testing.T) {
	s := newTestStore(t)

	_, ok, err := s.Get(context.Background(), "10.9999/absent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreUpsertReplaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := sampleDocument()
	require.NoError(t, s.Upsert(ctx, doc))

	doc.Parser = types.ParserGrobid
	doc.Body = "A much richer body from the structured parser."
	require.NoError(t, s.Upsert(ctx, doc))

	got, ok, err := s.Get(ctx, doc.DOI)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, types.ParserGrobid, got.Parser)
	assert.Equal(t, doc.Body, got.Body)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "replacing upsert must not add rows")
}

func TestStoreUpsertRequiresDOI(t *testing.T) {
	s := newTestStore(t)

	err := s.Upsert(context.Background(), types.Document{Slug: "no-doi"})
	require.Error(t, err)
}

func TestStoreHas(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ok, err := s.Has(ctx, "10.1145/1234567.1234568")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Upsert(ctx, sampleDocument()))

	ok, err = s.Has(ctx, "10.1145/1234567.1234568")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStoreCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	for i, doi := range []string{"10.1/a", "10.2/b", "10.3/c"} {
		doc := sampleDocument()
		doc.DOI = doi
		doc.Pages = i
		require.NoError(t, s.Upsert(ctx, doc))
	}

	n, err = s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
