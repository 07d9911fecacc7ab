package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func strPtr(s string) *string { return &s }

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestUpsertUserIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.UpsertUser(ctx, "tg:42", strPtr("Alice"))
	require.NoError(t, err)
	second, err := s.UpsertUser(ctx, "tg:42", strPtr("Alice"))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)

	var count int
	err = s.db.QueryRow("SELECT COUNT(*) FROM users").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestUpsertUserRefreshesDisplayName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertUser(ctx, "tg:42", strPtr("Alice"))
	require.NoError(t, err)

	updated, err := s.UpsertUser(ctx, "tg:42", strPtr("Alice B."))
	require.NoError(t, err)
	require.NotNil(t, updated.DisplayName)
	assert.Equal(t, "Alice B.", *updated.DisplayName)
}

func TestUpsertUserKeepsNameWhenAbsent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertUser(ctx, "tg:42", strPtr("Alice"))
	require.NoError(t, err)

	// nil and empty display names must not clobber the stored one.
	user, err := s.UpsertUser(ctx, "tg:42", nil)
	require.NoError(t, err)
	require.NotNil(t, user.DisplayName)
	assert.Equal(t, "Alice", *user.DisplayName)

	user, err = s.UpsertUser(ctx, "tg:42", strPtr(""))
	require.NoError(t, err)
	require.NotNil(t, user.DisplayName)
	assert.Equal(t, "Alice", *user.DisplayName)
}

func TestConcurrentFirstContactCreatesOneUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	done := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := s.UpsertUser(ctx, "web:abc", strPtr("Bob"))
			done <- err
		}()
	}
	require.NoError(t, <-done)
	require.NoError(t, <-done)

	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM users WHERE external_id = 'web:abc'").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestAppendTurnRejectsInvalidInput(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user, err := s.UpsertUser(ctx, "tg:1", nil)
	require.NoError(t, err)

	_, err = s.AppendTurn(ctx, user.ID, RoleUser, "")
	assert.ErrorIs(t, err, ErrEmptyContent)

	_, err = s.AppendTurn(ctx, user.ID, "model", "hello")
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestRecentTurnsReturnsNewestOldestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user, err := s.UpsertUser(ctx, "tg:1", nil)
	require.NoError(t, err)

	for _, content := range []string{"A", "B", "C"} {
		_, err := s.AppendTurn(ctx, user.ID, RoleUser, content)
		require.NoError(t, err)
	}

	turns, err := s.RecentTurns(ctx, user.ID, 2)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "B", turns[0].Content)
	assert.Equal(t, "C", turns[1].Content)
}

func TestRecentTurnsZeroLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user, err := s.UpsertUser(ctx, "tg:1", nil)
	require.NoError(t, err)
	_, err = s.AppendTurn(ctx, user.ID, RoleUser, "hello")
	require.NoError(t, err)

	turns, err := s.RecentTurns(ctx, user.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestDeleteUserCascadesToTurns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user, err := s.UpsertUser(ctx, "tg:1", nil)
	require.NoError(t, err)
	_, err = s.AppendTurn(ctx, user.ID, RoleUser, "hello")
	require.NoError(t, err)

	require.NoError(t, s.DeleteUser(ctx, user.ID))

	var count int
	err = s.db.QueryRow("SELECT COUNT(*) FROM turns WHERE user_id = ?", user.ID).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestAllDocumentChunksToleratesCorruptEmbedding(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateDocumentChunk(ctx, strPtr("Hours"), "9am-5pm", []float32{1, 0})
	require.NoError(t, err)

	// Simulate a corrupt row written by an older ingestion run.
	_, err = s.db.Exec(
		"INSERT INTO document_chunks (title, content, embedding, created_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)",
		"Broken", "garbage", "not-json")
	require.NoError(t, err)

	chunks, err := s.AllDocumentChunks(ctx)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Equal(t, []float32{1, 0}, chunks[0].Embedding)
	assert.Nil(t, chunks[1].Embedding)
}

func TestIndexDocumentsFromDir(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "hours.txt"), "9am-5pm")
	writeFile(t, filepath.Join(dir, "prices.md"), "From $10")
	writeFile(t, filepath.Join(dir, "ignored.json"), "{}")

	embedder := func(ctx context.Context, text string) ([]float32, error) {
		return []float32{float32(len(text)), 1}, nil
	}

	count, err := s.IndexDocumentsFromDir(ctx, dir, embedder)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	chunks, err := s.AllDocumentChunks(ctx)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	require.NotNil(t, chunks[0].Title)
	assert.Equal(t, "hours.txt", *chunks[0].Title)
	assert.Equal(t, "9am-5pm", chunks[0].Content)
}
