package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

var (
	ErrEmptyContent = errors.New("turn content must not be empty")
	ErrInvalidRole  = errors.New("turn role must be one of system, user, assistant")
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	// Required for ON DELETE CASCADE to take effect.
	if _, err = db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS users (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        external_id TEXT UNIQUE NOT NULL,
        display_name TEXT,
        created_at DATETIME NOT NULL,
        updated_at DATETIME NOT NULL
    );

    CREATE TABLE IF NOT EXISTS turns (
        id TEXT PRIMARY KEY, -- UUID
        user_id INTEGER NOT NULL,
        role TEXT NOT NULL CHECK (role IN ('system', 'user', 'assistant')),
        content TEXT NOT NULL CHECK (content <> ''),
        created_at DATETIME NOT NULL,
        FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
    );

    CREATE INDEX IF NOT EXISTS idx_turns_user_created ON turns (user_id, created_at);

    CREATE TABLE IF NOT EXISTS document_chunks (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        title TEXT,
        content TEXT NOT NULL,
        embedding TEXT NOT NULL, -- JSON-encoded []float32
        created_at DATETIME NOT NULL
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

// User methods

// UpsertUser resolves an external identifier to a durable user record,
// creating it on first contact. The insert-or-update runs as a single
// statement against the unique external_id column, so two concurrent
// first contacts cannot create two rows. A non-empty display name that
// differs from the stored one replaces it (last write wins); an absent
// or empty one leaves the stored value alone.
func (s *SQLiteStore) UpsertUser(ctx context.Context, externalID string, displayName *string) (*User, error) {
	if externalID == "" {
		return nil, fmt.Errorf("external id must not be empty")
	}

	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO users (external_id, display_name, created_at, updated_at)
        VALUES (?, ?, ?, ?)
        ON CONFLICT(external_id) DO UPDATE SET
            display_name = CASE
                WHEN excluded.display_name IS NOT NULL AND excluded.display_name <> ''
                THEN excluded.display_name
                ELSE users.display_name
            END,
            updated_at = excluded.updated_at`,
		externalID, displayName, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	return s.GetUserByExternalID(ctx, externalID)
}

func (s *SQLiteStore) GetUserByExternalID(ctx context.Context, externalID string) (*User, error) {
	var user User
	var displayName sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT id, external_id, display_name, created_at, updated_at FROM users WHERE external_id = ?",
		externalID).Scan(&user.ID, &user.ExternalID, &displayName, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	if displayName.Valid {
		user.DisplayName = &displayName.String
	}
	return &user, nil
}

// DeleteUser removes a user and, via the foreign key, all of their turns.
func (s *SQLiteStore) DeleteUser(ctx context.Context, userID int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", userID)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("user %d not found", userID)
	}
	return nil
}

// Turn methods

// AppendTurn persists one utterance for a user. Turns are append-only:
// nothing in this store updates or reorders them after creation.
func (s *SQLiteStore) AppendTurn(ctx context.Context, userID int64, role, content string) (*Turn, error) {
	if content == "" {
		return nil, ErrEmptyContent
	}
	if !ValidRole(role) {
		return nil, fmt.Errorf("%w: got %q", ErrInvalidRole, role)
	}

	turn := Turn{
		ID:        uuid.NewString(),
		UserID:    userID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO turns (id, user_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)",
		turn.ID, turn.UserID, turn.Role, turn.Content, turn.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert turn: %w", err)
	}
	return &turn, nil
}

// RecentTurns returns at most limit of the user's newest turns, ordered
// oldest first. The query fetches newest-first to apply the LIMIT, then
// reverses. rowid breaks ties between turns created at the same instant,
// preserving insertion order. A limit of zero or less returns an empty
// slice.
func (s *SQLiteStore) RecentTurns(ctx context.Context, userID int64, limit int) ([]Turn, error) {
	if limit <= 0 {
		return []Turn{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
        SELECT id, user_id, role, content, created_at
        FROM turns
        WHERE user_id = ?
        ORDER BY created_at DESC, rowid DESC
        LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var turn Turn
		if err := rows.Scan(&turn.ID, &turn.UserID, &turn.Role, &turn.Content, &turn.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn row: %w", err)
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate turn rows: %w", err)
	}

	// Fetched newest-first; callers get oldest-first.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// DocumentChunk methods

func (s *SQLiteStore) CreateDocumentChunk(ctx context.Context, title *string, content string, embedding []float32) (*DocumentChunk, error) {
	embeddingBytes, err := json.Marshal(embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding: %w", err)
	}

	now := time.Now()
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO document_chunks (title, content, embedding, created_at) VALUES (?, ?, ?, ?)",
		title, content, string(embeddingBytes), now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert document chunk: %w", err)
	}

	chunk := DocumentChunk{Title: title, Content: content, Embedding: embedding, CreatedAt: now}
	chunk.ID, _ = res.LastInsertId()
	return &chunk, nil
}

// AllDocumentChunks loads the full corpus. A chunk whose stored embedding
// fails to parse is returned with a nil embedding rather than dropped or
// raised; the retriever excludes it from ranking.
func (s *SQLiteStore) AllDocumentChunks(ctx context.Context) ([]DocumentChunk, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, title, content, embedding, created_at FROM document_chunks ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query document chunks: %w", err)
	}
	defer rows.Close()

	var chunks []DocumentChunk
	for rows.Next() {
		var chunk DocumentChunk
		var title sql.NullString
		var embeddingJSON string
		if err := rows.Scan(&chunk.ID, &title, &chunk.Content, &embeddingJSON, &chunk.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document chunk row: %w", err)
		}
		if title.Valid {
			chunk.Title = &title.String
		}
		if embeddingJSON != "" {
			if err := json.Unmarshal([]byte(embeddingJSON), &chunk.Embedding); err != nil {
				log.Printf("Warning: failed to unmarshal embedding for chunk %d (content: %.50s...): %v. Chunk excluded from retrieval.", chunk.ID, chunk.Content, err)
				chunk.Embedding = nil
			}
		}
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate document chunk rows: %w", err)
	}
	return chunks, nil
}

func (s *SQLiteStore) ClearDocumentChunks(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM document_chunks"); err != nil {
		return fmt.Errorf("failed to delete document chunks: %w", err)
	}
	_, err := s.db.ExecContext(ctx, "DELETE FROM sqlite_sequence WHERE name='document_chunks'")
	if err != nil && !strings.Contains(err.Error(), "no such table") {
		log.Printf("Warning: could not reset sequence for document_chunks: %v", err)
	}
	return nil
}

// IndexDocumentsFromDir embeds every .txt and .md file under dir and
// replaces the stored corpus with the result. The file name becomes the
// chunk title. Files that fail to embed are skipped, not fatal.
func (s *SQLiteStore) IndexDocumentsFromDir(ctx context.Context, dir string, embedder func(context.Context, string) ([]float32, error)) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read docs dir %s: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext == ".txt" || ext == ".md" {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	if len(names) == 0 {
		log.Printf("No .txt or .md files found in %s, nothing to index.", dir)
		return 0, nil
	}

	if err := s.ClearDocumentChunks(ctx); err != nil {
		return 0, fmt.Errorf("failed to clear existing document chunks: %w", err)
	}

	count := 0
	for _, name := range names {
		contentBytes, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			log.Printf("Failed to read %s: %v. Skipping.", name, err)
			continue
		}
		content := strings.TrimSpace(string(contentBytes))
		if content == "" {
			log.Printf("Skipping empty file %s.", name)
			continue
		}

		embedding, err := embedder(ctx, content)
		if err != nil {
			log.Printf("Failed to embed %s: %v. Skipping.", name, err)
			continue
		}

		title := name
		if _, err := s.CreateDocumentChunk(ctx, &title, content, embedding); err != nil {
			log.Printf("Failed to store chunk for %s: %v. Skipping.", name, err)
			continue
		}
		count++
	}
	log.Printf("Indexed %d documents from %s.", count, dir)
	return count, nil
}
