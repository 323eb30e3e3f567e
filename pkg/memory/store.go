package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

func init() {
	sqlite_vec.Auto()
}

// Excerpt is one remembered piece of conversation.
type Excerpt struct {
	ID        string
	SessionID string
	Content   string
	CreatedAt time.Time
	Distance  float64
}

// Store persists conversation excerpts in sqlite with a sqlite-vec virtual
// table for similarity recall. It satisfies the retrieval interface the
// turn controller consumes.
type Store struct {
	db       *sql.DB
	embedder Embedder
}

// NewStore opens (or creates) the database at path.
func NewStore(path string, embedder Embedder) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{db: db, embedder: embedder}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	log.Info().Str("path", path).Int("dimension", embedder.Dimension()).Msg("Memory store opened")
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS excerpts (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_excerpts_session ON excerpts(session_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	vectorSchema := fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS embeddings USING vec0(
			excerpt_id TEXT PRIMARY KEY,
			embedding float[%d] distance_metric=cosine
		);
	`, s.embedder.Dimension())
	if _, err := s.db.Exec(vectorSchema); err != nil {
		return fmt.Errorf("failed to create vector table: %w", err)
	}
	return nil
}

// Save remembers one excerpt for a session.
func (s *Store) Save(ctx context.Context, sessionID, content string) error {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	embedding, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return fmt.Errorf("failed to embed excerpt: %w", err)
	}
	embeddingJSON, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}

	id := uuid.New().String()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO excerpts (id, session_id, content) VALUES (?, ?, ?)`,
		id, sessionID, content,
	); err != nil {
		return fmt.Errorf("failed to insert excerpt: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO embeddings (excerpt_id, embedding) VALUES (?, ?)`,
		id, string(embeddingJSON),
	); err != nil {
		return fmt.Errorf("failed to insert embedding: %w", err)
	}
	return tx.Commit()
}

// Recall returns the excerpts nearest to the query text.
func (s *Store) Recall(ctx context.Context, text string, limit int) ([]Excerpt, error) {
	if limit <= 0 {
		limit = 3
	}

	embedding, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	embeddingJSON, err := json.Marshal(embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.session_id, e.content, e.created_at,
			vec_distance_cosine(m.embedding, ?) AS distance
		FROM embeddings m
		JOIN excerpts e ON e.id = m.excerpt_id
		ORDER BY distance ASC
		LIMIT ?
	`, string(embeddingJSON), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer rows.Close()

	var excerpts []Excerpt
	for rows.Next() {
		var ex Excerpt
		if err := rows.Scan(&ex.ID, &ex.SessionID, &ex.Content, &ex.CreatedAt, &ex.Distance); err != nil {
			return nil, err
		}
		excerpts = append(excerpts, ex)
	}
	return excerpts, rows.Err()
}

// Query implements the turn controller's retrieval interface: the top
// matches joined into one excerpt block. No matches yields an empty
// string, which means no injected context.
func (s *Store) Query(ctx context.Context, text string) (string, error) {
	excerpts, err := s.Recall(ctx, text, 3)
	if err != nil {
		return "", err
	}
	if len(excerpts) == 0 {
		return "", nil
	}

	parts := make([]string, 0, len(excerpts))
	for _, ex := range excerpts {
		parts = append(parts, ex.Content)
	}
	return strings.Join(parts, "\n---\n"), nil
}

// Count returns how many excerpts are stored.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM excerpts`).Scan(&n)
	return n, err
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}
