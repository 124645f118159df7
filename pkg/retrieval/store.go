// Package retrieval identifies songs from sung lyrics by nearest-neighbor
// lookup over an embedded lyrics corpus and a grounded model answer.
package retrieval

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"unicode/utf8"

	_ "modernc.org/sqlite"
)

var (
	// ErrNoDatabase is returned by Open when the corpus file does not exist.
	ErrNoDatabase = errors.New("retrieval: database not found")

	// ErrDimension is returned when vectors of different lengths are mixed.
	ErrDimension = errors.New("retrieval: embedding dimension mismatch")
)

const schema = `
CREATE TABLE IF NOT EXISTS chunks (
	id        TEXT PRIMARY KEY,
	song      TEXT NOT NULL,
	content   TEXT NOT NULL,
	embedding TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_song ON chunks(song);
`

// Chunk is one embedded piece of a song's lyrics.
type Chunk struct {
	ID        string    `json:"id"`
	Song      string    `json:"song"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"-"`
}

// Match is a search hit.
type Match struct {
	Chunk
	Score float64 `json:"score"`
}

// Store keeps chunks in a sqlite file. Search is a brute-force scan, which
// is plenty for a lyrics corpus on one device.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens an existing corpus.
func Open(ctx context.Context, path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoDatabase, path)
		}
		return nil, fmt.Errorf("retrieval: stat %s: %w", path, err)
	}
	return open(ctx, path)
}

// Create opens path, creating the file and schema if needed.
func Create(ctx context.Context, path string) (*Store, error) {
	return open(ctx, path)
}

func open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("retrieval: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("retrieval: create schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Upsert inserts or replaces chunks in one transaction.
func (s *Store) Upsert(ctx context.Context, chunks ...Chunk) error {
	return s.write(ctx, "", chunks)
}

// ReplaceSource deletes every chunk whose ID starts with source+"#" and
// stores chunks in its place, in one transaction.
func (s *Store) ReplaceSource(ctx context.Context, source string, chunks ...Chunk) error {
	if source == "" {
		return errors.New("retrieval: empty source")
	}
	return s.write(ctx, source, chunks)
}

func (s *Store) write(ctx context.Context, source string, chunks []Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("retrieval: begin: %w", err)
	}
	defer tx.Rollback()

	if source != "" {
		prefix := source + "#"
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE substr(id, 1, ?) = ?`, utf8.RuneCountInString(prefix), prefix); err != nil {
			return fmt.Errorf("retrieval: delete %s: %w", source, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO chunks (id, song, content, embedding) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("retrieval: prepare: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		vec, err := json.Marshal(c.Embedding)
		if err != nil {
			return fmt.Errorf("retrieval: encode %s: %w", c.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, c.ID, c.Song, c.Content, string(vec)); err != nil {
			return fmt.Errorf("retrieval: insert %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// Count returns the number of stored chunks.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("retrieval: count: %w", err)
	}
	return n, nil
}

// Songs returns the distinct song names in the corpus.
func (s *Store) Songs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT song FROM chunks ORDER BY song`)
	if err != nil {
		return nil, fmt.Errorf("retrieval: songs: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var song string
		if err := rows.Scan(&song); err != nil {
			return nil, err
		}
		out = append(out, song)
	}
	return out, rows.Err()
}

// Search returns the k chunks most similar to vec, best first.
func (s *Store) Search(ctx context.Context, vec []float32, k int) ([]Match, error) {
	if k < 1 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, song, content, embedding FROM chunks`)
	if err != nil {
		return nil, fmt.Errorf("retrieval: search: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var (
			m   Match
			raw string
		)
		if err := rows.Scan(&m.ID, &m.Song, &m.Content, &raw); err != nil {
			return nil, fmt.Errorf("retrieval: scan: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &m.Embedding); err != nil {
			return nil, fmt.Errorf("retrieval: decode %s: %w", m.ID, err)
		}
		if len(m.Embedding) != len(vec) {
			return nil, fmt.Errorf("%w: chunk %s has %d, query has %d", ErrDimension, m.ID, len(m.Embedding), len(vec))
		}
		m.Score = cosine(vec, m.Embedding)
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
