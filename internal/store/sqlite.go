package store

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/rcliao/recall/internal/model"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB

	mu      sync.Mutex // guards entropy
	entropy *rand.Rand
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{
		db:      db,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) newID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		id          TEXT PRIMARY KEY,
		source_name TEXT NOT NULL DEFAULT '',
		content     TEXT NOT NULL,
		created_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_memories_created ON memories(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_memories_source ON memories(source_name);

	CREATE TABLE IF NOT EXISTS chunks (
		id              TEXT PRIMARY KEY,
		memory_id       TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
		seq             INTEGER NOT NULL,
		text            TEXT NOT NULL,
		source_name     TEXT NOT NULL DEFAULT '',
		embedding       BLOB NOT NULL,
		embedding_model TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_memory ON chunks(memory_id, seq);
	CREATE INDEX IF NOT EXISTS idx_chunks_model ON chunks(embedding_model);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) SaveMemory(ctx context.Context, m model.Memory, chunks []model.PersistedChunk) error {
	if m.ID == "" {
		m.ID = s.newID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO memories (id, source_name, content, created_at) VALUES (?, ?, ?, ?)`,
		m.ID, m.SourceName, m.Content, m.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	if err := s.insertChunks(ctx, tx, m.ID, chunks); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) ReplaceChunks(ctx context.Context, memoryID string, chunks []model.PersistedChunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories WHERE id = ?`, memoryID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, memoryID)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE memory_id = ?`, memoryID); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	if err := s.insertChunks(ctx, tx, memoryID, chunks); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) insertChunks(ctx context.Context, tx *sql.Tx, memoryID string, chunks []model.PersistedChunk) error {
	for _, c := range chunks {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO chunks (id, memory_id, seq, text, source_name, embedding, embedding_model)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			s.newID(), memoryID, c.ChunkIndex, c.Content, c.SourceName, c.Embedding, c.EmbeddingModel)
		if err != nil {
			return fmt.Errorf("insert chunk: %w", err)
		}
	}
	return nil
}

const memoryColumns = `m.id, m.source_name, m.content, m.created_at,
	(SELECT COUNT(*) FROM chunks c WHERE c.memory_id = m.id)`

func (s *SQLiteStore) GetMemory(ctx context.Context, id string) (*model.Memory, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+memoryColumns+` FROM memories m WHERE m.id = ?`, id)
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *SQLiteStore) List(ctx context.Context, p ListParams) ([]model.Memory, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	where := []string{"1 = 1"}
	var args []interface{}
	if p.Source != "" {
		where = append(where, "m.source_name = ?")
		args = append(args, p.Source)
	}
	if p.Contains != "" {
		where = append(where, "LOWER(m.content) LIKE ?")
		args = append(args, "%"+strings.ToLower(p.Contains)+"%")
	}

	query := fmt.Sprintf(`SELECT %s FROM memories m WHERE %s ORDER BY m.created_at DESC, m.id DESC LIMIT ?`,
		memoryColumns, strings.Join(where, " AND "))
	args = append(args, limit)

	return s.queryMemories(ctx, query, args...)
}

func (s *SQLiteStore) ListMemories(ctx context.Context) ([]model.Memory, error) {
	return s.queryMemories(ctx,
		`SELECT `+memoryColumns+` FROM memories m ORDER BY m.created_at, m.id`)
}

func (s *SQLiteStore) queryMemories(ctx context.Context, query string, args ...interface{}) ([]model.Memory, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var memories []model.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		memories = append(memories, m)
	}
	return memories, rows.Err()
}

func (s *SQLiteStore) LoadChunks(ctx context.Context) ([]model.PersistedChunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.memory_id, c.text, c.source_name, c.seq, c.embedding, c.embedding_model
		 FROM chunks c JOIN memories m ON m.id = c.memory_id
		 ORDER BY m.created_at, m.id, c.seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []model.PersistedChunk
	for rows.Next() {
		var c model.PersistedChunk
		if err := rows.Scan(&c.MemoryID, &c.Content, &c.SourceName, &c.ChunkIndex, &c.Embedding, &c.EmbeddingModel); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (s *SQLiteStore) DeleteMemory(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE memory_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMemory(row scanner) (model.Memory, error) {
	var m model.Memory
	var createdAt string

	err := row.Scan(&m.ID, &m.SourceName, &m.Content, &createdAt, &m.ChunkCount)
	if err != nil {
		return m, err
	}
	m.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return m, fmt.Errorf("memory %s: bad created_at %q: %w", m.ID, createdAt, err)
	}
	return m, nil
}
