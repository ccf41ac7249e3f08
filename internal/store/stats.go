package store

import (
	"context"
	"fmt"
	"os"
)

// Stats holds database statistics.
type Stats struct {
	DBPath      string       `json:"db_path" yaml:"db_path"`
	DBSizeBytes int64        `json:"db_size_bytes" yaml:"db_size_bytes"`
	Memories    int          `json:"memories" yaml:"memories"`
	Chunks      int          `json:"chunks" yaml:"chunks"`
	Models      []ModelStats `json:"models" yaml:"models"`
}

// ModelStats holds per-embedding-model chunk counts.
type ModelStats struct {
	Model    string `json:"model" yaml:"model"`
	Chunks   int    `json:"chunks" yaml:"chunks"`
	Memories int    `json:"memories" yaml:"memories"`
}

// Stats returns database statistics.
func (s *SQLiteStore) Stats(ctx context.Context, dbPath string) (*Stats, error) {
	st := &Stats{DBPath: dbPath}

	// DB file size
	if info, err := os.Stat(dbPath); err == nil {
		st.DBSizeBytes = info.Size()
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&st.Memories); err != nil {
		return st, fmt.Errorf("count memories: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&st.Chunks); err != nil {
		return st, fmt.Errorf("count chunks: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT embedding_model, COUNT(*) AS cnt, COUNT(DISTINCT memory_id) AS mems
		FROM chunks
		GROUP BY embedding_model ORDER BY cnt DESC`)
	if err != nil {
		return st, err
	}
	defer rows.Close()

	for rows.Next() {
		var ms ModelStats
		if err := rows.Scan(&ms.Model, &ms.Chunks, &ms.Memories); err != nil {
			return st, fmt.Errorf("scan model stats: %w", err)
		}
		st.Models = append(st.Models, ms)
	}

	return st, rows.Err()
}
