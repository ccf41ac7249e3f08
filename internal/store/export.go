package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/rcliao/recall/internal/model"
)

// ExportAll returns all memories, oldest first, optionally filtered by source.
func (s *SQLiteStore) ExportAll(ctx context.Context, source string) ([]model.Memory, error) {
	if source == "" {
		return s.ListMemories(ctx)
	}
	return s.queryMemories(ctx,
		`SELECT `+memoryColumns+` FROM memories m WHERE m.source_name = ? ORDER BY m.created_at, m.id`, source)
}

// Import stores memories from an export without chunks; they become
// searchable once re-embedded. Ids that already exist are skipped; memories
// without an id get a new one. It returns the ids imported.
func (s *SQLiteStore) Import(ctx context.Context, memories []model.Memory) ([]string, error) {
	var imported []string
	for _, m := range memories {
		if m.ID == "" {
			m.ID = s.newID()
		} else if _, err := s.GetMemory(ctx, m.ID); err == nil {
			continue
		} else if !errors.Is(err, ErrNotFound) {
			return imported, fmt.Errorf("import %s: %w", m.ID, err)
		}
		m.ChunkCount = 0
		if err := s.SaveMemory(ctx, m, nil); err != nil {
			return imported, fmt.Errorf("import %s: %w", m.ID, err)
		}
		imported = append(imported, m.ID)
	}
	return imported, nil
}
