// Package store persists global memories and their embedded chunks in SQLite.
package store

import (
	"context"
	"errors"

	"github.com/rcliao/recall/internal/model"
)

// ErrNotFound is returned when a memory id does not exist.
var ErrNotFound = errors.New("memory not found")

// ListParams holds parameters for listing memories.
type ListParams struct {
	Source   string
	Contains string // case-insensitive substring of the content
	Limit    int
}

// Store defines the memory storage interface.
type Store interface {
	// SaveMemory stores a memory together with its embedded chunks.
	SaveMemory(ctx context.Context, m model.Memory, chunks []model.PersistedChunk) error

	// ReplaceChunks swaps the chunks of an existing memory, e.g. after the
	// embedding model changed.
	ReplaceChunks(ctx context.Context, memoryID string, chunks []model.PersistedChunk) error

	// GetMemory retrieves one memory by id.
	GetMemory(ctx context.Context, id string) (*model.Memory, error)

	// List lists memories matching the given filters, newest first.
	List(ctx context.Context, p ListParams) ([]model.Memory, error)

	// ListMemories returns every memory, oldest first.
	ListMemories(ctx context.Context) ([]model.Memory, error)

	// LoadChunks returns every stored chunk ordered by memory and position.
	LoadChunks(ctx context.Context) ([]model.PersistedChunk, error)

	// DeleteMemory removes a memory and its chunks.
	DeleteMemory(ctx context.Context, id string) error

	// Close closes the store.
	Close() error
}
