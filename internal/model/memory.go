// Package model defines the core retrieval data types.
package model

import (
	"strings"
	"time"
)

// GlobalCollectionID is the reserved collection holding cross-conversation memory.
const GlobalCollectionID = "__global__"

// Reserved metadata values.
const (
	MetaUploaded           = "uploaded"
	ReplicatedGlobalPrefix = "replicated_global:"
)

// ChunkRecord is one embedded (or not yet embedded) span of a source document.
// Records are never updated in place once inserted into a collection.
type ChunkRecord struct {
	Content    string    `json:"content"`
	SourceName string    `json:"source_name,omitempty"`
	Metadata   string    `json:"metadata,omitempty"`
	ChunkIndex int       `json:"chunk_index"`
	Embedding  []float32 `json:"-"`
}

// HasEmbedding reports whether the record can take part in vector search.
func (r ChunkRecord) HasEmbedding() bool {
	return len(r.Embedding) > 0
}

// IsReplicatedGlobal reports whether the record was copied from the global collection.
func (r ChunkRecord) IsReplicatedGlobal() bool {
	return strings.HasPrefix(r.Metadata, ReplicatedGlobalPrefix)
}

// ReplicatedTag returns the metadata used for a global record copied into a conversation.
func ReplicatedTag(sourceID string) string {
	return ReplicatedGlobalPrefix + sourceID
}

// ContextChunk is a search result handed to the prompt-construction layer.
type ContextChunk struct {
	Content    string  `json:"content" yaml:"content"`
	Metadata   string  `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	SourceName string  `json:"source_name,omitempty" yaml:"source_name,omitempty"`
	Similarity float64 `json:"similarity" yaml:"similarity"`
	ChunkIndex int     `json:"chunk_index" yaml:"chunk_index"`
}

// Memory is a persisted global memory entry (a pasted note or an attached document).
type Memory struct {
	ID         string    `json:"id" yaml:"id"`
	SourceName string    `json:"source_name,omitempty" yaml:"source_name,omitempty"`
	Content    string    `json:"content" yaml:"content"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
	ChunkCount int       `json:"chunks,omitempty" yaml:"chunks,omitempty"`
}

// PersistedChunk is the storage form of an embedded global chunk.
type PersistedChunk struct {
	MemoryID       string `json:"memory_id" yaml:"memory_id"`
	Content        string `json:"content" yaml:"content"`
	SourceName     string `json:"source_name,omitempty" yaml:"source_name,omitempty"`
	ChunkIndex     int    `json:"chunk_index" yaml:"chunk_index"`
	Embedding      []byte `json:"-" yaml:"-"`
	EmbeddingModel string `json:"embedding_model" yaml:"embedding_model"`
}
