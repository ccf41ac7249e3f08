package retrieval

import (
	"github.com/rcliao/recall/internal/model"
)

// CollectionStats describes one in-memory collection.
type CollectionStats struct {
	ID         string `json:"id" yaml:"id"`
	Chunks     int    `json:"chunks" yaml:"chunks"`
	Embedded   int    `json:"embedded" yaml:"embedded"`
	Replicated int    `json:"replicated,omitempty" yaml:"replicated,omitempty"`
}

// Stats is a snapshot of the engine.
type Stats struct {
	State          string            `json:"state" yaml:"state"`
	EmbeddingModel string            `json:"embedding_model,omitempty" yaml:"embedding_model,omitempty"`
	CrossChat      bool              `json:"cross_chat_memory" yaml:"cross_chat_memory"`
	Collections    []CollectionStats `json:"collections" yaml:"collections"`
	CachedQueries  int               `json:"cached_queries" yaml:"cached_queries"`
	PopulatedChats int               `json:"populated_chats" yaml:"populated_chats"`
}

// Stats returns counts for every collection, global first.
func (e *Engine) Stats() Stats {
	s := Stats{
		State:          e.State().String(),
		EmbeddingModel: e.prefs.EmbeddingModel(),
		CrossChat:      e.prefs.CrossChatMemory(),
		CachedQueries:  e.cache.Len(),
	}
	ids := e.collections.IDs()
	for _, id := range ids {
		if id == model.GlobalCollectionID {
			s.Collections = append(s.Collections, collectionStats(id, e.collections.GetAll(id)))
		}
	}
	for _, id := range ids {
		if id != model.GlobalCollectionID {
			s.Collections = append(s.Collections, collectionStats(id, e.collections.GetAll(id)))
		}
	}
	e.popMu.Lock()
	s.PopulatedChats = len(e.populated)
	e.popMu.Unlock()
	return s
}

func collectionStats(id string, recs []model.ChunkRecord) CollectionStats {
	cs := CollectionStats{ID: id, Chunks: len(recs)}
	for _, r := range recs {
		if r.HasEmbedding() {
			cs.Embedded++
		}
		if r.IsReplicatedGlobal() {
			cs.Replicated++
		}
	}
	return cs
}
