package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/rcliao/recall/internal/chunker"
	"github.com/rcliao/recall/internal/embedding"
	"github.com/rcliao/recall/internal/model"
)

// Remember stores content as a global memory: it is chunked, embedded, added
// to the global collection and, when a Persistence is configured, saved with
// the current embedding model name. It returns the new memory id.
func (e *Engine) Remember(ctx context.Context, content, sourceName string) (string, error) {
	if !e.ready() {
		return "", ErrNotReady
	}
	chunks := chunker.Chunk(content, e.chunking)
	if len(chunks) == 0 {
		return "", ErrEmptyContent
	}

	id := ulid.Make().String()
	records, embedded := e.embedChunks(ctx, chunks, sourceName, id)
	if embedded == 0 {
		return "", fmt.Errorf("embed memory: %w", embedding.ErrEmptyEmbedding)
	}

	if e.persist != nil {
		pcs := e.persisted(id, records)
		m := model.Memory{
			ID:         id,
			SourceName: sourceName,
			Content:    strings.TrimSpace(content),
			CreatedAt:  e.now().UTC(),
			ChunkCount: len(pcs),
		}
		if err := e.persist.SaveMemory(ctx, m, pcs); err != nil {
			return "", fmt.Errorf("save memory: %w", err)
		}
	}

	e.insertGlobal(records)
	e.log.Info("memory stored",
		zap.String("id", id),
		zap.String("source", sourceName),
		zap.Int("chunks", len(records)),
		zap.Int("embedded", embedded),
	)
	return id, nil
}

// Forget deletes a global memory from storage, the global collection and every
// conversation it was replicated into.
func (e *Engine) Forget(ctx context.Context, memoryID string) error {
	if e.persist != nil {
		if err := e.persist.DeleteMemory(ctx, memoryID); err != nil {
			return fmt.Errorf("delete memory %s: %w", memoryID, err)
		}
	}
	n := e.removeMemory(memoryID)
	e.log.Info("memory forgotten", zap.String("id", memoryID), zap.Int("chunks", n))
	return nil
}

// Restore reloads persisted global chunks without re-embedding them. Chunks
// embedded by a different model than the current one are skipped. Restoring
// twice replaces rather than duplicates. It returns the number of chunks loaded.
func (e *Engine) Restore(ctx context.Context) (int, error) {
	if !e.ready() {
		return 0, ErrNotReady
	}
	n, skipped, err := e.restore(ctx)
	if err != nil {
		return 0, err
	}
	e.log.Info("global memory restored", zap.Int("chunks", n), zap.Int("skipped", skipped))
	return n, nil
}

func (e *Engine) restore(ctx context.Context) (int, int, error) {
	if e.persist == nil {
		return 0, 0, ErrNoPersistence
	}
	stored, err := e.persist.LoadChunks(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("load chunks: %w", err)
	}

	current := e.prefs.EmbeddingModel()
	ids := make(map[string]struct{})
	records := make([]model.ChunkRecord, 0, len(stored))
	skipped := 0
	for _, pc := range stored {
		if current != "" && pc.EmbeddingModel != "" && pc.EmbeddingModel != current {
			e.log.Debug("skip chunk from another embedding model",
				zap.String("memory", pc.MemoryID),
				zap.String("model", pc.EmbeddingModel),
			)
			skipped++
			continue
		}
		vec, err := embedding.Decode(pc.Embedding)
		if err != nil {
			e.log.Warn("skip undecodable chunk", zap.String("memory", pc.MemoryID), zap.Error(err))
			skipped++
			continue
		}
		ids[pc.MemoryID] = struct{}{}
		records = append(records, model.ChunkRecord{
			Content:    pc.Content,
			SourceName: pc.SourceName,
			Metadata:   pc.MemoryID,
			ChunkIndex: pc.ChunkIndex,
			Embedding:  vec,
		})
	}

	for id := range ids {
		e.removeMemory(id)
	}
	e.insertGlobal(records)
	return len(records), skipped, nil
}

// Reembed rebuilds every persisted memory with the current embedder and model,
// replacing stored chunks. Memories that fail to embed keep their old chunks.
// It returns the number of memories re-embedded.
func (e *Engine) Reembed(ctx context.Context) (int, error) {
	return e.ReembedMemories(ctx)
}

// ReembedMemories is Reembed restricted to the given memory ids. With no ids
// every memory is rebuilt.
func (e *Engine) ReembedMemories(ctx context.Context, ids ...string) (int, error) {
	if !e.ready() {
		return 0, ErrNotReady
	}
	if e.persist == nil {
		return 0, ErrNoPersistence
	}
	memories, err := e.persist.ListMemories(ctx)
	if err != nil {
		return 0, fmt.Errorf("list memories: %w", err)
	}

	var only map[string]struct{}
	if len(ids) > 0 {
		only = make(map[string]struct{}, len(ids))
		for _, id := range ids {
			only[id] = struct{}{}
		}
	}

	done, total := 0, 0
	for _, m := range memories {
		if only != nil {
			if _, ok := only[m.ID]; !ok {
				continue
			}
		}
		total++
		if err := ctx.Err(); err != nil {
			return done, err
		}
		chunks := chunker.Chunk(m.Content, e.chunking)
		records, embedded := e.embedChunks(ctx, chunks, m.SourceName, m.ID)
		if embedded == 0 {
			e.log.Warn("re-embed skipped memory", zap.String("id", m.ID))
			continue
		}
		if err := e.persist.ReplaceChunks(ctx, m.ID, e.persisted(m.ID, records)); err != nil {
			return done, fmt.Errorf("replace chunks of %s: %w", m.ID, err)
		}
		e.removeMemory(m.ID)
		e.insertGlobal(records)
		done++
	}
	e.log.Info("memories re-embedded",
		zap.Int("count", done),
		zap.Int("total", total),
		zap.String("model", e.prefs.EmbeddingModel()),
	)
	return done, nil
}

// persisted converts the embedded records of a memory to storage form.
func (e *Engine) persisted(memoryID string, records []model.ChunkRecord) []model.PersistedChunk {
	modelName := e.prefs.EmbeddingModel()
	out := make([]model.PersistedChunk, 0, len(records))
	for _, r := range records {
		if !r.HasEmbedding() {
			continue
		}
		out = append(out, model.PersistedChunk{
			MemoryID:       memoryID,
			Content:        r.Content,
			SourceName:     r.SourceName,
			ChunkIndex:     r.ChunkIndex,
			Embedding:      embedding.Encode(r.Embedding),
			EmbeddingModel: modelName,
		})
	}
	return out
}
