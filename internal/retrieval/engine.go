// Package retrieval coordinates chunking, embedding, storage and ranking of
// conversation documents and global memory.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/rcliao/recall/internal/chunker"
	"github.com/rcliao/recall/internal/collection"
	"github.com/rcliao/recall/internal/embedding"
	"github.com/rcliao/recall/internal/metrics"
	"github.com/rcliao/recall/internal/model"
	"github.com/rcliao/recall/internal/ranker"
)

const (
	DefaultCacheSize        = 256
	DefaultCacheTTL         = 5 * time.Second
	DefaultEmbedConcurrency = 4
)

var (
	// ErrDisabled is returned by Initialize when retrieval is switched off or
	// the embedding provider is unavailable.
	ErrDisabled = errors.New("retrieval disabled")
	// ErrNotReady is returned by storage workflows on an engine that is not Ready.
	ErrNotReady = errors.New("retrieval engine not ready")
	// ErrNoPersistence is returned by workflows that need a Persistence.
	ErrNoPersistence = errors.New("no persistence configured")
	// ErrEmptyContent is returned when a memory has no indexable text.
	ErrEmptyContent = errors.New("content is empty")
)

// State is the readiness of an Engine.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateDisabled
)

var stateNames = [...]string{"uninitialized", "initializing", "ready", "disabled"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Preferences are user settings read on every call.
type Preferences interface {
	RetrievalEnabled() bool
	CrossChatMemory() bool
	EmbeddingModel() string
}

// StaticPreferences is an immutable Preferences value.
type StaticPreferences struct {
	Enabled   bool
	CrossChat bool
	Model     string
}

func (p StaticPreferences) RetrievalEnabled() bool { return p.Enabled }
func (p StaticPreferences) CrossChatMemory() bool  { return p.CrossChat }
func (p StaticPreferences) EmbeddingModel() string { return p.Model }

// Persistence stores global memories and their embedded chunks.
type Persistence interface {
	SaveMemory(ctx context.Context, m model.Memory, chunks []model.PersistedChunk) error
	ReplaceChunks(ctx context.Context, memoryID string, chunks []model.PersistedChunk) error
	DeleteMemory(ctx context.Context, id string) error
	ListMemories(ctx context.Context) ([]model.Memory, error)
	LoadChunks(ctx context.Context) ([]model.PersistedChunk, error)
}

// Options configures an Engine. Zero values select defaults.
type Options struct {
	Embedder    embedding.Embedder
	Preferences Preferences
	Policies    ranker.PolicyTable
	Chunking    chunker.Options
	Persistence Persistence
	Logger      *zap.Logger

	CacheSize        int
	CacheTTL         time.Duration
	EmbedConcurrency int

	// Now is the clock used for cache ages and memory timestamps.
	Now func() time.Time
}

type cachedResult struct {
	at      time.Time
	results []model.ContextChunk
}

// Engine is the retrieval coordinator. Each Engine owns its collections,
// cache and readiness state; construct one per application.
type Engine struct {
	embedder    embedding.Embedder
	prefs       Preferences
	policies    ranker.PolicyTable
	chunking    chunker.Options
	persist     Persistence
	log         *zap.Logger
	cacheTTL    time.Duration
	concurrency int
	now         func() time.Time

	state    atomic.Int32
	initMu   sync.Mutex
	initDone chan struct{}
	initErr  error

	collections *collection.Store

	cache    *lru.Cache[string, cachedResult]
	cacheMu  sync.Mutex // orders generation checks against purges
	cacheGen atomic.Uint64
	flights  singleflight.Group

	// popMu guards populated and every write that copies global records into
	// conversations or removes them from there.
	popMu     sync.Mutex
	populated map[string]struct{}

	// replicateHook, when set, runs between the global snapshot and the copy.
	replicateHook func()
}

// New creates an Engine in the Uninitialized state.
func New(opts Options) (*Engine, error) {
	if opts.Preferences == nil {
		opts.Preferences = StaticPreferences{Enabled: true}
	}
	if opts.Policies.ByModel == nil && opts.Policies.Default == (ranker.Policy{}) {
		opts.Policies = ranker.DefaultPolicyTable()
	}
	if opts.Chunking.MaxSize <= 0 {
		opts.Chunking = chunker.DefaultOptions()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.EmbedConcurrency <= 0 {
		opts.EmbedConcurrency = DefaultEmbedConcurrency
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	cache, err := lru.New[string, cachedResult](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create search cache: %w", err)
	}

	e := &Engine{
		embedder:    opts.Embedder,
		prefs:       opts.Preferences,
		policies:    opts.Policies,
		chunking:    opts.Chunking,
		persist:     opts.Persistence,
		log:         opts.Logger.Named("retrieval"),
		cacheTTL:    opts.CacheTTL,
		concurrency: opts.EmbedConcurrency,
		now:         opts.Now,
		collections: collection.NewStore(),
		cache:       cache,
		populated:   make(map[string]struct{}),
	}
	e.setState(StateUninitialized)
	return e, nil
}

// State returns the current readiness state.
func (e *Engine) State() State { return State(e.state.Load()) }

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
	for i, name := range stateNames {
		v := 0.0
		if State(i) == s {
			v = 1
		}
		metrics.EngineState.WithLabelValues(name).Set(v)
	}
}

func (e *Engine) ready() bool { return e.State() == StateReady }

// Initialize brings the engine to Ready, or to Disabled when retrieval is
// switched off or the embedder cannot be reached. Concurrent callers join the
// attempt already in flight. A Disabled engine may be initialized again.
func (e *Engine) Initialize(ctx context.Context) error {
	e.initMu.Lock()
	switch e.State() {
	case StateReady:
		e.initMu.Unlock()
		return nil
	case StateInitializing:
		done := e.initDone
		e.initMu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		e.initMu.Lock()
		defer e.initMu.Unlock()
		return e.initErr
	}
	done := make(chan struct{})
	e.initDone = done
	e.setState(StateInitializing)
	e.initMu.Unlock()

	err := e.initialize(ctx)

	e.initMu.Lock()
	e.initErr = err
	if err != nil {
		e.setState(StateDisabled)
		e.log.Warn("retrieval disabled", zap.Error(err))
	} else {
		e.setState(StateReady)
		e.log.Info("retrieval ready", zap.String("model", e.prefs.EmbeddingModel()))
	}
	close(done)
	e.initMu.Unlock()
	return err
}

func (e *Engine) initialize(ctx context.Context) error {
	if !e.prefs.RetrievalEnabled() {
		return fmt.Errorf("%w: turned off in preferences", ErrDisabled)
	}
	if e.embedder == nil {
		return fmt.Errorf("%w: no embedding provider", ErrDisabled)
	}
	if p, ok := e.embedder.(embedding.Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrDisabled, err)
		}
	}
	if e.persist != nil {
		n, skipped, err := e.restore(ctx)
		if err != nil {
			// Retrieval still works for conversations without global memory.
			e.log.Warn("restore global memory failed", zap.Error(err))
		} else {
			e.log.Info("global memory restored", zap.Int("chunks", n), zap.Int("skipped", skipped))
		}
	}
	return nil
}

// AddDocument chunks content, embeds every chunk and inserts the records into
// the collection. Chunks that fail to embed are kept without a vector and do
// not take part in search. It reports whether at least one chunk was embedded.
func (e *Engine) AddDocument(ctx context.Context, collectionID, content, sourceName, metadata string) bool {
	if !e.ready() {
		e.log.Debug("add document ignored", zap.Stringer("state", e.State()))
		return false
	}
	chunks := chunker.Chunk(content, e.chunking)
	if len(chunks) == 0 {
		e.log.Debug("add document: blank content", zap.String("collection", collectionID))
		return false
	}

	records, embedded := e.embedChunks(ctx, chunks, sourceName, metadata)
	if collectionID == model.GlobalCollectionID {
		e.insertGlobal(records)
	} else {
		e.collections.Insert(collectionID, records...)
		e.observeCounts()
	}
	e.log.Debug("document added",
		zap.String("collection", collectionID),
		zap.String("source", sourceName),
		zap.Int("chunks", len(records)),
		zap.Int("embedded", embedded),
	)
	return embedded > 0
}

// AddDocumentWithEmbedding inserts a pre-computed record without chunking or
// embedding.
func (e *Engine) AddDocumentWithEmbedding(collectionID, content, sourceName string, chunkIndex int, vec embedding.Vector, metadata string) bool {
	if !e.ready() || strings.TrimSpace(content) == "" {
		return false
	}
	rec := model.ChunkRecord{
		Content:    content,
		SourceName: sourceName,
		Metadata:   metadata,
		ChunkIndex: chunkIndex,
		Embedding:  vec,
	}
	if collectionID == model.GlobalCollectionID {
		e.insertGlobal([]model.ChunkRecord{rec})
	} else {
		e.collections.Insert(collectionID, rec)
		e.observeCounts()
	}
	return true
}

// embedChunks embeds chunks with bounded concurrency, preserving order.
func (e *Engine) embedChunks(ctx context.Context, chunks []string, sourceName, metadata string) ([]model.ChunkRecord, int) {
	vecs := make([]embedding.Vector, len(chunks))
	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, c := range chunks {
		i, c := i, c
		g.Go(func() error {
			v, err := e.embed(ctx, "chunk", c)
			if err != nil {
				e.log.Warn("chunk embedding failed",
					zap.String("source", sourceName),
					zap.Int("chunk", i),
					zap.Error(err),
				)
				return nil
			}
			vecs[i] = v
			return nil
		})
	}
	_ = g.Wait()

	records := make([]model.ChunkRecord, len(chunks))
	embedded := 0
	for i, c := range chunks {
		records[i] = model.ChunkRecord{
			Content:    c,
			SourceName: sourceName,
			Metadata:   metadata,
			ChunkIndex: i,
			Embedding:  vecs[i],
		}
		if len(vecs[i]) > 0 {
			embedded++
		}
	}
	return records, embedded
}

func (e *Engine) embed(ctx context.Context, purpose, text string) (embedding.Vector, error) {
	start := time.Now()
	v, err := e.embedder.Embed(ctx, text)
	if err == nil && len(v) == 0 {
		err = embedding.ErrEmptyEmbedding
	}
	metrics.EmbeddingDuration.WithLabelValues(purpose).Observe(time.Since(start).Seconds())
	metrics.EmbeddingRequestsTotal.WithLabelValues(purpose, metrics.Outcome(err)).Inc()
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Clear removes a whole collection. Clearing a conversation also forgets that
// it was populated with global memory.
func (e *Engine) Clear(collectionID string) {
	e.collections.Clear(collectionID)
	if collectionID == model.GlobalCollectionID {
		e.invalidateGlobal()
	} else {
		e.popMu.Lock()
		delete(e.populated, collectionID)
		e.popMu.Unlock()
	}
	e.observeCounts()
}

// HasDocuments reports whether the collection holds any record.
func (e *Engine) HasDocuments(collectionID string) bool {
	return e.ready() && e.collections.Has(collectionID)
}

// DocumentCount returns the number of records in the collection.
func (e *Engine) DocumentCount(collectionID string) int {
	if !e.ready() {
		return 0
	}
	return e.collections.Count(collectionID)
}

// RemoveSource deletes every record of a collection that belongs to sourceID:
// records named after it, tagged with it, or replicated from it.
func (e *Engine) RemoveSource(collectionID, sourceID string) int {
	if collectionID == model.GlobalCollectionID {
		e.popMu.Lock()
		defer e.popMu.Unlock()
	}
	tag := model.ReplicatedTag(sourceID)
	n := e.collections.RemoveWhere(collectionID, func(r model.ChunkRecord) bool {
		return r.SourceName == sourceID || r.Metadata == sourceID || r.Metadata == tag
	})
	if n > 0 {
		if collectionID == model.GlobalCollectionID {
			e.invalidateGlobal()
		}
		e.observeCounts()
	}
	return n
}

// ReplicateGlobalChunksToChat copies the global collection into a conversation
// once. Later global additions are propagated to populated conversations as
// they happen. It returns the number of records copied.
func (e *Engine) ReplicateGlobalChunksToChat(collectionID string) int {
	if !e.ready() || collectionID == model.GlobalCollectionID {
		return 0
	}
	e.popMu.Lock()
	defer e.popMu.Unlock()
	if _, ok := e.populated[collectionID]; ok {
		return 0
	}
	copies := replicas(e.collections.GetAll(model.GlobalCollectionID))
	if e.replicateHook != nil {
		e.replicateHook()
	}
	e.collections.Insert(collectionID, copies...)
	e.populated[collectionID] = struct{}{}
	e.observeCounts()
	e.log.Debug("global memory replicated",
		zap.String("collection", collectionID),
		zap.Int("records", len(copies)),
	)
	return len(copies)
}

// insertGlobal adds records to the global collection, drops cached global
// results and copies the records into every populated conversation.
func (e *Engine) insertGlobal(records []model.ChunkRecord) {
	if len(records) == 0 {
		return
	}
	e.popMu.Lock()
	e.collections.Insert(model.GlobalCollectionID, records...)
	copies := replicas(records)
	for id := range e.populated {
		e.collections.Insert(id, copies...)
	}
	e.popMu.Unlock()
	e.invalidateGlobal()
	e.observeCounts()
}

// removeMemory drops a memory's records from the global collection and every
// conversation copy.
func (e *Engine) removeMemory(memoryID string) int {
	e.popMu.Lock()
	defer e.popMu.Unlock()
	tag := model.ReplicatedTag(memoryID)
	n := e.collections.RemoveWhere(model.GlobalCollectionID, func(r model.ChunkRecord) bool {
		return r.Metadata == memoryID
	})
	for _, id := range e.collections.IDs() {
		if id == model.GlobalCollectionID {
			continue
		}
		e.collections.RemoveWhere(id, func(r model.ChunkRecord) bool { return r.Metadata == tag })
	}
	e.invalidateGlobal()
	e.observeCounts()
	return n
}

func replicas(records []model.ChunkRecord) []model.ChunkRecord {
	out := make([]model.ChunkRecord, 0, len(records))
	for _, r := range records {
		src := r.Metadata
		if src == "" || src == model.MetaUploaded {
			src = r.SourceName
		}
		r.Metadata = model.ReplicatedTag(src)
		out = append(out, r)
	}
	return out
}

func (e *Engine) observeCounts() {
	global, chats := 0, 0
	for _, id := range e.collections.IDs() {
		n := e.collections.Count(id)
		if id == model.GlobalCollectionID {
			global += n
		} else {
			chats += n
		}
	}
	metrics.ChunksIndexed.WithLabelValues("global").Set(float64(global))
	metrics.ChunksIndexed.WithLabelValues("chat").Set(float64(chats))
}
