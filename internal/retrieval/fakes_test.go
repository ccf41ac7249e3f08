package retrieval

import (
	"context"
	"errors"
	"hash/fnv"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rcliao/recall/internal/embedding"
	"github.com/rcliao/recall/internal/model"
	"github.com/rcliao/recall/internal/ranker"
)

const testDims = 512

// wordEmbedder builds deterministic bag-of-words vectors.
type wordEmbedder struct {
	calls atomic.Int32
	// failOn makes Embed fail for texts containing the marker.
	failOn string
}

func (w *wordEmbedder) Embed(_ context.Context, text string) (embedding.Vector, error) {
	w.calls.Add(1)
	if w.failOn != "" && strings.Contains(text, w.failOn) {
		return nil, errors.New("provider failure")
	}
	return bagOfWords(text), nil
}

func (w *wordEmbedder) Dims() int { return testDims }

func bagOfWords(text string) embedding.Vector {
	v := make(embedding.Vector, testDims)
	for word := range ranker.WordSet(text) {
		h := fnv.New32a()
		h.Write([]byte(word))
		v[h.Sum32()%testDims]++
	}
	return v
}

// blockingEmbedder blocks embedding of one text until release is closed.
type blockingEmbedder struct {
	wordEmbedder
	block   string
	started chan struct{}
	release chan struct{}
	once    sync.Once
	blocked atomic.Int32
}

func newBlockingEmbedder(block string) *blockingEmbedder {
	return &blockingEmbedder{
		block:   block,
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (b *blockingEmbedder) Embed(ctx context.Context, text string) (embedding.Vector, error) {
	if text == b.block {
		b.blocked.Add(1)
		b.once.Do(func() { close(b.started) })
		select {
		case <-b.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return b.wordEmbedder.Embed(ctx, text)
}

// pingEmbedder is a wordEmbedder that answers health checks.
type pingEmbedder struct {
	wordEmbedder
	err     error
	pings   atomic.Int32
	release chan struct{}
}

func (p *pingEmbedder) Ping(ctx context.Context) error {
	p.pings.Add(1)
	if p.release != nil {
		select {
		case <-p.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return p.err
}

type testPrefs struct {
	disabled  atomic.Bool
	crossChat atomic.Bool
	mu        sync.Mutex
	model     string
}

func (p *testPrefs) RetrievalEnabled() bool { return !p.disabled.Load() }
func (p *testPrefs) CrossChatMemory() bool  { return p.crossChat.Load() }
func (p *testPrefs) EmbeddingModel() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.model
}

func (p *testPrefs) setModel(m string) {
	p.mu.Lock()
	p.model = m
	p.mu.Unlock()
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// memPersistence is an in-memory Persistence.
type memPersistence struct {
	mu       sync.Mutex
	memories map[string]model.Memory
	chunks   map[string][]model.PersistedChunk
}

func newMemPersistence() *memPersistence {
	return &memPersistence{
		memories: make(map[string]model.Memory),
		chunks:   make(map[string][]model.PersistedChunk),
	}
}

var errNotFound = errors.New("not found")

func (m *memPersistence) SaveMemory(_ context.Context, mem model.Memory, chunks []model.PersistedChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memories[mem.ID] = mem
	m.chunks[mem.ID] = chunks
	return nil
}

func (m *memPersistence) ReplaceChunks(_ context.Context, id string, chunks []model.PersistedChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.memories[id]; !ok {
		return errNotFound
	}
	m.chunks[id] = chunks
	return nil
}

func (m *memPersistence) DeleteMemory(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.memories[id]; !ok {
		return errNotFound
	}
	delete(m.memories, id)
	delete(m.chunks, id)
	return nil
}

func (m *memPersistence) ListMemories(_ context.Context) ([]model.Memory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Memory, 0, len(m.memories))
	for _, mem := range m.memories {
		out = append(out, mem)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memPersistence) LoadChunks(_ context.Context) ([]model.PersistedChunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.PersistedChunk
	for _, cs := range m.chunks {
		out = append(out, cs...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MemoryID != out[j].MemoryID {
			return out[i].MemoryID < out[j].MemoryID
		}
		return out[i].ChunkIndex < out[j].ChunkIndex
	})
	return out, nil
}

func (m *memPersistence) modelOf(id string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, c := range m.chunks[id] {
		out = append(out, c.EmbeddingModel)
	}
	return out
}
