package ranker

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/recall/internal/embedding"
	"github.com/rcliao/recall/internal/model"
)

func rec(content string, v ...float32) model.ChunkRecord {
	return model.ChunkRecord{Content: content, SourceName: "doc", Embedding: v}
}

func TestEvaluate(t *testing.T) {
	p := DefaultPolicy()
	tests := []struct {
		name    string
		sim     float64
		overlap float64
		short   bool
		want    Verdict
	}{
		{"primary boundary", 0.60, 0, false, Verdict{Accepted, ReasonPrimary}},
		{"just below primary", 0.59, 0, false, Verdict{Outcome: RejectedLexical}},
		{"fallback with overlap", 0.40, 0.20, false, Verdict{Accepted, ReasonFallback}},
		{"fallback boundary", 0.35, 0.15, false, Verdict{Accepted, ReasonFallback}},
		{"fallback without overlap", 0.40, 0.10, false, Verdict{Outcome: RejectedLexical}},
		{"short memory lexical", 0.20, 0.25, true, Verdict{Accepted, ReasonShortMemory}},
		{"short memory weak", 0.30, 0.10, true, Verdict{Outcome: RejectedScore}},
		{"long content same scores", 0.20, 0.25, false, Verdict{Outcome: RejectedScore}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Evaluate(tt.sim, tt.overlap, tt.short))
		})
	}
}

func TestEvaluateDegenerateAndRelaxed(t *testing.T) {
	p := DefaultPolicy()
	assert.True(t, p.EvaluateDegenerate(0.20).Accepted())
	assert.Equal(t, RejectedLexical, p.EvaluateDegenerate(0.19).Outcome)
	assert.Equal(t, ReasonRelaxed, p.EvaluateRelaxed(0.01).Reason)
	assert.False(t, p.EvaluateRelaxed(0).Accepted())
}

func TestPolicyTable(t *testing.T) {
	table := DefaultPolicyTable()
	assert.Equal(t, DefaultPolicy(), table.For("nomic-embed-text"))
	assert.Less(t, table.For("all-minilm").PrimaryThreshold, table.Default.PrimaryThreshold)

	custom := DefaultPolicy()
	custom.PrimaryThreshold = 0.8
	extended := table.With("custom-model", custom)
	assert.Equal(t, 0.8, extended.For("custom-model").PrimaryThreshold)
	_, leaked := table.ByModel["custom-model"]
	assert.False(t, leaked, "With must not mutate the receiver")
}

func TestRank_OrdersAndLimits(t *testing.T) {
	r := New(DefaultPolicy(), nil, nil)
	records := []model.ChunkRecord{
		rec("a chunk that matches less well", 0.8, 0.6),
		rec("the best matching chunk of all", 2, 0),
		rec("a chunk pointing the other way", 0, 1),
	}

	got := r.Rank(context.Background(), Request{Query: "query", QueryVector: []float32{1, 0}, MaxResults: 5}, records)
	require.Len(t, got, 2)
	assert.Equal(t, "the best matching chunk of all", got[0].Record.Content)
	assert.InDelta(t, 1.0, got[0].Similarity, 1e-6)
	assert.Equal(t, ReasonPrimary, got[0].Verdict.Reason)

	got = r.Rank(context.Background(), Request{Query: "query", QueryVector: []float32{1, 0}, MaxResults: 1}, records)
	require.Len(t, got, 1)
	assert.Equal(t, "the best matching chunk of all", got[0].Record.Content)
}

func TestRank_SkipsRecordsWithoutEmbedding(t *testing.T) {
	r := New(DefaultPolicy(), nil, nil)
	records := []model.ChunkRecord{
		{Content: "not embedded yet but lexically perfect query"},
	}
	got := r.Rank(context.Background(), Request{Query: "query", QueryVector: []float32{1, 0}, Relaxed: true}, records)
	assert.Empty(t, got)
}

func TestRank_DeduplicatesByPrefix(t *testing.T) {
	r := New(DefaultPolicy(), nil, nil)
	prefix := strings.Repeat("shared prefix text ", 8)
	records := []model.ChunkRecord{
		rec(prefix+"first ending", 2, 0),
		rec(prefix+"second ending", 3, 0.1),
	}
	got := r.Rank(context.Background(), Request{Query: "query", QueryVector: []float32{1, 0}}, records)
	require.Len(t, got, 1)
}

func TestRank_ShortMemoryAcceptedOnOverlap(t *testing.T) {
	r := New(DefaultPolicy(), nil, nil)
	records := []model.ChunkRecord{rec("My name is Alex.", 0.3, 0.954)}

	got := r.Rank(context.Background(), Request{Query: "what is my name", QueryVector: []float32{1, 0}}, records)
	require.Len(t, got, 1)
	assert.Equal(t, ReasonShortMemory, got[0].Verdict.Reason)
	assert.Equal(t, "My name is Alex.", got[0].Chunk().Content)
}

func TestRank_RelaxedRescue(t *testing.T) {
	r := New(DefaultPolicy(), nil, nil)
	// Shares two of four words with the query: overlap 2/6.
	content := "Grandfathers favorite hiking photographs"
	records := []model.ChunkRecord{
		rec(content, 0, 1),
		rec("Completely unrelated words about quarterly finance reports and budgets.", 0, 2),
	}
	req := Request{Query: "favorite mountain hiking trail", QueryVector: []float32{1, 0}}

	assert.Empty(t, r.Rank(context.Background(), req, records))

	req.Relaxed = true
	got := r.Rank(context.Background(), req, records)
	require.Len(t, got, 1)
	assert.Equal(t, content, got[0].Record.Content)
	assert.InDelta(t, 1.0/3.0, got[0].Overlap, 1e-9)
	assert.Equal(t, ReasonRelaxed, got[0].Verdict.Reason)
	assert.Zero(t, got[0].Chunk().Similarity)
}

type countingEmbed struct {
	calls int
	vec   embedding.Vector
	err   error
}

func (c *countingEmbed) embed(_ context.Context, text string) (embedding.Vector, error) {
	c.calls++
	return c.vec, c.err
}

func TestRank_DegenerateRetriesOnce(t *testing.T) {
	ce := &countingEmbed{vec: []float32{0, 1}}
	r := New(DefaultPolicy(), ce.embed, nil)
	records := []model.ChunkRecord{rec("unrelated text about the weather", 1, 0)}

	got := r.Rank(context.Background(), Request{Query: "where do I work", QueryVector: []float32{1, 0}}, records)
	assert.Empty(t, got, "rescored candidate is orthogonal and must be rejected")
	assert.Equal(t, 1, ce.calls)
}

func TestRank_DegenerateDecidedLexically(t *testing.T) {
	ce := &countingEmbed{vec: []float32{1, 0}}
	r := New(DefaultPolicy(), ce.embed, nil)
	records := []model.ChunkRecord{
		rec("weather report for today", 1, 0),
		rec("a note about gardening tools", 1, 0),
	}

	got := r.Rank(context.Background(), Request{Query: "weather today", QueryVector: []float32{1, 0}}, records)
	require.Len(t, got, 1)
	assert.Equal(t, "weather report for today", got[0].Record.Content)
	assert.Equal(t, ReasonDegenerate, got[0].Verdict.Reason)
	assert.Equal(t, 1, ce.calls)
}

func TestRank_DegenerateRetryError(t *testing.T) {
	ce := &countingEmbed{err: errors.New("model unloaded")}
	r := New(DefaultPolicy(), ce.embed, nil)
	records := []model.ChunkRecord{rec("weather report for today", 1, 0)}

	got := r.Rank(context.Background(), Request{Query: "weather today", QueryVector: []float32{1, 0}}, records)
	require.Len(t, got, 1)
	assert.Equal(t, ReasonDegenerate, got[0].Verdict.Reason)
	assert.Equal(t, 1, ce.calls)
}

func TestRank_SameTextIsNotDegenerate(t *testing.T) {
	ce := &countingEmbed{vec: []float32{0, 1}}
	r := New(DefaultPolicy(), ce.embed, nil)
	records := []model.ChunkRecord{rec("Weather  today", 1, 0)}

	got := r.Rank(context.Background(), Request{Query: "weather today", QueryVector: []float32{1, 0}}, records)
	require.Len(t, got, 1)
	assert.Equal(t, ReasonPrimary, got[0].Verdict.Reason)
	assert.Zero(t, ce.calls)
}

func TestJaccard(t *testing.T) {
	assert.Zero(t, Jaccard(WordSet(""), WordSet("anything")))
	assert.InDelta(t, 1.0, Jaccard(WordSet("Hello, World"), WordSet("world hello")), 1e-9)
	assert.InDelta(t, 2.0/6.0, Jaccard(WordSet("alpha beta gamma delta"), WordSet("alpha beta epsilon zeta")), 1e-9)
}

func TestDedupKey(t *testing.T) {
	assert.Equal(t, "hello world", DedupKey("  Hello\n\tworld "))
	long := strings.Repeat("é", 150)
	assert.Equal(t, 100, len([]rune(DedupKey(long))))
}
