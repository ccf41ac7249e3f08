// Package ranker scores collection records against a query and decides which
// ones are relevant enough to hand to the prompt builder.
package ranker

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/rcliao/recall/internal/embedding"
	"github.com/rcliao/recall/internal/metrics"
	"github.com/rcliao/recall/internal/model"
)

// DefaultMaxResults is used when a request asks for zero or fewer results.
const DefaultMaxResults = 5

// degenerateNudge is appended to the query before re-embedding it after a
// vector collision.
const degenerateNudge = "\u200b"

// EmbedFunc embeds text. The ranker uses it for the single degenerate retry.
type EmbedFunc func(ctx context.Context, text string) (embedding.Vector, error)

// Request describes one ranking pass.
type Request struct {
	Query       string
	QueryVector embedding.Vector
	MaxResults  int
	// Relaxed enables the lexical-only fallback when nothing passes the
	// normal rules.
	Relaxed bool
}

// Candidate is a scored record.
type Candidate struct {
	Record     model.ChunkRecord
	Similarity float64
	Overlap    float64
	Short      bool
	Degenerate bool
	Verdict    Verdict
}

// Chunk converts the candidate to a search result. Negative cosine scores are
// reported as 0.
func (c Candidate) Chunk() model.ContextChunk {
	sim := c.Similarity
	if sim < 0 {
		sim = 0
	}
	return model.ContextChunk{
		Content:    c.Record.Content,
		Metadata:   c.Record.Metadata,
		SourceName: c.Record.SourceName,
		Similarity: sim,
		ChunkIndex: c.Record.ChunkIndex,
	}
}

// Ranker applies a Policy to candidate records.
type Ranker struct {
	policy Policy
	embed  EmbedFunc
	log    *zap.Logger
}

// New creates a ranker. embed may be nil, in which case degenerate candidates
// are decided lexically without a retry.
func New(policy Policy, embed EmbedFunc, log *zap.Logger) *Ranker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ranker{policy: policy, embed: embed, log: log}
}

// Policy returns the policy in use.
func (r *Ranker) Policy() Policy { return r.policy }

// Rank returns accepted candidates, best first, at most req.MaxResults of
// them. Records without embeddings never take part.
func (r *Ranker) Rank(ctx context.Context, req Request, records []model.ChunkRecord) []Candidate {
	limit := req.MaxResults
	if limit <= 0 {
		limit = DefaultMaxResults
	}

	cands := r.score(req.Query, req.QueryVector, records)
	if len(cands) == 0 {
		return nil
	}

	if hasDegenerate(cands) {
		metrics.DegenerateEmbeddingsTotal.Inc()
		cands = r.retryDegenerate(ctx, req, cands, records)
	}

	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].Similarity > cands[j].Similarity
	})

	accepted := make([]Candidate, 0, limit)
	seen := make(map[string]struct{})
	for i := range cands {
		c := &cands[i]
		if c.Degenerate {
			c.Verdict = r.policy.EvaluateDegenerate(c.Overlap)
		} else {
			c.Verdict = r.policy.Evaluate(c.Similarity, c.Overlap, c.Short)
		}
		r.log.Debug("rank candidate",
			zap.String("source", c.Record.SourceName),
			zap.Int("chunk", c.Record.ChunkIndex),
			zap.Float64("similarity", c.Similarity),
			zap.Float64("overlap", c.Overlap),
			zap.Bool("short", c.Short),
			zap.Bool("degenerate", c.Degenerate),
			zap.Stringer("outcome", c.Verdict.Outcome),
			zap.String("reason", string(c.Verdict.Reason)),
		)
		if !c.Verdict.Accepted() || !markSeen(seen, c.Record.Content) {
			continue
		}
		accepted = append(accepted, *c)
		if len(accepted) == limit {
			return accepted
		}
	}

	if len(accepted) > 0 || !req.Relaxed {
		return accepted
	}
	return r.relaxed(cands, limit)
}

func (r *Ranker) score(query string, qv embedding.Vector, records []model.ChunkRecord) []Candidate {
	qwords := WordSet(query)
	cands := make([]Candidate, 0, len(records))
	for _, rec := range records {
		if !rec.HasEmbedding() {
			continue
		}
		cands = append(cands, Candidate{
			Record:     rec,
			Similarity: embedding.CosineSimilarity(qv, rec.Embedding),
			Overlap:    Jaccard(qwords, WordSet(rec.Content)),
			Short:      len(strings.TrimSpace(rec.Content)) < r.policy.ShortMemoryLength,
			Degenerate: embedding.Identical(qv, rec.Embedding) && !sameText(query, rec.Content),
		})
	}
	return cands
}

// retryDegenerate re-embeds the query exactly once. If the new vector differs
// every candidate is rescored with it; otherwise the collided candidates stay
// marked and are decided lexically.
func (r *Ranker) retryDegenerate(ctx context.Context, req Request, cands []Candidate, records []model.ChunkRecord) []Candidate {
	if r.embed == nil {
		return cands
	}
	v, err := r.embed(ctx, req.Query+degenerateNudge)
	if err != nil {
		r.log.Warn("degenerate query re-embed failed", zap.Error(err))
		return cands
	}
	if len(v) == 0 || embedding.Identical(v, req.QueryVector) {
		r.log.Warn("query embedding still collides after retry", zap.String("query", req.Query))
		return cands
	}
	r.log.Debug("query re-embedded after vector collision")
	return r.score(req.Query, v, records)
}

func (r *Ranker) relaxed(cands []Candidate, limit int) []Candidate {
	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].Overlap > cands[j].Overlap
	})
	var out []Candidate
	seen := make(map[string]struct{})
	for _, c := range cands {
		c.Verdict = r.policy.EvaluateRelaxed(c.Overlap)
		if !c.Verdict.Accepted() || !markSeen(seen, c.Record.Content) {
			continue
		}
		out = append(out, c)
		if len(out) == limit {
			break
		}
	}
	if len(out) > 0 {
		r.log.Debug("relaxed lexical fallback", zap.Int("accepted", len(out)))
	}
	return out
}

func hasDegenerate(cands []Candidate) bool {
	for _, c := range cands {
		if c.Degenerate {
			return true
		}
	}
	return false
}

// markSeen records the dedup key for content and reports whether it was new.
func markSeen(seen map[string]struct{}, content string) bool {
	k := DedupKey(content)
	if _, ok := seen[k]; ok {
		return false
	}
	seen[k] = struct{}{}
	return true
}
