package retrieval

import (
	"context"
	"slices"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/rcliao/recall/internal/embedding"
	"github.com/rcliao/recall/internal/metrics"
	"github.com/rcliao/recall/internal/model"
	"github.com/rcliao/recall/internal/ranker"
)

// SearchOptions tunes one search.
type SearchOptions struct {
	// MaxResults defaults to ranker.DefaultMaxResults.
	MaxResults int
	// Relaxed enables the lexical-only fallback for explicit recall queries.
	Relaxed bool
	// QueryEmbedding skips embedding the query when set.
	QueryEmbedding embedding.Vector
}

// Search returns the chunks of a collection relevant to query, best first.
// It never fails: any error degrades to an empty result.
//
// Searching the global collection goes through a short-lived result cache and
// coalesces concurrent identical queries. Searching a conversation merges in
// global results when cross-chat memory is on, and hides replicated global
// records when it is off.
func (e *Engine) Search(ctx context.Context, collectionID, query string, opts SearchOptions) []model.ContextChunk {
	if !e.ready() || strings.TrimSpace(query) == "" {
		return nil
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = ranker.DefaultMaxResults
	}

	if collectionID == model.GlobalCollectionID {
		metrics.SearchesTotal.WithLabelValues("global").Inc()
		return e.searchGlobal(ctx, query, opts)
	}
	metrics.SearchesTotal.WithLabelValues("chat").Inc()

	crossChat := e.prefs.CrossChatMemory()
	records := e.collections.GetAll(collectionID)
	if !crossChat {
		records = slices.DeleteFunc(records, model.ChunkRecord.IsReplicatedGlobal)
	}
	if len(records) == 0 && !crossChat {
		return nil
	}

	qv, ok := e.queryVector(ctx, query, opts.QueryEmbedding)
	if !ok {
		return nil
	}
	own := e.rank(ctx, query, qv, records, opts)
	if !crossChat {
		return own
	}

	global := e.searchGlobal(ctx, query, SearchOptions{
		MaxResults:     opts.MaxResults,
		Relaxed:        opts.Relaxed,
		QueryEmbedding: qv,
	})
	return merge(opts.MaxResults, own, global)
}

func (e *Engine) queryVector(ctx context.Context, query string, pre embedding.Vector) (embedding.Vector, bool) {
	if len(pre) > 0 {
		return pre, true
	}
	v, err := e.embed(ctx, "query", query)
	if err != nil {
		e.log.Warn("query embedding failed", zap.Error(err))
		return nil, false
	}
	return v, true
}

func (e *Engine) rank(ctx context.Context, query string, qv embedding.Vector, records []model.ChunkRecord, opts SearchOptions) []model.ContextChunk {
	if len(records) == 0 {
		return nil
	}
	policy := e.policies.For(e.prefs.EmbeddingModel())
	r := ranker.New(policy, func(ctx context.Context, text string) (embedding.Vector, error) {
		return e.embed(ctx, "retry", text)
	}, e.log)

	cands := r.Rank(ctx, ranker.Request{
		Query:       query,
		QueryVector: qv,
		MaxResults:  opts.MaxResults,
		Relaxed:     opts.Relaxed,
	}, records)

	out := make([]model.ContextChunk, len(cands))
	for i, c := range cands {
		metrics.RankerVerdictsTotal.WithLabelValues(string(c.Verdict.Reason)).Inc()
		out[i] = c.Chunk()
	}
	return out
}

// searchGlobal serves global searches from the cache, or runs one search per
// distinct in-flight query and shares its result with every waiter.
func (e *Engine) searchGlobal(ctx context.Context, query string, opts SearchOptions) []model.ContextChunk {
	key := cacheKey(query, opts)
	if res, ok := e.cached(key, true); ok {
		return res
	}

	ch := e.flights.DoChan(key, func() (any, error) {
		if res, ok := e.cached(key, false); ok {
			return res, nil
		}
		// The search outlives any single waiter so a cancelled caller cannot
		// fail it for the others.
		fctx := context.WithoutCancel(ctx)
		gen := e.cacheGen.Load()
		res, ok := e.searchGlobalUncached(fctx, query, opts)
		if !ok {
			return nil, embedding.ErrEmptyEmbedding
		}
		e.storeCached(key, gen, res)
		return res, nil
	})

	select {
	case r := <-ch:
		if r.Shared {
			metrics.SearchCoalescedTotal.Inc()
		}
		if r.Err != nil {
			return nil
		}
		return slices.Clone(r.Val.([]model.ContextChunk))
	case <-ctx.Done():
		return nil
	}
}

func (e *Engine) searchGlobalUncached(ctx context.Context, query string, opts SearchOptions) ([]model.ContextChunk, bool) {
	records := e.collections.GetAll(model.GlobalCollectionID)
	if len(records) == 0 {
		return nil, true
	}
	qv, ok := e.queryVector(ctx, query, opts.QueryEmbedding)
	if !ok {
		return nil, false
	}
	return e.rank(ctx, query, qv, records, opts), true
}

// cached returns a fresh cache entry. Expired entries are evicted.
func (e *Engine) cached(key string, observe bool) ([]model.ContextChunk, bool) {
	entry, ok := e.cache.Get(key)
	result := "miss"
	switch {
	case ok && e.now().Sub(entry.at) <= e.cacheTTL:
		result = "hit"
	case ok:
		result = "expired"
		e.cache.Remove(key)
		ok = false
	}
	if observe {
		metrics.SearchCacheTotal.WithLabelValues(result).Inc()
	}
	if !ok {
		return nil, false
	}
	return slices.Clone(entry.results), true
}

// storeCached caches res unless the global collection changed since gen was read.
func (e *Engine) storeCached(key string, gen uint64, res []model.ContextChunk) {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	if e.cacheGen.Load() != gen {
		return
	}
	e.cache.Add(key, cachedResult{at: e.now(), results: res})
}

// invalidateGlobal drops every cached global result.
func (e *Engine) invalidateGlobal() {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	e.cacheGen.Add(1)
	e.cache.Purge()
}

// cacheKey includes the options that change the result for the same text.
func cacheKey(query string, opts SearchOptions) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(opts.MaxResults))
	if opts.Relaxed {
		b.WriteString("r")
	}
	b.WriteByte(0)
	b.WriteString(query)
	return b.String()
}

// merge combines result lists by similarity, dropping near-duplicates.
func merge(limit int, lists ...[]model.ContextChunk) []model.ContextChunk {
	var all []model.ContextChunk
	for _, l := range lists {
		all = append(all, l...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Similarity > all[j].Similarity
	})
	out := make([]model.ContextChunk, 0, min(limit, len(all)))
	seen := make(map[string]struct{}, len(all))
	for _, c := range all {
		k := ranker.DedupKey(c.Content)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, c)
		if len(out) == limit {
			break
		}
	}
	return out
}
