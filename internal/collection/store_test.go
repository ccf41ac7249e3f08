package collection

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/recall/internal/model"
)

func rec(content string) model.ChunkRecord {
	return model.ChunkRecord{Content: content, Embedding: []float32{1}}
}

func TestStore_InsertPreservesOrder(t *testing.T) {
	s := NewStore()
	s.Insert("a", rec("one"), rec("two"))
	s.Insert("a", rec("three"))
	s.Insert("b", rec("other"))

	got := s.GetAll("a")
	require.Len(t, got, 3)
	assert.Equal(t, "one", got[0].Content)
	assert.Equal(t, "three", got[2].Content)
	assert.Equal(t, 3, s.Count("a"))
	assert.Equal(t, 1, s.Count("b"))
	assert.True(t, s.Has("b"))
	assert.False(t, s.Has("missing"))
	assert.Nil(t, s.GetAll("missing"))
}

func TestStore_GetAllReturnsSnapshot(t *testing.T) {
	s := NewStore()
	s.Insert("a", rec("one"))
	snap := s.GetAll("a")
	snap[0].Content = "mutated"
	assert.Equal(t, "one", s.GetAll("a")[0].Content)
}

func TestStore_ClearAndRemoveWhere(t *testing.T) {
	s := NewStore()
	s.Insert("a", rec("keep"), model.ChunkRecord{Content: "drop", SourceName: "x"}, rec("keep too"))

	n := s.RemoveWhere("a", func(r model.ChunkRecord) bool { return r.SourceName == "x" })
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"keep", "keep too"}, contents(s.GetAll("a")))

	n = s.RemoveWhere("a", func(model.ChunkRecord) bool { return true })
	assert.Equal(t, 2, n)
	assert.False(t, s.Has("a"))
	assert.Empty(t, s.IDs())

	s.Insert("b", rec("x"))
	s.Clear("b")
	assert.Equal(t, 0, s.Count("b"))
	assert.Equal(t, 0, s.RemoveWhere("b", func(model.ChunkRecord) bool { return true }))
}

func TestStore_ConcurrentInsert(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Insert("shared", rec(fmt.Sprintf("chunk-%d", i)))
			_ = s.GetAll("shared")
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, s.Count("shared"))
	assert.Equal(t, []string{"shared"}, s.IDs())
}

func contents(recs []model.ChunkRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Content
	}
	return out
}
