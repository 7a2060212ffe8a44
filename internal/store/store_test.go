package store

import (
	"sync"
	"testing"

	"github.com/dominikbraun/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreVertices(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore[string, int]()
	require.NoError(t, s.AddVertex("a", 1, graph.VertexProperties{}))
	require.ErrorIs(t, s.AddVertex("a", 2, graph.VertexProperties{}), graph.ErrVertexAlreadyExists)

	v, _, err := s.Vertex("a")
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	_, _, err = s.Vertex("b")
	require.ErrorIs(t, err, graph.ErrVertexNotFound)

	count, err := s.VertexCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMemoryStoreUpdateVertex(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore[string, int]()
	require.NoError(t, s.AddVertex("a", 1, graph.VertexProperties{}))
	require.NoError(t, s.UpdateVertex("a", graph.VertexAttribute("state", "done")))

	got, err := s.VertexAttribute("a", "state")
	require.NoError(t, err)
	assert.Equal(t, "done", got)

	require.ErrorIs(t, s.UpdateVertex("b", graph.VertexAttribute("state", "done")), graph.ErrVertexNotFound)
}

func TestMemoryStoreEdges(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore[string, int]()
	for i, k := range []string{"a", "b", "c"} {
		require.NoError(t, s.AddVertex(k, i, graph.VertexProperties{}))
	}
	require.NoError(t, s.AddEdge("a", "c", graph.Edge[string]{Source: "a", Target: "c"}))
	require.NoError(t, s.AddEdge("b", "c", graph.Edge[string]{Source: "b", Target: "c"}))
	require.ErrorIs(t, s.AddEdge("a", "z", graph.Edge[string]{Source: "a", Target: "z"}), graph.ErrVertexNotFound)

	preds, err := s.Predecessors("c")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, preds)

	cycle, err := s.(*MemoryStore[string, int]).CreatesCycle("c", "a")
	require.NoError(t, err)
	assert.True(t, cycle)

	cycle, err = s.(*MemoryStore[string, int]).CreatesCycle("a", "b")
	require.NoError(t, err)
	assert.False(t, cycle)

	require.ErrorIs(t, s.RemoveVertex("c"), graph.ErrVertexHasEdges)
}

func TestMemoryStoreConcurrentAdd(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore[int, int]()
	wg := sync.WaitGroup{}
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.AddVertex(i, i, graph.VertexProperties{})
			_, _ = s.ListVertices()
		}(i)
	}
	wg.Wait()

	count, err := s.VertexCount()
	require.NoError(t, err)
	assert.Equal(t, 100, count)
}
