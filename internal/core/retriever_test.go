package core

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ainova/assistant/internal/store"
)

// stubEmbedder returns a canned vector per text, so ranking is fully
// deterministic without the real embedding boundary.
type stubEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (e *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	vec, ok := e.vectors[text]
	if !ok {
		return nil, fmt.Errorf("no stub vector for %q", text)
	}
	return vec, nil
}

func chunk(id int64, title, content string, embedding []float32) store.DocumentChunk {
	return store.DocumentChunk{ID: id, Title: &title, Content: content, Embedding: embedding}
}

func TestTopKRanksByDescendingSimilarity(t *testing.T) {
	chunks := []store.DocumentChunk{
		chunk(1, "Hours", "9am-5pm", []float32{1, 0}),
		chunk(2, "Prices", "From $10", []float32{0, 1}),
		chunk(3, "Location", "Main St", []float32{0.7, 0.7}),
	}
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"9am-5pm": {1, 0},
	}}
	r := NewRetriever(chunks, embedder)

	scored, err := r.TopK(context.Background(), "9am-5pm", 3)
	require.NoError(t, err)
	require.Len(t, scored, 3)

	// A query identical to a stored chunk's vector ranks it first at ~1.0.
	assert.Equal(t, int64(1), scored[0].Chunk.ID)
	assert.InDelta(t, 1.0, float64(scored[0].Similarity), 1e-6)

	for i := 1; i < len(scored); i++ {
		assert.LessOrEqual(t, scored[i].Similarity, scored[i-1].Similarity)
	}
}

func TestTopKBoundsResultLength(t *testing.T) {
	chunks := []store.DocumentChunk{
		chunk(1, "A", "a", []float32{1, 0}),
		chunk(2, "B", "b", []float32{0, 1}),
	}
	embedder := &stubEmbedder{vectors: map[string][]float32{"q": {1, 1}}}
	r := NewRetriever(chunks, embedder)

	scored, err := r.TopK(context.Background(), "q", 1)
	require.NoError(t, err)
	assert.Len(t, scored, 1)

	// k larger than the corpus returns the whole corpus, not an error.
	scored, err = r.TopK(context.Background(), "q", 10)
	require.NoError(t, err)
	assert.Len(t, scored, 2)

	scored, err = r.TopK(context.Background(), "q", 0)
	require.NoError(t, err)
	assert.Empty(t, scored)
}

func TestTopKSkipsCorruptChunks(t *testing.T) {
	valid := []store.DocumentChunk{
		chunk(1, "A", "a", []float32{1, 0}),
		chunk(2, "B", "b", []float32{0.5, 0.5}),
	}
	embedder := &stubEmbedder{vectors: map[string][]float32{"q": {1, 0}}}

	baseline, err := NewRetriever(valid, embedder).TopK(context.Background(), "q", 10)
	require.NoError(t, err)

	// One chunk with a missing embedding, one with the wrong dimension.
	polluted := append([]store.DocumentChunk{
		chunk(3, "Broken", "nil embedding", nil),
		chunk(4, "Mismatch", "wrong dims", []float32{1, 2, 3}),
	}, valid...)

	scored, err := NewRetriever(polluted, embedder).TopK(context.Background(), "q", 10)
	require.NoError(t, err)

	require.Len(t, scored, len(baseline))
	for i := range baseline {
		assert.Equal(t, baseline[i].Chunk.ID, scored[i].Chunk.ID)
		assert.Equal(t, baseline[i].Similarity, scored[i].Similarity)
	}
}

func TestTopKTiesKeepCorpusOrder(t *testing.T) {
	chunks := []store.DocumentChunk{
		chunk(7, "First", "same", []float32{1, 0}),
		chunk(8, "Second", "same", []float32{1, 0}),
	}
	embedder := &stubEmbedder{vectors: map[string][]float32{"q": {1, 0}}}

	scored, err := NewRetriever(chunks, embedder).TopK(context.Background(), "q", 2)
	require.NoError(t, err)
	require.Len(t, scored, 2)
	assert.Equal(t, int64(7), scored[0].Chunk.ID)
	assert.Equal(t, int64(8), scored[1].Chunk.ID)
}

func TestTopKPropagatesEmbedderFailure(t *testing.T) {
	embedder := &stubEmbedder{err: fmt.Errorf("boundary down")}
	r := NewRetriever([]store.DocumentChunk{chunk(1, "A", "a", []float32{1})}, embedder)

	_, err := r.TopK(context.Background(), "q", 1)
	assert.Error(t, err)
}

func TestTopKEmptyCorpus(t *testing.T) {
	r := NewRetriever(nil, &stubEmbedder{})
	scored, err := r.TopK(context.Background(), "q", 5)
	require.NoError(t, err)
	assert.Empty(t, scored)
}
