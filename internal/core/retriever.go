package core

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/ainova/assistant/internal/store"
	"github.com/ainova/assistant/internal/utils"
)

// Embedder turns text into a fixed-length vector via the external
// embedding boundary.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Retriever ranks an in-memory corpus of document chunks against a query
// by cosine similarity. This is a deliberate linear scan over the whole
// corpus per query, not an approximate-nearest-neighbor index; it holds
// up because the corpus is small and fully resident.
type Retriever struct {
	embedder Embedder
	chunks   []store.DocumentChunk
}

func NewRetriever(chunks []store.DocumentChunk, embedder Embedder) *Retriever {
	return &Retriever{embedder: embedder, chunks: chunks}
}

// LoadRetriever builds a Retriever over the full stored corpus.
func LoadRetriever(ctx context.Context, db *store.SQLiteStore, embedder Embedder) (*Retriever, error) {
	chunks, err := db.AllDocumentChunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load document chunks for retriever: %w", err)
	}
	if len(chunks) == 0 {
		log.Println("Warning: retriever initialized with no document chunks. Run the server with -index to ingest documents.")
	} else {
		log.Printf("Retriever initialized with %d document chunks.", len(chunks))
	}
	return NewRetriever(chunks, embedder), nil
}

type ScoredChunk struct {
	Chunk      store.DocumentChunk
	Similarity float32
}

// TopK returns at most k chunks ordered by descending similarity to the
// query. Chunks with a missing or dimension-mismatched embedding are
// skipped and do not count toward k. Ties keep corpus order (stable
// sort, no secondary key).
func (r *Retriever) TopK(ctx context.Context, query string, k int) ([]ScoredChunk, error) {
	if k <= 0 || len(r.chunks) == 0 {
		return nil, nil
	}

	queryEmbedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	scored := make([]ScoredChunk, 0, len(r.chunks))
	for _, chunk := range r.chunks {
		if len(chunk.Embedding) == 0 {
			continue
		}
		similarity, err := utils.CosineSimilarity(queryEmbedding, chunk.Embedding)
		if err != nil {
			log.Printf("Skipping chunk %d: %v", chunk.ID, err)
			continue
		}
		scored = append(scored, ScoredChunk{Chunk: chunk, Similarity: similarity})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})

	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}
