package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/relaylabs/pdfqa-server/internal/adapters/driven/vectorindex/flat"
	"github.com/relaylabs/pdfqa-server/internal/core/domain"
	"github.com/relaylabs/pdfqa-server/internal/core/ports/driven"
)

// DefaultTopK is the number of chunks retrieved per question when the
// caller does not specify one.
const DefaultTopK = 3

// Retriever answers a question against an already-built DocumentIndex
// by embedding the question with the same embedder the index was
// built with and searching its vectors for the closest chunks.
type Retriever struct {
	embedder driven.EmbeddingService
}

// NewRetriever creates a Retriever backed by embedder.
func NewRetriever(embedder driven.EmbeddingService) *Retriever {
	return &Retriever{embedder: embedder}
}

// TopK returns idx's k chunks most similar to question, in descending
// similarity order with ties broken by ascending ordinal. If idx has
// fewer than k chunks, all of them are returned. If idx is empty, an
// empty slice is returned with no error; callers decide whether an
// empty document is itself an error.
func (r *Retriever) TopK(ctx context.Context, idx domain.DocumentIndex, question string, k int) ([]domain.ScoredChunk, error) {
	if k <= 0 {
		k = DefaultTopK
	}
	if len(idx.Chunks) == 0 {
		return nil, nil
	}

	query, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return nil, domain.Wrap(domain.KindEmbedFailed, err)
	}

	index := flat.New()
	byID := make(map[string]domain.Chunk, len(idx.Chunks))
	for i, c := range idx.Chunks {
		if i >= len(idx.Vectors) {
			return nil, domain.NewError(domain.KindIndexUnavailable,
				fmt.Sprintf("index has %d chunks but only %d vectors", len(idx.Chunks), len(idx.Vectors)))
		}
		if err := index.Add(ctx, c.ID, idx.Vectors[i]); err != nil {
			return nil, fmt.Errorf("building query-time index: %w", err)
		}
		byID[c.ID] = c
	}

	hits, err := index.Search(ctx, query, len(idx.Chunks))
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	scored := make([]domain.ScoredChunk, len(hits))
	for i, hit := range hits {
		scored[i] = domain.ScoredChunk{Chunk: byID[hit.ChunkID], Score: hit.Similarity}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Chunk.Ordinal < scored[j].Chunk.Ordinal
	})

	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}
