package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"

	"github.com/relaylabs/pdfqa-server/internal/core/domain"
	"github.com/relaylabs/pdfqa-server/internal/core/ports/driven"
	"github.com/relaylabs/pdfqa-server/internal/logger"
)

// IndexBuilder implements the get-or-build half of the retrieval
// engine: load a persisted index if its manifest still matches the
// currently configured embedder and chunk parameters, otherwise
// extract, chunk, embed and persist a fresh one.
type IndexBuilder struct {
	extractor  driven.TextExtractor
	chunker    *Chunker
	embedder   driven.EmbeddingService
	indexStore driven.IndexStore
}

// NewIndexBuilder assembles an IndexBuilder from its driven ports.
func NewIndexBuilder(extractor driven.TextExtractor, chunker *Chunker, embedder driven.EmbeddingService, indexStore driven.IndexStore) *IndexBuilder {
	return &IndexBuilder{
		extractor:  extractor,
		chunker:    chunker,
		embedder:   embedder,
		indexStore: indexStore,
	}
}

// GetOrBuild returns the document's index, loading a cached copy when
// its manifest matches the builder's current embedder and chunk
// parameters, and rebuilding from scratch otherwise. It is the
// BuildFunc a Registry calls outside its lock.
func (b *IndexBuilder) GetOrBuild(ctx context.Context, handle domain.Handle, path, content string) (domain.DocumentIndex, error) {
	params := b.chunker.Params()
	key := storageKey(path, content)

	exists, err := b.indexStore.Exists(ctx, key)
	if err != nil {
		return domain.DocumentIndex{}, fmt.Errorf("checking index cache: %w", err)
	}
	if exists {
		cached, err := b.indexStore.Load(ctx, key)
		if err != nil {
			return domain.DocumentIndex{}, fmt.Errorf("loading cached index: %w", err)
		}
		if cached.EmbedderID == b.embedder.ModelName() && cached.ChunkParams == params {
			logger.Debug("index cache hit for %s (key %s)", handle, key)
			cached.DocumentID = handle
			for i := range cached.Chunks {
				cached.Chunks[i].DocumentID = handle
			}
			return cached, nil
		}
		logger.Debug("index cache stale for %s (embedder or chunk params changed), rebuilding", handle)
	}

	return b.build(ctx, handle, key, content, params)
}

// storageKey derives the content-addressed cache key a document's
// index is persisted under: the SHA-256 of its extracted text,
// truncated to 16 hex characters, combined with the path's basename.
// Two paths share a cache entry only when both their basenames and
// their extracted text match, and a file replaced under the same path
// invalidates cleanly.
func storageKey(path, content string) domain.Handle {
	sum := sha256.Sum256([]byte(content))
	return domain.Handle(fmt.Sprintf("%s-%s", filepath.Base(path), hex.EncodeToString(sum[:])[:16]))
}

func (b *IndexBuilder) build(ctx context.Context, handle, key domain.Handle, content string, params domain.ChunkParams) (domain.DocumentIndex, error) {
	chunks := b.chunker.Chunk(handle, content)
	if len(chunks) == 0 {
		return domain.DocumentIndex{}, domain.Wrap(domain.KindBadInput, domain.ErrEmptyDocument)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := b.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return domain.DocumentIndex{}, domain.Wrap(domain.KindEmbedFailed, err)
	}
	if len(vectors) != len(chunks) {
		return domain.DocumentIndex{}, domain.NewError(domain.KindEmbedFailed,
			fmt.Sprintf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks)))
	}

	idx := domain.DocumentIndex{
		DocumentID:  handle,
		Chunks:      chunks,
		Vectors:     vectors,
		EmbedderID:  b.embedder.ModelName(),
		ChunkParams: params,
		Dimension:   b.embedder.Dimensions(),
	}

	saved := idx
	saved.DocumentID = key
	if err := b.indexStore.Save(ctx, saved); err != nil {
		return domain.DocumentIndex{}, fmt.Errorf("persisting index: %w", err)
	}
	logger.Debug("built and cached index for %s (key %s): %d chunks", handle, key, len(chunks))

	return idx, nil
}
