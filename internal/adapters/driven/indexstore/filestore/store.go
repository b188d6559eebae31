// Package filestore persists a DocumentIndex as three files under a
// per-handle directory: manifest.json (chunk metadata and build
// parameters), chunks.ndjson (one JSON chunk per line) and vectors.bin
// (the chunk vectors, in the same float32 little-endian layout the
// teacher's SQLite store uses for embedding blobs). Every write lands in
// a temp directory first and is promoted with os.Rename, so a crash
// mid-write never leaves a half-written index behind.
package filestore

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/relaylabs/pdfqa-server/internal/adapters/driven/vectorindex/flat"
	"github.com/relaylabs/pdfqa-server/internal/core/domain"
	"github.com/relaylabs/pdfqa-server/internal/core/ports/driven"
)

const (
	manifestFile = "manifest.json"
	chunksFile   = "chunks.ndjson"
	vectorsFile  = "vectors.bin"
)

// manifest is the on-disk shape of manifest.json.
type manifest struct {
	EmbedderID  string             `json:"embedder_id"`
	ChunkParams domain.ChunkParams `json:"chunk_params"`
	Dimension   int                `json:"dimension"`
	NumChunks   int                `json:"num_chunks"`
}

// chunkRecord is the on-disk shape of one chunks.ndjson line.
type chunkRecord struct {
	ID         string `json:"id"`
	Ordinal    int    `json:"ordinal"`
	Text       string `json:"text"`
	CharOffset int    `json:"char_offset"`
}

// Store persists DocumentIndex values under a root directory, one
// subdirectory per handle.
type Store struct {
	rootDir string
}

var _ driven.IndexStore = (*Store)(nil)

// New creates a filestore rooted at dir, creating it if necessary.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating index store directory: %w", err)
	}
	return &Store{rootDir: dir}, nil
}

func (s *Store) dirFor(handle domain.Handle) string {
	return filepath.Join(s.rootDir, string(handle))
}

// Exists reports whether a persisted index is present for handle.
func (s *Store) Exists(_ context.Context, handle domain.Handle) (bool, error) {
	_, err := os.Stat(filepath.Join(s.dirFor(handle), manifestFile))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Load returns the persisted index for handle.
func (s *Store) Load(_ context.Context, handle domain.Handle) (domain.DocumentIndex, error) {
	dir := s.dirFor(handle)

	manifestBytes, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		if os.IsNotExist(err) {
			return domain.DocumentIndex{}, domain.ErrNotFound
		}
		return domain.DocumentIndex{}, fmt.Errorf("reading manifest: %w", err)
	}

	var m manifest
	if err := json.Unmarshal(manifestBytes, &m); err != nil {
		return domain.DocumentIndex{}, fmt.Errorf("decoding manifest: %w", err)
	}

	chunks, err := loadChunks(filepath.Join(dir, chunksFile), handle)
	if err != nil {
		return domain.DocumentIndex{}, fmt.Errorf("loading chunks: %w", err)
	}

	vectorBytes, err := os.ReadFile(filepath.Join(dir, vectorsFile))
	if err != nil {
		return domain.DocumentIndex{}, fmt.Errorf("reading vectors: %w", err)
	}
	vectors := splitVectors(vectorBytes, m.Dimension, len(chunks))

	return domain.DocumentIndex{
		DocumentID:  handle,
		Chunks:      chunks,
		Vectors:     vectors,
		EmbedderID:  m.EmbedderID,
		ChunkParams: m.ChunkParams,
		Dimension:   m.Dimension,
	}, nil
}

func loadChunks(path string, handle domain.Handle) ([]domain.Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var chunks []domain.Chunk
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec chunkRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("decoding chunk record: %w", err)
		}
		chunks = append(chunks, domain.Chunk{
			ID:         rec.ID,
			DocumentID: handle,
			Ordinal:    rec.Ordinal,
			Text:       rec.Text,
			CharOffset: rec.CharOffset,
		})
	}
	return chunks, scanner.Err()
}

func splitVectors(data []byte, dimension, numChunks int) [][]float32 {
	if dimension == 0 || numChunks == 0 {
		return nil
	}
	stride := dimension * 4
	vectors := make([][]float32, 0, numChunks)
	for i := 0; i < numChunks && (i+1)*stride <= len(data); i++ {
		vectors = append(vectors, flat.DecodeVector(data[i*stride:(i+1)*stride]))
	}
	return vectors
}

// Save atomically writes idx, replacing any prior persisted index for
// the same handle.
func (s *Store) Save(_ context.Context, idx domain.DocumentIndex) error {
	tmpDir, err := os.MkdirTemp(s.rootDir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	m := manifest{
		EmbedderID:  idx.EmbedderID,
		ChunkParams: idx.ChunkParams,
		Dimension:   idx.Dimension,
		NumChunks:   len(idx.Chunks),
	}
	manifestBytes, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, manifestFile), manifestBytes, 0600); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}

	if err := writeChunks(filepath.Join(tmpDir, chunksFile), idx.Chunks); err != nil {
		return fmt.Errorf("writing chunks: %w", err)
	}

	vectorBytes := make([]byte, 0, len(idx.Vectors)*idx.Dimension*4)
	for _, v := range idx.Vectors {
		vectorBytes = append(vectorBytes, flat.EncodeVector(v)...)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, vectorsFile), vectorBytes, 0600); err != nil {
		return fmt.Errorf("writing vectors: %w", err)
	}

	finalDir := s.dirFor(idx.DocumentID)
	if err := os.RemoveAll(finalDir); err != nil {
		return fmt.Errorf("clearing previous index: %w", err)
	}
	if err := os.Rename(tmpDir, finalDir); err != nil {
		return fmt.Errorf("promoting index directory: %w", err)
	}

	return nil
}

func writeChunks(path string, chunks []domain.Chunk) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, c := range chunks {
		rec := chunkRecord{ID: c.ID, Ordinal: c.Ordinal, Text: c.Text, CharOffset: c.CharOffset}
		line, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if _, err := w.Write(line); err != nil {
			return err
		}
		if err := w.WriteByte('\n'); err != nil {
			return err
		}
	}
	return w.Flush()
}

// Delete removes the persisted index for handle, if any.
func (s *Store) Delete(_ context.Context, handle domain.Handle) error {
	if err := os.RemoveAll(s.dirFor(handle)); err != nil {
		return fmt.Errorf("deleting index: %w", err)
	}
	return nil
}
