package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaylabs/pdfqa-server/internal/core/domain"
)

func TestRegistry_BuildsOnceAndCaches(t *testing.T) {
	var calls int32
	reg := NewRegistry(func(ctx context.Context, handle domain.Handle) (domain.DocumentIndex, error) {
		atomic.AddInt32(&calls, 1)
		return domain.DocumentIndex{DocumentID: handle}, nil
	})

	idx, err := reg.Get(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, domain.Handle("doc-1"), idx.DocumentID)

	_, err = reg.Get(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestRegistry_ConcurrentGetsShareOneBuild(t *testing.T) {
	var calls int32
	start := make(chan struct{})
	reg := NewRegistry(func(ctx context.Context, handle domain.Handle) (domain.DocumentIndex, error) {
		atomic.AddInt32(&calls, 1)
		<-start
		return domain.DocumentIndex{DocumentID: handle}, nil
	})

	var wg sync.WaitGroup
	results := make([]domain.DocumentIndex, 10)
	for i := 0; i < 10; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			idx, err := reg.Get(context.Background(), "doc-1")
			require.NoError(t, err)
			results[i] = idx
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(start)
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	for _, idx := range results {
		assert.Equal(t, domain.Handle("doc-1"), idx.DocumentID)
	}
}

func TestRegistry_FailedBuildIsCachedAsFailed(t *testing.T) {
	wantErr := domain.NewError(domain.KindExtractFailed, "boom")
	reg := NewRegistry(func(ctx context.Context, handle domain.Handle) (domain.DocumentIndex, error) {
		return domain.DocumentIndex{}, wantErr
	})

	_, err := reg.Get(context.Background(), "doc-1")
	assert.Equal(t, wantErr, err)
	assert.Equal(t, domain.BuildStateFailed, reg.State("doc-1"))

	_, err = reg.Get(context.Background(), "doc-1")
	assert.Equal(t, wantErr, err)
}

func TestRegistry_Invalidate_ForcesRebuild(t *testing.T) {
	var calls int32
	reg := NewRegistry(func(ctx context.Context, handle domain.Handle) (domain.DocumentIndex, error) {
		atomic.AddInt32(&calls, 1)
		return domain.DocumentIndex{DocumentID: handle}, nil
	})

	_, err := reg.Get(context.Background(), "doc-1")
	require.NoError(t, err)
	reg.Invalidate("doc-1")

	_, err = reg.Get(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestRegistry_Delete_RefusesDuringBuild(t *testing.T) {
	start := make(chan struct{})
	done := make(chan struct{})
	reg := NewRegistry(func(ctx context.Context, handle domain.Handle) (domain.DocumentIndex, error) {
		close(start)
		<-done
		return domain.DocumentIndex{DocumentID: handle}, nil
	})

	go func() {
		_, _ = reg.Get(context.Background(), "doc-1")
	}()

	<-start
	err := reg.Delete("doc-1")
	assert.Error(t, err)
	assert.Equal(t, domain.KindIndexUnavailable, domain.KindOf(err))
	close(done)
}

func TestRegistry_HandlesAreUniquePerPath(t *testing.T) {
	paths := map[domain.Handle]string{
		"h1": "/docs/a.pdf",
		"h2": "/docs/b.pdf",
	}
	var buildCalls int32
	reg := NewRegistry(func(ctx context.Context, handle domain.Handle) (domain.DocumentIndex, error) {
		atomic.AddInt32(&buildCalls, 1)
		path, ok := paths[handle]
		require.True(t, ok, "build invoked for unknown handle %s", handle)
		return domain.DocumentIndex{DocumentID: handle, EmbedderID: path}, nil
	})

	idx1, err := reg.Get(context.Background(), "h1")
	require.NoError(t, err)
	idx2, err := reg.Get(context.Background(), "h2")
	require.NoError(t, err)

	assert.Equal(t, "/docs/a.pdf", idx1.EmbedderID)
	assert.Equal(t, "/docs/b.pdf", idx2.EmbedderID)
	assert.NotEqual(t, idx1.DocumentID, idx2.DocumentID)

	// Re-fetching each handle must keep resolving to the path it was
	// first built against, never drifting onto the other handle's
	// entry: a handle maps to at most one path for its lifetime.
	again1, err := reg.Get(context.Background(), "h1")
	require.NoError(t, err)
	again2, err := reg.Get(context.Background(), "h2")
	require.NoError(t, err)
	assert.Equal(t, idx1, again1)
	assert.Equal(t, idx2, again2)
	assert.EqualValues(t, 2, atomic.LoadInt32(&buildCalls))
}

func TestRegistry_StateAbsentForUnknownHandle(t *testing.T) {
	reg := NewRegistry(func(ctx context.Context, handle domain.Handle) (domain.DocumentIndex, error) {
		return domain.DocumentIndex{}, nil
	})
	assert.Equal(t, domain.BuildStateAbsent, reg.State("missing"))
}
