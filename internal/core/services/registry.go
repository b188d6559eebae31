// Package services implements the core use cases of the PDF Q&A server:
// chunking, retrieval, answer assembly and the document registry that
// ties them together. Nothing in this package knows about JSON-RPC,
// HTTP, or any concrete adapter; it only depends on domain and the
// driven ports.
package services

import (
	"context"
	"sync"

	"github.com/relaylabs/pdfqa-server/internal/core/domain"
	"github.com/relaylabs/pdfqa-server/internal/logger"
)

// BuildFunc produces a fresh DocumentIndex for handle. It runs outside
// the registry's lock.
type BuildFunc func(ctx context.Context, handle domain.Handle) (domain.DocumentIndex, error)

// entry is one document's registry slot. done is closed exactly once,
// by whichever caller owns the build, after state settles into Ready
// or Failed.
type entry struct {
	state domain.BuildState
	index domain.DocumentIndex
	err   error
	done  chan struct{}
}

// Registry is the process-global, single-flight cache of per-document
// indices. Concurrent callers for the same handle share one build: the
// first caller to observe BuildStateAbsent owns the build and runs it
// outside the lock; later callers block on the entry's done channel
// instead of racing it.
type Registry struct {
	mu      sync.Mutex
	entries map[domain.Handle]*entry
	build   BuildFunc
}

// NewRegistry creates a Registry that uses build to materialize an
// index the first time a handle is requested or invalidated.
func NewRegistry(build BuildFunc) *Registry {
	return &Registry{
		entries: make(map[domain.Handle]*entry),
		build:   build,
	}
}

// Get returns the ready index for handle, building it first if absent
// and waiting for an in-flight build if one is already underway. It
// never returns an index in BuildStateBuilding.
func (r *Registry) Get(ctx context.Context, handle domain.Handle) (domain.DocumentIndex, error) {
	r.mu.Lock()
	e, ok := r.entries[handle]
	if !ok {
		e = &entry{state: domain.BuildStateAbsent, done: make(chan struct{})}
		r.entries[handle] = e
	}

	switch e.state {
	case domain.BuildStateReady:
		r.mu.Unlock()
		return e.index, nil
	case domain.BuildStateFailed:
		r.mu.Unlock()
		return domain.DocumentIndex{}, e.err
	case domain.BuildStateBuilding:
		r.mu.Unlock()
		return r.wait(ctx, e)
	}

	// BuildStateAbsent: this caller owns the build.
	e.state = domain.BuildStateBuilding
	r.mu.Unlock()

	logger.Debug("registry: building index for %s", handle)
	idx, err := r.build(ctx, handle)

	r.mu.Lock()
	if err != nil {
		e.state = domain.BuildStateFailed
		e.err = err
	} else {
		e.state = domain.BuildStateReady
		e.index = idx
	}
	close(e.done)
	r.mu.Unlock()

	if err != nil {
		logger.Debug("registry: build failed for %s: %v", handle, err)
		return domain.DocumentIndex{}, err
	}
	return idx, nil
}

// wait blocks until the build owned by another caller settles, or ctx
// is cancelled first.
func (r *Registry) wait(ctx context.Context, e *entry) (domain.DocumentIndex, error) {
	select {
	case <-e.done:
		r.mu.Lock()
		defer r.mu.Unlock()
		if e.state == domain.BuildStateFailed {
			return domain.DocumentIndex{}, e.err
		}
		return e.index, nil
	case <-ctx.Done():
		return domain.DocumentIndex{}, ctx.Err()
	}
}

// Invalidate discards any cached index for handle, forcing the next
// Get to rebuild it. It is a no-op if a build is currently in flight;
// callers must not invalidate a handle they know to be building.
func (r *Registry) Invalidate(handle domain.Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[handle]; ok && e.state != domain.BuildStateBuilding {
		delete(r.entries, handle)
	}
}

// Delete removes handle's entry outright. It refuses while a build is
// in flight, mirroring the invariant that a handle's index is never
// deleted out from under a concurrent builder.
func (r *Registry) Delete(handle domain.Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[handle]; ok {
		if e.state == domain.BuildStateBuilding {
			return domain.NewError(domain.KindIndexUnavailable, "cannot delete a document while its index is building")
		}
		delete(r.entries, handle)
	}
	return nil
}

// State reports the current build state of handle, BuildStateAbsent if
// no entry exists.
func (r *Registry) State(handle domain.Handle) domain.BuildState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[handle]; ok {
		return e.state
	}
	return domain.BuildStateAbsent
}
