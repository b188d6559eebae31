package httpproxy

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/relaylabs/pdfqa-server/internal/core/domain"
)

// fakeToolCaller implements driven.ToolCaller with one canned result or
// error per tool name.
type fakeToolCaller struct {
	mu          sync.Mutex
	results     map[string]json.RawMessage
	errs        map[string]error
	unavailable bool
	lastArgs    map[string]any
}

func newFakeToolCaller() *fakeToolCaller {
	return &fakeToolCaller{results: map[string]json.RawMessage{}, errs: map[string]error{}}
}

func (f *fakeToolCaller) setResult(tool string, v any) {
	b, _ := json.Marshal(v)
	f.mu.Lock()
	f.results[tool] = b
	f.mu.Unlock()
}

func (f *fakeToolCaller) setErr(tool string, err error) {
	f.mu.Lock()
	f.errs[tool] = err
	f.mu.Unlock()
}

func (f *fakeToolCaller) Call(_ context.Context, tool string, arguments any) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastArgs = arguments.(map[string]any)
	if err, ok := f.errs[tool]; ok {
		return nil, err
	}
	return f.results[tool], nil
}

func (f *fakeToolCaller) Unavailable() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unavailable
}

// memHandleStore implements driven.HandleStore in memory for tests.
type memHandleStore struct {
	mu   sync.Mutex
	docs map[domain.Handle]domain.Document
}

func newMemHandleStore() *memHandleStore {
	return &memHandleStore{docs: map[domain.Handle]domain.Document{}}
}

func (m *memHandleStore) Save(_ context.Context, doc domain.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.Handle] = doc
	return nil
}

func (m *memHandleStore) Get(_ context.Context, handle domain.Handle) (domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[handle]
	if !ok {
		return domain.Document{}, domain.ErrNotFound
	}
	return doc, nil
}

func (m *memHandleStore) List(_ context.Context) ([]domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Document, 0, len(m.docs))
	for _, d := range m.docs {
		out = append(out, d)
	}
	return out, nil
}

func (m *memHandleStore) Delete(_ context.Context, handle domain.Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, handle)
	return nil
}
