package httpproxy

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaylabs/pdfqa-server/internal/core/domain"
)

func newTestServer(t *testing.T, tools *fakeToolCaller, handles *memHandleStore) *Server {
	t.Helper()
	dir := t.TempDir()
	return NewServer(tools, handles, nil, dir, 10<<20, 3, "sonar", []string{"http://localhost:3000"})
}

func multipartPDFBody(t *testing.T, filename string) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4 fake content"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf, w.FormDataContentType()
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t, newFakeToolCaller(), newMemHandleStore())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleUpload_Success(t *testing.T) {
	tools := newFakeToolCaller()
	tools.setResult("extract_pdf_metadata", map[string]any{"num_pages": 2})
	tools.setResult("index_document", map[string]any{"num_chunks": 5, "embedder_id": "mock-embed"})
	handles := newMemHandleStore()
	s := newTestServer(t, tools, handles)

	body, contentType := multipartPDFBody(t, "doc.pdf")
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp uploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "doc.pdf", resp.Filename)
	assert.Equal(t, 2, resp.NumPages)
	assert.Equal(t, 5, resp.NumChunks)
	assert.NotEmpty(t, resp.PDFID)

	_, err := handles.Get(req.Context(), domain.Handle(resp.PDFID))
	require.NoError(t, err)
}

func TestHandleUpload_RejectsNonPDF(t *testing.T) {
	s := newTestServer(t, newFakeToolCaller(), newMemHandleStore())

	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	part, err := w.CreateFormFile("file", "doc.txt")
	require.NoError(t, err)
	part.Write([]byte("not a pdf")) //nolint:errcheck
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleUpload_LowYieldStillSucceeds(t *testing.T) {
	tools := newFakeToolCaller()
	tools.setErr("extract_pdf_metadata", domain.NewError(domain.KindLowYield, "scanned PDF"))
	handles := newMemHandleStore()
	s := newTestServer(t, tools, handles)

	body, contentType := multipartPDFBody(t, "scan.pdf")
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp uploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.NumChunks)
	assert.Contains(t, resp.Message, "low")
}

func TestHandleUpload_ExtractFailedAbortsUpload(t *testing.T) {
	tools := newFakeToolCaller()
	tools.setErr("extract_pdf_metadata", domain.NewError(domain.KindExtractFailed, "corrupt PDF"))
	handles := newMemHandleStore()
	s := newTestServer(t, tools, handles)

	body, contentType := multipartPDFBody(t, "bad.pdf")
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	docs, _ := handles.List(req.Context())
	assert.Empty(t, docs)
}

func TestHandleAsk_UnknownHandle(t *testing.T) {
	s := newTestServer(t, newFakeToolCaller(), newMemHandleStore())

	req := httptest.NewRequest(http.MethodPost, "/ask/does-not-exist", bytes.NewBufferString(`{"question":"what?"}`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, string(domain.KindUnknownHandle), body.Kind)
}

func TestHandleAsk_Success(t *testing.T) {
	tools := newFakeToolCaller()
	tools.setResult("answer_question_rag", map[string]any{"question": "q", "answer": "Fredonia City", "chunks_retrieved": 2})
	handles := newMemHandleStore()
	handles.Save(nil, domain.Document{Handle: "abc", Path: "/tmp/abc.pdf", Filename: "abc.pdf"}) //nolint:errcheck
	s := newTestServer(t, tools, handles)

	req := httptest.NewRequest(http.MethodPost, "/ask/abc", bytes.NewBufferString(`{"question":"capital?"}`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp askResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Answers, 1)
	assert.Contains(t, resp.Answers[0].Answer, "Fredonia City")
	assert.Equal(t, "sonar", resp.Answers[0].Model)
}

func TestHandleAskMultiple_PartialFailure(t *testing.T) {
	tools := newFakeToolCaller()
	tools.setResult("answer_multiple_questions_rag", map[string]any{
		"total_questions": 2,
		"results": []map[string]any{
			{"question": "q1", "answer": "a1"},
			{"question": "q2", "answer": "", "error": map[string]any{"kind": "model_permanent", "detail": "upstream 400"}},
		},
	})
	handles := newMemHandleStore()
	handles.Save(nil, domain.Document{Handle: "abc", Path: "/tmp/abc.pdf"}) //nolint:errcheck
	s := newTestServer(t, tools, handles)

	req := httptest.NewRequest(http.MethodPost, "/ask-multiple/abc", bytes.NewBufferString(`{"questions":["q1","q2"]}`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp askResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Answers, 2)
	assert.Nil(t, resp.Answers[0].Error)
	require.NotNil(t, resp.Answers[1].Error)
	assert.Equal(t, "model_permanent", resp.Answers[1].Error.Kind)
}

func TestHandleList(t *testing.T) {
	handles := newMemHandleStore()
	handles.Save(nil, domain.Document{Handle: "abc", Filename: "abc.pdf"}) //nolint:errcheck
	s := newTestServer(t, newFakeToolCaller(), handles)

	req := httptest.NewRequest(http.MethodGet, "/pdfs", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var out []pdfListing
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "abc", out[0].PDFID)
}

func TestHandleDelete(t *testing.T) {
	handles := newMemHandleStore()
	handles.Save(nil, domain.Document{Handle: "abc", Path: "/tmp/does-not-exist.pdf"}) //nolint:errcheck
	s := newTestServer(t, newFakeToolCaller(), handles)

	req := httptest.NewRequest(http.MethodDelete, "/pdf/abc", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	_, err := handles.Get(req.Context(), "abc")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBackpressure_BackendUnavailable(t *testing.T) {
	tools := newFakeToolCaller()
	tools.unavailable = true
	s := newTestServer(t, tools, newMemHandleStore())

	req := httptest.NewRequest(http.MethodPost, "/ask/abc", bytes.NewBufferString(`{"question":"x"}`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
