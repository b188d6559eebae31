package httpproxy

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/relaylabs/pdfqa-server/internal/core/domain"
)

const toolCallGrace = 60 * time.Second

// --- POST /upload ---

type uploadResponse struct {
	PDFID     string `json:"pdf_id"`
	Filename  string `json:"filename"`
	NumPages  int    `json:"num_pages"`
	NumChunks int    `json:"num_chunks"`
	Message   string `json:"message"`
}

type metadataResult struct {
	NumPages int `json:"num_pages"`
}

type indexResult struct {
	NumChunks int `json:"num_chunks"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			json.NewEncoder(w).Encode(errorBody{Kind: string(domain.KindInvalidUpload), Detail: "upload exceeds the maximum accepted size"}) //nolint:errcheck
			return
		}
		writeErrorKind(w, domain.KindInvalidUpload, "malformed multipart upload: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeErrorKind(w, domain.KindInvalidUpload, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	if filepath.Ext(header.Filename) != ".pdf" {
		writeErrorKind(w, domain.KindInvalidUpload, "only PDF files are accepted")
		return
	}

	pdfID := uuid.New().String()
	if err := os.MkdirAll(filepath.Join(s.dataDir, "uploads"), 0700); err != nil {
		writeErrorKind(w, domain.KindInternal, "creating upload directory: "+err.Error())
		return
	}
	destPath := filepath.Join(s.dataDir, "uploads", pdfID+".pdf")

	dest, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		writeErrorKind(w, domain.KindInternal, "persisting upload: "+err.Error())
		return
	}
	written, err := io.Copy(dest, file)
	dest.Close() //nolint:errcheck
	if err != nil {
		os.Remove(destPath) //nolint:errcheck
		writeErrorKind(w, domain.KindInternal, "persisting upload: "+err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), toolCallGrace)
	defer cancel()

	numPages, lowYield, err := s.probeMetadata(ctx, destPath)
	if err != nil {
		os.Remove(destPath) //nolint:errcheck
		writeError(w, err)
		return
	}

	numChunks := 0
	message := "uploaded and indexed successfully"
	if lowYield {
		message = "uploaded, but extracted text density is too low to index (likely a scanned or image-only PDF)"
	} else {
		numChunks, lowYield, err = s.probeIndex(ctx, destPath)
		if err != nil {
			os.Remove(destPath) //nolint:errcheck
			writeError(w, err)
			return
		}
		if lowYield {
			message = "uploaded, but extracted text density is too low to index (likely a scanned or image-only PDF)"
		}
	}

	doc := domain.Document{
		Handle:     domain.Handle(pdfID),
		Path:       destPath,
		Filename:   header.Filename,
		NumPages:   numPages,
		FileSize:   written,
		UploadedAt: time.Now(),
	}
	if err := s.handles.Save(ctx, doc); err != nil {
		os.Remove(destPath) //nolint:errcheck
		writeErrorKind(w, domain.KindInternal, "recording upload: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		PDFID: pdfID, Filename: header.Filename, NumPages: numPages, NumChunks: numChunks, Message: message,
	})
}

// probeMetadata calls extract_pdf_metadata to learn the page count. A
// low_yield failure is reported as such rather than as an error, since
// an image-only upload should still succeed; any other failure aborts
// the upload.
func (s *Server) probeMetadata(ctx context.Context, path string) (numPages int, lowYield bool, err error) {
	raw, callErr := s.tools.Call(ctx, "extract_pdf_metadata", map[string]any{"pdf_path": path})
	if callErr != nil {
		if domain.KindOf(callErr) == domain.KindLowYield {
			return 0, true, nil
		}
		return 0, false, callErr
	}
	var meta metadataResult
	if err := json.Unmarshal(raw, &meta); err != nil {
		return 0, false, domain.NewError(domain.KindInternal, "decoding metadata result: "+err.Error())
	}
	return meta.NumPages, false, nil
}

// probeIndex calls index_document to force the chunk/vector build
// eagerly and learn num_chunks, with the same low_yield tolerance as
// probeMetadata.
func (s *Server) probeIndex(ctx context.Context, path string) (numChunks int, lowYield bool, err error) {
	raw, callErr := s.tools.Call(ctx, "index_document", map[string]any{"pdf_path": path})
	if callErr != nil {
		if domain.KindOf(callErr) == domain.KindLowYield {
			return 0, true, nil
		}
		return 0, false, callErr
	}
	var idx indexResult
	if err := json.Unmarshal(raw, &idx); err != nil {
		return 0, false, domain.NewError(domain.KindInternal, "decoding index result: "+err.Error())
	}
	return idx.NumChunks, false, nil
}

// --- POST /ask/{pdf_id} and POST /ask-multiple/{pdf_id} ---

type askRequest struct {
	Question string `json:"question"`
}

type askMultipleRequest struct {
	Questions []string `json:"questions"`
}

type answerOutput struct {
	Question string         `json:"question"`
	Answer   string         `json:"answer"`
	Model    string         `json:"model"`
	Usage    map[string]any `json:"usage,omitempty"`
	Error    *errorBody     `json:"error,omitempty"`
}

type askResponse struct {
	PDFID          string         `json:"pdf_id"`
	Answers        []answerOutput `json:"answers"`
	ProcessingTime float64        `json:"processing_time"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	pdfID := r.PathValue("pdf_id")
	doc, err := s.handles.Get(r.Context(), domain.Handle(pdfID))
	if err != nil {
		s.writeUnknownHandle(w, err)
		return
	}

	var body askRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Question == "" {
		writeErrorKind(w, domain.KindBadInput, "question is required")
		return
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(r.Context(), toolCallGrace)
	defer cancel()

	raw, callErr := s.tools.Call(ctx, "answer_question_rag", map[string]any{
		"pdf_path": doc.Path, "question": body.Question, "top_k": s.defaultTopK,
	})
	if callErr != nil {
		writeError(w, callErr)
		return
	}

	var result struct {
		Answer string `json:"answer"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		writeErrorKind(w, domain.KindInternal, "decoding answer result: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, askResponse{
		PDFID: pdfID,
		Answers: []answerOutput{
			{Question: body.Question, Answer: result.Answer, Model: s.modelID},
		},
		ProcessingTime: time.Since(start).Seconds(),
	})
}

func (s *Server) handleAskMultiple(w http.ResponseWriter, r *http.Request) {
	pdfID := r.PathValue("pdf_id")
	doc, err := s.handles.Get(r.Context(), domain.Handle(pdfID))
	if err != nil {
		s.writeUnknownHandle(w, err)
		return
	}

	var body askMultipleRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Questions) == 0 {
		writeErrorKind(w, domain.KindBadInput, "questions is required and must be non-empty")
		return
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(r.Context(), toolCallGrace)
	defer cancel()

	raw, callErr := s.tools.Call(ctx, "answer_multiple_questions_rag", map[string]any{
		"pdf_path": doc.Path, "questions": body.Questions, "top_k": s.defaultTopK,
	})
	if callErr != nil {
		writeError(w, callErr)
		return
	}

	var result struct {
		Results []struct {
			Question string     `json:"question"`
			Answer   string     `json:"answer"`
			Error    *errorBody `json:"error,omitempty"`
		} `json:"results"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		writeErrorKind(w, domain.KindInternal, "decoding multi-answer result: "+err.Error())
		return
	}

	answers := make([]answerOutput, len(result.Results))
	for i, r := range result.Results {
		answers[i] = answerOutput{Question: r.Question, Answer: r.Answer, Model: s.modelID, Error: r.Error}
	}

	writeJSON(w, http.StatusOK, askResponse{PDFID: pdfID, Answers: answers, ProcessingTime: time.Since(start).Seconds()})
}

func (s *Server) writeUnknownHandle(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		writeErrorKind(w, domain.KindUnknownHandle, "no PDF is registered under this id; upload it first")
		return
	}
	writeErrorKind(w, domain.KindInternal, err.Error())
}

// --- GET /pdfs ---

type pdfListing struct {
	PDFID      string    `json:"pdf_id"`
	Filename   string    `json:"filename"`
	UploadedAt time.Time `json:"uploaded_at"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	docs, err := s.handles.List(r.Context())
	if err != nil {
		writeErrorKind(w, domain.KindInternal, err.Error())
		return
	}
	out := make([]pdfListing, len(docs))
	for i, d := range docs {
		out[i] = pdfListing{PDFID: string(d.Handle), Filename: d.Filename, UploadedAt: d.UploadedAt}
	}
	writeJSON(w, http.StatusOK, out)
}

// --- DELETE /pdf/{pdf_id} ---

type deleteResponse struct {
	Deleted string `json:"deleted"`
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	pdfID := r.PathValue("pdf_id")
	doc, err := s.handles.Get(r.Context(), domain.Handle(pdfID))
	if err != nil {
		s.writeUnknownHandle(w, err)
		return
	}
	if err := s.handles.Delete(r.Context(), domain.Handle(pdfID)); err != nil {
		writeErrorKind(w, domain.KindInternal, err.Error())
		return
	}
	os.Remove(doc.Path) //nolint:errcheck

	writeJSON(w, http.StatusOK, deleteResponse{Deleted: pdfID})
}
