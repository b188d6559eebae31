// Package pdftotext implements driven.TextExtractor by shelling out to
// poppler-utils (pdftotext, pdfinfo), following the same CommandRunner
// injection pattern the teacher's PDF normaliser test exercised without
// an implementation to back it: Go has no actively-maintained
// pure-Go PDF text extraction library in the example pack, so this
// component treats PDF parsing as an external capability, same as
// original_source's pdfplumber/PyPDF2 wrapper does from Python's side.
package pdftotext

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/relaylabs/pdfqa-server/internal/core/domain"
	"github.com/relaylabs/pdfqa-server/internal/core/ports/driven"
)

// ErrPDFToolNotFound is returned when pdftotext is not on PATH.
var ErrPDFToolNotFound = errors.New("pdftotext: required tool not found in PATH, install poppler-utils")

// lowYieldCharsPerPage is the average extracted characters per page
// below which a PDF is treated as image-only.
const lowYieldCharsPerPage = 100

// CommandRunner abstracts process execution so tests can inject a fake
// without invoking a real binary.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// execRunner runs real commands via os/exec.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return nil, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return stdout.Bytes(), nil
}

// Extractor extracts text and metadata from PDF files via poppler-utils.
type Extractor struct {
	runner CommandRunner
}

var _ driven.TextExtractor = (*Extractor)(nil)

// New creates an Extractor that shells out to the real pdftotext/pdfinfo
// binaries.
func New() *Extractor {
	return &Extractor{runner: execRunner{}}
}

// NewWithRunner creates an Extractor backed by a custom CommandRunner,
// for testing.
func NewWithRunner(runner CommandRunner) *Extractor {
	return &Extractor{runner: runner}
}

// CheckAvailable verifies pdftotext is reachable on PATH.
func (e *Extractor) CheckAvailable(ctx context.Context) error {
	if _, ok := e.runner.(execRunner); ok {
		if _, err := exec.LookPath("pdftotext"); err != nil {
			return ErrPDFToolNotFound
		}
		return nil
	}
	// Injected runners are assumed available; they stand in for the tool.
	return nil
}

// InstallInstructions returns a human-readable remediation hint for a
// missing pdftotext binary.
func InstallInstructions() string {
	return "pdftotext was not found. Install poppler-utils:\n" +
		"  macOS:  brew install poppler\n" +
		"  Debian/Ubuntu: apt install poppler-utils"
}

// Extract reads the PDF at path and returns its full text and metadata.
func (e *Extractor) Extract(ctx context.Context, path string) (driven.ExtractedDocument, error) {
	info, err := e.extractInfo(ctx, path)
	if err != nil {
		return driven.ExtractedDocument{}, err
	}

	textBytes, err := e.runner.Run(ctx, "pdftotext", "-layout", path, "-")
	if err != nil {
		if isPasswordError(err) {
			return driven.ExtractedDocument{}, domain.Wrap(domain.KindExtractFailed, fmt.Errorf("password-protected PDF: %w", err))
		}
		return driven.ExtractedDocument{}, domain.Wrap(domain.KindExtractFailed, err)
	}
	content := string(textBytes)

	if info.numPages > 0 && len(content)/info.numPages < lowYieldCharsPerPage {
		return driven.ExtractedDocument{}, domain.NewError(domain.KindLowYield,
			fmt.Sprintf("average %d characters/page across %d pages, likely image-only", len(content)/info.numPages, info.numPages))
	}

	title := info.title
	if title == "" {
		title = extractTitle(content, path)
	}

	return driven.ExtractedDocument{
		Content:  content,
		Title:    title,
		Author:   info.author,
		NumPages: info.numPages,
	}, nil
}

// Search finds matches of query within the PDF at path, literal when
// caseSensitive is true and case-folded otherwise.
func (e *Extractor) Search(ctx context.Context, path, query string, caseSensitive bool) ([]driven.SearchHit, error) {
	doc, err := e.Extract(ctx, path)
	if err != nil {
		return nil, err
	}

	haystack, needle := doc.Content, query
	if !caseSensitive {
		haystack, needle = strings.ToLower(doc.Content), strings.ToLower(query)
	}
	if needle == "" {
		return nil, nil
	}

	var hits []driven.SearchHit
	start := 0
	for {
		idx := strings.Index(haystack[start:], needle)
		if idx == -1 {
			break
		}
		offset := start + idx
		hits = append(hits, driven.SearchHit{
			Page:    estimatePage(doc.Content, offset, doc.NumPages),
			Snippet: snippetAround(doc.Content, offset, len(query)),
			Offset:  offset,
		})
		start = offset + len(query)
	}
	return hits, nil
}

type pdfInfo struct {
	title    string
	author   string
	numPages int
}

func (e *Extractor) extractInfo(ctx context.Context, path string) (pdfInfo, error) {
	out, err := e.runner.Run(ctx, "pdfinfo", path)
	if err != nil {
		if isPasswordError(err) {
			return pdfInfo{}, domain.Wrap(domain.KindExtractFailed, fmt.Errorf("password-protected PDF: %w", err))
		}
		return pdfInfo{}, domain.Wrap(domain.KindExtractFailed, err)
	}

	var info pdfInfo
	for _, line := range strings.Split(string(out), "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "Title":
			info.title = value
		case "Author":
			info.author = value
		case "Pages":
			if n, err := strconv.Atoi(value); err == nil {
				info.numPages = n
			}
		}
	}
	return info, nil
}

func isPasswordError(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "incorrect password") ||
		strings.Contains(strings.ToLower(err.Error()), "command line error")
}

// extractTitle falls back to the first non-empty line of content, or a
// filename-derived title when content is empty.
func extractTitle(content, path string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && len(line) <= 200 {
			return line
		}
	}

	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.ReplaceAll(base, "_", " ")
}

func estimatePage(content string, offset, numPages int) int {
	if numPages <= 0 || len(content) == 0 {
		return 1
	}
	page := (offset*numPages)/len(content) + 1
	if page > numPages {
		page = numPages
	}
	return page
}

func snippetAround(content string, offset, matchLen int) string {
	const context = 60
	start := offset - context
	if start < 0 {
		start = 0
	}
	end := offset + matchLen + context
	if end > len(content) {
		end = len(content)
	}
	return strings.TrimSpace(content[start:end])
}
