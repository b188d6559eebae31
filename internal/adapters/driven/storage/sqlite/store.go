package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/relaylabs/pdfqa-server/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/relaylabs/pdfqa-server/internal/core/domain"
	"github.com/relaylabs/pdfqa-server/internal/core/ports/driven"
)

// Store is a SQLite-backed implementation of driven.HandleStore.
type Store struct {
	db   *sql.DB
	path string
}

var _ driven.HandleStore = (*Store)(nil)

// NewStore creates a new SQLite handle store at the specified data directory.
// If dataDir is empty, defaults to ~/.pdfqa/data/handles.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".pdfqa", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "handles.db")

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, path: dbPath}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Path returns the underlying database file path.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
	}

	return nil
}

// Save records or replaces the document registered under handle.
func (s *Store) Save(ctx context.Context, doc domain.Document) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO handles (handle, path, filename, title, author, num_pages, num_characters, file_size, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(handle) DO UPDATE SET
			path = excluded.path,
			filename = excluded.filename,
			title = excluded.title,
			author = excluded.author,
			num_pages = excluded.num_pages,
			num_characters = excluded.num_characters,
			file_size = excluded.file_size,
			uploaded_at = excluded.uploaded_at
	`, string(doc.Handle), doc.Path, doc.Filename, doc.Title, doc.Author,
		doc.NumPages, doc.NumCharacters, doc.FileSize, doc.UploadedAt)
	if err != nil {
		return fmt.Errorf("saving handle: %w", err)
	}
	return nil
}

// Get returns the document registered under handle.
func (s *Store) Get(ctx context.Context, handle domain.Handle) (domain.Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT handle, path, filename, title, author, num_pages, num_characters, file_size, uploaded_at
		FROM handles WHERE handle = ?
	`, string(handle))

	doc, err := scanDocument(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Document{}, domain.ErrNotFound
		}
		return domain.Document{}, fmt.Errorf("loading handle: %w", err)
	}
	return doc, nil
}

// List returns all registered documents, most recently uploaded first.
func (s *Store) List(ctx context.Context) ([]domain.Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT handle, path, filename, title, author, num_pages, num_characters, file_size, uploaded_at
		FROM handles ORDER BY uploaded_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("listing handles: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		var (
			handle, path, filename, title, author string
			numPages, numChars                     int
			fileSize                               int64
			uploadedAt                              time.Time
		)
		if err := rows.Scan(&handle, &path, &filename, &title, &author, &numPages, &numChars, &fileSize, &uploadedAt); err != nil {
			return nil, fmt.Errorf("scanning handle row: %w", err)
		}
		docs = append(docs, domain.Document{
			Handle:        domain.Handle(handle),
			Path:          path,
			Filename:      filename,
			Title:         title,
			Author:        author,
			NumPages:      numPages,
			NumCharacters: numChars,
			FileSize:      fileSize,
			UploadedAt:    uploadedAt,
		})
	}
	return docs, rows.Err()
}

// Delete removes the handle and its document record.
func (s *Store) Delete(ctx context.Context, handle domain.Handle) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM handles WHERE handle = ?`, string(handle))
	if err != nil {
		return fmt.Errorf("deleting handle: %w", err)
	}
	return nil
}

func scanDocument(row *sql.Row) (domain.Document, error) {
	var (
		handle, path, filename, title, author string
		numPages, numChars                     int
		fileSize                               int64
		uploadedAt                              time.Time
	)
	if err := row.Scan(&handle, &path, &filename, &title, &author, &numPages, &numChars, &fileSize, &uploadedAt); err != nil {
		return domain.Document{}, err
	}
	return domain.Document{
		Handle:        domain.Handle(handle),
		Path:          path,
		Filename:      filename,
		Title:         title,
		Author:        author,
		NumPages:      numPages,
		NumCharacters: numChars,
		FileSize:      fileSize,
		UploadedAt:    uploadedAt,
	}, nil
}
