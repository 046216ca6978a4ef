package vectorstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/dgallion1/pdfchat/internal/vectorstore/migrations"
)

// IndexFile is the database file name inside the persist directory.
const IndexFile = "index.db"

// SQLiteStore persists records in a single SQLite file.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (creating if needed) dir/index.db and applies pending
// migrations.
func NewSQLiteStore(dir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating persist directory: %w", err)
	}
	path := filepath.Join(dir, IndexFile)

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection serialises writers from concurrent ingest workers.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, path: path}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Path() string { return s.path }

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) migrate(fsys fs.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= current {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Add(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	dim, err := storedDim(ctx, tx, "")
	if err != nil {
		return err
	}
	if _, err := checkDims(records, dim); err != nil {
		return fmt.Errorf("add: %w", err)
	}
	if err := insertRecords(ctx, tx, records); err != nil {
		return err
	}
	return tx.Commit()
}

// ReplaceSource deletes and inserts inside one transaction, so readers see
// either the old or the new chunks of source.
func (s *SQLiteStore) ReplaceSource(ctx context.Context, source string, records []Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	dim, err := storedDim(ctx, tx, source)
	if err != nil {
		return err
	}
	if _, err := checkDims(records, dim); err != nil {
		return fmt.Errorf("replace %s: %w", source, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE source = ?", source); err != nil {
		return fmt.Errorf("replace %s: delete: %w", source, err)
	}
	if err := insertRecords(ctx, tx, records); err != nil {
		return err
	}
	return tx.Commit()
}

func insertRecords(ctx context.Context, tx *sql.Tx, records []Record) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, source, content_hash, chunk_index, page, breadcrumb, text, model, dim, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source = excluded.source,
			content_hash = excluded.content_hash,
			chunk_index = excluded.chunk_index,
			page = excluded.page,
			breadcrumb = excluded.breadcrumb,
			text = excluded.text,
			model = excluded.model,
			dim = excluded.dim,
			embedding = excluded.embedding
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		crumbs, err := json.Marshal(r.Chunk.Breadcrumb)
		if err != nil {
			return fmt.Errorf("marshal breadcrumb: %w", err)
		}
		_, err = stmt.ExecContext(ctx,
			r.Chunk.ID, r.Chunk.Source, r.Chunk.ContentHash, r.Chunk.Index, r.Chunk.Page,
			string(crumbs), r.Chunk.Text, r.Model, len(r.Embedding), float32SliceToBytes(r.Embedding),
		)
		if err != nil {
			return fmt.Errorf("insert chunk %s: %w", r.Chunk.ID, err)
		}
	}
	return nil
}

// storedDim reads the index dimension, ignoring rows of the except source.
func storedDim(ctx context.Context, tx *sql.Tx, except string) (int, error) {
	var dim int
	err := tx.QueryRowContext(ctx, "SELECT dim FROM chunks WHERE source != ? LIMIT 1", except).Scan(&dim)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading dimension: %w", err)
	}
	return dim, nil
}

func (s *SQLiteStore) Search(ctx context.Context, vector []float32, k int) ([]Match, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source, content_hash, chunk_index, page, breadcrumb, text, model, embedding
		FROM chunks ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		if len(r.Embedding) != len(vector) {
			return nil, fmt.Errorf("search: %w: index has %d, query has %d", ErrDimensionMismatch, len(r.Embedding), len(vector))
		}
		matches = append(matches, Match{Record: r, Score: CosineSimilarity(vector, r.Embedding)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return topK(matches, k), nil
}

func scanRecord(rows *sql.Rows) (Record, error) {
	var r Record
	var crumbs string
	var blob []byte
	err := rows.Scan(&r.Chunk.ID, &r.Chunk.Source, &r.Chunk.ContentHash, &r.Chunk.Index,
		&r.Chunk.Page, &crumbs, &r.Chunk.Text, &r.Model, &blob)
	if err != nil {
		return r, fmt.Errorf("scan chunk: %w", err)
	}
	if crumbs != "" && crumbs != "null" {
		if err := json.Unmarshal([]byte(crumbs), &r.Chunk.Breadcrumb); err != nil {
			return r, fmt.Errorf("unmarshal breadcrumb: %w", err)
		}
	}
	r.Embedding = bytesToFloat32Slice(blob)
	return r, nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Sources(ctx context.Context) ([]SourceInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source, MIN(content_hash), COUNT(*)
		FROM chunks GROUP BY source ORDER BY source
	`)
	if err != nil {
		return nil, fmt.Errorf("sources: %w", err)
	}
	defer rows.Close()

	var out []SourceInfo
	for rows.Next() {
		var info SourceInfo
		if err := rows.Scan(&info.Name, &info.ContentHash, &info.Chunks); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) HasContent(ctx context.Context, source, contentHash string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM chunks WHERE source = ? AND content_hash = ? LIMIT 1", source, contentHash,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("has content: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) DeleteSource(ctx context.Context, source string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM chunks WHERE source = ?", source); err != nil {
		return fmt.Errorf("delete source %s: %w", source, err)
	}
	return nil
}

func float32SliceToBytes(floats []float32) []byte {
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToFloat32Slice(data []byte) []float32 {
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
