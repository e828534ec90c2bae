// Package store keeps dumped chunks in a SQLite database, addressed by the
// SHA-256 of their bytes, with a name history on top.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/luadump/chunk"
)

var log = commonlog.GetLogger("luadump.store")

var (
	// ErrNotFound indicates the requested chunk or name doesn't exist.
	ErrNotFound = errors.New("store: not found")
	// ErrNotChunk is returned by Put for data without a valid chunk header.
	ErrNotChunk = errors.New("store: not a chunk")
)

const schema = `
CREATE TABLE IF NOT EXISTS chunks (
	hash TEXT PRIMARY KEY,
	size INTEGER NOT NULL,
	data BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS names (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL,
	hash       TEXT NOT NULL REFERENCES chunks(hash),
	strip      INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS names_by_name ON names(name);
`

// Entry describes one stored chunk under one name.
type Entry struct {
	Hash    string
	Name    string
	Strip   bool
	Size    int
	Created time.Time
}

// Store is a chunk store backed by a SQLite file.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the store at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: creating directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: setting busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: creating tables: %w", err)
	}

	log.Debugf("opened chunk store %s", path)
	return &Store{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Hash returns the content address of a chunk.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Put stores data under name. Identical chunks are stored once; each Put
// adds a name record.
func (s *Store) Put(ctx context.Context, name string, strip bool, data []byte) (Entry, error) {
	if _, err := chunk.ReadHeader(data); err != nil {
		return Entry{}, fmt.Errorf("%w: %w", ErrNotChunk, err)
	}

	e := Entry{
		Hash:    Hash(data),
		Name:    name,
		Strip:   strip,
		Size:    len(data),
		Created: time.Now().UTC(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Entry{}, fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO chunks (hash, size, data) VALUES (?, ?, ?) ON CONFLICT(hash) DO NOTHING`,
		e.Hash, e.Size, data); err != nil {
		return Entry{}, fmt.Errorf("store: inserting chunk: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO names (name, hash, strip, created_at) VALUES (?, ?, ?, ?)`,
		name, e.Hash, strip, e.Created.UnixNano()); err != nil {
		return Entry{}, fmt.Errorf("store: inserting name: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Entry{}, fmt.Errorf("store: commit: %w", err)
	}

	log.Debugf("stored %s as %s (%d bytes)", name, e.Hash[:12], e.Size)
	return e, nil
}

// PutPrototype dumps p and stores the resulting chunk.
func (s *Store) PutPrototype(ctx context.Context, name string, p *chunk.Prototype, strip bool) (Entry, error) {
	data, err := chunk.Marshal(p, strip)
	if err != nil {
		return Entry{}, err
	}
	return s.Put(ctx, name, strip, data)
}

// Get returns the chunk with the given hash.
func (s *Store) Get(ctx context.Context, hash string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM chunks WHERE hash = ?`, hash).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: chunk %s", ErrNotFound, hash)
	}
	if err != nil {
		return nil, fmt.Errorf("store: reading chunk: %w", err)
	}
	return data, nil
}

// Lookup returns the most recent entry stored under name.
func (s *Store) Lookup(ctx context.Context, name string) (Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT n.hash, n.name, n.strip, c.size, n.created_at
		FROM names n JOIN chunks c ON c.hash = n.hash
		WHERE n.name = ?
		ORDER BY n.id DESC LIMIT 1`, name)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: name %q", ErrNotFound, name)
	}
	return e, err
}

// List returns every name record, oldest first.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT n.hash, n.name, n.strip, c.size, n.created_at
		FROM names n JOIN chunks c ON c.hash = n.hash
		ORDER BY n.id`)
	if err != nil {
		return nil, fmt.Errorf("store: listing: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Delete removes a chunk and every name that refers to it.
func (s *Store) Delete(ctx context.Context, hash string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM names WHERE hash = ?`, hash); err != nil {
		return fmt.Errorf("store: deleting names: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE hash = ?`, hash)
	if err != nil {
		return fmt.Errorf("store: deleting chunk: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: chunk %s", ErrNotFound, hash)
	}
	return tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (Entry, error) {
	var (
		e       Entry
		strip   int
		created int64
	)
	if err := sc.Scan(&e.Hash, &e.Name, &strip, &e.Size, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("store: scanning entry: %w", err)
	}
	e.Strip = strip != 0
	e.Created = time.Unix(0, created).UTC()
	return e, nil
}
