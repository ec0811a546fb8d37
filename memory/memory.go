// Package memory implements a translation memory: a SQLite table of source
// lines and their accepted translations per (model, language, scope). The
// scope fingerprints the prompt and glossary, so editing either starts a
// fresh set of entries. Lines found in the memory are not sent to the
// provider again, which makes re-running an interrupted or extended batch
// cheap.
package memory

import (
	"context"
	"crypto/md5"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/minios-linux/batchtr/translate"
)

const schema = `CREATE TABLE IF NOT EXISTS memory (
	model       TEXT    NOT NULL,
	language    TEXT    NOT NULL,
	scope       TEXT    NOT NULL DEFAULT '',
	source_hash TEXT    NOT NULL,
	source      TEXT    NOT NULL,
	target      TEXT    NOT NULL,
	updated_at  INTEGER NOT NULL,
	PRIMARY KEY (model, language, scope, source_hash)
)`

// Key selects one set of remembered translations.
type Key struct {
	Model    string
	Language string
	// Scope is an opaque fingerprint of everything else that shapes a
	// translation, such as the system prompt and glossary.
	Scope string
}

// Store is a translation memory backed by a SQLite database file.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the memory database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	// Chunk workers share the database; one writer at a time.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating memory table in %s: %w", path, err)
	}
	return &Store{db: db, path: path}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Hash computes the MD5 hex digest of a source line.
func Hash(s string) string {
	return fmt.Sprintf("%x", md5.Sum([]byte(s)))
}

// Lookup returns the remembered translations of lines. ok is false unless
// every line is in the memory.
func (s *Store) Lookup(ctx context.Context, key Key, lines []string) (out []string, ok bool, err error) {
	if len(lines) == 0 {
		return nil, false, nil
	}

	stmt, err := s.db.PrepareContext(ctx, `SELECT target FROM memory WHERE model = ? AND language = ? AND scope = ? AND source_hash = ?`)
	if err != nil {
		return nil, false, fmt.Errorf("preparing lookup: %w", err)
	}
	defer stmt.Close()

	out = make([]string, len(lines))
	for i, line := range lines {
		err := stmt.QueryRowContext(ctx, key.Model, key.Language, key.Scope, Hash(line)).Scan(&out[i])
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, fmt.Errorf("looking up line: %w", err)
		}
	}
	return out, true, nil
}

// Put remembers translated[i] as the translation of source[i].
func (s *Store) Put(ctx context.Context, key Key, source, translated []string) error {
	if len(source) != len(translated) {
		return fmt.Errorf("memory: %d source lines but %d translations", len(source), len(translated))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO memory (model, language, scope, source_hash, source, target, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (model, language, scope, source_hash) DO UPDATE SET target = excluded.target, updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for i, src := range source {
		if _, err := stmt.ExecContext(ctx, key.Model, key.Language, key.Scope, Hash(src), src, translated[i], now); err != nil {
			return fmt.Errorf("storing line: %w", err)
		}
	}
	return tx.Commit()
}

// Len returns the number of remembered translations.
func (s *Store) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memory`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting memory entries: %w", err)
	}
	return n, nil
}

// Forget removes every remembered translation for language, in all models
// and scopes. It returns the number of removed entries.
func (s *Store) Forget(ctx context.Context, language string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memory WHERE language = ?`, language)
	if err != nil {
		return 0, fmt.Errorf("forgetting %s: %w", language, err)
	}
	return res.RowsAffected()
}

// Wrap returns a client that answers fully remembered chunks from the memory
// and remembers every count-matching result of next. model is used when a
// request does not name one; scope is stored with every entry.
func (s *Store) Wrap(next translate.Client, model, scope string, logger *slog.Logger) translate.Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &cachedClient{store: s, next: next, model: model, scope: scope, logger: logger}
}

type cachedClient struct {
	store  *Store
	next   translate.Client
	model  string
	scope  string
	logger *slog.Logger
}

func (c *cachedClient) TranslateChunk(ctx context.Context, req translate.Request) (translate.Result, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	key := Key{Model: model, Language: req.Language, Scope: c.scope}

	cached, ok, err := c.store.Lookup(ctx, key, req.Lines)
	if err != nil {
		c.logger.Warn("translation memory lookup failed", "seq", req.Seq, "error", err)
	}
	if ok {
		c.logger.Debug("chunk answered from translation memory", "seq", req.Seq, "lines", len(req.Lines))
		return translate.Result{
			Seq:        req.Seq,
			Original:   req.Lines,
			Translated: cached,
			Usage:      translate.Usage{Model: model, Cached: true},
		}, nil
	}

	res, err := c.next.TranslateChunk(ctx, req)
	if err != nil {
		return res, err
	}
	if !res.Mismatch() && len(res.Translated) > 0 {
		if err := c.store.Put(ctx, key, req.Lines, res.Translated); err != nil {
			c.logger.Warn("translation memory store failed", "seq", req.Seq, "error", err)
		}
	}
	return res, nil
}
