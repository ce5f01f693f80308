// Package store is the content-addressed artifact store. Every stage
// output is registered under (stage name, input+parameter fingerprint);
// a later run with the same key reuses the artifact instead of running
// the stage again. Writes are append-only: the first registration of a
// key wins and concurrent writers of the same key converge on it.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/yumyai/ecophylo/internal/util"
)

// Artifact is one registered stage output.
type Artifact struct {
	Stage       string
	Fingerprint string
	Path        string
	CreatedAt   time.Time
}

// Store indexes artifacts in sqlite. The caller owns the *sql.DB.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS artifacts (
	stage       TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	path        TEXT NOT NULL,
	created_at  INTEGER NOT NULL,
	PRIMARY KEY (stage, fingerprint)
);
`

// New prepares the schema and wraps the handle.
func New(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("init artifact schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Fingerprint derives the content-addressed key from parameter strings
// and input fingerprints. Order of parts is the caller's contract.
func Fingerprint(parts ...string) string {
	return util.Sha256Hex([]byte(strings.Join(parts, "\x1f")))
}

// Lookup returns the artifact registered under (stage, fingerprint), if
// any.
func (s *Store) Lookup(ctx context.Context, stage, fingerprint string) (Artifact, bool, error) {

	row := s.db.QueryRowContext(ctx,
		`SELECT path, created_at FROM artifacts WHERE stage = ? AND fingerprint = ?`,
		stage, fingerprint)

	var a Artifact
	var createdAt int64
	err := row.Scan(&a.Path, &createdAt)
	if err == sql.ErrNoRows {
		return Artifact{}, false, nil
	}
	if err != nil {
		return Artifact{}, false, err
	}

	a.Stage = stage
	a.Fingerprint = fingerprint
	a.CreatedAt = time.Unix(createdAt, 0)
	return a, true, nil
}

// Put registers path under (stage, fingerprint). If the key already
// exists the existing artifact is returned untouched; the store never
// overwrites.
func (s *Store) Put(ctx context.Context, stage, fingerprint, path string) (Artifact, error) {

	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO artifacts (stage, fingerprint, path, created_at) VALUES (?, ?, ?, ?)`,
		stage, fingerprint, path, time.Now().Unix())
	if err != nil {
		return Artifact{}, err
	}

	a, ok, err := s.Lookup(ctx, stage, fingerprint)
	if err != nil {
		return Artifact{}, err
	}
	if !ok {
		return Artifact{}, fmt.Errorf("artifact (%s, %s) vanished after insert", stage, fingerprint)
	}
	return a, nil
}
