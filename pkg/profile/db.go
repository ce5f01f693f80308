package profile

import (
	"context"
	"database/sql"
	"fmt"
)

// Entry is one (representative, sample) cell of the merged profile. A
// failed sample leaves an explicit missing marker, never a silent
// absence.
type Entry struct {
	Representative string
	Sample         string
	Depth          float64
	Detection      float64
	Missing        bool
	Reason         string
}

// DB is the sqlite-backed merged coverage profile.
type DB struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS coverage (
	representative TEXT NOT NULL,
	sample         TEXT NOT NULL,
	depth          REAL NOT NULL DEFAULT 0,
	detection      REAL NOT NULL DEFAULT 0,
	missing        INTEGER NOT NULL DEFAULT 0,
	reason         TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (representative, sample)
);
`

// New prepares the schema and wraps the handle.
func New(db *sql.DB) (*DB, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("init coverage schema: %w", err)
	}
	return &DB{db: db}, nil
}

// AddSample stores one sample's coverage rows in a single transaction.
// Per-sample writes are append-only; a sample is written at most once.
func (p *DB) AddSample(ctx context.Context, sample string, covs []Coverage) error {

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	for _, c := range covs {
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO coverage (representative, sample, depth, detection, missing, reason)
			 VALUES (?, ?, ?, ?, 0, '')`,
			c.Representative, sample, c.Depth, c.Detection)
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// MarkMissing writes the explicit failure markers for one sample across
// all representatives. Existing rows are left alone.
func (p *DB) MarkMissing(ctx context.Context, sample string, representatives []string, reason string) error {

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	for _, rep := range representatives {
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO coverage (representative, sample, depth, detection, missing, reason)
			 VALUES (?, ?, 0, 0, 1, ?)`,
			rep, sample, reason)
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// SamplesPresent lists the samples that already have rows, missing
// markers included.
func (p *DB) SamplesPresent(ctx context.Context) (map[string]bool, error) {

	rows, err := p.db.QueryContext(ctx, `SELECT DISTINCT sample FROM coverage`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	present := make(map[string]bool)
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		present[s] = true
	}
	return present, rows.Err()
}

// Entries returns the whole merged profile ordered by representative
// then sample.
func (p *DB) Entries(ctx context.Context) ([]Entry, error) {

	rows, err := p.db.QueryContext(ctx,
		`SELECT representative, sample, depth, detection, missing, reason
		 FROM coverage ORDER BY representative, sample`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var missing int
		if err := rows.Scan(&e.Representative, &e.Sample, &e.Depth, &e.Detection, &missing, &e.Reason); err != nil {
			return nil, err
		}
		e.Missing = missing != 0
		out = append(out, e)
	}
	return out, rows.Err()
}
