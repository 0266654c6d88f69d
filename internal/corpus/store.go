// Package corpus persists the per-course index of accepted question texts
// used for duplicate detection.
package corpus

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"quizimport/internal/importer"
)

const schema = `
CREATE TABLE IF NOT EXISTS question_corpus (
  course_id  BIGINT NOT NULL,
  kind       TEXT NOT NULL,
  norm_text  TEXT NOT NULL,
  created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY (course_id, kind, norm_text)
)`

// Store is a SQL-backed importer.Corpus. The statements are valid for both
// postgres (pgx) and sqlite.
type Store struct {
	db *sql.DB
}

var _ importer.Corpus = (*Store)(nil)

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create corpus schema: %w", err)
	}
	return nil
}

func (s *Store) Lookup(ctx context.Context, courseID int64, keys []importer.CorpusKey) (importer.CorpusKey, bool, error) {
	for _, k := range keys {
		var one int
		err := s.db.QueryRowContext(ctx, `
			SELECT 1 FROM question_corpus
			WHERE course_id = $1 AND kind = $2 AND norm_text = $3
			LIMIT 1
		`, courseID, string(k.Kind), k.Text).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return importer.CorpusKey{}, false, fmt.Errorf("lookup corpus: %w", err)
		}
		return k, true, nil
	}
	return importer.CorpusKey{}, false, nil
}

// Add inserts keys in one transaction. The insert itself decides
// acceptance: a key that some other writer stored first affects no row, the
// transaction is rolled back and an *importer.ConflictError is returned.
func (s *Store) Add(ctx context.Context, courseID int64, keys []importer.CorpusKey) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin corpus tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, k := range keys {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO question_corpus (course_id, kind, norm_text)
			VALUES ($1, $2, $3)
			ON CONFLICT DO NOTHING
		`, courseID, string(k.Kind), k.Text)
		if err != nil {
			return fmt.Errorf("insert corpus entry: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("insert corpus entry: %w", err)
		}
		if n == 0 {
			return &importer.ConflictError{Key: k}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit corpus tx: %w", err)
	}
	return nil
}
