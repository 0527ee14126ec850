package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"concilia/internal/domain"
	"concilia/pkg/platform/sentinel"
)

const uniqueViolation = "23505"

// PostgresStore persists records append-only: every pass inserts a row and
// no row is ever updated. The full record is kept as JSONB next to the
// columns reviewers and audits query on.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Schema creates the table. Migrations proper are owned by deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS metadata_records (
	id                 UUID PRIMARY KEY,
	case_id            TEXT NOT NULL,
	revision           INT NOT NULL,
	supersedes_id      UUID NULL REFERENCES metadata_records(id),
	created_at         TIMESTAMPTZ NOT NULL,
	is_valid           BOOLEAN NOT NULL,
	missing_fields     TEXT[] NOT NULL DEFAULT '{}',
	conflicting_fields TEXT[] NOT NULL DEFAULT '{}',
	rfcs               TEXT[] NOT NULL DEFAULT '{}',
	data               JSONB NOT NULL,
	UNIQUE (case_id, revision)
);
CREATE INDEX IF NOT EXISTS metadata_records_rfcs_idx ON metadata_records USING GIN (rfcs);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate metadata_records: %w", err)
	}
	return nil
}

// Append inserts record when its revision directly follows the stored
// latest. A concurrent pass for the same case loses on the unique key and
// gets sentinel.ErrConflict.
func (s *PostgresStore) Append(ctx context.Context, record *domain.UnifiedMetadataRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	var supersedes any
	if record.SupersedesID != uuid.Nil {
		supersedes = record.SupersedesID
	}

	query := `
		INSERT INTO metadata_records
			(id, case_id, revision, supersedes_id, created_at, is_valid, missing_fields, conflicting_fields, rfcs, data)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		WHERE COALESCE((SELECT MAX(revision) FROM metadata_records WHERE case_id = $2), 0) = $3 - 1
	`
	res, err := s.db.ExecContext(ctx, query,
		record.ID,
		record.CaseID,
		record.Revision,
		supersedes,
		record.CreatedAt,
		record.Validation.IsValid(),
		pq.Array(nonNil(record.Validation.MissingFields)),
		pq.Array(nonNil(record.Fields.ConflictingFields)),
		pq.Array(rfcs(record)),
		data,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	if n == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *PostgresStore) Latest(ctx context.Context, caseID string) (*domain.UnifiedMetadataRecord, error) {
	query := `SELECT data FROM metadata_records WHERE case_id = $1 ORDER BY revision DESC LIMIT 1`
	record, err := scanRecord(s.db.QueryRowContext(ctx, query, caseID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("latest record: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) History(ctx context.Context, caseID string) ([]*domain.UnifiedMetadataRecord, error) {
	query := `SELECT data FROM metadata_records WHERE case_id = $1 ORDER BY revision ASC`
	out, err := s.query(ctx, query, caseID)
	if err != nil {
		return nil, fmt.Errorf("record history: %w", err)
	}
	if len(out) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return out, nil
}

func (s *PostgresStore) ListLatest(ctx context.Context) ([]*domain.UnifiedMetadataRecord, error) {
	query := `
		SELECT DISTINCT ON (case_id) data
		FROM metadata_records
		ORDER BY case_id, revision DESC
	`
	out, err := s.query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list latest records: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) query(ctx context.Context, query string, args ...any) ([]*domain.UnifiedMetadataRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.UnifiedMetadataRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*domain.UnifiedMetadataRecord, error) {
	var data []byte
	if err := row.Scan(&data); err != nil {
		return nil, err
	}
	var record domain.UnifiedMetadataRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &record, nil
}

// isUniqueViolation accepts errors from both the pgx and the lib/pq driver.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func rfcs(record *domain.UnifiedMetadataRecord) []string {
	out := []string{}
	for _, id := range record.Identities {
		for _, v := range id.RFCVariants {
			out = append(out, v.Value)
		}
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
