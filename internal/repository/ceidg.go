package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/octobees/aleo-sync/internal/entity"
)

// CEIDGRepository stores register payloads fetched for crawled companies.
type CEIDGRepository interface {
	ListMissing(ctx context.Context, limit int) ([]entity.CEIDGCandidate, error)
	FindCandidateByTaxID(ctx context.Context, nip string) (*entity.CEIDGCandidate, error)
	FindCandidateByID(ctx context.Context, companyID int64) (*entity.CEIDGCandidate, error)
	Upsert(ctx context.Context, companyID int64, data json.RawMessage) error
}

// PGXCEIDGRepository implements CEIDGRepository using pgx.
type PGXCEIDGRepository struct {
	pool pgxPool
}

// NewPGXCEIDGRepository wires a pgx backed repository.
func NewPGXCEIDGRepository(pool *pgxpool.Pool) *PGXCEIDGRepository {
	return &PGXCEIDGRepository{pool: pool}
}

// ListMissing returns companies with a NIP and no stored register payload.
func (r *PGXCEIDGRepository) ListMissing(ctx context.Context, limit int) ([]entity.CEIDGCandidate, error) {
	query := `
        SELECT c.id, c.nip
        FROM companies c
        LEFT JOIN biznesgovpl b ON b.company_id = c.id
        WHERE c.nip IS NOT NULL AND c.nip <> '' AND b.company_id IS NULL
        ORDER BY c.id`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "list companies missing ceidg data")
	}
	defer rows.Close()

	var candidates []entity.CEIDGCandidate
	for rows.Next() {
		var c entity.CEIDGCandidate
		if err := rows.Scan(&c.CompanyID, &c.TaxID); err != nil {
			return nil, eris.Wrap(err, "scan ceidg candidate")
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "iterate ceidg candidates")
	}
	return candidates, nil
}

// FindCandidateByTaxID resolves the stored company for a NIP.
func (r *PGXCEIDGRepository) FindCandidateByTaxID(ctx context.Context, nip string) (*entity.CEIDGCandidate, error) {
	return r.findCandidate(ctx, "SELECT id, nip FROM companies WHERE nip = $1 ORDER BY id LIMIT 1", nip)
}

// FindCandidateByID resolves a stored company that has a NIP.
func (r *PGXCEIDGRepository) FindCandidateByID(ctx context.Context, companyID int64) (*entity.CEIDGCandidate, error) {
	return r.findCandidate(ctx, "SELECT id, nip FROM companies WHERE id = $1 AND nip IS NOT NULL AND nip <> ''", companyID)
}

func (r *PGXCEIDGRepository) findCandidate(ctx context.Context, query string, arg any) (*entity.CEIDGCandidate, error) {
	var c entity.CEIDGCandidate
	if err := r.pool.QueryRow(ctx, query, arg).Scan(&c.CompanyID, &c.TaxID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCompanyNotFound
		}
		return nil, eris.Wrapf(err, "find ceidg candidate %v", arg)
	}
	return &c, nil
}

// Upsert stores the latest register payload for a company.
func (r *PGXCEIDGRepository) Upsert(ctx context.Context, companyID int64, data json.RawMessage) error {
	if len(data) == 0 || !json.Valid(data) {
		return eris.Errorf("ceidg payload for company %d is not valid json", companyID)
	}

	query := `
        INSERT INTO biznesgovpl (company_id, data)
        VALUES ($1, $2::jsonb)
        ON CONFLICT (company_id) DO UPDATE SET
            data = EXCLUDED.data,
            updated_at = NOW();
    `
	if _, err := r.pool.Exec(ctx, query, companyID, string(data)); err != nil {
		return eris.Wrapf(err, "upsert ceidg data for company %d", companyID)
	}
	return nil
}
