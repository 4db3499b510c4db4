package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/octobees/aleo-sync/internal/dto"
	"github.com/octobees/aleo-sync/internal/entity"
)

// pgxPool is the subset of *pgxpool.Pool the repositories use.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

var _ pgxPool = (*pgxpool.Pool)(nil)

const uniqueViolation = "23505"

var (
	// ErrConstraintViolation reports a unique index collision other than the
	// detail_url merge key, e.g. the same NIP under two detail pages.
	ErrConstraintViolation = eris.New("company violates a unique constraint")
	// ErrInvalidRecord reports a record without an absolute detail URL.
	ErrInvalidRecord = eris.New("company record has no absolute detail url")
	// ErrCompanyNotFound indicates no stored company matched the lookup.
	ErrCompanyNotFound = eris.New("company not found")
)

// CompaniesRepository describes persistence operations for companies.
type CompaniesRepository interface {
	UpsertCompanies(ctx context.Context, records []*entity.CompanyRecord) (UpsertResult, error)
	List(ctx context.Context, filter dto.ListFilter) ([]entity.CompanyRecord, error)
	FindByTaxID(ctx context.Context, nip string) (*entity.CompanyRecord, error)
	ListSubscribers(ctx context.Context, filter dto.SubscriberFilter) ([]entity.SubscriberRow, error)
}

// UpsertResult summarises the number of rows inserted or updated.
type UpsertResult struct {
	Inserted int
	Updated  int
	Total    int
}

// PGXCompaniesRepository implements CompaniesRepository using pgx.
type PGXCompaniesRepository struct {
	pool pgxPool
}

// NewPGXCompaniesRepository wires a pgx backed repository.
func NewPGXCompaniesRepository(pool *pgxpool.Pool) *PGXCompaniesRepository {
	return &PGXCompaniesRepository{pool: pool}
}

const upsertCompanySQL = `
        INSERT INTO companies (
            name, detail_url, address, city, postal_code, nip, regon, krs,
            website, email, phone, search_phrase, search_city, search_registry_type, extra
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15::jsonb)
        ON CONFLICT (detail_url) DO UPDATE SET
            name = COALESCE(EXCLUDED.name, companies.name),
            address = COALESCE(EXCLUDED.address, companies.address),
            city = COALESCE(EXCLUDED.city, companies.city),
            postal_code = COALESCE(EXCLUDED.postal_code, companies.postal_code),
            nip = COALESCE(EXCLUDED.nip, companies.nip),
            regon = COALESCE(EXCLUDED.regon, companies.regon),
            krs = COALESCE(EXCLUDED.krs, companies.krs),
            website = COALESCE(EXCLUDED.website, companies.website),
            email = COALESCE(EXCLUDED.email, companies.email),
            phone = COALESCE(EXCLUDED.phone, companies.phone),
            search_phrase = COALESCE(EXCLUDED.search_phrase, companies.search_phrase),
            search_city = COALESCE(EXCLUDED.search_city, companies.search_city),
            search_registry_type = COALESCE(EXCLUDED.search_registry_type, companies.search_registry_type),
            extra = companies.extra || EXCLUDED.extra
        RETURNING id, (xmax = 0) AS inserted;
    `

// UpsertCompanies merges a page of records in one transaction. A stored
// column is only replaced by a non-null value, so re-running a crawl never
// erases data an earlier run found.
func (r *PGXCompaniesRepository) UpsertCompanies(ctx context.Context, records []*entity.CompanyRecord) (UpsertResult, error) {
	var result UpsertResult
	if len(records) == 0 {
		return result, nil
	}
	for _, record := range records {
		if err := validateRecord(record); err != nil {
			return result, err
		}
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return result, eris.Wrap(err, "start upsert tx")
	}
	defer tx.Rollback(ctx)

	var page UpsertResult
	for _, record := range records {
		extra, err := extraJSON(record.Extra)
		if err != nil {
			return result, eris.Wrapf(err, "encode extra for %q", record.DetailURL)
		}

		var (
			id       int64
			inserted bool
		)
		err = tx.QueryRow(ctx, upsertCompanySQL,
			stringOrNil(record.Name),
			record.DetailURL,
			stringOrNil(record.Address),
			stringOrNil(record.City),
			stringOrNil(record.PostalCode),
			stringOrNil(record.TaxID),
			stringOrNil(record.RegistrationID),
			stringOrNil(record.KRS),
			stringOrNil(record.Website),
			stringOrNil(record.Email),
			stringOrNil(record.Phone),
			stringOrNil(record.SearchPhrase),
			stringOrNil(record.SearchCity),
			stringOrNil(record.SearchRegistryType),
			extra,
		).Scan(&id, &inserted)
		if err != nil {
			if isUniqueViolation(err) {
				return result, eris.Wrapf(ErrConstraintViolation, "upsert company %q: %v", record.DetailURL, err)
			}
			return result, eris.Wrapf(err, "upsert company %q", record.DetailURL)
		}

		record.ID = id
		if inserted {
			page.Inserted++
		} else {
			page.Updated++
		}
		page.Total++
	}

	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return result, eris.Wrapf(ErrConstraintViolation, "commit upsert tx: %v", err)
		}
		return result, eris.Wrap(err, "commit upsert tx")
	}

	return page, nil
}

const companyColumns = `
            id, name, detail_url, address, city, postal_code, nip, regon, krs,
            website, email, phone, search_phrase, search_city, search_registry_type,
            extra, created_at, updated_at
        FROM companies`

// List retrieves companies matching the provided filter, most recent first.
func (r *PGXCompaniesRepository) List(ctx context.Context, filter dto.ListFilter) ([]entity.CompanyRecord, error) {
	baseQuery := strings.Builder{}
	baseQuery.WriteString("SELECT")
	baseQuery.WriteString(companyColumns)

	var (
		clauses []string
		args    []any
		idx     = 1
	)

	if filter.Q != "" {
		pattern := fmt.Sprintf("%%%s%%", filter.Q)
		clauses = append(clauses, fmt.Sprintf("(name ILIKE $%d OR address ILIKE $%d)", idx, idx+1))
		args = append(args, pattern, pattern)
		idx += 2
	}
	if filter.City != "" {
		clauses = append(clauses, fmt.Sprintf("LOWER(city) = LOWER($%d)", idx))
		args = append(args, filter.City)
		idx++
	}
	if filter.TaxID != "" {
		clauses = append(clauses, fmt.Sprintf("nip = $%d", idx))
		args = append(args, filter.TaxID)
		idx++
	}
	switch strings.ToLower(filter.WebsiteState) {
	case "missing":
		clauses = append(clauses, "website IS NULL")
	case "available":
		clauses = append(clauses, "website IS NOT NULL")
	}
	if filter.UpdatedSince != nil {
		clauses = append(clauses, fmt.Sprintf("updated_at >= $%d", idx))
		args = append(args, *filter.UpdatedSince)
		idx++
	}

	if len(clauses) > 0 {
		baseQuery.WriteString(" WHERE ")
		baseQuery.WriteString(strings.Join(clauses, " AND "))
	}

	orderClause := "updated_at DESC, id DESC"
	if strings.EqualFold(filter.Sort, "name") {
		orderClause = "name ASC NULLS LAST, id ASC"
	}
	baseQuery.WriteString(" ORDER BY ")
	baseQuery.WriteString(orderClause)

	if filter.Limit > 0 {
		baseQuery.WriteString(fmt.Sprintf(" LIMIT %d", filter.Limit))
	} else {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		perPage := filter.PerPage
		if perPage <= 0 {
			perPage = 20
		}
		if perPage > 100 {
			perPage = 100
		}
		offset := (page - 1) * perPage
		baseQuery.WriteString(fmt.Sprintf(" LIMIT $%d OFFSET $%d", idx, idx+1))
		args = append(args, perPage, offset)
	}

	rows, err := r.pool.Query(ctx, baseQuery.String(), args...)
	if err != nil {
		return nil, eris.Wrap(err, "list companies")
	}
	defer rows.Close()

	return scanCompanies(rows)
}

// FindByTaxID returns the most recently updated company with the given NIP.
func (r *PGXCompaniesRepository) FindByTaxID(ctx context.Context, nip string) (*entity.CompanyRecord, error) {
	rows, err := r.pool.Query(ctx, "SELECT"+companyColumns+" WHERE nip = $1 ORDER BY updated_at DESC LIMIT 1", nip)
	if err != nil {
		return nil, eris.Wrapf(err, "find company by nip %s", nip)
	}
	defer rows.Close()

	companies, err := scanCompanies(rows)
	if err != nil {
		return nil, err
	}
	if len(companies) == 0 {
		return nil, ErrCompanyNotFound
	}
	return &companies[0], nil
}

// ListSubscribers returns the email/NIP projection of stored companies that
// have an email, narrowed by the caller's filter.
func (r *PGXCompaniesRepository) ListSubscribers(ctx context.Context, filter dto.SubscriberFilter) ([]entity.SubscriberRow, error) {
	query := strings.Builder{}
	query.WriteString("SELECT email, nip FROM companies WHERE email IS NOT NULL AND email <> ''")

	var args []any
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		query.WriteString(fmt.Sprintf(" AND LOWER(%s) = LOWER($%d)", column, len(args)))
	}
	add("search_city", filter.SearchCity)
	add("search_registry_type", filter.RegistryType)
	add("city", filter.City)

	query.WriteString(" ORDER BY id")
	if filter.Limit > 0 {
		query.WriteString(fmt.Sprintf(" LIMIT %d", filter.Limit))
	}

	rows, err := r.pool.Query(ctx, query.String(), args...)
	if err != nil {
		return nil, eris.Wrap(err, "list subscribers")
	}
	defer rows.Close()

	var result []entity.SubscriberRow
	for rows.Next() {
		var (
			email string
			nip   sql.NullString
		)
		if err := rows.Scan(&email, &nip); err != nil {
			return nil, eris.Wrap(err, "scan subscriber")
		}
		result = append(result, entity.SubscriberRow{
			Email: strings.ToLower(strings.TrimSpace(email)),
			TaxID: nullStringToPtr(nip),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "iterate subscribers")
	}
	return result, nil
}

func validateRecord(record *entity.CompanyRecord) error {
	if record == nil {
		return eris.Wrap(ErrInvalidRecord, "nil record")
	}
	u, err := url.Parse(record.DetailURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return eris.Wrapf(ErrInvalidRecord, "detail url %q", record.DetailURL)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func extraJSON(extra map[string]any) (string, error) {
	if len(extra) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(extra)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func nullStringToPtr(value sql.NullString) *string {
	if value.Valid {
		val := value.String
		return &val
	}
	return nil
}

func scanCompanies(rows pgx.Rows) ([]entity.CompanyRecord, error) {
	var companies []entity.CompanyRecord
	for rows.Next() {
		var (
			c                  entity.CompanyRecord
			name               sql.NullString
			address            sql.NullString
			city               sql.NullString
			postalCode         sql.NullString
			nip                sql.NullString
			regon              sql.NullString
			krs                sql.NullString
			website            sql.NullString
			email              sql.NullString
			phone              sql.NullString
			searchPhrase       sql.NullString
			searchCity         sql.NullString
			searchRegistryType sql.NullString
			extra              []byte
			createdAt          sql.NullTime
			updatedAt          sql.NullTime
		)

		err := rows.Scan(
			&c.ID,
			&name,
			&c.DetailURL,
			&address,
			&city,
			&postalCode,
			&nip,
			&regon,
			&krs,
			&website,
			&email,
			&phone,
			&searchPhrase,
			&searchCity,
			&searchRegistryType,
			&extra,
			&createdAt,
			&updatedAt,
		)
		if err != nil {
			return nil, eris.Wrap(err, "scan company")
		}

		c.Name = nullStringToPtr(name)
		c.Address = nullStringToPtr(address)
		c.City = nullStringToPtr(city)
		c.PostalCode = nullStringToPtr(postalCode)
		c.TaxID = nullStringToPtr(nip)
		c.RegistrationID = nullStringToPtr(regon)
		c.KRS = nullStringToPtr(krs)
		c.Website = nullStringToPtr(website)
		c.Email = nullStringToPtr(email)
		c.Phone = nullStringToPtr(phone)
		c.SearchPhrase = nullStringToPtr(searchPhrase)
		c.SearchCity = nullStringToPtr(searchCity)
		c.SearchRegistryType = nullStringToPtr(searchRegistryType)

		if len(extra) > 0 {
			if err := json.Unmarshal(extra, &c.Extra); err != nil {
				return nil, eris.Wrapf(err, "decode extra for company %d", c.ID)
			}
		}
		if createdAt.Valid {
			ts := createdAt.Time
			c.CreatedAt = &ts
		}
		if updatedAt.Valid {
			ts := updatedAt.Time
			c.UpdatedAt = &ts
		}

		companies = append(companies, c)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "iterate companies")
	}
	return companies, nil
}

func stringOrNil(value *string) any {
	if value == nil {
		return nil
	}
	if *value == "" {
		return nil
	}
	return *value
}
