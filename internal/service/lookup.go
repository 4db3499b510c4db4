package service

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/octobees/aleo-sync/internal/crawler"
	"github.com/octobees/aleo-sync/internal/dto"
	"github.com/octobees/aleo-sync/internal/entity"
	"github.com/octobees/aleo-sync/internal/normalize"
	"github.com/octobees/aleo-sync/internal/repository"
)

var (
	// ErrInvalidNIP is returned when the query does not sanitise to ten digits.
	ErrInvalidNIP = eris.New("nip must have exactly 10 digits")
	// ErrNotFound is returned when neither the directory nor storage know the NIP.
	ErrNotFound = eris.New("no company found for nip")
)

// TaxIDSearcher runs a live directory search for one NIP.
type TaxIDSearcher interface {
	LookupTaxID(ctx context.Context, nip string) (crawler.LookupResult, error)
}

// StoredCompanyFinder reads a previously crawled company.
type StoredCompanyFinder interface {
	FindByTaxID(ctx context.Context, nip string) (*entity.CompanyRecord, error)
}

// LookupService answers NIP queries from the live directory, falling back
// to storage when the live search fails or finds nothing.
type LookupService struct {
	searcher TaxIDSearcher
	stored   StoredCompanyFinder
	log      *zap.Logger
}

// NewLookupService wires a lookup service. stored may be nil.
func NewLookupService(searcher TaxIDSearcher, stored StoredCompanyFinder) *LookupService {
	return &LookupService{
		searcher: searcher,
		stored:   stored,
		log:      zap.L().With(zap.String("component", "lookup")),
	}
}

// Lookup sanitises nip and returns the matching company.
func (s *LookupService) Lookup(ctx context.Context, nip string) (dto.LookupResponse, error) {
	digits := normalize.TaxID(nip)
	if digits == nil || !normalize.IsNIP(*digits) {
		return dto.LookupResponse{}, ErrInvalidNIP
	}
	resp := dto.LookupResponse{QueryNIP: *digits, Results: []*entity.CompanyRecord{}}

	res, err := s.searcher.LookupTaxID(ctx, *digits)
	if err != nil {
		s.log.Warn("live lookup failed", zap.String("nip", *digits), zap.Error(err))
	}
	if err == nil && res.Record != nil {
		resp.Count = 1
		resp.Results = append(resp.Results, res.Record)
		return resp, nil
	}

	if s.stored != nil {
		rec, findErr := s.stored.FindByTaxID(ctx, *digits)
		switch {
		case findErr == nil:
			resp.Count = 1
			resp.Results = append(resp.Results, rec)
			return resp, nil
		case !errors.Is(findErr, repository.ErrCompanyNotFound):
			s.log.Warn("stored lookup failed", zap.String("nip", *digits), zap.Error(findErr))
		}
	}

	if err != nil {
		return resp, eris.Wrapf(err, "lookup nip %s", *digits)
	}
	return resp, ErrNotFound
}
