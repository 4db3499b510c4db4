package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/octobees/aleo-sync/internal/entity"
	"github.com/octobees/aleo-sync/internal/repository"
)

// DefaultCEIDGPace spaces register calls.
const DefaultCEIDGPace = 200 * time.Millisecond

// ErrNoRegisterEntry is returned when the register has nothing for a NIP.
var ErrNoRegisterEntry = eris.New("no ceidg entry for nip")

// RegisterFetcher fetches a raw register entry by NIP.
type RegisterFetcher interface {
	FetchByNIP(ctx context.Context, nip string) (json.RawMessage, error)
}

// CEIDGSummary reports the outcome of a batch register sync.
type CEIDGSummary struct {
	Candidates int `json:"candidates"`
	Saved      int `json:"saved"`
	Missing    int `json:"missing"`
	Failed     int `json:"failed"`
}

// CEIDGService copies register entries for crawled companies into storage.
type CEIDGService struct {
	fetcher RegisterFetcher
	repo    repository.CEIDGRepository
	limiter *rate.Limiter
	log     *zap.Logger
}

// NewCEIDGService wires the register sync. A zero pace disables spacing.
func NewCEIDGService(fetcher RegisterFetcher, repo repository.CEIDGRepository, pace time.Duration) *CEIDGService {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if pace > 0 {
		limiter = rate.NewLimiter(rate.Every(pace), 1)
	}
	return &CEIDGService{
		fetcher: fetcher,
		repo:    repo,
		limiter: limiter,
		log:     zap.L().With(zap.String("component", "ceidg")),
	}
}

// SyncAllMissing fetches entries for up to limit companies that have a NIP
// but no stored entry. Per-company failures are logged and counted.
func (s *CEIDGService) SyncAllMissing(ctx context.Context, limit int) (CEIDGSummary, error) {
	candidates, err := s.repo.ListMissing(ctx, limit)
	if err != nil {
		return CEIDGSummary{}, err
	}
	summary := CEIDGSummary{Candidates: len(candidates)}
	for _, c := range candidates {
		err := s.syncCandidate(ctx, c)
		switch {
		case err == nil:
			summary.Saved++
		case eris.Is(err, ErrNoRegisterEntry):
			summary.Missing++
		case ctx.Err() != nil:
			return summary, eris.Wrap(ctx.Err(), "ceidg: cancelled")
		default:
			summary.Failed++
			s.log.Error("ceidg sync failed",
				zap.Int64("company_id", c.CompanyID),
				zap.String("nip", c.TaxID),
				zap.Error(err),
			)
		}
	}
	s.log.Info("ceidg sync finished",
		zap.Int("candidates", summary.Candidates),
		zap.Int("saved", summary.Saved),
		zap.Int("missing", summary.Missing),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}

// SyncByTaxID fetches the entry for the stored company with nip.
func (s *CEIDGService) SyncByTaxID(ctx context.Context, nip string) error {
	c, err := s.repo.FindCandidateByTaxID(ctx, nip)
	if err != nil {
		return eris.Wrapf(err, "ceidg: resolve nip %s", nip)
	}
	return s.syncCandidate(ctx, *c)
}

// SyncByCompanyID fetches the entry for a stored company.
func (s *CEIDGService) SyncByCompanyID(ctx context.Context, companyID int64) error {
	c, err := s.repo.FindCandidateByID(ctx, companyID)
	if err != nil {
		return eris.Wrapf(err, "ceidg: resolve company %d", companyID)
	}
	return s.syncCandidate(ctx, *c)
}

func (s *CEIDGService) syncCandidate(ctx context.Context, c entity.CEIDGCandidate) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "ceidg: pacing")
	}
	entry, err := s.fetcher.FetchByNIP(ctx, c.TaxID)
	if err != nil {
		return err
	}
	if entry == nil {
		s.log.Info("no ceidg entry", zap.Int64("company_id", c.CompanyID), zap.String("nip", c.TaxID))
		return eris.Wrapf(ErrNoRegisterEntry, "nip %s", c.TaxID)
	}
	if err := s.repo.Upsert(ctx, c.CompanyID, entry); err != nil {
		return err
	}
	s.log.Info("ceidg entry saved", zap.Int64("company_id", c.CompanyID), zap.String("nip", c.TaxID))
	return nil
}
