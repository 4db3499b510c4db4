package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/octobees/aleo-sync/internal/entity"
	"github.com/octobees/aleo-sync/internal/repository"
)

type fakeFetcher struct {
	entries map[string]json.RawMessage
	errs    map[string]error
	calls   []string
}

func (f *fakeFetcher) FetchByNIP(_ context.Context, nip string) (json.RawMessage, error) {
	f.calls = append(f.calls, nip)
	if err := f.errs[nip]; err != nil {
		return nil, err
	}
	return f.entries[nip], nil
}

type fakeCEIDGRepo struct {
	missing []entity.CEIDGCandidate
	byNIP   map[string]entity.CEIDGCandidate
	saved   map[int64]string
}

func (r *fakeCEIDGRepo) ListMissing(context.Context, int) ([]entity.CEIDGCandidate, error) {
	return r.missing, nil
}

func (r *fakeCEIDGRepo) FindCandidateByTaxID(_ context.Context, nip string) (*entity.CEIDGCandidate, error) {
	c, ok := r.byNIP[nip]
	if !ok {
		return nil, repository.ErrCompanyNotFound
	}
	return &c, nil
}

func (r *fakeCEIDGRepo) FindCandidateByID(_ context.Context, id int64) (*entity.CEIDGCandidate, error) {
	for _, c := range r.byNIP {
		if c.CompanyID == id {
			return &c, nil
		}
	}
	return nil, repository.ErrCompanyNotFound
}

func (r *fakeCEIDGRepo) Upsert(_ context.Context, companyID int64, data json.RawMessage) error {
	if r.saved == nil {
		r.saved = make(map[int64]string)
	}
	r.saved[companyID] = string(data)
	return nil
}

func TestCEIDGSyncAllMissing(t *testing.T) {
	fetcher := &fakeFetcher{
		entries: map[string]json.RawMessage{"1111111111": json.RawMessage(`{"nazwa":"A"}`)},
		errs:    map[string]error{"3333333333": errors.New("503")},
	}
	repo := &fakeCEIDGRepo{missing: []entity.CEIDGCandidate{
		{CompanyID: 1, TaxID: "1111111111"},
		{CompanyID: 2, TaxID: "2222222222"},
		{CompanyID: 3, TaxID: "3333333333"},
	}}

	summary, err := NewCEIDGService(fetcher, repo, 0).SyncAllMissing(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, CEIDGSummary{Candidates: 3, Saved: 1, Missing: 1, Failed: 1}, summary)
	assert.Equal(t, map[int64]string{1: `{"nazwa":"A"}`}, repo.saved)
	assert.Equal(t, []string{"1111111111", "2222222222", "3333333333"}, fetcher.calls)
}

func TestCEIDGSyncByTaxID(t *testing.T) {
	fetcher := &fakeFetcher{entries: map[string]json.RawMessage{"5213456789": json.RawMessage(`{"nazwa":"Acme"}`)}}
	repo := &fakeCEIDGRepo{byNIP: map[string]entity.CEIDGCandidate{"5213456789": {CompanyID: 9, TaxID: "5213456789"}}}
	svc := NewCEIDGService(fetcher, repo, 0)

	require.NoError(t, svc.SyncByTaxID(context.Background(), "5213456789"))
	assert.Contains(t, repo.saved, int64(9))

	err := svc.SyncByTaxID(context.Background(), "0000000000")
	assert.True(t, errors.Is(err, repository.ErrCompanyNotFound))

	require.NoError(t, svc.SyncByCompanyID(context.Background(), 9))
	assert.True(t, errors.Is(svc.SyncByCompanyID(context.Background(), 10), repository.ErrCompanyNotFound))
}

func TestCEIDGSyncNoEntry(t *testing.T) {
	repo := &fakeCEIDGRepo{byNIP: map[string]entity.CEIDGCandidate{"5213456789": {CompanyID: 9, TaxID: "5213456789"}}}
	svc := NewCEIDGService(&fakeFetcher{}, repo, 0)

	err := svc.SyncByTaxID(context.Background(), "5213456789")
	assert.True(t, errors.Is(err, ErrNoRegisterEntry))
	assert.Empty(t, repo.saved)
}
