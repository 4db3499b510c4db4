package service

import (
	"context"
	"errors"
	"testing"

	"github.com/octobees/aleo-sync/internal/dto"
	"github.com/octobees/aleo-sync/internal/entity"
	"github.com/octobees/aleo-sync/internal/repository"
)

type mockCompaniesRepository struct {
	list func(ctx context.Context, filter dto.ListFilter) ([]entity.CompanyRecord, error)
	find func(ctx context.Context, nip string) (*entity.CompanyRecord, error)
}

func (m *mockCompaniesRepository) UpsertCompanies(context.Context, []*entity.CompanyRecord) (repository.UpsertResult, error) {
	return repository.UpsertResult{}, errors.New("upsert not implemented")
}

func (m *mockCompaniesRepository) List(ctx context.Context, filter dto.ListFilter) ([]entity.CompanyRecord, error) {
	if m.list != nil {
		return m.list(ctx, filter)
	}
	return nil, errors.New("list not implemented")
}

func (m *mockCompaniesRepository) FindByTaxID(ctx context.Context, nip string) (*entity.CompanyRecord, error) {
	if m.find != nil {
		return m.find(ctx, nip)
	}
	return nil, repository.ErrCompanyNotFound
}

func (m *mockCompaniesRepository) ListSubscribers(context.Context, dto.SubscriberFilter) ([]entity.SubscriberRow, error) {
	return nil, errors.New("list subscribers not implemented")
}

func TestCompaniesService_ListCompanies_AppliesDefaults(t *testing.T) {
	received := dto.ListFilter{}
	name := "Acme"
	repo := &mockCompaniesRepository{
		list: func(ctx context.Context, filter dto.ListFilter) ([]entity.CompanyRecord, error) {
			received = filter
			return []entity.CompanyRecord{{Name: &name}}, nil
		},
	}

	service := NewCompaniesService(repo)
	companies, err := service.ListCompanies(context.Background(), dto.ListFilter{Page: -1, PerPage: 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(companies) != 1 {
		t.Fatalf("expected 1 company, got %d", len(companies))
	}
	if received.Page != 1 {
		t.Fatalf("expected page default 1, got %d", received.Page)
	}
	if received.PerPage != 20 {
		t.Fatalf("expected per_page default 20, got %d", received.PerPage)
	}
}

func TestCompaniesService_ListCompanies_CapsPerPage(t *testing.T) {
	repo := &mockCompaniesRepository{
		list: func(ctx context.Context, filter dto.ListFilter) ([]entity.CompanyRecord, error) {
			if filter.PerPage != 100 {
				t.Fatalf("expected per_page capped at 100, got %d", filter.PerPage)
			}
			return nil, nil
		},
	}

	if _, err := NewCompaniesService(repo).ListCompanies(context.Background(), dto.ListFilter{PerPage: 500}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCompaniesService_ListCompanies_PropagatesError(t *testing.T) {
	repo := &mockCompaniesRepository{
		list: func(ctx context.Context, filter dto.ListFilter) ([]entity.CompanyRecord, error) {
			return nil, errors.New("db down")
		},
	}

	if _, err := NewCompaniesService(repo).ListCompanies(context.Background(), dto.ListFilter{}); err == nil {
		t.Fatalf("expected error")
	}
}
