package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/octobees/aleo-sync/internal/dto"
	"github.com/octobees/aleo-sync/internal/entity"
	"github.com/octobees/aleo-sync/internal/service"
)

type stubLookuper struct {
	resp dto.LookupResponse
	err  error
	got  string
}

func (s *stubLookuper) Lookup(ctx context.Context, nip string) (dto.LookupResponse, error) {
	s.got = nip
	return s.resp, s.err
}

func serveLookup(t *testing.T, l Lookuper, target string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, target, nil), rec)
	if err := NewLookupHandler(l).Lookup(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return rec
}

func TestLookupHandler_Success(t *testing.T) {
	name := "Acme"
	nip := "5213456789"
	stub := &stubLookuper{resp: dto.LookupResponse{
		QueryNIP: nip,
		Count:    1,
		Results:  []*entity.CompanyRecord{{Name: &name, TaxID: &nip, DetailURL: "https://aleo.com/pl/firma/acme"}},
	}}

	rec := serveLookup(t, stub, "/api?nip=521-345-67-89")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if stub.got != "521-345-67-89" {
		t.Fatalf("expected raw nip passed to service, got %q", stub.got)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["query_nip"] != nip || body["count"] != float64(1) {
		t.Fatalf("unexpected body: %v", body)
	}
	results, ok := body["results"].([]any)
	if !ok || len(results) != 1 {
		t.Fatalf("expected one result, got %v", body["results"])
	}
	if first := results[0].(map[string]any); first["url"] != "https://aleo.com/pl/firma/acme" {
		t.Fatalf("unexpected result: %v", first)
	}
}

func TestLookupHandler_ErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		target string
		err    error
		want   int
	}{
		{name: "missing nip", target: "/api", want: http.StatusBadRequest},
		{name: "invalid nip", target: "/api?nip=123", err: service.ErrInvalidNIP, want: http.StatusBadRequest},
		{name: "not found", target: "/api?nip=5213456789", err: service.ErrNotFound, want: http.StatusNotFound},
		{name: "crawler failure", target: "/api?nip=5213456789", err: errors.New("chrome crashed"), want: http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := serveLookup(t, &stubLookuper{err: tc.err}, tc.target)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if body["detail"] == "" {
				t.Fatalf("expected detail message, got %v", body)
			}
		})
	}
}
