package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/octobees/aleo-sync/internal/dto"
	"github.com/octobees/aleo-sync/internal/normalize"
	"github.com/octobees/aleo-sync/internal/service"
)

// CompaniesHandler exposes the stored company catalogue.
type CompaniesHandler struct {
	service *service.CompaniesService
}

// NewCompaniesHandler creates a new handler instance.
func NewCompaniesHandler(service *service.CompaniesService) *CompaniesHandler {
	return &CompaniesHandler{service: service}
}

// List handles GET /companies requests.
func (h *CompaniesHandler) List(c echo.Context) error {
	filter := dto.ListFilter{
		Q:            strings.TrimSpace(c.QueryParam("q")),
		City:         strings.TrimSpace(c.QueryParam("city")),
		WebsiteState: strings.TrimSpace(c.QueryParam("website")),
		Sort:         strings.TrimSpace(c.QueryParam("sort")),
		Page:         parseIntDefault(c.QueryParam("page"), 1),
		PerPage:      parseIntDefault(c.QueryParam("per_page"), 20),
	}

	if raw := strings.TrimSpace(c.QueryParam("nip")); raw != "" {
		nip := normalize.TaxID(raw)
		if nip == nil {
			return Error(c, http.StatusBadRequest, "invalid nip")
		}
		filter.TaxID = *nip
	}

	switch filter.WebsiteState {
	case "", "missing", "available":
	default:
		return Error(c, http.StatusBadRequest, "website must be missing or available")
	}

	if updatedSinceStr := strings.TrimSpace(c.QueryParam("updated_since")); updatedSinceStr != "" {
		parsed, err := time.Parse(time.RFC3339, updatedSinceStr)
		if err != nil {
			return Error(c, http.StatusBadRequest, "invalid updated_since (use RFC3339)")
		}
		filter.UpdatedSince = &parsed
	}

	companies, err := h.service.ListCompanies(c.Request().Context(), filter)
	if err != nil {
		zap.L().Error("list companies", zap.Error(err))
		return Error(c, http.StatusInternalServerError, "failed to list companies")
	}

	return Success(c, http.StatusOK, "companies retrieved", companies)
}

func parseIntDefault(input string, fallback int) int {
	if input == "" {
		return fallback
	}
	if value, err := strconv.Atoi(input); err == nil {
		return value
	}
	return fallback
}
