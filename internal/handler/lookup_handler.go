package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/octobees/aleo-sync/internal/dto"
	"github.com/octobees/aleo-sync/internal/service"
)

// Lookuper resolves one NIP to a company.
type Lookuper interface {
	Lookup(ctx context.Context, nip string) (dto.LookupResponse, error)
}

// LookupHandler serves the NIP lookup endpoint.
type LookupHandler struct {
	lookup Lookuper
}

// NewLookupHandler creates a new handler instance.
func NewLookupHandler(lookup Lookuper) *LookupHandler {
	return &LookupHandler{lookup: lookup}
}

// Lookup handles GET /api?nip= requests. The body is the bare lookup
// response rather than the success envelope so existing clients keep working.
func (h *LookupHandler) Lookup(c echo.Context) error {
	nip := c.QueryParam("nip")
	if nip == "" {
		return Detail(c, http.StatusBadRequest, "query parameter 'nip' is required")
	}

	resp, err := h.lookup.Lookup(c.Request().Context(), nip)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, resp)
	case errors.Is(err, service.ErrInvalidNIP):
		return Detail(c, http.StatusBadRequest, "parameter 'nip' must contain exactly 10 digits")
	case errors.Is(err, service.ErrNotFound):
		return Detail(c, http.StatusNotFound, "no company found for nip "+resp.QueryNIP)
	default:
		zap.L().Error("nip lookup failed", zap.String("nip", nip), zap.Error(err))
		return Detail(c, http.StatusInternalServerError, "lookup failed")
	}
}
