// Package subscriber delivers contacts to the MailerLite subscriber API.
package subscriber

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/octobees/aleo-sync/internal/retry"
)

var (
	// ErrValidationRejected is returned when the API refuses the payload (422).
	ErrValidationRejected = eris.New("subscriber rejected by validation")
	// ErrUnexpectedStatus is returned for statuses outside the retry contract.
	ErrUnexpectedStatus = eris.New("unexpected subscriber api status")
	// ErrMissingAPIKey is returned by constructors when no credentials are given.
	ErrMissingAPIKey = eris.New("subscriber api key is required")
)

// Adapter is the contract the sync orchestrator drives.
type Adapter interface {
	UpsertSubscriber(ctx context.Context, email, status string, fields map[string]any) (*SyncResult, error)
	AssignToGroup(ctx context.Context, subscriberID, groupID int64) bool
}

// SyncResult is the parsed outcome of an upsert. A nil SubscriberID means
// the response carried no usable id and group assignment is skipped.
type SyncResult struct {
	SubscriberID *int64
	Raw          map[string]any
	Errors       []any
}

// DefaultPolicy mirrors the API client defaults: three attempts, 0.8s base.
func DefaultPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, Base: 800 * time.Millisecond}
}

// classifyStatus maps an upsert response status onto the retry contract.
func classifyStatus(status int) (retry.Outcome, error) {
	switch status {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted, http.StatusConflict:
		return retry.Done, nil
	case http.StatusUnprocessableEntity:
		return retry.Done, ErrValidationRejected
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return retry.Retry, nil
	default:
		return retry.Done, eris.Wrapf(ErrUnexpectedStatus, "status %d", status)
	}
}

func groupAssigned(status int) bool {
	switch status {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent, http.StatusConflict:
		return true
	}
	return false
}

// newResult builds a SyncResult from a decoded response body.
func newResult(raw map[string]any) *SyncResult {
	res := &SyncResult{Raw: raw, SubscriberID: ExtractID(raw)}
	if errs, ok := raw["errors"].([]any); ok {
		res.Errors = errs
	} else if errs, ok := raw["errors"].(map[string]any); ok && len(errs) > 0 {
		res.Errors = []any{errs}
	}
	return res
}

// ExtractID reads data.id, falling back to a top-level id. Numbers and
// numeric strings are accepted.
func ExtractID(raw map[string]any) *int64 {
	if raw == nil {
		return nil
	}
	if data, ok := raw["data"].(map[string]any); ok {
		if id := toInt64(data["id"]); id != nil {
			return id
		}
	}
	return toInt64(raw["id"])
}

func toInt64(v any) *int64 {
	var (
		n   int64
		err error
	)
	switch t := v.(type) {
	case json.Number:
		n, err = t.Int64()
	case float64:
		n = int64(t)
	case int64:
		n = t
	case int:
		n = int64(t)
	case string:
		n, err = strconv.ParseInt(strings.TrimSpace(t), 10, 64)
	default:
		return nil
	}
	if err != nil || n == 0 {
		return nil
	}
	return &n
}

func statusPtr(status string) *string {
	if status == "" {
		return nil
	}
	return &status
}
