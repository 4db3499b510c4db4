package subscriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/octobees/aleo-sync/internal/retry"
)

// DefaultBaseURL is the MailerLite connect API root.
const DefaultBaseURL = "https://connect.mailerlite.com/api"

// HTTPConfig carries the credentials and transport settings for HTTPAdapter.
type HTTPConfig struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
	Policy  retry.Policy
}

// HTTPAdapter talks to the subscriber API with plain JSON requests.
type HTTPAdapter struct {
	apiKey  string
	baseURL string
	client  *http.Client
	policy  retry.Policy
	log     *zap.Logger
}

// NewHTTPAdapter validates cfg and builds an adapter.
func NewHTTPAdapter(cfg HTTPConfig) (*HTTPAdapter, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	policy := cfg.Policy
	if policy.MaxAttempts == 0 {
		policy = DefaultPolicy()
	}
	return &HTTPAdapter{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		client:  client,
		policy:  policy,
		log:     zap.L().With(zap.String("component", "subscriber.http")),
	}, nil
}

type upsertPayload struct {
	Email  string         `json:"email"`
	Status *string        `json:"status"`
	Fields map[string]any `json:"fields,omitempty"`
}

// UpsertSubscriber creates or updates a subscriber under the retry contract.
func (a *HTTPAdapter) UpsertSubscriber(ctx context.Context, email, status string, fields map[string]any) (*SyncResult, error) {
	body, err := json.Marshal(upsertPayload{Email: email, Status: statusPtr(status), Fields: fields})
	if err != nil {
		return nil, eris.Wrap(err, "marshal subscriber payload")
	}

	var result *SyncResult
	err = a.policy.Do(ctx, func(ctx context.Context, attempt int) (retry.Outcome, error) {
		code, raw, err := a.post(ctx, a.baseURL+"/subscribers", body)
		if err != nil {
			a.log.Warn("subscriber request failed",
				zap.String("email", email),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", a.policy.MaxAttempts),
				zap.Error(err),
			)
			return retry.Retry, err
		}

		outcome, classErr := classifyStatus(code)
		switch {
		case outcome == retry.Retry:
			a.log.Warn("subscriber api asked to retry",
				zap.String("email", email),
				zap.Int("status", code),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", a.policy.Backoff(attempt)),
				zap.String("body", truncate(raw, 300)),
			)
		case classErr != nil:
			a.log.Error("subscriber upsert rejected",
				zap.String("email", email),
				zap.Int("status", code),
				zap.String("body", truncate(raw, 300)),
			)
		default:
			if code == http.StatusConflict {
				a.log.Info("subscriber already exists", zap.String("email", email))
			}
			result = newResult(decodeBody(raw, code, email))
		}
		return outcome, classErr
	})
	if err != nil {
		return nil, eris.Wrapf(err, "upsert subscriber %s", email)
	}
	return result, nil
}

// AssignToGroup makes a single attempt; failures are logged and reported as false.
func (a *HTTPAdapter) AssignToGroup(ctx context.Context, subscriberID, groupID int64) bool {
	url := fmt.Sprintf("%s/subscribers/%d/groups/%d", a.baseURL, subscriberID, groupID)
	code, raw, err := a.post(ctx, url, nil)
	if err != nil {
		a.log.Info("group assignment failed", zap.Int64("subscriber_id", subscriberID), zap.Error(err))
		return false
	}
	if groupAssigned(code) {
		return true
	}
	a.log.Info("group assignment refused",
		zap.Int64("subscriber_id", subscriberID),
		zap.Int64("group_id", groupID),
		zap.Int("status", code),
		zap.String("body", truncate(raw, 200)),
	)
	return false
}

func (a *HTTPAdapter) post(ctx context.Context, url string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reader)
	if err != nil {
		return 0, nil, eris.Wrap(err, "create subscriber request")
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return 0, nil, eris.Wrap(err, "subscriber request")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, eris.Wrap(err, "read subscriber response")
	}
	return resp.StatusCode, raw, nil
}

// decodeBody parses a success body. 202 and 409 bodies are best-effort.
func decodeBody(raw []byte, code int, email string) map[string]any {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil || out == nil {
		return map[string]any{"status": code, "email": email}
	}
	return out
}

func truncate(raw []byte, n int) string {
	if len(raw) > n {
		return string(raw[:n])
	}
	return string(raw)
}

var _ Adapter = (*HTTPAdapter)(nil)
