package subscriber

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mailerlite/mailerlite-go"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/octobees/aleo-sync/internal/retry"
)

// sdkClient is the slice of the MailerLite SDK the adapter needs. Calls
// report the HTTP status they observed; transport failures report 0.
type sdkClient interface {
	Upsert(ctx context.Context, email, status string, fields map[string]any) (id string, code int, err error)
	AssignGroup(ctx context.Context, groupID, subscriberID string) (code int, err error)
}

type mailerliteClient struct {
	client *mailerlite.Client
}

// newMailerliteClient wires the SDK through a status-recording transport.
// The SDK drops its *Response when a 2xx body fails to decode, so the status
// has to be captured below it.
func newMailerliteClient(apiKey string, base *http.Client) mailerliteClient {
	hc := &http.Client{Timeout: 10 * time.Second}
	if base != nil {
		copied := *base
		hc = &copied
	}
	next := hc.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	hc.Transport = statusRecorder{next: next}

	client := mailerlite.NewClient(apiKey)
	client.SetHttpClient(hc)
	return mailerliteClient{client: client}
}

type statusKey struct{}

// statusRecorder stores the response status into the *int carried by the
// request context under statusKey.
type statusRecorder struct {
	next http.RoundTripper
}

func (r statusRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := r.next.RoundTrip(req)
	if err == nil && resp != nil {
		if p, ok := req.Context().Value(statusKey{}).(*int); ok {
			*p = resp.StatusCode
		}
	}
	return resp, err
}

// observe resolves the status of one SDK call. A 2xx whose body could not be
// decoded counts as success.
func observe(recorded int, resp *mailerlite.Response, err error) (int, error) {
	code := recorded
	if code == 0 && resp != nil && resp.Response != nil {
		code = resp.StatusCode
	}
	if code == 0 && err != nil {
		code = sdkStatus(err)
	}
	if err != nil && code >= 200 && code <= 299 {
		return code, nil
	}
	if code == 0 && err == nil {
		code = http.StatusOK
	}
	return code, err
}

func (m mailerliteClient) Upsert(ctx context.Context, email, status string, fields map[string]any) (string, int, error) {
	var recorded int
	ctx = context.WithValue(ctx, statusKey{}, &recorded)

	root, resp, err := m.client.Subscriber.Upsert(ctx, &mailerlite.Subscriber{
		Email:  email,
		Status: status,
		Fields: fields,
	})
	code, err := observe(recorded, resp, err)
	if err != nil || root == nil {
		return "", code, err
	}
	return root.Data.ID, code, nil
}

func (m mailerliteClient) AssignGroup(ctx context.Context, groupID, subscriberID string) (int, error) {
	var recorded int
	ctx = context.WithValue(ctx, statusKey{}, &recorded)

	_, resp, err := m.client.Group.Assign(ctx, groupID, subscriberID)
	return observe(recorded, resp, err)
}

// sdkStatus extracts the status of an API error; 0 means transport failure.
func sdkStatus(err error) int {
	var apiErr *mailerlite.ErrorResponse
	if errors.As(err, &apiErr) && apiErr.Response != nil {
		return apiErr.Response.StatusCode
	}
	var authErr *mailerlite.AuthError
	if errors.As(err, &authErr) && authErr.Response != nil {
		return authErr.Response.StatusCode
	}
	var rateErr *mailerlite.RateLimitError
	if errors.As(err, &rateErr) && rateErr.Response != nil {
		return rateErr.Response.StatusCode
	}
	return 0
}

// SDKConfig carries the credentials for SDKAdapter. Client is optional; its
// timeout and transport are kept.
type SDKConfig struct {
	APIKey string
	Client *http.Client
	Policy retry.Policy
}

// SDKAdapter drives the subscriber API through the official Go SDK.
type SDKAdapter struct {
	client sdkClient
	policy retry.Policy
	log    *zap.Logger
}

// NewSDKAdapter builds an adapter with its own SDK client.
func NewSDKAdapter(cfg SDKConfig) (*SDKAdapter, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	return newSDKAdapter(newMailerliteClient(cfg.APIKey, cfg.Client), cfg.Policy), nil
}

func newSDKAdapter(client sdkClient, policy retry.Policy) *SDKAdapter {
	if policy.MaxAttempts == 0 {
		policy = DefaultPolicy()
	}
	return &SDKAdapter{
		client: client,
		policy: policy,
		log:    zap.L().With(zap.String("component", "subscriber.sdk")),
	}
}

// UpsertSubscriber creates or updates a subscriber under the retry contract.
func (a *SDKAdapter) UpsertSubscriber(ctx context.Context, email, status string, fields map[string]any) (*SyncResult, error) {
	var result *SyncResult
	err := a.policy.Do(ctx, func(ctx context.Context, attempt int) (retry.Outcome, error) {
		id, code, err := a.client.Upsert(ctx, email, status, fields)
		if code == 0 {
			if err == nil {
				err = eris.New("sdk returned no status")
			}
			a.log.Warn("subscriber request failed",
				zap.String("email", email),
				zap.Int("attempt", attempt),
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
			)
		case classErr != nil:
			a.log.Error("subscriber upsert rejected", zap.String("email", email), zap.Int("status", code), zap.Error(err), zap.NamedError("reason", classErr))
		default:
			raw := map[string]any{"status": code, "email": email}
			if id != "" {
				raw["data"] = map[string]any{"id": id}
			}
			result = newResult(raw)
		}
		return outcome, classErr
	})
	if err != nil {
		return nil, eris.Wrapf(err, "upsert subscriber %s", email)
	}
	return result, nil
}

// AssignToGroup makes a single attempt; failures are logged and reported as false.
func (a *SDKAdapter) AssignToGroup(ctx context.Context, subscriberID, groupID int64) bool {
	code, err := a.client.AssignGroup(ctx, strconv.FormatInt(groupID, 10), strconv.FormatInt(subscriberID, 10))
	if groupAssigned(code) {
		return true
	}
	a.log.Info("group assignment refused",
		zap.Int64("subscriber_id", subscriberID),
		zap.Int64("group_id", groupID),
		zap.Int("status", code),
		zap.Error(err),
	)
	return false
}

var _ Adapter = (*SDKAdapter)(nil)
