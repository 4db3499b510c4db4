// Package ceidg fetches company register entries from the biznes.gov.pl
// CEIDG API.
package ceidg

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/octobees/aleo-sync/internal/retry"
)

// DefaultBaseURL is the v3 API root.
const DefaultBaseURL = "https://dane.biznes.gov.pl/api/ceidg/v3"

var (
	// ErrMissingToken is returned when no API token is configured.
	ErrMissingToken = eris.New("ceidg api token is required")
	// ErrUnexpectedStatus is returned for non-retryable error statuses.
	ErrUnexpectedStatus = eris.New("unexpected ceidg api status")
)

// itemKeys are the envelope keys the API has used for its result list.
var itemKeys = []string{"items", "data", "firma", "results"}

// Config carries the credentials and transport settings for Client.
type Config struct {
	Token   string
	BaseURL string
	Client  *http.Client
	Policy  retry.Policy
}

// Client queries the register by NIP.
type Client struct {
	token   string
	baseURL string
	client  *http.Client
	policy  retry.Policy
	log     *zap.Logger
}

// NewClient validates cfg and builds a client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, ErrMissingToken
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	policy := cfg.Policy
	if policy.MaxAttempts == 0 {
		policy = retry.Policy{MaxAttempts: 3, Base: 800 * time.Millisecond}
	}
	return &Client{
		token:   cfg.Token,
		baseURL: baseURL,
		client:  client,
		policy:  policy,
		log:     zap.L().With(zap.String("component", "ceidg")),
	}, nil
}

// FetchByNIP returns the first register entry for nip, or nil when the
// register has none.
func (c *Client) FetchByNIP(ctx context.Context, nip string) (json.RawMessage, error) {
	endpoint := c.baseURL + "/firma?" + url.Values{"nip": {nip}}.Encode()

	var entry json.RawMessage
	err := c.policy.Do(ctx, func(ctx context.Context, attempt int) (retry.Outcome, error) {
		code, body, err := c.get(ctx, endpoint)
		if err != nil {
			c.log.Warn("ceidg request failed", zap.String("nip", nip), zap.Int("attempt", attempt), zap.Error(err))
			return retry.Retry, err
		}
		switch {
		case code == http.StatusNoContent || code == http.StatusNotFound:
			return retry.Done, nil
		case code == http.StatusTooManyRequests || code >= 500:
			c.log.Warn("ceidg api asked to retry", zap.String("nip", nip), zap.Int("status", code), zap.Int("attempt", attempt))
			return retry.Retry, nil
		case code < 200 || code >= 300:
			return retry.Done, eris.Wrapf(ErrUnexpectedStatus, "status %d", code)
		}
		first, err := FirstItem(body)
		if err != nil {
			return retry.Done, err
		}
		entry = first
		return retry.Done, nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "fetch ceidg entry for nip %s", nip)
	}
	return entry, nil
}

func (c *Client) get(ctx context.Context, endpoint string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, nil, eris.Wrap(err, "create ceidg request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, eris.Wrap(err, "ceidg request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return 0, nil, eris.Wrap(err, "read ceidg response")
	}
	return resp.StatusCode, body, nil
}

// FirstItem picks the first entry of a register response. Both enveloped
// lists and bare arrays are accepted; an empty list yields nil.
func FirstItem(body []byte) (json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, nil
	}

	var items []json.RawMessage
	if body[0] == '[' {
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, eris.Wrap(err, "decode ceidg list")
		}
	} else {
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, eris.Wrap(err, "decode ceidg envelope")
		}
		for _, key := range itemKeys {
			raw, ok := envelope[key]
			if !ok {
				continue
			}
			var list []json.RawMessage
			if err := json.Unmarshal(raw, &list); err == nil {
				items = list
				break
			}
		}
	}

	if len(items) == 0 {
		return nil, nil
	}
	return items[0], nil
}
