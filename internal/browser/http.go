package browser

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"

	"github.com/rotisserie/eris"
)

const maxDocumentBytes = 4 << 20

// HTTP fetches pages without running scripts. It serves directory pages that
// render server side and is the browser used by the lookup API by default.
type HTTP struct {
	client    *http.Client
	userAgent string
}

// NewHTTP wraps client; a nil client uses http.DefaultClient.
func NewHTTP(client *http.Client, userAgent string) *HTTP {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTP{client: client, userAgent: userAgent}
}

// NewPage returns a stateless page backed by the shared client.
func (h *HTTP) NewPage(ctx context.Context) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "browser: new page")
	}
	return &httpPage{browser: h}, nil
}

type httpPage struct {
	browser *HTTP
}

func (p *httpPage) Load(ctx context.Context, url, _ string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", eris.Wrapf(err, "browser: build request %s", url)
	}
	req.Header.Set("Accept", "text/html")
	if p.browser.userAgent != "" {
		req.Header.Set("User-Agent", p.browser.userAgent)
	}

	resp, err := p.browser.client.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() && ctx.Err() == nil {
			return "", eris.Wrapf(ErrPageTimeout, "load %s", url)
		}
		return "", eris.Wrapf(err, "browser: load %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", eris.Errorf("browser: load %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return "", eris.Wrapf(err, "browser: read %s", url)
	}
	return string(body), nil
}

func (p *httpPage) Close() error {
	return nil
}
