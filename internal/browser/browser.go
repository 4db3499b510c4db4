// Package browser provides isolated page contexts for rendering directory pages.
package browser

import (
	"context"

	"github.com/rotisserie/eris"
)

// ErrPageTimeout is returned when a page does not become ready in time.
var ErrPageTimeout = eris.New("browser: page load timed out")

// Page is one isolated navigation context, such as a browser tab.
type Page interface {
	// Load navigates to url, waits for waitSelector when it is non-empty and
	// returns the rendered document.
	Load(ctx context.Context, url, waitSelector string) (string, error)
	Close() error
}

// Browser hands out pages. Implementations must be safe for concurrent use.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
}

// WithPage opens a page, runs fn and always closes the page afterwards,
// including when fn panics. Other pages of the browser are never touched.
func WithPage(ctx context.Context, b Browser, fn func(Page) error) (err error) {
	page, err := b.NewPage(ctx)
	if err != nil {
		return eris.Wrap(err, "browser: open page")
	}
	defer func() {
		if cerr := page.Close(); cerr != nil && err == nil {
			err = eris.Wrap(cerr, "browser: close page")
		}
	}()
	return fn(page)
}
