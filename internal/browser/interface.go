// File: internal/browser/interface.go
package browser

import (
	"context"

	"github.com/xkilldash9x/selfheal/api/schemas"
)

// Element is a located page element. Implementations re-resolve lazily, so an
// element can go stale between FindElement and an action.
type Element interface {
	Click(ctx context.Context) error
	Clear(ctx context.Context) error
	SendKeys(ctx context.Context, text string) error
	Text(ctx context.Context) (string, error)
}

// Driver is the browser capability surface the healing engine consumes.
// Lookups are bounded by the driver's configured lookup timeout. A Driver
// drives one page and is not safe for concurrent use.
type Driver interface {
	// FindElement returns the first element matching selector, or a
	// *LookupError wrapping ErrElementNotFound, ErrLookupTimeout or
	// ErrStaleElement.
	FindElement(ctx context.Context, strategy schemas.Strategy, selector string) (Element, error)
	PageSource(ctx context.Context) (string, error)
	SaveScreenshot(ctx context.Context, path string) error
	CurrentURL(ctx context.Context) (string, error)

	// Navigate and Close are used by the CLI; the healing engine never
	// navigates on its own.
	Navigate(ctx context.Context, url string) error
	Close() error
}
