package selector

import (
	"context"
	"time"
)

// Element is a live handle to a located page element. Implementations wrap
// whatever the browser backend returns; errors pass through unmodified so
// the failure classifier sees the backend's message text.
type Element interface {
	Click() error
	Fill(text string) error
	Text() (string, error)
	Attribute(name string) (string, bool, error)
	Visible() (bool, error)
	Enabled() (bool, error)
	HTML() (string, error)
}

// PageDriver is the page-query capability the resolution engine consumes.
// Any browser-automation backend can satisfy it; the browser package
// provides the production implementation and tests use a scripted fake.
//
// Candidates prefixed with "text=" are content queries; the driver matches
// elements by visible text instead of CSS.
type PageDriver interface {
	// WaitForSelector blocks until the selector matches or the timeout
	// elapses. A timeout is reported as an error, not a panic.
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error

	// QuerySelector returns the first match, or nil when nothing matches.
	QuerySelector(selector string) (Element, error)

	// Evaluate runs JavaScript on the page and returns the result as a
	// string. The resolver uses it only for diagnostic DOM-context capture.
	Evaluate(js string, args ...any) (string, error)

	// CurrentURL returns the page's current location.
	CurrentURL() string
}

// TextPrefix marks a content-based candidate that the driver should match
// by visible text rather than CSS.
const TextPrefix = "text="
