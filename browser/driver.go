package browser

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/farelens/farelens/selector"
)

// smallestTextMatchJS locates the smallest element containing the needle:
// the first element, in document order, whose text includes it while no
// child element's text does. Without the smallest-match rule a content
// query would always land on <body>.
const smallestTextMatchJS = `(needle) => {
	const lower = needle.toLowerCase();
	const all = document.querySelectorAll("*");
	for (const el of all) {
		const text = (el.textContent || "").toLowerCase();
		if (!text.includes(lower)) continue;
		let smallest = true;
		for (const child of el.children) {
			if ((child.textContent || "").toLowerCase().includes(lower)) {
				smallest = false;
				break;
			}
		}
		if (smallest) return el;
	}
	return null;
}`

// PageDriver adapts a Session to the query surface the selector engine
// consumes. CSS candidates go through Rod's element lookup; "text="
// candidates run the smallest-text-match query.
type PageDriver struct {
	session *Session
}

var _ selector.PageDriver = (*PageDriver)(nil)

// WaitForSelector blocks until the candidate matches or the timeout
// elapses. Rod retries the lookup internally until the deadline.
func (d *PageDriver) WaitForSelector(ctx context.Context, sel string, timeout time.Duration) error {
	p := d.session.page.Context(ctx).Timeout(timeout)

	if needle, ok := strings.CutPrefix(sel, selector.TextPrefix); ok {
		_, err := p.ElementByJS(rod.Eval(smallestTextMatchJS, needle))
		return err
	}
	_, err := p.Element(sel)
	return err
}

// QuerySelector returns the first current match without waiting, or nil
// when nothing matches.
func (d *PageDriver) QuerySelector(sel string) (selector.Element, error) {
	if needle, ok := strings.CutPrefix(sel, selector.TextPrefix); ok {
		el, err := d.session.page.Sleeper(rod.NotFoundSleeper).ElementByJS(rod.Eval(smallestTextMatchJS, needle))
		if err != nil {
			if errors.Is(err, &rod.ElementNotFoundError{}) {
				return nil, nil
			}
			return nil, err
		}
		return &element{el: el}, nil
	}

	has, el, err := d.session.page.Has(sel)
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, nil
	}
	return &element{el: el}, nil
}

// Evaluate runs JavaScript on the page and returns the result as a string.
func (d *PageDriver) Evaluate(js string, args ...any) (string, error) {
	res, err := d.session.page.Eval(js, args...)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

// CurrentURL returns the page's current location.
func (d *PageDriver) CurrentURL() string {
	return d.session.URL()
}

// element wraps a live Rod handle behind the selector engine's Element
// surface. Rod errors pass through unmodified so the failure classifier
// sees the original message text.
type element struct {
	el *rod.Element
}

var _ selector.Element = (*element)(nil)

func (e *element) Click() error {
	return e.el.Click(proto.InputMouseButtonLeft, 1)
}

// Fill replaces the element's current content with text. Selecting first
// keeps stale airport codes from concatenating with the new input.
func (e *element) Fill(text string) error {
	if err := e.el.SelectAllText(); err != nil {
		return err
	}
	return e.el.Input(text)
}

func (e *element) Text() (string, error) {
	return e.el.Text()
}

func (e *element) Attribute(name string) (string, bool, error) {
	val, err := e.el.Attribute(name)
	if err != nil {
		return "", false, err
	}
	if val == nil {
		return "", false, nil
	}
	return *val, true, nil
}

func (e *element) Visible() (bool, error) {
	return e.el.Visible()
}

// Enabled reflects the DOM disabled property; elements that cannot carry
// it report enabled.
func (e *element) Enabled() (bool, error) {
	prop, err := e.el.Property("disabled")
	if err != nil {
		return false, err
	}
	return !prop.Bool(), nil
}

func (e *element) HTML() (string, error) {
	return e.el.HTML()
}
