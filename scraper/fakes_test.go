package scraper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/farelens/farelens/config"
	"github.com/farelens/farelens/selector"
)

// First semantic candidates from the default catalog; the fake driver is
// keyed by exact selector strings.
const (
	originSel  = `input[placeholder*="Where from"]`
	destSel    = `input[placeholder*="Where to"]`
	departSel  = `input[placeholder*="Departure"]`
	returnSel  = `input[placeholder*="Return"]`
	buttonSel  = `button[aria-label*="Search"]`
	resultsSel = `[data-testid="flight-offer"]`
)

type fakeElement struct {
	visible  bool
	enabled  bool
	html     string
	text     string
	attrs    map[string]string
	clicks   int
	filled   []string
	clickErr error
	fillErr  error
}

func newFakeElement() *fakeElement {
	return &fakeElement{visible: true, enabled: true}
}

func (e *fakeElement) Click() error {
	e.clicks++
	return e.clickErr
}

func (e *fakeElement) Fill(text string) error {
	if e.fillErr != nil {
		return e.fillErr
	}
	e.filled = append(e.filled, text)
	return nil
}

func (e *fakeElement) Text() (string, error) { return e.text, nil }

func (e *fakeElement) Attribute(name string) (string, bool, error) {
	v, ok := e.attrs[name]
	return v, ok, nil
}

func (e *fakeElement) Visible() (bool, error) { return e.visible, nil }
func (e *fakeElement) Enabled() (bool, error) { return e.enabled, nil }
func (e *fakeElement) HTML() (string, error)  { return e.html, nil }

// fakeDriver serves scripted elements by exact selector string. Selectors
// without an entry time out on wait and miss on query.
type fakeDriver struct {
	elements map[string]*fakeElement
	url      string
	evalOut  string
	evalErr  error
	evals    int
}

func (d *fakeDriver) WaitForSelector(ctx context.Context, sel string, timeout time.Duration) error {
	if _, ok := d.elements[sel]; ok {
		return nil
	}
	return errors.New("timeout waiting for selector")
}

func (d *fakeDriver) QuerySelector(sel string) (selector.Element, error) {
	if el, ok := d.elements[sel]; ok {
		return el, nil
	}
	return nil, errors.New("element not found")
}

func (d *fakeDriver) Evaluate(js string, args ...any) (string, error) {
	d.evals++
	return d.evalOut, d.evalErr
}

func (d *fakeDriver) CurrentURL() string { return d.url }

type fakePage struct {
	navigated []string
	navErr    map[string]error
	enterErr  error
	enters    int
	escapes   int
	url       string
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.navigated = append(p.navigated, url)
	if err, ok := p.navErr[url]; ok {
		return err
	}
	return nil
}

func (p *fakePage) PressEnter() error {
	p.enters++
	return p.enterErr
}

func (p *fakePage) PressEscape() error {
	p.escapes++
	return nil
}

func (p *fakePage) URL() string { return p.url }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSelectorOptions() selector.Options {
	return selector.Options{
		ResolveTimeout:      100 * time.Millisecond,
		MinCandidateTimeout: time.Millisecond,
		CaptureDOMContext:   false,
		Logger:              discardLogger(),
	}
}

func testSearchConfig() config.SearchConfig {
	return config.SearchConfig{
		BaseURL:             "https://flights.test/base",
		RoundTripURL:        "https://flights.test/round",
		SearchURL:           "https://flights.test/search",
		FallbackURL:         "https://flights.test/fallback",
		Currency:            "USD",
		ResultsTimeout:      50 * time.Millisecond,
		ResultsPollInterval: time.Millisecond,
	}
}

func newFormHarness(d *fakeDriver, p *fakePage, cfg config.SearchConfig) *FormHandler {
	res := selector.NewResolver(d, selector.Default(), nil, testSelectorOptions())
	return NewFormHandler(res, d, p, cfg, discardLogger())
}
