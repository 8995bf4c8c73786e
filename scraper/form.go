package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/farelens/farelens/config"
	"github.com/farelens/farelens/models"
	"github.com/farelens/farelens/selector"
)

// searchButtonClickJS clicks the search button through the full rendered
// path observed on the current page generation. Last-resort escape hatch
// when every catalog candidate misses.
const searchButtonClickJS = `() => {
	const btn = document.querySelector("#yDmH0d > c-wiz.zQTmif.SSPGKf > div > div:nth-child(2) > c-wiz > div.cKvRXe > c-wiz > div.vg4Z0e > div:nth-child(1) > div.SS6Dqf.POQx1c > div.MXvFbd > div > button");
	if (!btn) {
		throw new Error("search button path not found");
	}
	btn.click();
	return "clicked";
}`

// formPage is the slice of a browser session the form flow needs.
type formPage interface {
	Navigate(ctx context.Context, url string) error
	PressEnter() error
	PressEscape() error
	URL() string
}

// FormHandler drives the flight search form: navigation, field entry, and
// search submission. Field locations go through the resolver so every
// attempt lands in the session's monitoring records.
type FormHandler struct {
	res    *selector.Resolver
	driver selector.PageDriver
	page   formPage
	cfg    config.SearchConfig
	log    *slog.Logger
}

// NewFormHandler binds a form handler to one session.
func NewFormHandler(res *selector.Resolver, driver selector.PageDriver, page formPage, cfg config.SearchConfig, log *slog.Logger) *FormHandler {
	if log == nil {
		log = slog.Default()
	}
	return &FormHandler{res: res, driver: driver, page: page, cfg: cfg, log: log}
}

// Navigate opens the search form for the criteria's trip type, falling back
// to the plain flights landing page when the deep-link URL fails.
func (f *FormHandler) Navigate(ctx context.Context, criteria models.SearchCriteria) error {
	url := f.cfg.BaseURL
	if criteria.TripType == models.TripRoundTrip {
		url = f.cfg.RoundTripURL
	}

	err := f.page.Navigate(ctx, url)
	if err == nil {
		return nil
	}
	f.log.Warn("primary navigation failed, trying fallback",
		"url", url, "error", err)

	if fbErr := f.page.Navigate(ctx, f.cfg.FallbackURL); fbErr == nil {
		return nil
	}
	return models.NewScrapeError(models.ErrCodeNavigation,
		fmt.Sprintf("navigation to %s failed", url), err)
}

// Fill populates the search form. Origin and destination are required;
// date fields degrade to warnings so the search can still run on the
// form's default dates.
func (f *FormHandler) Fill(ctx context.Context, criteria models.SearchCriteria) error {
	if !f.res.FillElement(ctx, "origin_input", criteria.Origin) {
		return models.NewScrapeError(models.ErrCodeElementNotFound,
			"could not fill the origin input", nil)
	}
	f.confirmField(ctx)

	if !f.res.FillElement(ctx, "destination_input", criteria.Destination) {
		return models.NewScrapeError(models.ErrCodeElementNotFound,
			"could not fill the destination input", nil)
	}
	f.confirmField(ctx)

	f.fillDate(ctx, "departure_date", criteria.DepartureDate)

	if criteria.TripType == models.TripRoundTrip && criteria.ReturnDate != "" {
		f.fillDate(ctx, "return_date", criteria.ReturnDate)
	}

	f.log.Info("search form filled", "route", criteria.Route())
	return nil
}

// confirmField commits the focused field's autocomplete selection.
func (f *FormHandler) confirmField(ctx context.Context) {
	if err := f.page.PressEnter(); err != nil {
		f.log.Warn("enter dispatch failed", "error", err)
	}
	sleep(ctx, f.cfg.FieldSettleDelay)
}

// fillDate types a date value, retrying once through the opened picker.
func (f *FormHandler) fillDate(ctx context.Context, name, value string) {
	ok := f.res.FillElement(ctx, name, value)
	if !ok {
		f.log.Warn("date fill failed, retrying via picker", "element", name)
		if f.res.ClickElement(ctx, name) {
			sleep(ctx, f.cfg.FieldSettleDelay)
			ok = f.res.FillElement(ctx, name, value)
		}
	}
	if !ok {
		f.log.Warn("date left unset", "element", name)
	}
	f.confirmField(ctx)

	// The calendar overlay can outlive the commit and mask the next field.
	if err := f.page.PressEscape(); err != nil {
		f.log.Debug("escape dispatch failed", "error", err)
	}
}

// Submit triggers the search: resolver click first, then a direct JS click
// on the known button path, then a bare Enter dispatch.
func (f *FormHandler) Submit(ctx context.Context) error {
	switch {
	case f.res.ClickElement(ctx, "search_button"):
		f.log.Debug("search triggered via resolver click")
	case f.jsClick():
		f.log.Debug("search triggered via js click")
	default:
		f.log.Warn("falling back to enter key to trigger search")
		if err := f.page.PressEnter(); err != nil {
			return models.NewScrapeError(models.ErrCodeSearchFailed,
				"could not trigger the search with any method", err)
		}
	}
	return nil
}

func (f *FormHandler) jsClick() bool {
	if _, err := f.driver.Evaluate(searchButtonClickJS); err != nil {
		f.log.Debug("js click failed", "error", err)
		return false
	}
	return true
}

// WaitForResults blocks until the results page is reached and the offer
// list renders, or the configured window runs out. If the URL has not
// flipped halfway through the window, the search is re-triggered once.
func (f *FormHandler) WaitForResults(ctx context.Context) error {
	sleep(ctx, f.cfg.SubmitSettleDelay)

	deadline := time.Now().Add(f.cfg.ResultsTimeout)
	retriggered := false
	for {
		if err := ctx.Err(); err != nil {
			return models.NewScrapeError(models.ErrCodeTimeout,
				"canceled while waiting for results", err)
		}

		u := f.page.URL()
		if f.searchReached(u) {
			break
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return models.NewScrapeError(models.ErrCodeSearchFailed,
				fmt.Sprintf("search never reached the results page (url %s)", u), nil)
		}
		if !retriggered && remaining < f.cfg.ResultsTimeout/2 {
			f.log.Warn("results url not reached, re-triggering search", "url", u)
			if !f.res.ClickElement(ctx, "search_button") {
				_ = f.page.PressEnter()
			}
			retriggered = true
		}
		sleep(ctx, f.cfg.ResultsPollInterval)
	}

	if _, _, err := f.res.Resolve(ctx, "flight_results"); err != nil {
		return models.NewScrapeError(models.ErrCodeTimeout,
			"results page reached but the offer list never rendered", err)
	}
	return nil
}

// searchReached reports whether the URL is a results-page URL.
func (f *FormHandler) searchReached(u string) bool {
	if u == "" {
		return false
	}
	if f.cfg.SearchURL != "" && strings.HasPrefix(u, f.cfg.SearchURL) {
		return true
	}
	return strings.Contains(u, "search?")
}

// sleep waits for d or until the context is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
