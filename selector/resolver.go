package selector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/farelens/farelens/models"
)

// Options tunes the resolution engine.
type Options struct {
	// ResolveTimeout is the total budget for one logical-element
	// resolution across all strategy groups. default: 10s
	ResolveTimeout time.Duration

	// MinCandidateTimeout floors a single candidate's wait so every
	// candidate still gets one real try after earlier waits have eaten
	// the budget. default: 250ms
	MinCandidateTimeout time.Duration

	// CaptureDOMContext captures a markup snippet near failed selectors.
	CaptureDOMContext bool

	// DOMContextMaxLen truncates captured snippets. default: 300
	DOMContextMaxLen int

	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.ResolveTimeout <= 0 {
		o.ResolveTimeout = 10 * time.Second
	}
	if o.MinCandidateTimeout <= 0 {
		o.MinCandidateTimeout = 250 * time.Millisecond
	}
	if o.DOMContextMaxLen <= 0 {
		o.DOMContextMaxLen = 300
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Resolver turns logical element names into live page elements. It walks
// strategy groups in fixed priority order and candidates in listed order,
// recording every attempt. Resolution is strictly sequential: concurrent
// DOM queries against one live page race its scripts, so no candidates
// are tried in parallel.
//
// A Resolver belongs to one page session and is not safe for concurrent
// use. The HealthMonitor it reports to may be shared across sessions.
type Resolver struct {
	driver  PageDriver
	catalog Catalog
	health  *HealthMonitor
	opts    Options

	// latest holds the most recent monitoring per element since the last
	// ResetMonitoring, for session-level health recording.
	latest map[string]*ElementMonitoring
}

// NewResolver binds a resolution engine to one page driver. health may be
// nil when no aggregation is wanted.
func NewResolver(driver PageDriver, catalog Catalog, health *HealthMonitor, opts Options) *Resolver {
	opts.defaults()
	return &Resolver{
		driver:  driver,
		catalog: catalog,
		health:  health,
		opts:    opts,
		latest:  make(map[string]*ElementMonitoring),
	}
}

// Resolve locates the logical element by trying each strategy group in
// priority order and each candidate within a group in listed order. The
// first candidate that yields a visible, enabled element wins. Individual
// candidate failures become SelectorAttempt records, never errors; only
// full exhaustion returns one, with code ELEMENT_NOT_FOUND.
func (r *Resolver) Resolve(ctx context.Context, name string) (Element, *ElementMonitoring, error) {
	start := time.Now()
	mon := NewElementMonitoring(name)
	r.latest[name] = mon
	defer func() {
		mon.TotalMs = time.Since(start).Milliseconds()
	}()

	entry, ok := r.catalog.Entry(name)
	if !ok || entry.Total() == 0 {
		mon.record(SelectorAttempt{
			Success:   false,
			Failure:   FailureNotFound,
			Error:     fmt.Sprintf("no selector candidates configured for %q", name),
			Timestamp: start,
		})
		r.opts.Logger.Warn("unknown logical element", "element", name)
		return nil, mon, models.NewScrapeError(models.ErrCodeElementNotFound,
			fmt.Sprintf("no selector candidates configured for %q", name), nil)
	}

	deadline := start.Add(r.opts.ResolveTimeout)

	for _, group := range StrategyOrder() {
		candidates := entry.Candidates(group)
		for i, sel := range candidates {
			if err := ctx.Err(); err != nil {
				return nil, mon, models.NewScrapeError(models.ErrCodeElementNotFound,
					fmt.Sprintf("resolution of %q canceled", name), err)
			}

			budget := perCandidateBudget(deadline, len(candidates)-i, r.opts.MinCandidateTimeout)
			el, attempt := r.tryCandidate(ctx, sel, group, budget)
			mon.record(attempt)

			if el != nil {
				mon.markSuccess(sel, group)
				r.opts.Logger.Debug("element resolved",
					"element", name,
					"selector", sel,
					"strategy", group,
					"attempts", mon.TotalAttempts,
				)
				return el, mon, nil
			}
		}
	}

	r.opts.Logger.Warn("element resolution exhausted",
		"element", name,
		"attempts", mon.TotalAttempts,
	)
	return nil, mon, models.NewScrapeError(models.ErrCodeElementNotFound,
		fmt.Sprintf("no selector candidate located %q after %d attempts", name, mon.TotalAttempts), nil)
}

// tryCandidate runs one candidate through wait, query, and the
// interactability gate. An element that exists but is not both visible and
// enabled counts as a failure, not a success.
func (r *Resolver) tryCandidate(ctx context.Context, sel string, group Strategy, budget time.Duration) (Element, SelectorAttempt) {
	start := time.Now()
	attempt := SelectorAttempt{
		Selector:  sel,
		Strategy:  group,
		Timestamp: start,
	}

	fail := func(err error) (Element, SelectorAttempt) {
		attempt.Failure = Classify(err)
		attempt.Error = err.Error()
		attempt.ExecutionMs = time.Since(start).Milliseconds()
		if r.opts.CaptureDOMContext {
			attempt.DOMContext = r.domContext(sel)
		}
		return nil, attempt
	}

	if err := r.driver.WaitForSelector(ctx, sel, budget); err != nil {
		return fail(err)
	}

	el, err := r.driver.QuerySelector(sel)
	if err != nil {
		return fail(err)
	}
	if el == nil {
		return fail(errors.New("element not found after successful wait"))
	}

	visible, err := el.Visible()
	if err != nil {
		return fail(err)
	}
	enabled, err := el.Enabled()
	if err != nil {
		return fail(err)
	}
	if !visible || !enabled {
		return fail(fmt.Errorf("element not interactable (visible=%t, enabled=%t)", visible, enabled))
	}

	attempt.Success = true
	attempt.ExecutionMs = time.Since(start).Milliseconds()
	return el, attempt
}

// perCandidateBudget splits the remaining overall budget across the
// candidates not yet tried in the current group, so a group with many
// fallbacks does not starve its tail.
func perCandidateBudget(deadline time.Time, untried int, minBudget time.Duration) time.Duration {
	if untried < 1 {
		untried = 1
	}
	budget := time.Until(deadline) / time.Duration(untried)
	if budget < minBudget {
		return minBudget
	}
	return budget
}

const domContextJS = `(sel) => {
	const el = document.querySelector(sel);
	if (el && el.parentElement) {
		return el.parentElement.outerHTML;
	}
	return document.body ? document.body.innerHTML.slice(0, 2000) : "";
}`

// domContext captures markup near a failed selector. Capture failures are
// irrelevant to resolution and yield an empty snippet.
func (r *Resolver) domContext(sel string) string {
	out, err := r.driver.Evaluate(domContextJS, sel)
	if err != nil {
		return ""
	}
	if len(out) > r.opts.DOMContextMaxLen {
		out = out[:r.opts.DOMContextMaxLen]
	}
	return out
}

// ClickElement resolves name and clicks it, reporting success as a bool so
// orchestrators can chain their own fallbacks instead of unwrapping errors.
func (r *Resolver) ClickElement(ctx context.Context, name string) bool {
	el, _, err := r.Resolve(ctx, name)
	if err != nil {
		return false
	}
	if err := el.Click(); err != nil {
		r.opts.Logger.Warn("click failed", "element", name, "error", err)
		return false
	}
	return true
}

// FillElement resolves name and types value into it.
func (r *Resolver) FillElement(ctx context.Context, name, value string) bool {
	el, _, err := r.Resolve(ctx, name)
	if err != nil {
		return false
	}
	if err := el.Fill(value); err != nil {
		r.opts.Logger.Warn("fill failed", "element", name, "error", err)
		return false
	}
	return true
}

// ElementText resolves name and reads its inner text. The second return
// is false when the element could not be resolved or read.
func (r *Resolver) ElementText(ctx context.Context, name string) (string, bool) {
	el, _, err := r.Resolve(ctx, name)
	if err != nil {
		return "", false
	}
	text, err := el.Text()
	if err != nil {
		r.opts.Logger.Warn("text read failed", "element", name, "error", err)
		return "", false
	}
	return text, true
}

// ElementAttribute resolves name and reads one attribute.
func (r *Resolver) ElementAttribute(ctx context.Context, name, attr string) (string, bool) {
	el, _, err := r.Resolve(ctx, name)
	if err != nil {
		return "", false
	}
	val, ok, err := el.Attribute(attr)
	if err != nil || !ok {
		return "", false
	}
	return val, true
}

// Monitoring returns the most recent record for one element since the
// last reset.
func (r *Resolver) Monitoring(name string) (*ElementMonitoring, bool) {
	m, ok := r.latest[name]
	return m, ok
}

// RecordSessionHealth hands everything monitored since the last reset to
// the health monitor under the given page type.
func (r *Resolver) RecordSessionHealth(pageType string) {
	if r.health == nil || len(r.latest) == 0 {
		return
	}
	r.health.RecordPageHealth(pageType, r.latest)
}

// ResetMonitoring clears accumulated records, marking a page transition so
// the next phase aggregates separately.
func (r *Resolver) ResetMonitoring() {
	r.latest = make(map[string]*ElementMonitoring)
}
