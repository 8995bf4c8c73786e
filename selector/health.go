package selector

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/farelens/farelens/fingerprint"
)

// Thresholds controls when the health monitor flags pages and generates
// alerts. Zero fields take the defaults documented per field.
type Thresholds struct {
	// CriticalSuccessRate is the page success rate below which a critical
	// alert is generated. default: 0.5
	CriticalSuccessRate float64

	// StructureIndicatorRatio is the fraction of monitored elements that
	// must show structure indicators before the page is flagged as
	// changed. default: 0.5
	StructureIndicatorRatio float64

	// StructureMinAttempts is how many attempts a fully failed element
	// needs before its failure alone counts as a structure indicator.
	// default: 3
	StructureMinAttempts int

	// LowSuccessRate is the per-page rate below which the report lists a
	// critical issue. default: 0.3
	LowSuccessRate float64

	// RecommendBelowRate is the average rate below which the report
	// carries recommendations. default: 0.7
	RecommendBelowRate float64

	// MaxAlertsPerPage bounds the retained alert history per page type;
	// older alerts are discarded first. default: 100
	MaxAlertsPerPage int
}

func (t *Thresholds) defaults() {
	if t.CriticalSuccessRate <= 0 {
		t.CriticalSuccessRate = 0.5
	}
	if t.StructureIndicatorRatio <= 0 {
		t.StructureIndicatorRatio = 0.5
	}
	if t.StructureMinAttempts <= 0 {
		t.StructureMinAttempts = 3
	}
	if t.LowSuccessRate <= 0 {
		t.LowSuccessRate = 0.3
	}
	if t.RecommendBelowRate <= 0 {
		t.RecommendBelowRate = 0.7
	}
	if t.MaxAlertsPerPage <= 0 {
		t.MaxAlertsPerPage = 100
	}
}

// Severity grades a FailureAlert.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// FailureAlert is one actionable finding from a page health recording.
// Critical alerts cover a whole page and list the failed elements;
// warning alerts cover one element and carry its failure patterns.
type FailureAlert struct {
	Severity Severity `json:"severity"`
	PageType string   `json:"page_type"`

	Element  string   `json:"element,omitempty"`
	Elements []string `json:"elements,omitempty"`

	FailurePatterns    []string `json:"failure_patterns,omitempty"`
	RecommendedActions []string `json:"recommended_actions"`

	FirstFailure time.Time `json:"first_failure,omitzero"`
	LastFailure  time.Time `json:"last_failure,omitzero"`
	CreatedAt    time.Time `json:"created_at"`
}

// PageHealthRecord is the latest health snapshot for one page type.
type PageHealthRecord struct {
	PageType           string   `json:"page_type"`
	OverallSuccessRate float64  `json:"overall_success_rate"`
	ElementsMonitored  int      `json:"elements_monitored"`
	CriticalFailures   []string `json:"critical_failures"`
	StructureChanged   bool     `json:"structure_changed"`

	// DOMFingerprint and FingerprintDrift are diagnostic context from
	// RecordPageFingerprint; they do not feed the structure heuristic.
	DOMFingerprint   uint64 `json:"dom_fingerprint,omitempty"`
	FingerprintDrift int    `json:"fingerprint_drift,omitempty"`

	RecordedAt time.Time `json:"recorded_at"`
}

// OverallHealth aggregates success rates across all monitored pages.
type OverallHealth struct {
	AverageSuccessRate float64 `json:"average_success_rate"`
	WorstSuccessRate   float64 `json:"worst_success_rate"`
	BestSuccessRate    float64 `json:"best_success_rate"`
}

// HealthReport is the operator-facing summary of selector health.
type HealthReport struct {
	Timestamp       time.Time     `json:"timestamp"`
	PagesMonitored  int           `json:"pages_monitored"`
	OverallHealth   OverallHealth `json:"overall_health"`
	CriticalIssues  []string      `json:"critical_issues"`
	Recommendations []string      `json:"recommendations"`
}

// AlertNotifier receives alerts as they are generated. Delivery runs on
// its own goroutine and must not block indefinitely.
type AlertNotifier interface {
	NotifyAlert(alert FailureAlert)
}

// HealthMonitor aggregates element monitoring into per-page health
// records, generates alerts, and produces operator reports. It keeps the
// latest record per page type plus a bounded alert history.
//
// One monitor is shared across page sessions; all methods are safe for
// concurrent use.
type HealthMonitor struct {
	mu         sync.Mutex
	thresholds Thresholds
	log        *slog.Logger
	notifier   AlertNotifier

	pages           map[string]PageHealthRecord
	alerts          map[string][]FailureAlert
	failurePatterns map[string][]string
	fingerprints    map[string]uint64
	drift           map[string]int
}

// maxPatternsPerElement bounds retained failure messages per element.
const maxPatternsPerElement = 20

// NewHealthMonitor creates a monitor with the given thresholds. logger may
// be nil for the process default.
func NewHealthMonitor(thresholds Thresholds, logger *slog.Logger) *HealthMonitor {
	thresholds.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthMonitor{
		thresholds:      thresholds,
		log:             logger,
		pages:           make(map[string]PageHealthRecord),
		alerts:          make(map[string][]FailureAlert),
		failurePatterns: make(map[string][]string),
		fingerprints:    make(map[string]uint64),
		drift:           make(map[string]int),
	}
}

// SetNotifier registers an alert sink, replacing any previous one.
func (h *HealthMonitor) SetNotifier(n AlertNotifier) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.notifier = n
}

// RecordPageHealth computes a health record from the monitoring of one
// page visit, stores it as the latest record for pageType, and generates
// whatever alerts the record warrants. Recording never fails the caller:
// internal errors are logged and swallowed, since health bookkeeping must
// not take down the scrape it observes.
func (h *HealthMonitor) RecordPageHealth(pageType string, monitoring map[string]*ElementMonitoring) {
	defer func() {
		if rec := recover(); rec != nil {
			h.log.Error("health recording failed", "page_type", pageType, "panic", rec)
		}
	}()

	h.mu.Lock()
	defer h.mu.Unlock()

	total := 0
	successful := 0
	var failures []string
	for name, m := range monitoring {
		if m == nil {
			continue
		}
		total++
		if m.FinalSuccess {
			successful++
		} else {
			failures = append(failures, name)
		}
	}
	sort.Strings(failures)

	rate := 0.0
	if total > 0 {
		rate = float64(successful) / float64(total)
	}

	record := PageHealthRecord{
		PageType:           pageType,
		OverallSuccessRate: rate,
		ElementsMonitored:  total,
		CriticalFailures:   failures,
		StructureChanged:   h.detectStructureChange(monitoring),
		DOMFingerprint:     h.fingerprints[pageType],
		FingerprintDrift:   h.drift[pageType],
		RecordedAt:         time.Now(),
	}
	h.pages[pageType] = record

	for _, name := range failures {
		merged := append(h.failurePatterns[name], monitoring[name].FailureMessages()...)
		if over := len(merged) - maxPatternsPerElement; over > 0 {
			merged = merged[over:]
		}
		h.failurePatterns[name] = merged
	}

	h.log.Info("page health recorded",
		"page_type", pageType,
		"success_rate", rate,
		"critical_failures", len(failures),
		"structure_changed", record.StructureChanged,
	)

	h.generateAlerts(record, monitoring)
}

// detectStructureChange flags a page when more than the configured ratio
// of its elements show structure indicators. An element indicates a
// structure change when any attempt classified as structure_changed, or
// when it failed outright after enough attempts that several strategy
// groups must have been exhausted.
func (h *HealthMonitor) detectStructureChange(monitoring map[string]*ElementMonitoring) bool {
	total := 0
	indicators := 0
	for _, m := range monitoring {
		if m == nil {
			continue
		}
		total++
		if m.HasFailureCategory(FailureStructureChanged) {
			indicators++
			continue
		}
		if !m.FinalSuccess && m.TotalAttempts >= h.thresholds.StructureMinAttempts {
			indicators++
		}
	}
	if total == 0 {
		return false
	}
	return float64(indicators) > float64(total)*h.thresholds.StructureIndicatorRatio
}

// generateAlerts appends the alerts one record warrants: one critical
// alert when the page success rate falls below the critical threshold,
// plus one warning alert per failed element. Called with h.mu held.
func (h *HealthMonitor) generateAlerts(record PageHealthRecord, monitoring map[string]*ElementMonitoring) {
	now := time.Now()
	var generated []FailureAlert

	if record.OverallSuccessRate < h.thresholds.CriticalSuccessRate {
		generated = append(generated, FailureAlert{
			Severity: SeverityCritical,
			PageType: record.PageType,
			Elements: record.CriticalFailures,
			RecommendedActions: []string{
				"review page structure changes",
				"update selector configurations",
				"check for upstream UI updates",
			},
			CreatedAt: now,
		})
	}

	for _, name := range record.CriticalFailures {
		m := monitoring[name]
		if m == nil {
			continue
		}
		first, last := m.FailureWindow()
		generated = append(generated, FailureAlert{
			Severity:        SeverityWarning,
			PageType:        record.PageType,
			Element:         name,
			FailurePatterns: m.FailureMessages(),
			RecommendedActions: []string{
				fmt.Sprintf("review %s selector configuration", name),
				fmt.Sprintf("test %s selectors manually", name),
				fmt.Sprintf("add more fallback selectors for %s", name),
			},
			FirstFailure: first,
			LastFailure:  last,
			CreatedAt:    now,
		})
	}

	if len(generated) == 0 {
		return
	}

	list := append(h.alerts[record.PageType], generated...)
	if over := len(list) - h.thresholds.MaxAlertsPerPage; over > 0 {
		list = list[over:]
	}
	h.alerts[record.PageType] = list

	notifier := h.notifier
	for _, a := range generated {
		if a.Severity == SeverityCritical {
			h.log.Error("selector health alert",
				"severity", a.Severity,
				"page_type", a.PageType,
				"elements", a.Elements,
			)
		} else {
			h.log.Warn("selector health alert",
				"severity", a.Severity,
				"page_type", a.PageType,
				"element", a.Element,
			)
		}
		if notifier != nil {
			go h.deliver(notifier, a)
		}
	}
}

// deliver pushes one alert to the notifier off the recording path. A
// panicking notifier is contained here so it cannot take down the scrape.
func (h *HealthMonitor) deliver(n AlertNotifier, a FailureAlert) {
	defer func() {
		if rec := recover(); rec != nil {
			h.log.Error("alert delivery panicked", "page_type", a.PageType, "panic", rec)
		}
	}()
	n.NotifyAlert(a)
}

// RecordPageFingerprint stores the latest DOM fingerprint for a page type
// and the Hamming drift from the previous visit. The fingerprint is
// diagnostic context attached to subsequent health records.
func (h *HealthMonitor) RecordPageFingerprint(pageType string, fp uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if prev, ok := h.fingerprints[pageType]; ok {
		h.drift[pageType] = fingerprint.Distance(prev, fp)
	}
	h.fingerprints[pageType] = fp
}

// Report summarizes health across all monitored pages. With nothing
// monitored yet it returns a zeroed report with empty, non-nil issue and
// recommendation lists.
func (h *HealthMonitor) Report() HealthReport {
	h.mu.Lock()
	defer h.mu.Unlock()

	report := HealthReport{
		Timestamp:       time.Now(),
		PagesMonitored:  len(h.pages),
		CriticalIssues:  []string{},
		Recommendations: []string{},
	}
	if len(h.pages) == 0 {
		return report
	}

	names := make([]string, 0, len(h.pages))
	for name := range h.pages {
		names = append(names, name)
	}
	sort.Strings(names)

	sum := 0.0
	worst, best := 1.0, 0.0
	for _, name := range names {
		rec := h.pages[name]
		sum += rec.OverallSuccessRate
		if rec.OverallSuccessRate < worst {
			worst = rec.OverallSuccessRate
		}
		if rec.OverallSuccessRate > best {
			best = rec.OverallSuccessRate
		}
		if rec.StructureChanged {
			report.CriticalIssues = append(report.CriticalIssues,
				fmt.Sprintf("Structure changes detected in %s", name))
		}
		if rec.OverallSuccessRate < h.thresholds.LowSuccessRate {
			report.CriticalIssues = append(report.CriticalIssues,
				fmt.Sprintf("Low success rate (%.2f) in %s", rec.OverallSuccessRate, name))
		}
	}

	avg := sum / float64(len(h.pages))
	report.OverallHealth = OverallHealth{
		AverageSuccessRate: avg,
		WorstSuccessRate:   worst,
		BestSuccessRate:    best,
	}

	if avg < h.thresholds.RecommendBelowRate {
		report.Recommendations = append(report.Recommendations,
			"Consider updating selector configurations for failing elements",
			"Review recent structure changes on the target site",
			"Add fallback selectors to low-performing strategy groups",
		)
	}
	return report
}

// PageRecord returns the latest record for one page type.
func (h *HealthMonitor) PageRecord(pageType string) (PageHealthRecord, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rec, ok := h.pages[pageType]
	return rec, ok
}

// Records returns the latest record of every monitored page, sorted by
// page type.
func (h *HealthMonitor) Records() []PageHealthRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]PageHealthRecord, 0, len(h.pages))
	for _, rec := range h.pages {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PageType < out[j].PageType })
	return out
}

// Alerts returns a copy of the retained alerts for one page type, oldest
// first.
func (h *HealthMonitor) Alerts(pageType string) []FailureAlert {
	h.mu.Lock()
	defer h.mu.Unlock()
	list := h.alerts[pageType]
	out := make([]FailureAlert, len(list))
	copy(out, list)
	return out
}

// AllAlerts returns a copy of the retained alerts for every page type.
func (h *HealthMonitor) AllAlerts() map[string][]FailureAlert {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string][]FailureAlert, len(h.alerts))
	for page, list := range h.alerts {
		cp := make([]FailureAlert, len(list))
		copy(cp, list)
		out[page] = cp
	}
	return out
}

// ClearAlerts drops the alert history for one page type.
func (h *HealthMonitor) ClearAlerts(pageType string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.alerts, pageType)
}

// ClearAllAlerts drops every page's alert history.
func (h *HealthMonitor) ClearAllAlerts() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.alerts = make(map[string][]FailureAlert)
}

// FailurePatterns returns a copy of the accumulated failure messages per
// element across all recordings.
func (h *HealthMonitor) FailurePatterns() map[string][]string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string][]string, len(h.failurePatterns))
	for name, msgs := range h.failurePatterns {
		cp := make([]string, len(msgs))
		copy(cp, msgs)
		out[name] = cp
	}
	return out
}
