package selector

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func successfulMonitoring(element string) *ElementMonitoring {
	m := NewElementMonitoring(element)
	m.record(SelectorAttempt{
		Selector:  ".ok",
		Strategy:  StrategySemantic,
		Success:   true,
		Timestamp: time.Now(),
	})
	m.markSuccess(".ok", StrategySemantic)
	return m
}

func failedMonitoring(element string, category FailureCategory, attempts int) *ElementMonitoring {
	m := NewElementMonitoring(element)
	for i := 0; i < attempts; i++ {
		m.record(SelectorAttempt{
			Selector:  fmt.Sprintf(".cand-%d", i),
			Strategy:  StrategySemantic,
			Failure:   category,
			Error:     fmt.Sprintf("candidate %d failed: %s", i, category),
			Timestamp: time.Now(),
		})
	}
	return m
}

func newTestMonitor(t Thresholds) *HealthMonitor {
	return NewHealthMonitor(t, testLogger())
}

func TestRecordPageHealth_SuccessRate(t *testing.T) {
	h := newTestMonitor(Thresholds{})
	h.RecordPageHealth("flight_search_page", map[string]*ElementMonitoring{
		"origin_input":      successfulMonitoring("origin_input"),
		"destination_input": successfulMonitoring("destination_input"),
		"departure_date":    successfulMonitoring("departure_date"),
		"search_button":     failedMonitoring("search_button", FailureNotFound, 2),
	})

	rec, ok := h.PageRecord("flight_search_page")
	if !ok {
		t.Fatal("PageRecord: no record stored")
	}
	if rec.OverallSuccessRate != 0.75 {
		t.Errorf("OverallSuccessRate: got %v, want 0.75", rec.OverallSuccessRate)
	}
	if rec.ElementsMonitored != 4 {
		t.Errorf("ElementsMonitored: got %d, want 4", rec.ElementsMonitored)
	}
	if len(rec.CriticalFailures) != 1 || rec.CriticalFailures[0] != "search_button" {
		t.Errorf("CriticalFailures: got %v, want [search_button]", rec.CriticalFailures)
	}
}

func TestRecordPageHealth_EmptyMonitoring(t *testing.T) {
	h := newTestMonitor(Thresholds{})
	h.RecordPageHealth("results_page", map[string]*ElementMonitoring{})

	rec, ok := h.PageRecord("results_page")
	if !ok {
		t.Fatal("PageRecord: empty monitoring should still store a record")
	}
	if rec.OverallSuccessRate != 0 {
		t.Errorf("OverallSuccessRate: got %v, want 0 on empty monitoring", rec.OverallSuccessRate)
	}
	if rec.ElementsMonitored != 0 {
		t.Errorf("ElementsMonitored: got %d, want 0", rec.ElementsMonitored)
	}
	if rec.StructureChanged {
		t.Error("StructureChanged: got true with nothing monitored")
	}
}

func TestRecordPageHealth_NilEntriesSkipped(t *testing.T) {
	h := newTestMonitor(Thresholds{})
	h.RecordPageHealth("results_page", map[string]*ElementMonitoring{
		"flight_results": successfulMonitoring("flight_results"),
		"phantom":        nil,
	})

	rec, _ := h.PageRecord("results_page")
	if rec.ElementsMonitored != 1 {
		t.Errorf("ElementsMonitored: got %d, want nil entries skipped", rec.ElementsMonitored)
	}
	if rec.OverallSuccessRate != 1.0 {
		t.Errorf("OverallSuccessRate: got %v, want 1.0", rec.OverallSuccessRate)
	}
}

func TestRecordPageHealth_HealthyPageNoAlerts(t *testing.T) {
	h := newTestMonitor(Thresholds{})
	h.RecordPageHealth("flight_search_page", map[string]*ElementMonitoring{
		"origin_input":      successfulMonitoring("origin_input"),
		"destination_input": successfulMonitoring("destination_input"),
		"search_button":     successfulMonitoring("search_button"),
	})

	if alerts := h.Alerts("flight_search_page"); len(alerts) != 0 {
		t.Errorf("alerts: got %d on a fully healthy page, want 0", len(alerts))
	}
}

func TestRecordPageHealth_CriticalAndWarningAlerts(t *testing.T) {
	h := newTestMonitor(Thresholds{})
	h.RecordPageHealth("flight_search_page", map[string]*ElementMonitoring{
		"origin_input":      successfulMonitoring("origin_input"),
		"destination_input": successfulMonitoring("destination_input"),
		"departure_date":    failedMonitoring("departure_date", FailureNotFound, 2),
		"return_date":       failedMonitoring("return_date", FailureNotFound, 2),
		"search_button":     failedMonitoring("search_button", FailureUninteractable, 1),
	})

	alerts := h.Alerts("flight_search_page")
	var criticals, warnings []FailureAlert
	for _, a := range alerts {
		switch a.Severity {
		case SeverityCritical:
			criticals = append(criticals, a)
		case SeverityWarning:
			warnings = append(warnings, a)
		}
	}

	// Rate 0.4 is below the 0.5 critical threshold: one page-level
	// critical alert plus one warning per failed element.
	if len(criticals) != 1 {
		t.Fatalf("critical alerts: got %d, want 1", len(criticals))
	}
	if len(warnings) != 3 {
		t.Fatalf("warning alerts: got %d, want 3", len(warnings))
	}

	crit := criticals[0]
	wantElements := []string{"departure_date", "return_date", "search_button"}
	if len(crit.Elements) != len(wantElements) {
		t.Fatalf("critical alert elements: got %v, want %v", crit.Elements, wantElements)
	}
	for i, el := range crit.Elements {
		if el != wantElements[i] {
			t.Errorf("critical alert elements[%d]: got %q, want %q", i, el, wantElements[i])
		}
	}
	joined := strings.Join(crit.RecommendedActions, "; ")
	if !strings.Contains(joined, "update selector configurations") {
		t.Errorf("critical alert actions: got %q, want selector-update action", joined)
	}

	for _, w := range warnings {
		if w.Element == "" {
			t.Error("warning alert missing element name")
		}
		if len(w.FailurePatterns) == 0 {
			t.Errorf("warning alert for %s has no failure patterns", w.Element)
		}
		if len(w.RecommendedActions) == 0 || !strings.Contains(w.RecommendedActions[0], w.Element) {
			t.Errorf("warning alert actions for %s should name the element: %v", w.Element, w.RecommendedActions)
		}
		if w.FirstFailure.IsZero() || w.LastFailure.IsZero() {
			t.Errorf("warning alert for %s missing failure window", w.Element)
		}
	}
}

func TestRecordPageHealth_DegradedPage(t *testing.T) {
	h := newTestMonitor(Thresholds{})
	h.RecordPageHealth("results_page", map[string]*ElementMonitoring{
		"elem1": successfulMonitoring("elem1"),
		"elem2": failedMonitoring("elem2", FailureStructureChanged, 2),
		"elem3": failedMonitoring("elem3", FailureNotFound, 4),
	})

	rec, _ := h.PageRecord("results_page")
	if math.Abs(rec.OverallSuccessRate-1.0/3.0) > 1e-9 {
		t.Errorf("OverallSuccessRate: got %v, want 1/3", rec.OverallSuccessRate)
	}
	if len(rec.CriticalFailures) != 2 || rec.CriticalFailures[0] != "elem2" || rec.CriticalFailures[1] != "elem3" {
		t.Errorf("CriticalFailures: got %v, want [elem2 elem3]", rec.CriticalFailures)
	}
	if !rec.StructureChanged {
		t.Error("StructureChanged: got false, want true (2 of 3 elements indicate change)")
	}

	alerts := h.Alerts("results_page")
	if len(alerts) != 3 {
		t.Fatalf("alerts: got %d, want 1 critical + 2 warnings", len(alerts))
	}
	if alerts[0].Severity != SeverityCritical {
		t.Errorf("first alert severity: got %q, want critical", alerts[0].Severity)
	}
}

func TestDetectStructureChange(t *testing.T) {
	tests := []struct {
		name       string
		monitoring map[string]*ElementMonitoring
		want       bool
	}{
		{
			name: "majority structure failures",
			monitoring: map[string]*ElementMonitoring{
				"a": failedMonitoring("a", FailureStructureChanged, 1),
				"b": failedMonitoring("b", FailureStructureChanged, 1),
				"c": failedMonitoring("c", FailureStructureChanged, 1),
				"d": successfulMonitoring("d"),
			},
			want: true,
		},
		{
			name: "single structure failure",
			monitoring: map[string]*ElementMonitoring{
				"a": failedMonitoring("a", FailureStructureChanged, 1),
				"b": successfulMonitoring("b"),
				"c": successfulMonitoring("c"),
				"d": successfulMonitoring("d"),
			},
			want: false,
		},
		{
			name: "exactly half is not a majority",
			monitoring: map[string]*ElementMonitoring{
				"a": failedMonitoring("a", FailureStructureChanged, 1),
				"b": failedMonitoring("b", FailureStructureChanged, 1),
				"c": successfulMonitoring("c"),
				"d": successfulMonitoring("d"),
			},
			want: false,
		},
		{
			name: "exhausted element counts without structure category",
			monitoring: map[string]*ElementMonitoring{
				"a": failedMonitoring("a", FailureNotFound, 3),
			},
			want: true,
		},
		{
			name: "brief failure does not count",
			monitoring: map[string]*ElementMonitoring{
				"a": failedMonitoring("a", FailureNotFound, 2),
			},
			want: false,
		},
		{
			name: "structure attempt counts even after eventual success",
			monitoring: map[string]*ElementMonitoring{
				"a": func() *ElementMonitoring {
					m := failedMonitoring("a", FailureStructureChanged, 1)
					m.record(SelectorAttempt{Selector: ".ok", Strategy: StrategyClassBased, Success: true, Timestamp: time.Now()})
					m.markSuccess(".ok", StrategyClassBased)
					return m
				}(),
			},
			want: true,
		},
		{
			name:       "empty monitoring",
			monitoring: map[string]*ElementMonitoring{},
			want:       false,
		},
	}

	h := newTestMonitor(Thresholds{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := h.detectStructureChange(tt.monitoring); got != tt.want {
				t.Errorf("detectStructureChange: got %t, want %t", got, tt.want)
			}
		})
	}
}

func TestReport_Empty(t *testing.T) {
	h := newTestMonitor(Thresholds{})
	report := h.Report()

	if report.PagesMonitored != 0 {
		t.Errorf("PagesMonitored: got %d, want 0", report.PagesMonitored)
	}
	if report.CriticalIssues == nil || report.Recommendations == nil {
		t.Fatal("empty report must carry empty lists, not null")
	}

	data, err := json.Marshal(report)
	if err != nil {
		t.Fatalf("marshal report: %v", err)
	}
	for _, key := range []string{`"critical_issues":[]`, `"recommendations":[]`, `"pages_monitored":0`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("report JSON missing %s: %s", key, data)
		}
	}
}

func TestReport_Aggregates(t *testing.T) {
	h := newTestMonitor(Thresholds{})
	h.RecordPageHealth("flight_search_page", map[string]*ElementMonitoring{
		"origin_input": successfulMonitoring("origin_input"),
	})
	h.RecordPageHealth("results_page", map[string]*ElementMonitoring{
		"a": successfulMonitoring("a"),
		"b": failedMonitoring("b", FailureNotFound, 2),
		"c": failedMonitoring("c", FailureNotFound, 2),
		"d": failedMonitoring("d", FailureNotFound, 2),
		"e": failedMonitoring("e", FailureNotFound, 2),
	})

	report := h.Report()
	if report.PagesMonitored != 2 {
		t.Fatalf("PagesMonitored: got %d, want 2", report.PagesMonitored)
	}
	if math.Abs(report.OverallHealth.AverageSuccessRate-0.6) > 1e-9 {
		t.Errorf("AverageSuccessRate: got %v, want 0.6", report.OverallHealth.AverageSuccessRate)
	}
	if math.Abs(report.OverallHealth.WorstSuccessRate-0.2) > 1e-9 {
		t.Errorf("WorstSuccessRate: got %v, want 0.2", report.OverallHealth.WorstSuccessRate)
	}
	if report.OverallHealth.BestSuccessRate != 1.0 {
		t.Errorf("BestSuccessRate: got %v, want 1.0", report.OverallHealth.BestSuccessRate)
	}

	// 0.2 is below the 0.3 low-rate threshold.
	foundLow := false
	for _, issue := range report.CriticalIssues {
		if strings.Contains(issue, "Low success rate") && strings.Contains(issue, "results_page") {
			foundLow = true
		}
	}
	if !foundLow {
		t.Errorf("CriticalIssues: got %v, want a low-success-rate issue for results_page", report.CriticalIssues)
	}

	// Average 0.6 is below the 0.7 recommendation threshold.
	if len(report.Recommendations) == 0 {
		t.Fatal("Recommendations: got none, want guidance for a degraded average")
	}
	joined := strings.ToLower(strings.Join(report.Recommendations, "; "))
	if !strings.Contains(joined, "updating selector configurations") {
		t.Errorf("Recommendations: got %v, want one about updating selector configurations", report.Recommendations)
	}
}

func TestReport_HealthyAverageNoRecommendations(t *testing.T) {
	h := newTestMonitor(Thresholds{})
	h.RecordPageHealth("flight_search_page", map[string]*ElementMonitoring{
		"origin_input":  successfulMonitoring("origin_input"),
		"search_button": successfulMonitoring("search_button"),
	})

	report := h.Report()
	if len(report.Recommendations) != 0 {
		t.Errorf("Recommendations: got %v on a healthy fleet, want none", report.Recommendations)
	}
	if len(report.CriticalIssues) != 0 {
		t.Errorf("CriticalIssues: got %v on a healthy fleet, want none", report.CriticalIssues)
	}
}

func TestReport_StructureChangeListed(t *testing.T) {
	h := newTestMonitor(Thresholds{})
	h.RecordPageHealth("results_page", map[string]*ElementMonitoring{
		"flight_results": failedMonitoring("flight_results", FailureStructureChanged, 2),
	})

	report := h.Report()
	want := "Structure changes detected in results_page"
	found := false
	for _, issue := range report.CriticalIssues {
		if issue == want {
			found = true
		}
	}
	if !found {
		t.Errorf("CriticalIssues: got %v, want %q", report.CriticalIssues, want)
	}
}

func TestRecordPageHealth_LatestRecordWins(t *testing.T) {
	h := newTestMonitor(Thresholds{})
	h.RecordPageHealth("results_page", map[string]*ElementMonitoring{
		"flight_results": failedMonitoring("flight_results", FailureNotFound, 2),
	})
	h.RecordPageHealth("results_page", map[string]*ElementMonitoring{
		"flight_results": successfulMonitoring("flight_results"),
	})

	rec, _ := h.PageRecord("results_page")
	if rec.OverallSuccessRate != 1.0 {
		t.Errorf("OverallSuccessRate: got %v, want the latest recording", rec.OverallSuccessRate)
	}
	if report := h.Report(); report.PagesMonitored != 1 {
		t.Errorf("PagesMonitored: got %d, want 1", report.PagesMonitored)
	}
}

func TestAlerts_BoundedPerPage(t *testing.T) {
	h := newTestMonitor(Thresholds{MaxAlertsPerPage: 5})
	// Each recording of a fully failed single element generates two
	// alerts: one critical, one warning.
	for i := 0; i < 4; i++ {
		h.RecordPageHealth("results_page", map[string]*ElementMonitoring{
			"flight_results": failedMonitoring("flight_results", FailureNotFound, 2),
		})
	}

	alerts := h.Alerts("results_page")
	if len(alerts) != 5 {
		t.Fatalf("alerts: got %d, want history capped at 5", len(alerts))
	}
	// Eight were generated; the cap keeps the most recent five, so the
	// oldest surviving alert is the warning from the second recording.
	if alerts[0].Severity != SeverityWarning {
		t.Errorf("oldest surviving alert: got %q, want the trimmed ring to start with a warning", alerts[0].Severity)
	}
}

func TestClearAlerts(t *testing.T) {
	h := newTestMonitor(Thresholds{})
	failing := map[string]*ElementMonitoring{
		"flight_results": failedMonitoring("flight_results", FailureNotFound, 2),
	}
	h.RecordPageHealth("results_page", failing)
	h.RecordPageHealth("flight_search_page", failing)

	h.ClearAlerts("results_page")
	if got := h.Alerts("results_page"); len(got) != 0 {
		t.Errorf("Alerts after ClearAlerts: got %d, want 0", len(got))
	}
	if got := h.Alerts("flight_search_page"); len(got) == 0 {
		t.Error("ClearAlerts cleared an unrelated page")
	}

	h.ClearAllAlerts()
	if got := h.AllAlerts(); len(got) != 0 {
		t.Errorf("AllAlerts after ClearAllAlerts: got %d pages, want 0", len(got))
	}
}

func TestFailurePatterns_Accumulate(t *testing.T) {
	h := newTestMonitor(Thresholds{})
	h.RecordPageHealth("results_page", map[string]*ElementMonitoring{
		"flight_results": failedMonitoring("flight_results", FailureNotFound, 2),
	})
	h.RecordPageHealth("results_page", map[string]*ElementMonitoring{
		"flight_results": failedMonitoring("flight_results", FailureStructureChanged, 1),
	})

	patterns := h.FailurePatterns()
	msgs := patterns["flight_results"]
	if len(msgs) != 3 {
		t.Fatalf("failure patterns: got %d messages, want 3 accumulated across recordings", len(msgs))
	}
	if !strings.Contains(msgs[2], string(FailureStructureChanged)) {
		t.Errorf("latest pattern: got %q, want the most recent failure", msgs[2])
	}
}

func TestFailurePatterns_Bounded(t *testing.T) {
	h := newTestMonitor(Thresholds{})
	for i := 0; i < 10; i++ {
		h.RecordPageHealth("results_page", map[string]*ElementMonitoring{
			"flight_results": failedMonitoring("flight_results", FailureNotFound, 4),
		})
	}

	msgs := h.FailurePatterns()["flight_results"]
	if len(msgs) != maxPatternsPerElement {
		t.Errorf("failure patterns: got %d, want capped at %d", len(msgs), maxPatternsPerElement)
	}
}

func TestRecordPageFingerprint(t *testing.T) {
	h := newTestMonitor(Thresholds{})

	h.RecordPageFingerprint("results_page", 0b1111)
	h.RecordPageFingerprint("results_page", 0b0111)

	h.RecordPageHealth("results_page", map[string]*ElementMonitoring{
		"flight_results": successfulMonitoring("flight_results"),
	})

	rec, _ := h.PageRecord("results_page")
	if rec.DOMFingerprint != 0b0111 {
		t.Errorf("DOMFingerprint: got %b, want the latest fingerprint", rec.DOMFingerprint)
	}
	if rec.FingerprintDrift != 1 {
		t.Errorf("FingerprintDrift: got %d, want Hamming distance 1", rec.FingerprintDrift)
	}
}

type fakeNotifier struct {
	ch chan FailureAlert
}

func (n *fakeNotifier) NotifyAlert(a FailureAlert) {
	n.ch <- a
}

func TestRecordPageHealth_NotifierReceivesAlerts(t *testing.T) {
	h := newTestMonitor(Thresholds{})
	n := &fakeNotifier{ch: make(chan FailureAlert, 8)}
	h.SetNotifier(n)

	h.RecordPageHealth("results_page", map[string]*ElementMonitoring{
		"flight_results": failedMonitoring("flight_results", FailureNotFound, 2),
	})

	received := 0
	deadline := time.After(2 * time.Second)
	for received < 2 {
		select {
		case <-n.ch:
			received++
		case <-deadline:
			t.Fatalf("notifier: received %d alerts, want 2", received)
		}
	}
}

type panickyNotifier struct {
	entered chan struct{}
}

func (n *panickyNotifier) NotifyAlert(FailureAlert) {
	select {
	case n.entered <- struct{}{}:
	default:
	}
	panic("notifier exploded")
}

func TestRecordPageHealth_NotifierPanicContained(t *testing.T) {
	h := newTestMonitor(Thresholds{})
	n := &panickyNotifier{entered: make(chan struct{}, 1)}
	h.SetNotifier(n)

	h.RecordPageHealth("results_page", map[string]*ElementMonitoring{
		"flight_results": failedMonitoring("flight_results", FailureNotFound, 2),
	})

	select {
	case <-n.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("notifier was never invoked")
	}
	// Give the recover a moment; the test passing at all proves the
	// panic did not escape the delivery goroutine.
	time.Sleep(50 * time.Millisecond)

	if len(h.Alerts("results_page")) == 0 {
		t.Error("alerts were not stored despite notifier failure")
	}
}
