package selector

import "time"

// SelectorAttempt records one resolution try against one candidate.
// Attempts are immutable once appended to their ElementMonitoring.
type SelectorAttempt struct {
	Selector string   `json:"selector"`
	Strategy Strategy `json:"strategy"`
	Success  bool     `json:"success"`

	// Failure is set only when Success is false.
	Failure FailureCategory `json:"failure_type,omitempty"`

	// Error is the free-text detail from the driver.
	Error string `json:"error_message,omitempty"`

	// DOMContext is an optional truncated markup snippet captured near the
	// failed selector, for diagnostics.
	DOMContext string `json:"dom_context,omitempty"`

	ExecutionMs int64     `json:"execution_time_ms"`
	Timestamp   time.Time `json:"timestamp"`
}

// ElementMonitoring is the per-logical-element resolution summary: the
// ordered attempts, what finally worked, and how long the whole resolution
// took. The resolver owns it exclusively during resolution, then hands a
// snapshot to the HealthMonitor.
type ElementMonitoring struct {
	Element  string            `json:"element_type"`
	Attempts []SelectorAttempt `json:"attempts"`

	SuccessfulSelector string   `json:"successful_selector,omitempty"`
	SuccessfulStrategy Strategy `json:"successful_strategy,omitempty"`

	FinalSuccess  bool  `json:"final_success"`
	TotalAttempts int   `json:"total_attempts"`
	TotalMs       int64 `json:"total_execution_time_ms"`
}

// NewElementMonitoring starts an empty monitoring record for one element.
func NewElementMonitoring(element string) *ElementMonitoring {
	return &ElementMonitoring{Element: element}
}

// record appends one attempt and keeps the counters in sync.
func (m *ElementMonitoring) record(a SelectorAttempt) {
	m.Attempts = append(m.Attempts, a)
	m.TotalAttempts = len(m.Attempts)
}

// markSuccess stamps the winning candidate.
func (m *ElementMonitoring) markSuccess(selector string, strategy Strategy) {
	m.SuccessfulSelector = selector
	m.SuccessfulStrategy = strategy
	m.FinalSuccess = true
}

// FailureMessages collects the error text of every failed attempt, in order.
func (m *ElementMonitoring) FailureMessages() []string {
	var msgs []string
	for _, a := range m.Attempts {
		if !a.Success && a.Error != "" {
			msgs = append(msgs, a.Error)
		}
	}
	return msgs
}

// HasFailureCategory reports whether any attempt failed with the given
// category.
func (m *ElementMonitoring) HasFailureCategory(cat FailureCategory) bool {
	for _, a := range m.Attempts {
		if !a.Success && a.Failure == cat {
			return true
		}
	}
	return false
}

// FailureWindow returns the timestamps of the first and last failed
// attempts. The zero time is returned when no attempt failed.
func (m *ElementMonitoring) FailureWindow() (first, last time.Time) {
	for _, a := range m.Attempts {
		if a.Success {
			continue
		}
		if first.IsZero() {
			first = a.Timestamp
		}
		last = a.Timestamp
	}
	return first, last
}
