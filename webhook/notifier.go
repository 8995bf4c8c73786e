package webhook

import (
	"time"

	"github.com/farelens/farelens/config"
	"github.com/farelens/farelens/selector"
)

// severityRank orders alert severities for threshold filtering.
var severityRank = map[selector.Severity]int{
	selector.SeverityWarning:  1,
	selector.SeverityCritical: 2,
}

// Notifier forwards selector health alerts to the operator webhook as
// "selector.alert" events. It plugs into the health monitor's notifier
// hook and inherits its best-effort contract.
type Notifier struct {
	cfg     config.WebhookConfig
	deliver func(url, secret string, event *Event)
}

// NewNotifier builds a notifier from the webhook configuration. An
// unrecognized minimum severity falls back to critical-only.
func NewNotifier(cfg config.WebhookConfig) *Notifier {
	if severityRank[selector.Severity(cfg.MinSeverity)] == 0 {
		cfg.MinSeverity = string(selector.SeverityCritical)
	}
	return &Notifier{cfg: cfg, deliver: DeliverAsync}
}

// NotifyAlert forwards alerts at or above the configured severity.
func (n *Notifier) NotifyAlert(alert selector.FailureAlert) {
	if n.cfg.URL == "" {
		return
	}
	if severityRank[alert.Severity] < severityRank[selector.Severity(n.cfg.MinSeverity)] {
		return
	}
	n.deliver(n.cfg.URL, n.cfg.Secret, &Event{
		Type:      "selector.alert",
		PageType:  alert.PageType,
		Timestamp: time.Now().Unix(),
		Data:      alert,
	})
}
