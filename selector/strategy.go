// Package selector implements multi-strategy resolution of logical UI
// elements against a live page, with per-attempt monitoring, a failure
// taxonomy, and page-level health aggregation.
//
// A logical element (e.g. "search_button") maps, via a swappable Catalog,
// to ordered groups of concrete selector candidates. The Resolver walks
// strategy groups from most to least resilient and returns the first
// candidate that yields a visible, enabled element. Every attempt is
// recorded so the HealthMonitor can tell an operator when the target
// site's markup has drifted enough that selectors need updating.
package selector

// Strategy classifies how a selector candidate locates an element.
// Groups are tried in the order returned by StrategyOrder: attribute-based
// selectors survive visual redesigns best, text matching is the most
// expensive and least precise.
type Strategy string

const (
	// StrategySemantic matches on ARIA attributes, roles, placeholders,
	// and data-* test hooks.
	StrategySemantic Strategy = "semantic"

	// StrategyStructural matches on tag hierarchy and position.
	StrategyStructural Strategy = "structural"

	// StrategyClassBased matches on CSS class names, the most brittle.
	StrategyClassBased Strategy = "class_based"

	// StrategyContentBased matches on visible text or patterns.
	StrategyContentBased Strategy = "content_based"
)

// StrategyOrder is the fixed priority in which groups are tried.
func StrategyOrder() []Strategy {
	return []Strategy{
		StrategySemantic,
		StrategyStructural,
		StrategyClassBased,
		StrategyContentBased,
	}
}
