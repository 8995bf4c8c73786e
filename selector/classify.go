package selector

import (
	"context"
	"errors"
	"strings"
)

// FailureCategory classifies why a selector candidate failed. It is a
// best-effort heuristic over free-text driver errors; misclassification is
// accepted behavior, with structure_changed as the catch-all bucket.
type FailureCategory string

const (
	// FailureNotFound covers timeouts and absent elements.
	FailureNotFound FailureCategory = "not_found"

	// FailureUninteractable covers elements present but not visible or
	// not enabled.
	FailureUninteractable FailureCategory = "uninteractable"

	// FailureStaleElement covers handles detached from the DOM after
	// being found.
	FailureStaleElement FailureCategory = "stale_element"

	// FailurePermissionDenied covers blocked access.
	FailurePermissionDenied FailureCategory = "permission_denied"

	// FailureStructureChanged is the default: anything else, taken as a
	// signal the page markup likely changed.
	FailureStructureChanged FailureCategory = "structure_changed"
)

// classifyRule maps error-text substrings to a category. Rules are checked
// in order; the first rule with any matching needle wins.
type classifyRule struct {
	needles  []string
	category FailureCategory
}

var classifyRules = []classifyRule{
	{[]string{"timeout", "not found"}, FailureNotFound},
	{[]string{"not interactable", "not visible", "not enabled"}, FailureUninteractable},
	{[]string{"stale", "detached"}, FailureStaleElement},
	{[]string{"permission", "denied"}, FailurePermissionDenied},
}

// Classify maps a driver error to a FailureCategory by substring matching
// on the lowercased error text.
func Classify(err error) FailureCategory {
	if err == nil {
		return FailureStructureChanged
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureNotFound
	}

	msg := strings.ToLower(err.Error())
	for _, rule := range classifyRules {
		for _, needle := range rule.needles {
			if strings.Contains(msg, needle) {
				return rule.category
			}
		}
	}
	return FailureStructureChanged
}
