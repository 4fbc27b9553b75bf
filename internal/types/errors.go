package types

import "errors"

// Sentinel errors for ruledesk console operations.
var (
	// ErrNoRuleSelected indicates a form action before any rule was selected.
	ErrNoRuleSelected = errors.New("no rule selected")

	// ErrUnknownField indicates a value for a field the form does not render.
	ErrUnknownField = errors.New("field not part of the current form")

	// ErrBadRuleID indicates a rule id token that is not an integer.
	ErrBadRuleID = errors.New("rule id is not an integer")

	// ErrRuleNotCached indicates a rule id absent from the rules cache.
	ErrRuleNotCached = errors.New("rule not present in local cache")
)
