// Package types provides domain models shared across ruledesk components.
//
// The console, the resource client, and the companion service all exchange
// these shapes. They mirror the management service wire format exactly, so
// encoding/json is the only dependency; ID utilities in ids.go import uuid
// but are isolated for selective inclusion.
package types

// Rule is one entry of the remote rules collection.
// ID is server-assigned and immutable once created; only Text is mutable,
// via the edit operation. The console never reorders or filters the
// collection, it renders rules in server order.
type Rule struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Text string `json:"text"`
}

// RuleMetadata describes the free variable names a rule references, in the
// order reported by the service. Fetched on demand per rule and never cached
// across rules; it only lives as long as one evaluation-form session.
type RuleMetadata struct {
	Fields []string `json:"fields"`
}

// EvaluationRequest carries operator-entered values to the remote evaluator.
// Data holds exactly one value per rendered form field; values are strings
// because the form surface is text-only (the service coerces).
type EvaluationRequest struct {
	RuleID int64             `json:"rule_id"`
	Data   map[string]string `json:"data"`
}

// EvaluationResult is the evaluator's verdict for one request.
type EvaluationResult struct {
	Result bool `json:"result"`
}
