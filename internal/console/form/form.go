// Package form implements the dynamic evaluation form.
//
// The form is a three-state machine. Idle: no rule selected, no surface
// rendered. FieldsLoaded: metadata fetched, one text input per field in
// metadata order. Submitted: values collected and forwarded at least once.
// Selecting a different rule discards the surface entirely and starts over;
// entered values never carry across rules, even when field names coincide.
//
// A metadata fetch that resolves after the operator has already switched to
// a different rule is discarded: the fetch's target rule id is compared to
// the current selection at resolution time.
package form

import (
	"context"
	"sync"

	"github.com/ruledesk/ruledesk/internal/types"
)

// MetadataFetcher is the slice of the resource client the form needs.
type MetadataFetcher interface {
	GetRuleMetadata(ctx context.Context, id int64) (types.RuleMetadata, error)
}

// State is the form's position in its lifecycle.
type State int

const (
	Idle State = iota
	FieldsLoaded
	Submitted
)

// Form generates an input surface from rule metadata and collects operator
// values for evaluation.
type Form struct {
	fetcher MetadataFetcher

	mu       sync.Mutex
	state    State
	selected int64 // selection target; guards stale metadata responses
	ruleID   int64 // rule whose surface is rendered (valid unless Idle)
	fields   []string
	values   map[string]string
	onFields func(ruleID int64, fields []string)
	onHide   func()
}

// New creates an idle form.
func New(fetcher MetadataFetcher) *Form {
	return &Form{fetcher: fetcher}
}

// OnFields registers the callback rendering the input surface after a
// selection's metadata loads.
func (f *Form) OnFields(fn func(ruleID int64, fields []string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onFields = fn
}

// OnHide registers the callback hiding the surface when the form returns to
// Idle (new selection in flight, reset, or metadata failure).
func (f *Form) OnHide(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onHide = fn
}

// Select targets a rule and fetches its metadata. The previous surface is
// discarded immediately; on success the new surface renders, on failure the
// form stays Idle and the surface stays hidden. If the selection changed
// while the fetch was in flight, its outcome is discarded either way.
func (f *Form) Select(ctx context.Context, ruleID int64) error {
	f.mu.Lock()
	f.selected = ruleID
	f.state = Idle
	f.fields = nil
	f.values = nil
	onHide := f.onHide
	f.mu.Unlock()

	if onHide != nil {
		onHide()
	}

	md, err := f.fetcher.GetRuleMetadata(ctx, ruleID)

	f.mu.Lock()
	if f.selected != ruleID {
		// Superseded by a newer selection; that selection's fetch owns
		// the surface now.
		f.mu.Unlock()
		return nil
	}
	if err != nil {
		f.mu.Unlock()
		return err
	}
	f.state = FieldsLoaded
	f.ruleID = ruleID
	f.fields = append([]string(nil), md.Fields...)
	f.values = make(map[string]string, len(md.Fields))
	onFields := f.onFields
	fields := append([]string(nil), f.fields...)
	f.mu.Unlock()

	if onFields != nil {
		onFields(ruleID, fields)
	}
	return nil
}

// SetValue records an operator-entered value for a rendered field.
func (f *Form) SetValue(field, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == Idle {
		return types.ErrNoRuleSelected
	}
	for _, known := range f.fields {
		if known == field {
			f.values[field] = value
			return nil
		}
	}
	return types.ErrUnknownField
}

// Request collects the current surface into an evaluation request and moves
// the form to Submitted. Exactly one value per rendered field; fields the
// operator left untouched default to the empty string, and no stray values
// for fields outside the surface can appear.
func (f *Form) Request() (types.EvaluationRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == Idle {
		return types.EvaluationRequest{}, types.ErrNoRuleSelected
	}
	data := make(map[string]string, len(f.fields))
	for _, field := range f.fields {
		data[field] = f.values[field]
	}
	f.state = Submitted
	return types.EvaluationRequest{RuleID: f.ruleID, Data: data}, nil
}

// Reset discards the surface and returns to Idle.
func (f *Form) Reset() {
	f.mu.Lock()
	f.state = Idle
	f.selected = 0
	f.ruleID = 0
	f.fields = nil
	f.values = nil
	onHide := f.onHide
	f.mu.Unlock()

	if onHide != nil {
		onHide()
	}
}

// State reports the machine's current state.
func (f *Form) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Fields returns the rendered field names in metadata order.
func (f *Form) Fields() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fields...)
}

// RuleID returns the rule whose surface is rendered, if any.
func (f *Form) RuleID() (int64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == Idle {
		return 0, false
	}
	return f.ruleID, true
}
