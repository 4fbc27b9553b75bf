// Package controller hosts one named handler per operator intent.
//
// Every mutating handler follows the same shape: validate input only where
// skipping validation would put a malformed value on the wire, issue the
// client call, then react. Success reacts with the service's message, a
// reset of the triggering form state, and a refresh of the affected
// collection; failure reacts with the message alone, structured service
// errors verbatim and transport errors as a generic fallback. Side effects
// never run before the call settles, and no handler retries.
package controller

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	gosync "sync"

	"github.com/ruledesk/ruledesk/internal/console/form"
	"github.com/ruledesk/ruledesk/internal/console/notify"
	"github.com/ruledesk/ruledesk/internal/console/sync"
	"github.com/ruledesk/ruledesk/internal/core/client"
	"github.com/ruledesk/ruledesk/internal/types"
)

// genericFailure is shown when a call fails without a structured service
// error; the underlying cause goes to the log, not the operator.
const genericFailure = "An unexpected error occurred"

// API is the full resource-client surface the controllers drive.
type API interface {
	sync.Client
	AddAttribute(ctx context.Context, name string) (string, error)
	DeleteAttribute(ctx context.Context, name string) (string, error)
	CreateRule(ctx context.Context, name, text string) (string, error)
	EditRule(ctx context.Context, id int64, text string) (string, error)
	DeleteRule(ctx context.Context, id int64) (string, error)
	CombineRules(ctx context.Context, ids []int64) (string, error)
	GetRuleMetadata(ctx context.Context, id int64) (types.RuleMetadata, error)
	EvaluateRule(ctx context.Context, id int64, values map[string]string) (types.EvaluationResult, error)
}

// EditPanel is the edit surface's state: hidden, or pre-filled with the
// target rule's current text.
type EditPanel struct {
	Open   bool
	RuleID int64
	Text   string
}

// Controllers wires operator intents to the client, the synchronizer, the
// form, and the notifier.
type Controllers struct {
	api    API
	syncer *sync.Synchronizer
	form   *form.Form
	notify *notify.Notifier

	mu   gosync.Mutex
	edit EditPanel
}

// New creates the controller set and subscribes the edit panel to rule
// refreshes so it can never show stale text for a rule that was deleted or
// changed by another operation.
func New(api API, syncer *sync.Synchronizer, f *form.Form, n *notify.Notifier) *Controllers {
	c := &Controllers{api: api, syncer: syncer, form: f, notify: n}
	syncer.OnRules(c.reconcileEditPanel)
	return c
}

// AddAttribute registers a new attribute name.
// Shape checks are left to the service so its wording surfaces verbatim.
func (c *Controllers) AddAttribute(ctx context.Context, name string) {
	msg, err := c.api.AddAttribute(ctx, name)
	if err != nil {
		c.fail("add_attribute", err)
		return
	}
	c.notify.Success(msg)
	c.refreshAttributes(ctx)
}

// DeleteAttribute removes an attribute name.
func (c *Controllers) DeleteAttribute(ctx context.Context, name string) {
	msg, err := c.api.DeleteAttribute(ctx, name)
	if err != nil {
		c.fail("delete_attribute", err)
		return
	}
	c.notify.Success(msg)
	c.refreshAttributes(ctx)
}

// CreateRule stores a new rule.
func (c *Controllers) CreateRule(ctx context.Context, name, text string) {
	msg, err := c.api.CreateRule(ctx, name, text)
	if err != nil {
		c.fail("create_rule", err)
		return
	}
	c.notify.Success(msg)
	c.refreshRules(ctx)
}

// OpenEdit opens the edit panel pre-filled with the rule's current cached
// text. The rule must be present in the rules cache.
func (c *Controllers) OpenEdit(id int64) error {
	rule, ok := c.syncer.RuleByID(id)
	if !ok {
		c.notify.Error(fmt.Sprintf("Rule %d not found", id))
		return types.ErrRuleNotCached
	}
	c.mu.Lock()
	c.edit = EditPanel{Open: true, RuleID: rule.ID, Text: rule.Text}
	c.mu.Unlock()
	return nil
}

// Edit returns the edit panel state.
func (c *Controllers) Edit() EditPanel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.edit
}

// EditRule replaces a rule's text. A successful submission closes the edit
// panel; a failed one leaves it untouched for correction.
func (c *Controllers) EditRule(ctx context.Context, id int64, text string) {
	msg, err := c.api.EditRule(ctx, id, text)
	if err != nil {
		c.fail("edit_rule", err)
		return
	}
	c.mu.Lock()
	if c.edit.Open && c.edit.RuleID == id {
		c.edit = EditPanel{}
	}
	c.mu.Unlock()
	c.notify.Success(msg)
	c.refreshRules(ctx)
}

// DeleteRule removes a rule. A structured not-found failure still refreshes
// the rules cache: the id vanished through a concurrent actor, and the
// refresh brings the local view back in line with the service.
func (c *Controllers) DeleteRule(ctx context.Context, id int64) {
	msg, err := c.api.DeleteRule(ctx, id)
	if err != nil {
		c.fail("delete_rule", err)
		if _, ok := client.AsServerError(err); ok {
			c.refreshRules(ctx)
		}
		return
	}
	c.notify.Success(msg)
	c.refreshRules(ctx)
}

// CombineRules parses a comma-separated id list and asks the service to
// merge those rules. A token that is not an integer aborts deterministically
// before any request is issued; there is no integer encoding of "not a
// number", so forwarding the malformed token is not an option.
func (c *Controllers) CombineRules(ctx context.Context, rawIDs string) {
	ids, err := ParseRuleIDs(rawIDs)
	if err != nil {
		c.notify.Error(err.Error())
		return
	}
	msg, err := c.api.CombineRules(ctx, ids)
	if err != nil {
		c.fail("combine_rules", err)
		return
	}
	c.notify.Success(msg)
	// The combined rule joins the rules collection server-side.
	c.refreshRules(ctx)
}

// SelectRule targets a rule for evaluation and loads its form surface.
func (c *Controllers) SelectRule(ctx context.Context, id int64) {
	if err := c.form.Select(ctx, id); err != nil {
		c.fail("get_rule_metadata", err)
	}
}

// SetField records one operator-entered form value.
func (c *Controllers) SetField(field, value string) {
	if err := c.form.SetValue(field, value); err != nil {
		c.notify.Error(err.Error())
	}
}

// Evaluate submits the current form surface to the remote evaluator.
// The verdict itself arrives through the notifier: success styling for
// true, error styling for false, matching how operators read the surface.
func (c *Controllers) Evaluate(ctx context.Context) {
	req, err := c.form.Request()
	if err != nil {
		c.notify.Error(err.Error())
		return
	}
	res, err := c.api.EvaluateRule(ctx, req.RuleID, req.Data)
	if err != nil {
		c.fail("evaluate_rule", err)
		return
	}
	text := fmt.Sprintf("Evaluation result: %t", res.Result)
	if res.Result {
		c.notify.Success(text)
	} else {
		c.notify.Error(text)
	}
}

// ParseRuleIDs parses a comma-separated rule id list for combine.
// Whitespace around tokens is ignored; empty input and non-integer tokens
// are rejected client-side, never silently dropped or forwarded.
func ParseRuleIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, token := range strings.Split(raw, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		id, err := strconv.ParseInt(token, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", types.ErrBadRuleID, token)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no rule ids given", types.ErrBadRuleID)
	}
	return ids, nil
}

// fail surfaces a settled call's failure: the service's wording when the
// failure is structured, a generic fallback otherwise. Nothing else changes.
func (c *Controllers) fail(op string, err error) {
	if se, ok := client.AsServerError(err); ok {
		c.notify.Error(se.Message)
		return
	}
	log.Printf("%s: %v", op, err)
	c.notify.Error(genericFailure)
}

// refreshAttributes runs the post-mutation attributes refresh. A refresh
// failure is logged, not notified: the mutation's own message already won
// the slot, and the next successful refresh heals the view.
func (c *Controllers) refreshAttributes(ctx context.Context) {
	if err := c.syncer.RefreshAttributes(ctx); err != nil {
		log.Printf("refresh attributes: %v", err)
	}
}

func (c *Controllers) refreshRules(ctx context.Context) {
	if err := c.syncer.RefreshRules(ctx); err != nil {
		log.Printf("refresh rules: %v", err)
	}
}

// reconcileEditPanel keeps the edit panel consistent with the rules cache:
// closed when its rule is gone, re-filled when another operation changed
// the rule's text underneath it.
func (c *Controllers) reconcileEditPanel(rules []types.Rule) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.edit.Open {
		return
	}
	for _, r := range rules {
		if r.ID == c.edit.RuleID {
			c.edit.Text = r.Text
			return
		}
	}
	c.edit = EditPanel{}
}
