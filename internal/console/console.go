// Package console is the line-driven operator surface over the controllers.
//
// Every rendered view is a pure projection of the synchronizer's caches and
// the form's state, regenerated through change callbacks; the console never
// patches output from mutation parameters. Commands that touch the network
// dispatch on their own goroutine so the prompt stays responsive while a
// request is outstanding; ordering between overlapping operations is owned
// by the synchronizer's sequence numbers and the form's selection guard.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	gosync "sync"

	"github.com/ruledesk/ruledesk/internal/console/controller"
	"github.com/ruledesk/ruledesk/internal/console/form"
	"github.com/ruledesk/ruledesk/internal/console/notify"
	"github.com/ruledesk/ruledesk/internal/console/sync"
	"github.com/ruledesk/ruledesk/internal/core/config"
	"github.com/ruledesk/ruledesk/internal/types"
)

const helpText = `Commands:
  attrs                          show attributes
  attr add <name>                add an attribute
  attr rm <name>                 delete an attribute
  rules                          show rules
  rule add <name> :: <text>      create a rule
  rule edit <id>                 open edit panel with current text
  rule edit <id> :: <text>       replace a rule's text
  rule rm <id>                   delete a rule
  combine <id>,<id>,...          combine rules into a new one
  select <id>                    select a rule for evaluation
  set <field>=<value>            enter a value on the evaluation form
  eval                           evaluate the selected rule
  refresh                        re-fetch attributes and rules
  help, quit`

// Console wires the engine components to a text terminal.
type Console struct {
	cfg      config.ConsoleConfig
	ctrl     *controller.Controllers
	syncer   *sync.Synchronizer
	form     *form.Form
	notifier *notify.Notifier
	out      io.Writer

	outMu gosync.Mutex
	wg    gosync.WaitGroup
}

// New assembles the console engine around a resource client.
func New(cfg config.ConsoleConfig, api controller.API, out io.Writer) *Console {
	c := &Console{cfg: cfg, out: out}
	c.notifier = notify.New(cfg.NotifyTTL, c.renderMessage)
	c.syncer = sync.New(api)
	c.form = form.New(api)
	c.ctrl = controller.New(api, c.syncer, c.form, c.notifier)

	c.syncer.OnAttributes(c.renderAttributes)
	c.syncer.OnRules(c.renderRules)
	c.form.OnFields(c.renderForm)
	return c
}

// Controllers exposes the intent handlers, mainly for tests.
func (c *Console) Controllers() *controller.Controllers { return c.ctrl }

// Run reads commands from in until quit or EOF. The initial view is built
// from a fresh fetch of both collections, like any later refresh.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	c.dispatch(ctx, func(ctx context.Context) {
		if err := c.syncer.RefreshAttributes(ctx); err != nil {
			c.printf("error: cannot reach service: %v\n", err)
		}
		if err := c.syncer.RefreshRules(ctx); err != nil {
			c.printf("error: cannot reach service: %v\n", err)
		}
	})

	scanner := bufio.NewScanner(in)
	c.printf("ruledesk console — %s (type 'help')\n", c.cfg.ServerURL)
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		quit := c.Execute(ctx, scanner.Text())
		if quit {
			break
		}
	}
	c.wg.Wait()
	return scanner.Err()
}

// Execute handles one input line. Returns true on quit.
func (c *Console) Execute(ctx context.Context, line string) bool {
	cmd, err := ParseLine(line)
	if err != nil {
		c.printf("error: %v\n", err)
		return false
	}

	switch cmd.Kind {
	case CmdNone:
	case CmdHelp:
		c.printf("%s\n", helpText)
	case CmdQuit:
		return true
	case CmdRefresh:
		c.dispatch(ctx, func(ctx context.Context) {
			if err := c.syncer.RefreshAttributes(ctx); err != nil {
				c.printf("error: refresh attributes: %v\n", err)
			}
			if err := c.syncer.RefreshRules(ctx); err != nil {
				c.printf("error: refresh rules: %v\n", err)
			}
		})
	case CmdShowAttributes:
		c.renderAttributes(c.syncer.Attributes())
	case CmdAddAttribute:
		c.dispatch(ctx, func(ctx context.Context) { c.ctrl.AddAttribute(ctx, cmd.Name) })
	case CmdDeleteAttribute:
		c.dispatch(ctx, func(ctx context.Context) { c.ctrl.DeleteAttribute(ctx, cmd.Name) })
	case CmdShowRules:
		c.renderRules(c.syncer.Rules())
	case CmdCreateRule:
		c.dispatch(ctx, func(ctx context.Context) { c.ctrl.CreateRule(ctx, cmd.Name, cmd.Text) })
	case CmdOpenEdit:
		if c.ctrl.OpenEdit(cmd.ID) == nil {
			panel := c.ctrl.Edit()
			c.printf("Editing rule %d. Current text:\n  %s\nSubmit with: rule edit %d :: <new text>\n",
				panel.RuleID, panel.Text, panel.RuleID)
		}
	case CmdEditRule:
		c.dispatch(ctx, func(ctx context.Context) { c.ctrl.EditRule(ctx, cmd.ID, cmd.Text) })
	case CmdDeleteRule:
		c.dispatch(ctx, func(ctx context.Context) { c.ctrl.DeleteRule(ctx, cmd.ID) })
	case CmdCombine:
		c.dispatch(ctx, func(ctx context.Context) { c.ctrl.CombineRules(ctx, cmd.Text) })
	case CmdSelect:
		c.dispatch(ctx, func(ctx context.Context) { c.ctrl.SelectRule(ctx, cmd.ID) })
	case CmdSetField:
		c.ctrl.SetField(cmd.Field, cmd.Value)
	case CmdEvaluate:
		c.dispatch(ctx, func(ctx context.Context) { c.ctrl.Evaluate(ctx) })
	}
	return false
}

// dispatch runs a network-touching intent without blocking the prompt.
func (c *Console) dispatch(ctx context.Context, fn func(context.Context)) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn(ctx)
	}()
}

func (c *Console) renderAttributes(attrs []string) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintln(c.out, "Attributes:")
	if len(attrs) == 0 {
		fmt.Fprintln(c.out, "  (none)")
		return
	}
	for _, a := range attrs {
		fmt.Fprintf(c.out, "  %s\n", a)
	}
}

// renderRules rebuilds both rule views: the selection list the operator
// picks from and the management list with full text.
func (c *Console) renderRules(rules []types.Rule) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintln(c.out, "Select a rule:")
	for _, r := range rules {
		fmt.Fprintf(c.out, "  ID: %d, Name: %s\n", r.ID, r.Name)
	}
	fmt.Fprintln(c.out, "Existing rules:")
	if len(rules) == 0 {
		fmt.Fprintln(c.out, "  (none)")
		return
	}
	for _, r := range rules {
		fmt.Fprintf(c.out, "  ID: %d, Name: %s, Rule: %s\n", r.ID, r.Name, r.Text)
	}
}

func (c *Console) renderForm(ruleID int64, fields []string) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintf(c.out, "Evaluating rule %d. Enter values, then 'eval':\n", ruleID)
	for _, f := range fields {
		fmt.Fprintf(c.out, "  set %s=<value>\n", f)
	}
}

// renderMessage prints notifier changes. Expiry clears the slot to the zero
// message; a terminal cannot unprint, so clears render nothing.
func (c *Console) renderMessage(m notify.Message) {
	if m.Kind == notify.KindNone {
		return
	}
	prefix := "ok"
	if m.Kind == notify.KindError {
		prefix = "error"
	}
	c.printf("[%s] %s\n", prefix, m.Text)
}

func (c *Console) printf(format string, args ...any) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}
