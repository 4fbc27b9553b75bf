package ruleserver

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/ruledesk/ruledesk/internal/core/client"
	"github.com/ruledesk/ruledesk/internal/core/config"
	"github.com/ruledesk/ruledesk/internal/core/db"
	"github.com/ruledesk/ruledesk/internal/ruleserver/store"
)

// newTestService boots the full service over a temp SQLite database and
// returns a typed client pointed at it, so the tests exercise the contract
// exactly as the console does.
func newTestService(t *testing.T, attributeCheck bool) *client.Client {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "ruledesk-test.db")
	conn, err := db.Open("sqlite://" + dbPath)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := db.MigrateUp(conn); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	st, err := store.New(conn)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	cfg := &config.ServeConfig{AttributeCheck: attributeCheck}
	srv := httptest.NewServer(New(st, cfg).Handler())
	t.Cleanup(srv.Close)

	return client.New(srv.URL, 5*time.Second)
}

func TestAttributeLifecycle(t *testing.T) {
	c := newTestService(t, true)
	ctx := context.Background()

	msg, err := c.AddAttribute(ctx, "age")
	if err != nil {
		t.Fatalf("AddAttribute() error = %v", err)
	}
	if msg != "Attribute added successfully" {
		t.Errorf("message = %q", msg)
	}

	_, err = c.AddAttribute(ctx, "age")
	se, ok := client.AsServerError(err)
	if !ok || se.Message != "Attribute already exists" {
		t.Errorf("duplicate add error = %v, want structured 'Attribute already exists'", err)
	}

	_, err = c.AddAttribute(ctx, "")
	if se, ok := client.AsServerError(err); !ok || se.Message != "Attribute name is required" {
		t.Errorf("empty add error = %v", err)
	}

	if _, err := c.AddAttribute(ctx, "country"); err != nil {
		t.Fatal(err)
	}
	attrs, err := c.ListAttributes(ctx)
	if err != nil {
		t.Fatalf("ListAttributes() error = %v", err)
	}
	if !reflect.DeepEqual(attrs, []string{"age", "country"}) {
		t.Errorf("ListAttributes() = %v", attrs)
	}

	if _, err := c.DeleteAttribute(ctx, "country"); err != nil {
		t.Fatalf("DeleteAttribute() error = %v", err)
	}
	_, err = c.DeleteAttribute(ctx, "country")
	if se, ok := client.AsServerError(err); !ok || se.Message != "Attribute not found" {
		t.Errorf("double delete error = %v, want structured 'Attribute not found'", err)
	}
}

func TestRuleLifecycle(t *testing.T) {
	c := newTestService(t, true)
	ctx := context.Background()

	for _, attr := range []string{"age", "country"} {
		if _, err := c.AddAttribute(ctx, attr); err != nil {
			t.Fatal(err)
		}
	}

	msg, err := c.CreateRule(ctx, "R1", "age > 18")
	if err != nil {
		t.Fatalf("CreateRule() error = %v", err)
	}
	if msg != "Rule created successfully" {
		t.Errorf("message = %q", msg)
	}

	rules, err := c.ListRules(ctx)
	if err != nil {
		t.Fatalf("ListRules() error = %v", err)
	}
	if len(rules) != 1 || rules[0].Name != "R1" || rules[0].Text != "age > 18" {
		t.Fatalf("ListRules() = %+v", rules)
	}
	id := rules[0].ID

	if _, err := c.EditRule(ctx, id, "age >= 21 AND country = 'US'"); err != nil {
		t.Fatalf("EditRule() error = %v", err)
	}
	rules, err = c.ListRules(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if rules[0].Text != "age >= 21 AND country = 'US'" {
		t.Errorf("text after edit = %q", rules[0].Text)
	}

	if _, err := c.DeleteRule(ctx, id); err != nil {
		t.Fatalf("DeleteRule() error = %v", err)
	}
	// Deleting the same id again is the concurrent-actor race the console
	// self-heals from: a structured not-found, never a transport error.
	_, err = c.DeleteRule(ctx, id)
	if se, ok := client.AsServerError(err); !ok || se.Message != "Rule not found" {
		t.Errorf("second delete error = %v, want structured 'Rule not found'", err)
	}
}

func TestCreateRule_Validation(t *testing.T) {
	c := newTestService(t, true)
	ctx := context.Background()

	if _, err := c.AddAttribute(ctx, "age"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		ruleName string
		ruleText string
		wantMsg  string
	}{
		{"missing text", "R1", "", "Rule name and text are required"},
		{"missing name", "", "age > 18", "Rule name and text are required"},
		{"unregistered attribute", "R1", "height > 180", "unknown attribute: height"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.CreateRule(ctx, tt.ruleName, tt.ruleText)
			se, ok := client.AsServerError(err)
			if !ok {
				t.Fatalf("error = %v, want structured", err)
			}
			if se.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", se.Message, tt.wantMsg)
			}
		})
	}

	// Malformed rule text fails compilation regardless of attributes.
	if _, err := c.CreateRule(ctx, "R1", "age >"); err == nil {
		t.Error("CreateRule with malformed text succeeded")
	}
}

func TestCreateRule_NoAttributeCheck(t *testing.T) {
	c := newTestService(t, false)
	ctx := context.Background()

	// With the check off, unregistered fields are allowed.
	if _, err := c.CreateRule(ctx, "R1", "height > 180"); err != nil {
		t.Fatalf("CreateRule() error = %v", err)
	}
}

func TestMetadataAndEvaluation(t *testing.T) {
	c := newTestService(t, true)
	ctx := context.Background()

	for _, attr := range []string{"age", "country"} {
		if _, err := c.AddAttribute(ctx, attr); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := c.CreateRule(ctx, "us adult", "age > 18 AND country = 'US'"); err != nil {
		t.Fatal(err)
	}
	rules, err := c.ListRules(ctx)
	if err != nil {
		t.Fatal(err)
	}
	id := rules[0].ID

	md, err := c.GetRuleMetadata(ctx, id)
	if err != nil {
		t.Fatalf("GetRuleMetadata() error = %v", err)
	}
	if !reflect.DeepEqual(md.Fields, []string{"age", "country"}) {
		t.Errorf("Fields = %v", md.Fields)
	}

	res, err := c.EvaluateRule(ctx, id, map[string]string{"age": "30", "country": "US"})
	if err != nil {
		t.Fatalf("EvaluateRule() error = %v", err)
	}
	if !res.Result {
		t.Error("Result = false, want true")
	}

	res, err = c.EvaluateRule(ctx, id, map[string]string{"age": "10", "country": "US"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Result {
		t.Error("Result = true, want false")
	}

	if _, err := c.GetRuleMetadata(ctx, 999); err == nil {
		t.Error("GetRuleMetadata(999) error = nil, want not found")
	}
}

func TestCombineAndEvaluateCombination(t *testing.T) {
	c := newTestService(t, true)
	ctx := context.Background()

	for _, attr := range []string{"age", "country"} {
		if _, err := c.AddAttribute(ctx, attr); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := c.CreateRule(ctx, "adult", "age > 18"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.CreateRule(ctx, "us-based", "country = 'US'"); err != nil {
		t.Fatal(err)
	}
	rules, err := c.ListRules(ctx)
	if err != nil {
		t.Fatal(err)
	}

	msg, err := c.CombineRules(ctx, []int64{rules[0].ID, rules[1].ID})
	if err != nil {
		t.Fatalf("CombineRules() error = %v", err)
	}
	if msg != "Rules combined successfully" {
		t.Errorf("message = %q", msg)
	}

	rules, err = c.ListRules(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 3 {
		t.Fatalf("ListRules() = %d rules, want member rules plus combination", len(rules))
	}
	comboID := rules[2].ID

	// The combination's form is the ordered union of its members' fields.
	md, err := c.GetRuleMetadata(ctx, comboID)
	if err != nil {
		t.Fatalf("GetRuleMetadata(combination) error = %v", err)
	}
	if !reflect.DeepEqual(md.Fields, []string{"age", "country"}) {
		t.Errorf("combination Fields = %v", md.Fields)
	}

	// Conjunction of members.
	res, err := c.EvaluateRule(ctx, comboID, map[string]string{"age": "30", "country": "US"})
	if err != nil {
		t.Fatalf("EvaluateRule(combination) error = %v", err)
	}
	if !res.Result {
		t.Error("Result = false, want true")
	}
	res, err = c.EvaluateRule(ctx, comboID, map[string]string{"age": "30", "country": "DE"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Result {
		t.Error("Result = true, want false when one member fails")
	}
}

func TestCombineRules_UnknownMember(t *testing.T) {
	c := newTestService(t, true)
	ctx := context.Background()

	if _, err := c.AddAttribute(ctx, "age"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.CreateRule(ctx, "adult", "age > 18"); err != nil {
		t.Fatal(err)
	}
	rules, err := c.ListRules(ctx)
	if err != nil {
		t.Fatal(err)
	}

	_, err = c.CombineRules(ctx, []int64{rules[0].ID, 999})
	se, ok := client.AsServerError(err)
	if !ok || se.Message != "Rule 999 not found" {
		t.Errorf("error = %v, want structured 'Rule 999 not found'", err)
	}

	// A failed combine adds nothing.
	rules, err = c.ListRules(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 1 {
		t.Errorf("ListRules() = %d rules after failed combine, want 1", len(rules))
	}
}

func TestEvaluateRule_Validation(t *testing.T) {
	c := newTestService(t, true)
	ctx := context.Background()

	if _, err := c.EvaluateRule(ctx, 999, map[string]string{"age": "30"}); err == nil {
		t.Error("EvaluateRule(999) error = nil, want not found")
	}

	if _, err := c.EvaluateRule(ctx, 0, nil); err == nil {
		t.Error("EvaluateRule(0, nil) error = nil, want validation failure")
	}
}
