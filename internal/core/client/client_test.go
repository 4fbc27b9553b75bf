package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"
)

func newTestClient(handler http.Handler) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	return New(srv.URL, 5*time.Second), srv
}

func TestListRules(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/get_rules" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		io.WriteString(w, `{"rules": [{"id": 1, "name": "R1", "text": "age > 18"}]}`)
	}))
	defer srv.Close()

	rules, err := c.ListRules(context.Background())
	if err != nil {
		t.Fatalf("ListRules() error = %v", err)
	}
	if len(rules) != 1 || rules[0].ID != 1 || rules[0].Name != "R1" || rules[0].Text != "age > 18" {
		t.Errorf("ListRules() = %+v", rules)
	}
}

func TestAddAttribute_RequestShape(t *testing.T) {
	var body map[string]string
	var contentType, requestID string
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		requestID = r.Header.Get("X-Request-Id")
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"message": "Attribute added successfully"}`)
	}))
	defer srv.Close()

	msg, err := c.AddAttribute(context.Background(), "age")
	if err != nil {
		t.Fatalf("AddAttribute() error = %v", err)
	}
	if msg != "Attribute added successfully" {
		t.Errorf("message = %q", msg)
	}
	if !reflect.DeepEqual(body, map[string]string{"attribute_name": "age"}) {
		t.Errorf("request body = %v", body)
	}
	if contentType != "application/json" {
		t.Errorf("Content-Type = %q", contentType)
	}
	if requestID == "" {
		t.Error("X-Request-Id header missing")
	}
}

func TestEditRule_IDInPath(t *testing.T) {
	var gotPath string
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		io.WriteString(w, `{"message": "Rule updated successfully"}`)
	}))
	defer srv.Close()

	if _, err := c.EditRule(context.Background(), 42, "age >= 21"); err != nil {
		t.Fatalf("EditRule() error = %v", err)
	}
	if gotPath != "/api/edit_rule/42" {
		t.Errorf("path = %q, want /api/edit_rule/42", gotPath)
	}
}

func TestDeleteRule_MethodAndPath(t *testing.T) {
	var gotMethod, gotPath string
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		io.WriteString(w, `{"message": "Rule deleted successfully"}`)
	}))
	defer srv.Close()

	if _, err := c.DeleteRule(context.Background(), 7); err != nil {
		t.Fatalf("DeleteRule() error = %v", err)
	}
	if gotMethod != http.MethodDelete || gotPath != "/api/delete_rule/7" {
		t.Errorf("request = %s %s, want DELETE /api/delete_rule/7", gotMethod, gotPath)
	}
}

// Every evaluation request carries the rule id and exactly the submitted
// values, keyed by field name.
func TestEvaluateRule_RequestShape(t *testing.T) {
	var body struct {
		RuleID int64             `json:"rule_id"`
		Data   map[string]string `json:"data"`
	}
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		io.WriteString(w, `{"result": true}`)
	}))
	defer srv.Close()

	res, err := c.EvaluateRule(context.Background(), 3, map[string]string{"age": "30", "country": "US"})
	if err != nil {
		t.Fatalf("EvaluateRule() error = %v", err)
	}
	if !res.Result {
		t.Error("Result = false, want true")
	}
	if body.RuleID != 3 {
		t.Errorf("rule_id = %d, want 3", body.RuleID)
	}
	if !reflect.DeepEqual(body.Data, map[string]string{"age": "30", "country": "US"}) {
		t.Errorf("data = %v", body.Data)
	}
}

func TestCombineRules_RequestShape(t *testing.T) {
	var body struct {
		RuleIDs []int64 `json:"rule_ids"`
	}
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"message": "Rules combined successfully"}`)
	}))
	defer srv.Close()

	if _, err := c.CombineRules(context.Background(), []int64{1, 2, 3}); err != nil {
		t.Fatalf("CombineRules() error = %v", err)
	}
	if !reflect.DeepEqual(body.RuleIDs, []int64{1, 2, 3}) {
		t.Errorf("rule_ids = %v", body.RuleIDs)
	}
}

// A structured {error} payload becomes a *ServerError carrying the service's
// wording verbatim, whatever the HTTP status.
func TestDo_StructuredError(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error": "Rule not found"}`)
	}))
	defer srv.Close()

	_, err := c.DeleteRule(context.Background(), 99)
	if err == nil {
		t.Fatal("DeleteRule() error = nil, want *ServerError")
	}
	se, ok := AsServerError(err)
	if !ok {
		t.Fatalf("error = %v, not a *ServerError", err)
	}
	if se.Message != "Rule not found" {
		t.Errorf("Message = %q, want service wording verbatim", se.Message)
	}
	if se.Op != "delete_rule" {
		t.Errorf("Op = %q, want delete_rule", se.Op)
	}
}

// A 200 body with an {error} field is still a structured failure.
func TestDo_StructuredErrorOn200(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"error": "Attribute already exists"}`)
	}))
	defer srv.Close()

	_, err := c.AddAttribute(context.Background(), "age")
	se, ok := AsServerError(err)
	if !ok {
		t.Fatalf("error = %v, want *ServerError", err)
	}
	if se.Message != "Attribute already exists" {
		t.Errorf("Message = %q", se.Message)
	}
}

func TestDo_UnstructuredFailure(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, "upstream blew up")
	}))
	defer srv.Close()

	_, err := c.ListRules(context.Background())
	if err == nil {
		t.Fatal("ListRules() error = nil, want failure")
	}
	if _, ok := AsServerError(err); ok {
		t.Errorf("error = %v, must not be a *ServerError", err)
	}
	if !strings.Contains(err.Error(), "502") {
		t.Errorf("error = %v, want status in message", err)
	}
}

func TestDo_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	c := New(srv.URL, time.Second)
	srv.Close()

	_, err := c.ListAttributes(context.Background())
	if err == nil {
		t.Fatal("ListAttributes() error = nil, want transport failure")
	}
	if _, ok := AsServerError(err); ok {
		t.Error("transport failure reported as *ServerError")
	}
}

func TestGetRuleMetadata(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/get_rule_metadata/5" {
			t.Errorf("path = %q", r.URL.Path)
		}
		io.WriteString(w, `{"fields": ["age", "country"]}`)
	}))
	defer srv.Close()

	md, err := c.GetRuleMetadata(context.Background(), 5)
	if err != nil {
		t.Fatalf("GetRuleMetadata() error = %v", err)
	}
	if !reflect.DeepEqual(md.Fields, []string{"age", "country"}) {
		t.Errorf("Fields = %v", md.Fields)
	}
}

func TestOpName(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/get_rules", "get_rules"},
		{"/api/edit_rule/12", "edit_rule"},
		{"/api/delete_rule/7", "delete_rule"},
	}
	for _, tt := range tests {
		if got := opName(tt.path); got != tt.want {
			t.Errorf("opName(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
