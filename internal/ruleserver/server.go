// Package ruleserver implements the rule-management service contract the
// console consumes.
//
// One handler per capability, JSON in and out. Success payloads answer
// {message} (mutations) or the operation's document; every failure answers
// {error} with the condition's wording, which the console surfaces
// verbatim. Collection endpoints return server order; the console treats
// these responses as the sole source of truth.
package ruleserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/ruledesk/ruledesk/internal/core/config"
	"github.com/ruledesk/ruledesk/internal/ruleserver/engine"
	"github.com/ruledesk/ruledesk/internal/ruleserver/store"
	"github.com/ruledesk/ruledesk/internal/types"
)

// maxCombinationDepth bounds recursive evaluation of combinations whose
// members are themselves combinations.
const maxCombinationDepth = 16

// Server handles the management service's HTTP routes.
type Server struct {
	store *store.Store
	cfg   *config.ServeConfig
}

// New creates a server over the given store.
func New(st *store.Store, cfg *config.ServeConfig) *Server {
	return &Server{store: st, cfg: cfg}
}

// Handler returns the service's route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/get_attributes", s.getAttributes)
	mux.HandleFunc("POST /api/add_attribute", s.addAttribute)
	mux.HandleFunc("POST /api/delete_attribute", s.deleteAttribute)
	mux.HandleFunc("GET /api/get_rules", s.getRules)
	mux.HandleFunc("POST /api/create_rule", s.createRule)
	mux.HandleFunc("POST /api/edit_rule/{id}", s.editRule)
	mux.HandleFunc("DELETE /api/delete_rule/{id}", s.deleteRule)
	mux.HandleFunc("POST /api/combine_rules", s.combineRules)
	mux.HandleFunc("GET /api/get_rule_metadata/{id}", s.getRuleMetadata)
	mux.HandleFunc("POST /api/evaluate_rule", s.evaluateRule)
	return logRequests(mux)
}

// logRequests records one line per request, keyed by the console's
// correlation id when present.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = "-"
		}
		log.Printf("%s %s %s", reqID, r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) getAttributes(w http.ResponseWriter, r *http.Request) {
	attrs, err := s.store.Attributes(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"attributes": attrs})
}

func (s *Server) addAttribute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AttributeName string `json:"attribute_name"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.AttributeName == "" {
		writeError(w, http.StatusBadRequest, "Attribute name is required")
		return
	}
	exists, err := s.store.HasAttribute(r.Context(), req.AttributeName)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if exists {
		writeError(w, http.StatusBadRequest, "Attribute already exists")
		return
	}
	if err := s.store.AddAttribute(r.Context(), req.AttributeName); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeMessage(w, http.StatusCreated, "Attribute added successfully")
}

func (s *Server) deleteAttribute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AttributeName string `json:"attribute_name"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.AttributeName == "" {
		writeError(w, http.StatusBadRequest, "Attribute name is required")
		return
	}
	err := s.store.DeleteAttribute(r.Context(), req.AttributeName)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Attribute not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeMessage(w, http.StatusOK, "Attribute deleted successfully")
}

func (s *Server) getRules(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.Rules(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	rules := make([]types.Rule, 0, len(rows))
	for _, row := range rows {
		rules = append(rules, types.Rule{ID: row.ID, Name: row.Name, Text: row.Text})
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": rules})
}

func (s *Server) createRule(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RuleName string `json:"rule_name"`
		RuleText string `json:"rule_text"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.RuleName == "" || req.RuleText == "" {
		writeError(w, http.StatusBadRequest, "Rule name and text are required")
		return
	}
	if err := s.validateRuleText(r.Context(), req.RuleText); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.CreateRule(r.Context(), req.RuleName, req.RuleText); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeMessage(w, http.StatusCreated, "Rule created successfully")
}

func (s *Server) editRule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		RuleText string `json:"rule_text"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.RuleText == "" {
		writeError(w, http.StatusBadRequest, "Rule text is required")
		return
	}
	if err := s.validateRuleText(r.Context(), req.RuleText); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	err := s.store.UpdateRuleText(r.Context(), id, req.RuleText)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Rule not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeMessage(w, http.StatusOK, "Rule updated successfully")
}

func (s *Server) deleteRule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	err := s.store.DeleteRule(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Rule not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeMessage(w, http.StatusOK, "Rule deleted successfully")
}

func (s *Server) combineRules(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RuleIDs []int64 `json:"rule_ids"`
	}
	if !decode(w, r, &req) {
		return
	}
	if len(req.RuleIDs) == 0 {
		writeError(w, http.StatusBadRequest, "Rule IDs are required")
		return
	}
	for _, id := range req.RuleIDs {
		if _, err := s.store.RuleByID(r.Context(), id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("Rule %d not found", id))
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	name := "Combined Rule"
	text := fmt.Sprintf("Combination of rules: %v", req.RuleIDs)
	if err := s.store.CreateCombination(r.Context(), name, text, req.RuleIDs); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeMessage(w, http.StatusCreated, "Rules combined successfully")
}

func (s *Server) getRuleMetadata(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	fields, err := s.ruleFields(r.Context(), id, 0)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Rule not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, types.RuleMetadata{Fields: fields})
}

func (s *Server) evaluateRule(w http.ResponseWriter, r *http.Request) {
	var req types.EvaluationRequest
	if !decode(w, r, &req) {
		return
	}
	if req.RuleID == 0 || req.Data == nil {
		writeError(w, http.StatusBadRequest, "Rule ID and data are required")
		return
	}
	result, err := s.evaluate(r.Context(), req.RuleID, req.Data, 0)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Rule not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, types.EvaluationResult{Result: result})
}

// evaluate runs one rule, recursing into combination members. A combination
// is the conjunction of its members; every member still evaluates so a
// malformed one surfaces even after an earlier false.
func (s *Server) evaluate(ctx context.Context, id int64, values map[string]string, depth int) (bool, error) {
	if depth > maxCombinationDepth {
		return false, fmt.Errorf("combination nesting too deep")
	}
	row, err := s.store.RuleByID(ctx, id)
	if err != nil {
		return false, err
	}
	if !row.IsCombination {
		return engine.EvaluateText(row.Text, values)
	}
	ids, err := row.CombinedIDs()
	if err != nil {
		return false, err
	}
	all := true
	for _, member := range ids {
		ok, err := s.evaluate(ctx, member, values, depth+1)
		if err != nil {
			return false, err
		}
		all = all && ok
	}
	return all, nil
}

// ruleFields returns a rule's form fields; for a combination, the ordered
// union of its members' fields, so one form drives every member.
func (s *Server) ruleFields(ctx context.Context, id int64, depth int) ([]string, error) {
	if depth > maxCombinationDepth {
		return nil, fmt.Errorf("combination nesting too deep")
	}
	row, err := s.store.RuleByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !row.IsCombination {
		return engine.ExtractFields(row.Text), nil
	}
	ids, err := row.CombinedIDs()
	if err != nil {
		return nil, err
	}
	var fields []string
	seen := map[string]bool{}
	for _, member := range ids {
		memberFields, err := s.ruleFields(ctx, member, depth+1)
		if err != nil {
			return nil, err
		}
		for _, f := range memberFields {
			if !seen[f] {
				seen[f] = true
				fields = append(fields, f)
			}
		}
	}
	return fields, nil
}

// validateRuleText compiles the text and, when the attribute check is on,
// verifies every referenced field is a registered attribute.
func (s *Server) validateRuleText(ctx context.Context, text string) error {
	if _, err := engine.Compile(text); err != nil {
		return err
	}
	if !s.cfg.AttributeCheck {
		return nil
	}
	for _, field := range engine.ExtractFields(text) {
		ok, err := s.store.HasAttribute(ctx, field)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("unknown attribute: %s", field)
		}
	}
	return nil
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid rule id")
		return 0, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func writeMessage(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"message": message})
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}
