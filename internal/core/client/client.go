// Package client provides typed request wrappers for the rule-management
// service's JSON contract.
//
// One method per server capability. Every method is side-effect-free on
// failure and distinguishes structured service errors (*ServerError, shown
// verbatim by the console) from transport errors (wrapped, shown as a
// generic fallback). Routes and envelopes follow the management service:
// mutations answer {message}, failures answer {error}.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ruledesk/ruledesk/internal/types"
)

// Client talks to one management service instance.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the service at baseURL.
// Timeout bounds each request end-to-end; there is no retry policy, a failed
// operation is re-triggered by the operator.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// ListAttributes fetches the attribute collection in server order.
func (c *Client) ListAttributes(ctx context.Context) ([]string, error) {
	var out struct {
		Attributes []string `json:"attributes"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/get_attributes", nil, &out); err != nil {
		return nil, err
	}
	return out.Attributes, nil
}

// AddAttribute registers a new permitted variable name.
// Returns the service's success message.
func (c *Client) AddAttribute(ctx context.Context, name string) (string, error) {
	body := map[string]string{"attribute_name": name}
	return c.message(ctx, http.MethodPost, "/api/add_attribute", body)
}

// DeleteAttribute removes a permitted variable name.
func (c *Client) DeleteAttribute(ctx context.Context, name string) (string, error) {
	body := map[string]string{"attribute_name": name}
	return c.message(ctx, http.MethodPost, "/api/delete_attribute", body)
}

// ListRules fetches the rule collection in server order.
func (c *Client) ListRules(ctx context.Context) ([]types.Rule, error) {
	var out struct {
		Rules []types.Rule `json:"rules"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/get_rules", nil, &out); err != nil {
		return nil, err
	}
	return out.Rules, nil
}

// CreateRule stores a new rule; the id is server-assigned and only visible
// through a subsequent ListRules.
func (c *Client) CreateRule(ctx context.Context, name, text string) (string, error) {
	body := map[string]string{"rule_name": name, "rule_text": text}
	return c.message(ctx, http.MethodPost, "/api/create_rule", body)
}

// EditRule replaces the text of an existing rule. Name and id are immutable.
func (c *Client) EditRule(ctx context.Context, id int64, text string) (string, error) {
	body := map[string]string{"rule_text": text}
	return c.message(ctx, http.MethodPost, "/api/edit_rule/"+strconv.FormatInt(id, 10), body)
}

// DeleteRule removes a rule by id.
func (c *Client) DeleteRule(ctx context.Context, id int64) (string, error) {
	return c.message(ctx, http.MethodDelete, "/api/delete_rule/"+strconv.FormatInt(id, 10), nil)
}

// CombineRules asks the service to merge the given rule ids into one derived
// rule. Combination semantics are owned by the service.
func (c *Client) CombineRules(ctx context.Context, ids []int64) (string, error) {
	body := map[string][]int64{"rule_ids": ids}
	return c.message(ctx, http.MethodPost, "/api/combine_rules", body)
}

// GetRuleMetadata fetches the field names a rule references, in service
// order. Drives dynamic form generation; never cached across rules.
func (c *Client) GetRuleMetadata(ctx context.Context, id int64) (types.RuleMetadata, error) {
	var out types.RuleMetadata
	err := c.do(ctx, http.MethodGet, "/api/get_rule_metadata/"+strconv.FormatInt(id, 10), nil, &out)
	return out, err
}

// EvaluateRule submits operator-entered values for one rule.
func (c *Client) EvaluateRule(ctx context.Context, id int64, values map[string]string) (types.EvaluationResult, error) {
	req := types.EvaluationRequest{RuleID: id, Data: values}
	var out types.EvaluationResult
	err := c.do(ctx, http.MethodPost, "/api/evaluate_rule", req, &out)
	return out, err
}

// message issues a request whose success payload is a bare {message} envelope.
func (c *Client) message(ctx context.Context, method, path string, body any) (string, error) {
	var out struct {
		Message string `json:"message"`
	}
	if err := c.do(ctx, method, path, body, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

// do issues one request and decodes the response envelope.
// An {error} field in the body wins over the HTTP status: it becomes a
// *ServerError regardless of code. A non-2xx response without a structured
// error is a transport-level failure.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	op := opName(path)

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-Id", string(types.NewRequestID()))

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", op, err)
	}

	var envelope struct {
		Error string `json:"error"`
	}
	if len(raw) > 0 {
		// Envelope decode failure is ignored here; a malformed body is
		// handled below as either a status error or an out-decode error.
		_ = json.Unmarshal(raw, &envelope)
	}
	if envelope.Error != "" {
		return &ServerError{Op: op, Message: envelope.Error}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s: unexpected status %d", op, resp.StatusCode)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%s: decode response: %w", op, err)
		}
	}
	return nil
}

// opName reduces "/api/edit_rule/12" to "edit_rule" for error messages.
func opName(path string) string {
	const prefix = "/api/"
	name := path
	if len(name) > len(prefix) {
		name = name[len(prefix):]
	}
	for i := 0; i < len(name); i++ {
		if name[i] == '/' {
			return name[:i]
		}
	}
	return name
}
