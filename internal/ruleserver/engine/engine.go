// Package engine compiles and evaluates operator-authored rule text.
//
// The rule language is the console's: comparisons joined with AND/OR, a
// single = meaning equality, parentheses for grouping. Normalize maps that
// surface onto expr syntax and expr-lang/expr does the actual parsing and
// evaluation, replacing the original's string-substitution-and-eval scheme
// with a compiled program over a value environment.
package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

var (
	andRe        = regexp.MustCompile(`\bAND\b`)
	orRe         = regexp.MustCompile(`\bOR\b`)
	connectorRe  = regexp.MustCompile(`\bAND\b|\bOR\b`)
	identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// Comparison operators recognized when extracting field names. Two-char
// operators listed first so ">=" is not read as ">".
var operators = []string{">=", "<=", "==", "!=", ">", "<", "="}

// ExtractFields returns the variable names a rule references, in first
// appearance order, deduplicated. A field is the identifier on the left of
// a comparison; right-hand values are ignored.
func ExtractFields(text string) []string {
	var fields []string
	seen := map[string]bool{}

	for _, part := range connectorRe.Split(text, -1) {
		part = strings.NewReplacer("(", "", ")", "").Replace(part)
		for _, op := range operators {
			lhs, _, ok := strings.Cut(part, op)
			if !ok {
				continue
			}
			name := strings.TrimSpace(lhs)
			if identifierRe.MatchString(name) && !seen[name] {
				seen[name] = true
				fields = append(fields, name)
			}
			break
		}
	}
	return fields
}

// Normalize rewrites rule-language operators into expr syntax:
// AND to &&, OR to ||, and a lone = to ==. Two-character operators
// (==, <=, >=, !=) pass through unchanged.
func Normalize(text string) string {
	text = andRe.ReplaceAllString(text, "&&")
	text = orRe.ReplaceAllString(text, "||")

	var b strings.Builder
	runes := []rune(text)
	for i, ch := range runes {
		if ch != '=' {
			b.WriteRune(ch)
			continue
		}
		var prev, next rune
		if i > 0 {
			prev = runes[i-1]
		}
		if i+1 < len(runes) {
			next = runes[i+1]
		}
		if prev == '=' || prev == '<' || prev == '>' || prev == '!' || next == '=' {
			b.WriteRune(ch)
		} else {
			b.WriteString("==")
		}
	}
	return b.String()
}

// Compile checks and compiles rule text into an evaluable program.
// Undefined variables are allowed at compile time; they are bound per
// evaluation from operator-entered values.
func Compile(text string) (*vm.Program, error) {
	prog, err := expr.Compile(Normalize(text), expr.AsBool(), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("invalid rule text: %w", err)
	}
	return prog, nil
}

// Evaluate runs a compiled rule against operator-entered values.
// Values arrive as strings from the form surface; numeric-looking values
// are bound as numbers, everything else as strings, mirroring how the rule
// author wrote literals.
func Evaluate(prog *vm.Program, values map[string]string) (bool, error) {
	env := make(map[string]any, len(values))
	for field, value := range values {
		env[field] = coerce(value)
	}
	out, err := expr.Run(prog, env)
	if err != nil {
		return false, fmt.Errorf("evaluation failed: %w", err)
	}
	result, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("rule did not evaluate to a boolean")
	}
	return result, nil
}

// EvaluateText compiles and runs rule text in one step.
func EvaluateText(text string, values map[string]string) (bool, error) {
	prog, err := Compile(text)
	if err != nil {
		return false, err
	}
	return Evaluate(prog, values)
}

func coerce(value string) any {
	if n, err := strconv.ParseFloat(value, 64); err == nil {
		return n
	}
	return value
}
