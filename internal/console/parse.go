package console

import (
	"fmt"
	"strconv"
	"strings"
)

// CommandKind identifies one operator intent typed at the prompt.
type CommandKind int

const (
	CmdNone CommandKind = iota
	CmdHelp
	CmdQuit
	CmdRefresh
	CmdShowAttributes
	CmdAddAttribute
	CmdDeleteAttribute
	CmdShowRules
	CmdCreateRule
	CmdOpenEdit
	CmdEditRule
	CmdDeleteRule
	CmdCombine
	CmdSelect
	CmdSetField
	CmdEvaluate
)

// Command is a parsed console line.
type Command struct {
	Kind  CommandKind
	ID    int64  // rule id for edit/delete/select
	Name  string // attribute or rule name
	Text  string // rule text (after "::") or raw combine id list
	Field string // form field for set
	Value string // form value for set
}

// ParseLine parses one console input line into a typed command.
// Rule text is separated from the command head by "::" so names and text
// may contain spaces: `rule add adult :: age > 18`.
func ParseLine(line string) (Command, error) {
	head, text, hasText := strings.Cut(line, "::")
	head = strings.TrimSpace(head)
	text = strings.TrimSpace(text)

	fields := strings.Fields(head)
	if len(fields) == 0 {
		return Command{Kind: CmdNone}, nil
	}

	switch fields[0] {
	case "help":
		return Command{Kind: CmdHelp}, nil
	case "quit", "exit":
		return Command{Kind: CmdQuit}, nil
	case "refresh":
		return Command{Kind: CmdRefresh}, nil
	case "attrs":
		return Command{Kind: CmdShowAttributes}, nil
	case "attr":
		return parseAttr(fields)
	case "rules":
		return Command{Kind: CmdShowRules}, nil
	case "rule":
		return parseRule(fields, text, hasText)
	case "combine":
		if len(fields) < 2 {
			return Command{}, fmt.Errorf("usage: combine <id>,<id>,...")
		}
		return Command{Kind: CmdCombine, Text: strings.Join(fields[1:], " ")}, nil
	case "select":
		if len(fields) != 2 {
			return Command{}, fmt.Errorf("usage: select <rule-id>")
		}
		id, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return Command{}, fmt.Errorf("invalid rule id %q", fields[1])
		}
		return Command{Kind: CmdSelect, ID: id}, nil
	case "set":
		if len(fields) < 2 {
			return Command{}, fmt.Errorf("usage: set <field>=<value>")
		}
		assignment := strings.Join(fields[1:], " ")
		field, value, ok := strings.Cut(assignment, "=")
		if !ok || strings.TrimSpace(field) == "" {
			return Command{}, fmt.Errorf("usage: set <field>=<value>")
		}
		return Command{Kind: CmdSetField, Field: strings.TrimSpace(field), Value: strings.TrimSpace(value)}, nil
	case "eval":
		return Command{Kind: CmdEvaluate}, nil
	}
	return Command{}, fmt.Errorf("unknown command %q (try 'help')", fields[0])
}

func parseAttr(fields []string) (Command, error) {
	if len(fields) < 3 {
		return Command{}, fmt.Errorf("usage: attr add|rm <name>")
	}
	name := strings.Join(fields[2:], " ")
	switch fields[1] {
	case "add":
		return Command{Kind: CmdAddAttribute, Name: name}, nil
	case "rm":
		return Command{Kind: CmdDeleteAttribute, Name: name}, nil
	}
	return Command{}, fmt.Errorf("usage: attr add|rm <name>")
}

func parseRule(fields []string, text string, hasText bool) (Command, error) {
	if len(fields) < 2 {
		return Command{}, fmt.Errorf("usage: rule add|edit|rm ...")
	}
	switch fields[1] {
	case "add":
		if len(fields) < 3 || !hasText || text == "" {
			return Command{}, fmt.Errorf("usage: rule add <name> :: <text>")
		}
		return Command{Kind: CmdCreateRule, Name: strings.Join(fields[2:], " "), Text: text}, nil
	case "edit":
		if len(fields) != 3 {
			return Command{}, fmt.Errorf("usage: rule edit <id> [:: <text>]")
		}
		id, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return Command{}, fmt.Errorf("invalid rule id %q", fields[2])
		}
		if !hasText {
			return Command{Kind: CmdOpenEdit, ID: id}, nil
		}
		if text == "" {
			return Command{}, fmt.Errorf("usage: rule edit <id> :: <text>")
		}
		return Command{Kind: CmdEditRule, ID: id, Text: text}, nil
	case "rm":
		if len(fields) != 3 {
			return Command{}, fmt.Errorf("usage: rule rm <id>")
		}
		id, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return Command{}, fmt.Errorf("invalid rule id %q", fields[2])
		}
		return Command{Kind: CmdDeleteRule, ID: id}, nil
	}
	return Command{}, fmt.Errorf("usage: rule add|edit|rm ...")
}
