package main

import (
	"os"

	"github.com/ruledesk/ruledesk/cmd/ruledesk/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
