package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/ruledesk/ruledesk/internal/console"
	"github.com/ruledesk/ruledesk/internal/core/client"
	"github.com/ruledesk/ruledesk/internal/core/config"
	"github.com/spf13/cobra"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Start the interactive rule console",
	RunE:  runConsole,
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}

func runConsole(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if serverURL != "" {
		cfg.Console.ServerURL = serverURL
	}

	api := client.New(cfg.Console.ServerURL, cfg.Console.RequestTimeout)
	c := console.New(cfg.Console, api, os.Stdout)
	return c.Run(context.Background(), os.Stdin)
}
