package cmd

import (
	"github.com/spf13/cobra"
)

var (
	configFile string
	serverURL  string
	dbURL      string
)

var rootCmd = &cobra.Command{
	Use:   "ruledesk",
	Short: "Ruledesk business-rule console",
	Long:  `Ruledesk is an operator console for a remote rule-management service: define attributes, author and combine rules, and evaluate them against entered values.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server-url", "", "rule service base URL")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db-url", "", "database connection URL for serve/migrate (sqlite://path or postgres://...)")
}

func Execute() error {
	return rootCmd.Execute()
}
