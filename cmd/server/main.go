// cmd/server/main.go
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/Annany2002/sqlitecult/internal/logger"
)

var (
	customLog = logger.NewLogger()
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sqlitecult",
		Short: "Multi-tenant SQLite database service",
		Long:  "sqlitecult serves a REST API for managing per-user SQLite database files.",
	}
	rootCmd.AddCommand(newServeCmd(), newCreateAdminCmd(), newIssueTokenCmd())
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		customLog.Errorf("%v", err)
		os.Exit(1)
	}
}
