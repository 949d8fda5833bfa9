package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/streamhive/mqtt-session-store/internal/config"
	"github.com/streamhive/mqtt-session-store/internal/database"
	"github.com/streamhive/mqtt-session-store/internal/event"
	"github.com/streamhive/mqtt-session-store/internal/logger"
	"github.com/streamhive/mqtt-session-store/internal/session"
)

const Version = "0.3.1"

var rootCmd = &cobra.Command{
	Use:   "session-store",
	Short: "durable MQTT session-state store",
	Long: fmt.Sprintf(`session-store (v%s)

Persistence layer for per-client MQTT session state: subscriptions,
stream replay cursors, sequence counters and partition ranks, stored
in a replicated transactional table store.`, Version),
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of session-store",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("session-store v%s\n", Version)
	},
}

// setup reads config, initializes logging and shutdown handling and
// connects to the database. Shared by every subcommand that touches the
// store.
func setup() (*session.Store, error) {
	if _, err := config.ReadConfig(); err != nil {
		return nil, err
	}
	loggerCallback := logger.Init()
	cleaner := event.NewCleaner()
	cleaner.Init(loggerCallback)

	db, err := database.Connect()
	if err != nil {
		return nil, fmt.Errorf("error occured while initializing database: %w", err)
	}
	return session.NewStore(db), nil
}

func main() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(printCmd)
	rootCmd.AddCommand(dropCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
