// Command pertdash is the realtime client for the PERT analysis engine:
// it submits task sets, requests analyses and comparisons, and watches the
// engine's push channel.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"pert-dashboard/internal/config"
)

var (
	flagConfig  string
	flagEnvFile string
	flagTasks   string

	cfg *config.Config
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pertdash",
		Short: "Realtime dashboard client for the PERT analysis engine",
		Long: `pertdash submits project task sets to a PERT analysis engine, requests
classical and Monte Carlo analyses, and follows the engine's push channel,
reconnecting automatically when the connection drops.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadEnvFile(flagEnvFile); err != nil {
				return err
			}
			loaded, err := config.Load(flagConfig, cmd.Flags())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg = loaded
			return nil
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "Config file (default ./"+config.DefaultConfigFile+" if present)")
	pf.StringVar(&flagEnvFile, "env-file", ".env", "Env file loaded before config")
	pf.String("engine-url", "", "Analysis engine base URL")
	pf.String("endpoint", "", "Push channel WebSocket URL")
	pf.Duration("reconnect-delay", 0, "Delay before reconnecting after an unexpected closure")
	pf.String("storage", "", "Storage backend (memory, postgres)")
	pf.String("postgres-dsn", "", "PostgreSQL connection string")
	pf.String("clickhouse-dsn", "", "ClickHouse connection string for comparison history")
	pf.Bool("archive", false, "Archive received events to the event store")
	pf.String("http-addr", "", "Status API address (empty disables)")

	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(submitCmd())
	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(compareCmd())
	rootCmd.AddCommand(updateTaskCmd())
	rootCmd.AddCommand(tasksCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newLogger returns a component logger in the bracketed-prefix style.
func newLogger(component string) *log.Logger {
	return log.New(os.Stderr, "["+component+"] ", log.LstdFlags|log.Lshortfile)
}
