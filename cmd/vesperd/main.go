package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/solenne/vesper/cmd/vesperd/commands"
)

var rootCmd = &cobra.Command{
	Use:   "vesperd",
	Short: "Vesper - voice assistant backend scheduler",
	Long: `Vesper - job scheduling and execution backend.

Vesper durably persists scheduled jobs ("remind me in 5 minutes",
"run a status check daily at 9am"), computes when they are next due,
and executes them through a whitelisted action dispatcher with
per-run history.

Available commands:
  serve  - Run the scheduler daemon (poll sweep + whitelist watcher)
  jobs   - Manage jobs (schedule, list, status, cancel, run, history)

Examples:
  vesperd serve
  vesperd jobs schedule --name "morning check" --schedule "daily at 09:00" --action server_status
  vesperd jobs list --status pending
  vesperd jobs history --limit 50`,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "path to vesper.toml (default: ./vesper.toml)")

	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.JobsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
