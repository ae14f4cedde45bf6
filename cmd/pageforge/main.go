package main

import (
	"fmt"
	"os"

	"github.com/fentz26/pageforge/internal/controlplane"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pageforge",
	Short: "pageforge - page generation orchestrator",
	Long: `pageforge batch-creates platform pages through an automation driver,
tracks each batch as a task, and optionally invites a profile to every page it creates.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(controlplane.Version)
	},
}

var (
	apiAddr    string
	configPath string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&apiAddr, "api", "http://127.0.0.1:7466", "API server address")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default ~/.pageforge/config.yaml)")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(inviteCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(benchmarkCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
