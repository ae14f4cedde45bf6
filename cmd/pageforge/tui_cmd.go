package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/fentz26/pageforge/internal/config"
	"github.com/fentz26/pageforge/internal/tui"
	"github.com/spf13/cobra"
)

var noAutoStart bool

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch the interactive dashboard",
	RunE:  runTUI,
}

func init() {
	tuiCmd.Flags().BoolVar(&noAutoStart, "no-daemon", false, "Do not start a background daemon when none is running")
}

func runTUI(cmd *cobra.Command, args []string) error {
	if !isDaemonRunning() {
		if noAutoStart {
			return fmt.Errorf("daemon not reachable at %s", apiAddr)
		}
		fmt.Println("pageforge daemon not running. Starting background service...")
		if err := startDaemon(); err != nil {
			return fmt.Errorf("failed to start daemon: %w", err)
		}
	}

	app := tui.New(apiAddr)
	if err := app.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

func isDaemonRunning() bool {
	_, err := CheckHealth()
	return err == nil
}

// startDaemon runs "pageforge daemon" detached, logging to ~/.pageforge/daemon.log.
func startDaemon() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}

	daemonArgs := []string{"daemon"}
	if configPath != "" {
		daemonArgs = append(daemonArgs, "--config", configPath)
	}
	cmd := exec.Command(exe, daemonArgs...)

	logFile, err := daemonLogFile()
	if err != nil {
		return err
	}
	defer logFile.Close()
	detachDaemon(cmd, logFile)

	if err := cmd.Start(); err != nil {
		return err
	}

	fmt.Print("   Waiting for daemon...")
	for range 20 {
		if isDaemonRunning() {
			fmt.Println(" Done.")
			return nil
		}
		time.Sleep(250 * time.Millisecond)
		fmt.Print(".")
	}
	fmt.Println(" Timeout!")
	return fmt.Errorf("daemon started but API not reachable at %s (see %s)", apiAddr, filepath.Join(config.Home(), "daemon.log"))
}

func daemonLogFile() (io.WriteCloser, error) {
	dir := config.Home()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(filepath.Join(dir, "daemon.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}
