// frontendman manages the frontend server as a background daemon with
// monitoring and auto-restart.
package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"booktracker/pkg/supervisor"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "frontendman",
		Short:         "Frontend server process manager",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to frontendman.toml")

	root.AddCommand(startCommand())
	root.AddCommand(stopCommand())
	root.AddCommand(restartCommand())
	root.AddCommand(statusCommand())
	root.AddCommand(runCommand())
	return root
}

func loadManager() (*supervisor.Manager, supervisor.Config, error) {
	cfg, err := supervisor.LoadConfig(configPath)
	if err != nil {
		return nil, cfg, err
	}
	return supervisor.NewManager(cfg, nil), cfg, nil
}

// launchDaemon re-execs this binary with the run subcommand, detached into
// its own session with stdio on /dev/null.
func launchDaemon() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}
	args := []string{"run"}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	cmd := exec.Command(exe, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return cmd.Process.Release()
}

func startCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the frontend daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, cfg, err := loadManager()
			if err != nil {
				return err
			}
			pid, err := m.Start(launchDaemon)
			if errors.Is(err, supervisor.ErrAlreadyRunning) {
				fmt.Printf("Frontend daemon is already running (PID: %d)\n", pid)
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Printf("Frontend daemon started successfully (PID: %d)\n", pid)
			fmt.Printf("  Logs:   %s\n", cfg.LogPath())
			fmt.Printf("  Errors: %s\n", cfg.ErrorLogPath())
			return nil
		},
	}
}

func stopCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the frontend daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, _, err := loadManager()
			if err != nil {
				return err
			}
			outcome, pid, err := m.Stop()
			if err != nil {
				return err
			}
			switch outcome {
			case supervisor.StopNotRunning:
				fmt.Println("Frontend daemon is not running (no PID file)")
			case supervisor.StopStale:
				fmt.Printf("Frontend daemon is not running (stale PID: %d)\n", pid)
			case supervisor.StopGraceful:
				fmt.Println("Frontend daemon stopped successfully")
			case supervisor.StopForced:
				fmt.Println("Frontend daemon stopped (forced)")
			}
			return nil
		},
	}
}

func restartCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Restart the frontend daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, _, err := loadManager()
			if err != nil {
				return err
			}
			fmt.Println("Restarting frontend daemon...")
			pid, err := m.Restart(launchDaemon)
			if err != nil {
				return err
			}
			fmt.Printf("Frontend daemon started successfully (PID: %d)\n", pid)
			return nil
		},
	}
}

func statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show frontend daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, cfg, err := loadManager()
			if err != nil {
				return err
			}
			status := m.Status()

			fmt.Println("Frontend Daemon Status")
			switch status.State {
			case supervisor.StateRunning:
				fmt.Printf("Status: running (PID: %d)\n", status.PID)
			case supervisor.StateStale:
				fmt.Printf("Status: not running (stale PID: %d)\n", status.PID)
			default:
				fmt.Println("Status: not running")
			}
			fmt.Printf("Log file:  %s\n", cfg.LogPath())
			fmt.Printf("Error log: %s\n", cfg.ErrorLogPath())

			if len(status.LogTail) > 0 {
				fmt.Println("\nRecent logs:")
				for _, line := range status.LogTail {
					fmt.Printf("  %s\n", line)
				}
			}
			return nil
		},
	}
}

func runCommand() *cobra.Command {
	return &cobra.Command{
		Use:    "run",
		Short:  "Run the monitoring loop in the foreground (daemon entry point)",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := supervisor.LoadConfig(configPath)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
				return fmt.Errorf("create log directory: %w", err)
			}

			logger, err := supervisor.NewLogger(cfg.LogPath())
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer logger.Sync()

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer cancel()

			m := supervisor.NewManager(cfg, logger)
			return m.Run(ctx)
		},
	}
}
