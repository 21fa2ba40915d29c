package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"DisclosureMonitor/internal/app"
	"DisclosureMonitor/internal/process"
	"DisclosureMonitor/internal/usecase"
)

func (c *cli) startCmd() *cobra.Command {
	var foreground bool
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the monitor",
		RunE: func(cmd *cobra.Command, args []string) error {
			if foreground {
				return c.runForeground(cmd.Context())
			}
			return c.detach(cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&foreground, "foreground", false, "run attached to the terminal")
	return cmd
}

func (c *cli) runForeground(ctx context.Context) error {
	pidfile := process.NewPIDFile(c.cfg.Process.PIDFile)
	if err := pidfile.Acquire(); err != nil {
		return err
	}
	defer func() {
		if err := pidfile.Release(); err != nil {
			c.logger.Warn("release pidfile", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer application.Close()

	return application.Run(ctx)
}

// detach re-executes the binary in the foreground mode as a new session
// with output appended to a log file next to the pidfile.
func (c *cli) detach(out io.Writer) error {
	pidfile := process.NewPIDFile(c.cfg.Process.PIDFile)
	if pid, err := pidfile.Running(); err == nil {
		return &process.ErrAlreadyRunning{PID: pid, Path: pidfile.Path()}
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}
	dir := filepath.Dir(c.cfg.Process.PIDFile)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}
	logPath := filepath.Join(dir, "monitor.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	args := []string{"start", "--foreground"}
	if c.cfgFile != "" {
		args = append(args, "--config", c.cfgFile)
	}
	child := exec.Command(exe, args...)
	child.Stdout = logFile
	child.Stderr = logFile
	child.SysProcAttr = detachedAttr()
	if err := child.Start(); err != nil {
		return fmt.Errorf("start background process: %w", err)
	}
	pid := child.Process.Pid
	_ = child.Process.Release()

	fmt.Fprintf(out, "monitor started (PID %d), logging to %s\n", pid, logPath)
	return nil
}

func (c *cli) stopCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the background monitor",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			pid, err := process.NewPIDFile(c.cfg.Process.PIDFile).Stop(ctx)
			if errors.Is(err, process.ErrNotRunning) {
				fmt.Fprintln(cmd.OutOrStdout(), "monitor is not running")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "monitor stopped (PID %d)\n", pid)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "how long to wait for the in-flight cycle")
	return cmd
}

func (c *cli) statusCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show alert history and liveness",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			pid, err := process.NewPIDFile(c.cfg.Process.PIDFile).Running()
			running := err == nil

			var report usecase.StatusReport
			switch {
			case running && c.cfg.Server.Addr != "":
				report, err = fetchStatus(ctx, c.cfg.Server.Addr)
			case running:
				fmt.Fprintf(out, "monitor running (PID %d); enable server.addr for details\n", pid)
				return nil
			default:
				report, err = c.offlineStatus(ctx)
			}
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			printStatus(out, report, pid)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

func (c *cli) offlineStatus(ctx context.Context) (usecase.StatusReport, error) {
	stores, err := app.OpenStores(ctx, c.cfg, c.logger)
	if err != nil {
		return usecase.StatusReport{}, err
	}
	defer stores.Close()
	return usecase.NewStatusReader(stores.Hashes, stores.Heartbeat, nil, nil).Status(ctx)
}

func fetchStatus(ctx context.Context, addr string) (usecase.StatusReport, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/status", nil)
	if err != nil {
		return usecase.StatusReport{}, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return usecase.StatusReport{}, fmt.Errorf("query status endpoint: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return usecase.StatusReport{}, fmt.Errorf("status endpoint: %s", resp.Status)
	}

	var report usecase.StatusReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return usecase.StatusReport{}, fmt.Errorf("decode status: %w", err)
	}
	return report, nil
}

func printStatus(out io.Writer, r usecase.StatusReport, pid int) {
	if pid > 0 {
		fmt.Fprintf(out, "State:          running (PID %d)\n", pid)
	} else {
		fmt.Fprintln(out, "State:          stopped")
	}
	if r.LastHeartbeat.IsZero() {
		fmt.Fprintln(out, "Last heartbeat: never")
	} else {
		fmt.Fprintf(out, "Last heartbeat: %s (%s ago)\n", r.LastHeartbeat.Format(time.RFC3339), r.HeartbeatAge)
	}
	fmt.Fprintf(out, "Alerts sent:    %d total, %d today, %d in last 24h\n", r.Alerts.Total, r.Alerts.Today, r.Alerts.Last24h)
	if !r.Alerts.LastMarkedAt.IsZero() {
		fmt.Fprintf(out, "Last alert:     %s\n", r.Alerts.LastMarkedAt.Format(time.RFC3339))
	}
	if s := r.Scheduler; s != nil {
		fmt.Fprintf(out, "Cycle running:  %t\n", s.Running)
		if s.LastReport != nil {
			fmt.Fprintf(out, "Last cycle:     %s %s, %d notified, %d failed\n",
				s.LastReport.Trigger, s.LastReport.StartedAt.Format(time.RFC3339), s.LastReport.Notified, s.LastReport.Failed)
		}
	}
}

func (c *cli) runOnceCmd() *cobra.Command {
	var lookback time.Duration
	cmd := &cobra.Command{
		Use:   "run-once",
		Short: "Run a single cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if pid, err := process.NewPIDFile(c.cfg.Process.PIDFile).Running(); err == nil {
				return fmt.Errorf("monitor is running (PID %d); stop it first", pid)
			}
			return c.withApp(cmd.Context(), func(ctx context.Context, a *app.Application) error {
				report, err := a.RunOnce(ctx, lookback)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "cycle %s: fetched %d, matched %d, notified %d, failed %d, duplicates %d\n",
					report.ID, report.Fetched, report.Matched, report.Notified, report.Failed, report.Duplicates)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&lookback, "lookback", 0, "widen the filter window, capped at scheduler.maxLookback")
	return cmd
}

func (c *cli) pruneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Delete records older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(ctx context.Context, a *app.Application) error {
				report, err := a.Prune(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "pruned %d hashes and %d articles older than %s\n",
					report.Hashes, report.Articles, report.Cutoff.Format(time.RFC3339))
				return nil
			})
		},
	}
}

func (c *cli) withApp(ctx context.Context, fn func(context.Context, *app.Application) error) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer application.Close()
	return fn(ctx, application)
}
