package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"sield/internal/daemonctl"
	"sield/internal/ipc"
)

const defaultStopTimeout = 20 * time.Second

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether the daemon is running",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			st, err := daemonctl.Check(cfg.Daemon.PIDFile)
			if err != nil {
				return err
			}
			pending, err := ipc.ListPending(cfg.Daemon.FIFODir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Daemon:           %s\n", describeStatus(st))
			fmt.Fprintf(out, "PID file:         %s\n", st.PIDFile)
			if !st.Started.IsZero() {
				fmt.Fprintf(out, "Started:          %s\n", st.Started.Local().Format(time.DateTime))
			}
			fmt.Fprintf(out, "Guard enabled:    %s\n", yesNo(cfg.Enabled()))
			fmt.Fprintf(out, "Scan:             %s\n", yesNo(cfg.ScanEnabled()))
			fmt.Fprintf(out, "Share:            %s\n", yesNo(cfg.ShareEnabled()))
			fmt.Fprintf(out, "Pending devices:  %d\n", len(pending))
			return nil
		},
	}

	var timeout time.Duration
	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the daemon and wait for its cleanup to finish",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			st, err := daemonctl.Stop(cfg.Daemon.PIDFile, timeout)
			switch {
			case err != nil:
				return err
			case st.State == daemonctl.StateStopped:
				fmt.Fprintln(out, "Daemon is not running")
			case st.State == daemonctl.StateStale:
				fmt.Fprintf(out, "Daemon is not running (stale pid file %s)\n", st.PIDFile)
			default:
				fmt.Fprintf(out, "Daemon stopped (pid %d)\n", st.PID)
			}
			return nil
		},
	}
	stopCmd.Flags().DurationVar(&timeout, "timeout", defaultStopTimeout, "How long to wait for the daemon to exit")

	return []*cobra.Command{statusCmd, stopCmd}
}

func describeStatus(st daemonctl.Status) string {
	switch st.State {
	case daemonctl.StateRunning:
		return fmt.Sprintf("running (pid %d)", st.PID)
	case daemonctl.StateStale:
		return fmt.Sprintf("stopped (stale pid %d)", st.PID)
	default:
		return "stopped"
	}
}
