package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"sield/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var device string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent device runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			path := cfg.HistoryPath()
			if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
				fmt.Fprintln(out, "No device runs recorded")
				return nil
			}

			store, err := history.Open(path)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.List(cmd.Context(), limit, strings.TrimSpace(device))
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No device runs recorded")
				return nil
			}
			fmt.Fprintln(out, renderHistory(runs))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to show")
	cmd.Flags().StringVarP(&device, "device", "d", "", "Only show runs for this device node")
	return cmd
}

func renderHistory(runs []*history.Run) string {
	headers := []string{"Started", "Device", "Product", "State", "Auth", "Scan", "Mount point", "Shared", "Duration"}
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		state := run.State
		if run.Error != "" {
			state = fmt.Sprintf("%s (%s)", run.State, run.Error)
		}
		rows = append(rows, []string{
			run.StartedAt.Local().Format(time.DateTime),
			run.DevNode,
			strings.TrimSpace(run.Manufacturer + " " + run.Product),
			state,
			describeAuth(run),
			orDash(run.ScanVerdict),
			orDash(run.MountPoint),
			yesNo(run.Shared),
			run.Duration().Round(time.Second).String(),
		})
	}
	return renderTable(headers, rows, len(headers)-1)
}

func describeAuth(run *history.Run) string {
	if run.AuthState == "" {
		return "-"
	}
	if run.AuthAttempts == 0 {
		return run.AuthState
	}
	return fmt.Sprintf("%s/%d", run.AuthState, run.AuthAttempts)
}

func orDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
