package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"sield/internal/ipc"
)

func newPendingCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List devices waiting for a password",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			pending, err := ipc.ListPending(cfg.Daemon.FIFODir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(pending) == 0 {
				fmt.Fprintln(out, "No unattended devices")
				return nil
			}
			rows := make([][]string, 0, len(pending))
			for i, p := range pending {
				rows = append(rows, []string{strconv.Itoa(i + 1), p.Name, p.Path})
			}
			fmt.Fprintln(out, renderTable([]string{"#", "Device", "Pipe"}, rows, 0))
			fmt.Fprintf(out, "Run %s from a logged-in terminal to unlock a device.\n", cfg.Daemon.ClientName)
			return nil
		},
	}
}
