package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sield/internal/daemonrun"
)

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	var foreground bool
	var logLevel string

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the sield daemon",
		Long:  "Run the sield daemon. Without --foreground the process detaches from the terminal and runs in the background.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			code, err := daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				ConfigPath: ctx.configPath,
				Foreground: foreground,
				LogLevel:   logLevel,
			})
			if err != nil && code <= 1 {
				return err
			}
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
			}
			if code != 0 {
				return exitError{code: code}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "Stay attached to the terminal and log to stdout")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
	return cmd
}
