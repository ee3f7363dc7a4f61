package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	ctx := newCommandContext(&configFlag)

	root := &cobra.Command{
		Use:           "sield",
		Short:         "Control the sield USB storage guard",
		SilenceUsage:  true,
		SilenceErrors: true,
		// Commands annotated skipConfigLoad handle a missing or broken
		// config file themselves.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, _ []string) error { return cmd.Help() },
	}
	root.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	root.AddCommand(newDaemonCommands(ctx)...)
	root.AddCommand(
		newDaemonRunCommand(ctx),
		newHistoryCommand(ctx),
		newPendingCommand(ctx),
		newLogsCommand(ctx),
		newCheckCommand(ctx),
		newPasswdCommand(ctx),
		newConfigCommand(ctx),
	)
	return root
}
