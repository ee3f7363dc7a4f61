// Command sieldd is the sield daemon. It guards USB storage devices until an
// authorized user supplies the unlock password.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"sield/internal/config"
	"sield/internal/daemonrun"
)

func main() {
	os.Exit(execute(context.Background(), os.Args[1:]))
}

func execute(ctx context.Context, args []string) int {
	code := 0
	cmd := newCommand(&code)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "sieldd:", err)
		}
		if code == 0 {
			code = 1
		}
	}
	return code
}

func newCommand(code *int) *cobra.Command {
	var configPath string
	var opts daemonrun.Options

	cmd := &cobra.Command{
		Use:           "sieldd",
		Short:         "Guard USB storage devices behind a password",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, _, err := config.Load(strings.TrimSpace(configPath))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			opts.ConfigPath = path
			status, err := daemonrun.Run(cmd.Context(), cfg, opts)
			*code = status
			return err
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Configuration file path")
	cmd.Flags().BoolVarP(&opts.Foreground, "foreground", "f", false, "Stay attached to the terminal and log to stdout")
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
	return cmd
}
