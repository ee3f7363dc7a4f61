package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/user"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"sield/internal/config"
	"sield/internal/logging"
)

var errNotTerminal = errors.New("sld must be run from a terminal")

func execute(ctx context.Context, args []string) int {
	cmd := newRootCommand(newTerminalClient())
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(cmd.ErrOrStderr(), err)
		}
		return 1
	}
	return 0
}

func newRootCommand(c *client) *cobra.Command {
	var configPath string
	var dir string

	cmd := &cobra.Command{
		Use:           "sld",
		Short:         "Unlock a USB storage device guarded by sield",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c.in = cmd.InOrStdin()
			c.out = cmd.OutOrStdout()
			if strings.TrimSpace(dir) == "" {
				cfg, _, _, err := config.Load(strings.TrimSpace(configPath))
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				dir = cfg.Daemon.FIFODir
				if logger, err := logging.NewFromConfig(cfg); err == nil {
					c.logger = logging.NewComponentLogger(logger, "sld")
				}
			}
			return c.run(dir)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Configuration file path")
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Directory holding the authentication pipes (overrides daemon.fifo_dir)")
	return cmd
}

// newTerminalClient wires the client to the controlling terminal on stdin.
func newTerminalClient() *client {
	return &client{
		logger: logging.NewNop(),
		identity: func() (string, string, error) {
			if !isatty.IsTerminal(os.Stdin.Fd()) {
				return "", "", errNotTerminal
			}
			u, err := user.Current()
			if err != nil {
				return "", "", fmt.Errorf("can't verify your credentials: %w", err)
			}
			tty, err := os.Readlink("/proc/self/fd/0")
			if err != nil {
				return "", "", fmt.Errorf("resolve terminal: %w", err)
			}
			return u.Username, tty, nil
		},
		readPassword: func() ([]byte, error) {
			return term.ReadPassword(int(os.Stdin.Fd()))
		},
	}
}
