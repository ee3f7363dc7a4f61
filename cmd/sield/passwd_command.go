package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"sield/internal/credential"
	"sield/internal/logging"
)

var errPasswordUnchanged = errors.New("password unchanged")

func newPasswdCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "passwd",
		Short: "Change the password that unlocks devices",
		Long: "Change the password that unlocks devices. Until one is set, the " +
			"superuser's login password is used.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := logging.NewComponentLogger(ctx.fileLogger(), "passwd")
			store := credential.NewStore(cfg, logger)
			return changePassword(cmd, ctx, store)
		},
	}
}

type passwordStore interface {
	Verify(ctx context.Context, password []byte) (bool, error)
	Set(password []byte) error
}

func changePassword(cmd *cobra.Command, ctx *commandContext, store passwordStore) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Changing password for sield")

	current, err := ctx.readSecret(cmd, "(current) password: ")
	if err != nil {
		return err
	}
	defer clear(current)

	ok, err := store.Verify(cmd.Context(), current)
	if err != nil {
		return fmt.Errorf("verify current password: %w", err)
	}
	if !ok {
		return fmt.Errorf("authentication failure: %w", errPasswordUnchanged)
	}

	first, err := ctx.readSecret(cmd, "Enter new password: ")
	if err != nil {
		return err
	}
	defer clear(first)
	second, err := ctx.readSecret(cmd, "Retype new password: ")
	if err != nil {
		return err
	}
	defer clear(second)

	switch {
	case len(first) == 0:
		return fmt.Errorf("empty password: %w", errPasswordUnchanged)
	case !bytes.Equal(first, second):
		return fmt.Errorf("passwords do not match: %w", errPasswordUnchanged)
	case bytes.Equal(first, current):
		fmt.Fprintln(out, "Password unchanged")
		return nil
	}

	if err := store.Set(first); err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	fmt.Fprintln(out, "Password updated successfully")
	return nil
}
