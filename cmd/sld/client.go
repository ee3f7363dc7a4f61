package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"sield/internal/ipc"
	"sield/internal/logging"
)

var (
	errNoDevices     = errors.New("no unattended devices")
	errInvalidChoice = errors.New("invalid choice")
	errUnavailable   = errors.New("Device currently unavailable. Try again.") //nolint:staticcheck
)

type client struct {
	in     io.Reader
	out    io.Writer
	logger *slog.Logger

	// identity returns the invoking user and terminal device.
	identity     func() (user, tty string, err error)
	readPassword func() ([]byte, error)
}

func (c *client) run(dir string) error {
	username, tty, err := c.identity()
	if err != nil {
		return err
	}
	c.logger.Info("client started",
		logging.String(logging.FieldEventType, "client_started"),
		logging.String("user", username),
		logging.String("tty", tty),
	)

	pending, err := ipc.ListPending(dir)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return errNoDevices
	}

	fmt.Fprintln(c.out, renderDevices(pending))
	choice, err := c.choose(len(pending))
	if err != nil {
		return err
	}
	target := pending[choice]

	fmt.Fprint(c.out, "password: ")
	password, err := c.readPassword()
	fmt.Fprintln(c.out)
	if err != nil {
		return fmt.Errorf("unable to get password: %w", err)
	}

	req := ipc.NewAuthRequest(tty, username, password)
	defer req.Wipe()
	if err := ipc.Submit(target.Path, req); err != nil {
		if errors.Is(err, ipc.ErrPipeBusy) {
			logging.WarnWithContext(c.logger, "pipe has no reader", "client_pipe_busy",
				logging.String("device", target.Name),
				logging.String(logging.FieldErrorHint, "another user may be running sld"),
			)
			return errUnavailable
		}
		return fmt.Errorf("send password: %w", err)
	}
	c.logger.Info("password submitted",
		logging.String(logging.FieldEventType, "client_submitted"),
		logging.String("device", target.Name),
		logging.String("user", username),
	)
	return nil
}

// choose returns a zero-based index. A single device is picked without asking.
func (c *client) choose(count int) (int, error) {
	if count == 1 {
		return 0, nil
	}
	fmt.Fprint(c.out, "Enter your choice: ")
	line, err := bufio.NewReader(c.in).ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return 0, errInvalidChoice
	}
	n, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil || n < 1 || n > count {
		return 0, errInvalidChoice
	}
	return n - 1, nil
}

func renderDevices(pending []ipc.PendingDevice) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.SetTitle("Devices")
	tw.AppendHeader(table.Row{"#", "Device"})
	for i, p := range pending {
		tw.AppendRow(table.Row{i + 1, p.Name})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{{Number: 1, Align: text.AlignRight}})
	return tw.Render()
}
