// Package hotplug turns udev netlink traffic into device events and
// enumerates devices already attached at startup.
package hotplug

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/crawler"
	"github.com/pilebones/go-udev/netlink"

	"sield/internal/device"
	"sield/internal/logging"
)

// Source yields device events and the list of attached devices.
type Source interface {
	Events(ctx context.Context) (<-chan device.Event, error)
	Existing(ctx context.Context) ([]device.Device, error)
	Close() error
}

// NetlinkSource is the udev-backed Source.
type NetlinkSource struct {
	resolver *device.Resolver
	logger   *slog.Logger

	mu   sync.Mutex
	conn *netlink.UEventConn
}

// NewNetlinkSource builds a source using resolver to complete device data.
func NewNetlinkSource(resolver *device.Resolver, logger *slog.Logger) *NetlinkSource {
	if resolver == nil {
		resolver = device.NewResolver()
	}
	return &NetlinkSource{
		resolver: resolver,
		logger:   logging.NewComponentLogger(logger, "hotplug"),
	}
}

// Connect opens the udev netlink socket. Failure here is fatal to startup.
func (s *NetlinkSource) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return nil
	}
	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		return fmt.Errorf("connect udev netlink socket: %w", err)
	}
	s.conn = conn
	return nil
}

// Events starts monitoring and returns a channel closed when ctx ends.
func (s *NetlinkSource) Events(ctx context.Context) (<-chan device.Event, error) {
	if err := s.Connect(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	out := make(chan device.Event)
	monitorQuit := conn.Monitor(queue, errs, blockMatcher())

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				close(monitorQuit)
				return
			case uevent := <-queue:
				event, ok := s.translate(uevent)
				if !ok {
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					close(monitorQuit)
					return
				}
			case err := <-errs:
				logging.WarnWithContext(s.logger, "netlink monitor error", "netlink_monitor_error",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
					logging.String(logging.FieldImpact, "device detection may miss events"),
				)
			}
		}
	}()

	s.logger.Info("netlink monitor started",
		logging.String(logging.FieldEventType, "netlink_monitor_started"),
	)
	return out, nil
}

// Existing enumerates block devices currently present in sysfs.
func (s *NetlinkSource) Existing(ctx context.Context) ([]device.Device, error) {
	queue := make(chan crawler.Device)
	errs := make(chan error, 1)
	quit := crawler.ExistingDevices(queue, errs, existingMatcher())

	var devices []device.Device
	for {
		select {
		case <-ctx.Done():
			close(quit)
			return devices, ctx.Err()
		case dev, ok := <-queue:
			if !ok {
				select {
				case err := <-errs:
					return devices, fmt.Errorf("enumerate devices: %w", err)
				default:
				}
				return devices, nil
			}
			env := make(map[string]string, len(dev.Env)+1)
			for k, v := range dev.Env {
				env[k] = v
			}
			if env["DEVPATH"] == "" {
				env["DEVPATH"] = strings.TrimPrefix(dev.KObj, "/sys")
			}
			devices = append(devices, s.resolver.Resolve(env))
		}
	}
}

// Close releases the netlink socket.
func (s *NetlinkSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

func (s *NetlinkSource) translate(uevent netlink.UEvent) (device.Event, bool) {
	action := device.Action(strings.ToLower(string(uevent.Action)))
	switch action {
	case device.ActionAdd, device.ActionRemove:
	default:
		return device.Event{}, false
	}
	env := make(map[string]string, len(uevent.Env)+1)
	for k, v := range uevent.Env {
		env[k] = v
	}
	if env["DEVPATH"] == "" {
		env["DEVPATH"] = uevent.KObj
	}
	var dev device.Device
	if action == device.ActionRemove {
		dev = device.FromEnv(env)
	} else {
		dev = s.resolver.Resolve(env)
	}
	if dev.DevNode == "" {
		s.logger.Debug("ignoring event without device node",
			logging.String("action", string(action)),
			logging.String("kobj", uevent.KObj),
		)
		return device.Event{}, false
	}
	return device.Event{Device: dev, Action: action}, true
}

func blockMatcher() netlink.Matcher {
	action := "add|remove"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "block",
		},
	})
	return rules
}

func existingMatcher() netlink.Matcher {
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Env: map[string]string{
			"DEVTYPE": "^(partition|disk)$",
		},
	})
	return rules
}
