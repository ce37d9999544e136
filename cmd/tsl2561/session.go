package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/urfave/cli/v2"
	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"
	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/tsl2561"
	"github.com/mklimuk/tsl2561/adapter"
	"github.com/mklimuk/tsl2561/cmd/tsl2561/console"
	"github.com/mklimuk/tsl2561/config"
	"github.com/mklimuk/tsl2561/device"
	"github.com/mklimuk/tsl2561/i2c"
	"github.com/mklimuk/tsl2561/misc"
	"github.com/mklimuk/tsl2561/protocol"
	"github.com/mklimuk/tsl2561/sim"
	"github.com/mklimuk/tsl2561/tslctx"
)

// session is one probed sensor reachable through its misc node.
type session struct {
	cfg      config.Config
	registry *misc.Registry
	driver   *device.Driver
	client   device.Client
	file     *misc.File
	closers  []func() error
}

// loadConfig merges the config file with global flags.
func loadConfig(c *cli.Context) (config.Config, error) {
	var opts []config.Option
	if a := c.String("adapter"); a != "" {
		opts = append(opts, config.WithAdapter(a))
	}
	if d := c.String("device"); d != "" {
		opts = append(opts, config.WithDevice(d))
	}
	if b := c.Int("bus"); b >= 0 {
		opts = append(opts, config.WithBus(b))
	}
	if a := c.String("addr"); a != "" {
		addr, err := strconv.ParseUint(a, 0, 7)
		if err != nil {
			return config.Config{}, fmt.Errorf("invalid address %q: %w", a, err)
		}
		opts = append(opts, config.WithAddress(uint16(addr)))
	}
	return config.Load(c.String("config"), opts...)
}

func openSession(c *cli.Context) (*session, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	return startSession(tslctx.SetVerbose(c.Context, c.Bool("verbose")), cfg)
}

// startSession opens the configured bus and binds a driver to it.
func startSession(ctx context.Context, cfg config.Config) (*session, error) {
	s := &session{cfg: cfg, registry: misc.NewRegistry()}
	bus, err := s.openBus(ctx)
	if err != nil {
		s.close(ctx)
		return nil, fmt.Errorf("adapter initialization error: %w", err)
	}
	logger := slog.Default().With("adapter", cfg.Adapter)
	s.driver = device.NewDriver(s.registry,
		device.WithNodeName(cfg.Node),
		device.WithDriverLogger(logger),
		device.WithHandlerOptions(device.WithLogger(logger.With("node", cfg.Node))),
	)
	s.client = device.Client{
		Name: fmt.Sprintf("%s-%04x", cfg.Adapter, cfg.Address),
		Addr: cfg.Address,
		Bus:  bus,
	}
	err = s.driver.Probe(ctx, s.client)
	if err != nil {
		s.close(ctx)
		return nil, err
	}
	s.file, err = s.registry.Open(ctx, cfg.Node)
	if err != nil {
		s.close(ctx)
		return nil, err
	}
	return s, nil
}

func (s *session) openBus(ctx context.Context) (tsl2561.Bus, error) {
	switch s.cfg.Adapter {
	case config.AdapterGeneric:
		bus, err := i2c.NewGenericBus(s.cfg.Device)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, bus.Close)
		if s.cfg.SpeedHz > 0 {
			if err := bus.SetSpeed(physic.Frequency(s.cfg.SpeedHz) * physic.Hertz); err != nil {
				slog.Warn("could not set bus speed", "speed", s.cfg.SpeedHz, "error", err)
			}
		}
		return bus, nil
	case config.AdapterRDWR:
		var opts []i2c.RDWROpt
		if s.cfg.BlockReads {
			opts = append(opts, i2c.WithBlockReads())
		}
		bus, err := i2c.NewRDWRBus(s.cfg.Device, opts...)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, bus.Close)
		return bus, nil
	case config.AdapterNanoPi:
		npi := nanopi.NewNeoAdaptor()
		if err := npi.Connect(); err != nil {
			return nil, fmt.Errorf("adaptor connect error: %w", err)
		}
		s.closers = append(s.closers, npi.Finalize)
		bus := i2c.NewGobotBus(npi, s.cfg.Bus)
		s.closers = append(s.closers, bus.Close)
		return tsl2561.Sequential(bus), nil
	case config.AdapterMCP2221:
		bridge := adapter.NewMCP2221()
		speed := s.cfg.SpeedHz
		if speed == 0 {
			speed = 100_000
		}
		if err := bridge.SetSpeed(ctx, speed); err != nil {
			return nil, err
		}
		return bridge, nil
	case config.AdapterSim:
		return sim.NewTSL2561(sim.WithAddress(s.cfg.Address)), nil
	}
	return nil, fmt.Errorf("unknown adapter %q", s.cfg.Adapter)
}

// ioctl sends a command through the control surface of the open node.
func (s *session) ioctl(ctx context.Context, cmd protocol.Command) (int64, error) {
	return s.file.Ioctl(ctx, protocol.CommandCode, cmd.Encode())
}

func (s *session) close(ctx context.Context) {
	var errs []error
	if s.file != nil {
		errs = append(errs, s.file.Close(ctx))
	}
	if s.driver != nil && s.driver.Handler() != nil {
		errs = append(errs, s.driver.Remove(ctx, s.client))
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	if err := errors.Join(errs...); err != nil {
		slog.Warn("session teardown", "error", err)
	}
}

// withSession opens a session for the duration of action.
func withSession(action func(c *cli.Context, s *session) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		s, err := openSession(c)
		if err != nil {
			return cliError(err)
		}
		defer s.close(c.Context)
		return action(c, s)
	}
}

func cliError(err error) cli.ExitCoder {
	if errors.Is(err, misc.ErrNoDevice) {
		return console.Exit(2, "%v", err)
	}
	return console.Exit(1, "%v", err)
}
