package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/mklimuk/tsl2561"
)

const (
	// NodeName is the name the control surface is registered under.
	NodeName = "tsl2561"
	// Compatible is the device tree compatible string matched by the driver.
	Compatible = "mse,tsl2561"
)

var (
	ErrAlreadyBound = errors.New("driver already bound to a device")
	ErrNotBound     = errors.New("driver not bound")
	ErrNoBus        = errors.New("client has no bus")
)

// Registrar publishes control surfaces under a node name. It is supplied by the
// platform, e.g. misc.Registry.
type Registrar interface {
	Register(name string, c Controller) error
	Deregister(name string) error
}

// Client describes the sensor a driver is probed with.
type Client struct {
	Name string
	Addr uint16
	Bus  tsl2561.Bus
}

// Driver binds a Handler to a probed client and publishes it through the Registrar.
// It serves one sensor at a time.
type Driver struct {
	mx        sync.Mutex
	registrar Registrar
	node      string
	opts      []Option
	logger    *slog.Logger
	handler   *Handler
	client    Client
}

type DriverOpt func(*Driver)

// WithNodeName overrides the node the control surface is published under.
func WithNodeName(name string) DriverOpt {
	return func(d *Driver) {
		d.node = name
	}
}

// WithHandlerOptions passes options to every handler created on probe.
func WithHandlerOptions(opts ...Option) DriverOpt {
	return func(d *Driver) {
		d.opts = append(d.opts, opts...)
	}
}

func WithDriverLogger(logger *slog.Logger) DriverOpt {
	return func(d *Driver) {
		d.logger = logger
	}
}

func NewDriver(registrar Registrar, opts ...DriverOpt) *Driver {
	d := &Driver{
		registrar: registrar,
		node:      NodeName,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Compatible lists the compatible strings the driver binds to.
func (d *Driver) Compatible() []string {
	return []string{Compatible}
}

// Matches reports whether the driver handles the given compatible string.
func (d *Driver) Matches(compatible string) bool {
	return slices.Contains(d.Compatible(), compatible)
}

// Probe creates the handler for client and registers its control surface.
func (d *Driver) Probe(ctx context.Context, client Client) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if d.handler != nil {
		return fmt.Errorf("%w: %s", ErrAlreadyBound, d.client.Name)
	}
	if client.Bus == nil {
		return ErrNoBus
	}
	opts := append([]Option{WithLogger(d.logger)}, d.opts...)
	if client.Addr != 0 {
		opts = append(opts, WithAddress(client.Addr))
	}
	handler := NewHandler(client.Bus, opts...)
	err := d.registrar.Register(d.node, handler)
	if err != nil {
		d.logger.Error("could not register misc device", "node", d.node, "error", err)
		return fmt.Errorf("could not register %s: %w", d.node, err)
	}
	d.handler = handler
	d.client = client
	d.logger.Info("registered misc device", "node", d.node, "client", client.Name, "addr", fmt.Sprintf("%#02x", handler.Address()))
	return nil
}

// Remove deregisters the control surface and releases the client.
func (d *Driver) Remove(ctx context.Context, client Client) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if d.handler == nil {
		return ErrNotBound
	}
	err := d.registrar.Deregister(d.node)
	if err != nil {
		return fmt.Errorf("could not deregister %s: %w", d.node, err)
	}
	d.handler = nil
	d.client = Client{}
	d.logger.Info("unregistered misc device", "node", d.node, "client", client.Name)
	return nil
}

// Handler returns the bound handler, or nil.
func (d *Driver) Handler() *Handler {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.handler
}
