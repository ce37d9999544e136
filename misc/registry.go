// Package misc keeps control surfaces registered under node names, standing in
// for the misc device class of the host.
package misc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/mklimuk/tsl2561/device"
)

var (
	ErrExists   = errors.New("node already registered")
	ErrNotFound = errors.New("node not registered")
	ErrNoDevice = errors.New("device or kernel module unavailable")
	ErrClosed   = errors.New("file already closed")
)

// opener is implemented by controllers that want to observe open and release.
type opener interface {
	Open(ctx context.Context) error
	Release(ctx context.Context) error
}

type Registry struct {
	mx    sync.RWMutex
	nodes map[string]device.Controller
}

var _ device.Registrar = &Registry{}

func NewRegistry() *Registry {
	return &Registry{nodes: make(map[string]device.Controller)}
}

func (r *Registry) Register(name string, c device.Controller) error {
	r.mx.Lock()
	defer r.mx.Unlock()
	if _, ok := r.nodes[name]; ok {
		return fmt.Errorf("%w: %s", ErrExists, name)
	}
	r.nodes[name] = c
	slog.Debug("misc node registered", "node", name)
	return nil
}

func (r *Registry) Deregister(name string) error {
	r.mx.Lock()
	defer r.mx.Unlock()
	if _, ok := r.nodes[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	delete(r.nodes, name)
	slog.Debug("misc node deregistered", "node", name)
	return nil
}

// Nodes returns registered node names in order.
func (r *Registry) Nodes() []string {
	r.mx.RLock()
	defer r.mx.RUnlock()
	res := make([]string, 0, len(r.nodes))
	for name := range r.nodes {
		res = append(res, name)
	}
	sort.Strings(res)
	return res
}

// Open returns a file bound to the controller registered under name.
func (r *Registry) Open(ctx context.Context, name string) (*File, error) {
	r.mx.RLock()
	c, ok := r.nodes[name]
	r.mx.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: /dev/%s", ErrNoDevice, name)
	}
	if o, ok := c.(opener); ok {
		if err := o.Open(ctx); err != nil {
			return nil, fmt.Errorf("could not open %s: %w", name, err)
		}
	}
	return &File{name: name, ctrl: c}, nil
}

// File is an open handle on a node. It keeps the controller it was opened with
// even if the node is deregistered afterwards.
type File struct {
	mx     sync.Mutex
	name   string
	ctrl   device.Controller
	closed bool
}

func (f *File) Name() string {
	return f.name
}

func (f *File) Ioctl(ctx context.Context, cmd uint32, arg uint64) (int64, error) {
	f.mx.Lock()
	closed := f.closed
	f.mx.Unlock()
	if closed {
		return 0, ErrClosed
	}
	return f.ctrl.Ioctl(ctx, cmd, arg)
}

func (f *File) Close(ctx context.Context) error {
	f.mx.Lock()
	defer f.mx.Unlock()
	if f.closed {
		return ErrClosed
	}
	f.closed = true
	if o, ok := f.ctrl.(opener); ok {
		return o.Release(ctx)
	}
	return nil
}
