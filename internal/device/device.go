package device

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"usbprobridge/internal/dmx"
	"usbprobridge/internal/logger"
)

// ErrDuplicate is returned when a device with the same name is already registered.
var ErrDuplicate = errors.New("device already registered")

// ErrNotFound is returned for an unknown device name.
var ErrNotFound = errors.New("device not found")

// InputPort delivers DMX received by a device.
type InputPort interface {
	PortID() string
	// ReadDMX returns the latest universe received on the port.
	ReadDMX() dmx.Buffer
	// OnChange sets the single function called with every new universe.
	OnChange(cb func(dmx.Buffer))
}

// OutputPort sends DMX out of a device.
type OutputPort interface {
	PortID() string
	WriteDMX(b *dmx.Buffer) error
}

// Device is a piece of hardware with DMX ports.
type Device interface {
	Name() string
	InputPorts() []InputPort
	OutputPorts() []OutputPort
	Close() error
}

// Registry holds the running devices.
type Registry struct {
	log     *logger.Log
	mu      sync.Mutex
	devices map[string]Device
}

// NewRegistry конструктор.
func NewRegistry(log logger.Logger) *Registry {
	return &Registry{
		log:     log.With(logger.Fields{"module": "device"}),
		devices: map[string]Device{},
	}
}

// Register adds a device.
func (r *Registry) Register(d Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.devices[d.Name()]; ok {
		return fmt.Errorf("register %s: %w", d.Name(), ErrDuplicate)
	}
	r.devices[d.Name()] = d
	r.log.Infof("registered device %s: %d input ports, %d output ports",
		d.Name(), len(d.InputPorts()), len(d.OutputPorts()))
	return nil
}

// Unregister removes a device and closes it.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	d, ok := r.devices[name]
	delete(r.devices, name)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("unregister %s: %w", name, ErrNotFound)
	}
	r.log.Infof("unregistered device %s", name)
	return d.Close()
}

// Get returns a registered device by name.
func (r *Registry) Get(name string) (Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[name]
	return d, ok
}

// Names returns the registered device names, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.devices))
	for name := range r.devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CloseAll unregisters every device. Errors are logged and the first one returned.
func (r *Registry) CloseAll() error {
	var first error
	for _, name := range r.Names() {
		if err := r.Unregister(name); err != nil {
			r.log.Errorf("failed to close device %s: %v", name, err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}
