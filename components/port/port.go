// Package port contains the hub's port table. Each of the six ports A through F holds at most one
// attached device.
package port

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Port is a hub attachment point, numbered 0 (A) through 5 (F).
type Port int

// The hub ports.
const (
	A Port = iota
	B
	C
	D
	E
	F
)

// Count is the number of ports on the hub.
const Count = 6

// Valid reports whether p names a port on the hub.
func (p Port) Valid() bool {
	return p >= A && p <= F
}

func (p Port) String() string {
	if !p.Valid() {
		return fmt.Sprintf("Port(%d)", int(p))
	}
	return string(rune('A' + int(p)))
}

// Parse converts a port letter, in either case, into a Port.
func Parse(name string) (Port, error) {
	name = strings.TrimSpace(name)
	if len(name) != 1 {
		return -1, &PortError{Kind: InvalidPort, Name: name}
	}
	p := Port(strings.ToUpper(name)[0] - 'A')
	if !p.Valid() {
		return -1, &PortError{Kind: InvalidPort, Name: name}
	}
	return p, nil
}

// MustParse is like Parse but panics on an invalid name.
func MustParse(name string) Port {
	p, err := Parse(name)
	if err != nil {
		panic(err)
	}
	return p
}

// DeviceKind names the type of device attached to a port.
type DeviceKind int

// The attachable device kinds.
const (
	KindNone DeviceKind = iota
	KindMotor
	KindColorSensor
	KindForceSensor
	KindUltrasonicSensor
)

func (k DeviceKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindMotor:
		return "motor"
	case KindColorSensor:
		return "color sensor"
	case KindForceSensor:
		return "force sensor"
	case KindUltrasonicSensor:
		return "ultrasonic sensor"
	default:
		return fmt.Sprintf("DeviceKind(%d)", int(k))
	}
}

// A Device is anything that can occupy a port.
type Device interface {
	Port() Port
	Kind() DeviceKind
}

// Table tracks which device is attached to each port. It is safe for concurrent use.
type Table struct {
	mu      sync.RWMutex
	devices [Count]Device
}

// NewTable returns an empty port table.
func NewTable() *Table {
	return &Table{}
}

// Check returns the error Attach would return for a device of the given kind on p, without
// attaching anything.
func (t *Table) Check(p Port, kind DeviceKind) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.check(p, kind)
}

func (t *Table) check(p Port, kind DeviceKind) error {
	if !p.Valid() {
		return &PortError{Kind: InvalidPort, Port: p, Device: kind}
	}
	if t.devices[p] != nil {
		return &PortError{Kind: PortAlreadyInUse, Port: p, Device: kind, Occupant: t.devices[p].Kind()}
	}
	return nil
}

// Attach places dev on its port.
func (t *Table) Attach(dev Device) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.check(dev.Port(), dev.Kind()); err != nil {
		return err
	}
	t.devices[dev.Port()] = dev
	return nil
}

// Detach frees the port held by dev. Detaching a device that no longer owns its port does nothing.
func (t *Table) Detach(dev Device) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := dev.Port()
	if p.Valid() && t.devices[p] == dev {
		t.devices[p] = nil
	}
}

// Get returns the device on p, or nil if the port is free or invalid.
func (t *Table) Get(p Port) Device {
	if !p.Valid() {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.devices[p]
}

// Devices returns the attached devices in port order.
func (t *Table) Devices() []Device {
	t.mu.RLock()
	defer t.mu.RUnlock()
	devs := make([]Device, 0, Count)
	for _, dev := range t.devices {
		if dev != nil {
			devs = append(devs, dev)
		}
	}
	return devs
}

// Clear detaches every device and returns what was attached, in port order.
func (t *Table) Clear() []Device {
	t.mu.Lock()
	defer t.mu.Unlock()
	devs := make([]Device, 0, Count)
	for i, dev := range t.devices {
		if dev != nil {
			devs = append(devs, dev)
		}
		t.devices[i] = nil
	}
	return devs
}

// ErrorKind distinguishes the port errors.
type ErrorKind int

// The port error kinds.
const (
	InvalidPort ErrorKind = iota
	PortAlreadyInUse
)

var (
	// ErrInvalidPort matches, via errors.Is, any PortError for a port that does not exist.
	ErrInvalidPort = errors.New("invalid port")
	// ErrPortInUse matches, via errors.Is, any PortError for a port that is already occupied.
	ErrPortInUse = errors.New("port already in use")
)

// PortError is returned when a device can not be attached to a port.
type PortError struct {
	Kind     ErrorKind
	Port     Port
	Name     string
	Device   DeviceKind
	Occupant DeviceKind
}

func (e *PortError) Error() string {
	switch e.Kind {
	case PortAlreadyInUse:
		return fmt.Sprintf("cannot attach %s: port %s already in use by a %s", e.Device, e.Port, e.Occupant)
	default:
		if e.Name != "" {
			return fmt.Sprintf("invalid port %q", e.Name)
		}
		if e.Device != KindNone {
			return fmt.Sprintf("cannot attach %s: invalid port %d", e.Device, int(e.Port))
		}
		return fmt.Sprintf("invalid port %d", int(e.Port))
	}
}

// Is lets errors.Is match a PortError against ErrInvalidPort or ErrPortInUse.
func (e *PortError) Is(target error) bool {
	switch target {
	case ErrInvalidPort:
		return e.Kind == InvalidPort
	case ErrPortInUse:
		return e.Kind == PortAlreadyInUse
	default:
		return false
	}
}
