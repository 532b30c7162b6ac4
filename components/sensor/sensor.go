// Package sensor implements the hub sensors. They occupy a port like a motor does but always
// report a fixed reading.
package sensor

import (
	"go.viam.com/fieldsim/components/port"
)

// Color is a detected colour.
type Color string

// ColorNone is reported when no colour is detected.
const ColorNone Color = "none"

// DefaultUltrasonicDistance is the distance, in mm, an ultrasonic sensor reports when it sees nothing.
const DefaultUltrasonicDistance = 2000

type base struct {
	port  port.Port
	kind  port.DeviceKind
	table *port.Table
}

func attach(table *port.Table, p port.Port, kind port.DeviceKind) (base, error) {
	b := base{port: p, kind: kind, table: table}
	return b, table.Check(p, kind)
}

func (b *base) Port() port.Port {
	return b.port
}

func (b *base) Kind() port.DeviceKind {
	return b.kind
}

// ColorSensor is a colour and reflected light sensor.
type ColorSensor struct {
	base
}

// NewColorSensor attaches a colour sensor to p.
func NewColorSensor(table *port.Table, p port.Port) (*ColorSensor, error) {
	b, err := attach(table, p, port.KindColorSensor)
	if err != nil {
		return nil, err
	}
	s := &ColorSensor{base: b}
	return s, table.Attach(s)
}

// Color returns the detected colour.
func (s *ColorSensor) Color(surface bool) Color {
	return ColorNone
}

// Reflection returns the reflected light intensity in percent.
func (s *ColorSensor) Reflection() float64 {
	return 0
}

// Ambient returns the ambient light intensity in percent.
func (s *ColorSensor) Ambient() float64 {
	return 0
}

// HSV returns the measured hue, saturation and value.
func (s *ColorSensor) HSV(surface bool) (h, sat, v float64) {
	return 0, 0, 0
}

// Close frees the sensor's port.
func (s *ColorSensor) Close() error {
	s.table.Detach(s)
	return nil
}

// ForceSensor is a push button that measures force.
type ForceSensor struct {
	base
}

// NewForceSensor attaches a force sensor to p.
func NewForceSensor(table *port.Table, p port.Port) (*ForceSensor, error) {
	b, err := attach(table, p, port.KindForceSensor)
	if err != nil {
		return nil, err
	}
	s := &ForceSensor{base: b}
	return s, table.Attach(s)
}

// Force returns the measured force in newtons.
func (s *ForceSensor) Force() float64 {
	return 0
}

// Distance returns how far the button moved, in mm.
func (s *ForceSensor) Distance() float64 {
	return 0
}

// Pressed reports whether at least force newtons are applied.
func (s *ForceSensor) Pressed(force float64) bool {
	return false
}

// Touched reports whether the button is touched at all.
func (s *ForceSensor) Touched() bool {
	return false
}

// Close frees the sensor's port.
func (s *ForceSensor) Close() error {
	s.table.Detach(s)
	return nil
}

// UltrasonicSensor measures distance to an object.
type UltrasonicSensor struct {
	base
}

// NewUltrasonicSensor attaches an ultrasonic sensor to p.
func NewUltrasonicSensor(table *port.Table, p port.Port) (*UltrasonicSensor, error) {
	b, err := attach(table, p, port.KindUltrasonicSensor)
	if err != nil {
		return nil, err
	}
	s := &UltrasonicSensor{base: b}
	return s, table.Attach(s)
}

// Distance returns the distance to the nearest object in mm.
func (s *UltrasonicSensor) Distance() float64 {
	return DefaultUltrasonicDistance
}

// Presence reports whether another ultrasonic sensor is heard.
func (s *UltrasonicSensor) Presence() bool {
	return false
}

// Close frees the sensor's port.
func (s *UltrasonicSensor) Close() error {
	s.table.Detach(s)
	return nil
}
