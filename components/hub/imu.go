// Package hub contains the simulated hub's built-in devices.
package hub

import (
	"sync"
)

// Axis selects a rotation axis.
type Axis int

// The IMU axes.
const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

// IMU is the hub's inertial measurement unit. Its heading is synthesised from the robot's field
// heading: the reading is offset minus the field heading, so it grows clockwise like a real gyro
// while field angles grow counterclockwise.
type IMU struct {
	mu           sync.Mutex
	offset       float64
	fieldHeading float64
}

// NewIMU returns an IMU reading 0 for a robot at the given field heading.
func NewIMU(fieldHeading float64) *IMU {
	imu := &IMU{}
	imu.Reset(fieldHeading)
	return imu
}

// Reset makes the current field heading read as 0.
func (imu *IMU) Reset(fieldHeading float64) {
	imu.mu.Lock()
	defer imu.mu.Unlock()
	imu.offset = fieldHeading
	imu.fieldHeading = fieldHeading
}

// Sync records the robot's latest committed field heading.
func (imu *IMU) Sync(fieldHeading float64) {
	imu.mu.Lock()
	defer imu.mu.Unlock()
	imu.fieldHeading = fieldHeading
}

// Heading returns the accumulated heading in degrees.
func (imu *IMU) Heading() float64 {
	imu.mu.Lock()
	defer imu.mu.Unlock()
	return imu.offset - imu.fieldHeading
}

// ResetHeading re-bases the heading so that it currently reads angle.
func (imu *IMU) ResetHeading(angle float64) {
	imu.mu.Lock()
	defer imu.mu.Unlock()
	imu.offset = angle + imu.fieldHeading
}

// Rotation returns the rotation about axis. Only the Z axis ever turns.
func (imu *IMU) Rotation(axis Axis) float64 {
	if axis != AxisZ {
		return 0
	}
	return imu.Heading()
}

// Ready always returns true.
func (imu *IMU) Ready() bool {
	return true
}

// Stationary always returns true.
func (imu *IMU) Stationary() bool {
	return true
}

// Tilt returns pitch and roll, which are always 0 on a flat field.
func (imu *IMU) Tilt() (pitch, roll float64) {
	return 0, 0
}
