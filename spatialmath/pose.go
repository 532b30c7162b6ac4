// Package spatialmath contains the planar poses and box geometry used to place the robot and the
// field obstacles.
package spatialmath

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"

	"go.viam.com/fieldsim/utils"
)

// Pose is a position on the field plane, in inches, with a heading in degrees measured
// counterclockwise from the +X axis.
type Pose struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta"`
}

// NewPose returns the pose at (x, y) with heading theta.
func NewPose(x, y, theta float64) Pose {
	return Pose{X: x, Y: y, Theta: theta}
}

// Point returns the pose's position on the plane z = 0.
func (p Pose) Point() r3.Vector {
	return r3.Vector{X: p.X, Y: p.Y}
}

// Heading returns the unit vector the pose faces.
func (p Pose) Heading() r3.Vector {
	s, c := math.Sincos(utils.DegToRad(p.Theta))
	return r3.Vector{X: c, Y: s}
}

// Rotate rotates v about the Z axis by the pose's heading.
func (p Pose) Rotate(v r3.Vector) r3.Vector {
	s, c := math.Sincos(utils.DegToRad(p.Theta))
	return r3.Vector{X: v.X*c - v.Y*s, Y: v.X*s + v.Y*c, Z: v.Z}
}

// Transform maps v from the frame described by p into the field frame.
func (p Pose) Transform(v r3.Vector) r3.Vector {
	return p.Rotate(v).Add(p.Point())
}

// Compose returns the field pose of other, which is expressed in the frame of p.
func (p Pose) Compose(other Pose) Pose {
	pt := p.Transform(other.Point())
	return Pose{X: pt.X, Y: pt.Y, Theta: p.Theta + other.Theta}
}

// AlmostEqual compares two poses component-wise within eps.
func (p Pose) AlmostEqual(other Pose, eps float64) bool {
	return utils.Float64AlmostEqual(p.X, other.X, eps) &&
		utils.Float64AlmostEqual(p.Y, other.Y, eps) &&
		utils.Float64AlmostEqual(p.Theta, other.Theta, eps)
}

// IsFinite reports whether every component is a finite number.
func (p Pose) IsFinite() bool {
	return utils.IsFinite(p.X, p.Y, p.Theta)
}

func (p Pose) String() string {
	return fmt.Sprintf("(%.3f, %.3f, %.2f°)", p.X, p.Y, p.Theta)
}
