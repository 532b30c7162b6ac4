package spatialmath

import (
	"fmt"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// Geometry is a solid made of one or more boxes, described in its own frame.
type Geometry interface {
	Label() string
	// OrientedBoxes returns the boxes of the geometry when its frame is placed at pose.
	OrientedBoxes(pose Pose) []OrientedBox
}

// OrientedBox is a box in field coordinates.
type OrientedBox struct {
	Center   r3.Vector
	Axes     [3]r3.Vector
	HalfSize r3.Vector
}

// Vertices returns the eight corners of the box.
func (b OrientedBox) Vertices() []r3.Vector {
	out := make([]r3.Vector, 0, 8)
	for _, sx := range []float64{-1, 1} {
		for _, sy := range []float64{-1, 1} {
			for _, sz := range []float64{-1, 1} {
				out = append(out, b.Center.
					Add(b.Axes[0].Mul(sx*b.HalfSize.X)).
					Add(b.Axes[1].Mul(sy*b.HalfSize.Y)).
					Add(b.Axes[2].Mul(sz*b.HalfSize.Z)))
			}
		}
	}
	return out
}

// Box is a rectangular prism placed in its owning frame by a planar offset and a height.
type Box struct {
	offset   Pose
	z        float64
	halfSize r3.Vector
	label    string
}

// NewBox returns a box of the given full dimensions. center is the box center's position in the
// owning frame, with center.Z its height above the plane, and yaw its rotation in degrees.
func NewBox(center r3.Vector, yaw float64, dims r3.Vector, label string) (*Box, error) {
	if dims.X <= 0 || dims.Y <= 0 || dims.Z <= 0 {
		return nil, newBadGeometryDimensionsError(label, dims)
	}
	return &Box{
		offset:   Pose{X: center.X, Y: center.Y, Theta: yaw},
		z:        center.Z,
		halfSize: dims.Mul(0.5),
		label:    label,
	}, nil
}

// Label returns the label of the box.
func (b *Box) Label() string {
	return b.label
}

// Dims returns the full dimensions of the box.
func (b *Box) Dims() r3.Vector {
	return b.halfSize.Mul(2)
}

// OrientedBoxes places the box at pose.
func (b *Box) OrientedBoxes(pose Pose) []OrientedBox {
	placed := pose.Compose(b.offset)
	center := placed.Point()
	center.Z = b.z
	return []OrientedBox{{
		Center:   center,
		Axes:     [3]r3.Vector{placed.Rotate(r3.Vector{X: 1}), placed.Rotate(r3.Vector{Y: 1}), {Z: 1}},
		HalfSize: b.halfSize,
	}}
}

func (b *Box) String() string {
	dims := b.Dims()
	return fmt.Sprintf("box %q at %s z=%.2f dims %.2fx%.2fx%.2f", b.label, b.offset, b.z, dims.X, dims.Y, dims.Z)
}

// Compound is a geometry made of several parts sharing one frame.
type Compound struct {
	label string
	parts []Geometry
}

// NewCompound returns a geometry made of parts. It fails if parts is empty.
func NewCompound(label string, parts ...Geometry) (*Compound, error) {
	if len(parts) == 0 {
		return nil, errors.Errorf("geometry %q needs at least one part", label)
	}
	return &Compound{label: label, parts: parts}, nil
}

// Label returns the label of the compound.
func (c *Compound) Label() string {
	return c.label
}

// Parts returns the parts of the compound.
func (c *Compound) Parts() []Geometry {
	return c.parts
}

// OrientedBoxes returns the boxes of every part placed at pose.
func (c *Compound) OrientedBoxes(pose Pose) []OrientedBox {
	var out []OrientedBox
	for _, part := range c.parts {
		out = append(out, part.OrientedBoxes(pose)...)
	}
	return out
}

func newBadGeometryDimensionsError(label string, dims r3.Vector) error {
	return errors.Errorf("box %q must have positive dimensions, got %v", label, dims)
}
