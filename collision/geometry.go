package collision

import (
	"math"

	"github.com/golang/geo/r3"

	"go.viam.com/fieldsim/spatialmath"
)

// An Intersector decides whether two geometries placed at the given poses overlap.
type Intersector interface {
	Intersects(a spatialmath.Geometry, aPose spatialmath.Pose, b spatialmath.Geometry, bPose spatialmath.Pose) bool
}

// SATIntersector tests every box pair of the two geometries with the separating axis test.
// Boxes that only touch along a face do not intersect.
type SATIntersector struct{}

// Intersects implements Intersector.
func (SATIntersector) Intersects(a spatialmath.Geometry, aPose spatialmath.Pose, b spatialmath.Geometry, bPose spatialmath.Pose) bool {
	bBoxes := b.OrientedBoxes(bPose)
	for _, aBox := range a.OrientedBoxes(aPose) {
		for _, bBox := range bBoxes {
			if BoxVsBox(aBox, bBox) {
				return true
			}
		}
	}
	return false
}

// BoxVsBox reports whether two oriented boxes overlap.
// reference: https://gamedev.stackexchange.com/questions/112883/simple-3d-obb-collision-directx9-c
func BoxVsBox(a, b spatialmath.OrientedBox) bool {
	positionDelta := a.Center.Sub(b.Center)
	for i := 0; i < 3; i++ {
		if separatingPlaneTest(positionDelta, a.Axes[i], a, b) ||
			separatingPlaneTest(positionDelta, b.Axes[i], a, b) {
			return false
		}
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if separatingPlaneTest(positionDelta, a.Axes[i].Cross(b.Axes[j]), a, b) {
				return false
			}
		}
	}
	return true
}

// parallelAxisEpsilon is the squared length below which a cross product axis is degenerate.
const parallelAxisEpsilon = 1e-12

// separatingPlaneTest checks if plane separates the boxes. Degenerate axes from parallel edges
// never separate.
func separatingPlaneTest(positionDelta, plane r3.Vector, a, b spatialmath.OrientedBox) bool {
	if plane.Norm2() < parallelAxisEpsilon {
		return false
	}
	return math.Abs(positionDelta.Dot(plane)) >= projectedRadius(a, plane)+projectedRadius(b, plane)
}

func projectedRadius(box spatialmath.OrientedBox, plane r3.Vector) float64 {
	return math.Abs(box.Axes[0].Mul(box.HalfSize.X).Dot(plane)) +
		math.Abs(box.Axes[1].Mul(box.HalfSize.Y).Dot(plane)) +
		math.Abs(box.Axes[2].Mul(box.HalfSize.Z).Dot(plane))
}
