package lidar

import (
	"github.com/chewxy/math32"

	"github.com/itohio/groundctl/internal/physical"
)

// vertex is one point of the fixed robot-outline polygon, in meters,
// robot frame, counter-clockwise winding.
type vertex struct{ X, Y float32 }

// outline is the robot's convex footprint used by the collision
// check. The exact 16-vertex table below is carried over from this
// codebase's own collision-geometry constant: a narrow prow at the
// front (+X), flaring out to the chassis width amidships, mirrored
// left-to-right about the X axis.
var outline = [16]vertex{
	{0.25, 0.08}, {0.12, 0.14}, {0.10, 0.18}, {0.10, 0.26},
	{-0.10, 0.26}, {-0.10, 0.18}, {-0.25, 0.18}, {-0.47, 0.12},
	{-0.47, -0.12}, {-0.25, -0.18}, {-0.10, -0.18}, {-0.10, -0.26},
	{0.10, -0.26}, {0.10, -0.18}, {0.12, -0.14}, {0.25, -0.08},
}

// inflatedOutline scales every outline vertex by size and transforms
// it through pose, returning the polygon in world/robot-anchor frame
// together with its axis-aligned bounding box.
func inflatedOutline(size float32, pose physical.Pose) (poly [16]vertex, minX, minY, maxX, maxY float32) {
	minX, minY = math32.MaxFloat32, math32.MaxFloat32
	maxX, maxY = -math32.MaxFloat32, -math32.MaxFloat32

	for i, v := range outline {
		x, y := pose.Transform(v.X*size, v.Y*size)
		poly[i] = vertex{x, y}
		if x < minX {
			minX = x
		}
		if x > maxX {
			maxX = x
		}
		if y < minY {
			minY = y
		}
		if y > maxY {
			maxY = y
		}
	}
	return poly, minX, minY, maxX, maxY
}

// containsPoint reports whether (x, y) lies inside the convex polygon
// poly, assuming counter-clockwise winding: the point is inside iff it
// is on the left side of every edge.
func containsPoint(poly [16]vertex, x, y float32) bool {
	n := len(poly)
	for i := 0; i < n; i++ {
		a := poly[i]
		b := poly[(i+1)%n]
		cross := (b.X-a.X)*(y-a.Y) - (b.Y-a.Y)*(x-a.X)
		if cross < 0 {
			return false
		}
	}
	return true
}
