package threeaxis

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// Joint indexes, in the order the controller owns them.
const (
	GripperJoint = iota
	BaseJoint
	ShoulderJoint
	ElbowJoint

	numJoints = 4
)

// acosTolerance absorbs floating point error for targets sitting exactly on the
// reach boundary. Anything further out is reported as unreachable.
const acosTolerance = 1e-9

// Geometry describes the two-link planar sub-arm driven by the shoulder and elbow.
type Geometry struct {
	LinkLength1 float64
	LinkLength2 float64
}

// Reach is the maximum planar distance the sub-arm can cover.
func (g Geometry) Reach() float64 {
	return g.LinkLength1 + g.LinkLength2
}

// Reachable reports whether the planar distance of target is within reach.
func (g Geometry) Reachable(target r3.Vector) bool {
	return planarDistance(target) <= g.Reach()
}

func planarDistance(target r3.Vector) float64 {
	return math.Sqrt(target.X*target.X + target.Y*target.Y)
}

// SolveJoint computes the angle of one of the three arm joints for target, in
// actuator units. gearRatio converts the rounded joint degree into actuator
// units and is 1 for directly driven joints.
func SolveJoint(joint int, target r3.Vector, geom Geometry, gearRatio int) (int, error) {
	if target == (r3.Vector{}) {
		return 0, errors.Wrap(ErrDegenerateTarget, "target is the origin")
	}

	var rad float64
	switch joint {
	case BaseJoint:
		rad = math.Atan2(target.Z, target.X)
	case ShoulderJoint, ElbowJoint:
		shoulder, elbow, err := planarAngles(target, geom)
		if err != nil {
			return 0, err
		}
		rad = shoulder
		if joint == ElbowJoint {
			rad = elbow
		}
	default:
		return 0, errors.Errorf("joint %d has no kinematic solution", joint)
	}

	return int(math.RoundToEven(degrees(rad))) * gearRatio, nil
}

// planarAngles returns the unrounded shoulder and elbow angles in radians. The
// elbow angle is the interior angle between the two links.
func planarAngles(target r3.Vector, geom Geometry) (float64, float64, error) {
	l1, l2 := geom.LinkLength1, geom.LinkLength2
	d := planarDistance(target)
	if d == 0 {
		return 0, 0, errors.Wrap(ErrDegenerateTarget, "target lies on the vertical axis")
	}

	shoulderCos, err := acosArgument((l1*l1+d*d-l2*l2)/(2*l1*d), d, geom)
	if err != nil {
		return 0, 0, err
	}
	elbowCos, err := acosArgument((l1*l1+l2*l2-d*d)/(2*l1*l2), d, geom)
	if err != nil {
		return 0, 0, err
	}

	shoulder := math.Atan2(target.Y, target.X) + math.Acos(shoulderCos)
	return shoulder, math.Acos(elbowCos), nil
}

func acosArgument(v, d float64, geom Geometry) (float64, error) {
	switch {
	case math.IsNaN(v), v < -1-acosTolerance, v > 1+acosTolerance:
		return 0, errors.Wrapf(ErrUnreachableTarget,
			"planar distance %.3f cannot be spanned by links %.3f and %.3f",
			d, geom.LinkLength1, geom.LinkLength2)
	case v < -1:
		return -1, nil
	case v > 1:
		return 1, nil
	}
	return v, nil
}

func degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}
