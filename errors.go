package threeaxis

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrUnreachableTarget is returned when a target lies outside the arm's reach or
	// produces an inverse cosine argument outside [-1, 1].
	ErrUnreachableTarget = errors.New("target is unreachable")
	// ErrJointLimitExceeded is returned when a solved angle falls outside a joint's travel.
	ErrJointLimitExceeded = errors.New("joint limit exceeded")
	// ErrNotPowered is returned for any motion command issued while the arm is powered off.
	ErrNotPowered = errors.New("arm is not powered")
	// ErrDegenerateTarget is returned for targets whose joint angles are undefined.
	ErrDegenerateTarget = errors.New("degenerate target")
	// ErrSensorTimeout is returned when a convergence loop exhausts its poll budget.
	ErrSensorTimeout = errors.New("contact sensors did not converge")
)

// JointLimitError reports which joint rejected a solved angle.
type JointLimitError struct {
	Joint    int
	Angle    int
	MinAngle int
	MaxAngle int
}

func (e *JointLimitError) Error() string {
	return fmt.Sprintf("joint %d: solved angle %d outside [%d, %d]: %v",
		e.Joint, e.Angle, e.MinAngle, e.MaxAngle, ErrJointLimitExceeded)
}

// Unwrap lets errors.Is match ErrJointLimitExceeded.
func (e *JointLimitError) Unwrap() error {
	return ErrJointLimitExceeded
}
