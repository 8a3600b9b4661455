package threeaxis

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
)

// Actuator is a single rotary motor. Angles are in the actuator's native units
// (degrees of motor shaft rotation) and speed in units per second.
type Actuator interface {
	// ReadAngle returns the current angle relative to the zero reference.
	ReadAngle(ctx context.Context) (int, error)
	// ResetReference declares the current physical position to be angle.
	ResetReference(ctx context.Context, angle int) error
	// CheckTarget reports whether angle can be commanded from the current
	// reference without moving anything.
	CheckTarget(angle int) error
	// SeekTarget drives toward angle at speed. When blocking is set it returns only
	// once the motor reports arrival.
	SeekTarget(ctx context.Context, speed, angle int, blocking bool) error
	// BrakeHold actively holds the current position.
	BrakeHold(ctx context.Context) error
	// ReleaseFree lets the motor coast and be moved by hand.
	ReleaseFree(ctx context.Context) error
}

// Joint wraps an Actuator with its static configuration and brake state.
type Joint struct {
	name     string
	actuator Actuator
	logger   logging.Logger

	gearRatio int
	maxSpeed  int
	minAngle  int
	maxAngle  int

	// mu guards the fields Status reads while a move is running.
	mu        sync.Mutex
	homeAngle int
	holding   bool
}

// NewJoint takes ownership of actuator.
func NewJoint(name string, actuator Actuator, cfg JointConfig, logger logging.Logger) *Joint {
	return &Joint{
		name:      name,
		actuator:  actuator,
		logger:    logger,
		gearRatio: cfg.GearRatio,
		maxSpeed:  cfg.MaxSpeed,
		homeAngle: cfg.HomeAngle,
		minAngle:  cfg.MinAngle,
		maxAngle:  cfg.MaxAngle,
	}
}

func (j *Joint) Name() string   { return j.name }
func (j *Joint) GearRatio() int { return j.gearRatio }
func (j *Joint) MinAngle() int  { return j.minAngle }
func (j *Joint) MaxAngle() int  { return j.maxAngle }

func (j *Joint) HomeAngle() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.homeAngle
}

func (j *Joint) Holding() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.holding
}

// InRange reports whether angle lies within the joint's travel.
func (j *Joint) InRange(angle int) bool {
	return angle >= j.minAngle && angle <= j.maxAngle
}

// Clamp limits angle to the joint's travel.
func (j *Joint) Clamp(angle int) int {
	if angle > j.maxAngle {
		return j.maxAngle
	}
	if angle < j.minAngle {
		return j.minAngle
	}
	return angle
}

// CurrentAngle reads the actuator angle.
func (j *Joint) CurrentAngle(ctx context.Context) (int, error) {
	angle, err := j.actuator.ReadAngle(ctx)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to read %s angle", j.name)
	}
	return angle, nil
}

// ResetReference re-zeroes the actuator so its current position reads as angle.
func (j *Joint) ResetReference(ctx context.Context, angle int) error {
	if err := j.actuator.ResetReference(ctx, angle); err != nil {
		return errors.Wrapf(err, "failed to reset %s reference to %d", j.name, angle)
	}
	return nil
}

// CheckTarget fails when angle is outside the joint's travel or the actuator
// cannot reach it.
func (j *Joint) CheckTarget(joint, angle int) error {
	if !j.InRange(angle) {
		return &JointLimitError{Joint: joint, Angle: angle, MinAngle: j.minAngle, MaxAngle: j.maxAngle}
	}
	if err := j.actuator.CheckTarget(angle); err != nil {
		return errors.Wrapf(err, "%s cannot reach %d", j.name, angle)
	}
	return nil
}

// Seek commands the joint to angle at its configured speed.
func (j *Joint) Seek(ctx context.Context, angle int, blocking bool) error {
	j.logger.Debugf("%s seek %d (blocking: %v)", j.name, angle, blocking)
	if err := j.actuator.SeekTarget(ctx, j.maxSpeed, angle, blocking); err != nil {
		return errors.Wrapf(err, "failed to move %s to %d", j.name, angle)
	}
	return nil
}

// SetHold switches between brake-hold and free-stop. Repeating the current
// state issues no hardware command.
func (j *Joint) SetHold(ctx context.Context, enabled bool) error {
	if j.Holding() == enabled {
		return nil
	}

	var err error
	if enabled {
		err = j.actuator.BrakeHold(ctx)
	} else {
		err = j.actuator.ReleaseFree(ctx)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to set %s hold=%v", j.name, enabled)
	}
	j.mu.Lock()
	j.holding = enabled
	j.mu.Unlock()
	return nil
}

// setHome replaces the home angle; used when a jog re-zeroes the joint.
func (j *Joint) setHome(angle int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.homeAngle = angle
}
