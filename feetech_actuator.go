package threeaxis

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
	"go.viam.com/utils"
)

const (
	servoStepsPerRev = 4096
	servoMaxRaw      = servoStepsPerRev - 1
	servoCenterRaw   = servoStepsPerRev / 2

	movingPollInterval = 10 * time.Millisecond
)

// servoDriver is the subset of *feetech.Servo the actuator needs.
type servoDriver interface {
	Position(ctx context.Context) (int, error)
	SetPositionWithSpeed(ctx context.Context, position, speed int) error
	Moving(ctx context.Context) (bool, error)
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
}

// feetechActuator drives one STS3215 servo directly coupled to its joint.
// Actuator units are joint degrees times gearRatio; the servo itself turns
// one joint degree per unit/gearRatio. The zero reference is kept in software:
// refRaw is the raw position that reads as refAngle.
type feetechActuator struct {
	servo       servoDriver
	gearRatio   int
	seekTimeout time.Duration

	mu       sync.Mutex
	refRaw   int
	refAngle int
}

// NewFeetechActuator wraps the servo with the given id on bus.
func NewFeetechActuator(bus *feetech.Bus, id, gearRatio int, seekTimeout time.Duration) Actuator {
	return newFeetechActuator(feetech.NewServo(bus, id, &feetech.ModelSTS3215), gearRatio, seekTimeout)
}

// NewFeetechActuators creates one actuator per joint of cfg, all sharing bus.
func NewFeetechActuators(bus *feetech.Bus, cfg *Config) [numJoints]Actuator {
	var actuators [numJoints]Actuator
	for i, jc := range cfg.Joints() {
		actuators[i] = NewFeetechActuator(bus, jc.ServoID, jc.GearRatio, cfg.seekTimeout())
	}
	return actuators
}

func newFeetechActuator(servo servoDriver, gearRatio int, seekTimeout time.Duration) *feetechActuator {
	return &feetechActuator{
		servo:       servo,
		gearRatio:   gearRatio,
		seekTimeout: seekTimeout,
		refRaw:      servoCenterRaw,
	}
}

func (a *feetechActuator) unitsPerStep() float64 {
	return 360 * float64(a.gearRatio) / servoStepsPerRev
}

func (a *feetechActuator) ReadAngle(ctx context.Context) (int, error) {
	raw, err := a.servo.Position(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read position: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return a.refAngle + int(math.Round(float64(raw-a.refRaw)*a.unitsPerStep())), nil
}

func (a *feetechActuator) ResetReference(ctx context.Context, angle int) error {
	raw, err := a.servo.Position(ctx)
	if err != nil {
		return fmt.Errorf("failed to read position: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.refRaw = raw
	a.refAngle = angle
	return nil
}

// rawPosition maps angle through the software reference to a servo goal.
func (a *feetechActuator) rawPosition(angle int) (int, error) {
	a.mu.Lock()
	raw := a.refRaw + int(math.Round(float64(angle-a.refAngle)/a.unitsPerStep()))
	a.mu.Unlock()

	if raw < 0 || raw > servoMaxRaw {
		return 0, fmt.Errorf("angle %d maps to raw position %d outside 0-%d", angle, raw, servoMaxRaw)
	}
	return raw, nil
}

func (a *feetechActuator) CheckTarget(angle int) error {
	_, err := a.rawPosition(angle)
	return err
}

func (a *feetechActuator) SeekTarget(ctx context.Context, speed, angle int, blocking bool) error {
	raw, err := a.rawPosition(angle)
	if err != nil {
		return err
	}

	// A servo with torque off ignores goal positions.
	if err := a.servo.Enable(ctx); err != nil {
		return fmt.Errorf("failed to enable torque: %w", err)
	}

	rawSpeed := int(math.Round(float64(speed) / a.unitsPerStep()))
	if rawSpeed < 1 {
		rawSpeed = 1
	}
	if err := a.servo.SetPositionWithSpeed(ctx, raw, rawSpeed); err != nil {
		return fmt.Errorf("failed to set position with speed: %w", err)
	}

	if !blocking {
		return nil
	}
	return a.waitUntilStopped(ctx)
}

func (a *feetechActuator) waitUntilStopped(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.seekTimeout)
	defer cancel()

	for {
		moving, err := a.servo.Moving(ctx)
		if err != nil {
			return fmt.Errorf("failed to read moving status: %w", err)
		}
		if !moving {
			return nil
		}
		if !utils.SelectContextOrWait(ctx, movingPollInterval) {
			return fmt.Errorf("servo still moving: %w", ctx.Err())
		}
	}
}

func (a *feetechActuator) BrakeHold(ctx context.Context) error {
	return a.servo.Enable(ctx)
}

func (a *feetechActuator) ReleaseFree(ctx context.Context) error {
	return a.servo.Disable(ctx)
}
