package threeaxis

import (
	"context"
	"sync"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/rdk/logging"
)

// Hardware bundles the collaborators an ArmController drives. Indicator may be nil.
type Hardware struct {
	Actuators [numJoints]Actuator
	Right     ContactSensor
	Left      ContactSensor
	Indicator Indicator
}

// ArmController owns the four joints and the two contact sensors. Commands
// that move the arm are serialized; a caller wanting to interrupt a running jog
// or move cancels the context it passed in. Powered, Target and Status do not
// wait for a running command.
type ArmController struct {
	mu          sync.Mutex
	logger      logging.Logger
	joints      [numJoints]*Joint
	geometry    Geometry
	convergence *convergence
	indicator   Indicator

	// stateMu guards powered and target. Writers also hold mu.
	stateMu sync.Mutex
	powered bool
	target  r3.Vector
}

// NewArmController builds the joints from cfg, which must already be validated.
func NewArmController(cfg *Config, hw Hardware, logger logging.Logger) *ArmController {
	c := &ArmController{
		logger:    logger,
		geometry:  cfg.Geometry(),
		indicator: hw.Indicator,
		convergence: &convergence{
			right:        hw.Right,
			left:         hw.Left,
			pollInterval: cfg.pollInterval(),
			maxPolls:     cfg.MaxConvergencePolls,
			logger:       logger,
		},
	}

	for i, jc := range cfg.Joints() {
		c.joints[i] = NewJoint(JointName(i), hw.Actuators[i], *jc, logger)
		if jc.HomeAngle < jc.MinAngle || jc.HomeAngle > jc.MaxAngle {
			logger.Warnf("%s home angle %d is outside [%d, %d], powering on will seek the nearest bound",
				JointName(i), jc.HomeAngle, jc.MinAngle, jc.MaxAngle)
		}
	}
	return c
}

// Powered reports whether the arm is referenced and holding.
func (c *ArmController) Powered() bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.powered
}

func (c *ArmController) setPowered(powered bool) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.powered = powered
}

// Target returns the last accepted destination.
func (c *ArmController) Target() r3.Vector {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.target
}

// Geometry returns the link lengths the controller solves with.
func (c *ArmController) Geometry() Geometry {
	return c.geometry
}

// TogglePowered homes every joint and switches between holding and released.
// The power state only changes once every joint has been handled.
func (c *ArmController) TogglePowered(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.powered {
		return c.powerOff(ctx)
	}
	return c.powerOn(ctx)
}

func (c *ArmController) powerOn(ctx context.Context) error {
	c.logger.Info("powering on, homing joints")

	for _, j := range c.joints {
		home := j.HomeAngle()
		if err := j.ResetReference(ctx, home); err != nil {
			return err
		}
		if err := j.Seek(ctx, home, true); err != nil {
			return err
		}

		angle, err := j.CurrentAngle(ctx)
		if err != nil {
			return err
		}
		if !j.InRange(angle) {
			bound := j.Clamp(angle)
			c.logger.Warnf("%s settled at %d outside [%d, %d], moving to %d",
				j.Name(), angle, j.MinAngle(), j.MaxAngle(), bound)
			if err := j.Seek(ctx, bound, true); err != nil {
				return err
			}
		}
	}

	var err error
	for _, j := range c.joints {
		err = multierr.Combine(err, j.SetHold(ctx, true))
	}
	if err != nil {
		return errors.Wrap(err, "failed to hold joints")
	}

	c.setPowered(true)
	c.showPower(ctx)
	c.logger.Info("arm powered on")
	return nil
}

func (c *ArmController) powerOff(ctx context.Context) error {
	c.logger.Info("powering off, returning joints home")

	for _, j := range c.joints {
		if err := j.Seek(ctx, j.HomeAngle(), true); err != nil {
			return err
		}
	}

	var err error
	for _, j := range c.joints {
		err = multierr.Combine(err, j.SetHold(ctx, false))
	}
	if err != nil {
		return errors.Wrap(err, "failed to release joints")
	}

	c.setPowered(false)
	c.showPower(ctx)
	c.logger.Info("arm powered off")
	return nil
}

func (c *ArmController) showPower(ctx context.Context) {
	if c.indicator == nil {
		return
	}
	color := ColorOff
	if c.powered {
		color = ColorOn
	}
	if err := c.indicator.SetColor(ctx, color); err != nil {
		c.logger.Warnf("failed to set indicator to %s: %v", color, err)
	}
}

// JointJog moves one joint by hand using the contact sensors as buttons: right
// steps up one gear unit per poll, left steps down, and pressing both ends the
// jog. With resetReference the final position becomes newHome; otherwise the
// joint returns to where it started. The returned angle is the joint's angle
// once the jog has finished.
func (c *ArmController) JointJog(
	ctx context.Context,
	joint int,
	delayed, limited, resetReference bool,
	newHome int,
) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if joint < 0 || joint >= numJoints {
		return 0, errors.Errorf("invalid joint index %d", joint)
	}
	if !c.powered {
		return 0, errors.Wrapf(ErrNotPowered, "cannot jog %s", JointName(joint))
	}

	j := c.joints[joint]
	start, err := j.CurrentAngle(ctx)
	if err != nil {
		return 0, err
	}

	if _, err := c.convergence.run(ctx, j, start, limited, delayed); err != nil {
		return 0, err
	}

	if resetReference {
		j.setHome(newHome)
		if err := j.ResetReference(ctx, newHome); err != nil {
			return 0, err
		}
		c.logger.Infof("%s home set to %d", j.Name(), newHome)
		return newHome, nil
	}

	if err := j.Seek(ctx, start, true); err != nil {
		return 0, err
	}
	return start, nil
}

// Solve computes base, shoulder and elbow angles for target without moving.
func (c *ArmController) Solve(target r3.Vector) ([3]int, error) {
	var angles [3]int
	if target == (r3.Vector{}) {
		return angles, errors.Wrap(ErrDegenerateTarget, "target is the origin")
	}
	if !c.geometry.Reachable(target) {
		return angles, errors.Wrapf(ErrUnreachableTarget,
			"planar distance %.3f exceeds reach %.3f", planarDistance(target), c.geometry.Reach())
	}

	for i, joint := range []int{BaseJoint, ShoulderJoint, ElbowJoint} {
		angle, err := SolveJoint(joint, target, c.geometry, c.joints[joint].GearRatio())
		if err != nil {
			return angles, errors.Wrapf(err, "failed to solve %s", JointName(joint))
		}
		angles[i] = angle
	}
	return angles, nil
}

// MoveTo solves for (x, y, z), checks every solved angle against its joint's
// travel and only then starts the three arm joints. With closeGripper the
// gripper closes until both contact sensors report the grip.
func (c *ArmController) MoveTo(ctx context.Context, x, y, z float64, closeGripper bool) ([3]int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var angles [3]int
	if !c.powered {
		return angles, errors.Wrap(ErrNotPowered, "cannot move")
	}

	target := r3.Vector{X: x, Y: y, Z: z}
	if target == (r3.Vector{}) {
		return angles, errors.Wrap(ErrDegenerateTarget, "target is the origin")
	}
	if !c.geometry.Reachable(target) {
		return angles, errors.Wrapf(ErrUnreachableTarget,
			"planar distance %.3f exceeds reach %.3f", planarDistance(target), c.geometry.Reach())
	}
	c.stateMu.Lock()
	c.target = target
	c.stateMu.Unlock()

	angles, err := c.Solve(target)
	if err != nil {
		return angles, err
	}

	arm := []int{BaseJoint, ShoulderJoint, ElbowJoint}
	for i, joint := range arm {
		if err := c.joints[joint].CheckTarget(joint, angles[i]); err != nil {
			return angles, err
		}
	}

	c.logger.Infof("moving to (%.2f, %.2f, %.2f): base %d, shoulder %d, elbow %d",
		x, y, z, angles[0], angles[1], angles[2])
	for i, joint := range arm {
		if err := c.joints[joint].Seek(ctx, angles[i], false); err != nil {
			return angles, err
		}
	}

	if !closeGripper {
		return angles, nil
	}

	gripper := c.joints[GripperJoint]
	start, err := gripper.CurrentAngle(ctx)
	if err != nil {
		return angles, err
	}
	if _, err := c.convergence.run(ctx, gripper, start, true, false); err != nil {
		return angles, errors.Wrap(err, "failed to close gripper")
	}
	return angles, nil
}

// JointStatus is a snapshot of one joint.
type JointStatus struct {
	Name      string
	Angle     int
	HomeAngle int
	MinAngle  int
	MaxAngle  int
	Holding   bool
}

// Status reads every joint's angle. It runs alongside a move or jog in progress.
func (c *ArmController) Status(ctx context.Context) ([numJoints]JointStatus, error) {
	var status [numJoints]JointStatus
	for i, j := range c.joints {
		angle, err := j.CurrentAngle(ctx)
		if err != nil {
			return status, err
		}
		status[i] = JointStatus{
			Name:      j.Name(),
			Angle:     angle,
			HomeAngle: j.HomeAngle(),
			MinAngle:  j.MinAngle(),
			MaxAngle:  j.MaxAngle(),
			Holding:   j.Holding(),
		}
	}
	return status, nil
}
