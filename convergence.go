package threeaxis

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	"go.viam.com/utils"
)

// convergence steps a joint one gear unit per poll, toward the right sensor's
// side while it is pressed and toward the left sensor's side while that one is,
// until both sensors report contact at once.
type convergence struct {
	right, left  ContactSensor
	pollInterval time.Duration
	maxPolls     int
	logger       logging.Logger
}

// run starts from start and returns the last commanded angle. limited clamps
// every step to the joint's travel; blocking waits for each step to complete.
func (c *convergence) run(ctx context.Context, joint *Joint, start int, limited, blocking bool) (int, error) {
	gear := joint.GearRatio()
	angle := start

	for polls := 0; ; polls++ {
		right, err := c.right.IsPressed(ctx)
		if err != nil {
			return angle, errors.Wrap(err, "failed to read right contact sensor")
		}
		left, err := c.left.IsPressed(ctx)
		if err != nil {
			return angle, errors.Wrap(err, "failed to read left contact sensor")
		}
		if right && left {
			return angle, nil
		}
		if polls >= c.maxPolls {
			return angle, errors.Wrapf(ErrSensorTimeout, "%s gave up after %d polls", joint.Name(), polls)
		}

		if right {
			angle += gear
		} else if left {
			angle -= gear
		}
		if limited {
			angle = joint.Clamp(angle)
		}

		if err := joint.Seek(ctx, angle, blocking); err != nil {
			return angle, err
		}
		c.logger.Debugf("joint %s at %d deg", joint.Name(), angle/gear)

		if !utils.SelectContextOrWait(ctx, c.pollInterval) {
			return angle, errors.Wrapf(ctx.Err(), "%s convergence interrupted", joint.Name())
		}
	}
}
