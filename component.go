package threeaxis

import (
	"context"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/rdk/components/board"
	"go.viam.com/rdk/components/generic"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/operation"
	"go.viam.com/rdk/resource"
)

// Model is the generic component that exposes the arm through DoCommand.
var Model = resource.NewModel("devrel", "threeaxis", "arm")

func init() {
	resource.RegisterComponent(generic.API, Model,
		resource.Registration[resource.Resource, *Config]{
			Constructor: newArmComponent,
		},
	)
}

type armComponent struct {
	resource.Named
	resource.AlwaysRebuild

	logger     logging.Logger
	cfg        *Config
	opMgr      *operation.SingleOperationManager
	controller *ArmController

	buses *BusRegistry // nil in fake mode
}

func newArmComponent(ctx context.Context, deps resource.Dependencies, rawConf resource.Config, logger logging.Logger) (resource.Resource, error) {
	conf, err := resource.NativeConfig[*Config](rawConf)
	if err != nil {
		return nil, err
	}
	return NewArmComponent(ctx, deps, rawConf.ResourceName(), conf, logger, SharedBuses())
}

// NewArmComponent wires the controller to simulated hardware when conf.Fake is
// set, and otherwise to servos on conf.Port and sensors on conf.Board.
func NewArmComponent(
	ctx context.Context,
	deps resource.Dependencies,
	name resource.Name,
	conf *Config,
	logger logging.Logger,
	buses *BusRegistry,
) (resource.Resource, error) {
	c := &armComponent{
		Named:  name.AsNamed(),
		logger: logger,
		cfg:    conf,
		opMgr:  operation.NewSingleOperationManager(),
	}

	if conf.Fake {
		c.controller = NewArmController(conf, NewSimulatedHardware(logger), logger)
		logger.Info("three-axis arm initialized with simulated hardware")
		return c, nil
	}

	hw, err := boardSensors(deps, conf)
	if err != nil {
		return nil, err
	}

	bus, err := buses.Acquire(conf.Port, conf.Baudrate, conf.BusTimeout())
	if err != nil {
		return nil, err
	}
	c.buses = buses
	hw.Actuators = NewFeetechActuators(bus, conf)

	c.controller = NewArmController(conf, hw, logger)
	logger.Infof("three-axis arm initialized on port %s", conf.Port)
	return c, nil
}

func boardSensors(deps resource.Dependencies, conf *Config) (Hardware, error) {
	var hw Hardware

	b, err := board.FromDependencies(deps, conf.Board)
	if err != nil {
		return hw, errors.Wrapf(err, "failed to get board %q", conf.Board)
	}
	if hw.Right, err = NewGPIOContactSensor(b, conf.RightSensorPin, conf.SensorsActiveHigh); err != nil {
		return hw, err
	}
	if hw.Left, err = NewGPIOContactSensor(b, conf.LeftSensorPin, conf.SensorsActiveHigh); err != nil {
		return hw, err
	}
	if conf.IndicatorOffPin != "" {
		if hw.Indicator, err = NewGPIOIndicator(b, conf.IndicatorOffPin, conf.IndicatorOnPin); err != nil {
			return hw, err
		}
	}
	return hw, nil
}

func (c *armComponent) Close(ctx context.Context) error {
	c.logger.Info("closing three-axis arm")
	c.opMgr.CancelRunning(ctx)

	var err error
	if c.controller.Powered() {
		err = multierr.Combine(err, c.controller.TogglePowered(ctx))
	}
	if c.buses != nil {
		err = multierr.Combine(err, c.buses.Release(c.cfg.Port))
	}
	return err
}

func (c *armComponent) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	switch cmd["command"] {
	case "toggle_power":
		ctx, done := c.opMgr.New(ctx)
		defer done()
		if err := c.controller.TogglePowered(ctx); err != nil {
			return nil, err
		}
		return map[string]interface{}{"powered": c.controller.Powered()}, nil

	case "move_to":
		x, y, z, err := pointArgs(cmd)
		if err != nil {
			return nil, err
		}
		grab, err := boolArg(cmd, "grab", true)
		if err != nil {
			return nil, err
		}
		ctx, done := c.opMgr.New(ctx)
		defer done()
		angles, err := c.controller.MoveTo(ctx, x, y, z, grab)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"target": []interface{}{x, y, z},
			"angles": anglesResult(angles),
		}, nil

	case "jog":
		joint, err := intArg(cmd, "joint", -1)
		if err != nil {
			return nil, err
		}
		delayed, err := boolArg(cmd, "delayed", true)
		if err != nil {
			return nil, err
		}
		limited, err := boolArg(cmd, "limited", true)
		if err != nil {
			return nil, err
		}
		reset, err := boolArg(cmd, "reset", false)
		if err != nil {
			return nil, err
		}
		newHome, err := intArg(cmd, "new_home", 0)
		if err != nil {
			return nil, err
		}
		ctx, done := c.opMgr.New(ctx)
		defer done()
		angle, err := c.controller.JointJog(ctx, joint, delayed, limited, reset, newHome)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"joint": joint, "angle": angle}, nil

	case "solve":
		x, y, z, err := pointArgs(cmd)
		if err != nil {
			return nil, err
		}
		angles, err := c.controller.Solve(r3.Vector{X: x, Y: y, Z: z})
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"angles": anglesResult(angles)}, nil

	case "status":
		return c.status(ctx)

	case "stop":
		c.opMgr.CancelRunning(ctx)
		return map[string]interface{}{"stopped": true}, nil

	default:
		return nil, fmt.Errorf("unknown command: %v", cmd["command"])
	}
}

func (c *armComponent) status(ctx context.Context) (map[string]interface{}, error) {
	joints, err := c.controller.Status(ctx)
	if err != nil {
		return nil, err
	}

	jointInfo := make([]interface{}, 0, len(joints))
	for _, j := range joints {
		jointInfo = append(jointInfo, map[string]interface{}{
			"name":       j.Name,
			"angle":      j.Angle,
			"home_angle": j.HomeAngle,
			"min_angle":  j.MinAngle,
			"max_angle":  j.MaxAngle,
			"holding":    j.Holding,
		})
	}

	target := c.controller.Target()
	return map[string]interface{}{
		"powered": c.controller.Powered(),
		"target":  []interface{}{target.X, target.Y, target.Z},
		"joints":  jointInfo,
		"fake":    c.cfg.Fake,
	}, nil
}

func anglesResult(angles [3]int) []interface{} {
	return []interface{}{angles[0], angles[1], angles[2]}
}

func pointArgs(cmd map[string]interface{}) (float64, float64, float64, error) {
	var p [3]float64
	for i, key := range []string{"x", "y", "z"} {
		v, ok := cmd[key].(float64)
		if !ok {
			return 0, 0, 0, fmt.Errorf("%v command requires numeric '%s' parameter", cmd["command"], key)
		}
		p[i] = v
	}
	return p[0], p[1], p[2], nil
}

func boolArg(cmd map[string]interface{}, key string, def bool) (bool, error) {
	raw, ok := cmd[key]
	if !ok {
		return def, nil
	}
	v, ok := raw.(bool)
	if !ok {
		return false, fmt.Errorf("'%s' must be a boolean, got %T", key, raw)
	}
	return v, nil
}

func intArg(cmd map[string]interface{}, key string, def int) (int, error) {
	raw, ok := cmd[key]
	if !ok {
		return def, nil
	}
	switch v := raw.(type) {
	case float64:
		if v != math.Trunc(v) || v < math.MinInt32 || v > math.MaxInt32 {
			return 0, fmt.Errorf("'%s' must be a whole number, got %v", key, v)
		}
		return int(v), nil
	case int:
		return v, nil
	default:
		return 0, fmt.Errorf("'%s' must be a number, got %T", key, raw)
	}
}
