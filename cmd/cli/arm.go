package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"

	"threeaxis"
)

func newLogger() logging.Logger {
	if opts.Debug {
		return logging.NewDebugLogger("threeaxis-cli")
	}
	return logging.NewLogger("threeaxis-cli")
}

func loadConfig() (*threeaxis.Config, error) {
	cfg := &threeaxis.Config{}
	if opts.Config != "" {
		var err error
		if cfg, err = threeaxis.LoadConfigFile(opts.Config); err != nil {
			return nil, err
		}
	}
	if opts.Port != "" {
		cfg.Port = opts.Port
	}
	if opts.Fake {
		cfg.Fake = true
	}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, err
	}
	if !cfg.Fake && cfg.Port == "" {
		return nil, errors.New("a serial port is required, pass --port or --fake")
	}
	return cfg, nil
}

// openArm builds a controller and returns a function releasing its hardware.
// Without a board the contact sensors are simulated as pressed, so grabbing
// finishes immediately.
func openArm(logger logging.Logger) (*threeaxis.ArmController, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	hw := threeaxis.NewSimulatedHardware(logger)
	if cfg.Fake {
		return threeaxis.NewArmController(cfg, hw, logger), func() {}, nil
	}

	buses := threeaxis.SharedBuses()
	bus, err := buses.Acquire(cfg.Port, cfg.Baudrate, cfg.BusTimeout())
	if err != nil {
		return nil, nil, err
	}
	hw.Actuators = threeaxis.NewFeetechActuators(bus, cfg)

	release := func() {
		if err := buses.Release(cfg.Port); err != nil {
			logger.Warnf("failed to close %s: %v", cfg.Port, err)
		}
	}
	return threeaxis.NewArmController(cfg, hw, logger), release, nil
}

// withPower runs fn between a power-on and a power-off of the arm.
func withPower(ctx context.Context, arm *threeaxis.ArmController, fn func() error) (err error) {
	if err := arm.TogglePowered(ctx); err != nil {
		return errors.Wrap(err, "failed to power on")
	}
	defer func() {
		if offErr := arm.TogglePowered(ctx); offErr != nil && err == nil {
			err = errors.Wrap(offErr, "failed to power off")
		}
	}()
	return fn()
}

func printAngles(angles [3]int) {
	fmt.Printf("base: %d  shoulder: %d  elbow: %d\n", angles[0], angles[1], angles[2])
}
