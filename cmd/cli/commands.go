package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/geo/r3"

	"threeaxis"
)

type point struct {
	X float64 `positional-arg-name:"x" required:"yes"`
	Y float64 `positional-arg-name:"y" required:"yes"`
	Z float64 `positional-arg-name:"z" required:"yes"`
}

func interruptible() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

type DemoCommand struct {
	Pause time.Duration `long:"pause" default:"1s" description:"Wait between the two moves"`
}

func (c *DemoCommand) Execute(args []string) error {
	ctx, cancel := interruptible()
	defer cancel()

	logger := newLogger()
	arm, release, err := openArm(logger)
	if err != nil {
		return err
	}
	defer release()

	return withPower(ctx, arm, func() error {
		angles, err := arm.MoveTo(ctx, 30, 20, 20, true)
		if err != nil {
			return err
		}
		printAngles(angles)

		time.Sleep(c.Pause)

		angles, err = arm.MoveTo(ctx, 30, 20, -20, true)
		if err != nil {
			return err
		}
		printAngles(angles)
		return nil
	})
}

type MoveCommand struct {
	NoGrab bool  `long:"no-grab" description:"Do not close the gripper after reaching the point"`
	Point  point `positional-args:"yes" required:"yes"`
}

func (c *MoveCommand) Execute(args []string) error {
	ctx, cancel := interruptible()
	defer cancel()

	logger := newLogger()
	arm, release, err := openArm(logger)
	if err != nil {
		return err
	}
	defer release()

	return withPower(ctx, arm, func() error {
		angles, err := arm.MoveTo(ctx, c.Point.X, c.Point.Y, c.Point.Z, !c.NoGrab)
		if err != nil {
			return err
		}
		printAngles(angles)
		return nil
	})
}

type SolveCommand struct {
	Point point `positional-args:"yes" required:"yes"`
}

func (c *SolveCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := newLogger()
	arm := threeaxis.NewArmController(cfg, threeaxis.NewSimulatedHardware(logger), logger)
	angles, err := arm.Solve(r3.Vector{X: c.Point.X, Y: c.Point.Y, Z: c.Point.Z})
	if err != nil {
		return err
	}
	printAngles(angles)
	return nil
}

type DiscoverCommand struct{}

func (c *DiscoverCommand) Execute(args []string) error {
	ctx, cancel := interruptible()
	defer cancel()

	ports, err := threeaxis.ScanPorts(ctx, newLogger())
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("No arms found")
		return nil
	}
	for _, port := range ports {
		fmt.Println(port)
	}
	return nil
}
