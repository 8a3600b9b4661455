package main

import (
	"os"

	"github.com/jessevdk/go-flags"
)

type Options struct {
	Config string `short:"c" long:"config" description:"Arm configuration JSON file (defaults are used when omitted)"`
	Port   string `short:"p" long:"port" description:"Serial port of the servo bus, overrides the config file"`
	Fake   bool   `long:"fake" description:"Use simulated servos instead of a serial bus"`
	Debug  bool   `long:"debug" description:"Log every actuator command and convergence poll"`

	Demo     DemoCommand     `command:"demo" description:"Power on, pick at (30,20,20), place at (30,20,-20), power off"`
	Move     MoveCommand     `command:"move" description:"Power on, move to a point, power off"`
	Solve    SolveCommand    `command:"solve" description:"Print the joint angles for a point without moving"`
	Discover DiscoverCommand `command:"discover" description:"List serial ports with all four servos answering"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "threeaxis - command line control for the three-axis arm"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}
