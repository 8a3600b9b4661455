package threeaxis

import (
	"context"
	"sync"

	"go.viam.com/rdk/logging"
)

// actuatorCommand is one call made on a simulatedActuator.
type actuatorCommand struct {
	Kind     string // "reset", "seek", "hold" or "release"
	Angle    int
	Blocking bool
}

// simulatedActuator reaches every target instantly and records each command.
type simulatedActuator struct {
	mu       sync.Mutex
	angle    int
	holding  bool
	commands []actuatorCommand
}

func newSimulatedActuator() *simulatedActuator {
	return &simulatedActuator{}
}

func (a *simulatedActuator) ReadAngle(ctx context.Context) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.angle, nil
}

func (a *simulatedActuator) ResetReference(ctx context.Context, angle int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.angle = angle
	a.commands = append(a.commands, actuatorCommand{Kind: "reset", Angle: angle})
	return nil
}

func (a *simulatedActuator) CheckTarget(angle int) error {
	return nil
}

func (a *simulatedActuator) SeekTarget(ctx context.Context, speed, angle int, blocking bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.angle = angle
	a.commands = append(a.commands, actuatorCommand{Kind: "seek", Angle: angle, Blocking: blocking})
	return nil
}

func (a *simulatedActuator) BrakeHold(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.holding = true
	a.commands = append(a.commands, actuatorCommand{Kind: "hold"})
	return nil
}

func (a *simulatedActuator) ReleaseFree(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.holding = false
	a.commands = append(a.commands, actuatorCommand{Kind: "release"})
	return nil
}

// Commands returns a copy of every command received so far.
func (a *simulatedActuator) Commands() []actuatorCommand {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]actuatorCommand(nil), a.commands...)
}

// staticSensor always reports the same contact state.
type staticSensor bool

func (s staticSensor) IsPressed(ctx context.Context) (bool, error) {
	return bool(s), nil
}

// logIndicator reports colour changes to the log.
type logIndicator struct {
	logger logging.Logger
}

func (ind *logIndicator) SetColor(ctx context.Context, color Color) error {
	ind.logger.Infof("indicator %s", color)
	return nil
}

// NewSimulatedHardware returns actuators that move instantly and sensors that
// are always pressed, so every convergence finishes on its first poll.
func NewSimulatedHardware(logger logging.Logger) Hardware {
	var hw Hardware
	for i := range hw.Actuators {
		hw.Actuators[i] = newSimulatedActuator()
	}
	hw.Right = staticSensor(true)
	hw.Left = staticSensor(true)
	hw.Indicator = &logIndicator{logger: logger}
	return hw
}
