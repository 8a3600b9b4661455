package threeaxis

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/rdk/components/board"
)

// ContactSensor is a binary touch sensor that is polled.
type ContactSensor interface {
	IsPressed(ctx context.Context) (bool, error)
}

// Color is the state shown on the status indicator.
type Color int

const (
	ColorOff Color = iota // arm released
	ColorOn               // arm referenced and holding
)

func (c Color) String() string {
	switch c {
	case ColorOff:
		return "red"
	case ColorOn:
		return "yellow"
	default:
		return "unknown"
	}
}

// Indicator shows the arm's power state, usually a status light.
type Indicator interface {
	SetColor(ctx context.Context, color Color) error
}

// gpioContactSensor reads a switch wired to a board GPIO pin.
type gpioContactSensor struct {
	pin        board.GPIOPin
	activeHigh bool
}

// NewGPIOContactSensor looks up pinName on b. With activeHigh unset the switch
// pulls the pin low when pressed.
func NewGPIOContactSensor(b board.Board, pinName string, activeHigh bool) (ContactSensor, error) {
	pin, err := b.GPIOPinByName(pinName)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get contact sensor pin %q", pinName)
	}
	return &gpioContactSensor{pin: pin, activeHigh: activeHigh}, nil
}

func (s *gpioContactSensor) IsPressed(ctx context.Context) (bool, error) {
	high, err := s.pin.Get(ctx, nil)
	if err != nil {
		return false, err
	}
	return high == s.activeHigh, nil
}

// gpioIndicator lights one pin per colour.
type gpioIndicator struct {
	pins map[Color]board.GPIOPin
}

// NewGPIOIndicator drives offPin while the arm is released and onPin while it holds.
func NewGPIOIndicator(b board.Board, offPin, onPin string) (Indicator, error) {
	pins := make(map[Color]board.GPIOPin, 2)
	for color, name := range map[Color]string{ColorOff: offPin, ColorOn: onPin} {
		pin, err := b.GPIOPinByName(name)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to get %s indicator pin %q", color, name)
		}
		pins[color] = pin
	}
	return &gpioIndicator{pins: pins}, nil
}

func (ind *gpioIndicator) SetColor(ctx context.Context, color Color) error {
	var err error
	for c, pin := range ind.pins {
		err = multierr.Combine(err, pin.Set(ctx, c == color, nil))
	}
	return err
}
