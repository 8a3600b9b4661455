package threeaxis

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.viam.com/rdk/logging"
)

// scriptedSensor replays states in order and then keeps repeating the last one.
type scriptedSensor struct {
	mu     sync.Mutex
	states []bool
	reads  int
}

func (s *scriptedSensor) IsPressed(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.reads
	if i >= len(s.states) {
		i = len(s.states) - 1
	}
	s.reads++
	return s.states[i], nil
}

// pressedThen returns a sensor reading pressed for n polls and then final.
func pressedThen(pressed bool, n int, final bool) *scriptedSensor {
	states := make([]bool, 0, n+1)
	for i := 0; i < n; i++ {
		states = append(states, pressed)
	}
	return &scriptedSensor{states: append(states, final)}
}

// gatedSensor reports released until open is closed, then pressed.
type gatedSensor struct {
	open  chan struct{}
	reads atomic.Int32
}

func newGatedSensor() *gatedSensor {
	return &gatedSensor{open: make(chan struct{})}
}

func (s *gatedSensor) IsPressed(ctx context.Context) (bool, error) {
	s.reads.Add(1)
	select {
	case <-s.open:
		return true, nil
	default:
		return false, nil
	}
}

type recordingIndicator struct {
	colors []Color
}

func (ind *recordingIndicator) SetColor(ctx context.Context, color Color) error {
	ind.colors = append(ind.colors, color)
	return nil
}

type testArm struct {
	*ArmController
	actuators [numJoints]*simulatedActuator
	indicator *recordingIndicator
}

func testArmConfig(t *testing.T) *Config {
	t.Helper()
	cfg := &Config{Fake: true, PollIntervalMs: 1, MaxConvergencePolls: 100}
	_, _, err := cfg.Validate("test")
	require.NoError(t, err)
	return cfg
}

func newTestArm(t *testing.T, cfg *Config, right, left ContactSensor) *testArm {
	t.Helper()
	arm := &testArm{indicator: &recordingIndicator{}}
	hw := Hardware{Right: right, Left: left, Indicator: arm.indicator}
	for i := range arm.actuators {
		arm.actuators[i] = newSimulatedActuator()
		hw.Actuators[i] = arm.actuators[i]
	}
	arm.ArmController = NewArmController(cfg, hw, logging.NewTestLogger(t))
	return arm
}

func (a *testArm) commandCounts() [numJoints]int {
	var counts [numJoints]int
	for i, act := range a.actuators {
		counts[i] = len(act.Commands())
	}
	return counts
}

func (a *testArm) commandsSince(joint, from int) []actuatorCommand {
	return a.actuators[joint].Commands()[from:]
}

func TestTogglePoweredOn(t *testing.T) {
	arm := newTestArm(t, testArmConfig(t), staticSensor(true), staticSensor(true))
	ctx := context.Background()

	require.NoError(t, arm.TogglePowered(ctx))
	assert.True(t, arm.Powered())
	assert.Equal(t, []Color{ColorOn}, arm.indicator.colors)

	assert.Equal(t, []actuatorCommand{
		{Kind: "reset", Angle: 0},
		{Kind: "seek", Angle: 0, Blocking: true},
		{Kind: "hold"},
	}, arm.actuators[GripperJoint].Commands())

	// The shoulder's home sits below its travel and is recovered to the bound.
	assert.Equal(t, []actuatorCommand{
		{Kind: "reset", Angle: 2},
		{Kind: "seek", Angle: 2, Blocking: true},
		{Kind: "seek", Angle: 30, Blocking: true},
		{Kind: "hold"},
	}, arm.actuators[ShoulderJoint].Commands())

	for _, j := range arm.joints {
		assert.True(t, j.Holding(), j.Name())
	}
}

func TestTogglePoweredRecoversToMaxBound(t *testing.T) {
	cfg := testArmConfig(t)
	cfg.Elbow.HomeAngle = 200
	arm := newTestArm(t, cfg, staticSensor(true), staticSensor(true))

	require.NoError(t, arm.TogglePowered(context.Background()))
	assert.Equal(t, []actuatorCommand{
		{Kind: "reset", Angle: 200},
		{Kind: "seek", Angle: 200, Blocking: true},
		{Kind: "seek", Angle: 180, Blocking: true},
		{Kind: "hold"},
	}, arm.actuators[ElbowJoint].Commands())

	angle, err := arm.joints[ElbowJoint].CurrentAngle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 180, angle)
}

func TestTogglePoweredTwiceReleasesEveryJoint(t *testing.T) {
	arm := newTestArm(t, testArmConfig(t), staticSensor(true), staticSensor(true))
	ctx := context.Background()

	require.NoError(t, arm.TogglePowered(ctx))
	onCounts := arm.commandCounts()
	require.NoError(t, arm.TogglePowered(ctx))

	assert.False(t, arm.Powered())
	assert.Equal(t, []Color{ColorOn, ColorOff}, arm.indicator.colors)

	for i, j := range arm.joints {
		assert.False(t, j.Holding(), j.Name())
		assert.False(t, arm.actuators[i].holding, j.Name())
		assert.Equal(t, []actuatorCommand{
			{Kind: "seek", Angle: j.HomeAngle(), Blocking: true},
			{Kind: "release"},
		}, arm.commandsSince(i, onCounts[i]), j.Name())
	}
}

func TestMoveToRequiresPower(t *testing.T) {
	arm := newTestArm(t, testArmConfig(t), staticSensor(true), staticSensor(true))

	_, err := arm.MoveTo(context.Background(), 30, 20, 20, true)
	assert.True(t, errors.Is(err, ErrNotPowered), "got %v", err)
	assert.Equal(t, [numJoints]int{}, arm.commandCounts())
}

func TestMoveToReferencePoint(t *testing.T) {
	arm := newTestArm(t, testArmConfig(t), staticSensor(true), staticSensor(true))
	ctx := context.Background()
	require.NoError(t, arm.TogglePowered(ctx))
	before := arm.commandCounts()

	angles, err := arm.MoveTo(ctx, 30, 20, 20, true)
	require.NoError(t, err)
	assert.Equal(t, [3]int{1904, 63, 113}, angles)
	assert.Equal(t, r3.Vector{X: 30, Y: 20, Z: 20}, arm.Target())

	for i, joint := range []int{BaseJoint, ShoulderJoint, ElbowJoint} {
		assert.Equal(t, []actuatorCommand{{Kind: "seek", Angle: angles[i]}},
			arm.commandsSince(joint, before[joint]), JointName(joint))
	}
	// Both sensors already report the grip, so the gripper is not moved.
	assert.Empty(t, arm.commandsSince(GripperJoint, before[GripperJoint]))
}

func TestMoveToUnreachableIssuesNoCommands(t *testing.T) {
	arm := newTestArm(t, testArmConfig(t), staticSensor(true), staticSensor(true))
	ctx := context.Background()
	require.NoError(t, arm.TogglePowered(ctx))
	before := arm.commandCounts()

	_, err := arm.MoveTo(ctx, 100, 0, 0, true)
	assert.True(t, errors.Is(err, ErrUnreachableTarget), "got %v", err)
	assert.Equal(t, before, arm.commandCounts())
	assert.Equal(t, r3.Vector{}, arm.Target())

	_, err = arm.MoveTo(ctx, 0, 0, 0, true)
	assert.True(t, errors.Is(err, ErrDegenerateTarget), "got %v", err)
	assert.Equal(t, before, arm.commandCounts())
}

func TestMoveToElbowLimitIssuesNoCommands(t *testing.T) {
	arm := newTestArm(t, testArmConfig(t), staticSensor(true), staticSensor(true))
	ctx := context.Background()
	require.NoError(t, arm.TogglePowered(ctx))
	before := arm.commandCounts()

	// Base 0 and shoulder 50 are valid, the elbow folds to 24 below its 60 minimum.
	_, err := arm.MoveTo(ctx, 10, 0, 0, true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrJointLimitExceeded), "got %v", err)

	var limitErr *JointLimitError
	require.True(t, errors.As(err, &limitErr))
	assert.Equal(t, ElbowJoint, limitErr.Joint)
	assert.Equal(t, 24, limitErr.Angle)

	assert.Equal(t, before, arm.commandCounts())
}

func TestMoveToServoRangeIssuesNoCommands(t *testing.T) {
	cfg := testArmConfig(t)
	hw := Hardware{Right: staticSensor(true), Left: staticSensor(true)}
	var servos [numJoints]*fakeServo
	for i, jc := range cfg.Joints() {
		servos[i] = &fakeServo{position: servoCenterRaw}
		hw.Actuators[i] = newFeetechActuator(servos[i], jc.GearRatio, time.Second)
	}
	// The elbow is referenced near the top of the servo's single turn, so 113
	// is within its travel but past raw 4095.
	servos[ElbowJoint].position = 3900

	arm := NewArmController(cfg, hw, logging.NewTestLogger(t))
	ctx := context.Background()
	require.NoError(t, arm.TogglePowered(ctx))
	var before [numJoints]int
	for i, servo := range servos {
		before[i] = len(servo.goals)
	}

	_, err := arm.MoveTo(ctx, 30, 20, 20, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "elbow cannot reach 113")
	assert.False(t, errors.Is(err, ErrJointLimitExceeded))

	for i, servo := range servos {
		assert.Len(t, servo.goals, before[i], JointName(i))
	}

	// From the centre the same move is accepted.
	require.NoError(t, arm.TogglePowered(ctx))
	servos[ElbowJoint].position = servoCenterRaw
	require.NoError(t, arm.TogglePowered(ctx))
	angles, err := arm.MoveTo(ctx, 30, 20, 20, false)
	require.NoError(t, err)
	assert.Equal(t, [3]int{1904, 63, 113}, angles)
}

func TestMoveToClosesGripper(t *testing.T) {
	right := pressedThen(true, 3, true)
	left := pressedThen(false, 3, true)
	arm := newTestArm(t, testArmConfig(t), right, left)
	ctx := context.Background()
	require.NoError(t, arm.TogglePowered(ctx))
	before := arm.commandCounts()

	_, err := arm.MoveTo(ctx, 30, 20, 20, true)
	require.NoError(t, err)

	assert.Equal(t, []actuatorCommand{
		{Kind: "seek", Angle: 24},
		{Kind: "seek", Angle: 48},
		{Kind: "seek", Angle: 72},
	}, arm.commandsSince(GripperJoint, before[GripperJoint]))
}

func TestMoveToWithoutGrab(t *testing.T) {
	right := pressedThen(true, 3, true)
	arm := newTestArm(t, testArmConfig(t), right, staticSensor(false))
	ctx := context.Background()
	require.NoError(t, arm.TogglePowered(ctx))
	before := arm.commandCounts()

	_, err := arm.MoveTo(ctx, 30, 20, 20, false)
	require.NoError(t, err)
	assert.Empty(t, arm.commandsSince(GripperJoint, before[GripperJoint]))
	assert.Zero(t, right.reads)
}

func TestJointJogRequiresPower(t *testing.T) {
	arm := newTestArm(t, testArmConfig(t), staticSensor(true), staticSensor(true))

	_, err := arm.JointJog(context.Background(), BaseJoint, true, true, false, 0)
	assert.True(t, errors.Is(err, ErrNotPowered), "got %v", err)
	assert.Equal(t, [numJoints]int{}, arm.commandCounts())
}

func TestJointJogInvalidJoint(t *testing.T) {
	arm := newTestArm(t, testArmConfig(t), staticSensor(true), staticSensor(true))
	ctx := context.Background()
	require.NoError(t, arm.TogglePowered(ctx))

	_, err := arm.JointJog(ctx, numJoints, true, true, false, 0)
	assert.Error(t, err)
	_, err = arm.JointJog(ctx, -1, true, true, false, 0)
	assert.Error(t, err)
}

func TestJointJogReturnsToStart(t *testing.T) {
	right := pressedThen(true, 3, true)
	left := pressedThen(false, 3, true)
	arm := newTestArm(t, testArmConfig(t), right, left)
	ctx := context.Background()
	require.NoError(t, arm.TogglePowered(ctx))
	before := arm.commandCounts()

	angle, err := arm.JointJog(ctx, BaseJoint, true, true, false, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, angle)

	assert.Equal(t, []actuatorCommand{
		{Kind: "seek", Angle: 56, Blocking: true},
		{Kind: "seek", Angle: 112, Blocking: true},
		{Kind: "seek", Angle: 168, Blocking: true},
		{Kind: "seek", Angle: 0, Blocking: true},
	}, arm.commandsSince(BaseJoint, before[BaseJoint]))
}

func TestJointJogResetsReference(t *testing.T) {
	right := pressedThen(true, 2, true)
	left := pressedThen(false, 2, true)
	arm := newTestArm(t, testArmConfig(t), right, left)
	ctx := context.Background()
	require.NoError(t, arm.TogglePowered(ctx))
	before := arm.commandCounts()

	angle, err := arm.JointJog(ctx, GripperJoint, false, true, true, 500)
	require.NoError(t, err)
	assert.Equal(t, 500, angle)
	assert.Equal(t, 500, arm.joints[GripperJoint].HomeAngle())

	assert.Equal(t, []actuatorCommand{
		{Kind: "seek", Angle: 24},
		{Kind: "seek", Angle: 48},
		{Kind: "reset", Angle: 500},
	}, arm.commandsSince(GripperJoint, before[GripperJoint]))

	current, err := arm.joints[GripperJoint].CurrentAngle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 500, current)
}

func TestJointJogLimits(t *testing.T) {
	ctx := context.Background()

	t.Run("limited", func(t *testing.T) {
		arm := newTestArm(t, testArmConfig(t), pressedThen(false, 2, true), pressedThen(true, 2, true))
		require.NoError(t, arm.TogglePowered(ctx))
		before := arm.commandCounts()

		// The shoulder starts at its 30 minimum, so stepping down is clamped.
		_, err := arm.JointJog(ctx, ShoulderJoint, true, true, false, 0)
		require.NoError(t, err)
		assert.Equal(t, []actuatorCommand{
			{Kind: "seek", Angle: 30, Blocking: true},
			{Kind: "seek", Angle: 30, Blocking: true},
			{Kind: "seek", Angle: 30, Blocking: true},
		}, arm.commandsSince(ShoulderJoint, before[ShoulderJoint]))
	})

	t.Run("unlimited", func(t *testing.T) {
		arm := newTestArm(t, testArmConfig(t), pressedThen(false, 2, true), pressedThen(true, 2, true))
		require.NoError(t, arm.TogglePowered(ctx))
		before := arm.commandCounts()

		_, err := arm.JointJog(ctx, ShoulderJoint, true, false, false, 0)
		require.NoError(t, err)
		assert.Equal(t, []actuatorCommand{
			{Kind: "seek", Angle: 29, Blocking: true},
			{Kind: "seek", Angle: 28, Blocking: true},
			{Kind: "seek", Angle: 30, Blocking: true},
		}, arm.commandsSince(ShoulderJoint, before[ShoulderJoint]))
	})
}

func TestJointJogTimeoutSkipsExitActions(t *testing.T) {
	cfg := testArmConfig(t)
	cfg.MaxConvergencePolls = 3
	arm := newTestArm(t, cfg, staticSensor(false), staticSensor(false))
	ctx := context.Background()
	require.NoError(t, arm.TogglePowered(ctx))
	before := arm.commandCounts()

	_, err := arm.JointJog(ctx, ElbowJoint, true, true, true, 10)
	assert.True(t, errors.Is(err, ErrSensorTimeout), "got %v", err)
	assert.Len(t, arm.commandsSince(ElbowJoint, before[ElbowJoint]), 3)
	assert.Equal(t, 90, arm.joints[ElbowJoint].HomeAngle())
}

func TestStatus(t *testing.T) {
	arm := newTestArm(t, testArmConfig(t), staticSensor(true), staticSensor(true))
	ctx := context.Background()
	require.NoError(t, arm.TogglePowered(ctx))

	status, err := arm.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, JointStatus{
		Name:      "shoulder",
		Angle:     30,
		HomeAngle: 2,
		MinAngle:  30,
		MaxAngle:  90,
		Holding:   true,
	}, status[ShoulderJoint])
}

func TestStatusDuringGrab(t *testing.T) {
	sensor := newGatedSensor()
	cfg := testArmConfig(t)
	cfg.MaxConvergencePolls = 100000
	arm := newTestArm(t, cfg, sensor, sensor)
	ctx := context.Background()
	require.NoError(t, arm.TogglePowered(ctx))

	moved := make(chan error, 1)
	go func() {
		_, err := arm.MoveTo(ctx, 30, 20, 20, true)
		moved <- err
	}()
	require.Eventually(t, func() bool { return sensor.reads.Load() > 0 }, time.Second, time.Millisecond)

	type statusResult struct {
		status [numJoints]JointStatus
		err    error
	}
	statusDone := make(chan statusResult, 1)
	go func() {
		status, err := arm.Status(ctx)
		statusDone <- statusResult{status, err}
	}()

	select {
	case res := <-statusDone:
		require.NoError(t, res.err)
		assert.True(t, res.status[GripperJoint].Holding)
		assert.Equal(t, 113, res.status[ElbowJoint].Angle)
	case <-time.After(time.Second):
		t.Fatal("status blocked behind the grab")
	}
	assert.True(t, arm.Powered())
	assert.Equal(t, r3.Vector{X: 30, Y: 20, Z: 20}, arm.Target())

	select {
	case err := <-moved:
		t.Fatalf("grab finished before contact: %v", err)
	default:
	}

	close(sensor.open)
	select {
	case err := <-moved:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("grab did not finish after contact")
	}
}
