package threeaxis

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"go.viam.com/rdk/resource"
)

// JointConfig is the static configuration of one joint. Angles are in actuator
// units, i.e. joint degrees multiplied by the gear ratio.
type JointConfig struct {
	ServoID   int `json:"servo_id,omitempty"`
	GearRatio int `json:"gear_ratio,omitempty"`
	MaxSpeed  int `json:"max_speed,omitempty"` // actuator units per second
	HomeAngle int `json:"home_angle"`
	MinAngle  int `json:"min_angle"`
	MaxAngle  int `json:"max_angle"`
}

// Default joint configuration of the reference arm. The shoulder's home angle
// sits below its travel; powering on recovers by seeking the bound.
var (
	DefaultGripper  = JointConfig{ServoID: 1, GearRatio: 24, MaxSpeed: 2 * 360, HomeAngle: 0, MinAngle: 0, MaxAngle: 90 * 24}
	DefaultBase     = JointConfig{ServoID: 2, GearRatio: 56, MaxSpeed: 2 * 360, HomeAngle: 0, MinAngle: -60 * 56, MaxAngle: 60 * 56}
	DefaultShoulder = JointConfig{ServoID: 3, GearRatio: 1, MaxSpeed: 30, HomeAngle: 2, MinAngle: 30, MaxAngle: 90}
	DefaultElbow    = JointConfig{ServoID: 4, GearRatio: 1, MaxSpeed: 30, HomeAngle: 90, MinAngle: 60, MaxAngle: 180}
)

const (
	defaultLinkLength1    = 30 * 0.8
	defaultLinkLength2    = 24 * 0.8
	defaultBaudrate       = 1000000
	defaultPollIntervalMs = 10
	defaultMaxPolls       = 3000
	defaultSeekTimeoutMs  = 10000
	defaultBusTimeoutMs   = 1000
)

// Config describes the arm, its sensors and where its hardware is wired.
type Config struct {
	// Serial bus for the servos
	Port      string `json:"port,omitempty"`
	Baudrate  int    `json:"baudrate,omitempty"`
	TimeoutMs int    `json:"timeout_ms,omitempty"`

	// Simulated actuators and sensors, no hardware required
	Fake bool `json:"fake,omitempty"`

	// Board hosting the contact sensors and indicator lights
	Board             string `json:"board,omitempty"`
	RightSensorPin    string `json:"right_sensor_pin,omitempty"`
	LeftSensorPin     string `json:"left_sensor_pin,omitempty"`
	SensorsActiveHigh bool   `json:"sensors_active_high,omitempty"`
	IndicatorOffPin   string `json:"indicator_off_pin,omitempty"`
	IndicatorOnPin    string `json:"indicator_on_pin,omitempty"`

	LinkLength1 float64 `json:"link_length_1,omitempty"`
	LinkLength2 float64 `json:"link_length_2,omitempty"`

	Gripper  *JointConfig `json:"gripper,omitempty"`
	Base     *JointConfig `json:"base,omitempty"`
	Shoulder *JointConfig `json:"shoulder,omitempty"`
	Elbow    *JointConfig `json:"elbow,omitempty"`

	PollIntervalMs      int `json:"poll_interval_ms,omitempty"`
	MaxConvergencePolls int `json:"max_convergence_polls,omitempty"`
	SeekTimeoutMs       int `json:"seek_timeout_ms,omitempty"`
}

// Validate fills defaults and checks the configuration. The board is returned as
// a dependency when sensors are wired to it.
func (cfg *Config) Validate(path string) ([]string, []string, error) {
	var deps []string

	if !cfg.Fake {
		if cfg.Port == "" {
			return nil, nil, resource.NewConfigValidationFieldRequiredError(path, "port")
		}
		if cfg.Board == "" {
			return nil, nil, resource.NewConfigValidationFieldRequiredError(path, "board")
		}
		if cfg.RightSensorPin == "" {
			return nil, nil, resource.NewConfigValidationFieldRequiredError(path, "right_sensor_pin")
		}
		if cfg.LeftSensorPin == "" {
			return nil, nil, resource.NewConfigValidationFieldRequiredError(path, "left_sensor_pin")
		}
		if (cfg.IndicatorOffPin == "") != (cfg.IndicatorOnPin == "") {
			return nil, nil, fmt.Errorf("indicator_off_pin and indicator_on_pin must be set together")
		}
		deps = append(deps, cfg.Board)
	}

	if err := cfg.ApplyDefaults(); err != nil {
		return nil, nil, err
	}
	return deps, nil, nil
}

// ApplyDefaults fills unset fields and checks the arm description, leaving the
// wiring of sensors to the caller.
func (cfg *Config) ApplyDefaults() error {
	cfg.setDefaults()

	if cfg.LinkLength1 <= 0 || cfg.LinkLength2 <= 0 {
		return fmt.Errorf("link lengths must be positive, got %v and %v", cfg.LinkLength1, cfg.LinkLength2)
	}
	if cfg.PollIntervalMs < 0 || cfg.MaxConvergencePolls < 0 || cfg.SeekTimeoutMs < 0 {
		return fmt.Errorf("poll_interval_ms, max_convergence_polls and seek_timeout_ms cannot be negative")
	}

	for i, jc := range cfg.Joints() {
		if err := jc.validate(); err != nil {
			return fmt.Errorf("%s: %w", JointName(i), err)
		}
	}
	return nil
}

func (cfg *Config) setDefaults() {
	if cfg.Baudrate == 0 {
		cfg.Baudrate = defaultBaudrate
	}
	if cfg.TimeoutMs == 0 {
		cfg.TimeoutMs = defaultBusTimeoutMs
	}
	if cfg.LinkLength1 == 0 {
		cfg.LinkLength1 = defaultLinkLength1
	}
	if cfg.LinkLength2 == 0 {
		cfg.LinkLength2 = defaultLinkLength2
	}
	if cfg.PollIntervalMs == 0 {
		cfg.PollIntervalMs = defaultPollIntervalMs
	}
	if cfg.MaxConvergencePolls == 0 {
		cfg.MaxConvergencePolls = defaultMaxPolls
	}
	if cfg.SeekTimeoutMs == 0 {
		cfg.SeekTimeoutMs = defaultSeekTimeoutMs
	}

	defaults := []JointConfig{DefaultGripper, DefaultBase, DefaultShoulder, DefaultElbow}
	for i, jc := range []**JointConfig{&cfg.Gripper, &cfg.Base, &cfg.Shoulder, &cfg.Elbow} {
		if *jc == nil {
			d := defaults[i]
			*jc = &d
			continue
		}
		if (*jc).ServoID == 0 {
			(*jc).ServoID = defaults[i].ServoID
		}
		if (*jc).GearRatio == 0 {
			(*jc).GearRatio = defaults[i].GearRatio
		}
		if (*jc).MaxSpeed == 0 {
			(*jc).MaxSpeed = defaults[i].MaxSpeed
		}
	}
}

func (jc *JointConfig) validate() error {
	if jc.ServoID < 0 || jc.ServoID > 253 {
		return fmt.Errorf("invalid servo ID: %d", jc.ServoID)
	}
	if jc.GearRatio < 1 {
		return fmt.Errorf("gear_ratio must be at least 1, got %d", jc.GearRatio)
	}
	if jc.MaxSpeed <= 0 {
		return fmt.Errorf("max_speed must be positive, got %d", jc.MaxSpeed)
	}
	if jc.MinAngle > jc.MaxAngle {
		return fmt.Errorf("invalid range: min (%d) must not exceed max (%d)", jc.MinAngle, jc.MaxAngle)
	}
	return nil
}

// Joints returns the joint configurations in controller order. Call after Validate.
func (cfg *Config) Joints() [numJoints]*JointConfig {
	return [numJoints]*JointConfig{cfg.Gripper, cfg.Base, cfg.Shoulder, cfg.Elbow}
}

// Geometry returns the link lengths of the planar sub-arm.
func (cfg *Config) Geometry() Geometry {
	return Geometry{LinkLength1: cfg.LinkLength1, LinkLength2: cfg.LinkLength2}
}

func (cfg *Config) pollInterval() time.Duration {
	return time.Duration(cfg.PollIntervalMs) * time.Millisecond
}

func (cfg *Config) seekTimeout() time.Duration {
	return time.Duration(cfg.SeekTimeoutMs) * time.Millisecond
}

// BusTimeout is the serial read timeout of the servo bus.
func (cfg *Config) BusTimeout() time.Duration {
	return time.Duration(cfg.TimeoutMs) * time.Millisecond
}

// JointName is the human readable name of a joint index.
func JointName(joint int) string {
	switch joint {
	case GripperJoint:
		return "gripper"
	case BaseJoint:
		return "base"
	case ShoulderJoint:
		return "shoulder"
	case ElbowJoint:
		return "elbow"
	default:
		return fmt.Sprintf("joint%d", joint)
	}
}

// LoadConfigFile reads a configuration saved as JSON and applies defaults.
func LoadConfigFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// SaveConfigFile writes cfg as indented JSON.
func SaveConfigFile(filePath string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
