package threeaxis

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
	"go.bug.st/serial/enumerator"
	"go.viam.com/rdk/components/generic"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/services/discovery"
)

// DiscoveryModel finds arms wired to a feetech serial bus.
var DiscoveryModel = resource.NewModel("devrel", "threeaxis", "discovery")

func init() {
	resource.RegisterService(
		discovery.API,
		DiscoveryModel,
		resource.Registration[discovery.Service, *DiscoveryConfig]{
			Constructor: newArmDiscovery,
		})
}

// DiscoveryConfig optionally overrides the servo IDs probed on each port.
type DiscoveryConfig struct {
	ServoIDs []int `json:"servo_ids,omitempty"`
}

// Validate fills the default servo IDs.
func (cfg *DiscoveryConfig) Validate(path string) ([]string, []string, error) {
	if len(cfg.ServoIDs) == 0 {
		cfg.ServoIDs = defaultServoIDs()
	}
	return nil, nil, nil
}

func defaultServoIDs() []int {
	return []int{DefaultGripper.ServoID, DefaultBase.ServoID, DefaultShoulder.ServoID, DefaultElbow.ServoID}
}

// pingFunc reports which of ids answer on port.
type pingFunc func(ctx context.Context, port string, ids []int) []int

type armDiscovery struct {
	resource.Named
	resource.AlwaysRebuild
	resource.TriviallyCloseable
	logger   logging.Logger
	servoIDs []int

	listPorts func() []string
	ping      pingFunc
}

func newArmDiscovery(
	ctx context.Context,
	deps resource.Dependencies,
	conf resource.Config,
	logger logging.Logger,
) (discovery.Service, error) {
	cfg, err := resource.NativeConfig[*DiscoveryConfig](conf)
	if err != nil {
		return nil, err
	}

	ids := cfg.ServoIDs
	if len(ids) == 0 {
		ids = defaultServoIDs()
	}

	dis := &armDiscovery{
		Named:     conf.ResourceName().AsNamed(),
		logger:    logger,
		servoIDs:  ids,
		listPorts: enumerateSerialPorts,
	}
	dis.ping = dis.pingServos
	return dis, nil
}

// DiscoverResources returns one arm configuration per serial port on which
// every probed servo answers.
func (dis *armDiscovery) DiscoverResources(ctx context.Context, extra map[string]any) ([]resource.Config, error) {
	dis.logger.Info("Starting three-axis arm discovery")

	ports, err := dis.scan(ctx)
	configs := make([]resource.Config, 0, len(ports))
	for _, portPath := range ports {
		configs = append(configs, armConfigFor(portPath, dis.servoIDs))
	}
	if err != nil {
		return configs, err
	}

	if len(configs) == 0 {
		dis.logger.Info("No arms discovered")
	} else {
		dis.logger.Infof("Discovered %d arms", len(configs))
	}
	return configs, nil
}

// ScanPorts lists the serial ports on which all four default servos answer.
func ScanPorts(ctx context.Context, logger logging.Logger) ([]string, error) {
	dis := &armDiscovery{
		logger:    logger,
		servoIDs:  defaultServoIDs(),
		listPorts: enumerateSerialPorts,
	}
	dis.ping = dis.pingServos
	return dis.scan(ctx)
}

func (dis *armDiscovery) scan(ctx context.Context) ([]string, error) {
	candidates := filterCandidatePorts(dis.listPorts())
	dis.logger.Debugf("Found %d candidate ports", len(candidates))

	var found []string
	for _, portPath := range candidates {
		select {
		case <-ctx.Done():
			dis.logger.Info("Discovery cancelled")
			return found, ctx.Err()
		default:
		}

		if SharedBuses().InUse(portPath) {
			dis.logger.Debugf("Skipping %s, already in use", portPath)
			continue
		}

		answered := dis.ping(ctx, portPath, dis.servoIDs)
		if len(answered) != len(dis.servoIDs) {
			dis.logger.Debugf("Only %d of %d servos answered on %s", len(answered), len(dis.servoIDs), portPath)
			continue
		}
		dis.logger.Infof("Found arm servos on %s", portPath)
		found = append(found, portPath)
	}
	return found, nil
}

// armConfigFor builds a component config with the servo IDs filled in. Board
// and sensor pins cannot be discovered and are left for the user.
func armConfigFor(portPath string, ids []int) resource.Config {
	attrs := map[string]interface{}{
		"port": portPath,
	}
	if len(ids) == numJoints {
		for i, id := range ids {
			attrs[JointName(i)] = map[string]interface{}{"servo_id": id}
		}
	}

	return resource.Config{
		Name:       "threeaxis-arm-" + extractPortSuffix(portPath),
		API:        generic.API,
		Model:      Model,
		Attributes: attrs,
	}
}

func (dis *armDiscovery) pingServos(ctx context.Context, portPath string, ids []int) []int {
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     portPath,
		BaudRate: defaultBaudrate,
		Protocol: feetech.ProtocolSTS,
		Timeout:  500 * time.Millisecond,
	})
	if err != nil {
		dis.logger.Debugf("Failed to open port %s: %v", portPath, err)
		return nil
	}
	defer bus.Close()

	var found []int
	for _, id := range ids {
		servo := feetech.NewServo(bus, id, &feetech.ModelSTS3215)
		if _, err := servo.Ping(ctx); err == nil {
			found = append(found, id)
		}
	}
	return found
}

// filterCandidatePorts filters serial ports by platform-specific naming patterns
func filterCandidatePorts(ports []string) []string {
	candidates := []string{}
	for _, port := range ports {
		if isCandidatePort(port) {
			candidates = append(candidates, port)
		}
	}
	return candidates
}

var candidatePortPrefixes = []string{
	// Linux
	"/dev/ttyUSB", "/dev/ttyACM",
	// macOS
	"/dev/tty.usbmodem", "/dev/tty.usbserial", "/dev/cu.usbmodem", "/dev/cu.usbserial",
	// Windows
	"COM",
}

func isCandidatePort(port string) bool {
	for _, prefix := range candidatePortPrefixes {
		if strings.HasPrefix(port, prefix) {
			return true
		}
	}
	return false
}

// extractPortSuffix extracts a friendly suffix from port path for naming
// /dev/ttyUSB0 -> "ttyUSB0"
// /dev/tty.usbmodem123 -> "usbmodem123"
func extractPortSuffix(portPath string) string {
	base := filepath.Base(portPath)
	if strings.HasPrefix(base, "tty.usb") {
		return strings.TrimPrefix(base, "tty.")
	}
	if strings.HasPrefix(base, "cu.usb") {
		return strings.TrimPrefix(base, "cu.")
	}
	return base
}

// enumerateSerialPorts returns a list of all serial ports on the system
func enumerateSerialPorts() []string {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return []string{}
	}

	var portPaths []string
	for _, port := range ports {
		portPaths = append(portPaths, port.Name)
	}
	return portPaths
}
