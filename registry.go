package threeaxis

import (
	"fmt"
	"sync"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
	"go.viam.com/rdk/logging"
)

// busEntry is one open serial bus and the number of components using it.
type busEntry struct {
	bus      *feetech.Bus
	baudrate int
	refCount int
}

// BusRegistry shares one feetech bus per serial port between the components
// configured on it and closes the port when the last one releases it.
type BusRegistry struct {
	mu      sync.Mutex
	entries map[string]*busEntry // port path -> entry
	logger  logging.Logger

	openBus  func(feetech.BusConfig) (*feetech.Bus, error)
	closeBus func(*feetech.Bus) error
}

// NewBusRegistry returns an empty registry that opens real serial ports.
func NewBusRegistry(logger logging.Logger) *BusRegistry {
	return &BusRegistry{
		entries:  make(map[string]*busEntry),
		logger:   logger,
		openBus:  feetech.NewBus,
		closeBus: (*feetech.Bus).Close,
	}
}

// Acquire returns the bus for port, opening it on first use. A port already
// open at a different baudrate is a conflict.
func (r *BusRegistry) Acquire(port string, baudrate int, timeout time.Duration) (*feetech.Bus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.entries[port]; ok {
		if entry.baudrate != baudrate {
			return nil, fmt.Errorf("conflict: port %s is open at %d baud, requested %d (refCount: %d)",
				port, entry.baudrate, baudrate, entry.refCount)
		}
		entry.refCount++
		return entry.bus, nil
	}

	if timeout == 0 {
		timeout = time.Second
	}
	bus, err := r.openBus(feetech.BusConfig{
		Port:     port,
		BaudRate: baudrate,
		Protocol: feetech.ProtocolSTS,
		Timeout:  timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open feetech servo bus on %s: %w", port, err)
	}

	r.entries[port] = &busEntry{bus: bus, baudrate: baudrate, refCount: 1}
	r.logger.Infof("opened feetech servo bus on %s at %d baud", port, baudrate)
	return bus, nil
}

// Release drops one reference to port and closes the bus with the last one.
func (r *BusRegistry) Release(port string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[port]
	if !ok {
		return nil
	}

	entry.refCount--
	if entry.refCount > 0 {
		return nil
	}

	delete(r.entries, port)
	if err := r.closeBus(entry.bus); err != nil {
		return fmt.Errorf("error closing servo bus on %s: %w", port, err)
	}
	r.logger.Infof("closed feetech servo bus on %s", port)
	return nil
}

// RefCount returns how many components currently hold port.
func (r *BusRegistry) RefCount(port string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.entries[port]; ok {
		return entry.refCount
	}
	return 0
}

// InUse reports whether port is currently held by a component.
func (r *BusRegistry) InUse(port string) bool {
	return r.RefCount(port) > 0
}

var (
	sharedBusesOnce sync.Once
	sharedBuses     *BusRegistry
)

// SharedBuses is the process-wide registry used by the module's components.
func SharedBuses() *BusRegistry {
	sharedBusesOnce.Do(func() {
		sharedBuses = NewBusRegistry(logging.NewLogger("threeaxis-bus"))
	})
	return sharedBuses
}
