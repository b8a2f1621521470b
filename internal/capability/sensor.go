package capability

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"
)

// Sensor names understood by SimulatedSensors.
const (
	SensorTemperature = "temp1"
	SensorHumidity    = "humi1"
	SensorLight       = "light1"
	SensorBattery     = "batterystate"
)

// DefaultSensors is the telemetry set reported when none is configured.
var DefaultSensors = []string{SensorTemperature, SensorHumidity, SensorLight}

// SimulatedSensors produces plausible readings for hosts without sensor
// hardware. Readings are preformatted numeric text.
type SimulatedSensors struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewSimulatedSensors returns a reader seeded from the clock.
func NewSimulatedSensors() *SimulatedSensors {
	seed := uint64(time.Now().UnixNano()) //nolint:gosec // simulation only
	return NewSimulatedSensorsWithSeed(seed)
}

// NewSimulatedSensorsWithSeed returns a deterministic reader.
func NewSimulatedSensorsWithSeed(seed uint64) *SimulatedSensors {
	return &SimulatedSensors{rnd: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))} //nolint:gosec // simulation only
}

// ReadSensor returns the current reading for name, or false for an
// unknown sensor.
//
//   - temp1: 20.00 to 69.99, two decimals
//   - humi1: 40 to 49
//   - light1: 200 to 249
//   - batterystate: always 1
func (s *SimulatedSensors) ReadSensor(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch name {
	case SensorTemperature:
		return fmt.Sprintf("%.2f", float64(s.rnd.IntN(5000)+2000)/100.0), true
	case SensorHumidity:
		return fmt.Sprintf("%d", s.rnd.IntN(10)+40), true
	case SensorLight:
		return fmt.Sprintf("%d", s.rnd.IntN(50)+200), true
	case SensorBattery:
		return "1", true
	default:
		return "", false
	}
}
