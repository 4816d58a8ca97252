package telemetry

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Physical ranges every generated value is clamped to.
const (
	MinMoisture    = 0
	MaxMoisture    = 100
	MinTemperature = -10
	MaxTemperature = 80
	MinLight       = 0
	MaxLight       = 5000
)

// Ranges the generator draws from, narrower than the physical ones so
// simulated plants spend most of their time looking plausible.
const (
	genMoistureLow     = 15
	genMoistureHigh    = 95
	genTemperatureLow  = 18
	genTemperatureHigh = 38
	genLightLow        = 100
	genLightHigh       = 1000
)

// Generator produces pseudo-random complete samples for one device.
//
// Thread Safety: Next is safe for concurrent use.
type Generator struct {
	mu       sync.Mutex
	rng      *rand.Rand
	deviceID string
	now      func() time.Time
}

// NewGenerator creates a Generator. A zero seed picks a random one.
func NewGenerator(deviceID string, seed uint64) *Generator {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Generator{
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		deviceID: deviceID,
		now:      time.Now,
	}
}

// Next returns a new sample stamped with the current time.
func (g *Generator) Next() Sample {
	g.mu.Lock()
	defer g.mu.Unlock()

	moisture := clamp(float64(g.intBetween(genMoistureLow, genMoistureHigh)), MinMoisture, MaxMoisture)
	temperature := clamp(float64(g.intBetween(genTemperatureLow, genTemperatureHigh)), MinTemperature, MaxTemperature)
	light := clamp(float64(g.intBetween(genLightLow, genLightHigh)), MinLight, MaxLight)

	return Sample{
		DeviceID:    g.deviceID,
		Timestamp:   g.now(),
		Moisture:    &moisture,
		Temperature: &temperature,
		Light:       &light,
	}
}

// intBetween returns an integer in [lo, hi].
func (g *Generator) intBetween(lo, hi int) int {
	return lo + g.rng.IntN(hi-lo+1)
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(hi, v))
}
