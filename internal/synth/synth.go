// Package synth generates synthetic e-commerce transactions for the
// fraud simulation. All fields are drawn independently from fixed domains;
// generated records are unscored until the classifier runs.
package synth

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/mbd888/fraudwatch/internal/transaction"
)

// Field domains. Any nonempty enumeration works; these mirror the demo's
// Indian e-commerce flavor.
var (
	Categories = []string{
		"Electronics", "Fashion", "Home & Garden", "Luxury", "Services", "Groceries",
	}

	Locations = []string{
		"Bengaluru, Karnataka",
		"Chennai, Tamil Nadu",
		"Hyderabad, Telangana",
		"Kochi, Kerala",
		"Mysore, Karnataka",
		"Coimbatore, Tamil Nadu",
		"Trivandrum, Kerala",
		"Visakhapatnam, Andhra Pradesh",
		"Madurai, Tamil Nadu",
		"Vijayawada, Andhra Pradesh",
	}
)

// Amount bounds in whole currency units.
const (
	MinAmount = 500
	MaxAmount = 50_500

	IncidentMinAmount = 95_000
	IncidentMaxAmount = 145_000
)

const (
	DeviceMobile  = "Mobile App"
	DeviceUnknown = "Unknown Device"

	// DefaultUnknownDeviceRate is the probability a generated transaction
	// comes from an unknown device.
	DefaultUnknownDeviceRate = 0.2
)

// Fixed adversarial values used by the forced-incident generator.
const (
	IncidentUserPrefix = "attack_sim_"
	IncidentLocation   = "Unknown Location"
	IncidentDevice     = "Rooted Device / Emulator"
	IncidentIPAddress  = "203.0.113.13"
)

// Generator produces synthetic transactions from an injectable randomness
// source. Safe for concurrent use.
type Generator struct {
	mu                sync.Mutex
	rng               *rand.Rand
	unknownDeviceRate float64
	now               func() time.Time
}

// Option configures the generator
type Option func(*Generator)

// WithRand injects a seeded randomness source (for tests).
func WithRand(rng *rand.Rand) Option {
	return func(g *Generator) {
		g.rng = rng
	}
}

// WithUnknownDeviceRate overrides the unknown-device probability.
func WithUnknownDeviceRate(rate float64) Option {
	return func(g *Generator) {
		g.unknownDeviceRate = rate
	}
}

// WithClock injects a clock (for tests).
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		g.now = now
	}
}

// New creates a generator seeded from the system randomness source.
func New(opts ...Option) *Generator {
	g := &Generator{
		rng:               rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		unknownDeviceRate: DefaultUnknownDeviceRate,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns one unscored transaction with every field drawn at random.
func (g *Generator) Generate() *transaction.Transaction {
	g.mu.Lock()
	defer g.mu.Unlock()

	device := DeviceMobile
	if g.rng.Float64() < g.unknownDeviceRate {
		device = DeviceUnknown
	}

	return &transaction.Transaction{
		UserID:    fmt.Sprintf("user_%d", g.rng.IntN(1000)),
		Amount:    MinAmount + g.rng.IntN(MaxAmount-MinAmount+1),
		Category:  Categories[g.rng.IntN(len(Categories))],
		Location:  Locations[g.rng.IntN(len(Locations))],
		Timestamp: g.now(),
		Device:    device,
		IPAddress: g.randomIP(),
		RiskLevel: transaction.RiskLow,
	}
}

// GenerateIncident returns an unscored transaction biased toward a high-risk
// verdict: outsized amount, unknown location, rooted device, flagged IP.
func (g *Generator) GenerateIncident() *transaction.Transaction {
	g.mu.Lock()
	defer g.mu.Unlock()

	return &transaction.Transaction{
		UserID:    fmt.Sprintf("%s%d", IncidentUserPrefix, g.rng.IntN(1000)),
		Amount:    IncidentMinAmount + g.rng.IntN(IncidentMaxAmount-IncidentMinAmount+1),
		Category:  Categories[g.rng.IntN(len(Categories))],
		Location:  IncidentLocation,
		Timestamp: g.now(),
		Device:    IncidentDevice,
		IPAddress: IncidentIPAddress,
		RiskLevel: transaction.RiskLow,
	}
}

// randomIP draws four independent octets. Synthetic label only, never
// validated as a routable address. Caller holds g.mu.
func (g *Generator) randomIP() string {
	return fmt.Sprintf("%d.%d.%d.%d",
		g.rng.IntN(256), g.rng.IntN(256), g.rng.IntN(256), g.rng.IntN(256))
}
