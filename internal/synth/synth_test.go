package synth

import (
	"math/rand/v2"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/fraudwatch/internal/transaction"
)

func seeded(seed uint64) *Generator {
	return New(WithRand(rand.New(rand.NewPCG(seed, seed))))
}

func TestGenerate_FieldsWithinDomains(t *testing.T) {
	g := seeded(1)

	categories := make(map[string]bool)
	locations := make(map[string]bool)

	for i := 0; i < 500; i++ {
		tx := g.Generate()

		assert.GreaterOrEqual(t, tx.Amount, MinAmount)
		assert.LessOrEqual(t, tx.Amount, MaxAmount)
		assert.Contains(t, Categories, tx.Category)
		assert.Contains(t, Locations, tx.Location)
		assert.True(t, tx.Device == DeviceMobile || tx.Device == DeviceUnknown)
		assert.True(t, strings.HasPrefix(tx.UserID, "user_"))
		assert.NotNil(t, net.ParseIP(tx.IPAddress), "IP %q should be dotted-quad shaped", tx.IPAddress)

		// Unscored defaults
		assert.Equal(t, 0, tx.FraudRiskScore)
		assert.Equal(t, transaction.RiskLow, tx.RiskLevel)
		assert.Empty(t, tx.Reason)
		assert.Empty(t, tx.ID)

		categories[tx.Category] = true
		locations[tx.Location] = true
	}

	// 500 draws should visit every enumeration member
	assert.Len(t, categories, len(Categories))
	assert.Len(t, locations, len(Locations))
}

func TestGenerate_UnknownDeviceRate(t *testing.T) {
	g := seeded(7)

	unknown := 0
	const n = 2000
	for i := 0; i < n; i++ {
		if g.Generate().Device == DeviceUnknown {
			unknown++
		}
	}

	rate := float64(unknown) / n
	assert.InDelta(t, DefaultUnknownDeviceRate, rate, 0.05, "unknown-device rate should be near 20%%")
}

func TestGenerate_UnknownDeviceRateOverride(t *testing.T) {
	g := New(
		WithRand(rand.New(rand.NewPCG(3, 3))),
		WithUnknownDeviceRate(1.0),
	)

	for i := 0; i < 20; i++ {
		assert.Equal(t, DeviceUnknown, g.Generate().Device)
	}
}

func TestGenerate_UsesInjectedClock(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g := New(
		WithRand(rand.New(rand.NewPCG(9, 9))),
		WithClock(func() time.Time { return at }),
	)

	assert.Equal(t, at, g.Generate().Timestamp)
}

func TestGenerate_Deterministic(t *testing.T) {
	a := seeded(42)
	b := seeded(42)

	for i := 0; i < 10; i++ {
		ta, tb := a.Generate(), b.Generate()
		// Same seed, same draw sequence
		require.Equal(t, ta.Amount, tb.Amount)
		require.Equal(t, ta.Category, tb.Category)
		require.Equal(t, ta.Location, tb.Location)
		require.Equal(t, ta.Device, tb.Device)
		require.Equal(t, ta.IPAddress, tb.IPAddress)
	}
}

func TestGenerateIncident_AdversarialBias(t *testing.T) {
	g := seeded(11)

	for i := 0; i < 200; i++ {
		tx := g.GenerateIncident()

		assert.GreaterOrEqual(t, tx.Amount, IncidentMinAmount)
		assert.LessOrEqual(t, tx.Amount, IncidentMaxAmount)
		assert.True(t, strings.HasPrefix(tx.UserID, IncidentUserPrefix))
		assert.Equal(t, IncidentLocation, tx.Location)
		assert.Equal(t, IncidentDevice, tx.Device)
		assert.Equal(t, IncidentIPAddress, tx.IPAddress)
	}
}

func TestIncidentRangeDisjointFromNormalRange(t *testing.T) {
	assert.Greater(t, IncidentMinAmount, MaxAmount)
}
