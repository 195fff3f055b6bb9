package classifier

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/fraudwatch/internal/synth"
	"github.com/mbd888/fraudwatch/internal/transaction"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func tx(amount int, device string) *transaction.Transaction {
	return &transaction.Transaction{
		UserID:    "user_1",
		Amount:    amount,
		Category:  "Electronics",
		Location:  "Chennai, Tamil Nadu",
		Device:    device,
		IPAddress: "10.0.0.1",
	}
}

// stubRemote returns a fixed verdict or error.
type stubRemote struct {
	verdict *Verdict
	err     error
	calls   int
}

func (s *stubRemote) Analyze(ctx context.Context, tx *transaction.Transaction) (*Verdict, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	v := *s.verdict
	return &v, nil
}

func TestEvaluate_RulePriority(t *testing.T) {
	tests := []struct {
		name      string
		amount    int
		device    string
		wantScore int
		wantLevel string
	}{
		{"high value any device", 50_000, "Mobile App", 85, transaction.RiskHigh},
		{"high value unknown device", 45_000, synth.DeviceUnknown, 85, transaction.RiskHigh},
		{"boundary not high", 40_000, "Mobile App", 5, transaction.RiskLow},
		{"moderate on unknown device", 20_000, synth.DeviceUnknown, 60, transaction.RiskMedium},
		{"moderate on known device", 20_000, "Mobile App", 5, transaction.RiskLow},
		{"boundary not moderate", 15_000, synth.DeviceUnknown, 5, transaction.RiskLow},
		{"normal", 1_000, "Mobile App", 5, transaction.RiskLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Evaluate(tx(tt.amount, tt.device))
			assert.Equal(t, tt.wantScore, v.Score)
			assert.Equal(t, tt.wantLevel, v.Level)
			assert.NotEmpty(t, v.Reason)
		})
	}
}

func TestClassify_RemoteSuccessTaggedWithProvenance(t *testing.T) {
	remote := &stubRemote{verdict: &Verdict{Score: 72, Level: transaction.RiskMedium, Reason: "velocity anomaly"}}
	g := NewGateway(remote, testLogger())

	v := g.Classify(context.Background(), tx(1_000, "Mobile App"))

	assert.Equal(t, SourceRemote, v.Source)
	assert.Equal(t, 72, v.Score)
	assert.Equal(t, transaction.RiskMedium, v.Level)
	assert.True(t, strings.HasPrefix(v.Reason, TagRemote), "reason %q should carry remote tag", v.Reason)
	assert.Contains(t, v.Reason, "velocity anomaly")
}

func TestClassify_RemoteFailureFallsBackToRules(t *testing.T) {
	remote := &stubRemote{err: errors.New("rate limited")}
	g := NewGateway(remote, testLogger())

	v := g.Classify(context.Background(), tx(50_000, "Mobile App"))

	assert.Equal(t, SourceFallback, v.Source)
	assert.Equal(t, 85, v.Score)
	assert.Equal(t, transaction.RiskHigh, v.Level)
	assert.True(t, strings.HasPrefix(v.Reason, TagFallback), "reason %q should carry fallback tag", v.Reason)
	assert.Equal(t, 1, remote.calls)
}

func TestClassify_NilRemoteUsesRules(t *testing.T) {
	g := NewGateway(nil, testLogger())

	v := g.Classify(context.Background(), tx(20_000, synth.DeviceUnknown))

	assert.Equal(t, SourceFallback, v.Source)
	assert.Equal(t, 60, v.Score)
	assert.Equal(t, transaction.RiskMedium, v.Level)
}

func TestClassify_BreakerStopsRemoteAttemptsAfterRepeatedFailures(t *testing.T) {
	remote := &stubRemote{err: errors.New("connection refused")}
	g := NewGateway(remote, testLogger())

	// Trip the breaker, then keep classifying.
	for i := 0; i < breakerThreshold+3; i++ {
		v := g.Classify(context.Background(), tx(1_000, "Mobile App"))
		assert.Equal(t, SourceFallback, v.Source)
	}

	// Remote attempts stop once the circuit opens.
	assert.Equal(t, breakerThreshold, remote.calls)
}

func TestClassify_NeverReturnsEmptyVerdict(t *testing.T) {
	g := NewGateway(&stubRemote{err: errors.New("boom")}, testLogger())

	for _, amount := range []int{500, 1_000, 15_001, 40_001, 145_000} {
		v := g.Classify(context.Background(), tx(amount, synth.DeviceUnknown))
		require.NotEmpty(t, v.Reason)
		require.True(t, transaction.ValidRiskLevel(v.Level))
		require.GreaterOrEqual(t, v.Score, 0)
		require.LessOrEqual(t, v.Score, 100)
	}
}

func TestApply_SetsScoreLevelReasonTogether(t *testing.T) {
	record := tx(1_000, "Mobile App")
	Apply(record, Verdict{Score: 85, Level: transaction.RiskHigh, Reason: "[Fallback] High value transaction detected (Rule-based)."})

	assert.Equal(t, 85, record.FraudRiskScore)
	assert.Equal(t, transaction.RiskHigh, record.RiskLevel)
	assert.NotEmpty(t, record.Reason)
}
