// Package classifier scores transactions for fraud risk.
//
// Classification is a two-stage pipeline: a remote LLM classifier is tried
// first, and any failure whatsoever (missing credential, transport error,
// unparseable response) falls back to a deterministic rule table. The
// gateway is total: it always returns a usable verdict and never surfaces
// an error to the caller. The reason text carries a provenance tag so
// auditors can tell AI-derived verdicts from rule-derived ones.
package classifier

import (
	"context"
	"log/slog"
	"time"

	"github.com/mbd888/fraudwatch/internal/circuitbreaker"
	"github.com/mbd888/fraudwatch/internal/metrics"
	"github.com/mbd888/fraudwatch/internal/transaction"
)

// Source identifies which scoring path produced a verdict.
type Source string

const (
	SourceRemote   Source = "remote"
	SourceFallback Source = "fallback"
)

// Provenance tags embedded in verdict reasons.
const (
	TagRemote   = "[AI]"
	TagFallback = "[Fallback]"
)

// Verdict is the triple produced by classification.
type Verdict struct {
	Score  int
	Level  string
	Reason string
	Source Source
}

// Remote is the contract the gateway requires of an external classifier.
// Implementations return an error for any condition that should trigger
// the rule fallback.
type Remote interface {
	Analyze(ctx context.Context, tx *transaction.Transaction) (*Verdict, error)
}

// Circuit breaker settings for the remote path. Five consecutive remote
// failures stop remote attempts for thirty seconds; each failed attempt
// would otherwise cost a full request timeout per tick.
const (
	breakerThreshold    = 5
	breakerOpenDuration = 30 * time.Second
)

// Gateway classifies transactions with remote-first, rules-on-failure
// semantics.
type Gateway struct {
	remote  Remote // nil = remote path disabled
	breaker *circuitbreaker.Breaker
	logger  *slog.Logger
}

// NewGateway creates a classifier gateway. A nil remote disables the remote
// path entirely; every verdict then comes from the rule table.
func NewGateway(remote Remote, logger *slog.Logger) *Gateway {
	return &Gateway{
		remote:  remote,
		breaker: circuitbreaker.New(breakerThreshold, breakerOpenDuration),
		logger:  logger,
	}
}

// Classify scores a transaction. It never fails: any remote error is
// recovered locally via the rule table.
func (g *Gateway) Classify(ctx context.Context, tx *transaction.Transaction) Verdict {
	if g.remote != nil && g.breaker.Allow() {
		v, err := g.remote.Analyze(ctx, tx)
		if err == nil {
			g.breaker.RecordSuccess()
			v.Source = SourceRemote
			v.Reason = TagRemote + " " + v.Reason
			metrics.ClassificationsTotal.WithLabelValues(string(SourceRemote)).Inc()
			return *v
		}
		g.breaker.RecordFailure()
		g.logger.Warn("remote classification failed, using rule fallback",
			"error", err,
			"amount", tx.Amount,
			"breaker_state", g.breaker.State().String(),
		)
	}

	v := Evaluate(tx)
	v.Source = SourceFallback
	v.Reason = TagFallback + " " + v.Reason
	metrics.ClassificationsTotal.WithLabelValues(string(SourceFallback)).Inc()
	return v
}

// Apply writes a verdict onto a transaction. Score and level are always set
// together so a consumer never observes one without the other.
func Apply(tx *transaction.Transaction, v Verdict) {
	tx.FraudRiskScore = v.Score
	tx.RiskLevel = v.Level
	tx.Reason = v.Reason
}
