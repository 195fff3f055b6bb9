// Package simulation runs the transaction stream: a supervised loop that
// generates a synthetic transaction on every tick, scores it, persists it
// and fans it out to subscribers.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mbd888/fraudwatch/internal/classifier"
	"github.com/mbd888/fraudwatch/internal/metrics"
	"github.com/mbd888/fraudwatch/internal/synth"
	"github.com/mbd888/fraudwatch/internal/traces"
	"github.com/mbd888/fraudwatch/internal/transaction"
)

// Errors
var (
	ErrAlreadyRunning = errors.New("simulation already running")
	ErrNotRunning     = errors.New("simulation not running")
)

// IncidentFloorScore is the minimum score a forced incident carries.
// The classifier still sees the transaction, but an incident is always
// surfaced as high risk regardless of its verdict.
const IncidentFloorScore = 90

// Classifier produces a risk verdict for a transaction. It is total:
// implementations must always return a usable verdict.
type Classifier interface {
	Classify(ctx context.Context, tx *transaction.Transaction) classifier.Verdict
}

// Publisher fans scored transactions out to live subscribers.
type Publisher interface {
	PublishNew(tx *transaction.Transaction)
	PublishAlert(tx *transaction.Transaction)
	PublishReset()
}

// Status is a snapshot of the controller state.
type Status struct {
	Running      bool          `json:"running"`
	TickInterval time.Duration `json:"tickInterval"`
	StartedAt    *time.Time    `json:"startedAt,omitempty"`
	Ticks        int64         `json:"ticks"`
	TickFailures int64         `json:"tickFailures"`
	Incidents    int64         `json:"incidents"`
}

// Controller owns the simulation loop. Start and Stop are idempotent in the
// sense that repeated calls are rejected with a typed error rather than
// spawning a second schedule or touching a stopped one.
type Controller struct {
	store      transaction.Store
	classifier Classifier
	publisher  Publisher
	generator  *synth.Generator
	interval   time.Duration
	logger     *slog.Logger

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	loopDone  chan struct{}
	startedAt time.Time

	ticks        atomic.Int64
	tickFailures atomic.Int64
	incidents    atomic.Int64
}

// NewController creates a simulation controller. It does not start the loop.
func NewController(store transaction.Store, cls Classifier, pub Publisher, gen *synth.Generator, interval time.Duration, logger *slog.Logger) *Controller {
	return &Controller{
		store:      store,
		classifier: cls,
		publisher:  pub,
		generator:  gen,
		interval:   interval,
		logger:     logger,
	}
}

// Start launches the simulation loop. Returns ErrAlreadyRunning if a loop is
// already scheduled; the existing schedule is left untouched.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return ErrAlreadyRunning
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.loopDone = make(chan struct{})
	c.running = true
	c.startedAt = time.Now()
	metrics.SimulationRunning.Set(1)

	go c.run(loopCtx, c.loopDone)

	c.logger.Info("simulation started", "interval", c.interval)
	return nil
}

// Stop halts the simulation loop and waits for the in-flight tick to finish.
// Returns ErrNotRunning if no loop is scheduled.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return ErrNotRunning
	}
	cancel := c.cancel
	done := c.loopDone
	c.running = false
	c.cancel = nil
	c.mu.Unlock()

	cancel()
	<-done
	metrics.SimulationRunning.Set(0)

	c.logger.Info("simulation stopped")
	return nil
}

// Running reports whether the loop is scheduled.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Status returns a snapshot of the controller state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	running := c.running
	startedAt := c.startedAt
	c.mu.Unlock()

	st := Status{
		Running:      running,
		TickInterval: c.interval,
		Ticks:        c.ticks.Load(),
		TickFailures: c.tickFailures.Load(),
		Incidents:    c.incidents.Load(),
	}
	if running {
		st.StartedAt = &startedAt
	}
	return st
}

func (c *Controller) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.safeTick(ctx)
		}
	}
}

// safeTick guards a single tick so a panic in one tick cannot kill the
// schedule.
func (c *Controller) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			c.tickFailures.Add(1)
			metrics.TickFailuresTotal.Inc()
			c.logger.Error("panic in simulation tick", "panic", fmt.Sprint(r))
		}
	}()
	c.tick(ctx)
}

func (c *Controller) tick(ctx context.Context) {
	c.ticks.Add(1)

	ctx, span := traces.StartSpan(ctx, "simulation.tick")
	defer span.End()

	tx := c.generator.Generate()
	_, _ = c.scoreAndEmit(ctx, tx, nil)
}

// scoreAndEmit runs a transaction through the scoring pipeline. If override
// is non-nil it replaces the classifier's verdict after classification.
// A persistence failure drops the transaction: nothing is published and the
// schedule keeps running.
func (c *Controller) scoreAndEmit(ctx context.Context, tx *transaction.Transaction, override func(classifier.Verdict) classifier.Verdict) (*transaction.Transaction, error) {
	verdict := c.classifier.Classify(ctx, tx)
	if override != nil {
		verdict = override(verdict)
	}
	classifier.Apply(tx, verdict)

	ctx, span := traces.StartSpan(ctx, "simulation.emit",
		traces.Amount(tx.Amount),
		traces.RiskLevel(tx.RiskLevel),
		traces.RiskScore(tx.FraudRiskScore),
		traces.VerdictSource(string(verdict.Source)),
	)
	defer span.End()

	stored, err := c.store.Insert(ctx, tx)
	if err != nil {
		c.tickFailures.Add(1)
		metrics.TickFailuresTotal.Inc()
		c.logger.Error("failed to persist transaction",
			"userId", tx.UserID,
			"amount", tx.Amount,
			"error", err,
		)
		return nil, err
	}
	span.SetAttributes(traces.TransactionID(stored.ID))
	metrics.TransactionsGeneratedTotal.WithLabelValues(stored.RiskLevel).Inc()

	c.logger.Info("transaction scored",
		"id", stored.ID,
		"amount", stored.Amount,
		"riskLevel", stored.RiskLevel,
		"score", stored.FraudRiskScore,
		"source", verdict.Source,
	)

	c.publisher.PublishNew(stored)
	c.publisher.PublishAlert(stored)
	return stored, nil
}

// ForceIncident pushes one attack-shaped transaction through the pipeline
// immediately. It works whether or not the loop is running and never touches
// the schedule. The classifier still scores the transaction; its verdict is
// folded into the reason but the incident always surfaces as high risk.
func (c *Controller) ForceIncident(ctx context.Context) (*transaction.Transaction, error) {
	ctx, span := traces.StartSpan(ctx, "simulation.incident")
	defer span.End()

	tx := c.generator.GenerateIncident()

	stored, err := c.scoreAndEmit(ctx, tx, func(v classifier.Verdict) classifier.Verdict {
		score := v.Score
		if score < IncidentFloorScore {
			score = IncidentFloorScore
		}
		return classifier.Verdict{
			Score:  score,
			Level:  transaction.RiskHigh,
			Reason: fmt.Sprintf("Forced incident simulation. Classifier verdict (%s): %s", v.Level, v.Reason),
			Source: v.Source,
		}
	})
	if err != nil {
		return nil, fmt.Errorf("persist incident: %w", err)
	}

	c.incidents.Add(1)
	c.logger.Warn("forced incident emitted", "id", stored.ID, "amount", stored.Amount)
	return stored, nil
}

// ResetHistory clears the stored transaction history and tells subscribers
// to drop their local state. The simulation schedule is unaffected.
func (c *Controller) ResetHistory(ctx context.Context) error {
	ctx, span := traces.StartSpan(ctx, "simulation.reset")
	defer span.End()

	if err := c.store.DeleteAll(ctx); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}

	c.publisher.PublishReset()
	c.logger.Info("transaction history reset")
	return nil
}

// RiskBreakdown returns stored transaction counts grouped by risk band.
func (c *Controller) RiskBreakdown(ctx context.Context) (map[string]int, error) {
	return c.store.CountByRiskLevel(ctx)
}
