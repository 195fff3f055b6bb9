// Package transaction defines the transaction record and its storage contract.
//
// A transaction is created unscored by the synthesizer, enriched in place by
// the classifier gateway, persisted exactly once by the simulation controller,
// and immutable afterwards (whole-history deletion aside).
package transaction

import (
	"context"
	"errors"
	"time"
)

// Risk levels assigned by classification.
const (
	RiskLow    = "Low"
	RiskMedium = "Medium"
	RiskHigh   = "High"
)

// Errors
var (
	ErrNotFound     = errors.New("transaction not found")
	ErrInvalidLimit = errors.New("limit must be positive")
)

// Transaction is the unit of work and the unit of storage.
//
// FraudRiskScore and RiskLevel are always written together by the classifier
// (or the forced-incident override); consumers never observe one without the
// other. Reason is non-empty once scoring completes and carries a provenance
// tag naming the scoring path.
type Transaction struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	Amount         int       `json:"amount"`
	Category       string    `json:"category"`
	Location       string    `json:"location"`
	Timestamp      time.Time `json:"timestamp"`
	Device         string    `json:"device"`
	IPAddress      string    `json:"ipAddress"`
	FraudRiskScore int       `json:"fraudRiskScore"`
	RiskLevel      string    `json:"riskLevel"`
	Reason         string    `json:"reason"`
}

// ValidRiskLevel reports whether s is one of the three risk bands.
func ValidRiskLevel(s string) bool {
	return s == RiskLow || s == RiskMedium || s == RiskHigh
}

// Store persists finalized transactions.
type Store interface {
	// Insert appends a transaction, assigning its identity. The returned
	// record is the stored copy.
	Insert(ctx context.Context, tx *Transaction) (*Transaction, error)
	// ListRecent returns up to limit transactions, newest first.
	ListRecent(ctx context.Context, limit int) ([]*Transaction, error)
	// DeleteAll removes every stored transaction.
	DeleteAll(ctx context.Context) error
	// CountByRiskLevel returns stored transaction counts keyed by risk level.
	CountByRiskLevel(ctx context.Context) (map[string]int, error)
}
