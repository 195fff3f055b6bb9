package transaction

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mbd888/fraudwatch/internal/idgen"
)

// PostgresStore implements Store with PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed transaction store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the transactions table
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS transactions (
			id               VARCHAR(36) PRIMARY KEY,
			user_id          VARCHAR(64) NOT NULL,
			amount           BIGINT NOT NULL,
			category         VARCHAR(64) NOT NULL,
			location         VARCHAR(128) NOT NULL,
			ts               TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			device           VARCHAR(64),
			ip_address       VARCHAR(45),
			fraud_risk_score INT NOT NULL DEFAULT 0,
			risk_level       VARCHAR(10) NOT NULL DEFAULT 'Low',
			reason           TEXT,
			CONSTRAINT chk_score_range CHECK (fraud_risk_score BETWEEN 0 AND 100),
			CONSTRAINT chk_risk_level CHECK (risk_level IN ('Low', 'Medium', 'High'))
		);

		CREATE INDEX IF NOT EXISTS idx_transactions_ts ON transactions(ts DESC);
		CREATE INDEX IF NOT EXISTS idx_transactions_risk ON transactions(risk_level);
	`)
	return err
}

func (p *PostgresStore) Insert(ctx context.Context, tx *Transaction) (*Transaction, error) {
	stored := *tx
	stored.ID = idgen.WithPrefix("txn_")

	_, err := p.db.ExecContext(ctx, `
		INSERT INTO transactions (id, user_id, amount, category, location, ts, device, ip_address, fraud_risk_score, risk_level, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, stored.ID, stored.UserID, stored.Amount, stored.Category, stored.Location,
		stored.Timestamp, stored.Device, stored.IPAddress,
		stored.FraudRiskScore, stored.RiskLevel, stored.Reason)
	if err != nil {
		return nil, fmt.Errorf("failed to insert transaction: %w", err)
	}

	return &stored, nil
}

func (p *PostgresStore) ListRecent(ctx context.Context, limit int) ([]*Transaction, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, amount, category, location, ts, device, ip_address, fraud_risk_score, risk_level, reason
		FROM transactions
		ORDER BY ts DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var result []*Transaction
	for rows.Next() {
		var tx Transaction
		var device, ip, reason sql.NullString
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.Amount, &tx.Category, &tx.Location,
			&tx.Timestamp, &device, &ip, &tx.FraudRiskScore, &tx.RiskLevel, &reason); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		tx.Device = device.String
		tx.IPAddress = ip.String
		tx.Reason = reason.String
		result = append(result, &tx)
	}
	return result, rows.Err()
}

func (p *PostgresStore) DeleteAll(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM transactions`)
	if err != nil {
		return fmt.Errorf("failed to delete transactions: %w", err)
	}
	return nil
}

func (p *PostgresStore) CountByRiskLevel(ctx context.Context) (map[string]int, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT risk_level, COUNT(*) FROM transactions GROUP BY risk_level
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count transactions: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var level string
		var n int
		if err := rows.Scan(&level, &n); err != nil {
			return nil, err
		}
		counts[level] = n
	}
	return counts, rows.Err()
}
