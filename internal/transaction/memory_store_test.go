package transaction

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(amount int, level string) *Transaction {
	return &Transaction{
		UserID:         "user_42",
		Amount:         amount,
		Category:       "Electronics",
		Location:       "Bengaluru, Karnataka",
		Timestamp:      time.Now(),
		Device:         "Mobile App",
		IPAddress:      "10.1.2.3",
		FraudRiskScore: 5,
		RiskLevel:      level,
		Reason:         "[Fallback] Normal transaction pattern.",
	}
}

func TestMemoryStore_InsertAssignsID(t *testing.T) {
	s := NewMemoryStore()

	stored, err := s.Insert(context.Background(), sample(1000, RiskLow))
	require.NoError(t, err)
	assert.NotEmpty(t, stored.ID)
	assert.Contains(t, stored.ID, "txn_")
	assert.Equal(t, 1000, stored.Amount)
}

func TestMemoryStore_InsertCopiesInput(t *testing.T) {
	s := NewMemoryStore()
	in := sample(1000, RiskLow)

	stored, err := s.Insert(context.Background(), in)
	require.NoError(t, err)

	// Mutating the caller's copy must not affect the stored record.
	in.Amount = 99999
	listed, err := s.ListRecent(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1000, listed[0].Amount)
	assert.Equal(t, stored.ID, listed[0].ID)
}

func TestMemoryStore_ListRecentNewestFirst(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		tx := sample(1000+i, RiskLow)
		tx.UserID = fmt.Sprintf("user_%d", i)
		_, err := s.Insert(ctx, tx)
		require.NoError(t, err)
	}

	recent, err := s.ListRecent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "user_4", recent[0].UserID)
	assert.Equal(t, "user_3", recent[1].UserID)
	assert.Equal(t, "user_2", recent[2].UserID)
}

func TestMemoryStore_ListRecentLimitLargerThanStored(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.Insert(ctx, sample(1000, RiskLow))
	require.NoError(t, err)

	recent, err := s.ListRecent(ctx, 50)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestMemoryStore_ListRecentRejectsBadLimit(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.ListRecent(context.Background(), 0)
	assert.ErrorIs(t, err, ErrInvalidLimit)
}

func TestMemoryStore_DeleteAll(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.Insert(ctx, sample(1000, RiskLow))
	require.NoError(t, err)
	_, err = s.Insert(ctx, sample(45000, RiskHigh))
	require.NoError(t, err)

	require.NoError(t, s.DeleteAll(ctx))

	recent, err := s.ListRecent(ctx, 50)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestMemoryStore_CountByRiskLevel(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, _ = s.Insert(ctx, sample(1000, RiskLow))
	_, _ = s.Insert(ctx, sample(20000, RiskMedium))
	_, _ = s.Insert(ctx, sample(45000, RiskHigh))
	_, _ = s.Insert(ctx, sample(50000, RiskHigh))

	counts, err := s.CountByRiskLevel(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[RiskLow])
	assert.Equal(t, 1, counts[RiskMedium])
	assert.Equal(t, 2, counts[RiskHigh])
}

func TestValidRiskLevel(t *testing.T) {
	assert.True(t, ValidRiskLevel(RiskLow))
	assert.True(t, ValidRiskLevel(RiskMedium))
	assert.True(t, ValidRiskLevel(RiskHigh))
	assert.False(t, ValidRiskLevel("Critical"))
	assert.False(t, ValidRiskLevel(""))
}
