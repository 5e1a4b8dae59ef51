package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"crypto-trading-bot/internal/model"
	"crypto-trading-bot/internal/strategy"
)

func executeDecision(side model.Side) strategy.Decision {
	return strategy.Decision{Side: side, Action: strategy.ActionExecute, Price: 100, Amount: 1}
}

func TestAutoConfirm(t *testing.T) {
	t.Parallel()
	assert.Equal(t, Approved, AutoConfirm{}.Confirm(context.Background(), "btc", executeDecision(model.SideBuy)))
}

func TestManualConfirmation_ApprovalExpires(t *testing.T) {
	t.Parallel()

	at := now
	sink := &recordingSink{}
	m := NewManualConfirmation(sink, zap.NewNop())
	m.now = func() time.Time { return at }
	ctx := context.Background()

	assert.Equal(t, Pending, m.Confirm(ctx, "btc", executeDecision(model.SideBuy)))
	require.NoError(t, m.Approve("btc", model.SideBuy))

	at = at.Add(approvalTTL + time.Second)
	assert.Equal(t, Pending, m.Confirm(ctx, "btc", executeDecision(model.SideBuy)))
	// 过期后重新通知
	assert.Len(t, sink.all(), 2)
}

func TestManualConfirmation_Reject(t *testing.T) {
	t.Parallel()

	m := NewManualConfirmation(&recordingSink{}, zap.NewNop())
	ctx := context.Background()

	assert.ErrorIs(t, m.Approve("btc", model.SideSell), ErrNoPendingProposal)
	assert.ErrorIs(t, m.Reject("btc", model.SideSell), ErrNoPendingProposal)

	assert.Equal(t, Pending, m.Confirm(ctx, "btc", executeDecision(model.SideSell)))
	require.NoError(t, m.Reject("btc", model.SideSell))
	assert.Empty(t, m.Pending())

	assert.Equal(t, Rejected, m.Confirm(ctx, "btc", executeDecision(model.SideSell)))
	assert.Equal(t, Pending, m.Confirm(ctx, "btc", executeDecision(model.SideSell)))
}

func TestManualConfirmation_PendingIsSorted(t *testing.T) {
	t.Parallel()

	m := NewManualConfirmation(&recordingSink{}, zap.NewNop())
	ctx := context.Background()
	m.Confirm(ctx, "eth", executeDecision(model.SideSell))
	m.Confirm(ctx, "btc", executeDecision(model.SideSell))
	m.Confirm(ctx, "btc", executeDecision(model.SideBuy))

	got := m.Pending()
	require.Len(t, got, 3)
	assert.Equal(t, "btc", got[0].Instance)
	assert.Equal(t, model.SideBuy, got[0].Side)
	assert.Equal(t, model.SideSell, got[1].Side)
	assert.Equal(t, "eth", got[2].Instance)
}
