package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"crypto-trading-bot/internal/model"
	"crypto-trading-bot/internal/notify"
	"crypto-trading-bot/internal/strategy"

	"go.uber.org/zap"
)

const approvalTTL = 2 * time.Minute

// ErrNoPendingProposal 没有等待确认的下单建议
var ErrNoPendingProposal = errors.New("no pending proposal")

// Verdict 人工确认结果
type Verdict int

const (
	Approved Verdict = iota
	Pending
	Rejected
)

// ConfirmationPort 决定 EXECUTE 决策是否可以下单，不得阻塞决策循环
type ConfirmationPort interface {
	Confirm(ctx context.Context, instance string, d strategy.Decision) Verdict
}

// AutoConfirm 自动执行模式，总是批准
type AutoConfirm struct{}

func (AutoConfirm) Confirm(context.Context, string, strategy.Decision) Verdict { return Approved }

// Proposal 等待人工确认的下单建议
type Proposal struct {
	Instance   string
	Side       model.Side
	Price      float64
	Amount     float64
	ProposedAt time.Time
	ApprovedAt time.Time
}

type proposalKey struct {
	instance string
	side     model.Side
}

// ManualConfirmation 记录待确认的建议并通知一次；批准在 2 分钟内由该方向的下一次 EXECUTE 消费
type ManualConfirmation struct {
	mu        sync.Mutex
	proposals map[proposalKey]*Proposal
	rejected  map[proposalKey]bool

	sink   notify.Sink
	logger *zap.Logger
	now    func() time.Time
}

func NewManualConfirmation(sink notify.Sink, logger *zap.Logger) *ManualConfirmation {
	return &ManualConfirmation{
		proposals: make(map[proposalKey]*Proposal),
		rejected:  make(map[proposalKey]bool),
		sink:      sink,
		logger:    logger,
		now:       time.Now,
	}
}

func (m *ManualConfirmation) Confirm(ctx context.Context, instance string, d strategy.Decision) Verdict {
	key := proposalKey{instance: instance, side: d.Side}
	now := m.now()

	m.mu.Lock()
	if m.rejected[key] {
		delete(m.rejected, key)
		m.mu.Unlock()
		return Rejected
	}
	p, exists := m.proposals[key]
	if exists && !p.ApprovedAt.IsZero() {
		if now.Sub(p.ApprovedAt) <= approvalTTL {
			delete(m.proposals, key)
			m.mu.Unlock()
			return Approved
		}
		// 批准已过期，重新等待确认
		exists = false
	}
	if exists {
		p.Price, p.Amount = d.Price, d.Amount
		m.mu.Unlock()
		return Pending
	}
	m.proposals[key] = &Proposal{Instance: instance, Side: d.Side, Price: d.Price, Amount: d.Amount, ProposedAt: now}
	m.mu.Unlock()

	msg := fmt.Sprintf("*Confirmation required* [%s] %s %.8f @ %.8f. Value: %.2f -> %.2f",
		instance, d.Label(), d.Amount, d.Price, d.OriginalPortfolioValue, d.FinalPortfolioValue)
	if err := m.sink.Send(ctx, msg); err != nil {
		m.logger.Warn("Failed to send confirmation request", zap.String("Instance", instance), zap.Error(err))
	}
	return Pending
}

// Approve 批准某个方向当前的建议
func (m *ManualConfirmation) Approve(instance string, side model.Side) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.proposals[proposalKey{instance: instance, side: side}]
	if !ok {
		return fmt.Errorf("%w: %s %s", ErrNoPendingProposal, instance, side)
	}
	p.ApprovedAt = m.now()
	return nil
}

// Reject 拒绝当前建议，下一次 EXECUTE 决策变为 SKIP
func (m *ManualConfirmation) Reject(instance string, side model.Side) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := proposalKey{instance: instance, side: side}
	if _, ok := m.proposals[key]; !ok {
		return fmt.Errorf("%w: %s %s", ErrNoPendingProposal, instance, side)
	}
	delete(m.proposals, key)
	m.rejected[key] = true
	return nil
}

// Pending 当前所有建议，按实例与方向排序
func (m *ManualConfirmation) Pending() []Proposal {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Proposal, 0, len(m.proposals))
	for _, p := range m.proposals {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Instance != out[j].Instance {
			return out[i].Instance < out[j].Instance
		}
		return out[i].Side < out[j].Side
	})
	return out
}
