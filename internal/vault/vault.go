// Package vault reads the ledger/vault collaborator. The engine only ever
// takes a read-only snapshot per request; it never moves funds.
package vault

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/danielpatrickdp/agentvault/decision-engine/internal/payment"
)

// #region types
// Status is the balance and daily-limit view of one agent's vault.
type Status struct {
	Balance            decimal.Decimal
	DailyLimit         decimal.Decimal
	DailySpent         decimal.Decimal
	RemainingAllowance decimal.Decimal
}

// Reader is the read-only surface of the vault.
type Reader interface {
	Status(ctx context.Context, agent string) (Status, error)
	IsWhitelisted(ctx context.Context, agent, recipient string) (bool, error)
}

// #endregion types

// #region snapshot
// Snapshot reads the status and whitelist entry for one request.
func Snapshot(ctx context.Context, r Reader, agent, recipient string) (payment.VaultStatus, error) {
	st, err := r.Status(ctx, agent)
	if err != nil {
		return payment.VaultStatus{}, fmt.Errorf("vault status: %w", err)
	}
	ok, err := r.IsWhitelisted(ctx, agent, recipient)
	if err != nil {
		return payment.VaultStatus{}, fmt.Errorf("vault whitelist: %w", err)
	}
	return payment.VaultStatus{
		Balance:            st.Balance,
		DailyLimit:         st.DailyLimit,
		DailySpent:         st.DailySpent,
		RemainingAllowance: st.RemainingAllowance,
		Whitelisted:        ok,
	}, nil
}

// WithTimeout bounds every call on r by d. A non-positive d returns r as is.
func WithTimeout(r Reader, d time.Duration) Reader {
	if d <= 0 {
		return r
	}
	return timeoutReader{r: r, d: d}
}

type timeoutReader struct {
	r Reader
	d time.Duration
}

func (t timeoutReader) Status(ctx context.Context, agent string) (Status, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.r.Status(ctx, agent)
}

func (t timeoutReader) IsWhitelisted(ctx context.Context, agent, recipient string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.r.IsWhitelisted(ctx, agent, recipient)
}

// #endregion snapshot

// #region static
// Static is an in-memory Reader for tests, replays and single-agent hosts.
type Static struct {
	mu        sync.RWMutex
	status    map[string]Status
	whitelist map[string]map[string]bool
}

// NewStatic creates an empty Static reader.
func NewStatic() *Static {
	return &Static{
		status:    make(map[string]Status),
		whitelist: make(map[string]map[string]bool),
	}
}

// SetStatus stores the status of agent. A zero remaining allowance is
// derived from the daily limit and spend.
func (s *Static) SetStatus(agent string, st Status) {
	if st.RemainingAllowance.IsZero() {
		st.RemainingAllowance = decimal.Max(st.DailyLimit.Sub(st.DailySpent), decimal.Zero)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[agent] = st
}

// Whitelist marks recipient as whitelisted for agent.
func (s *Static) Whitelist(agent string, recipients ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.whitelist[agent] == nil {
		s.whitelist[agent] = make(map[string]bool)
	}
	for _, r := range recipients {
		s.whitelist[agent][r] = true
	}
}

// Status implements Reader.
func (s *Static) Status(_ context.Context, agent string) (Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.status[agent]
	if !ok {
		return Status{}, fmt.Errorf("unknown agent %q", agent)
	}
	return st, nil
}

// IsWhitelisted implements Reader.
func (s *Static) IsWhitelisted(_ context.Context, agent, recipient string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.whitelist[agent][recipient], nil
}

// #endregion static
