package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

// #region request
// Request is a single autonomous payment request. It is treated as immutable
// once handed to the engine.
type Request struct {
	ID        string          `json:"id,omitempty"`
	Agent     string          `json:"agent,omitempty"`
	Recipient string          `json:"recipient"`
	Amount    decimal.Decimal `json:"amount"`
	Purpose   string          `json:"purpose"`
	Timestamp time.Time       `json:"timestamp"`
}

// AmountFloat returns the amount as float64 for scoring math.
func (r Request) AmountFloat() float64 {
	f, _ := r.Amount.Float64()
	return f
}

// #endregion request

// #region vault-status
// VaultStatus is the read-only ledger snapshot taken once per request.
type VaultStatus struct {
	Balance            decimal.Decimal `json:"balance"`
	DailyLimit         decimal.Decimal `json:"daily_limit"`
	DailySpent         decimal.Decimal `json:"daily_spent"`
	RemainingAllowance decimal.Decimal `json:"remaining_allowance"`
	Whitelisted        bool            `json:"whitelisted"`
}

// CoversAmount reports whether both the balance and the remaining daily
// allowance are large enough for amount.
func (v VaultStatus) CoversAmount(amount decimal.Decimal) bool {
	return amount.LessThanOrEqual(v.Balance) && amount.LessThanOrEqual(v.RemainingAllowance)
}

// #endregion vault-status

// #region outcome
// Outcome is what the caller reports back once the real transfer settled.
type Outcome struct {
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	SettledAt time.Time `json:"settled_at,omitempty"`
}

// #endregion outcome
