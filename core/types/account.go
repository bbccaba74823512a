package types

import "math/big"

// Account holds one address's balance of the farm token. Staked principal,
// compounded reward and fresh issuance are all denominated in the same token,
// which is what lets the farm fold pending reward into withdrawable principal.
type Account struct {
	Balance *big.Int `json:"balance"`
}

// Normalize replaces a nil balance with zero so callers can do arithmetic
// without nil checks.
func (a *Account) Normalize() *Account {
	if a == nil {
		return &Account{Balance: big.NewInt(0)}
	}
	if a.Balance == nil {
		a.Balance = big.NewInt(0)
	}
	return a
}
