package bank

import (
	"errors"
	"math/big"
	"sync"
)

// ErrSupplyCapExceeded is returned when a mint request would push the farm
// token supply past its hard cap. The farm engine absorbs this as zero accrual
// for the interval; it never propagates to its callers.
var ErrSupplyCapExceeded = errors.New("bank: reward supply cap exceeded")

// Minter is the farm-token issuance authority. Every successful mint credits
// the recipient's balance on the ledger and counts against the cap. Refusal is
// all-or-nothing; there are no partial fills. Staking rewards are minted to the
// farm module account so that compounded principal stays fully backed by
// custody.
type Minter struct {
	mu     sync.Mutex
	ledger *Ledger
	cap    *big.Int
	minted *big.Int
}

// NewMinter constructs a minter with a hard supply cap. A nil or zero cap
// means unlimited issuance.
func NewMinter(ledger *Ledger, cap *big.Int) *Minter {
	m := &Minter{ledger: ledger, minted: big.NewInt(0)}
	if cap != nil && cap.Sign() > 0 {
		m.cap = new(big.Int).Set(cap)
	}
	return m
}

// Mint issues amount of the farm token to recipient.
func (m *Minter) Mint(recipient [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	next := new(big.Int).Add(m.minted, amount)
	if m.cap != nil && next.Cmp(m.cap) > 0 {
		return ErrSupplyCapExceeded
	}
	if err := m.ledger.Credit(recipient, amount); err != nil {
		return err
	}
	m.minted = next
	return nil
}

// Minted reports the cumulative amount issued so far.
func (m *Minter) Minted() *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return new(big.Int).Set(m.minted)
}

// RestoreMinted overwrites the issuance counter when reloading a snapshot.
func (m *Minter) RestoreMinted(minted *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if minted == nil {
		m.minted = big.NewInt(0)
		return
	}
	m.minted = new(big.Int).Set(minted)
}
