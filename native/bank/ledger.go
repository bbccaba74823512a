package bank

import (
	"errors"
	"math/big"
	"sort"
	"sync"

	"stakefarm/core/types"
)

var (
	ErrInvalidAmount       = errors.New("bank: amount must be positive")
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
)

// Ledger is an in-memory single-token ledger of every account's farm-token
// balance. Farm operations move tokens between participant accounts and the
// farm module account through a ModuleCustody view of this ledger; the Minter
// issues new tokens into it.
type Ledger struct {
	mu       sync.RWMutex
	accounts map[[20]byte]*types.Account
}

func NewLedger() *Ledger {
	return &Ledger{accounts: make(map[[20]byte]*types.Account)}
}

func (l *Ledger) accountLocked(addr [20]byte) *types.Account {
	if acc, ok := l.accounts[addr]; ok {
		return acc.Normalize()
	}
	acc := (&types.Account{}).Normalize()
	l.accounts[addr] = acc
	return acc
}

// Account returns a copy of the account state for addr.
func (l *Ledger) Account(addr [20]byte) *types.Account {
	l.mu.RLock()
	defer l.mu.RUnlock()
	acc, ok := l.accounts[addr]
	if !ok {
		return (&types.Account{}).Normalize()
	}
	return &types.Account{Balance: new(big.Int).Set(acc.Balance)}
}

// Credit adds amount to addr without a counterparty. Used to seed balances at
// genesis and in tests; issuance goes through the Minter instead.
func (l *Ledger) Credit(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.creditLocked(addr, amount)
	return nil
}

func (l *Ledger) creditLocked(addr [20]byte, amount *big.Int) {
	acc := l.accountLocked(addr)
	acc.Balance = new(big.Int).Add(acc.Balance, amount)
}

// Transfer moves amount from one account to another.
func (l *Ledger) Transfer(from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	src := l.accountLocked(from)
	if src.Balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	dst := l.accountLocked(to)
	src.Balance = new(big.Int).Sub(src.Balance, amount)
	dst.Balance = new(big.Int).Add(dst.Balance, amount)
	return nil
}

// StoredAccount pairs an address with its balance for snapshots.
type StoredAccount struct {
	Address [20]byte
	Balance *big.Int
}

// Export returns every non-empty account sorted by address.
func (l *Ledger) Export() []StoredAccount {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]StoredAccount, 0, len(l.accounts))
	for addr, acc := range l.accounts {
		acc.Normalize()
		if acc.Balance.Sign() == 0 {
			continue
		}
		out = append(out, StoredAccount{
			Address: addr,
			Balance: new(big.Int).Set(acc.Balance),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return string(out[i].Address[:]) < string(out[j].Address[:])
	})
	return out
}

// Restore replaces the ledger contents with a previously exported snapshot.
func (l *Ledger) Restore(accounts []StoredAccount) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts = make(map[[20]byte]*types.Account, len(accounts))
	for _, stored := range accounts {
		l.accounts[stored.Address] = (&types.Account{
			Balance: new(big.Int).Set(stored.Balance),
		}).Normalize()
	}
}

// ModuleCustody adapts the ledger to the farm engine's custody interface: the
// module account is the source of every outbound Transfer.
type ModuleCustody struct {
	ledger *Ledger
	module [20]byte
}

func NewModuleCustody(ledger *Ledger, module [20]byte) *ModuleCustody {
	return &ModuleCustody{ledger: ledger, module: module}
}

// TransferFrom pulls amount from a participant into custody.
func (c *ModuleCustody) TransferFrom(from, to [20]byte, amount *big.Int) error {
	return c.ledger.Transfer(from, to, amount)
}

// Transfer pays amount out of the module account.
func (c *ModuleCustody) Transfer(to [20]byte, amount *big.Int) error {
	return c.ledger.Transfer(c.module, to, amount)
}
