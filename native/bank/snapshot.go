package bank

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"stakefarm/storage"
)

var ledgerStateKey = []byte("bank/state")

type ledgerSnapshot struct {
	Accounts []StoredAccount
	Minted   *big.Int
}

// SaveState persists the ledger balances and the issuance counter.
func SaveState(db storage.Database, ledger *Ledger, minter *Minter) error {
	if db == nil {
		return fmt.Errorf("bank: nil database")
	}
	snap := ledgerSnapshot{Accounts: ledger.Export(), Minted: minter.Minted()}
	encoded, err := rlp.EncodeToBytes(snap)
	if err != nil {
		return fmt.Errorf("bank: encode snapshot: %w", err)
	}
	return db.Put(ledgerStateKey, encoded)
}

// LoadState restores the ledger and minter from a stored snapshot, reporting
// whether one was found.
func LoadState(db storage.Database, ledger *Ledger, minter *Minter) (bool, error) {
	if db == nil {
		return false, fmt.Errorf("bank: nil database")
	}
	encoded, err := db.Get(ledgerStateKey)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("bank: read snapshot: %w", err)
	}
	snap := new(ledgerSnapshot)
	if err := rlp.DecodeBytes(encoded, snap); err != nil {
		return false, fmt.Errorf("bank: decode snapshot: %w", err)
	}
	ledger.Restore(snap.Accounts)
	minter.RestoreMinted(snap.Minted)
	return true, nil
}
