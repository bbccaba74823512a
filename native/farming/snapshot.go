package farming

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"stakefarm/storage"
)

var farmStateKey = []byte("farming/state")

// SaveState persists an RLP-encoded snapshot of the engine to the database.
func (e *Engine) SaveState(db storage.Database) error {
	if db == nil {
		return fmt.Errorf("farming engine: nil database")
	}
	encoded, err := rlp.EncodeToBytes(e.ExportState())
	if err != nil {
		return fmt.Errorf("farming engine: encode snapshot: %w", err)
	}
	return db.Put(farmStateKey, encoded)
}

// LoadState restores the engine from a snapshot previously written with
// SaveState. A missing record is reported so callers can fall back to a fresh
// start.
func (e *Engine) LoadState(db storage.Database) (bool, error) {
	if db == nil {
		return false, fmt.Errorf("farming engine: nil database")
	}
	encoded, err := db.Get(farmStateKey)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("farming engine: read snapshot: %w", err)
	}
	state := new(FarmState)
	if err := rlp.DecodeBytes(encoded, state); err != nil {
		return false, fmt.Errorf("farming engine: decode snapshot: %w", err)
	}
	if err := e.RestoreState(state); err != nil {
		return false, err
	}
	return true, nil
}
