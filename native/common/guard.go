package common

import (
	"errors"
	"sync"
)

var (
	ErrModulePaused = errors.New("module paused")
	ErrReentrancy   = errors.New("reentrant call while module busy")
)

// PauseView reports whether a module has been administratively paused.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects entry into a paused module.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// EntryGuard serialises state-mutating entry points with a busy flag. External
// collaborator calls happen mid-operation, so a nested entry while the flag is
// set would observe half-committed state; Enter fails immediately instead of
// blocking.
type EntryGuard struct {
	mu   sync.Mutex
	busy bool
}

// Enter claims the guard. It returns ErrReentrancy when the guard is already
// held. Every successful Enter must be paired with Exit on all return paths.
func (g *EntryGuard) Enter() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.busy {
		return ErrReentrancy
	}
	g.busy = true
	return nil
}

// Exit releases the guard.
func (g *EntryGuard) Exit() {
	g.mu.Lock()
	g.busy = false
	g.mu.Unlock()
}
