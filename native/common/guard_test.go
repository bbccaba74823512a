package common

import (
	"errors"
	"testing"
)

type stubPauseView struct {
	modules map[string]bool
}

func (s stubPauseView) IsPaused(module string) bool {
	return s.modules[module]
}

func TestGuardPaused(t *testing.T) {
	p := stubPauseView{modules: map[string]bool{"farming": true}}
	if err := Guard(p, "farming"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := Guard(p, "bank"); err != nil {
		t.Fatalf("unexpected error for unpaused module: %v", err)
	}
	if err := Guard(nil, "farming"); err != nil {
		t.Fatalf("nil view must allow entry, got %v", err)
	}
}

func TestEntryGuardRejectsNestedEntry(t *testing.T) {
	var g EntryGuard
	if err := g.Enter(); err != nil {
		t.Fatalf("first entry failed: %v", err)
	}
	if err := g.Enter(); !errors.Is(err, ErrReentrancy) {
		t.Fatalf("expected ErrReentrancy, got %v", err)
	}
	g.Exit()
	if err := g.Enter(); err != nil {
		t.Fatalf("entry after release failed: %v", err)
	}
	g.Exit()
}
