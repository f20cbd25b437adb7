package store

import (
	"testing"

	"github.com/google/uuid"
)

func TestCurrentSessionStateRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	// Nothing recorded yet.
	got, err := LoadCurrentSessionID()
	if err != nil {
		t.Fatalf("LoadCurrentSessionID: %v", err)
	}
	if got != nil {
		t.Fatalf("got %s, want nil", got)
	}

	want := uuid.New()
	if err := SaveCurrentSessionID(want); err != nil {
		t.Fatalf("SaveCurrentSessionID: %v", err)
	}

	got, err = LoadCurrentSessionID()
	if err != nil {
		t.Fatalf("LoadCurrentSessionID: %v", err)
	}
	if got == nil || *got != want {
		t.Fatalf("got %v, want %s", got, want)
	}

	// Overwrite wins.
	next := uuid.New()
	if err := SaveCurrentSessionID(next); err != nil {
		t.Fatalf("SaveCurrentSessionID: %v", err)
	}
	got, err = LoadCurrentSessionID()
	if err != nil {
		t.Fatalf("LoadCurrentSessionID: %v", err)
	}
	if got == nil || *got != next {
		t.Fatalf("got %v, want %s", got, next)
	}
}

func TestClearCurrentSessionID(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	// Clearing with no state file is fine.
	if err := ClearCurrentSessionID(); err != nil {
		t.Fatalf("ClearCurrentSessionID on empty state: %v", err)
	}

	if err := SaveCurrentSessionID(uuid.New()); err != nil {
		t.Fatalf("SaveCurrentSessionID: %v", err)
	}
	if err := ClearCurrentSessionID(); err != nil {
		t.Fatalf("ClearCurrentSessionID: %v", err)
	}

	got, err := LoadCurrentSessionID()
	if err != nil {
		t.Fatalf("LoadCurrentSessionID: %v", err)
	}
	if got != nil {
		t.Fatalf("got %s after clear, want nil", got)
	}
}
