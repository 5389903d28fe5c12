package session

import (
	"errors"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestUserLifecycle(t *testing.T) {
	store := openTestStore(t)

	if err := store.CreateUser("alice", "hunter22"); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if err := store.CreateUser("alice", "other-password"); !errors.Is(err, ErrUserExists) {
		t.Errorf("Duplicate user: expected ErrUserExists, got %v", err)
	}

	if err := store.Authenticate("alice", "hunter22"); err != nil {
		t.Errorf("Authenticate with correct password failed: %v", err)
	}
	if err := store.Authenticate("alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Wrong password: expected ErrInvalidCredentials, got %v", err)
	}
	if err := store.Authenticate("nobody", "hunter22"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Unknown user: expected ErrInvalidCredentials, got %v", err)
	}
}

func TestProgramRoundTrip(t *testing.T) {
	store := openTestStore(t)

	source := "A=1\n? A\nHALT\n"
	if err := store.SaveProgram("alice", "counter", source); err != nil {
		t.Fatalf("SaveProgram failed: %v", err)
	}

	got, err := store.LoadProgram("alice", "counter")
	if err != nil {
		t.Fatalf("LoadProgram failed: %v", err)
	}
	if got != source {
		t.Errorf("Loaded source differs: got %q, want %q", got, source)
	}

	// Saving again replaces the previous version.
	updated := "A=2\nHALT\n"
	if err := store.SaveProgram("alice", "counter", updated); err != nil {
		t.Fatalf("SaveProgram (update) failed: %v", err)
	}
	got, err = store.LoadProgram("alice", "counter")
	if err != nil {
		t.Fatalf("LoadProgram after update failed: %v", err)
	}
	if got != updated {
		t.Errorf("Updated source differs: got %q, want %q", got, updated)
	}
}

func TestListProgramsPerUser(t *testing.T) {
	store := openTestStore(t)

	store.SaveProgram("alice", "one", "HALT")
	store.SaveProgram("alice", "two", "HALT")
	store.SaveProgram("bob", "three", "HALT")

	names, err := store.ListPrograms("alice")
	if err != nil {
		t.Fatalf("ListPrograms failed: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("Expected 2 programs for alice, got %d: %v", len(names), names)
	}
	for _, name := range names {
		if name != "one" && name != "two" {
			t.Errorf("Unexpected program name %q", name)
		}
	}
}

func TestLoadMissingProgram(t *testing.T) {
	store := openTestStore(t)

	if _, err := store.LoadProgram("alice", "ghost"); !errors.Is(err, ErrProgramNotFound) {
		t.Errorf("Expected ErrProgramNotFound, got %v", err)
	}
}

func TestDeleteProgram(t *testing.T) {
	store := openTestStore(t)

	store.SaveProgram("alice", "doomed", "HALT")
	if err := store.DeleteProgram("alice", "doomed"); err != nil {
		t.Fatalf("DeleteProgram failed: %v", err)
	}
	if _, err := store.LoadProgram("alice", "doomed"); !errors.Is(err, ErrProgramNotFound) {
		t.Errorf("Program should be gone, got %v", err)
	}

	// Deleting again is not an error.
	if err := store.DeleteProgram("alice", "doomed"); err != nil {
		t.Errorf("Second delete should be a no-op, got %v", err)
	}
}
