package session

import (
	"os"
	"path/filepath"
	"testing"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "session.json"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestSaveLoadClear(t *testing.T) {
	store := testStore(t)

	if _, ok, err := store.Load(); err != nil || ok {
		t.Fatalf("fresh store must be empty, ok=%v err=%v", ok, err)
	}

	saved := Session{
		Token:       "token-1",
		AccountKind: "teacher",
		Role:        "teacher",
		User:        UserSummary{ID: "acc-1", TenantID: "tenant-1", Email: "t@demo.local"},
	}
	if err := store.Save(saved); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, ok, err := store.Load()
	if err != nil || !ok {
		t.Fatalf("load after save, ok=%v err=%v", ok, err)
	}
	if loaded.Token != "token-1" || loaded.AccountKind != "teacher" || loaded.User.ID != "acc-1" {
		t.Fatalf("unexpected session: %+v", loaded)
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok, _ := store.Load(); ok {
		t.Fatalf("load after clear must report empty")
	}
	// Clearing an already-empty slot is fine.
	if err := store.Clear(); err != nil {
		t.Fatalf("second clear: %v", err)
	}
}

func TestLoadToleratesExternalClear(t *testing.T) {
	store := testStore(t)
	if err := store.Save(Session{Token: "token-1", AccountKind: "admin"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	// Another tab clears the shared slot out from under us.
	if err := os.Remove(store.path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok, err := store.Load(); err != nil || ok {
		t.Fatalf("expected empty after external clear, ok=%v err=%v", ok, err)
	}
}

func TestLoadCorruptSlotFailsClosed(t *testing.T) {
	store := testStore(t)
	if err := os.WriteFile(store.path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, ok, err := store.Load(); err != nil || ok {
		t.Fatalf("corrupt slot must read as logged out, ok=%v err=%v", ok, err)
	}
}
