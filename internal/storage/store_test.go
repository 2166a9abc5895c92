package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(":memory:", zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to open SQLite in-memory database: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStores(t *testing.T) {
	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": newTestSQLite(t),
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			if _, err := store.Load("focus/missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Expected ErrNotFound, got %v", err)
			}

			if err := store.Save("focus/default", []byte(`{"mode":"studying"}`)); err != nil {
				t.Fatalf("Failed to save: %v", err)
			}
			value, err := store.Load("focus/default")
			if err != nil {
				t.Fatalf("Failed to load: %v", err)
			}
			if string(value) != `{"mode":"studying"}` {
				t.Errorf("Expected stored value, got %s", value)
			}

			// overwrite
			if err := store.Save("focus/default", []byte(`{"mode":"on_break"}`)); err != nil {
				t.Fatalf("Failed to overwrite: %v", err)
			}
			value, err = store.Load("focus/default")
			if err != nil {
				t.Fatalf("Failed to load after overwrite: %v", err)
			}
			if string(value) != `{"mode":"on_break"}` {
				t.Errorf("Expected overwritten value, got %s", value)
			}
		})
	}
}

func TestMemoryStore_CopiesValues(t *testing.T) {
	store := NewMemoryStore()
	value := []byte("abc")
	store.Save("k", value)
	value[0] = 'x'

	loaded, _ := store.Load("k")
	if string(loaded) != "abc" {
		t.Errorf("Expected stored copy 'abc', got '%s'", loaded)
	}
	loaded[1] = 'y'
	again, _ := store.Load("k")
	if string(again) != "abc" {
		t.Errorf("Expected Load to return a copy, got '%s'", again)
	}
}

func TestSQLiteStore_ListAndDelete(t *testing.T) {
	store := newTestSQLite(t)

	for i := 0; i < 3; i++ {
		if err := store.Save(fmt.Sprintf("stats/%d", i), []byte("{}")); err != nil {
			t.Fatalf("Failed to save: %v", err)
		}
	}
	store.Save("focus/a", []byte("{}"))

	keys, err := store.ListKeys("stats/")
	if err != nil {
		t.Fatalf("Failed to list keys: %v", err)
	}
	if len(keys) != 3 {
		t.Fatalf("Expected 3 keys, got %d (%v)", len(keys), keys)
	}
	if keys[0] != "stats/0" {
		t.Errorf("Expected keys in order, got %v", keys)
	}

	if err := store.Delete("stats/1"); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if _, err := store.Load("stats/1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
	if err := store.Delete("stats/1"); err != nil {
		t.Errorf("Expected deleting a missing key to succeed, got %v", err)
	}
}

func TestSQLiteStore_MigrateIsRepeatable(t *testing.T) {
	store := newTestSQLite(t)
	if err := store.Migrate(); err != nil {
		t.Fatalf("Expected second migration run to succeed, got %v", err)
	}
	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Expected ping to succeed, got %v", err)
	}
}
