package storesession

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/spf13/afero"
)

func TestStore_MaxSessionBytes(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test_limit.db")

	// 1. Create a store WITHOUT limit to save a large session
	unlimitedStore, err := NewSQLiteStoreWithConfig(SQLiteConfig{
		DSN: dbPath,
	})
	if err != nil {
		t.Fatalf("failed to create unlimited store: %v", err)
	}

	ctx := context.Background()
	largeData := make([]byte, 1024) // 1KB of data
	// Fill with some data
	for i := range largeData {
		largeData[i] = 'A'
	}

	session := &Session{
		ID:        "largesession",
		Values:    map[string]any{"data": string(largeData)},
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}

	if err := unlimitedStore.Save(ctx, session); err != nil {
		t.Fatalf("failed to save large session: %v", err)
	}
	unlimitedStore.Close()

	// 2. Create a store WITH limit (smaller than session)
	// The encoded size of map{"data": 1KB} will be > 1024 bytes (overhead).
	// Let's set limit to 500 bytes.
	limitedStore, err := NewSQLiteStoreWithConfig(SQLiteConfig{
		DSN:             dbPath,
		MaxSessionBytes: 500,
	})
	if err != nil {
		t.Fatalf("failed to create limited store: %v", err)
	}
	defer limitedStore.Close()

	// 3. Attempt to Get the session
	_, err = limitedStore.Get(ctx, session.ID)
	if err == nil {
		t.Fatal("expected error when getting too large session, got nil")
	}

	if !errors.Is(err, ErrSessionTooLarge) {
		t.Errorf("expected ErrSessionTooLarge, got: %v", err)
	}

	// 4. Attempt to Save a large session directly using limited store
	session.encoded = nil
	if err := limitedStore.Save(ctx, session); err == nil {
		t.Fatal("expected error when saving too large session, got nil")
	} else if !errors.Is(err, ErrSessionTooLarge) {
		t.Errorf("expected ErrSessionTooLarge on Save, got: %v", err)
	}
}

func TestMemcachedStore_MaxSessionBytes(t *testing.T) {
	addr := "127.0.0.1:11211"
	// Check if memcached is running
	c := memcache.New(addr)
	if err := c.Set(&memcache.Item{Key: "ping", Value: []byte("pong"), Expiration: 1}); err != nil {
		t.Skipf("Skipping Memcached test: %v", err)
	}

	ctx := context.Background()
	largeData := make([]byte, 1024) // 1KB
	for i := range largeData {
		largeData[i] = 'A'
	}

	session := &Session{
		ID:        "largememcachedsession",
		Values:    map[string]any{"data": string(largeData)},
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}

	// 1. Create limited store
	store := NewMemcachedStoreWithConfig(MemcachedConfig{
		Servers:         []string{addr},
		TTL:             time.Hour,
		MaxSessionBytes: 500,
	})

	// 2. Test Save enforcement
	if err := store.Save(ctx, session); err == nil {
		t.Fatal("expected error when saving too large session, got nil")
	} else if !errors.Is(err, ErrSessionTooLarge) {
		t.Errorf("expected ErrSessionTooLarge on Save, got: %v", err)
	}

	// 3. Test Get enforcement, writing the record through an unlimited store
	unlimitedStore := NewMemcachedStore(time.Hour, addr)
	if err := unlimitedStore.Save(ctx, session); err != nil {
		t.Fatalf("failed to save large session with unlimited store: %v", err)
	}

	// Now try to Get with limited store
	if _, err := store.Get(ctx, session.ID); err == nil {
		t.Fatal("expected error when getting too large session, got nil")
	} else if !errors.Is(err, ErrSessionTooLarge) {
		t.Errorf("expected ErrSessionTooLarge on Get, got: %v", err)
	}

	// Cleanup
	_ = unlimitedStore.Delete(ctx, session.ID)
}

func TestFileStore_MaxSessionBytes(t *testing.T) {
	fsys := afero.NewMemMapFs()
	ctx := context.Background()

	session := &Session{
		ID:        "largefilesession",
		Values:    map[string]any{"data": strings.Repeat("A", 1024)},
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}

	unlimited, err := NewFileStoreWithFs(fsys, FileConfig{Dir: "/s"})
	if err != nil {
		t.Fatal(err)
	}
	if err := unlimited.Save(ctx, session); err != nil {
		t.Fatalf("failed to save large session: %v", err)
	}

	limited, err := NewFileStoreWithFs(fsys, FileConfig{Dir: "/s", MaxSessionBytes: 500})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := limited.Get(ctx, session.ID); !errors.Is(err, ErrSessionTooLarge) {
		t.Errorf("expected ErrSessionTooLarge on Get, got: %v", err)
	}
	if err := limited.Save(ctx, session); !errors.Is(err, ErrSessionTooLarge) {
		t.Errorf("expected ErrSessionTooLarge on Save, got: %v", err)
	}
}
