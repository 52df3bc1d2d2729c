package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/sakif/example-author/internal/model"
)

func TestAcquireLock(t *testing.T) {
	now := time.Unix(1700000000, 0)
	ttl := 30 * time.Minute

	tests := []struct {
		name      string
		holder    string    // existing holder, "" for none
		heldUntil time.Time // existing expiration
		identity  string
		wantOwner string
	}{
		{"free lock", "", time.Time{}, "alice@example.com", "alice@example.com"},
		{"own lock is refreshed", "alice@example.com", now.Add(time.Minute), "alice@example.com", "alice@example.com"},
		{"held by someone else", "bob@example.com", now.Add(time.Minute), "alice@example.com", "bob@example.com"},
		{"expired lock is taken", "bob@example.com", now.Add(-time.Second), "alice@example.com", "alice@example.com"},
		{"lock expiring exactly now is taken", "bob@example.com", now, "alice@example.com", "alice@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newTestDB(t)
			ctx := context.Background()

			if tt.holder != "" {
				// Acquire in the past so the stored expiration is heldUntil.
				past := tt.heldUntil.Add(-ttl)
				if _, err := db.AcquireLock(ctx, testResource, tt.holder, past, ttl); err != nil {
					t.Fatalf("seeding lock: %v", err)
				}
			}

			lock, err := db.AcquireLock(ctx, testResource, tt.identity, now, ttl)
			if err != nil {
				t.Fatalf("AcquireLock() error = %v", err)
			}
			if lock.UserEmail != tt.wantOwner {
				t.Errorf("owner = %q, want %q", lock.UserEmail, tt.wantOwner)
			}
			if tt.wantOwner == tt.identity && !lock.Expiration.Equal(now.Add(ttl)) {
				t.Errorf("Expiration = %v, want %v", lock.Expiration, now.Add(ttl))
			}
		})
	}
}

func TestAcquireLock_SeparateResources(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now()

	if _, err := db.AcquireLock(ctx, testResource, "alice@example.com", now, time.Minute); err != nil {
		t.Fatal(err)
	}
	other := model.ResourceID{Language: "python", Package: "os"}
	lock, err := db.AcquireLock(ctx, other, "bob@example.com", now, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if lock.UserEmail != "bob@example.com" {
		t.Errorf("owner of %s = %q, want bob", other, lock.UserEmail)
	}
}

func TestReleaseLock(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now()

	if _, err := db.AcquireLock(ctx, testResource, "alice@example.com", now, time.Hour); err != nil {
		t.Fatal(err)
	}

	// Someone else releasing is a no-op.
	if err := db.ReleaseLock(ctx, testResource, "bob@example.com"); err != nil {
		t.Fatalf("ReleaseLock() error = %v", err)
	}
	lock, err := db.AcquireLock(ctx, testResource, "bob@example.com", now, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if lock.UserEmail != "alice@example.com" {
		t.Fatalf("lock stolen after foreign release: owner = %q", lock.UserEmail)
	}

	if err := db.ReleaseLock(ctx, testResource, "alice@example.com"); err != nil {
		t.Fatalf("ReleaseLock() error = %v", err)
	}
	lock, err = db.AcquireLock(ctx, testResource, "bob@example.com", now, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if lock.UserEmail != "bob@example.com" {
		t.Errorf("owner after release = %q, want bob", lock.UserEmail)
	}
}

func TestActiveLocks(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Unix(1700000000, 0)

	if _, err := db.AcquireLock(ctx, testResource, "alice@example.com", now, time.Hour); err != nil {
		t.Fatal(err)
	}
	stale := model.ResourceID{Language: "python", Package: "os"}
	if _, err := db.AcquireLock(ctx, stale, "bob@example.com", now.Add(-2*time.Hour), time.Hour); err != nil {
		t.Fatal(err)
	}

	locks, err := db.ActiveLocks(ctx, now)
	if err != nil {
		t.Fatalf("ActiveLocks() error = %v", err)
	}
	if len(locks) != 1 || locks[0].Package != "json" {
		t.Errorf("ActiveLocks() = %+v, want only the json lock", locks)
	}
}
