package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/example-author/internal/apperror"
	"github.com/sakif/example-author/internal/model"
)

func githubID(id int64) *int64 { return &id }

// createTestUser creates a GitHub user and fails the test if it errors.
func createTestUser(t *testing.T, db *DB, id int64, login string) *model.User {
	t.Helper()
	user := &model.User{
		GitHubID:  githubID(id),
		Login:     login,
		Email:     login + "@example.com",
		AvatarURL: "https://avatars.githubusercontent.com/u/123",
	}
	if err := db.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

func TestCreateUser(t *testing.T) {
	db := newTestDB(t)

	user := createTestUser(t, db, 12345, "testuser")

	if user.ID == "" {
		t.Error("CreateUser() did not set user.ID")
	}
	if user.CreatedAt.IsZero() || user.UpdatedAt.IsZero() {
		t.Error("CreateUser() did not set timestamps")
	}
}

func TestCreateUser_PasswordAccountHasNoGitHubID(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for _, email := range []string{"a@example.com", "b@example.com"} {
		u := &model.User{Email: email, PasswordHash: "hash"}
		if err := db.CreateUser(ctx, u); err != nil {
			t.Fatalf("CreateUser(%s) error = %v", email, err)
		}
	}

	got, err := db.GetUserByEmail(ctx, "b@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail() error = %v", err)
	}
	if got.GitHubID != nil {
		t.Errorf("GitHubID = %v, want nil", *got.GitHubID)
	}
	if got.PasswordHash != "hash" {
		t.Errorf("PasswordHash = %q, want hash", got.PasswordHash)
	}
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, 1, "dup")

	err := db.CreateUser(context.Background(), &model.User{Email: "dup@example.com"})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("CreateUser() error = %v, want ErrConflict", err)
	}
}

func TestGetUserByID(t *testing.T) {
	db := newTestDB(t)
	created := createTestUser(t, db, 111, "getbyid_user")

	found, err := db.GetUserByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if found.Login != "getbyid_user" {
		t.Errorf("Login = %q, want %q", found.Login, "getbyid_user")
	}
	if found.GitHubID == nil || *found.GitHubID != 111 {
		t.Errorf("GitHubID = %v, want 111", found.GitHubID)
	}
}

func TestGetUserByID_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetUserByID(context.Background(), "nonexistent-id")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetUserByID() error = %v, want ErrNotFound", err)
	}
}

func TestUpsert_NewUser(t *testing.T) {
	db := newTestDB(t)

	user := &model.User{GitHubID: githubID(55555), Login: "new_upsert_user", Email: "new@example.com"}
	if err := db.Upsert(context.Background(), user); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if user.ID == "" {
		t.Error("Upsert() did not set user.ID for new user")
	}

	found, err := db.GetUserByEmail(context.Background(), "new@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail() after Upsert: %v", err)
	}
	if found.ID != user.ID {
		t.Errorf("ID = %q, want %q", found.ID, user.ID)
	}
}

func TestUpsert_ExistingUserKeepsID(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first := &model.User{GitHubID: githubID(66666), Login: "original", Email: "old@example.com"}
	if err := db.Upsert(ctx, first); err != nil {
		t.Fatalf("Upsert() first login: %v", err)
	}

	second := &model.User{GitHubID: githubID(66666), Login: "updated", Email: "new@example.com"}
	if err := db.Upsert(ctx, second); err != nil {
		t.Fatalf("Upsert() second login: %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("Upsert() changed user ID: got %q, want %q", second.ID, first.ID)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("Upsert() changed CreatedAt: got %v, want %v", second.CreatedAt, first.CreatedAt)
	}

	found, err := db.GetUserByID(ctx, first.ID)
	if err != nil {
		t.Fatal(err)
	}
	if found.Login != "updated" || found.Email != "new@example.com" {
		t.Errorf("profile not refreshed: %+v", found)
	}
}

func TestUpsert_LinksPasswordAccount(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	pw := &model.User{Email: "carol@example.com", PasswordHash: "hash"}
	if err := db.CreateUser(ctx, pw); err != nil {
		t.Fatal(err)
	}

	gh := &model.User{GitHubID: githubID(42), Login: "carol", Email: "carol@example.com"}
	if err := db.Upsert(ctx, gh); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if gh.ID != pw.ID {
		t.Errorf("Upsert() created a second account: %q vs %q", gh.ID, pw.ID)
	}
	if gh.PasswordHash != "hash" {
		t.Error("Upsert() dropped the password hash")
	}
}

func TestUpsert_RequiresGitHubID(t *testing.T) {
	db := newTestDB(t)

	err := db.Upsert(context.Background(), &model.User{Email: "x@example.com"})
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("Upsert() error = %v, want ErrValidation", err)
	}
}
