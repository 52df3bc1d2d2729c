package model

import "time"

// User is an account that can author examples.
//
// Email is the identity used everywhere else: it is the JWT subject, the lock
// holder and the comment author. Accounts come from GitHub OAuth (GitHubID set)
// or from email/password registration (PasswordHash set).
//
// WHY *int64 FOR GitHubID?
// Password accounts have no GitHub id. The column is UNIQUE, and SQLite allows
// any number of NULLs in a UNIQUE column, so a nil pointer maps to NULL.
type User struct {
	ID           string    `json:"id"`
	GitHubID     *int64    `json:"githubId,omitempty"`
	Login        string    `json:"login"`
	Email        string    `json:"email"`
	AvatarURL    string    `json:"avatarUrl"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
