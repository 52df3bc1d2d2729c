package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Password length bounds. bcrypt silently truncates input past 72 bytes, so
// longer passwords are rejected instead of being half-checked.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 72
)

// ErrInvalidPassword is returned by Verify on a mismatch.
var ErrInvalidPassword = errors.New("auth: invalid password")

// PasswordService hashes and checks passwords for email/password accounts.
// The bcrypt cost is a field so tests can run at the minimum cost.
type PasswordService struct {
	cost int
}

// NewPasswordService uses bcrypt.DefaultCost.
func NewPasswordService() *PasswordService {
	return &PasswordService{cost: bcrypt.DefaultCost}
}

// NewPasswordServiceWithCost is for tests in other packages. Production code
// uses NewPasswordService.
func NewPasswordServiceWithCost(cost int) *PasswordService {
	return &PasswordService{cost: cost}
}

// CheckStrength enforces the length bounds without hashing.
func (p *PasswordService) CheckStrength(plaintext string) error {
	switch {
	case len(plaintext) < MinPasswordLength:
		return fmt.Errorf("auth: password must be at least %d characters", MinPasswordLength)
	case len(plaintext) > MaxPasswordLength:
		return fmt.Errorf("auth: password must be %d bytes or fewer", MaxPasswordLength)
	}
	return nil
}

// Hash returns the bcrypt hash of plaintext. The salt and cost are embedded
// in the result, so it is stored as-is.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if err := p.CheckStrength(plaintext); err != nil {
		return "", err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}
	return string(hashed), nil
}

// Verify returns nil when plaintext matches hash and ErrInvalidPassword when
// it does not. Any other error means the hash itself is unusable.
func (p *PasswordService) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrInvalidPassword
		}
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}
