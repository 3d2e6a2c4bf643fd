package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// MinPasswordLength is the shortest accepted password, in bytes.
	MinPasswordLength = 12
	// MaxPasswordLength is bcrypt's input limit, in bytes.
	MaxPasswordLength = 72
)

var (
	// ErrInvalidPassword indicates a password outside the length policy.
	ErrInvalidPassword = errors.New("auth: password does not satisfy policy")
	// ErrInvalidCredentials indicates a username/password pair did not verify.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
)

// PasswordPolicyMessage describes the policy enforced by ValidPassword.
var PasswordPolicyMessage = fmt.Sprintf("Password must be between %d and %d characters", MinPasswordLength, MaxPasswordLength)

// dummyHash is compared against when no real hash exists so that unknown
// accounts take as long to reject as wrong passwords.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// ValidPassword reports whether password satisfies the length policy.
func ValidPassword(password string) bool {
	return len(password) >= MinPasswordLength && len(password) <= MaxPasswordLength
}

// PasswordHasher hashes and verifies passwords with bcrypt.
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher returns a hasher using cost, or bcrypt.DefaultCost when
// cost is zero.
func NewPasswordHasher(cost int) (*PasswordHasher, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("auth: bcrypt cost %d out of range [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &PasswordHasher{cost: cost}, nil
}

// Hash returns the bcrypt hash of password after checking the policy.
func (h *PasswordHasher) Hash(password string) (string, error) {
	if !ValidPassword(password) {
		return "", ErrInvalidPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify checks password against hash. An empty hash never verifies but still
// pays for one comparison.
func (h *PasswordHasher) Verify(hash, password string) error {
	if hash == "" {
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}
