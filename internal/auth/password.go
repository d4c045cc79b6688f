package auth

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

// defaultCost is the bcrypt work factor. Cost 12 takes roughly 250ms on a
// modern server: negligible for sign-in, expensive for brute force.
const defaultCost = 12

// MinPasswordLength is the shortest password sign-up accepts.
const MinPasswordLength = 6

// errWeakPassword is returned by CheckStrength; the message is shown inline
// on the sign-up form.
var errWeakPassword = fmt.Errorf("password should be at least %d characters", MinPasswordLength)

// PasswordService provides bcrypt hashing and verification.
//
// It's a struct (not free functions) so that the cost can be injected in
// tests: cost 4 keeps the suites fast without changing the logic.
type PasswordService struct {
	cost int
}

// NewPasswordService creates a PasswordService with the default cost (12).
func NewPasswordService() *PasswordService {
	return &PasswordService{cost: defaultCost}
}

// NewPasswordServiceForTest creates a PasswordService with a custom cost.
// Do NOT use in production.
func NewPasswordServiceForTest(cost int) *PasswordService {
	return &PasswordService{cost: cost}
}

// CheckStrength rejects passwords sign-up should not accept.
func (p *PasswordService) CheckStrength(plaintext string) error {
	if utf8.RuneCountInString(plaintext) < MinPasswordLength {
		return errWeakPassword
	}
	return nil
}

// Hash hashes the plaintext password. The result embeds salt and cost:
//
//	$2a$12$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy
//
// bcrypt silently truncates input beyond 72 bytes, so longer passwords are
// rejected instead.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > 72 {
		return "", fmt.Errorf("auth: password must be 72 bytes or fewer")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}

	return string(hashed), nil
}

// Verify returns nil when plaintext matches hash. The comparison is
// constant-time.
func (p *PasswordService) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return fmt.Errorf("auth: invalid password")
		}
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}
