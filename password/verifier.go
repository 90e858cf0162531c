package password

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrPasswordTooShort is returned by Hash for passwords under 10 bytes.
	ErrPasswordTooShort = errors.New("password must be at least 10 bytes")
	// ErrPasswordTooLong is returned for passwords over the configured maximum.
	ErrPasswordTooLong = errors.New("password exceeds maximum length")
	// ErrMalformedHash is returned when a stored hash cannot be parsed.
	ErrMalformedHash = errors.New("invalid PHC format")
)

// Verifier checks a plaintext password against a stored hash.
type Verifier interface {
	Verify(password, encodedHash string) (bool, error)
}

// Bcrypt hashes and verifies bcrypt hashes.
type Bcrypt struct {
	cost int
}

// NewBcrypt returns a [Bcrypt] with cost, clamped to bcrypt's accepted range.
func NewBcrypt(cost int) *Bcrypt {
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &Bcrypt{cost: cost}
}

// Hash returns the bcrypt hash of password.
func (b *Bcrypt) Hash(password string) (string, error) {
	if len(password) < minPassBytes {
		return "", ErrPasswordTooShort
	}
	out, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Verify implements [Verifier].
func (b *Bcrypt) Verify(password, encodedHash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, err
	}
}

// Auto picks the Argon2 or bcrypt verifier from the hash prefix, so accounts can
// migrate between schemes one login at a time.
type Auto struct {
	Argon2 *Argon2
	Bcrypt *Bcrypt
}

// Verify implements [Verifier].
func (a Auto) Verify(password, encodedHash string) (bool, error) {
	switch {
	case strings.HasPrefix(encodedHash, argon2idPrefix) && a.Argon2 != nil:
		return a.Argon2.Verify(password, encodedHash)
	case strings.HasPrefix(encodedHash, "$2") && a.Bcrypt != nil:
		return a.Bcrypt.Verify(password, encodedHash)
	default:
		return false, ErrMalformedHash
	}
}

// Check adapts a stored hash into the credential check consumed by the login
// guard. An empty hash stands for an unknown account: a dummy comparison still
// runs when dummyHash is set, and the check fails.
func Check(v Verifier, encodedHash, dummyHash, plaintext string) func(context.Context) (bool, error) {
	return func(ctx context.Context) (bool, error) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if encodedHash == "" {
			if dummyHash != "" {
				_, _ = v.Verify(plaintext, dummyHash)
			}
			return false, nil
		}
		return v.Verify(plaintext, encodedHash)
	}
}
