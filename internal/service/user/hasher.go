package user

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/nkiryanov/contestgate/internal/apperrors"
)

// Interface to create or compare user password hashes
type PasswordHasher interface {
	// Generate salted hash from password
	Hash(password string) (string, error)

	// Compare known hashedPassword and user provided password
	// Must be protected against timing attacks
	Compare(hashedPassword string, password string) bool
}

// Default hasher used when nothing else is configured
var DefaultHasher = BcryptHasher{Cost: bcrypt.DefaultCost}

// Bcrypt password hasher
// Password is prehashed with sha256 so passwords longer than 72 bytes are not truncated by bcrypt
type BcryptHasher struct {
	// Work factor; bcrypt.DefaultCost (10) if zero
	Cost int
}

func NewBcryptHasher(cost int) (BcryptHasher, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return BcryptHasher{}, fmt.Errorf("bcrypt cost must be in [%d, %d], got %d", bcrypt.MinCost, bcrypt.MaxCost, cost)
	}
	return BcryptHasher{Cost: cost}, nil
}

func (h BcryptHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", apperrors.ErrEmptyPassword
	}

	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	sum := sha256.Sum256([]byte(password))
	hash, err := bcrypt.GenerateFromPassword(sum[:], cost)
	return string(hash), err
}

// Compare never fails loudly: malformed hash or wrong password is just false
func (h BcryptHasher) Compare(hashedPassword string, password string) bool {
	sum := sha256.Sum256([]byte(password))
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), sum[:]) == nil
}
