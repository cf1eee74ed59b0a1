package iam

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher abstracts password hashing so the core stays independent of
// the chosen algorithm.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hash, password string) error
}

// BcryptHasher hashes passwords with bcrypt at the default cost.
type BcryptHasher struct{}

// Hash hashes a plaintext password.
func (BcryptHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify compares a plaintext password with a stored hash.
func (BcryptHasher) Verify(hash, password string) error {
	if hash == "" {
		return errors.New("password hash is empty")
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
