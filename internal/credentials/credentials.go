// Package credentials generates and verifies the secrets the service hands
// out: password digests, invite tokens, project API keys and document ids.
package credentials

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/kaenova/prompty/internal/models"
	"golang.org/x/crypto/bcrypt"
)

// secretBytes is the entropy of tokens and API keys (256 bits).
const secretBytes = 32

// Generator produces random secrets from its source.
type Generator struct {
	rand io.Reader
	cost int
}

// NewGenerator returns a Generator reading from src. A nil src uses crypto/rand.
func NewGenerator(src io.Reader) *Generator {
	if src == nil {
		src = rand.Reader
	}
	return &Generator{rand: src, cost: bcrypt.DefaultCost}
}

// WithCost returns a copy of g that hashes with the given bcrypt cost.
func (g *Generator) WithCost(cost int) *Generator {
	c := *g
	c.cost = cost
	return &c
}

// HashPassword returns the bcrypt digest of password.
func (g *Generator) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), g.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// NewToken returns 32 random bytes, hex encoded.
func (g *Generator) NewToken() (string, error) {
	b := make([]byte, secretBytes)
	if _, err := io.ReadFull(g.rand, b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// NewAPIKey returns "pk_" followed by a fresh token.
func (g *Generator) NewAPIKey() (string, error) {
	token, err := g.NewToken()
	if err != nil {
		return "", err
	}
	return models.APIKeyPrefix + token, nil
}

// NewID returns a random UUIDv4.
func (g *Generator) NewID() (string, error) {
	id, err := uuid.NewRandomFromReader(g.rand)
	if err != nil {
		return "", fmt.Errorf("failed to generate id: %w", err)
	}
	return id.String(), nil
}

var defaultGenerator = NewGenerator(nil)

// Default returns the crypto/rand backed generator.
func Default() *Generator { return defaultGenerator }

// HashPassword hashes with the default generator.
func HashPassword(password string) (string, error) {
	return defaultGenerator.HashPassword(password)
}

// VerifyPassword reports whether password matches digest.
func VerifyPassword(password, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil
}

// NewToken generates an invite token.
func NewToken() (string, error) { return defaultGenerator.NewToken() }

// NewAPIKey generates a project API key.
func NewAPIKey() (string, error) { return defaultGenerator.NewAPIKey() }

// NewID generates a document id.
func NewID() string { return uuid.NewString() }
