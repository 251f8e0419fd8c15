// ABOUTME: Bearer token loading and client-side JWT claim inspection.
// ABOUTME: The CLI holds no signing secret, so claims are read without verification.

package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// TokenEnvVar is checked before the token file.
const TokenEnvVar = "EMBER_TOKEN"

// LoadToken returns the bearer token from the EMBER_TOKEN env var or the
// ~/.config/ember/token file. An empty string means no token is configured.
func LoadToken() string {
	if token := os.Getenv(TokenEnvVar); token != "" {
		return token
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	data, err := os.ReadFile(filepath.Join(configDir, "ember", "token"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Identity is what a token says about its holder. Verification happens
// server-side; this is for display and early expiry warnings only.
type Identity struct {
	Subject   string
	ExpiresAt time.Time
}

// Inspect parses a JWT's claims without verifying its signature. Returns
// ErrExpiredToken (with the parsed identity) when the token is past its
// expiry, so callers can warn before the gateway rejects it.
func Inspect(token string) (Identity, error) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var id Identity
	if sub, err := parsed.Claims.GetSubject(); err == nil {
		id.Subject = sub
	}
	if exp, err := parsed.Claims.GetExpirationTime(); err == nil && exp != nil {
		id.ExpiresAt = exp.Time
	}

	if !id.ExpiresAt.IsZero() && time.Now().After(id.ExpiresAt) {
		return id, ErrExpiredToken
	}
	return id, nil
}
