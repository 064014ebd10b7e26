// ABOUTME: Client-side bearer token inspection and on-disk persistence.
// ABOUTME: Reads expiry without verifying the signature; the server verifies.

package identity

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoExpiry is returned when a token carries no exp claim.
var ErrNoExpiry = errors.New("token has no expiry claim")

// TokenExpiry extracts the expiry time from a JWT without verifying its
// signature. The client holds no signing secret; this is only used to decide
// whether a re-login prompt is needed before the server would reject us.
func TokenExpiry(token string) (time.Time, error) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("parsing token: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, ErrNoExpiry
	}
	return exp.Time, nil
}

// TokenUsable reports whether a token is well-formed and not yet expired.
// A token without an expiry claim is treated as usable; the server decides.
func TokenUsable(token string, now time.Time) bool {
	if token == "" {
		return false
	}
	exp, err := TokenExpiry(token)
	if err != nil {
		return errors.Is(err, ErrNoExpiry)
	}
	return now.Before(exp)
}

// TokenPath returns the on-disk token location.
// Priority: VEAZY_TOKEN_FILE env var > XDG_CONFIG_HOME/veazy/token > ~/.config/veazy/token
func TokenPath() string {
	if p := os.Getenv("VEAZY_TOKEN_FILE"); p != "" {
		return p
	}
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "token"
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "veazy", "token")
}

// LoadToken reads a persisted token, checking the VEAZY_TOKEN env var first.
// Returns "" when no token is stored.
func LoadToken() string {
	if token := os.Getenv("VEAZY_TOKEN"); token != "" {
		return token
	}
	data, err := os.ReadFile(TokenPath())
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// SaveToken persists a token for future sessions.
func SaveToken(token string) error {
	path := TokenPath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(token+"\n"), 0600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}
	return nil
}

// RemoveToken deletes the persisted token, if any.
func RemoveToken() error {
	err := os.Remove(TokenPath())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing token file: %w", err)
	}
	return nil
}
