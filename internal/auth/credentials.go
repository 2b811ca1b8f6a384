// Package auth implements the admin authentication boundary: a PBKDF2
// credentials file and an in-memory session store. The rest of the system
// treats it as an opaque pass/fail gate via Context.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/pbkdf2"

	"github.com/NeveIsa/LEAP2/pkg/logger"
)

const (
	// Iterations matches the stored credential format; changing it would
	// invalidate existing credential files.
	Iterations = 240_000
	Algorithm  = "pbkdf2_sha256"

	saltLen = 32
	keyLen  = 32
)

// Credentials is the on-disk admin credential record.
type Credentials struct {
	PasswordHash string `json:"password_hash"`
	Salt         string `json:"salt"`
	Iterations   int    `json:"iterations"`
	Algorithm    string `json:"algorithm"`
}

// HashPassword derives a new credential record from a password.
func HashPassword(password string) (*Credentials, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	dk := pbkdf2.Key([]byte(password), salt, Iterations, keyLen, sha256.New)
	return &Credentials{
		PasswordHash: hex.EncodeToString(dk),
		Salt:         hex.EncodeToString(salt),
		Iterations:   Iterations,
		Algorithm:    Algorithm,
	}, nil
}

// Verify checks a password against the stored hash in constant time.
func (c *Credentials) Verify(password string) bool {
	salt, err := hex.DecodeString(c.Salt)
	if err != nil {
		return false
	}
	iterations := c.Iterations
	if iterations <= 0 {
		iterations = Iterations
	}
	dk := pbkdf2.Key([]byte(password), salt, iterations, keyLen, sha256.New)
	return subtle.ConstantTimeCompare([]byte(hex.EncodeToString(dk)), []byte(c.PasswordHash)) == 1
}

// LoadCredentials reads the credentials file; a missing file returns
// (nil, nil).
func LoadCredentials(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}
	var c Credentials
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}
	return &c, nil
}

// SaveCredentials writes the credentials file, creating parent directories.
func SaveCredentials(path string, c *Credentials) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	logger.Info("credentials saved", "path", path)
	return nil
}

// EnsureCredentials guarantees an admin credential file exists. A missing
// file is created from envPassword when set; otherwise startup fails with
// instructions.
func EnsureCredentials(path, envPassword string) error {
	cred, err := LoadCredentials(path)
	if err != nil {
		return err
	}
	if cred != nil {
		if envPassword != "" && !cred.Verify(envPassword) {
			logger.Warn("LEAP_ADMINPASSWORD does not match stored credentials")
		}
		return nil
	}
	if envPassword == "" {
		return fmt.Errorf("no admin credentials found at %s: run 'leap set-password' or set LEAP_ADMINPASSWORD", path)
	}
	cred, err = HashPassword(envPassword)
	if err != nil {
		return err
	}
	if err := SaveCredentials(path, cred); err != nil {
		return err
	}
	logger.Info("created admin credentials from environment")
	return nil
}
