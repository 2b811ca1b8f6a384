package auth

import (
	"path/filepath"
	"testing"
	"time"
)

func TestHashPassword_VerifyRoundTrip(t *testing.T) {
	creds, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("expected no error: %v", err)
	}
	if creds.Algorithm != Algorithm || creds.Iterations != Iterations {
		t.Errorf("unexpected credential metadata: %+v", creds)
	}
	if !creds.Verify("hunter2") {
		t.Error("expected correct password to verify")
	}
	if creds.Verify("hunter3") {
		t.Error("expected wrong password to fail")
	}
	if creds.Verify("") {
		t.Error("expected empty password to fail")
	}
}

func TestHashPassword_SaltsDiffer(t *testing.T) {
	a, err := HashPassword("same")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	b, err := HashPassword("same")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if a.Salt == b.Salt || a.PasswordHash == b.PasswordHash {
		t.Error("expected distinct salts and hashes for the same password")
	}
}

func TestSaveLoadCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config", "admin_credentials.json")

	creds, err := HashPassword("secret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := SaveCredentials(path, creds); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := LoadCredentials(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected credentials")
	}
	if !loaded.Verify("secret") {
		t.Error("expected loaded credentials to verify")
	}
}

func TestLoadCredentials_MissingFile(t *testing.T) {
	creds, err := LoadCredentials(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("expected no error: %v", err)
	}
	if creds != nil {
		t.Errorf("expected nil credentials, got %+v", creds)
	}
}

func TestEnsureCredentials_CreatesFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config", "admin_credentials.json")

	if err := EnsureCredentials(path, "frompass"); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	creds, err := LoadCredentials(path)
	if err != nil || creds == nil {
		t.Fatalf("expected credentials created: %v", err)
	}
	if !creds.Verify("frompass") {
		t.Error("expected env password to verify")
	}
}

func TestEnsureCredentials_MissingWithoutEnvFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "admin_credentials.json")
	if err := EnsureCredentials(path, ""); err == nil {
		t.Error("expected error when no credentials and no env password")
	}
}

func TestSessionStore_Lifecycle(t *testing.T) {
	s := NewSessionStore(time.Hour)

	token, err := s.Create()
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}
	if !s.Validate(token) {
		t.Error("expected fresh token to validate")
	}
	if s.Validate("bogus") {
		t.Error("expected unknown token to fail")
	}

	s.Revoke(token)
	if s.Validate(token) {
		t.Error("expected revoked token to fail")
	}
}

func TestSessionStore_Expiry(t *testing.T) {
	s := NewSessionStore(-time.Minute) // already expired on creation

	token, err := s.Create()
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if s.Validate(token) {
		t.Error("expected expired token to fail")
	}
	if n := s.CleanupExpired(); n != 1 {
		t.Errorf("expected 1 cleaned session, got %d", n)
	}
}
