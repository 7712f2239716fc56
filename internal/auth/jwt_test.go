package auth

import (
	"os"
	"sync"
	"testing"
	"time"
)

const testSecret = "test-jwt-secret-that-is-32-chars-!"

// resetJWTSecret resets the package-level sync.Once so tests can set a fresh secret.
func resetJWTSecret() {
	jwtSecret = ""
	jwtSecretOnce = sync.Once{}
	jwtSecretErr = nil
}

func TestMain(m *testing.M) {
	os.Setenv(JWTSecretEnv, testSecret)
	os.Exit(m.Run())
}

func TestValidateJWTSecret(t *testing.T) {
	t.Cleanup(resetJWTSecret)

	t.Run("valid secret from env", func(t *testing.T) {
		resetJWTSecret()
		t.Setenv(JWTSecretEnv, testSecret)
		if err := ValidateJWTSecret(); err != nil {
			t.Errorf("ValidateJWTSecret() unexpected error: %v", err)
		}
	})

	t.Run("production mode requires secret", func(t *testing.T) {
		resetJWTSecret()
		t.Setenv(JWTSecretEnv, "")
		t.Setenv("DEV_MODE", "")
		t.Setenv("GIN_MODE", "release")
		if err := ValidateJWTSecret(); err == nil {
			t.Error("expected error in production mode without secret")
		}
	})

	t.Run("dev mode generates random secret", func(t *testing.T) {
		resetJWTSecret()
		t.Setenv(JWTSecretEnv, "")
		t.Setenv("DEV_MODE", "true")
		if err := ValidateJWTSecret(); err != nil {
			t.Errorf("unexpected error in dev mode: %v", err)
		}
		if GetJWTSecret() == "" {
			t.Error("GetJWTSecret() returned empty string after dev mode init")
		}
	})
}

func TestGenerateAndValidateJWT(t *testing.T) {
	resetJWTSecret()
	t.Setenv(JWTSecretEnv, testSecret)
	t.Cleanup(resetJWTSecret)

	t.Run("round trip", func(t *testing.T) {
		token, err := GenerateJWT("user-123", "test@example.com", "sess-1", time.Hour)
		if err != nil {
			t.Fatalf("GenerateJWT() error: %v", err)
		}
		claims, err := ValidateJWT(token)
		if err != nil {
			t.Fatalf("ValidateJWT() error: %v", err)
		}
		if claims.UserID != "user-123" || claims.Email != "test@example.com" {
			t.Errorf("claims = %+v", claims)
		}
		if claims.SessionID() != "sess-1" {
			t.Errorf("SessionID() = %q, want sess-1", claims.SessionID())
		}
		if claims.Issuer != "diligence-portal" {
			t.Errorf("Issuer = %q", claims.Issuer)
		}
	})

	t.Run("default expiry when zero duration", func(t *testing.T) {
		token, err := GenerateJWT("uid", "u@example.com", "s", 0)
		if err != nil {
			t.Fatalf("GenerateJWT() error: %v", err)
		}
		claims, err := ValidateJWT(token)
		if err != nil {
			t.Fatalf("ValidateJWT() error: %v", err)
		}
		remaining := time.Until(claims.ExpiresAt.Time)
		if remaining < 50*time.Minute || remaining > 70*time.Minute {
			t.Errorf("default expiry remaining = %v, want ~1h", remaining)
		}
	})

	t.Run("expired token is rejected", func(t *testing.T) {
		token, err := GenerateJWT("uid", "u@example.com", "s", -time.Second)
		if err != nil {
			t.Fatalf("GenerateJWT() error: %v", err)
		}
		if _, err := ValidateJWT(token); err == nil {
			t.Error("expected error for expired token")
		}
	})

	t.Run("missing session id is rejected", func(t *testing.T) {
		token, err := GenerateJWT("uid", "u@example.com", "", time.Hour)
		if err != nil {
			t.Fatalf("GenerateJWT() error: %v", err)
		}
		if _, err := ValidateJWT(token); err == nil {
			t.Error("expected error for token without session id")
		}
	})

	t.Run("garbage and empty tokens", func(t *testing.T) {
		for _, tok := range []string{"not.a.valid.token", ""} {
			if _, err := ValidateJWT(tok); err == nil {
				t.Errorf("ValidateJWT(%q) expected error", tok)
			}
		}
	})

	t.Run("token signed with different secret is rejected", func(t *testing.T) {
		token, err := GenerateJWT("uid", "u@example.com", "s", time.Hour)
		if err != nil {
			t.Fatalf("GenerateJWT() error: %v", err)
		}

		resetJWTSecret()
		t.Setenv(JWTSecretEnv, "completely-different-secret-32ch!")
		if _, err := ValidateJWT(token); err == nil {
			t.Error("expected error for token signed with different secret")
		}

		resetJWTSecret()
		t.Setenv(JWTSecretEnv, testSecret)
	})
}
