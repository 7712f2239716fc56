// Package auth - jwt.go issues and verifies the HS256 session tokens handed
// out at sign-in. The signing secret is read once from DDP_JWT_SECRET.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTSecretEnv is the environment variable holding the signing secret.
const JWTSecretEnv = "DDP_JWT_SECRET"

const tokenIssuer = "diligence-portal"

var (
	jwtSecret     string
	jwtSecretOnce sync.Once
	jwtSecretErr  error
)

// Claims is the session token payload. ID (jti) doubles as the session ID
// that CSRF tokens are bound to.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// SessionID returns the jti claim.
func (c *Claims) SessionID() string { return c.ID }

func isDevMode() bool {
	devMode := os.Getenv("DEV_MODE")
	ginMode := os.Getenv("GIN_MODE")
	return devMode == "true" || devMode == "1" || ginMode == "debug"
}

func generateRandomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// ValidateJWTSecret loads the signing secret. Outside dev mode a missing
// secret is fatal; in dev mode a random one is generated and sessions do not
// survive a restart. Call at startup.
func ValidateJWTSecret() error {
	jwtSecretOnce.Do(func() {
		secret := os.Getenv(JWTSecretEnv)
		if secret == "" {
			if !isDevMode() {
				jwtSecretErr = fmt.Errorf("%s is required outside development mode; generate one with: openssl rand -hex 32", JWTSecretEnv)
				return
			}
			generated, err := generateRandomSecret()
			if err != nil {
				jwtSecretErr = fmt.Errorf("failed to generate development jwt secret: %w", err)
				return
			}
			slog.Warn("jwt secret not set, using a random development secret", "env", JWTSecretEnv)
			jwtSecret = generated
			return
		}
		if len(secret) < 32 {
			slog.Warn("jwt secret is shorter than 32 characters", "env", JWTSecretEnv)
		}
		jwtSecret = secret
	})
	return jwtSecretErr
}

// GetJWTSecret returns the validated secret, panicking if it cannot be loaded.
func GetJWTSecret() string {
	if jwtSecret == "" {
		if err := ValidateJWTSecret(); err != nil {
			panic(err)
		}
	}
	return jwtSecret
}

// GenerateJWT signs a session token. A zero ttl defaults to one hour.
func GenerateJWT(userID, email, sessionID string, ttl time.Duration) (string, error) {
	if ttl == 0 {
		ttl = time.Hour
	}
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Subject:   userID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(GetJWTSecret()))
}

// ValidateJWT parses and verifies a session token.
func ValidateJWT(tokenString string) (*Claims, error) {
	secret := GetJWTSecret()

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}
	if claims.UserID == "" || claims.ID == "" {
		return nil, errors.New("token is missing user or session id")
	}
	return claims, nil
}
