package auth

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// API keys are Ed25519-signed JWTs with an "mbk_" prefix. When no signing
// key is configured the inbound surface runs unauthenticated (dev mode).

const apiKeyPrefix = "mbk_"

// KeyPair holds the Ed25519 signing key pair for JWT API keys.
type KeyPair struct {
	PrivateKey ed25519.PrivateKey
	PublicKey  ed25519.PublicKey
	KID        string // Key ID for JWKS
}

var keyPair *KeyPair

// Init loads the Ed25519 private key from the API_KEY_PRIVATE_KEY environment
// variable. The key must be base64-encoded (64-byte private key or 32-byte seed).
func Init() error {
	encoded := os.Getenv("API_KEY_PRIVATE_KEY")
	if encoded == "" {
		log.Printf("[auth] API_KEY_PRIVATE_KEY not set, API key auth disabled")
		keyPair = nil
		return nil
	}

	seed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("failed to decode API_KEY_PRIVATE_KEY: %w", err)
	}

	var privKey ed25519.PrivateKey
	switch len(seed) {
	case ed25519.SeedSize: // 32 bytes — seed only
		privKey = ed25519.NewKeyFromSeed(seed)
	case ed25519.PrivateKeySize: // 64 bytes — full private key
		privKey = ed25519.PrivateKey(seed)
	default:
		return fmt.Errorf("invalid key size: %d (expected 32 or 64)", len(seed))
	}

	keyPair = &KeyPair{
		PrivateKey: privKey,
		PublicKey:  privKey.Public().(ed25519.PublicKey),
		KID:        "moltbridge-api-key-v1",
	}

	log.Printf("[auth] Ed25519 key pair loaded (kid: %s)", keyPair.KID)
	return nil
}

// Enabled reports whether API key auth is configured.
func Enabled() bool {
	return keyPair != nil
}

// GetKeyPair returns the loaded key pair, or nil if not initialized.
func GetKeyPair() *KeyPair {
	return keyPair
}

// APIKeyClaims are the claims carried by a moltbridge API key JWT.
type APIKeyClaims struct {
	jwt.RegisteredClaims
	KeyID string `json:"kid,omitempty"`
}

// GenerateAPIKey creates a signed API key for a client.
func GenerateAPIKey(clientID, keyID string, expiresAt *time.Time) (string, error) {
	if keyPair == nil {
		return "", fmt.Errorf("signing key not configured")
	}

	claims := jwt.MapClaims{
		"sub": clientID,
		"kid": keyID,
		"iat": time.Now().Unix(),
	}
	if expiresAt != nil {
		claims["exp"] = expiresAt.Unix()
	}

	token := jwt.NewWithClaims(&jwt.SigningMethodEd25519{}, claims)
	token.Header["kid"] = keyPair.KID

	signed, err := token.SignedString(keyPair.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT: %w", err)
	}

	return apiKeyPrefix + signed, nil
}

// VerifyAPIKey verifies an "mbk_"-prefixed API key and returns its claims.
func VerifyAPIKey(key string) (*APIKeyClaims, error) {
	if keyPair == nil {
		return nil, fmt.Errorf("signing key not configured")
	}
	if len(key) <= len(apiKeyPrefix) || key[:len(apiKeyPrefix)] != apiKeyPrefix {
		return nil, fmt.Errorf("malformed api key")
	}

	claims := &APIKeyClaims{}
	_, err := jwt.ParseWithClaims(key[len(apiKeyPrefix):], claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return keyPair.PublicKey, nil
	}, jwt.WithLeeway(5*time.Second))
	if err != nil {
		return nil, fmt.Errorf("api key verification failed: %w", err)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("api key missing subject")
	}
	return claims, nil
}
