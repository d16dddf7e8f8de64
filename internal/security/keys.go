package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// MinHMACSecretLen is the minimum length in bytes of an HS256 secret.
const MinHMACSecretLen = 32

var (
	// ErrInvalidKey is returned when PEM or key type is invalid.
	ErrInvalidKey = errors.New("invalid key")
	// ErrWeakSecret is returned by HMACKey when the secret is shorter than MinHMACSecretLen.
	ErrWeakSecret = errors.New("hmac secret too short")
)

// SigningKey pairs a JWT signing method with the keys used to sign and verify.
// For HMAC both keys are the shared secret.
type SigningKey struct {
	Method jwt.SigningMethod
	sign   any
	verify any
}

// Alg returns the JWT alg header value, e.g. "HS256".
func (k SigningKey) Alg() string {
	if k.Method == nil {
		return ""
	}
	return k.Method.Alg()
}

// HMACKey returns an HS256 key for the given shared secret.
func HMACKey(secret string) (SigningKey, error) {
	if len(secret) < MinHMACSecretLen {
		return SigningKey{}, fmt.Errorf("%w: need at least %d bytes", ErrWeakSecret, MinHMACSecretLen)
	}
	b := []byte(secret)
	return SigningKey{Method: jwt.SigningMethodHS256, sign: b, verify: b}, nil
}

// KeyPairFromPEM returns an RS256 or ES256 key from a private/public PEM pair.
// Each argument may be inline PEM or a file path.
func KeyPairFromPEM(privatePEM, publicPEM string) (SigningKey, error) {
	signer, err := ParsePrivateKey(privatePEM)
	if err != nil {
		return SigningKey{}, fmt.Errorf("private key: %w", err)
	}
	pub, err := ParsePublicKey(publicPEM)
	if err != nil {
		return SigningKey{}, fmt.Errorf("public key: %w", err)
	}
	alg := KeyAlg(pub)
	if alg == "" || alg != KeyAlg(signer.Public()) {
		return SigningKey{}, ErrInvalidKey
	}
	return SigningKey{Method: jwt.GetSigningMethod(alg), sign: signer, verify: pub}, nil
}

// LoadPEM reads content from path if s does not look like inline PEM; otherwise returns s as bytes.
// Literal "\n" sequences in inline PEM (as found in single-line env vars) are turned into newlines.
func LoadPEM(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrInvalidKey
	}
	if strings.HasPrefix(s, "-----BEGIN") {
		return []byte(strings.ReplaceAll(s, `\n`, "\n")), nil
	}
	return os.ReadFile(s)
}

// ParsePrivateKey parses a PEM-encoded private key (RSA or ECDSA). s may be inline PEM or a file path.
func ParsePrivateKey(s string) (crypto.Signer, error) {
	pemBytes, err := LoadPEM(s)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, ErrInvalidKey
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		switch k := key.(type) {
		case *rsa.PrivateKey:
			return k, nil
		case *ecdsa.PrivateKey:
			return k, nil
		default:
			return nil, ErrInvalidKey
		}
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	default:
		return nil, ErrInvalidKey
	}
}

// ParsePublicKey parses a PEM-encoded public key (RSA or ECDSA). s may be inline PEM or a file path.
func ParsePublicKey(s string) (crypto.PublicKey, error) {
	pemBytes, err := LoadPEM(s)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, ErrInvalidKey
	}
	switch block.Type {
	case "RSA PUBLIC KEY":
		return x509.ParsePKCS1PublicKey(block.Bytes)
	case "PUBLIC KEY":
		return x509.ParsePKIXPublicKey(block.Bytes)
	default:
		return nil, ErrInvalidKey
	}
}

// KeyAlg returns "RS256" for RSA and "ES256" for ECDSA P-256; empty otherwise.
func KeyAlg(pub crypto.PublicKey) string {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		return "RS256"
	case *ecdsa.PublicKey:
		if k.Curve != nil && k.Curve.Params().Name == "P-256" {
			return "ES256"
		}
		return ""
	default:
		return ""
	}
}
