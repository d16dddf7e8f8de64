package security

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token types carried in the typ claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Default token lifetimes.
const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

var (
	// ErrInvalidSignature is returned for malformed tokens, wrong keys or algorithms,
	// and tokens whose typ, iss or aud do not match.
	ErrInvalidSignature = errors.New("invalid token signature")
	// ErrTokenExpired is returned for a correctly signed token past its exp.
	// The parsed claims are returned alongside it.
	ErrTokenExpired = errors.New("token expired")
	// ErrSameSecrets is returned when access and refresh tokens would share an HMAC secret.
	ErrSameSecrets = errors.New("access and refresh secrets must differ")
)

// Claims are the JWT claims of both token kinds.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Type  string `json:"typ"`
}

// UserID returns the subject claim.
func (c *Claims) UserID() string { return c.Subject }

// TokenCodecConfig configures a TokenCodec. Zero TTLs use the defaults; nil Now uses time.Now.
type TokenCodecConfig struct {
	AccessKey  SigningKey
	RefreshKey SigningKey
	Issuer     string
	Audience   string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Now        func() time.Time
}

// TokenCodec issues and verifies access and refresh JWTs. Access and refresh
// tokens are signed with independent keys.
type TokenCodec struct {
	access     SigningKey
	refresh    SigningKey
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenCodec validates cfg and returns a TokenCodec.
func NewTokenCodec(cfg TokenCodecConfig) (*TokenCodec, error) {
	if cfg.AccessKey.Method == nil || cfg.RefreshKey.Method == nil {
		return nil, ErrInvalidKey
	}
	if isHMAC(cfg.AccessKey) && isHMAC(cfg.RefreshKey) &&
		string(cfg.AccessKey.sign.([]byte)) == string(cfg.RefreshKey.sign.([]byte)) {
		return nil, ErrSameSecrets
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &TokenCodec{
		access:     cfg.AccessKey,
		refresh:    cfg.RefreshKey,
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        cfg.Now,
	}, nil
}

func isHMAC(k SigningKey) bool {
	_, ok := k.Method.(*jwt.SigningMethodHMAC)
	return ok
}

// AccessTTL returns the configured access token lifetime.
func (c *TokenCodec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (c *TokenCodec) RefreshTTL() time.Duration { return c.refreshTTL }

// IssueAccess issues a short-lived access JWT for the user.
func (c *TokenCodec) IssueAccess(userID, email string) (string, time.Time, error) {
	return c.issue(c.access, TokenTypeAccess, c.accessTTL, userID, email)
}

// IssueRefresh issues a long-lived refresh JWT for the user. The random jti
// makes two tokens issued in the same second distinct.
func (c *TokenCodec) IssueRefresh(userID, email string) (string, time.Time, error) {
	return c.issue(c.refresh, TokenTypeRefresh, c.refreshTTL, userID, email)
}

func (c *TokenCodec) issue(key SigningKey, typ string, ttl time.Duration, userID, email string) (string, time.Time, error) {
	jti, err := generateJTI()
	if err != nil {
		return "", time.Time{}, err
	}
	now := c.now().UTC()
	expiresAt := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{c.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email: email,
		Type:  typ,
	}
	token, err := jwt.NewWithClaims(key.Method, claims).SignedString(key.sign)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", typ, err)
	}
	// exp is encoded with second precision; report what the token carries.
	return token, claims.ExpiresAt.Time, nil
}

// VerifyAccess parses and validates an access token.
func (c *TokenCodec) VerifyAccess(token string) (*Claims, error) {
	return c.verify(token, c.access, TokenTypeAccess)
}

// VerifyRefresh parses and validates a refresh token. A correctly signed but
// expired token yields its claims together with ErrTokenExpired.
func (c *TokenCodec) VerifyRefresh(token string) (*Claims, error) {
	return c.verify(token, c.refresh, TokenTypeRefresh)
}

func (c *TokenCodec) verify(tokenString string, key SigningKey, typ string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return key.verify, nil },
		jwt.WithValidMethods([]string{key.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		// Claims validation runs only after the signature checked out, so an
		// expiry error implies a genuine token. The other claims are rechecked
		// by hand since validation errors are joined.
		if errors.Is(err, jwt.ErrTokenExpired) && c.claimsMatch(claims, typ) {
			return claims, ErrTokenExpired
		}
		return nil, ErrInvalidSignature
	}
	if !c.claimsMatch(claims, typ) {
		return nil, ErrInvalidSignature
	}
	return claims, nil
}

func (c *TokenCodec) claimsMatch(claims *Claims, typ string) bool {
	return claims.Type == typ &&
		claims.Subject != "" &&
		claims.Issuer == c.issuer &&
		slices.Contains(claims.Audience, c.audience)
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
