// Package federation verifies Google ID tokens and links the federated
// identity to a user account.
package federation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coreos/go-oidc/v3/oidc"
)

// Google endpoints.
const (
	GoogleIssuer  = "https://accounts.google.com"
	GoogleJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"
)

var (
	// ErrInvalidFederatedToken is returned for a bad signature, issuer, audience or expiry.
	ErrInvalidFederatedToken = errors.New("invalid federated token")
	// ErrFederatedClaimsIncomplete is returned when the token lacks a verified email.
	ErrFederatedClaimsIncomplete = errors.New("federated claims incomplete")
	// ErrProviderUnavailable is returned when the provider's signing keys cannot be fetched.
	ErrProviderUnavailable = errors.New("identity provider unavailable")
)

// FederatedClaims are the identity claims taken from a verified ID token.
type FederatedClaims struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

// Verifier verifies a raw ID token.
type Verifier interface {
	Verify(ctx context.Context, rawIDToken string) (*FederatedClaims, error)
}

// GoogleConfig configures a GoogleVerifier. Empty fields fall back to Google's
// production endpoints and sensible client limits.
type GoogleConfig struct {
	ClientID string
	Issuer   string
	JWKSURL  string
	// HTTPTimeout bounds each key fetch.
	HTTPTimeout time.Duration
	// MaxFetchAttempts bounds key fetch retries per verification.
	MaxFetchAttempts uint
	// InitialBackoff is the first retry delay.
	InitialBackoff time.Duration
	Now            func() time.Time
}

// GoogleVerifier validates Google ID tokens against Google's published keys.
// The key set is cached for the life of the verifier and refetched when a
// token carries an unknown kid.
type GoogleVerifier struct {
	verifier       *oidc.IDTokenVerifier
	issuers        []string
	maxAttempts    uint
	initialBackoff time.Duration
}

// NewGoogleVerifier builds a verifier. ctx scopes the HTTP client used for key
// fetches and should live as long as the verifier.
func NewGoogleVerifier(ctx context.Context, cfg GoogleConfig) (*GoogleVerifier, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("federation: google client id is required")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = GoogleIssuer
	}
	if cfg.JWKSURL == "" {
		cfg.JWKSURL = GoogleJWKSURL
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 5 * time.Second
	}
	if cfg.MaxFetchAttempts == 0 {
		cfg.MaxFetchAttempts = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 200 * time.Millisecond
	}
	client := &http.Client{
		Timeout:   cfg.HTTPTimeout,
		Transport: statusCheckingTransport{base: http.DefaultTransport},
	}
	keySet := oidc.NewRemoteKeySet(oidc.ClientContext(ctx, client), cfg.JWKSURL)
	issuers := []string{cfg.Issuer}
	// Google signs with either form of its issuer.
	if cfg.Issuer == GoogleIssuer {
		issuers = append(issuers, "accounts.google.com")
	}
	return &GoogleVerifier{
		verifier: oidc.NewVerifier(cfg.Issuer, keySet, &oidc.Config{
			ClientID:        cfg.ClientID,
			SkipIssuerCheck: true,
			Now:             cfg.Now,
		}),
		issuers:        issuers,
		maxAttempts:    cfg.MaxFetchAttempts,
		initialBackoff: cfg.InitialBackoff,
	}, nil
}

// Verify checks the token's signature, issuer, audience and expiry and
// returns its identity claims. Key fetch failures are retried with
// exponential backoff before ErrProviderUnavailable is returned.
func (v *GoogleVerifier) Verify(ctx context.Context, rawIDToken string) (*FederatedClaims, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = v.initialBackoff
	idToken, err := backoff.Retry(ctx, func() (*oidc.IDToken, error) {
		tok, err := v.verifier.Verify(ctx, rawIDToken)
		if err == nil {
			return tok, nil
		}
		if isKeyFetchError(err) {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(v.maxAttempts))
	if err != nil {
		if isKeyFetchError(err) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidFederatedToken, err)
	}
	if !slices.Contains(v.issuers, idToken.Issuer) {
		return nil, fmt.Errorf("%w: unexpected issuer %q", ErrInvalidFederatedToken, idToken.Issuer)
	}

	var raw struct {
		Email         string   `json:"email"`
		EmailVerified flexBool `json:"email_verified"`
		Name          string   `json:"name"`
		Picture       string   `json:"picture"`
	}
	if err := idToken.Claims(&raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFederatedToken, err)
	}
	claims := &FederatedClaims{
		Subject:       idToken.Subject,
		Email:         raw.Email,
		EmailVerified: bool(raw.EmailVerified),
		Name:          raw.Name,
		Picture:       raw.Picture,
	}
	if claims.Subject == "" || claims.Email == "" || !claims.EmailVerified {
		return nil, ErrFederatedClaimsIncomplete
	}
	return claims, nil
}

// errKeyEndpointStatus marks a non-2xx response from the key endpoint.
var errKeyEndpointStatus = errors.New("key endpoint returned an error status")

// statusCheckingTransport turns non-2xx responses into transport errors so
// they surface as *url.Error like network failures do.
type statusCheckingTransport struct {
	base http.RoundTripper
}

func (t statusCheckingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: %s", errKeyEndpointStatus, resp.Status)
	}
	return resp, nil
}

func isKeyFetchError(err error) bool {
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// flexBool accepts both JSON booleans and the "true"/"false" strings some
// Google tokens carry for email_verified.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	var v bool
	if err := json.Unmarshal(data, &v); err == nil {
		*b = flexBool(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	*b = flexBool(parsed)
	return nil
}
