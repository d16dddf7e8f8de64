package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"session-auth/internal/audit"
	"session-auth/internal/identity/federation"
	"session-auth/internal/security"
	sessiondomain "session-auth/internal/session/domain"
	sessionrepo "session-auth/internal/session/repository"
	"session-auth/internal/telemetry"
	userdomain "session-auth/internal/user/domain"
	userrepo "session-auth/internal/user/repository"
)

// MinPasswordLen is the shortest password Register accepts.
const MinPasswordLen = 8

const eventSource = "session_manager"

// UserRepo is the user directory as seen by the session manager.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
	Create(ctx context.Context, u *userdomain.User) error
	TouchLastLogin(ctx context.Context, userID string, at time.Time) error
}

// Ledger is the refresh token ledger as seen by the session manager.
type Ledger interface {
	Store(ctx context.Context, userID, fingerprint, device string, expiresAt time.Time) (*sessiondomain.Session, error)
	Consume(ctx context.Context, fingerprint string) (*sessiondomain.Session, error)
	RevokeByFingerprint(ctx context.Context, fingerprint string) error
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)
}

// FederatedLinker maps verified federated claims to a user.
type FederatedLinker interface {
	ResolveOrCreate(ctx context.Context, claims *federation.FederatedClaims) (*userdomain.User, error)
}

// TokenPair is returned by every session-establishing call. It is never persisted.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	UserID           string
}

type RegisterInput struct {
	Email    string
	Name     string
	Password string
	Device   string
}

type LoginInput struct {
	Email    string
	Password string
	Device   string
}

type FederatedLoginInput struct {
	IDToken string
	Device  string
}

// Config holds the session manager's collaborators. Users, Ledger, Hasher and
// Tokens are required. Verifier and Linker are required for federated login
// only; Audit and Events may be nil.
type Config struct {
	Users    UserRepo
	Ledger   Ledger
	Hasher   *security.Hasher
	Tokens   *security.TokenCodec
	Verifier federation.Verifier
	Linker   FederatedLinker
	Audit    audit.AuditLogger
	Events   telemetry.EventEmitter
	// RevokeAllOnReuse revokes every session of the token's subject when a
	// correctly signed refresh token is presented again.
	RevokeAllOnReuse bool
	Now              func() time.Time
}

// SessionManager implements register, login, federated login, refresh rotation and logout.
type SessionManager struct {
	users            UserRepo
	ledger           Ledger
	hasher           *security.Hasher
	tokens           *security.TokenCodec
	verifier         federation.Verifier
	linker           FederatedLinker
	audit            audit.AuditLogger
	events           telemetry.EventEmitter
	revokeAllOnReuse bool
	now              func() time.Time
	obs              instruments
}

// NewSessionManager returns a SessionManager for cfg.
func NewSessionManager(cfg Config) (*SessionManager, error) {
	if cfg.Users == nil || cfg.Ledger == nil || cfg.Hasher == nil || cfg.Tokens == nil {
		return nil, errors.New("identity: users, ledger, hasher and tokens are required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &SessionManager{
		users:            cfg.Users,
		ledger:           cfg.Ledger,
		hasher:           cfg.Hasher,
		tokens:           cfg.Tokens,
		verifier:         cfg.Verifier,
		linker:           cfg.Linker,
		audit:            cfg.Audit,
		events:           cfg.Events,
		revokeAllOnReuse: cfg.RevokeAllOnReuse,
		now:              cfg.Now,
		obs:              newInstruments(),
	}, nil
}

// Register creates a local user and opens its first session.
func (m *SessionManager) Register(ctx context.Context, in RegisterInput) (pair *TokenPair, err error) {
	ctx, c := m.obs.begin(ctx, "register")
	defer func() { m.obs.finish(ctx, c, err) }()

	email := userdomain.NormalizeEmail(in.Email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if len(in.Password) < MinPasswordLen {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidArgument, MinPasswordLen)
	}
	if len(in.Password) > security.MaxPasswordBytes {
		return nil, fmt.Errorf("%w: password must be at most %d bytes", ErrInvalidArgument, security.MaxPasswordBytes)
	}

	c.enter(StageCredentialCheck)
	existing, err := m.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if existing != nil {
		return nil, ErrAlreadyExists
	}
	hash, err := m.hasher.Hash(ctx, in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := m.now().UTC()
	u := &userdomain.User{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: hash,
		AuthProvider: userdomain.AuthProviderLocal,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := m.users.Create(ctx, u); err != nil {
		if errors.Is(err, userrepo.ErrConflict) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	pair, err = m.establish(ctx, c, u, in.Device)
	if err != nil {
		return nil, err
	}
	m.record(ctx, audit.ActionRegister, u.ID, in.Device, telemetry.OutcomeSuccess, nil)
	return pair, nil
}

// Login verifies an email and password and opens a new session.
func (m *SessionManager) Login(ctx context.Context, in LoginInput) (pair *TokenPair, err error) {
	ctx, c := m.obs.begin(ctx, "login")
	// Set once the email resolves, so failures against a known account are attributed to it.
	var userID string
	defer func() {
		m.obs.finish(ctx, c, err)
		if IsClientError(err) {
			m.record(ctx, audit.ActionLoginFailure, userID, in.Device, telemetry.OutcomeFailure, map[string]string{"reason": Reason(err)})
		}
	}()

	c.enter(StageCredentialCheck)
	u, err := m.users.GetByEmail(ctx, userdomain.NormalizeEmail(in.Email))
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if u == nil {
		return nil, ErrNotFound
	}
	userID = u.ID
	if !u.HasPassword() {
		return nil, ErrWrongAuthMethod
	}
	if err := m.hasher.Compare(ctx, u.PasswordHash, in.Password); err != nil {
		if errors.Is(err, security.ErrPasswordMismatch) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("compare password: %w", err)
	}

	pair, err = m.establish(ctx, c, u, in.Device)
	if err != nil {
		return nil, err
	}
	m.record(ctx, audit.ActionLoginSuccess, u.ID, in.Device, telemetry.OutcomeSuccess, map[string]string{"method": "password"})
	return pair, nil
}

// LoginWithFederatedToken verifies a provider ID token, resolves or links the
// user by verified email, and opens a new session.
func (m *SessionManager) LoginWithFederatedToken(ctx context.Context, in FederatedLoginInput) (pair *TokenPair, err error) {
	ctx, c := m.obs.begin(ctx, "login_federated")
	defer func() {
		m.obs.finish(ctx, c, err)
		if IsClientError(err) {
			m.record(ctx, audit.ActionLoginFailure, "", in.Device, telemetry.OutcomeFailure, map[string]string{"method": "federated", "reason": Reason(err)})
		}
	}()

	if m.verifier == nil || m.linker == nil {
		return nil, fmt.Errorf("%w: federated login is not configured", ErrInternal)
	}
	c.enter(StageCredentialCheck)
	claims, err := m.verifier.Verify(ctx, in.IDToken)
	if err != nil {
		return nil, err
	}
	u, err := m.linker.ResolveOrCreate(ctx, claims)
	if err != nil {
		return nil, err
	}

	pair, err = m.establish(ctx, c, u, in.Device)
	if err != nil {
		return nil, err
	}
	m.record(ctx, audit.ActionFederatedLogin, u.ID, in.Device, telemetry.OutcomeSuccess, map[string]string{"method": "federated"})
	return pair, nil
}

// Refresh exchanges a refresh token for a new pair. Each refresh token is
// accepted at most once; the replacement keeps the original device label.
func (m *SessionManager) Refresh(ctx context.Context, refreshToken string) (pair *TokenPair, err error) {
	ctx, c := m.obs.begin(ctx, "refresh")
	defer func() { m.obs.finish(ctx, c, err) }()

	c.enter(StageCredentialCheck)
	claims, verr := m.tokens.VerifyRefresh(refreshToken)
	if verr != nil && !errors.Is(verr, security.ErrTokenExpired) {
		return nil, ErrRefreshReuseOrInvalid
	}
	// An expired token still reaches the ledger so its row is removed.
	expired := verr != nil

	rec, err := m.ledger.Consume(ctx, security.FingerprintRefreshToken(refreshToken))
	switch {
	case errors.Is(err, sessionrepo.ErrNotFound):
		if !expired {
			m.onReuse(ctx, claims)
		}
		return nil, ErrRefreshReuseOrInvalid
	case errors.Is(err, sessionrepo.ErrExpired):
		return nil, ErrRefreshExpired
	case err != nil:
		return nil, fmt.Errorf("consume refresh token: %w", err)
	case expired:
		return nil, ErrRefreshExpired
	}

	if rec.UserID != claims.UserID() {
		log.Error().Str("record_user_id", rec.UserID).Str("token_subject", claims.UserID()).
			Msg("identity: ledger record does not belong to token subject")
		return nil, ErrInternal
	}
	u, err := m.users.GetByID(ctx, rec.UserID)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if u == nil {
		log.Error().Str("user_id", rec.UserID).Msg("identity: ledger record references a missing user")
		return nil, ErrInternal
	}

	pair, err = m.establish(ctx, c, u, rec.Device)
	if err != nil {
		return nil, err
	}
	m.record(ctx, audit.ActionRefresh, u.ID, rec.Device, telemetry.OutcomeSuccess, nil)
	return pair, nil
}

// Logout revokes the session of refreshToken. It always succeeds: unknown,
// already consumed or malformed tokens are ignored.
func (m *SessionManager) Logout(ctx context.Context, refreshToken string) error {
	ctx, c := m.obs.begin(ctx, "logout")
	defer m.obs.finish(ctx, c, nil)

	if strings.TrimSpace(refreshToken) == "" {
		return nil
	}
	if err := m.ledger.RevokeByFingerprint(ctx, security.FingerprintRefreshToken(refreshToken)); err != nil {
		log.Warn().Err(err).Msg("identity: logout revoke failed")
	}
	userID := ""
	if claims, err := m.tokens.VerifyRefresh(refreshToken); claims != nil && (err == nil || errors.Is(err, security.ErrTokenExpired)) {
		userID = claims.UserID()
	}
	m.record(ctx, audit.ActionLogout, userID, "", telemetry.OutcomeSuccess, nil)
	return nil
}

// Profile returns the response-safe view of the user.
func (m *SessionManager) Profile(ctx context.Context, userID string) (*userdomain.Profile, error) {
	u, err := m.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if u == nil {
		return nil, ErrNotFound
	}
	p := u.Profile()
	return &p, nil
}

// establish is the shared tail: issue a pair, persist the refresh token
// fingerprint, then record the login time. No tokens are returned unless all
// three succeed.
func (m *SessionManager) establish(ctx context.Context, c *call, u *userdomain.User, device string) (*TokenPair, error) {
	c.enter(StageTokenIssuance)
	access, accessExp, err := m.tokens.IssueAccess(u.ID, u.Email)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, refreshExp, err := m.tokens.IssueRefresh(u.ID, u.Email)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	c.enter(StageLedgerPersist)
	fp := security.FingerprintRefreshToken(refresh)
	if _, err := m.ledger.Store(ctx, u.ID, fp, sessiondomain.DeviceOrDefault(device), refreshExp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSessionPersistFailed, err)
	}
	if err := m.users.TouchLastLogin(ctx, u.ID, m.now().UTC()); err != nil {
		if rerr := m.ledger.RevokeByFingerprint(ctx, fp); rerr != nil {
			log.Error().Err(rerr).Str("user_id", u.ID).Msg("identity: failed to remove session after last-login update failed")
		}
		return nil, fmt.Errorf("record last login: %w", err)
	}
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
		UserID:           u.ID,
	}, nil
}

// onReuse handles a correctly signed refresh token that the ledger no longer
// holds: it was consumed, revoked, or never stored.
func (m *SessionManager) onReuse(ctx context.Context, claims *security.Claims) {
	userID := claims.UserID()
	meta := map[string]string{}
	if m.revokeAllOnReuse {
		n, err := m.ledger.RevokeAllForUser(ctx, userID)
		if err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("identity: revoke sessions after refresh reuse")
		} else {
			meta["revoked_sessions"] = fmt.Sprint(n)
		}
	}
	log.Warn().Str("user_id", userID).Msg("identity: refresh token reuse")
	m.record(ctx, audit.ActionRefreshReuse, userID, "", telemetry.OutcomeFailure, meta)
}

func (m *SessionManager) record(ctx context.Context, action, userID, device, outcome string, meta map[string]string) {
	if m.audit != nil {
		m.audit.LogEvent(ctx, userID, action, audit.ResourceSession, device, meta)
	}
	telemetry.EmitAsync(m.events, ctx, &telemetry.Event{
		Type:     action,
		UserID:   userID,
		Device:   device,
		Outcome:  outcome,
		Source:   eventSource,
		Metadata: meta,
	})
}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidArgument)
	}
	if !emailPattern.MatchString(email) {
		return fmt.Errorf("%w: invalid email format", ErrInvalidArgument)
	}
	return nil
}
