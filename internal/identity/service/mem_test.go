package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	auditdomain "session-auth/internal/audit/domain"
	"session-auth/internal/identity/federation"
	sessiondomain "session-auth/internal/session/domain"
	sessionrepo "session-auth/internal/session/repository"
	"session-auth/internal/telemetry"
	userdomain "session-auth/internal/user/domain"
	userrepo "session-auth/internal/user/repository"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type memUserRepo struct {
	mu         sync.Mutex
	byID       map[string]*userdomain.User
	byEmail    map[string]*userdomain.User
	createHook func()
	touchErr   error
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{byID: map[string]*userdomain.User{}, byEmail: map[string]*userdomain.User{}}
}

func (r *memUserRepo) GetByID(ctx context.Context, id string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[id]; ok {
		c := *u
		return &c, nil
	}
	return nil, nil
}

func (r *memUserRepo) GetByEmail(ctx context.Context, email string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byEmail[email]; ok {
		c := *u
		return &c, nil
	}
	return nil, nil
}

func (r *memUserRepo) Create(ctx context.Context, u *userdomain.User) error {
	if r.createHook != nil {
		hook := r.createHook
		r.createHook = nil
		hook()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byEmail[u.Email]; ok {
		return userrepo.ErrConflict
	}
	c := *u
	r.byID[u.ID] = &c
	r.byEmail[u.Email] = &c
	return nil
}

func (r *memUserRepo) GetByFederatedSubject(ctx context.Context, subject string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if u.FederatedSubjectID == subject {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

func (r *memUserRepo) UpdateFederationLink(ctx context.Context, userID, subject string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[userID]
	if !ok {
		return userrepo.ErrNotFound
	}
	if u.FederatedSubjectID != "" {
		return userrepo.ErrAlreadyLinked
	}
	u.FederatedSubjectID = subject
	u.AuthProvider = userdomain.AuthProviderFederated
	u.UpdatedAt = at
	return nil
}

func (r *memUserRepo) TouchLastLogin(ctx context.Context, userID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.touchErr != nil {
		return r.touchErr
	}
	u, ok := r.byID[userID]
	if !ok {
		return userrepo.ErrNotFound
	}
	u.LastLoginAt = &at
	return nil
}

func (r *memUserRepo) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[id]; ok {
		delete(r.byEmail, u.Email)
		delete(r.byID, id)
	}
}

// memLedger mirrors the SQL ledger: Consume removes the entry under one lock.
type memLedger struct {
	mu       sync.Mutex
	now      func() time.Time
	byFP     map[string]*sessiondomain.Session
	storeErr error
}

func newMemLedger(now func() time.Time) *memLedger {
	return &memLedger{now: now, byFP: map[string]*sessiondomain.Session{}}
}

func (l *memLedger) Store(ctx context.Context, userID, fingerprint, device string, expiresAt time.Time) (*sessiondomain.Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.storeErr != nil {
		return nil, l.storeErr
	}
	if _, ok := l.byFP[fingerprint]; ok {
		return nil, sessionrepo.ErrDuplicateFingerprint
	}
	s := &sessiondomain.Session{
		ID:               uuid.New().String(),
		UserID:           userID,
		TokenFingerprint: fingerprint,
		Device:           sessiondomain.DeviceOrDefault(device),
		ExpiresAt:        expiresAt,
		CreatedAt:        l.now(),
	}
	l.byFP[fingerprint] = s
	c := *s
	return &c, nil
}

func (l *memLedger) Consume(ctx context.Context, fingerprint string) (*sessiondomain.Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.byFP[fingerprint]
	if !ok || s.Revoked {
		return nil, sessionrepo.ErrNotFound
	}
	delete(l.byFP, fingerprint)
	c := *s
	if !c.Usable(l.now()) {
		return &c, sessionrepo.ErrExpired
	}
	return &c, nil
}

func (l *memLedger) RevokeByFingerprint(ctx context.Context, fingerprint string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.byFP, fingerprint)
	return nil
}

func (l *memLedger) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int64
	for _, s := range l.byFP {
		if s.UserID == userID && !s.Revoked {
			s.Revoked = true
			n++
		}
	}
	return n, nil
}

func (l *memLedger) put(s *sessiondomain.Session) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byFP[s.TokenFingerprint] = s
}

func (l *memLedger) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byFP)
}

type memAudit struct {
	mu      sync.Mutex
	entries []auditdomain.AuditLog
}

func (a *memAudit) LogEvent(ctx context.Context, userID, action, resource, device string, metadata map[string]string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, auditdomain.AuditLog{UserID: userID, Action: action, Resource: resource, Device: device})
}

func (a *memAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.entries))
	for i, e := range a.entries {
		out[i] = e.Action
	}
	return out
}

type memEvents struct {
	ch chan *telemetry.Event
}

func (e *memEvents) Emit(ctx context.Context, ev *telemetry.Event) error {
	e.ch <- ev
	return nil
}

type fakeVerifier struct {
	claims *federation.FederatedClaims
	err    error
}

func (v *fakeVerifier) Verify(ctx context.Context, raw string) (*federation.FederatedClaims, error) {
	if v.err != nil {
		return nil, v.err
	}
	c := *v.claims
	return &c, nil
}
