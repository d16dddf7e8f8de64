package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"session-auth/internal/audit"
	auditrepo "session-auth/internal/audit/repository"
	"session-auth/internal/db"
	"session-auth/internal/db/dbtest"
	"session-auth/internal/identity/federation"
	"session-auth/internal/policy/engine"
	"session-auth/internal/security"
	sessionrepo "session-auth/internal/session/repository"
	userrepo "session-auth/internal/user/repository"
)

func newSQLiteManager(t *testing.T) (*SessionManager, *fakeVerifier, *auditrepo.SQLRepository) {
	t.Helper()
	conn := dbtest.NewSQLite(t)
	users := userrepo.NewSQLRepository(conn, db.DialectSQLite)
	audits := auditrepo.NewSQLRepository(conn, db.DialectSQLite)
	policy, err := engine.NewOPALinkEvaluator(context.Background(), "")
	require.NoError(t, err)
	verifier := &fakeVerifier{}
	mgr, err := NewSessionManager(Config{
		Users:    users,
		Ledger:   sessionrepo.NewSQLRepository(conn, db.DialectSQLite, time.Now),
		Hasher:   security.NewHasher(4, 2),
		Tokens:   security.NewTestTokenCodec(nil),
		Verifier: verifier,
		Linker:   federation.NewLinker(users, policy, nil),
		Audit:    audit.NewLogger(audits, nil),
	})
	require.NoError(t, err)
	return mgr, verifier, audits
}

func TestSQLite_ScenarioAndConcurrentRefresh(t *testing.T) {
	ctx := context.Background()
	mgr, _, audits := newSQLiteManager(t)

	p1, err := mgr.Register(ctx, RegisterInput{Email: "a@x.com", Name: "A", Password: "pw123456", Device: "deviceX"})
	require.NoError(t, err)
	_, err = mgr.Register(ctx, RegisterInput{Email: "a@x.com", Password: "pw123456"})
	require.ErrorIs(t, err, ErrAlreadyExists)

	const n = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins []*TokenPair
		errs []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := mgr.Refresh(ctx, p1.RefreshToken)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins = append(wins, p)
			} else {
				errs = append(errs, err)
			}
		}()
	}
	wg.Wait()
	require.Len(t, wins, 1)
	for _, err := range errs {
		require.ErrorIs(t, err, ErrRefreshReuseOrInvalid)
	}

	_, err = mgr.Login(ctx, LoginInput{Email: "a@x.com", Password: "wrong"})
	require.ErrorIs(t, err, ErrInvalidCredentials)
	p3, err := mgr.Login(ctx, LoginInput{Email: "a@x.com", Password: "pw123456"})
	require.NoError(t, err)

	_, err = mgr.Refresh(ctx, wins[0].RefreshToken)
	require.NoError(t, err)
	require.NoError(t, mgr.Logout(ctx, p3.RefreshToken))
	require.NoError(t, mgr.Logout(ctx, p3.RefreshToken))
	_, err = mgr.Refresh(ctx, p3.RefreshToken)
	require.ErrorIs(t, err, ErrRefreshReuseOrInvalid)

	logs, err := audits.ListByUser(ctx, p1.UserID, 100, 0)
	require.NoError(t, err)
	actions := map[string]int{}
	for _, l := range logs {
		actions[l.Action]++
	}
	require.Equal(t, 1, actions[audit.ActionRegister])
	require.Equal(t, 2, actions[audit.ActionRefresh])
	// n-1 concurrent losers plus the refresh after logout.
	require.Equal(t, n, actions[audit.ActionRefreshReuse])
	require.Equal(t, 1, actions[audit.ActionLoginSuccess])
	require.Equal(t, 2, actions[audit.ActionLogout])
}

func TestSQLite_FederatedLinkKeepsPasswordLogin(t *testing.T) {
	ctx := context.Background()
	mgr, verifier, _ := newSQLiteManager(t)

	p, err := mgr.Register(ctx, RegisterInput{Email: "a@x.com", Password: "pw123456"})
	require.NoError(t, err)

	verifier.claims = &federation.FederatedClaims{Subject: "g-1", Email: "A@x.com", EmailVerified: true}
	fp, err := mgr.LoginWithFederatedToken(ctx, FederatedLoginInput{IDToken: "t"})
	require.NoError(t, err)
	require.Equal(t, p.UserID, fp.UserID)

	_, err = mgr.Login(ctx, LoginInput{Email: "a@x.com", Password: "pw123456"})
	require.NoError(t, err)

	prof, err := mgr.Profile(ctx, p.UserID)
	require.NoError(t, err)
	require.Equal(t, "federated", string(prof.AuthProvider))
}

func TestSQLite_FederatedSubjectConflicts(t *testing.T) {
	ctx := context.Background()
	mgr, verifier, _ := newSQLiteManager(t)

	verifier.claims = &federation.FederatedClaims{Subject: "sub-1", Email: "old@x.com", EmailVerified: true}
	first, err := mgr.LoginWithFederatedToken(ctx, FederatedLoginInput{IDToken: "t"})
	require.NoError(t, err)

	// The provider account now reports a different email.
	verifier.claims = &federation.FederatedClaims{Subject: "sub-1", Email: "new@x.com", EmailVerified: true}
	again, err := mgr.LoginWithFederatedToken(ctx, FederatedLoginInput{IDToken: "t"})
	require.NoError(t, err)
	require.Equal(t, first.UserID, again.UserID)

	// A local account owning the new email cannot take over the subject.
	_, err = mgr.Register(ctx, RegisterInput{Email: "new@x.com", Password: "pw123456"})
	require.NoError(t, err)
	_, err = mgr.LoginWithFederatedToken(ctx, FederatedLoginInput{IDToken: "t"})
	require.ErrorIs(t, err, ErrFederationLinkDenied)
	require.True(t, IsClientError(err))
	require.Equal(t, "federation_link_denied", Reason(err))
}
