package federation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"session-auth/internal/policy/engine"
	userdomain "session-auth/internal/user/domain"
	userrepo "session-auth/internal/user/repository"
)

// ErrFederationLinkDenied is returned when the link policy refuses to attach the
// federated identity to an existing account.
var ErrFederationLinkDenied = errors.New("federation link denied")

// Linker maps verified federated claims onto a user account. The
// provider-verified email is the join key between the two.
type Linker struct {
	users  userrepo.Repository
	policy engine.LinkEvaluator
	now    func() time.Time
}

// NewLinker returns a Linker. policy may be nil to allow every link of a
// verified email. now may be nil (time.Now).
func NewLinker(users userrepo.Repository, policy engine.LinkEvaluator, now func() time.Time) *Linker {
	if now == nil {
		now = time.Now
	}
	return &Linker{users: users, policy: policy, now: now}
}

// ResolveOrCreate returns the user for claims, creating a federated user when
// none exists and linking an existing unlinked user. An already linked user is
// returned unchanged, as is the account holding the subject when no user has
// the claimed email. Linking a subject that belongs to another account yields
// ErrFederationLinkDenied.
func (l *Linker) ResolveOrCreate(ctx context.Context, claims *FederatedClaims) (*userdomain.User, error) {
	email := userdomain.NormalizeEmail(claims.Email)
	u, err := l.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if u == nil {
		u, err = l.create(ctx, email, claims)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, userrepo.ErrConflict) {
			return nil, err
		}
		// Lost a concurrent create for the same email; continue with the winner.
		u, err = l.users.GetByEmail(ctx, email)
		if err != nil {
			return nil, fmt.Errorf("lookup user: %w", err)
		}
		if u == nil {
			// No row holds the email, so the subject is taken: the provider
			// account changed its email since it was linked.
			return l.bySubject(ctx, email, claims)
		}
	}

	if u.IsFederationLinked() {
		if u.FederatedSubjectID != claims.Subject {
			log.Warn().
				Str("user_id", u.ID).
				Str("linked_subject", u.FederatedSubjectID).
				Str("token_subject", claims.Subject).
				Msg("federation: email already linked to a different subject")
		}
		return u, nil
	}
	return l.link(ctx, u, email, claims)
}

func (l *Linker) create(ctx context.Context, email string, claims *FederatedClaims) (*userdomain.User, error) {
	now := l.now().UTC()
	u := &userdomain.User{
		ID:                 uuid.New().String(),
		Email:              email,
		Name:               claims.Name,
		AvatarURL:          claims.Picture,
		FederatedSubjectID: claims.Subject,
		AuthProvider:       userdomain.AuthProviderFederated,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := l.users.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("create federated user: %w", err)
	}
	return u, nil
}

func (l *Linker) link(ctx context.Context, u *userdomain.User, email string, claims *FederatedClaims) (*userdomain.User, error) {
	if l.policy != nil {
		allow, err := l.policy.AllowLink(ctx, engine.LinkInput{
			User: engine.LinkUser{
				ID:           u.ID,
				Email:        u.Email,
				AuthProvider: string(u.AuthProvider),
				HasPassword:  u.HasPassword(),
			},
			Claims: engine.LinkClaims{
				Subject:       claims.Subject,
				Email:         email,
				EmailVerified: claims.EmailVerified,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("evaluate link policy: %w", err)
		}
		if !allow {
			return nil, ErrFederationLinkDenied
		}
	}
	err := l.users.UpdateFederationLink(ctx, u.ID, claims.Subject, l.now().UTC())
	switch {
	case err == nil:
	case errors.Is(err, userrepo.ErrAlreadyLinked):
		// A concurrent login linked it first; use the stored link as is.
		cur, err := l.users.GetByID(ctx, u.ID)
		if err != nil {
			return nil, fmt.Errorf("lookup user: %w", err)
		}
		if cur == nil {
			return nil, fmt.Errorf("user %s vanished while linking", u.ID)
		}
		return cur, nil
	case errors.Is(err, userrepo.ErrConflict):
		log.Warn().
			Str("user_id", u.ID).
			Str("token_subject", claims.Subject).
			Msg("federation: subject already linked to another account")
		return nil, fmt.Errorf("%w: subject is linked to another account", ErrFederationLinkDenied)
	default:
		return nil, fmt.Errorf("link federated identity: %w", err)
	}
	linked := *u
	linked.FederatedSubjectID = claims.Subject
	linked.AuthProvider = userdomain.AuthProviderFederated
	return &linked, nil
}

// bySubject returns the account already linked to the claims' subject.
func (l *Linker) bySubject(ctx context.Context, email string, claims *FederatedClaims) (*userdomain.User, error) {
	u, err := l.users.GetByFederatedSubject(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("lookup user by subject: %w", err)
	}
	if u == nil {
		return nil, fmt.Errorf("user %s vanished after create conflict", email)
	}
	log.Warn().
		Str("user_id", u.ID).
		Str("stored_email", u.Email).
		Str("token_email", email).
		Msg("federation: subject linked under a different email")
	return u, nil
}
