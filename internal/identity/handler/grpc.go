package handler

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"session-auth/internal/identity/service"
	"session-auth/internal/server/interceptors"
	userdomain "session-auth/internal/user/domain"
)

// SessionService is the session manager API used by the handler.
type SessionService interface {
	Register(ctx context.Context, in service.RegisterInput) (*service.TokenPair, error)
	Login(ctx context.Context, in service.LoginInput) (*service.TokenPair, error)
	LoginWithFederatedToken(ctx context.Context, in service.FederatedLoginInput) (*service.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*service.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	Profile(ctx context.Context, userID string) (*userdomain.Profile, error)
}

// AuthServer implements AuthServiceServer on top of the session manager.
type AuthServer struct {
	auth SessionService
}

// NewAuthServer returns a new Auth gRPC server. auth may be nil; then every RPC returns Unimplemented.
func NewAuthServer(auth SessionService) *AuthServer {
	return &AuthServer{auth: auth}
}

// Register creates a local account and returns its first token pair.
func (s *AuthServer) Register(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.auth == nil {
		return nil, unimplemented("Register")
	}
	pair, err := s.auth.Register(ctx, service.RegisterInput{
		Email:    field(req, "email"),
		Name:     field(req, "name"),
		Password: rawField(req, "password"),
		Device:   device(ctx, req),
	})
	if err != nil {
		return nil, authErr(err)
	}
	return tokenPairResponse(pair)
}

// Login authenticates with email and password.
func (s *AuthServer) Login(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.auth == nil {
		return nil, unimplemented("Login")
	}
	pair, err := s.auth.Login(ctx, service.LoginInput{
		Email:    field(req, "email"),
		Password: rawField(req, "password"),
		Device:   device(ctx, req),
	})
	if err != nil {
		return nil, authErr(err)
	}
	return tokenPairResponse(pair)
}

// LoginWithGoogle authenticates with a Google ID token.
func (s *AuthServer) LoginWithGoogle(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.auth == nil {
		return nil, unimplemented("LoginWithGoogle")
	}
	idToken := field(req, "id_token")
	if idToken == "" {
		return nil, status.Error(codes.InvalidArgument, "id_token is required")
	}
	pair, err := s.auth.LoginWithFederatedToken(ctx, service.FederatedLoginInput{IDToken: idToken, Device: device(ctx, req)})
	if err != nil {
		return nil, authErr(err)
	}
	return tokenPairResponse(pair)
}

// Refresh rotates a refresh token.
func (s *AuthServer) Refresh(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.auth == nil {
		return nil, unimplemented("Refresh")
	}
	pair, err := s.auth.Refresh(ctx, field(req, "refresh_token"))
	if err != nil {
		return nil, authErr(err)
	}
	return tokenPairResponse(pair)
}

// Logout revokes the presented refresh token. It always succeeds.
func (s *AuthServer) Logout(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.auth == nil {
		return nil, unimplemented("Logout")
	}
	_ = s.auth.Logout(ctx, field(req, "refresh_token"))
	return &structpb.Struct{Fields: map[string]*structpb.Value{}}, nil
}

// Me returns the caller's profile. Requires a Bearer access token.
func (s *AuthServer) Me(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if s.auth == nil {
		return nil, unimplemented("Me")
	}
	userID, ok := interceptors.GetUserID(ctx)
	if !ok || userID == "" {
		return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
	}
	p, err := s.auth.Profile(ctx, userID)
	if err != nil {
		return nil, authErr(err)
	}
	fields := map[string]any{
		"id":            p.ID,
		"email":         p.Email,
		"name":          p.Name,
		"avatar_url":    p.AvatarURL,
		"auth_provider": string(p.AuthProvider),
		"created_at":    p.CreatedAt.UTC().Format(time.RFC3339),
	}
	if p.LastLoginAt != nil {
		fields["last_login_at"] = p.LastLoginAt.UTC().Format(time.RFC3339)
	}
	return structpb.NewStruct(fields)
}

func tokenPairResponse(p *service.TokenPair) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"access_token":       p.AccessToken,
		"refresh_token":      p.RefreshToken,
		"access_expires_at":  p.AccessExpiresAt.UTC().Format(time.RFC3339),
		"refresh_expires_at": p.RefreshExpiresAt.UTC().Format(time.RFC3339),
		"user_id":            p.UserID,
	})
}

func field(req *structpb.Struct, key string) string {
	return strings.TrimSpace(rawField(req, key))
}

// rawField is field without trimming, for secrets.
func rawField(req *structpb.Struct, key string) string {
	return req.GetFields()[key].GetStringValue()
}

// device returns the request's device label, falling back to the client's user agent.
func device(ctx context.Context, req *structpb.Struct) string {
	if d := field(req, "device"); d != "" {
		return d
	}
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ua := md.Get("user-agent"); len(ua) > 0 {
			return strings.TrimSpace(ua[0])
		}
	}
	return ""
}

func unimplemented(method string) error {
	return status.Errorf(codes.Unimplemented, "method %s not implemented", method)
}

var errCodes = []struct {
	err  error
	code codes.Code
}{
	{service.ErrInvalidArgument, codes.InvalidArgument},
	{service.ErrAlreadyExists, codes.AlreadyExists},
	{service.ErrNotFound, codes.NotFound},
	{service.ErrWrongAuthMethod, codes.FailedPrecondition},
	{service.ErrInvalidCredentials, codes.Unauthenticated},
	{service.ErrInvalidFederatedToken, codes.Unauthenticated},
	{service.ErrRefreshReuseOrInvalid, codes.Unauthenticated},
	{service.ErrRefreshExpired, codes.Unauthenticated},
	{service.ErrFederatedClaimsIncomplete, codes.InvalidArgument},
	{service.ErrFederationLinkDenied, codes.PermissionDenied},
	{service.ErrProviderUnavailable, codes.Unavailable},
}

// authErr maps session manager errors to gRPC status errors. Client errors carry
// the sentinel message only; anything else becomes an opaque Internal.
func authErr(err error) error {
	for _, e := range errCodes {
		if errors.Is(err, e.err) {
			msg := e.err.Error()
			if e.err == service.ErrInvalidArgument {
				msg = err.Error()
			}
			return status.Error(e.code, msg)
		}
	}
	log.Error().Err(err).Msg("auth: internal error")
	return status.Error(codes.Internal, "internal error")
}
