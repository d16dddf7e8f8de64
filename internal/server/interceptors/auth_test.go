package interceptors

import (
	"context"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"session-auth/internal/security"
)

const (
	meMethod    = "/sessionauth.v1.AuthService/Me"
	loginMethod = "/sessionauth.v1.AuthService/Login"
)

var publicMethods = map[string]bool{loginMethod: true}

func withBearer(token string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer "+token))
}

// identityHandler returns the user_id and email it sees in context.
func identityHandler(ctx context.Context, req any) (any, error) {
	userID, _ := GetUserID(ctx)
	email, _ := GetEmail(ctx)
	return userID + "|" + email, nil
}

func TestAuthUnary_PublicMethod_NoToken(t *testing.T) {
	interceptor := AuthUnary(security.NewTestTokenCodec(nil), publicMethods)
	resp, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: loginMethod}, identityHandler)
	if err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if resp != "|" {
		t.Errorf("resp = %v, want empty identity", resp)
	}
}

func TestAuthUnary_PublicMethod_InvalidTokenIgnored(t *testing.T) {
	interceptor := AuthUnary(security.NewTestTokenCodec(nil), publicMethods)
	resp, err := interceptor(withBearer("garbage"), nil, &grpc.UnaryServerInfo{FullMethod: loginMethod}, identityHandler)
	if err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if resp != "|" {
		t.Errorf("resp = %v, want empty identity", resp)
	}
}

func TestAuthUnary_ProtectedMethod_ValidToken(t *testing.T) {
	tokens := security.NewTestTokenCodec(nil)
	access, _, err := tokens.IssueAccess("user-1", "a@x.com")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	interceptor := AuthUnary(tokens, publicMethods)
	resp, err := interceptor(withBearer(access), nil, &grpc.UnaryServerInfo{FullMethod: meMethod}, identityHandler)
	if err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if resp != "user-1|a@x.com" {
		t.Errorf("resp = %v, want user-1|a@x.com", resp)
	}
}

func TestAuthUnary_ProtectedMethod_NoToken(t *testing.T) {
	interceptor := AuthUnary(security.NewTestTokenCodec(nil), publicMethods)
	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: meMethod}, identityHandler)
	if status.Code(err) != codes.Unauthenticated {
		t.Errorf("code = %v, want Unauthenticated", status.Code(err))
	}
}

func TestAuthUnary_ProtectedMethod_InvalidToken(t *testing.T) {
	interceptor := AuthUnary(security.NewTestTokenCodec(nil), publicMethods)
	_, err := interceptor(withBearer("not-a-jwt"), nil, &grpc.UnaryServerInfo{FullMethod: meMethod}, identityHandler)
	if status.Code(err) != codes.Unauthenticated {
		t.Errorf("code = %v, want Unauthenticated", status.Code(err))
	}
}

func TestAuthUnary_ProtectedMethod_RefreshTokenRejected(t *testing.T) {
	tokens := security.NewTestTokenCodec(nil)
	refresh, _, err := tokens.IssueRefresh("user-1", "a@x.com")
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	interceptor := AuthUnary(tokens, publicMethods)
	_, err = interceptor(withBearer(refresh), nil, &grpc.UnaryServerInfo{FullMethod: meMethod}, identityHandler)
	if status.Code(err) != codes.Unauthenticated {
		t.Errorf("code = %v, want Unauthenticated", status.Code(err))
	}
}

func TestAuthUnary_ProtectedMethod_ExpiredToken(t *testing.T) {
	issued := time.Now().Add(-24 * time.Hour)
	access, _, err := security.NewTestTokenCodec(func() time.Time { return issued }).IssueAccess("user-1", "a@x.com")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	interceptor := AuthUnary(security.NewTestTokenCodec(nil), publicMethods)
	_, err = interceptor(withBearer(access), nil, &grpc.UnaryServerInfo{FullMethod: meMethod}, identityHandler)
	if status.Code(err) != codes.Unauthenticated {
		t.Errorf("code = %v, want Unauthenticated", status.Code(err))
	}
}

func TestExtractBearer(t *testing.T) {
	tests := []struct {
		name string
		md   metadata.MD
		want string
	}{
		{"valid", metadata.Pairs("authorization", "Bearer abc"), "abc"},
		{"case insensitive", metadata.Pairs("authorization", "bEaReR abc"), "abc"},
		{"whitespace", metadata.Pairs("authorization", "  Bearer   abc  "), "abc"},
		{"basic scheme", metadata.Pairs("authorization", "Basic abc"), ""},
		{"too short", metadata.Pairs("authorization", "Bear"), ""},
		{"missing header", metadata.Pairs("x-other", "v"), ""},
		{"no metadata", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			if tt.md != nil {
				ctx = metadata.NewIncomingContext(ctx, tt.md)
			}
			if got := extractBearer(ctx); got != tt.want {
				t.Errorf("extractBearer = %q, want %q", got, tt.want)
			}
		})
	}
}
