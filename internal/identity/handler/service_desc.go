package handler

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Full method names of sessionauth.v1.AuthService.
const (
	AuthServiceName                        = "sessionauth.v1.AuthService"
	AuthService_Register_FullMethod        = "/" + AuthServiceName + "/Register"
	AuthService_Login_FullMethod           = "/" + AuthServiceName + "/Login"
	AuthService_LoginWithGoogle_FullMethod = "/" + AuthServiceName + "/LoginWithGoogle"
	AuthService_Refresh_FullMethod         = "/" + AuthServiceName + "/Refresh"
	AuthService_Logout_FullMethod          = "/" + AuthServiceName + "/Logout"
	AuthService_Me_FullMethod              = "/" + AuthServiceName + "/Me"
)

// PublicMethods are the AuthService methods callable without a Bearer access token.
var PublicMethods = []string{
	AuthService_Register_FullMethod,
	AuthService_Login_FullMethod,
	AuthService_LoginWithGoogle_FullMethod,
	AuthService_Refresh_FullMethod,
	AuthService_Logout_FullMethod,
}

// AuthServiceServer is the server API for sessionauth.v1.AuthService. Messages
// are google.protobuf.Struct so the service needs no generated code.
type AuthServiceServer interface {
	Register(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Login(context.Context, *structpb.Struct) (*structpb.Struct, error)
	LoginWithGoogle(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Refresh(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Logout(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Me(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(AuthServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func methodHandler(fullMethod string, call unaryMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AuthServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AuthServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// AuthService_ServiceDesc is the grpc.ServiceDesc for sessionauth.v1.AuthService.
var AuthService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: AuthServiceName,
	HandlerType: (*AuthServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Register", Handler: methodHandler(AuthService_Register_FullMethod, AuthServiceServer.Register)},
		{MethodName: "Login", Handler: methodHandler(AuthService_Login_FullMethod, AuthServiceServer.Login)},
		{MethodName: "LoginWithGoogle", Handler: methodHandler(AuthService_LoginWithGoogle_FullMethod, AuthServiceServer.LoginWithGoogle)},
		{MethodName: "Refresh", Handler: methodHandler(AuthService_Refresh_FullMethod, AuthServiceServer.Refresh)},
		{MethodName: "Logout", Handler: methodHandler(AuthService_Logout_FullMethod, AuthServiceServer.Logout)},
		{MethodName: "Me", Handler: methodHandler(AuthService_Me_FullMethod, AuthServiceServer.Me)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sessionauth/v1/auth.proto",
}

// RegisterAuthServiceServer registers srv on s.
func RegisterAuthServiceServer(s grpc.ServiceRegistrar, srv AuthServiceServer) {
	s.RegisterService(&AuthService_ServiceDesc, srv)
}

// AuthServiceClient is a client for sessionauth.v1.AuthService.
type AuthServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewAuthServiceClient returns a client using cc.
func NewAuthServiceClient(cc grpc.ClientConnInterface) *AuthServiceClient {
	return &AuthServiceClient{cc: cc}
}

// Invoke calls fullMethod with a request built from fields.
func (c *AuthServiceClient) Invoke(ctx context.Context, fullMethod string, fields map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
