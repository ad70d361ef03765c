package vault

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region service-desc
// ServiceDesc serves any Reader as the vault service, for local stubs and
// tests. Handlers use structpb.Struct on the wire, like GRPCClient.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Reader)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetStatus", Handler: getStatusHandler},
		{MethodName: "IsWhitelisted", Handler: isWhitelistedHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "agentvault/v1/vault.proto",
}

// Register serves r on s.
func Register(s *grpc.Server, r Reader) {
	s.RegisterService(&ServiceDesc, r)
}

// #endregion service-desc

// #region handlers
func getStatusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := &structpb.Struct{}
	if err := dec(req); err != nil {
		return nil, err
	}
	handler := func(ctx context.Context, in any) (any, error) {
		agent := in.(*structpb.Struct).GetFields()["agent"].GetStringValue()
		st, err := srv.(Reader).Status(ctx, agent)
		if err != nil {
			return nil, status.Error(codes.NotFound, err.Error())
		}
		return structpb.NewStruct(map[string]any{
			"balance":             st.Balance.String(),
			"daily_limit":         st.DailyLimit.String(),
			"daily_spent":         st.DailySpent.String(),
			"remaining_allowance": st.RemainingAllowance.String(),
		})
	}
	if interceptor == nil {
		return handler(ctx, req)
	}
	return interceptor(ctx, req, &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodGetStatus}, handler)
}

func isWhitelistedHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := &structpb.Struct{}
	if err := dec(req); err != nil {
		return nil, err
	}
	handler := func(ctx context.Context, in any) (any, error) {
		fields := in.(*structpb.Struct).GetFields()
		ok, err := srv.(Reader).IsWhitelisted(ctx, fields["agent"].GetStringValue(), fields["recipient"].GetStringValue())
		if err != nil {
			return nil, status.Error(codes.Internal, err.Error())
		}
		return structpb.NewStruct(map[string]any{"whitelisted": ok})
	}
	if interceptor == nil {
		return handler(ctx, req)
	}
	return interceptor(ctx, req, &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodIsWhitelisted}, handler)
}

// #endregion handlers
