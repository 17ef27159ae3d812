package adminapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// adminServer is the interface Server satisfies; the RPC handlers below
// only need it, not the concrete type, mirroring the shape protoc-gen-go
// would normally generate from a service definition.
type adminServer interface {
	Send(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Stat(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Kill(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Launch(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Register(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Query(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

func unaryHandler(method func(adminServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return method(srv.(adminServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/actor.AdminService/"}
		handler := func(ctx context.Context, req any) (any, error) {
			return method(srv.(adminServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// serviceDesc registers the admin RPCs under the actor.AdminService name,
// the hand-written equivalent of what protoc-gen-go-grpc would emit from a
// service AdminService { ... } block.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: "actor.AdminService",
	HandlerType: (*adminServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Send", Handler: unaryHandler(adminServer.Send)},
		{MethodName: "Stat", Handler: unaryHandler(adminServer.Stat)},
		{MethodName: "Kill", Handler: unaryHandler(adminServer.Kill)},
		{MethodName: "Launch", Handler: unaryHandler(adminServer.Launch)},
		{MethodName: "Register", Handler: unaryHandler(adminServer.Register)},
		{MethodName: "Query", Handler: unaryHandler(adminServer.Query)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "adminapi.go",
}
