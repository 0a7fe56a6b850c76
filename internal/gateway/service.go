package gateway

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the gRPC service path resource agents dial against;
// there being no .proto package, it stands in for one.
const ServiceName = "itemstored.gateway.ResourceGateway"

// serviceDesc is the hand-written equivalent of a protoc-generated
// grpc.ServiceDesc: one MethodDesc per ResourceGateway method, decoding
// request bodies through the registered jsonCodec instead of protobuf.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ResourceGateway)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RetrieveItems", Handler: retrieveItemsHandler},
		{MethodName: "RetrieveCollections", Handler: retrieveCollectionsHandler},
		{MethodName: "ChangeCommitted", Handler: changeCommittedHandler},
		{MethodName: "Register", Handler: registerHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "internal/gateway/service.go",
}

func RegisterResourceGatewayServer(s grpc.ServiceRegistrar, srv ResourceGateway) {
	s.RegisterService(&serviceDesc, srv)
}

func retrieveItemsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(RetrieveItemsRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ResourceGateway).RetrieveItems(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/RetrieveItems"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ResourceGateway).RetrieveItems(ctx, req.(*RetrieveItemsRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func retrieveCollectionsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(RetrieveCollectionsRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ResourceGateway).RetrieveCollections(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/RetrieveCollections"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ResourceGateway).RetrieveCollections(ctx, req.(*RetrieveCollectionsRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func changeCommittedHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(ChangeCommittedRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ResourceGateway).ChangeCommitted(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/ChangeCommitted"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ResourceGateway).ChangeCommitted(ctx, req.(*ChangeCommittedRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func registerHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(RegisterRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	register, ok := srv.(interface {
		Register(context.Context, *RegisterRequest) (*RegisterResponse, error)
	})
	if !ok {
		return &RegisterResponse{Accepted: true}, nil
	}
	if interceptor == nil {
		return register.Register(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/Register"}
	handler := func(ctx context.Context, req any) (any, error) {
		return register.Register(ctx, req.(*RegisterRequest))
	}
	return interceptor(ctx, req, info, handler)
}
