package grpcpool

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	serviceName = "forge.pool.v1.Pool"

	methodOpen   = "/" + serviceName + "/Open"
	methodSubmit = "/" + serviceName + "/Submit"
	methodClose  = "/" + serviceName + "/Close"

	// handleKey is the metadata key carrying the pool handle on Submit.
	handleKey = "pool-handle"
)

// PoolServer is the server API for the pool gateway service.
//
// Messages are protobuf well-known wrapper types so the service needs no
// generated code:
//
//	Open(BytesValue genesis lines) returns (StringValue handle)
//	Submit(BytesValue request)     returns (StringValue reply)   // handle in metadata
//	Close(StringValue handle)      returns (BoolValue closed)
type PoolServer interface {
	Open(context.Context, *wrapperspb.BytesValue) (*wrapperspb.StringValue, error)
	Submit(context.Context, *wrapperspb.BytesValue) (*wrapperspb.StringValue, error)
	Close(context.Context, *wrapperspb.StringValue) (*wrapperspb.BoolValue, error)
}

// UnimplementedPoolServer can be embedded to have forward compatible implementations.
type UnimplementedPoolServer struct{}

func (UnimplementedPoolServer) Open(context.Context, *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Open not implemented")
}
func (UnimplementedPoolServer) Submit(context.Context, *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Submit not implemented")
}
func (UnimplementedPoolServer) Close(context.Context, *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Close not implemented")
}

// RegisterPoolServer registers the pool service on a gRPC server.
func RegisterPoolServer(s grpc.ServiceRegistrar, srv PoolServer) {
	s.RegisterService(&Pool_ServiceDesc, srv)
}

// PoolClient is the client API for the pool gateway service.
type PoolClient interface {
	Open(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
	Submit(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
	Close(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error)
}

type poolClient struct{ cc grpc.ClientConnInterface }

func NewPoolClient(cc grpc.ClientConnInterface) PoolClient { return &poolClient{cc: cc} }

func (c *poolClient) Open(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, methodOpen, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *poolClient) Submit(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, methodSubmit, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *poolClient) Close(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.cc.Invoke(ctx, methodClose, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func _Pool_Open_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PoolServer).Open(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodOpen}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PoolServer).Open(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _Pool_Submit_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PoolServer).Submit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodSubmit}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PoolServer).Submit(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _Pool_Close_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PoolServer).Close(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodClose}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PoolServer).Close(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// Pool_ServiceDesc is the grpc.ServiceDesc for the pool service.
var Pool_ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*PoolServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Open", Handler: _Pool_Open_Handler},
		{MethodName: "Submit", Handler: _Pool_Submit_Handler},
		{MethodName: "Close", Handler: _Pool_Close_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pool.proto",
}
