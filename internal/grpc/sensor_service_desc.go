package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "apavital.v1.SensorService"

const (
	methodListSensors = "/" + ServiceName + "/ListSensors"
	methodGetSensor   = "/" + ServiceName + "/GetSensor"
	methodRefresh     = "/" + ServiceName + "/Refresh"
	methodUpdateToken = "/" + ServiceName + "/UpdateToken"
)

// SensorServiceServer is the server API for the sensor service. Messages are
// protobuf well-known types so no generated code is required.
type SensorServiceServer interface {
	ListSensors(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetSensor(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	Refresh(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	UpdateToken(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
}

func RegisterSensorServiceServer(s grpc.ServiceRegistrar, srv SensorServiceServer) {
	s.RegisterService(&SensorServiceDesc, srv)
}

func unaryHandler[Req any, Resp any](
	fullMethod string,
	call func(SensorServiceServer, context.Context, *Req) (Resp, error),
) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(SensorServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(SensorServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var SensorServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SensorServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "ListSensors",
			Handler:    unaryHandler(methodListSensors, SensorServiceServer.ListSensors),
		},
		{
			MethodName: "GetSensor",
			Handler:    unaryHandler(methodGetSensor, SensorServiceServer.GetSensor),
		},
		{
			MethodName: "Refresh",
			Handler:    unaryHandler(methodRefresh, SensorServiceServer.Refresh),
		},
		{
			MethodName: "UpdateToken",
			Handler:    unaryHandler(methodUpdateToken, SensorServiceServer.UpdateToken),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "apavital/v1/sensor_service.proto",
}

// SensorServiceClient is the client API for the sensor service.
type SensorServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewSensorServiceClient(cc grpc.ClientConnInterface) *SensorServiceClient {
	return &SensorServiceClient{cc: cc}
}

func (c *SensorServiceClient) ListSensors(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodListSensors, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SensorServiceClient) GetSensor(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodGetSensor, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SensorServiceClient) Refresh(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodRefresh, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SensorServiceClient) UpdateToken(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, methodUpdateToken, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
