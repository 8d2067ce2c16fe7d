package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/tejusbharadwaj/apavital/internal/api"
	"github.com/tejusbharadwaj/apavital/internal/coordinator"
	middleware "github.com/tejusbharadwaj/apavital/internal/grpc/middlewares"
	"github.com/tejusbharadwaj/apavital/internal/metrics"
	"github.com/tejusbharadwaj/apavital/internal/models"
	"github.com/tejusbharadwaj/apavital/internal/sensors"
)

// ServerConfig holds configuration options for the gRPC server
type ServerConfig struct {
	RateLimit      float64 // Requests per second
	RateLimitBurst int     // Maximum burst size for rate limiting
}

// DefaultServerConfig returns a ServerConfig with sensible defaults
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		RateLimit:      5.0,
		RateLimitBurst: 10,
	}
}

// SensorCoordinator is the part of coordinator.Coordinator the service needs.
type SensorCoordinator interface {
	Snapshot() (*models.Snapshot, bool)
	Refresh(ctx context.Context) (*models.Snapshot, error)
	UpdateToken(ctx context.Context, token string) error
}

// SensorService exposes the sensor states over gRPC.
type SensorService struct {
	coord     SensorCoordinator
	validator *RequestValidator
}

func NewSensorService(coord SensorCoordinator) *SensorService {
	return &SensorService{
		coord:     coord,
		validator: NewRequestValidator(),
	}
}

func (s *SensorService) ListSensors(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return statesStruct(sensors.States(s.coord))
}

func (s *SensorService) GetSensor(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	key := req.GetValue()
	if err := s.validator.ValidateSensorKey(key); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	st, err := sensors.StateOf(s.coord, key)
	if err != nil {
		return nil, toStatus(err)
	}
	return stateStruct(st)
}

// Refresh forces an update cycle and returns the resulting states.
func (s *SensorService) Refresh(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if _, err := s.coord.Refresh(ctx); err != nil {
		return nil, toStatus(err)
	}
	return statesStruct(sensors.States(s.coord))
}

func (s *SensorService) UpdateToken(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if err := s.validator.ValidateToken(req.GetValue()); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.coord.UpdateToken(ctx, req.GetValue()); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func stateMap(st sensors.State) map[string]interface{} {
	m := map[string]interface{}{
		"key":       st.Key,
		"name":      st.Name,
		"available": st.Available,
		"value":     st.Value,
	}
	if st.Unit != "" {
		m["unit"] = st.Unit
	}
	if st.DeviceClass != "" {
		m["device_class"] = st.DeviceClass
	}
	return m
}

func stateStruct(st sensors.State) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(stateMap(st))
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode sensor %s: %v", st.Key, err)
	}
	return out, nil
}

func statesStruct(states []sensors.State) (*structpb.Struct, error) {
	list := make([]interface{}, 0, len(states))
	for _, st := range states {
		list = append(list, stateMap(st))
	}
	out, err := structpb.NewStruct(map[string]interface{}{"sensors": list})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode sensors: %v", err)
	}
	return out, nil
}

// toStatus maps domain errors onto gRPC status codes.
func toStatus(err error) error {
	switch {
	case errors.Is(err, sensors.ErrUnknownSensor):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, api.ErrAuthExpired):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, coordinator.ErrInvalidToken):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, api.ErrFetch), errors.Is(err, api.ErrMalformedResponse):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Errorf(codes.Internal, "%v", err)
	}
}

// gRPC Server Configuration without the middleware (for development and debug only)
func ConfigureGRPCServer(
	coord SensorCoordinator,
	opts ...grpc.ServerOption,
) *grpc.Server {
	srv := grpc.NewServer(opts...)
	RegisterSensorServiceServer(srv, NewSensorService(coord))
	return srv
}

// SetupServer initializes and configures the gRPC server with all middleware.
// m may be nil, in which case request metrics are not collected.
func SetupServer(
	coord SensorCoordinator,
	config ServerConfig,
	health *HealthChecker,
	logger *logrus.Logger,
	m *metrics.Metrics,
) (*grpc.Server, error) {
	if config.RateLimit <= 0 {
		return nil, fmt.Errorf("rate limit must be positive, got %v", config.RateLimit)
	}
	if config.RateLimitBurst <= 0 {
		return nil, fmt.Errorf("rate limit burst must be positive, got %d", config.RateLimitBurst)
	}

	interceptors := []grpc.UnaryServerInterceptor{
		middleware.ContextMiddleware, // Add request ID first
		middleware.NewRateLimitingInterceptor(config.RateLimit, config.RateLimitBurst),
		middleware.NewLoggingInterceptor(logger), // Log all requests (with request ID)
	}
	if m != nil {
		interceptors = append(interceptors, middleware.NewMetricsInterceptor(m.Requests, m.Latency))
	}

	server := grpc.NewServer(
		grpc.UnaryInterceptor(chainUnaryInterceptors(interceptors...)),
	)

	RegisterSensorServiceServer(server, NewSensorService(coord))
	if health != nil {
		grpc_health_v1.RegisterHealthServer(server, health)
	}

	return server, nil
}

// chainUnaryInterceptors creates a single interceptor from multiple interceptors
func chainUnaryInterceptors(interceptors ...grpc.UnaryServerInterceptor) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		chain := handler
		for i := len(interceptors) - 1; i >= 0; i-- {
			interceptor := interceptors[i]
			chainedInterceptor := chain
			chain = func(currentCtx context.Context, currentReq interface{}) (interface{}, error) {
				return interceptor(currentCtx, currentReq, info, chainedInterceptor)
			}
		}
		return chain(ctx, req)
	}
}
