// Package grpc serves the account operations over gRPC. Every call passes
// through the same authorization filter and route policy as HTTP.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/authz"
	"github.com/dmitrijs2005/gatekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/gatekeeper/internal/server/services"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// AccountService is the coordinator the handlers delegate to.
type AccountService interface {
	Register(ctx context.Context, in services.RegisterInput) (*services.AuthResult, error)
	Authenticate(ctx context.Context, email, password string) (*services.AuthResult, error)
}

type GRPCServer struct {
	address  string
	accounts AccountService
	filter   *authz.Filter
	policy   *authz.Policy
	logger   logging.Logger
	metrics  *metrics.Metrics
	health   *health.Server
}

func NewGRPCServer(address string, l logging.Logger, accounts AccountService, filter *authz.Filter,
	policy *authz.Policy, m *metrics.Metrics) *GRPCServer {
	return &GRPCServer{
		address:  address,
		logger:   l.With("module", "grpc_server"),
		accounts: accounts,
		filter:   filter,
		policy:   policy,
		metrics:  m,
		health:   health.NewServer(),
	}
}

// DefaultPolicy makes registration, authentication and health checks public.
func DefaultPolicy(realm string) *authz.Policy {
	return authz.NewPolicy(realm,
		authz.Rule{Pattern: MethodRegister, Access: authz.Public},
		authz.Rule{Pattern: MethodAuthenticate, Access: authz.Public},
		authz.Rule{Pattern: "/" + healthpb.Health_ServiceDesc.ServiceName + "/**", Access: authz.Public},
	)
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.authInterceptor))
	srv.RegisterService(&AccountServiceDesc, s)
	healthpb.RegisterHealthServer(srv, s.health)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is cancelled.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil {
		return err
	}

	return nil
}
