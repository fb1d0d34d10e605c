// Package grpc hosts the gRPC surface of a resource service: the standard
// health service plus whatever services are registered through RegisterFunc,
// all behind the bearer-token interceptor. Only methods listed in the method
// table are guarded; DefaultMethods guards health listing and leaves Check
// open for liveness probes.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/gameauth/internal/authn"
	"github.com/dmitrijs2005/gameauth/internal/authz"
	"github.com/dmitrijs2005/gameauth/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// DefaultMethods is the method table used when none is configured.
func DefaultMethods() map[string]string {
	return map[string]string{healthpb.Health_List_FullMethodName: authz.CapAccountRead}
}

// RegisterFunc attaches a service implementation to the server.
type RegisterFunc func(s *grpc.Server)

type GRPCServer struct {
	address  string
	logger   logging.Logger
	verifier authn.Verifier
	policy   authz.Policy
	methods  authz.MethodTable
	register []RegisterFunc
}

func NewGRPCServer(a string, l logging.Logger, v authn.Verifier, methods authz.MethodTable, register ...RegisterFunc) *GRPCServer {
	return &GRPCServer{
		address:  a,
		logger:   l.With("module", "grpc_server"),
		verifier: v,
		methods:  methods,
		register: register,
	}
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listen)
}

// Serve runs on an existing listener until ctx is cancelled.
func (s *GRPCServer) Serve(ctx context.Context, listen net.Listener) error {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		AuthInterceptor(s.verifier, s.policy, s.methods, s.logger),
	))

	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	for _, r := range s.register {
		r(srv)
	}
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		hs.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
