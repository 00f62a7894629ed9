// Package testtarget provides a minimal dialable gRPC server that
// integration tests can use as a real TCP endpoint to probe against —
// it carries no probe-protocol semantics of its own. No test in this
// module imports it.
package testtarget

import (
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Server is a gRPC server registering only the standard health-check
// service, started on an ephemeral loopback port.
type Server struct {
	ln        net.Listener
	grpcSrv   *grpc.Server
	healthSrv *health.Server
}

// New starts a Server listening on 127.0.0.1:0 and serving in the
// background until Close is called.
func New() (*Server, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("testtarget: listen: %w", err)
	}

	grpcSrv := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	s := &Server{ln: ln, grpcSrv: grpcSrv, healthSrv: healthSrv}
	go grpcSrv.Serve(ln)
	return s, nil
}

// Addr returns the server's dial address, e.g. "127.0.0.1:54321".
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// IP returns the server's loopback IP address, the destination probes
// built in tests against this target should carry.
func (s *Server) IP() net.IP {
	return s.ln.Addr().(*net.TCPAddr).IP
}

// Port returns the server's listening port.
func (s *Server) Port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

// Close stops the server and releases its listener.
func (s *Server) Close() {
	s.grpcSrv.Stop()
}
