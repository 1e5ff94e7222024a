package grpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	logger "github.com/Gopher0727/MindBridge/middleware/log"
)

type Server struct {
	server   *grpc.Server
	listener net.Listener
	address  string
	log      *logger.Logger
}

func NewServer(address string, log *logger.Logger) (*Server, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	return NewServerWithListener(listener, log), nil
}

// NewServerWithListener serves on an existing listener, such as a bufconn.
func NewServerWithListener(listener net.Listener, log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewNop()
	}
	s := &Server{listener: listener, address: listener.Addr().String(), log: log.Named("grpc")}
	s.server = grpc.NewServer(
		grpc.UnaryInterceptor(s.unaryLoggingInterceptor), // 一元 RPC 日志拦截器
	)
	return s
}

func (s *Server) unaryLoggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
	start := time.Now()
	resp, err = handler(ctx, req)
	code := status.Code(err)
	fields := []zap.Field{
		zap.String("method", info.FullMethod),
		zap.Duration("duration", time.Since(start)),
		zap.String("code", code.String()),
	}
	switch code {
	case codes.OK, codes.InvalidArgument, codes.NotFound:
		s.log.Debug("gRPC call", fields...)
	default:
		s.log.Warn("gRPC call", append(fields, zap.Error(err))...)
	}
	return resp, err
}

// Start blocks serving until Stop.
func (s *Server) Start() error {
	s.log.Info("starting gRPC server", zap.String("address", s.address))
	if err := s.server.Serve(s.listener); err != nil && err != grpc.ErrServerStopped {
		return err
	}
	return nil
}

func (s *Server) Stop() {
	s.log.Info("stopping gRPC server")
	s.server.GracefulStop()
}

// GetServer exposes the underlying server for service registration.
func (s *Server) GetServer() *grpc.Server {
	return s.server
}
