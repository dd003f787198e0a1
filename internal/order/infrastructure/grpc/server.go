package grpc

import (
	"context"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dmehra2102/Trust-Settlement-System/internal/order/application"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/ledgerrpc"
)

// Server answers ownership checks from the settlement service.
type Server struct {
	log     *slog.Logger
	service *application.Service
}

var _ ledgerrpc.LedgerServer = (*Server)(nil)

func NewServer(log *slog.Logger, service *application.Service) *Server {
	return &Server{log: log, service: service}
}

func (s *Server) OrderExists(ctx context.Context, req *ledgerrpc.OrderExistsRequest) (*ledgerrpc.OrderExistsResponse, error) {
	if req.OrderID == "" || req.CompanyID == "" {
		return nil, status.Error(codes.InvalidArgument, "orderId and companyId are required")
	}
	ok, err := s.service.OrderExists(ctx, req.OrderID, req.CompanyID)
	if err != nil {
		s.log.Error("order exists check failed", "order_id", req.OrderID, "err", err)
		return nil, status.Error(codes.Internal, "order lookup failed")
	}
	return &ledgerrpc.OrderExistsResponse{Exists: ok}, nil
}

// AdmissionKey partitions ownership checks by the company they are made for.
// The settlement service calls on behalf of companies it has already
// authenticated, so all of its traffic must not share one peer partition.
func AdmissionKey(_ context.Context, req any) (string, bool) {
	if r, ok := req.(*ledgerrpc.OrderExistsRequest); ok && r.CompanyID != "" {
		return r.CompanyID, true
	}
	return "", false
}

func Run(addr string, srv *Server, opts ...grpc.ServerOption) (*grpc.Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	gs := grpc.NewServer(opts...)
	ledgerrpc.RegisterLedgerServer(gs, srv)
	go func() {
		if err := gs.Serve(lis); err != nil {
			srv.log.Error("grpc server stopped", "err", err)
		}
	}()
	return gs, nil
}
