// Package ledgerrpc is the gRPC contract of the order ledger. Messages are
// plain structs carried by the JSON codec, so there is no generated code.
package ledgerrpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/dmehra2102/Trust-Settlement-System/pkg/grpcjson"
)

const (
	ServiceName       = "orderledger.OrderLedger"
	OrderExistsMethod = "/" + ServiceName + "/OrderExists"
)

type OrderExistsRequest struct {
	OrderID   string `json:"orderId"`
	CompanyID string `json:"companyId"`
}

type OrderExistsResponse struct {
	Exists bool `json:"exists"`
}

type LedgerServer interface {
	OrderExists(ctx context.Context, req *OrderExistsRequest) (*OrderExistsResponse, error)
}

func orderExistsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(OrderExistsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServer).OrderExists(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: OrderExistsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LedgerServer).OrderExists(ctx, req.(*OrderExistsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LedgerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "OrderExists", Handler: orderExistsHandler},
	},
}

func RegisterLedgerServer(s grpc.ServiceRegistrar, srv LedgerServer) {
	s.RegisterService(&ServiceDesc, srv)
}

type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) OrderExists(ctx context.Context, in *OrderExistsRequest, opts ...grpc.CallOption) (*OrderExistsResponse, error) {
	out := new(OrderExistsResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(grpcjson.Name)}, opts...)
	if err := c.cc.Invoke(ctx, OrderExistsMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
