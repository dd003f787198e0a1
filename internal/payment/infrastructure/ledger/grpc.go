package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/dmehra2102/Trust-Settlement-System/pkg/ledgerrpc"
)

type GRPCClient struct {
	client  *ledgerrpc.Client
	timeout time.Duration
	cb      *gobreaker.CircuitBreaker
}

func NewGRPCClient(log *slog.Logger, cc grpc.ClientConnInterface, timeout time.Duration, opts BreakerOptions) *GRPCClient {
	return &GRPCClient{
		client:  ledgerrpc.NewClient(cc),
		timeout: timeout,
		cb:      NewBreaker(log, "ledger-grpc", opts),
	}
}

// Dial opens a plaintext connection to the ledger's gRPC endpoint.
func Dial(addr string) (*grpc.ClientConn, error) {
	return grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
}

func (c *GRPCClient) OrderExists(ctx context.Context, orderID, companyID string) (bool, error) {
	return execute(c.cb, func() (bool, error) {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		resp, err := c.client.OrderExists(ctx, &ledgerrpc.OrderExistsRequest{OrderID: orderID, CompanyID: companyID})
		if err != nil {
			return false, fmt.Errorf("ledger OrderExists: %w", err)
		}
		return resp.Exists, nil
	})
}
