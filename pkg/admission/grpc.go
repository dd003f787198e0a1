package admission

import (
	"context"
	"net"
	"net/http"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// RPCKeyFunc picks the partition for an RPC and reports whether the caller is
// authenticated. An empty key falls back to the peer address.
type RPCKeyFunc func(ctx context.Context, req any) (key string, authenticated bool)

// PeerKey partitions by the caller's host.
func PeerKey(ctx context.Context, _ any) (string, bool) {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return "", false
	}
	host, _, err := net.SplitHostPort(p.Addr.String())
	if err != nil {
		return p.Addr.String(), false
	}
	return host, false
}

// UnaryServerInterceptor applies the limiter to unary RPCs. Rejections carry
// ResourceExhausted and a retry-after header in HTTP date format.
func (l *Limiter) UnaryServerInterceptor(keyFn RPCKeyFunc) grpc.UnaryServerInterceptor {
	if keyFn == nil {
		keyFn = PeerKey
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		key, authenticated := keyFn(ctx, req)
		if key == "" {
			key, authenticated = PeerKey(ctx, req)
		}
		if key == "" {
			key = l.cfg.AnonymousKey
		}

		res := l.Reserve(key, authenticated)
		if !res.Allowed {
			l.log.Warn("rate limit exceeded",
				"partition", key,
				"endpoint", info.FullMethod,
				"retry_at", res.RetryAt,
				"banned", res.Banned,
			)
			_ = grpc.SetHeader(ctx, metadata.Pairs("retry-after", res.RetryAt.UTC().Format(http.TimeFormat)))
			return nil, status.Errorf(codes.ResourceExhausted, "rate limit of %d requests per %s exceeded, retry after %s",
				res.Limit, l.cfg.Window, res.RetryAt.UTC().Format(time.RFC3339))
		}
		if res.Wait > 0 {
			t := time.NewTimer(res.Wait)
			select {
			case <-ctx.Done():
				t.Stop()
				res.Cancel()
				return nil, status.FromContextError(ctx.Err()).Err()
			case <-t.C:
			}
		}
		return handler(ctx, req)
	}
}
