package admission

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

func peerCtx(ip string) context.Context {
	return peer.NewContext(context.Background(), &peer.Peer{Addr: &net.TCPAddr{IP: net.ParseIP(ip), Port: 50051}})
}

func TestPeerKey(t *testing.T) {
	if key, authed := PeerKey(peerCtx("10.0.0.9"), nil); key != "10.0.0.9" || authed {
		t.Fatalf("key = %q authed = %v", key, authed)
	}
	if key, _ := PeerKey(context.Background(), nil); key != "" {
		t.Fatalf("no peer key = %q", key)
	}
}

func TestUnaryInterceptorRejectsOverLimit(t *testing.T) {
	l, _ := newLimiter(baseConfig())
	intercept := l.UnaryServerInterceptor(nil)
	info := &grpc.UnaryServerInfo{FullMethod: "/orderledger.OrderLedger/OrderExists"}
	calls := 0
	handler := func(context.Context, any) (any, error) {
		calls++
		return "ok", nil
	}

	for i := range 11 {
		_, err := intercept(peerCtx("10.0.0.9"), nil, info, handler)
		if i < 10 && err != nil {
			t.Fatalf("call %d: %v", i+1, err)
		}
		if i == 10 && status.Code(err) != codes.ResourceExhausted {
			t.Fatalf("11th call err = %v", err)
		}
	}
	if calls != 10 {
		t.Fatalf("handler calls = %d", calls)
	}
	if _, err := intercept(peerCtx("10.0.0.10"), nil, info, handler); err != nil {
		t.Fatalf("other peer throttled: %v", err)
	}
}

func TestUnaryInterceptorUsesKeyFunc(t *testing.T) {
	l, _ := newLimiter(baseConfig())
	keyFn := func(_ context.Context, req any) (string, bool) {
		return req.(string), true
	}
	intercept := l.UnaryServerInterceptor(keyFn)
	info := &grpc.UnaryServerInfo{FullMethod: "/x/Y"}
	handler := func(context.Context, any) (any, error) { return nil, nil }

	// Authenticated limit is 100: one peer, one company, well past the
	// unauthenticated limit.
	for i := range 20 {
		if _, err := intercept(peerCtx("10.0.0.9"), "c1", info, handler); err != nil {
			t.Fatalf("call %d: %v", i+1, err)
		}
	}
}
