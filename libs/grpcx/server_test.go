package grpcx

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"
)

func TestServer_HealthFollowsSetServing(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := NewServer(slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv.SetServing("booking", true)
	done := make(chan struct{})
	go func() {
		_ = srv.Serve(ctx, lis)
		close(done)
	}()

	ok, err := CheckHealth(context.Background(), lis.Addr().String(), "booking", DialOptions{Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	if !ok {
		t.Fatalf("expected SERVING")
	}

	srv.SetServing("booking", false)
	ok, err = CheckHealth(context.Background(), lis.Addr().String(), "booking", DialOptions{Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	if ok {
		t.Fatalf("expected NOT_SERVING")
	}

	cancel()
	<-done
}
