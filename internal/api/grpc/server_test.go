package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/Dhoini/kleenpride-booking-service/pkg/logger"
	"google.golang.org/grpc/test/bufconn"
)

func TestHealthCheck(t *testing.T) {
	log := logger.NewNop()
	lis := bufconn.Listen(1 << 20)

	srv := NewServer("0", log)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(lis) }()

	client, err := NewClient(&ClientOptions{
		Address: "passthrough:///bufnet",
		Timeout: time.Second,
		Dialer: func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		},
	}, log)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, service := range []string{"", ServiceName} {
		serving, err := client.Check(ctx, service)
		if err != nil {
			t.Fatalf("Check(%q): %v", service, err)
		}
		if !serving {
			t.Fatalf("Check(%q) = not serving", service)
		}
	}

	srv.SetServing(false)
	serving, err := client.Check(ctx, ServiceName)
	if err != nil {
		t.Fatalf("Check after SetServing(false): %v", err)
	}
	if serving {
		t.Fatal("service still serving after SetServing(false)")
	}

	if _, err := client.Check(ctx, "unknown.Service"); err == nil {
		t.Fatal("expected NotFound for unregistered service")
	}

	srv.Stop()
	if err := <-done; err != nil {
		t.Fatalf("Serve returned %v", err)
	}
}
