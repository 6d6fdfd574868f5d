// Command catsd is a minimal CATS server: it registers an echo handler and
// serves connections on a TCP listener, demonstrating how the transport,
// config, and handshake packages wire together.
package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/cifrazia/cats-go/cmn/handshake/sha256time"
	"github.com/cifrazia/cats-go/cmn/nlog"
	"github.com/cifrazia/cats-go/config"
	"github.com/cifrazia/cats-go/headers"
	"github.com/cifrazia/cats-go/transport"
)

func main() {
	cfg := config.FromEnv(config.Default())
	config.Rom.Set(cfg)

	api := transport.NewApi()
	zero := 1
	if err := api.Register(&transport.HandlerItem{
		ID:      1,
		Name:    "echo",
		Version: &zero,
		Callback: func(_ context.Context, r *transport.Request) (*transport.Response, error) {
			h := headers.New()
			return &transport.Response{Headers: h, Body: r.Body}, nil
		},
	}); err != nil {
		nlog.Errorf("register echo handler: %v", err)
		os.Exit(1)
	}

	secret := []byte(os.Getenv("CATS_HANDSHAKE_SECRET"))
	if len(secret) == 0 {
		secret = []byte("dev-only-insecure-secret")
	}
	hs := sha256time.New(secret)

	srv := transport.NewServer(api, hs, cfg)

	addr := os.Getenv("CATS_LISTEN_ADDR")
	if addr == "" {
		addr = ":7777"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		nlog.Errorf("listen %s: %v", addr, err)
		os.Exit(1)
	}
	nlog.Infof("catsd listening on %s", addr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Accept(ctx, ln); err != nil {
			nlog.Errorf("accept loop: %v", err)
		}
	}()

	<-ctx.Done()
	nlog.Infof("catsd shutting down")
	_ = srv.Shutdown(context.Background())
	nlog.Flush()
}
