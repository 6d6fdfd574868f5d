package sha256time_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/cifrazia/cats-go/cmn/handshake/sha256time"
	"github.com/cifrazia/cats-go/config"
	"github.com/cifrazia/cats-go/transport"
)

func serverConn(t *testing.T) (*transport.Conn, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { client.Close() })
	return transport.NewConn(server, config.Default(), nil), client
}

func TestHandshakeAcceptsValidDigest(t *testing.T) {
	secret := []byte("shared-secret")
	now := time.Now()
	h := sha256time.New(secret)
	h.Now = func() time.Time { return now }

	c, client := serverConn(t)
	nonce := []byte("0123456789abcdef")
	digest := sha256time.ClientDigest(secret, now, nonce)

	errCh := make(chan error, 1)
	go func() { errCh <- h.Handshake(context.Background(), c) }()

	if _, err := client.Write(append(append([]byte{}, nonce...), digest...)); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := <-errCh; err != nil {
		t.Fatalf("Handshake() = %v, want nil", err)
	}
}

func TestHandshakeRejectsWrongSecret(t *testing.T) {
	now := time.Now()
	h := sha256time.New([]byte("shared-secret"))
	h.Now = func() time.Time { return now }

	c, client := serverConn(t)
	nonce := []byte("0123456789abcdef")
	digest := sha256time.ClientDigest([]byte("wrong-secret"), now, nonce)

	errCh := make(chan error, 1)
	go func() { errCh <- h.Handshake(context.Background(), c) }()
	client.Write(append(append([]byte{}, nonce...), digest...))

	if err := <-errCh; err == nil {
		t.Fatal("Handshake() = nil, want a digest-mismatch error")
	}
}

func TestHandshakeRejectsReplayedDigest(t *testing.T) {
	secret := []byte("shared-secret")
	now := time.Now()
	h := sha256time.New(secret)
	h.Now = func() time.Time { return now }

	nonce := []byte("0123456789abcdef")
	digest := sha256time.ClientDigest(secret, now, nonce)
	frame := append(append([]byte{}, nonce...), digest...)

	c1, client1 := serverConn(t)
	errCh := make(chan error, 1)
	go func() { errCh <- h.Handshake(context.Background(), c1) }()
	client1.Write(frame)
	if err := <-errCh; err != nil {
		t.Fatalf("first handshake: %v", err)
	}

	c2, client2 := serverConn(t)
	go func() { errCh <- h.Handshake(context.Background(), c2) }()
	client2.Write(frame)
	if err := <-errCh; err == nil {
		t.Fatal("second Handshake() with the same digest = nil, want a replay error")
	}
}

func TestHandshakeToleratesAdjacentBucket(t *testing.T) {
	secret := []byte("shared-secret")
	now := time.Now()
	h := sha256time.New(secret)
	h.Now = func() time.Time { return now }

	c, client := serverConn(t)
	nonce := []byte("0123456789abcdef")
	// one bucket in the past, still inside the +/-1 window.
	digest := sha256time.ClientDigest(secret, now.Add(-sha256time.BucketSize), nonce)

	errCh := make(chan error, 1)
	go func() { errCh <- h.Handshake(context.Background(), c) }()
	client.Write(append(append([]byte{}, nonce...), digest...))

	if err := <-errCh; err != nil {
		t.Fatalf("Handshake() = %v, want nil for an adjacent bucket", err)
	}
}

func TestHandshakeTimesOut(t *testing.T) {
	h := sha256time.New([]byte("shared-secret"))
	c, _ := serverConn(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := h.Handshake(ctx, c); err == nil {
		t.Fatal("Handshake() = nil, want a timeout error when the client sends nothing")
	}
}
