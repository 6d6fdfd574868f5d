package sealedbox_test

import (
	"context"
	"net"
	"testing"
	"time"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/cifrazia/cats-go/cmn/handshake/sealedbox"
	"github.com/cifrazia/cats-go/config"
	"github.com/cifrazia/cats-go/transport"
)

func serverConn(t *testing.T) (*transport.Conn, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { client.Close() })
	return transport.NewConn(server, config.Default(), nil), client
}

func testKey() []byte {
	return []byte("0123456789abcdef0123456789abcdef")[:chacha20poly1305.KeySize]
}

func TestHandshakeAcceptsValidSeal(t *testing.T) {
	key := testKey()
	now := time.Now()
	h, err := sealedbox.New(key)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.Now = func() time.Time { return now }

	c, client := serverConn(t)
	box, err := sealedbox.Seal(key, now)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- h.Handshake(context.Background(), c) }()
	if _, err := client.Write(box); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := <-errCh; err != nil {
		t.Fatalf("Handshake() = %v, want nil", err)
	}
}

func TestHandshakeRejectsWrongKey(t *testing.T) {
	now := time.Now()
	h, err := sealedbox.New(testKey())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.Now = func() time.Time { return now }

	c, client := serverConn(t)
	otherKey := []byte("zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz")[:chacha20poly1305.KeySize]
	box, err := sealedbox.Seal(otherKey, now)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- h.Handshake(context.Background(), c) }()
	client.Write(box)

	if err := <-errCh; err == nil {
		t.Fatal("Handshake() = nil, want an open-failed error for a box sealed under a different key")
	}
}

func TestHandshakeRejectsReplayedSeal(t *testing.T) {
	key := testKey()
	now := time.Now()
	h, err := sealedbox.New(key)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.Now = func() time.Time { return now }

	box, err := sealedbox.Seal(key, now)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	c1, client1 := serverConn(t)
	errCh := make(chan error, 1)
	go func() { errCh <- h.Handshake(context.Background(), c1) }()
	client1.Write(box)
	if err := <-errCh; err != nil {
		t.Fatalf("first handshake: %v", err)
	}

	c2, client2 := serverConn(t)
	go func() { errCh <- h.Handshake(context.Background(), c2) }()
	client2.Write(box)
	if err := <-errCh; err == nil {
		t.Fatal("second Handshake() with the same sealed box = nil, want a replay error")
	}
}

func TestHandshakeRejectsBucketOutsideWindow(t *testing.T) {
	key := testKey()
	now := time.Now()
	h, err := sealedbox.New(key)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.Now = func() time.Time { return now }

	c, client := serverConn(t)
	stale := now.Add(-10 * sealedbox.BucketSize)
	box, err := sealedbox.Seal(key, stale)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- h.Handshake(context.Background(), c) }()
	client.Write(box)

	if err := <-errCh; err == nil {
		t.Fatal("Handshake() = nil, want a tolerance-window error for a stale bucket")
	}
}

func TestNewRejectsWrongKeySize(t *testing.T) {
	if _, err := sealedbox.New([]byte("too-short")); err == nil {
		t.Fatal("New() with a short key = nil error, want an error")
	}
}
