// Package sealedbox implements the AEAD-based alternate handshake:
// instead of a bare SHA256 digest, the client seals
// a (time_bucket, nonce) assertion with ChaCha20-Poly1305 under a shared
// key, and the server accepts iff it can open the box and the bucket falls
// within its tolerance window. Satisfies the same Handshaker contract as
// cmn/handshake/sha256time.
package sealedbox

import (
	"context"
	cryptorand "crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"io"
	"time"

	"golang.org/x/crypto/chacha20poly1305"

	cuckoo "github.com/seiflotfy/cuckoofilter"

	"github.com/cifrazia/cats-go/cmn/cos"
	"github.com/cifrazia/cats-go/transport"
)

const BucketSize = 30 * time.Second
const Window = 1

type Handshaker struct {
	Key []byte // must be chacha20poly1305.KeySize bytes
	Now func() time.Time

	seen *cuckoo.Filter
}

func New(key []byte) (*Handshaker, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, cos.NewHandshakeError("sealedbox: key must be %d bytes", chacha20poly1305.KeySize)
	}
	return &Handshaker{Key: key, Now: time.Now, seen: cuckoo.NewFilter(1 << 16)}, nil
}

func bucketAt(t time.Time) uint64 { return uint64(t.Unix()) / uint64(BucketSize.Seconds()) }

// Seal builds the client's wire payload: nonce || ciphertext, where the
// plaintext is the 8-byte big-endian bucket number.
func Seal(key []byte, now time.Time) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(cryptorand.Reader, nonce); err != nil {
		return nil, err
	}
	var plain [8]byte
	binary.BigEndian.PutUint64(plain[:], bucketAt(now))
	ct := aead.Seal(nil, nonce, plain[:], nil)
	return append(nonce, ct...), nil
}

func (h *Handshaker) Handshake(ctx context.Context, c *transport.Conn) error {
	aead, err := chacha20poly1305.New(h.Key)
	if err != nil {
		return cos.NewHandshakeError("bad key: %v", err)
	}

	type result struct {
		box []byte
		err error
	}
	ch := make(chan result, 1)
	go func() {
		box := make([]byte, aead.NonceSize()+8+aead.Overhead())
		if _, err := io.ReadFull(c.Reader(), box); err != nil {
			ch <- result{err: err}
			return
		}
		ch <- result{box: box}
	}()

	select {
	case <-ctx.Done():
		return cos.NewTimeoutError("handshake: %v", ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return cos.NewHandshakeError("read: %v", r.err)
		}
		return h.verify(aead, r.box)
	}
}

func (h *Handshaker) verify(aead interface {
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	NonceSize() int
}, box []byte) error {
	nonce, ct := box[:aead.NonceSize()], box[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return cos.NewHandshakeError("seal open failed: %v", err)
	}
	if len(plain) != 8 {
		return cos.NewHandshakeError("malformed bucket assertion")
	}
	bucket := binary.BigEndian.Uint64(plain)
	now := h.Now()
	center := bucketAt(now)
	for delta := -Window; delta <= Window; delta++ {
		if bucket == uint64(int64(center)+int64(delta)) {
			key := hex.EncodeToString(nonce)
			if h.seen.Lookup([]byte(key)) {
				return cos.NewHandshakeError("replayed seal")
			}
			h.seen.Insert([]byte(key))
			return nil
		}
	}
	return cos.NewHandshakeError("bucket outside tolerance window")
}
