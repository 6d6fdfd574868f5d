// Package sha256time implements the reference CATS handshake :
// the client proves it holds a shared secret by sending
// SHA256(secret || time_bucket || nonce) for the current or an adjacent
// time bucket, and the server accepts any digest matching one of the
// buckets in its [-W, +W] tolerance window that hasn't been seen before.
package sha256time

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"io"
	"time"

	cuckoo "github.com/seiflotfy/cuckoofilter"

	"github.com/cifrazia/cats-go/cmn/cos"
	"github.com/cifrazia/cats-go/transport"
)

// BucketSize is the width of one time bucket.
const BucketSize = 30 * time.Second

// Window is W: the handshake accepts digests computed against any bucket
// within [-W, +W] of the server's current bucket, tolerating clock skew.
const Window = 1

// Handshaker is the sha256-time-bucket reference implementation. It
// implements transport.Handshaker.
type Handshaker struct {
	Secret []byte
	Now    func() time.Time // overridable for tests; defaults to time.Now

	seen *cuckoo.Filter // replay tracking, fixed capacity of 1<<16 digests
}

// New constructs a Handshaker whose replay filter holds up to 1<<16
// digests, independent of Window; accepted digests are never evicted.
func New(secret []byte) *Handshaker {
	return &Handshaker{
		Secret: secret,
		Now:    time.Now,
		seen:   cuckoo.NewFilter(1 << 16),
	}
}

func bucketAt(t time.Time) uint64 {
	return uint64(t.Unix()) / uint64(BucketSize.Seconds())
}

func digest(secret []byte, bucket uint64, nonce []byte) []byte {
	h := sha256.New()
	h.Write(secret)
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], bucket)
	h.Write(b[:])
	h.Write(nonce)
	return h.Sum(nil)
}

// ClientDigest computes the value a client sends to authenticate against
// the bucket containing now.
func ClientDigest(secret []byte, now time.Time, nonce []byte) []byte {
	return digest(secret, bucketAt(now), nonce)
}

// Handshake reads a fixed-size frame off the connection: 16-byte nonce
// followed by the 32-byte digest, and accepts iff the digest matches any
// bucket in the server's tolerance window and hasn't been seen before.
func (h *Handshaker) Handshake(ctx context.Context, c *transport.Conn) error {
	type result struct {
		nonce, digest []byte
		err error
	}
	ch := make(chan result, 1)
	go func() {
		nonce := make([]byte, 16)
		dig := make([]byte, sha256.Size)
		nc := c.Reader()
		if _, err := io.ReadFull(nc, nonce); err != nil {
			ch <- result{err: err}
			return
		}
		if _, err := io.ReadFull(nc, dig); err != nil {
			ch <- result{err: err}
			return
		}
		ch <- result{nonce: nonce, digest: dig}
	}()

	select {
	case <-ctx.Done():
		return cos.NewTimeoutError("handshake: %v", ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return cos.NewHandshakeError("read: %v", r.err)
		}
		return h.verify(r.nonce, r.digest)
	}
}

func (h *Handshaker) verify(nonce, clientDigest []byte) error {
	now := h.Now()
	center := bucketAt(now)
	for delta := -Window; delta <= Window; delta++ {
		bucket := uint64(int64(center) + int64(delta))
		want := digest(h.Secret, bucket, nonce)
		if subtle.ConstantTimeCompare(want, clientDigest) == 1 {
			key := hex.EncodeToString(clientDigest)
			if h.seen.Lookup([]byte(key)) {
				return cos.NewHandshakeError("replayed digest")
			}
			h.seen.Insert([]byte(key))
			return nil
		}
	}
	return cos.NewHandshakeError("digest mismatch")
}
