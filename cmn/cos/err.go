// Package cos provides the low-level types and utilities shared by every
// other package in this module: the error taxonomy, id generation, a
// stop-channel primitive, and assorted byte/string helpers.
package cos

import (
	"fmt"
	"sync"
	ratomic "sync/atomic"

	"github.com/pkg/errors"
)

// Error taxonomy.
//
// - ProtocolError is fatal to the connection: unknown frame discriminator,
// unknown handler, duplicate message_id, malformed headers, oversize
// payload.
// - MalformedDataError is local: invalid types passed into Response/Headers
// construction.
// - HandshakeError closes the connection silently (no stack, no capture).
// - StreamClosedError means the peer disconnected; the reader loop exits
// without reporting an error.
// - TimeoutError covers idle and input timeouts.
type (
	ProtocolError struct {
		Msg string
	}
	MalformedDataError struct {
		Msg string
	}
	HandshakeError struct {
		Msg string
	}
	StreamClosedError struct {
		Msg string
	}
	TimeoutError struct {
		Msg string
	}
)

func (e *ProtocolError) Error() string { return "protocol error: " + e.Msg }
func (e *MalformedDataError) Error() string { return "malformed data: " + e.Msg }
func (e *HandshakeError) Error() string { return "handshake failed: " + e.Msg }
func (e *StreamClosedError) Error() string { return "stream closed: " + e.Msg }
func (e *TimeoutError) Error() string { return "timeout: " + e.Msg }

func NewProtocolError(format string, a...any) *ProtocolError {
	return &ProtocolError{Msg: fmt.Sprintf(format, a...)}
}

func NewMalformedDataError(format string, a...any) *MalformedDataError {
	return &MalformedDataError{Msg: fmt.Sprintf(format, a...)}
}

func NewHandshakeError(format string, a...any) *HandshakeError {
	return &HandshakeError{Msg: fmt.Sprintf(format, a...)}
}

func NewStreamClosedError(format string, a...any) *StreamClosedError {
	return &StreamClosedError{Msg: fmt.Sprintf(format, a...)}
}

func NewTimeoutError(format string, a...any) *TimeoutError {
	return &TimeoutError{Msg: fmt.Sprintf(format, a...)}
}

func IsProtocolErr(err error) bool {
	var e *ProtocolError
	return errors.As(err, &e)
}

func IsMalformedDataErr(err error) bool {
	var e *MalformedDataError
	return errors.As(err, &e)
}

func IsHandshakeErr(err error) bool {
	var e *HandshakeError
	return errors.As(err, &e)
}

func IsStreamClosedErr(err error) bool {
	var e *StreamClosedError
	return errors.As(err, &e)
}

func IsTimeoutErr(err error) bool {
	var e *TimeoutError
	return errors.As(err, &e)
}

// Errs accumulates up to maxErrs distinct errors, e.g. while firing an event
// to multiple listeners none of which should be able to stop delivery to the
// rest.
type Errs struct {
	mu   sync.Mutex
	errs []error
	cnt  int64
}

const maxErrs = 8

func (e *Errs) Add(err error) {
	if err == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, added := range e.errs {
		if added.Error() == err.Error() {
			return
		}
	}
	if len(e.errs) < maxErrs {
		e.errs = append(e.errs, err)
		ratomic.StoreInt64(&e.cnt, int64(len(e.errs)))
	}
}

func (e *Errs) Cnt() int { return int(ratomic.LoadInt64(&e.cnt)) }

func (e *Errs) JoinErr() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.errs) == 0 {
		return nil
	}
	return errors.Errorf("%v (and %d more)", e.errs[0], len(e.errs)-1)
}
