package transport

import (
	"bufio"
	"context"
	"io"
	"time"

	"github.com/cifrazia/cats-go/cmn/cos"
	"github.com/cifrazia/cats-go/cmn/nlog"
	"github.com/cifrazia/cats-go/codec"
	"github.com/cifrazia/cats-go/compress"
	"github.com/cifrazia/cats-go/config"
	"github.com/cifrazia/cats-go/headers"
	"github.com/cifrazia/cats-go/membuf"
)

// Serve runs this connection's read loop against api until the peer
// disconnects, a protocol error forces a close, or ctx is canceled. The
// caller is expected to have already completed the handshake; Serve itself
// moves the connection to StateRunning.
func (c *Conn) Serve(ctx context.Context, srv *Server) error {
	c.setState(StateRunning)
	c.startIdleTracking()
	defer c.Close(ctx)
	go func() {
		select {
		case <-ctx.Done():
			_ = c.Close(ctx)
		case <-c.closed:
		}
	}()

	for {
		frame, err := ReadFrame(c.br)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		c.touch()
		c.Stats.MsgsRecv.Add(1)

		switch f := frame.(type) {
		case *RequestFrame:
			if err := c.AdmitInbound(f.MessageID); err != nil {
				return err
			}
			go c.dispatchRequest(ctx, srv, f)
		case *StreamRequestFrame:
			if err := c.AdmitInbound(f.MessageID); err != nil {
				return err
			}
			go c.dispatchStreamRequest(ctx, srv, f)
		case *InputRequestFrame:
			if !c.ResolveInput(f) {
				nlog.Warningf("conn %s: input-request for unknown message %d", c.id, f.MessageID)
			}
		case *DownloadSpeedFrame:
			c.SetDownloadSpeed(f.BytesPerSec)
		case *CancelInputFrame:
			c.CancelInput(f.MessageID)
		case *PingFrame:
			now := uint64(time.Now().UnixMilli())
			_ = c.WriteLocked(func(bw *bufio.Writer) error { return WritePingFrame(bw, now) })
		default:
			return cos.NewProtocolError("unhandled frame type %T", f)
		}
	}
}

func (c *Conn) dispatchRequest(ctx context.Context, srv *Server, f *RequestFrame) {
	defer c.ReleaseMessageID(f.MessageID)
	body, err := codec.Decode(f.Artifact, f.DataType, f.Headers)
	if err != nil {
		c.sendError(ctx, srv, f.MessageID, err)
		return
	}
	req := &Request{Conn: c, MessageID: f.MessageID, HandlerID: f.HandlerID, Headers: f.Headers, Body: body}
	resp, err := srv.handle(ctx, req)
	if err != nil {
		c.sendError(ctx, srv, f.MessageID, err)
		return
	}
	c.sendResponse(f.MessageID, resp)
}

func (c *Conn) dispatchStreamRequest(ctx context.Context, srv *Server, f *StreamRequestFrame) {
	defer c.ReleaseMessageID(f.MessageID)
	artifact, err := collectStream(f.Chunks, f.Compression)
	if err != nil {
		c.sendError(ctx, srv, f.MessageID, err)
		return
	}
	body, err := codec.Decode(artifact, f.DataType, f.Headers)
	if err != nil {
		c.sendError(ctx, srv, f.MessageID, err)
		return
	}
	req := &Request{Conn: c, MessageID: f.MessageID, HandlerID: f.HandlerID, Headers: f.Headers, Body: body}
	resp, err := srv.handle(ctx, req)
	if err != nil {
		c.sendError(ctx, srv, f.MessageID, err)
		return
	}
	c.sendResponse(f.MessageID, resp)
}

// chunkReader adapts a Stream-Request's chunk channel to an io.Reader, so
// the rest of the read path (decompression, the in-memory/spill split) can
// treat it like any other streamed body.
type chunkReader struct {
	ch  <-chan []byte
	buf []byte
}

func (r *chunkReader) Read(p []byte) (int, error) {
	for len(r.buf) == 0 {
		chunk, ok := <-r.ch
		if !ok {
			return 0, io.EOF
		}
		r.buf = chunk
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

// collectStream drains chunks to completion, decompressing under comp,
// buffering in memory up to the configured plain-data ceiling and spilling
// any remainder to a temp file, so a stream longer than that ceiling is
// never forced entirely into RAM.
func collectStream(chunks <-chan []byte, comp uint8) (codec.Artifact, error) {
	src, err := compress.WrapReader(&chunkReader{ch: chunks}, comp)
	if err != nil {
		return codec.Artifact{}, err
	}

	limit := config.Rom.Get().MaxPlainDataSize
	head, err := io.ReadAll(io.LimitReader(src, limit+1))
	if err != nil {
		return codec.Artifact{}, cos.NewProtocolError("stream-request body read: %v", err)
	}
	if int64(len(head)) <= limit {
		return codec.BufferArtifact(head), nil
	}

	sf, err := membuf.NewSpillFile("cats-stream-*")
	if err != nil {
		return codec.Artifact{}, err
	}
	if _, err := sf.File().Write(head); err != nil {
		sf.Close()
		return codec.Artifact{}, err
	}
	if _, err := io.Copy(sf.File(), src); err != nil {
		sf.Close()
		return codec.Artifact{}, err
	}
	if _, err := sf.File().Seek(0, io.SeekStart); err != nil {
		sf.Close()
		return codec.Artifact{}, err
	}
	return codec.SpillArtifact(sf), nil
}

func (c *Conn) sendResponse(messageID uint16, resp *Response) {
	if resp == nil {
		return
	}
	h := resp.Headers
	if h == nil {
		h = headers.New()
	}
	if resp.Stream != nil {
		out := &StreamRequestFrame{MessageID: messageID, Headers: h}
		_ = c.WriteLocked(func(bw *bufio.Writer) error {
			return WriteStreamRequestFrame(bw, out, func() ([]byte, bool) {
				chunk, ok := <-resp.Stream
				return chunk, ok
			})
		})
		return
	}
	artifact, dataType, err := codec.Encode(resp.Body)
	if err != nil {
		nlog.Errorf("conn %s: failed to encode response: %v", c.id, err)
		return
	}
	defer artifact.Close()
	body, _ := artifact.Bytes()
	out := &RequestFrame{MessageID: messageID, DataType: dataType, Headers: h}
	_ = c.WriteLocked(func(bw *bufio.Writer) error {
		return WriteRequestFrame(bw, out, body)
	})
}

// sendError maps err through the same class_name/status mapping as
// defaultErrorMiddleware, for the decode/handler-lookup failures that never
// reach the middleware chain because they happen before a Request exists.
// A ProtocolError (unknown handler, oversize payload) closes the connection
// once the error response has been written.
func (c *Conn) sendError(ctx context.Context, srv *Server, messageID uint16, err error) {
	if cos.IsProtocolErr(err) {
		defer c.Close(ctx)
	}
	if srv != nil {
		srv.events.Fire(ctx, EventHandleError, c, err)
	}
	h := headers.New()
	h.SetStatus(statusForErr(err))
	artifact, dataType, encErr := codec.Encode(errorBody(err))
	if encErr != nil {
		nlog.Errorf("conn %s: failed to encode error response: %v", c.id, encErr)
		return
	}
	defer artifact.Close()
	body, _ := artifact.Bytes()
	out := &RequestFrame{MessageID: messageID, DataType: dataType, Headers: h}
	_ = c.WriteLocked(func(bw *bufio.Writer) error {
		return WriteRequestFrame(bw, out, body)
	})
}

// defaultErrorMiddleware is the outermost middleware every Server installs:
// it converts a HandlerFunc's error return into a {error, message} Response
// instead of letting it propagate to the caller, and fires ON_HANDLE_ERROR
// so listeners observe the failure and its cause.
func (s *Server) defaultErrorMiddleware(next HandlerFunc) HandlerFunc {
	return func(ctx context.Context, r *Request) (*Response, error) {
		resp, err := next(ctx, r)
		if err == nil {
			return resp, nil
		}
		s.events.Fire(ctx, EventHandleError, r.Conn, err)
		h := headers.New()
		h.SetStatus(statusForErr(err))
		return &Response{Headers: h, Body: errorBody(err)}, nil
	}
}

// errorClassName names err's taxonomy class, used as the wire "error" field.
func errorClassName(err error) string {
	switch {
	case cos.IsProtocolErr(err):
		return "ProtocolError"
	case cos.IsMalformedDataErr(err):
		return "MalformedDataError"
	case cos.IsHandshakeErr(err):
		return "HandshakeError"
	case cos.IsStreamClosedErr(err):
		return "StreamClosedError"
	case cos.IsTimeoutErr(err):
		return "TimeoutError"
	default:
		return "InternalError"
	}
}

// statusForErr maps err's taxonomy class to the status code a Response
// carries back to the peer.
func statusForErr(err error) int {
	switch {
	case cos.IsProtocolErr(err):
		return 400
	case cos.IsMalformedDataErr(err):
		return 400
	case cos.IsTimeoutErr(err):
		return 504
	default:
		return 500
	}
}

// errorBody builds the {error: class_name, message: str} wire shape every
// error response carries, whether produced by defaultErrorMiddleware or by
// sendError's pre-dispatch failures.
func errorBody(err error) map[string]any {
	return map[string]any{
		"error":   errorClassName(err),
		"message": err.Error(),
	}
}
