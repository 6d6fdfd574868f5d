// Package transport implements the CATS wire protocol: frame encoding,
// the per-connection state machine, and the versioned handler registry.
package transport

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/cifrazia/cats-go/api/apc"
	"github.com/cifrazia/cats-go/cmn/cos"
	"github.com/cifrazia/cats-go/codec"
	"github.com/cifrazia/cats-go/compress"
	"github.com/cifrazia/cats-go/headers"
)

// RequestFrame is discriminator 0x00: a single-shot request or response.
type RequestFrame struct {
	HandlerID   uint16
	MessageID   uint16
	SendTime    uint64
	DataType    uint8
	Compression uint8
	Headers     headers.Headers
	Artifact    codec.Artifact
}

// StreamRequestFrame is discriminator 0x01: a chunked request or response
// whose total length isn't known up front.
type StreamRequestFrame struct {
	HandlerID   uint16
	MessageID   uint16
	SendTime    uint64
	DataType    uint8
	Compression uint8
	Headers     headers.Headers
	Chunks      <-chan []byte // zero-length chunk is the terminator, consumed internally
}

// InputRequestFrame is discriminator 0x02: a server-initiated sub-dialog
// asking the peer for more data under an existing message id.
type InputRequestFrame struct {
	MessageID   uint16
	DataType    uint8
	Compression uint8
	Headers     headers.Headers
	Artifact    codec.Artifact
}

// DownloadSpeedFrame is discriminator 0x05: throttle advertisement.
type DownloadSpeedFrame struct {
	BytesPerSec uint32
}

// CancelInputFrame is discriminator 0x06: abort a pending Input-Request.
type CancelInputFrame struct {
	MessageID uint16
}

// PingFrame is discriminator 0xFF, used for both ping and pong: Timestamp
// carries the sender's current epoch-ms clock reading.
type PingFrame struct {
	Timestamp uint64
}

func readUint16(r io.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readUint64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func readUint8(r io.Reader) (uint8, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadFrame blocks reading one discriminator byte plus its body from r and
// returns the decoded frame. The returned value is one of *RequestFrame,
// *StreamRequestFrame, *InputRequestFrame, *DownloadSpeedFrame,
// *CancelInputFrame, or *PingFrame.
func ReadFrame(br *bufio.Reader) (any, error) {
	disc, err := readUint8(br)
	if err != nil {
		return nil, err
	}
	switch disc {
	case apc.FrameRequest:
		return readRequestFrame(br)
	case apc.FrameStreamRequest:
		return readStreamRequestFrame(br)
	case apc.FrameInputRequest:
		return readInputRequestFrame(br)
	case apc.FrameDownloadSpeed:
		bps, err := readUint32(br)
		if err != nil {
			return nil, err
		}
		return &DownloadSpeedFrame{BytesPerSec: bps}, nil
	case apc.FrameCancelInput:
		mid, err := readUint16(br)
		if err != nil {
			return nil, err
		}
		return &CancelInputFrame{MessageID: mid}, nil
	case apc.FramePing:
		ts, err := readUint64(br)
		if err != nil {
			return nil, err
		}
		return &PingFrame{Timestamp: ts}, nil
	default:
		return nil, cos.NewProtocolError("unknown frame discriminator 0x%02x", disc)
	}
}

func readRequestFrame(br *bufio.Reader) (*RequestFrame, error) {
	f := &RequestFrame{}
	var err error
	if f.HandlerID, err = readUint16(br); err != nil {
		return nil, err
	}
	if f.MessageID, err = readUint16(br); err != nil {
		return nil, err
	}
	if f.SendTime, err = readUint64(br); err != nil {
		return nil, err
	}
	if f.DataType, err = readUint8(br); err != nil {
		return nil, err
	}
	if !apc.IsValidDataType(f.DataType) {
		return nil, cos.NewProtocolError("invalid data_type 0x%02x", f.DataType)
	}
	if f.Compression, err = readUint8(br); err != nil {
		return nil, err
	}
	if !apc.IsValidCompression(f.Compression) {
		return nil, cos.NewProtocolError("invalid compression id 0x%02x", f.Compression)
	}
	dataLen, err := readUint32(br)
	if err != nil {
		return nil, err
	}
	hdrRaw, err := cos.ReadUntilDoubleZero(br)
	if err != nil {
		return nil, cos.NewProtocolError("request headers: unterminated (%v)", err)
	}
	if f.Headers, err = headers.Decode(hdrRaw); err != nil {
		return nil, err
	}
	body := make([]byte, dataLen)
	if _, err := io.ReadFull(br, body); err != nil {
		return nil, cos.NewProtocolError("request body truncated: %v", err)
	}
	if f.Compression != apc.CompNone {
		decompressed, err := compress.Decompress(body, f.Compression)
		if err != nil {
			return nil, err
		}
		body = decompressed
	}
	f.Artifact = codec.BufferArtifact(body)
	return f, nil
}

func readStreamRequestFrame(br *bufio.Reader) (*StreamRequestFrame, error) {
	f := &StreamRequestFrame{}
	var err error
	if f.HandlerID, err = readUint16(br); err != nil {
		return nil, err
	}
	if f.MessageID, err = readUint16(br); err != nil {
		return nil, err
	}
	if f.SendTime, err = readUint64(br); err != nil {
		return nil, err
	}
	if f.DataType, err = readUint8(br); err != nil {
		return nil, err
	}
	if !apc.IsValidDataType(f.DataType) {
		return nil, cos.NewProtocolError("invalid data_type 0x%02x", f.DataType)
	}
	if f.Compression, err = readUint8(br); err != nil {
		return nil, err
	}
	if !apc.IsValidCompression(f.Compression) {
		return nil, cos.NewProtocolError("invalid compression id 0x%02x", f.Compression)
	}
	hdrLen, err := readUint32(br)
	if err != nil {
		return nil, err
	}
	hdrRaw := make([]byte, hdrLen)
	if _, err := io.ReadFull(br, hdrRaw); err != nil {
		return nil, cos.NewProtocolError("stream-request headers truncated: %v", err)
	}
	if f.Headers, err = headers.Decode(hdrRaw); err != nil {
		return nil, err
	}
	ch := make(chan []byte)
	f.Chunks = ch
	go streamChunks(br, ch)
	return f, nil
}

// streamChunks feeds decoded chunks to ch until a zero-length chunk (the
// wire terminator) or a read error, then closes ch. Run on its own
// goroutine so callers can process chunks as they arrive instead of
// buffering the whole stream.
func streamChunks(br *bufio.Reader, ch chan<- []byte) {
	defer close(ch)
	for {
		n, err := readUint32(br)
		if err != nil {
			return
		}
		if n == 0 {
			return
		}
		chunk := make([]byte, n)
		if _, err := io.ReadFull(br, chunk); err != nil {
			return
		}
		ch <- chunk
	}
}

func readInputRequestFrame(br *bufio.Reader) (*InputRequestFrame, error) {
	f := &InputRequestFrame{}
	var err error
	if f.MessageID, err = readUint16(br); err != nil {
		return nil, err
	}
	if f.DataType, err = readUint8(br); err != nil {
		return nil, err
	}
	if !apc.IsValidDataType(f.DataType) {
		return nil, cos.NewProtocolError("invalid data_type 0x%02x", f.DataType)
	}
	if f.Compression, err = readUint8(br); err != nil {
		return nil, err
	}
	if !apc.IsValidCompression(f.Compression) {
		return nil, cos.NewProtocolError("invalid compression id 0x%02x", f.Compression)
	}
	dataLen, err := readUint32(br)
	if err != nil {
		return nil, err
	}
	hdrRaw, err := cos.ReadUntilDoubleZero(br)
	if err != nil {
		return nil, cos.NewProtocolError("input-request headers: unterminated (%v)", err)
	}
	if f.Headers, err = headers.Decode(hdrRaw); err != nil {
		return nil, err
	}
	body := make([]byte, dataLen)
	if _, err := io.ReadFull(br, body); err != nil {
		return nil, cos.NewProtocolError("input-request body truncated: %v", err)
	}
	if f.Compression != apc.CompNone {
		decompressed, err := compress.Decompress(body, f.Compression)
		if err != nil {
			return nil, err
		}
		body = decompressed
	}
	f.Artifact = codec.BufferArtifact(body)
	return f, nil
}
