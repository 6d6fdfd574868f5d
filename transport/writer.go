package transport

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/cifrazia/cats-go/api/apc"
	"github.com/cifrazia/cats-go/cmn/cos"
)

func writeUint8(w io.Writer, v uint8) error { _, err := w.Write([]byte{v}); return err }
func writeUint16(w io.Writer, v uint16) error {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	_, err := w.Write(b[:])
	return err
}
func writeUint32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}
func writeUint64(w io.Writer, v uint64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}

// WriteRequestFrame encodes and flushes a discriminator-0x00 frame. body is
// the already-encoded (and, if compression != CompNone, already-compressed)
// payload.
func WriteRequestFrame(bw *bufio.Writer, f *RequestFrame, body []byte) error {
	if err := writeUint8(bw, apc.FrameRequest); err != nil {
		return err
	}
	if err := writeUint16(bw, f.HandlerID); err != nil {
		return err
	}
	if err := writeUint16(bw, f.MessageID); err != nil {
		return err
	}
	if err := writeUint64(bw, f.SendTime); err != nil {
		return err
	}
	if err := writeUint8(bw, f.DataType); err != nil {
		return err
	}
	if err := writeUint8(bw, f.Compression); err != nil {
		return err
	}
	if err := writeUint32(bw, uint32(len(body))); err != nil {
		return err
	}
	hdrJSON, err := f.Headers.Encode()
	if err != nil {
		return err
	}
	if _, err := bw.Write(hdrJSON); err != nil {
		return err
	}
	if _, err := bw.Write(apc.HeaderSeparator[:]); err != nil {
		return err
	}
	if _, err := bw.Write(body); err != nil {
		return err
	}
	return bw.Flush()
}

// WriteStreamRequestFrame writes the fixed header and headers block, then
// streams chunks pulled from next until it returns ok=false, finally
// emitting the zero-length terminator chunk.
func WriteStreamRequestFrame(bw *bufio.Writer, f *StreamRequestFrame, next func() (chunk []byte, ok bool)) error {
	if err := writeUint8(bw, apc.FrameStreamRequest); err != nil {
		return err
	}
	if err := writeUint16(bw, f.HandlerID); err != nil {
		return err
	}
	if err := writeUint16(bw, f.MessageID); err != nil {
		return err
	}
	if err := writeUint64(bw, f.SendTime); err != nil {
		return err
	}
	if err := writeUint8(bw, f.DataType); err != nil {
		return err
	}
	if err := writeUint8(bw, f.Compression); err != nil {
		return err
	}
	hdrJSON, err := f.Headers.Encode()
	if err != nil {
		return err
	}
	if err := writeUint32(bw, uint32(len(hdrJSON))); err != nil {
		return err
	}
	if _, err := bw.Write(hdrJSON); err != nil {
		return err
	}
	for {
		chunk, ok := next()
		if !ok {
			break
		}
		if len(chunk) == 0 {
			return cos.NewProtocolError("stream-request: zero-length chunk is reserved as terminator")
		}
		if err := writeUint32(bw, uint32(len(chunk))); err != nil {
			return err
		}
		if _, err := bw.Write(chunk); err != nil {
			return err
		}
	}
	if err := writeUint32(bw, 0); err != nil {
		return err
	}
	return bw.Flush()
}

func WriteInputRequestFrame(bw *bufio.Writer, f *InputRequestFrame, body []byte) error {
	if err := writeUint8(bw, apc.FrameInputRequest); err != nil {
		return err
	}
	if err := writeUint16(bw, f.MessageID); err != nil {
		return err
	}
	if err := writeUint8(bw, f.DataType); err != nil {
		return err
	}
	if err := writeUint8(bw, f.Compression); err != nil {
		return err
	}
	if err := writeUint32(bw, uint32(len(body))); err != nil {
		return err
	}
	hdrJSON, err := f.Headers.Encode()
	if err != nil {
		return err
	}
	if _, err := bw.Write(hdrJSON); err != nil {
		return err
	}
	if _, err := bw.Write(apc.HeaderSeparator[:]); err != nil {
		return err
	}
	if _, err := bw.Write(body); err != nil {
		return err
	}
	return bw.Flush()
}

func WriteDownloadSpeedFrame(bw *bufio.Writer, bytesPerSec uint32) error {
	if err := writeUint8(bw, apc.FrameDownloadSpeed); err != nil {
		return err
	}
	if err := writeUint32(bw, bytesPerSec); err != nil {
		return err
	}
	return bw.Flush()
}

func WriteCancelInputFrame(bw *bufio.Writer, messageID uint16) error {
	if err := writeUint8(bw, apc.FrameCancelInput); err != nil {
		return err
	}
	if err := writeUint16(bw, messageID); err != nil {
		return err
	}
	return bw.Flush()
}

func WritePingFrame(bw *bufio.Writer, timestampMs uint64) error {
	if err := writeUint8(bw, apc.FramePing); err != nil {
		return err
	}
	if err := writeUint64(bw, timestampMs); err != nil {
		return err
	}
	return bw.Flush()
}
