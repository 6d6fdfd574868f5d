// Package compress negotiates and applies per-frame compression. The one
// general-purpose compressor is LZ4 (github.com/pierrec/lz4/v3), chosen
// because it is already a dependency of this codebase's lineage and favors
// speed over ratio the way an in-cluster/low-latency protocol wants.
package compress

import (
	"bytes"
	"io"

	"github.com/pierrec/lz4/v3"

	"github.com/cifrazia/cats-go/api/apc"
	"github.com/cifrazia/cats-go/cmn/cos"
	"github.com/cifrazia/cats-go/membuf"
)

// sampleMinBytes is the number of leading sample bytes Propose probes for
// its compressibility estimate.
const sampleMinBytes = 5 * 1024

// Propose inspects the first sampleMinBytes of sample (or the whole buffer,
// if smaller) and returns the compression id the sender should use for the
// full payload. Samples under 64 bytes and already-dense ones (trial LZ4
// output at least 92% of the input) are left uncompressed; LZ4 is proposed
// for anything still linear enough to be worth the CPU.
func Propose(sample []byte) uint8 {
	if len(sample) < 64 {
		return apc.CompNone
	}
	n := len(sample)
	if n > sampleMinBytes {
		n = sampleMinBytes
	}
	if estimateRatio(sample[:n]) < 0.92 {
		return apc.CompLZ4
	}
	return apc.CompNone
}

// estimateRatio does a cheap compressibility probe: compress the sample and
// compare sizes, rather than guessing from byte-value entropy alone.
func estimateRatio(sample []byte) float64 {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	_, _ = w.Write(sample)
	_ = w.Close()
	if len(sample) == 0 {
		return 1
	}
	return float64(buf.Len()) / float64(len(sample))
}

// Compress applies the named compression id to data. Idempotent w.r.t. the
// id: CompNone returns data unchanged; an already-unsupported id is a
// programmer error (ProtocolError), not silently ignored.
func Compress(data []byte, id uint8) ([]byte, uint8, error) {
	switch id {
	case apc.CompNone:
		return data, apc.CompNone, nil
	case apc.CompLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, 0, err
		}
		if err := w.Close(); err != nil {
			return nil, 0, err
		}
		return buf.Bytes(), apc.CompLZ4, nil
	default:
		return nil, 0, cos.NewProtocolError("unsupported compression id 0x%02x", id)
	}
}

// Decompress is Compress's inverse.
func Decompress(data []byte, id uint8) ([]byte, error) {
	switch id {
	case apc.CompNone:
		return data, nil
	case apc.CompLZ4:
		r := lz4.NewReader(bytes.NewReader(data))
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, cos.NewProtocolError("lz4 decompress: %v", err)
		}
		return out, nil
	default:
		return nil, cos.NewProtocolError("unsupported compression id 0x%02x", id)
	}
}

// WrapReader wraps r so reads come out id-decompressed, for streaming
// decode paths that can't hold the whole payload in memory to call
// Decompress on it directly.
func WrapReader(r io.Reader, id uint8) (io.Reader, error) {
	switch id {
	case apc.CompNone:
		return r, nil
	case apc.CompLZ4:
		return lz4.NewReader(r), nil
	default:
		return nil, cos.NewProtocolError("unsupported compression id 0x%02x", id)
	}
}

// DecompressToFile streams id-compressed data from r into a spill file
// instead of memory. The transport's Stream-Request read path does not call
// it: that path reads each chunk into memory whole and spills only the
// decompressed body beyond MaxPlainDataSize (see transport.collectStream).
func DecompressToFile(r io.Reader, id uint8, pattern string) (*membuf.SpillFile, error) {
	sf, err := membuf.NewSpillFile(pattern)
	if err != nil {
		return nil, err
	}
	src, err := WrapReader(r, id)
	if err != nil {
		sf.Close()
		return nil, err
	}
	if _, err := io.Copy(sf.File(), src); err != nil {
		sf.Close()
		return nil, err
	}
	if _, err := sf.File().Seek(0, io.SeekStart); err != nil {
		sf.Close()
		return nil, err
	}
	return sf, nil
}
