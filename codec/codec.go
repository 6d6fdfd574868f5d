// Package codec implements the payload codec: the ordered bytes -> json ->
// files try-chain that encodes a handler's return value (or a decoded
// frame's payload) to/from wire bytes.
//
// Each sub-codec either claims a value (returns a result) or declines with
// ErrUnsupportedType so the next codec in the chain gets a turn; unrelated
// errors (malformed files, oversize payloads) propagate immediately instead
// of being swallowed by the try-next logic.
package codec

import (
	"errors"
	"io"

	"github.com/cifrazia/cats-go/api/apc"
	"github.com/cifrazia/cats-go/config"
	"github.com/cifrazia/cats-go/headers"
	"github.com/cifrazia/cats-go/membuf"
)

// ErrUnsupportedType is returned by a sub-codec's Encode to signal "not
// mine, try the next one" without aborting the chain.
var ErrUnsupportedType = errors.New("codec: unsupported value type")

// ArtifactKind discriminates Artifact's sum-type payload.
type ArtifactKind uint8

const (
	KindBuffer ArtifactKind = iota
	KindSpill
)

// Artifact is the codec's Buffer | TempFile sum type.
type Artifact struct {
	Kind  ArtifactKind
	Buf   []byte
	Spill *membuf.SpillFile
}

func BufferArtifact(b []byte) Artifact { return Artifact{Kind: KindBuffer, Buf: b} }
func SpillArtifact(s *membuf.SpillFile) Artifact {
	return Artifact{Kind: KindSpill, Spill: s}
}

// Len reports the artifact's byte length without reading a spill file's
// entire contents into memory.
func (a Artifact) Len() (int64, error) {
	if a.Kind == KindBuffer {
		return int64(len(a.Buf)), nil
	}
	st, err := a.Spill.File().Stat()
	if err != nil {
		return 0, err
	}
	return st.Size(), nil
}

// Bytes materializes the artifact's full contents in memory, reading a
// spill file's backing temp file if necessary. Large files-payload
// artifacts should be streamed instead (see Artifact.Spill); this is meant
// for the common small-reply path.
func (a Artifact) Bytes() ([]byte, error) {
	if a.Kind == KindBuffer {
		return a.Buf, nil
	}
	if _, err := a.Spill.File().Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return io.ReadAll(a.Spill.File())
}

// Close releases the artifact's resources (a no-op for a buffer, delete
// for an un-Detach-ed spill file).
func (a Artifact) Close() error {
	if a.Kind == KindSpill && a.Spill != nil {
		return a.Spill.Close()
	}
	return nil
}

type encoder func(value any) (Artifact, uint8, error)
type decoder func(a Artifact, hdrs headers.Headers) (any, error)

var encoders = []encoder{encodeBytes, encodeJSON, encodeFiles}

var decoders = map[uint8]decoder{
	apc.DataBytes: decodeBytes,
	apc.DataJSON: decodeJSON,
	apc.DataFiles: decodeFiles,
}

// Encode tries bytes, then json, then files, returning the first codec that
// claims value.
func Encode(value any) (Artifact, uint8, error) {
	for _, enc := range encoders {
		a, dt, err := enc(value)
		if err == ErrUnsupportedType {
			continue
		}
		return a, dt, err
	}
	return Artifact{}, 0, ErrUnsupportedType
}

// Decode is Encode's inverse for a known data_type.
func Decode(a Artifact, dataType uint8, hdrs headers.Headers) (any, error) {
	dec, ok := decoders[dataType]
	if !ok {
		a.Close()
		return nil, apcUnknownDataType(dataType)
	}
	v, err := dec(a, hdrs)
	if err != nil {
		a.Close()
		return nil, err
	}
	return v, nil
}

func apcUnknownDataType(dt uint8) error {
	return &unknownDataTypeErr{dt: dt}
}

type unknownDataTypeErr struct{ dt uint8 }

func (e *unknownDataTypeErr) Error() string {
	return "codec: unknown data_type 0x" + hex(e.dt)
}

func hex(b uint8) string {
	const digits = "0123456789abcdef"
	return string([]byte{digits[b>>4], digits[b&0xf]})
}

// maxPlain returns the configured plain-payload ceiling.
func maxPlain() int64 { return config.Rom.Get().MaxPlainDataSize }
