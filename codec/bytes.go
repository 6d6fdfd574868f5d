package codec

import (
	"io"

	"github.com/cifrazia/cats-go/api/apc"
	"github.com/cifrazia/cats-go/cmn/cos"
	"github.com/cifrazia/cats-go/headers"
)

func encodeBytes(value any) (Artifact, uint8, error) {
	b, ok := value.([]byte)
	if !ok {
		return Artifact{}, 0, ErrUnsupportedType
	}
	return BufferArtifact(b), apc.DataBytes, nil
}

func decodeBytes(a Artifact, _ headers.Headers) (any, error) {
	n, err := a.Len()
	if err != nil {
		return nil, err
	}
	if n > maxPlain() {
		return nil, cos.NewProtocolError("bytes payload %d exceeds MAX_PLAIN_DATA_SIZE %d", n, maxPlain())
	}
	if a.Kind == KindBuffer {
		return a.Buf, nil
	}
	defer a.Spill.Close()
	return io.ReadAll(a.Spill.File())
}
