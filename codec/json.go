package codec

import (
	"io"

	jsoniter "github.com/json-iterator/go"

	"github.com/cifrazia/cats-go/api/apc"
	"github.com/cifrazia/cats-go/cmn/cos"
	"github.com/cifrazia/cats-go/headers"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func encodeJSON(value any) (Artifact, uint8, error) {
	if _, ok := value.([]byte); ok {
		return Artifact{}, 0, ErrUnsupportedType // let the bytes codec own it
	}
	if _, ok := value.(Files); ok {
		return Artifact{}, 0, ErrUnsupportedType // let the files codec own it
	}
	b, err := json.Marshal(value)
	if err != nil {
		return Artifact{}, 0, cos.NewMalformedDataError("json encode: %v", err)
	}
	return BufferArtifact(cos.EscapeSlashes(b)), apc.DataJSON, nil
}

func decodeJSON(a Artifact, _ headers.Headers) (any, error) {
	n, err := a.Len()
	if err != nil {
		return nil, err
	}
	if n > maxPlain() {
		return nil, cos.NewProtocolError("json payload %d exceeds MAX_PLAIN_DATA_SIZE %d", n, maxPlain())
	}
	var b []byte
	if a.Kind == KindBuffer {
		b = a.Buf
	} else {
		defer a.Spill.Close()
		if b, err = io.ReadAll(a.Spill.File()); err != nil {
			return nil, err
		}
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, cos.NewMalformedDataError("json decode: %v", err)
	}
	return v, nil
}
