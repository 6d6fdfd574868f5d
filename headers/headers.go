// Package headers implements the JSON-backed metadata bag carried by every
// Request/Stream-Request/Input-Request frame.
package headers

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/cifrazia/cats-go/api/apc"
	"github.com/cifrazia/cats-go/cmn/cos"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Headers is a string -> JSON value bag. Status and Offset are reserved and
// validated on construction; everything else passes through opaque.
type Headers map[string]any

// New builds an empty Headers with Status defaulted to 200.
func New() Headers {
	return Headers{apc.HdrStatus: apc.DefaultStatus}
}

// FromMap validates and wraps an existing map, as when a handler or the
// wire decoder hands in an already-unmarshaled object.
func FromMap(m map[string]any) (Headers, error) {
	h := Headers(m)
	if err := h.validate(); err != nil {
		return nil, err
	}
	if _, ok := h[apc.HdrStatus]; !ok {
		h[apc.HdrStatus] = apc.DefaultStatus
	}
	return h, nil
}

func (h Headers) validate() error {
	if v, ok := h[apc.HdrStatus]; ok {
		if _, ok := asInt(v); !ok {
			return cos.NewMalformedDataError("Status header must be an integer, got %T", v)
		}
	}
	if v, ok := h[apc.HdrOffset]; ok {
		n, ok := asInt(v)
		if !ok {
			return cos.NewMalformedDataError("Offset header must be an integer, got %T", v)
		}
		if n < 0 {
			return cos.NewMalformedDataError("Offset header must be non-negative, got %d", n)
		}
	}
	return nil
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

func (h Headers) Status() int {
	if v, ok := h[apc.HdrStatus]; ok {
		if n, ok := asInt(v); ok {
			return int(n)
		}
	}
	return apc.DefaultStatus
}

func (h Headers) SetStatus(status int) { h[apc.HdrStatus] = status }

func (h Headers) Offset() int64 {
	if v, ok := h[apc.HdrOffset]; ok {
		if n, ok := asInt(v); ok {
			return n
		}
	}
	return 0
}

func (h Headers) SetOffset(off int64) { h[apc.HdrOffset] = off }

func (h Headers) Get(key string) (any, bool) {
	v, ok := h[key]
	return v, ok
}

func (h Headers) Set(key string, v any) { h[key] = v }

// Encode serializes Headers to UTF-8 JSON, escaping "</" as "<\/" so that
// payloads embedding this frame's headers inside an HTML/JS context can
// never be terminated early by a literal "</script>" et al.
func (h Headers) Encode() ([]byte, error) {
	if h == nil {
		h = New()
	}
	b, err := json.Marshal(map[string]any(h))
	if err != nil {
		return nil, err
	}
	return cos.EscapeSlashes(b), nil
}

// Decode parses a raw JSON headers blob (already split from the trailing
// payload by the framing codec) into a validated Headers bag.
func Decode(b []byte) (Headers, error) {
	if len(b) == 0 {
		return New(), nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, cos.NewMalformedDataError("invalid headers JSON: %v", err)
	}
	return FromMap(m)
}
