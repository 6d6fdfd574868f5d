package headers_test

import (
	"strings"
	"testing"

	"github.com/cifrazia/cats-go/headers"
)

func TestDefaultStatus(t *testing.T) {
	h := headers.New()
	if h.Status() != 200 {
		t.Fatalf("default status = %d, want 200", h.Status())
	}
}

func TestEncodeEscapesClosingTags(t *testing.T) {
	h := headers.New()
	h.Set("payload", "</script>alert(1)</script>")
	b, err := h.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if strings.Contains(string(b), "</") {
		t.Fatalf("encoded headers still contain an unescaped </: %q", b)
	}
}

func TestDecodeRejectsNonIntegerStatus(t *testing.T) {
	_, err := headers.Decode([]byte(`{"Status":"not-a-number"}`))
	if err == nil {
		t.Fatal("expected an error for a non-integer Status")
	}
}

func TestDecodeRejectsNegativeOffset(t *testing.T) {
	_, err := headers.Decode([]byte(`{"Offset":-1}`))
	if err == nil {
		t.Fatal("expected an error for a negative Offset")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	h := headers.New()
	h.SetOffset(42)
	h.Set("X-Trace", "abc")
	b, err := h.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := headers.Decode(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Offset() != 42 {
		t.Fatalf("offset = %d, want 42", out.Offset())
	}
	v, ok := out.Get("X-Trace")
	if !ok || v != "abc" {
		t.Fatalf("X-Trace = %v, ok=%v", v, ok)
	}
}
