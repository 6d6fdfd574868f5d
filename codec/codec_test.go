package codec_test

import (
	"bytes"
	"testing"

	"github.com/cifrazia/cats-go/api/apc"
	"github.com/cifrazia/cats-go/codec"
	"github.com/cifrazia/cats-go/headers"
)

func TestBytesRoundTrip(t *testing.T) {
	in := []byte("the quick brown fox")
	a, dt, err := codec.Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if dt != apc.DataBytes {
		t.Fatalf("data type = 0x%02x, want DataBytes", dt)
	}
	out, err := codec.Decode(a, dt, headers.New())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got, ok := out.([]byte)
	if !ok || !bytes.Equal(got, in) {
		t.Fatalf("got %v, want %v", out, in)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	in := map[string]any{"a": float64(1), "b": "</script>"}
	a, dt, err := codec.Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if dt != apc.DataJSON {
		t.Fatalf("data type = 0x%02x, want DataJSON", dt)
	}
	raw, _ := a.Bytes()
	if bytes.Contains(raw, []byte("</")) {
		t.Fatalf("encoded JSON still contains an unescaped </: %q", raw)
	}
	out, err := codec.Decode(a, dt, headers.New())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	m, ok := out.(map[string]any)
	if !ok {
		t.Fatalf("got %T, want map[string]any", out)
	}
	if m["a"] != float64(1) || m["b"] != "</script>" {
		t.Fatalf("got %+v", m)
	}
}

func TestFilesRoundTrip(t *testing.T) {
	f1 := &codec.File{Key: "a", Name: "a.txt", Size: 5, Reader: bytes.NewReader([]byte("hello"))}
	f2 := &codec.File{Key: "b", Name: "b.txt", Size: 3, Type: "text/plain", Reader: bytes.NewReader([]byte("bye"))}
	in := codec.Files{f1, f2}

	a, dt, err := codec.Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if dt != apc.DataFiles {
		t.Fatalf("data type = 0x%02x, want DataFiles", dt)
	}
	out, err := codec.Decode(a, dt, headers.New())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	files, ok := out.(codec.Files)
	if !ok || len(files) != 2 {
		t.Fatalf("got %+v", out)
	}
	if files[0].Name != "a.txt" || string(files[0].Data) != "hello" {
		t.Fatalf("member 0 mismatch: %+v data=%q", files[0], files[0].Data)
	}
	if files[1].Type != "text/plain" || string(files[1].Data) != "bye" {
		t.Fatalf("member 1 mismatch: %+v data=%q", files[1], files[1].Data)
	}
}

func TestDecodeUnknownDataType(t *testing.T) {
	_, err := codec.Decode(codec.BufferArtifact([]byte("x")), 0x7f, headers.New())
	if err == nil {
		t.Fatal("expected an error for an unknown data_type")
	}
}
