package transport_test

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/cifrazia/cats-go/headers"
	"github.com/cifrazia/cats-go/transport"
)

func TestRequestFrameRoundTrip(t *testing.T) {
	h := headers.New()
	h.SetStatus(200)
	h.Set("X-Test", "yes")
	in := &transport.RequestFrame{HandlerID: 7, MessageID: 42, SendTime: 1000, Headers: h}
	body := []byte("hello world")

	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	if err := transport.WriteRequestFrame(bw, in, body); err != nil {
		t.Fatalf("write: %v", err)
	}

	br := bufio.NewReader(&buf)
	frame, err := transport.ReadFrame(br)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	out, ok := frame.(*transport.RequestFrame)
	if !ok {
		t.Fatalf("got %T, want *RequestFrame", frame)
	}
	if out.HandlerID != in.HandlerID || out.MessageID != in.MessageID {
		t.Fatalf("header mismatch: %+v", out)
	}
	if out.Headers.Status() != 200 {
		t.Fatalf("status mismatch: %d", out.Headers.Status())
	}
	got, _ := out.Artifact.Bytes()
	if string(got) != string(body) {
		t.Fatalf("body mismatch: %q", got)
	}
}

func TestPingFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	if err := transport.WritePingFrame(bw, 1700000000000); err != nil {
		t.Fatalf("write: %v", err)
	}
	br := bufio.NewReader(&buf)
	frame, err := transport.ReadFrame(br)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	ping, ok := frame.(*transport.PingFrame)
	if !ok {
		t.Fatalf("got %T, want *PingFrame", frame)
	}
	if ping.Timestamp != 1700000000000 {
		t.Fatalf("timestamp mismatch: %d", ping.Timestamp)
	}
}

func TestDownloadSpeedAndCancelInputRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	if err := transport.WriteDownloadSpeedFrame(bw, 4096); err != nil {
		t.Fatalf("write speed: %v", err)
	}
	if err := transport.WriteCancelInputFrame(bw, 99); err != nil {
		t.Fatalf("write cancel: %v", err)
	}

	br := bufio.NewReader(&buf)
	f1, err := transport.ReadFrame(br)
	if err != nil {
		t.Fatalf("read speed: %v", err)
	}
	speed, ok := f1.(*transport.DownloadSpeedFrame)
	if !ok || speed.BytesPerSec != 4096 {
		t.Fatalf("got %+v", f1)
	}

	f2, err := transport.ReadFrame(br)
	if err != nil {
		t.Fatalf("read cancel: %v", err)
	}
	cancel, ok := f2.(*transport.CancelInputFrame)
	if !ok || cancel.MessageID != 99 {
		t.Fatalf("got %+v", f2)
	}
}

func TestStreamRequestFrameRoundTrip(t *testing.T) {
	h := headers.New()
	in := &transport.StreamRequestFrame{HandlerID: 3, MessageID: 5, Headers: h}
	chunks := [][]byte{[]byte("abc"), []byte("defgh")}
	i := 0

	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	err := transport.WriteStreamRequestFrame(bw, in, func() ([]byte, bool) {
		if i >= len(chunks) {
			return nil, false
		}
		c := chunks[i]
		i++
		return c, true
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	br := bufio.NewReader(&buf)
	frame, err := transport.ReadFrame(br)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	out, ok := frame.(*transport.StreamRequestFrame)
	if !ok {
		t.Fatalf("got %T, want *StreamRequestFrame", frame)
	}
	var got [][]byte
	for c := range out.Chunks {
		got = append(got, c)
	}
	if len(got) != len(chunks) {
		t.Fatalf("got %d chunks, want %d", len(got), len(chunks))
	}
	for i, c := range got {
		if string(c) != string(chunks[i]) {
			t.Fatalf("chunk %d mismatch: %q != %q", i, c, chunks[i])
		}
	}
}
