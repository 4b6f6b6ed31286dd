package http

import (
	"bytes"
	"testing"
)

func TestAcceptKeyMatchesRFC6455Example(t *testing.T) {
	// The canonical example from RFC 6455 §1.3.
	got := acceptKey("dGhlIHNhbXBsZSBub25jZQ==")
	want := "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="
	if got != want {
		t.Errorf("acceptKey = %q, want %q", got, want)
	}
}

func TestWriteThenReadFrameRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("hello websocket")
	if err := writeFrame(&buf, opText, payload); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}
	frame, err := readFrame(&buf)
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if frame.opcode != opText {
		t.Errorf("opcode = %x, want %x", frame.opcode, opText)
	}
	if !frame.fin {
		t.Error("expected FIN set")
	}
	if !bytes.Equal(frame.payload, payload) {
		t.Errorf("payload = %q, want %q", frame.payload, payload)
	}
}

func TestWriteFrameUsesExtendedLengthForLargePayload(t *testing.T) {
	var buf bytes.Buffer
	payload := bytes.Repeat([]byte("x"), 70000)
	if err := writeFrame(&buf, opBinary, payload); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}
	frame, err := readFrame(&buf)
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if len(frame.payload) != len(payload) {
		t.Errorf("payload length = %d, want %d", len(frame.payload), len(payload))
	}
}

func TestReadFrameUnmasksClientPayload(t *testing.T) {
	// A masked "hi" text frame: FIN+opcode=0x81, MASK+len=0x82,
	// mask key 0x00 0x00 0x00 0x00 (no-op mask for a readable test vector).
	raw := []byte{0x81, 0x82, 0x00, 0x00, 0x00, 0x00, 'h', 'i'}
	frame, err := readFrame(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if string(frame.payload) != "hi" {
		t.Errorf("payload = %q, want %q", frame.payload, "hi")
	}
}
