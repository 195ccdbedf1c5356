package transport

import (
	"bytes"
	"testing"

	"Vigil/internal/fhe"
)

func TestDecryptRequestRoundtrip(t *testing.T) {
	items := []HandlePayload{
		{Handle: fhe.Handle{0x01}, Payload: []byte{0xaa, 0xbb}},
		{Handle: fhe.Handle{0x02}, Payload: []byte{0xcc, 0xdd, 0xee}},
		{Handle: fhe.Handle{0x03}, Payload: []byte{0xff}},
	}

	frame, err := EncodeDecryptRequest(items)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	decoded, err := DecodeDecryptRequest(frame)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if len(decoded) != len(items) {
		t.Fatalf("expected %d items, got %d", len(items), len(decoded))
	}

	for i := range items {
		if decoded[i].Handle != items[i].Handle {
			t.Errorf("item %d: handle mismatch", i)
		}

		if !bytes.Equal(decoded[i].Payload, items[i].Payload) {
			t.Errorf("item %d: payload mismatch", i)
		}
	}
}

func TestDecodeDecryptRequestErrors(t *testing.T) {
	if _, err := DecodeDecryptRequest(nil); err == nil {
		t.Error("expected error for empty frame")
	}

	if _, err := DecodeDecryptRequest([]byte{MsgCallback, 0x01}); err == nil {
		t.Error("expected error for wrong tag")
	}

	// Count claims one item but the entry is missing
	if _, err := DecodeDecryptRequest([]byte{MsgDecryptRequest, 0x01}); err == nil {
		t.Error("expected error for truncated frame")
	}

	// Trailing bytes after the last entry
	frame, _ := EncodeDecryptRequest([]HandlePayload{{Payload: []byte{0x01}}})
	frame = append(frame, 0x00)

	if _, err := DecodeDecryptRequest(frame); err == nil {
		t.Error("expected error for trailing bytes")
	}
}

func TestRequestIDRoundtrip(t *testing.T) {
	frame := EncodeRequestID(0xDEADBEEF)

	id, err := DecodeRequestID(frame)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if id != 0xDEADBEEF {
		t.Errorf("expected 0xDEADBEEF, got %x", id)
	}

	if _, err := DecodeRequestID([]byte{0x01}); err == nil {
		t.Error("expected error for wrong length")
	}
}

func TestCallbackRoundtrip(t *testing.T) {
	cleartexts := bytes.Repeat([]byte{0x11}, 17)
	proof := bytes.Repeat([]byte{0x22}, 96)

	frame := EncodeCallback(42, cleartexts, proof)

	requestID, gotCleartexts, gotProof, err := DecodeCallback(frame)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if requestID != 42 {
		t.Errorf("expected request id 42, got %d", requestID)
	}

	if !bytes.Equal(gotCleartexts, cleartexts) {
		t.Error("cleartexts mismatch")
	}

	if !bytes.Equal(gotProof, proof) {
		t.Error("proof mismatch")
	}
}

func TestDecodeCallbackErrors(t *testing.T) {
	if _, _, _, err := DecodeCallback(nil); err == nil {
		t.Error("expected error for empty frame")
	}

	if _, _, _, err := DecodeCallback(bytes.Repeat([]byte{MsgDecryptRequest}, 11)); err == nil {
		t.Error("expected error for wrong tag")
	}

	// Truncate mid-cleartexts
	frame := EncodeCallback(1, bytes.Repeat([]byte{0x11}, 17), []byte{0x22})
	if _, _, _, err := DecodeCallback(frame[:15]); err == nil {
		t.Error("expected error for truncated frame")
	}
}

func TestFrameRoundtrip(t *testing.T) {
	var buf bytes.Buffer

	data := []byte("frame payload")
	if err := writeFrame(&buf, data); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	got, err := readFrame(&buf)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	if !bytes.Equal(got, data) {
		t.Errorf("expected %s, got %s", data, got)
	}
}

func TestFrameSizeLimit(t *testing.T) {
	var buf bytes.Buffer

	if err := writeFrame(&buf, make([]byte, maxFrameSize+1)); err == nil {
		t.Error("expected error for oversized frame")
	}
}
