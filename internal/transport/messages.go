package transport

import (
	"encoding/binary"
	"fmt"

	"Vigil/internal/fhe"
)

// Message type tags on the oracle link.
const (
	// MsgDecryptRequest carries a committed handle set with the
	// ciphertext payloads backing each handle (bidirectional stream;
	// the response is the assigned request id).
	MsgDecryptRequest byte = 0x01

	// MsgCallback delivers a decryption result: request id,
	// cleartext blob and attestation proof (unidirectional stream).
	MsgCallback byte = 0x02
)

// HandlePayload pairs a committed handle with the ciphertext payload
// that backs it. The receiving oracle re-derives the handle from the
// payload and rejects the pair on mismatch, so a corrupted or
// substituted payload can never masquerade as the committed one.
type HandlePayload struct {
	Handle  fhe.Handle
	Payload []byte
}

// EncodeDecryptRequest encodes a decryption request.
// Format: tag + u8 count + count x (32-byte handle + u16 len + payload).
func EncodeDecryptRequest(items []HandlePayload) ([]byte, error) {
	if len(items) > 255 {
		return nil, fmt.Errorf("too many handles: %d", len(items))
	}

	buf := []byte{MsgDecryptRequest, byte(len(items))}

	for _, item := range items {
		buf = append(buf, item.Handle[:]...)

		var lenBuf [2]byte
		binary.BigEndian.PutUint16(lenBuf[:], uint16(len(item.Payload)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, item.Payload...)
	}

	return buf, nil
}

// DecodeDecryptRequest decodes a decryption request frame.
func DecodeDecryptRequest(data []byte) ([]HandlePayload, error) {
	if len(data) < 2 || data[0] != MsgDecryptRequest {
		return nil, fmt.Errorf("not a decrypt request frame")
	}

	count := int(data[1])
	data = data[2:]

	items := make([]HandlePayload, 0, count)

	for i := 0; i < count; i++ {
		if len(data) < fhe.HandleSize+2 {
			return nil, fmt.Errorf("truncated handle entry %d", i)
		}

		var item HandlePayload
		copy(item.Handle[:], data[:fhe.HandleSize])
		data = data[fhe.HandleSize:]

		payloadLen := binary.BigEndian.Uint16(data[:2])
		data = data[2:]

		if len(data) < int(payloadLen) {
			return nil, fmt.Errorf("truncated payload entry %d", i)
		}

		item.Payload = make([]byte, payloadLen)
		copy(item.Payload, data[:payloadLen])
		data = data[payloadLen:]

		items = append(items, item)
	}

	if len(data) != 0 {
		return nil, fmt.Errorf("trailing bytes in decrypt request")
	}

	return items, nil
}

// EncodeRequestID encodes the response to a decrypt request.
func EncodeRequestID(requestID uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], requestID)

	return buf[:]
}

// DecodeRequestID decodes a decrypt request response.
func DecodeRequestID(data []byte) (uint64, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("invalid request id response: %d bytes", len(data))
	}

	return binary.BigEndian.Uint64(data), nil
}

// EncodeCallback encodes a decryption result delivery.
// Format: tag + u64 request id + u16 len + cleartexts + u16 len + proof.
func EncodeCallback(requestID uint64, cleartexts, proof []byte) []byte {
	buf := make([]byte, 0, 1+8+2+len(cleartexts)+2+len(proof))
	buf = append(buf, MsgCallback)

	var idBuf [8]byte
	binary.BigEndian.PutUint64(idBuf[:], requestID)
	buf = append(buf, idBuf[:]...)

	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(cleartexts)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, cleartexts...)

	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(proof)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, proof...)

	return buf
}

// DecodeCallback decodes a decryption result delivery.
func DecodeCallback(data []byte) (requestID uint64, cleartexts, proof []byte, err error) {
	if len(data) < 11 || data[0] != MsgCallback {
		return 0, nil, nil, fmt.Errorf("not a callback frame")
	}

	requestID = binary.BigEndian.Uint64(data[1:9])
	data = data[9:]

	cleartextsLen := binary.BigEndian.Uint16(data[:2])
	data = data[2:]

	if len(data) < int(cleartextsLen)+2 {
		return 0, nil, nil, fmt.Errorf("truncated cleartexts")
	}

	cleartexts = make([]byte, cleartextsLen)
	copy(cleartexts, data[:cleartextsLen])
	data = data[cleartextsLen:]

	proofLen := binary.BigEndian.Uint16(data[:2])
	data = data[2:]

	if len(data) != int(proofLen) {
		return 0, nil, nil, fmt.Errorf("truncated proof")
	}

	proof = make([]byte, proofLen)
	copy(proof, data)

	return requestID, cleartexts, proof, nil
}
