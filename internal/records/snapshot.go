package records

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"Vigil/internal/storage"
)

// snapshotVersion is the current snapshot format version.
const snapshotVersion = 1

// ExportSnapshot serializes all records to a zstd-compressed snapshot
// with an embedded blake3 checksum, for backup or migration.
func (s *Store) ExportSnapshot() ([]byte, error) {
	entries, err := s.collectEntries()
	if err != nil {
		return nil, fmt.Errorf("collect records:\n%w", err)
	}

	raw := encodeSnapshot(entries)

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create encoder:\n%w", err)
	}
	defer encoder.Close()

	return encoder.EncodeAll(raw, nil), nil
}

// ImportSnapshot verifies and applies a snapshot, replacing the stored
// records it names. Either all entries are written or none.
func (s *Store) ImportSnapshot(data []byte) (int, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return 0, fmt.Errorf("create decoder:\n%w", err)
	}
	defer decoder.Close()

	raw, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return 0, fmt.Errorf("decompress snapshot:\n%w", err)
	}

	entries, err := decodeSnapshot(raw)
	if err != nil {
		return 0, err
	}

	pairs := make([]storage.KeyValue, len(entries))
	for i, e := range entries {
		pairs[i] = storage.KeyValue{
			Key:   makeRecordKey(e.name),
			Value: e.data,
		}
	}

	if err := s.db.SetBatch(pairs); err != nil {
		return 0, fmt.Errorf("write records:\n%w", err)
	}

	return len(entries), nil
}

// snapshotEntry holds a record's name and serialized data.
type snapshotEntry struct {
	name string
	data []byte
}

// collectEntries iterates storage and returns all record entries
// sorted by name for a deterministic checksum.
func (s *Store) collectEntries() ([]snapshotEntry, error) {
	var entries []snapshotEntry

	err := s.db.IteratePrefix(recordKeyPrefix, func(key, value []byte) error {
		name := string(key[len(recordKeyPrefix):])

		data := make([]byte, len(value))
		copy(data, value)

		entries = append(entries, snapshotEntry{name: name, data: data})

		return nil
	})

	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].name < entries[j].name
	})

	return entries, nil
}

// encodeSnapshot builds the raw snapshot.
// Format: u32 version + u32 count + checksum(32) + entries, where each
// entry is u16 name_len + name + u32 data_len + data.
func encodeSnapshot(entries []snapshotEntry) []byte {
	checksum := computeChecksum(entries)

	var buf bytes.Buffer

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], snapshotVersion)
	buf.Write(lenBuf[:])

	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(entries)))
	buf.Write(lenBuf[:])

	buf.Write(checksum[:])

	for _, e := range entries {
		var nameLen [2]byte
		binary.BigEndian.PutUint16(nameLen[:], uint16(len(e.name)))
		buf.Write(nameLen[:])
		buf.WriteString(e.name)

		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(e.data)))
		buf.Write(lenBuf[:])
		buf.Write(e.data)
	}

	return buf.Bytes()
}

// decodeSnapshot parses and checksum-verifies a raw snapshot.
func decodeSnapshot(raw []byte) ([]snapshotEntry, error) {
	if len(raw) < 40 {
		return nil, fmt.Errorf("snapshot too short: %d bytes", len(raw))
	}

	version := binary.BigEndian.Uint32(raw[0:4])
	if version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", version)
	}

	count := binary.BigEndian.Uint32(raw[4:8])

	var stored [32]byte
	copy(stored[:], raw[8:40])

	entries := make([]snapshotEntry, 0, count)
	data := raw[40:]

	for i := uint32(0); i < count; i++ {
		if len(data) < 2 {
			return nil, fmt.Errorf("truncated entry %d", i)
		}

		nameLen := binary.BigEndian.Uint16(data[:2])
		data = data[2:]

		if len(data) < int(nameLen)+4 {
			return nil, fmt.Errorf("truncated entry %d", i)
		}

		name := string(data[:nameLen])
		data = data[nameLen:]

		dataLen := binary.BigEndian.Uint32(data[:4])
		data = data[4:]

		if len(data) < int(dataLen) {
			return nil, fmt.Errorf("truncated entry %d", i)
		}

		entryData := make([]byte, dataLen)
		copy(entryData, data[:dataLen])
		data = data[dataLen:]

		entries = append(entries, snapshotEntry{name: name, data: entryData})
	}

	if computeChecksum(entries) != stored {
		return nil, fmt.Errorf("checksum mismatch")
	}

	return entries, nil
}

// computeChecksum computes a blake3 checksum over sorted entries.
func computeChecksum(entries []snapshotEntry) [32]byte {
	hasher := blake3.New()

	var lenBuf [4]byte

	for _, e := range entries {
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(e.name)))
		hasher.Write(lenBuf[:])
		hasher.Write([]byte(e.name))

		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(e.data)))
		hasher.Write(lenBuf[:])
		hasher.Write(e.data)
	}

	var checksum [32]byte
	hasher.Sum(checksum[:0])

	return checksum
}
