// Package save holds the per-save-file progress record: what has
// already happened to this save, independent of network state. The
// record is serialized into the host's save file and must survive
// corruption without ever disrupting the host's save/load cycle.
package save

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/klauspost/compress/zstd"
)

// recordVersion is bumped when the encoding changes shape.
const recordVersion = 1

// Record is the progress state persisted with one save file.
type Record struct {
	// granted is the set of delivery indices whose items have been
	// granted in-game. A set of indices rather than a plain counter so
	// that replayed or reordered delivery never re-grants.
	granted map[int64]struct{}

	// locations is the set of remote location ids this save has
	// checked.
	locations map[int64]struct{}

	// seed is the room seed this save last connected to, or empty if
	// it has never connected. Used to detect cross-session save reuse.
	seed string
}

// NewRecord creates an empty record for a fresh save.
func NewRecord() *Record {
	return &Record{
		granted:   make(map[int64]struct{}),
		locations: make(map[int64]struct{}),
	}
}

// Seed returns the recorded room seed, or empty if none is recorded.
func (r *Record) Seed() string {
	return r.seed
}

// SetSeed records the room seed this save belongs to.
func (r *Record) SetSeed(seed string) {
	r.seed = seed
}

// SeedMatches reports whether the recorded seed equals other. A record
// with no seed never matches.
func (r *Record) SeedMatches(other string) bool {
	return r.seed != "" && r.seed == other
}

// IsGranted reports whether the item at the given delivery index has
// already been granted.
func (r *Record) IsGranted(index int64) bool {
	_, ok := r.granted[index]
	return ok
}

// MarkGranted records that the item at the given delivery index has
// been granted. Callers must invoke the host's grant action first so
// that a crash between the two re-grants instead of silently skipping.
func (r *Record) MarkGranted(index int64) {
	r.granted[index] = struct{}{}
}

// GrantedCount returns how many items have been granted.
func (r *Record) GrantedCount() int {
	return len(r.granted)
}

// ResetGranted clears the granted set so every item is re-delivered.
func (r *Record) ResetGranted() {
	r.granted = make(map[int64]struct{})
}

// AddLocation records a checked location. Reports whether the location
// was new.
func (r *Record) AddLocation(id int64) bool {
	if _, ok := r.locations[id]; ok {
		return false
	}
	r.locations[id] = struct{}{}
	return true
}

// LocationCount returns how many locations have been checked.
func (r *Record) LocationCount() int {
	return len(r.locations)
}

// Locations returns the checked location ids in ascending order.
func (r *Record) Locations() []int64 {
	ids := make([]int64, 0, len(r.locations))
	for id := range r.locations {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Encode serializes the record into the compact binary form stored in
// the host's save file: a varint payload compressed with zstd.
func (r *Record) Encode() ([]byte, error) {
	payload := &bytes.Buffer{}
	payload.WriteByte(recordVersion)

	writeSet := func(set map[int64]struct{}) {
		ids := make([]int64, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		var buf [binary.MaxVarintLen64]byte
		n := binary.PutUvarint(buf[:], uint64(len(ids)))
		payload.Write(buf[:n])
		for _, id := range ids {
			n := binary.PutVarint(buf[:], id)
			payload.Write(buf[:n])
		}
	}
	writeSet(r.granted)
	writeSet(r.locations)

	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], uint64(len(r.seed)))
	payload.Write(buf[:n])
	payload.WriteString(r.seed)

	compressed := &bytes.Buffer{}
	writer, err := zstd.NewWriter(compressed, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd writer: %v", err)
	}
	if _, err := writer.Write(payload.Bytes()); err != nil {
		return nil, fmt.Errorf("failed to compress record: %v", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close zstd writer: %v", err)
	}

	return compressed.Bytes(), nil
}

// DecodeRecord parses a record previously produced by Encode. The
// decoded payload must be consumed exactly; trailing bytes mean the
// buffer was written by a different version or a different mod
// entirely, and are treated as corruption.
func DecodeRecord(data []byte) (*Record, error) {
	zreader, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %v", err)
	}
	defer zreader.Close()
	payload, err := io.ReadAll(zreader)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress record: %v", err)
	}

	reader := bytes.NewReader(payload)
	version, err := reader.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("failed to read record version: %v", err)
	}
	if version != recordVersion {
		return nil, fmt.Errorf("unsupported record version %d", version)
	}

	readSet := func() (map[int64]struct{}, error) {
		count, err := binary.ReadUvarint(reader)
		if err != nil {
			return nil, err
		}
		if count > uint64(reader.Len()) {
			// Each entry takes at least one byte, so a count beyond
			// the remaining length cannot be valid.
			return nil, fmt.Errorf("implausible set length %d", count)
		}
		set := make(map[int64]struct{}, count)
		for i := uint64(0); i < count; i++ {
			id, err := binary.ReadVarint(reader)
			if err != nil {
				return nil, err
			}
			set[id] = struct{}{}
		}
		return set, nil
	}

	record := NewRecord()
	if record.granted, err = readSet(); err != nil {
		return nil, fmt.Errorf("failed to read granted set: %v", err)
	}
	if record.locations, err = readSet(); err != nil {
		return nil, fmt.Errorf("failed to read location set: %v", err)
	}

	seedLen, err := binary.ReadUvarint(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed length: %v", err)
	}
	if seedLen > uint64(reader.Len()) {
		return nil, fmt.Errorf("implausible seed length %d", seedLen)
	}
	seed := make([]byte, seedLen)
	if _, err := io.ReadFull(reader, seed); err != nil {
		return nil, fmt.Errorf("failed to read seed: %v", err)
	}
	record.seed = string(seed)

	if reader.Len() != 0 {
		return nil, fmt.Errorf("record had %d extra bytes", reader.Len())
	}

	return record, nil
}
