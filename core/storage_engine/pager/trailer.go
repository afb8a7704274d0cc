package pager

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/zeebo/blake3"

	flushmanager "github.com/sushant-115/rowdb/core/write_engine/flush_manager"
)

const (
	TrailerMagic   uint32 = 0x52574442 // "RWDB"
	TrailerVersion uint16 = 1
	// TrailerSize is the encoded size of Trailer.
	TrailerSize = 48
)

// Trailer is written after the last data byte when the table is committed.
// It carries the authoritative row count and a digest of the data region.
// All fields have fixed sizes so binary.Read/Write agree on the layout.
type Trailer struct {
	Magic   uint32
	Version uint16
	RowSize uint16
	NumRows uint32
	_       uint32
	Digest  [32]byte
}

func (t *Trailer) marshal() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, t); err != nil {
		return nil, fmt.Errorf("serializing trailer: %w", err)
	}
	if buf.Len() != TrailerSize {
		return nil, fmt.Errorf("trailer serialization size (%d) != declared trailer size (%d)", buf.Len(), TrailerSize)
	}
	return buf.Bytes(), nil
}

func unmarshalTrailer(data []byte) (*Trailer, error) {
	var t Trailer
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &t); err != nil {
		return nil, fmt.Errorf("%w: deserializing trailer: %v", flushmanager.ErrCorruptTrailer, err)
	}
	if t.Magic != TrailerMagic {
		return nil, fmt.Errorf("%w: magic 0x%x, expected 0x%x", flushmanager.ErrCorruptTrailer, t.Magic, TrailerMagic)
	}
	if t.Version != TrailerVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", flushmanager.ErrCorruptTrailer, t.Version)
	}
	return &t, nil
}

// digestRegion hashes the first n bytes of r with BLAKE3-256.
func digestRegion(r io.ReaderAt, n int64) ([32]byte, error) {
	var sum [32]byte
	h := blake3.New()
	if _, err := io.Copy(h, io.NewSectionReader(r, 0, n)); err != nil {
		return sum, fmt.Errorf("%w: hashing data region: %v", flushmanager.ErrIO, err)
	}
	copy(sum[:], h.Sum(nil))
	return sum, nil
}
