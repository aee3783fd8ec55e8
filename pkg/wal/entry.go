// Package wal implements the append-only write-ahead log (spec §4.8):
// length-framed, CRC-checksummed records replayed on load to reconstruct
// state newer than the last snapshot.
package wal

import (
	"encoding/binary"
	"io"
)

const (
	HeaderSize = 24 // fixed header size in bytes
	WALVersion = 1

	// WALMagic marks the start of every record for a fast corruption check.
	WALMagic = 0xDEADBEEF
)

// EntryType enumerates the mutating operations the WAL can record (spec §4.8).
type EntryType uint8

const (
	EntryCreateTable EntryType = iota + 1
	EntryInsert
	EntryUpdate
	EntryDelete
)

// Header is the fixed 24-byte prefix of every WAL record.
type Header struct {
	Magic      uint32
	Version    uint8
	EntryType  EntryType
	Reserved   uint16
	LSN        uint64
	PayloadLen uint32
	CRC32      uint32
}

// Entry is one complete WAL record: header plus its BSON-encoded payload.
type Entry struct {
	Header  Header
	Payload []byte
}

func (h *Header) Encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	buf[4] = h.Version
	buf[5] = byte(h.EntryType)
	binary.LittleEndian.PutUint16(buf[6:8], h.Reserved)
	binary.LittleEndian.PutUint64(buf[8:16], h.LSN)
	binary.LittleEndian.PutUint32(buf[16:20], h.PayloadLen)
	binary.LittleEndian.PutUint32(buf[20:24], h.CRC32)
}

func (h *Header) Decode(buf []byte) {
	h.Magic = binary.LittleEndian.Uint32(buf[0:4])
	h.Version = buf[4]
	h.EntryType = EntryType(buf[5])
	h.Reserved = binary.LittleEndian.Uint16(buf[6:8])
	h.LSN = binary.LittleEndian.Uint64(buf[8:16])
	h.PayloadLen = binary.LittleEndian.Uint32(buf[16:20])
	h.CRC32 = binary.LittleEndian.Uint32(buf[20:24])
}

// WriteTo writes the header and payload to w, in that order.
func (e *Entry) WriteTo(w io.Writer) (int64, error) {
	var headerBuf [HeaderSize]byte
	e.Header.Encode(headerBuf[:])

	n, err := w.Write(headerBuf[:])
	if err != nil {
		return int64(n), err
	}
	m, err := w.Write(e.Payload)
	return int64(n + m), err
}

// NewEntry builds an entry ready for WriteEntry, computing PayloadLen and
// CRC32 from payload.
func NewEntry(entryType EntryType, lsn uint64, payload []byte) *Entry {
	e := AcquireEntry()
	e.Header.Magic = WALMagic
	e.Header.Version = WALVersion
	e.Header.EntryType = entryType
	e.Header.LSN = lsn
	e.Header.PayloadLen = uint32(len(payload))
	e.Header.CRC32 = CalculateCRC32(payload)
	e.Payload = append(e.Payload, payload...)
	return e
}
