package wal

import (
	"io"
	"os"

	tabulaerrors "github.com/kesh-dev/tabula/pkg/errors"
)

const maxPayloadLen = 1 << 30 // 1GB guard against reading garbage as a length

// Reader walks a WAL file sequentially from offset zero, per spec §4.8.
type Reader struct {
	file   *os.File
	offset int64
}

// NewReader opens path for sequential replay.
func NewReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{file: f}, nil
}

// ReadEntry reads the next record, or io.EOF when the file is exhausted.
// Callers must ReleaseEntry the result.
func (r *Reader) ReadEntry() (*Entry, error) {
	headerBuf := make([]byte, HeaderSize)
	n, err := io.ReadFull(r.file, headerBuf)
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, tabulaerrors.Codec(err, "read wal header")
	}
	if n != HeaderSize {
		return nil, tabulaerrors.Codec(io.ErrUnexpectedEOF, "short wal header read")
	}

	var header Header
	header.Decode(headerBuf)

	if header.Magic != WALMagic {
		return nil, tabulaerrors.Codec(nil, "bad wal magic at offset %d", r.offset)
	}

	entry := AcquireEntry()
	entry.Header = header

	if header.PayloadLen == 0 {
		return entry, nil
	}
	if header.PayloadLen > maxPayloadLen {
		ReleaseEntry(entry)
		return nil, tabulaerrors.Codec(nil, "wal payload length %d exceeds limit", header.PayloadLen)
	}

	if uint32(cap(entry.Payload)) < header.PayloadLen {
		entry.Payload = make([]byte, header.PayloadLen)
	} else {
		entry.Payload = entry.Payload[:header.PayloadLen]
	}

	if _, err := io.ReadFull(r.file, entry.Payload); err != nil {
		ReleaseEntry(entry)
		if err == io.EOF {
			return nil, tabulaerrors.Codec(io.ErrUnexpectedEOF, "truncated wal payload")
		}
		return nil, tabulaerrors.Io(err, "read wal payload")
	}

	if !ValidateCRC32(entry.Payload, header.CRC32) {
		ReleaseEntry(entry)
		return nil, tabulaerrors.Codec(nil, "wal checksum mismatch at offset %d", r.offset)
	}

	r.offset += int64(HeaderSize) + int64(header.PayloadLen)
	return entry, nil
}

func (r *Reader) Close() error {
	return r.file.Close()
}
