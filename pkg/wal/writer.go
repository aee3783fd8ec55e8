package wal

import (
	"bufio"
	"os"
	"sync"
	"time"

	tabulaerrors "github.com/kesh-dev/tabula/pkg/errors"
)

// Writer appends WAL records and owns the file handle. Every exported method
// is safe for concurrent use. The storage Database calls WriteEntry while
// already holding its table-map lock, so this lock is taken inside that one,
// not before it; WAL-before-apply ordering comes from the Database writing
// every record before it applies the mutation.
type Writer struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	writer  *bufio.Writer
	options Options

	batchBytes int64
	done       chan struct{}
	ticker     *time.Ticker
	closed     bool
}

// NewWriter opens (or creates) the WAL file at path for appending.
func NewWriter(path string, opts Options) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return nil, tabulaerrors.Io(err, "open wal file %q", path)
	}

	w := &Writer{
		path:    path,
		file:    f,
		writer:  bufio.NewWriterSize(f, opts.BufferSize),
		options: opts,
		done:    make(chan struct{}),
	}

	if opts.SyncPolicy == SyncInterval {
		w.ticker = time.NewTicker(opts.SyncIntervalDuration)
		go w.backgroundSync()
	}

	return w, nil
}

func (w *Writer) Path() string { return w.path }

// WriteEntry appends entry and applies the sync policy.
func (w *Writer) WriteEntry(entry *Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	n, err := entry.WriteTo(w.writer)
	if err != nil {
		return tabulaerrors.Io(err, "write wal entry")
	}
	w.batchBytes += n

	switch w.options.SyncPolicy {
	case SyncEveryWrite:
		return w.syncLocked()
	case SyncBatch:
		if w.batchBytes >= w.options.SyncBatchBytes {
			return w.syncLocked()
		}
	}
	return nil
}

func (w *Writer) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.syncLocked()
}

func (w *Writer) syncLocked() error {
	if err := w.writer.Flush(); err != nil {
		return tabulaerrors.Io(err, "flush wal buffer")
	}
	if err := w.file.Sync(); err != nil {
		return tabulaerrors.Io(err, "fsync wal file")
	}
	w.batchBytes = 0
	return nil
}

// Truncate resets the WAL to zero length, used after a successful Save
// supersedes it (spec §4.2).
func (w *Writer) Truncate() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Flush(); err != nil {
		return tabulaerrors.Io(err, "flush before truncate")
	}
	if err := w.file.Truncate(0); err != nil {
		return tabulaerrors.Io(err, "truncate wal file")
	}
	if _, err := w.file.Seek(0, 0); err != nil {
		return tabulaerrors.Io(err, "seek wal file")
	}
	w.writer.Reset(w.file)
	w.batchBytes = 0
	return nil
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if w.ticker != nil {
		w.ticker.Stop()
		close(w.done)
	}

	if err := w.syncLocked(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

func (w *Writer) backgroundSync() {
	for {
		select {
		case <-w.ticker.C:
			w.Sync()
		case <-w.done:
			return
		}
	}
}
