package wal

import "sync"

// entryPool reuses Entry structs across WriteEntry/ReadEntry calls to keep
// the hot append/replay paths free of per-record allocation.
var entryPool = sync.Pool{
	New: func() interface{} {
		return &Entry{Payload: make([]byte, 0, 4096)}
	},
}

func AcquireEntry() *Entry {
	return entryPool.Get().(*Entry)
}

func ReleaseEntry(e *Entry) {
	e.Header = Header{}
	e.Payload = e.Payload[:0]
	entryPool.Put(e)
}
