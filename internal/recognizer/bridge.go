package recognizer

import "sync/atomic"

// Puller is the consumer side of an audio queue. Pull blocks until a frame
// is available; ok is false at end of stream.
type Puller interface {
	Pull() (frame []byte, ok bool)
}

// Bridge turns an audio queue into the request sequence a backend consumes.
// One request is produced per pulled frame. Once the end of stream is seen
// the bridge is finished for good and never pulls again.
type Bridge struct {
	src      Puller
	finished atomic.Bool
	count    atomic.Int64
}

func NewBridge(src Puller) *Bridge {
	return &Bridge{src: src}
}

func (b *Bridge) Next() (Request, bool) {
	if b.finished.Load() {
		return Request{}, false
	}
	frame, ok := b.src.Pull()
	if !ok {
		b.finished.Store(true)
		return Request{}, false
	}
	b.count.Add(1)
	return Request{Audio: frame}, true
}

// Count is the number of requests produced so far.
func (b *Bridge) Count() int {
	return int(b.count.Load())
}

// Finished reports whether the end of stream has been reached.
func (b *Bridge) Finished() bool {
	return b.finished.Load()
}
