package audio

import "sync"

// Buffer is an unbounded FIFO of audio frames with a single end-of-stream
// marker. Producers never block; the single consumer blocks in Pull until a
// frame or the end marker is available.
type Buffer struct {
	mu     sync.Mutex
	cond   *sync.Cond
	frames [][]byte
	ended  bool // end marker enqueued
	done   bool // end marker consumed
}

func NewBuffer() *Buffer {
	b := &Buffer{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Push appends a frame. It returns false when the buffer has already been
// ended, in which case the frame is dropped.
func (b *Buffer) Push(frame []byte) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ended {
		return false
	}
	b.frames = append(b.frames, frame)
	b.cond.Signal()
	return true
}

// End enqueues the end marker behind any pending frames. Only the first call
// has an effect and returns true.
func (b *Buffer) End() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ended {
		return false
	}
	b.ended = true
	b.cond.Broadcast()
	return true
}

// Discard drops all pending frames and ends the buffer. It returns the number
// of frames dropped.
func (b *Buffer) Discard() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.frames)
	b.frames = nil
	b.ended = true
	b.cond.Broadcast()
	return n
}

// Pull blocks until a frame is available and returns it. ok is false once the
// end marker has been reached; every later call returns immediately.
func (b *Buffer) Pull() (frame []byte, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.frames) == 0 && !b.ended {
		b.cond.Wait()
	}
	if len(b.frames) == 0 {
		b.done = true
		return nil, false
	}
	frame = b.frames[0]
	b.frames[0] = nil
	b.frames = b.frames[1:]
	return frame, true
}

// Len reports the number of frames waiting to be pulled.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.frames)
}

// Drained reports whether the consumer has read the end marker.
func (b *Buffer) Drained() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.done
}
