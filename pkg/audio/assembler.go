package audio

// Assembler accumulates arbitrarily sized chunks of samples and slices them
// into fixed-length frames. Samples leave the buffer exactly once and in
// arrival order; whatever does not fill a whole frame stays buffered until the
// next [Assembler.Push].
//
// An Assembler is owned by a single session and is not safe for concurrent use.
type Assembler struct {
	buf []int16
}

// NewAssembler returns an empty Assembler. capacityHint pre-sizes the internal
// buffer and may be zero.
func NewAssembler(capacityHint int) *Assembler {
	return &Assembler{buf: make([]int16, 0, max(capacityHint, 0))}
}

// Push appends chunk to the buffer. Empty chunks are a no-op.
func (a *Assembler) Push(chunk []int16) {
	a.buf = append(a.buf, chunk...)
}

// Len reports how many samples are currently buffered.
func (a *Assembler) Len() int { return len(a.buf) }

// Drain slices as many whole frames of frameSize samples as are buffered and
// returns them in order. After Drain, Len() < frameSize. A non-positive
// frameSize returns nil and leaves the buffer untouched.
func (a *Assembler) Drain(frameSize int) []Frame {
	if frameSize <= 0 || len(a.buf) < frameSize {
		return nil
	}
	n := len(a.buf) / frameSize
	frames := make([]Frame, n)
	for i := range n {
		f := make(Frame, frameSize)
		copy(f, a.buf[i*frameSize:(i+1)*frameSize])
		frames[i] = f
	}
	// Compact the remainder to the front so the backing array does not grow
	// with the lifetime of the connection.
	rest := copy(a.buf, a.buf[n*frameSize:])
	a.buf = a.buf[:rest]
	return frames
}

// Reset discards all buffered samples.
func (a *Assembler) Reset() { a.buf = a.buf[:0] }
