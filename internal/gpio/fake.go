package gpio

import (
	"errors"

	"github.com/sweeney/assist-arbiter/internal/logic"
)

// FakeReader is a test double that returns scripted frames.
type FakeReader struct {
	// Frames contains scripted inputs to return.
	// Each call to Read() consumes the next frame.
	Frames []logic.Input

	index int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Read()
	ReadError error
}

// NewFakeReader creates a FakeReader with the given frames.
func NewFakeReader(frames []logic.Input) *FakeReader {
	return &FakeReader{Frames: frames}
}

// Read returns the next scripted frame.
// If frames are exhausted, returns the last frame repeatedly.
func (f *FakeReader) Read() (logic.Input, error) {
	if f.ReadError != nil {
		return logic.Input{}, f.ReadError
	}

	if len(f.Frames) == 0 {
		return logic.Input{}, errors.New("no frames configured")
	}

	frame := f.Frames[f.index]
	if f.index < len(f.Frames)-1 {
		f.index++
	}

	return frame, nil
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.Closed = true
	return nil
}

// Reset rewinds to the first frame.
func (f *FakeReader) Reset() {
	f.index = 0
	f.Closed = false
}
