package audio

import (
	"sync"
)

// RingBuffer is a thread-safe byte ring used to hand captured audio
// from a producer to the frame reader
type RingBuffer struct {
	buffer []byte
	size   int
	read   int
	write  int
	mu     sync.RWMutex
}

// NewRingBuffer creates a ring buffer holding at most size-1 bytes
func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{
		buffer: make([]byte, size),
		size:   size,
	}
}

// Write copies as much of data as fits and returns the byte count
func (rb *RingBuffer) Write(data []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := min(len(data), rb.space())
	for written := 0; written < n; {
		end := rb.size
		if rb.read > rb.write {
			end = rb.read
		}
		chunk := copy(rb.buffer[rb.write:end], data[written:n])
		written += chunk
		rb.write = (rb.write + chunk) % rb.size
	}
	return n
}

// Read fills data from the ring and returns the byte count
func (rb *RingBuffer) Read(data []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := min(len(data), rb.available())
	for read := 0; read < n; {
		end := rb.size
		if rb.write > rb.read {
			end = rb.write
		}
		chunk := copy(data[read:n], rb.buffer[rb.read:end])
		read += chunk
		rb.read = (rb.read + chunk) % rb.size
	}
	return n
}

// Available returns the number of bytes available to read
func (rb *RingBuffer) Available() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.available()
}

// Space returns the number of bytes available to write
func (rb *RingBuffer) Space() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.space()
}

func (rb *RingBuffer) available() int {
	if rb.write >= rb.read {
		return rb.write - rb.read
	}
	return rb.size - rb.read + rb.write
}

// One slot stays empty so that read == write always means empty
func (rb *RingBuffer) space() int {
	return rb.size - rb.available() - 1
}

// Clear drops all buffered bytes
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.read = 0
	rb.write = 0
}

// IsEmpty returns true if the buffer is empty
func (rb *RingBuffer) IsEmpty() bool {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.read == rb.write
}

// IsFull returns true if the buffer is full
func (rb *RingBuffer) IsFull() bool {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.space() == 0
}
