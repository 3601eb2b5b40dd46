package testutil

import (
	"fmt"
	"sync"
)

// Recorder is an events.Listener that records every callback as a short
// string such as "started:alice" or "status:connected"
type Recorder struct {
	mu      sync.Mutex
	entries []string
	errs    []error
	audio   map[string][][]byte
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{audio: make(map[string][][]byte)}
}

func (r *Recorder) add(entry string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

func (r *Recorder) OnTextMessageReceived(channel, sender, text string) {
	r.add(fmt.Sprintf("text:%s:%s", sender, text))
}

func (r *Recorder) OnChannelStatusChanged(channel, status string) {
	r.add("status:" + status)
}

func (r *Recorder) OnAudioStreamStarted(channel, sender string) {
	r.add("started:" + sender)
}

func (r *Recorder) OnAudioStreamStopped(channel, sender string) {
	r.add("stopped:" + sender)
}

func (r *Recorder) OnAudioStreamReceived(channel, sender string, payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio[sender] = append(r.audio[sender], append([]byte(nil), payload...))
}

func (r *Recorder) OnError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
	r.entries = append(r.entries, "error")
}

// Entries returns a copy of the recorded entries
func (r *Recorder) Entries() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.entries...)
}

// Count returns how many times entry was recorded
func (r *Recorder) Count(entry string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e == entry {
			n++
		}
	}
	return n
}

// Errors returns a copy of the recorded errors
func (r *Recorder) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

// Audio returns the payloads received from sender, in order
func (r *Recorder) Audio(sender string) [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.audio[sender]...)
}
