package floor

import (
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStreamer struct {
	mu       sync.Mutex
	running  bool
	starts   int
	stops    int
	epochs   []uint64
	startErr error
	overlap  bool
}

func (s *fakeStreamer) Start(epoch uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	if s.running {
		s.overlap = true
	}
	s.running = true
	s.starts++
	s.epochs = append(s.epochs, epoch)
	return nil
}

func (s *fakeStreamer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		s.overlap = true
	}
	s.running = false
	s.stops++
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
	failed []error
}

func (n *fakeNotifier) StreamStarted(source Source) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, "started:"+source.String())
}

func (n *fakeNotifier) StreamStopped(source Source) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, "stopped:"+source.String())
}

func (n *fakeNotifier) StreamFailed(source Source, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, err)
}

func (n *fakeNotifier) list() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

func newOpenArbiter() (*Arbiter, *fakeStreamer, *fakeNotifier) {
	s := &fakeStreamer{}
	n := &fakeNotifier{}
	a := New(s, n, zerolog.Nop())
	a.Open()
	return a, s, n
}

func TestArbiter_ManualStartStop(t *testing.T) {
	a, s, n := newOpenArbiter()

	started, err := a.RequestStart(SourceManual)
	require.NoError(t, err)
	assert.True(t, started)
	assert.True(t, a.Active())
	holder, ok := a.Holder()
	assert.True(t, ok)
	assert.Equal(t, SourceManual, holder)

	started, err = a.RequestStart(SourceManual)
	require.NoError(t, err)
	assert.False(t, started, "second start from same source is a no-op")

	assert.True(t, a.RequestStop(SourceManual))
	assert.False(t, a.RequestStop(SourceManual))
	assert.False(t, a.Active())
	_, ok = a.Holder()
	assert.False(t, ok)

	assert.Equal(t, []string{"started:manual", "stopped:manual"}, n.list())
	assert.Equal(t, 1, s.starts)
	assert.Equal(t, 1, s.stops)
}

func TestArbiter_ManualPrecedence(t *testing.T) {
	a, _, n := newOpenArbiter()

	_, err := a.RequestStart(SourceManual)
	require.NoError(t, err)

	started, err := a.RequestStart(SourceVox)
	require.NoError(t, err)
	assert.False(t, started)
	assert.False(t, a.RequestStop(SourceVox), "vox cannot stop a manual stream")
	assert.True(t, a.Active())

	assert.Equal(t, []string{"started:manual"}, n.list())
}

func TestArbiter_ManualTakesOverVox(t *testing.T) {
	a, s, n := newOpenArbiter()

	_, err := a.RequestStart(SourceVox)
	require.NoError(t, err)

	took, err := a.RequestStart(SourceManual)
	require.NoError(t, err)
	assert.True(t, took)
	holder, _ := a.Holder()
	assert.Equal(t, SourceManual, holder)

	// Silence from the gate no longer ends the stream
	assert.False(t, a.RequestStop(SourceVox))
	assert.True(t, a.RequestStop(SourceManual))

	assert.Equal(t, []string{"started:vox", "stopped:manual"}, n.list())
	assert.Equal(t, 1, s.starts)
}

func TestArbiter_ClosedIgnoresStart(t *testing.T) {
	s := &fakeStreamer{}
	n := &fakeNotifier{}
	a := New(s, n, zerolog.Nop())

	started, err := a.RequestStart(SourceManual)
	require.NoError(t, err)
	assert.False(t, started)
	assert.Empty(t, n.list())
}

func TestArbiter_CloseStopsActiveStream(t *testing.T) {
	a, _, n := newOpenArbiter()
	_, err := a.RequestStart(SourceVox)
	require.NoError(t, err)

	assert.True(t, a.Close())
	assert.False(t, a.Close())
	assert.False(t, a.Active())

	started, err := a.RequestStart(SourceManual)
	require.NoError(t, err)
	assert.False(t, started)
	assert.Equal(t, []string{"started:vox", "stopped:vox"}, n.list())
}

func TestArbiter_StartFailureStaysIdle(t *testing.T) {
	a, s, n := newOpenArbiter()
	s.startErr = errors.New("start_stream rejected")

	started, err := a.RequestStart(SourceManual)
	assert.Error(t, err)
	assert.False(t, started)
	assert.False(t, a.Active())
	assert.Empty(t, n.list())
	assert.Len(t, n.failed, 1)
}

func TestArbiter_StopEpochIgnoresStaleFault(t *testing.T) {
	a, s, n := newOpenArbiter()

	_, err := a.RequestStart(SourceManual)
	require.NoError(t, err)
	first := s.epochs[0]
	a.RequestStop(SourceManual)

	_, err = a.RequestStart(SourceVox)
	require.NoError(t, err)

	assert.False(t, a.StopEpoch(first), "fault from a finished stream is stale")
	assert.True(t, a.Active())
	assert.True(t, a.StopEpoch(s.epochs[1]))
	assert.False(t, a.Active())

	assert.Equal(t, []string{"started:manual", "stopped:manual", "started:vox", "stopped:vox"}, n.list())
}

func TestArbiter_ActiveEpochTracksActivation(t *testing.T) {
	a, s, _ := newOpenArbiter()

	_, ok := a.ActiveEpoch()
	assert.False(t, ok)

	_, err := a.RequestStart(SourceManual)
	require.NoError(t, err)
	epoch, ok := a.ActiveEpoch()
	require.True(t, ok)
	assert.Equal(t, s.epochs[0], epoch)

	// An ignored Vox request leaves the activation alone
	_, err = a.RequestStart(SourceVox)
	require.NoError(t, err)
	again, _ := a.ActiveEpoch()
	assert.Equal(t, epoch, again)

	a.RequestStop(SourceManual)
	_, ok = a.ActiveEpoch()
	assert.False(t, ok)
}

func TestArbiter_ForceStop(t *testing.T) {
	a, _, n := newOpenArbiter()
	assert.False(t, a.ForceStop())

	_, err := a.RequestStart(SourceVox)
	require.NoError(t, err)
	assert.True(t, a.ForceStop())
	assert.Equal(t, []string{"started:vox", "stopped:vox"}, n.list())
}

func TestArbiter_ConcurrentRequestsExactlyOnce(t *testing.T) {
	a, s, n := newOpenArbiter()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			r := rand.New(rand.NewSource(seed))
			for i := 0; i < 200; i++ {
				source := Source(r.Intn(2))
				if r.Intn(2) == 0 {
					_, _ = a.RequestStart(source)
				} else {
					a.RequestStop(source)
				}
			}
		}(int64(w))
	}
	wg.Wait()
	a.Close()

	events := n.list()
	require.NotEmpty(t, events)
	assert.False(t, s.overlap, "streamer saw overlapping start or stop")

	// Starts and stops strictly alternate
	for i, e := range events {
		if i%2 == 0 {
			assert.Contains(t, e, "started:", "event %d", i)
		} else {
			assert.Contains(t, e, "stopped:", "event %d", i)
		}
	}
	assert.Equal(t, 0, len(events)%2)
	assert.Equal(t, s.starts, s.stops)
	assert.Equal(t, len(events)/2, s.starts)
}
