package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNothingRecorded is returned by Stop when no capture session is active or
// when the session produced zero audio frames. No file is written in either
// case.
var ErrNothingRecorded = errors.New("capture: nothing recorded")

// Option configures a Recorder.
type Option func(*Recorder)

// WithSampleRate overrides the default capture sample rate.
func WithSampleRate(rate int) Option {
	return func(r *Recorder) { r.sampleRate = rate }
}

// WithChannels overrides the default channel count.
func WithChannels(channels int) Option {
	return func(r *Recorder) { r.channels = channels }
}

// session holds the state of a single capture run. Each Start creates a fresh
// session with its own frame buffer, so a Stop that is still joining its drain
// goroutine can never observe frames belonging to a later session.
type session struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	frames [][]byte
}

func (s *session) append(frame []byte) {
	s.mu.Lock()
	s.frames = append(s.frames, frame)
	s.mu.Unlock()
}

// take returns the buffered frames. Call only after the drain goroutine has
// exited.
func (s *session) take() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	frames := s.frames
	s.frames = nil
	return frames
}

// Recorder manages one microphone capture session at a time: Start begins
// draining the source into memory, Stop finalizes the session into a WAV file.
// Safe for concurrent use.
type Recorder struct {
	source     Source
	sampleRate int
	channels   int

	mu  sync.Mutex
	cur *session
}

// NewRecorder creates a Recorder reading from source.
func NewRecorder(source Source, opts ...Option) *Recorder {
	r := &Recorder{
		source:     source,
		sampleRate: DefaultSampleRate,
		channels:   DefaultChannels,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Recording reports whether a capture session is currently active.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cur != nil
}

// Start begins a capture session. Starting while a session is already active
// is an error; the active session keeps running.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cur != nil {
		return fmt.Errorf("capture: recording already in progress")
	}

	ctx, cancel := context.WithCancel(ctx)
	frames, err := r.source.Start(ctx)
	if err != nil {
		cancel()
		return err
	}

	sess := &session{cancel: cancel, done: make(chan struct{})}
	r.cur = sess

	go func() {
		defer close(sess.done)
		for frame := range frames {
			sess.append(frame)
		}
	}()

	return nil
}

// detach removes and returns the active session, or nil when none is running.
// Once detached, the session is no longer reachable from the Recorder and a
// concurrent Start gets an independent session.
func (r *Recorder) detach() *session {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess := r.cur
	r.cur = nil
	return sess
}

// Stop ends the capture session, writes the buffered audio to path as a
// 16-bit PCM WAV file and returns the path. Returns ErrNothingRecorded when
// no session was started or no audio arrived before Stop.
func (r *Recorder) Stop(path string) (string, error) {
	sess := r.detach()
	if sess == nil {
		return "", ErrNothingRecorded
	}

	sess.cancel()
	<-sess.done

	frames := sess.take()
	if len(frames) == 0 {
		return "", ErrNothingRecorded
	}

	total := 0
	for _, f := range frames {
		total += len(f)
	}
	pcm := make([]byte, 0, total)
	for _, f := range frames {
		pcm = append(pcm, f...)
	}

	if err := writeWAV(path, pcm, r.sampleRate, r.channels); err != nil {
		return "", err
	}
	return path, nil
}

// Abort ends the capture session and discards any buffered audio.
func (r *Recorder) Abort() {
	sess := r.detach()
	if sess == nil {
		return
	}
	sess.cancel()
	<-sess.done
}
