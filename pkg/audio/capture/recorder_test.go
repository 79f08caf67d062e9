package capture

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// stubSource emits a fixed set of PCM frames and then closes its channel.
type stubSource struct {
	frames [][]byte
	err    error
}

func (s *stubSource) Start(ctx context.Context) (<-chan []byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make(chan []byte, len(s.frames))
	for _, f := range s.frames {
		out <- f
	}
	close(out)
	return out, nil
}

// queueSource hands out one caller-controlled frame channel per Start call,
// letting tests feed and close each session's stream on their own schedule.
type queueSource struct {
	chans []chan []byte
	next  int
}

func (s *queueSource) Start(ctx context.Context) (<-chan []byte, error) {
	ch := s.chans[s.next]
	s.next++
	return ch, nil
}

func waitForFrames(t *testing.T, r *Recorder, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		sess := r.cur
		r.mu.Unlock()
		got := 0
		if sess != nil {
			sess.mu.Lock()
			got = len(sess.frames)
			sess.mu.Unlock()
		}
		if got >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d frames", want)
}

func TestStopWithoutStart(t *testing.T) {
	r := NewRecorder(&stubSource{})
	if _, err := r.Stop(filepath.Join(t.TempDir(), "out.wav")); !errors.Is(err, ErrNothingRecorded) {
		t.Fatalf("Stop without Start: got %v, want ErrNothingRecorded", err)
	}
}

func TestStopWithZeroFrames(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.wav")

	r := NewRecorder(&stubSource{})
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := r.Stop(path); !errors.Is(err, ErrNothingRecorded) {
		t.Fatalf("Stop with zero frames: got %v, want ErrNothingRecorded", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("empty session must not write a file, stat: %v", err)
	}
}

func TestStartWhileRunning(t *testing.T) {
	r := NewRecorder(&stubSource{frames: [][]byte{{1, 2}}})
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Start(context.Background()); err == nil {
		t.Fatal("second Start should fail while recording")
	}
	r.Abort()
}

func TestRecordWritesWAV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "turn.wav")

	frames := [][]byte{{0x01, 0x02, 0x03, 0x04}, {0x05, 0x06}}
	r := NewRecorder(&stubSource{frames: frames}, WithSampleRate(44100), WithChannels(1))

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForFrames(t, r, len(frames))

	got, err := r.Stop(path)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got != path {
		t.Fatalf("Stop returned %q, want %q", got, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read wav: %v", err)
	}
	if len(data) != 44+6 {
		t.Fatalf("wav size = %d, want %d", len(data), 44+6)
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Fatalf("bad RIFF header: %q %q", data[0:4], data[8:12])
	}
	if rate := binary.LittleEndian.Uint32(data[24:28]); rate != 44100 {
		t.Fatalf("sample rate = %d, want 44100", rate)
	}
	if ch := binary.LittleEndian.Uint16(data[22:24]); ch != 1 {
		t.Fatalf("channels = %d, want 1", ch)
	}
	if dataSize := binary.LittleEndian.Uint32(data[40:44]); dataSize != 6 {
		t.Fatalf("data size = %d, want 6", dataSize)
	}
	want := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}
	for i, b := range data[44:] {
		if b != want[i] {
			t.Fatalf("pcm[%d] = %#x, want %#x", i, b, want[i])
		}
	}
}

func TestAbortDiscardsAudio(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.wav")

	r := NewRecorder(&stubSource{frames: [][]byte{{1, 2, 3, 4}}})
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForFrames(t, r, 1)
	r.Abort()

	if _, err := r.Stop(path); !errors.Is(err, ErrNothingRecorded) {
		t.Fatalf("Stop after Abort: got %v, want ErrNothingRecorded", err)
	}
	if r.Recording() {
		t.Fatal("Recording() should be false after Abort")
	}
}

func TestInterleavedSessionsKeepSeparateBuffers(t *testing.T) {
	dir := t.TempDir()
	ch1 := make(chan []byte, 4)
	ch2 := make(chan []byte, 4)
	r := NewRecorder(&queueSource{chans: []chan []byte{ch1, ch2}})

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start first session: %v", err)
	}
	ch1 <- []byte{0xAA, 0xAA}
	waitForFrames(t, r, 1)

	// Stop the first session while its stream is still open so the drain
	// goroutine outlives the second Start.
	path1 := filepath.Join(dir, "one.wav")
	var got1 string
	var stopErr error
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		got1, stopErr = r.Stop(path1)
	}()

	waitUntil := time.Now().Add(2 * time.Second)
	for r.Recording() {
		if time.Now().After(waitUntil) {
			t.Fatal("timed out waiting for Stop to detach the first session")
		}
		time.Sleep(time.Millisecond)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start second session: %v", err)
	}

	ch2 <- []byte{0xCC, 0xCC}
	ch1 <- []byte{0xBB, 0xBB}
	close(ch1)
	<-stopped
	if stopErr != nil {
		t.Fatalf("Stop first session: %v", stopErr)
	}

	data1, err := os.ReadFile(got1)
	if err != nil {
		t.Fatalf("read first wav: %v", err)
	}
	if want := []byte{0xAA, 0xAA, 0xBB, 0xBB}; !bytes.Equal(data1[44:], want) {
		t.Fatalf("first session pcm = %#x, want %#x", data1[44:], want)
	}

	waitForFrames(t, r, 1)
	close(ch2)
	path2 := filepath.Join(dir, "two.wav")
	got2, err := r.Stop(path2)
	if err != nil {
		t.Fatalf("Stop second session: %v", err)
	}
	data2, err := os.ReadFile(got2)
	if err != nil {
		t.Fatalf("read second wav: %v", err)
	}
	if want := []byte{0xCC, 0xCC}; !bytes.Equal(data2[44:], want) {
		t.Fatalf("second session pcm = %#x, want %#x", data2[44:], want)
	}
}

func TestStartSourceError(t *testing.T) {
	srcErr := errors.New("device busy")
	r := NewRecorder(&stubSource{err: srcErr})
	if err := r.Start(context.Background()); !errors.Is(err, srcErr) {
		t.Fatalf("Start: got %v, want %v", err, srcErr)
	}
	if r.Recording() {
		t.Fatal("Recording() should be false after failed Start")
	}
}
