// Package capture records microphone audio into WAV files ready for
// speech-to-text upload.
//
// Audio flows from a Source — anything that can emit raw s16le PCM frames —
// into a Recorder, which buffers the frames for the duration of a capture
// session and writes a single RIFF/WAVE file when the session stops. The
// default CommandSource shells out to a system recorder (sox's rec, or
// arecord) so no native audio bindings are required.
package capture

import (
	"context"
	"fmt"
	"io"
	"os/exec"
)

// Default capture format. Matches what the speech-to-text providers expect.
const (
	DefaultSampleRate = 44100
	DefaultChannels   = 1

	// frameSize is the size of each PCM chunk read from the source process,
	// roughly 50 ms of mono 44.1 kHz audio.
	frameSize = 4096
)

// Source produces a stream of raw signed 16-bit little-endian PCM frames.
type Source interface {
	// Start begins producing audio and returns a channel of PCM frames. The
	// channel is closed when ctx is cancelled or the underlying source ends.
	// Frame slices are owned by the receiver once delivered.
	Start(ctx context.Context) (<-chan []byte, error)
}

// CommandSource reads PCM from the stdout of an external recorder process.
type CommandSource struct {
	name string
	args []string
}

var _ Source = (*CommandSource)(nil)

// NewCommandSource builds a source around an explicit command line. The
// command must write raw s16le PCM to stdout until killed.
func NewCommandSource(name string, args ...string) *CommandSource {
	return &CommandSource{name: name, args: args}
}

// DetectSource probes the host for a usable recorder binary, preferring sox's
// rec over ALSA's arecord. Returns an error if neither is installed.
func DetectSource(sampleRate, channels int) (*CommandSource, error) {
	if _, err := exec.LookPath("rec"); err == nil {
		return NewCommandSource("rec",
			"-q",
			"-r", fmt.Sprint(sampleRate),
			"-c", fmt.Sprint(channels),
			"-b", "16",
			"-e", "signed-integer",
			"-t", "raw",
			"-",
		), nil
	}
	if _, err := exec.LookPath("arecord"); err == nil {
		return NewCommandSource("arecord",
			"-q",
			"-f", "S16_LE",
			"-r", fmt.Sprint(sampleRate),
			"-c", fmt.Sprint(channels),
			"-t", "raw",
		), nil
	}
	return nil, fmt.Errorf("capture: no recorder binary found (need rec or arecord)")
}

// Start spawns the recorder process and streams its stdout as PCM frames.
func (c *CommandSource) Start(ctx context.Context) (<-chan []byte, error) {
	cmd := exec.CommandContext(ctx, c.name, c.args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("capture: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("capture: start %s: %w", c.name, err)
	}

	frames := make(chan []byte, 16)
	go func() {
		defer close(frames)
		// Reap the process once stdout drains or ctx kills it.
		defer cmd.Wait()

		for {
			buf := make([]byte, frameSize)
			n, err := io.ReadFull(stdout, buf)
			if n > 0 {
				select {
				case frames <- buf[:n]:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()
	return frames, nil
}
