package interview

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
)

// ErrNoPlayer is returned when no audio playback command is available on the
// host. Callers should treat this as a soft failure and continue without
// playback.
var ErrNoPlayer = errors.New("interview: no audio player available")

// Player plays synthesized reply audio through the host's speakers using
// whatever playback command the platform offers.
type Player struct {
	command func(ctx context.Context, path string) *exec.Cmd
}

// NewPlayer probes the host for a playback command. The returned Player is
// never nil; when nothing is available Play returns ErrNoPlayer.
func NewPlayer() *Player {
	p := &Player{}
	switch runtime.GOOS {
	case "darwin":
		p.command = func(ctx context.Context, path string) *exec.Cmd {
			return exec.CommandContext(ctx, "afplay", path)
		}
	case "linux":
		// sox's play handles both WAV and MP3; aplay is WAV-only but better
		// than nothing.
		if _, err := exec.LookPath("play"); err == nil {
			p.command = func(ctx context.Context, path string) *exec.Cmd {
				return exec.CommandContext(ctx, "play", "-q", path)
			}
		} else if _, err := exec.LookPath("aplay"); err == nil {
			p.command = func(ctx context.Context, path string) *exec.Cmd {
				return exec.CommandContext(ctx, "aplay", "-q", path)
			}
		}
	case "windows":
		p.command = func(ctx context.Context, path string) *exec.Cmd {
			return exec.CommandContext(ctx, "powershell", "-c",
				fmt.Sprintf("(New-Object Media.SoundPlayer '%s').PlaySync()", path))
		}
	}
	return p
}

// Available reports whether a playback command was found.
func (p *Player) Available() bool {
	return p.command != nil
}

// Play blocks until the file has finished playing or ctx is cancelled.
func (p *Player) Play(ctx context.Context, path string) error {
	if p.command == nil {
		return ErrNoPlayer
	}
	if err := p.command(ctx, path).Run(); err != nil {
		return fmt.Errorf("interview: play %s: %w", path, err)
	}
	return nil
}
