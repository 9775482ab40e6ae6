// Package playback plays synthesized speech through the local output
// device by shelling out to a platform player, the same way capture shells
// out to a platform recorder.
package playback

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/triolabs/wakepc/internal/logging"
)

// Player plays encoded audio buffers. Safe for reuse across cycles; calls
// are expected to be serialized by the orchestrator.
type Player struct {
	log logging.Logger
}

// NewPlayer returns a Player using whatever playback tool the platform has.
func NewPlayer() *Player {
	return &Player{log: logging.Tagged("playback")}
}

// Play writes the buffer to a temp file and plays it, blocking until the
// clip finishes or ctx is cancelled. format is "wav" or "mp3".
func (p *Player) Play(ctx context.Context, data []byte, format string) error {
	if len(data) == 0 {
		return nil
	}
	if format != "wav" && format != "mp3" {
		format = "wav"
	}

	path := filepath.Join(os.TempDir(), fmt.Sprintf("wakepc_tts_%d.%s", time.Now().UnixNano(), format))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write tts file: %w", err)
	}
	defer os.Remove(path)

	cmd, err := playerCommand(ctx, path, format)
	if err != nil {
		return err
	}
	p.log.Infof("playing %d bytes (%s) via %s", len(data), format, cmd.Path)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("player exited: %w", err)
	}
	return nil
}

func playerCommand(ctx context.Context, path, format string) (*exec.Cmd, error) {
	switch runtime.GOOS {
	case "darwin":
		if _, err := exec.LookPath("afplay"); err == nil {
			return exec.CommandContext(ctx, "afplay", path), nil
		}

	case "linux":
		if format == "wav" {
			if _, err := exec.LookPath("aplay"); err == nil {
				return exec.CommandContext(ctx, "aplay", "-q", path), nil
			}
		}
		if format == "mp3" {
			if _, err := exec.LookPath("mpg123"); err == nil {
				return exec.CommandContext(ctx, "mpg123", "-q", path), nil
			}
		}
	}

	// ffplay handles both formats on every platform.
	if _, err := exec.LookPath("ffplay"); err == nil {
		return exec.CommandContext(ctx, "ffplay",
			"-hide_banner", "-loglevel", "error",
			"-nodisp", "-autoexit", path), nil
	}
	return nil, fmt.Errorf("no playback tool found for %s audio", format)
}
