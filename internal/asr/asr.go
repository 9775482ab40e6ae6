// Package asr provides transcriber capabilities for the wake detector. The
// detector itself has no acoustic model; it is handed one of these.
package asr

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/triolabs/wakepc/internal/audio"
)

// Transcriber matches wake.Transcriber; redeclared here to avoid the
// import cycle.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []int16, sampleRate int) (string, error)
}

// Whisper transcribes short utterances with a local whisper-cli process.
// This keeps wake evaluation off the network.
type Whisper struct {
	ModelPath string
}

// NewWhisper verifies the binary and model are present.
func NewWhisper(modelPath string) (*Whisper, error) {
	if _, err := exec.LookPath("whisper-cli"); err != nil {
		return nil, fmt.Errorf("whisper-cli not found in PATH")
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("whisper model not found at %s", modelPath)
	}
	return &Whisper{ModelPath: modelPath}, nil
}

// Transcribe writes the samples to a temp WAV and runs whisper-cli over it.
func (w *Whisper) Transcribe(ctx context.Context, pcm []int16, sampleRate int) (string, error) {
	tmp, err := os.CreateTemp("", "wakepc-asr-*.wav")
	if err != nil {
		return "", fmt.Errorf("temp wav: %w", err)
	}
	path := tmp.Name()
	defer os.Remove(path)

	if _, err := tmp.Write(audio.EncodeWAV(pcm, sampleRate)); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write wav: %w", err)
	}
	tmp.Close()

	out, err := exec.CommandContext(ctx, "whisper-cli",
		"-m", w.ModelPath, "-nt", "-np", "-f", path).Output()
	if err != nil {
		return "", fmt.Errorf("whisper-cli: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// HubSTT adapts a hub speech-to-text callable into a Transcriber, for
// setups without a local model. Every wake candidate costs a round trip.
type HubSTT struct {
	STT func(ctx context.Context, wav []byte) (string, error)
}

// Transcribe encodes the samples as WAV and ships them to the hub.
func (h *HubSTT) Transcribe(ctx context.Context, pcm []int16, sampleRate int) (string, error) {
	return h.STT(ctx, audio.EncodeWAV(pcm, sampleRate))
}
