// Package record captures one utterance from the frame stream after a wake
// hit, using energy-based end-of-speech detection.
package record

import (
	"context"
	"errors"
	"time"

	"github.com/triolabs/wakepc/internal/audio"
)

// ErrNoSpeech is returned when the user never started speaking, or the
// stream ended before a single usable frame arrived.
var ErrNoSpeech = errors.New("no speech detected")

// ErrStreamEnded is returned when the frame stream closed or stalled before
// speech completed.
var ErrStreamEnded = errors.New("audio stream ended during recording")

// Utterance is the captured audio for one user request. Owned exclusively
// by the orchestrator until handed to the hub, then discarded.
type Utterance struct {
	WAV        []byte
	SampleRate int
	Channels   int
	Duration   time.Duration
}

// Options tune one Record call.
type Options struct {
	// MaxDuration is the absolute ceiling on the recording. Record returns
	// within MaxDuration plus about one frame, no matter what the energy
	// state is.
	MaxDuration time.Duration
	// SilenceHold is how long energy must stay below EnergyFloor before the
	// utterance is considered finished.
	SilenceHold time.Duration
	// EnergyFloor is the normalized RMS level separating speech from
	// silence.
	EnergyFloor float64
	// NoSpeechTimeout aborts the call when speech never starts. Zero
	// disables the check and only MaxDuration bounds the call.
	NoSpeechTimeout time.Duration
}

// Speech onset needs ~60ms above the floor so a single noise spike does not
// start a recording.
const speechConfirm = 60 * time.Millisecond

// Record accumulates frames until sustained silence or the duration
// ceiling. Frames are consumed from the very first one delivered, so no
// leading audio is lost between wake hit and recorder start.
//
// Trailing silence is excluded from the returned utterance: the buffer is
// truncated at the last voiced sample before the silence run that ended
// the recording.
func Record(ctx context.Context, frames <-chan audio.Frame, opts Options) (Utterance, error) {
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 12 * time.Second
	}
	if opts.SilenceHold <= 0 {
		opts.SilenceHold = 900 * time.Millisecond
	}
	if opts.EnergyFloor <= 0 {
		opts.EnergyFloor = 0.01
	}

	// Hard wall-clock ceiling. The elapsed accounting below is driven by
	// frame durations; this timer guarantees forward progress even when
	// the stream stalls mid-recording.
	deadline := time.NewTimer(opts.MaxDuration + 500*time.Millisecond)
	defer deadline.Stop()

	var (
		buf           []int16
		sampleRate    int
		elapsed       time.Duration
		confirmed     time.Duration // consecutive above-floor time pre-speech
		speechStarted bool
		voicedEnd     int           // buffer length at the last voiced frame
		silentSpan    time.Duration // continuous silence since voicedEnd
	)

	finish := func(cut int) (Utterance, error) {
		if !speechStarted || cut == 0 {
			return Utterance{}, ErrNoSpeech
		}
		pcm := buf[:cut]
		return Utterance{
			WAV:        audio.EncodeWAV(pcm, sampleRate),
			SampleRate: sampleRate,
			Channels:   1,
			Duration:   time.Duration(cut) * time.Second / time.Duration(sampleRate),
		}, nil
	}

	for {
		select {
		case <-ctx.Done():
			return Utterance{}, ctx.Err()

		case <-deadline.C:
			return finish(len(buf))

		case f, ok := <-frames:
			if !ok {
				if speechStarted {
					return finish(voicedEnd)
				}
				return Utterance{}, ErrStreamEnded
			}
			if len(f.PCM) == 0 {
				continue
			}
			sampleRate = f.SampleRate
			frameDur := f.Duration()
			elapsed += frameDur
			buf = append(buf, f.PCM...)

			level := audio.RMS(f.PCM)

			if !speechStarted {
				if level >= opts.EnergyFloor {
					confirmed += frameDur
					if confirmed >= speechConfirm {
						speechStarted = true
						voicedEnd = len(buf)
						silentSpan = 0
					}
				} else {
					confirmed = 0
				}
				if opts.NoSpeechTimeout > 0 && elapsed >= opts.NoSpeechTimeout {
					return Utterance{}, ErrNoSpeech
				}
			} else {
				// Small hysteresis: a level a bit under the floor still
				// counts as voiced so soft word endings are kept.
				if level >= opts.EnergyFloor*0.7 {
					voicedEnd = len(buf)
					silentSpan = 0
				} else {
					silentSpan += frameDur
					if silentSpan >= opts.SilenceHold {
						return finish(voicedEnd)
					}
				}
			}

			if elapsed >= opts.MaxDuration {
				return finish(len(buf))
			}
		}
	}
}
