package record

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/triolabs/wakepc/internal/audio"
)

func frame(amp int16) audio.Frame {
	pcm := make([]int16, 320) // 20ms at 16kHz
	for i := range pcm {
		pcm[i] = amp
	}
	return audio.Frame{PCM: pcm, SampleRate: 16000, Time: time.Now()}
}

func feed(ch chan<- audio.Frame, amp int16, n int) {
	for i := 0; i < n; i++ {
		ch <- frame(amp)
	}
}

func testOptions() Options {
	return Options{
		MaxDuration:     2 * time.Second,
		SilenceHold:     300 * time.Millisecond,
		EnergyFloor:     0.01,
		NoSpeechTimeout: 500 * time.Millisecond,
	}
}

func TestRecord_SilenceEndsUtterance(t *testing.T) {
	frames := make(chan audio.Frame, 256)
	// 400ms of speech, then enough silence to trip the hold.
	feed(frames, 2000, 20)
	feed(frames, 0, 20)

	utt, err := Record(context.Background(), frames, testOptions())
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if utt.SampleRate != 16000 || utt.Channels != 1 {
		t.Errorf("got %dHz/%dch, want 16000Hz/1ch", utt.SampleRate, utt.Channels)
	}

	// Trailing silence must be cut: the utterance holds the 20 voiced
	// frames only, not the silent run that ended it.
	pcm, rate, err := audio.DecodeWAV(utt.WAV)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if rate != 16000 {
		t.Errorf("decoded rate = %d, want 16000", rate)
	}
	if want := 20 * 320; len(pcm) != want {
		t.Errorf("decoded %d samples, want %d (trailing silence excluded)", len(pcm), want)
	}
	if want := 400 * time.Millisecond; utt.Duration != want {
		t.Errorf("duration = %v, want %v", utt.Duration, want)
	}
}

func TestRecord_NoSpeechTimesOut(t *testing.T) {
	frames := make(chan audio.Frame, 256)
	feed(frames, 0, 60) // 1.2s of silence

	_, err := Record(context.Background(), frames, testOptions())
	if !errors.Is(err, ErrNoSpeech) {
		t.Fatalf("err = %v, want ErrNoSpeech", err)
	}
}

func TestRecord_MaxDurationBounds(t *testing.T) {
	frames := make(chan audio.Frame, 256)
	feed(frames, 2000, 200) // 4s of nonstop speech

	opts := testOptions()
	utt, err := Record(context.Background(), frames, opts)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	// At the ceiling the full buffer is returned, about MaxDuration long.
	if utt.Duration < opts.MaxDuration || utt.Duration > opts.MaxDuration+100*time.Millisecond {
		t.Errorf("duration = %v, want about %v", utt.Duration, opts.MaxDuration)
	}
}

func TestRecord_SingleSpikeDoesNotStartSpeech(t *testing.T) {
	frames := make(chan audio.Frame, 256)
	feed(frames, 0, 5)
	feed(frames, 2000, 1) // 20ms spike, under the 60ms confirm window
	feed(frames, 0, 60)

	_, err := Record(context.Background(), frames, testOptions())
	if !errors.Is(err, ErrNoSpeech) {
		t.Fatalf("err = %v, want ErrNoSpeech after a lone spike", err)
	}
}

func TestRecord_StreamCloseMidSpeechKeepsVoicedAudio(t *testing.T) {
	frames := make(chan audio.Frame, 256)
	feed(frames, 2000, 15)
	close(frames)

	utt, err := Record(context.Background(), frames, testOptions())
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	pcm, _, err := audio.DecodeWAV(utt.WAV)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if want := 15 * 320; len(pcm) != want {
		t.Errorf("decoded %d samples, want %d", len(pcm), want)
	}
}

func TestRecord_StreamCloseBeforeSpeech(t *testing.T) {
	frames := make(chan audio.Frame, 8)
	feed(frames, 0, 3)
	close(frames)

	_, err := Record(context.Background(), frames, testOptions())
	if !errors.Is(err, ErrStreamEnded) {
		t.Fatalf("err = %v, want ErrStreamEnded", err)
	}
}

func TestRecord_ContextCancel(t *testing.T) {
	frames := make(chan audio.Frame)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Record(ctx, frames, testOptions())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestRecord_SoftEndingsKept(t *testing.T) {
	frames := make(chan audio.Frame, 256)
	feed(frames, 2000, 10)
	// Just under the floor but above the 0.7x hysteresis band: still voiced.
	feed(frames, 260, 5)
	feed(frames, 0, 20)

	utt, err := Record(context.Background(), frames, testOptions())
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	pcm, _, err := audio.DecodeWAV(utt.WAV)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if want := 15 * 320; len(pcm) != want {
		t.Errorf("decoded %d samples, want %d (soft tail kept)", len(pcm), want)
	}
}
