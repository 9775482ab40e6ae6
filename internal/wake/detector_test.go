package wake

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/triolabs/wakepc/internal/audio"
	"github.com/triolabs/wakepc/internal/config"
)

type scriptedTranscriber struct {
	text  string
	err   error
	calls int
}

func (s *scriptedTranscriber) Transcribe(_ context.Context, _ []int16, _ int) (string, error) {
	s.calls++
	return s.text, s.err
}

func wakeConfig(words ...config.WakeWordSpec) config.WakeConfig {
	return config.WakeConfig{CooldownMs: 2000, Words: words}
}

func word(keyword string, threshold float64) config.WakeWordSpec {
	return config.WakeWordSpec{Keyword: keyword, Label: keyword, Threshold: threshold, PersonaMode: keyword, Color: "#FFFFFF"}
}

// testDetector builds an armed detector with the noise gate pre-calibrated
// so frames reach the VAD immediately.
func testDetector(t *testing.T, tr Transcriber, words ...config.WakeWordSpec) *Detector {
	t.Helper()
	d, err := NewDetector(wakeConfig(words...), tr)
	if err != nil {
		t.Fatalf("NewDetector: %v", err)
	}
	d.gate.calibrated = true
	d.gate.floor = 0.005
	d.SetArmed(true)
	return d
}

// toneFrame builds one 20ms mono frame at 16kHz with a flat amplitude.
func toneFrame(amp int16) audio.Frame {
	pcm := make([]int16, 320)
	for i := range pcm {
		pcm[i] = amp
	}
	return audio.Frame{PCM: pcm, SampleRate: 16000, Time: time.Now()}
}

// speakUtterance pushes a short burst of loud frames followed by enough
// silence to close the candidate utterance, returning the hit if any.
func speakUtterance(d *Detector) *Hit {
	ctx := context.Background()
	var hit *Hit
	for i := 0; i < 20; i++ {
		if h := d.feed(ctx, toneFrame(3000)); h != nil {
			hit = h
		}
	}
	for i := 0; i < 35; i++ {
		if h := d.feed(ctx, toneFrame(0)); h != nil {
			hit = h
		}
	}
	return hit
}

func TestDetector_HitOnKeyword(t *testing.T) {
	tr := &scriptedTranscriber{text: "Penny"}
	d := testDetector(t, tr, word("penny", 0.8))

	hit := speakUtterance(d)
	if hit == nil {
		t.Fatal("expected a wake hit")
	}
	if hit.Keyword != "penny" {
		t.Errorf("hit keyword = %q, want %q", hit.Keyword, "penny")
	}
	if hit.Confidence != confExact {
		t.Errorf("hit confidence = %v, want %v", hit.Confidence, confExact)
	}
	if tr.calls != 1 {
		t.Errorf("transcriber called %d times, want 1", tr.calls)
	}
}

func TestDetector_NoHitOnOrdinarySpeech(t *testing.T) {
	tr := &scriptedTranscriber{text: "what time is it"}
	d := testDetector(t, tr, word("penny", 0.8))

	if hit := speakUtterance(d); hit != nil {
		t.Fatalf("unexpected hit %+v for ordinary speech", hit)
	}
}

func TestDetector_FourKeywordsLoadInOrder(t *testing.T) {
	d := testDetector(t, &scriptedTranscriber{},
		word("penny", 0.8), word("sheldon", 0.8), word("leonard", 0.8), word("everyone", 0.8))

	got := d.ActiveKeywords()
	want := []string{"penny", "sheldon", "leonard", "everyone"}
	if len(got) != len(want) {
		t.Fatalf("ActiveKeywords() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("keyword[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDetector_EachKeywordBindsItsPersona(t *testing.T) {
	specs := []config.WakeWordSpec{
		{Keyword: "penny", Label: "Penny", Threshold: 0.8, PersonaMode: "penny", Color: "#FF6B9D"},
		{Keyword: "sheldon", Label: "Sheldon", Threshold: 0.7, PersonaMode: "sheldon", Color: "#4ECDC4"},
		{Keyword: "leonard", Label: "Leonard", Threshold: 0.9, PersonaMode: "leonard", Color: "#95E1D3"},
		{Keyword: "everyone", Label: "Everyone", Threshold: 0.8, PersonaMode: "collective", Color: "#FFFFFF"},
	}
	for _, spec := range specs {
		tr := &scriptedTranscriber{text: spec.Keyword}
		d := testDetector(t, tr, specs...)

		hit := speakUtterance(d)
		if hit == nil {
			t.Fatalf("no hit for keyword %q", spec.Keyword)
		}
		if hit.Keyword != spec.Keyword || hit.PersonaMode != spec.PersonaMode || hit.Color != spec.Color {
			t.Errorf("hit = %+v, want keyword %q bound to persona %q", hit, spec.Keyword, spec.PersonaMode)
		}
	}
}

func TestDetector_DegradedInit(t *testing.T) {
	cfg := wakeConfig(word("penny", 0.8), word("!!!", 0.8))
	d, err := NewDetector(cfg, &scriptedTranscriber{})
	if err != nil {
		t.Fatalf("NewDetector with one bad spec: %v", err)
	}
	if got := d.ActiveKeywords(); len(got) != 1 || got[0] != "penny" {
		t.Errorf("ActiveKeywords() = %v, want [penny]", got)
	}
}

func TestDetector_AllSpecsBadIsError(t *testing.T) {
	if _, err := NewDetector(wakeConfig(word("!!!", 0.8)), &scriptedTranscriber{}); err == nil {
		t.Fatal("expected error when no wake word loads")
	}
}

func TestDetector_DeclarationOrderWins(t *testing.T) {
	// "penny" fuzzy-matches "penne" at 0.6, and both thresholds admit it.
	// Whichever spotter is declared first takes the hit.
	tr := &scriptedTranscriber{text: "penny"}

	d := testDetector(t, tr, word("penny", 0.5), word("penne", 0.5))
	hit := speakUtterance(d)
	if hit == nil || hit.Keyword != "penny" {
		t.Fatalf("hit = %+v, want keyword penny", hit)
	}

	tr2 := &scriptedTranscriber{text: "penny"}
	d2 := testDetector(t, tr2, word("penne", 0.5), word("penny", 0.5))
	hit2 := speakUtterance(d2)
	if hit2 == nil || hit2.Keyword != "penne" {
		t.Fatalf("hit = %+v, want keyword penne declared first", hit2)
	}
}

func TestDetector_CooldownSuppressesRepeat(t *testing.T) {
	tr := &scriptedTranscriber{text: "penny"}
	d := testDetector(t, tr, word("penny", 0.8))

	clock := time.Unix(1000, 0)
	d.now = func() time.Time { return clock }

	if hit := speakUtterance(d); hit == nil {
		t.Fatal("expected first hit")
	}

	clock = clock.Add(500 * time.Millisecond)
	if hit := speakUtterance(d); hit != nil {
		t.Fatalf("hit %+v inside the cooldown window", hit)
	}
	if tr.calls != 1 {
		t.Errorf("transcriber called %d times, want 1 (cooldown skips transcription)", tr.calls)
	}

	clock = clock.Add(2 * time.Second)
	if hit := speakUtterance(d); hit == nil {
		t.Fatal("expected a hit after the cooldown elapsed")
	}
}

func TestDetector_DisarmedDropsWithoutTranscribing(t *testing.T) {
	tr := &scriptedTranscriber{text: "penny"}
	d := testDetector(t, tr, word("penny", 0.8))
	d.SetArmed(false)

	if hit := speakUtterance(d); hit != nil {
		t.Fatalf("hit %+v while disarmed", hit)
	}
	if tr.calls != 0 {
		t.Errorf("transcriber called %d times while disarmed, want 0", tr.calls)
	}

	d.SetArmed(true)
	if hit := speakUtterance(d); hit == nil {
		t.Fatal("expected a hit after re-arming")
	}
}

func TestDetector_TranscribeErrorIsSwallowed(t *testing.T) {
	tr := &scriptedTranscriber{err: errors.New("model not loaded")}
	d := testDetector(t, tr, word("penny", 0.8))

	if hit := speakUtterance(d); hit != nil {
		t.Fatalf("hit %+v despite transcribe failure", hit)
	}
}

func TestDetector_TooLongUtteranceDiscarded(t *testing.T) {
	tr := &scriptedTranscriber{text: "penny"}
	d := testDetector(t, tr, word("penny", 0.8))

	ctx := context.Background()
	// 2.4s of continuous speech overruns the wake utterance ceiling.
	for i := 0; i < 120; i++ {
		d.feed(ctx, toneFrame(3000))
	}
	for i := 0; i < 35; i++ {
		if hit := d.feed(ctx, toneFrame(0)); hit != nil {
			t.Fatalf("hit %+v for an over-long utterance", hit)
		}
	}
	if tr.calls != 0 {
		t.Errorf("transcriber called %d times for over-long speech, want 0", tr.calls)
	}
}

func TestDetector_RunDeliversHits(t *testing.T) {
	tr := &scriptedTranscriber{text: "penny"}
	d := testDetector(t, tr, word("penny", 0.8))

	frames := make(chan audio.Frame, 64)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		d.Run(ctx, frames)
		close(done)
	}()

	for i := 0; i < 20; i++ {
		frames <- toneFrame(3000)
	}
	for i := 0; i < 35; i++ {
		frames <- toneFrame(0)
	}

	select {
	case hit := <-d.Hits():
		if hit.Keyword != "penny" {
			t.Errorf("hit keyword = %q, want penny", hit.Keyword)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a hit")
	}

	close(frames)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after the stream closed")
	}
}
