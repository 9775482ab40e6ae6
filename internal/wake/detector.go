package wake

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/triolabs/wakepc/internal/audio"
	"github.com/triolabs/wakepc/internal/config"
	"github.com/triolabs/wakepc/internal/logging"
)

const (
	// Wake utterances are short. Anything longer than maxUtterance is
	// ordinary speech and is discarded without transcription.
	minUtterance = 300 * time.Millisecond
	maxUtterance = 2 * time.Second
	// Quiet frames ending a candidate utterance (~300ms at 20ms frames).
	endSilenceFrames = 15
)

// Detector watches the frame stream for the configured wake words.
//
// All spotters share one front-end: an energy VAD accumulates short
// candidate utterances, the Transcriber capability turns them into text,
// and each spotter scores the text against its own keyword and threshold.
// The first spotter in declaration order to cross its threshold wins, which
// makes simultaneous hits resolve deterministically.
type Detector struct {
	spotters []*spotter
	tr       Transcriber
	cooldown time.Duration
	log      logging.Logger

	armed atomic.Bool
	hits  chan Hit

	vad  *energyVAD
	gate *noiseGate

	buf      []int16
	inSpeech bool
	overrun  bool
	silence  int
	lastHit  time.Time

	now func() time.Time
}

// NewDetector builds a Detector from wake word specs. A spec that fails
// validation is dropped with a log line; the remaining keywords stay
// active. Only a fully empty set is an error.
func NewDetector(cfg config.WakeConfig, tr Transcriber) (*Detector, error) {
	log := logging.Tagged("wake")

	var spotters []*spotter
	for _, spec := range cfg.Words {
		sp, err := newSpotter(spec)
		if err != nil {
			log.Warnf("wake word %q disabled: %v", spec.Keyword, err)
			continue
		}
		spotters = append(spotters, sp)
	}
	if len(spotters) == 0 {
		return nil, fmt.Errorf("no usable wake words configured")
	}

	cooldown := time.Duration(cfg.CooldownMs) * time.Millisecond
	return &Detector{
		spotters: spotters,
		tr:       tr,
		cooldown: cooldown,
		log:      log,
		hits:     make(chan Hit, 4),
		vad:      newEnergyVAD(),
		gate:     newNoiseGate(),
		now:      time.Now,
	}, nil
}

// ActiveKeywords returns the keywords that loaded successfully, in
// declaration order.
func (d *Detector) ActiveKeywords() []string {
	out := make([]string, len(d.spotters))
	for i, sp := range d.spotters {
		out[i] = sp.spec.Keyword
	}
	return out
}

// SetArmed controls the busy-suppression gate. While disarmed, candidate
// utterances are discarded at the detector boundary: no transcription runs
// and no hit is emitted.
func (d *Detector) SetArmed(armed bool) {
	d.armed.Store(armed)
}

// Hits returns the channel of accepted wake hits.
func (d *Detector) Hits() <-chan Hit {
	return d.hits
}

// Run consumes the frame stream until the context ends or the stream
// closes. Accepted hits are delivered on Hits().
func (d *Detector) Run(ctx context.Context, frames <-chan audio.Frame) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			if hit := d.feed(ctx, f); hit != nil {
				select {
				case d.hits <- *hit:
				default:
					// Orchestrator is behind; the hit is stale by now.
				}
			}
		}
	}
}

// feed processes one frame and returns a hit when a wake word completed in
// this frame. Single-threaded with respect to Run.
func (d *Detector) feed(ctx context.Context, f audio.Frame) *Hit {
	// Let the gate calibrate the ambient floor before trusting the VAD.
	if !d.gate.pass(f.PCM) && !d.gate.calibrated {
		return nil
	}

	maxSamples := f.SampleRate * int(maxUtterance/time.Millisecond) / 1000

	if d.overrun {
		// Over-long speech was discarded. Stay quiet until the talker
		// actually stops, so the tail of a sentence cannot fire.
		if d.vad.isSpeech(f.PCM) {
			d.silence = 0
			return nil
		}
		d.silence++
		if d.silence >= endSilenceFrames {
			d.overrun = false
			d.resetUtterance()
		}
		return nil
	}

	if d.vad.isSpeech(f.PCM) {
		if !d.inSpeech {
			d.inSpeech = true
			d.buf = d.buf[:0]
			d.silence = 0
		}
		d.buf = append(d.buf, f.PCM...)
		d.silence = 0

		if len(d.buf) > maxSamples {
			// Too long for a wake word.
			d.resetUtterance()
			d.overrun = true
		}
		return nil
	}

	if !d.inSpeech {
		return nil
	}

	// Keep a little trailing audio for natural word endings.
	d.buf = append(d.buf, f.PCM...)
	d.silence++
	if d.silence < endSilenceFrames {
		return nil
	}

	pcm := d.buf
	d.resetUtterance()

	minSamples := f.SampleRate * int(minUtterance/time.Millisecond) / 1000
	if len(pcm) < minSamples {
		return nil
	}
	if !d.armed.Load() {
		// Busy suppression: drop at the boundary, no side effects.
		return nil
	}
	now := d.now()
	if !d.lastHit.IsZero() && now.Sub(d.lastHit) < d.cooldown {
		return nil
	}

	return d.evaluate(ctx, pcm, f.SampleRate, now)
}

// evaluate transcribes a candidate utterance and asks each spotter in
// declaration order whether it crossed its threshold.
func (d *Detector) evaluate(ctx context.Context, pcm []int16, sampleRate int, now time.Time) *Hit {
	text, err := d.tr.Transcribe(ctx, pcm, sampleRate)
	if err != nil {
		d.log.Warnf("transcribe candidate: %v", err)
		return nil
	}
	norm := normalize(text)
	if norm == "" {
		return nil
	}

	for _, sp := range d.spotters {
		conf := sp.score(norm)
		if conf < sp.spec.Threshold {
			continue
		}
		d.lastHit = now
		d.log.Infof("hit keyword=%q confidence=%.2f text=%q", sp.spec.Keyword, conf, norm)
		return &Hit{
			Keyword:     sp.spec.Keyword,
			Label:       sp.spec.Label,
			PersonaMode: sp.spec.PersonaMode,
			Color:       sp.spec.Color,
			Confidence:  conf,
			Time:        now,
		}
	}
	return nil
}

func (d *Detector) resetUtterance() {
	d.inSpeech = false
	d.buf = d.buf[:0]
	d.silence = 0
	d.vad.reset()
}
