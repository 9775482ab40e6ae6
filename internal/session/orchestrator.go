// Package session drives the wake → record → transcribe → think → speak
// cycle. One goroutine owns the whole state machine, which is what makes
// the single-flight and busy-suppression guarantees structural rather than
// lock-based.
package session

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/triolabs/wakepc/internal/audio"
	"github.com/triolabs/wakepc/internal/config"
	"github.com/triolabs/wakepc/internal/hub"
	"github.com/triolabs/wakepc/internal/logging"
	"github.com/triolabs/wakepc/internal/overlay"
	"github.com/triolabs/wakepc/internal/record"
	"github.com/triolabs/wakepc/internal/wake"
)

const listeningHint = "Listening for wake words"

// Publisher is the slice of the event bus the orchestrator needs.
type Publisher interface {
	Publish(overlay.Event)
}

// Hub is the remote reasoning/STT collaborator.
type Hub interface {
	SpeechToText(ctx context.Context, wav []byte) (string, error)
	Ask(ctx context.Context, req hub.AskRequest) (*hub.AskResult, error)
}

// FrameSource hands out per-consumer frame streams.
type FrameSource interface {
	Subscribe(name string, depth int) <-chan audio.Frame
	Unsubscribe(name string)
}

// Detector is the wake-hit producer plus its busy-suppression gate.
type Detector interface {
	SetArmed(bool)
	Hits() <-chan wake.Hit
}

// Player plays synthesized speech locally. Optional.
type Player interface {
	Play(ctx context.Context, data []byte, format string) error
}

// CycleSink records completed cycles (the journal). Optional.
type CycleSink interface {
	Append(wakeWord, persona, transcript, reply, failStage string) error
}

// Recorder captures one utterance; swapped in tests.
type Recorder func(ctx context.Context, frames <-chan audio.Frame, opts record.Options) (record.Utterance, error)

// Orchestrator owns the session state machine.
type Orchestrator struct {
	rec      config.RecordingConfig
	client   config.ClientConfig
	hubTime  time.Duration
	colorFor map[string]string // persona mode (lowercased) -> display color

	bus      Publisher
	hub      Hub
	source   FrameSource
	detector Detector
	player   Player
	sink     CycleSink
	record   Recorder

	log logging.Logger
	sc  Context
}

// Options wires an Orchestrator. Player and Sink may be nil.
type Options struct {
	Config   config.Config
	Bus      Publisher
	Hub      Hub
	Source   FrameSource
	Detector Detector
	Player   Player
	Sink     CycleSink
}

// New builds an Orchestrator. The session identifier is stable for the
// process lifetime: configured value if present, otherwise a fresh UUID.
func New(opts Options) *Orchestrator {
	sessionID := opts.Config.Client.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	colors := make(map[string]string, len(opts.Config.Wake.Words))
	for _, w := range opts.Config.Wake.Words {
		colors[strings.ToLower(w.PersonaMode)] = w.Color
	}

	return &Orchestrator{
		rec:      opts.Config.Recording,
		client:   opts.Config.Client,
		hubTime:  time.Duration(opts.Config.Hub.TimeoutS * float64(time.Second)),
		colorFor: colors,
		bus:      opts.Bus,
		hub:      opts.Hub,
		source:   opts.Source,
		detector: opts.Detector,
		player:   opts.Player,
		sink:     opts.Sink,
		record:   record.Record,
		log:      logging.Tagged("session"),
		sc:       Context{State: StateListening, SessionID: sessionID},
	}
}

// Run is the single control loop. It blocks until ctx is cancelled. A hit
// is only ever consumed while listening; everything else in flight when ctx
// ends is abandoned, not awaited.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.enterListening()

	for {
		select {
		case <-ctx.Done():
			o.detector.SetArmed(false)
			return ctx.Err()
		case hit, ok := <-o.detector.Hits():
			if !ok {
				return nil
			}
			// From here to the end of the cycle no new hit can start
			// anything: the detector is disarmed and this goroutine is
			// busy. Hits raced into the channel buffer are drained and
			// dropped when we re-enter listening.
			o.detector.SetArmed(false)
			o.runCycle(ctx, hit)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			o.enterListening()
		}
	}
}

// enterListening is the resting transition: drain stale hits, re-arm the
// detector, publish state.
func (o *Orchestrator) enterListening() {
	for {
		select {
		case <-o.detector.Hits():
			continue
		default:
		}
		break
	}
	o.setState(StateListening, listeningHint, "#FFFFFF")
	o.detector.SetArmed(true)
}

// runCycle drives exactly one utterance through the machine. At most one
// utterance buffer and one outstanding hub call exist inside it.
func (o *Orchestrator) runCycle(ctx context.Context, hit wake.Hit) {
	o.sc.ActiveWakeWord = hit.Keyword
	o.sc.PersonaMode = hit.PersonaMode
	o.log.Infof("wake hit keyword=%q persona=%q confidence=%.2f",
		hit.Keyword, hit.PersonaMode, hit.Confidence)

	o.setState(StateWakeDetected, "Wake word: "+hit.Label, hit.Color)
	o.bus.Publish(overlay.Wake(hit.Keyword, hit.PersonaMode, hit.Color))

	// Recording. Subscribe before announcing the state so the very first
	// frames after the hit are captured.
	frames := o.source.Subscribe("recorder", 512)
	o.setState(StateRecording, "Recording ("+hit.Label+")", hit.Color)
	utt, err := o.record(ctx, frames, record.Options{
		MaxDuration:     time.Duration(o.rec.MaxSeconds * float64(time.Second)),
		SilenceHold:     time.Duration(o.rec.SilenceMs) * time.Millisecond,
		EnergyFloor:     o.rec.EnergyFloor,
		NoSpeechTimeout: time.Duration(o.rec.NoSpeechMs) * time.Millisecond,
	})
	o.source.Unsubscribe("recorder")
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		o.failCycle(hit, "audio", err.Error(), "")
		return
	}
	o.log.Infof("captured %.1fs utterance (%d bytes)", utt.Duration.Seconds(), len(utt.WAV))

	// Transcribing.
	o.setState(StateTranscribing, "Transcribing", hit.Color)
	sttCtx, cancel := context.WithTimeout(ctx, o.hubTime)
	text, err := o.hub.SpeechToText(sttCtx, utt.WAV)
	cancel()
	utt = record.Utterance{} // utterance handed off; drop our copy
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		o.failCycle(hit, "stt", err.Error(), "")
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		o.failCycle(hit, "stt", "empty transcript", "")
		return
	}
	o.bus.Publish(overlay.UserUtterance(text))

	// Thinking.
	o.setState(StateThinking, "Thinking", hit.Color)
	askCtx, cancel := context.WithTimeout(ctx, o.hubTime)
	res, err := o.hub.Ask(askCtx, hub.AskRequest{
		Text:      text,
		Persona:   hit.PersonaMode,
		WakeWord:  hit.Keyword,
		SessionID: o.sc.SessionID,
		Device:    o.client.Device,
	})
	cancel()
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		o.failCycle(hit, "ask", err.Error(), text)
		return
	}

	// Speaking.
	o.setState(StateSpeaking, "Speaking", hit.Color)
	reply := o.speak(ctx, hit, res)

	o.journal(hit, text, reply, "")
}

// speak renders the hub's answer: one reply, or the per-persona fan-out
// when the collective was addressed. Returns the primary reply text for
// the journal.
func (o *Orchestrator) speak(ctx context.Context, hit wake.Hit, res *hub.AskResult) string {
	replies := []hub.PersonaReply{res.PersonaReply}
	if strings.EqualFold(res.Persona, "collective") && len(res.Responses) > 0 {
		replies = res.Responses
	}

	for _, r := range replies {
		persona := r.Persona
		if persona == "" {
			persona = hit.PersonaMode
		}
		color := hit.Color
		if c, ok := o.colorFor[strings.ToLower(persona)]; ok {
			color = c
		}

		o.bus.Publish(overlay.AssistantReply(persona, color, strings.TrimSpace(r.Reply)))
		if len(r.Actions) > 0 {
			o.bus.Publish(overlay.Actions(r.Actions))
		}
		if r.AudioB64 == "" {
			continue
		}
		o.bus.Publish(overlay.TTSAudio(persona, color, r.AudioFormat(), r.AudioB64))
		o.playAudio(ctx, r)
	}
	return strings.TrimSpace(res.Reply)
}

// playAudio decodes and plays one reply's speech. Playback trouble is
// logged, never fatal to the cycle.
func (o *Orchestrator) playAudio(ctx context.Context, r hub.PersonaReply) {
	if o.player == nil {
		return
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(r.AudioB64))
	if err != nil {
		o.log.Warnf("tts audio undecodable: %v", err)
		return
	}
	if err := o.player.Play(ctx, data, r.AudioFormat()); err != nil {
		o.log.Warnf("playback failed: %v", err)
	}
}

// failCycle reports exactly one error event for a failed cycle. The caller
// returns to listening right after.
func (o *Orchestrator) failCycle(hit wake.Hit, stage, message, transcript string) {
	o.log.Errorf("cycle failed stage=%s: %s", stage, message)
	o.sc.State = StateError
	o.bus.Publish(overlay.Error(stage, message))
	o.journal(hit, transcript, "", stage)
}

func (o *Orchestrator) journal(hit wake.Hit, transcript, reply, failStage string) {
	if o.sink == nil {
		return
	}
	if err := o.sink.Append(hit.Keyword, hit.PersonaMode, transcript, reply, failStage); err != nil {
		o.log.Warnf("journal write failed: %v", err)
	}
}

// setState mutates the session context and reports the transition before
// any blocking work in the new state begins.
func (o *Orchestrator) setState(s State, hint, color string) {
	o.sc.State = s
	o.bus.Publish(overlay.Status(string(s), hint, color))
}
