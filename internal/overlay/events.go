// Package overlay broadcasts typed JSON events to any number of local
// observers (the visual overlay). Publication is best-effort and
// non-blocking: a slow observer only ever loses its own events.
package overlay

import "encoding/json"

// Event is the closed union of everything the core reports to observers.
// Each variant serializes to one JSON object discriminated by "type".
type Event interface {
	isEvent()
}

// StatusEvent reports a state-machine transition.
type StatusEvent struct {
	Type  string `json:"type"`
	State string `json:"state"`
	Hint  string `json:"hint"`
	Color string `json:"color"`
}

// WakeEvent reports an accepted wake hit.
type WakeEvent struct {
	Type        string `json:"type"`
	WakeWord    string `json:"wake_word"`
	PersonaMode string `json:"persona_mode"`
	Color       string `json:"color"`
}

// UserUtteranceEvent carries the transcript of what the user said.
type UserUtteranceEvent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// AssistantReplyEvent carries one persona's textual reply.
type AssistantReplyEvent struct {
	Type    string `json:"type"`
	Persona string `json:"persona"`
	Color   string `json:"color"`
	Text    string `json:"text"`
}

// TTSAudioEvent carries synthesized speech for the overlay to play.
type TTSAudioEvent struct {
	Type     string `json:"type"`
	Persona  string `json:"persona"`
	Color    string `json:"color"`
	Format   string `json:"format"` // "wav" or "mp3"
	AudioB64 string `json:"audio_b64"`
}

// ActionsEvent carries hub-issued action items, opaque to this core.
type ActionsEvent struct {
	Type  string           `json:"type"`
	Items []map[string]any `json:"items"`
}

// ErrorEvent reports a failed cycle and the stage it failed in.
type ErrorEvent struct {
	Type    string `json:"type"`
	Stage   string `json:"stage"` // "stt", "ask", "audio" or "wake"
	Message string `json:"message"`
}

func (StatusEvent) isEvent()         {}
func (WakeEvent) isEvent()           {}
func (UserUtteranceEvent) isEvent()  {}
func (AssistantReplyEvent) isEvent() {}
func (TTSAudioEvent) isEvent()       {}
func (ActionsEvent) isEvent()        {}
func (ErrorEvent) isEvent()          {}

// Status builds a status event.
func Status(state, hint, color string) StatusEvent {
	return StatusEvent{Type: "status", State: state, Hint: hint, Color: color}
}

// Wake builds a wake event.
func Wake(wakeWord, personaMode, color string) WakeEvent {
	return WakeEvent{Type: "wake", WakeWord: wakeWord, PersonaMode: personaMode, Color: color}
}

// UserUtterance builds a user_utterance event.
func UserUtterance(text string) UserUtteranceEvent {
	return UserUtteranceEvent{Type: "user_utterance", Text: text}
}

// AssistantReply builds an assistant_reply event.
func AssistantReply(persona, color, text string) AssistantReplyEvent {
	return AssistantReplyEvent{Type: "assistant_reply", Persona: persona, Color: color, Text: text}
}

// TTSAudio builds a tts_audio event.
func TTSAudio(persona, color, format, audioB64 string) TTSAudioEvent {
	return TTSAudioEvent{Type: "tts_audio", Persona: persona, Color: color, Format: format, AudioB64: audioB64}
}

// Actions builds an actions event.
func Actions(items []map[string]any) ActionsEvent {
	return ActionsEvent{Type: "actions", Items: items}
}

// Error builds an error event.
func Error(stage, message string) ErrorEvent {
	return ErrorEvent{Type: "error", Stage: stage, Message: message}
}

// marshal encodes an event. A marshal failure is a protocol bug, not a
// reason to crash the publisher; callers log and drop.
func marshal(ev Event) ([]byte, error) {
	return json.Marshal(ev)
}
