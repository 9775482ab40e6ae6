package session

// State is one of the seven session states. The zero-value-free string form
// is what goes out in status events.
type State string

const (
	StateListening    State = "listening"
	StateWakeDetected State = "wake_detected"
	StateRecording    State = "recording"
	StateTranscribing State = "transcribing"
	StateThinking     State = "thinking"
	StateSpeaking     State = "speaking"
	StateError        State = "error"
)

// Context is the single mutable session record. Exactly one exists per
// process and only the orchestrator goroutine touches it; observers see
// copies via events, never the struct itself.
type Context struct {
	State          State
	ActiveWakeWord string
	PersonaMode    string
	SessionID      string
}
