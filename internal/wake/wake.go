// Package wake turns the continuous frame stream into discrete wake hits.
// It wraps one keyword spotter per configured wake word, all fed the same
// audio; the acoustic model itself is consumed as a capability (Transcriber).
package wake

import (
	"context"
	"time"
)

// Hit is one accepted wake trigger. Ephemeral: produced here, consumed
// exactly once by the session orchestrator.
type Hit struct {
	Keyword     string
	Label       string
	PersonaMode string
	Color       string
	Confidence  float64
	Time        time.Time
}

// Transcriber converts a short utterance to text. This is the injected
// keyword-spotting capability; wakepc does not implement the model.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []int16, sampleRate int) (string, error)
}
