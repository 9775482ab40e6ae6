// Package hub is the thin request/response façade over the remote
// reasoning/STT service. It never panics on network trouble: every failure
// comes back as an error the orchestrator maps to its Error state.
package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"time"

	"github.com/triolabs/wakepc/internal/config"
)

// AskRequest carries one transcribed utterance to the hub.
type AskRequest struct {
	Text      string
	Persona   string
	WakeWord  string
	SessionID string
	Device    string
}

// PersonaReply is one persona's answer. Actions are opaque to this client.
type PersonaReply struct {
	Persona     string           `json:"persona"`
	Reply       string           `json:"reply"`
	AudioB64    string           `json:"audio_b64"`
	TTSProvider string           `json:"tts_provider"`
	Actions     []map[string]any `json:"actions"`
}

// AskResult is the hub's answer. Responses is populated when the hub fanned
// the request out to several personas (collective mode).
type AskResult struct {
	PersonaReply
	Responses []PersonaReply `json:"responses"`
}

// AudioFormat derives the container format from the TTS provider name.
// ElevenLabs streams MP3; everything else in the fleet produces WAV.
func (r PersonaReply) AudioFormat() string {
	if r.TTSProvider == "elevenlabs" {
		return "mp3"
	}
	return "wav"
}

// Client talks to one hub instance.
type Client struct {
	baseURL string
	sttPath string
	askPath string
	http    *http.Client
}

// New builds a Client from hub settings. The configured timeout bounds each
// call end to end; connects are additionally capped at 10s so an unreachable
// hub fails fast.
func New(cfg config.HubConfig) *Client {
	total := time.Duration(cfg.TimeoutS * float64(time.Second))
	if total <= 0 {
		total = 60 * time.Second
	}
	connect := 10 * time.Second
	if total < connect {
		connect = total
	}
	return &Client{
		baseURL: cfg.BaseURL,
		sttPath: cfg.STTPath,
		askPath: cfg.AskPath,
		http: &http.Client{
			Timeout: total,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: connect}).DialContext,
			},
		},
	}
}

// SpeechToText uploads a WAV utterance and returns the transcript.
func (c *Client) SpeechToText(ctx context.Context, wav []byte) (string, error) {
	if len(wav) == 0 {
		return "", fmt.Errorf("stt: empty audio")
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return "", fmt.Errorf("stt: build form: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return "", fmt.Errorf("stt: build form: %w", err)
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.sttPath, &body)
	if err != nil {
		return "", fmt.Errorf("stt: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("stt: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("stt: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("stt: hub returned %d: %s", resp.StatusCode, truncate(raw, 200))
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("stt: malformed response: %w", err)
	}
	return out.Text, nil
}

// Ask sends the transcript plus client metadata and returns the reply.
func (c *Client) Ask(ctx context.Context, req AskRequest) (*AskResult, error) {
	payload := map[string]any{
		"text":    req.Text,
		"persona": req.Persona,
		"client": map[string]any{
			"device":     req.Device,
			"wake_word":  req.WakeWord,
			"session_id": req.SessionID,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("ask: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.askPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ask: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ask: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("ask: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("ask: hub returned %d: %s", resp.StatusCode, truncate(raw, 200))
	}

	var out AskResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("ask: malformed response: %w", err)
	}
	return &out, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
