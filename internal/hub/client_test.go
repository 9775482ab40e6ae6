package hub

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/triolabs/wakepc/internal/config"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(config.HubConfig{
		BaseURL:  srv.URL,
		STTPath:  "/stt",
		AskPath:  "/ask",
		TimeoutS: 5,
	})
}

func TestSpeechToText(t *testing.T) {
	var gotField string
	var gotSize int64
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/stt", r.URL.Path)
		file, header, err := r.FormFile("file")
		require.NoError(t, err, "multipart field \"file\"")
		defer file.Close()
		gotField = header.Filename
		gotSize, _ = io.Copy(io.Discard, file)
		json.NewEncoder(w).Encode(map[string]string{"text": "what time is it"})
	}))

	wav := []byte("RIFFfakewavpayload")
	text, err := c.SpeechToText(context.Background(), wav)
	require.NoError(t, err)
	require.Equal(t, "what time is it", text)
	require.Equal(t, "utterance.wav", gotField)
	require.Equal(t, int64(len(wav)), gotSize)
}

func TestSpeechToText_EmptyAudio(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("hub must not be called for empty audio")
	}))
	_, err := c.SpeechToText(context.Background(), nil)
	require.Error(t, err)
}

func TestSpeechToText_HubError(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	_, err := c.SpeechToText(context.Background(), []byte("wav"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "503")
}

func TestAsk(t *testing.T) {
	var got map[string]any
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/ask", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]any{
			"persona": "penny",
			"reply":   "It is noon.",
		})
	}))

	res, err := c.Ask(context.Background(), AskRequest{
		Text:      "what time is it",
		Persona:   "penny",
		WakeWord:  "penny",
		SessionID: "sess-1",
		Device:    "test-rig",
	})
	require.NoError(t, err)
	require.Equal(t, "penny", res.Persona)
	require.Equal(t, "It is noon.", res.Reply)

	require.Equal(t, "what time is it", got["text"])
	require.Equal(t, "penny", got["persona"])
	client, ok := got["client"].(map[string]any)
	require.True(t, ok, "client block missing: %v", got)
	require.Equal(t, "test-rig", client["device"])
	require.Equal(t, "penny", client["wake_word"])
	require.Equal(t, "sess-1", client["session_id"])
}

func TestAsk_CollectiveResponses(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"persona": "collective",
			"reply":   "All good.",
			"responses": []map[string]any{
				{"persona": "penny", "reply": "Fine here.", "tts_provider": "elevenlabs"},
				{"persona": "sheldon", "reply": "Adequate."},
			},
		})
	}))

	res, err := c.Ask(context.Background(), AskRequest{Text: "status report", Persona: "collective"})
	require.NoError(t, err)
	require.Len(t, res.Responses, 2)
	require.Equal(t, "mp3", res.Responses[0].AudioFormat())
	require.Equal(t, "wav", res.Responses[1].AudioFormat())
}

func TestAsk_HubError(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusBadGateway)
	}))
	_, err := c.Ask(context.Background(), AskRequest{Text: "hello"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "502")
}

func TestAudioFormat(t *testing.T) {
	require.Equal(t, "mp3", PersonaReply{TTSProvider: "elevenlabs"}.AudioFormat())
	require.Equal(t, "wav", PersonaReply{TTSProvider: "piper"}.AudioFormat())
	require.Equal(t, "wav", PersonaReply{}.AudioFormat())
}
