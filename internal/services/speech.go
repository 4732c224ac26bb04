package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Synthesizer turns answer text into speech audio. Availability is checked
// per invocation; an unconfigured provider reports ErrUnsupported instead of
// failing silently.
type Synthesizer struct {
	apiKey     string
	voiceID    string
	httpClient *http.Client
}

func NewSynthesizer(apiKey, voiceID string) *Synthesizer {
	if voiceID == "" {
		voiceID = "21m00Tcm4TlvDq8ikWAM" // ElevenLabs default voice
	}
	return &Synthesizer{
		apiKey:     apiKey,
		voiceID:    voiceID,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *Synthesizer) Supported() bool {
	return s.apiKey != ""
}

// Synthesize converts text to MP3 audio. Math markup punctuation is stripped
// first so delimiters and LaTeX control characters are never spoken.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) ([]byte, string, error) {
	if !s.Supported() {
		return nil, "", ErrUnsupported
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"text":     StripMarkup(text),
		"model_id": "eleven_multilingual_v2",
	})

	url := fmt.Sprintf("https://api.elevenlabs.io/v1/text-to-speech/%s", s.voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("TTS request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, "", fmt.Errorf("TTS returned status %d: %s", resp.StatusCode, string(body))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read TTS audio: %w", err)
	}
	return audio, "audio/mpeg", nil
}

// markupPunctuation is the set of characters removed before speaking.
const markupPunctuation = "$\\{}*#_`"

// StripMarkup removes math delimiters and markdown punctuation so the
// synthesized speech reads only the words.
func StripMarkup(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if strings.ContainsRune(markupPunctuation, r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}
