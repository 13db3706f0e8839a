package mistral

import (
	"context"
	"fmt"
	"strings"

	"catchup/internal/clients"
	"catchup/internal/services"
)

// Transcribe converts one audio chunk to text. language is a BCP-47 tag or
// "auto" for provider-side detection.
func (c *Client) Transcribe(ctx context.Context, chunkPath, language string) (clients.Transcription, error) {
	if c.cfg.APIKey == "" {
		return clients.Transcription{}, fmt.Errorf("%w: api key required", services.ErrTranscriptionFailed)
	}
	var parsed transcriptionResponse
	err := c.doWithRetry(ctx, "mistral transcribe", func() error {
		var sendErr error
		parsed, sendErr = c.transcribeOnce(ctx, chunkPath, language)
		return sendErr
	})
	if err != nil {
		return clients.Transcription{}, fmt.Errorf("%w: %v", services.ErrTranscriptionFailed, err)
	}
	if strings.TrimSpace(parsed.Text) == "" {
		return clients.Transcription{}, fmt.Errorf("%w: empty transcription", services.ErrTranscriptionFailed)
	}
	detected := strings.TrimSpace(parsed.Language)
	if detected == "" {
		detected = language
	}
	return clients.Transcription{Text: parsed.Text, DetectedLanguage: detected}, nil
}

var _ clients.TranscriberClient = (*Client)(nil)
