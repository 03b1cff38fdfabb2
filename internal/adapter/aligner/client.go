package aligner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/escalopa/quizzr-dataflow/internal/domain"
)

// Client talks to a Gentle-style forced-alignment service over HTTP
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates an alignment client. timeout bounds a single alignment
// call end to end.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Align submits audio and its expected transcript for forced alignment
func (c *Client) Align(ctx context.Context, audio []byte, transcript string) (*domain.Alignment, error) {
	// Create multipart form
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("audio", "recording.wav")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, fmt.Errorf("write audio data: %w", err)
	}

	if err := writer.WriteField("transcript", transcript); err != nil {
		return nil, fmt.Errorf("write transcript field: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close writer: %w", err)
	}

	// Create request
	url := fmt.Sprintf("%s/transcriptions?async=false", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", writer.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	// Send request
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("aligner error (status %d): %s", resp.StatusCode, string(body))
	}

	// Parse response
	var result struct {
		Transcript string         `json:"transcript"`
		Words      []wordResponse `json:"words"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	alignment := &domain.Alignment{
		Transcript: result.Transcript,
		Words:      make([]domain.AlignedWord, len(result.Words)),
	}
	for i, word := range result.Words {
		alignment.Words[i] = domain.AlignedWord{
			Word:        word.Word,
			AlignedWord: word.AlignedWord,
			Case:        domain.WordCase(word.Case),
			Start:       word.Start,
			End:         word.End,
		}
	}
	return alignment, nil
}

type wordResponse struct {
	Word        string  `json:"word"`
	AlignedWord string  `json:"alignedWord"`
	Case        string  `json:"case"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
}
