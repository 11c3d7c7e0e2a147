// Package asr sends recorded audio to a Hugging Face speech-recognition model.
package asr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"

	"shaneshark.com/portfolio/internal/metrics"
)

// MaxAudioBytes caps one upload
const MaxAudioBytes = 25 << 20

const defaultContentType = "audio/webm"

var (
	ErrMissingToken = errors.New("hugging face api token is not configured")
	ErrTooLarge     = fmt.Errorf("audio exceeds the %s upload limit", humanize.IBytes(MaxAudioBytes))
)

type Client struct {
	BaseURL string
	Model   string
	Token   string
	HTTP    *http.Client
}

func NewClient(baseURL, model, token string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Model:   model,
		Token:   token,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// Transcribe posts audio and returns the recognised text
func (c *Client) Transcribe(ctx context.Context, audio io.Reader, contentType string) (string, error) {
	if strings.TrimSpace(c.Token) == "" {
		return "", ErrMissingToken
	}
	if contentType == "" {
		contentType = defaultContentType
	}

	url := fmt.Sprintf("%s/hf-inference/models/%s", c.BaseURL, c.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, audio)
	if err != nil {
		return "", fmt.Errorf("failed to create ASR request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Content-Type", contentType)

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}

	startTime := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		metrics.RecordUpstreamCall("asr", startTime, 0)
		return "", fmt.Errorf("hugging face unreachable: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("Failed to close response body")
		}
	}()
	metrics.RecordUpstreamCall("asr", startTime, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", c.statusError(resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode ASR response: %w", err)
	}
	return strings.TrimSpace(out.Text), nil
}

func (c *Client) statusError(status int, body string) error {
	switch status {
	case http.StatusGone:
		return errors.New("hugging face 410: the legacy inference endpoint was retired, point the ASR base URL at router.huggingface.co or a proxy")
	case http.StatusNotFound:
		return fmt.Errorf("hugging face 404: model %s not found or the token lacks access", c.Model)
	default:
		return fmt.Errorf("hugging face API error: %d %s", status, body)
	}
}
