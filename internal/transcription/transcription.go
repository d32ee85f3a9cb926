package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"memo-pipeline-go/internal/logger"
	"memo-pipeline-go/internal/types"
)

// ErrTranscription wraps every failure reported by the speech-to-text service.
var ErrTranscription = errors.New("transcription failed")

const MockTranscript = "Ich habe am Montag um 9 Uhr einen Termin beim Hausarzt. Danach muss ich das Rezept in der Apotheke abholen."

type Config struct {
	BaseURL      string
	APIKey       string
	PollInterval time.Duration
	Timeout      time.Duration
	HTTPClient   *http.Client
}

type Client struct {
	cfg  Config
	http *http.Client
	log  *logger.Logger
}

func NewClient(cfg Config, log *logger.Logger) *Client {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 1500 * time.Millisecond
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{cfg: cfg, http: hc, log: log}
}

type uploadResponse struct {
	UploadURL string `json:"upload_url"`
}

type transcriptRequest struct {
	AudioURL          string `json:"audio_url"`
	LanguageDetection bool   `json:"language_detection"`
}

type transcriptResponse struct {
	ID           string  `json:"id"`
	Status       string  `json:"status"` // queued, processing, completed, error
	Text         string  `json:"text"`
	LanguageCode string  `json:"language_code"`
	Confidence   float64 `json:"confidence"`
	Error        string  `json:"error"`
}

// Transcribe uploads the audio, submits a transcript job and polls until it
// finishes.
func (c *Client) Transcribe(ctx context.Context, audio io.Reader) (types.Transcription, error) {
	log := c.log.WithField("module", "transcription")
	if c.cfg.BaseURL == "" {
		return types.Transcription{}, fmt.Errorf("%w: TRANSCRIBE_URL not set", ErrTranscription)
	}

	uploadURL, err := c.upload(ctx, audio)
	if err != nil {
		return types.Transcription{}, err
	}
	log.Debug("audio uploaded")

	var job transcriptResponse
	body, _ := json.Marshal(transcriptRequest{AudioURL: uploadURL, LanguageDetection: true})
	if err := c.doJSON(ctx, http.MethodPost, c.endpoint("/v2/transcript"), bytes.NewReader(body), "application/json", &job); err != nil {
		return types.Transcription{}, err
	}
	log.WithField("transcript_id", job.ID).Info("transcription submitted")

	done, err := c.poll(ctx, job.ID)
	if err != nil {
		return types.Transcription{}, err
	}
	log.WithField("transcript_id", job.ID).WithField("confidence", done.Confidence).Info("transcription completed")
	return types.Transcription{
		Text:       done.Text,
		Language:   done.LanguageCode,
		Confidence: done.Confidence,
	}, nil
}

func (c *Client) upload(ctx context.Context, audio io.Reader) (string, error) {
	var resp uploadResponse
	if err := c.doJSON(ctx, http.MethodPost, c.endpoint("/v2/upload"), audio, "application/octet-stream", &resp); err != nil {
		return "", err
	}
	if resp.UploadURL == "" {
		return "", fmt.Errorf("%w: upload returned no url", ErrTranscription)
	}
	return resp.UploadURL, nil
}

// poll re-reads the transcript job on a constant interval until it leaves
// the queued/processing states or the timeout elapses.
func (c *Client) poll(ctx context.Context, id string) (transcriptResponse, error) {
	var last transcriptResponse
	op := func() error {
		var s transcriptResponse
		if err := c.doJSON(ctx, http.MethodGet, c.endpoint("/v2/transcript/"+id), nil, "", &s); err != nil {
			return backoff.Permanent(err)
		}
		last = s
		switch strings.ToLower(s.Status) {
		case "completed":
			return nil
		case "error":
			return backoff.Permanent(fmt.Errorf("%w: %s", ErrTranscription, s.Error))
		default:
			return fmt.Errorf("transcript %s still %s", id, s.Status)
		}
	}

	bo := backoff.NewConstantBackOff(c.cfg.PollInterval)
	maxPolls := uint64(c.cfg.Timeout / c.cfg.PollInterval)
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, maxPolls), ctx)); err != nil {
		if ctx.Err() != nil {
			return last, fmt.Errorf("%w: %v", ErrTranscription, ctx.Err())
		}
		if errors.Is(err, ErrTranscription) {
			return last, err
		}
		return last, fmt.Errorf("%w: timeout after %s (%v)", ErrTranscription, c.cfg.Timeout, err)
	}
	return last, nil
}

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + path
}

func (c *Client) doJSON(ctx context.Context, method, url string, body io.Reader, contentType string, target any) error {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrTranscription, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTranscription, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s %s returned %d: %s", ErrTranscription, method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if len(data) == 0 {
		return fmt.Errorf("%w: empty body", ErrTranscription)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: json decode error: %v body=%s", ErrTranscription, err, string(data))
	}
	return nil
}

// Mock returns a fixed German transcript; enabled with USE_MOCK_TRANSCRIBE=true.
type Mock struct{}

func (Mock) Transcribe(ctx context.Context, audio io.Reader) (types.Transcription, error) {
	if _, err := io.Copy(io.Discard, audio); err != nil {
		return types.Transcription{}, fmt.Errorf("%w: %v", ErrTranscription, err)
	}
	return types.Transcription{Text: MockTranscript, Language: "de", Confidence: 0.92}, nil
}
