package extractor

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

	"github.com/sirupsen/logrus"
	"memo-pipeline-go/internal/logger"
	"memo-pipeline-go/internal/types"
)

// ErrExtraction wraps every failure of the reasoning service.
var ErrExtraction = errors.New("extraction failed")

type Config struct {
	GatewayURL string
	APIKey     string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

type Client struct {
	cfg  Config
	http *http.Client
	log  *logger.Logger
	now  func() time.Time
}

func NewClient(cfg Config, log *logger.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, http: hc, log: log, now: time.Now}
}

// Extract sends one chat-completion request and parses the JSON answer.
// There is no retry: a failed call surfaces as an error.
func (c *Client) Extract(ctx context.Context, req types.ExtractionRequest) (types.ExtractionResult, error) {
	log := c.log.WithField("component", "extractor").WithField("user_id", req.UserID)

	if c.cfg.GatewayURL == "" || c.cfg.APIKey == "" {
		return types.ExtractionResult{}, fmt.Errorf("%w: llm gateway not configured", ErrExtraction)
	}

	reqBody := map[string]any{
		"model": c.cfg.Model,
		"messages": []map[string]string{
			{"role": "user", "content": BuildPrompt(req.TranscriptText, c.now())},
		},
		"temperature": 0.0,
		"user":        req.UserID,
	}
	data, _ := json.Marshal(reqBody)
	log.WithField("payload_len", len(data)).Debug("llm request")

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.GatewayURL, bytes.NewReader(data))
	if err != nil {
		return types.ExtractionResult{}, fmt.Errorf("%w: build request: %v", ErrExtraction, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		log.WithError(err).Warn("llm request failed")
		return types.ExtractionResult{}, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	log.WithField("http_status", resp.StatusCode).Debug("llm raw:\n" + string(body))
	if resp.StatusCode >= 400 {
		return types.ExtractionResult{}, fmt.Errorf("%w: llm gateway returned %d: %s", ErrExtraction, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	res, err := Parse(body, c.now())
	if err != nil {
		return types.ExtractionResult{}, err
	}
	log.WithFields(logrus.Fields{
		"appointments": len(res.Appointments),
		"tasks":        len(res.Tasks),
		"notes":        len(res.Notes),
	}).Info("parsed extraction")
	return res, nil
}

// Parse turns a raw gateway response into an ExtractionResult. It accepts
// an OpenAI-style envelope or a bare JSON object. An envelope is only read
// through its message content, never as a payload itself, and the payload
// must carry at least one extraction field.
func Parse(body []byte, now time.Time) (types.ExtractionResult, error) {
	var candidate string
	if hasKey(body, "choices") {
		candidate = extractContentFromChoices(body)
	} else {
		candidate = extractJSON(string(body))
	}
	if candidate == "" {
		return types.ExtractionResult{}, fmt.Errorf("%w: no JSON found in LLM output", ErrExtraction)
	}
	if !hasKey([]byte(candidate), payloadKeys...) {
		return types.ExtractionResult{}, fmt.Errorf("%w: LLM output has no extraction fields", ErrExtraction)
	}

	var payload extractionPayload
	if err := json.Unmarshal([]byte(candidate), &payload); err != nil {
		return types.ExtractionResult{}, fmt.Errorf("%w: decode LLM output: %v", ErrExtraction, err)
	}
	return payload.toResult(now), nil
}

var payloadKeys = []string{"summary", "appointments", "tasks", "notes"}

// hasKey reports whether data is a JSON object with any of keys at top level.
func hasKey(data []byte, keys ...string) bool {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return false
	}
	for _, k := range keys {
		if _, ok := obj[k]; ok {
			return true
		}
	}
	return false
}

// extractContentFromChoices attempts to read openai-style choices[0].message.content JSON
func extractContentFromChoices(body []byte) string {
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return ""
	}

	choices, ok := obj["choices"].([]any)
	if !ok || len(choices) == 0 {
		return ""
	}
	c0, _ := choices[0].(map[string]any)
	if c0 == nil {
		return ""
	}
	msg, _ := c0["message"].(map[string]any)
	if msg == nil {
		return ""
	}
	content, _ := msg["content"].(string)
	return extractJSON(content)
}

// extractJSON finds the first balanced JSON object in a string and returns it.
// It strips common markdown fences first.
func extractJSON(s string) string {
	if s == "" {
		return ""
	}

	s = strings.ReplaceAll(s, "\r\n", "\n")

	// Remove markdown fences (commonly output by LLMs)
	for _, r := range []string{"```json", "```", "`json"} {
		s = strings.ReplaceAll(s, r, "")
	}

	start := strings.Index(s, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return strings.TrimSpace(s[start : i+1])
			}
		}
	}

	// no balanced found
	return ""
}
