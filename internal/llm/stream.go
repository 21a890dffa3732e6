package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config selects the chat-completion provider.
type Config struct {
	BaseURL        string
	APIKey         string
	Model          string
	Temperature    float64
	Timeout        time.Duration
	ReviewTimeout  time.Duration
}

// Client is the LLM chat-completion client used by the decision engine (C8)
// and the review generator (C10).
type Client struct {
	http *resty.Client
	cfg  Config
	log  zerolog.Logger
}

// New builds a Client against cfg.
func New(cfg Config, logger zerolog.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.ReviewTimeout == 0 {
		cfg.ReviewTimeout = 60 * time.Second
	}
	http := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("Authorization", "Bearer "+cfg.APIKey).
		SetHeader("Content-Type", "application/json")
	return &Client{http: http, cfg: cfg, log: logger.With().Str("subsystem", "llm").Logger()}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
	SessionID   string        `json:"session_id,omitempty"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// StreamResult is the outcome of one streaming decision call.
type StreamResult struct {
	Full       string
	SessionID  string
	Early      *Decision
	FullParsed *Decision
	ParseErr   error
}

// Stream sends systemPrompt+userPrompt to the provider in streaming mode,
// runs the early-decision probe on every buffer append, and invokes
// onEarly exactly once if an early decision with signal+confidence is
// found before the stream ends.
func (c *Client) Stream(ctx context.Context, systemPrompt, userPrompt string, onEarly func(Decision)) (StreamResult, error) {
	sessionID := uuid.NewString()
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: c.cfg.Temperature,
		Stream:      true,
		SessionID:   sessionID,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return StreamResult{}, fmt.Errorf("llm: marshal request: %w", err)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetDoNotParseResponse(true).
		Post("/chat/completions")
	if err != nil {
		return StreamResult{}, fmt.Errorf("llm: request: %w", err)
	}
	defer resp.RawBody().Close()

	if resp.StatusCode() >= 300 {
		return StreamResult{}, fmt.Errorf("llm: http %d", resp.StatusCode())
	}

	var buf strings.Builder
	delivered := false

	scanner := bufio.NewScanner(resp.RawBody())
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" || payload == "" {
			continue
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		buf.WriteString(chunk.Choices[0].Delta.Content)

		if delivered || onEarly == nil {
			continue
		}
		if d, ok := earlyProbe(buf.String()); ok && d.HasRequiredEarlyFields() {
			delivered = true
			onEarly(d)
		}
	}
	if err := scanner.Err(); err != nil {
		return StreamResult{}, fmt.Errorf("llm: stream read: %w", err)
	}

	full := buf.String()
	result := StreamResult{Full: full, SessionID: sessionID}

	parsed, parseErr := ParseFull(full)
	if parseErr != nil {
		result.ParseErr = parseErr
		if delivered {
			if d, ok := earlyProbe(full); ok {
				result.Early = &d
			}
		}
		return result, nil
	}
	result.FullParsed = &parsed
	return result, nil
}

// Complete sends a single non-streaming prompt (used by the review
// generator, C10) and returns the raw response text.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ReviewTimeout)
	defer cancel()

	req := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: c.cfg.Temperature,
		Stream:      false,
	}

	var result struct {
		Choices []struct {
			Message chatMessage `json:"message"`
		} `json:"choices"`
	}
	resp, err := c.http.R().SetContext(ctx).SetBody(req).SetResult(&result).Post("/chat/completions")
	if err != nil {
		return "", fmt.Errorf("llm: complete: %w", err)
	}
	if resp.StatusCode() >= 300 {
		return "", fmt.Errorf("llm: complete: http %d", resp.StatusCode())
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("llm: complete: empty choices")
	}
	return result.Choices[0].Message.Content, nil
}
