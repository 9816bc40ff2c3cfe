package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"living-persona/pkg/retrylimit"

	"github.com/rs/zerolog"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider turns a chat transcript into the next assistant message.
type Provider interface {
	Generate(ctx context.Context, messages []Message) (string, error)
}

// Endpoint presets for OpenAI-compatible chat completion services.
var presets = map[string]string{
	"g4f":          "https://g4f.dev/api/gpt-oss-120b/chat/completions",
	"groq":         "https://g4f.dev/api/groq/chat/completions",
	"pollinations": "https://text.pollinations.ai/openai",
	"openai":       "https://api.openai.com/v1/chat/completions",
}

// ChatConfig configures a ChatProvider.
type ChatConfig struct {
	// Endpoint is a preset name or a full chat completions URL.
	Endpoint    string
	Model       string
	APIKey      string
	Temperature float64
	Timeout     time.Duration
}

// ChatProvider talks to an OpenAI-compatible chat completions endpoint.
type ChatProvider struct {
	url     string
	cfg     ChatConfig
	client  *http.Client
	limiter *retrylimit.AdaptiveLimiter
	policy  retrylimit.Policy
	log     zerolog.Logger
}

func NewChatProvider(cfg ChatConfig, log zerolog.Logger) *ChatProvider {
	url := cfg.Endpoint
	if u, ok := presets[strings.ToLower(cfg.Endpoint)]; ok {
		url = u
	}
	if url == "" {
		url = presets["g4f"]
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	log = log.With().Str("component", "chat").Str("model", cfg.Model).Logger()
	policy := retrylimit.DefaultPolicy()
	policy.Logger = log
	return &ChatProvider{
		url:     url,
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: retrylimit.NewAdaptiveLimiter(1, 0.1, 4, 0.25, 0.5),
		policy:  policy,
		log:     log,
	}
}

// Generate implements Provider.
func (p *ChatProvider) Generate(ctx context.Context, messages []Message) (string, error) {
	payload := map[string]any{
		"model":    p.cfg.Model,
		"messages": messages,
	}
	if p.cfg.Temperature > 0 {
		payload["temperature"] = p.cfg.Temperature
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	var reply string
	err = retrylimit.Do(ctx, p.policy, p.limiter, func(ctx context.Context) error {
		r, err := p.post(ctx, body)
		if err != nil {
			return err
		}
		reply = r
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	return reply, nil
}

func (p *ChatProvider) post(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return "", &retrylimit.Permanent{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 256*1024))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &retrylimit.StatusError{Code: resp.StatusCode, Body: truncate(raw)}
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("unmarshal: %w body=%s", err, truncate(raw))
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	reply := cleanReply(parsed.Choices[0].Message.Content)
	if isGarbageResponse(reply) {
		return "", fmt.Errorf("garbage response: %s", truncate([]byte(reply)))
	}
	return reply, nil
}
