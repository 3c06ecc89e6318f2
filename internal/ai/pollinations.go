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
)

const pollinationsURL = "https://text.pollinations.ai/openai"

type PollinationsProvider struct {
	client   *http.Client
	endpoint string
	model    string
}

func NewPollinationsProvider() *PollinationsProvider {
	return &PollinationsProvider{
		client: &http.Client{
			Timeout: 25 * time.Second,
		},
		endpoint: pollinationsURL,
		model:    "openai",
	}
}

func (p *PollinationsProvider) Name() string { return "pollinations" }

func (p *PollinationsProvider) Generate(ctx context.Context, messages []Message, opts Options) (string, error) {
	payload := map[string]interface{}{
		"model":       p.model,
		"messages":    messages,
		"temperature": opts.Temperature,
		"top_p":       opts.TopP,
		"private":     true,
	}
	if opts.MaxTokens > 0 {
		payload["max_tokens"] = opts.MaxTokens
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", &Error{Kind: KindProvider, Provider: p.Name(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Error{Kind: KindProvider, Provider: p.Name(), Err: err}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &Error{
			Kind:       KindRateLimited,
			Provider:   p.Name(),
			Status:     resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header, time.Now()),
			Err:        fmt.Errorf("http %d: %s", resp.StatusCode, truncate(body)),
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &Error{
			Kind:     KindProvider,
			Provider: p.Name(),
			Status:   resp.StatusCode,
			Err:      fmt.Errorf("http %d: %s", resp.StatusCode, truncate(body)),
		}
	}

	if strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		return "", &Error{Kind: KindProvider, Provider: p.Name(), Err: fmt.Errorf("returned html")}
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}

	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", &Error{Kind: KindProvider, Provider: p.Name(), Err: err}
	}

	if len(parsed.Choices) == 0 {
		return "", nil
	}

	reply := cleanReply(parsed.Choices[0].Message.Content)
	if isGarbageResponse(reply) {
		return "", &Error{Kind: KindProvider, Provider: p.Name(), Err: fmt.Errorf("returned garbage")}
	}

	return reply, nil
}
