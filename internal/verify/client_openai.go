package verify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"sparkeye/internal/logging"
	"sparkeye/internal/plan"
)

// OpenAIClient verifies frames through any OpenAI-compatible chat
// completions API. Useful for local gateways and alternative providers
// that speak the same wire format.
type OpenAIClient struct {
	apiKey      string
	baseURL     string
	model       string
	httpClient  *http.Client
	maxRetries  int
	minInterval time.Duration
	maxEdge     int
	jpegQuality int

	mu          sync.Mutex
	lastRequest time.Time
}

var _ Analyzer = (*OpenAIClient)(nil)

// DefaultOpenAIConfig returns sensible defaults for frame verification.
func DefaultOpenAIConfig(apiKey string) Config {
	return Config{
		Provider:     string(ProviderOpenAI),
		APIKey:       apiKey,
		BaseURL:      "https://api.openai.com/v1",
		Model:        "gpt-4o-mini",
		Timeout:      60 * time.Second,
		MaxRetries:   3,
		MinInterval:  100 * time.Millisecond,
		MaxImageEdge: 1024,
		JPEGQuality:  85,
	}
}

// NewOpenAIClient creates an OpenAI-compatible verifier client.
func NewOpenAIClient(cfg Config) *OpenAIClient {
	def := DefaultOpenAIConfig(cfg.APIKey)
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = def.Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = def.MinInterval
	}
	if cfg.MaxImageEdge <= 0 {
		cfg.MaxImageEdge = def.MaxImageEdge
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = def.JPEGQuality
	}

	return &OpenAIClient{
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		maxRetries:  cfg.MaxRetries,
		minInterval: cfg.MinInterval,
		maxEdge:     cfg.MaxImageEdge,
		jpegQuality: cfg.JPEGQuality,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Name identifies the provider.
func (c *OpenAIClient) Name() string {
	return string(ProviderOpenAI)
}

// Model returns the configured model name.
func (c *OpenAIClient) Model() string {
	return c.model
}

// Analyze sends the frame as a data URL image part and parses the
// verdict from the completion text.
func (c *OpenAIClient) Analyze(ctx context.Context, img image.Image, step plan.Step) (Verdict, error) {
	// Auto-apply timeout if context has no deadline
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	startTime := time.Now()
	logging.VisionDebug("[OpenAI] Analyze: model=%s step=%d", c.model, step.ID)

	if c.apiKey == "" {
		return Verdict{}, fmt.Errorf("API key not configured")
	}

	jpegData, err := EncodeJPEG(img, c.maxEdge, c.jpegQuality)
	if err != nil {
		return Verdict{}, fmt.Errorf("failed to encode frame: %w", err)
	}
	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpegData)

	// Rate limiting
	c.mu.Lock()
	elapsed := time.Since(c.lastRequest)
	if elapsed < c.minInterval {
		time.Sleep(c.minInterval - elapsed)
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()

	reqBody := OpenAIRequest{
		Model: c.model,
		Messages: []OpenAIMessage{
			{Role: "system", Content: SystemPrompt},
			{Role: "user", Content: []OpenAIContentPart{
				{Type: "text", Text: UserPrompt(step)},
				{Type: "image_url", ImageURL: &OpenAIImageURL{URL: dataURL}},
			}},
		},
		MaxTokens: 512,
	}

	url := c.baseURL + "/chat/completions"

	var lastErr error
	for i := 0; i <= c.maxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return Verdict{}, ctx.Err()
			case <-time.After(time.Duration(1<<uint(i-1)) * time.Second):
			}
		}

		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return Verdict{}, fmt.Errorf("failed to marshal request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
		if err != nil {
			return Verdict{}, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			if strings.Contains(string(body), "insufficient_quota") {
				logging.VisionError("[OpenAI] Analyze: quota exhausted: %s", snippet(string(body), 200))
				return Verdict{}, fmt.Errorf("openai: %w", ErrQuotaExhausted)
			}
			lastErr = fmt.Errorf("rate limit exceeded (429)")
			continue
		}

		if resp.StatusCode != http.StatusOK {
			return Verdict{}, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
		}

		var openaiResp OpenAIResponse
		if err := json.Unmarshal(body, &openaiResp); err != nil {
			return Verdict{}, fmt.Errorf("failed to parse response: %w", err)
		}

		if openaiResp.Error != nil {
			return Verdict{}, fmt.Errorf("API error: %s", openaiResp.Error.Message)
		}

		if len(openaiResp.Choices) == 0 {
			return Verdict{}, fmt.Errorf("no completion returned")
		}

		verdict := ParseVerdict(openaiResp.Choices[0].Message.Content)
		verdict.Model = c.model
		verdict.Latency = time.Since(startTime)
		verdict.PromptTokens = openaiResp.Usage.PromptTokens
		verdict.OutputTokens = openaiResp.Usage.CompletionTokens

		logging.Vision("[OpenAI] Analyze: step=%d status=%s confidence=%.2f in %v",
			step.ID, verdict.Status, verdict.Confidence, verdict.Latency)
		return verdict, nil
	}

	logging.VisionError("[OpenAI] Analyze: max retries exceeded after %v: %v", time.Since(startTime), lastErr)
	return Verdict{}, fmt.Errorf("max retries exceeded: %w", lastErr)
}
