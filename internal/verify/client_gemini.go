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

// GeminiClient verifies frames through the Gemini REST API.
type GeminiClient struct {
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

var _ Analyzer = (*GeminiClient)(nil)

// DefaultGeminiConfig returns sensible defaults for frame verification.
func DefaultGeminiConfig(apiKey string) Config {
	return Config{
		Provider:     string(ProviderGemini),
		APIKey:       apiKey,
		BaseURL:      "https://generativelanguage.googleapis.com/v1beta",
		Model:        "gemini-2.5-flash",
		Timeout:      60 * time.Second,
		MaxRetries:   3,
		MinInterval:  100 * time.Millisecond,
		MaxImageEdge: 1024,
		JPEGQuality:  85,
	}
}

// NewGeminiClient creates a Gemini verifier client, filling unset config
// fields from DefaultGeminiConfig.
func NewGeminiClient(cfg Config) *GeminiClient {
	def := DefaultGeminiConfig(cfg.APIKey)
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

	return &GeminiClient{
		apiKey:      cfg.APIKey,
		baseURL:     cfg.BaseURL,
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
func (c *GeminiClient) Name() string {
	return string(ProviderGemini)
}

// Model returns the configured model name.
func (c *GeminiClient) Model() string {
	return c.model
}

// Analyze sends the frame and step prompt to Gemini and parses the
// verdict. Transient failures and plain rate limits are retried with
// exponential backoff; spent quota is returned as ErrQuotaExhausted
// without retrying.
func (c *GeminiClient) Analyze(ctx context.Context, img image.Image, step plan.Step) (Verdict, error) {
	// Auto-apply timeout if context has no deadline
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	startTime := time.Now()
	logging.VisionDebug("[Gemini] Analyze: model=%s step=%d", c.model, step.ID)

	if c.apiKey == "" {
		return Verdict{}, fmt.Errorf("API key not configured")
	}

	jpegData, err := EncodeJPEG(img, c.maxEdge, c.jpegQuality)
	if err != nil {
		return Verdict{}, fmt.Errorf("failed to encode frame: %w", err)
	}

	// Rate limiting
	c.mu.Lock()
	elapsed := time.Since(c.lastRequest)
	if elapsed < c.minInterval {
		time.Sleep(c.minInterval - elapsed)
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()

	reqBody := GeminiRequest{
		Contents: []GeminiContent{
			{
				Role: "user",
				Parts: []GeminiPart{
					{InlineData: &GeminiInlineData{
						MimeType: "image/jpeg",
						Data:     base64.StdEncoding.EncodeToString(jpegData),
					}},
					{Text: UserPrompt(step)},
				},
			},
		},
		SystemInstruction: &GeminiContent{
			Parts: []GeminiPart{{Text: SystemPrompt}},
		},
		GenerationConfig: GeminiGenerationConfig{
			MaxOutputTokens:  512,
			ResponseMimeType: "application/json",
		},
	}

	// Construct URL with API key
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)

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
			if quotaExhausted(body) {
				logging.VisionError("[Gemini] Analyze: quota exhausted: %s", snippet(string(body), 200))
				return Verdict{}, fmt.Errorf("gemini: %w", ErrQuotaExhausted)
			}
			lastErr = fmt.Errorf("rate limit exceeded (429)")
			continue
		}

		if resp.StatusCode != http.StatusOK {
			return Verdict{}, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
		}

		var geminiResp GeminiResponse
		if err := json.Unmarshal(body, &geminiResp); err != nil {
			return Verdict{}, fmt.Errorf("failed to parse response: %w", err)
		}

		if geminiResp.Error != nil {
			if geminiResp.Error.Status == "RESOURCE_EXHAUSTED" {
				logging.VisionError("[Gemini] Analyze: quota exhausted: %s", geminiResp.Error.Message)
				return Verdict{}, fmt.Errorf("gemini: %w", ErrQuotaExhausted)
			}
			return Verdict{}, fmt.Errorf("API error: %s", geminiResp.Error.Message)
		}

		if len(geminiResp.Candidates) == 0 || len(geminiResp.Candidates[0].Content.Parts) == 0 {
			return Verdict{}, fmt.Errorf("no completion returned")
		}

		var text strings.Builder
		for _, part := range geminiResp.Candidates[0].Content.Parts {
			text.WriteString(part.Text)
		}

		verdict := ParseVerdict(text.String())
		verdict.Model = c.model
		verdict.Latency = time.Since(startTime)
		verdict.PromptTokens = geminiResp.UsageMetadata.PromptTokenCount
		verdict.OutputTokens = geminiResp.UsageMetadata.CandidatesTokenCount

		logging.Vision("[Gemini] Analyze: step=%d status=%s confidence=%.2f in %v",
			step.ID, verdict.Status, verdict.Confidence, verdict.Latency)
		return verdict, nil
	}

	logging.VisionError("[Gemini] Analyze: max retries exceeded after %v: %v", time.Since(startTime), lastErr)
	return Verdict{}, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// quotaExhausted reports whether an error payload indicates spent quota
// rather than a transient rate limit.
func quotaExhausted(body []byte) bool {
	s := strings.ToUpper(string(body))
	return strings.Contains(s, "RESOURCE_EXHAUSTED") || strings.Contains(s, "QUOTA")
}
