package verify

import (
	"context"
	"fmt"
	"image"
	"strings"
	"time"

	"google.golang.org/genai"

	"sparkeye/internal/logging"
	"sparkeye/internal/plan"
)

// SDKClient verifies frames through the official Google GenAI SDK.
// Same semantics as GeminiClient; the SDK handles transport, auth, and
// retries for transient failures.
type SDKClient struct {
	client      *genai.Client
	model       string
	timeout     time.Duration
	maxEdge     int
	jpegQuality int
}

var _ Analyzer = (*SDKClient)(nil)

// NewSDKClient creates a GenAI SDK verifier client.
func NewSDKClient(cfg Config) (*SDKClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-2.5-flash"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	maxEdge := cfg.MaxImageEdge
	if maxEdge <= 0 {
		maxEdge = 1024
	}
	quality := cfg.JPEGQuality
	if quality <= 0 {
		quality = 85
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &SDKClient{
		client:      client,
		model:       model,
		timeout:     timeout,
		maxEdge:     maxEdge,
		jpegQuality: quality,
	}, nil
}

// Name identifies the provider.
func (c *SDKClient) Name() string {
	return string(ProviderSDK)
}

// Model returns the configured model name.
func (c *SDKClient) Model() string {
	return c.model
}

// Analyze sends the frame and step prompt through the SDK and parses the
// verdict.
func (c *SDKClient) Analyze(ctx context.Context, img image.Image, step plan.Step) (Verdict, error) {
	// Auto-apply timeout if context has no deadline
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	startTime := time.Now()
	logging.VisionDebug("[GenAI] Analyze: model=%s step=%d", c.model, step.ID)

	jpegData, err := EncodeJPEG(img, c.maxEdge, c.jpegQuality)
	if err != nil {
		return Verdict{}, fmt.Errorf("failed to encode frame: %w", err)
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(jpegData, "image/jpeg"),
			genai.NewPartFromText(UserPrompt(step)),
		}, genai.RoleUser),
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents,
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(SystemPrompt, genai.RoleUser),
			ResponseMIMEType:  "application/json",
			MaxOutputTokens:   512,
		})
	if err != nil {
		if sdkQuotaError(err) {
			logging.VisionError("[GenAI] Analyze: quota exhausted: %v", err)
			return Verdict{}, fmt.Errorf("genai: %w", ErrQuotaExhausted)
		}
		return Verdict{}, fmt.Errorf("GenAI generate failed: %w", err)
	}

	verdict := ParseVerdict(resp.Text())
	verdict.Model = c.model
	verdict.Latency = time.Since(startTime)
	if resp.UsageMetadata != nil {
		verdict.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		verdict.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	logging.Vision("[GenAI] Analyze: step=%d status=%s confidence=%.2f in %v",
		step.ID, verdict.Status, verdict.Confidence, verdict.Latency)
	return verdict, nil
}

// sdkQuotaError reports whether an SDK error means spent quota.
func sdkQuotaError(err error) bool {
	s := strings.ToUpper(err.Error())
	return strings.Contains(s, "RESOURCE_EXHAUSTED") || strings.Contains(s, "429")
}
