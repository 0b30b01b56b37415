package verify

import "time"

// Provider identifies a verifier backend.
type Provider string

const (
	// ProviderGemini talks to the Gemini REST API directly.
	ProviderGemini Provider = "gemini"
	// ProviderSDK talks to Gemini through the official Go SDK.
	ProviderSDK Provider = "sdk"
	// ProviderOpenAI talks to any OpenAI-compatible chat completions API.
	ProviderOpenAI Provider = "openai"
	// ProviderSimulated fakes verification for keyless offline use.
	ProviderSimulated Provider = "simulated"
)

// Config holds verifier client configuration. Zero fields fall back to
// per-provider defaults.
type Config struct {
	Provider     string
	APIKey       string
	BaseURL      string
	Model        string
	Timeout      time.Duration
	MaxRetries   int
	MinInterval  time.Duration // client-side spacing between requests
	MaxImageEdge int           // longest side of the uploaded frame
	JPEGQuality  int
}

// GeminiContent represents content in a Gemini request.
type GeminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []GeminiPart `json:"parts"`
}

// GeminiPart represents one part of the content: text or inline image.
type GeminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *GeminiInlineData `json:"inline_data,omitempty"`
}

// GeminiInlineData carries base64 image bytes.
type GeminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

// GeminiGenerationConfig represents generation parameters.
// Note: the Gemini REST API uses snake_case for the mime type field.
type GeminiGenerationConfig struct {
	Temperature      float64 `json:"temperature,omitempty"`
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string  `json:"response_mime_type,omitempty"`
}

// GeminiRequest represents the Gemini API request.
type GeminiRequest struct {
	Contents          []GeminiContent        `json:"contents"`
	SystemInstruction *GeminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  GeminiGenerationConfig `json:"generationConfig,omitempty"`
}

// GeminiResponse represents the API response.
type GeminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text,omitempty"`
			} `json:"parts"`
			Role string `json:"role"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// OpenAIMessage represents a chat message. Content is either a plain
// string or a slice of OpenAIContentPart for multimodal messages.
type OpenAIMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

// OpenAIContentPart is one element of a multimodal message.
type OpenAIContentPart struct {
	Type     string          `json:"type"` // "text" or "image_url"
	Text     string          `json:"text,omitempty"`
	ImageURL *OpenAIImageURL `json:"image_url,omitempty"`
}

// OpenAIImageURL holds an image reference, here always a data URL.
type OpenAIImageURL struct {
	URL string `json:"url"`
}

// OpenAIRequest represents the chat completions request.
type OpenAIRequest struct {
	Model       string          `json:"model"`
	Messages    []OpenAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
}

// OpenAIResponse represents the chat completions response.
type OpenAIResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}
