package verify

import (
	"fmt"
	"os"

	"sparkeye/internal/logging"
)

// DetectProvider returns the provider implied by the environment,
// checking API keys in priority order.
func DetectProvider() Provider {
	if os.Getenv("GEMINI_API_KEY") != "" {
		return ProviderGemini
	}
	if os.Getenv("GOOGLE_API_KEY") != "" {
		return ProviderGemini
	}
	if os.Getenv("OPENAI_API_KEY") != "" {
		return ProviderOpenAI
	}
	return ProviderSimulated
}

// APIKeyFromEnv returns the environment key for a provider.
func APIKeyFromEnv(p Provider) string {
	switch p {
	case ProviderGemini, ProviderSDK:
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			return key
		}
		return os.Getenv("GOOGLE_API_KEY")
	case ProviderOpenAI:
		return os.Getenv("OPENAI_API_KEY")
	}
	return ""
}

// NewAnalyzer builds the analyzer for cfg. An empty provider auto-detects
// from the environment. A provider with no API key degrades to the
// simulated analyzer instead of failing, so sessions always start.
func NewAnalyzer(cfg Config) (Analyzer, error) {
	provider := Provider(cfg.Provider)
	if provider == "" {
		provider = DetectProvider()
	}
	if cfg.APIKey == "" {
		cfg.APIKey = APIKeyFromEnv(provider)
	}

	if provider != ProviderSimulated && cfg.APIKey == "" {
		logging.VisionWarn("no API key for provider %s, falling back to simulated verifier", provider)
		return NewSimClient(0), nil
	}

	switch provider {
	case ProviderGemini:
		return NewGeminiClient(cfg), nil
	case ProviderSDK:
		return NewSDKClient(cfg)
	case ProviderOpenAI:
		return NewOpenAIClient(cfg), nil
	case ProviderSimulated:
		return NewSimClient(0), nil
	default:
		return nil, fmt.Errorf("unknown verifier provider: %s", provider)
	}
}
