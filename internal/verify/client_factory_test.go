package verify

import (
	"testing"
)

func clearKeyEnv(t *testing.T) {
	t.Helper()
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
}

func TestDetectProviderPriority(t *testing.T) {
	clearKeyEnv(t)
	if p := DetectProvider(); p != ProviderSimulated {
		t.Errorf("empty environment should detect simulated, got %s", p)
	}

	t.Setenv("OPENAI_API_KEY", "sk-test")
	if p := DetectProvider(); p != ProviderOpenAI {
		t.Errorf("OPENAI_API_KEY alone should detect openai, got %s", p)
	}

	t.Setenv("GEMINI_API_KEY", "gk-test")
	if p := DetectProvider(); p != ProviderGemini {
		t.Errorf("GEMINI_API_KEY should win over openai, got %s", p)
	}
}

func TestDetectProviderGoogleKey(t *testing.T) {
	clearKeyEnv(t)
	t.Setenv("GOOGLE_API_KEY", "gk-alt")
	if p := DetectProvider(); p != ProviderGemini {
		t.Errorf("GOOGLE_API_KEY should detect gemini, got %s", p)
	}
	if key := APIKeyFromEnv(ProviderGemini); key != "gk-alt" {
		t.Errorf("expected GOOGLE_API_KEY fallback, got %q", key)
	}
}

func TestNewAnalyzerExplicitGemini(t *testing.T) {
	clearKeyEnv(t)
	a, err := NewAnalyzer(Config{Provider: string(ProviderGemini), APIKey: "gk-test"})
	if err != nil {
		t.Fatalf("NewAnalyzer failed: %v", err)
	}
	if _, ok := a.(*GeminiClient); !ok {
		t.Errorf("expected *GeminiClient, got %T", a)
	}
}

func TestNewAnalyzerExplicitOpenAI(t *testing.T) {
	clearKeyEnv(t)
	a, err := NewAnalyzer(Config{Provider: string(ProviderOpenAI), APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("NewAnalyzer failed: %v", err)
	}
	if _, ok := a.(*OpenAIClient); !ok {
		t.Errorf("expected *OpenAIClient, got %T", a)
	}
}

func TestNewAnalyzerKeylessFallsBackToSim(t *testing.T) {
	clearKeyEnv(t)
	a, err := NewAnalyzer(Config{Provider: string(ProviderGemini)})
	if err != nil {
		t.Fatalf("NewAnalyzer failed: %v", err)
	}
	if _, ok := a.(*SimClient); !ok {
		t.Errorf("keyless provider should degrade to *SimClient, got %T", a)
	}
}

func TestNewAnalyzerAutoDetect(t *testing.T) {
	clearKeyEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	a, err := NewAnalyzer(Config{})
	if err != nil {
		t.Fatalf("NewAnalyzer failed: %v", err)
	}
	if _, ok := a.(*OpenAIClient); !ok {
		t.Errorf("expected auto-detected *OpenAIClient, got %T", a)
	}
}

func TestNewAnalyzerUnknownProvider(t *testing.T) {
	clearKeyEnv(t)
	if _, err := NewAnalyzer(Config{Provider: "oracle", APIKey: "x"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}
