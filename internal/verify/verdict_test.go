package verify

import (
	"strings"
	"testing"
)

func TestParseVerdictCleanJSON(t *testing.T) {
	v := ParseVerdict(`{"status": "correct", "confidence": 0.92, "feedback": "Resistor and LED look right."}`)
	if v.Status != StatusCorrect {
		t.Errorf("expected correct, got %s", v.Status)
	}
	if v.Confidence != 0.92 {
		t.Errorf("expected confidence 0.92, got %f", v.Confidence)
	}
	if v.Feedback != "Resistor and LED look right." {
		t.Errorf("unexpected feedback %q", v.Feedback)
	}
}

func TestParseVerdictWrappedInProse(t *testing.T) {
	text := "Sure! Here is my assessment:\n```json\n{\"status\": \"incorrect\", \"confidence\": 0.8, \"feedback\": \"The resistor is on pin 12, not pin 13.\"}\n```\nLet me know if you need more."
	v := ParseVerdict(text)
	if v.Status != StatusIncorrect {
		t.Errorf("expected incorrect, got %s", v.Status)
	}
	if !strings.Contains(v.Feedback, "pin 12") {
		t.Errorf("feedback lost: %q", v.Feedback)
	}
}

func TestParseVerdictMalformedJSON(t *testing.T) {
	v := ParseVerdict(`{"status": "correct", "confidence": }`)
	if v.Status != StatusPartial {
		t.Errorf("malformed JSON should degrade to partial, got %s", v.Status)
	}
	if v.Confidence != 0 {
		t.Errorf("expected zero confidence, got %f", v.Confidence)
	}
	if !strings.Contains(v.Feedback, "Try again") {
		t.Errorf("expected retry feedback, got %q", v.Feedback)
	}
}

func TestParseVerdictNoJSON(t *testing.T) {
	v := ParseVerdict("The build looks fine to me.")
	if v.Status != StatusError {
		t.Errorf("text without JSON should be an error verdict, got %s", v.Status)
	}
	if !strings.Contains(v.Feedback, "Invalid verifier response") {
		t.Errorf("unexpected feedback %q", v.Feedback)
	}
}

func TestParseVerdictUnknownStatus(t *testing.T) {
	v := ParseVerdict(`{"status": "maybe", "confidence": 0.5, "feedback": "hmm"}`)
	if v.Status != StatusError {
		t.Errorf("unknown status should normalize to error, got %s", v.Status)
	}
}

func TestParseVerdictNormalizesCase(t *testing.T) {
	v := ParseVerdict(`{"status": " Correct ", "confidence": 1, "feedback": "ok"}`)
	if v.Status != StatusCorrect {
		t.Errorf("status should be case and space insensitive, got %s", v.Status)
	}
}

func TestParseVerdictClampsConfidence(t *testing.T) {
	v := ParseVerdict(`{"status": "partial", "confidence": 3.5, "feedback": "x"}`)
	if v.Confidence != 1 {
		t.Errorf("confidence above 1 should clamp, got %f", v.Confidence)
	}
	v = ParseVerdict(`{"status": "partial", "confidence": -2, "feedback": "x"}`)
	if v.Confidence != 0 {
		t.Errorf("negative confidence should clamp, got %f", v.Confidence)
	}
}

func TestUserPromptCarriesStepText(t *testing.T) {
	p := UserPrompt(testStep())
	if !strings.Contains(p, "Connect the LED anode") {
		t.Error("prompt missing instruction")
	}
	if !strings.Contains(p, "series resistor connected to pin 13") {
		t.Error("prompt missing expected visual")
	}
	if !strings.Contains(p, `"status"`) {
		t.Error("prompt missing response format")
	}
}
