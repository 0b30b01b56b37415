package verify

import (
	"fmt"

	"sparkeye/internal/plan"
)

// SystemPrompt frames the verifier role for every provider.
const SystemPrompt = `You are an expert electronics instructor checking a student's Arduino build from a workbench photo. Judge only what is visible in the image. Respond with a single JSON object and nothing else.`

// UserPrompt renders the per-step verification request.
func UserPrompt(step plan.Step) string {
	return fmt.Sprintf(`The student is on this assembly step:

INSTRUCTION: %s
EXPECTED RESULT: %s

Look at the photo and decide whether the step is complete.

Respond ONLY with JSON in exactly this format:
{"status": "correct" | "partial" | "incorrect", "confidence": 0.0-1.0, "feedback": "<one short, specific sentence for the student>"}

Rules:
- "correct" only when the expected result is clearly visible.
- "partial" when wiring has started but is incomplete or a detail looks wrong.
- "incorrect" when the wiring contradicts the instruction.
- Name the exact pin or component in the feedback when something is off.`, step.Instruction, step.Expected)
}
