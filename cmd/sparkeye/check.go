package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"sparkeye/cmd/sparkeye/ui"
	"sparkeye/internal/plan"
	"sparkeye/internal/verify"

	"github.com/charmbracelet/lipgloss"
	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"
)

var (
	checkStep int
	checkJSON bool
)

// checkCmd verifies one image file against one plan step, without a
// camera or a session. Useful for tuning prompts and testing plans.
var checkCmd = &cobra.Command{
	Use:   "check [image]",
	Short: "Verify a single image against a plan step",
	Long: `Sends one image to the verifier and prints the verdict for the chosen
plan step.

Examples:
  sparkeye check bench.jpg
  sparkeye check bench.jpg --step 2 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	img, err := imaging.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	p, err := resolvePlan()
	if err != nil {
		return err
	}
	step, err := pickStep(p, checkStep)
	if err != nil {
		return err
	}

	// One shot, so the verdict cache would never hit; use the bare client.
	analyzer, err := verify.NewAnalyzer(verifyConfig())
	if err != nil {
		return err
	}

	verdict, err := analyzer.Analyze(ctx, img, step)
	if err != nil {
		if errors.Is(err, verify.ErrQuotaExhausted) {
			return errors.New("verifier quota exhausted; try again tomorrow")
		}
		return fmt.Errorf("analysis failed: %w", err)
	}

	if checkJSON {
		out, err := json.MarshalIndent(verdict, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	styles := ui.DefaultStyles()
	label := strings.ToUpper(string(verdict.Status))
	fmt.Printf("Step %d: %s\n", step.ID, step.Instruction)
	fmt.Println(verdictStyle(styles, verdict.Status).Render(label) + ": " + verdict.Feedback)
	fmt.Printf("confidence %.2f", verdict.Confidence)
	if verdict.Model != "" {
		fmt.Printf("  model %s", verdict.Model)
	}
	if verdict.Latency > 0 {
		fmt.Printf("  latency %s", verdict.Latency.Round(time.Millisecond))
	}
	fmt.Println()
	return nil
}

// pickStep selects a step by ID, or the first step when id is zero.
func pickStep(p plan.Plan, id int) (plan.Step, error) {
	if id == 0 {
		return p.Step(0), nil
	}
	for _, s := range p.Steps {
		if s.ID == id {
			return s, nil
		}
	}
	return plan.Step{}, fmt.Errorf("plan %s has no step %d", p.Name, id)
}

func verdictStyle(s ui.Styles, status verify.Status) lipgloss.Style {
	switch status {
	case verify.StatusCorrect:
		return s.VerdictCorrect
	case verify.StatusPartial:
		return s.VerdictPartial
	case verify.StatusIncorrect:
		return s.VerdictIncorrect
	default:
		return s.VerdictError
	}
}
