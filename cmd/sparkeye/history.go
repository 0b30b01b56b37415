package main

import (
	"fmt"
	"strings"

	"sparkeye/internal/store"

	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [session-id]",
	Short: "Show recent sessions and their verdicts",
	Long: `Without an argument, list recent sessions with their attempt counts.
With a session id, show that session and its newest verifier verdicts.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	st, err := store.New(cfg.Store.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	if len(args) == 1 {
		return showSession(st, args[0])
	}
	return listSessions(st)
}

func listSessions(st *store.Store) error {
	summaries, err := st.RecentSessions(historyLimit)
	if err != nil {
		return err
	}

	fmt.Println("Recent Sessions")
	fmt.Println("===============")
	if len(summaries) == 0 {
		fmt.Println("No sessions yet. Run `sparkeye` to start one.")
		return nil
	}
	for _, sum := range summaries {
		fmt.Printf("%s  %s (%s)\n", sum.ID, sum.Plan, sessionState(sum.Session))
		fmt.Printf("  started %s  %s  %s  steps %d  attempts %d  correct %d\n",
			sum.StartedAt.Local().Format("2006-01-02 15:04"),
			sum.Source, sum.Provider, sum.Steps, sum.Attempts, sum.Correct)
	}
	return nil
}

func showSession(st *store.Store, id string) error {
	sum, err := st.SessionSummary(id)
	if err != nil {
		return err
	}
	if sum == nil {
		return fmt.Errorf("no session %s; `sparkeye history` lists recent ids", id)
	}

	title := "Session " + sum.ID
	fmt.Println(title)
	fmt.Println(strings.Repeat("=", len(title)))
	fmt.Printf("Plan:      %s\n", sum.Plan)
	fmt.Printf("Source:    %s\n", sum.Source)
	fmt.Printf("Provider:  %s\n", sum.Provider)
	fmt.Printf("Started:   %s\n", sum.StartedAt.Local().Format("2006-01-02 15:04:05"))
	if sum.EndedAt != nil {
		fmt.Printf("Ended:     %s\n", sum.EndedAt.Local().Format("2006-01-02 15:04:05"))
	}
	fmt.Printf("Status:    %s\n", sessionState(sum.Session))
	fmt.Printf("Steps:     %d done\n", sum.Steps)
	fmt.Printf("Attempts:  %d (%d correct)\n", sum.Attempts, sum.Correct)

	attempts, err := st.RecentAttempts(id, historyLimit)
	if err != nil {
		return err
	}
	if len(attempts) == 0 {
		return nil
	}

	fmt.Println()
	fmt.Println("Attempts (newest first)")
	for _, a := range attempts {
		cached := ""
		if a.Cached {
			cached = "  (cached)"
		}
		fmt.Printf("  #%-4d step %-2d %-9s %.2f  %s%s\n",
			a.ID, a.StepID, a.Status, a.Confidence, clip(a.Feedback, 70), cached)
	}
	return nil
}

// sessionState names the lifecycle stage for display.
func sessionState(s store.Session) string {
	switch {
	case s.Completed:
		return "completed"
	case s.EndedAt != nil:
		return "ended early"
	default:
		return "open"
	}
}

func clip(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
