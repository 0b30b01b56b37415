package main

import (
	"fmt"
	"sort"

	"sparkeye/internal/config"
	"sparkeye/internal/usage"

	"github.com/spf13/cobra"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show verifier call and token usage",
	Long: `Summarize the verifier usage ledger: today's calls against the daily
budget, lifetime totals, and breakdowns per model and per plan.`,
	RunE: runUsage,
}

func runUsage(cmd *cobra.Command, args []string) error {
	tracker, err := usage.NewTracker(config.DefaultStateDir, cfg.Usage.DailyBudget)
	if err != nil {
		return err
	}

	today := tracker.Today()
	ledger := tracker.Snapshot()

	fmt.Println("Verifier Usage")
	fmt.Println("==============")
	if remaining := tracker.Remaining(); remaining < 0 {
		fmt.Printf("Today:     %d calls (no daily budget)\n", today.Calls)
	} else {
		fmt.Printf("Today:     %d calls, %d remaining of %d\n", today.Calls, remaining, cfg.Usage.DailyBudget)
	}
	fmt.Printf("Tokens:    %d in / %d out\n", today.Input, today.Output)
	fmt.Println()
	fmt.Printf("All time:  %d calls, %d in / %d out\n",
		ledger.Total.Calls, ledger.Total.Input, ledger.Total.Output)

	printBreakdown("By model", ledger.ByModel)
	printBreakdown("By plan", ledger.ByPlan)
	printRecentDays(ledger.ByDay)
	return nil
}

func printBreakdown(label string, counts map[string]usage.Counts) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Println()
	fmt.Printf("%s:\n", label)
	for _, k := range keys {
		c := counts[k]
		fmt.Printf("  %-24s %5d calls  %7d in / %6d out\n", k, c.Calls, c.Input, c.Output)
	}
}

func printRecentDays(byDay map[string]usage.Counts) {
	if len(byDay) == 0 {
		return
	}
	days := make([]string, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	// Day keys are YYYY-MM-DD, so a string sort is a date sort.
	sort.Sort(sort.Reverse(sort.StringSlice(days)))
	if len(days) > 7 {
		days = days[:7]
	}

	fmt.Println()
	fmt.Println("Recent days:")
	for _, d := range days {
		c := byDay[d]
		fmt.Printf("  %s  %5d calls  %7d in / %6d out\n", d, c.Calls, c.Input, c.Output)
	}
}
