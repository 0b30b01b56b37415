package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"sparkeye/internal/plan"

	"github.com/spf13/cobra"
)

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "List embedded and workspace plans",
	Long: `List every plan SparkEye can run: the embedded default plus any
YAML plans under the workspace plans directory. Each plan is validated
and broken ones are reported with the reason.`,
	RunE: runPlans,
}

func runPlans(cmd *cobra.Command, args []string) error {
	fmt.Println("Available Plans")
	fmt.Println("===============")

	def := plan.Default()
	fmt.Printf("✓ %-20s %-34s %2d steps  (embedded)\n", def.Name, def.DisplayTitle(), def.Len())

	dir := plansDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println()
			fmt.Printf("No workspace plans. Drop YAML files under %s to add your own.\n", dir)
			return nil
		}
		return fmt.Errorf("failed to read plans directory: %w", err)
	}

	// Load each file on its own so one broken plan does not hide the rest.
	listed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		listed++
		p, err := plan.Load(filepath.Join(dir, e.Name()))
		if err != nil {
			fmt.Printf("✗ %-20s %s\n", e.Name(), err)
			continue
		}
		fmt.Printf("✓ %-20s %-34s %2d steps  (%s)\n", p.Name, p.DisplayTitle(), p.Len(), e.Name())
	}
	if listed == 0 {
		fmt.Println()
		fmt.Printf("No workspace plans. Drop YAML files under %s to add your own.\n", dir)
	}
	return nil
}
