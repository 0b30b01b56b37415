package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"sparkeye/internal/config"
	"sparkeye/internal/logging"

	"github.com/spf13/cobra"
)

const appVersion = "0.1.0"

var (
	// Global flags
	cfgPath  string
	verbose  bool
	planFlag string
	provider string
	model    string

	// Session flags (root and `run`)
	sourceFlag string
	deviceIdx  int
	streamURL  string
	framesDir  string
	resume     bool
	headless   bool
	mirror     bool

	// Loaded configuration, available to every RunE after PersistentPreRunE.
	cfg *config.Config
)

// rootCmd runs a full watch session when invoked bare.
var rootCmd = &cobra.Command{
	Use:   "sparkeye",
	Short: "SparkEye - camera-based verification for Arduino builds",
	Long: `SparkEye watches your workbench through a camera, waits for your hands
to leave the frame, and checks each wiring step of a build plan against
what a vision model actually sees.

Point a camera at the board, run sparkeye, and follow the steps.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		cfg = loaded

		lvl := cfg.Logging.Level
		if verbose {
			lvl = "debug"
		}
		cats := make(map[string]bool, len(cfg.Logging.Categories))
		for _, c := range cfg.Logging.Categories {
			cats[c] = true
		}
		if err := logging.Initialize(logging.Options{
			Dir:        cfg.Logging.Dir,
			Level:      lvl,
			Enabled:    true,
			Categories: cats,
		}); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		if err := logging.InitAudit(); err != nil {
			logging.BootError("audit trail unavailable: %v", err)
		}
		logging.Boot("sparkeye %s starting (%s/%s)", appVersion, runtime.GOOS, runtime.GOARCH)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Boot("sparkeye exiting")
		logging.CloseAudit()
		logging.CloseAll()
	},
	RunE: runSession,
}

// runCmd is the explicit spelling of the default behavior.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Watch a build session (the default when no command is given)",
	Long: `Starts a watch session: frames are scored for motion, steady scenes are
snapshotted and verified against the current plan step, and correct
verdicts advance the plan.

The interactive TUI is the default surface; --headless prints verdict
lines to stdout instead, for CI rigs and remote benches.`,
	RunE: runSession,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the sparkeye version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("sparkeye %s (%s/%s)\n", appVersion, runtime.GOOS, runtime.GOARCH)
	},
}

// addSessionFlags registers the session flags on a command. The root
// command and `run` share one flag set of package vars.
func addSessionFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&sourceFlag, "source", "", "Frame source: device, stream, or dir (default from config)")
	cmd.Flags().IntVar(&deviceIdx, "device", -1, "Camera index for the device source")
	cmd.Flags().StringVar(&streamURL, "stream-url", "", "MJPEG stream URL (implies --source stream)")
	cmd.Flags().StringVar(&framesDir, "frames-dir", "", "Directory of frames to replay (implies --source dir)")
	cmd.Flags().BoolVar(&resume, "resume", false, "Resume the last open session for this plan")
	cmd.Flags().BoolVar(&headless, "headless", false, "Print verdicts to stdout instead of the TUI")
	cmd.Flags().BoolVar(&mirror, "mirror", false, "Mirror the preview horizontally")
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", config.DefaultPath(), "Config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&planFlag, "plan", "", "Plan file or workspace plan name (default: embedded plan)")
	rootCmd.PersistentFlags().StringVar(&provider, "provider", "", "Verifier provider: gemini, sdk, openai, simulated")
	rootCmd.PersistentFlags().StringVar(&model, "model", "", "Verifier model name")

	addSessionFlags(rootCmd)
	addSessionFlags(runCmd)

	checkCmd.Flags().IntVar(&checkStep, "step", 0, "Step ID to check (default: first step)")
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "Print the verdict as JSON")

	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "How many rows to show")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(plansCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(usageCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// plansDir is where workspace plans live.
func plansDir() string {
	return filepath.Join(config.DefaultStateDir, "plans")
}
