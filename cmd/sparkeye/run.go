package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"sparkeye/cmd/sparkeye/session"
	"sparkeye/internal/bridge"
	"sparkeye/internal/capture"
	"sparkeye/internal/config"
	"sparkeye/internal/logging"
	"sparkeye/internal/motion"
	"sparkeye/internal/plan"
	"sparkeye/internal/store"
	"sparkeye/internal/usage"
	"sparkeye/internal/verify"
	"sparkeye/internal/watch"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// runSession wires a full watch session: frame source, engine, session
// recorder, optional bridge, and either the TUI or the headless printer.
func runSession(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logging.Boot("shutdown signal received")
		cancel()
	}()

	p, err := resolvePlan()
	if err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("plan %s: %w", p.Name, err)
	}

	src, err := buildSource()
	if err != nil {
		return err
	}

	analyzer, err := buildAnalyzer()
	if err != nil {
		return err
	}

	tracker, err := usage.NewTracker(config.DefaultStateDir, cfg.Usage.DailyBudget)
	if err != nil {
		return fmt.Errorf("failed to open usage ledger: %w", err)
	}
	defer tracker.Save()

	st, err := store.New(cfg.Store.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	defer st.Close()

	sessionID, startStep, err := openSession(st, p, src, analyzer)
	if err != nil {
		return err
	}

	eng, err := watch.New(watch.Config{
		Plan:     p,
		Analyzer: analyzer,
		Tracker:  tracker,
		Motion: motion.Config{
			PixelDelta:   cfg.Motion.PixelDelta,
			Threshold:    cfg.Motion.Threshold,
			WorkingWidth: cfg.Motion.WorkingWidth,
			BlurSigma:    cfg.Motion.BlurSigma,
		},
		Stillness:    cfg.GetStillnessWindow(),
		Cooldown:     cfg.GetCooldown(),
		AdvanceDwell: cfg.GetAdvanceDwell(),
		Tick:         cfg.GetTick(),
		StartStep:    startStep,
	})
	if err != nil {
		return err
	}

	ctx = usage.WithSession(ctx, p.Name, sessionID)

	if err := src.Open(ctx); err != nil {
		return fmt.Errorf("failed to open %s: %w", src.Name(), err)
	}
	defer src.Close()

	recEvents, recCancel := eng.Subscribe()
	defer recCancel()
	rec := store.NewRecorder(st, sessionID, cfg.Store.SnapshotsDir)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Run(gctx, src.Frames()) })
	g.Go(func() error { return rec.Run(gctx, recEvents) })

	if cfg.Bridge.Enabled {
		brEvents, brCancel := eng.Subscribe()
		defer brCancel()
		br := bridge.New(eng, cfg.Bridge.Listen)
		g.Go(func() error { return br.Run(gctx, brEvents) })
	}

	if headless {
		g.Go(func() error { return runHeadless(gctx, eng, cancel) })
	} else {
		g.Go(func() error {
			// Leaving the UI ends the session either way.
			defer cancel()
			return session.Run(session.Config{
				Engine:       eng,
				Plan:         p,
				SessionID:    sessionID,
				Provider:     analyzer.Name(),
				Model:        cfg.Verify.Model,
				AdvanceDwell: cfg.GetAdvanceDwell(),
				Tracker:      tracker,
				Mirror:       mirror,
				Quit:         cancel,
			})
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, watch.ErrSourceClosed) {
		return nil
	}
	return err
}

// openSession resumes the last open session for the plan when --resume
// is set, otherwise creates a fresh one.
func openSession(st *store.Store, p plan.Plan, src capture.Source, analyzer verify.Analyzer) (string, int, error) {
	if resume {
		open, err := st.LastOpenSession(p.Name)
		if err != nil {
			return "", 0, err
		}
		if open != nil {
			logging.Boot("resuming session %s at step %d", open.ID, open.LastStep)
			logging.Audit(logging.AuditSessionStart, open.ID, map[string]interface{}{
				"plan":       p.Name,
				"source":     src.Name(),
				"provider":   analyzer.Name(),
				"start_step": open.LastStep,
				"resumed":    true,
			})
			return open.ID, open.LastStep, nil
		}
		logging.Boot("no open session for plan %s, starting fresh", p.Name)
	}

	id, err := st.CreateSession(p.Name, src.Name(), analyzer.Name())
	if err != nil {
		return "", 0, err
	}
	logging.Audit(logging.AuditSessionStart, id, map[string]interface{}{
		"plan":     p.Name,
		"source":   src.Name(),
		"provider": analyzer.Name(),
	})
	return id, 0, nil
}

// resolvePlan picks the plan for this invocation: the embedded plan by
// default, a file when --plan names one, otherwise a workspace plan.
func resolvePlan() (plan.Plan, error) {
	if planFlag == "" {
		return plan.Default(), nil
	}
	if _, err := os.Stat(planFlag); err == nil {
		return plan.Load(planFlag)
	}
	plans, err := plan.LoadDir(plansDir())
	if err != nil {
		return plan.Plan{}, err
	}
	for _, p := range plans {
		if p.Name == planFlag {
			return p, nil
		}
	}
	return plan.Plan{}, fmt.Errorf("plan %q is neither a file nor a plan under %s", planFlag, plansDir())
}

// buildSource constructs the frame source from flags and config. A
// stream URL or frames dir on the command line implies its source kind.
func buildSource() (capture.Source, error) {
	kind := sourceFlag
	if kind == "" {
		switch {
		case streamURL != "":
			kind = "stream"
		case framesDir != "":
			kind = "dir"
		default:
			kind = cfg.Capture.Source
		}
	}

	switch kind {
	case "device":
		idx := cfg.Capture.Device
		if deviceIdx >= 0 {
			idx = deviceIdx
		}
		return capture.NewDeviceSource(capture.DeviceConfig{
			Index:  idx,
			Width:  uint32(cfg.Capture.Width),
			Height: uint32(cfg.Capture.Height),
		}), nil

	case "stream":
		url := streamURL
		if url == "" {
			url = cfg.Capture.StreamURL
		}
		if url == "" {
			return nil, errors.New("stream source needs --stream-url or capture.stream_url")
		}
		return capture.NewStreamSource(capture.StreamConfig{URL: url}), nil

	case "dir":
		dir := framesDir
		if dir == "" {
			dir = cfg.Capture.FramesDir
		}
		if dir == "" {
			return nil, errors.New("dir source needs --frames-dir or capture.frames_dir")
		}
		return capture.NewDirSource(dir), nil
	}
	return nil, fmt.Errorf("unknown capture source %q", kind)
}

// buildAnalyzer constructs the verifier with the verdict cache in front.
func buildAnalyzer() (verify.Analyzer, error) {
	inner, err := verify.NewAnalyzer(verifyConfig())
	if err != nil {
		return nil, err
	}
	return verify.NewCachedAnalyzer(inner, cfg.GetCacheTTL(), cfg.Verify.CacheRadius), nil
}

// verifyConfig merges the verifier flags over the config file.
func verifyConfig() verify.Config {
	vcfg := verify.Config{
		Provider:     cfg.Verify.Provider,
		APIKey:       cfg.Verify.APIKey,
		BaseURL:      cfg.Verify.BaseURL,
		Model:        cfg.Verify.Model,
		Timeout:      cfg.GetVerifyTimeout(),
		MaxImageEdge: cfg.Verify.MaxImageEdge,
		JPEGQuality:  cfg.Verify.JPEGQuality,
	}
	if provider != "" {
		vcfg.Provider = provider
	}
	if model != "" {
		vcfg.Model = model
	}
	return vcfg
}

// runHeadless prints engine events as plain lines for CI rigs. The
// session ends itself once the plan completes.
func runHeadless(ctx context.Context, eng *watch.Engine, done context.CancelFunc) error {
	events, cancel := eng.Subscribe()
	defer cancel()

	logging.Boot("headless session started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if printEvent(ev) {
				done()
				return nil
			}
		}
	}
}

// printEvent writes one event line and reports whether the session is
// finished.
func printEvent(ev watch.Event) bool {
	switch ev.Kind {
	case watch.EventVerdict:
		if ev.Verdict == nil {
			return false
		}
		v := ev.Verdict
		cached := ""
		if v.Cached {
			cached = " (cached)"
		}
		fmt.Printf("step %d %s %.2f%s: %s\n", ev.Step.ID, v.Status, v.Confidence, cached, v.Feedback)

	case watch.EventStep:
		fmt.Printf("step %d done (%s)\n", ev.Step.ID, ev.Reason)

	case watch.EventQuota:
		fmt.Printf("quota locked (%s); no further checks today\n", ev.Reason)

	case watch.EventDone:
		fmt.Println("plan complete")
		return true
	}
	return false
}
