package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"followsweep/pkg/checkpoint"
	"followsweep/pkg/collector"
	"followsweep/pkg/config"
	"followsweep/pkg/logger"
	"followsweep/pkg/session"
	"followsweep/pkg/ui"
	"followsweep/pkg/ui/tui"
)

var useTUI bool

var collectCmd = &cobra.Command{
	Use:   "collect [subject]",
	Short: "Collect the followers of an account",
	Long: `Open the followers list of subject in the browser and scroll it to the
end, storing every follower on the way. Without a subject the logged-in
account is used.

The session ends on its own when the list stops growing. Press Ctrl-C to
stop early; everything collected so far stays in the database, and running
collect again picks up the same records without duplicating them.`,
	Example: `  # Collect your own followers
  followsweep collect

  # Collect another account's followers with the live dashboard
  followsweep collect someaccount --tui

  # Show the browser window while collecting
  followsweep collect --headless=false`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCollect,
}

func init() {
	rootCmd.AddCommand(collectCmd)
	collectCmd.Flags().BoolVar(&useTUI, "tui", false, "show a live dashboard")
}

func runCollect(cmd *cobra.Command, args []string) error {
	var subject string
	if len(args) > 0 {
		subject = args[0]
	}

	overrides := map[string]interface{}{}
	if useTUI && logLevel == "" {
		// console logs would tear the dashboard
		overrides["log-level"] = "error"
	}
	cfg, err := loadConfig(cmd, overrides)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if useTUI {
		return collectWithTUI(ctx, cfg, subject)
	}

	notifier := ui.NewNotifier(cfg.Notifications, ui.PlatformSender(), nil)

	line := ui.NewProgressLine(nil, cfg.Collection.MaxStallRetries, cfg.RateLimit.MaxAttempts)
	a, err := newApp(ctx, cfg, appHooks{
		progress: func(p collector.Progress) {
			line.Update(p)
			logger.LogCollectionProgress(p.Subject, p.Iteration, p.Written)
		},
		finished: func(snap session.Snapshot) {
			line.Done()
			notifier.SessionEnded(snap)
		},
	})
	if err != nil {
		return err
	}
	defer a.Close()
	a.useSubject(subject)

	resolved, err := a.service.Subject(ctx)
	if err != nil {
		return err
	}
	ui.PrintInfo("Subject", "@"+resolved)
	printLastRun(a.lastRun(resolved))
	if n, err := a.service.ProgressCount(ctx); err == nil && n > 0 {
		ui.PrintInfo("Already stored", fmt.Sprintf("%d", n))
	}

	logger.LogComponentStart("collector", map[string]interface{}{"subject": resolved})
	if err := a.service.StartCollection(ctx, resolved); err != nil {
		return err
	}
	if err := a.service.Wait(context.Background()); err != nil {
		return err
	}

	snap := a.service.Status()
	logger.LogComponentStop("collector", snap.Outcome)
	if snap.Outcome == collector.Failed.String() {
		return fmt.Errorf("collection failed: %s", snap.Error)
	}
	ui.PrintInfo("Rate", fmt.Sprintf("%.1f records/min", line.Rate()))
	return nil
}

func collectWithTUI(ctx context.Context, cfg *config.Config, subject string) error {
	notifier := ui.NewNotifier(cfg.Notifications, ui.PlatformSender(), io.Discard)

	var dash *tui.TUI
	a, err := newApp(ctx, cfg, appHooks{
		progress: func(p collector.Progress) { dash.Progress(p) },
		finished: func(snap session.Snapshot) {
			dash.Finished(snap)
			notifier.SessionEnded(snap)
		},
	})
	if err != nil {
		return err
	}
	defer a.Close()
	a.useSubject(subject)

	resolved, err := a.service.Subject(ctx)
	if err != nil {
		return err
	}
	dash = tui.New(resolved, cfg.Collection.MaxStallRetries, cfg.RateLimit.MaxAttempts, func() {
		a.service.StopCollection()
	})
	if err := a.service.StartCollection(ctx, resolved); err != nil {
		return err
	}
	dash.LogInfo("collecting followers of @%s", resolved)
	if cp := a.lastRun(resolved); cp != nil && cp.Interrupted() {
		dash.LogWarning("last run ended %s after %d records", cp.Outcome, cp.Written)
	}

	if err := dash.Start(); err != nil {
		a.service.StopCollection()
		return err
	}

	// the dashboard can be left before the session ends
	if a.service.StopCollection() {
		ui.PrintWarning("Stopping collection...")
	}
	if err := a.service.Wait(context.Background()); err != nil {
		return err
	}
	snap := a.service.Status()
	if snap.Outcome == collector.Failed.String() {
		return fmt.Errorf("collection failed: %s", snap.Error)
	}
	ui.PrintSuccess(fmt.Sprintf("@%s: %d records written", resolved, snap.Written))
	return nil
}

func printLastRun(cp *checkpoint.Checkpoint) {
	if cp == nil {
		return
	}
	summary := fmt.Sprintf("%s, %d records, %s ago", cp.Outcome, cp.Written,
		cp.Age(time.Now()).Round(time.Minute))
	if !cp.Interrupted() {
		ui.PrintInfo("Last run", summary)
		return
	}
	if cp.Error != "" {
		summary += ": " + cp.Error
	}
	ui.PrintWarning("Last run was interrupted (" + summary + ")")
}
