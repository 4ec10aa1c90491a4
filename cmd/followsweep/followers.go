package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"followsweep/internal/sweep"
	"followsweep/pkg/export"
	"followsweep/pkg/filter"
	"followsweep/pkg/models"
	"followsweep/pkg/ui"
)

var (
	listFiltered bool
	listJSON     bool
	removeBlock  bool
	exportOut    string
	clearYes     bool
	sweepBlock   bool
	sweepWorkers int
	sweepYes     bool
	subjectFlag  string
)

var followersCmd = &cobra.Command{
	Use:   "followers",
	Short: "Inspect and manage collected followers",
	Long: `Work with the followers already stored in the local database.

Every subcommand acts on one subject account: --subject when given, otherwise
the stored account, otherwise the account logged in to the browser.`,
}

var followersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored followers",
	Example: `  # Everyone collected so far
  followsweep followers list

  # Only followers matching the enabled filters
  followsweep followers list --filtered`,
	Args: cobra.NoArgs,
	RunE: runFollowersList,
}

var followersCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Show how many followers are stored",
	Args:  cobra.NoArgs,
	RunE:  runFollowersCount,
}

var followersRemoveCmd = &cobra.Command{
	Use:   "remove <source-id>",
	Short: "Remove a follower from the account",
	Long: `Remove a follower from the account in the browser, or block them with
--block, then delete the stored record. The record is kept when the action
fails.`,
	Args: cobra.ExactArgs(1),
	RunE: runFollowersRemove,
}

var followersExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored followers as CSV",
	Long: `Write every stored follower of the subject as CSV. Without --out the file
is named after the current hour and written to the export directory; use
--out - for stdout.`,
	Args: cobra.NoArgs,
	RunE: runFollowersExport,
}

var followersSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove every follower matching the filter settings",
	Long: `Remove, or block with --block, every stored follower that matches the
enabled filters. Actions are paced by the block-action rate limit. The sweep
stops early when the session is lost or the site keeps rate limiting.`,
	Example: `  # Preview, then sweep
  followsweep followers list --filtered
  followsweep followers sweep --block`,
	Args: cobra.NoArgs,
	RunE: runFollowersSweep,
}

var followersClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every stored follower of the subject",
	Args:  cobra.NoArgs,
	RunE:  runFollowersClear,
}

func init() {
	rootCmd.AddCommand(followersCmd)
	followersCmd.AddCommand(followersListCmd, followersCountCmd, followersRemoveCmd, followersExportCmd, followersSweepCmd, followersClearCmd)

	followersCmd.PersistentFlags().StringVarP(&subjectFlag, "subject", "s", "", "subject account")
	followersListCmd.Flags().BoolVar(&listFiltered, "filtered", false, "only followers matching the filter settings")
	followersListCmd.Flags().BoolVar(&listJSON, "json", false, "print JSON")
	followersRemoveCmd.Flags().BoolVar(&removeBlock, "block", false, "block instead of removing")
	followersExportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file, - for stdout")
	followersSweepCmd.Flags().BoolVar(&sweepBlock, "block", false, "block instead of removing")
	followersSweepCmd.Flags().IntVarP(&sweepWorkers, "workers", "w", 2, "concurrent browser tabs")
	followersSweepCmd.Flags().BoolVarP(&sweepYes, "yes", "y", false, "do not ask for confirmation")
	followersClearCmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "do not ask for confirmation")
}

func openFollowersApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return nil, err
	}
	a, err := newApp(cmd.Context(), cfg, appHooks{})
	if err != nil {
		return nil, err
	}
	a.useSubject(subjectFlag)
	return a, nil
}

func runFollowersList(cmd *cobra.Command, args []string) error {
	a, err := openFollowersApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	var records []models.FollowerRecord
	if listFiltered {
		cfg := a.settings.Snapshot()
		if !cfg.Enabled() {
			ui.PrintWarning("No filters are enabled; edit " + a.settings.Path())
		}
		records, err = a.service.ListFiltered(cmd.Context(), cfg)
	} else {
		records, err = a.service.List(cmd.Context())
	}
	if err != nil {
		return err
	}

	if listJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	var engine *filter.Engine
	if listFiltered {
		engine = filter.New(a.settings.Snapshot())
	}
	w := tabwriter.NewWriter(ui.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SOURCE ID\tHANDLE\tNAME\tMATCH\tBIO")
	for _, r := range records {
		match := ""
		if engine != nil {
			match, _ = engine.Match(r)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.SourceID, r.Handle, truncate(r.DisplayName, 24), match, truncate(oneLine(r.Bio), 60))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	ui.PrintInfo("Total", fmt.Sprintf("%d", len(records)))
	return nil
}

func runFollowersCount(cmd *cobra.Command, args []string) error {
	a, err := openFollowersApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.service.ProgressCount(cmd.Context())
	if err != nil {
		return err
	}
	subject, _ := a.service.Subject(cmd.Context())
	ui.PrintInfo("@"+subject, fmt.Sprintf("%d followers stored", n))
	return nil
}

func runFollowersRemove(cmd *cobra.Command, args []string) error {
	a, err := openFollowersApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.service.RemoveRecord(cmd.Context(), args[0], removeBlock); err != nil {
		return err
	}
	verb := "Removed"
	if removeBlock {
		verb = "Blocked"
	}
	ui.PrintSuccess(fmt.Sprintf("%s %s", verb, args[0]))
	return nil
}

func runFollowersExport(cmd *cobra.Command, args []string) error {
	a, err := openFollowersApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	switch exportOut {
	case "-":
		_, err := a.service.ExportAll(ctx, os.Stdout)
		return err
	case "":
		subject, err := a.service.Subject(ctx)
		if err != nil {
			return err
		}
		path, n, err := export.ToDir(ctx, a.store, subject, a.cfg.Export.Directory, time.Now())
		if err != nil {
			return err
		}
		ui.PrintSuccess(fmt.Sprintf("Exported %d records to %s", n, path))
		return nil
	default:
		f, err := os.Create(exportOut)
		if err != nil {
			return err
		}
		n, err := a.service.ExportAll(ctx, f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		ui.PrintSuccess(fmt.Sprintf("Exported %d records to %s", n, exportOut))
		return nil
	}
}

func runFollowersSweep(cmd *cobra.Command, args []string) error {
	a, err := openFollowersApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := a.settings.Snapshot()
	if !cfg.Enabled() {
		return fmt.Errorf("no filters are enabled; edit %s first", a.settings.Path())
	}
	records, err := a.service.ListFiltered(ctx, cfg)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		ui.PrintInfo("Matches", "0")
		return nil
	}

	verb := "Remove"
	if sweepBlock {
		verb = "Block"
	}
	if !sweepYes && !confirm(fmt.Sprintf("%s %d matching followers? (y/N): ", verb, len(records))) {
		return nil
	}

	done := 0
	summary := sweep.Run(ctx, a.service, records, sweepBlock, sweepWorkers, a.log, func(r sweep.Result) {
		done++
		if r.Err != nil {
			ui.PrintError(fmt.Sprintf("[%d/%d] %s", done, len(records), r.Job.Handle), r.Err)
			return
		}
		fmt.Fprintf(ui.Out, "[%d/%d] %s %s\n", done, len(records), ui.Green("ok"), r.Job.Handle)
	})

	if summary.Err != nil {
		ui.PrintWarning("Sweep stopped: " + summary.Err.Error())
	}
	ui.PrintInfo("Sweep", summary.String())
	if len(summary.Failed) > 0 || summary.Err != nil {
		return fmt.Errorf("sweep incomplete: %s", summary)
	}
	return nil
}

func runFollowersClear(cmd *cobra.Command, args []string) error {
	a, err := openFollowersApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	subject, err := a.service.Subject(cmd.Context())
	if err != nil {
		return err
	}
	if !clearYes && !confirm(fmt.Sprintf("Delete every stored follower of @%s? (y/N): ", subject)) {
		return nil
	}
	n, err := a.service.ClearAll(cmd.Context())
	if err != nil {
		return err
	}
	if err := a.journal.Delete(subject); err != nil {
		a.log.WithError(err).Warn("Failed to delete session checkpoint")
	}
	ui.PrintSuccess(fmt.Sprintf("Deleted %d records", n))
	return nil
}

func confirm(prompt string) bool {
	fmt.Fprint(ui.Out, prompt)
	input, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
