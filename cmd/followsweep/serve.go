package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"followsweep/internal/server"
	"followsweep/pkg/collector"
	"followsweep/pkg/logger"
	"followsweep/pkg/session"
	"followsweep/pkg/settings"
	"followsweep/pkg/ui"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the operator HTTP API",
	Long: `Serve the operator API. Collections are started and stopped over HTTP,
and the filter settings file is watched so edits apply to the next
filtered listing without a restart.`,
	Example: `  followsweep serve --addr 127.0.0.1:8787
  curl -X POST localhost:8787/api/collection -d '{"subject":"someaccount"}'
  curl 'localhost:8787/api/followers?filtered=1'`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	overrides := map[string]interface{}{}
	if serveAddr != "" {
		overrides["addr"] = serveAddr
	}
	cfg, err := loadConfig(cmd, overrides)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	notifier := ui.NewNotifier(cfg.Notifications, ui.PlatformSender(), nil)
	log := logger.GetLogger()

	a, err := newApp(ctx, cfg, appHooks{
		progress: func(p collector.Progress) {
			logger.LogCollectionProgress(p.Subject, p.Iteration, p.Written)
		},
		finished: notifier.SessionEnded,
	})
	if err != nil {
		return err
	}
	defer a.Close()

	srv := server.New(cfg.Server, a.service, a.settings, log)
	ui.PrintInfo("Listening", "http://"+cfg.Server.Addr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	if cfg.Settings.Watch {
		g.Go(func() error {
			return a.settings.Watch(gctx,
				settings.WithWatchLogger(log),
				settings.WithOnChange(func(s settings.Settings) {
					log.WithField("path", a.settings.Path()).Info("Filter settings reloaded")
				}),
			)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		if a.service.StopCollection() {
			waitCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := a.service.Wait(waitCtx); err != nil {
				log.WithError(err).Warn("Session did not stop in time")
			}
		}
		return nil
	})

	logger.LogComponentStart("server", map[string]interface{}{"addr": cfg.Server.Addr, "watch": cfg.Settings.Watch})
	err = g.Wait()
	logger.LogComponentStop("server", "shutdown")

	if snap := a.service.Status(); snap.State == session.Running {
		log.Warn("Exiting with a session still running")
	}
	return err
}
