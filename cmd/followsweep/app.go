package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"followsweep/pkg/auth"
	"followsweep/pkg/browser"
	"followsweep/pkg/checkpoint"
	"followsweep/pkg/collector"
	"followsweep/pkg/config"
	"followsweep/pkg/logger"
	"followsweep/pkg/ratelimit"
	"followsweep/pkg/scraper"
	"followsweep/pkg/session"
	"followsweep/pkg/settings"
	"followsweep/pkg/store"
)

// app holds the wired components one command works with
type app struct {
	cfg      *config.Config
	log      logger.Logger
	account  *auth.Account
	store    *store.Store
	settings *settings.Store
	browser  *browser.Controller
	sessions *session.Coordinator
	service  *scraper.Service
	journal  *checkpoint.Manager
}

type appHooks struct {
	progress func(collector.Progress)
	finished func(session.Snapshot)
}

// newApp opens the store and settings and wires the browser, collector,
// session coordinator and service. The browser launches on first use.
func newApp(ctx context.Context, cfg *config.Config, hooks appHooks) (*app, error) {
	log := logger.GetLogger()
	a := &app{cfg: cfg, log: log}

	account, err := loadAccount(accountName)
	switch {
	case err == nil:
		a.account = account
		if cfg.Browser.UserAgent == "" {
			cfg.Browser.UserAgent = account.UserAgent
		}
		log.WithField("account", account.Username).Info("Using stored credentials")
	case accountName != "":
		return nil, err
	case errors.Is(err, auth.ErrCredentialsNotFound):
		log.Warn("No stored credentials, relying on the browser profile's login")
	default:
		log.WithError(err).Warn("Credential stores unavailable, relying on the browser profile's login")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	a.store, err = store.Open(ctx, cfg.Store.Path)
	if err != nil {
		return nil, err
	}

	a.settings, err = settings.Open(cfg.Settings.Path)
	if err != nil {
		a.store.Close()
		return nil, err
	}

	a.journal, err = checkpoint.NewManager(filepath.Join(filepath.Dir(cfg.Store.Path), "checkpoints"))
	if err != nil {
		a.store.Close()
		return nil, err
	}

	a.browser = browser.New(cfg.Browser, log)
	if a.account != nil {
		a.browser.SetSession(a.account.AuthToken, a.account.CSRFToken)
	}

	fatal := func(err error) {
		log.WithError(err).Fatal("Follower store failed")
	}

	loopOpts := []collector.Option{collector.WithLogger(log)}
	if hooks.progress != nil {
		loopOpts = append(loopOpts, collector.WithProgress(hooks.progress))
	}
	loop := collector.New(collector.FromConfig(cfg), a.store, loopOpts...)

	finished := func(snap session.Snapshot) {
		if err := a.journal.Save(snap); err != nil {
			log.WithError(err).Warn("Failed to record session checkpoint")
		}
		if hooks.finished != nil {
			hooks.finished(snap)
		}
	}
	a.sessions = session.New(loop, a.browser.OpenFollowers,
		session.WithBaseContext(ctx),
		session.WithFatalHandler(fatal),
		session.WithFinishHandler(finished),
		session.WithLogger(log),
	)

	actions := browser.NewActions(a.browser.OpenURL, cfg.Browser.BaseURL,
		ratelimit.PerMinute(cfg.RateLimit.BlockActionsPerMinute), cfg.Browser.NavigationTimeout, log)

	a.service = scraper.New(a.sessions, a.store,
		scraper.WithActions(actions),
		scraper.WithAccountResolver(a.resolveAccount),
		scraper.WithFatalHandler(fatal),
		scraper.WithLogger(log),
	)
	return a, nil
}

// resolveAccount prefers the stored account name and asks the browser
// otherwise
func (a *app) resolveAccount(ctx context.Context) (string, error) {
	if a.account != nil && a.account.Username != "" && a.account.Username != auth.DefaultEnvUsername {
		return a.account.Username, nil
	}
	return a.browser.DetectAccount(ctx)
}

// useSubject scopes the service to an explicit subject when one was given
func (a *app) useSubject(subject string) {
	if subject != "" {
		a.service.UseSubject(subject)
	}
}

// lastRun returns the journal of the previous session for subject, nil when
// there is none or it cannot be read
func (a *app) lastRun(subject string) *checkpoint.Checkpoint {
	cp, err := a.journal.Load(subject)
	if err != nil {
		a.log.WithError(err).Warn("Ignoring unreadable checkpoint")
		return nil
	}
	return cp
}

func (a *app) Close() {
	if err := a.browser.Close(); err != nil {
		a.log.WithError(err).Warn("Failed to close browser")
	}
	if err := a.store.Close(); err != nil {
		a.log.WithError(err).Warn("Failed to close store")
	}
}

func loadAccount(name string) (*auth.Account, error) {
	manager, err := auth.NewManager("")
	if err != nil {
		return nil, err
	}
	return manager.Default(name)
}
