// Package collector runs the followers collection loop against a driven page.
//
// Each iteration measures the timeline's height, extracts the rendered cells,
// writes new records, scrolls the list forward and lets the rate-limit guard
// inspect the page. The loop ends successfully once the height stops changing
// for MaxStallRetries consecutive reads, which is how the end of the list
// shows itself.
package collector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"followsweep/pkg/channel"
	"followsweep/pkg/config"
	errs "followsweep/pkg/errors"
	"followsweep/pkg/extractor"
	"followsweep/pkg/logger"
	"followsweep/pkg/models"
	"followsweep/pkg/ratelimit"
	"followsweep/pkg/retry"
)

// Outcome is how a session ended
type Outcome int

const (
	// Success means the end of the list was reached.
	Success Outcome = iota
	// Cancelled means a stop request or a lost channel ended the session.
	Cancelled
	// Failed means rate-limit exhaustion or a store failure ended the session.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result summarizes a finished session
type Result struct {
	Outcome    Outcome
	Err        error
	Iterations int
	Written    int
	Skipped    int
}

// Progress is reported after every iteration that extracted a batch
type Progress struct {
	Subject    string
	Iteration  int
	Batch      int
	Written    int
	Stalls     int
	Height     float64
	RateLimits int
}

// Store is the write side of the follower store
type Store interface {
	UpsertBatch(ctx context.Context, records []models.FollowerRecord) (int, error)
}

// Config holds the loop timings
type Config struct {
	ContainerTimeout time.Duration
	InitialSettle    time.Duration
	RenderSettle     time.Duration
	ScrollSettle     time.Duration
	AnchorTimeout    time.Duration
	StallBaseDelay   time.Duration
	MaxStallRetries  int
	NudgeOffset      int
	PaceBase         time.Duration
	PaceJitter       time.Duration
	RateLimit        ratelimit.GuardConfig
}

// FromConfig maps the application configuration onto loop timings
func FromConfig(cfg *config.Config) Config {
	c := cfg.Collection
	return Config{
		ContainerTimeout: cfg.Browser.NavigationTimeout,
		InitialSettle:    c.InitialSettle,
		RenderSettle:     c.RenderSettle,
		ScrollSettle:     c.RenderSettle,
		AnchorTimeout:    c.AnchorTimeout,
		StallBaseDelay:   c.StallBaseDelay,
		MaxStallRetries:  c.MaxStallRetries,
		NudgeOffset:      c.NudgeOffset,
		PaceBase:         c.PaceBase,
		PaceJitter:       c.PaceJitter,
		RateLimit: ratelimit.GuardConfig{
			BaseWait:    cfg.RateLimit.BaseWait,
			Settle:      cfg.RateLimit.SettleDelay,
			MaxAttempts: cfg.RateLimit.MaxAttempts,
		},
	}
}

// Option customises a Loop
type Option func(*Loop)

// WithWait replaces the sleep used for every delay
func WithWait(w retry.WaitFunc) Option { return func(l *Loop) { l.wait = w } }

// WithLogger sets the logger
func WithLogger(log logger.Logger) Option { return func(l *Loop) { l.log = log } }

// WithProgress registers a progress callback
func WithProgress(fn func(Progress)) Option { return func(l *Loop) { l.progress = fn } }

// WithJitter replaces the pacing jitter source
func WithJitter(fn func(base, spread time.Duration) time.Duration) Option {
	return func(l *Loop) { l.jitter = fn }
}

// Loop collects followers of one subject per Run
type Loop struct {
	cfg      Config
	store    Store
	wait     retry.WaitFunc
	log      logger.Logger
	progress func(Progress)
	jitter   func(base, spread time.Duration) time.Duration
}

// New creates a loop writing to store
func New(cfg Config, store Store, opts ...Option) *Loop {
	l := &Loop{
		cfg:    cfg,
		store:  store,
		wait:   retry.Wait,
		log:    logger.GetLogger(),
		jitter: retry.Jitter,
	}
	for _, o := range opts {
		o(l)
	}
	if l.cfg.MaxStallRetries <= 0 {
		l.cfg.MaxStallRetries = 3
	}
	return l
}

// session is the mutable state of one Run
type session struct {
	subject    string
	log        logger.Logger
	guard      *ratelimit.Guard
	seen       map[string]struct{}
	lastHeight float64
	stalls     int
	res        Result
}

// Run collects until the list ends, ctx is cancelled, the page disconnects,
// the rate-limit guard gives up or the store fails. It never returns an
// error; the Result carries the outcome.
func (l *Loop) Run(ctx context.Context, page channel.Page, subject string) Result {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	go func() {
		select {
		case <-page.Disconnected():
			cancel(errs.New(errs.ErrorTypeChannelDisconnected, "collector", "automation channel lost"))
		case <-ctx.Done():
		}
	}()

	s := &session{
		subject:    strings.ToLower(strings.TrimSpace(subject)),
		seen:       make(map[string]struct{}),
		lastHeight: -1,
	}
	s.log = l.log.WithField("subject", s.subject)
	gcfg := l.cfg.RateLimit
	gcfg.Wait = l.wait
	gcfg.Logger = s.log
	gcfg.Subject = s.subject
	s.guard = ratelimit.NewGuard(gcfg)

	s.log.Info("Collection started")
	res := l.run(ctx, page, s)
	fields := map[string]interface{}{
		"outcome":    res.Outcome.String(),
		"iterations": res.Iterations,
		"written":    res.Written,
		"skipped":    res.Skipped,
	}
	if res.Err != nil {
		s.log.WithError(res.Err).WarnWithFields("Collection ended", fields)
	} else {
		s.log.InfoWithFields("Collection ended", fields)
	}
	return res
}

func (l *Loop) run(ctx context.Context, page channel.Page, s *session) Result {
	if _, err := page.WaitFor(ctx, extractor.FollowerTimeline, l.cfg.ContainerTimeout); err != nil {
		if ctx.Err() != nil {
			return l.cancelled(ctx, s)
		}
		// the stall handling below decides whether the list is really empty
		s.log.WithError(err).Warn("Followers timeline did not appear")
	}
	if err := l.wait(ctx, l.cfg.InitialSettle); err != nil {
		return l.cancelled(ctx, s)
	}

	for ctx.Err() == nil && page.Connected() {
		s.res.Iterations++

		height, nodes, batch, err := l.measureAndExtract(ctx, page, s)
		if err != nil {
			return l.cancelled(ctx, s)
		}

		if len(batch) == 0 {
			s.stalls++
			if s.stalls > l.cfg.MaxStallRetries {
				s.res.Outcome = Success
				return s.res
			}
			if err := l.nudge(ctx, page, s); err != nil {
				return l.cancelled(ctx, s)
			}
			continue
		}
		s.stalls = 0
		s.lastHeight = height

		fresh := s.unseen(batch)
		if len(fresh) > 0 {
			n, err := l.store.UpsertBatch(ctx, fresh)
			if err != nil {
				if ctx.Err() != nil {
					return l.cancelled(ctx, s)
				}
				s.res.Outcome = Failed
				s.res.Err = err
				return s.res
			}
			s.res.Written += n
		}

		if err := l.advance(ctx, nodes, s); err != nil {
			return l.cancelled(ctx, s)
		}

		if err := s.guard.Check(ctx, page); err != nil {
			if errors.Is(err, errs.ErrRateLimitExhausted) {
				s.res.Outcome = Failed
				s.res.Err = err
				return s.res
			}
			if errors.Is(err, errs.ErrChannelDisconnected) {
				s.res.Outcome = Cancelled
				s.res.Err = err
				return s.res
			}
			return l.cancelled(ctx, s)
		}

		if l.progress != nil {
			l.progress(Progress{
				Subject:    s.subject,
				Iteration:  s.res.Iterations,
				Batch:      len(fresh),
				Written:    s.res.Written,
				Stalls:     s.stalls,
				Height:     height,
				RateLimits: s.guard.Attempts(),
			})
		}

		if err := l.wait(ctx, l.jitter(l.cfg.PaceBase, l.cfg.PaceJitter)); err != nil {
			return l.cancelled(ctx, s)
		}
	}
	if ctx.Err() == nil {
		s.res.Outcome = Cancelled
		s.res.Err = errs.New(errs.ErrorTypeChannelDisconnected, "collector", "automation channel lost")
		return s.res
	}
	return l.cancelled(ctx, s)
}

// measureAndExtract reads the height signal and, if it moved, the rendered
// batch. An unchanged or unreadable height yields an empty batch. Only
// cancellation is returned as an error.
func (l *Loop) measureAndExtract(ctx context.Context, page channel.Page, s *session) (float64, []channel.Node, []models.FollowerRecord, error) {
	raw, err := page.Eval(ctx, extractor.HeightScript)
	if err != nil {
		if ctx.Err() != nil {
			return 0, nil, nil, ctx.Err()
		}
		s.log.WithError(err).Debug("Height read failed")
		return 0, nil, nil, nil
	}
	height := extractor.ParseHeight(raw)
	if height == 0 || height == s.lastHeight {
		s.log.WithField("height", height).Debug("Timeline height unchanged")
		return height, nil, nil, nil
	}

	if err := l.wait(ctx, l.cfg.RenderSettle); err != nil {
		return 0, nil, nil, err
	}

	nodes, err := page.QueryAll(ctx, extractor.UserCell)
	if err != nil {
		if ctx.Err() != nil {
			return 0, nil, nil, ctx.Err()
		}
		s.log.WithError(err).Debug("Cell query failed")
		return height, nil, nil, nil
	}
	b, err := extractor.ExtractBatch(ctx, nodes, s.subject)
	if err != nil {
		return 0, nil, nil, err
	}
	if b.Skipped > 0 {
		s.log.WithField("skipped", b.Skipped).Debug("Incomplete cells skipped")
	}
	s.res.Skipped += b.Skipped
	return height, nodes, b.Records, nil
}

// unseen drops records already written in this session.
func (s *session) unseen(batch []models.FollowerRecord) []models.FollowerRecord {
	out := make([]models.FollowerRecord, 0, len(batch))
	for _, r := range batch {
		if _, ok := s.seen[r.RecordKey]; ok {
			continue
		}
		s.seen[r.RecordKey] = struct{}{}
		out = append(out, r)
	}
	return out
}

// nudge scrolls past the current end of the list and waits stalls*StallBaseDelay.
func (l *Loop) nudge(ctx context.Context, page channel.Page, s *session) error {
	if _, err := page.Eval(ctx, extractor.NudgeScript(l.cfg.NudgeOffset)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.WithError(err).Debug("Nudge scroll failed")
	}
	delay := time.Duration(s.stalls) * l.cfg.StallBaseDelay
	s.log.WithFields(map[string]interface{}{
		"stalls": s.stalls,
		"wait":   delay,
	}).Debug("No new entries, nudging")
	return l.wait(ctx, delay)
}

// advance scrolls the last cell into view and waits for the first cell to
// leave the viewport. A timeout there is tolerated.
func (l *Loop) advance(ctx context.Context, nodes []channel.Node, s *session) error {
	if len(nodes) == 0 {
		return nil
	}
	if err := nodes[len(nodes)-1].ScrollIntoView(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.WithError(err).Debug("Scroll into view failed")
	}

	err := nodes[0].WaitGone(ctx, l.cfg.AnchorTimeout)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, channel.ErrTimeout):
		s.log.WithError(errs.Wrap(errs.ErrorTypeLayoutTimeout, "collector.advance", err)).Info("Anchor still visible, continuing")
	default:
		s.log.WithError(err).Debug("Anchor wait failed")
	}

	return l.wait(ctx, l.cfg.ScrollSettle)
}

func (l *Loop) cancelled(ctx context.Context, s *session) Result {
	s.res.Outcome = Cancelled
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		s.res.Err = cause
	}
	return s.res
}
