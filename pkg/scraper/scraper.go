package scraper

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	errs "followsweep/pkg/errors"
	"followsweep/pkg/export"
	"followsweep/pkg/filter"
	"followsweep/pkg/logger"
	"followsweep/pkg/models"
	"followsweep/pkg/session"
)

// Service implements the operator actions
type Service struct {
	sessions Sessions
	records  Records
	actions  FollowerActions
	resolve  AccountResolver
	onFatal  func(error)
	logger   logger.Logger

	mu      sync.Mutex
	subject string
}

// Option customises a Service
type Option func(*Service)

// WithActions enables RemoveRecord
func WithActions(a FollowerActions) Option { return func(s *Service) { s.actions = a } }

// WithAccountResolver supplies the subject when none is set
func WithAccountResolver(r AccountResolver) Option { return func(s *Service) { s.resolve = r } }

// WithFatalHandler is called with store I/O errors
func WithFatalHandler(fn func(error)) Option { return func(s *Service) { s.onFatal = fn } }

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option { return func(s *Service) { s.logger = l } }

// New creates a Service
func New(sessions Sessions, records Records, opts ...Option) *Service {
	s := &Service{sessions: sessions, records: records}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.GetLogger()
	}
	s.logger = s.logger.WithField("component", "service")
	return s
}

// UseSubject scopes later operations to subject
func (s *Service) UseSubject(subject string) {
	s.mu.Lock()
	s.subject = normalize(subject)
	s.mu.Unlock()
}

// Subject returns the current subject account, resolving the logged-in
// account the first time none is set.
func (s *Service) Subject(ctx context.Context) (string, error) {
	s.mu.Lock()
	subject := s.subject
	s.mu.Unlock()
	if subject != "" {
		return subject, nil
	}
	if s.resolve == nil {
		return "", errs.New(errs.ErrorTypeInvalidInput, "service.subject", "no subject account set")
	}

	acct, err := s.resolve(ctx)
	if err != nil {
		return "", err
	}
	acct = normalize(acct)
	s.mu.Lock()
	if s.subject == "" {
		s.subject = acct
	}
	subject = s.subject
	s.mu.Unlock()
	return subject, nil
}

// StartCollection starts a session for subject, or for the current subject
// when it is empty. It fails with AlreadyRunning while a session runs.
func (s *Service) StartCollection(ctx context.Context, subject string) error {
	subject = normalize(subject)
	if subject == "" {
		var err error
		if subject, err = s.Subject(ctx); err != nil {
			return err
		}
	}
	if err := s.sessions.Start(subject); err != nil {
		return err
	}
	s.UseSubject(subject)
	s.logger.WithField("subject", subject).Info("Collection requested")
	return nil
}

// StopCollection requests cancellation. It reports whether a session was
// running.
func (s *Service) StopCollection() bool {
	stopped := s.sessions.Stop()
	if stopped {
		s.logger.Info("Collection stop requested")
	}
	return stopped
}

// Status returns the session snapshot
func (s *Service) Status() session.Snapshot {
	return s.sessions.Snapshot()
}

// Wait blocks until the current session ends
func (s *Service) Wait(ctx context.Context) error {
	_, err := s.sessions.Wait(ctx)
	return err
}

// ProgressCount returns how many records the store holds for the subject.
// It is safe to call while a session writes.
func (s *Service) ProgressCount(ctx context.Context) (int, error) {
	subject, err := s.Subject(ctx)
	if err != nil {
		return 0, err
	}
	n, err := s.records.Count(ctx, subject)
	return n, s.check(err)
}

// List returns every record of the subject in insertion order
func (s *Service) List(ctx context.Context) ([]models.FollowerRecord, error) {
	subject, err := s.Subject(ctx)
	if err != nil {
		return nil, err
	}
	recs, err := s.records.ListBySubject(ctx, subject)
	return recs, s.check(err)
}

// ListFiltered returns the subject's records matching cfg. A configuration
// with no enabled check matches nothing.
func (s *Service) ListFiltered(ctx context.Context, cfg filter.Config) ([]models.FollowerRecord, error) {
	if !cfg.Enabled() {
		return []models.FollowerRecord{}, nil
	}
	recs, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return filter.New(cfg).Filter(recs), nil
}

// RemoveRecord removes the follower from the remote account, blocking them
// when block is set, then deletes the stored row. The row is kept when the
// remote action fails.
func (s *Service) RemoveRecord(ctx context.Context, sourceID string, block bool) error {
	sourceID = normalize(sourceID)
	if sourceID == "" {
		return errs.New(errs.ErrorTypeInvalidInput, "service.remove", "source id is required")
	}
	subject, err := s.Subject(ctx)
	if err != nil {
		return err
	}
	rec, err := s.records.Get(ctx, subject, sourceID)
	if err != nil {
		return s.check(err)
	}

	if s.actions == nil {
		return errs.New(errs.ErrorTypeInvalidInput, "service.remove", "follower actions are not available")
	}
	handle := strings.TrimPrefix(rec.Handle, "@")
	if handle == "" {
		handle = rec.SourceID
	}
	if block {
		err = s.actions.Block(ctx, handle)
	} else {
		err = s.actions.Remove(ctx, handle)
	}
	if err != nil {
		return err
	}

	if err := s.records.DeleteOne(ctx, subject, sourceID); err != nil {
		return s.check(err)
	}
	s.logger.WithFields(map[string]interface{}{
		"subject": subject,
		"source":  sourceID,
		"block":   block,
	}).Info("Follower removed")
	return nil
}

// ClearAll deletes every record of the subject and compacts the store when
// it supports it. A failed compaction is only logged.
func (s *Service) ClearAll(ctx context.Context) (int64, error) {
	subject, err := s.Subject(ctx)
	if err != nil {
		return 0, err
	}
	n, err := s.records.ClearAll(ctx, subject)
	if err != nil {
		return n, s.check(err)
	}
	if c, ok := s.records.(Compacter); ok && n > 0 {
		if err := c.Vacuum(ctx); err != nil {
			s.logger.WithError(err).Warn("Failed to compact store after clear")
		}
	}
	return n, nil
}

// ExportAll writes every record of the subject to w as CSV
func (s *Service) ExportAll(ctx context.Context, w io.Writer) (int, error) {
	subject, err := s.Subject(ctx)
	if err != nil {
		return 0, err
	}
	n, err := export.WriteCSV(ctx, s.records, subject, w)
	return n, s.check(err)
}

// check hands store I/O errors to the fatal handler and returns err. A call
// abandoned by its caller is never fatal.
func (s *Service) check(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if err != nil && errs.IsProcessFatal(err) {
		s.logger.WithError(err).Error("Store failure")
		if s.onFatal != nil {
			s.onFatal(err)
		}
	}
	return err
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "@")))
}
