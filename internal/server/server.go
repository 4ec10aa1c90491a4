// Package server exposes the operator surface over HTTP.
//
// Routes:
//
//	POST   /api/collection              start a session ({"subject": "..."}, optional)
//	GET    /api/collection              session snapshot
//	DELETE /api/collection              stop the running session
//	GET    /api/followers               stored records (?filtered=1 applies the settings)
//	GET    /api/followers/count         stored record count
//	DELETE /api/followers               clear the subject's records
//	POST   /api/followers/sweep         remove every filtered follower (?block=true blocks)
//	DELETE /api/followers/{sourceID}    remove a follower (?block=true blocks instead)
//	GET    /api/export                  CSV download
//	GET    /api/settings                current filter settings
//	PUT    /api/settings                replace the filter settings
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"followsweep/pkg/config"
	"followsweep/pkg/filter"
	"followsweep/pkg/logger"
	"followsweep/pkg/models"
	"followsweep/pkg/session"
	"followsweep/pkg/settings"
)

// Operator is the facade the handlers drive
type Operator interface {
	StartCollection(ctx context.Context, subject string) error
	StopCollection() bool
	Status() session.Snapshot
	ProgressCount(ctx context.Context) (int, error)
	List(ctx context.Context) ([]models.FollowerRecord, error)
	ListFiltered(ctx context.Context, cfg filter.Config) ([]models.FollowerRecord, error)
	RemoveRecord(ctx context.Context, sourceID string, block bool) error
	ClearAll(ctx context.Context) (int64, error)
	ExportAll(ctx context.Context, w io.Writer) (int, error)
}

// Server serves the operator API
type Server struct {
	op       Operator
	settings *settings.Store
	log      logger.Logger
	cfg      config.ServerConfig
	router   *chi.Mux
	now      func() time.Time
}

// New builds the router. settings may be nil, in which case filtering and
// the settings routes answer 404.
func New(cfg config.ServerConfig, op Operator, st *settings.Store, log logger.Logger) *Server {
	if log == nil {
		log = logger.NewNopLogger()
	}
	s := &Server{
		op:       op,
		settings: st,
		log:      log.WithField("component", "server"),
		cfg:      cfg,
		now:      time.Now,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Route("/api", func(r chi.Router) {
		r.Route("/collection", func(r chi.Router) {
			r.Post("/", s.handleStart)
			r.Get("/", s.handleStatus)
			r.Delete("/", s.handleStop)
		})
		r.Route("/followers", func(r chi.Router) {
			r.Get("/", s.handleList)
			r.Get("/count", s.handleCount)
			r.Delete("/", s.handleClear)
			r.Post("/sweep", s.handleSweep)
			r.Delete("/{sourceID}", s.handleRemove)
		})
		r.Get("/export", s.handleExport)
		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handlePutSettings)
	})

	s.router = r
	return s
}

// Handler returns the router
func (s *Server) Handler() http.Handler { return s.router }

// Run listens on the configured address until ctx is done, then shuts down
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.InfoWithFields("API listening", map[string]interface{}{"addr": s.cfg.Addr})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.Info("API stopped")
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.DebugWithFields("request", map[string]interface{}{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start),
			"request_id": middleware.GetReqID(r.Context()),
		})
	})
}
