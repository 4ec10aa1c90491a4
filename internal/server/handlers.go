package server

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"followsweep/internal/sweep"
	errs "followsweep/pkg/errors"
	"followsweep/pkg/export"
	"followsweep/pkg/settings"
)

type startRequest struct {
	Subject string `json:"subject"`
}

type countResponse struct {
	Count int `json:"count"`
}

type stopResponse struct {
	Stopped bool `json:"stopped"`
}

type clearResponse struct {
	Deleted int64 `json:"deleted"`
}

// sweepWorkers bounds the browser tabs one API sweep opens
const sweepWorkers = 2

type sweepFailure struct {
	SourceID string `json:"source_id"`
	Error    string `json:"error"`
}

type sweepResponse struct {
	Matched int            `json:"matched"`
	Done    int            `json:"done"`
	Skipped int            `json:"skipped"`
	Failed  []sweepFailure `json:"failed"`
	Error   string         `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Type  string `json:"type,omitempty"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, errs.Wrap(errs.ErrorTypeInvalidInput, "server.start", err))
			return
		}
	}
	if err := s.op.StartCollection(r.Context(), req.Subject); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, s.op.Status())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.op.Status())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, stopResponse{Stopped: s.op.StopCollection()})
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	n, err := s.op.ProgressCount(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, countResponse{Count: n})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	filtered, _ := strconv.ParseBool(r.URL.Query().Get("filtered"))
	if !filtered {
		records, err := s.op.List(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, records)
		return
	}

	if s.settings == nil {
		s.writeError(w, errs.New(errs.ErrorTypeNotFound, "server.list", "no settings configured"))
		return
	}
	records, err := s.op.ListFiltered(r.Context(), s.settings.Snapshot())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	block, _ := strconv.ParseBool(r.URL.Query().Get("block"))
	if err := s.op.RemoveRecord(r.Context(), chi.URLParam(r, "sourceID"), block); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		s.writeError(w, errs.New(errs.ErrorTypeNotFound, "server.sweep", "no settings configured"))
		return
	}
	cfg := s.settings.Snapshot()
	if !cfg.Enabled() {
		s.writeError(w, errs.New(errs.ErrorTypeInvalidInput, "server.sweep", "no filters are enabled"))
		return
	}
	records, err := s.op.ListFiltered(r.Context(), cfg)
	if err != nil {
		s.writeError(w, err)
		return
	}

	block, _ := strconv.ParseBool(r.URL.Query().Get("block"))
	summary := sweep.Run(r.Context(), s.op, records, block, sweepWorkers, s.log, nil)

	resp := sweepResponse{
		Matched: len(records),
		Done:    summary.Done,
		Skipped: summary.Skipped,
		Failed:  make([]sweepFailure, 0, len(summary.Failed)),
	}
	for _, f := range summary.Failed {
		resp.Failed = append(resp.Failed, sweepFailure{SourceID: f.Job.SourceID, Error: f.Err.Error()})
	}
	if summary.Err != nil {
		resp.Error = summary.Err.Error()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	n, err := s.op.ClearAll(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, clearResponse{Deleted: n})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	n, err := s.op.ExportAll(r.Context(), &buf)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.FileName(s.now())+`"`)
	w.Header().Set("X-Record-Count", strconv.Itoa(n))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		s.writeError(w, errs.New(errs.ErrorTypeNotFound, "server.settings", "no settings configured"))
		return
	}
	s.writeJSON(w, http.StatusOK, s.settings.Current())
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		s.writeError(w, errs.New(errs.ErrorTypeNotFound, "server.settings", "no settings configured"))
		return
	}
	var next settings.Settings
	if err := json.NewDecoder(r.Body).Decode(&next); err != nil {
		s.writeError(w, errs.Wrap(errs.ErrorTypeInvalidInput, "server.settings", err))
		return
	}
	if err := s.settings.Update(next); err != nil {
		s.writeError(w, err)
		return
	}
	s.log.Info("settings updated over the API")
	s.writeJSON(w, http.StatusOK, s.settings.Current())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Warn("failed to write response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error()}
	if t, ok := errs.TypeOf(err); ok {
		resp.Type = string(t)
	}
	if status >= http.StatusInternalServerError {
		s.log.WithError(err).Error("request failed")
	}
	s.writeJSON(w, status, resp)
}

func statusFor(err error) int {
	t, ok := errs.TypeOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch t {
	case errs.ErrorTypeInvalidInput:
		return http.StatusBadRequest
	case errs.ErrorTypeNotFound:
		return http.StatusNotFound
	case errs.ErrorTypeAlreadyRunning:
		return http.StatusConflict
	case errs.ErrorTypeNotLoggedIn:
		return http.StatusUnauthorized
	case errs.ErrorTypeRateLimitExhausted:
		return http.StatusTooManyRequests
	case errs.ErrorTypeChannelDisconnected, errs.ErrorTypeLayoutTimeout:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
