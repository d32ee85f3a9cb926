package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"memo-pipeline-go/internal/logger"
	"memo-pipeline-go/internal/pipeline"
	"memo-pipeline-go/internal/types"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Server struct {
	svc           *pipeline.Service
	log           *logger.Logger
	maxAudioBytes int64
}

func NewServer(svc *pipeline.Service, log *logger.Logger, maxAudioBytes int64) http.Handler {
	s := &Server{svc: svc, log: log, maxAudioBytes: maxAudioBytes}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("POST /conversations", s.handleCreate)
	mux.HandleFunc("GET /conversations/{id}", s.handleGet)
	mux.HandleFunc("PATCH /conversations/{id}", s.handleUpdate)
	mux.HandleFunc("DELETE /conversations/{id}", s.handleDelete)
	mux.HandleFunc("PUT /conversations/{id}/transcript", s.handleAmend)
	mux.HandleFunc("POST /conversations/{id}/extract", s.handleExtract)

	mux.HandleFunc("GET /users/{userID}/conversations", s.handleList)
	mux.HandleFunc("GET /users/{userID}/overview", s.handleOverview)
	mux.HandleFunc("GET /users/{userID}/export", s.handleExport)

	return s.withLogging(mux)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

// withLogging pins a request id on the request so every log line of the
// request shares it, then logs the outcome.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Request-ID") == "" {
			r.Header.Set("X-Request-ID", uuid.NewString())
		}
		w.Header().Set("X-Request-ID", r.Header.Get("X-Request-ID"))

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		s.log.WithRequest(r).
			WithField("status", rec.status).
			WithField("bytes", rec.bytes).
			WithField("duration_ms", time.Since(start).Milliseconds()).
			Info("request handled")
	})
}

// ─────────────────────────────────────────────
// DTOs
// ─────────────────────────────────────────────

type updateRequest struct {
	Title      *string `json:"title"`
	Summary    *string `json:"summary"`
	IsFavorite *bool   `json:"is_favorite"`
}

type amendRequest struct {
	Text string `json:"text"`
}

type extractResponse struct {
	ConversationID string `json:"conversation_id"`
	Status         string `json:"status"`
}

// ─────────────────────────────────────────────
// Handlers
// ─────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	fmt.Fprint(w, "ok")
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	reqLog := s.log.WithRequest(r).WithField("handler", "create")

	userID := strings.TrimSpace(r.Header.Get("X-User-ID"))
	if userID == "" {
		badRequest(w, "missing X-User-ID header")
		return
	}

	audio, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxAudioBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "audio too large"})
			return
		}
		badRequest(w, "cannot read audio")
		return
	}
	if len(audio) == 0 {
		badRequest(w, "empty audio body")
		return
	}

	var title *string
	if t := r.URL.Query().Get("title"); t != "" {
		title = &t
	}
	format := audioFormat(r)

	c, err := s.svc.CreateWithAudio(r.Context(), title, audio, format, userID)
	if err != nil {
		reqLog.WithError(err).Error("create conversation failed")
		internalError(w)
		return
	}
	reqLog.WithField("conversation_id", c.ID).WithField("status", c.Status.String()).Info("conversation ingested")
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	d, err := s.svc.GetWithChildren(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	updated, err := s.svc.Update(r.Context(), r.PathValue("id"), types.ConversationPatch{
		Title:      req.Title,
		Summary:    req.Summary,
		IsFavorite: req.IsFavorite,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.SoftDelete(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAmend(w http.ResponseWriter, r *http.Request) {
	var req amendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	c, err := s.svc.AmendTranscript(r.Context(), r.PathValue("id"), req.Text)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.svc.Get(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	s.svc.TriggerExtraction(id)
	writeJSON(w, http.StatusAccepted, extractResponse{ConversationID: id, Status: "scheduled"})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")

	var (
		list []types.Conversation
		err  error
	)
	if v := r.URL.Query().Get("recent"); v != "" {
		n, convErr := strconv.Atoi(v)
		if convErr != nil || n < 0 {
			badRequest(w, "recent must be a non-negative integer")
			return
		}
		list, err = s.svc.GetRecentForUser(r.Context(), userID, n)
	} else {
		list, err = s.svc.GetForUser(r.Context(), userID)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	ov, err := s.svc.Overview(r.Context(), r.PathValue("userID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")
	var buf bytes.Buffer
	if err := s.svc.Export(r.Context(), userID, &buf); err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="memos-%s.xlsx"`, userID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// ─────────────────────────────────────────────
// HTTP Helpers
// ─────────────────────────────────────────────

// audioFormat takes the format from ?format= or an audio/* content type.
func audioFormat(r *http.Request) string {
	if f := strings.TrimSpace(r.URL.Query().Get("format")); f != "" {
		return strings.ToLower(f)
	}
	ct := r.Header.Get("Content-Type")
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = ct[:i]
	}
	if sub, ok := strings.CutPrefix(strings.TrimSpace(ct), "audio/"); ok && sub != "" {
		return strings.ToLower(sub)
	}
	return ""
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, types.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	s.log.WithRequest(r).WithError(err).Error("request failed")
	internalError(w)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

func internalError(w http.ResponseWriter) {
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
}
