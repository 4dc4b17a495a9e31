// Package control exposes the operator surface over HTTP: engine state,
// reply-rule CRUD, export/import, manual posts, and the recent activity feed.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/replyhawk/replyhawk/activity"
	"github.com/replyhawk/replyhawk/engine"
	"github.com/replyhawk/replyhawk/rules"
)

// maxBodyBytes bounds operator payloads (rule imports, manual posts).
const maxBodyBytes = 1 << 20

// Server binds the operator API. No auth: it listens on loopback by default
// and trusts whoever can reach it.
type Server struct {
	addr     string
	logger   *slog.Logger
	engine   *engine.Engine
	store    *rules.Store
	recorder *activity.Recorder
	router   *chi.Mux
	httpSrv  *http.Server
}

func NewServer(addr string, eng *engine.Engine, store *rules.Store, recorder *activity.Recorder, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		addr:     addr,
		logger:   logger,
		engine:   eng,
		store:    store,
		recorder: recorder,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/engine", s.handleEngineState)
	r.Post("/engine/start", s.handleEngineStart)
	r.Post("/engine/stop", s.handleEngineStop)
	r.Get("/rules", s.handleRulesList)
	r.Put("/rules/{username}", s.handleRuleUpsert)
	r.Delete("/rules/{username}", s.handleRuleRemove)
	r.Get("/rules/export", s.handleRulesExport)
	r.Post("/rules/import", s.handleRulesImport)
	r.Post("/post", s.handleManualPost)
	r.Get("/activity", s.handleActivity)

	s.router = r
	return s
}

// Handler exposes the routed mux, used directly by tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("control_listening", "addr", s.addr)
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("control: shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("control: serve: %w", err)
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleEngineState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

func (s *Server) handleEngineStart(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Start(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, fmt.Sprintf("start engine: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

func (s *Server) handleEngineStop(w http.ResponseWriter, r *http.Request) {
	s.engine.Stop()
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

type ruleView struct {
	Username  string             `json:"username"`
	ReplyText string             `json:"reply_text"`
	Status    engine.ReplyStatus `json:"status"`
}

func (s *Server) handleRulesList(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("load rules: %v", err))
		return
	}

	filter := r.URL.Query().Get("status")
	switch filter {
	case "", "all", string(engine.StatusReplied), string(engine.StatusStale), string(engine.StatusNew):
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid status %q, want replied|stale|new|all", filter))
		return
	}
	out := make([]ruleView, 0, len(list))
	for _, rule := range list {
		status := s.engine.Status(rule.Username)
		if filter != "" && filter != "all" && string(status) != filter {
			continue
		}
		out = append(out, ruleView{Username: rule.Username, ReplyText: rule.ReplyText, Status: status})
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": out})
}

type upsertRuleRequest struct {
	ReplyText string `json:"reply_text"`
}

func (s *Server) handleRuleUpsert(w http.ResponseWriter, r *http.Request) {
	var req upsertRuleRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	username := chi.URLParam(r, "username")
	if err := s.store.Upsert(r.Context(), username, req.ReplyText); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("save rule: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"username": rules.NormalizeUsername(username),
	})
}

func (s *Server) handleRuleRemove(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	if err := s.store.Remove(r.Context(), username); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, rules.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, fmt.Sprintf("remove rule: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"username": rules.NormalizeUsername(username),
	})
}

func (s *Server) handleRulesExport(w http.ResponseWriter, r *http.Request) {
	data, err := s.store.ExportJSON(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("export rules: %v", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="replies.json"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleRulesImport(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("read body: %v", err))
		return
	}
	if err := s.store.Replace(r.Context(), raw); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, rules.ErrInvalidImport) {
			status = http.StatusBadRequest
		}
		writeError(w, status, fmt.Sprintf("import rules: %v", err))
		return
	}
	mapping, err := s.store.All(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("reload rules: %v", err))
		return
	}
	s.recorder.Recordf(activity.KindInfo, "imported %d reply rules", len(mapping))
	writeJSON(w, http.StatusOK, map[string]int{"imported": len(mapping)})
}

type manualPostRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleManualPost(w http.ResponseWriter, r *http.Request) {
	var req manualPostRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := s.engine.Post(r.Context(), req.Text)
	if err != nil {
		writeError(w, http.StatusBadGateway, fmt.Sprintf("post: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"post_id": id})
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	n := activity.DefaultRecent
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid n %q", raw))
			return
		}
		n = parsed
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": s.recorder.Recent(n)})
}

func decodeBody(r *http.Request, out any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
