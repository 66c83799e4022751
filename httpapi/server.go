// Package httpapi serves the recovery page and tab management endpoints
// over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"pkt.systems/tabkeeper/core"
	"pkt.systems/tabkeeper/internal/eventbus"
	"pkt.systems/tabkeeper/internal/eventloop"
	"pkt.systems/tabkeeper/internal/logx"
	"pkt.systems/tabkeeper/schema"
)

// Saver persists the current session on demand.
type Saver interface {
	SaveSession(ctx context.Context) error
}

// Deps are the collaborators the server drives. Controller state is only
// touched on Loop.
type Deps struct {
	Loop       *eventloop.Loop
	Controller *core.RestoreController
	Bus        *eventbus.Bus
	Saver      Saver
}

// Server serves the HTTP API.
type Server struct {
	cfg      Config
	loop     *eventloop.Loop
	ctl      *core.RestoreController
	bus      *eventbus.Bus
	saver    Saver
	basePath string
}

// NewServer constructs an HTTP server.
func NewServer(cfg Config, deps Deps) (*Server, error) {
	if deps.Loop == nil {
		return nil, errors.New("httpapi: event loop is required")
	}
	if deps.Controller == nil {
		return nil, errors.New("httpapi: restore controller is required")
	}
	return &Server{
		cfg:      cfg,
		loop:     deps.Loop,
		ctl:      deps.Controller,
		bus:      deps.Bus,
		saver:    deps.Saver,
		basePath: normalizeBasePath(cfg.BasePath),
	}, nil
}

// Handler returns an http.Handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /recovery", s.handleRecovery)
	mux.HandleFunc("POST /recovery/restore", s.handleRecoveryRestore)
	mux.HandleFunc("POST /recovery/new-session", s.handleRecoveryNewSession)

	mux.HandleFunc("GET /api/windows", s.handleListWindows)
	mux.HandleFunc("POST /api/windows", s.handleCreateWindow)
	mux.HandleFunc("DELETE /api/windows/{window}", s.handleCloseWindow)
	mux.HandleFunc("POST /api/tabs", s.handleOpenTab)
	mux.HandleFunc("GET /api/tabs/{tab}", s.handleGetTab)
	mux.HandleFunc("DELETE /api/tabs/{tab}", s.handleCloseTab)
	mux.HandleFunc("POST /api/tabs/{tab}/activate", s.handleActivate)
	mux.HandleFunc("POST /api/tabs/{tab}/unload", s.handleUnload)
	mux.HandleFunc("POST /api/tabs/{tab}/restore", s.handleRestoreTab)
	mux.HandleFunc("POST /api/tabs/{tab}/pin", s.handlePin)
	mux.HandleFunc("POST /api/tabs/{tab}/move", s.handleMove)
	mux.HandleFunc("POST /api/tabs/{tab}/parent", s.handleParent)
	mux.HandleFunc("POST /api/tabs/{tab}/detach", s.handleDetach)
	mux.HandleFunc("POST /api/session/save", s.handleSave)
	mux.HandleFunc("GET /api/stream", s.handleStream)

	return mountBasePath(s.basePath, withRequestLogging(mux))
}

// onLoop runs fn against the hierarchy on the event loop.
func (s *Server) onLoop(ctx context.Context, fn func(h *core.Hierarchy) error) error {
	return s.loop.Do(ctx, func() error {
		return fn(s.ctl.Hierarchy())
	})
}

func tabParam(r *http.Request) (schema.NodeID, error) {
	id, err := schema.ParseNodeID(r.PathValue("tab"))
	if err != nil {
		return schema.NodeID{}, err
	}
	if id.IsZero() {
		return schema.NodeID{}, fmt.Errorf("%w: tab id is required", schema.ErrInvalidArgument)
	}
	return id, nil
}

func decodeJSON(body io.Reader, target any) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

// decodeOptionalJSON is decodeJSON that accepts an empty body.
func decodeOptionalJSON(body io.Reader, target any) error {
	if body == nil {
		return nil
	}
	if err := decodeJSON(body, target); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", schema.ErrInvalidArgument, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

// statusFor maps hierarchy errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, schema.ErrTabNotFound), errors.Is(err, schema.ErrWindowNotFound):
		return http.StatusNotFound
	case errors.Is(err, schema.ErrInvalidArgument),
		errors.Is(err, schema.ErrSelfParent),
		errors.Is(err, schema.ErrCycle),
		errors.Is(err, schema.ErrNotAttached),
		errors.Is(err, schema.ErrAlreadyAttached):
		return http.StatusBadRequest
	case errors.Is(err, schema.ErrAlreadyUnloaded),
		errors.Is(err, schema.ErrAlreadyRestored),
		errors.Is(err, schema.ErrEmptySnapshot):
		return http.StatusConflict
	case errors.Is(err, eventloop.ErrStopped),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, schema.ErrNoViewFactory):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := statusFor(err)
	log := logx.Ctx(r.Context())
	if status >= http.StatusInternalServerError {
		log.Warn(msg, "err", err)
	} else {
		log.Debug(msg, "err", err)
	}
	writeError(w, status, err)
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if s.saver == nil {
		writeError(w, http.StatusNotImplemented, errors.New("session saving not configured"))
		return
	}
	if err := s.saver.SaveSession(r.Context()); err != nil {
		s.fail(w, r, "http session save failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	logx.Ctx(r.Context()).Info("http session saved")
}

func trimmed(value string) string {
	return strings.TrimSpace(value)
}
