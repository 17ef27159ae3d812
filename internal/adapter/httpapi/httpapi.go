// Package httpapi is the HTTP introspection plane: a chi router exposing
// GET /stat/{handle} for one-shot diagnostics and GET /stream for a
// websocket feed of every service-exit notification the runtime's MONITOR
// command surfaces.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/webitel/actor-node/internal/core"
)

// Server serves the introspection HTTP API.
type Server struct {
	reg *core.Registry
	log *slog.Logger
	srv *http.Server
	lis net.Listener
	up  websocket.Upgrader
}

type statResponse struct {
	Handle    string `json:"handle"`
	MQLen     int    `json:"mqlen"`
	Blocked   bool   `json:"blocked"`
	Messages  uint64 `json:"messages"`
	CPUMillis int64  `json:"cpu_millis"`
}

// New builds an httpapi Server bound to addr, not yet serving.
func New(addr string, reg *core.Registry, log *slog.Logger) (*Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &Server{
		reg: reg,
		log: log,
		lis: lis,
		up:  websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Get("/stat/{handle}", s.handleStat)
	r.Get("/stream", s.handleStream)

	s.srv = &http.Server{Handler: r}
	return s, nil
}

// Serve blocks accepting HTTP connections until Shutdown is called.
func (s *Server) Serve() error {
	err := s.srv.Serve(s.lis)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error { return s.srv.Shutdown(ctx) }

// Addr returns the bound listen address.
func (s *Server) Addr() string { return s.lis.Addr().String() }

func (s *Server) handleStat(w http.ResponseWriter, r *http.Request) {
	target := chi.URLParam(r, "handle")
	h, ok := core.ParseHandle(target)
	if !ok {
		if resolved, found := s.reg.FindByName(target); found {
			h = resolved
		} else {
			http.Error(w, "unknown handle", http.StatusNotFound)
			return
		}
	}
	svc := s.reg.PeekSlot(h)
	if svc == nil {
		http.Error(w, "unknown handle", http.StatusNotFound)
		return
	}
	resp := statResponse{
		Handle:    h.String(),
		MQLen:     svc.MailboxLength(),
		Blocked:   svc.IsBlocked(),
		Messages:  svc.MessageCount(),
		CPUMillis: svc.CPUTime().Milliseconds(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// handleStream registers this connection as a MONITOR-all watcher through a
// dedicated stream-watcher service, relaying every exit notification it receives
// onto the websocket until the client disconnects.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.up.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("httpapi: websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	watcherHandle, events, err := newStreamWatcher(s.reg)
	if err != nil {
		s.log.Warn("httpapi: stream watcher setup failed", "err", err)
		return
	}
	defer s.reg.Retire(watcherHandle)

	ctx := r.Context()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, ev); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
