// Package server is a websocket monitor for the disco ball: it streams device
// events to connected clients and accepts pin writes from them.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"discoball-controller/internal/config"
	"discoball-controller/internal/core"
)

// CommandHandler handles a decoded client command. A non-nil reply is sent
// back to the client that issued it.
type CommandHandler interface {
	Handle(cmd Command) (reply *Message, err error)
}

// Server manages the HTTP and WebSocket services.
type Server struct {
	Hub        *Hub
	handler    CommandHandler
	store      *core.StatusStore
	bus        *core.EventBus
	schedules  func() []config.ScheduleEntry
	httpServer *http.Server
	log        zerolog.Logger

	allowedOrigins []string
	upgrader       websocket.Upgrader
}

// NewServer creates a new server instance. schedules may be nil.
func NewServer(cfg config.ServerConfig, handler CommandHandler, store *core.StatusStore, bus *core.EventBus, schedules func() []config.ScheduleEntry, logger zerolog.Logger) *Server {
	s := &Server{
		Hub:            NewHub(logger),
		handler:        handler,
		store:          store,
		bus:            bus,
		schedules:      schedules,
		log:            logger,
		allowedOrigins: cfg.AllowedOrigins,
	}

	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.allowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range s.allowedOrigins {
		if strings.EqualFold(origin, allowed) {
			return true
		}
	}
	s.log.Warn().Str("origin", origin).Msg("websocket connection blocked")
	return false
}

// Routes returns the HTTP handler.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/status", s.handleStatus)
	return mux
}

// Run serves until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	hubCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.Hub.Run(hubCtx)
	if s.bus != nil {
		sub := s.bus.Subscribe(core.AllEvents...)
		defer s.bus.Unsubscribe(sub, core.AllEvents...)
		go s.Hub.Forward(hubCtx, sub)
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.httpServer.Addr).Msg("monitor listening")
		errc <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		// The monitor is optional; the rest of the device keeps running.
		s.log.Error().Err(err).Str("addr", s.httpServer.Addr).Msg("monitor server stopped")
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
	defer done()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "monitor shutdown")
	}
	return ctx.Err()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.store.Clone()); err != nil {
		s.log.Warn().Err(err).Msg("status encode failed")
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	_ = conn.WriteJSON(NewMessage(string(core.StatusEvent), s.store.Clone()))
	if s.schedules != nil {
		_ = conn.WriteJSON(NewMessage("schedule_list", s.schedules()))
	}

	if !s.Hub.add(conn) {
		conn.Close()
		return
	}
	defer s.Hub.remove(conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.dispatch(conn, data)
	}
}

func (s *Server) dispatch(conn *websocket.Conn, data []byte) {
	if s.handler == nil {
		return
	}
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		s.Hub.SendTo(conn, NewMessage("error", err.Error()))
		return
	}
	reply, err := s.handler.Handle(cmd)
	if err != nil {
		s.Hub.SendTo(conn, NewMessage("error", err.Error()))
		return
	}
	if reply != nil {
		s.Hub.SendTo(conn, *reply)
	}
}
