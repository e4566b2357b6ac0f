package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"irmemo/internal/progress"
	"irmemo/internal/session"
)

// Controls are the view actions a relay client may request.
// *session.Controller implements it.
type Controls interface {
	ToggleFindings(id string) progress.Disclosure
	ExpandFindings(id string) progress.Disclosure
	CollapseFindings() progress.Disclosure
	Snapshot() session.Snapshot
}

// Command is a client-to-relay frame.
type Command struct {
	Action string `json:"action"`
	ID     string `json:"id,omitempty"`
}

// Server serves the hub over websockets at /events.
type Server struct {
	hub      *Hub
	controls Controls
	limit    rate.Limit
	log      *log.Logger

	srv      *http.Server
	listener net.Listener
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewServer builds a relay server. perSecond caps the messages written to
// each client; zero or less disables pacing.
func NewServer(hub *Hub, controls Controls, perSecond float64, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &Server{hub: hub, controls: controls, limit: limit, log: logger.WithPrefix("relay")}
}

// Handler returns the relay routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", s.handleEvents)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok\n")
	})
	return mux
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen relay: %w", err)
	}
	s.listener = listener
	s.srv = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := s.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("relay server stopped", "err", err)
		}
	}()
	s.log.Info("relay listening", "addr", listener.Addr().String())
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown closes the hub and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	messages, unsubscribe := s.hub.Subscribe()
	defer unsubscribe()
	s.log.Debug("relay client connected", "remote", r.RemoteAddr)

	go s.readCommands(ctx, cancel, conn)

	limiter := rate.NewLimiter(s.limit, 1)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "relay closed"))
				return
			}
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				s.log.Debug("relay write failed", "remote", r.RemoteAddr, "err", err)
				return
			}
		}
	}
}

// readCommands applies client commands until the client goes away.
func (s *Server) readCommands(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn) {
	defer cancel()
	for {
		var cmd Command
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		if s.controls == nil {
			continue
		}
		switch cmd.Action {
		case "toggle":
			s.controls.ToggleFindings(cmd.ID)
		case "expand":
			s.controls.ExpandFindings(cmd.ID)
		case "collapse":
			s.controls.CollapseFindings()
		default:
			s.log.Debug("unknown relay command", "action", cmd.Action)
			continue
		}
		s.hub.Publish(Message{Type: "disclosure", Step: cmd.ID, Snapshot: s.controls.Snapshot()})
		if ctx.Err() != nil {
			return
		}
	}
}
