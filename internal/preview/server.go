// Package preview serves the live CV preview over HTTP and pushes session
// events to connected browsers over WebSocket.
//
// Routes:
//
//	GET /         preview page (iframe + status bar)
//	GET /preview  latest artifact for the current document, 202 while pending
//	GET /health   server health
//	GET /ws       event stream; clients send {"type":"focus"} on window focus
package preview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// MessageType defines the type of preview message.
type MessageType string

const (
	// MessageTypeStatus carries the full session status. Sent on connect and
	// after every change.
	MessageTypeStatus MessageType = "status"

	// MessageTypeSync carries a sync engine event.
	MessageTypeSync MessageType = "sync"

	// MessageTypeRender carries a preview status change.
	MessageTypeRender MessageType = "render"

	// MessageTypeConflict indicates the remote document changed elsewhere.
	MessageTypeConflict MessageType = "conflict"

	// MessageTypeFocus is sent by clients when the window regains focus.
	MessageTypeFocus MessageType = "focus"
)

// Message is a WebSocket frame in either direction.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ArtifactSource provides the preview artifact for the current document.
type ArtifactSource interface {
	Current() (artifact, fingerprint string, ok bool)
}

// Server manages WebSocket connections and serves the preview.
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server

	artifacts ArtifactSource
	onFocus   func(ctx context.Context) error
	status    func() StatusData

	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	broadcast chan Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *zap.Logger
}

// Config holds server configuration.
type Config struct {
	// Port to listen on on localhost (0 picks a free port).
	Port int

	// Artifacts serves GET /preview.
	Artifacts ArtifactSource

	// OnFocus is called when a client reports window focus.
	OnFocus func(ctx context.Context) error

	// Status returns the status sent to new clients.
	Status func() StatusData

	// Logger for server activity. Nil discards output.
	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{Port: 8765}
}

// NewServer creates a new preview server.
func NewServer(config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		addr:      fmt.Sprintf("127.0.0.1:%d", config.Port),
		artifacts: config.Artifacts,
		onFocus:   config.OnFocus,
		status:    config.Status,
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Message, 100),
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger.Named("preview"),
	}
}

// Handler returns the HTTP routes without starting a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /preview", s.handlePreview)
	mux.HandleFunc("GET /{$}", s.handleRoot)
	return mux
}

// Start begins the HTTP server and the broadcast loop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go s.broadcastLoop()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("preview server listening", zap.String("addr", ln.Addr().String()))
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	s.cancel()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
	}

	s.wg.Wait()
	s.logger.Info("preview server stopped")
	return nil
}

// Broadcast queues msg for every connected client. Messages are dropped when
// the queue is full.
func (s *Server) Broadcast(msg Message) {
	select {
	case <-s.ctx.Done():
		return
	default:
	}
	select {
	case s.broadcast <- msg:
	default:
		s.logger.Warn("broadcast channel full, dropping message", zap.String("type", string(msg.Type)))
	}
}

func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case msg := <-s.broadcast:
			if msg.Timestamp.IsZero() {
				msg.Timestamp = time.Now()
			}
			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Error("failed to marshal message", zap.Error(err))
				continue
			}

			s.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(s.clients))
			for conn := range s.clients {
				clients = append(clients, conn)
			}
			s.clientsMu.RUnlock()

			for _, conn := range clients {
				if err := s.write(conn, data); err != nil {
					s.logger.Debug("failed to send to client", zap.Error(err))
					s.removeClient(conn)
				}
			}
		}
	}
}

func (s *Server) write(conn *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
	})
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	clientCount := len(s.clients)
	s.clientsMu.Unlock()
	s.logger.Debug("client connected", zap.Int("clients", clientCount))

	if s.status != nil {
		if msg, err := NewMessage(MessageTypeStatus, s.status()); err == nil {
			data, _ := json.Marshal(msg)
			_ = s.write(conn, data)
		}
	}

	s.readLoop(conn)
}

// readLoop handles client frames until the connection closes.
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.removeClient(conn)

	for {
		_, data, err := conn.Read(s.ctx)
		if err != nil {
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Debug("ignoring malformed client message", zap.Error(err))
			continue
		}
		if msg.Type == MessageTypeFocus && s.onFocus != nil {
			if err := s.onFocus(s.ctx); err != nil {
				s.logger.Warn("refocus failed", zap.Error(err))
			}
		}
	}
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	if _, exists := s.clients[conn]; exists {
		delete(s.clients, conn)
		clientCount := len(s.clients)
		s.clientsMu.Unlock()

		_ = conn.Close(websocket.StatusNormalClosure, "")
		s.logger.Debug("client disconnected", zap.Int("clients", clientCount))
	} else {
		s.clientsMu.Unlock()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"clients": s.ClientCount(),
	})
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	if s.artifacts == nil {
		http.Error(w, "preview disabled", http.StatusServiceUnavailable)
		return
	}
	artifact, fp, ok := s.artifacts.Current()
	if !ok {
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("rendering"))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("ETag", `"`+fp+`"`)
	if r.Header.Get("If-None-Match") == `"`+fp+`"` {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	_, _ = w.Write([]byte(artifact))
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexPage))
}

// GetAddr returns the server's listening address.
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the current number of connected clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

const indexPage = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>cvsync preview</title>
  <style>
    body { margin: 0; font-family: sans-serif; }
    #bar { padding: 6px 12px; background: #111827; color: #e5e7eb; font-size: 13px; }
    iframe { border: 0; width: 100%; height: calc(100vh - 30px); }
  </style>
</head>
<body>
  <div id="bar">connecting…</div>
  <iframe id="cv" src="/preview"></iframe>
  <script>
    const bar = document.getElementById("bar");
    const frame = document.getElementById("cv");
    const ws = new WebSocket("ws://" + location.host + "/ws");
    let fingerprint = "";
    ws.onmessage = (ev) => {
      const msg = JSON.parse(ev.data);
      const d = msg.data || {};
      if (msg.type === "status") {
        bar.textContent = d.identity + " · sync " + d.sync_state + (d.dirty ? " (unsynced)" : "") + " · preview " + d.render_status;
        if (d.render_status === "ready" && d.fingerprint !== fingerprint) {
          fingerprint = d.fingerprint;
          frame.src = "/preview?fp=" + fingerprint;
        }
      } else if (msg.type === "conflict") {
        bar.textContent = "The CV was changed elsewhere. Your local edits are kept.";
      }
    };
    window.addEventListener("focus", () => {
      if (ws.readyState === WebSocket.OPEN) ws.send(JSON.stringify({type: "focus"}));
    });
  </script>
</body>
</html>`
