// Package wsbridge serves the content over HTTP and carries the bridge over a
// websocket for hosts that render the content in an ordinary browser.
package wsbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jeanpaulrichter/phasorviz/capability"
	"github.com/jeanpaulrichter/phasorviz/directive"
	"github.com/jeanpaulrichter/phasorviz/rpc"
)

// ErrNoClients is returned when a directive has nobody to go to.
var ErrNoClients = errors.New("no content connected")

// HostScriptPath is where the host shim is served.
const HostScriptPath = "/phasorviz-host.js"

// Config holds server configuration.
type Config struct {
	Addr       string // listen address, port 0 picks a free one
	ContentDir string // directory with the content's index.html, optional
	AllowAll   bool   // allow all CORS and websocket origins
}

// Dispatcher answers JSON-RPC requests; rpc.Handler implements it.
type Dispatcher interface {
	HandleBytes(data []byte) []byte
}

// outbound is every message the server pushes to a client.
type outbound struct {
	Type    string          `json:"type"`
	Name    string          `json:"name,omitempty"`
	Args    []any           `json:"args,omitempty"`
	Message string          `json:"message,omitempty"`
	Items   json.RawMessage `json:"items,omitempty"`
	Info    json.RawMessage `json:"info,omitempty"`
}

// inbound is a non-RPC message from a client.
type inbound struct {
	Type   string `json:"type"`
	Action int    `json:"action"`
}

type client struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Server is the content server and websocket bridge.
type Server struct {
	cfg        Config
	log        *zap.Logger
	router     chi.Router
	upgrader   websocket.Upgrader
	httpServer *http.Server
	listener   net.Listener

	mu      sync.Mutex
	calls   Dispatcher
	onMenu  func(action int)
	info    json.RawMessage
	infoJS  string
	menu    json.RawMessage
	clients map[string]*client
}

// New creates a server. Call Bind before clients connect.
func New(cfg Config, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		cfg:     cfg,
		log:     log,
		clients: make(map[string]*client),
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	s.router = s.buildRouter()
	return s
}

// Bind installs the capability dispatcher, the menu callback and the host
// description pushed to every client.
func (s *Server) Bind(calls Dispatcher, onMenu func(action int), info capability.Info) {
	s.mu.Lock()
	s.calls = calls
	s.onMenu = onMenu
	s.info = rpc.InfoJSON(info)
	s.infoJS = rpc.InfoScript(info)
	s.mu.Unlock()
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	corsOpts := cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}
	if s.cfg.AllowAll {
		corsOpts.AllowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(corsOpts))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get(HostScriptPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		w.Write([]byte(rpc.HostScript))
	})
	r.Get("/bridge", s.handleBridge)

	if s.cfg.ContentDir != "" {
		files := http.FileServer(http.Dir(s.cfg.ContentDir))
		r.Get("/", s.handleIndex)
		r.Get("/index.html", s.handleIndex)
		r.Handle("/*", files)
	}
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// handleIndex serves index.html with the host info and shim loaded ahead of
// the content's own scripts, so the synchronous getters work before the
// websocket is up.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data, err := os.ReadFile(filepath.Join(s.cfg.ContentDir, "index.html"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	s.mu.Lock()
	infoJS := s.infoJS
	s.mu.Unlock()

	var tag []byte
	if infoJS != "" {
		tag = append(tag, "<script>"+infoJS+"</script>"...)
	}
	tag = append(tag, `<script src="`+HostScriptPath+`"></script>`...)
	at := 0
	if i := bytes.Index(bytes.ToLower(data), []byte("<head>")); i >= 0 {
		at = i + len("<head>")
	}
	out := make([]byte, 0, len(data)+len(tag))
	out = append(out, data[:at]...)
	out = append(out, tag...)
	out = append(out, data[at:]...)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(out)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || s.cfg.AllowAll {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host
}

func (s *Server) handleBridge(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade", zap.Error(err))
		return
	}
	c := &client{id: uuid.NewString(), conn: conn}
	s.attach(c)
	defer s.detach(c)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("websocket read", zap.String("client", c.id), zap.Error(err))
			}
			return
		}
		s.handleMessage(c, msg)
	}
}

func (s *Server) handleMessage(c *client, msg []byte) {
	var in inbound
	if err := json.Unmarshal(msg, &in); err == nil && in.Type == "menu" {
		s.mu.Lock()
		onMenu := s.onMenu
		s.mu.Unlock()
		if onMenu != nil {
			onMenu(in.Action)
		}
		return
	}

	s.mu.Lock()
	calls := s.calls
	s.mu.Unlock()
	if calls == nil {
		return
	}
	if out := calls.HandleBytes(msg); out != nil {
		if err := c.write(out); err != nil {
			s.log.Warn("websocket write", zap.String("client", c.id), zap.Error(err))
		}
	}
}

func (s *Server) attach(c *client) {
	s.mu.Lock()
	s.clients[c.id] = c
	info, items := s.info, s.menu
	s.mu.Unlock()

	s.log.Info("content connected", zap.String("client", c.id))
	if info != nil {
		s.sendTo(c, outbound{Type: "info", Info: info})
	}
	if items != nil {
		s.sendTo(c, outbound{Type: "menu", Items: items})
	}
}

func (s *Server) detach(c *client) {
	s.mu.Lock()
	delete(s.clients, c.id)
	s.mu.Unlock()
	c.conn.Close()
	s.log.Info("content disconnected", zap.String("client", c.id))
}

func (s *Server) sendTo(c *client, msg outbound) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := c.write(data); err != nil {
		s.log.Warn("websocket write", zap.String("client", c.id), zap.Error(err))
	}
}

// broadcast sends msg to every client and reports how many received it.
func (s *Server) broadcast(msg outbound) (int, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return 0, fmt.Errorf("encode %s message: %w", msg.Type, err)
	}
	s.mu.Lock()
	targets := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		targets = append(targets, c)
	}
	s.mu.Unlock()

	sent := 0
	for _, c := range targets {
		if err := c.write(data); err != nil {
			s.log.Warn("websocket write", zap.String("client", c.id), zap.Error(err))
			continue
		}
		sent++
	}
	return sent, nil
}

// Deliver sends a directive to the connected content.
func (s *Server) Deliver(d directive.Directive) error {
	m := d.Message()
	n, err := s.broadcast(outbound{Type: "directive", Name: m.Name, Args: m.Args})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNoClients
	}
	return nil
}

// Notify shows a toast in every connected page.
func (s *Server) Notify(msg string) {
	s.broadcast(outbound{Type: "notice", Message: msg})
}

// UpdateMenu renders the toolbar in every connected page and remembers it for
// later connections.
func (s *Server) UpdateMenu(menuJSON string) {
	items := json.RawMessage(menuJSON)
	s.mu.Lock()
	s.menu = items
	s.mu.Unlock()
	s.broadcast(outbound{Type: "menu", Items: items})
}

// Clients returns the number of connected pages.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Listen binds the configured address.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}
	s.listener = ln
	return nil
}

// URL returns the base URL of a listening server.
func (s *Server) URL() string {
	if s.listener == nil {
		return ""
	}
	return "http://" + s.listener.Addr().String()
}

// Serve runs the server until ctx is done. Listen must have been called.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		return errors.New("wsbridge: Serve called before Listen")
	}
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.httpServer.Serve(s.listener) }()
	s.log.Info("bridge server listening", zap.String("url", s.URL()))

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
	err := s.Shutdown(shutdownCtx)
	<-errCh
	return err
}

// Shutdown stops the HTTP server and drops all websocket connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for _, c := range s.clients {
		c.conn.Close()
	}
	s.mu.Unlock()
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
