// Package server serves the output tree for local preview. HTML responses
// carry the live-reload client, and output changes are pushed to every
// open page through the websocket hub.
package server

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/a-h/templ"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/conneroisu/devsite/internal/config"
	"github.com/conneroisu/devsite/internal/logging"
	"github.com/conneroisu/devsite/internal/websocket"
)

// Reserved routes. Everything else is looked up in the output tree.
const (
	WebSocketPath = "/__devsite/ws"
	StatusPath    = "/__devsite/status"
	HealthPath    = "/__devsite/health"
	MetricsPath   = "/metrics"
)

//go:embed livereload.js
var liveReloadJS []byte

// Options configures a PreviewServer.
type Options struct {
	Server    config.ServerConfig
	OutputDir string
	Version   string
	Logger    logging.Logger
	// Status feeds the status page. Optional.
	Status StatusSource
	// Watch reports per-category watch states. Optional.
	Watch CategoryStates
	// Gatherer backs /metrics. The route is absent when nil.
	Gatherer prometheus.Gatherer
}

// PreviewServer is the development HTTP server.
type PreviewServer struct {
	cfg     config.ServerConfig
	root    string
	version string
	logger  logging.Logger
	status  StatusSource
	watch   CategoryStates
	hub     *websocket.Manager
	files   http.Handler
	handler http.Handler
	started time.Time

	mu         sync.Mutex
	httpServer *http.Server
	addr       string
}

// New creates a preview server for opts.OutputDir. It does not listen
// until Start is called.
func New(opts Options) *PreviewServer {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.WithComponent("server")

	origins := websocket.AllowedOrigins(append([]string{
		opts.Server.Host,
		net.JoinHostPort(opts.Server.Host, strconv.Itoa(opts.Server.Port)),
	}, opts.Server.AllowedOrigins...))

	s := &PreviewServer{
		cfg:     opts.Server,
		root:    filepath.Clean(opts.OutputDir),
		version: opts.Version,
		logger:  logger,
		status:  opts.Status,
		watch:   opts.Watch,
		hub:     websocket.NewManager(origins, logger),
		files:   http.FileServer(http.Dir(opts.OutputDir)),
		started: time.Now(),
	}

	mux := http.NewServeMux()
	if s.cfg.LiveReload {
		mux.HandleFunc(WebSocketPath, s.hub.HandleWebSocket)
		mux.HandleFunc(ScriptPath, s.handleScript)
	}
	mux.HandleFunc(StatusPath, s.handleStatus)
	mux.HandleFunc(HealthPath, s.handleHealth)
	if opts.Gatherer != nil {
		mux.Handle(MetricsPath, promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("/", s.handleStatic)

	s.handler = s.addMiddleware(mux)
	return s
}

// Handler returns the server's HTTP handler.
func (s *PreviewServer) Handler() http.Handler {
	return s.handler
}

// Hub exposes the live-reload hub.
func (s *PreviewServer) Hub() *websocket.Manager {
	return s.hub
}

// Start listens on the configured address and serves until ctx is done or
// Shutdown is called.
func (s *PreviewServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port)))
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	url := s.URL() + "/"
	s.logger.Info(ctx, "Preview server listening", "url", url, "root", s.root, "live_reload", s.cfg.LiveReload)

	if s.cfg.Open {
		go func() {
			time.Sleep(100 * time.Millisecond)
			if err := OpenBrowser(url); err != nil {
				s.logger.Warn(ctx, err, "Failed to open browser", "url", url)
			}
		}()
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// URL returns the base URL of the listening server. Before Start it is
// derived from the configuration.
func (s *PreviewServer) URL() string {
	s.mu.Lock()
	addr := s.addr
	s.mu.Unlock()
	if addr == "" {
		addr = net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	}
	return "http://" + addr
}

// Shutdown closes the live-reload channel, then the HTTP server.
func (s *PreviewServer) Shutdown(ctx context.Context) error {
	hubErr := s.hub.Shutdown(ctx)

	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return hubErr
	}
	return errors.Join(hubErr, srv.Shutdown(ctx))
}

// Reload tells every connected browser that paths changed. When every path
// is a stylesheet and CSS injection is enabled, pages swap stylesheets in
// place instead of reloading.
func (s *PreviewServer) Reload(paths []string) {
	if !s.cfg.LiveReload {
		return
	}

	msgType := websocket.MessageReload
	if s.cfg.CSSInjection && len(paths) > 0 && allStylesheets(paths) {
		msgType = websocket.MessageCSS
	}

	urls := make([]string, 0, len(paths))
	for _, p := range paths {
		urls = append(urls, s.urlPath(p))
	}

	s.logger.Debug(context.Background(), "Broadcasting reload", "type", msgType, "paths", len(urls), "clients", s.hub.ConnectedClients())
	s.hub.BroadcastMessage(websocket.UpdateMessage{Type: msgType, Paths: urls})
}

// urlPath maps an output file to its URL path. Paths outside the output
// root are passed through with forward slashes.
func (s *PreviewServer) urlPath(p string) string {
	if rel, err := filepath.Rel(s.root, p); err == nil && !strings.HasPrefix(rel, "..") {
		return "/" + filepath.ToSlash(rel)
	}
	return filepath.ToSlash(p)
}

func allStylesheets(paths []string) bool {
	for _, p := range paths {
		if !strings.EqualFold(filepath.Ext(p), ".css") {
			return false
		}
	}
	return true
}

func (s *PreviewServer) handleStatic(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/" && s.cfg.StartPath != "" {
		http.Redirect(w, r, "/"+strings.TrimPrefix(s.cfg.StartPath, "/"), http.StatusFound)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	if !s.cfg.LiveReload {
		s.files.ServeHTTP(w, r)
		return
	}

	name := path.Clean("/" + r.URL.Path)
	full := filepath.Join(s.root, filepath.FromSlash(name))
	info, err := os.Stat(full)
	if err == nil && info.IsDir() && strings.HasSuffix(r.URL.Path, "/") {
		full = filepath.Join(full, "index.html")
		info, err = os.Stat(full)
	}
	if err != nil || info.IsDir() || filepath.Ext(full) != ".html" {
		s.files.ServeHTTP(w, r)
		return
	}

	data, err := os.ReadFile(full)
	if err != nil {
		s.logger.Warn(r.Context(), err, "Failed to read page", "file", full)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	http.ServeContent(w, r, info.Name(), info.ModTime(), bytes.NewReader(InjectScript(data, scriptTag)))
}

func (s *PreviewServer) handleScript(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(liveReloadJS)
}

func (s *PreviewServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	view := statusView{
		Version:   s.version,
		Uptime:    time.Since(s.started),
		Clients:   s.hub.ConnectedClients(),
		Generated: time.Now(),
	}
	if s.status != nil {
		view.Summary = s.status.LastSummary()
	}
	if s.watch != nil {
		view.Watch = s.watch.States()
	}
	templ.Handler(statusPage(view)).ServeHTTP(w, r)
}

// HealthResponse is the body of the health endpoint.
type HealthResponse struct {
	Status    string    `json:"status"`
	Version   string    `json:"version,omitempty"`
	Clients   int       `json:"clients"`
	LastBuild string    `json:"last_build,omitempty"`
	Failed    bool      `json:"failed"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *PreviewServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "ok",
		Version:   s.version,
		Clients:   s.hub.ConnectedClients(),
		Timestamp: time.Now(),
	}
	if s.status != nil {
		if summary := s.status.LastSummary(); summary != nil {
			resp.LastBuild = summary.BuildID
			resp.Failed = summary.Failed()
		}
	}
	if resp.Failed {
		resp.Status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn(r.Context(), err, "Failed to encode health response")
	}
}

func (s *PreviewServer) addMiddleware(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "no-referrer")

		start := time.Now()
		handler.ServeHTTP(w, r)
		s.logger.Debug(r.Context(), "Request served",
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
