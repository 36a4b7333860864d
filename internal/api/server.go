// Package api exposes the HTTP interface for the sitemapper service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/apetros/sitemapper/internal/config"
	"github.com/apetros/sitemapper/internal/crawler"
	"github.com/apetros/sitemapper/internal/graph"
	"github.com/apetros/sitemapper/internal/manager"
	"github.com/apetros/sitemapper/internal/metrics"
	"github.com/apetros/sitemapper/internal/queue"
	"github.com/apetros/sitemapper/internal/store"
)

// Server wires HTTP handlers to the queue, store, and metadata index.
type Server struct {
	router  chi.Router
	queue   *queue.Queue
	store   *store.Store
	index   *manager.Index
	watcher *manager.Watcher
	cfg     config.Config
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes. watcher may be
// nil when the metadata pipeline is not running.
func NewServer(
	q *queue.Queue,
	st *store.Store,
	index *manager.Index,
	watcher *manager.Watcher,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	s := &Server{
		queue:   q,
		store:   st,
		index:   index,
		watcher: watcher,
		cfg:     cfg,
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))

	r.Group(func(r chi.Router) {
		r.Use(timeoutMiddleware(60 * time.Second))

		r.Get("/healthz", s.healthz)
		r.Get("/readyz", s.readyz)
		r.Handle("/metrics", metrics.Handler())

		r.Post("/queue-website", s.queueWebsite)
		r.Get("/status", s.status)
		r.Get("/graphs", s.graphInfo)
		r.Get("/graphs/all", s.listGraphs)
		r.Get("/graphs/neighborhood", s.neighborhood)
	})

	// Streaming bypasses the timeout handler so flushes reach the client.
	r.Get("/graphs/stream", s.streamGraph)

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if _, err := s.store.List(); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type queueRequest struct {
	URL          string `json:"url"`
	Force        bool   `json:"force"`
	Depth        string `json:"depth"`
	RequestLimit string `json:"request_limit"`
}

func (s *Server) queueWebsite(w http.ResponseWriter, r *http.Request) {
	var req queueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	seed, err := url.Parse(req.URL)
	if err != nil || (seed.Scheme != "http" && seed.Scheme != "https") || seed.Host == "" {
		writeError(w, http.StatusBadRequest, "invalid url")
		return
	}

	depthName := req.Depth
	if depthName == "" {
		depthName = s.cfg.Crawler.Depth
	}
	maxDepth, ok := config.DepthLimitFor(depthName)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown depth level")
		return
	}

	limitName := req.RequestLimit
	if limitName == "" {
		limitName = s.cfg.Crawler.RequestLimit
	}
	hostConcurrency, ok := config.RequestLimitFor(limitName)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown request limit level")
		return
	}

	if !req.Force && s.store.Has(seed.Host) {
		writeJSON(w, http.StatusConflict, map[string]string{"detail": "Already Crawled"})
		return
	}

	position, err := s.queue.Submit(crawler.Job{
		Seed:            req.URL,
		MaxDepth:        maxDepth,
		HostConcurrency: hostConcurrency,
	})
	if err != nil {
		if errors.Is(err, queue.ErrShuttingDown) {
			writeError(w, http.StatusServiceUnavailable, "shutting down")
			return
		}
		writeError(w, http.StatusInternalServerError, "queue submission failed")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message":  "website queued for crawling",
		"position": position,
	})
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{"queue": s.queue.Status()}
	if s.watcher != nil {
		resp["pipeline"] = s.watcher.State()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) listGraphs(w http.ResponseWriter, _ *http.Request) {
	hosts, err := s.store.List()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "store error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hosts": hosts})
}

func (s *Server) graphInfo(w http.ResponseWriter, r *http.Request) {
	host, ok := hostParam(w, r)
	if !ok {
		return
	}

	if info, found := s.index.Get(host); found {
		writeJSON(w, http.StatusOK, info)
		return
	}

	// Index may lag behind a fresh crawl; fall back to decoding on demand.
	g, err := s.store.Read(host)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not Crawled"})
			return
		}
		s.logger.Error("graph read failed",
			zap.String("host", host),
			zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "store error")
		return
	}
	writeJSON(w, http.StatusOK, manager.BuildInfo(host, g))
}

func (s *Server) neighborhood(w http.ResponseWriter, r *http.Request) {
	host, ok := hostParam(w, r)
	if !ok {
		return
	}
	node := r.URL.Query().Get("node")
	if node == "" {
		writeError(w, http.StatusBadRequest, "node is required")
		return
	}

	g, err := s.readGraph(w, host)
	if err != nil {
		return
	}
	if !g.HasNode(node) {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Unknown Node"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"node":      node,
		"neighbors": g.Neighbors(node),
	})
}

// streamGraph writes the adjacency list as NDJSON, one node per line.
func (s *Server) streamGraph(w http.ResponseWriter, r *http.Request) {
	host, ok := hostParam(w, r)
	if !ok {
		return
	}
	g, err := s.readGraph(w, host)
	if err != nil {
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	for _, node := range g.Nodes() {
		line := map[string]any{"node": node, "neighbors": g.Neighbors(node)}
		if err := enc.Encode(line); err != nil {
			s.logger.Debug("stream write failed",
				zap.String("host", host),
				zap.Error(err))
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// readGraph loads a host's graph, writing the error response itself when
// loading fails.
func (s *Server) readGraph(w http.ResponseWriter, host string) (*graph.Graph, error) {
	g, err := s.store.Read(host)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not Crawled"})
		} else {
			s.logger.Error("graph read failed",
				zap.String("host", host),
				zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "store error")
		}
		return nil, err
	}
	return g, nil
}

// hostParam resolves the url query parameter to a host key. A bare host is
// accepted as well as a full URL.
func hostParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := r.URL.Query().Get("url")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return "", false
	}
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		return u.Host, true
	}
	return raw, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
