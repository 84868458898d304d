// Package vod routes and serves the adaptive streaming surface: manifests,
// Smooth/DASH-Live fragments, and Range-addressed DASH On-Demand content.
package vod

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/snapetech/vod-origin/internal/adaptive"
	"github.com/snapetech/vod-origin/internal/playready"
	"github.com/snapetech/vod-origin/internal/worker"
)

// Server serves the /{endpoint}/ URL surface plus /healthz and /metrics.
// Fields are wired once at startup and read-only afterwards.
type Server struct {
	Addr       string
	Endpoint   string // URL prefix, default "vod"
	ArchiveDir string
	DirLevels  int // 0..3: shard content ids into subdirectories

	PlayReady *playready.PlayReady
	Pool      *worker.Pool
	Cache     *adaptive.Cache
}

// WireMetrics connects the pool and cache observers to the Prometheus
// gauges. Call once after construction.
func (s *Server) WireMetrics() {
	if s.Pool != nil {
		s.Pool.QueueDepth = func(n int) { metricQueueDepth.Set(float64(n)) }
	}
	if s.Cache != nil {
		s.Cache.Size = func(n int) { metricCacheSize.Set(float64(n)) }
	}
}

// Handler builds the full route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/"+s.endpoint()+"/", http.HandlerFunc(s.serveAdaptive))
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", http.HandlerFunc(s.serveHealth))
	return logRequests(mux)
}

func (s *Server) endpoint() string {
	if s.Endpoint == "" {
		return "vod"
	}
	return s.Endpoint
}

// Run blocks until ctx is cancelled or the server fails to start. On
// shutdown it stops accepting new connections and waits briefly for in-flight
// requests to finish.
func (s *Server) Run(ctx context.Context) error {
	addr := s.Addr
	if addr == "" {
		addr = ":8060"
	}
	srv := &http.Server{Addr: addr, Handler: s.Handler()}

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("vod: listening on %s (endpoint /%s/, archive %s, %d workers)",
			addr, s.endpoint(), s.ArchiveDir, s.Pool.Workers())
		serverErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		log.Print("vod: shutting down ...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("vod: shutdown: %v", err)
		}
		<-serverErr
		return nil
	}
}

func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","cached_presentations":%d}`, s.Cache.Len())
}

// contentDir maps a content id into the archive tree, sharded by the first
// DirLevels characters.
func (s *Server) contentDir(key string) string {
	parts := []string{s.ArchiveDir}
	levels := s.DirLevels
	if levels > len(key) {
		levels = len(key)
	}
	for i := 0; i < levels; i++ {
		parts = append(parts, key[i:i+1])
	}
	parts = append(parts, key)
	return filepath.Join(parts...)
}

// validKey rejects ids that would escape the archive tree.
func validKey(key string) bool {
	if key == "" || key == "." || key == ".." {
		return false
	}
	return !strings.ContainsAny(key, "/\\\x00")
}

// responseStats observes what a handler wrote so the access log and the
// served-bytes counter see every response path, including the async Finish
// writes.
type responseStats struct {
	http.ResponseWriter
	code    int
	written int64
}

func (rs *responseStats) WriteHeader(code int) {
	rs.code = code
	rs.ResponseWriter.WriteHeader(code)
}

func (rs *responseStats) Write(p []byte) (int, error) {
	n, err := rs.ResponseWriter.Write(p)
	rs.written += int64(n)
	return n, err
}

func (rs *responseStats) Flush() {
	if f, ok := rs.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// logRequests is the access log for the whole surface; one line per request
// once the handler returns.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rs := &responseStats{ResponseWriter: w, code: http.StatusOK}
		started := time.Now()
		next.ServeHTTP(rs, r)
		metricBytesServed.Add(float64(rs.written))
		log.Printf("vod: %s %s -> %d (%d bytes, %s) client=%s",
			r.Method, r.URL.RequestURI(), rs.code, rs.written,
			time.Since(started).Round(time.Millisecond), r.RemoteAddr)
	})
}
