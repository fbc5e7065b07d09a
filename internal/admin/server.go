// Package admin is the read-only operator HTTP surface (§4.10 SPEC_FULL
// addition): pool occupancy, lock registry contents, and the description
// cache for a single Database, plus Prometheus scraping. No tenant CRUD or
// pause/resume — this façade has one Database, not a fleet to administer.
package admin

import (
	"encoding/json"
	"net"
	"net/http"
	"runtime"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skymond-software/mariadb-client/internal/metrics"
	"github.com/skymond-software/mariadb-client/internal/pool"
)

// statsSource is the slice of mariadb.Database this surface actually reads.
// Kept narrow (rather than depending on the full Database interface) so the
// façade's lock registry and describe cache stay optional capabilities,
// detected with the type assertions below.
type statsSource interface {
	Stats() pool.Stats
}

// Server exposes operator-facing introspection over one Database. It never
// mutates the Database: every route is a GET over data the façade already
// tracks for its own operation.
type Server struct {
	db         statsSource
	collector  *metrics.Collector
	startTime  time.Time
	httpServer *http.Server
}

// New builds a Server. collector may be nil, in which case /metrics is not
// registered. db satisfies mariadb.Database; LockSnapshot and
// DescribeCacheSnapshot are detected via type assertion since they are not
// part of the Database interface's operation surface.
func New(db statsSource, collector *metrics.Collector) *Server {
	return &Server{db: db, collector: collector, startTime: time.Now()}
}

// Handler returns the mux.Router backing this Server, for tests or for
// embedding behind another server's ServeMux.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/stats", s.statsHandler).Methods(http.MethodGet)
	r.HandleFunc("/locks", s.locksHandler).Methods(http.MethodGet)
	r.HandleFunc("/describe-cache", s.describeCacheHandler).Methods(http.MethodGet)
	if s.collector != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.collector.Registry, promhttp.HandlerOpts{}))
	}
	return r
}

// Start binds addr and serves until Stop is called.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go s.httpServer.Serve(ln)
	return nil
}

// Stop closes the admin server immediately (http.Server.Close), if started;
// in-flight requests are not drained.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Close()
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
		"go_version":     runtime.Version(),
		"goroutines":     runtime.NumGoroutine(),
	})
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.db.Stats())
}

func (s *Server) locksHandler(w http.ResponseWriter, r *http.Request) {
	type locksResponse struct {
		Tables  []string `json:"tables"`
		Records []string `json:"records"`
	}
	impl, ok := s.db.(interface {
		LockSnapshot() (tables, records []string)
	})
	if !ok {
		writeJSON(w, http.StatusOK, locksResponse{})
		return
	}
	tables, records := impl.LockSnapshot()
	writeJSON(w, http.StatusOK, locksResponse{Tables: tables, Records: records})
}

func (s *Server) describeCacheHandler(w http.ResponseWriter, r *http.Request) {
	impl, ok := s.db.(interface{ DescribeCacheSnapshot() []string })
	if !ok {
		writeJSON(w, http.StatusOK, []string{})
		return
	}
	writeJSON(w, http.StatusOK, impl.DescribeCacheSnapshot())
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
