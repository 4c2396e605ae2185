// Package admin serves the status of a running sweep over HTTP.
package admin

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"meshsweep/internal/metrics"
	"meshsweep/internal/sweep"
)

// StatusSource is implemented by sweep.Runner.
type StatusSource interface {
	Progress() sweep.Progress
	Results() []metrics.ScenarioResult
}

type Server struct {
	src    StatusSource
	tpl    *template.Template
	router *mux.Router
	log    logrus.FieldLogger
}

//go:embed templates/index.html
var content embed.FS

func NewServer(src StatusSource, log logrus.FieldLogger) *Server {
	tpl := template.Must(template.New("index.html").ParseFS(content, "templates/index.html"))
	s := &Server{src: src, tpl: tpl, router: mux.NewRouter().StrictSlash(true), log: log}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(s.logRequests)
	s.router.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	s.router.HandleFunc("/progress", s.handleProgress).Methods(http.MethodGet)
	s.router.HandleFunc("/results", s.handleResults).Methods(http.MethodGet)
	s.router.HandleFunc("/results/{nodes:[0-9]+}", s.handleResult).Methods(http.MethodGet)
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	s.log.WithField("addr", addr).Info("admin server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// statusRecorder captures the response code for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"uri":      r.RequestURI,
			"status":   rec.status,
			"duration": time.Since(start),
		}).Debug("admin request")
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := struct {
		Progress sweep.Progress
		Results  []metrics.ScenarioResult
	}{
		Progress: s.src.Progress(),
		Results:  s.src.Results(),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tpl.Execute(w, data); err != nil {
		s.log.WithError(err).Error("render index")
	}
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.src.Progress())
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	results := s.src.Results()
	if results == nil {
		results = []metrics.ScenarioResult{}
	}
	writeJSON(w, results)
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	nodes, err := strconv.Atoi(mux.Vars(r)["nodes"])
	if err != nil {
		http.Error(w, "invalid node count", http.StatusBadRequest)
		return
	}
	for _, res := range s.src.Results() {
		if res.Nodes == nodes {
			writeJSON(w, res)
			return
		}
	}
	http.Error(w, "no result for that node count", http.StatusNotFound)
}
