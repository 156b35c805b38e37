// Package statusapi serves a small HTTP API for looking at a running watcher
// and asking it to check right now.
package statusapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	followerwatch "github.com/ianfoo/follower-watch"
)

// Watcher is the part of *followerwatch.Watcher the API needs.
type Watcher interface {
	Status() followerwatch.Status
	Check(ctx context.Context) (followerwatch.CycleReport, error)
}

// NewRouter returns the API handler:
//
//	GET  /status   watcher status as JSON
//	GET  /healthz  200 while the process is up
//	POST /check    run a cycle now; 409 if one is already running
func NewRouter(w Watcher, log *zap.SugaredLogger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(time.Minute))

	r.Get("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok\n"))
	})
	r.Get("/status", func(rw http.ResponseWriter, _ *http.Request) {
		writeJSON(rw, log, http.StatusOK, w.Status())
	})
	r.Post("/check", func(rw http.ResponseWriter, req *http.Request) {
		report, err := w.Check(req.Context())
		if errors.Cause(err) == followerwatch.ErrCycleInProgress {
			http.Error(rw, err.Error(), http.StatusConflict)
			return
		}
		resp := struct {
			followerwatch.CycleReport
			Error string `json:"error,omitempty"`
		}{CycleReport: report}
		status := http.StatusOK
		if err != nil {
			status = http.StatusBadGateway
		}
		if cerr := report.Err(); cerr != nil {
			resp.Error = cerr.Error()
		}
		writeJSON(rw, log, status, resp)
	})
	return r
}

func writeJSON(rw http.ResponseWriter, log *zap.SugaredLogger, status int, v interface{}) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	if err := json.NewEncoder(rw).Encode(v); err != nil {
		log.Warnw("error encoding response", "err", err)
	}
}

// Start serves the API on addr in the background and returns the server so
// the caller can shut it down.
func Start(addr string, w Watcher, log *zap.SugaredLogger) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(w, log),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	go func() {
		log.Infow("starting status server", "addr", addr)
		err := srv.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.Errorw("error running HTTP server", "err", err)
		}
		log.Infow("HTTP server stopped")
	}()
	return srv
}
