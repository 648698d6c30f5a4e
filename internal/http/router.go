package http

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/obiente/translate/scribe/internal/keywords"
	"github.com/obiente/translate/scribe/internal/report"
	"github.com/obiente/translate/scribe/internal/session"
	"github.com/obiente/translate/scribe/internal/ws"
)

func NewRouter(registry *session.Registry, wss *ws.Server, reports *report.Store, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "sessions": registry.Len()})
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// Streaming transcription WebSocket
	r.Get("/ws/transcribe", wss.Handle)

	r.Get("/reports", handleListReports(reports))
	r.Get("/reports/raw/*", handleRawReport(reports))
	r.Get("/reports/*", handleViewReport(reports))
	return r
}

func handleListReports(reports *report.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		names, err := reports.List()
		if err != nil {
			reportError(w, r, err)
			return
		}
		if names == nil {
			names = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"reports": names})
	}
}

func handleViewReport(reports *report.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, data, err := readReport(reports, r)
		if err != nil {
			reportError(w, r, err)
			return
		}
		content := string(data)
		writeJSON(w, http.StatusOK, map[string]any{
			"name":     name,
			"content":  content,
			"keywords": keywords.Extract(content),
		})
	}
}

func handleRawReport(reports *report.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, data, err := readReport(reports, r)
		if err != nil {
			reportError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write(data)
	}
}

func readReport(reports *report.Store, r *http.Request) (string, []byte, error) {
	name, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil {
		return "", nil, report.ErrInvalidName
	}
	data, err := reports.Read(name)
	return name, data, err
}

func reportError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, report.ErrInvalidName), errors.Is(err, fs.ErrPermission):
		log.Warn().Err(err).Str("path", r.URL.Path).Msg("report access denied")
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, report.ErrNotFound):
		http.Error(w, "report not found", http.StatusNotFound)
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("report request failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("elapsed", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}
