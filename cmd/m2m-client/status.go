package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mash-protocol/m2m-client/cmd/m2m-client/interactive"
	"github.com/mash-protocol/m2m-client/pkg/session"
)

// statusSource is the part of the endpoint the status server exposes.
type statusSource interface {
	Status() interactive.Status
	Get(path string) ([]byte, error)
}

// newStatusRouter serves the endpoint status, a health check, resource
// reads and the Prometheus metrics gathered in reg.
func newStatusRouter(src statusSource, reg prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, src.Status())
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		st := src.Status()
		code := http.StatusOK
		if st.State != session.StateRegistered.String() {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]string{"state": st.State})
	})

	r.Get("/resources/*", func(w http.ResponseWriter, r *http.Request) {
		path := "/" + chi.URLParam(r, "*")
		v, err := src.Get(path)
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"path": path, "value": string(v)})
	})

	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
