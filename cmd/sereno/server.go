package main

import (
	"bytes"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/sereno/internal/app"
	"github.com/MrWong99/sereno/internal/health"
	"github.com/MrWong99/sereno/internal/observe"
)

// newOpsServer returns the HTTP server exposing health probes, Prometheus
// metrics and a PNG snapshot of the visualizer.
func newOpsServer(addr string, application *app.App) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           opsHandler(application, promhttp.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func opsHandler(application *app.App, metrics http.Handler) http.Handler {
	mux := http.NewServeMux()

	health.New(application.HealthCheckers()...).
		WithState(func() string { return application.Machine().State().String() }).
		Register(mux)
	mux.Handle("GET /metrics", metrics)
	mux.HandleFunc("GET /visualizer.png", func(w http.ResponseWriter, _ *http.Request) {
		var buf bytes.Buffer
		if err := application.Canvas().Snapshot(&buf); err != nil {
			slog.Warn("encode visualizer snapshot", "err", err)
			http.Error(w, "snapshot failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write(buf.Bytes())
	})

	return observe.Middleware(observe.DefaultMetrics(),
		observe.WithQuietPaths("/healthz", "/readyz", "/metrics"),
	)(mux)
}
