package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/danmuck/hipotlink/internal/recorder"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// FrameSource lists recent frame records, oldest first.
type FrameSource interface {
	List() []recorder.FrameRecord
}

// StatusFunc reports the state of one polled channel.
type StatusFunc func() map[string]any

// Router serves /health, /metrics and /frames for a running poller.
func Router(name string, frames FrameSource, status StatusFunc) http.Handler {
	RegisterMetrics()
	started := time.Now()

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(log.Logger))
	r.Use(RequestMetrics)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		body := map[string]any{
			"status":  "ok",
			"uptime":  time.Since(started).String(),
			"service": name,
		}
		if status != nil {
			for k, v := range status() {
				body[k] = v
			}
		}
		writeJSON(w, http.StatusOK, body)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/frames", func(w http.ResponseWriter, req *http.Request) {
		if frames == nil {
			writeJSON(w, http.StatusOK, map[string]any{"frames": []recorder.FrameRecord{}})
			return
		}
		list := frames.List()
		if raw := req.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				writeJSON(w, http.StatusBadRequest, map[string]any{"error": "limit must be a non-negative integer"})
				return
			}
			if n < len(list) {
				list = list[len(list)-n:]
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"frames": list})
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn().Err(err).Msg("observability.writeJSON encode failed")
	}
}

// Serve runs handler on addr until ctx is done.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("observability.Serve listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
