package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Sternrassler/newsfeed-client/pkg/client"
	"github.com/Sternrassler/newsfeed-client/pkg/metrics"
	"github.com/Sternrassler/newsfeed-client/pkg/pagination"
	"github.com/Sternrassler/newsfeed-client/pkg/transport"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve pages over HTTP through the cached, retrying client",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("port") {
				a.cfg.Server.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv := &http.Server{
				Addr:              ":" + strconv.Itoa(a.cfg.Server.Port),
				Handler:           newRouter(a.client, a.logger),
				ReadHeaderTimeout: 5 * time.Second,
			}

			errc := make(chan error, 1)
			go func() {
				a.logger.Info().Str("addr", srv.Addr).Msg("Starting newsfeed server")
				errc <- srv.ListenAndServe()
			}()

			select {
			case err := <-errc:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return fmt.Errorf("server failed: %w", err)
			case <-ctx.Done():
			}

			a.logger.Info().Msg("Shutting down newsfeed server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 8080, "listen port (overrides server.port)")
	return cmd
}

func newRouter(getter pagination.PageGetter, logger zerolog.Logger) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", healthHandler).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/pages/{page:[0-9]+}", pageHandler(getter, logger)).Methods(http.MethodGet)
	return r
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func pageHandler(getter pagination.PageGetter, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := strconv.Atoi(mux.Vars(r)["page"])
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid page number")
			return
		}

		result, err := getter.GetPage(r.Context(), page)
		if err != nil {
			status := statusFor(err)
			logger.Warn().Err(err).Int("page", page).Int("status_code", status).Msg("Page request failed")
			writeError(w, status, err.Error())
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if result.Cached {
			w.Header().Set("X-Cache", "HIT")
		} else {
			w.Header().Set("X-Cache", "MISS")
		}
		_ = json.NewEncoder(w).Encode(result)
	}
}

// statusFor maps an orchestrator error onto the response status.
func statusFor(err error) int {
	var httpErr *transport.HTTPError
	switch {
	case errors.Is(err, client.ErrInvalidPage):
		return http.StatusBadRequest
	case errors.Is(err, client.ErrContextCancelled):
		return http.StatusServiceUnavailable
	case errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound:
		return http.StatusNotFound
	case transport.Classify(err) == transport.ErrorClassRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusBadGateway
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
