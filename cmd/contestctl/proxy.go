package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/contesthub-client/pkg/auth"
	"github.com/Sternrassler/contesthub-client/pkg/client"
	"github.com/Sternrassler/contesthub-client/pkg/metrics"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// hopHeaders are not copied between the backend and the proxy caller.
var hopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"Te", "Trailer", "Transfer-Encoding", "Upgrade", "Content-Length",
}

func newProxyCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Serve /api through this client with shared rate limiting and metrics",
		Long: `Serve a local proxy in front of the backend.

  /health   liveness
  /ready    Redis reachability (when configured)
  /metrics  Prometheus metrics
  /api/...  forwarded to the backend; the caller's Authorization header wins
            over the configured token`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				a.cfg.ProxyAddr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serveProxy(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides CONTESTHUB_PROXY_ADDR)")
	return cmd
}

func (a *app) serveProxy(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.ProxyAddr,
		Handler:           newProxyHandler(a.client, a.redis, a.cfg.AllowedOrigins, a.logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info().
			Str("addr", srv.Addr).
			Str("backend", a.client.BaseURL()).
			Strs("allowed_origins", a.cfg.AllowedOrigins).
			Msg("Starting proxy")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("proxy server: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info().Msg("Shutting down proxy")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newProxyHandler(c *client.Client, rdb *redis.Client, origins []string, logger zerolog.Logger) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/ready", readyHandler(rdb)).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.PathPrefix("/api/").Handler(apiProxyHandler(c, logger))

	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", auth.HeaderName, client.RequestIDHeader},
		AllowCredentials: true,
	}).Handler(r)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func readyHandler(rdb *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if rdb != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := rdb.Ping(ctx).Err(); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	}
}

func apiProxyHandler(c *client.Client, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()

		if h := r.Header.Get(auth.HeaderName); h != "" {
			ctx = auth.WithIdentity(ctx, &auth.Identity{Token: h})
		}

		var body io.Reader
		if r.Body != nil && r.Method != http.MethodGet && r.Method != http.MethodHead {
			body = r.Body
		}
		req, err := c.NewRequest(ctx, r.Method, r.URL.Path, r.URL.Query(), body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for _, h := range []string{"Content-Type", "Accept", client.RequestIDHeader} {
			if v := r.Header.Get(h); v != "" {
				req.Header.Set(h, v)
			}
		}

		resp, err := c.Do(req)
		if err != nil {
			writeProxyError(w, err, logger)
			return
		}
		defer resp.Body.Close()

		copyHeaders(w.Header(), resp.Header)
		w.WriteHeader(resp.StatusCode)
		if _, err := io.Copy(w, resp.Body); err != nil {
			logger.Warn().Err(err).Str("path", r.URL.Path).Msg("Failed to copy backend response")
		}
	}
}

// writeProxyError passes backend failures through with their status and
// body; failures that never reached the backend become 502 or 429.
func writeProxyError(w http.ResponseWriter, err error, logger zerolog.Logger) {
	var apiErr *client.APIError
	switch {
	case errors.As(err, &apiErr) && apiErr.StatusCode > 0:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(apiErr.StatusCode)
		w.Write(apiErr.Body)
	case errors.Is(err, client.ErrRateLimited):
		http.Error(w, err.Error(), http.StatusTooManyRequests)
	default:
		logger.Warn().Err(err).Msg("Backend request failed")
		http.Error(w, fmt.Sprintf("backend request failed: %v", err), http.StatusBadGateway)
	}
}

func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		for _, value := range values {
			dst.Add(key, value)
		}
	}
	for _, h := range hopHeaders {
		dst.Del(h)
	}
}
