package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/painminer/internal/model"
	"github.com/sells-group/painminer/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the read-only query API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "OPTIONS"},
		}))

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			if err := st.Ping(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Get("/api/pains", func(w http.ResponseWriter, r *http.Request) {
			f := store.PainFilter{
				Industry: r.URL.Query().Get("industry"),
				Source:   model.Source(r.URL.Query().Get("source")),
				Limit:    queryInt(r, "limit", 100),
			}
			f.MinSeverity = queryInt(r, "min_severity", 0)
			f.MaxSeverity = queryInt(r, "max_severity", 0)
			pains, err := st.ListPains(r.Context(), f)
			if err != nil {
				serverError(w, "list pains", err)
				return
			}
			writeJSON(w, http.StatusOK, pains)
		})

		r.Get("/api/clusters", func(w http.ResponseWriter, r *http.Request) {
			clusters, err := st.ListClusters(r.Context(), store.ClusterFilter{
				MinSize: queryInt(r, "min_size", 0),
				Limit:   queryInt(r, "limit", 100),
			})
			if err != nil {
				serverError(w, "list clusters", err)
				return
			}
			writeJSON(w, http.StatusOK, clusters)
		})

		r.Get("/api/clusters/{id}/analyses", func(w http.ResponseWriter, r *http.Request) {
			analyses, err := st.ListDeepAnalyses(r.Context(), chi.URLParam(r, "id"))
			if err != nil {
				serverError(w, "list analyses", err)
				return
			}
			writeJSON(w, http.StatusOK, analyses)
		})

		r.Get("/api/costs", func(w http.ResponseWriter, r *http.Request) {
			days := queryInt(r, "days", 30)
			to := time.Now().UTC()
			stats, err := st.DailyStats(r.Context(), to.AddDate(0, 0, -days), to)
			if err != nil {
				serverError(w, "daily stats", err)
				return
			}
			writeJSON(w, http.StatusOK, stats)
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func serverError(w http.ResponseWriter, op string, err error) {
	zap.L().Error(op+" failed", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
