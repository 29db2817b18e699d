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

	"github.com/sells-group/promo-scout/internal/model"
	"github.com/sells-group/promo-scout/internal/monitoring"
	"github.com/sells-group/promo-scout/internal/pipeline"
	"github.com/sells-group/promo-scout/internal/store"
)

// maxExtractBody caps POST /extract request bodies.
const maxExtractBody = 1 << 20

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the extraction and dashboard API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, cfg, envOptions{mode: "serve", store: true})
		if err != nil {
			return err
		}
		defer env.Close()

		if cfg.Monitoring.Enabled {
			checker := monitoring.NewChecker(env.Collector(), monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
			go checker.Run(ctx)
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(env, cfg.Server.CORSOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// api serves the HTTP endpoints over a wired environment.
type api struct {
	env *scoutEnv
}

func newRouter(env *scoutEnv, origins []string) http.Handler {
	a := &api{env: env}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", a.handleHealth)
	r.Post("/extract", a.handleExtract)
	r.Get("/results", a.handleResults)
	r.Get("/stats", a.handleStats)
	return r
}

func (a *api) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"breaker": a.env.Controller.BreakerState().String(),
	})
}

type extractRequest struct {
	SourceID  string `json:"source_id"`
	Text      string `json:"text"`
	SourceKey string `json:"source_key"`
}

func (a *api) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxExtractBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SourceID == "" {
		writeError(w, http.StatusBadRequest, "source_id is required")
		return
	}

	out, err := a.env.Processor.Process(r.Context(), pipeline.Item{
		SourceID:  req.SourceID,
		Text:      req.Text,
		SourceKey: req.SourceKey,
	})
	if err != nil {
		zap.L().Error("api: extract failed", zap.String("source_id", req.SourceID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "extraction failed")
		return
	}

	status := http.StatusOK
	if out.Saved {
		status = http.StatusCreated
	}
	writeJSON(w, status, out.Result)
}

func (a *api) handleResults(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter store.ResultFilter

	if s := q.Get("status"); s != "" {
		filter.Status = model.Status(s)
		if !filter.Status.Valid() {
			writeError(w, http.StatusBadRequest, "unknown status")
			return
		}
	}
	if s := q.Get("enhanced"); s != "" {
		v, err := strconv.ParseBool(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "enhanced must be true or false")
			return
		}
		filter.Enhanced = &v
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		if s := q.Get(name); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, name+" must be a non-negative integer")
				return
			}
			*dst = n
		}
	}

	results, err := a.env.Backend.Sink.ListResults(r.Context(), filter)
	if err != nil {
		zap.L().Error("api: list results failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list results failed")
		return
	}
	if results == nil {
		results = []model.ExtractionResult{}
	}
	writeJSON(w, http.StatusOK, results)
}

func (a *api) handleStats(w http.ResponseWriter, r *http.Request) {
	snap, err := a.env.Collector().Collect(r.Context())
	if err != nil {
		zap.L().Error("api: collect stats failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "collect stats failed")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
