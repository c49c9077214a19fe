package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/citation-cli/internal/audit"
	"github.com/sells-group/citation-cli/internal/config"
	"github.com/sells-group/citation-cli/internal/model"
	"github.com/sells-group/citation-cli/internal/monitoring"
	"github.com/sells-group/citation-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start webhook server for audit requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initAudit(ctx, config.ModeServe)
		if err != nil {
			return err
		}
		defer env.Close()

		if cfg.Monitoring.WebhookURL != "" {
			checker := monitoring.NewChecker(
				monitoring.NewCollector(env.Store),
				monitoring.NewAlerter(cfg.Monitoring),
				cfg.Monitoring,
			)
			go checker.Run(ctx)
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(ctx, env.Orchestrator, env.Store, cfg.Server.AllowedOrigins),
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
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// auditService is the orchestrator surface the server drives.
type auditService interface {
	Submit(ctx context.Context, locationID string) (*model.AuditRun, error)
	PollPending(ctx context.Context, limit int) (audit.PollSummary, error)
}

// auditReader is the read-only store surface the server exposes.
type auditReader interface {
	GetAuditRun(ctx context.Context, id string) (*model.AuditRun, error)
	ListReconciledListings(ctx context.Context, locationID string) ([]model.ReconciledListing, error)
}

type auditRequest struct {
	LocationID string `json:"location_id" validate:"required"`
}

type pollRequest struct {
	Limit int `json:"limit" validate:"gte=0,lte=1000"`
}

// buildRouter wires the HTTP routes. Submissions run in the background on
// ctx so they outlive the request.
func buildRouter(ctx context.Context, svc auditService, rd auditReader, allowedOrigins []string) *chi.Mux {
	validate := validator.New()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	if len(allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/webhook/audit", func(w http.ResponseWriter, req *http.Request) {
		var body auditRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := validate.Struct(body); err != nil {
			respondError(w, http.StatusBadRequest, "location_id is required")
			return
		}

		go func() {
			run, err := svc.Submit(ctx, body.LocationID)
			if err != nil {
				zap.L().Error("webhook audit submit failed",
					zap.String("location_id", body.LocationID),
					zap.Error(err),
				)
				return
			}
			zap.L().Info("webhook audit submitted",
				zap.String("location_id", body.LocationID),
				zap.String("run_id", run.ID),
			)
		}()

		respondJSON(w, http.StatusAccepted, map[string]string{
			"status":      "accepted",
			"location_id": body.LocationID,
		})
	})

	r.Post("/webhook/poll", func(w http.ResponseWriter, req *http.Request) {
		var body pollRequest
		if req.ContentLength != 0 {
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				respondError(w, http.StatusBadRequest, "invalid request body")
				return
			}
		}
		if err := validate.Struct(body); err != nil {
			respondError(w, http.StatusBadRequest, "limit must be between 0 and 1000")
			return
		}
		limit := body.Limit
		if limit == 0 && cfg != nil {
			limit = cfg.Poll.Limit
		}

		summary, err := svc.PollPending(req.Context(), limit)
		if err != nil {
			zap.L().Error("webhook poll failed", zap.Error(err))
			respondError(w, http.StatusInternalServerError, "poll failed")
			return
		}
		respondJSON(w, http.StatusOK, summary)
	})

	r.Get("/audits/{id}", func(w http.ResponseWriter, req *http.Request) {
		run, err := rd.GetAuditRun(req.Context(), chi.URLParam(req, "id"))
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "audit run not found")
			return
		}
		if err != nil {
			zap.L().Error("get audit run failed", zap.Error(err))
			respondError(w, http.StatusInternalServerError, "internal error")
			return
		}
		respondJSON(w, http.StatusOK, run)
	})

	r.Get("/locations/{id}/citations", func(w http.ResponseWriter, req *http.Request) {
		listings, err := rd.ListReconciledListings(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			zap.L().Error("list citations failed", zap.Error(err))
			respondError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if listings == nil {
			listings = []model.ReconciledListing{}
		}
		respondJSON(w, http.StatusOK, listings)
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
