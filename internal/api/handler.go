package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/querypilot/querypilot/internal/config"
	"github.com/querypilot/querypilot/internal/conversation"
	"github.com/querypilot/querypilot/internal/metasync"
	"github.com/querypilot/querypilot/internal/observability"
	"github.com/querypilot/querypilot/internal/orchestrator"
)

type ReadinessCheck func(ctx context.Context) error

// Assistant is the single entry point for user messages.
type Assistant interface {
	Handle(ctx context.Context, req orchestrator.Request) (orchestrator.Response, error)
}

// CacheAdmin exposes the metadata cache to the ops endpoints.
type CacheAdmin interface {
	Current(ctx context.Context) (*metasync.Snapshot, error)
	Refresh(ctx context.Context) (*metasync.Snapshot, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Assistant         Assistant
	History           conversation.History
	Cache             CacheAdmin
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	protected := http.NewServeMux()
	protected.HandleFunc("POST /v1/ask", func(w http.ResponseWriter, r *http.Request) {
		handleAsk(deps, w, r)
	})
	protected.HandleFunc("POST /v1/ask/stream", func(w http.ResponseWriter, r *http.Request) {
		handleAskStream(deps, w, r)
	})
	protected.HandleFunc("GET /v1/history", func(w http.ResponseWriter, r *http.Request) {
		handleHistory(deps, w, r)
	})
	protected.HandleFunc("GET /v1/cache/info", func(w http.ResponseWriter, r *http.Request) {
		handleCacheInfo(deps, w, r)
	})
	protected.HandleFunc("POST /v1/cache/refresh", func(w http.ResponseWriter, r *http.Request) {
		handleCacheRefresh(deps, w, r)
	})

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	mux.Handle("POST /v1/ask", protectedHandler)
	mux.Handle("POST /v1/ask/stream", protectedHandler)
	mux.Handle("GET /v1/history", protectedHandler)
	mux.Handle("GET /v1/cache/info", protectedHandler)
	mux.Handle("POST /v1/cache/refresh", protectedHandler)

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

func CheckHistoryDSN(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.History.DSN == "" {
			return errors.New("history dsn is not configured")
		}
		return nil
	}
}

func CheckWarehousePath(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.Warehouse.Path == "" {
			return errors.New("warehouse path is not configured")
		}
		return nil
	}
}

func CheckObjectStoreConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.ObjectStore.Endpoint == "" {
			return errors.New("object store endpoint is not configured")
		}
		if cfg.ObjectStore.Bucket == "" {
			return errors.New("object store bucket is not configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
