// Command memory-server exposes the memory core over a small HTTP surface:
// health, query, edit, and decay-sweep endpoints driving the full pipeline.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"memory-core/internal/config"
	coreerrors "memory-core/internal/errors"
	"memory-core/internal/logging"
	"memory-core/internal/storage"
	"memory-core/pkg/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "memory-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.NewLogger(logging.ParseLogLevel(cfg.Logging.Level))

	store, err := storage.NewSQLiteStore(cfg.Storage.SQLitePath, logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	// Node reads go through the redis cache when one is configured; the
	// pipeline and writes own the full store.
	var nodeReads storage.NodeStore = store
	if cfg.Storage.RedisAddr != "" {
		cached := storage.NewCachedNodeStore(store, cfg.Storage.RedisAddr,
			time.Duration(cfg.Storage.CacheTTLSeconds)*time.Second, logger)
		defer func() { _ = cached.Close() }()
		nodeReads = cached
	}

	service := storage.NewQueryService(store, nil, nil, cfg, logger)
	server := newServer(service, store, nodeReads, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("memory-server listening", "addr", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-stop:
		logger.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			return err
		}
	}
	return nil
}

func newServer(service *storage.QueryService, store storage.Store, nodeReads storage.NodeStore, logger logging.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if err := store.HealthCheck(req.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/v1/query", func(w http.ResponseWriter, req *http.Request) {
		var qr storage.QueryRequest
		if err := json.NewDecoder(req.Body).Decode(&qr); err != nil {
			writeError(w, http.StatusBadRequest, coreerrors.New(coreerrors.ErrorCodeSchemaValidationFailed, err.Error()))
			return
		}
		resp, err := service.Query(req.Context(), qr)
		if err != nil {
			logger.Error("query failed", "error", err.Error())
			writeError(w, http.StatusInternalServerError, coreerrors.New(coreerrors.ErrorCodeStorageError, err.Error()))
			return
		}
		writeJSON(w, http.StatusOK, resp)
	})

	r.Post("/v1/nodes", func(w http.ResponseWriter, req *http.Request) {
		var node types.Node
		if err := json.NewDecoder(req.Body).Decode(&node); err != nil {
			writeError(w, http.StatusBadRequest, coreerrors.New(coreerrors.ErrorCodeSchemaValidationFailed, err.Error()))
			return
		}
		if err := store.PutNode(req.Context(), &node); err != nil {
			writeError(w, statusFor(err), asCoreError(err))
			return
		}
		writeJSON(w, http.StatusCreated, node)
	})

	r.Get("/v1/nodes/{id}", func(w http.ResponseWriter, req *http.Request) {
		node, err := nodeReads.GetNode(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			writeError(w, statusFor(err), asCoreError(err))
			return
		}
		writeJSON(w, http.StatusOK, node)
	})

	r.Post("/v1/nodes/{id}/edit", func(w http.ResponseWriter, req *http.Request) {
		var er types.EditRequest
		if err := json.NewDecoder(req.Body).Decode(&er); err != nil {
			writeError(w, http.StatusBadRequest, coreerrors.New(coreerrors.ErrorCodeSchemaValidationFailed, err.Error()))
			return
		}
		result := service.Edit(req.Context(), chi.URLParam(req, "id"), &er)
		status := http.StatusOK
		if !result.Success {
			status = statusForCode(result.Error.Code)
		}
		writeJSON(w, status, result)
	})

	r.Post("/v1/decay/sweep", func(w http.ResponseWriter, req *http.Request) {
		report, err := service.RunDecaySweep(req.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, asCoreError(err))
			return
		}
		writeJSON(w, http.StatusOK, report)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err *coreerrors.CoreError) {
	writeJSON(w, status, map[string]any{"error": err})
}

func asCoreError(err error) *coreerrors.CoreError {
	var ce *coreerrors.CoreError
	if errors.As(err, &ce) {
		return ce
	}
	return coreerrors.New(coreerrors.ErrorCodeStorageError, err.Error())
}

func statusFor(err error) int {
	return statusForCode(coreerrors.CodeOf(err))
}

func statusForCode(code coreerrors.ErrorCode) int {
	switch code {
	case coreerrors.ErrorCodeNotFound, coreerrors.ErrorCodeBlockNotFound,
		coreerrors.ErrorCodeHeadingNotFound, coreerrors.ErrorCodeSearchNotFound:
		return http.StatusNotFound
	case coreerrors.ErrorCodeVersionMismatch:
		return http.StatusConflict
	case coreerrors.ErrorCodeSchemaValidationFailed:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
