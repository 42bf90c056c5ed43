// Package server exposes persisted earnings over a read-only HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/earnings-cli/internal/model"
)

// Reader is the store surface the API needs.
type Reader interface {
	ListByTicker(ctx context.Context, ticker string, limit int) ([]model.EarningsRow, error)
	LatestReportDates(ctx context.Context, ticker string, limit int) ([]time.Time, error)
	Ping(ctx context.Context) error
}

// Server serves the earnings API.
type Server struct {
	store   Reader
	metrics *Metrics
	router  chi.Router
}

// New builds the router. An empty origin list allows any origin.
func New(st Reader, corsOrigins []string) *Server {
	s := &Server{store: st, metrics: NewMetrics()}

	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/earnings/{ticker}", s.handleList)
	r.Get("/earnings/{ticker}/dates", s.handleDates)
	r.Handle("/metrics", s.metrics.Handler())

	s.router = r
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on port until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("server: listening", zap.Int("port", port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return eris.Wrap(err, "server: listen")
	case <-ctx.Done():
		zap.L().Info("server: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return eris.Wrap(srv.Shutdown(shutdownCtx), "server: shutdown")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		zap.L().Warn("server: health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type listResponse struct {
	Ticker   string              `json:"ticker"`
	Count    int                 `json:"count"`
	Earnings []model.EarningsRow `json:"earnings"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	ticker := tickerParam(r)
	limit, ok := limitParam(w, r)
	if !ok {
		return
	}

	rows, err := s.store.ListByTicker(r.Context(), ticker, limit)
	if err != nil {
		zap.L().Error("server: list earnings", zap.String("ticker", ticker), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load earnings")
		return
	}
	if rows == nil {
		rows = []model.EarningsRow{}
	}
	s.metrics.rowsServed.Add(float64(len(rows)))
	writeJSON(w, http.StatusOK, listResponse{Ticker: ticker, Count: len(rows), Earnings: rows})
}

type datesResponse struct {
	Ticker string   `json:"ticker"`
	Dates  []string `json:"dates"`
}

func (s *Server) handleDates(w http.ResponseWriter, r *http.Request) {
	ticker := tickerParam(r)
	limit, ok := limitParam(w, r)
	if !ok {
		return
	}

	dates, err := s.store.LatestReportDates(r.Context(), ticker, limit)
	if err != nil {
		zap.L().Error("server: report dates", zap.String("ticker", ticker), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load report dates")
		return
	}
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = d.Format("2006-01-02")
	}
	writeJSON(w, http.StatusOK, datesResponse{Ticker: ticker, Dates: out})
}

func tickerParam(r *http.Request) string {
	return strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "ticker")))
}

// limitParam parses ?limit=. Missing means the store default.
func limitParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return 0, false
	}
	return n, true
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("server: encode response", zap.Error(err))
	}
}
