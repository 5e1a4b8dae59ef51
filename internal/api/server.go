// Package api 提供健康检查、指标、报价查询、实时推送与人工确认的 HTTP 接口。
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"crypto-trading-bot/internal/engine"
	"crypto-trading-bot/internal/model"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// QuoteSource 可查询最近报价的引擎
type QuoteSource interface {
	Name() string
	Quotes() (engine.QuoteView, bool)
}

// Confirmer 人工确认端口
type Confirmer interface {
	Approve(instance string, side model.Side) error
	Reject(instance string, side model.Side) error
	Pending() []engine.Proposal
}

type Server struct {
	hub     *Hub
	sources []QuoteSource
	confirm Confirmer
	logger  *zap.Logger
	srv     *http.Server
}

// NewServer confirm 为空时确认接口返回 404
func NewServer(addr string, hub *Hub, sources []QuoteSource, confirm Confirmer, logger *zap.Logger) *Server {
	s := &Server{hub: hub, sources: sources, confirm: confirm, logger: logger}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /quotes", s.handleQuotes)
	mux.HandleFunc("GET /ws", s.hub.ServeWS)
	mux.HandleFunc("GET /confirmations", s.handlePending)
	mux.HandleFunc("POST /confirmations/{instance}/{side}", s.handleConfirmation(true))
	mux.HandleFunc("DELETE /confirmations/{instance}/{side}", s.handleConfirmation(false))
	return mux
}

// Start 在后台监听，监听失败只记录日志
func (s *Server) Start() {
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server failed", zap.Error(err))
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleQuotes(w http.ResponseWriter, _ *http.Request) {
	quotes := make([]engine.QuoteView, 0, len(s.sources))
	for _, src := range s.sources {
		if q, ok := src.Quotes(); ok {
			quotes = append(quotes, q)
		}
	}
	sort.Slice(quotes, func(i, j int) bool { return quotes[i].Instance < quotes[j].Instance })
	writeJSON(w, http.StatusOK, quotes)
}

func (s *Server) handlePending(w http.ResponseWriter, _ *http.Request) {
	if s.confirm == nil {
		writeJSON(w, http.StatusOK, []engine.Proposal{})
		return
	}
	writeJSON(w, http.StatusOK, s.confirm.Pending())
}

func (s *Server) handleConfirmation(approve bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.confirm == nil {
			writeError(w, http.StatusNotFound, "manual confirmation is disabled")
			return
		}
		instance := r.PathValue("instance")
		var side model.Side
		switch r.PathValue("side") {
		case "buy":
			side = model.SideBuy
		case "sell":
			side = model.SideSell
		default:
			writeError(w, http.StatusBadRequest, "side must be buy or sell")
			return
		}

		var err error
		if approve {
			err = s.confirm.Approve(instance, side)
		} else {
			err = s.confirm.Reject(instance, side)
		}
		switch {
		case errors.Is(err, engine.ErrNoPendingProposal):
			writeError(w, http.StatusNotFound, err.Error())
		case err != nil:
			writeError(w, http.StatusInternalServerError, err.Error())
		default:
			s.logger.Info("Confirmation recorded",
				zap.String("Instance", instance),
				zap.String("side", side.String()),
				zap.Bool("approved", approve))
			w.WriteHeader(http.StatusNoContent)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
