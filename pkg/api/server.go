// Package api exposes chain state and operator actions over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/raykavin/zepix/pkg/core"
	"github.com/raykavin/zepix/pkg/logger"
	"github.com/raykavin/zepix/pkg/report"
	"github.com/samber/lo"
)

const (
	requestTimeout  = 10 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Server serves the operator API
type Server struct {
	operator core.Operator
	log      logger.Logger
	router   *mux.Router
}

// NewServer builds the router
//
//	GET  /health
//	GET  /metrics
//	GET  /api/v1/chains[?status=ACTIVE]
//	GET  /api/v1/chains/{id}
//	POST /api/v1/chains/{id}/stop
//	GET  /api/v1/safety
//	GET  /api/v1/report
//	POST /api/v1/monitor/pause
//	POST /api/v1/monitor/resume
//	POST /api/v1/events/closed
//	POST /api/v1/quotes
func NewServer(operator core.Operator, log logger.Logger) *Server {
	s := &Server{operator: operator, log: log, router: mux.NewRouter()}

	s.router.Use(s.recovery, s.logging)
	s.router.HandleFunc("/health", s.health).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/chains", s.chains).Methods(http.MethodGet)
	v1.HandleFunc("/chains/{id}", s.chain).Methods(http.MethodGet)
	v1.HandleFunc("/chains/{id}/stop", s.stopChain).Methods(http.MethodPost)
	v1.HandleFunc("/safety", s.safety).Methods(http.MethodGet)
	v1.HandleFunc("/report", s.report).Methods(http.MethodGet)
	v1.HandleFunc("/monitor/pause", s.pause).Methods(http.MethodPost)
	v1.HandleFunc("/monitor/resume", s.resume).Methods(http.MethodPost)
	v1.HandleFunc("/events/closed", s.closed).Methods(http.MethodPost)
	v1.HandleFunc("/quotes", s.quote).Methods(http.MethodPost)

	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is done
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: requestTimeout,
	}

	errs := make(chan error, 1)
	go func() {
		s.log.Infof("api listening on %s", addr)
		errs <- server.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

type chainResponse struct {
	Chain  core.Chain        `json:"chain"`
	Orders []core.ChainOrder `json:"orders"`
}

type safetyResponse struct {
	Counters core.Counters `json:"counters"`
	Caps     struct {
		MaxDailyRecoveryAttempts int     `json:"max_daily_recovery_attempts"`
		MaxDailyRecoveryLoss     float64 `json:"max_daily_recovery_loss"`
		MaxChainRecoveryAttempts int     `json:"max_chain_recovery_attempts"`
	} `json:"caps"`
}

type quoteRequest struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
}

type reportResponse struct {
	Symbol        string         `json:"symbol"`
	Chains        int            `json:"chains"`
	Active        int            `json:"active"`
	Completed     int            `json:"completed"`
	Stopped       int            `json:"stopped"`
	Recoveries    int            `json:"recoveries"`
	Continuations int            `json:"continuations"`
	WinPercentage float64        `json:"win_percentage"`
	ProfitFactor  float64        `json:"profit_factor"`
	Profit        float64        `json:"profit"`
	StopReasons   map[string]int `json:"stop_reasons"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": s.operator.Status()})
}

func (s *Server) chains(w http.ResponseWriter, r *http.Request) {
	chains := s.operator.Chains()

	if status := r.URL.Query().Get("status"); status != "" {
		want := core.ChainStatusType(strings.ToUpper(status))
		chains = lo.Filter(chains, func(chain core.Chain, _ int) bool {
			return chain.Status == want
		})
	}

	if chains == nil {
		chains = []core.Chain{}
	}
	writeJSON(w, http.StatusOK, chains)
}

func (s *Server) chain(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	chain, err := s.operator.Chain(id)
	if err != nil {
		writeError(w, err)
		return
	}

	orders := s.operator.Orders(id)
	if orders == nil {
		orders = []core.ChainOrder{}
	}
	writeJSON(w, http.StatusOK, chainResponse{Chain: chain, Orders: orders})
}

func (s *Server) stopChain(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	id := mux.Vars(r)["id"]
	if err := s.operator.StopChain(ctx, id); err != nil {
		writeError(w, err)
		return
	}

	chain, err := s.operator.Chain(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chain)
}

func (s *Server) safety(w http.ResponseWriter, _ *http.Request) {
	counters, caps := s.operator.Safety()

	response := safetyResponse{Counters: counters}
	response.Caps.MaxDailyRecoveryAttempts = caps.MaxDailyRecoveryAttempts
	response.Caps.MaxDailyRecoveryLoss = caps.MaxDailyRecoveryLoss
	response.Caps.MaxChainRecoveryAttempts = caps.MaxChainRecoveryAttempts
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) report(w http.ResponseWriter, _ *http.Request) {
	summaries := report.Build(s.operator.Chains(), s.operator.Orders)

	response := lo.Map(summaries, func(summary *report.Summary, _ int) reportResponse {
		return reportResponse{
			Symbol:        summary.Symbol,
			Chains:        summary.Chains(),
			Active:        summary.Active,
			Completed:     summary.Completed,
			Stopped:       summary.Stopped,
			Recoveries:    summary.Recoveries,
			Continuations: summary.Continuations,
			WinPercentage: summary.WinPercentage(),
			ProfitFactor:  summary.ProfitFactor(),
			Profit:        summary.Profit(),
			StopReasons:   summary.StopReasons,
		}
	})
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) pause(w http.ResponseWriter, _ *http.Request) {
	s.operator.Pause()
	writeJSON(w, http.StatusOK, map[string]string{"status": s.operator.Status()})
}

func (s *Server) resume(w http.ResponseWriter, _ *http.Request) {
	s.operator.Resume()
	writeJSON(w, http.StatusOK, map[string]string{"status": s.operator.Status()})
}

// closed accepts closure events from brokers that push them, such as an MT5 bridge
func (s *Server) closed(w http.ResponseWriter, r *http.Request) {
	var event core.TradeClosed
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body: " + err.Error()})
		return
	}

	if event.Order.OrderID == "" || !event.Outcome.Closed() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "order id and a closing outcome are required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	if err := s.operator.Submit(ctx, event); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// quote feeds a market price to the paper broker
func (s *Server) quote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body: " + err.Error()})
		return
	}

	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" || req.Bid <= 0 || req.Ask < req.Bid {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "symbol and a bid <= ask are required"})
		return
	}

	if err := s.operator.SetQuote(symbol, req.Bid, req.Ask); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		next.ServeHTTP(w, r)
		s.log.WithFields(map[string]any{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(started).String(),
		}).Debug("api request")
	})
}

func (s *Server) recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Errorf("api panic on %s: %v", r.URL.Path, rec)
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrChainNotFound):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrChainClosed), errors.Is(err, core.ErrQuotesUnsupported):
		status = http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
