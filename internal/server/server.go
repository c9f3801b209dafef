// Package server exposes the client's state and user actions on a local
// HTTP API, with a websocket feed of state snapshots.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/yourorg/predictpool-client/internal/config"
	"github.com/yourorg/predictpool-client/internal/health"
	"github.com/yourorg/predictpool-client/internal/model"
	"github.com/yourorg/predictpool-client/internal/predictions"
	"github.com/yourorg/predictpool-client/internal/ui"
	"github.com/yourorg/predictpool-client/internal/validation"
	"github.com/yourorg/predictpool-client/internal/wallet"
)

// Predictor submits predictions.
type Predictor interface {
	Submit(ctx context.Context, direction model.Direction, roundID int64) predictions.Result
}

// Staker moves funds in and out of the staking contract. Amounts are the
// user's decimal input.
type Staker interface {
	Stake(ctx context.Context, amount string) (wallet.TxResult, error)
	Withdraw(ctx context.Context, amount string) (wallet.TxResult, error)
}

// Deps are the components the server reads from and acts on.
type Deps struct {
	State     func() ui.State
	Predictor Predictor
	Staker    Staker
	Trackers  []*health.Tracker
	Gatherer  prometheus.Gatherer
	Hub       *Hub
}

// Server is the local HTTP API.
type Server struct {
	cfg     config.ServerConfig
	deps    Deps
	limiter *rate.Limiter
	started time.Time
	log     *logrus.Entry
}

// New creates a Server.
func New(cfg config.ServerConfig, deps Deps) *Server {
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		cfg:     cfg,
		deps:    deps,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst),
		started: time.Now(),
		log:     logrus.WithField("component", "server"),
	}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("POST /api/predictions", s.handlePredict)
	mux.HandleFunc("POST /api/stake", s.handleStake)
	mux.HandleFunc("POST /api/withdraw", s.handleWithdraw)
	if s.deps.Hub != nil {
		mux.Handle("GET /ws", s.deps.Hub)
	}
	return s.withRequestID(s.withRateLimit(mux))
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:     s.Handler(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("Local API listening on %s", ln.Addr())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("local API stopped: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("local API shutdown failed: %w", err)
	}
	s.log.Info("Local API stopped")
	return ctx.Err()
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type healthResponse struct {
	Status    string          `json:"status"`
	Uptime    string          `json:"uptime"`
	Timestamp string          `json:"timestamp"`
	Loops     []health.Status `json:"loops"`
}

// handleHealth reports "ok" unless a loop is stale. Degraded loops still
// serve their last good data.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "ok",
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Loops:     make([]health.Status, 0, len(s.deps.Trackers)),
	}
	code := http.StatusOK
	for _, t := range s.deps.Trackers {
		st := t.Status()
		resp.Loops = append(resp.Loops, st)
		if t.State() == health.StateStale {
			resp.Status = "stale"
			code = http.StatusServiceUnavailable
		} else if t.State() == health.StateDegraded && resp.Status == "ok" {
			resp.Status = "degraded"
		}
	}
	writeJSON(w, code, resp)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.State())
}

type predictRequest struct {
	Direction string `json:"direction"`
	// RoundID defaults to the round currently accepting predictions
	RoundID int64 `json:"round_id"`
}

var outcomeStatus = map[predictions.Outcome]int{
	predictions.OutcomeSuccess:           http.StatusOK,
	predictions.OutcomeIneligible:        http.StatusForbidden,
	predictions.OutcomeAlreadyPredicted:  http.StatusConflict,
	predictions.OutcomeNoWallet:          http.StatusPreconditionFailed,
	predictions.OutcomeRoundNotActive:    http.StatusConflict,
	predictions.OutcomeSignatureRejected: http.StatusUnauthorized,
	predictions.OutcomeTransientFailure:  http.StatusBadGateway,
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	dir, err := model.ParseDirection(req.Direction)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	roundID, ok := predictableRound(s.deps.State(), req.RoundID)
	if !ok {
		writeError(w, http.StatusConflict, model.ErrRoundNotActive.Error())
		return
	}

	res := s.deps.Predictor.Submit(r.Context(), dir, roundID)
	code, ok := outcomeStatus[res.Outcome]
	if !ok {
		code = http.StatusInternalServerError
	}
	writeJSON(w, code, res)
}

// predictableRound resolves the round a prediction targets. Without an
// explicit id it is the relevant round. Either way the round must be active.
func predictableRound(st ui.State, roundID int64) (int64, bool) {
	if roundID == 0 {
		if st.Relevant == nil || !st.Relevant.CanPredict() {
			return 0, false
		}
		return st.Relevant.ID, true
	}
	for _, r := range st.Rounds {
		if r.ID == roundID {
			return roundID, r.CanPredict()
		}
	}
	return 0, false
}

type amountRequest struct {
	Amount string `json:"amount"`
}

func (s *Server) handleStake(w http.ResponseWriter, r *http.Request) {
	s.handleTx(w, r, "stake", s.deps.Staker.Stake)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	s.handleTx(w, r, "withdraw", s.deps.Staker.Withdraw)
}

func (s *Server) handleTx(w http.ResponseWriter, r *http.Request, action string, fn func(context.Context, string) (wallet.TxResult, error)) {
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := fn(r.Context(), req.Amount)
	if err != nil {
		code := txErrorStatus(err)
		if code >= http.StatusInternalServerError {
			s.log.WithError(err).WithField("action", action).Error("Staking transaction failed")
		}
		writeError(w, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func txErrorStatus(err error) int {
	switch {
	case errors.Is(err, validation.ErrAmountFormat),
		errors.Is(err, validation.ErrAmountZero),
		errors.Is(err, validation.ErrAmountTooLarge):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNoWallet):
		return http.StatusPreconditionFailed
	case errors.Is(err, wallet.ErrStakingDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Debug("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
