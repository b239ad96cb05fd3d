// Package server exposes the engine over HTTP. Mutating routes identify the
// caller through the X-Farm-Caller header; in production a gateway in front
// of the daemon authenticates callers and stamps the header.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"cosmossdk.io/math"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"FarmLedger/internal/asset"
	"FarmLedger/internal/engine"
	"FarmLedger/internal/observability"
	"FarmLedger/internal/query"
	"FarmLedger/internal/state"
)

// CallerHeader carries the authenticated caller's account id.
const CallerHeader = "X-Farm-Caller"

// Server is the daemon's HTTP front end.
type Server struct {
	httpServer *http.Server
	eng        *engine.Engine
	queries    *query.Service
	health     *observability.HealthChecker
	log        zerolog.Logger
}

func New(addr string, eng *engine.Engine, queries *query.Service, health *observability.HealthChecker, log zerolog.Logger) *Server {
	s := &Server{
		eng:     eng,
		queries: queries,
		health:  health,
		log:     log,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", health.LivenessHandler)
	r.Get("/readyz", health.ReadinessHandler)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/config", s.handleGetConfig)
		r.Get("/state", s.handleGetState)
		r.Get("/positions", s.handleListPositions)
		r.Get("/positions/{user}", s.handleGetPosition)
		r.Get("/positions/{user}/health", s.handleGetHealth)
		r.Get("/positions/{user}/snapshot", s.handleGetSnapshot)

		r.Post("/positions/{user}/update", s.handleUpdatePosition)
		r.Post("/positions/{user}/increase", s.handleIncreasePosition)
		r.Post("/positions/{user}/reduce", s.handleReducePosition)
		r.Post("/positions/{user}/pay-debt", s.handlePayDebt)
		r.Post("/harvest", s.handleHarvest)
		r.Post("/liquidate/{user}", s.handleLiquidate)
		r.Post("/config", s.handleUpdateConfig)
		r.Post("/callback", s.handleCallback)
	})

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start runs the HTTP listener until Shutdown.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ---- helpers ----

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn().Err(err).Msg("response encode failed")
	}
}

// writeError maps engine error kinds onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, query.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, engine.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, engine.ErrMissingPrecondition):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrArithmetic), errors.Is(err, engine.ErrInvariant):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrExternal):
		status = http.StatusBadGateway
	}
	s.writeJSON(w, status, errorBody{Error: err.Error(), Kind: engine.Kind(err)})
}

func (s *Server) caller(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := r.Header.Get(CallerHeader)
	if raw == "" {
		s.writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing " + CallerHeader + " header", Kind: "unauthorized"})
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		s.writeJSON(w, http.StatusUnauthorized, errorBody{Error: "malformed " + CallerHeader + " header", Kind: "unauthorized"})
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) pathUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "user"))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed user id", Kind: "invalid_argument"})
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed request body: " + err.Error(), Kind: "invalid_argument"})
		return false
	}
	return true
}

// dispatchAction hops onto the engine goroutine for a mutating call.
func (s *Server) dispatchAction(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context) (*engine.Result, error)) {
	var res *engine.Result
	var actErr error
	if err := s.eng.Dispatch(r.Context(), func(ctx context.Context) {
		res, actErr = fn(ctx)
	}); err != nil {
		s.writeError(w, err)
		return
	}
	if actErr != nil {
		s.writeError(w, actErr)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// ---- mutating routes ----

type updatePositionRequest struct {
	Actions []engine.Action `json:"actions"`
	Sent    asset.List      `json:"sent_funds,omitempty"`
}

func (s *Server) handleUpdatePosition(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	user, ok := s.pathUser(w, r)
	if !ok {
		return
	}
	if caller != user {
		s.writeJSON(w, http.StatusForbidden, errorBody{Error: "caller may only update own position", Kind: "unauthorized"})
		return
	}
	var req updatePositionRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.dispatchAction(w, r, func(ctx context.Context) (*engine.Result, error) {
		return s.eng.UpdatePosition(ctx, caller, req.Actions, req.Sent)
	})
}

type increasePositionRequest struct {
	PrimaryDeposit   math.Int        `json:"primary_deposit"`
	SecondaryDeposit math.Int        `json:"secondary_deposit"`
	Slippage         *math.LegacyDec `json:"slippage,omitempty"`
	Sent             asset.List      `json:"sent_funds,omitempty"`
}

func (s *Server) handleIncreasePosition(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	user, ok := s.pathUser(w, r)
	if !ok {
		return
	}
	if caller != user {
		s.writeJSON(w, http.StatusForbidden, errorBody{Error: "caller may only update own position", Kind: "unauthorized"})
		return
	}
	var req increasePositionRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.PrimaryDeposit.IsNil() {
		req.PrimaryDeposit = math.ZeroInt()
	}
	if req.SecondaryDeposit.IsNil() {
		req.SecondaryDeposit = math.ZeroInt()
	}
	s.dispatchAction(w, r, func(ctx context.Context) (*engine.Result, error) {
		return s.eng.IncreasePosition(ctx, caller, req.PrimaryDeposit, req.SecondaryDeposit, req.Slippage, req.Sent)
	})
}

type reducePositionRequest struct {
	Units       math.Int  `json:"units"`
	SwapAmount  *math.Int `json:"swap_amount,omitempty"`
	RepayAmount math.Int  `json:"repay_amount"`
}

func (s *Server) handleReducePosition(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	user, ok := s.pathUser(w, r)
	if !ok {
		return
	}
	if caller != user {
		s.writeJSON(w, http.StatusForbidden, errorBody{Error: "caller may only update own position", Kind: "unauthorized"})
		return
	}
	var req reducePositionRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Units.IsNil() || req.RepayAmount.IsNil() {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "units and repay_amount are required", Kind: "invalid_argument"})
		return
	}
	s.dispatchAction(w, r, func(ctx context.Context) (*engine.Result, error) {
		return s.eng.ReducePosition(ctx, caller, req.Units, req.SwapAmount, req.RepayAmount)
	})
}

type payDebtRequest struct {
	RepayAmount math.Int   `json:"repay_amount"`
	Sent        asset.List `json:"sent_funds"`
}

func (s *Server) handlePayDebt(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	user, ok := s.pathUser(w, r)
	if !ok {
		return
	}
	if caller != user {
		s.writeJSON(w, http.StatusForbidden, errorBody{Error: "caller may only update own position", Kind: "unauthorized"})
		return
	}
	var req payDebtRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.RepayAmount.IsNil() {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "repay_amount is required", Kind: "invalid_argument"})
		return
	}
	s.dispatchAction(w, r, func(ctx context.Context) (*engine.Result, error) {
		return s.eng.PayDebt(ctx, caller, req.RepayAmount, req.Sent)
	})
}

type harvestRequest struct {
	BeliefPrice *math.LegacyDec `json:"belief_price,omitempty"`
	MaxSpread   *math.LegacyDec `json:"max_spread,omitempty"`
	Slippage    *math.LegacyDec `json:"slippage,omitempty"`
}

func (s *Server) handleHarvest(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req harvestRequest
	if r.ContentLength > 0 && !s.decode(w, r, &req) {
		return
	}
	s.dispatchAction(w, r, func(ctx context.Context) (*engine.Result, error) {
		return s.eng.Harvest(ctx, caller, req.BeliefPrice, req.MaxSpread, req.Slippage)
	})
}

func (s *Server) handleLiquidate(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	user, ok := s.pathUser(w, r)
	if !ok {
		return
	}
	s.dispatchAction(w, r, func(ctx context.Context) (*engine.Result, error) {
		return s.eng.Liquidate(ctx, caller, user)
	})
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var cfg state.Config
	if !s.decode(w, r, &cfg) {
		return
	}
	s.dispatchAction(w, r, func(ctx context.Context) (*engine.Result, error) {
		return s.eng.UpdateConfig(ctx, caller, cfg)
	})
}

type callbackRequest struct {
	Kind string    `json:"kind"`
	User uuid.UUID `json:"user"`
}

// handleCallback exposes the engine's internal callback surface. External
// callers always land on ErrUnauthorized; only the engine account passes.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req callbackRequest
	if !s.decode(w, r, &req) {
		return
	}
	var op engine.SubOp
	switch req.Kind {
	case "assert_health":
		op = engine.AssertHealth(req.User)
	case "snapshot":
		op = engine.Snapshot(req.User)
	default:
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "unsupported callback kind", Kind: "invalid_argument"})
		return
	}
	s.dispatchAction(w, r, func(ctx context.Context) (*engine.Result, error) {
		return s.eng.Callback(ctx, caller, op)
	})
}

// ---- query routes ----

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.queries.Config(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	view, err := s.queries.State(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleListPositions(w http.ResponseWriter, r *http.Request) {
	views, err := s.queries.Positions(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	user, ok := s.pathUser(w, r)
	if !ok {
		return
	}
	view, err := s.queries.Position(r.Context(), user)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleGetHealth(w http.ResponseWriter, r *http.Request) {
	user, ok := s.pathUser(w, r)
	if !ok {
		return
	}
	h, err := s.queries.Health(r.Context(), user)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, h)
}

func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	user, ok := s.pathUser(w, r)
	if !ok {
		return
	}
	entry, err := s.queries.Snapshot(r.Context(), user)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entry)
}
