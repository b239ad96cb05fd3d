// Package query serves read-only views of the engine state. Every query is
// serialized through the engine's dispatch queue, so readers always see a
// committed action boundary and the store needs no locking.
package query

import (
	"context"
	"errors"
	"time"

	"cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"FarmLedger/internal/asset"
	"FarmLedger/internal/engine"
	"FarmLedger/internal/health"
	"FarmLedger/internal/observability"
	"FarmLedger/internal/state"
)

// ErrNotFound reports a missing position or snapshot.
var ErrNotFound = errors.New("not found")

// StateView is the engine-wide aggregate view.
type StateView struct {
	Sequence       int64      `json:"sequence"`
	TotalBondUnits math.Int   `json:"total_bond_units"`
	TotalDebtUnits math.Int   `json:"total_debt_units"`
	PendingRewards asset.List `json:"pending_rewards"`
}

// PositionView is one user's stored position.
type PositionView struct {
	User      uuid.UUID  `json:"user"`
	BondUnits math.Int   `json:"bond_units"`
	DebtUnits math.Int   `json:"debt_units"`
	Unlocked  asset.List `json:"unlocked_assets"`
}

// Service answers queries by hopping onto the engine goroutine.
type Service struct {
	eng     *engine.Engine
	metrics *observability.Metrics
	log     zerolog.Logger
}

func NewService(eng *engine.Engine, metrics *observability.Metrics, log zerolog.Logger) *Service {
	return &Service{eng: eng, metrics: metrics, log: log}
}

func (s *Service) observe(endpoint string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
		s.metrics.QueryErrors.WithLabelValues(endpoint, "internal").Inc()
	}
	s.metrics.QueryRequests.WithLabelValues(endpoint, status).Inc()
	s.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

// Config returns the current governance configuration.
func (s *Service) Config(ctx context.Context) (state.Config, error) {
	start := time.Now()
	var cfg state.Config
	err := s.eng.Dispatch(ctx, func(context.Context) {
		cfg = s.eng.Store().Config()
	})
	s.observe("config", start, err)
	return cfg, err
}

// State returns the aggregate units and pending rewards.
func (s *Service) State(ctx context.Context) (StateView, error) {
	start := time.Now()
	var view StateView
	err := s.eng.Dispatch(ctx, func(context.Context) {
		st := s.eng.Store().State()
		view = StateView{
			Sequence:       s.eng.Sequence(),
			TotalBondUnits: st.TotalBondUnits,
			TotalDebtUnits: st.TotalDebtUnits,
			PendingRewards: st.PendingRewards.Clone(),
		}
	})
	s.observe("state", start, err)
	return view, err
}

// Position returns one stored position.
func (s *Service) Position(ctx context.Context, user uuid.UUID) (PositionView, error) {
	start := time.Now()
	var view PositionView
	var qErr error
	err := s.eng.Dispatch(ctx, func(context.Context) {
		p, ok := s.eng.Store().Position(user)
		if !ok {
			qErr = ErrNotFound
			return
		}
		view = PositionView{
			User:      user,
			BondUnits: p.BondUnits,
			DebtUnits: p.DebtUnits,
			Unlocked:  p.Unlocked.Clone(),
		}
	})
	if err == nil {
		err = qErr
	}
	s.observe("position", start, err)
	return view, err
}

// Positions lists every stored position in deterministic order.
func (s *Service) Positions(ctx context.Context) ([]PositionView, error) {
	start := time.Now()
	var out []PositionView
	err := s.eng.Dispatch(ctx, func(context.Context) {
		store := s.eng.Store()
		for _, user := range store.Users() {
			p, ok := store.Position(user)
			if !ok {
				continue
			}
			out = append(out, PositionView{
				User:      user,
				BondUnits: p.BondUnits,
				DebtUnits: p.DebtUnits,
				Unlocked:  p.Unlocked.Clone(),
			})
		}
	})
	s.observe("positions", start, err)
	return out, err
}

// Health values one position against live collaborator state. Users without
// a stored position get the zero valuation rather than an error, matching
// the engine's own health assertion.
func (s *Service) Health(ctx context.Context, user uuid.UUID) (health.Health, error) {
	start := time.Now()
	var h health.Health
	var qErr error
	err := s.eng.Dispatch(ctx, func(c context.Context) {
		h, qErr = s.eng.PositionHealth(c, user)
	})
	if err == nil {
		err = qErr
	}
	s.observe("health", start, err)
	return h, err
}

// Snapshot returns the user's latest stored snapshot.
func (s *Service) Snapshot(ctx context.Context, user uuid.UUID) (state.SnapshotEntry, error) {
	start := time.Now()
	var entry state.SnapshotEntry
	var qErr error
	err := s.eng.Dispatch(ctx, func(context.Context) {
		e, ok := s.eng.Store().Snapshot(user)
		if !ok {
			qErr = ErrNotFound
			return
		}
		entry = *e
	})
	if err == nil {
		err = qErr
	}
	s.observe("snapshot", start, err)
	return entry, err
}
