package state

import (
	"fmt"
	"sort"

	"cosmossdk.io/math"
	"github.com/google/uuid"

	"FarmLedger/internal/asset"
	"FarmLedger/internal/health"
)

// SnapshotEntry is the per-user record written by the Snapshot
// sub-operation, keyed by user and stamped with the action sequence.
type SnapshotEntry struct {
	Sequence int64         `json:"sequence"`
	Position Position      `json:"position"`
	Health   health.Health `json:"health"`
}

// Store holds the engine's persistent data: the singleton config and
// aggregates, the position and snapshot maps, and the transient-user slot
// bridging an observed sub-operation to its reply. Only the engine
// goroutine touches a Store; there is no internal locking.
type Store struct {
	config    Config
	state     *State
	positions map[uuid.UUID]*Position
	snapshots map[uuid.UUID]*SnapshotEntry
	transient *uuid.UUID
}

func NewStore(cfg Config) *Store {
	return &Store{
		config:    cfg,
		state:     NewState(),
		positions: make(map[uuid.UUID]*Position),
		snapshots: make(map[uuid.UUID]*SnapshotEntry),
	}
}

func (s *Store) Config() Config {
	return s.config
}

func (s *Store) SetConfig(cfg Config) {
	s.config = cfg.clone()
}

func (s *Store) State() *State {
	return s.state
}

// Position returns the stored position without creating one.
func (s *Store) Position(user uuid.UUID) (*Position, bool) {
	p, ok := s.positions[user]
	return p, ok
}

// GetOrCreatePosition creates the position lazily on first use.
func (s *Store) GetOrCreatePosition(user uuid.UUID) *Position {
	if p, ok := s.positions[user]; ok {
		return p
	}
	p := NewPosition()
	s.positions[user] = p
	return p
}

// PurgeIfEmpty deletes a position whose units and unlocked amounts are all
// zero. The reward scratch position is never stored empty either.
func (s *Store) PurgeIfEmpty(user uuid.UUID) {
	if p, ok := s.positions[user]; ok && p.IsEmpty() {
		delete(s.positions, user)
	}
}

// Users returns all position holders in deterministic order.
func (s *Store) Users() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(s.positions))
	for u := range s.positions {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].String() < out[j].String()
	})
	return out
}

// UnlockedOf returns the unlocked-asset ledger an operation should work
// against: the position's ledger for a user, the pending-rewards list for
// the reward account.
func (s *Store) UnlockedOf(owner uuid.UUID) *asset.List {
	if owner == RewardAccount {
		return &s.state.PendingRewards
	}
	return &s.GetOrCreatePosition(owner).Unlocked
}

// SetTransientUser records the owner of the in-flight observed
// sub-operation.
func (s *Store) SetTransientUser(owner uuid.UUID) {
	u := owner
	s.transient = &u
}

// TakeTransientUser reads and clears the slot.
func (s *Store) TakeTransientUser() (uuid.UUID, bool) {
	if s.transient == nil {
		return uuid.Nil, false
	}
	u := *s.transient
	s.transient = nil
	return u, true
}

// TransientEmpty reports whether no observed sub-operation is in flight.
func (s *Store) TransientEmpty() bool {
	return s.transient == nil
}

// WriteSnapshot stores the user's snapshot, replacing any prior one.
func (s *Store) WriteSnapshot(user uuid.UUID, entry SnapshotEntry) {
	s.snapshots[user] = &entry
}

// Snapshot returns the user's latest snapshot.
func (s *Store) Snapshot(user uuid.UUID) (*SnapshotEntry, bool) {
	e, ok := s.snapshots[user]
	return e, ok
}

// Checkpoint is a deep copy of everything an action may mutate. Restoring
// it discards all effects of a failed action.
type Checkpoint struct {
	config    Config
	state     *State
	positions map[uuid.UUID]*Position
	snapshots map[uuid.UUID]*SnapshotEntry
	transient *uuid.UUID
}

func (s *Store) Checkpoint() *Checkpoint {
	positions := make(map[uuid.UUID]*Position, len(s.positions))
	for u, p := range s.positions {
		positions[u] = p.clone()
	}
	snapshots := make(map[uuid.UUID]*SnapshotEntry, len(s.snapshots))
	for u, e := range s.snapshots {
		copied := *e
		copied.Position = *e.Position.clone()
		snapshots[u] = &copied
	}
	var transient *uuid.UUID
	if s.transient != nil {
		u := *s.transient
		transient = &u
	}
	return &Checkpoint{
		config:    s.config.clone(),
		state:     s.state.clone(),
		positions: positions,
		snapshots: snapshots,
		transient: transient,
	}
}

func (s *Store) Restore(cp *Checkpoint) {
	s.config = cp.config
	s.state = cp.state
	s.positions = cp.positions
	s.snapshots = cp.snapshots
	s.transient = cp.transient
}

// Exported is the serializable form of a Store, written to the state
// archive on shutdown and loaded on warm restart.
type Exported struct {
	Config    Config                     `json:"config"`
	State     *State                     `json:"state"`
	Positions map[uuid.UUID]*Position    `json:"positions"`
	Snapshots map[uuid.UUID]*SnapshotEntry `json:"snapshots"`
}

// Export deep-copies the store into its serializable form.
func (s *Store) Export() Exported {
	cp := s.Checkpoint()
	return Exported{
		Config:    cp.config,
		State:     cp.state,
		Positions: cp.positions,
		Snapshots: cp.snapshots,
	}
}

// Import rebuilds a store from its exported form.
func Import(e Exported) *Store {
	st := e.State
	if st == nil {
		st = NewState()
	}
	positions := e.Positions
	if positions == nil {
		positions = make(map[uuid.UUID]*Position)
	}
	snapshots := e.Snapshots
	if snapshots == nil {
		snapshots = make(map[uuid.UUID]*SnapshotEntry)
	}
	return &Store{
		config:    e.Config,
		state:     st,
		positions: positions,
		snapshots: snapshots,
	}
}

// ValidateUnitConservation checks that per-user units sum exactly to the
// stored totals. A violation is a fatal engine defect, not a user error.
func (s *Store) ValidateUnitConservation() error {
	bond := math.ZeroInt()
	debt := math.ZeroInt()
	for _, p := range s.positions {
		bond = bond.Add(p.BondUnits)
		debt = debt.Add(p.DebtUnits)
	}
	if !bond.Equal(s.state.TotalBondUnits) {
		return fmt.Errorf("bond units: positions sum %s != total %s", bond, s.state.TotalBondUnits)
	}
	if !debt.Equal(s.state.TotalDebtUnits) {
		return fmt.Errorf("debt units: positions sum %s != total %s", debt, s.state.TotalDebtUnits)
	}
	return nil
}
