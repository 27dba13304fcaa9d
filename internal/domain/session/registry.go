package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rpggio/deskset/internal/repository"
)

// Store keys.
const (
	KeyUnits   = "sessions"
	KeyCurrent = "current_session"
)

// currentCell holds the live current session id. Guards keep a reference to it
// and re-read it on every call.
type currentCell struct {
	v atomic.Value
}

func (c *currentCell) load() string {
	id, _ := c.v.Load().(string)
	return id
}

func (c *currentCell) store(id string) {
	c.v.Store(id)
}

// Registry owns every session unit and the single current pointer.
// Each method runs as one atomic step; updater callbacks run while the
// registry is held and must not call back into it.
type Registry struct {
	mu      sync.Mutex
	units   map[string]*Unit
	deleted map[string]struct{}
	current *currentCell
	locked  atomic.Bool

	store    Store
	observer Observer
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithObserver reports operation outcomes to o.
func WithObserver(o Observer) Option {
	return func(r *Registry) {
		if o != nil {
			r.observer = o
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRegistry creates an empty registry backed by store.
func NewRegistry(store Store, logger *slog.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	r := &Registry{
		units:    make(map[string]*Unit),
		deleted:  make(map[string]struct{}),
		current:  &currentCell{},
		store:    store,
		observer: nopObserver{},
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	r.current.store("")
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load replaces in-memory state with what the store holds. A stored current id
// that no longer names a unit is dropped.
func (r *Registry) Load(ctx context.Context) error {
	units := make(map[string]*Unit)
	data, err := r.store.Get(ctx, KeyUnits)
	switch {
	case errors.Is(err, repository.ErrNotFound):
	case err != nil:
		return fmt.Errorf("loading sessions: %w", err)
	default:
		if err := json.Unmarshal(data, &units); err != nil {
			return fmt.Errorf("decoding sessions: %w", err)
		}
	}

	currentID := ""
	data, err = r.store.Get(ctx, KeyCurrent)
	switch {
	case errors.Is(err, repository.ErrNotFound):
	case err != nil:
		return fmt.Errorf("loading current session: %w", err)
	default:
		currentID = string(data)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.units = r.cleanLocked(units)
	if _, ok := r.units[currentID]; !ok && currentID != "" {
		r.logger.Warn("dropping dangling current session", "session_id", currentID)
		currentID = ""
		r.persistCurrentLocked(ctx, currentID)
	}
	r.current.store(currentID)
	return nil
}

// CreateUnit registers a new unit. An existing id is returned unchanged. An
// empty id is replaced by a generated one. Deleted ids are never reused.
func (r *Registry) CreateUnit(ctx context.Context, id, boundPrompt, title string) *Unit {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id == "" {
		id = uuid.NewString()
	}
	if existing, ok := r.units[id]; ok {
		r.logger.Info("session already exists", "session_id", id)
		return existing.Clone()
	}
	if _, gone := r.deleted[id]; gone {
		r.reject("create", id, ErrIDReused, OutcomeIDReused)
		return nil
	}

	unit := newUnit(id, boundPrompt, title, r.now())
	r.units[id] = unit
	r.persistUnitsLocked(ctx)
	r.observer.Observe("create", OutcomeApplied)
	r.logger.Debug("session created", "session_id", id)
	return unit.Clone()
}

// SwitchSession makes targetID current. It returns nil when the switch lock is
// held or the target is unknown.
func (r *Registry) SwitchSession(ctx context.Context, targetID string) *Unit {
	if !r.locked.CompareAndSwap(false, true) {
		r.reject("switch", targetID, ErrSwitchBlocked, OutcomeSwitchBlocked)
		return nil
	}
	defer r.locked.Store(false)

	r.mu.Lock()
	defer r.mu.Unlock()

	unit, ok := r.units[targetID]
	if !ok {
		r.reject("switch", targetID, ErrUnknownSession, OutcomeUnknownSession)
		return nil
	}
	previous := r.current.load()
	r.current.store(targetID)
	r.persistCurrentLocked(ctx, targetID)
	r.observer.Observe("switch", OutcomeApplied)
	r.logger.Debug("session switched", "from", previous, "to", targetID)
	return unit.Clone()
}

// UpdateChat applies fn to the chat of id only if id is current.
func (r *Registry) UpdateChat(ctx context.Context, id string, fn ChatUpdater) bool {
	if fn == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	unit, ok := r.ownedLocked("update_chat", id)
	if !ok {
		return false
	}
	fn(unit.Chat.Clone()).apply(&unit.Chat)
	r.touchLocked(unit)
	r.persistUnitsLocked(ctx)
	r.observer.Observe("update_chat", OutcomeApplied)
	return true
}

// UpdateWorkspace applies fn to the workspace of id only if id is current.
func (r *Registry) UpdateWorkspace(ctx context.Context, id string, fn WorkspaceUpdater) bool {
	if fn == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	unit, ok := r.ownedLocked("update_workspace", id)
	if !ok {
		return false
	}
	fn(unit.Workspace.Clone()).apply(&unit.Workspace)
	r.touchLocked(unit)
	r.persistUnitsLocked(ctx)
	r.observer.Observe("update_workspace", OutcomeApplied)
	return true
}

// BackgroundUpdate applies fn to id regardless of which session is current.
// It is the ingress for job deliveries and returns false only for an unknown id.
func (r *Registry) BackgroundUpdate(ctx context.Context, id string, fn UnitUpdater) bool {
	if fn == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	unit, ok := r.units[id]
	if !ok {
		r.reject("background_update", id, ErrUnknownSession, OutcomeUnknownSession)
		return false
	}
	working := unit.Clone()
	fn(working)
	working.ID = unit.ID
	working.CreatedAt = unit.CreatedAt
	working.BoundPrompt = unit.BoundPrompt
	working.Meta.LastModified = unit.Meta.LastModified
	r.units[id] = working
	r.touchLocked(working)
	r.persistUnitsLocked(ctx)
	r.observer.Observe("background_update", OutcomeApplied)
	return true
}

// UpdateMeta writes title and loading flags regardless of which session is current.
func (r *Registry) UpdateMeta(ctx context.Context, id string, patch MetaPatch) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	unit, ok := r.units[id]
	if !ok {
		r.reject("update_meta", id, ErrUnknownSession, OutcomeUnknownSession)
		return false
	}
	patch.apply(&unit.Meta)
	r.touchLocked(unit)
	r.persistUnitsLocked(ctx)
	r.observer.Observe("update_meta", OutcomeApplied)
	return true
}

// BindPrompt sets the bound prompt once. Later calls return the existing binding.
func (r *Registry) BindPrompt(ctx context.Context, id, prompt string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	unit, ok := r.units[id]
	if !ok {
		r.reject("bind_prompt", id, ErrUnknownSession, OutcomeUnknownSession)
		return "", false
	}
	if unit.BoundPrompt != "" || prompt == "" {
		return unit.BoundPrompt, true
	}
	unit.BoundPrompt = prompt
	r.touchLocked(unit)
	r.persistUnitsLocked(ctx)
	return prompt, true
}

// DeleteUnit removes id and clears the current pointer if it was current.
func (r *Registry) DeleteUnit(ctx context.Context, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.units[id]; !ok {
		r.reject("delete", id, ErrUnknownSession, OutcomeUnknownSession)
		return false
	}
	delete(r.units, id)
	r.deleted[id] = struct{}{}
	if r.current.load() == id {
		r.current.store("")
		r.persistCurrentLocked(ctx, "")
	}
	r.persistUnitsLocked(ctx)
	r.observer.Observe("delete", OutcomeApplied)
	r.logger.Debug("session deleted", "session_id", id)
	return true
}

// Lock takes the advisory switch lock. While held, SwitchSession returns nil.
// Updates are never blocked by it.
func (r *Registry) Lock() bool {
	return r.locked.CompareAndSwap(false, true)
}

// Unlock releases the advisory switch lock.
func (r *Registry) Unlock() {
	r.locked.Store(false)
}

// Guard issues an ownership guard bound to id.
func (r *Registry) Guard(id string) *Guard {
	return &Guard{sessionID: id, current: r.current}
}

// Current returns the current session id, or "" when none is current.
func (r *Registry) Current() string {
	return r.current.load()
}

// Get returns a copy of the unit.
func (r *Registry) Get(id string) (*Unit, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	unit, ok := r.units[id]
	if !ok {
		return nil, false
	}
	return unit.Clone(), true
}

// List returns summaries ordered by most recently modified.
func (r *Registry) List() []Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	currentID := r.current.load()
	out := make([]Summary, 0, len(r.units))
	for _, unit := range r.units {
		out = append(out, Summary{
			ID:           unit.ID,
			Title:        unit.Meta.Title,
			Loading:      unit.Meta.Loading,
			Streaming:    unit.Chat.HasStreaming(),
			Current:      unit.ID == currentID,
			MessageCount: len(unit.Chat.Messages),
			LastModified: unit.Meta.LastModified,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastModified.Equal(out[j].LastModified) {
			return out[i].ID < out[j].ID
		}
		return out[i].LastModified.After(out[j].LastModified)
	})
	return out
}

type snapshot struct {
	Units   map[string]*Unit `json:"units"`
	Current string           `json:"current,omitempty"`
}

// Snapshot serializes all units and the current id.
func (r *Registry) Snapshot() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := json.Marshal(snapshot{Units: r.units, Current: r.current.load()})
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return data, nil
}

// Restore replaces in-memory state with a snapshot and persists it. Ids
// deleted earlier in this process stay deleted.
func (r *Registry) Restore(ctx context.Context, data []byte) error {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decoding snapshot: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.units = r.cleanLocked(snap.Units)
	if _, ok := r.units[snap.Current]; !ok {
		snap.Current = ""
	}
	r.current.store(snap.Current)
	r.persistUnitsLocked(ctx)
	r.persistCurrentLocked(ctx, snap.Current)
	return nil
}

// cleanLocked drops entries that cannot back a session: nil units, units
// stored under a key other than their id, and deleted ids.
func (r *Registry) cleanLocked(units map[string]*Unit) map[string]*Unit {
	out := make(map[string]*Unit, len(units))
	for id, unit := range units {
		switch {
		case unit == nil:
			r.logger.Warn("dropping empty session entry", "session_id", id)
		case unit.ID != id:
			r.logger.Warn("dropping mismatched session entry", "session_id", id, "unit_id", unit.ID)
		default:
			if _, gone := r.deleted[id]; gone {
				r.logger.Warn("dropping deleted session", "session_id", id, "reason", ErrIDReused)
				continue
			}
			out[id] = unit
		}
	}
	return out
}

func (r *Registry) ownedLocked(op, id string) (*Unit, bool) {
	unit, ok := r.units[id]
	if !ok {
		r.reject(op, id, ErrUnknownSession, OutcomeUnknownSession)
		return nil, false
	}
	if r.current.load() != id {
		r.reject(op, id, ErrOwnershipViolation, OutcomeOwnershipViolation)
		return nil, false
	}
	return unit, true
}

// touchLocked bumps LastModified without ever moving it backwards.
func (r *Registry) touchLocked(unit *Unit) {
	if now := r.now(); now.After(unit.Meta.LastModified) {
		unit.Meta.LastModified = now
	}
}

func (r *Registry) reject(op, id string, reason error, outcome Outcome) {
	r.observer.Observe(op, outcome)
	r.logger.Warn("session operation dropped",
		"op", op,
		"session_id", id,
		"current_id", r.current.load(),
		"reason", reason,
	)
}

func (r *Registry) persistUnitsLocked(ctx context.Context) {
	data, err := json.Marshal(r.units)
	if err != nil {
		r.logger.Error("failed to encode sessions", "error", err)
		return
	}
	if err := r.store.Set(ctx, KeyUnits, data); err != nil {
		r.logger.Error("failed to persist sessions", "error", err)
	}
}

func (r *Registry) persistCurrentLocked(ctx context.Context, id string) {
	var err error
	if id == "" {
		err = r.store.Remove(ctx, KeyCurrent)
	} else {
		err = r.store.Set(ctx, KeyCurrent, []byte(id))
	}
	if err != nil {
		r.logger.Error("failed to persist current session", "error", err)
	}
}
