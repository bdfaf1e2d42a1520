// Package session binds live connections to player identities and is
// the single source of truth for who is online on which connection.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fernwake/go-grove/internal/broadcast"
	"github.com/fernwake/go-grove/internal/events"
	"github.com/fernwake/go-grove/internal/game"
	"github.com/fernwake/go-grove/internal/persist"
	"github.com/fernwake/go-grove/internal/timers"
)

const (
	DefaultMoveThreshold    = 0.1 // world units, compared squared
	DefaultMoveMinInterval  = 250 * time.Millisecond
	DefaultHeartbeatTimeout = 30 * time.Second
)

// Verifier resolves a credential token to a stable identity. Failures
// are non-fatal: the connection proceeds as a guest.
type Verifier interface {
	Verify(ctx context.Context, token string) (identity, name string, err error)
}

// binding is the live association between one connection and one
// player identity.
type binding struct {
	connID   string
	identity string
	player   *game.Player
	closer   func(reason string)
	lastSeen time.Time

	lastSentPos game.Position
	lastSentAt  time.Time
}

// Registry owns the live player map. At most one connection is bound
// per identity at any instant; binding a second connection evicts the
// first before the new binding is installed.
type Registry struct {
	mu     sync.RWMutex
	bindMu sync.Mutex // serializes Bind calls end to end

	conns      map[string]*binding // connID -> binding
	byIdentity map[string]string   // identity -> connID

	gw       persist.Gateway
	ch       broadcast.Channel
	sched    *timers.Scheduler
	verifier Verifier

	spawn           game.Position
	moveThresholdSq float64
	moveMinInterval time.Duration
}

type RegistryOpt func(*Registry)

func WithSpawn(pos game.Position) RegistryOpt {
	return func(r *Registry) {
		r.spawn = pos
	}
}

func WithMoveThreshold(units float64) RegistryOpt {
	return func(r *Registry) {
		r.moveThresholdSq = units * units
	}
}

func WithMoveMinInterval(d time.Duration) RegistryOpt {
	return func(r *Registry) {
		r.moveMinInterval = d
	}
}

func NewRegistry(gw persist.Gateway, ch broadcast.Channel, sched *timers.Scheduler, verifier Verifier, opts ...RegistryOpt) *Registry {
	r := &Registry{
		conns:           make(map[string]*binding),
		byIdentity:      make(map[string]string),
		gw:              gw,
		ch:              ch,
		sched:           sched,
		verifier:        verifier,
		moveThresholdSq: DefaultMoveThreshold * DefaultMoveThreshold,
		moveMinInterval: DefaultMoveMinInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Authenticate resolves a token to an identity. A missing or invalid
// token yields a fresh guest identity rather than a rejection; the game
// stays playable when the identity store is unreachable.
func (r *Registry) Authenticate(ctx context.Context, token string) (identity, name string, guest bool) {
	if token != "" && r.verifier != nil {
		id, n, err := r.verifier.Verify(ctx, token)
		if err == nil {
			if n == "" {
				n = id
			}
			return id, n, false
		}
		slog.WarnContext(ctx, "token verification failed, continuing as guest", "error", err)
	}

	suffix := strings.Split(uuid.New().String(), "-")[0]
	return "guest-" + suffix, "Guest-" + suffix, true
}

// Bind hydrates a player for the identity and installs the connection
// as its single live binding. A previous binding for the same identity
// is notified, closed, and removed before the new one is installed.
func (r *Registry) Bind(ctx context.Context, connID, identity, name string, guest bool, closer func(reason string)) *game.Player {
	r.bindMu.Lock()
	defer r.bindMu.Unlock()

	r.evict(ctx, identity)

	player := r.hydrate(ctx, identity, name, guest)

	b := &binding{
		connID:   connID,
		identity: identity,
		player:   player,
		closer:   closer,
		lastSeen: time.Now(),
	}
	r.mu.Lock()
	r.conns[connID] = b
	r.byIdentity[identity] = connID
	r.mu.Unlock()

	if err := r.ch.ToAllExcept(connID, events.PlayerJoined, r.playerInfo(player)); err != nil {
		slog.WarnContext(ctx, "broadcasting join", "identity", identity, "error", err)
	}

	return player
}

// evict removes an existing binding for identity ahead of a new one.
// The old connection is told why and closed; its entry is gone from the
// registry before the caller installs the replacement, so two
// authoritative copies of one player can never coexist.
func (r *Registry) evict(ctx context.Context, identity string) {
	r.mu.Lock()
	oldConn, ok := r.byIdentity[identity]
	var old *binding
	if ok {
		old = r.conns[oldConn]
		delete(r.conns, oldConn)
		delete(r.byIdentity, identity)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	slog.InfoContext(ctx, "evicting duplicate session", "identity", identity, "conn", oldConn)

	if err := r.ch.ToConn(oldConn, events.ForceDisconnect, events.Disconnect{Reason: "logged in elsewhere"}); err != nil {
		slog.WarnContext(ctx, "notifying evicted connection", "conn", oldConn, "error", err)
	}
	r.sched.CancelOwner(oldConn)
	if old != nil {
		r.flush(old.player)
		if old.closer != nil {
			old.closer("logged in elsewhere")
		}
	}
}

// hydrate loads the player's durable state, falling back to an
// in-memory default rather than refusing the connection.
func (r *Registry) hydrate(ctx context.Context, identity, name string, guest bool) *game.Player {
	player := game.NewPlayer(identity, name, r.spawn)
	player.Guest = guest

	if guest {
		return player
	}

	rec, err := r.gw.LoadPlayer(ctx, identity)
	switch {
	case err != nil:
		slog.ErrorContext(ctx, "loading player, using defaults", "identity", identity, "error", err)
	case rec == nil:
		// First login: best-effort create so the record exists next time.
		go func() {
			createErr := r.gw.CreatePlayer(context.Background(), &persist.PlayerRecord{
				Identity:  identity,
				Name:      name,
				Position:  r.spawn,
				Inventory: []game.InventoryItem{},
				Skills:    map[string]game.Skill{},
			})
			if createErr != nil {
				slog.Error("creating player record", "identity", identity, "error", createErr)
			}
		}()
	default:
		if rec.Name != "" {
			player.Name = rec.Name
		}
		player.SetPosition(rec.Position, 0)
		player.RestoreInventory(rec.Inventory)
		player.RestoreSkills(rec.Skills)
	}
	return player
}

// Unbind tears a connection down: cancels its timers, flushes the
// player, removes the binding, and broadcasts the leave. Both the
// transport-disconnect path and the heartbeat sweep route through here;
// the second arrival finds nothing and returns.
func (r *Registry) Unbind(ctx context.Context, connID string) {
	r.mu.Lock()
	b, ok := r.conns[connID]
	if ok {
		delete(r.conns, connID)
		// Remove the player only if this connection still owns the
		// identity; a newer binding may have replaced it already.
		if r.byIdentity[b.identity] == connID {
			delete(r.byIdentity, b.identity)
		} else {
			b = nil
		}
	}
	r.mu.Unlock()

	r.sched.CancelOwner(connID)
	if !ok || b == nil {
		return
	}

	r.flush(b.player)

	if err := r.ch.ToAllExcept(connID, events.PlayerLeft, events.PlayerRef{Id: b.identity}); err != nil {
		slog.WarnContext(ctx, "broadcasting leave", "identity", b.identity, "error", err)
	}
	slog.InfoContext(ctx, "player left", "identity", b.identity, "conn", connID)
}

// flush writes the player's last known state, fire-and-forget.
// Failures are logged, never retried synchronously; guests persist
// nothing.
func (r *Registry) flush(p *game.Player) {
	if p == nil || p.Guest {
		return
	}
	identity := p.Identity
	pos := p.Position()
	inv := p.InventorySnapshot()
	skills := p.SkillsSnapshot()
	go func() {
		ctx := context.Background()
		if err := r.gw.SavePlayerPosition(ctx, identity, pos); err != nil {
			slog.Error("flushing position", "identity", identity, "error", err)
		}
		if err := r.gw.SavePlayerInventory(ctx, identity, inv); err != nil {
			slog.Error("flushing inventory", "identity", identity, "error", err)
		}
		if err := r.gw.SavePlayerSkills(ctx, identity, skills); err != nil {
			slog.Error("flushing skills", "identity", identity, "error", err)
		}
	}()
}

// Touch records heartbeat liveness for a connection.
func (r *Registry) Touch(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.conns[connID]; ok {
		b.lastSeen = time.Now()
		b.player.MarkActive()
	}
}

// PlayerByConn returns the player bound to a connection, or nil.
func (r *Registry) PlayerByConn(connID string) *game.Player {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if b, ok := r.conns[connID]; ok {
		return b.player
	}
	return nil
}

// ConnByIdentity returns the connection currently bound to an identity.
func (r *Registry) ConnByIdentity(identity string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	connID, ok := r.byIdentity[identity]
	return connID, ok
}

// Count returns the number of live bindings.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *Registry) broadcastCount() error {
	return r.ch.ToAll(events.PlayerCount, r.Count())
}

// Roster returns the current players for snapshot delivery.
func (r *Registry) Roster() []events.PlayerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]events.PlayerInfo, 0, len(r.conns))
	for _, b := range r.conns {
		out = append(out, r.playerInfo(b.player))
	}
	return out
}

// staleConns returns connections whose last heartbeat predates cutoff.
func (r *Registry) staleConns(cutoff time.Time) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var stale []string
	for id, b := range r.conns {
		if b.lastSeen.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	return stale
}

// closeConn force-closes a connection's transport, if it has one.
func (r *Registry) closeConn(connID, reason string) {
	r.mu.RLock()
	b, ok := r.conns[connID]
	r.mu.RUnlock()
	if ok && b.closer != nil {
		b.closer(reason)
	}
}

func (r *Registry) playerInfo(p *game.Player) events.PlayerInfo {
	return events.PlayerInfo{
		Id:       p.Identity,
		Name:     p.Name,
		Guest:    p.Guest,
		Position: p.Position(),
		Rotation: p.Rotation(),
		Skills:   p.SkillsSnapshot(),
	}
}

// HandleMove applies a position update and conditionally broadcasts it.
// A broadcast goes to the other connections only when the squared
// displacement since the last one exceeds the threshold or the minimum
// interval has elapsed, bounding volume without capping responsiveness.
//
// An update that exactly matches the spawn coordinate after the player
// has already moved is treated as a spurious client-side reset: the
// server re-asserts the last known real position instead of applying it.
func (r *Registry) HandleMove(ctx context.Context, connID string, mv events.Move) error {
	r.mu.Lock()
	b, ok := r.conns[connID]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("move from unbound connection %s: %w", connID, game.ErrPlayerNotFound)
	}
	p := b.player

	pos := game.Position{X: mv.X, Y: mv.Y, Z: mv.Z}
	if pos == r.spawn && p.HasMoved() {
		cur := p.Position()
		return r.ch.ToConn(connID, events.PlayerMoved, events.Moved{
			Id: p.Identity, X: cur.X, Y: cur.Y, Z: cur.Z, Rotation: p.Rotation(),
		})
	}

	rot := p.Rotation()
	if mv.Rotation != nil {
		rot = *mv.Rotation
	}
	p.SetPosition(pos, rot)

	now := time.Now()
	r.mu.Lock()
	send := pos.DistanceSquared(b.lastSentPos) > r.moveThresholdSq ||
		now.Sub(b.lastSentAt) >= r.moveMinInterval
	if send {
		b.lastSentPos = pos
		b.lastSentAt = now
	}
	r.mu.Unlock()
	if !send {
		return nil
	}

	if !p.Guest {
		identity := p.Identity
		go func() {
			if err := r.gw.SavePlayerPosition(context.Background(), identity, pos); err != nil {
				slog.Error("saving position", "identity", identity, "error", err)
			}
		}()
	}
	return r.ch.ToAllExcept(connID, events.PlayerMoved, events.Moved{
		Id: p.Identity, X: pos.X, Y: pos.Y, Z: pos.Z, Rotation: rot,
	})
}

// HandleEquip marks an inventory stack as equipped and re-sends the
// inventory to the owner.
func (r *Registry) HandleEquip(ctx context.Context, connID, itemId string) error {
	p := r.PlayerByConn(connID)
	if p == nil {
		return fmt.Errorf("equip from unbound connection %s: %w", connID, game.ErrPlayerNotFound)
	}
	if err := p.Equip(itemId); err != nil {
		return err
	}
	return r.ch.ToConn(connID, events.InventoryUpdate, p.InventorySnapshot())
}

// SendInventory re-sends the owner's inventory snapshot.
func (r *Registry) SendInventory(connID string) error {
	p := r.PlayerByConn(connID)
	if p == nil {
		return fmt.Errorf("inventory request from unbound connection %s: %w", connID, game.ErrPlayerNotFound)
	}
	return r.ch.ToConn(connID, events.InventoryUpdate, p.InventorySnapshot())
}
