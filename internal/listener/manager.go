package listener

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/fernwake/go-grove/internal/broadcast"
	"github.com/fernwake/go-grove/internal/events"
	"github.com/fernwake/go-grove/internal/game"
	"github.com/fernwake/go-grove/internal/items"
	"github.com/fernwake/go-grove/internal/resource"
	"github.com/fernwake/go-grove/internal/session"
)

// Subscriber provides per-connection message delivery, satisfied by
// messaging.NatsServer.
type Subscriber interface {
	SubscribeConn(connID string, handler func(data []byte)) (func(), error)
}

// Channel is the broadcast surface plus the connection roster the
// fan-out iterates.
type Channel interface {
	broadcast.Channel
	Attach(connID string)
	Detach(connID string)
}

// ConnectionManager runs one client session end to end: authenticate,
// bind, sync, dispatch, tear down. Both the transport-disconnect path
// and the heartbeat sweep converge on Registry.Unbind, so cleanup runs
// once no matter which fires first.
type ConnectionManager struct {
	registry  *session.Registry
	resources *resource.Manager
	items     *items.Registry
	channel   Channel
	subs      Subscriber
}

func NewConnectionManager(registry *session.Registry, resources *resource.Manager, itemReg *items.Registry, channel Channel, subs Subscriber) *ConnectionManager {
	return &ConnectionManager{
		registry:  registry,
		resources: resources,
		items:     itemReg,
		channel:   channel,
		subs:      subs,
	}
}

// Run blocks until the connection's read loop ends.
func (m *ConnectionManager) Run(ctx context.Context, conn *Conn, token string) {
	connID := conn.ID()

	identity, name, guest := m.registry.Authenticate(ctx, token)
	slog.InfoContext(ctx, "connection accepted", "conn", connID, "identity", identity, "guest", guest)

	unsub, err := m.subs.SubscribeConn(connID, conn.Send)
	if err != nil {
		slog.ErrorContext(ctx, "subscribing connection", "conn", connID, "error", err)
		conn.Close("server error")
		return
	}
	defer unsub()

	m.channel.Attach(connID)
	defer m.channel.Detach(connID)

	m.registry.Bind(ctx, connID, identity, name, guest, conn.Close)

	go conn.writeLoop()
	m.sendSnapshots(connID)

	conn.readLoop(
		func() { m.registry.Touch(connID) },
		func(data []byte) { m.dispatch(ctx, connID, data) },
	)

	m.resources.CancelGathering(connID)
	m.registry.Unbind(ctx, connID)
	conn.Close("")
}

// sendSnapshots brings a fresh connection up to date with the world.
func (m *ConnectionManager) sendSnapshots(connID string) {
	if err := m.channel.ToConn(connID, events.Players, m.registry.Roster()); err != nil {
		slog.Warn("sending roster snapshot", "conn", connID, "error", err)
	}
	if err := m.channel.ToConn(connID, events.ResourceNodes, m.resources.Snapshot()); err != nil {
		slog.Warn("sending node snapshot", "conn", connID, "error", err)
	}
	if err := m.channel.ToConn(connID, events.WorldItems, m.items.Snapshot()); err != nil {
		slog.Warn("sending item snapshot", "conn", connID, "error", err)
	}
	if err := m.registry.SendInventory(connID); err != nil {
		slog.Warn("sending inventory snapshot", "conn", connID, "error", err)
	}
}

// dispatch is the handler boundary: a panic or error inside one handler
// answers that one request and never takes the process down. Every
// inbound message also counts as proof of life, so a client busy
// sending gameplay traffic never trips the heartbeat sweep even if its
// pongs are delayed.
func (m *ConnectionManager) dispatch(ctx context.Context, connID string, data []byte) {
	m.registry.Touch(connID)

	var event string
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "handler panic", "conn", connID, "event", event, "panic", r)
			m.fail(connID, event)
		}
	}()

	env, err := events.Decode(data)
	if err != nil {
		slog.WarnContext(ctx, "undecodable message", "conn", connID, "error", err)
		m.fail(connID, "")
		return
	}
	event = env.Event

	if err := m.handle(ctx, connID, env); err != nil {
		if rej, ok := game.IsRejection(err); ok {
			if sendErr := m.channel.ToConn(connID, events.ActionRejected, events.Rejected{Action: env.Event, Reason: rej.Message}); sendErr != nil {
				slog.Warn("sending rejection", "conn", connID, "error", sendErr)
			}
			return
		}
		slog.ErrorContext(ctx, "handling event", "conn", connID, "event", env.Event, "error", err)
		m.fail(connID, env.Event)
	}
}

func (m *ConnectionManager) handle(ctx context.Context, connID string, env events.Envelope) error {
	switch env.Event {
	case events.PlayerMove:
		var mv events.Move
		if err := json.Unmarshal(env.Data, &mv); err != nil {
			return fmt.Errorf("decoding move: %w", err)
		}
		return m.registry.HandleMove(ctx, connID, mv)

	case events.GatherWithTool:
		var req events.Gather
		if err := json.Unmarshal(env.Data, &req); err != nil {
			return fmt.Errorf("decoding gather: %w", err)
		}
		return m.resources.BeginGathering(ctx, connID, req)

	case events.CancelGathering, events.CancelSmithing:
		m.resources.CancelGathering(connID)
		return nil

	case events.DropItem:
		var req events.Drop
		if err := json.Unmarshal(env.Data, &req); err != nil {
			return fmt.Errorf("decoding drop: %w", err)
		}
		return m.items.Drop(ctx, connID, req)

	case events.PickupItem:
		var req events.Pickup
		if err := json.Unmarshal(env.Data, &req); err != nil {
			return fmt.Errorf("decoding pickup: %w", err)
		}
		return m.items.Pickup(ctx, connID, req.ItemId)

	case events.EquipItem:
		var req events.Equip
		if err := json.Unmarshal(env.Data, &req); err != nil {
			return fmt.Errorf("decoding equip: %w", err)
		}
		return m.registry.HandleEquip(ctx, connID, req.ItemId)

	case events.RequestInventory:
		return m.registry.SendInventory(connID)

	case events.GetPlayers:
		return m.channel.ToConn(connID, events.Players, m.registry.Roster())

	case events.GetWorldItems:
		return m.channel.ToConn(connID, events.WorldItems, m.items.Snapshot())

	default:
		return game.Reject("unknown event %q", env.Event)
	}
}

func (m *ConnectionManager) fail(connID, event string) {
	if err := m.channel.ToConn(connID, events.ActionFailed, events.Rejected{Action: event, Reason: "internal error"}); err != nil {
		slog.Warn("sending failure", "conn", connID, "error", err)
	}
}
