package command

import (
	"context"
	"fmt"

	"github.com/pixil98/go-service"

	"github.com/fernwake/go-grove/internal/broadcast"
	"github.com/fernwake/go-grove/internal/driver"
	"github.com/fernwake/go-grove/internal/items"
	"github.com/fernwake/go-grove/internal/listener"
	"github.com/fernwake/go-grove/internal/resource"
	"github.com/fernwake/go-grove/internal/session"
	"github.com/fernwake/go-grove/internal/timers"
)

func BuildWorkers(config interface{}) (service.WorkerList, error) {
	cfg, ok := config.(*Config)
	if !ok {
		return nil, fmt.Errorf("unable to cast config")
	}

	// Messaging backbone
	natsServer, err := cfg.Nats.BuildNatsServer()
	if err != nil {
		return nil, fmt.Errorf("creating nats server: %w", err)
	}
	channel := broadcast.NewNatsChannel(natsServer)

	// Persistence
	gateway, verifier, err := cfg.Redis.BuildGateway()
	if err != nil {
		return nil, fmt.Errorf("creating persistence gateway: %w", err)
	}

	scheduler := timers.NewScheduler()

	// Engine components
	var registryOpts []session.RegistryOpt
	registryOpts = append(registryOpts, session.WithSpawn(cfg.World.Spawn))
	if cfg.World.MoveThreshold > 0 {
		registryOpts = append(registryOpts, session.WithMoveThreshold(cfg.World.MoveThreshold))
	}
	if cfg.World.MoveMinInterval != "" {
		registryOpts = append(registryOpts, session.WithMoveMinInterval(duration(cfg.World.MoveMinInterval, session.DefaultMoveMinInterval)))
	}
	registry := session.NewRegistry(gateway, channel, scheduler, verifier, registryOpts...)

	var resourceOpts []resource.ManagerOpt
	if cfg.World.GatherTick != "" {
		resourceOpts = append(resourceOpts, resource.WithTickInterval(duration(cfg.World.GatherTick, resource.DefaultTickInterval)))
	}
	if cfg.World.GatherChance > 0 {
		resourceOpts = append(resourceOpts, resource.WithSuccessChance(cfg.World.GatherChance))
	}
	resources := resource.NewManager(gateway, channel, scheduler, registry, resourceOpts...)
	if err := resources.LoadNodes(context.Background()); err != nil {
		return nil, fmt.Errorf("loading resource nodes: %w", err)
	}

	var itemOpts []items.RegistryOpt
	if cfg.World.ItemLifetime != "" {
		itemOpts = append(itemOpts, items.WithLifetime(duration(cfg.World.ItemLifetime, items.DefaultLifetime)))
	}
	itemRegistry := items.NewRegistry(gateway, channel, registry, itemOpts...)
	if err := itemRegistry.LoadItems(context.Background()); err != nil {
		return nil, fmt.Errorf("loading world items: %w", err)
	}

	// Listeners
	cm := listener.NewConnectionManager(registry, resources, itemRegistry, channel, natsServer)
	listeners := make(service.WorkerList, len(cfg.Listeners))
	for i, l := range cfg.Listeners {
		lst, err := l.BuildListener(cm)
		if err != nil {
			return nil, fmt.Errorf("creating listener %d: %w", i, err)
		}
		listeners[fmt.Sprintf("listener-%d", i)] = lst
	}

	// Periodic maintenance
	sweeper := session.NewHeartbeatSweeper(registry,
		session.WithHeartbeatTimeout(duration(cfg.World.HeartbeatTimeout, session.DefaultHeartbeatTimeout)))
	worldDriver := driver.NewWorldDriver([]driver.Entry{
		{Name: "heartbeat", Interval: duration(cfg.World.HeartbeatInterval, defaultHeartbeatInterval), Manager: sweeper},
		{Name: "item-expiry", Interval: duration(cfg.World.ItemSweepInterval, defaultItemSweepInterval), Manager: items.NewExpirySweeper(itemRegistry)},
		{Name: "player-count", Interval: duration(cfg.World.CountInterval, defaultCountInterval), Manager: session.NewCountBroadcaster(registry)},
	})

	return service.WorkerList{
		"nats":      natsServer,
		"driver":    worldDriver,
		"scheduler": &schedulerWorker{scheduler},
		"listeners": &listeners,
	}, nil
}

// schedulerWorker ties the timer scheduler's lifetime to the app: on
// shutdown every pending gather, respawn, and expiry timer stops.
type schedulerWorker struct {
	sched *timers.Scheduler
}

func (w *schedulerWorker) Start(ctx context.Context) error {
	<-ctx.Done()
	w.sched.Stop()
	return nil
}
