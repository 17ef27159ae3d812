package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/webitel/actor-node/internal/config"
	"github.com/webitel/actor-node/internal/core"
	"github.com/webitel/actor-node/internal/logging"
	"github.com/webitel/actor-node/internal/reactor"
	"github.com/webitel/actor-node/internal/wheel"
)

// Node is the assembled runtime: registry, scheduler, monitor, timing
// wheel, and socket reactor, wired together and ready to drive as one unit.
type Node struct {
	Registry *core.Registry
	Modules  *core.ModuleRegistry

	scheduler *core.Scheduler
	monitor   *core.Monitor
	wheel     *wheel.Wheel
	reactor   *reactor.Reactor

	log    *slog.Logger
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New assembles a Node from cfg and a module loader the caller has already
// populated with fx.Provide-registered builtin modules.
func New(cfg *config.Config, modules *core.ModuleRegistry, log *slog.Logger) (*Node, error) {
	reg := core.NewRegistry(modules, log, cfg.Node.DefaultProfiling)

	w := wheel.New(wheelResponder{reg: reg})
	reg.SetTimer(timerAdapter{w: w})

	rct, err := reactor.New(log, socketDeliver(reg))
	if err != nil {
		return nil, fmt.Errorf("coordinator: build reactor: %w", err)
	}

	workers := cfg.Scheduler.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	sched := core.NewScheduler(reg, log, workers)
	mon := core.NewMonitor(reg, sched.Heartbeats(), log)

	watcher, err := logging.NewDirWatcher(cfg.Logging.Dir, log)
	if err != nil {
		log.Warn("log directory watcher unavailable, falling back to size-only rotation", "err", err)
		watcher = nil
	}
	reg.SetLogSinkFactory(logging.SinkFactory(cfg.Logging, watcher))
	reg.SetAbortFunc(func() { reg.RetireAll() })

	return &Node{
		Registry:  reg,
		Modules:   modules,
		scheduler: sched,
		monitor:   mon,
		wheel:     w,
		reactor:   rct,
		log:       log,
	}, nil
}

// Reactor exposes the socket reactor so adapters (admin API, cmdbus) can
// open listeners and connections on behalf of services.
func (n *Node) Reactor() *reactor.Reactor { return n.reactor }

// Start launches the scheduler workers and every background goroutine
// (timing wheel driver, stuck-callback monitor, socket reactor loop). It
// does not create any services; Bootstrap does that.
func (n *Node) Start(ctx context.Context) error {
	bgCtx, cancel := context.WithCancel(ctx)
	n.cancel = cancel

	n.scheduler.Start()
	n.runBackground(func() { n.wheel.Run(bgCtx) })
	n.runBackground(func() { n.monitor.Run(bgCtx) })
	n.runBackground(func() { n.reactor.Run(bgCtx) })

	n.log.Info("node started", "workers", len(n.scheduler.Heartbeats()))
	return nil
}

// runBackground launches fn as a goroutine tracked by n.wg, so Stop can
// block until the wheel, monitor, and reactor loops have all actually
// returned instead of merely signalling them to stop.
func (n *Node) runBackground(fn func()) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		fn()
	}()
}

// Bootstrap creates the services listed in cfg.Bootstrap, in order, failing
// fast on the first error so a misconfigured node never half-starts.
func (n *Node) Bootstrap(cfg *config.Config) error {
	for _, b := range cfg.Bootstrap {
		h, err := n.Registry.Create(b.Module, b.Args)
		if err != nil {
			return fmt.Errorf("coordinator: bootstrap %q (module %q): %w", b.Name, b.Module, err)
		}
		if b.Name != "" {
			if err := n.Registry.SetName(b.Name, h); err != nil {
				return fmt.Errorf("coordinator: name bootstrap service %q: %w", b.Name, err)
			}
		}
		n.log.Info("bootstrap service started", "name", b.Name, "module", b.Module, "handle", h)
	}
	return nil
}

// Stop retires every live service, stops the scheduler, then cancels and
// joins the wheel, monitor, and reactor goroutines before returning. Safe
// to call once; further calls are no-ops.
func (n *Node) Stop(ctx context.Context) error {
	if n.cancel == nil {
		return nil
	}
	n.Registry.RetireAll()
	n.scheduler.Stop()
	n.reactor.Shutdown()
	n.cancel()
	n.wg.Wait()
	n.cancel = nil
	n.log.Info("node stopped")
	return nil
}
