package bridge

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/flows"
	"github.com/zulandar/switchboard/internal/langflow"
	"github.com/zulandar/switchboard/internal/sessions"
)

// Daemon is the main switchboard process. It connects to the chat platform
// via an Adapter, routes inbound messages to Langflow flows, and runs the
// periodic session sweep.
type Daemon struct {
	db      *gorm.DB
	cfg     *config.Config
	adapter Adapter
	out     io.Writer
}

// DaemonOpts holds parameters for creating a new Daemon.
type DaemonOpts struct {
	DB      *gorm.DB
	Config  *config.Config
	Adapter Adapter
	Out     io.Writer // defaults to os.Stdout
}

// NewDaemon creates a Daemon with the given options.
func NewDaemon(opts DaemonOpts) (*Daemon, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("bridge: db is required")
	}
	if opts.Config == nil {
		return nil, fmt.Errorf("bridge: config is required")
	}
	if opts.Adapter == nil {
		return nil, fmt.Errorf("bridge: adapter is required")
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Daemon{
		db:      opts.DB,
		cfg:     opts.Config,
		adapter: opts.Adapter,
		out:     out,
	}, nil
}

// Run starts the switchboard daemon. It connects the adapter, seeds the
// configured default flow, builds all subsystems, and blocks until the
// context is cancelled. On shutdown it closes the backend clients and the
// adapter gracefully.
func (d *Daemon) Run(ctx context.Context) error {
	fmt.Fprintf(d.out, "Switchboard connecting...\n")
	if err := d.adapter.Connect(ctx); err != nil {
		return fmt.Errorf("bridge: connect: %w", err)
	}
	defer func() {
		if err := d.adapter.Close(); err != nil {
			log.Printf("bridge: close adapter: %v", err)
		}
	}()

	registry, err := flows.NewRegistry(d.db)
	if err != nil {
		return fmt.Errorf("bridge: build registry: %w", err)
	}

	if err := d.seedDefaultFlow(registry); err != nil {
		return fmt.Errorf("bridge: seed default flow: %w", err)
	}

	store, err := sessions.NewStore(d.db)
	if err != nil {
		return fmt.Errorf("bridge: build session store: %w", err)
	}

	// Deferred after adapter close registration: clients shut down first,
	// the adapter connection last.
	clients := langflow.NewManager(langflow.ManagerOpts{
		RequestTimeout: time.Duration(d.cfg.Backend.RequestTimeoutSec) * time.Second,
		ConnectTimeout: time.Duration(d.cfg.Backend.ConnectTimeoutSec) * time.Second,
		MaxRetries:     d.cfg.Backend.MaxRetries,
	})
	defer clients.CloseAll()

	router, err := NewRouter(RouterOpts{
		Config:   d.cfg,
		Registry: registry,
		Store:    store,
		Clients:  clients,
		Adapter:  d.adapter,
		Out:      d.out,
	})
	if err != nil {
		return fmt.Errorf("bridge: build router: %w", err)
	}

	inbound, err := d.adapter.Listen(ctx)
	if err != nil {
		return fmt.Errorf("bridge: listen: %w", err)
	}

	d.logStartup(registry, store)

	// Session sweep runs on its own goroutine; awaited on shutdown so a
	// sweep in progress finishes before the DB handle goes away.
	sweepCtx, stopSweep := context.WithCancel(ctx)
	var sweepWG sync.WaitGroup
	sweepWG.Add(1)
	go func() {
		defer sweepWG.Done()
		d.runSweep(sweepCtx, store)
	}()

	var handlerWG sync.WaitGroup
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintf(d.out, "Switchboard shutting down...\n")
			stopSweep()
			sweepWG.Wait()
			handlerWG.Wait()
			fmt.Fprintf(d.out, "Switchboard stopped\n")
			return nil

		case msg, ok := <-inbound:
			if !ok {
				fmt.Fprintf(d.out, "Switchboard inbound channel closed\n")
				stopSweep()
				sweepWG.Wait()
				handlerWG.Wait()
				return nil
			}
			handlerWG.Add(1)
			go func(m InboundMessage) {
				defer handlerWG.Done()
				router.Handle(ctx, m)
			}(msg)
		}
	}
}

// seedDefaultFlow registers the flow named in the config as the default,
// but only when no default exists yet. An operator-set default is never
// overwritten by a restart.
func (d *Daemon) seedDefaultFlow(registry *flows.Registry) error {
	if !d.cfg.HasSeedFlow() {
		return nil
	}

	existing, err := registry.Default()
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	seed := d.cfg.Backend.DefaultFlow
	created, err := registry.Add(seed.Name, seed.URL, seed.FlowID, seed.APIKey, "Seeded from config", true)
	if err != nil {
		return err
	}
	if created {
		fmt.Fprintf(d.out, "bridge: seeded default flow %q\n", seed.Name)
	} else if _, err := registry.SetDefault(seed.Name); err != nil {
		return err
	}
	return nil
}

// logStartup writes a one-time summary of the routing configuration and
// stored sessions.
func (d *Daemon) logStartup(registry *flows.Registry, store *sessions.Store) {
	list, err := registry.List()
	if err != nil {
		log.Printf("bridge: startup flow listing: %v", err)
		return
	}

	fmt.Fprintf(d.out, "Switchboard online: %d flow(s) configured\n", len(list))
	for _, f := range list {
		marker := ""
		if f.IsDefault {
			marker = " [default]"
		}
		fmt.Fprintf(d.out, "  flow %s%s -> %s\n", f.Name, marker, f.Endpoint())
	}
	if len(list) == 0 {
		fmt.Fprintf(d.out, "  no flows yet; add one with: @switchboard flows add ...\n")
	}
	fmt.Fprintf(d.out, "  session TTL %dh, sweep schedule %q\n",
		d.cfg.Sessions.TTLHours, d.cfg.Sessions.SweepCron)

	if stats, err := store.Stats(); err == nil {
		fmt.Fprintf(d.out, "  sessions: %d stored, %d active in the last hour\n",
			stats.Total, stats.ActiveLastHour)
	}
}

// runSweep deletes idle sessions on the configured cron schedule until the
// context is cancelled.
func (d *Daemon) runSweep(ctx context.Context, store *sessions.Store) {
	ttl := time.Duration(d.cfg.Sessions.TTLHours) * time.Hour
	for {
		wait := nextCronDuration(d.cfg.Sessions.SweepCron)
		if wait <= 0 {
			log.Printf("bridge: invalid sweep schedule %q, sweep disabled", d.cfg.Sessions.SweepCron)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		removed, err := store.Cleanup(ttl)
		if err != nil {
			log.Printf("bridge: session sweep: %v", err)
			continue
		}
		if removed > 0 {
			fmt.Fprintf(d.out, "bridge: swept %d idle session(s)\n", removed)
		}
	}
}
