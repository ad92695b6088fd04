// callstorm-d is the load-generation daemon: it owns a pool of switch
// connections, the traffic engine, the CDR store, and the HTTP control API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/callstorm/callstorm/pkg/api"
	"github.com/callstorm/callstorm/pkg/behaviors"
	"github.com/callstorm/callstorm/pkg/cdr"
	"github.com/callstorm/callstorm/pkg/originator"
	"github.com/callstorm/callstorm/pkg/pool"
	"github.com/callstorm/callstorm/pkg/stats"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "callstorm-d: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	cfg, err := LoadConfig(args)
	if err != nil {
		return err
	}
	log.Info("system started", "component", "callstorm-d", "addr", cfg.Addr)

	// switch connections
	simCfg := pool.DefaultSimConfig()
	simCfg.MaxSessions = cfg.SwitchCapacity
	conns := make([]pool.Connection, cfg.Switches)
	for i := range conns {
		conns[i] = pool.NewSwitchSim(fmt.Sprintf("sim%d", i), simCfg)
	}
	p, err := pool.New(conns...)
	if err != nil {
		return fmt.Errorf("failed to build pool: %w", err)
	}

	// CDR persistence
	store, err := cdr.NewStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to init cdr store: %w", err)
	}
	defer store.Close()
	cdr.NewRecorder(store, log).Attach(p)
	log.Info("cdr store initialized", "path", cfg.DBPath)

	// engine settings, from the plan when one is given
	settings := originator.DefaultSettings()
	var planBehaviors []originator.PlanBehavior
	if cfg.PlanPath != "" {
		plan, err := originator.LoadPlan(cfg.PlanPath)
		if err != nil {
			return fmt.Errorf("failed to load plan: %w", err)
		}
		settings = plan.Settings()
		planBehaviors = plan.Behaviors
		log.Info("plan loaded", "path", cfg.PlanPath, "behaviors", len(planBehaviors))
	} else {
		planBehaviors = []originator.PlanBehavior{{Name: "park", Weight: 1}}
	}

	eng := originator.New(p, log, settings)
	for _, pb := range planBehaviors {
		b, err := behaviors.New(pb.Name, log)
		if err != nil {
			return fmt.Errorf("failed to build behavior: %w", err)
		}
		weight := pb.Weight
		if weight == 0 {
			weight = 1
		}
		if err := eng.LoadBehavior(b, weight); err != nil {
			return fmt.Errorf("failed to load behavior %q: %w", pb.Name, err)
		}
	}

	// optional live stats
	statsCtx, stopStats := context.WithCancel(context.Background())
	defer stopStats()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		pub := stats.NewPublisher(rdb, cfg.EngineID, log)
		go pub.Run(statsCtx, cfg.PublishInterval, eng.Status)
		log.Info("stats publisher started", "redis", cfg.RedisAddr, "engine_id", cfg.EngineID)
	}

	srv := api.NewServer(eng, store, cfg.Addr, log)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		log.Info("shutdown initiated", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("api server failed: %w", err)
		}
	}

	// orderly teardown: engine first so sessions drain, then transport
	if err := eng.Shutdown(); err != nil {
		log.Error("engine shutdown failed", "error", err)
	}
	stopStats()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		log.Error("api server stop failed", "error", err)
	}
	if err := p.Close(); err != nil {
		log.Error("pool close failed", "error", err)
	}

	log.Info("shutdown complete")
	return nil
}
