package main

import (
	"fmt"
	"log/slog"

	"darkroom/internal/backend"
	"darkroom/internal/batch"
	"darkroom/internal/config"
	"darkroom/internal/daemon"
	"darkroom/internal/dispatch"
	"darkroom/internal/photos"
	"darkroom/internal/priority"
	"darkroom/internal/resources"
)

// bootstrap wires every orchestration service once at process start and hands
// them to the daemon. No component is reachable through a global.
func bootstrap(cfg *config.Config, logger *slog.Logger) (*daemon.Daemon, error) {
	store, err := dispatch.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}

	be, err := buildBackend(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	provider := photos.NewCatalogProvider(cfg.CatalogPath(), logger)
	calc := priority.NewCalculator(cfg, provider, store, logger)
	monitor := resources.NewMonitor(cfg, nil, logger)
	dispatcher := dispatch.NewDispatcher(cfg, store, be, calc, provider, monitor, logger)
	stateStore := batch.NewStateStore(cfg.BatchStateDir(), logger)
	coordinator := batch.NewCoordinator(cfg, stateStore, dispatcher, logger)

	d, err := daemon.New(cfg, daemon.Services{
		Store:       store,
		Dispatcher:  dispatcher,
		Coordinator: coordinator,
		Calculator:  calc,
		Monitor:     monitor,
	}, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	return d, nil
}

func buildBackend(cfg *config.Config) (backend.Backend, error) {
	switch cfg.Dispatcher.Backend {
	case "nats":
		be, err := backend.ConnectNATS(cfg.Dispatcher.NATSURL, cfg.Dispatcher.SubjectPrefix)
		if err != nil {
			return nil, fmt.Errorf("connect execution backend: %w", err)
		}
		return be, nil
	case "memory", "":
		return backend.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown dispatcher backend %q", cfg.Dispatcher.Backend)
	}
}
