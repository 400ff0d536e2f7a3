package engine

import (
	"fmt"
	"time"

	"github.com/parleyhq/parley/pkg/config"
)

// Load creates an engine graph for the given model based on the
// configuration. Loading is the fatal boundary: any error here means
// misconfiguration, and the caller aborts.
func Load(cfg *config.Config, model string) (Graph, error) {
	opts := Options{
		EnableLog:   cfg.Engine.EnableLog,
		GPULayers:   cfg.Engine.GPULayers,
		ContextSize: cfg.Engine.ContextSize,
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Engine.Type {
	case "process":
		return LoadProcessGraph(cfg.Engine.Binary, model, opts)
	case "daemon":
		return LoadDaemonGraph(DaemonConfig{
			Endpoint:       cfg.Engine.Endpoint,
			Model:          model,
			ConnectTimeout: time.Duration(cfg.Engine.ConnectTimeoutSeconds) * time.Second,
		}, opts)
	case "server":
		return LoadServerGraph(ServerConfig{
			BaseURL:        cfg.Engine.Endpoint,
			Model:          model,
			ConnectTimeout: time.Duration(cfg.Engine.ConnectTimeoutSeconds) * time.Second,
			MaxRetries:     cfg.Engine.MaxRetries,
		}, opts)
	default:
		return nil, fmt.Errorf("unknown engine type: %s (supported: process, daemon, server)", cfg.Engine.Type)
	}
}
