package provider

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/isdmx/runbox/config"
)

// NewFromConfig creates the appropriate sandbox provider based on the configuration
func NewFromConfig(logger *zap.Logger, cfg *config.Config) (Provider, error) {
	providerConfig := &Config{
		MemoryMB:       cfg.Provider.MemoryMB,
		NetworkEnabled: cfg.Provider.NetworkEnabled,
		CreateTimeout:  cfg.GetCreateTimeout(),
	}

	switch cfg.Provider.Backend {
	case "docker", "podman":
		return NewContainerProvider(logger, providerConfig, cfg.Languages, cfg.Provider.Backend), nil
	case "local":
		return NewLocalProvider(logger, providerConfig, cfg.Languages), nil
	default:
		return nil, fmt.Errorf("unsupported backend: %s", cfg.Provider.Backend)
	}
}
