// Package hooks holds the side effects run after a judgement is recorded.
package hooks

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"

	"github.com/sevigo/revision-warden/internal/config"
	"github.com/sevigo/revision-warden/internal/core"
)

var (
	ErrRegistrySealed = errors.New("hook registry is sealed")
	ErrDuplicateHook  = errors.New("hook already registered")
)

// Registry maps hook names to hooks. It is filled during startup and sealed
// before the first dispatch; after Seal it is read-only.
type Registry struct {
	mu     sync.RWMutex
	hooks  []core.Hook
	sealed bool
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a hook. It fails once the registry is sealed or when the
// name is taken.
func (r *Registry) Register(h core.Hook) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return fmt.Errorf("%w: cannot register %s", ErrRegistrySealed, h.Name())
	}
	if slices.ContainsFunc(r.hooks, func(existing core.Hook) bool { return existing.Name() == h.Name() }) {
		return fmt.Errorf("%w: %s", ErrDuplicateHook, h.Name())
	}
	r.hooks = append(r.hooks, h)
	return nil
}

// Seal freezes the registry.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Hooks returns the registered hooks in registration order.
func (r *Registry) Hooks() []core.Hook {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.hooks)
}

// Names returns the registered hook names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.hooks))
	for _, h := range r.hooks {
		names = append(names, h.Name())
	}
	return names
}

// NewRegistryFromConfig registers every hook whose configuration is present
// and seals the registry.
func NewRegistryFromConfig(cfg *config.Config, logger *slog.Logger) (*Registry, error) {
	reg := NewRegistry()
	client := &http.Client{Timeout: cfg.Hooks.Timeout}

	if cfg.Hooks.Discord.Enabled() {
		token := cfg.Hooks.Discord.WebhookToken
		logger.Info("installing discord hook", "webhook_id", cfg.Hooks.Discord.WebhookID, "token_prefix", token[:min(3, len(token))])
		if err := reg.Register(NewDiscordHook(cfg.Hooks.Discord, cfg.Server.PublicHost, client)); err != nil {
			return nil, err
		}
	} else {
		logger.Warn("discord hook not installed, webhook id or token missing")
	}

	if cfg.Hooks.Jade.Enabled() {
		logger.Info("installing jade hook", "endpoint", cfg.Hooks.Jade.Endpoint, "wiki", cfg.Hooks.Jade.Wiki)
		if err := reg.Register(NewJadeHook(cfg.Hooks.Jade, client)); err != nil {
			return nil, err
		}
	} else {
		logger.Info("jade hook not installed, no endpoint configured")
	}

	reg.Seal()
	return reg, nil
}
