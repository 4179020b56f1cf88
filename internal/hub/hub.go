// Package hub is the dispatcher between the transport and the hub's
// components. It decodes every inbound frame once, applies the rate limit,
// runs the frame's handler and converts failures into frames for the sender.
package hub

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"eduhub/internal/identity"
	"eduhub/internal/logger"
	"eduhub/internal/presence"
	"eduhub/internal/router"
	"eduhub/internal/signaling"
	"eduhub/internal/support"
	"eduhub/internal/websocket"
	"eduhub/pkg/interfaces"
)

var _ websocket.Dispatcher = (*Hub)(nil)

// Components are the services the hub dispatches into.
type Components struct {
	Store    interfaces.Store
	Registry *websocket.Registry
	Limiter  *router.RateLimiter
	Resolver *identity.Resolver
	Router   *router.Router
	Presence *presence.Tracker
	Relay    *signaling.Relay
	Support  *support.Engine
}

type Config struct {
	// PersistTimeout bounds the store work of a single frame.
	PersistTimeout time.Duration

	// MaintenanceSchedule is a cron spec for the sweep job.
	MaintenanceSchedule string

	// LimiterIdle is how long an upgrade limiter may sit unused before the
	// sweep forgets it.
	LimiterIdle time.Duration
}

func DefaultConfig() Config {
	return Config{
		PersistTimeout:      5 * time.Second,
		MaintenanceSchedule: "@every 1m",
		LimiterIdle:         10 * time.Minute,
	}
}

// LimiterSweeper forgets idle per-address upgrade limiters.
type LimiterSweeper interface {
	SweepLimiters(idle time.Duration) int
}

// Hub implements websocket.Dispatcher and owns the maintenance schedule.
type Hub struct {
	Components
	config Config
	log    *slog.Logger

	mu       sync.Mutex
	running  bool
	cron     *cron.Cron
	sweepers []LimiterSweeper
}

func New(components Components, config Config) *Hub {
	defaults := DefaultConfig()
	if config.PersistTimeout <= 0 {
		config.PersistTimeout = defaults.PersistTimeout
	}
	if config.MaintenanceSchedule == "" {
		config.MaintenanceSchedule = defaults.MaintenanceSchedule
	}
	if config.LimiterIdle <= 0 {
		config.LimiterIdle = defaults.LimiterIdle
	}
	return &Hub{
		Components: components,
		config:     config,
		log:        logger.Component("hub"),
	}
}

// AddSweeper registers a transport whose upgrade limiters are swept with
// the rate buckets.
func (h *Hub) AddSweeper(s LimiterSweeper) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sweepers = append(h.sweepers, s)
}

// Start restores support assignments from the store and starts the
// maintenance schedule.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return ErrHubAlreadyRunning
	}

	loaded, err := h.Support.LoadActiveAssignments(ctx)
	if err != nil {
		return err
	}

	c := cron.New()
	if _, err := c.AddFunc(h.config.MaintenanceSchedule, h.maintain); err != nil {
		return err
	}
	c.Start()

	h.cron = c
	h.running = true
	h.log.Info("hub started",
		slog.Int("assignments", loaded),
		slog.String("maintenance", h.config.MaintenanceSchedule))
	return nil
}

// Stop halts the maintenance schedule and waits for a running sweep.
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	c := h.cron
	h.cron = nil
	h.mu.Unlock()

	<-c.Stop().Done()
	h.log.Info("hub stopped")
	return nil
}

func (h *Hub) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

// maintain drops expired rate buckets and idle upgrade limiters, and checks
// that the store is reachable.
func (h *Hub) maintain() {
	buckets := h.Limiter.Sweep()

	h.mu.Lock()
	sweepers := append([]LimiterSweeper(nil), h.sweepers...)
	h.mu.Unlock()

	limiters := 0
	for _, s := range sweepers {
		limiters += s.SweepLimiters(h.config.LimiterIdle)
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.PersistTimeout)
	defer cancel()
	if err := h.Store.HealthCheck(ctx); err != nil {
		h.log.Warn("store health check failed", slog.Any("error", err))
	}

	stats := h.Registry.Stats()
	h.log.Debug("maintenance finished",
		slog.Int("rate_buckets_removed", buckets),
		slog.Int("upgrade_limiters_removed", limiters),
		slog.Int("users", stats.Users),
		slog.Int("guests", stats.Guests))
}
