package anycast

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alir32a/mydns/internal/dnsmetrics"
)

// HealthFunc reports whether this instance should currently be announcing
// its anycast VIP. A nil HealthFunc is treated as always-healthy.
type HealthFunc func(ctx context.Context) error

// Manager periodically checks this instance's health and announces or
// withdraws its anycast VIP accordingly.
type Manager struct {
	routing    RoutingEngine
	vipManager VIPManager
	vip        string
	iface      string
	interval   time.Duration
	health     HealthFunc
	logger     *slog.Logger

	announced atomic.Bool
	vipBound  atomic.Bool
}

// NewManager constructs a Manager. interval defaults to 10s when zero.
func NewManager(routing RoutingEngine, vipManager VIPManager, vip, iface string, interval time.Duration, health HealthFunc, logger *slog.Logger) *Manager {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		routing:    routing,
		vipManager: vipManager,
		vip:        vip,
		iface:      iface,
		interval:   interval,
		health:     health,
		logger:     logger,
	}
}

// Start runs the health-gated announce/withdraw loop until ctx is
// cancelled, at which point it withdraws the route so the rest of the
// anycast deployment stops routing traffic here.
func (m *Manager) Start(ctx context.Context) {
	m.logger.Info("starting anycast manager", "vip", m.vip, "iface", m.iface)
	m.check(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("shutting down anycast manager, withdrawing route")
			if err := m.routing.Withdraw(context.Background(), m.vip); err != nil {
				m.logger.Error("failed to withdraw bgp on shutdown", "error", err, "vip", m.vip)
			}
			dnsmetrics.BGPAnnounced.Set(0)
			return
		case <-ticker.C:
			m.check(ctx)
		}
	}
}

func (m *Manager) check(ctx context.Context) {
	healthy := true
	if m.health != nil {
		if err := m.health(ctx); err != nil {
			m.logger.Warn("anycast health check failed", "error", err)
			healthy = false
		}
	}

	was := m.announced.Load()
	switch {
	case healthy && !was:
		m.announce(ctx)
	case !healthy && was:
		m.withdraw(ctx)
	}
}

func (m *Manager) announce(ctx context.Context) {
	m.logger.Info("node healthy, announcing anycast vip")

	if !m.vipBound.Load() {
		if err := m.vipManager.Bind(ctx, m.vip, m.iface); err != nil {
			m.logger.Error("failed to bind vip", "error", err)
			return
		}
		m.vipBound.Store(true)
	}

	if err := m.routing.Announce(ctx, m.vip); err != nil {
		m.logger.Error("failed to announce bgp", "error", err)
		return
	}
	m.announced.Store(true)
	dnsmetrics.BGPAnnounced.Set(1)
}

func (m *Manager) withdraw(ctx context.Context) {
	m.logger.Warn("node unhealthy, withdrawing anycast vip")

	if err := m.routing.Withdraw(ctx, m.vip); err != nil {
		m.logger.Error("failed to withdraw bgp", "error", err)
		return
	}
	m.announced.Store(false)
	dnsmetrics.BGPAnnounced.Set(0)
}
