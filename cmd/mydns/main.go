// Command mydns runs a DNS server that answers queries recursively,
// authoritatively from zone files (and optionally Postgres), or by
// forwarding to a configured set of upstream resolvers. Flag parsing,
// config loading and process lifecycle are wired here; the
// query-answering logic itself lives in internal/resolver and its
// collaborators.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alir32a/mydns/internal/adminapi"
	"github.com/alir32a/mydns/internal/anycast"
	"github.com/alir32a/mydns/internal/config"
	"github.com/alir32a/mydns/internal/dnscache"
	"github.com/alir32a/mydns/internal/durationx"
	"github.com/alir32a/mydns/internal/listener"
	"github.com/alir32a/mydns/internal/resolver"
	"github.com/alir32a/mydns/internal/upstream"
	postgresZoneStore "github.com/alir32a/mydns/internal/zonestore/postgres"
)

type flags struct {
	host           string
	port           int
	proto          string
	timeout        string
	forward        string
	defaultFwdPort int
	authoritative  bool
	zones          string
	nestedZones    bool
	enableIPv6     bool
	configFile     string

	metricsAddr      string
	adminAddr        string
	postgresZonesDSN string

	anycastVIP      string
	anycastIface    string
	anycastPeerIP   string
	anycastLocalASN uint
	anycastPeerASN  uint

	// set records which flags were explicitly passed, so a flag's built-in
	// default never clobbers a value the config file supplied.
	set map[string]bool
}

func (f *flags) isSet(name string) bool { return f.set[name] }

func parseFlags(args []string) (*flags, error) {
	fs := flag.NewFlagSet("mydns", flag.ContinueOnError)
	f := &flags{}

	str := func(p *string, long, short, def, usage string) {
		fs.StringVar(p, long, def, usage)
		fs.StringVar(p, short, def, usage+" (shorthand)")
	}
	boolean := func(p *bool, long, short string, def bool, usage string) {
		fs.BoolVar(p, long, def, usage)
		fs.BoolVar(p, short, def, usage+" (shorthand)")
	}

	str(&f.host, "host", "H", "0.0.0.0", "listening address")
	fs.IntVar(&f.port, "port", 53, "listening port")
	fs.IntVar(&f.port, "p", 53, "listening port (shorthand)")
	str(&f.proto, "proto", "P", "udp", "transport protocol (udp|tcp)")
	str(&f.timeout, "timeout", "t", "", "upstream send/recv timeout, e.g. 5s")
	str(&f.forward, "forward", "f", "", "comma-separated list of upstream forward targets")
	fs.IntVar(&f.defaultFwdPort, "default-forward-port", 53, "port assumed for forward targets with no explicit port")
	boolean(&f.authoritative, "authoritative", "a", false, "serve authoritatively from zone files")
	str(&f.zones, "zones", "z", "", "directory containing zone files")
	boolean(&f.nestedZones, "nested-zones", "N", false, "recurse into subdirectories under --zones")
	boolean(&f.enableIPv6, "enable-ipv6", "6", false, "consider AAAA glue and IPv6 root/forward targets")
	str(&f.configFile, "config-file", "c", "", "path to a TOML config file")

	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "address to serve Prometheus /metrics on (disabled if empty)")
	fs.StringVar(&f.adminAddr, "admin-addr", "", "address to serve the admin HTTP API on (disabled if empty)")
	fs.StringVar(&f.postgresZonesDSN, "postgres-zones-dsn", "", "optional Postgres DSN for a supplementary zone store")
	fs.StringVar(&f.anycastVIP, "anycast-vip", "", "VIP to advertise via BGP (disabled if empty)")
	fs.StringVar(&f.anycastIface, "anycast-iface", "lo", "local interface to bind the anycast VIP to")
	fs.StringVar(&f.anycastPeerIP, "anycast-peer-ip", "", "BGP peer address")
	fs.UintVar(&f.anycastLocalASN, "anycast-local-asn", 65001, "local ASN for the anycast BGP session")
	fs.UintVar(&f.anycastPeerASN, "anycast-peer-asn", 65000, "peer ASN for the anycast BGP session")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	canonical := map[string]string{
		"H": "host", "p": "port", "P": "proto", "t": "timeout", "f": "forward",
		"a": "authoritative", "z": "zones", "N": "nested-zones",
		"6": "enable-ipv6", "c": "config-file",
	}
	f.set = make(map[string]bool)
	fs.Visit(func(fl *flag.Flag) {
		name := fl.Name
		if long, ok := canonical[name]; ok {
			name = long
		}
		f.set[name] = true
	})
	return f, nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], logger); err != nil {
		logger.Error("mydns exiting", "error", err)
		os.Exit(1)
	}
}

// run separates flag/config resolution and subsystem wiring from process
// bootstrap so it can be exercised directly in tests without touching
// os.Args or os.Exit.
func run(ctx context.Context, args []string, logger *slog.Logger) error {
	f, err := parseFlags(args)
	if err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	cfg, err := config.Load(f.configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := applyFlagOverrides(&cfg, f); err != nil {
		return err
	}
	if err := validateProto(cfg.Proto); err != nil {
		return err
	}

	cache := dnscache.New()

	var zoneStore resolver.ZoneStore
	if f.postgresZonesDSN != "" {
		store, err := postgresZoneStore.Open(f.postgresZonesDSN)
		if err != nil {
			return fmt.Errorf("open postgres zone store: %w", err)
		}
		if err := store.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate postgres zone store: %w", err)
		}
		defer store.Close()
		zoneStore = store
	}

	res, handler, err := buildResolver(cfg, cache, zoneStore, logger)
	if err != nil {
		return fmt.Errorf("build resolver: %w", err)
	}
	if handler != nil {
		defer handler.Close()
	}

	if f.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", promhttp.Handler())
		go serveHTTP(ctx, f.metricsAddr, mux, logger, "metrics")
	}
	if f.adminAddr != "" {
		var reloader adminapi.ZoneReloader
		if a, ok := res.(*resolver.Authoritative); ok {
			reloader = a
		}
		handler := adminapi.NewHandler(cache, reloader, logger)
		mux := http.NewServeMux()
		handler.RegisterRoutes(mux)
		go serveHTTP(ctx, f.adminAddr, mux, logger, "admin")
	}

	if f.anycastVIP != "" {
		go runAnycast(ctx, f, logger)
	}

	l := &listener.Listener{
		Host:         cfg.Host,
		Port:         cfg.Port,
		MaxPacketBuf: cfg.MaxPacketBuf,
		Resolver:     res,
		Logger:       logger,
		Mode:         resolverMode(cfg),
	}
	if err := l.Run(ctx); err != nil {
		return fmt.Errorf("listener: %w", err)
	}
	return nil
}

// applyFlagOverrides layers CLI flags over the loaded config: defaults,
// then file, then flags, with only explicitly passed flags winning over
// the file's values.
func applyFlagOverrides(cfg *config.Config, f *flags) error {
	if f.isSet("host") {
		cfg.Host = f.host
	}
	if f.isSet("port") {
		cfg.Port = f.port
	}
	if f.isSet("proto") {
		cfg.Proto = f.proto
	}
	if f.isSet("enable-ipv6") {
		cfg.EnableIPv6 = f.enableIPv6
	}
	if f.isSet("authoritative") {
		cfg.Authoritative = f.authoritative
	}
	if f.zones != "" {
		cfg.ZonesDir = f.zones
	}
	if f.isSet("nested-zones") {
		cfg.NestedZones = f.nestedZones
	}
	if f.isSet("default-forward-port") {
		cfg.DefaultForwardPort = f.defaultFwdPort
	}

	if f.forward != "" {
		cfg.ForwardAddrs = parseForwardList(f.forward)
	}

	if f.timeout != "" {
		d, err := durationx.Parse(f.timeout)
		if err != nil {
			return fmt.Errorf("parse --timeout: %w", err)
		}
		cfg.DefaultTimeout = d
	}

	return nil
}

// validateProto rejects a transport this server can't actually bind, so
// --proto tcp fails loudly at startup instead of silently serving UDP.
func validateProto(proto string) error {
	switch strings.ToLower(proto) {
	case "", "udp":
		return nil
	case "tcp":
		return fmt.Errorf("tcp transport not implemented, only udp is supported")
	default:
		return fmt.Errorf("unknown proto %q, only udp is supported", proto)
	}
}

func parseForwardList(csv string) []config.ForwardAddr {
	var out []config.ForwardAddr
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, config.ForwardAddr{Addr: part, Weight: 1})
	}
	return out
}

// buildResolver returns the configured resolver and, for the
// recursive/forwarding modes, the upstream.Handler backing it so the
// caller can close its source socket on shutdown. handler is nil for an
// authoritative resolver, which owns no such socket.
func buildResolver(cfg config.Config, cache *dnscache.Cache, zoneStore resolver.ZoneStore, logger *slog.Logger) (resolver.Resolver, *upstream.Handler, error) {
	if cfg.Authoritative {
		a, err := resolver.NewAuthoritative(cfg.ZonesDir, cfg.NestedZones, zoneStore, cache)
		return a, nil, err
	}

	var targets []upstream.Target
	if len(cfg.ForwardAddrs) > 0 {
		for _, fa := range cfg.ForwardAddrs {
			addr, err := resolveTarget(fa.Addr, cfg.DefaultForwardPort)
			if err != nil {
				return nil, nil, err
			}
			weight := fa.Weight
			if weight < 1 {
				weight = 1
			}
			targets = append(targets, upstream.Target{Addr: addr, Weight: weight})
		}
	} else {
		targets = upstream.RootTargets(cfg.EnableIPv6)
	}

	h, err := upstream.NewHandler(upstream.Config{
		DefaultTimeout: cfg.DefaultTimeout,
		RetryInterval:  cfg.RetryInterval,
		EnableIPv6:     cfg.EnableIPv6,
		Targets:        targets,
		Weighted:       strings.EqualFold(cfg.ForwardStrategy, "weighted"),
		Logger:         logger,
	})
	if err != nil {
		return nil, nil, err
	}

	if len(cfg.ForwardAddrs) > 0 {
		return resolver.NewForwarding(h, cache), h, nil
	}
	return resolver.NewRecursive(h, cache), h, nil
}

// resolverMode labels mydns_queries_total with which strategy buildResolver
// picked, mirroring the same three-way branch it uses.
func resolverMode(cfg config.Config) string {
	switch {
	case cfg.Authoritative:
		return "authoritative"
	case len(cfg.ForwardAddrs) > 0:
		return "forwarding"
	default:
		return "recursive"
	}
}

func resolveTarget(addr string, defaultPort int) (*net.UDPAddr, error) {
	host, portStr, err := net.SplitHostPort(addr)
	port := defaultPort
	if err == nil {
		addr = host
		if p, convErr := strconv.Atoi(portStr); convErr == nil {
			port = p
		}
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return nil, fmt.Errorf("invalid forward address %q", addr)
	}
	return &net.UDPAddr{IP: ip, Port: port}, nil
}

func serveHTTP(ctx context.Context, addr string, mux http.Handler, logger *slog.Logger, name string) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	logger.Info("starting http server", "component", name, "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("http server failed", "component", name, "error", err)
	}
}

func runAnycast(ctx context.Context, f *flags, logger *slog.Logger) {
	routing := anycast.NewGoBGPEngine("", "", logger)
	vipMgr := anycast.NewSystemVIP(logger)

	if err := routing.Start(ctx, uint32(f.anycastLocalASN), uint32(f.anycastPeerASN), f.anycastPeerIP); err != nil {
		logger.Error("anycast bgp speaker failed to start", "error", err)
		return
	}

	mgr := anycast.NewManager(routing, vipMgr, f.anycastVIP, f.anycastIface, 0, nil, logger)
	mgr.Start(ctx)
}
