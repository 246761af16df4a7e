package anycast

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"

	api "github.com/osrg/gobgp/v4/api"
	"github.com/osrg/gobgp/v4/pkg/apiutil"
	"github.com/osrg/gobgp/v4/pkg/packet/bgp"
	"github.com/osrg/gobgp/v4/pkg/server"
)

// GoBGPEngine implements RoutingEngine with an embedded GoBGP speaker:
// global config, one peer, and path add/delete for a single VIP.
type GoBGPEngine struct {
	bgpServer *server.BgpServer
	routerID  string
	nextHop   string
	logger    *slog.Logger
}

// NewGoBGPEngine constructs an engine around a fresh, unstarted BGP
// speaker. routerID and nextHop default to "127.0.0.1" when empty, which
// suits a single-homed resolver.
func NewGoBGPEngine(routerID, nextHop string, logger *slog.Logger) *GoBGPEngine {
	if logger == nil {
		logger = slog.Default()
	}
	if routerID == "" {
		routerID = "127.0.0.1"
	}
	if nextHop == "" {
		nextHop = "127.0.0.1"
	}
	return &GoBGPEngine{
		bgpServer: server.NewBgpServer(),
		routerID:  routerID,
		nextHop:   nextHop,
		logger:    logger,
	}
}

// Start brings the BGP server up, configures the local ASN and router ID,
// and peers with a single upstream router.
func (e *GoBGPEngine) Start(ctx context.Context, localASN, peerASN uint32, peerIP string) error {
	go e.bgpServer.Serve()

	if err := e.bgpServer.StartBgp(ctx, &api.StartBgpRequest{
		Global: &api.Global{
			Asn:        localASN,
			RouterId:   e.routerID,
			ListenPort: 179,
		},
	}); err != nil {
		return fmt.Errorf("anycast: start bgp server: %w", err)
	}

	if err := e.bgpServer.AddPeer(ctx, &api.AddPeerRequest{
		Peer: &api.Peer{
			Conf: &api.PeerConf{
				NeighborAddress: peerIP,
				PeerAsn:         peerASN,
			},
		},
	}); err != nil {
		return fmt.Errorf("anycast: add bgp peer: %w", err)
	}

	e.logger.Info("bgp speaker started", "local_asn", localASN, "peer_asn", peerASN, "peer_ip", peerIP)
	return nil
}

// Announce advertises vip as a /32 host route with this node as next hop.
func (e *GoBGPEngine) Announce(ctx context.Context, vip string) error {
	family := bgp.NewFamily(bgp.AFI_IP, bgp.SAFI_UNICAST)

	addr, err := netip.ParseAddr(vip)
	if err != nil {
		return fmt.Errorf("anycast: parse vip: %w", err)
	}
	nlri, err := bgp.NewIPAddrPrefix(netip.PrefixFrom(addr, 32))
	if err != nil {
		return fmt.Errorf("anycast: encode nlri: %w", err)
	}

	nextHop, err := netip.ParseAddr(e.nextHop)
	if err != nil {
		return fmt.Errorf("anycast: parse next hop: %w", err)
	}
	nextHopAttr, err := bgp.NewPathAttributeNextHop(nextHop)
	if err != nil {
		return fmt.Errorf("anycast: encode next-hop attribute: %w", err)
	}

	_, err = e.bgpServer.AddPath(apiutil.AddPathRequest{
		Paths: []*apiutil.Path{
			{
				Family: family,
				Nlri:   nlri,
				Attrs:  []bgp.PathAttributeInterface{nextHopAttr},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("anycast: announce %s: %w", vip, err)
	}
	e.logger.Info("announced anycast vip", "vip", vip)
	return nil
}

// Withdraw removes the host route previously announced for vip.
func (e *GoBGPEngine) Withdraw(ctx context.Context, vip string) error {
	family := bgp.NewFamily(bgp.AFI_IP, bgp.SAFI_UNICAST)

	addr, err := netip.ParseAddr(vip)
	if err != nil {
		return fmt.Errorf("anycast: parse vip: %w", err)
	}
	nlri, err := bgp.NewIPAddrPrefix(netip.PrefixFrom(addr, 32))
	if err != nil {
		return fmt.Errorf("anycast: encode nlri: %w", err)
	}

	if err := e.bgpServer.DeletePath(apiutil.DeletePathRequest{
		Paths: []*apiutil.Path{
			{
				Family:     family,
				Nlri:       nlri,
				Withdrawal: true,
			},
		},
	}); err != nil {
		return fmt.Errorf("anycast: withdraw %s: %w", vip, err)
	}
	e.logger.Warn("withdrew anycast vip", "vip", vip)
	return nil
}

// Stop shuts the BGP speaker down.
func (e *GoBGPEngine) Stop() error {
	return e.bgpServer.StopBgp(context.Background(), &api.StopBgpRequest{})
}

var _ RoutingEngine = (*GoBGPEngine)(nil)
