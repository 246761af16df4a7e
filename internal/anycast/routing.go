// Package anycast advertises this server's listening address as an
// anycast host route via BGP, so that a deployment of several instances
// behind one VIP routes each client to its topologically nearest
// instance: a single health-gated announce/withdraw loop for one
// resolver process.
package anycast

import "context"

// RoutingEngine announces or withdraws a /32 host route for a VIP. The
// only implementation here is GoBGPEngine; the interface exists so the
// manager and its tests don't depend on a live BGP session.
type RoutingEngine interface {
	Start(ctx context.Context, localASN, peerASN uint32, peerIP string) error
	Announce(ctx context.Context, vip string) error
	Withdraw(ctx context.Context, vip string) error
	Stop() error
}

// VIPManager binds or unbinds a VIP address on a local network interface,
// so the kernel will answer ARP/ND for it once BGP has announced the
// route towards this host.
type VIPManager interface {
	Bind(ctx context.Context, vip, iface string) error
	Unbind(ctx context.Context, vip, iface string) error
}
