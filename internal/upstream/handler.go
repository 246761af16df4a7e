package upstream

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/alir32a/mydns/internal/dnsmetrics"
	"github.com/alir32a/mydns/internal/dnsmsg"
	"github.com/alir32a/mydns/internal/wire"
)

// ErrAllTargetsFailed is returned by Send/SendTo once every candidate
// target has timed out without a reply.
var ErrAllTargetsFailed = errors.New("upstream: all targets failed")

// TimeoutError describes a per-target timeout. Nothing in this package
// returns it: Send and SendTo log a timed-out target and move on to the
// next one.
type TimeoutError struct {
	Target Target
	Err    error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("upstream: %s timed out: %v", e.Target, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// Config carries the construction-time parameters for a Handler, mirroring
// the run-time context the resolver is built from.
type Config struct {
	DefaultTimeout time.Duration
	RetryInterval  time.Duration
	EnableIPv6     bool
	Targets        []Target
	Weighted       bool
	Logger         *slog.Logger
}

// Handler sends wire-format queries to a queue of upstream servers,
// isolating targets that time out into a failures list and retrying them
// on a background schedule. It owns a single ephemeral UDP source port for
// its entire lifetime.
type Handler struct {
	conn           *net.UDPConn
	queue          Queue
	defaultTimeout time.Duration
	retryInterval  time.Duration
	enableIPv6     bool
	logger         *slog.Logger

	// sendMu serializes whole send round-trips so a concurrent Send can't
	// interleave with another's fetch/remove and skew the queue cursor.
	sendMu sync.Mutex

	mu       sync.Mutex
	failures []Target

	done     chan struct{}
	closeErr sync.Once
}

// NewHandler binds an ephemeral UDP source port in the 9999-65535 range
// and starts the background health-retry loop.
func NewHandler(cfg Config) (*Handler, error) {
	port := 9999 + rand.Intn(65536-9999)
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, fmt.Errorf("upstream: bind source port: %w", err)
	}

	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 5 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 5 * time.Second
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var q Queue
	if cfg.Weighted {
		q = NewWeightedQueue(cfg.Targets)
	} else {
		q = NewStandardQueue(cfg.Targets)
	}

	h := &Handler{
		conn:           conn,
		queue:          q,
		defaultTimeout: cfg.DefaultTimeout,
		retryInterval:  cfg.RetryInterval,
		enableIPv6:     cfg.EnableIPv6,
		logger:         logger,
		done:           make(chan struct{}),
	}
	go h.retryLoop()
	return h, nil
}

// Send transmits buf to the current queue target, advancing past any
// target that times out and isolating it into the failures list. It
// returns ErrAllTargetsFailed once the whole queue has been exhausted
// without a reply.
func (h *Handler) Send(buf []byte) ([]byte, error) {
	h.sendMu.Lock()
	defer h.sendMu.Unlock()

	attempts := h.queue.Len()
	if attempts == 0 {
		return nil, ErrAllTargetsFailed
	}

	for i := 0; i < attempts; i++ {
		target, ok := h.queue.Fetch()
		if !ok {
			return nil, ErrAllTargetsFailed
		}

		reply, err := h.roundTrip(target.Addr, buf)
		if err == nil {
			return reply, nil
		}
		if !isTimeout(err) {
			return nil, fmt.Errorf("upstream: send to %s: %w", target.Addr, err)
		}

		h.logger.Warn("upstream target timed out", "target", target.Addr, "error", err)
		if failed, ok := h.queue.Remove(); ok {
			h.mu.Lock()
			h.failures = append(h.failures, failed)
			h.mu.Unlock()
			dnsmetrics.UpstreamFailures.WithLabelValues(failed.Addr.String()).Inc()
		}
	}
	return nil, ErrAllTargetsFailed
}

// SendTo iterates addrs directly, skipping IPv6 entries when the handler
// was constructed with EnableIPv6 false, and without touching the
// failures list — it is used for glued/unglued referral follows where the
// address set comes from the response itself, not the standing queue.
func (h *Handler) SendTo(buf []byte, addrs []*net.UDPAddr) ([]byte, error) {
	h.sendMu.Lock()
	defer h.sendMu.Unlock()

	tried := 0
	for _, addr := range addrs {
		if !h.enableIPv6 && addr.IP.To4() == nil {
			continue
		}
		tried++
		reply, err := h.roundTrip(addr, buf)
		if err == nil {
			return reply, nil
		}
		if !isTimeout(err) {
			return nil, fmt.Errorf("upstream: send to %s: %w", addr, err)
		}
		h.logger.Warn("upstream referral target timed out", "target", addr, "error", err)
	}
	if tried == 0 {
		return nil, ErrAllTargetsFailed
	}
	return nil, ErrAllTargetsFailed
}

func (h *Handler) roundTrip(addr *net.UDPAddr, buf []byte) ([]byte, error) {
	deadline := time.Now().Add(h.defaultTimeout)
	if err := h.conn.SetDeadline(deadline); err != nil {
		return nil, err
	}
	if _, err := h.conn.WriteToUDP(buf, addr); err != nil {
		return nil, err
	}

	resp := make([]byte, wire.DefaultMaxPacketBuf)
	n, _, err := h.conn.ReadFromUDP(resp)
	if err != nil {
		return nil, err
	}
	return resp[:n], nil
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// retryLoop probes each failed target on RetryInterval and reinstates any
// that answers, until the handler is closed.
func (h *Handler) retryLoop() {
	ticker := time.NewTicker(h.retryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.retryPass()
		}
	}
}

func (h *Handler) retryPass() {
	h.mu.Lock()
	pending := append([]Target(nil), h.failures...)
	h.mu.Unlock()

	for _, t := range pending {
		if h.probe(t.Addr) {
			h.reinstate(t)
		}
	}
}

func (h *Handler) probe(addr *net.UDPAddr) bool {
	probe := &dnsmsg.Message{
		Header: dnsmsg.Header{
			ID:               uint16(rand.Intn(1 << 16)),
			RecursionDesired: true,
		},
		Questions: []dnsmsg.Question{{Name: ".", QType: dnsmsg.TypeA, QClass: dnsmsg.ClassIN}},
	}
	w := wire.NewWriter(0)
	buf, err := w.WriteMessage(probe)
	if err != nil {
		return false
	}
	h.sendMu.Lock()
	defer h.sendMu.Unlock()
	_, err = h.roundTrip(addr, buf)
	return err == nil
}

func (h *Handler) reinstate(t Target) {
	h.mu.Lock()
	for i, f := range h.failures {
		if f.Addr.String() == t.Addr.String() {
			h.failures = append(h.failures[:i], h.failures[i+1:]...)
			break
		}
	}
	h.mu.Unlock()
	h.queue.Push(t)
	dnsmetrics.UpstreamReinstated.WithLabelValues(t.Addr.String()).Inc()
}

// Close signals the background retry task to terminate and releases the
// handler's source port. It is safe to call more than once.
func (h *Handler) Close() error {
	h.closeErr.Do(func() {
		close(h.done)
	})
	return h.conn.Close()
}
