// Package listener implements the thin UDP datagram shell: bind a socket,
// read datagrams into a fixed buffer, and hand each one to a resolver on
// its own goroutine.
package listener

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/alir32a/mydns/internal/dnsmetrics"
	"github.com/alir32a/mydns/internal/dnsmsg"
	"github.com/alir32a/mydns/internal/resolver"
	"github.com/alir32a/mydns/internal/wire"
)

// Listener binds host:port and dispatches one goroutine per received
// datagram to resolver.Resolve, writing the reply back to the source
// address. It never terminates on a per-query error; only a bind failure
// is fatal.
type Listener struct {
	Host         string
	Port         int
	MaxPacketBuf int
	Resolver     resolver.Resolver
	Logger       *slog.Logger

	// Mode labels mydns_queries_total/mydns_query_duration_seconds with
	// which resolver strategy is in front of this listener, e.g.
	// "recursive", "forwarding" or "authoritative".
	Mode string

	// ReusePort, when set, enables SO_REUSEPORT so Sockets independent
	// read loops can share the same port.
	ReusePort bool
	Sockets   int
}

// ErrBind wraps a failure to bind the listening socket; the caller is
// expected to exit with a non-zero status on this error.
type ErrBind struct {
	Addr string
	Err  error
}

func (e *ErrBind) Error() string {
	return fmt.Sprintf("listener: bind %s: %v", e.Addr, e.Err)
}

func (e *ErrBind) Unwrap() error { return e.Err }

// Run binds the configured socket(s) and serves until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxBuf := l.MaxPacketBuf
	if maxBuf <= 0 {
		maxBuf = wire.DefaultMaxPacketBuf
	}
	sockets := l.Sockets
	if sockets <= 0 {
		sockets = 1
	}

	addr := net.JoinHostPort(l.Host, fmt.Sprintf("%d", l.Port))

	lc := net.ListenConfig{}
	if l.ReusePort {
		lc.Control = func(_, _ string, c syscall.RawConn) error {
			var ctrlErr error
			err := c.Control(func(fd uintptr) {
				ctrlErr = setReusePort(fd)
			})
			if err != nil {
				return err
			}
			return ctrlErr
		}
	}

	conns := make([]*net.UDPConn, 0, sockets)
	for i := 0; i < sockets; i++ {
		pc, err := lc.ListenPacket(ctx, "udp", addr)
		if err != nil {
			for _, c := range conns {
				c.Close()
			}
			return &ErrBind{Addr: addr, Err: err}
		}
		conns = append(conns, pc.(*net.UDPConn))
	}

	var wg sync.WaitGroup
	for i, conn := range conns {
		wg.Add(1)
		go func(id int, conn *net.UDPConn) {
			defer wg.Done()
			l.serve(ctx, conn, maxBuf, logger)
		}(i, conn)
	}

	logger.Info("listener started", "addr", addr, "sockets", sockets, "reuseport", l.ReusePort)
	<-ctx.Done()
	for _, c := range conns {
		c.Close()
	}
	wg.Wait()
	return nil
}

func (l *Listener) serve(ctx context.Context, conn *net.UDPConn, maxBuf int, logger *slog.Logger) {
	for {
		buf := make([]byte, maxBuf)
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("datagram read failed", "error", err)
			continue
		}

		data := buf[:n]
		go l.handle(conn, addr, data, logger)
	}
}

func (l *Listener) handle(conn *net.UDPConn, addr *net.UDPAddr, data []byte, logger *slog.Logger) {
	dnsmetrics.ActiveGoroutines.Inc()
	defer dnsmetrics.ActiveGoroutines.Dec()

	start := time.Now()
	reply := l.Resolver.Resolve(data)
	l.observe(start, reply)

	if reply == nil {
		logger.Warn("resolver produced no reply", "source", addr)
		return
	}
	if _, err := conn.WriteToUDP(reply, addr); err != nil {
		logger.Warn("datagram write failed", "source", addr, "error", err)
	}
}

// observe records per-query metrics by peeking the reply's header and
// first question, the same wire-format decode every resolver already does
// internally.
func (l *Listener) observe(start time.Time, reply []byte) {
	mode := l.Mode
	if mode == "" {
		mode = "unknown"
	}
	dnsmetrics.QueryDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())

	qtype := "unknown"
	rcode := strconv.Itoa(int(dnsmsg.RcodeServFail))
	if msg, err := wire.NewReader(reply, 0, 0).ReadMessage(); err == nil {
		rcode = strconv.Itoa(int(msg.Header.Rcode))
		if len(msg.Questions) > 0 {
			qtype = msg.Questions[0].QType.String()
		}
	}
	dnsmetrics.QueriesTotal.WithLabelValues(mode, qtype, rcode).Inc()
}
