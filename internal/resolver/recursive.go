package resolver

import (
	"errors"
	"log/slog"
	"net"

	"github.com/alir32a/mydns/internal/dnscache"
	"github.com/alir32a/mydns/internal/dnsmetrics"
	"github.com/alir32a/mydns/internal/dnsmsg"
	"github.com/alir32a/mydns/internal/upstream"
	"github.com/alir32a/mydns/internal/wire"
)

// ErrMaxDepthExceeded is returned once a recursive lookup chain has
// followed CNAMEs and referrals past MaxRecursionDepth self-recursions.
var ErrMaxDepthExceeded = errors.New("resolver: max recursion depth exceeded")

const defaultMaxRecursionDepth = 10

// Recursive walks the public DNS hierarchy for each question, following
// CNAME chains and NS referrals until an answer or a terminal NXDOMAIN is
// reached, or the depth limit is hit.
type Recursive struct {
	Handler       *upstream.Handler
	Cache         *dnscache.Cache
	MaxDepth      int
	MaxPacketBuf  int
	MaxParseJumps int
	Logger        *slog.Logger
}

// NewRecursive returns a Recursive resolver with defaults filled in for
// any zero-valued field.
func NewRecursive(h *upstream.Handler, c *dnscache.Cache) *Recursive {
	return &Recursive{
		Handler:       h,
		Cache:         c,
		MaxDepth:      defaultMaxRecursionDepth,
		MaxPacketBuf:  wire.DefaultMaxPacketBuf,
		MaxParseJumps: wire.DefaultMaxParseJumps,
		Logger:        slog.Default(),
	}
}

// Resolve implements Resolver.
func (r *Recursive) Resolve(query []byte) []byte {
	id := extractID(query)
	q, err := decodeReply(query, r.MaxPacketBuf, r.MaxParseJumps)
	if err != nil {
		return formerr(id, false)
	}

	reply := &dnsmsg.Message{
		Header: dnsmsg.Header{
			ID:                 q.Header.ID,
			Response:           true,
			RecursionAvailable: true,
			RecursionDesired:   q.Header.RecursionDesired,
		},
		Questions: q.Questions,
	}

	if len(q.Questions) == 0 {
		reply.Header.Rcode = dnsmsg.RcodeFormErr
		out, _ := wire.NewWriter(r.MaxPacketBuf).WriteMessage(reply)
		return out
	}

	for _, question := range q.Questions {
		sub, depth, err := r.recursiveLookup(question, nil, 0)
		dnsmetrics.RecursionDepth.Observe(float64(depth))
		if err != nil {
			r.Logger.Warn("recursive lookup failed", "name", question.Name, "error", err)
			return servfail(q.Header.ID, q.Questions)
		}
		reply.Answers = append(reply.Answers, sub.Answers...)
		reply.Authorities = append(reply.Authorities, sub.Authorities...)
		reply.Resources = append(reply.Resources, sub.Resources...)
		reply.Header.Rcode = sub.Header.Rcode
	}

	out, err := wire.NewWriter(r.MaxPacketBuf).WriteMessage(reply)
	if err != nil {
		return servfail(q.Header.ID, q.Questions)
	}
	return out
}

// recursiveLookup returns the depth reached alongside its answer so Resolve
// can report how many self-recursions the chain needed.
func (r *Recursive) recursiveLookup(q dnsmsg.Question, addrs []*net.UDPAddr, depth int) (*dnsmsg.Message, int, error) {
	if depth >= r.MaxDepth {
		return nil, depth, ErrMaxDepthExceeded
	}

	resp, err := r.lookup(q, addrs)
	if err != nil {
		return nil, depth, err
	}
	if resolved(resp, q) {
		return resp, depth, nil
	}

	if pairs := cnamePairs(resp); len(pairs) > 0 {
		if target, ok := chaseCNAME(q.Name, pairs); ok {
			return r.recursiveLookup(dnsmsg.Question{Name: target, QType: q.QType, QClass: q.QClass}, nil, depth+1)
		}
	}

	if glued := gluedAddrs(resp); len(glued) > 0 {
		return r.recursiveLookup(q, glued, depth+1)
	}

	if nsAddrs := r.resolveNSAddrs(resp); len(nsAddrs) > 0 {
		return r.recursiveLookup(q, nsAddrs, depth+1)
	}

	return resp, depth, nil
}

// resolveNSAddrs resolves the A record of each unglued NS found in resp's
// authority section, each such lookup itself starting fresh at depth 0.
func (r *Recursive) resolveNSAddrs(resp *dnsmsg.Message) []*net.UDPAddr {
	var addrs []*net.UDPAddr
	for _, name := range nsNames(resp) {
		nsResp, _, err := r.recursiveLookup(dnsmsg.Question{Name: name, QType: dnsmsg.TypeA, QClass: dnsmsg.ClassIN}, nil, 0)
		if err != nil {
			continue
		}
		addrs = append(addrs, recordsToAddrs(nsResp.Answers)...)
	}
	return addrs
}

// lookup performs the cache-then-wire step shared with the forwarding
// resolver: a cache hit short-circuits the wire round trip entirely.
func (r *Recursive) lookup(q dnsmsg.Question, addrs []*net.UDPAddr) (*dnsmsg.Message, error) {
	if recs, ok := r.Cache.Get(q.Name); ok {
		return &dnsmsg.Message{
			Header: dnsmsg.Header{
				Response:           true,
				RecursionAvailable: true,
				ANCount:            uint16(len(recs)),
			},
			Answers: recs,
		}, nil
	}

	buf := newQueryMessage(q)

	var replyBuf []byte
	var err error
	if addrs != nil {
		replyBuf, err = r.Handler.SendTo(buf, addrs)
	} else {
		replyBuf, err = r.Handler.Send(buf)
	}
	if err != nil {
		return nil, err
	}

	resp, err := decodeReply(replyBuf, r.MaxPacketBuf, r.MaxParseJumps)
	if err != nil {
		return nil, err
	}

	if len(resp.Answers) > 0 {
		r.Cache.Set(q.Name, resp.Answers)
	}
	return resp, nil
}
