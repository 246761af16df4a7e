package resolver

import (
	"log/slog"

	"github.com/alir32a/mydns/internal/dnscache"
	"github.com/alir32a/mydns/internal/dnsmsg"
	"github.com/alir32a/mydns/internal/upstream"
	"github.com/alir32a/mydns/internal/wire"
)

// Forwarding relays each question to the configured upstream handler
// exactly once, reading and writing the shared cache the same way the
// recursive resolver does, but never chasing CNAMEs or referrals itself —
// that's left to the upstream it forwards to.
type Forwarding struct {
	Handler       *upstream.Handler
	Cache         *dnscache.Cache
	MaxPacketBuf  int
	MaxParseJumps int
	Logger        *slog.Logger
}

func NewForwarding(h *upstream.Handler, c *dnscache.Cache) *Forwarding {
	return &Forwarding{
		Handler:       h,
		Cache:         c,
		MaxPacketBuf:  wire.DefaultMaxPacketBuf,
		MaxParseJumps: wire.DefaultMaxParseJumps,
		Logger:        slog.Default(),
	}
}

func (f *Forwarding) Resolve(query []byte) []byte {
	id := extractID(query)
	q, err := decodeReply(query, f.MaxPacketBuf, f.MaxParseJumps)
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
		out, _ := wire.NewWriter(f.MaxPacketBuf).WriteMessage(reply)
		return out
	}

	for _, question := range q.Questions {
		sub, err := f.lookup(question)
		if err != nil {
			f.Logger.Warn("forwarding lookup failed", "name", question.Name, "error", err)
			return servfail(q.Header.ID, q.Questions)
		}
		reply.Answers = append(reply.Answers, sub.Answers...)
		reply.Authorities = append(reply.Authorities, sub.Authorities...)
		reply.Resources = append(reply.Resources, sub.Resources...)
		reply.Header.Rcode = sub.Header.Rcode
	}

	out, err := wire.NewWriter(f.MaxPacketBuf).WriteMessage(reply)
	if err != nil {
		return servfail(q.Header.ID, q.Questions)
	}
	return out
}

func (f *Forwarding) lookup(q dnsmsg.Question) (*dnsmsg.Message, error) {
	if recs, ok := f.Cache.Get(q.Name); ok {
		return &dnsmsg.Message{
			Header: dnsmsg.Header{Response: true, RecursionAvailable: true, ANCount: uint16(len(recs))},
			Answers: recs,
		}, nil
	}

	buf := newQueryMessage(q)
	replyBuf, err := f.Handler.Send(buf)
	if err != nil {
		return nil, err
	}

	resp, err := decodeReply(replyBuf, f.MaxPacketBuf, f.MaxParseJumps)
	if err != nil {
		return nil, err
	}
	if len(resp.Answers) > 0 {
		f.Cache.Set(q.Name, resp.Answers)
	}
	return resp, nil
}
