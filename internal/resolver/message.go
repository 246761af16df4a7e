// Package resolver implements the three query-answering strategies this
// server supports — recursive, forwarding and authoritative — each
// translating a wire-format query into a wire-format response using the
// cache, the upstream handler, or zone storage.
package resolver

import (
	"math/rand"
	"net"

	"github.com/alir32a/mydns/internal/dnsmsg"
	"github.com/alir32a/mydns/internal/wire"
)

// Resolver answers one wire-format query with a wire-format response. The
// listener shell depends on nothing beyond this capability, so recursive,
// forwarding and authoritative variants are interchangeable behind it.
type Resolver interface {
	Resolve(query []byte) []byte
}

func extractID(raw []byte) uint16 {
	if len(raw) < 2 {
		return 0
	}
	return uint16(raw[0])<<8 | uint16(raw[1])
}

// formerr builds the minimal FORMERR reply used whenever a query can't
// even be parsed. A query that parses with zero questions gets its FORMERR
// reply from the resolver's own reply skeleton instead.
func formerr(id uint16, authoritative bool) []byte {
	msg := &dnsmsg.Message{
		Header: dnsmsg.Header{
			ID:                 id,
			Response:           true,
			Authoritative:      authoritative,
			RecursionAvailable: !authoritative,
			Rcode:              dnsmsg.RcodeFormErr,
		},
	}
	out, err := wire.NewWriter(0).WriteMessage(msg)
	if err != nil {
		// A header-only message always fits; this path is unreachable.
		return nil
	}
	return out
}

func servfail(id uint16, questions []dnsmsg.Question) []byte {
	msg := &dnsmsg.Message{
		Header: dnsmsg.Header{
			ID:                 id,
			Response:           true,
			RecursionAvailable: true,
			Rcode:              dnsmsg.RcodeServFail,
		},
		Questions: questions,
	}
	out, err := wire.NewWriter(0).WriteMessage(msg)
	if err != nil {
		return nil
	}
	return out
}

func newQueryMessage(q dnsmsg.Question) []byte {
	msg := &dnsmsg.Message{
		Header: dnsmsg.Header{
			ID:               uint16(rand.Intn(1 << 16)),
			RecursionDesired: true,
		},
		Questions: []dnsmsg.Question{q},
	}
	out, _ := wire.NewWriter(0).WriteMessage(msg)
	return out
}

// resolved reports whether resp already answers q: an empty answer section
// never does; otherwise an NXDOMAIN is terminal, and any other response
// must contain at least one answer of the queried type.
func resolved(resp *dnsmsg.Message, q dnsmsg.Question) bool {
	if len(resp.Answers) == 0 {
		return false
	}
	if resp.Header.Rcode == dnsmsg.RcodeNxDomain {
		return true
	}
	for _, a := range resp.Answers {
		if a.Type == q.QType {
			return true
		}
	}
	return false
}

func cnamePairs(resp *dnsmsg.Message) map[string]string {
	pairs := make(map[string]string)
	for _, rec := range append(append([]dnsmsg.Record{}, resp.Answers...), resp.Resources...) {
		if rec.Type != dnsmsg.TypeCNAME {
			continue
		}
		if c, ok := rec.Data.(dnsmsg.CNAMEData); ok {
			pairs[rec.Name] = c.Host
		}
	}
	return pairs
}

// chaseCNAME walks the owner->target map starting at name, bounded by the
// number of pairs so a cycle can't spin forever. It reports the final
// target reached, if the chain moved at all.
func chaseCNAME(name string, pairs map[string]string) (string, bool) {
	cur := name
	target := ""
	found := false
	for i := 0; i < len(pairs); i++ {
		t, ok := pairs[cur]
		if !ok {
			break
		}
		target = t
		found = true
		cur = t
	}
	return target, found
}

func gluedAddrs(resp *dnsmsg.Message) []*net.UDPAddr {
	var addrs []*net.UDPAddr
	for _, rec := range resp.Resources {
		switch d := rec.Data.(type) {
		case dnsmsg.AData:
			ip := net.IPv4(d.IP[0], d.IP[1], d.IP[2], d.IP[3])
			addrs = append(addrs, &net.UDPAddr{IP: ip, Port: 53})
		case dnsmsg.AAAAData:
			ip := make(net.IP, 16)
			copy(ip, d.IP[:])
			addrs = append(addrs, &net.UDPAddr{IP: ip, Port: 53})
		}
	}
	return addrs
}

func nsNames(resp *dnsmsg.Message) []string {
	var names []string
	for _, rec := range resp.Authorities {
		if ns, ok := rec.Data.(dnsmsg.NSData); ok && rec.Type == dnsmsg.TypeNS {
			names = append(names, ns.Host)
		}
	}
	return names
}

func recordsToAddrs(recs []dnsmsg.Record) []*net.UDPAddr {
	var addrs []*net.UDPAddr
	for _, rec := range recs {
		switch d := rec.Data.(type) {
		case dnsmsg.AData:
			addrs = append(addrs, &net.UDPAddr{IP: net.IPv4(d.IP[0], d.IP[1], d.IP[2], d.IP[3]), Port: 53})
		case dnsmsg.AAAAData:
			ip := make(net.IP, 16)
			copy(ip, d.IP[:])
			addrs = append(addrs, &net.UDPAddr{IP: ip, Port: 53})
		}
	}
	return addrs
}

func decodeReply(buf []byte, maxPacketBuf, maxParseJumps int) (*dnsmsg.Message, error) {
	return wire.NewReader(buf, maxPacketBuf, maxParseJumps).ReadMessage()
}
