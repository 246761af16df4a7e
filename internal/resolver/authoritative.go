package resolver

import (
	"context"
	"log/slog"

	"github.com/alir32a/mydns/internal/dnscache"
	"github.com/alir32a/mydns/internal/dnsmetrics"
	"github.com/alir32a/mydns/internal/dnsmsg"
	"github.com/alir32a/mydns/internal/wire"
	"github.com/alir32a/mydns/internal/zonefile"
)

// ZoneStore is an optional supplementary zone backend consulted alongside
// on-disk zone files — its only implementation is
// internal/zonestore/postgres.Store, kept behind this interface so the
// resolver package never imports database/sql.
type ZoneStore interface {
	LoadAll(ctx context.Context) ([]*zonefile.Zone, error)
}

// Authoritative answers strictly from zone data loaded at construction
// time; the cache doubles as zone storage, so there is no wire fan-out.
type Authoritative struct {
	Cache         *dnscache.Cache
	MaxPacketBuf  int
	MaxParseJumps int
	Logger        *slog.Logger

	zonesDir string
	nested   bool
	store    ZoneStore
}

// NewAuthoritative loads every zone file under zonesDir (recursively when
// nested is set), plus every zone in store when non-nil, and seeds the
// cache with each zone's full record set keyed by origin and with each
// owner's records keyed by owner name.
func NewAuthoritative(zonesDir string, nested bool, store ZoneStore, cache *dnscache.Cache) (*Authoritative, error) {
	a := &Authoritative{
		Cache:         cache,
		MaxPacketBuf:  wire.DefaultMaxPacketBuf,
		MaxParseJumps: wire.DefaultMaxParseJumps,
		Logger:        slog.Default(),
		zonesDir:      zonesDir,
		nested:        nested,
		store:         store,
	}
	if err := a.Reload(); err != nil {
		return nil, err
	}
	return a, nil
}

// Reload re-reads zone files and, if configured, the zone store, and
// re-seeds the cache. It is exposed to the admin API's reload endpoint so
// an operator can pick up edited zone files without restarting the
// process.
func (a *Authoritative) Reload() error {
	var zones []*zonefile.Zone
	if a.zonesDir != "" {
		fileZones, err := zonefile.LoadDir(a.zonesDir, a.nested)
		if err != nil {
			return err
		}
		zones = append(zones, fileZones...)
	}
	if a.store != nil {
		storeZones, err := a.store.LoadAll(context.Background())
		if err != nil {
			return err
		}
		zones = append(zones, storeZones...)
	}
	for _, z := range zones {
		byOwner := make(map[string][]dnsmsg.Record)
		for _, rec := range z.Records {
			byOwner[rec.Name] = append(byOwner[rec.Name], rec)
		}
		for owner, recs := range byOwner {
			if owner == z.Origin {
				continue
			}
			a.Cache.Set(owner, recs)
		}
		// The origin key holds the whole zone set, so an origin query sees
		// the zone's NS delegations alongside its apex records.
		a.Cache.Set(z.Origin, z.Records)
		dnsmetrics.ZoneRecords.WithLabelValues(z.Origin).Set(float64(len(z.Records)))
	}
	return nil
}

func (a *Authoritative) Resolve(query []byte) []byte {
	id := extractID(query)
	q, err := decodeReply(query, a.MaxPacketBuf, a.MaxParseJumps)
	if err != nil {
		return formerr(id, true)
	}

	reply := &dnsmsg.Message{
		Header: dnsmsg.Header{
			ID:            q.Header.ID,
			Response:      true,
			Authoritative: true,
			Rcode:         dnsmsg.RcodeNoError,
		},
		Questions: q.Questions,
	}

	if len(q.Questions) == 0 {
		reply.Header.Rcode = dnsmsg.RcodeFormErr
		out, _ := wire.NewWriter(a.MaxPacketBuf).WriteMessage(reply)
		return out
	}

	for _, question := range q.Questions {
		a.answerQuestion(reply, question)
	}

	if len(reply.Authorities) == 0 && len(reply.Answers) == 0 {
		reply.Header.Rcode = dnsmsg.RcodeNxDomain
	}

	out, err := wire.NewWriter(a.MaxPacketBuf).WriteMessage(reply)
	if err != nil {
		return servfail(q.Header.ID, q.Questions)
	}
	return out
}

func (a *Authoritative) answerQuestion(reply *dnsmsg.Message, q dnsmsg.Question) {
	recs, ok := a.Cache.Get(q.Name)
	if !ok {
		return
	}

	var soa *dnsmsg.Record
	sawAnswer := false
	for _, rec := range recs {
		rec := rec
		switch rec.Type {
		case dnsmsg.TypeNS:
			reply.Authorities = append(reply.Authorities, rec)
			if ns, ok := rec.Data.(dnsmsg.NSData); ok {
				if glue, ok := a.Cache.Get(ns.Host); ok {
					reply.Resources = append(reply.Resources, glue...)
				}
			}
		case dnsmsg.TypeSOA:
			soa = &rec
		default:
			reply.Answers = append(reply.Answers, rec)
			sawAnswer = true
		}
	}

	if !sawAnswer && soa != nil {
		reply.Answers = append(reply.Answers, *soa)
	}
}
