// Package dnsmsg holds the in-memory representation of an RFC 1035 DNS
// message: header, questions, records and their typed payloads. It has no
// knowledge of the wire format — that lives in internal/wire.
package dnsmsg

import "fmt"

// Type is the 16-bit DNS record/query type field (A, NS, MX, ...).
type Type uint16

const (
	// TypeA is a host address record.
	TypeA Type = 1
	// TypeNS is an authoritative name server record.
	TypeNS Type = 2
	// TypeCNAME is a canonical name alias record.
	TypeCNAME Type = 5
	// TypeSOA marks the start of a zone of authority.
	TypeSOA Type = 6
	// TypePTR is a domain name pointer record.
	TypePTR Type = 12
	// TypeHINFO carries host information.
	TypeHINFO Type = 13
	// TypeMX is a mail exchange record.
	TypeMX Type = 15
	// TypeTXT carries free-form text.
	TypeTXT Type = 16
	// TypeAAAA is an IPv6 host address record.
	TypeAAAA Type = 28
	// TypeSRV is a service location record (RFC 2782).
	TypeSRV Type = 33
	// TypeOPT is the EDNS(0) pseudo-RR (RFC 6891); passed through unchanged.
	TypeOPT Type = 41
	// TypeAXFR requests a full zone transfer.
	TypeAXFR Type = 252
	// TypeMAILB requests mailbox-related records.
	TypeMAILB Type = 253
	// TypeMAILA requests mail agent records.
	TypeMAILA Type = 254
	// TypeASTERISK ("*") matches any type; also the catch-all for unknown codes.
	TypeASTERISK Type = 255
)

// ParseType converts a wire type code to a Type, mapping anything this
// system doesn't recognize to TypeASTERISK rather than failing the parse.
func ParseType(code uint16) Type {
	switch Type(code) {
	case TypeA, TypeNS, TypeCNAME, TypeSOA, TypePTR, TypeHINFO, TypeMX, TypeTXT,
		TypeAAAA, TypeSRV, TypeOPT, TypeAXFR, TypeMAILB, TypeMAILA, TypeASTERISK:
		return Type(code)
	default:
		return TypeASTERISK
	}
}

func (t Type) String() string {
	switch t {
	case TypeA:
		return "A"
	case TypeNS:
		return "NS"
	case TypeCNAME:
		return "CNAME"
	case TypeSOA:
		return "SOA"
	case TypePTR:
		return "PTR"
	case TypeHINFO:
		return "HINFO"
	case TypeMX:
		return "MX"
	case TypeTXT:
		return "TXT"
	case TypeAAAA:
		return "AAAA"
	case TypeSRV:
		return "SRV"
	case TypeOPT:
		return "OPT"
	case TypeAXFR:
		return "AXFR"
	case TypeMAILB:
		return "MAILB"
	case TypeMAILA:
		return "MAILA"
	case TypeASTERISK:
		return "*"
	default:
		return fmt.Sprintf("TYPE%d", uint16(t))
	}
}

// Class is the 16-bit DNS class field. This system only ever resolves IN,
// but CS/CH/HS round-trip through the codec unchanged.
type Class uint16

const (
	// ClassIN is the Internet class, the only one this resolver answers for.
	ClassIN Class = 1
	// ClassCS is the obsolete CSNET class.
	ClassCS Class = 2
	// ClassCH is the Chaos class.
	ClassCH Class = 3
	// ClassHS is the Hesiod class.
	ClassHS Class = 4
	// ClassASTERISK ("*") matches any class.
	ClassASTERISK Class = 255
)

// Rcode is the 4-bit response code carried in the header.
type Rcode uint8

const (
	RcodeNoError  Rcode = 0
	RcodeFormErr  Rcode = 1
	RcodeServFail Rcode = 2
	RcodeNxDomain Rcode = 3
	RcodeNotImp   Rcode = 4
	RcodeRefused  Rcode = 5
	RcodeYxDomain Rcode = 6
	RcodeXRRSet   Rcode = 7
	RcodeNotAuth  Rcode = 8
	RcodeNotZone  Rcode = 9
)

const (
	OpcodeQuery  uint8 = 0
	OpcodeIQuery uint8 = 1
	OpcodeStatus uint8 = 2
)

// Header is the fixed 12-byte section that precedes every DNS message.
type Header struct {
	ID                 uint16
	Response           bool
	Opcode             uint8
	Authoritative      bool
	Truncated          bool
	RecursionDesired   bool
	RecursionAvailable bool
	Z                  uint8 // reserved, 3 bits
	Rcode              Rcode

	QDCount uint16
	ANCount uint16
	NSCount uint16
	ARCount uint16
}

// Question is a single entry of the question section.
type Question struct {
	Name   string
	QType  Type
	QClass Class
}

// Record is a single resource record: a name/type/class/ttl tuple plus a
// type-specific payload (Data). Data's concrete type must agree with Type —
// callers that build records by hand are responsible for the pairing; the
// codec enforces it on both read and write.
type Record struct {
	Name  string
	Type  Type
	Class Class
	TTL   uint32
	Data  RecordData
}

// EffectiveTTL is the TTL the cache uses to decide freshness. Every record
// type uses its own TTL field except SOA, which uses its Expire field — the
// upper bound on how long a secondary may serve stale zone data.
func (r Record) EffectiveTTL() uint32 {
	if soa, ok := r.Data.(*SOAData); ok {
		return soa.Expire
	}
	return r.TTL
}

// RecordData is the sum type of record payloads. Each concrete type
// implements it and reports the Type it is valid for.
type RecordData interface {
	RRType() Type
}

// AData is an A record's IPv4 address.
type AData struct{ IP [4]byte }

func (AData) RRType() Type { return TypeA }

// AAAAData is an AAAA record's IPv6 address.
type AAAAData struct{ IP [16]byte }

func (AAAAData) RRType() Type { return TypeAAAA }

// NSData names an authoritative server for the owner's zone.
type NSData struct{ Host string }

func (NSData) RRType() Type { return TypeNS }

// CNAMEData names the canonical owner of an alias.
type CNAMEData struct{ Host string }

func (CNAMEData) RRType() Type { return TypeCNAME }

// PTRData names the target of a pointer record.
type PTRData struct{ Host string }

func (PTRData) RRType() Type { return TypePTR }

// TXTData holds one <character-string> of free-form text.
type TXTData struct{ Text string }

func (TXTData) RRType() Type { return TypeTXT }

// MXData is a mail exchange preference/host pair.
type MXData struct {
	Preference uint16
	Exchange   string
}

func (MXData) RRType() Type { return TypeMX }

// SOAData describes a zone's start of authority.
type SOAData struct {
	MName   string
	RName   string
	Serial  uint32
	Refresh uint32
	Retry   uint32
	Expire  uint32
	Minimum uint32
}

func (*SOAData) RRType() Type { return TypeSOA }

// HINFOData is a host's CPU/OS description, each a <character-string>.
type HINFOData struct {
	CPU string
	OS  string
}

func (HINFOData) RRType() Type { return TypeHINFO }

// SRVData locates a service (RFC 2782).
type SRVData struct {
	Priority uint16
	Weight   uint16
	Port     uint16
	Host     string
}

func (SRVData) RRType() Type { return TypeSRV }

// UnknownData is a record type this system doesn't interpret; it is kept
// only so the record can be re-serialized as N zero bytes.
type UnknownData struct{ Len uint16 }

func (UnknownData) RRType() Type { return TypeASTERISK }

// Message is a complete DNS message: one header plus four record sequences.
type Message struct {
	Header      Header
	Questions   []Question
	Answers     []Record
	Authorities []Record
	Resources   []Record
}

// SyncCounts recomputes the header's section counts from the slice lengths,
// the way the writer must before serialising.
func (m *Message) SyncCounts() {
	m.Header.QDCount = uint16(len(m.Questions))
	m.Header.ANCount = uint16(len(m.Answers))
	m.Header.NSCount = uint16(len(m.Authorities))
	m.Header.ARCount = uint16(len(m.Resources))
}
