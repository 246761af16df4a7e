package wire

import (
	"github.com/alir32a/mydns/internal/dnsmsg"
)

// Reader decodes a single DNS message from a byte slice of at most
// maxPacketBuf bytes.
type Reader struct {
	buf      buffer
	maxJumps int
}

// NewReader wraps data for decoding. maxPacketBuf bounds how many bytes of
// data are considered in range (DefaultMaxPacketBuf if 0); maxJumps bounds
// compression-pointer chasing (DefaultMaxParseJumps if 0).
func NewReader(data []byte, maxPacketBuf, maxJumps int) *Reader {
	if maxPacketBuf <= 0 {
		maxPacketBuf = DefaultMaxPacketBuf
	}
	if maxJumps <= 0 {
		maxJumps = DefaultMaxParseJumps
	}
	size := len(data)
	if size > maxPacketBuf {
		size = maxPacketBuf
	}
	return &Reader{
		buf:      buffer{Buf: data, Pos: 0, Size: size},
		maxJumps: maxJumps,
	}
}

// ReadMessage parses the header and all four record sequences.
func (r *Reader) ReadMessage() (*dnsmsg.Message, error) {
	msg := &dnsmsg.Message{}

	h, err := r.readHeader()
	if err != nil {
		return nil, err
	}
	msg.Header = h

	for i := 0; i < int(h.QDCount); i++ {
		q, err := r.readQuestion()
		if err != nil {
			return nil, err
		}
		msg.Questions = append(msg.Questions, q)
	}
	for i := 0; i < int(h.ANCount); i++ {
		rec, err := r.readRecord()
		if err != nil {
			return nil, err
		}
		msg.Answers = append(msg.Answers, rec)
	}
	for i := 0; i < int(h.NSCount); i++ {
		rec, err := r.readRecord()
		if err != nil {
			return nil, err
		}
		msg.Authorities = append(msg.Authorities, rec)
	}
	for i := 0; i < int(h.ARCount); i++ {
		rec, err := r.readRecord()
		if err != nil {
			return nil, err
		}
		msg.Resources = append(msg.Resources, rec)
	}

	return msg, nil
}

func (r *Reader) readHeader() (dnsmsg.Header, error) {
	var h dnsmsg.Header

	id, err := r.buf.readU16()
	if err != nil {
		return h, err
	}
	h.ID = id

	b2, err := r.buf.readU8()
	if err != nil {
		return h, err
	}
	b3, err := r.buf.readU8()
	if err != nil {
		return h, err
	}

	h.RecursionDesired = b2&(1<<0) != 0
	h.Truncated = b2&(1<<1) != 0
	h.Authoritative = b2&(1<<2) != 0
	h.Opcode = (b2 >> 3) & 0x0F
	h.Response = b2&(1<<7) != 0

	h.Rcode = dnsmsg.Rcode(b3 & 0x0F)
	h.Z = (b3 >> 4) & 0x07
	h.RecursionAvailable = b3&(1<<7) != 0

	if h.QDCount, err = r.buf.readU16(); err != nil {
		return h, err
	}
	if h.ANCount, err = r.buf.readU16(); err != nil {
		return h, err
	}
	if h.NSCount, err = r.buf.readU16(); err != nil {
		return h, err
	}
	if h.ARCount, err = r.buf.readU16(); err != nil {
		return h, err
	}
	return h, nil
}

func (r *Reader) readQuestion() (dnsmsg.Question, error) {
	var q dnsmsg.Question
	name, err := r.buf.readName(r.maxJumps)
	if err != nil {
		return q, err
	}
	q.Name = name

	qtype, err := r.buf.readU16()
	if err != nil {
		return q, err
	}
	q.QType = dnsmsg.ParseType(qtype)

	qclass, err := r.buf.readU16()
	if err != nil {
		return q, err
	}
	q.QClass = dnsmsg.Class(qclass)
	return q, nil
}

func (r *Reader) readRecord() (dnsmsg.Record, error) {
	var rec dnsmsg.Record

	name, err := r.buf.readName(r.maxJumps)
	if err != nil {
		return rec, err
	}
	rec.Name = name

	typeCode, err := r.buf.readU16()
	if err != nil {
		return rec, err
	}
	rec.Type = dnsmsg.ParseType(typeCode)

	class, err := r.buf.readU16()
	if err != nil {
		return rec, err
	}
	rec.Class = dnsmsg.Class(class)

	ttl, err := r.buf.readU32()
	if err != nil {
		return rec, err
	}
	rec.TTL = ttl

	rdlength, err := r.buf.readU16()
	if err != nil {
		return rec, err
	}

	data, err := r.readRData(rec.Type, int(rdlength))
	if err != nil {
		return rec, err
	}
	rec.Data = data
	return rec, nil
}

func (r *Reader) readRData(t dnsmsg.Type, rdlength int) (dnsmsg.RecordData, error) {
	switch t {
	case dnsmsg.TypeA:
		raw, err := r.buf.readRange(r.buf.Pos, 4)
		if err != nil {
			return nil, err
		}
		if err := r.buf.step(4); err != nil {
			return nil, err
		}
		var d dnsmsg.AData
		copy(d.IP[:], raw)
		return d, nil
	case dnsmsg.TypeAAAA:
		raw, err := r.buf.readRange(r.buf.Pos, 16)
		if err != nil {
			return nil, err
		}
		if err := r.buf.step(16); err != nil {
			return nil, err
		}
		var d dnsmsg.AAAAData
		copy(d.IP[:], raw)
		return d, nil
	case dnsmsg.TypeNS:
		host, err := r.buf.readName(r.maxJumps)
		return dnsmsg.NSData{Host: host}, err
	case dnsmsg.TypeCNAME:
		host, err := r.buf.readName(r.maxJumps)
		return dnsmsg.CNAMEData{Host: host}, err
	case dnsmsg.TypePTR:
		host, err := r.buf.readName(r.maxJumps)
		return dnsmsg.PTRData{Host: host}, err
	case dnsmsg.TypeTXT:
		text, err := r.buf.readCharString()
		return dnsmsg.TXTData{Text: text}, err
	case dnsmsg.TypeMX:
		pref, err := r.buf.readU16()
		if err != nil {
			return nil, err
		}
		exchange, err := r.buf.readName(r.maxJumps)
		return dnsmsg.MXData{Preference: pref, Exchange: exchange}, err
	case dnsmsg.TypeSOA:
		mname, err := r.buf.readName(r.maxJumps)
		if err != nil {
			return nil, err
		}
		rname, err := r.buf.readName(r.maxJumps)
		if err != nil {
			return nil, err
		}
		soa := &dnsmsg.SOAData{MName: mname, RName: rname}
		if soa.Serial, err = r.buf.readU32(); err != nil {
			return nil, err
		}
		if soa.Refresh, err = r.buf.readU32(); err != nil {
			return nil, err
		}
		if soa.Retry, err = r.buf.readU32(); err != nil {
			return nil, err
		}
		if soa.Expire, err = r.buf.readU32(); err != nil {
			return nil, err
		}
		if soa.Minimum, err = r.buf.readU32(); err != nil {
			return nil, err
		}
		return soa, nil
	case dnsmsg.TypeHINFO:
		cpu, err := r.buf.readCharString()
		if err != nil {
			return nil, err
		}
		os, err := r.buf.readCharString()
		if err != nil {
			return nil, err
		}
		return dnsmsg.HINFOData{CPU: cpu, OS: os}, nil
	case dnsmsg.TypeSRV:
		var d dnsmsg.SRVData
		var err error
		if d.Priority, err = r.buf.readU16(); err != nil {
			return nil, err
		}
		if d.Weight, err = r.buf.readU16(); err != nil {
			return nil, err
		}
		if d.Port, err = r.buf.readU16(); err != nil {
			return nil, err
		}
		d.Host, err = r.buf.readName(r.maxJumps)
		return d, err
	default:
		if err := r.buf.step(rdlength); err != nil {
			return nil, err
		}
		return dnsmsg.UnknownData{Len: uint16(rdlength)}, nil
	}
}

// Writer encodes a DNS message into at most maxPacketBuf bytes, compressing
// repeated domain-name suffixes as it goes.
type Writer struct {
	buf   buffer
	names map[string]int
}

// NewWriter allocates a writer bounded to maxPacketBuf bytes
// (DefaultMaxPacketBuf if 0).
func NewWriter(maxPacketBuf int) *Writer {
	if maxPacketBuf <= 0 {
		maxPacketBuf = DefaultMaxPacketBuf
	}
	return &Writer{
		buf:   buffer{Buf: make([]byte, maxPacketBuf), Pos: 0, Size: maxPacketBuf},
		names: make(map[string]int),
	}
}

// WriteMessage serialises m, syncing its header counts to the slice
// lengths first, and returns the encoded bytes.
func (w *Writer) WriteMessage(m *dnsmsg.Message) ([]byte, error) {
	m.SyncCounts()

	if err := w.writeHeader(m.Header); err != nil {
		return nil, err
	}
	for _, q := range m.Questions {
		if err := w.writeQuestion(q); err != nil {
			return nil, err
		}
	}
	for _, rec := range m.Answers {
		if err := w.writeRecord(rec); err != nil {
			return nil, err
		}
	}
	for _, rec := range m.Authorities {
		if err := w.writeRecord(rec); err != nil {
			return nil, err
		}
	}
	for _, rec := range m.Resources {
		if err := w.writeRecord(rec); err != nil {
			return nil, err
		}
	}

	return w.buf.Buf[:w.buf.Pos], nil
}

func (w *Writer) writeHeader(h dnsmsg.Header) error {
	if err := w.buf.writeU16(h.ID); err != nil {
		return err
	}

	var b2 byte
	if h.RecursionDesired {
		b2 |= 1 << 0
	}
	if h.Truncated {
		b2 |= 1 << 1
	}
	if h.Authoritative {
		b2 |= 1 << 2
	}
	b2 |= (h.Opcode & 0x0F) << 3
	if h.Response {
		b2 |= 1 << 7
	}

	b3 := byte(h.Rcode) & 0x0F
	b3 |= (h.Z & 0x07) << 4
	if h.RecursionAvailable {
		b3 |= 1 << 7
	}

	if err := w.buf.writeU8(b2); err != nil {
		return err
	}
	if err := w.buf.writeU8(b3); err != nil {
		return err
	}

	if err := w.buf.writeU16(h.QDCount); err != nil {
		return err
	}
	if err := w.buf.writeU16(h.ANCount); err != nil {
		return err
	}
	if err := w.buf.writeU16(h.NSCount); err != nil {
		return err
	}
	return w.buf.writeU16(h.ARCount)
}

func (w *Writer) writeQuestion(q dnsmsg.Question) error {
	if err := w.buf.writeName(q.Name, w.names); err != nil {
		return err
	}
	if err := w.buf.writeU16(uint16(q.QType)); err != nil {
		return err
	}
	class := q.QClass
	if class == 0 {
		class = dnsmsg.ClassIN
	}
	return w.buf.writeU16(uint16(class))
}

func (w *Writer) writeRecord(rec dnsmsg.Record) error {
	if err := w.buf.writeName(rec.Name, w.names); err != nil {
		return err
	}
	if err := w.buf.writeU16(uint16(rec.Type)); err != nil {
		return err
	}
	class := rec.Class
	if class == 0 {
		class = dnsmsg.ClassIN
	}
	if err := w.buf.writeU16(uint16(class)); err != nil {
		return err
	}
	if err := w.buf.writeU32(rec.TTL); err != nil {
		return err
	}
	return w.writeRDataWithLength(rec.Data)
}

// writeRDataWithLength reserves a 2-byte rdlength slot, writes rdata, then
// backpatches the length once the encoded size is known.
func (w *Writer) writeRDataWithLength(data dnsmsg.RecordData) error {
	lenPos := w.buf.Pos
	if err := w.buf.writeU16(0); err != nil {
		return err
	}
	start := w.buf.Pos

	if err := w.writeRData(data); err != nil {
		return err
	}

	end := w.buf.Pos
	savedPos := w.buf.Pos
	w.buf.Pos = lenPos
	if err := w.buf.writeU16(uint16(end - start)); err != nil {
		return err
	}
	w.buf.Pos = savedPos
	return nil
}

func (w *Writer) writeRData(data dnsmsg.RecordData) error {
	switch d := data.(type) {
	case dnsmsg.AData:
		return w.buf.writeBytes(d.IP[:])
	case dnsmsg.AAAAData:
		return w.buf.writeBytes(d.IP[:])
	case dnsmsg.NSData:
		return w.buf.writeName(d.Host, w.names)
	case dnsmsg.CNAMEData:
		return w.buf.writeName(d.Host, w.names)
	case dnsmsg.PTRData:
		return w.buf.writeName(d.Host, w.names)
	case dnsmsg.TXTData:
		return w.buf.writeString(d.Text)
	case dnsmsg.MXData:
		if err := w.buf.writeU16(d.Preference); err != nil {
			return err
		}
		return w.buf.writeName(d.Exchange, w.names)
	case *dnsmsg.SOAData:
		if err := w.buf.writeName(d.MName, w.names); err != nil {
			return err
		}
		if err := w.buf.writeName(d.RName, w.names); err != nil {
			return err
		}
		if err := w.buf.writeU32(d.Serial); err != nil {
			return err
		}
		if err := w.buf.writeU32(d.Refresh); err != nil {
			return err
		}
		if err := w.buf.writeU32(d.Retry); err != nil {
			return err
		}
		if err := w.buf.writeU32(d.Expire); err != nil {
			return err
		}
		return w.buf.writeU32(d.Minimum)
	case dnsmsg.HINFOData:
		if err := w.buf.writeString(d.CPU); err != nil {
			return err
		}
		return w.buf.writeString(d.OS)
	case dnsmsg.SRVData:
		if err := w.buf.writeU16(d.Priority); err != nil {
			return err
		}
		if err := w.buf.writeU16(d.Weight); err != nil {
			return err
		}
		if err := w.buf.writeU16(d.Port); err != nil {
			return err
		}
		return w.buf.writeName(d.Host, w.names)
	case dnsmsg.UnknownData:
		return w.buf.writeBytes(make([]byte, d.Len))
	default:
		return nil
	}
}
