package wire

import (
	"testing"

	"github.com/alir32a/mydns/internal/dnsmsg"
)

func TestHeaderRoundTrip(t *testing.T) {
	msg := &dnsmsg.Message{
		Header: dnsmsg.Header{
			ID:                 0x1234,
			Response:           true,
			RecursionDesired:   true,
			RecursionAvailable: true,
			Rcode:              dnsmsg.RcodeNoError,
		},
	}

	w := NewWriter(0)
	data, err := w.WriteMessage(msg)
	if err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if len(data) != 12 {
		t.Fatalf("expected 12-byte header-only message, got %d", len(data))
	}

	r := NewReader(data, 0, 0)
	got, err := r.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if got.Header.ID != 0x1234 {
		t.Errorf("expected ID 0x1234, got %#x", got.Header.ID)
	}
	if !got.Header.Response || !got.Header.RecursionDesired || !got.Header.RecursionAvailable {
		t.Errorf("expected RD/RA/QR set, got %+v", got.Header)
	}
}

func TestNameRoundTrip(t *testing.T) {
	msg := &dnsmsg.Message{
		Header:    dnsmsg.Header{QDCount: 1},
		Questions: []dnsmsg.Question{{Name: "Example.COM", QType: dnsmsg.TypeA, QClass: dnsmsg.ClassIN}},
	}

	w := NewWriter(0)
	data, err := w.WriteMessage(msg)
	if err != nil {
		t.Fatalf("write failed: %v", err)
	}

	r := NewReader(data, 0, 0)
	got, err := r.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(got.Questions) != 1 {
		t.Fatalf("expected 1 question, got %d", len(got.Questions))
	}
	if got.Questions[0].Name != "example.com" {
		t.Errorf("expected lowercased name, got %q", got.Questions[0].Name)
	}
}

func TestARecordRoundTrip(t *testing.T) {
	msg := &dnsmsg.Message{
		Header: dnsmsg.Header{ANCount: 1},
		Answers: []dnsmsg.Record{{
			Name:  "example.com",
			Type:  dnsmsg.TypeA,
			Class: dnsmsg.ClassIN,
			TTL:   300,
			Data:  dnsmsg.AData{IP: [4]byte{93, 184, 216, 34}},
		}},
	}

	w := NewWriter(0)
	data, err := w.WriteMessage(msg)
	if err != nil {
		t.Fatalf("write failed: %v", err)
	}

	r := NewReader(data, 0, 0)
	got, err := r.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(got.Answers) != 1 {
		t.Fatalf("expected 1 answer, got %d", len(got.Answers))
	}
	a, ok := got.Answers[0].Data.(dnsmsg.AData)
	if !ok {
		t.Fatalf("expected AData, got %T", got.Answers[0].Data)
	}
	if a.IP != [4]byte{93, 184, 216, 34} {
		t.Errorf("unexpected IP: %v", a.IP)
	}
	if got.Answers[0].TTL != 300 {
		t.Errorf("expected TTL 300, got %d", got.Answers[0].TTL)
	}
}

func TestNameCompressionOnWrite(t *testing.T) {
	msg := &dnsmsg.Message{
		Header: dnsmsg.Header{ANCount: 2},
		Answers: []dnsmsg.Record{
			{Name: "x.y.z", Type: dnsmsg.TypeA, Class: dnsmsg.ClassIN, TTL: 60, Data: dnsmsg.AData{IP: [4]byte{1, 1, 1, 1}}},
			{Name: "x.y.z", Type: dnsmsg.TypeA, Class: dnsmsg.ClassIN, TTL: 60, Data: dnsmsg.AData{IP: [4]byte{2, 2, 2, 2}}},
		},
	}

	w := NewWriter(0)
	data, err := w.WriteMessage(msg)
	if err != nil {
		t.Fatalf("write failed: %v", err)
	}

	// The second record's owner name should be a 2-byte pointer (0xC0 high bits).
	r := NewReader(data, 0, 0)
	got, err := r.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if got.Answers[0].Name != got.Answers[1].Name {
		t.Fatalf("expected both owners to decode to the same name")
	}

	// Find the second record's bytes began with a compression pointer: the
	// encoded size must be smaller than writing "x.y.z" twice in full.
	uncompressed := len("x.y.z.") + 1 // two full label sequences would cost this much more
	if len(data) >= 12+2*(len("x.y.z.")+1+10)+uncompressed {
		t.Errorf("expected second owner to be compressed, message too large: %d bytes", len(data))
	}
}

func TestMaxPacketSizeEnforced(t *testing.T) {
	w := NewWriter(16)
	msg := &dnsmsg.Message{
		Header:    dnsmsg.Header{QDCount: 1},
		Questions: []dnsmsg.Question{{Name: "a.very.long.domain.name.example.org", QType: dnsmsg.TypeA, QClass: dnsmsg.ClassIN}},
	}
	if _, err := w.WriteMessage(msg); err == nil {
		t.Fatalf("expected write to fail once it exceeds the 16-byte budget")
	}
}

func TestLabelTooLongFailsOnWrite(t *testing.T) {
	big := make([]byte, 64)
	for i := range big {
		big[i] = 'a'
	}
	w := NewWriter(0)
	msg := &dnsmsg.Message{
		Header:    dnsmsg.Header{QDCount: 1},
		Questions: []dnsmsg.Question{{Name: string(big) + ".com", QType: dnsmsg.TypeA, QClass: dnsmsg.ClassIN}},
	}
	if _, err := w.WriteMessage(msg); err == nil {
		t.Fatalf("expected label >63 bytes to fail on write")
	}
}

func TestCompressionPointerLoopFails(t *testing.T) {
	// Build a buffer where a name at offset 12 points to itself.
	data := make([]byte, 14)
	data[0] = 0
	data[1] = 0 // ID
	// QDCOUNT=1
	data[4] = 0
	data[5] = 1
	// pointer to offset 12 at position 12 itself -> loop
	data[12] = 0xC0
	data[13] = 12

	r := NewReader(data, 14, DefaultMaxParseJumps)
	if _, err := r.ReadMessage(); err == nil {
		t.Fatalf("expected a self-referential pointer to fail")
	}
}

func TestEndOfBufferOnTruncatedMessage(t *testing.T) {
	r := NewReader([]byte{0, 1, 2}, 0, 0)
	if _, err := r.ReadMessage(); err == nil {
		t.Fatalf("expected truncated header to fail")
	}
}

func Test512ByteBoundaryIsInclusive(t *testing.T) {
	data := make([]byte, 512)
	// Minimal valid header, all counts zero.
	r := NewReader(data, 512, 0)
	if _, err := r.ReadMessage(); err != nil {
		t.Fatalf("expected exactly 512 bytes to be a legal message, got %v", err)
	}
}

func TestSOARoundTrip(t *testing.T) {
	msg := &dnsmsg.Message{
		Header: dnsmsg.Header{ANCount: 1},
		Answers: []dnsmsg.Record{{
			Name:  "example.com",
			Type:  dnsmsg.TypeSOA,
			Class: dnsmsg.ClassIN,
			TTL:   3600,
			Data: &dnsmsg.SOAData{
				MName: "ns1.example.com", RName: "admin.example.com",
				Serial: 1, Refresh: 7200, Retry: 3600, Expire: 1209600, Minimum: 300,
			},
		}},
	}

	w := NewWriter(0)
	data, err := w.WriteMessage(msg)
	if err != nil {
		t.Fatalf("write failed: %v", err)
	}
	r := NewReader(data, 0, 0)
	got, err := r.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	soa, ok := got.Answers[0].Data.(*dnsmsg.SOAData)
	if !ok {
		t.Fatalf("expected *SOAData, got %T", got.Answers[0].Data)
	}
	if soa.Expire != 1209600 || soa.Serial != 1 {
		t.Errorf("unexpected SOA fields: %+v", soa)
	}
}

func TestTXTRoundTrip(t *testing.T) {
	msg := &dnsmsg.Message{
		Header: dnsmsg.Header{ANCount: 1},
		Answers: []dnsmsg.Record{{
			Name: "example.com", Type: dnsmsg.TypeTXT, Class: dnsmsg.ClassIN, TTL: 60,
			Data: dnsmsg.TXTData{Text: "v=spf1 -all"},
		}},
	}
	w := NewWriter(0)
	data, err := w.WriteMessage(msg)
	if err != nil {
		t.Fatalf("write failed: %v", err)
	}
	r := NewReader(data, 0, 0)
	got, err := r.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	txt := got.Answers[0].Data.(dnsmsg.TXTData)
	if txt.Text != "v=spf1 -all" {
		t.Errorf("unexpected TXT: %q", txt.Text)
	}
}
