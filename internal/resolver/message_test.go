package resolver

import (
	"testing"

	"github.com/alir32a/mydns/internal/dnsmsg"
)

func TestResolvedEmptyAnswersIsFalse(t *testing.T) {
	resp := &dnsmsg.Message{}
	if resolved(resp, dnsmsg.Question{QType: dnsmsg.TypeA}) {
		t.Fatalf("expected empty answers to be unresolved")
	}
}

func TestResolvedNXDomainIsTerminal(t *testing.T) {
	resp := &dnsmsg.Message{
		Header:  dnsmsg.Header{Rcode: dnsmsg.RcodeNxDomain},
		Answers: []dnsmsg.Record{{Type: dnsmsg.TypeSOA, Data: &dnsmsg.SOAData{}}},
	}
	if !resolved(resp, dnsmsg.Question{QType: dnsmsg.TypeA}) {
		t.Fatalf("expected NXDOMAIN to be terminal")
	}
}

func TestResolvedRequiresMatchingType(t *testing.T) {
	resp := &dnsmsg.Message{
		Answers: []dnsmsg.Record{{Type: dnsmsg.TypeCNAME, Data: dnsmsg.CNAMEData{Host: "a.com"}}},
	}
	if resolved(resp, dnsmsg.Question{QType: dnsmsg.TypeA}) {
		t.Fatalf("expected a CNAME-only answer not to satisfy an A query")
	}
}

func TestChaseCNAMEFollowsChain(t *testing.T) {
	pairs := map[string]string{
		"www.a.com": "a.com",
	}
	target, ok := chaseCNAME("www.a.com", pairs)
	if !ok || target != "a.com" {
		t.Fatalf("expected to chase to a.com, got %q ok=%v", target, ok)
	}
}

func TestChaseCNAMENoMatch(t *testing.T) {
	if _, ok := chaseCNAME("nowhere.example", map[string]string{"a.com": "b.com"}); ok {
		t.Fatalf("expected no chase when the starting name isn't in the pairs")
	}
}
