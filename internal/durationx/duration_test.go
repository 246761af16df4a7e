package durationx

import (
	"testing"
	"time"
)

func TestParseSumsPairs(t *testing.T) {
	d, err := Parse("1h15m10s")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Hour + 15*time.Minute + 10*time.Second
	if d != want {
		t.Errorf("expected %v, got %v", want, d)
	}
	if d.Seconds() != 4510 {
		t.Errorf("expected 4510s, got %v", d.Seconds())
	}
}

func TestParseUnknownUnitFails(t *testing.T) {
	if _, err := Parse("1G"); err == nil {
		t.Fatalf("expected unknown unit to fail")
	}
}

func TestParseMismatchedRunsFails(t *testing.T) {
	if _, err := Parse("5"); err == nil {
		t.Fatalf("expected a bare number with no unit to fail")
	}
	if _, err := Parse("h"); err == nil {
		t.Fatalf("expected a bare unit with no number to fail")
	}
}

func TestParseSingleUnit(t *testing.T) {
	d, err := Parse("5s")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != 5*time.Second {
		t.Errorf("expected 5s, got %v", d)
	}
}
