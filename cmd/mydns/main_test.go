package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/alir32a/mydns/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseForwardList(t *testing.T) {
	got := parseForwardList(" 8.8.8.8 , 1.1.1.1:53 ,, 9.9.9.9")
	want := []config.ForwardAddr{
		{Addr: "8.8.8.8", Weight: 1},
		{Addr: "1.1.1.1:53", Weight: 1},
		{Addr: "9.9.9.9", Weight: 1},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d targets, got %d (%v)", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("target %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestApplyFlagOverrides(t *testing.T) {
	cfg := config.Defaults()
	f := &flags{
		host:           "127.0.0.1",
		port:           5353,
		proto:          "udp",
		forward:        "8.8.8.8,8.8.4.4",
		defaultFwdPort: 53,
		set:            map[string]bool{"host": true, "port": true, "proto": true},
	}

	if err := applyFlagOverrides(&cfg, f); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Host != "127.0.0.1" || cfg.Port != 5353 {
		t.Errorf("host/port override didn't apply: %+v", cfg)
	}
	if len(cfg.ForwardAddrs) != 2 {
		t.Errorf("expected 2 forward addrs, got %d", len(cfg.ForwardAddrs))
	}
}

func TestApplyFlagOverrides_InvalidTimeout(t *testing.T) {
	cfg := config.Defaults()
	f := &flags{host: "127.0.0.1", proto: "udp", timeout: "not-a-duration"}

	if err := applyFlagOverrides(&cfg, f); err == nil {
		t.Error("expected an error for a malformed --timeout value")
	}
}

func TestResolveTarget(t *testing.T) {
	addr, err := resolveTarget("8.8.8.8", 53)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr.Port != 53 || addr.IP.String() != "8.8.8.8" {
		t.Errorf("unexpected target: %+v", addr)
	}

	addr, err = resolveTarget("8.8.8.8:5353", 53)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr.Port != 5353 {
		t.Errorf("expected explicit port to win, got %d", addr.Port)
	}

	if _, err := resolveTarget("not-an-ip", 53); err == nil {
		t.Error("expected an error for a non-IP forward address")
	}
}

func TestValidateProto(t *testing.T) {
	if err := validateProto("udp"); err != nil {
		t.Errorf("expected udp to be accepted, got %v", err)
	}
	if err := validateProto(""); err != nil {
		t.Errorf("expected the empty default to be accepted, got %v", err)
	}
	if err := validateProto("tcp"); err == nil {
		t.Error("expected tcp to be rejected as unimplemented")
	}
	if err := validateProto("sctp"); err == nil {
		t.Error("expected an unknown proto to be rejected")
	}
}

func TestRun_TCPProtoFailsFast(t *testing.T) {
	err := run(context.Background(), []string{"--proto", "tcp"}, discardLogger())
	if err == nil {
		t.Error("expected --proto tcp to fail at startup")
	}
}

func TestRun_InvalidForwardAddress(t *testing.T) {
	err := run(context.Background(), []string{"--forward", "not-an-ip"}, discardLogger())
	if err == nil {
		t.Error("expected an error building the resolver from an invalid --forward address")
	}
}

func TestRun_MalformedExplicitConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/conf.toml"
	if err := os.WriteFile(path, []byte("this is not valid toml: [[["), 0o644); err != nil {
		t.Fatalf("failed to write fixture config: %v", err)
	}

	err := run(context.Background(), []string{"--config-file", path}, discardLogger())
	if err == nil {
		t.Error("expected an error loading a malformed explicit config file")
	}
}

func TestRun_AuthoritativeEmptyZonesDirLifecycle(t *testing.T) {
	zonesDir := t.TempDir()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := run(ctx, []string{
		"--authoritative",
		"--zones", zonesDir,
		"--host", "127.0.0.1",
		"--port", "0",
	}, discardLogger())
	if err != nil {
		t.Errorf("expected a clean shutdown, got %v", err)
	}
}

func TestRun_RecursiveLifecycle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := run(ctx, []string{
		"--host", "127.0.0.1",
		"--port", "0",
	}, discardLogger())
	if err != nil {
		t.Errorf("expected a clean shutdown, got %v", err)
	}
}
