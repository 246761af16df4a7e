package anycast

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os/exec"
	"runtime"
	"strings"
)

// SystemVIP implements VIPManager by shelling out to the platform's
// address-management tool.
type SystemVIP struct {
	logger *slog.Logger
}

// NewSystemVIP returns a VIPManager backed by "ip addr" (Linux) or
// "ifconfig" (Darwin).
func NewSystemVIP(logger *slog.Logger) *SystemVIP {
	if logger == nil {
		logger = slog.Default()
	}
	return &SystemVIP{logger: logger}
}

// Bind attaches vip to iface as a host alias.
func (s *SystemVIP) Bind(ctx context.Context, vip, iface string) error {
	if net.ParseIP(vip) == nil {
		return fmt.Errorf("anycast: invalid vip address %q", vip)
	}
	if iface == "" {
		return fmt.Errorf("anycast: interface name required")
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "linux":
		cmd = exec.CommandContext(ctx, "ip", "addr", "add", vip+"/32", "dev", iface)
	case "darwin":
		cmd = exec.CommandContext(ctx, "ifconfig", iface, "alias", vip, "255.255.255.255")
	default:
		return fmt.Errorf("anycast: unsupported OS %s", runtime.GOOS)
	}

	out, err := cmd.CombinedOutput()
	if err != nil {
		outStr := string(out)
		if strings.Contains(outStr, "File exists") || strings.Contains(outStr, "already bound") {
			s.logger.Info("vip already bound", "vip", vip, "iface", iface)
			return nil
		}
		return fmt.Errorf("anycast: bind vip: %w (output: %s)", err, outStr)
	}

	s.logger.Info("bound vip to interface", "vip", vip, "iface", iface)
	return nil
}

// Unbind removes vip from iface.
func (s *SystemVIP) Unbind(ctx context.Context, vip, iface string) error {
	if net.ParseIP(vip) == nil {
		return fmt.Errorf("anycast: invalid vip address %q", vip)
	}
	if iface == "" {
		return fmt.Errorf("anycast: interface name required")
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "linux":
		cmd = exec.CommandContext(ctx, "ip", "addr", "del", vip+"/32", "dev", iface)
	case "darwin":
		cmd = exec.CommandContext(ctx, "ifconfig", iface, "-alias", vip)
	default:
		return fmt.Errorf("anycast: unsupported OS %s", runtime.GOOS)
	}

	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("anycast: unbind vip: %w (output: %s)", err, string(out))
	}

	s.logger.Info("unbound vip from interface", "vip", vip, "iface", iface)
	return nil
}

var _ VIPManager = (*SystemVIP)(nil)
