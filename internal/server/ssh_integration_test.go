package server_test

import (
	"bufio"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/tpodg/fleetadmin/internal/server"
	"github.com/tpodg/fleetadmin/internal/testutils"
)

func TestTunnel_Integration(t *testing.T) {
	ctx := context.Background()
	jump := testutils.SetupJumpHost(t, ctx)

	// Wait a bit for the SSH server to be fully ready
	time.Sleep(2 * time.Second)

	useAgent := false
	tunnel := &server.TunnelConfig{
		Address:        jump.Address,
		User:           jump.User,
		SSHKey:         jump.KeyPath,
		KnownHostsPath: jump.KnownHostsPath,
		UseAgent:       &useAgent,
	}

	dialCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Forward back to the container's own sshd and read its banner.
	conn, err := tunnel.DialContext(dialCtx, "tcp", jump.InnerAddress)
	if err != nil {
		t.Fatalf("DialContext failed: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	banner, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatalf("failed to read banner through tunnel: %v", err)
	}
	if !strings.HasPrefix(banner, "SSH-2.0") {
		t.Errorf("expected ssh banner, got %q", banner)
	}
}
