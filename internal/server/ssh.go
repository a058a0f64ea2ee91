package server

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// TunnelConfig describes an SSH jump host through which the admin port is reached.
type TunnelConfig struct {
	Address          string
	User             string
	SSHKey           string
	KnownHostsPath   string
	UseAgent         *bool
	HandshakeTimeout time.Duration
}

const defaultSSHHandshakeTimeout = 15 * time.Second

// DialContext opens a fresh SSH connection to the jump host and forwards a
// connection to addr through it. Closing the returned conn closes the SSH
// connection as well.
func (t *TunnelConfig) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	client, err := t.connect(ctx)
	if err != nil {
		return nil, err
	}

	conn, err := client.DialContext(ctx, network, addr)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to forward to %s via %s: %w", addr, t.Address, err)
	}
	return &tunnelConn{Conn: conn, client: client}, nil
}

func (t *TunnelConfig) connect(ctx context.Context) (*ssh.Client, error) {
	addr := t.Address
	if !strings.Contains(addr, ":") {
		addr = addr + ":22"
	}

	authMethods := []ssh.AuthMethod{}

	// Prefer explicit key material before falling back to the agent.
	if t.SSHKey != "" {
		expandedPath, err := expandPath(t.SSHKey)
		if err != nil {
			return nil, fmt.Errorf("failed to expand ssh key path %q: %w", t.SSHKey, err)
		}
		key, err := os.ReadFile(expandedPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read ssh key %q: %w", expandedPath, err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("failed to parse ssh key %q: %w", expandedPath, err)
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))
	}

	if t.useAgent() {
		if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
			if agentConn, err := net.Dial("unix", sock); err == nil {
				authMethods = append(authMethods, ssh.PublicKeysCallback(agent.NewClient(agentConn).Signers))
				defer agentConn.Close()
			}
		}
	}

	if len(authMethods) == 0 {
		return nil, fmt.Errorf("no ssh authentication methods available")
	}

	knownHostsPath, err := resolveKnownHostsPath(t.KnownHostsPath)
	if err != nil {
		return nil, err
	}
	hostKeyCallback, err := knownhosts.New(knownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load known_hosts file %q: %w", knownHostsPath, err)
	}

	config := &ssh.ClientConfig{
		User:            t.User,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	if err := applyHandshakeDeadline(ctx, conn, t.handshakeTimeout()); err != nil {
		conn.Close()
		return nil, err
	}
	handshakeDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-handshakeDone:
		}
	}()

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	close(handshakeDone)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to establish ssh connection to %s: %w", addr, err)
	}
	if err := clearDeadline(conn); err != nil {
		sshConn.Close()
		return nil, err
	}
	return ssh.NewClient(sshConn, chans, reqs), nil
}

type tunnelConn struct {
	net.Conn
	client *ssh.Client
}

func (c *tunnelConn) Close() error {
	err := c.Conn.Close()
	if cerr := c.client.Close(); err == nil {
		err = cerr
	}
	return err
}

func (t *TunnelConfig) useAgent() bool {
	if t.UseAgent == nil {
		return true
	}
	return *t.UseAgent
}

func (t *TunnelConfig) handshakeTimeout() time.Duration {
	if t.HandshakeTimeout > 0 {
		return t.HandshakeTimeout
	}
	return defaultSSHHandshakeTimeout
}

func applyHandshakeDeadline(ctx context.Context, conn net.Conn, timeout time.Duration) error {
	deadline, ok := handshakeDeadline(ctx, timeout)
	if !ok {
		return nil
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("set ssh handshake deadline: %w", err)
	}
	return nil
}

func clearDeadline(conn net.Conn) error {
	if err := conn.SetDeadline(time.Time{}); err != nil {
		return fmt.Errorf("clear ssh handshake deadline: %w", err)
	}
	return nil
}

func handshakeDeadline(ctx context.Context, timeout time.Duration) (time.Time, bool) {
	var deadline time.Time
	now := time.Now()
	if timeout > 0 {
		deadline = now.Add(timeout)
	}
	if ctxDeadline, ok := ctx.Deadline(); ok {
		if deadline.IsZero() || ctxDeadline.Before(deadline) {
			deadline = ctxDeadline
		}
	}
	if deadline.IsZero() {
		return time.Time{}, false
	}
	return deadline, true
}

func resolveKnownHostsPath(path string) (string, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory for known_hosts: %w", err)
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory: %w", err)
		}
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}
