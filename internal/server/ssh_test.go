package server

import (
	"bufio"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// startForwardingServer runs an in-process SSH server that only accepts
// direct-tcpip channels from the holder of clientKey.
func startForwardingServer(t *testing.T, clientKey ssh.PublicKey) (string, ssh.PublicKey) {
	t.Helper()

	_, hostPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate host key: %v", err)
	}
	hostSigner, err := ssh.NewSignerFromKey(hostPriv)
	if err != nil {
		t.Fatalf("failed to create host signer: %v", err)
	}

	config := &ssh.ServerConfig{
		PublicKeyCallback: func(_ ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if string(key.Marshal()) == string(clientKey.Marshal()) {
				return &ssh.Permissions{}, nil
			}
			return nil, fmt.Errorf("unknown public key")
		},
	}
	config.AddHostKey(hostSigner)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveForwarding(conn, config)
		}
	}()

	return ln.Addr().String(), hostSigner.PublicKey()
}

func serveForwarding(conn net.Conn, config *ssh.ServerConfig) {
	_, chans, reqs, err := ssh.NewServerConn(conn, config)
	if err != nil {
		conn.Close()
		return
	}
	go ssh.DiscardRequests(reqs)

	for newCh := range chans {
		if newCh.ChannelType() != "direct-tcpip" {
			_ = newCh.Reject(ssh.UnknownChannelType, "unsupported")
			continue
		}
		var payload struct {
			Host     string
			Port     uint32
			OrigHost string
			OrigPort uint32
		}
		if err := ssh.Unmarshal(newCh.ExtraData(), &payload); err != nil {
			_ = newCh.Reject(ssh.ConnectionFailed, "bad payload")
			continue
		}
		target, err := net.Dial("tcp", net.JoinHostPort(payload.Host, fmt.Sprint(payload.Port)))
		if err != nil {
			_ = newCh.Reject(ssh.ConnectionFailed, err.Error())
			continue
		}
		ch, chReqs, err := newCh.Accept()
		if err != nil {
			target.Close()
			continue
		}
		go ssh.DiscardRequests(chReqs)
		go func() {
			defer ch.Close()
			defer target.Close()
			go io.Copy(target, ch)
			io.Copy(ch, target)
		}()
	}
}

func writeClientKey(t *testing.T, dir string) ssh.PublicKey {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate private key: %v", err)
	}
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(privateKey)}
	if err := os.WriteFile(filepath.Join(dir, "id_rsa"), pem.EncodeToMemory(block), 0600); err != nil {
		t.Fatalf("failed to write private key: %v", err)
	}
	pub, err := ssh.NewPublicKey(&privateKey.PublicKey)
	if err != nil {
		t.Fatalf("failed to create public key: %v", err)
	}
	return pub
}

func TestTunnelDialContext(t *testing.T) {
	dir := t.TempDir()
	clientPub := writeClientKey(t, dir)
	sshAddr, hostKey := startForwardingServer(t, clientPub)

	knownHostsPath := filepath.Join(dir, "known_hosts")
	if err := os.WriteFile(knownHostsPath, []byte(knownhosts.Line([]string{sshAddr}, hostKey)+"\n"), 0600); err != nil {
		t.Fatalf("failed to write known_hosts: %v", err)
	}

	target, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	defer target.Close()
	go func() {
		conn, err := target.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = conn.Write([]byte("admin-ready\n"))
	}()

	useAgent := false
	tunnel := &TunnelConfig{
		Address:        sshAddr,
		User:           "tester",
		SSHKey:         filepath.Join(dir, "id_rsa"),
		KnownHostsPath: knownHostsPath,
		UseAgent:       &useAgent,
	}

	t.Run("forwards to target", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		conn, err := tunnel.DialContext(ctx, "tcp", target.Addr().String())
		if err != nil {
			t.Fatalf("DialContext failed: %v", err)
		}
		defer conn.Close()

		line, err := bufio.NewReader(conn).ReadString('\n')
		if err != nil {
			t.Fatalf("read through tunnel failed: %v", err)
		}
		if strings.TrimSpace(line) != "admin-ready" {
			t.Fatalf("unexpected line %q", line)
		}
	})

	t.Run("rejects unknown host key", func(t *testing.T) {
		otherHosts := filepath.Join(dir, "other_known_hosts")
		_, otherPriv, _ := ed25519.GenerateKey(rand.Reader)
		otherSigner, _ := ssh.NewSignerFromKey(otherPriv)
		if err := os.WriteFile(otherHosts, []byte(knownhosts.Line([]string{sshAddr}, otherSigner.PublicKey())+"\n"), 0600); err != nil {
			t.Fatalf("failed to write known_hosts: %v", err)
		}

		bad := *tunnel
		bad.KnownHostsPath = otherHosts
		if _, err := bad.DialContext(context.Background(), "tcp", target.Addr().String()); err == nil {
			t.Fatal("expected host key mismatch error")
		}
	})

	t.Run("no auth methods", func(t *testing.T) {
		bare := TunnelConfig{Address: sshAddr, KnownHostsPath: knownHostsPath, UseAgent: &useAgent}
		_, err := bare.DialContext(context.Background(), "tcp", target.Addr().String())
		if err == nil || !strings.Contains(err.Error(), "no ssh authentication methods") {
			t.Fatalf("expected auth method error, got %v", err)
		}
	})
}

func TestHandshakeDeadline(t *testing.T) {
	t.Run("context deadline wins when earlier", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		deadline, ok := handshakeDeadline(ctx, time.Minute)
		if !ok || time.Until(deadline) > 2*time.Second {
			t.Fatalf("unexpected deadline %v (ok=%v)", deadline, ok)
		}
	})

	t.Run("no deadline", func(t *testing.T) {
		if _, ok := handshakeDeadline(context.Background(), 0); ok {
			t.Fatal("expected no deadline")
		}
	})
}
