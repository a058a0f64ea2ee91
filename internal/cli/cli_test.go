package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tpodg/fleetadmin/internal/app"
	"github.com/tpodg/fleetadmin/internal/config"
	"github.com/tpodg/fleetadmin/internal/dispatch"
	"github.com/tpodg/fleetadmin/internal/result"
	"github.com/tpodg/fleetadmin/internal/server"
	"github.com/tpodg/fleetadmin/internal/testutils/fakeadmin"
)

type fleetServer struct {
	desc     server.Descriptor
	commands string
}

func writeFleetConfig(t *testing.T, extra string, servers ...fleetServer) string {
	t.Helper()
	var b strings.Builder
	b.WriteString(extra)
	b.WriteString("servers:\n")
	for _, s := range servers {
		fmt.Fprintf(&b, "  - name: %s\n    host: %s\n    port: %d\n    protocol: %s\n", s.desc.Name, s.desc.Host, s.desc.Port, s.desc.Protocol)
		if s.commands != "" {
			b.WriteString("    commands:\n")
			b.WriteString(s.commands)
		}
	}
	path := filepath.Join(t.TempDir(), "fleet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0644))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func decodeReports(t *testing.T, out string) []report {
	t.Helper()
	var reports []report
	require.NoError(t, json.Unmarshal([]byte(out), &reports), out)
	return reports
}

func TestRunVersionAcrossGenerations(t *testing.T) {
	fake := fakeadmin.New(t)
	cfg := writeFleetConfig(t, "",
		fleetServer{desc: fake.Descriptor("old", server.Legacy)},
		fleetServer{desc: fake.Descriptor("new", server.REST)},
	)

	out, _, err := execute(t, "--config", cfg, "run", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "old\tversion\tSUCCESS\n  7.0.2\n")
	assert.Contains(t, out, "new\tversion\tSUCCESS\n  7.0.2\n")

	paths := map[string]bool{}
	for _, r := range fake.Requests() {
		paths[r.Path] = true
	}
	assert.True(t, paths["/__asadmin/version"])
	assert.True(t, paths["/management/domain/version"])
}

func TestRunDeployJSON(t *testing.T) {
	fake := fakeadmin.New(t)
	cfg := writeFleetConfig(t, "", fleetServer{desc: fake.Descriptor("das", server.REST)})

	out, _, err := execute(t, "--config", cfg, "-o", "json", "run", "deploy",
		"--target", "c1", "--name", "shop",
		"--arg", "path=/srv/shop.war", "--property", "keepSessions=true")
	require.NoError(t, err)

	reports := decodeReports(t, out)
	require.Len(t, reports, 1)
	assert.Equal(t, "das", reports[0].Server)
	assert.Equal(t, "deploy", reports[0].Operation)
	assert.Equal(t, result.StatusSuccess, reports[0].Status)

	path, props, ok := fake.Deployment("c1", "shop")
	require.True(t, ok)
	assert.Equal(t, "/srv/shop.war", path)
	assert.Equal(t, map[string]string{"keepSessions": "true"}, props)
}

func TestRunYAMLOutput(t *testing.T) {
	fake := fakeadmin.New(t)
	cfg := writeFleetConfig(t, "", fleetServer{desc: fake.Descriptor("das", server.Legacy)})

	out, _, err := execute(t, "--config", cfg, "-o", "yaml", "run", "list-clusters")
	require.NoError(t, err)
	assert.Contains(t, out, "server: das")
	assert.Contains(t, out, "status: SUCCESS")
	assert.Contains(t, out, "- c1")
}

func TestRunFleetVerdict(t *testing.T) {
	healthy := fakeadmin.New(t)
	broken := fakeadmin.New(t)
	broken.Fail("list-web-services", "web services module not loaded")

	cfg := writeFleetConfig(t, "",
		fleetServer{desc: healthy.Descriptor("a", server.REST)},
		fleetServer{desc: broken.Descriptor("b", server.Legacy)},
	)

	out, _, err := execute(t, "--config", cfg, "-o", "json", "run", "list-web-services")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fleet verdict: ERROR")

	reports := decodeReports(t, out)
	require.Len(t, reports, 2)
	assert.Equal(t, result.StatusSuccess, reports[0].Status)
	assert.Equal(t, result.StatusError, reports[1].Status)
	assert.Equal(t, "web services module not loaded", reports[1].Message)
}

func TestRunUnsupportedPairing(t *testing.T) {
	fake := fakeadmin.New(t)
	cfg := writeFleetConfig(t, "",
		fleetServer{desc: fake.Descriptor("old", server.Legacy)},
		fleetServer{desc: fake.Descriptor("new", server.REST)},
	)
	_, _, err := execute(t, "--config", cfg, "run", "deploy", "--target", "c1", "--name", "shop", "--arg", "path=/a.war")
	require.NoError(t, err)

	out, _, err := execute(t, "--config", cfg, "-o", "json", "run", "application-enabled", "--target", "c1", "--name", "shop")
	require.Error(t, err)

	reports := decodeReports(t, out)
	require.Len(t, reports, 2)
	assert.Equal(t, result.StatusError, reports[0].Status)
	assert.Contains(t, reports[0].Message, "unsupported command")
	assert.Equal(t, result.StatusSuccess, reports[1].Status)
	assert.Equal(t, true, reports[1].Value)
}

func TestRunRejectsBeforeDispatch(t *testing.T) {
	fake := fakeadmin.New(t)
	cfg := writeFleetConfig(t, "", fleetServer{desc: fake.Descriptor("das", server.REST)})

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"missing path", []string{"run", "deploy", "--name", "shop"}, "path"},
		{"unknown operation", []string{"run", "reboot"}, "unknown operation"},
		{"malformed arg", []string{"run", "get", "--arg", "pattern"}, "expected key=value"},
		{"unknown server", []string{"run", "version", "--server", "nope"}, `unknown server "nope"`},
		{"bad output", []string{"-o", "xml", "run", "version"}, "unknown output format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, append([]string{"--config", cfg}, tt.args...)...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
	assert.Empty(t, fake.Requests())
}

func TestApply(t *testing.T) {
	good := fakeadmin.New(t)
	bad := fakeadmin.New(t)
	bad.Fail("enable", "application shop is locked")

	steps := `      - op: deploy
        args: {target: c1, name: shop, path: /srv/shop.war}
      - op: enable
        args: {target: c1, name: shop}
      - op: start-cluster
        args: {target: c1}
`
	cfg := writeFleetConfig(t, "defaults:\n  deploy:\n    properties:\n      keepSessions: \"true\"\n",
		fleetServer{desc: good.Descriptor("good", server.REST), commands: steps},
		fleetServer{desc: bad.Descriptor("bad", server.Legacy), commands: steps},
	)

	out, stderr, err := execute(t, "--config", cfg, "-o", "json", "apply")
	require.Error(t, err)

	reports := decodeReports(t, out)
	byServer := map[string][]report{}
	for _, r := range reports {
		byServer[r.Server] = append(byServer[r.Server], r)
	}
	require.Len(t, byServer["good"], 3)
	for _, r := range byServer["good"] {
		assert.Equal(t, result.StatusSuccess, r.Status, r.Operation)
	}
	require.Len(t, byServer["bad"], 2)
	assert.Equal(t, result.StatusError, byServer["bad"][1].Status)
	assert.Equal(t, "application shop is locked", byServer["bad"][1].Message)

	assert.True(t, good.Running("c1"))
	assert.False(t, bad.Running("c1"))
	_, props, ok := good.Deployment("c1", "shop")
	require.True(t, ok)
	assert.Equal(t, "true", props["keepSessions"])

	assert.Contains(t, stderr, "Server applied successfully")
	assert.Contains(t, stderr, "Failed to apply server")
}

func TestOperations(t *testing.T) {
	cfg := writeFleetConfig(t, "")
	out, _, err := execute(t, "--config", cfg, "operations")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Greater(t, len(lines), 1)
	assert.True(t, strings.HasPrefix(lines[0], "OPERATION"))
	assert.Regexp(t, `(?m)^application-enabled\s+rest$`, out)
	assert.Regexp(t, `(?m)^deploy\s+legacy,rest$`, out)
}

func TestMetricsFile(t *testing.T) {
	fake := fakeadmin.New(t)
	cfg := writeFleetConfig(t, "", fleetServer{desc: fake.Descriptor("das", server.REST)})
	metricsPath := filepath.Join(t.TempDir(), "fleetadmin.prom")

	_, _, err := execute(t, "--config", cfg, "--metrics-file", metricsPath, "run", "version")
	require.NoError(t, err)

	data, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `fleetadmin_dispatch_total{operation="version",protocol="rest",status="SUCCESS"}`)
}

func TestVerifyServers(t *testing.T) {
	up := fakeadmin.New(t)
	down := fakeadmin.New(t)
	down.RequireAuth("admin", "secret")

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	servers := []server.Descriptor{
		up.Descriptor("up", server.REST),
		func() server.Descriptor {
			desc := down.Descriptor("down", server.Legacy)
			desc.User, desc.Password = "", ""
			return desc
		}(),
	}

	status := verifyServers(context.Background(), logger, dispatch.New(nil), servers, 2)
	assert.Equal(t, result.StatusError, status)

	output := buf.String()
	assert.Contains(t, output, `msg="Verification successful" server=up version=7.0.2`)
	assert.Contains(t, output, `msg="Verification failed" server=down`)
}

func TestApplyServersWithoutConcurrencyLimit(t *testing.T) {
	fake := fakeadmin.New(t)
	desc := fake.Descriptor("das", server.REST)
	cfg := &config.Config{
		Servers: []config.ServerConfig{{
			Name:     desc.Name,
			Host:     desc.Host,
			Port:     desc.Port,
			Protocol: string(server.REST),
			Commands: []config.CommandConfig{{Op: "version"}},
		}},
	}
	fleetApp := app.NewWithOutput(cfg, io.Discard)

	type outcome struct {
		reports []report
		status  result.Status
	}
	done := make(chan outcome, 1)
	go func() {
		reports, status := applyServers(context.Background(), fleetApp, cfg.Servers)
		done <- outcome{reports, status}
	}()

	select {
	case got := <-done:
		assert.Equal(t, result.StatusSuccess, got.status)
		require.Len(t, got.reports, 1)
		assert.Equal(t, "7.0.2", got.reports[0].Value)
	case <-time.After(10 * time.Second):
		t.Fatal("applyServers did not return with a zero concurrency limit")
	}
}
