package system

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/pwrapi/internal/testutil/testlog"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadOptionsDefaultsAndOverrides(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "pwrdaemon.toml", `
peer = "alpha"
listen = "127.0.0.1:16000"
topology = "topo.toml"
connect_interval = "250ms"
ring_size = 64
`)
	opts, err := LoadOptions(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if opts.Peer != "alpha" || opts.Listen != "127.0.0.1:16000" || opts.Topology != "topo.toml" {
		t.Fatalf("unexpected options: %+v", opts)
	}
	if opts.TopologySource != SourceFile {
		t.Fatalf("expected default source, got %q", opts.TopologySource)
	}
	if opts.ConnectAttempts != 60 {
		t.Fatalf("expected default attempts, got %d", opts.ConnectAttempts)
	}
	cfg := opts.Transport()
	if cfg.RetryInterval != 250*time.Millisecond || cfg.Limits.MaxPayloadBytes != 8*1024*1024 {
		t.Fatalf("unexpected transport config: %+v", cfg)
	}
	if opts.RingSize != 64 {
		t.Fatalf("expected ring size 64, got %d", opts.RingSize)
	}
}

func TestLoadOptionsRejectsBadInterval(t *testing.T) {
	testlog.Start(t)
	path := writeFile(t, t.TempDir(), "bad.toml", `connect_interval = "soon"`)
	if _, err := LoadOptions(path); err == nil {
		t.Fatalf("expected interval parse error")
	}
}

func TestOptionsConfigFromFile(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	topo := writeFile(t, dir, "topo.toml", `
[[plugins]]
name = "mem"
lib = "dummy"

[[objects]]
name = "plat"
type = "platform"
`)
	opts := DefaultOptions()
	opts.Topology = topo
	cfg, err := opts.Config()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if cfg.Provider.Root() != "plat" || cfg.Plugins == nil {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestOptionsProbeWritesSnapshot(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	cpu := filepath.Join(dir, "devices", "system", "cpu", "cpu0", "topology")
	if err := os.MkdirAll(cpu, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeFile(t, cpu, "physical_package_id", "0\n")
	writeFile(t, cpu, "core_id", "0\n")

	opts := DefaultOptions()
	opts.TopologySource = SourceProbe
	opts.SysRoot = dir
	opts.Snapshot = filepath.Join(dir, "topo.cbor")
	first, err := opts.Provider()
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	opts.TopologySource = SourceSnapshot
	second, err := opts.Provider()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if first.Root() != second.Root() || len(first.Objects()) != len(second.Objects()) {
		t.Fatalf("expected snapshot to match probe, got %v vs %v", first.Objects(), second.Objects())
	}
}

func TestOptionsUnknownSource(t *testing.T) {
	testlog.Start(t)
	opts := DefaultOptions()
	opts.TopologySource = "xml"
	if _, err := opts.Provider(); !errors.Is(err, ErrUnknownSource) {
		t.Fatalf("expected ErrUnknownSource, got %v", err)
	}
}
