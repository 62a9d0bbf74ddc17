package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/danmuck/pwrapi/internal/config"
	"github.com/danmuck/pwrapi/internal/object"
	"github.com/danmuck/pwrapi/internal/plugins/builtin"
	"github.com/danmuck/pwrapi/internal/system"
)

const localTopology = `
[[plugins]]
name = "mem"
lib = "dummy"

[[devices]]
name = "node-dev"
plugin = "mem"

[[objects]]
name = "plat"
type = "platform"

  [[objects.devs]]
  name = "d0"
  device = "node-dev"
  open = "power=120,temp=30,power_limit_max=400"

  [[objects.attrs]]
  name = "power"
  devices = ["d0"]

  [[objects.attrs]]
  name = "power_limit_max"
  devices = ["d0"]
`

func localObject(t *testing.T) *object.DistObject {
	t.Helper()
	topo, err := config.Parse(localTopology)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	sys, err := system.New(context.Background(), system.Config{Provider: topo, Plugins: builtin.Registry()})
	if err != nil {
		t.Fatalf("system: %v", err)
	}
	t.Cleanup(func() { _ = sys.Close() })
	obj, ok := sys.Entry()
	if !ok {
		t.Fatalf("expected root object")
	}
	return obj
}

func TestGetPrintsValuesAndStatus(t *testing.T) {
	obj := localObject(t)
	var out bytes.Buffer
	err := execute(context.Background(), obj, newFlags(), []string{"get", "power", "temp"}, &out)
	if err == nil {
		t.Fatalf("expected status error for temp")
	}
	text := out.String()
	if !strings.Contains(text, "plat power 120") {
		t.Fatalf("expected power line, got %q", text)
	}
	if !strings.Contains(text, "plat temp error: no attribute") {
		t.Fatalf("expected temp status line, got %q", text)
	}
}

func TestSetThenGet(t *testing.T) {
	obj := localObject(t)
	var out bytes.Buffer
	if err := execute(context.Background(), obj, newFlags(), []string{"set", "power_limit_max", "250"}, &out); err != nil {
		t.Fatalf("set: %v", err)
	}
	out.Reset()
	if err := execute(context.Background(), obj, newFlags(), []string{"get", "power_limit_max"}, &out); err != nil {
		t.Fatalf("get: %v", err)
	}
	if !strings.Contains(out.String(), "plat power_limit_max 250") {
		t.Fatalf("expected written value, got %q", out.String())
	}
}

func TestUnknownCommand(t *testing.T) {
	obj := localObject(t)
	if err := execute(context.Background(), obj, newFlags(), []string{"reboot"}, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected unknown command error")
	}
}

func TestPluginsListsBuiltins(t *testing.T) {
	var out bytes.Buffer
	if err := run([]string{"plugins"}, &out); err != nil {
		t.Fatalf("plugins: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "dummy ") || !strings.HasPrefix(lines[1], "xtpm ") {
		t.Fatalf("expected dummy then xtpm, got %q", out.String())
	}
}
