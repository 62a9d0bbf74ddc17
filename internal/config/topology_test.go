package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/danmuck/pwrapi/internal/pwr"
	"github.com/danmuck/pwrapi/internal/testutil/testlog"
)

const twoNodeTopology = `
[[plugins]]
name = "mem"
lib = "dummy"

[[devices]]
name = "node-dev"
plugin = "mem"

[[peers]]
name = "alpha"
addr = "127.0.0.1:16000"

[[peers]]
name = "beta"
addr = "127.0.0.1:16001"

[[objects]]
name = "plat"
type = "platform"
children = ["node0", "node1"]

  [[objects.attrs]]
  name = "power"
  op = "SUM"
  children = ["node0", "node1"]

  [[objects.attrs]]
  name = "temp"
  op = "MAX"
  hz = 4.0
  children = ["node0", "node1"]

[[objects]]
name = "plat.node0"
type = "node"
peer = "alpha"

  [[objects.devs]]
  name = "d0"
  device = "node-dev"
  open = "power=100,temp=40"

  [[objects.attrs]]
  name = "power"
  devices = ["d0"]

  [[objects.attrs]]
  name = "temp"
  devices = ["d0"]

[[objects]]
name = "plat.node1"
type = "node"
peer = "beta"

  [[objects.devs]]
  name = "d0"
  device = "node-dev"
  open = "power=50,temp=45"

  [[objects.attrs]]
  name = "power"
  devices = ["d0"]

  [[objects.attrs]]
  name = "temp"
  devices = ["d0"]
`

func TestParseTopologyQueries(t *testing.T) {
	testlog.Start(t)
	top, err := Parse(twoNodeTopology)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if top.Root() != "plat" {
		t.Fatalf("expected root plat, got %q", top.Root())
	}
	if got := top.Children("plat"); !reflect.DeepEqual(got, []string{"plat.node0", "plat.node1"}) {
		t.Fatalf("unexpected children %v", got)
	}
	if top.Parent("plat.node1") != "plat" {
		t.Fatalf("unexpected parent %q", top.Parent("plat.node1"))
	}
	if typ, err := top.ObjectType("plat.node0"); err != nil || typ != pwr.ObjNode {
		t.Fatalf("unexpected type %v err=%v", typ, err)
	}
	if _, err := top.ObjectType("plat.node9"); !errors.Is(err, ErrUnknownObject) {
		t.Fatalf("expected ErrUnknownObject, got %v", err)
	}
	if got := top.ObjectsOfType(pwr.ObjNode); len(got) != 2 {
		t.Fatalf("expected two nodes, got %v", got)
	}
	if top.AttrOp("plat", pwr.AttrTemp) != pwr.OpMax || top.AttrHz("plat", pwr.AttrTemp) != 4 {
		t.Fatalf("unexpected temp op/hz")
	}
	if top.AttrHz("plat", pwr.AttrPower) != DefaultHz {
		t.Fatalf("expected default hz")
	}
	devs := top.ObjDevs("plat.node0", pwr.AttrPower)
	if len(devs) != 1 || devs[0].Device != "node-dev" || devs[0].Open != "power=100,temp=40" {
		t.Fatalf("unexpected devs %+v", devs)
	}
	if got := top.AttrChildren("plat", pwr.AttrPower); len(got) != 2 || got[1] != "plat.node1" {
		t.Fatalf("unexpected attr children %v", got)
	}
	if got := top.Attrs("plat.node1"); !reflect.DeepEqual(got, []pwr.AttrName{pwr.AttrPower, pwr.AttrTemp}) {
		t.Fatalf("unexpected attrs %v", got)
	}
	if top.Location("plat") != "" || top.Location("plat.node1") != "beta" {
		t.Fatalf("unexpected locations")
	}
	if addr, ok := top.PeerAddr("alpha"); !ok || addr != "127.0.0.1:16000" {
		t.Fatalf("unexpected peer addr %q", addr)
	}
}

func TestLocationInheritsFromParent(t *testing.T) {
	testlog.Start(t)
	top, err := New(Document{
		Peers: []Peer{{Name: "alpha", Addr: "x:1"}},
		Objects: []ObjectSpec{
			{Name: "plat", Type: "platform", Children: []string{"n"}},
			{Name: "plat.n", Type: "node", Peer: "alpha", Children: []string{"s"}},
			{Name: "plat.n.s", Type: "socket"},
		},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if top.Location("plat.n.s") != "alpha" {
		t.Fatalf("expected inherited peer, got %q", top.Location("plat.n.s"))
	}
}

func TestInvalidTopologies(t *testing.T) {
	testlog.Start(t)
	cases := map[string]Document{
		"unknown type": {Objects: []ObjectSpec{{Name: "plat", Type: "rack"}}},
		"missing child": {Objects: []ObjectSpec{
			{Name: "plat", Type: "platform", Children: []string{"ghost"}},
		}},
		"two roots": {Objects: []ObjectSpec{
			{Name: "a", Type: "platform"},
			{Name: "b", Type: "platform"},
		}},
		"unknown peer": {Objects: []ObjectSpec{{Name: "plat", Type: "platform", Peer: "nobody"}}},
		"attr child not a child": {Objects: []ObjectSpec{
			{Name: "plat", Type: "platform", Attrs: []AttrSpec{{Name: "power", Children: []string{"x"}}}},
		}},
		"unknown dev": {Objects: []ObjectSpec{
			{Name: "plat", Type: "platform", Attrs: []AttrSpec{{Name: "power", Devices: []string{"d"}}}},
		}},
		"device without plugin": {
			Devices: []SysDev{{Name: "d", Plugin: "none"}},
			Objects: []ObjectSpec{{Name: "plat", Type: "platform"}},
		},
		"bad op": {Objects: []ObjectSpec{
			{Name: "plat", Type: "platform", Attrs: []AttrSpec{{Name: "power", Op: "MEDIAN"}}},
		}},
	}
	for name, doc := range cases {
		if _, err := New(doc); !errors.Is(err, ErrInvalidTopology) {
			t.Fatalf("%s: expected ErrInvalidTopology, got %v", name, err)
		}
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	testlog.Start(t)
	_, err := Parse("[[objects]]\nname = \"plat\"\ntype = \"platform\"\ncolour = \"blue\"\n")
	if !errors.Is(err, ErrInvalidTopology) || !strings.Contains(err.Error(), "colour") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "topology.toml")
	if err := os.WriteFile(path, []byte(twoNodeTopology), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	top, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(top.Objects()) != 3 {
		t.Fatalf("expected 3 objects, got %v", top.Objects())
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
