package system

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/danmuck/pwrapi/internal/config"
	"github.com/danmuck/pwrapi/internal/plugins/builtin"
	"github.com/danmuck/pwrapi/internal/pwr"
	"github.com/danmuck/pwrapi/internal/request"
	"github.com/danmuck/pwrapi/internal/testutil/testlog"
	"github.com/danmuck/pwrapi/internal/transport"
)

const topologyTemplate = `
[[plugins]]
name = "mem"
lib = "dummy"

[[devices]]
name = "node-dev"
plugin = "mem"

[[peers]]
name = "alpha"
addr = %q

[[peers]]
name = "beta"
addr = %q

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
  children = ["node0", "node1"]

[[objects]]
name = "plat.node0"
type = "node"
peer = "alpha"

  [[objects.devs]]
  name = "d0"
  device = "node-dev"
  open = "power=100,temp=40,power_limit_max=300"

  [[objects.attrs]]
  name = "power"
  devices = ["d0"]

  [[objects.attrs]]
  name = "temp"
  devices = ["d0"]

  [[objects.attrs]]
  name = "power_limit_max"
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

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

func transportConfig() transport.Config {
	cfg := transport.DefaultConfig()
	cfg.ConnectAttempts = 20
	cfg.RetryInterval = 10 * time.Millisecond
	return cfg
}

// start builds and serves one system over topo.
func start(t *testing.T, topo config.Provider, peer, listen string) *System {
	t.Helper()
	s, err := New(context.Background(), Config{
		Peer:      peer,
		Listen:    listen,
		Provider:  topo,
		Plugins:   builtin.Registry(),
		Transport: transportConfig(),
	})
	if err != nil {
		t.Fatalf("new %s: %v", peer, err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = s.Close()
	})
	return s
}

type cluster struct {
	alpha, beta, client *System
}

func startCluster(t *testing.T) cluster {
	t.Helper()
	a, b := freeAddr(t), freeAddr(t)
	topo, err := config.Parse(fmt.Sprintf(topologyTemplate, a, b))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return cluster{
		alpha:  start(t, topo, "alpha", a),
		beta:   start(t, topo, "beta", b),
		client: start(t, topo, "", ""),
	}
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestLocalityFollowsOwnership(t *testing.T) {
	testlog.Start(t)
	c := startCluster(t)

	n0, ok := c.alpha.Object("plat.node0")
	if !ok || !n0.IsLocal() {
		t.Fatalf("expected plat.node0 local on alpha")
	}
	n1, ok := c.alpha.Object("plat.node1")
	if !ok || n1.IsLocal() {
		t.Fatalf("expected plat.node1 remote on alpha")
	}
	root, ok := c.client.Entry()
	if !ok || root.Name() != "plat" || root.IsLocal() {
		t.Fatalf("expected remote-backed root on client, got %v", root)
	}
	if got := len(c.client.ObjectsOfType(pwr.ObjNode)); got != 2 {
		t.Fatalf("expected 2 nodes, got %d", got)
	}
}

func TestRemoteValueMatchesOwningPlugin(t *testing.T) {
	testlog.Start(t)
	c := startCluster(t)
	ctx := testCtx(t)

	n0, _ := c.client.Object("plat.node0")
	v, ts, err := n0.GetValue(ctx, pwr.AttrPower)
	if err != nil || v != 100 || ts == 0 {
		t.Fatalf("expected 100 from alpha, got %v at %v (%v)", v, ts, err)
	}
	n1, _ := c.alpha.Object("plat.node1")
	v, _, err = n1.GetValue(ctx, pwr.AttrTemp)
	if err != nil || v != 45 {
		t.Fatalf("expected 45 from beta, got %v (%v)", v, err)
	}
}

func TestRootAggregatesAcrossPeers(t *testing.T) {
	testlog.Start(t)
	c := startCluster(t)
	ctx := testCtx(t)

	for _, s := range []*System{c.client, c.alpha} {
		root, _ := s.Entry()
		names := []pwr.AttrName{pwr.AttrPower, pwr.AttrTemp}
		values := make([]float64, 2)
		times := make([]pwr.Time, 2)
		if err := root.GetValues(ctx, names, values, times, nil); err != nil {
			t.Fatalf("get values: %v", err)
		}
		if values[0] != 150 || values[1] != 45 {
			t.Fatalf("expected power 150 temp 45, got %v", values)
		}
	}
}

func TestRemoteSetReachesOwner(t *testing.T) {
	testlog.Start(t)
	c := startCluster(t)
	ctx := testCtx(t)

	n0, _ := c.client.Object("plat.node0")
	if err := n0.SetValue(ctx, pwr.AttrPowerLimitMax, 250); err != nil {
		t.Fatalf("set: %v", err)
	}
	owner, _ := c.alpha.Object("plat.node0")
	v, _, code := owner.ReadLocal(pwr.AttrPowerLimitMax)
	if code != pwr.CodeSuccess || v != 250 {
		t.Fatalf("expected 250 on owner, got %v (%v)", v, code)
	}
	if err := n0.SetValue(ctx, pwr.AttrTemp, 1); !errors.Is(err, pwr.CodeReadOnly) {
		t.Fatalf("expected CodeReadOnly, got %v", err)
	}
}

func TestBatchAcrossObjectsSharesRequest(t *testing.T) {
	testlog.Start(t)
	c := startCluster(t)
	req := c.client.NewRequest()

	n0, _ := c.client.Object("plat.node0")
	n1, _ := c.client.Object("plat.node1")
	v0, t0 := make([]float64, 1), make([]pwr.Time, 1)
	v1, t1 := make([]float64, 1), make([]pwr.Time, 1)
	if err := n0.GetValuesReq([]pwr.AttrName{pwr.AttrPower}, v0, t0, req); err != nil {
		t.Fatalf("node0: %v", err)
	}
	if err := n1.GetValuesReq([]pwr.AttrName{pwr.AttrPower}, v1, t1, req); err != nil {
		t.Fatalf("node1: %v", err)
	}
	if err := req.Wait(testCtx(t)); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if v0[0] != 100 || v1[0] != 50 {
		t.Fatalf("expected 100 and 50, got %v %v", v0[0], v1[0])
	}
}

func TestDownPeerFailsOnlyItsPart(t *testing.T) {
	testlog.Start(t)
	a, b := freeAddr(t), freeAddr(t)
	topo, err := config.Parse(fmt.Sprintf(topologyTemplate, a, b))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	start(t, topo, "alpha", a)
	cfg := Config{Provider: topo, Plugins: builtin.Registry(), Transport: transportConfig()}
	cfg.Transport.ConnectAttempts = 2
	client, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer client.Close()

	req := client.NewRequest()
	n0, _ := client.Object("plat.node0")
	n1, _ := client.Object("plat.node1")
	v0, t0 := make([]float64, 1), make([]pwr.Time, 1)
	v1, t1 := make([]float64, 1), make([]pwr.Time, 1)
	_ = n0.GetValuesReq([]pwr.AttrName{pwr.AttrPower}, v0, t0, req)
	_ = n1.GetValuesReq([]pwr.AttrName{pwr.AttrPower}, v1, t1, req)
	err = req.Wait(testCtx(t))
	if !errors.Is(err, request.ErrChannelLost) {
		t.Fatalf("expected ErrChannelLost, got %v", err)
	}
	if v0[0] != 100 {
		t.Fatalf("expected alpha part to land, got %v", v0[0])
	}
	e, ok := req.Status().Pop()
	if !ok || e.Object != "plat.node1" || e.Code != pwr.CodeChannelLost {
		t.Fatalf("expected channel-lost entry for plat.node1, got %+v", e)
	}
}

func TestUnknownPluginRejected(t *testing.T) {
	testlog.Start(t)
	topo, err := config.Parse(`
[[plugins]]
name = "p"
lib = "nope"

[[objects]]
name = "plat"
type = "platform"
`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	_, err = New(context.Background(), Config{Provider: topo, Plugins: builtin.Registry()})
	if !errors.Is(err, ErrUnknownPlugin) {
		t.Fatalf("expected ErrUnknownPlugin, got %v", err)
	}
}
