// Package system assembles a daemon from a topology: plugin devices, the
// object tree, comm handlers for remotely owned attributes, and the
// dispatcher that serves peers.
package system

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/danmuck/pwrapi/internal/comm"
	"github.com/danmuck/pwrapi/internal/config"
	"github.com/danmuck/pwrapi/internal/object"
	"github.com/danmuck/pwrapi/internal/plugins"
	"github.com/danmuck/pwrapi/internal/pwr"
	"github.com/danmuck/pwrapi/internal/request"
	"github.com/danmuck/pwrapi/internal/transport"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoProvider    = errors.New("system: no topology provider")
	ErrUnknownPlugin = errors.New("system: unknown plugin")
	ErrUnknownPeer   = errors.New("system: unknown peer")
)

// Config selects the topology and this daemon's place in it.
type Config struct {
	// Peer is this daemon's name in the topology. Objects owned by other
	// peers are reached through comm handlers; an empty name owns only the
	// objects with no owner.
	Peer string
	// Listen is the address peers connect to. Empty disables serving.
	Listen    string
	Provider  config.Provider
	Plugins   *plugins.Registry
	Transport transport.Config
	// RingSize overrides the per-attribute sample ring capacity when > 0.
	RingSize int
}

// System is one daemon's view of the machine.
type System struct {
	cfg  Config
	prov config.Provider
	disp *comm.Dispatcher

	devices  map[string]plugins.Device
	handles  []plugins.Handle
	objects  map[string]*object.DistObject
	local    map[string]*object.Object
	handlers map[string]*comm.Handler
}

// New opens every device the local objects need and builds the object tree.
// Nothing is dialed; peers connect on first use.
func New(ctx context.Context, cfg Config) (*System, error) {
	if cfg.Provider == nil {
		return nil, ErrNoProvider
	}
	if cfg.Plugins == nil {
		cfg.Plugins = plugins.NewRegistry()
	}
	s := &System{
		cfg:      cfg,
		prov:     cfg.Provider,
		disp:     comm.NewDispatcher(cfg.Transport),
		devices:  make(map[string]plugins.Device),
		objects:  make(map[string]*object.DistObject),
		local:    make(map[string]*object.Object),
		handlers: make(map[string]*comm.Handler),
	}
	if err := s.build(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	if cfg.Listen != "" {
		name := cfg.Peer
		if name == "" {
			name = "pwrapi"
		}
		if err := s.disp.Listen(name, cfg.Listen, s); err != nil {
			_ = s.Close()
			return nil, err
		}
	}
	log.Info().
		Str("peer", cfg.Peer).
		Str("root", s.prov.Root()).
		Int("objects", len(s.objects)).
		Int("devices", len(s.devices)).
		Strs("plugins", cfg.Plugins.Names()).
		Msg("system.New ready")
	return s, nil
}

func (s *System) build(ctx context.Context) error {
	for _, p := range s.prov.Peers() {
		if p.Name == s.cfg.Peer {
			continue
		}
		if _, err := s.disp.AddPeer(p.Name, p.Addr); err != nil {
			return err
		}
	}
	if err := s.openDevices(); err != nil {
		return err
	}
	root := s.prov.Root()
	if root == "" {
		return nil
	}
	_, err := s.buildObject(ctx, root)
	return err
}

func (s *System) openDevices() error {
	libs := make(map[string]plugins.Factory)
	for _, p := range s.prov.Plugins() {
		f, ok := s.cfg.Plugins.Resolve(p.Lib)
		if !ok {
			return fmt.Errorf("%w: %s (alias %s)", ErrUnknownPlugin, p.Lib, p.Name)
		}
		libs[p.Name] = f
	}
	for _, d := range s.prov.SysDevs() {
		f, ok := libs[d.Plugin]
		if !ok {
			return fmt.Errorf("%w: device %s uses %s", ErrUnknownPlugin, d.Name, d.Plugin)
		}
		dev, err := f.New(d.Init)
		if err != nil {
			return fmt.Errorf("system: device %s: %w", d.Name, err)
		}
		s.devices[d.Name] = dev
	}
	return nil
}

func (s *System) owned(name string) bool {
	loc := s.prov.Location(name)
	return loc == "" || loc == s.cfg.Peer
}

func (s *System) peer(name string) (*comm.Peer, error) {
	p, ok := s.disp.Peer(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPeer, name)
	}
	return p, nil
}

// buildObject builds name after its children so attribute children can be
// bound to live objects.
func (s *System) buildObject(ctx context.Context, name string) (*object.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	typ, err := s.prov.ObjectType(name)
	if err != nil {
		return nil, err
	}
	obj := object.New(name, typ)
	if s.cfg.RingSize > 0 {
		obj.SetRingSize(s.cfg.RingSize)
	}
	for _, child := range s.prov.Children(name) {
		c, err := s.buildObject(ctx, child)
		if err != nil {
			return nil, err
		}
		obj.AddChild(c)
	}

	if s.owned(name) {
		err = s.bindLocal(obj)
	} else {
		err = s.bindRemote(obj)
	}
	if err != nil {
		return nil, err
	}
	s.local[name] = obj
	s.objects[name] = object.NewDist(obj, s.disp)
	return obj, nil
}

// bindRemote forwards every declared attribute to the owning peer.
func (s *System) bindRemote(obj *object.Object) error {
	p, err := s.peer(s.prov.Location(obj.Name()))
	if err != nil {
		return err
	}
	h := s.handler([]comm.Target{{Peer: p, Object: obj.Name()}})
	for _, attr := range s.prov.Attrs(obj.Name()) {
		a, _ := s.prov.Attr(obj.Name(), attr)
		if err := obj.SetAttr(attr, &object.AttrInfo{Op: a.Op, Hz: a.Hz, Comm: h}); err != nil {
			return err
		}
	}
	return nil
}

// bindLocal opens the attribute devices and binds children. Children that
// live elsewhere turn the attribute into a fan-out through a handler.
func (s *System) bindLocal(obj *object.Object) error {
	for _, attr := range s.prov.Attrs(obj.Name()) {
		a, _ := s.prov.Attr(obj.Name(), attr)
		info := &object.AttrInfo{Op: a.Op, Hz: a.Hz}
		for _, d := range a.Devs {
			dev, ok := s.devices[d.Device]
			if !ok {
				return fmt.Errorf("%w: %s", config.ErrInvalidTopology, d.Device)
			}
			h, err := dev.Open(d.Open)
			if err != nil {
				return fmt.Errorf("system: open %s for %s: %w", d.Device, obj.Name(), err)
			}
			s.handles = append(s.handles, h)
			info.Devs = append(info.Devs, h)
		}

		remote := false
		targets := make([]comm.Target, 0, len(a.Children))
		for _, child := range a.Children {
			if s.owned(child) {
				targets = append(targets, comm.Target{Object: child, Local: s.local[child]})
				continue
			}
			p, err := s.peer(s.prov.Location(child))
			if err != nil {
				return err
			}
			remote = true
			targets = append(targets, comm.Target{Peer: p, Object: child})
		}
		switch {
		case !remote:
			for _, t := range targets {
				info.Children = append(info.Children, t.Local)
			}
		case len(info.Devs) > 0:
			return fmt.Errorf("%w: %s %s mixes devices with remote children", config.ErrInvalidTopology, obj.Name(), attr)
		default:
			info.Comm = s.handler(targets)
		}
		if err := obj.SetAttr(attr, info); err != nil {
			return err
		}
	}
	return nil
}

// handler returns one shared handler per distinct target list so a batch
// over several attributes of an object stays a single exchange.
func (s *System) handler(targets []comm.Target) *comm.Handler {
	keys := make([]string, len(targets))
	for i, t := range targets {
		if t.Local != nil {
			keys[i] = "local/" + t.Object
			continue
		}
		keys[i] = t.Peer.Name() + "/" + t.Object
	}
	key := strings.Join(keys, ",")
	if h, ok := s.handlers[key]; ok {
		return h
	}
	h := comm.NewHandler(targets...)
	s.handlers[key] = h
	return h
}

// Object is the named object; it satisfies comm.Resolver.
func (s *System) Object(name string) (*object.DistObject, bool) {
	d, ok := s.objects[name]
	return d, ok
}

// Entry is the root of the object tree.
func (s *System) Entry() (*object.DistObject, bool) {
	return s.Object(s.prov.Root())
}

func (s *System) ObjectsOfType(t pwr.ObjType) []*object.DistObject {
	var out []*object.DistObject
	for _, name := range s.prov.ObjectsOfType(t) {
		if d, ok := s.objects[name]; ok {
			out = append(out, d)
		}
	}
	return out
}

func (s *System) Provider() config.Provider { return s.prov }

func (s *System) Dispatcher() *comm.Dispatcher { return s.disp }

func (s *System) NewRequest() *request.Request { return s.disp.NewRequest() }

func (s *System) NewAsyncRequest(cb request.Callback) *request.Request {
	return s.disp.NewAsync(cb)
}

// Addr is the bound listen address, or nil when not serving.
func (s *System) Addr() net.Addr { return s.disp.Addr() }

// Serve runs the dispatcher until ctx is done.
func (s *System) Serve(ctx context.Context) error {
	return s.disp.Serve(ctx)
}

// Close stops serving, stops samplers, and releases every device.
func (s *System) Close() error {
	errs := []error{s.disp.Close()}
	for _, obj := range s.local {
		obj.Close()
	}
	for _, h := range s.handles {
		errs = append(errs, h.Close())
	}
	s.handles = nil
	for name, dev := range s.devices {
		if err := dev.Close(); err != nil {
			errs = append(errs, fmt.Errorf("system: close %s: %w", name, err))
		}
	}
	s.devices = map[string]plugins.Device{}
	return errors.Join(errs...)
}
