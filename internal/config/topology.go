package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/danmuck/pwrapi/internal/pwr"
)

var (
	ErrInvalidTopology = errors.New("config: invalid topology")
	ErrUnknownObject   = errors.New("config: unknown object")
)

// DefaultHz is the sampling rate of attributes that do not declare one.
const DefaultHz = 1.0

// Plugin binds a local alias to a plugin id in the plugin registry.
type Plugin struct {
	Name string `toml:"name" cbor:"name"`
	Lib  string `toml:"lib" cbor:"lib"`
}

// SysDev is one device instance created from a plugin.
type SysDev struct {
	Name   string `toml:"name" cbor:"name"`
	Plugin string `toml:"plugin" cbor:"plugin"`
	Init   string `toml:"init" cbor:"init,omitempty"`
}

// ObjDev is a device opened for one object.
type ObjDev struct {
	Device string
	Open   string
}

type Peer struct {
	Name string `toml:"name" cbor:"name"`
	Addr string `toml:"addr" cbor:"addr"`
}

// Document is the declarative topology. The TOML file and the CBOR
// snapshot both decode into it.
type Document struct {
	Plugins []Plugin     `toml:"plugins" cbor:"plugins"`
	Devices []SysDev     `toml:"devices" cbor:"devices"`
	Peers   []Peer       `toml:"peers" cbor:"peers,omitempty"`
	Objects []ObjectSpec `toml:"objects" cbor:"objects"`
}

// ObjectSpec declares one object. Name is fully qualified ("plat.node0");
// Children and attribute children are short names resolved against it.
type ObjectSpec struct {
	Name     string     `toml:"name" cbor:"name"`
	Type     string     `toml:"type" cbor:"type"`
	Peer     string     `toml:"peer" cbor:"peer,omitempty"`
	Children []string   `toml:"children" cbor:"children,omitempty"`
	Attrs    []AttrSpec `toml:"attrs" cbor:"attrs,omitempty"`
	Devs     []DevSpec  `toml:"devs" cbor:"devs,omitempty"`
}

type AttrSpec struct {
	Name     string   `toml:"name" cbor:"name"`
	Op       string   `toml:"op" cbor:"op,omitempty"`
	Hz       float64  `toml:"hz" cbor:"hz,omitempty"`
	Devices  []string `toml:"devices" cbor:"devices,omitempty"`
	Children []string `toml:"children" cbor:"children,omitempty"`
}

// DevSpec opens a system device for an object under a local name.
type DevSpec struct {
	Name   string `toml:"name" cbor:"name"`
	Device string `toml:"device" cbor:"device"`
	Open   string `toml:"open" cbor:"open,omitempty"`
}

// Attr is a resolved attribute description.
type Attr struct {
	Op       pwr.ValueOp
	Hz       float64
	Devs     []ObjDev
	Children []string
}

// Provider answers topology queries. Names are fully qualified.
type Provider interface {
	Root() string
	Objects() []string
	Has(name string) bool
	ObjectType(name string) (pwr.ObjType, error)
	Children(name string) []string
	Parent(name string) string
	ObjectsOfType(t pwr.ObjType) []string
	Plugins() []Plugin
	SysDevs() []SysDev
	Attrs(name string) []pwr.AttrName
	Attr(name string, attr pwr.AttrName) (Attr, bool)
	ObjDevs(name string, attr pwr.AttrName) []ObjDev
	AttrOp(name string, attr pwr.AttrName) pwr.ValueOp
	AttrHz(name string, attr pwr.AttrName) float64
	AttrChildren(name string, attr pwr.AttrName) []string
	// Location is the peer that owns name; "" means every peer serves it.
	Location(name string) string
	Peers() []Peer
	PeerAddr(name string) (string, bool)
	Document() Document
}

type object struct {
	name     string
	typ      pwr.ObjType
	peer     string
	parent   string
	children []string
	attrs    map[pwr.AttrName]Attr
}

// Topology is the validated, indexed form of a Document.
type Topology struct {
	doc   Document
	root  string
	order []string
	objs  map[string]*object
}

var _ Provider = (*Topology)(nil)

// New validates doc and indexes it for queries.
func New(doc Document) (*Topology, error) {
	t := &Topology{doc: doc, objs: make(map[string]*object, len(doc.Objects))}
	if err := t.index(); err != nil {
		return nil, err
	}
	return t, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidTopology, fmt.Sprintf(format, args...))
}

func (t *Topology) index() error {
	plugins := make(map[string]bool)
	for _, p := range t.doc.Plugins {
		if strings.TrimSpace(p.Name) == "" || strings.TrimSpace(p.Lib) == "" {
			return invalid("plugin needs name and lib")
		}
		if plugins[p.Name] {
			return invalid("duplicate plugin %q", p.Name)
		}
		plugins[p.Name] = true
	}
	devices := make(map[string]bool)
	for _, d := range t.doc.Devices {
		if strings.TrimSpace(d.Name) == "" {
			return invalid("device needs name")
		}
		if devices[d.Name] {
			return invalid("duplicate device %q", d.Name)
		}
		if !plugins[d.Plugin] {
			return invalid("device %q uses unknown plugin %q", d.Name, d.Plugin)
		}
		devices[d.Name] = true
	}
	peers := make(map[string]bool)
	for _, p := range t.doc.Peers {
		if strings.TrimSpace(p.Name) == "" || strings.TrimSpace(p.Addr) == "" {
			return invalid("peer needs name and addr")
		}
		if peers[p.Name] {
			return invalid("duplicate peer %q", p.Name)
		}
		peers[p.Name] = true
	}

	for i := range t.doc.Objects {
		spec := &t.doc.Objects[i]
		if strings.TrimSpace(spec.Name) == "" {
			return invalid("object[%d] needs name", i)
		}
		if _, ok := t.objs[spec.Name]; ok {
			return invalid("duplicate object %q", spec.Name)
		}
		typ, err := pwr.ParseObjType(spec.Type)
		if err != nil {
			return invalid("object %q: %v", spec.Name, err)
		}
		if spec.Peer != "" && !peers[spec.Peer] {
			return invalid("object %q owned by unknown peer %q", spec.Name, spec.Peer)
		}
		obj := &object{name: spec.Name, typ: typ, peer: spec.Peer, attrs: make(map[pwr.AttrName]Attr)}
		for _, c := range spec.Children {
			obj.children = append(obj.children, spec.Name+"."+c)
		}
		t.objs[spec.Name] = obj
		t.order = append(t.order, spec.Name)
	}

	for i := range t.doc.Objects {
		spec := &t.doc.Objects[i]
		obj := t.objs[spec.Name]
		for _, child := range obj.children {
			c, ok := t.objs[child]
			if !ok {
				return invalid("object %q lists missing child %q", spec.Name, child)
			}
			if c.parent != "" {
				return invalid("object %q has two parents", child)
			}
			c.parent = spec.Name
		}
		if err := t.indexAttrs(spec, obj, devices); err != nil {
			return err
		}
	}

	for _, name := range t.order {
		if t.objs[name].parent != "" {
			continue
		}
		if t.root != "" {
			return invalid("multiple roots %q and %q", t.root, name)
		}
		t.root = name
	}
	if len(t.order) > 0 && t.root == "" {
		return invalid("no root object")
	}
	return nil
}

func (t *Topology) indexAttrs(spec *ObjectSpec, obj *object, devices map[string]bool) error {
	devs := make(map[string]ObjDev, len(spec.Devs))
	for _, d := range spec.Devs {
		if !devices[d.Device] {
			return invalid("object %q dev %q uses unknown device %q", spec.Name, d.Name, d.Device)
		}
		devs[d.Name] = ObjDev{Device: d.Device, Open: d.Open}
	}
	children := make(map[string]bool, len(obj.children))
	for _, c := range obj.children {
		children[c] = true
	}
	for _, a := range spec.Attrs {
		name, err := pwr.ParseAttrName(a.Name)
		if err != nil {
			return invalid("object %q: %v", spec.Name, err)
		}
		if _, dup := obj.attrs[name]; dup {
			return invalid("object %q declares %s twice", spec.Name, name)
		}
		op, err := pwr.ParseValueOp(a.Op)
		if err != nil {
			return invalid("object %q attr %s: %v", spec.Name, name, err)
		}
		if a.Hz < 0 {
			return invalid("object %q attr %s: negative hz", spec.Name, name)
		}
		attr := Attr{Op: op, Hz: a.Hz}
		if attr.Hz == 0 {
			attr.Hz = DefaultHz
		}
		for _, d := range a.Devices {
			dev, ok := devs[d]
			if !ok {
				return invalid("object %q attr %s: unknown dev %q", spec.Name, name, d)
			}
			attr.Devs = append(attr.Devs, dev)
		}
		for _, c := range a.Children {
			full := spec.Name + "." + c
			if !children[full] {
				return invalid("object %q attr %s: %q is not a child", spec.Name, name, c)
			}
			attr.Children = append(attr.Children, full)
		}
		obj.attrs[name] = attr
	}
	return nil
}

func (t *Topology) Root() string { return t.root }

func (t *Topology) Document() Document { return t.doc }

// Objects returns every object name in declaration order.
func (t *Topology) Objects() []string {
	return append([]string(nil), t.order...)
}

func (t *Topology) Has(name string) bool {
	_, ok := t.objs[name]
	return ok
}

func (t *Topology) ObjectType(name string) (pwr.ObjType, error) {
	obj, ok := t.objs[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownObject, name)
	}
	return obj.typ, nil
}

func (t *Topology) Children(name string) []string {
	if obj, ok := t.objs[name]; ok {
		return append([]string(nil), obj.children...)
	}
	return nil
}

func (t *Topology) Parent(name string) string {
	if obj, ok := t.objs[name]; ok {
		return obj.parent
	}
	return ""
}

func (t *Topology) ObjectsOfType(typ pwr.ObjType) []string {
	var out []string
	for _, name := range t.order {
		if t.objs[name].typ == typ {
			out = append(out, name)
		}
	}
	return out
}

func (t *Topology) Plugins() []Plugin { return append([]Plugin(nil), t.doc.Plugins...) }

func (t *Topology) SysDevs() []SysDev { return append([]SysDev(nil), t.doc.Devices...) }

func (t *Topology) Peers() []Peer { return append([]Peer(nil), t.doc.Peers...) }

// Attrs lists the attributes declared on name in ascending order.
func (t *Topology) Attrs(name string) []pwr.AttrName {
	obj, ok := t.objs[name]
	if !ok {
		return nil
	}
	out := make([]pwr.AttrName, 0, len(obj.attrs))
	for a := range obj.attrs {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (t *Topology) Attr(name string, attr pwr.AttrName) (Attr, bool) {
	obj, ok := t.objs[name]
	if !ok {
		return Attr{}, false
	}
	a, ok := obj.attrs[attr]
	return a, ok
}

func (t *Topology) ObjDevs(name string, attr pwr.AttrName) []ObjDev {
	a, _ := t.Attr(name, attr)
	return append([]ObjDev(nil), a.Devs...)
}

func (t *Topology) AttrOp(name string, attr pwr.AttrName) pwr.ValueOp {
	a, _ := t.Attr(name, attr)
	return a.Op
}

func (t *Topology) AttrHz(name string, attr pwr.AttrName) float64 {
	a, ok := t.Attr(name, attr)
	if !ok {
		return 0
	}
	return a.Hz
}

func (t *Topology) AttrChildren(name string, attr pwr.AttrName) []string {
	a, _ := t.Attr(name, attr)
	return append([]string(nil), a.Children...)
}

// Location walks up from name to the nearest object with an owning peer.
func (t *Topology) Location(name string) string {
	for name != "" {
		obj, ok := t.objs[name]
		if !ok {
			return ""
		}
		if obj.peer != "" {
			return obj.peer
		}
		name = obj.parent
	}
	return ""
}

// PeerAddr returns the address of a declared peer.
func (t *Topology) PeerAddr(name string) (string, bool) {
	for _, p := range t.doc.Peers {
		if p.Name == name {
			return p.Addr, true
		}
	}
	return "", false
}
