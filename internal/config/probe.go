package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/danmuck/pwrapi/internal/pwr"
	"golang.org/x/sys/unix"
)

// ProbeOptions controls hardware discovery.
type ProbeOptions struct {
	// SysRoot replaces /sys so tests can use a synthetic tree.
	SysRoot string
	// Hostname names the node object; empty uses uname(2).
	Hostname string
	// Lib is the plugin id backing every leaf attribute.
	Lib  string
	Init string
	// Leaves lists the attributes the plugin provides per object type.
	Leaves map[pwr.ObjType][]pwr.AttrName
	// Open builds the device open string for one leaf object. The default
	// is the object's index among objects of its type.
	Open func(t pwr.ObjType, index int) string
}

// DefaultProbeOptions matches node-level power counters.
func DefaultProbeOptions() ProbeOptions {
	return ProbeOptions{
		SysRoot: "/sys",
		Lib:     "xtpm",
		Leaves: map[pwr.ObjType][]pwr.AttrName{
			pwr.ObjNode: {pwr.AttrPower, pwr.AttrEnergy, pwr.AttrPowerLimitMax},
		},
	}
}

const probePlugin = "plugin0"

type probeNode struct {
	spec     *ObjectSpec
	typ      pwr.ObjType
	index    int
	children []*probeNode
}

// Probe builds a platform -> node -> socket -> core tree from sysfs CPU
// topology. Leaves get attributes backed by one device per object type;
// inner objects aggregate their children's attributes with SUM.
func Probe(opts ProbeOptions) (*Topology, error) {
	if opts.SysRoot == "" {
		opts.SysRoot = "/sys"
	}
	if strings.TrimSpace(opts.Lib) == "" {
		return nil, fmt.Errorf("%w: probe needs a plugin lib", ErrInvalidTopology)
	}
	host := opts.Hostname
	if host == "" {
		var err error
		if host, err = nodename(); err != nil {
			return nil, fmt.Errorf("config: uname: %w", err)
		}
	}
	host = strings.ReplaceAll(host, ".", "-")
	if opts.Open == nil {
		opts.Open = func(_ pwr.ObjType, index int) string { return strconv.Itoa(index) }
	}

	counts := make(map[pwr.ObjType]int)
	mk := func(name string, typ pwr.ObjType) *probeNode {
		n := &probeNode{spec: &ObjectSpec{Name: name, Type: typ.String()}, typ: typ, index: counts[typ]}
		counts[typ]++
		return n
	}
	link := func(parent, child *probeNode, short string) {
		parent.children = append(parent.children, child)
		parent.spec.Children = append(parent.spec.Children, short)
	}

	root := mk("plat", pwr.ObjPlatform)
	node := mk("plat."+host, pwr.ObjNode)
	link(root, node, host)

	sockets := readCPUTopology(filepath.Join(opts.SysRoot, "devices/system/cpu"))
	pkgs := make([]int, 0, len(sockets))
	for pkg := range sockets {
		pkgs = append(pkgs, pkg)
	}
	sort.Ints(pkgs)
	for si, pkg := range pkgs {
		short := fmt.Sprintf("socket%d", si)
		sock := mk(node.spec.Name+"."+short, pwr.ObjSocket)
		link(node, sock, short)
		cores := make([]int, 0, len(sockets[pkg]))
		for id := range sockets[pkg] {
			cores = append(cores, id)
		}
		sort.Ints(cores)
		for ci := range cores {
			cshort := fmt.Sprintf("core%d", ci)
			core := mk(sock.spec.Name+"."+cshort, pwr.ObjCore)
			link(sock, core, cshort)
		}
	}

	doc := Document{Plugins: []Plugin{{Name: probePlugin, Lib: opts.Lib}}}
	types := make([]pwr.ObjType, 0, len(opts.Leaves))
	for typ := range opts.Leaves {
		types = append(types, typ)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	for _, typ := range types {
		doc.Devices = append(doc.Devices, SysDev{Name: typ.String(), Plugin: probePlugin, Init: opts.Init})
	}

	var walk func(n *probeNode)
	walk = func(n *probeNode) {
		for _, c := range n.children {
			walk(c)
		}
		if leaf, ok := opts.Leaves[n.typ]; ok {
			n.spec.Devs = []DevSpec{{Name: "dev0", Device: n.typ.String(), Open: opts.Open(n.typ, n.index)}}
			for _, a := range leaf {
				n.spec.Attrs = append(n.spec.Attrs, AttrSpec{Name: a.String(), Op: pwr.OpSum.String(), Hz: DefaultHz, Devices: []string{"dev0"}})
			}
		} else if len(n.children) > 0 {
			first := n.children[0].spec
			for _, a := range first.Attrs {
				attr := AttrSpec{Name: a.Name, Op: pwr.OpSum.String(), Hz: DefaultHz}
				attr.Children = append(attr.Children, n.spec.Children...)
				n.spec.Attrs = append(n.spec.Attrs, attr)
			}
		}
	}
	walk(root)

	var collect func(n *probeNode)
	collect = func(n *probeNode) {
		doc.Objects = append(doc.Objects, *n.spec)
		for _, c := range n.children {
			collect(c)
		}
	}
	collect(root)
	return New(doc)
}

// readCPUTopology maps physical package id to its set of core ids.
func readCPUTopology(cpuBase string) map[int]map[int]struct{} {
	out := make(map[int]map[int]struct{})
	entries, err := os.ReadDir(cpuBase)
	if err != nil {
		return out
	}
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "cpu") {
			continue
		}
		suffix := name[3:]
		if len(suffix) == 0 || suffix[0] < '0' || suffix[0] > '9' {
			continue
		}
		dir := filepath.Join(cpuBase, name, "topology")
		pkg, err1 := readSysfsInt(filepath.Join(dir, "physical_package_id"))
		core, err2 := readSysfsInt(filepath.Join(dir, "core_id"))
		if err1 != nil || err2 != nil {
			continue
		}
		if out[pkg] == nil {
			out[pkg] = make(map[int]struct{})
		}
		out[pkg][core] = struct{}{}
	}
	return out
}

func readSysfsInt(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(raw)))
}

func nodename() (string, error) {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return "", err
	}
	return unix.ByteSliceToString(u.Nodename[:]), nil
}
