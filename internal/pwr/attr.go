package pwr

import (
	"fmt"
	"strings"
)

// AttrName identifies one measurable or controllable quantity on an object.
type AttrName int32

const (
	AttrPState AttrName = iota
	AttrCState
	AttrCStateLimit
	AttrSState
	AttrCurrent
	AttrVoltage
	AttrPower
	AttrPowerLimitMin
	AttrPowerLimitMax
	AttrFreq
	AttrFreqLimitMin
	AttrFreqLimitMax
	AttrEnergy
	AttrTemp
	AttrOSID
	AttrThrottledTime
	AttrThrottledCount
	AttrGov

	NumAttrNames
)

var attrNames = [NumAttrNames]string{
	AttrPState:         "pstate",
	AttrCState:         "cstate",
	AttrCStateLimit:    "cstate_limit",
	AttrSState:         "sstate",
	AttrCurrent:        "current",
	AttrVoltage:        "voltage",
	AttrPower:          "power",
	AttrPowerLimitMin:  "power_limit_min",
	AttrPowerLimitMax:  "power_limit_max",
	AttrFreq:           "freq",
	AttrFreqLimitMin:   "freq_limit_min",
	AttrFreqLimitMax:   "freq_limit_max",
	AttrEnergy:         "energy",
	AttrTemp:           "temp",
	AttrOSID:           "os_id",
	AttrThrottledTime:  "throttled_time",
	AttrThrottledCount: "throttled_count",
	AttrGov:            "gov",
}

// Valid reports whether a is inside the attribute name range.
func (a AttrName) Valid() bool {
	return a >= 0 && a < NumAttrNames
}

func (a AttrName) String() string {
	if !a.Valid() {
		return fmt.Sprintf("attr(%d)", int32(a))
	}
	return attrNames[a]
}

// ParseAttrName accepts the lower-case name with or without the "attr_" prefix.
func ParseAttrName(raw string) (AttrName, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	v = strings.TrimPrefix(v, "attr_")
	for i, name := range attrNames {
		if name == v {
			return AttrName(i), nil
		}
	}
	return 0, fmt.Errorf("pwr: unknown attribute %q", raw)
}

// ObjType is the level of an object in the machine hierarchy.
type ObjType int32

const (
	ObjPlatform ObjType = iota
	ObjCabinet
	ObjChassis
	ObjBoard
	ObjNode
	ObjSocket
	ObjCore
	ObjPowerPlane
	ObjMem
	ObjNIC

	NumObjTypes
)

var objTypes = [NumObjTypes]string{
	ObjPlatform:   "platform",
	ObjCabinet:    "cabinet",
	ObjChassis:    "chassis",
	ObjBoard:      "board",
	ObjNode:       "node",
	ObjSocket:     "socket",
	ObjCore:       "core",
	ObjPowerPlane: "power_plane",
	ObjMem:        "mem",
	ObjNIC:        "nic",
}

func (t ObjType) Valid() bool {
	return t >= 0 && t < NumObjTypes
}

func (t ObjType) String() string {
	if !t.Valid() {
		return fmt.Sprintf("objtype(%d)", int32(t))
	}
	return objTypes[t]
}

// ParseObjType accepts the lower-case type name; "plat" is an alias for platform.
func ParseObjType(raw string) (ObjType, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "plat" {
		return ObjPlatform, nil
	}
	for i, name := range objTypes {
		if name == v {
			return ObjType(i), nil
		}
	}
	return 0, fmt.Errorf("pwr: unknown object type %q", raw)
}
