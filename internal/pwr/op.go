package pwr

import (
	"fmt"
	"strings"
)

// ValueOp combines the values of an attribute's sources into one value.
type ValueOp int32

const (
	OpSum ValueOp = iota
	OpAvg
	OpMax
	OpMin
)

func (op ValueOp) String() string {
	switch op {
	case OpSum:
		return "SUM"
	case OpAvg:
		return "AVG"
	case OpMax:
		return "MAX"
	case OpMin:
		return "MIN"
	default:
		return fmt.Sprintf("op(%d)", int32(op))
	}
}

// ParseValueOp is case-insensitive. An empty string parses as SUM.
func ParseValueOp(raw string) (ValueOp, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "", "SUM":
		return OpSum, nil
	case "AVG":
		return OpAvg, nil
	case "MAX":
		return OpMax, nil
	case "MIN":
		return OpMin, nil
	default:
		return 0, fmt.Errorf("pwr: unknown value op %q", raw)
	}
}

// Combine folds values with op. Combining nothing yields zero.
func (op ValueOp) Combine(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	out := values[0]
	for _, v := range values[1:] {
		switch op {
		case OpMax:
			if v > out {
				out = v
			}
		case OpMin:
			if v < out {
				out = v
			}
		default:
			out += v
		}
	}
	if op == OpAvg {
		out /= float64(len(values))
	}
	return out
}
