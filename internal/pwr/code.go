package pwr

import (
	"errors"
	"fmt"
)

// Code is a per-operation result code. Non-success codes satisfy error so
// they can travel through ordinary error returns and be recovered with
// errors.As.
type Code int32

const (
	CodeSuccess        Code = 0
	CodeFailure        Code = -1
	CodeNotImplemented Code = -2
	CodeEmpty          Code = -3
	CodeInvalid        Code = -4
	CodeLength         Code = -5
	CodeNoAttrib       Code = -6
	CodeNoMeta         Code = -7
	CodeReadOnly       Code = -8
	CodeBadValue       Code = -9
	CodeBadIndex       Code = -10
	CodeOpNotAttempted Code = -11
	CodeOpNoPerm       Code = -12
	CodeOutOfRange     Code = -13
	CodeChannelLost    Code = -14
)

var codeNames = map[Code]string{
	CodeSuccess:        "success",
	CodeFailure:        "failure",
	CodeNotImplemented: "not implemented",
	CodeEmpty:          "empty",
	CodeInvalid:        "invalid",
	CodeLength:         "length",
	CodeNoAttrib:       "no attribute",
	CodeNoMeta:         "no metadata",
	CodeReadOnly:       "read only",
	CodeBadValue:       "bad value",
	CodeBadIndex:       "bad index",
	CodeOpNotAttempted: "operation not attempted",
	CodeOpNoPerm:       "operation not permitted",
	CodeOutOfRange:     "out of range",
	CodeChannelLost:    "channel lost",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("code(%d)", int32(c))
}

func (c Code) Error() string {
	return "pwr: " + c.String()
}

// Err returns nil for CodeSuccess and c otherwise.
func (c Code) Err() error {
	if c == CodeSuccess {
		return nil
	}
	return c
}

// CodeOf maps an error to the code carried on the wire. Errors that are not a
// Code collapse to CodeFailure.
func CodeOf(err error) Code {
	if err == nil {
		return CodeSuccess
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	return CodeFailure
}
