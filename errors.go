package seel

import (
	"errors"
	"fmt"
)

// Code categorizes the error kinds spec section 7 enumerates, so
// callers and tests can assert on which kind occurred instead of
// string-matching a message.
type Code string

const (
	CodePHYSend     Code = "phy send failure"
	CodeCRCFail     Code = "phy receive CRC failure"
	CodeDuplicate   Code = "duplicate frame"
	CodeIDCollision Code = "id collision"
	CodeQueueFull   Code = "queue full"
	CodeLostParent  Code = "lost parent"
	CodeLostBeacon  Code = "lost beacon"
	CodeClockJump   Code = "clock jump"
	CodeInvariant   Code = "invariant violation"
)

// Role identifies which node role produced an error, for logging and
// for errors that only make sense on one side of the protocol.
type Role string

const (
	RoleGNODE Role = "GNODE"
	RoleSNODE Role = "SNODE"
)

// Error is a structured SEEL error carrying enough context to log or
// branch on without parsing a message string.
type Error struct {
	Op     string // operation that failed, e.g. "send", "allocateID"
	Role   Role   // GNODE or SNODE ("" if role-agnostic)
	NodeID byte   // node id involved, if any (0 is a valid GNODE id, so check Role too)
	Code   Code
	Msg    string
	Inner  error
}

func (e *Error) Error() string {
	var parts []string
	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.Role != "" {
		parts = append(parts, fmt.Sprintf("role=%s", e.Role))
	}
	if e.Role == RoleSNODE {
		parts = append(parts, fmt.Sprintf("node=%d", e.NodeID))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if len(parts) == 0 {
		return fmt.Sprintf("seel: %s", msg)
	}
	return fmt.Sprintf("seel: %s (%s)", msg, parts[0])
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is reports whether target is a *Error with the same Code, so
// errors.Is(err, &Error{Code: CodeDuplicate}) works without comparing
// every field.
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == te.Code
}

// New creates a structured error not tied to any node.
func New(op string, code Code, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// NewNodeError creates a structured error attributed to a specific
// role and node id.
func NewNodeError(op string, role Role, nodeID byte, code Code, msg string) *Error {
	return &Error{Op: op, Role: role, NodeID: nodeID, Code: code, Msg: msg}
}

// Wrap wraps an existing error with SEEL context, preserving code and
// role/node attribution if inner is already a *Error.
func Wrap(op string, code Code, inner error) *Error {
	if inner == nil {
		return nil
	}
	if e, ok := inner.(*Error); ok {
		return &Error{
			Op:     op,
			Role:   e.Role,
			NodeID: e.NodeID,
			Code:   e.Code,
			Msg:    e.Msg,
			Inner:  e.Inner,
		}
	}
	return &Error{Op: op, Code: code, Msg: inner.Error(), Inner: inner}
}

// IsCode reports whether err is a *Error with the given code.
func IsCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
