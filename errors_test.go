package seel

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStructuredError(t *testing.T) {
	err := New("send", CodeQueueFull, "data queue full")
	require.Equal(t, "send", err.Op)
	require.Equal(t, CodeQueueFull, err.Code)
	require.Equal(t, "seel: data queue full (op=send)", err.Error())
}

func TestNodeError(t *testing.T) {
	err := NewNodeError("allocateID", RoleSNODE, 42, CodeIDCollision, "requested id already pending")
	require.Equal(t, byte(42), err.NodeID)
	require.Equal(t, "seel: requested id already pending (op=allocateID)", err.Error())
}

func TestErrorWithoutMessageFallsBackToCode(t *testing.T) {
	err := New("", CodeLostBeacon, "")
	require.Equal(t, "seel: lost beacon", err.Error())
}

func TestWrapPreservesRoleAndCode(t *testing.T) {
	inner := NewNodeError("send", RoleSNODE, 7, CodePHYSend, "radio busy")
	wrapped := Wrap("retrySend", CodeQueueFull, inner)

	require.Equal(t, CodePHYSend, wrapped.Code, "wrap preserves the inner error's code")
	require.Equal(t, RoleSNODE, wrapped.Role)
	require.Equal(t, byte(7), wrapped.NodeID)
	require.ErrorIs(t, wrapped, inner)
}

func TestWrapOfNilIsNil(t *testing.T) {
	require.Nil(t, Wrap("op", CodeInvariant, nil))
}

func TestIsCode(t *testing.T) {
	err := New("op", CodeDuplicate, "seen before")
	require.True(t, IsCode(err, CodeDuplicate))
	require.False(t, IsCode(err, CodeCRCFail))
	require.False(t, IsCode(nil, CodeDuplicate))
}

func TestErrorsIsMatchesByCodeAlone(t *testing.T) {
	err := NewNodeError("send", RoleGNODE, 0, CodeIDCollision, "collision for id 42")
	require.True(t, errors.Is(err, &Error{Code: CodeIDCollision}))
	require.False(t, errors.Is(err, &Error{Code: CodeDuplicate}))
}
