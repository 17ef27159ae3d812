package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandleStringRoundTrip(t *testing.T) {
	h := Handle(0xABCD)
	require.Equal(t, ":abcd", h.String())

	got, ok := ParseHandle(":abcd")
	require.True(t, ok)
	require.Equal(t, h, got)
}

func TestParseHandleRejectsNonNumericForm(t *testing.T) {
	_, ok := ParseHandle(".foo")
	require.False(t, ok)

	_, ok = ParseHandle("abcd")
	require.False(t, ok)
}

func TestParseHandleRejectsOutOfRange(t *testing.T) {
	_, ok := ParseHandle(":ffffffff")
	require.False(t, ok)
}

func TestIsAlias(t *testing.T) {
	name, ok := IsAlias(".launcher")
	require.True(t, ok)
	require.Equal(t, "launcher", name)

	_, ok = IsAlias(":1")
	require.False(t, ok)
}
