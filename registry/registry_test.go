package registry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vidbridge/vidbridge/apperrors"
)

func TestRegisterAndResolve(t *testing.T) {
	reg := NewRegistryImpl()

	reg.Register("s1", "android")

	s, err := reg.Resolve("s1")
	require.NoError(t, err)
	require.Equal(t, "s1", s.SessionId)
	require.Equal(t, "android", s.Device)
}

func TestRegisterIsIdempotentUpsert(t *testing.T) {
	reg := NewRegistryImpl()

	reg.Register("s1", "android")
	reg.Register("s1", "dashboard")

	s, err := reg.Resolve("s1")
	require.NoError(t, err)
	require.Equal(t, "dashboard", s.Device)
}

func TestResolveUnknownSession(t *testing.T) {
	reg := NewRegistryImpl()

	_, err := reg.Resolve("nope")
	require.ErrorIs(t, err, apperrors.ErrTargetNotFound)
}

func TestUnregisterRemovesSession(t *testing.T) {
	reg := NewRegistryImpl()

	reg.Register("s1", "android")
	reg.Unregister("s1")

	_, err := reg.Resolve("s1")
	require.ErrorIs(t, err, apperrors.ErrTargetNotFound)
	require.Empty(t, reg.BroadcastRecipients("", "android"))
}

func TestBroadcastExcludesSender(t *testing.T) {
	reg := NewRegistryImpl()

	reg.Register("sender", "android")
	reg.Register("recv1", "android")
	reg.Register("recv2", "android")

	got := reg.BroadcastRecipients("sender", "android")
	require.ElementsMatch(t, []string{"recv1", "recv2"}, got)
}

func TestBroadcastFiltersByDevice(t *testing.T) {
	reg := NewRegistryImpl()

	reg.Register("a", "android")
	reg.Register("d", "dashboard")
	reg.Register("u", "") // connected but never registered a role

	got := reg.BroadcastRecipients("", "android")
	require.Equal(t, []string{"a"}, got)
}

func TestEmptyDeviceMakesSessionIneligible(t *testing.T) {
	reg := NewRegistryImpl()

	reg.Register("s1", "android")
	// registering with an empty device is the unregister-role signal
	reg.Register("s1", "")

	require.Empty(t, reg.BroadcastRecipients("", "android"))

	// but the connection itself is still known
	_, err := reg.Resolve("s1")
	require.NoError(t, err)
}
