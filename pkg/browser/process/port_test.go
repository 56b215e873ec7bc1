package process

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listenAny(t *testing.T) (net.Listener, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	return ln, ln.Addr().(*net.TCPAddr).Port
}

func TestAllocatePort_Explicit(t *testing.T) {
	_, busy := listenAny(t)

	_, err := AllocatePort(busy, 0)
	assert.Error(t, err)

	free, err := ephemeralPort()
	require.NoError(t, err)
	got, err := AllocatePort(free, 9515)
	require.NoError(t, err)
	assert.Equal(t, free, got)
}

func TestAllocatePort_ProbesPastBusyDefault(t *testing.T) {
	_, busy := listenAny(t)

	got, err := AllocatePort(0, busy)
	require.NoError(t, err)
	assert.NotEqual(t, busy, got)
	assert.True(t, PortFree(got))
}

func TestAllocatePort_NoDefault(t *testing.T) {
	got, err := AllocatePort(0, 0)
	require.NoError(t, err)
	assert.Greater(t, got, 0)
}

func TestRingBuffer(t *testing.T) {
	rb := newRingBuffer(8)
	_, _ = rb.Write([]byte("hello "))
	_, _ = rb.Write([]byte("world"))
	assert.Equal(t, "lo world", rb.String())

	assert.Equal(t, "b | c", lastLines("a\n\nb\n  c  \n", 2))
	assert.Equal(t, "", lastLines("", 3))
}
