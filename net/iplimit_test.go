package net

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIPLimiterNew(t *testing.T) {
	_, err := NewIPLimiter([]string{}, []string{})
	require.NoError(t, err)

	_, err = NewIPLimiter([]string{"::1/128", "127.0.0.1"}, []string{" ", "10.0.0.0/8"})
	require.NoError(t, err)

	_, err = NewIPLimiter([]string{"foobar"}, []string{})
	require.Error(t, err)

	_, err = NewIPLimiter([]string{}, []string{"10.0.0.0/33"})
	require.Error(t, err)
}

func TestIPLimiterBlock(t *testing.T) {
	l, err := NewIPLimiter([]string{"192.168.1.0/24", "::1"}, nil)
	require.NoError(t, err)

	require.False(t, l.IsAllowed("192.168.1.10"))
	require.False(t, l.IsAllowed("192.168.1.10:5554"))
	require.False(t, l.IsAllowed("[::1]:554"))
	require.True(t, l.IsAllowed("192.168.2.10:5554"))
	require.False(t, l.IsAllowed("not-an-ip"))
}

func TestIPLimiterAllow(t *testing.T) {
	l, err := NewIPLimiter([]string{"10.0.0.1"}, []string{"10.0.0.0/8"})
	require.NoError(t, err)

	require.True(t, l.IsAllowed("10.1.2.3:554"))
	require.False(t, l.IsAllowed("10.0.0.1:554"))
	require.False(t, l.IsAllowed("127.0.0.1:554"))
}

func TestNullIPLimiter(t *testing.T) {
	require.True(t, NewNullIPLimiter().IsAllowed("anything"))
}
