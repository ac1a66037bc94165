package api

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInvalidConfig(t *testing.T) {
	t.Setenv("RTSP_AUTH_ENABLE", "true")

	_, err := New(nil)
	require.Error(t, err)
}

func TestStartStop(t *testing.T) {
	t.Setenv("RTSP_ADDRESS", "127.0.0.1:0")
	t.Setenv("RTSP_API_ADDRESS", "127.0.0.1:0")
	t.Setenv("RTSP_METRICS_ENABLE_PROMETHEUS", "true")
	t.Setenv("RTSP_AUTH_ENABLE", "true")
	t.Setenv("RTSP_AUTH_USERS", "foo:bar")

	a, err := New(nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	require.NoError(t, a.Start(ctx))

	a.Destroy()
}
