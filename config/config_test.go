package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func errors(c *Config) []string {
	names := []string{}

	c.Messages(func(level string, v Variable, message string) {
		if level == "error" {
			names = append(names, v.Name)
		}
	})

	return names
}

func TestDefaults(t *testing.T) {
	c := New()

	c.Validate(true)
	require.False(t, c.HasErrors(), errors(c))

	require.Equal(t, ":8554", c.RTSP.Address)
	require.Equal(t, "digest", c.RTSP.Auth.Scheme)
	require.Equal(t, 60, c.RTSP.SessionTimeout)
	require.NotEmpty(t, c.ID)
	require.NotEmpty(t, c.Name)
}

func TestMerge(t *testing.T) {
	t.Setenv("RTSP_ADDRESS", "554")
	t.Setenv("RTSP_LOG_FORMAT", "JSON")
	t.Setenv("RTSP_AUTH_ENABLE", "true")
	t.Setenv("RTSP_AUTH_USERS", "foo:bar, bar:baz:qux")
	t.Setenv("RTSP_AUTH_PATHS", "/live/**")
	t.Setenv("RTSP_UDP_PORT_MIN", "6000")
	t.Setenv("RTSP_UDP_PORT_MAX", "6100")

	c := New()
	c.Merge()
	c.Validate(true)

	require.False(t, c.HasErrors(), errors(c))
	require.Equal(t, ":554", c.RTSP.Address)
	require.Equal(t, "json", c.Log.Format)
	require.True(t, c.RTSP.Auth.Enable)
	require.Equal(t, []string{"/live/**"}, c.RTSP.Auth.Paths)
	require.Equal(t, map[string]string{"foo": "bar", "bar": "baz:qux"}, c.Credentials())
	require.ElementsMatch(t, []string{
		"log.format",
		"rtsp.address",
		"rtsp.auth.enable",
		"rtsp.auth.users",
		"rtsp.auth.paths",
		"rtsp.udp.port_min",
		"rtsp.udp.port_max",
	}, c.Overrides())
}

func TestMergeInvalid(t *testing.T) {
	t.Setenv("RTSP_LOG_LEVEL", "verbose")
	t.Setenv("RTSP_MAX_SESSIONS", "many")

	c := New()
	c.Merge()

	require.True(t, c.HasErrors())
	require.ElementsMatch(t, []string{"log.level", "rtsp.max_sessions"}, errors(c))
	require.Equal(t, "info", c.Log.Level)
}

func TestValidate(t *testing.T) {
	c := New()

	c.RTSP.Auth.Enable = true
	c.RTSP.UDP.PortMin = 6100
	c.RTSP.UDP.PortMax = 6000
	c.RTSP.SessionTimeout = 0
	c.RTSP.Access.Allow = []string{"10.0.0.0/33"}
	c.RTSP.Auth.Paths = []string{"/live/[a"}
	c.API.Auth.Username = "admin"

	c.Validate(true)

	require.True(t, c.HasErrors())
	require.ElementsMatch(t, []string{
		"rtsp.auth.users",
		"rtsp.udp.port_min",
		"rtsp.session_timeout_sec",
		"rtsp.access.allow",
		"rtsp.auth.paths",
		"api.auth.password",
	}, errors(c))
}

func TestDisguise(t *testing.T) {
	c := New()
	c.RTSP.Auth.Users = []string{"foo:bar"}

	c.Validate(true)

	c.Messages(func(level string, v Variable, message string) {
		if v.Name == "rtsp.auth.users" {
			require.Equal(t, "***", v.Value)
		}
	})
}

func TestConfigCopy(t *testing.T) {
	config1 := New()

	config1.Version = 42
	config1.RTSP.Auth.Users = []string{"foo:bar"}
	config1.RTSP.Access.Block = []string{"127.0.0.1/32"}

	config2 := NewConfigFrom(config1)

	require.Equal(t, int64(42), config2.Version)
	require.Equal(t, []string{"foo:bar"}, config2.RTSP.Auth.Users)

	config1.RTSP.Auth.Users[0] = "bar:foo"
	config1.RTSP.Access.Block[0] = "10.0.0.0/8"

	require.Equal(t, []string{"foo:bar"}, config2.RTSP.Auth.Users)
	require.Equal(t, []string{"127.0.0.1/32"}, config2.RTSP.Access.Block)
}
