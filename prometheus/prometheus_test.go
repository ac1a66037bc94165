package prometheus

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/datarhei/rtsp/rtsp/server"
	"github.com/datarhei/rtsp/session"

	"github.com/stretchr/testify/require"
)

type channels []server.Channel

func (c channels) Channels() []server.Channel {
	return c
}

func scrape(t *testing.T, m Metrics) string {
	rec := httptest.NewRecorder()
	m.HTTPHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	data, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	return string(data)
}

func TestMetrics(t *testing.T) {
	collector := session.NewCollector(session.CollectorConfig{})
	defer collector.Close()

	collector.Register("foobar", "/live", "publish", "", 0, nil)
	collector.Ingress("foobar", 1024)

	m := New()

	require.NoError(t, m.Register(NewSessionCollector("test", collector)))
	require.NoError(t, m.Register(NewUptimeCollector("test", time.Now())))
	require.NoError(t, m.Register(NewChannelCollector("test", channels{
		{
			Path:        "/live",
			Subscribers: 2,
			Medias: []server.Media{
				{Codec: "H264", Control: "trackID=0", Packets: 10, Units: 4},
			},
		},
	})))

	body := scrape(t, m)

	require.Contains(t, body, `session_active{server="test"} 1`)
	require.Contains(t, body, `session_rx_bytes{server="test"} 1024`)
	require.Contains(t, body, `rtsp_channels{server="test"} 1`)
	require.Contains(t, body, `rtsp_channel_subscribers{path="/live",server="test"} 2`)
	require.Contains(t, body, `rtsp_media_packets{codec="H264",media="trackID=0",path="/live",server="test"} 10`)
	require.Contains(t, body, "uptime_seconds")

	m.UnregisterAll()

	require.NotContains(t, scrape(t, m), "session_active")
}
