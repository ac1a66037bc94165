package prometheus

import (
	"github.com/datarhei/rtsp/rtsp/server"

	"github.com/prometheus/client_golang/prometheus"
)

// ChannelReader is implemented by the RTSP server.
type ChannelReader interface {
	Channels() []server.Channel
}

type channelCollector struct {
	name   string
	reader ChannelReader

	channelsDesc    *prometheus.Desc
	subscribersDesc *prometheus.Desc
	packetsDesc     *prometheus.Desc
	unitsDesc       *prometheus.Desc
	droppedDesc     *prometheus.Desc
	errorsDesc      *prometheus.Desc
}

// NewChannelCollector exports the publishing channels and their medias.
func NewChannelCollector(name string, r ChannelReader) prometheus.Collector {
	return &channelCollector{
		name:   name,
		reader: r,
		channelsDesc: prometheus.NewDesc(
			"rtsp_channels",
			"Current number of publishing channels",
			[]string{"server"}, nil),
		subscribersDesc: prometheus.NewDesc(
			"rtsp_channel_subscribers",
			"Current number of players of a channel",
			[]string{"server", "path"}, nil),
		packetsDesc: prometheus.NewDesc(
			"rtsp_media_packets",
			"Number of received RTP packets of a media",
			[]string{"server", "path", "media", "codec"}, nil),
		unitsDesc: prometheus.NewDesc(
			"rtsp_media_units",
			"Number of reassembled access units of a media",
			[]string{"server", "path", "media", "codec"}, nil),
		droppedDesc: prometheus.NewDesc(
			"rtsp_media_dropped",
			"Number of access units dropped because of packet loss",
			[]string{"server", "path", "media", "codec"}, nil),
		errorsDesc: prometheus.NewDesc(
			"rtsp_media_errors",
			"Number of packets that couldn't be reassembled",
			[]string{"server", "path", "media", "codec"}, nil),
	}
}

func (c *channelCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.channelsDesc
	ch <- c.subscribersDesc
	ch <- c.packetsDesc
	ch <- c.unitsDesc
	ch <- c.droppedDesc
	ch <- c.errorsDesc
}

func (c *channelCollector) Collect(ch chan<- prometheus.Metric) {
	channels := c.reader.Channels()

	ch <- prometheus.MustNewConstMetric(c.channelsDesc, prometheus.GaugeValue, float64(len(channels)), c.name)

	for _, channel := range channels {
		ch <- prometheus.MustNewConstMetric(c.subscribersDesc, prometheus.GaugeValue, float64(channel.Subscribers), c.name, channel.Path)

		for _, m := range channel.Medias {
			ch <- prometheus.MustNewConstMetric(c.packetsDesc, prometheus.CounterValue, float64(m.Packets), c.name, channel.Path, m.Control, m.Codec)
			ch <- prometheus.MustNewConstMetric(c.unitsDesc, prometheus.CounterValue, float64(m.Units), c.name, channel.Path, m.Control, m.Codec)
			ch <- prometheus.MustNewConstMetric(c.droppedDesc, prometheus.CounterValue, float64(m.Dropped), c.name, channel.Path, m.Control, m.Codec)
			ch <- prometheus.MustNewConstMetric(c.errorsDesc, prometheus.CounterValue, float64(m.Errors), c.name, channel.Path, m.Control, m.Codec)
		}
	}
}
