package api

import (
	"github.com/datarhei/rtsp/rtsp/server"
)

// Channel is a published stream
type Channel struct {
	Path        string         `json:"path"`
	Session     string         `json:"session"`
	Remote      string         `json:"remote"`
	Pull        bool           `json:"pull"`
	CreatedAt   int64          `json:"created_at"`
	Subscribers int            `json:"subscribers"`
	Medias      []ChannelMedia `json:"medias"`
}

// ChannelMedia represents a media of a channel and its reassembly statistics
type ChannelMedia struct {
	Type    string `json:"type"`
	Codec   string `json:"codec"`
	Control string `json:"control"`
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
	Packets uint64 `json:"packets"`
	Units   uint64 `json:"units"`
	Dropped uint64 `json:"dropped"`
	Errors  uint64 `json:"errors"`
}

// Unmarshal converts a server channel to a channel in API representation
func (c *Channel) Unmarshal(ch server.Channel) {
	c.Path = ch.Path
	c.Session = ch.Session
	c.Remote = ch.Remote
	c.Pull = ch.IsPull
	c.CreatedAt = ch.CreatedAt.Unix()
	c.Subscribers = ch.Subscribers
	c.Medias = make([]ChannelMedia, len(ch.Medias))

	for i, m := range ch.Medias {
		c.Medias[i] = ChannelMedia{
			Type:    m.Type,
			Codec:   m.Codec,
			Control: m.Control,
			Width:   m.Width,
			Height:  m.Height,
			Packets: m.Packets,
			Units:   m.Units,
			Dropped: m.Dropped,
			Errors:  m.Errors,
		}
	}
}
