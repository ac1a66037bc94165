package api

import (
	"net/http"

	"github.com/datarhei/rtsp/http/api"
	"github.com/datarhei/rtsp/http/handler/util"
	"github.com/datarhei/rtsp/rtsp/server"

	"github.com/labstack/echo/v4"
)

// The ChannelHandler type provides handlers for the published streams
type ChannelHandler struct {
	rtsp server.Server
}

// NewChannel returns a new Channel type. You have to provide an RTSP server instance.
func NewChannel(rtsp server.Server) *ChannelHandler {
	return &ChannelHandler{
		rtsp: rtsp,
	}
}

// ListChannels lists all published streams
func (h *ChannelHandler) ListChannels(c echo.Context) error {
	channels := h.rtsp.Channels()

	list := make([]api.Channel, len(channels))

	for i, ch := range channels {
		list[i].Unmarshal(ch)
	}

	return c.JSON(http.StatusOK, list)
}

// GetChannel returns the stream published on the path
func (h *ChannelHandler) GetChannel(c echo.Context) error {
	path := util.PathWildcardParam(c)

	for _, ch := range h.rtsp.Channels() {
		if ch.Path != path {
			continue
		}

		channel := api.Channel{}
		channel.Unmarshal(ch)

		return c.JSON(http.StatusOK, channel)
	}

	return api.Err(http.StatusNotFound, "", "no stream published on %s", path)
}
