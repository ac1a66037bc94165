package api

import (
	"net/http"
	"strings"

	"github.com/datarhei/rtsp/http/handler/util"
	"github.com/datarhei/rtsp/log"

	"github.com/labstack/echo/v4"
)

// The LogHandler type provides handler functions for reading the application log
type LogHandler struct {
	buffer log.BufferWriter
}

// NewLog return a new Log type. You have to provide log buffer.
func NewLog(buffer log.BufferWriter) *LogHandler {
	l := &LogHandler{
		buffer: buffer,
	}

	if l.buffer == nil {
		l.buffer = log.NewBufferWriter(log.Lsilent, 1)
	}

	return l
}

// Log returns the last log lines, either formatted ("console") or as fields ("raw").
func (p *LogHandler) Log(c echo.Context) error {
	format := util.DefaultQuery(c, "format", "console")

	events := p.buffer.Events()

	if format == "raw" {
		lines := make([]map[string]interface{}, len(events))

		for i, e := range events {
			fields := map[string]interface{}{}
			for k, v := range e.Data {
				fields[k] = v
			}

			fields["ts"] = e.Time
			fields["level"] = e.Level.String()
			fields["component"] = e.Component

			if len(e.Caller) != 0 {
				fields["caller"] = e.Caller
			}

			if len(e.Message) != 0 {
				fields["message"] = e.Message
			}

			lines[i] = fields
		}

		return c.JSON(http.StatusOK, lines)
	}

	formatter := log.NewConsoleFormatter(false)

	lines := make([]string, len(events))

	for i, e := range events {
		lines[i] = strings.TrimSpace(formatter.String(e))
	}

	return c.JSON(http.StatusOK, lines)
}
