package api

import (
	"net/http"

	"github.com/datarhei/rtsp/http/api"
	"github.com/datarhei/rtsp/session"

	"github.com/labstack/echo/v4"
)

// The SessionHandler type provides handlers to retrieve session information
type SessionHandler struct {
	collector session.Collector
}

// NewSession returns a new Session type. You have to provide a session collector.
func NewSession(collector session.Collector) *SessionHandler {
	return &SessionHandler{
		collector: collector,
	}
}

// Summary returns a summary of the active sessions and the totals
func (s *SessionHandler) Summary(c echo.Context) error {
	summary := api.SessionSummary{}
	summary.Unmarshal(s.collector.Summary())

	return c.JSON(http.StatusOK, summary)
}

// Active returns a list of active sessions
func (s *SessionHandler) Active(c echo.Context) error {
	sessions := s.collector.Active()

	active := make([]api.Session, len(sessions))

	for i, sess := range sessions {
		active[i].Unmarshal(sess)
	}

	return c.JSON(http.StatusOK, active)
}
