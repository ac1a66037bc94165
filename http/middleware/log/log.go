// Package log implements a logging middleware
package log

import (
	"net/http"
	"time"

	"github.com/datarhei/rtsp/log"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type Config struct {
	// Skipper defines a function to skip middleware.
	Skipper middleware.Skipper
	Logger  log.Logger
}

var DefaultConfig = Config{
	Skipper: middleware.DefaultSkipper,
	Logger:  log.New("HTTP"),
}

func New() echo.MiddlewareFunc {
	return NewWithConfig(DefaultConfig)
}

// NewWithConfig returns a middleware for logging HTTP requests. Failed requests
// are logged as warnings, all others on debug level.
func NewWithConfig(config Config) echo.MiddlewareFunc {
	if config.Skipper == nil {
		config.Skipper = DefaultConfig.Skipper
	}

	if config.Logger == nil {
		config.Logger = DefaultConfig.Logger
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if config.Skipper(c) {
				return next(c)
			}

			start := time.Now()

			req := c.Request()
			res := c.Response()

			if err := next(c); err != nil {
				c.Error(err)
			}

			path := req.URL.Path
			if raw := req.URL.RawQuery; raw != "" {
				path = path + "?" + raw
			}

			logger := config.Logger.WithFields(log.Fields{
				"client":      c.RealIP(),
				"method":      req.Method,
				"path":        path,
				"status":      res.Status,
				"status_text": http.StatusText(res.Status),
				"size_bytes":  res.Size,
				"latency_ms":  time.Since(start).Milliseconds(),
			})

			if res.Status >= 400 {
				logger.Warn().Log("")
			} else {
				logger.Debug().Log("")
			}

			return nil
		}
	}
}
