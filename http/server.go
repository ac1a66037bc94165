// Package http provides the management API of the RTSP server.
package http

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/datarhei/rtsp/http/errorhandler"
	"github.com/datarhei/rtsp/http/handler"
	api "github.com/datarhei/rtsp/http/handler/api"
	"github.com/datarhei/rtsp/http/validator"
	"github.com/datarhei/rtsp/log"
	"github.com/datarhei/rtsp/net"
	"github.com/datarhei/rtsp/prometheus"
	rtspserver "github.com/datarhei/rtsp/rtsp/server"
	"github.com/datarhei/rtsp/session"

	mwiplimit "github.com/datarhei/rtsp/http/middleware/iplimit"
	mwlog "github.com/datarhei/rtsp/http/middleware/log"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type Config struct {
	Logger    log.Logger
	LogBuffer log.BufferWriter

	// RTSP is the server whose channels are listed and that relays the pulls.
	RTSP     rtspserver.Server
	Sessions session.Collector

	// Prometheus serves /metrics. Optional.
	Prometheus prometheus.Reader

	IPLimiter net.IPLimiter

	// Username and Password for HTTP basic auth on /api. No auth if
	// Username is empty.
	Username string
	Password string

	ID        string
	Name      string
	CreatedAt time.Time
}

type Server interface {
	ServeHTTP(w http.ResponseWriter, r *http.Request)

	// Close stops all pulls that have been started through the API.
	Close()
}

type server struct {
	logger log.Logger

	handler struct {
		about      *api.AboutHandler
		prometheus *handler.PrometheusHandler
		ping       *handler.PingHandler
	}

	v1handler struct {
		log     *api.LogHandler
		channel *api.ChannelHandler
		session *api.SessionHandler
		pull    *api.PullHandler
	}

	middleware struct {
		iplimit echo.MiddlewareFunc
		log     echo.MiddlewareFunc
		auth    echo.MiddlewareFunc
	}

	router *echo.Echo
}

func NewServer(config Config) (Server, error) {
	s := &server{
		logger: config.Logger,
	}

	if s.logger == nil {
		s.logger = log.New("HTTP")
	}

	if config.Sessions == nil {
		config.Sessions = session.NewNullCollector()
	}

	if config.CreatedAt.IsZero() {
		config.CreatedAt = time.Now()
	}

	s.handler.about = api.NewAbout(config.ID, config.Name, config.CreatedAt)
	s.handler.ping = handler.NewPing()

	if config.Prometheus != nil {
		s.handler.prometheus = handler.NewPrometheus(config.Prometheus.HTTPHandler())
	}

	s.v1handler.log = api.NewLog(config.LogBuffer)
	s.v1handler.session = api.NewSession(config.Sessions)

	if config.RTSP != nil {
		s.v1handler.channel = api.NewChannel(config.RTSP)
		s.v1handler.pull = api.NewPull(config.RTSP, s.logger.WithComponent("Pull"))
	}

	if config.IPLimiter != nil {
		s.middleware.iplimit = mwiplimit.NewWithConfig(mwiplimit.Config{
			Limiter: config.IPLimiter,
		})
	}

	if len(config.Username) != 0 {
		username, password := config.Username, config.Password

		s.middleware.auth = middleware.BasicAuth(func(user, pass string, c echo.Context) (bool, error) {
			if subtle.ConstantTimeCompare([]byte(user), []byte(username)) == 1 &&
				subtle.ConstantTimeCompare([]byte(pass), []byte(password)) == 1 {
				return true, nil
			}

			return false, nil
		})
	}

	s.middleware.log = mwlog.NewWithConfig(mwlog.Config{
		Logger: s.logger,
	})

	s.router = echo.New()
	s.router.HTTPErrorHandler = errorhandler.HTTPErrorHandler
	s.router.Validator = validator.New()
	s.router.Use(s.middleware.log)
	s.router.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			rows := strings.Split(string(stack), "\n")
			s.logger.Error().WithField("stack", rows).Log("recovered from a panic")
			return nil
		},
	}))

	s.router.HideBanner = true
	s.router.HidePort = true

	s.router.Logger.SetOutput(s.logger)

	s.setRoutes()

	return s, nil
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *server) Close() {
	if s.v1handler.pull != nil {
		s.v1handler.pull.Close()
	}
}

func (s *server) setRoutes() {
	s.router.GET("/ping", s.handler.ping.Ping)

	if s.handler.prometheus != nil {
		metrics := s.router.Group("/metrics")
		if s.middleware.iplimit != nil {
			metrics.Use(s.middleware.iplimit)
		}

		metrics.GET("", s.handler.prometheus.Metrics)
	}

	// API router group
	api := s.router.Group("/api")

	if s.middleware.iplimit != nil {
		api.Use(s.middleware.iplimit)
	}

	if s.middleware.auth != nil {
		api.Use(s.middleware.auth)
	}

	api.GET("", s.handler.about.About)

	s.setRoutesV1(api.Group("/v1"))
}

func (s *server) setRoutesV1(v1 *echo.Group) {
	v1.GET("/log", s.v1handler.log.Log)

	v1.GET("/session", s.v1handler.session.Summary)
	v1.GET("/session/active", s.v1handler.session.Active)

	if s.v1handler.channel != nil {
		v1.GET("/channel", s.v1handler.channel.ListChannels)
		v1.GET("/channel/*", s.v1handler.channel.GetChannel)
	}

	if s.v1handler.pull != nil {
		v1.GET("/pull", s.v1handler.pull.List)
		v1.POST("/pull", s.v1handler.pull.Add)
		v1.DELETE("/pull/:id", s.v1handler.pull.Delete)
	}
}
