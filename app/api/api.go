package api

import (
	"context"
	"fmt"
	"io"
	golog "log"
	gohttp "net/http"
	"strings"
	"sync"
	"time"

	"github.com/datarhei/rtsp/app"
	"github.com/datarhei/rtsp/config"
	"github.com/datarhei/rtsp/http"
	"github.com/datarhei/rtsp/log"
	"github.com/datarhei/rtsp/net"
	"github.com/datarhei/rtsp/prometheus"
	"github.com/datarhei/rtsp/rtsp/auth"
	rtspserver "github.com/datarhei/rtsp/rtsp/server"
	"github.com/datarhei/rtsp/session"

	"go.uber.org/automaxprocs/maxprocs"
)

// The API interface is the implementation for the RTSP server app.
type API interface {
	// Start starts the app. This is blocking until the app has
	// been ended with Stop() or Destroy() or one of the servers
	// failed. In the first case a nil error is returned.
	Start(ctx context.Context) error

	// Stop stops the app.
	Stop()

	// Destroy is the same as Stop().
	Destroy()
}

type api struct {
	rtspserver rtspserver.Server
	sessions   session.Collector
	prom       prometheus.Metrics
	httpserver http.Server
	mainserver *gohttp.Server

	errorChan chan error

	log struct {
		writer io.Writer
		buffer log.BufferWriter
		logger struct {
			core log.Logger
			main log.Logger
			rtsp log.Logger
		}
	}

	config *config.Config

	lock      sync.Mutex
	wgStop    sync.WaitGroup
	state     string
	createdAt time.Time

	undoMaxprocs func()
}

// New returns a new instance of the API interface. The configuration is read
// from the environment.
func New(logwriter io.Writer) (API, error) {
	a := &api{
		state: "idle",
	}

	a.log.writer = logwriter

	if a.log.writer == nil {
		a.log.writer = io.Discard
	}

	if err := a.loadConfig(); err != nil {
		return nil, err
	}

	return a, nil
}

func (a *api) loadConfig() error {
	logger := log.New("Core").WithOutput(log.NewConsoleWriter(a.log.writer, log.Lwarn, true))

	cfg := config.New()
	cfg.Merge()
	cfg.Validate(false)

	loglevel, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		loglevel = log.Linfo
	}

	buffer := log.NewBufferWriter(loglevel, cfg.Log.MaxLines)

	var output log.Writer

	if cfg.Log.Format == "json" {
		output = log.NewJSONWriter(a.log.writer, loglevel)
	} else {
		output = log.NewConsoleWriter(a.log.writer, loglevel, true)
	}

	logger = logger.WithOutput(
		log.NewMultiWriter(
			log.NewTopicWriter(output, cfg.Log.Topics),
			buffer,
		),
	)

	logfields := log.Fields{
		"application": app.Name,
		"version":     app.Version.String(),
		"arch":        app.Arch,
		"compiler":    app.Compiler,
	}

	if len(app.Commit) != 0 && len(app.Branch) != 0 {
		logfields["commit"] = app.Commit
		logfields["branch"] = app.Branch
	}

	if len(app.Build) != 0 {
		logfields["build"] = app.Build
	}

	logger.Info().WithFields(logfields).Log("")

	configlogger := logger.WithComponent("Config")
	cfg.Messages(func(level string, v config.Variable, message string) {
		configlogger = configlogger.WithFields(log.Fields{
			"variable":    v.Name,
			"value":       v.Value,
			"env":         v.EnvName,
			"description": v.Description,
			"override":    v.Merged,
		})
		configlogger.Debug().Log(message)

		switch level {
		case "warn":
			configlogger.Warn().Log(message)
		case "error":
			configlogger.Error().WithField("error", message).Log("")
		default:
			break
		}
	})

	if cfg.HasErrors() {
		logger.Error().WithField("error", "Not all variables are set or are valid. Check the error messages above. Bailing out.").Log("")
		return fmt.Errorf("not all variables are set or valid")
	}

	a.config = cfg
	a.log.logger.core = logger
	a.log.buffer = buffer

	return nil
}

func (a *api) start() error {
	a.lock.Lock()
	defer a.lock.Unlock()

	if a.state == "running" {
		return fmt.Errorf("already running")
	}

	a.state = "starting"
	a.errorChan = make(chan error, 1)
	a.createdAt = time.Now()

	cfg := a.config

	undoMaxprocs, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
		format = strings.TrimPrefix(format, "maxprocs: ")
		a.log.logger.core.Debug().Log(format, args...)
	}))
	if err != nil {
		a.log.logger.core.Warn().Log("%s", err.Error())
	}

	a.undoMaxprocs = undoMaxprocs

	a.sessions = session.NewCollector(session.CollectorConfig{
		MaxSessions: cfg.RTSP.MaxSessions,
		Logger:      a.log.logger.core.WithComponent("Session"),
	})

	iplimiter, err := net.NewIPLimiter(cfg.RTSP.Access.Block, cfg.RTSP.Access.Allow)
	if err != nil {
		return fmt.Errorf("invalid IP ranges: %w", err)
	}

	a.log.logger.rtsp = a.log.logger.core.WithComponent("RTSP").WithField("address", cfg.RTSP.Address)

	serverConfig := rtspserver.Config{
		Logger:          a.log.logger.rtsp,
		Collector:       a.sessions,
		Addr:            cfg.RTSP.Address,
		SessionTimeout:  time.Duration(cfg.RTSP.SessionTimeout) * time.Second,
		EgressRateLimit: cfg.RTSP.EgressRateLimit,
		IPLimiter:       iplimiter,
		Name:            app.Name + "/" + app.Version.String(),
	}

	if cfg.RTSP.Auth.Enable {
		if cfg.RTSP.Auth.Scheme == "basic" {
			serverConfig.Authenticator = auth.NewBasic(cfg.RTSP.Realm, cfg.Credentials())
		} else {
			serverConfig.Authenticator = auth.NewDigest(cfg.RTSP.Realm, cfg.Credentials())
		}

		serverConfig.ProtectedPaths = cfg.RTSP.Auth.Paths
	}

	if cfg.RTSP.UDP.PortMin != 0 {
		ports, err := net.NewPortrange(cfg.RTSP.UDP.PortMin, cfg.RTSP.UDP.PortMax)
		if err != nil {
			return fmt.Errorf("invalid UDP port range: %w", err)
		}

		serverConfig.Ports = ports
	}

	server, err := rtspserver.New(serverConfig)
	if err != nil {
		return fmt.Errorf("unable to create RTSP server: %w", err)
	}

	a.rtspserver = server

	if cfg.Metrics.EnablePrometheus {
		prom := prometheus.New()

		prom.Register(prometheus.NewUptimeCollector(cfg.ID, a.createdAt))
		prom.Register(prometheus.NewSessionCollector(cfg.ID, a.sessions))
		prom.Register(prometheus.NewChannelCollector(cfg.ID, a.rtspserver))

		a.prom = prom
	}

	sendError := func(err error) {
		select {
		case a.errorChan <- err:
		default:
		}
	}

	var wgStart sync.WaitGroup

	if cfg.API.Enable {
		a.log.logger.main = a.log.logger.core.WithComponent("HTTP").WithField("address", cfg.API.Address)

		httpConfig := http.Config{
			Logger:    a.log.logger.main,
			LogBuffer: a.log.buffer,
			RTSP:      a.rtspserver,
			Sessions:  a.sessions,
			IPLimiter: iplimiter,
			Username:  cfg.API.Auth.Username,
			Password:  cfg.API.Auth.Password,
			ID:        cfg.ID,
			Name:      cfg.Name,
			CreatedAt: a.createdAt,
		}

		if a.prom != nil {
			httpConfig.Prometheus = a.prom
		}

		httpserver, err := http.NewServer(httpConfig)
		if err != nil {
			return fmt.Errorf("unable to create HTTP server: %w", err)
		}

		a.httpserver = httpserver

		a.mainserver = &gohttp.Server{
			Addr:              cfg.API.Address,
			Handler:           httpserver,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
			MaxHeaderBytes:    1 << 20,
			ErrorLog:          golog.New(a.log.logger.main.Debug(), "", 0),
		}

		mainserver := a.mainserver

		wgStart.Add(1)
		a.wgStop.Add(1)

		go func() {
			logger := a.log.logger.main

			defer func() {
				logger.Info().Log("Server exited")
				a.wgStop.Done()
			}()

			wgStart.Done()

			logger.Info().Log("Server started")
			err := mainserver.ListenAndServe()
			if err != nil && err != gohttp.ErrServerClosed {
				err = fmt.Errorf("HTTP server: %w", err)
			} else {
				err = nil
			}

			sendError(err)
		}()
	}

	wgStart.Add(1)
	a.wgStop.Add(1)

	go func() {
		logger := a.log.logger.rtsp

		defer func() {
			logger.Info().Log("Server exited")
			a.wgStop.Done()
		}()

		wgStart.Done()

		logger.Info().Log("Server started")
		err := server.ListenAndServe()
		if err != nil && err != rtspserver.ErrServerClosed {
			err = fmt.Errorf("RTSP server: %w", err)
		} else {
			err = nil
		}

		sendError(err)
	}()

	// Wait for all servers to be started
	wgStart.Wait()

	a.state = "running"

	return nil
}

func (a *api) Start(ctx context.Context) error {
	if err := a.start(); err != nil {
		a.stop()
		return err
	}

	// Block until there's an error from the servers or the context is done
	select {
	case err := <-a.errorChan:
		return err
	case <-ctx.Done():
		return nil
	}
}

func (a *api) stop() {
	a.lock.Lock()
	defer a.lock.Unlock()

	logger := a.log.logger.core.WithField("action", "shutdown")

	if a.state == "idle" {
		logger.Info().Log("Complete")
		return
	}

	// Stop the pulls of the API before the RTSP server goes away
	if a.httpserver != nil {
		a.httpserver.Close()
		a.httpserver = nil
	}

	if a.mainserver != nil {
		a.log.logger.main.Info().Log("Stopping ...")

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		a.mainserver.Shutdown(ctx)
		a.mainserver = nil
	}

	if a.rtspserver != nil {
		a.log.logger.rtsp.Info().Log("Stopping ...")

		a.rtspserver.Close()
		a.rtspserver = nil
	}

	if a.prom != nil {
		a.prom.UnregisterAll()
		a.prom = nil
	}

	if a.sessions != nil {
		a.sessions.Close()
		a.sessions = nil
	}

	// Wait for all server goroutines to exit
	logger.Info().Log("Waiting for all servers to stop ...")
	a.wgStop.Wait()

	a.state = "idle"

	if a.undoMaxprocs != nil {
		a.undoMaxprocs()
		a.undoMaxprocs = nil
	}

	logger.Info().Log("Complete")
}

func (a *api) Stop() {
	a.log.logger.core.Info().Log("Shutdown requested ...")
	a.stop()
}

func (a *api) Destroy() {
	a.Stop()
	a.log.buffer.Close()
}
