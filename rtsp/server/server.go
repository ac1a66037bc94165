// Package server provides an RTSP server that relays published streams to players.
package server

import (
	"context"
	"errors"
	"net"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/datarhei/rtsp/event"
	"github.com/datarhei/rtsp/glob"
	"github.com/datarhei/rtsp/log"
	rnet "github.com/datarhei/rtsp/net"
	"github.com/datarhei/rtsp/rtsp"
	"github.com/datarhei/rtsp/rtsp/auth"
	rsession "github.com/datarhei/rtsp/session"
	"github.com/datarhei/rtsp/transport"
)

// ErrServerClosed is returned by ListenAndServe and Serve after the server has
// been closed with Close.
var ErrServerClosed = errors.New("rtsp: server closed")

// ErrAlreadyPublishing is returned if a stream is published on a path that is
// already in use.
var ErrAlreadyPublishing = errors.New("already publishing")

// Config for a new RTSP server
type Config struct {
	// Logger. Optional.
	Logger log.Logger

	// Collector for the traffic of the sessions. Optional.
	Collector rsession.Collector

	// The address the RTSP server should listen on, e.g. ":8554"
	Addr string

	// Authenticator for the requests to protected paths. Optional. By
	// default no authentication is required.
	Authenticator auth.Negotiator

	// Glob patterns of the paths that require authentication. If empty
	// and an Authenticator is set, all paths are protected.
	ProtectedPaths []string

	// Ports for the UDP delivery to players. Optional. Without ports
	// only TCP interleaved delivery is offered.
	Ports rnet.Portranger

	// SessionTimeout is the time after which a session without activity
	// is closed. Defaults to 60 seconds.
	SessionTimeout time.Duration

	// EgressRateLimit limits the outgoing bandwidth per connection
	// in kbit/s. 0 means unlimited.
	EgressRateLimit int64

	// IPLimiter for accepted connections. Optional.
	IPLimiter rnet.IPLimiter

	// Name is sent in the Server header. Optional.
	Name string
}

// Server represents an RTSP server
type Server interface {
	// ListenAndServe starts the RTSP server
	ListenAndServe() error

	// Serve accepts connections on the listener
	Serve(l net.Listener) error

	// ServeConn handles a single connection. It returns when the connection
	// has been started.
	ServeConn(t transport.Transport) error

	// Pull plays the stream from the URL and publishes it on the path. The
	// returned channel is closed when the relay stopped, i.e. the context has been
	// canceled or the remote stream ended.
	Pull(ctx context.Context, url, path string) (<-chan struct{}, error)

	// Close stops the RTSP server and closes all connections
	Close()

	// Channels return a list of currently publishing streams
	Channels() []Channel

	event.EventSource
}

// server is an implementation of the Server interface
type server struct {
	addr            string
	name            string
	logger          log.Logger
	collector       rsession.Collector
	authenticator   auth.Negotiator
	protected       *glob.Set
	ports           rnet.Portranger
	sessionTimeout  time.Duration
	egressRateLimit int64
	iplimiter       rnet.IPLimiter

	events *event.PubSub

	listener net.Listener
	closed   atomic.Bool

	// Map of publishing channels, sessions, and connections, and a lock
	// to serialize access to the maps.
	channels    map[string]*channel
	sessions    map[string]*session
	connections map[rtsp.ConnID]*connection
	lock        sync.RWMutex
}

// New creates a new RTSP server according to the given config
func New(config Config) (Server, error) {
	if config.Logger == nil {
		config.Logger = log.New("")
	}

	s := &server{
		addr:            config.Addr,
		name:            config.Name,
		logger:          config.Logger,
		collector:       config.Collector,
		authenticator:   config.Authenticator,
		ports:           config.Ports,
		sessionTimeout:  config.SessionTimeout,
		egressRateLimit: config.EgressRateLimit,
		iplimiter:       config.IPLimiter,
		events:          event.NewPubSub(),
		channels:        map[string]*channel{},
		sessions:        map[string]*session{},
		connections:     map[rtsp.ConnID]*connection{},
	}

	if len(s.name) == 0 {
		s.name = "datarhei-rtsp"
	}

	if s.collector == nil {
		s.collector = rsession.NewNullCollector()
	}

	if s.iplimiter == nil {
		s.iplimiter = rnet.NewNullIPLimiter()
	}

	if s.sessionTimeout <= 0 {
		s.sessionTimeout = rtsp.DefaultSessionTimeout * time.Second
	}

	protected, err := glob.NewSet(config.ProtectedPaths)
	if err != nil {
		return nil, err
	}

	s.protected = protected

	return s, nil
}

// ListenAndServe starts the RTSP server
func (s *server) ListenAndServe() error {
	addr := s.addr
	if len(addr) == 0 {
		addr = ":554"
	}

	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	return s.Serve(l)
}

func (s *server) Serve(l net.Listener) error {
	s.lock.Lock()
	if s.closed.Load() {
		s.lock.Unlock()
		l.Close()
		return ErrServerClosed
	}
	s.listener = l
	s.lock.Unlock()

	s.logger.Info().WithField("address", l.Addr().String()).Log("Listening")

	for {
		conn, err := l.Accept()
		if err != nil {
			if s.closed.Load() {
				return ErrServerClosed
			}

			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				time.Sleep(10 * time.Millisecond)
				continue
			}

			return err
		}

		remote := conn.RemoteAddr().String()

		if !s.iplimiter.IsAllowed(remote) {
			s.log("CONNECT", "FORBIDDEN", "", "banned ip", remote)
			conn.Close()
			continue
		}

		if err := s.ServeConn(transport.NewConn(conn)); err != nil {
			s.logger.Debug().WithError(err).WithField("client", remote).Log("Starting connection failed")
		}
	}
}

func (s *server) ServeConn(t transport.Transport) error {
	if s.closed.Load() {
		t.Close()
		return ErrServerClosed
	}

	c := newConnection(s, t)

	s.lock.Lock()
	s.connections[c.conn.ID()] = c
	s.lock.Unlock()

	if err := c.conn.Start(context.Background()); err != nil {
		s.lock.Lock()
		delete(s.connections, c.conn.ID())
		s.lock.Unlock()

		return err
	}

	return nil
}

func (s *server) Close() {
	if s.closed.Swap(true) {
		return
	}

	// Stop listening
	s.lock.Lock()
	if s.listener != nil {
		s.listener.Close()
	}

	connections := make([]*connection, 0, len(s.connections))
	for _, c := range s.connections {
		connections = append(connections, c)
	}

	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.lock.Unlock()

	// Close all sessions, this closes the channels as well
	for _, sess := range sessions {
		s.closeSession(sess, "shutdown")
	}

	// Pulled and announced channels have no session
	s.lock.RLock()
	channels := make([]*channel, 0, len(s.channels))
	for _, ch := range s.channels {
		channels = append(channels, ch)
	}
	s.lock.RUnlock()

	for _, ch := range channels {
		s.release(ch)
	}

	for _, c := range connections {
		c.conn.Stop()
	}

	s.events.Close()
}

// Channels returns the list of streams that are
// publishing currently
func (s *server) Channels() []Channel {
	s.lock.RLock()
	list := make([]*channel, 0, len(s.channels))
	for _, ch := range s.channels {
		if ch.isActive() {
			list = append(list, ch)
		}
	}
	s.lock.RUnlock()

	channels := make([]Channel, 0, len(list))
	for _, ch := range list {
		channels = append(channels, ch.snapshot())
	}

	sort.Slice(channels, func(i, j int) bool {
		return channels[i].Path < channels[j].Path
	})

	return channels
}

func (s *server) Events() (<-chan event.Event, event.CancelFunc, error) {
	if s.closed.Load() {
		return nil, nil, event.ErrClosed
	}

	ch, cancel := s.events.Subscribe()

	return ch, cancel, nil
}

func (s *server) publishEvent(action, path, id, remote string) {
	if err := s.events.Publish(event.NewStreamEvent(action, path, id, remote)); err != nil {
		s.logger.Debug().WithError(err).WithField("action", action).Log("Publishing event failed")
	}
}

// channel returns the active channel for the path.
func (s *server) channel(path string) *channel {
	s.lock.RLock()
	defer s.lock.RUnlock()

	ch := s.channels[path]
	if ch == nil || !ch.isActive() {
		return nil
	}

	return ch
}

// reserve adds a channel for the path. The channel becomes visible to players
// once it is activated.
func (s *server) reserve(ch *channel) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.channels[ch.path]; ok {
		return ErrAlreadyPublishing
	}

	s.channels[ch.path] = ch

	return nil
}

// release removes the channel and stops its subscribers.
func (s *server) release(ch *channel) {
	s.lock.Lock()
	if s.channels[ch.path] == ch {
		delete(s.channels, ch.path)
	}
	s.lock.Unlock()

	wasActive := ch.isActive()

	players := ch.close()

	for _, p := range players {
		s.closeSession(p, "unpublished")

		// Players that receive the stream interleaved would wait forever.
		if p.isInterleaved() {
			p.conn.conn.Close()
		}
	}

	if wasActive {
		s.log("PUBLISH", "STOP", ch.path, "", ch.remote)
		s.publishEvent(event.ActionUnpublish, ch.path, ch.session, ch.remote)
	}
}

func (s *server) session(id string) *session {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return s.sessions[id]
}

func (s *server) addSession(sess *session) {
	s.lock.Lock()
	s.sessions[sess.id] = sess
	s.lock.Unlock()

	s.collector.Register(sess.id, sess.path, sess.kind(), sess.conn.remote, s.sessionTimeout, s.expireSession)
}

func (s *server) expireSession(id string) {
	sess := s.session(id)
	if sess == nil {
		return
	}

	s.log(strings.ToUpper(sess.kind()), "EXPIRE", sess.path, "session timed out", sess.conn.remote)
	s.publishEvent(event.ActionExpire, sess.path, sess.id, sess.conn.remote)

	s.closeSession(sess, "timeout")

	if sess.isInterleaved() {
		sess.conn.conn.Close()
	}
}

// closeSession removes the session and releases everything it holds.
func (s *server) closeSession(sess *session, reason string) {
	s.lock.Lock()
	_, ok := s.sessions[sess.id]
	delete(s.sessions, sess.id)
	s.lock.Unlock()

	if !ok {
		return
	}

	s.collector.Unregister(sess.id)

	sess.conn.removeSession(sess.id)

	ch := sess.close()

	if ch != nil && sess.publishing {
		s.release(ch)
	}

	s.logger.Debug().WithFields(log.Fields{
		"session": sess.id,
		"path":    sess.path,
		"reason":  reason,
	}).Log("Session closed")
}

func (s *server) removeConnection(c *connection) {
	s.lock.Lock()
	delete(s.connections, c.conn.ID())
	s.lock.Unlock()
}

// isProtected returns whether requests for the path need to be authenticated.
func (s *server) isProtected(path string) bool {
	if s.authenticator == nil {
		return false
	}

	if s.protected.Len() == 0 {
		return true
	}

	return s.protected.Match(path)
}

func (s *server) log(who, action, path, message, client string) {
	s.logger.Info().WithFields(log.Fields{
		"who":    who,
		"action": action,
		"path":   path,
		"client": client,
	}).Log(message)
}
