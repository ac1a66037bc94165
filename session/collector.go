// Package session keeps track of client sessions and their traffic.
package session

import (
	"sort"
	"sync"
	"time"

	"github.com/datarhei/rtsp/log"

	"github.com/prep/average"
)

const (
	averageWindow      = 10 * time.Second
	averageGranularity = time.Second
)

// Session is a snapshot of a session. Bitrates are in bit/s.
type Session struct {
	ID           string
	Reference    string
	Kind         string
	Peer         string
	CreatedAt    time.Time
	Extra        map[string]interface{}
	RxBytes      uint64
	TxBytes      uint64
	RxBitrate    float64
	TxBitrate    float64
	TopRxBitrate float64
	TopTxBitrate float64
}

// Summary is a snapshot of the collector.
type Summary struct {
	Active []Session

	MaxSessions uint64
	RxBitrate   float64
	TxBitrate   float64

	// Totals since the collector has been created, including active sessions.
	TotalSessions uint64
	TotalRxBytes  uint64
	TotalTxBytes  uint64
}

// Collector accounts the traffic of sessions and closes sessions without activity.
type Collector interface {
	// Register adds a session. If timeout is larger than 0, the session is closed
	// after that long without activity and expired is called with its id.
	Register(id, reference, kind, peer string, timeout time.Duration, expired func(id string))

	// Unregister closes a session.
	Unregister(id string)

	// Touch marks a session as active without traffic, e.g. for a keep-alive.
	Touch(id string)

	Extra(id string, extra map[string]interface{})
	Ingress(id string, size int64)
	Egress(id string, size int64)

	IsKnownSession(id string) bool
	IsSessionsExceeded() bool

	IngressBitrate() float64
	EgressBitrate() float64

	// Sessions returns the number of active sessions.
	Sessions() uint64
	Active() []Session
	Summary() Summary

	// Close closes all sessions without calling their expired functions.
	Close()
}

type CollectorConfig struct {
	// MaxSessions is the number of allowed concurrent sessions. 0 means unlimited.
	MaxSessions uint64

	Logger log.Logger
}

type collector struct {
	maxSessions uint64
	logger      log.Logger

	lock     sync.RWMutex
	sessions map[string]*session

	rxBitrate *average.SlidingWindow
	txBitrate *average.SlidingWindow

	totalLock     sync.Mutex
	totalSessions uint64
	totalRxBytes  uint64
	totalTxBytes  uint64
}

func NewCollector(config CollectorConfig) Collector {
	c := &collector{
		maxSessions: config.MaxSessions,
		logger:      config.Logger,
		sessions:    map[string]*session{},
	}

	if c.logger == nil {
		c.logger = log.New("")
	}

	c.rxBitrate, _ = average.New(averageWindow, averageGranularity)
	c.txBitrate, _ = average.New(averageWindow, averageGranularity)

	return c
}

func (c *collector) Register(id, reference, kind, peer string, timeout time.Duration, expired func(id string)) {
	logger := c.logger.WithFields(log.Fields{
		"session":   id,
		"reference": reference,
		"kind":      kind,
		"peer":      peer,
	})

	s := newSession(id, reference, kind, peer, timeout, expired, logger)

	c.lock.Lock()
	if _, ok := c.sessions[id]; ok {
		c.lock.Unlock()
		logger.Warn().Log("Session already registered")
		s.close()
		return
	}
	c.sessions[id] = s
	c.lock.Unlock()

	c.totalLock.Lock()
	c.totalSessions++
	c.totalLock.Unlock()

	s.arm(c.timeout)

	logger.Debug().Log("Session registered")
}

func (c *collector) timeout(s *session) {
	if !c.remove(s.id) {
		return
	}

	s.logger.Info().Log("Session timed out")

	if s.expired != nil {
		s.expired(s.id)
	}
}

func (c *collector) Unregister(id string) {
	if c.remove(id) {
		c.logger.Debug().WithField("session", id).Log("Session unregistered")
	}
}

// remove closes and removes the session and reports whether it did so.
func (c *collector) remove(id string) bool {
	c.lock.Lock()
	s, ok := c.sessions[id]
	if ok {
		delete(c.sessions, id)
	}
	c.lock.Unlock()

	if !ok {
		return false
	}

	return s.close()
}

func (c *collector) get(id string) *session {
	c.lock.RLock()
	defer c.lock.RUnlock()

	return c.sessions[id]
}

func (c *collector) Touch(id string) {
	if s := c.get(id); s != nil {
		s.touch()
	}
}

func (c *collector) Extra(id string, extra map[string]interface{}) {
	if s := c.get(id); s != nil {
		s.setExtra(extra)
	}
}

func (c *collector) Ingress(id string, size int64) {
	if size <= 0 {
		return
	}

	s := c.get(id)
	if s == nil {
		return
	}

	s.ingress(size)
	c.rxBitrate.Add(size * 8)

	c.totalLock.Lock()
	c.totalRxBytes += uint64(size)
	c.totalLock.Unlock()
}

func (c *collector) Egress(id string, size int64) {
	if size <= 0 {
		return
	}

	s := c.get(id)
	if s == nil {
		return
	}

	s.egress(size)
	c.txBitrate.Add(size * 8)

	c.totalLock.Lock()
	c.totalTxBytes += uint64(size)
	c.totalLock.Unlock()
}

func (c *collector) IsKnownSession(id string) bool {
	return c.get(id) != nil
}

func (c *collector) IsSessionsExceeded() bool {
	if c.maxSessions == 0 {
		return false
	}

	return c.Sessions() >= c.maxSessions
}

func (c *collector) IngressBitrate() float64 {
	return c.rxBitrate.Average(averageWindow)
}

func (c *collector) EgressBitrate() float64 {
	return c.txBitrate.Average(averageWindow)
}

func (c *collector) Sessions() uint64 {
	c.lock.RLock()
	defer c.lock.RUnlock()

	return uint64(len(c.sessions))
}

func (c *collector) Active() []Session {
	c.lock.RLock()
	list := make([]*session, 0, len(c.sessions))
	for _, s := range c.sessions {
		list = append(list, s)
	}
	c.lock.RUnlock()

	sessions := make([]Session, 0, len(list))
	for _, s := range list {
		sessions = append(sessions, s.snapshot())
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})

	return sessions
}

func (c *collector) Summary() Summary {
	summary := Summary{
		Active:      c.Active(),
		MaxSessions: c.maxSessions,
		RxBitrate:   c.IngressBitrate(),
		TxBitrate:   c.EgressBitrate(),
	}

	c.totalLock.Lock()
	summary.TotalSessions = c.totalSessions
	summary.TotalRxBytes = c.totalRxBytes
	summary.TotalTxBytes = c.totalTxBytes
	c.totalLock.Unlock()

	return summary
}

func (c *collector) Close() {
	c.lock.Lock()
	sessions := c.sessions
	c.sessions = map[string]*session{}
	c.lock.Unlock()

	for _, s := range sessions {
		s.close()
	}
}

type nullCollector struct{}

// NewNullCollector returns a Collector that doesn't track anything.
func NewNullCollector() Collector { return &nullCollector{} }

func (n *nullCollector) Register(id, reference, kind, peer string, timeout time.Duration, expired func(id string)) {
}
func (n *nullCollector) Unregister(id string)                          {}
func (n *nullCollector) Touch(id string)                               {}
func (n *nullCollector) Extra(id string, extra map[string]interface{}) {}
func (n *nullCollector) Ingress(id string, size int64)                 {}
func (n *nullCollector) Egress(id string, size int64)                  {}
func (n *nullCollector) IsKnownSession(id string) bool                 { return false }
func (n *nullCollector) IsSessionsExceeded() bool                      { return false }
func (n *nullCollector) IngressBitrate() float64                       { return 0.0 }
func (n *nullCollector) EgressBitrate() float64                        { return 0.0 }
func (n *nullCollector) Sessions() uint64                              { return 0 }
func (n *nullCollector) Active() []Session                             { return []Session{} }
func (n *nullCollector) Summary() Summary                              { return Summary{} }
func (n *nullCollector) Close()                                        {}
