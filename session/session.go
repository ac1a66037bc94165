package session

import (
	"sync"
	"time"

	"github.com/datarhei/rtsp/log"

	"github.com/prep/average"
)

type session struct {
	id        string
	reference string
	kind      string
	peer      string
	createdAt time.Time

	logger log.Logger

	stale     *time.Timer
	timeout   time.Duration
	expired   func(id string)
	closeOnce sync.Once
	closed    bool

	rxBitrate *average.SlidingWindow
	txBitrate *average.SlidingWindow

	lock         sync.Mutex
	extra        map[string]interface{}
	rxBytes      uint64
	txBytes      uint64
	topRxBitrate float64
	topTxBitrate float64
}

func newSession(id, reference, kind, peer string, timeout time.Duration, expired func(id string), logger log.Logger) *session {
	s := &session{
		id:        id,
		reference: reference,
		kind:      kind,
		peer:      peer,
		createdAt: time.Now(),
		logger:    logger,
		timeout:   timeout,
		expired:   expired,
		extra:     map[string]interface{}{},
	}

	if len(s.peer) == 0 {
		s.peer = "unknown"
	}

	s.rxBitrate, _ = average.New(averageWindow, averageGranularity)
	s.txBitrate, _ = average.New(averageWindow, averageGranularity)

	return s
}

// arm starts the inactivity timer. onTimeout is called once if the session sees
// no activity for its timeout.
func (s *session) arm(onTimeout func(s *session)) {
	if s.timeout <= 0 {
		return
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	s.stale = time.AfterFunc(s.timeout, func() {
		onTimeout(s)
	})
}

// touch resets the inactivity timer.
func (s *session) touch() {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.stale != nil && !s.closed {
		s.stale.Reset(s.timeout)
	}
}

// close stops the timers and reports whether this call closed the session.
func (s *session) close() bool {
	closed := false

	s.closeOnce.Do(func() {
		s.lock.Lock()
		s.closed = true
		if s.stale != nil {
			s.stale.Stop()
		}
		s.lock.Unlock()

		s.rxBitrate.Stop()
		s.txBitrate.Stop()

		closed = true
	})

	return closed
}

func (s *session) setExtra(extra map[string]interface{}) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.extra = extra
	s.logger = s.logger.WithField("extra", extra)
}

func (s *session) ingress(size int64) {
	s.touch()

	s.rxBitrate.Add(size * 8)

	s.lock.Lock()
	defer s.lock.Unlock()

	s.rxBytes += uint64(size)

	if bitrate := s.rxBitrate.Average(averageWindow); bitrate > s.topRxBitrate {
		s.topRxBitrate = bitrate
	}
}

func (s *session) egress(size int64) {
	s.touch()

	s.txBitrate.Add(size * 8)

	s.lock.Lock()
	defer s.lock.Unlock()

	s.txBytes += uint64(size)

	if bitrate := s.txBitrate.Average(averageWindow); bitrate > s.topTxBitrate {
		s.topTxBitrate = bitrate
	}
}

func (s *session) snapshot() Session {
	s.lock.Lock()
	defer s.lock.Unlock()

	extra := make(map[string]interface{}, len(s.extra))
	for k, v := range s.extra {
		extra[k] = v
	}

	return Session{
		ID:           s.id,
		Reference:    s.reference,
		Kind:         s.kind,
		Peer:         s.peer,
		CreatedAt:    s.createdAt,
		Extra:        extra,
		RxBytes:      s.rxBytes,
		TxBytes:      s.txBytes,
		RxBitrate:    s.rxBitrate.Average(averageWindow),
		TxBitrate:    s.txBitrate.Average(averageWindow),
		TopRxBitrate: s.topRxBitrate,
		TopTxBitrate: s.topTxBitrate,
	}
}
