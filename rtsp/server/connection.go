package server

import (
	"github.com/datarhei/rtsp/log"
	"github.com/datarhei/rtsp/rtsp"
	"github.com/datarhei/rtsp/transport"

	"github.com/pion/rtp"
)

// connection is a control connection of a client. It observes the rtsp.Conn
// and dispatches the requests.
type connection struct {
	server *server
	conn   *rtsp.Conn
	remote string
	logger log.Logger

	sessions  map[string]*session
	announced map[string]*channel
}

func newConnection(s *server, t transport.Transport) *connection {
	c := &connection{
		server:    s,
		sessions:  map[string]*session{},
		announced: map[string]*channel{},
	}

	c.conn = rtsp.NewConn(t, rtsp.ConnConfig{
		Logger:          s.logger,
		EgressRateLimit: s.egressRateLimit,
	})

	c.remote = c.conn.RemoteAddr()
	if len(c.remote) == 0 {
		c.remote = "unknown"
	}

	c.logger = s.logger.WithFields(log.Fields{
		"conn":   uint64(c.conn.ID()),
		"client": c.remote,
	})

	c.conn.Subscribe(c)

	return c
}

// sessions is guarded by the server's lock. announced is only accessed from
// the receiving goroutine.

func (c *connection) OnMessage(conn *rtsp.Conn, m rtsp.Message) {
	req, ok := m.(*rtsp.Request)
	if !ok {
		c.logger.Debug().Log("Ignoring response")
		return
	}

	res, after := c.handle(req)

	res.Header().Set("Server", c.server.name)

	if err := conn.SendMessage(res); err != nil {
		c.logger.Debug().WithError(err).Log("Sending response failed")
		return
	}

	if after != nil {
		after()
	}
}

func (c *connection) OnData(conn *rtsp.Conn, chunk *rtsp.Chunk) {
	for _, sess := range c.sessionList() {
		index, isRTCP, ok := sess.mediaOf(chunk.Channel)
		if !ok {
			continue
		}

		c.server.collector.Ingress(sess.id, int64(len(chunk.Payload)+4))

		// Players send receiver reports, they are only counted
		if !sess.publishing || sess.getState() != stateRecording {
			return
		}

		if isRTCP {
			sess.channel.writeRTCP(index, chunk.Payload)
			return
		}

		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(chunk.Payload); err != nil {
			sess.logger.Debug().WithError(err).Log("Invalid RTP packet")
			return
		}

		sess.channel.write(index, pkt, chunk.Payload)

		return
	}
}

func (c *connection) OnClose(conn *rtsp.Conn, err error) {
	if err != nil {
		c.logger.Debug().WithError(err).Log("Connection closed")
	} else {
		c.logger.Debug().Log("Connection closed")
	}

	for _, sess := range c.sessionList() {
		c.server.closeSession(sess, "disconnected")
	}

	for path, ch := range c.announced {
		delete(c.announced, path)
		c.server.release(ch)
	}

	c.server.removeConnection(c)
}

func (c *connection) sessionList() []*session {
	c.server.lock.RLock()
	defer c.server.lock.RUnlock()

	list := make([]*session, 0, len(c.sessions))
	for _, sess := range c.sessions {
		list = append(list, sess)
	}

	return list
}

func (c *connection) addSession(sess *session) {
	c.server.lock.Lock()
	c.sessions[sess.id] = sess
	c.server.lock.Unlock()

	c.server.addSession(sess)
}

func (c *connection) removeSession(id string) {
	c.server.lock.Lock()
	delete(c.sessions, id)
	c.server.lock.Unlock()
}
