package server

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/datarhei/rtsp/log"
	rnet "github.com/datarhei/rtsp/net"
	"github.com/datarhei/rtsp/rtsp"
)

type sessionState int

const (
	stateReady sessionState = iota
	statePlaying
	stateRecording
)

// track is a media that has been set up in a session.
type track struct {
	media int

	// Interleaved RTP channel, -1 for UDP delivery
	channel int

	udp *udpSink
}

// session is an RTSP session. A session either publishes or plays a stream.
type session struct {
	id         string
	path       string
	publishing bool
	createdAt  time.Time

	server *server
	conn   *connection
	logger log.Logger

	lock       sync.Mutex
	state      sessionState
	closed     bool
	channel    *channel
	tracks     map[int]*track
	subscriber *subscriber
}

func newSession(id, path string, publishing bool, ch *channel, c *connection) *session {
	sess := &session{
		id:         id,
		path:       path,
		publishing: publishing,
		createdAt:  time.Now(),
		server:     c.server,
		conn:       c,
		channel:    ch,
		tracks:     map[int]*track{},
	}

	sess.logger = c.logger.WithFields(log.Fields{
		"session": id,
		"path":    path,
	})

	return sess
}

func (s *session) kind() string {
	if s.publishing {
		return "publish"
	}

	return "play"
}

func (s *session) isInterleaved() bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	for _, t := range s.tracks {
		if t.channel >= 0 {
			return true
		}
	}

	return false
}

func (s *session) getState() sessionState {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.state
}

func (s *session) numTracks() int {
	s.lock.Lock()
	defer s.lock.Unlock()

	return len(s.tracks)
}

// addTrack adds the track. A track that has been set up before is replaced.
func (s *session) addTrack(t *track) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.closed {
		return fmt.Errorf("session closed")
	}

	if s.state != stateReady {
		return fmt.Errorf("session is not ready")
	}

	if old, ok := s.tracks[t.media]; ok && old.udp != nil {
		old.udp.close()
	}

	s.tracks[t.media] = t

	return nil
}

// mediaOf returns the media and whether it is RTCP for an interleaved channel.
func (s *session) mediaOf(channel uint8) (int, bool, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()

	for _, t := range s.tracks {
		if t.channel < 0 {
			continue
		}

		switch int(channel) {
		case t.channel:
			return t.media, false, true
		case t.channel + 1:
			return t.media, true, true
		}
	}

	return 0, false, false
}

func (s *session) record() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.state != stateReady || len(s.tracks) == 0 {
		return fmt.Errorf("session is not ready")
	}

	s.state = stateRecording

	return nil
}

// play starts the delivery of the channel's packets.
func (s *session) play() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.closed {
		return fmt.Errorf("session closed")
	}

	if s.state == statePlaying {
		return nil
	}

	sub := newSubscriber(s)

	if err := s.channel.subscribe(sub); err != nil {
		sub.stop()
		return err
	}

	s.subscriber = sub
	s.state = statePlaying

	return nil
}

// pause stops the delivery of packets.
func (s *session) pause() {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.state != statePlaying {
		return
	}

	s.channel.unsubscribe(s.id)
	s.subscriber.stop()
	s.subscriber = nil
	s.state = stateReady
}

// write sends the packet to the player.
func (s *session) write(p packet) error {
	s.lock.Lock()
	t, ok := s.tracks[p.media]
	s.lock.Unlock()

	if !ok {
		return nil
	}

	if t.udp != nil {
		n, err := t.udp.write(p.data, p.rtcp)
		s.server.collector.Egress(s.id, int64(n))

		return err
	}

	channel := t.channel
	if p.rtcp {
		channel++
	}

	if err := s.conn.conn.SendData(uint8(channel), p.data); err != nil {
		return err
	}

	s.server.collector.Egress(s.id, int64(len(p.data)+4))

	return nil
}

// close stops the delivery, releases the UDP ports, and returns the channel.
func (s *session) close() *channel {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true

	if s.subscriber != nil {
		s.channel.unsubscribe(s.id)
		s.subscriber.stop()
		s.subscriber = nil
	}

	for _, t := range s.tracks {
		if t.udp != nil {
			t.udp.close()
		}
	}

	return s.channel
}

// udpSink sends the packets of a track to a player via UDP.
type udpSink struct {
	ports    rnet.Portranger
	port     int
	rtpConn  *net.UDPConn
	rtcpConn *net.UDPConn
	rtpAddr  *net.UDPAddr
	rtcpAddr *net.UDPAddr

	closeOnce sync.Once
}

// newUDPSink allocates a pair of server ports and sends to the client ports of
// the host. Received RTCP packets are passed to onRTCP.
func newUDPSink(ports rnet.Portranger, host string, client rtsp.PortCouple, onRTCP func(n int)) (*udpSink, error) {
	ip := net.ParseIP(host)
	if ip == nil {
		return nil, fmt.Errorf("invalid client address: %s", host)
	}

	rtpPort, rtcpPort, err := ports.Get()
	if err != nil {
		return nil, err
	}

	u := &udpSink{
		ports:   ports,
		port:    rtpPort,
		rtpAddr: &net.UDPAddr{IP: ip, Port: client.First},
	}

	u.rtcpAddr = &net.UDPAddr{IP: ip, Port: client.First + 1}
	if client.HasSecond {
		u.rtcpAddr.Port = client.Second
	}

	u.rtpConn, err = net.ListenUDP("udp", &net.UDPAddr{Port: rtpPort})
	if err != nil {
		ports.Put(rtpPort)
		return nil, err
	}

	u.rtcpConn, err = net.ListenUDP("udp", &net.UDPAddr{Port: rtcpPort})
	if err != nil {
		u.rtpConn.Close()
		ports.Put(rtpPort)
		return nil, err
	}

	go u.readRTCP(onRTCP)

	return u, nil
}

func (u *udpSink) serverPorts() rtsp.PortCouple {
	return rtsp.PortCouple{First: u.port, Second: u.port + 1, HasSecond: true}
}

// readRTCP reads the receiver reports of the player until the sink is closed.
func (u *udpSink) readRTCP(onRTCP func(n int)) {
	buf := make([]byte, 1500)

	for {
		n, _, err := u.rtcpConn.ReadFromUDP(buf)
		if err != nil {
			return
		}

		if onRTCP != nil {
			onRTCP(n)
		}
	}
}

func (u *udpSink) write(data []byte, rtcp bool) (int, error) {
	if rtcp {
		return u.rtcpConn.WriteToUDP(data, u.rtcpAddr)
	}

	return u.rtpConn.WriteToUDP(data, u.rtpAddr)
}

func (u *udpSink) close() {
	u.closeOnce.Do(func() {
		u.rtpConn.Close()
		u.rtcpConn.Close()
		u.ports.Put(u.port)
	})
}
