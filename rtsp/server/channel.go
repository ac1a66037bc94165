package server

import (
	"bytes"
	"errors"
	"image/jpeg"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/datarhei/rtsp/log"
	"github.com/datarhei/rtsp/payload"
	"github.com/datarhei/rtsp/payload/h264"
	pjpeg "github.com/datarhei/rtsp/payload/jpeg"
	"github.com/datarhei/rtsp/sdp"

	"github.com/pion/rtp"
)

var errChannelClosed = errors.New("channel closed")

// Channel is a snapshot of a publishing stream.
type Channel struct {
	Path        string
	Session     string
	Remote      string
	IsPull      bool
	CreatedAt   time.Time
	Medias      []Media
	Subscribers int
}

// Media is a snapshot of a media of a channel.
type Media struct {
	Type    string
	Codec   string
	Control string
	Width   int
	Height  int

	Packets uint64

	// Units is the number of reassembled access units, i.e. JPEG images
	// or H.264 NAL units.
	Units uint64

	// Dropped is the number of units that have been dropped because of
	// packet loss.
	Dropped uint64

	// Errors is the number of packets that couldn't be reassembled.
	Errors uint64
}

// media inspects the packets of a published media.
type media struct {
	info  sdp.Media
	codec string

	reassembler payload.Reassembler
	h264        *h264.Reassembler

	lock    sync.Mutex
	packets uint64
	units   uint64
	errors  uint64
	width   int
	height  int

	logger log.Logger
}

func newMedia(m sdp.Media, logger log.Logger) *media {
	md := &media{
		info:   m,
		codec:  m.Codec(),
		logger: logger.WithField("codec", m.Codec()),
	}

	switch md.codec {
	case "H264":
		r, err := h264.NewFromFmtp(m.Fmtp())
		if err != nil {
			md.logger.Warn().WithError(err).Log("Invalid sprop-parameter-sets")
			r = h264.New()
		}

		md.h264 = r
		md.reassembler = r

		md.detectSize()
	case "JPEG":
		md.reassembler = pjpeg.New()
	}

	return md
}

// detectSize reads the picture size from the H.264 parameter sets.
func (m *media) detectSize() {
	if m.width != 0 || m.h264 == nil {
		return
	}

	cd, err := m.h264.CodecData()
	if err != nil {
		return
	}

	m.width = cd.Width()
	m.height = cd.Height()

	m.logger.Info().WithFields(log.Fields{
		"width":  m.width,
		"height": m.height,
	}).Log("Detected H.264 stream")
}

func (m *media) probe(pkt *rtp.Packet) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.packets++

	if m.reassembler == nil {
		return
	}

	units, err := m.reassembler.Process(pkt)
	if err != nil {
		m.errors++

		if m.errors == 1 {
			m.logger.Warn().WithError(err).Log("Can't reassemble payload")
		}

		return
	}

	m.units += uint64(len(units))

	if len(units) == 0 || m.width != 0 {
		return
	}

	if m.h264 != nil {
		m.detectSize()
		return
	}

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(units[0]))
	if err != nil {
		return
	}

	m.width = cfg.Width
	m.height = cfg.Height

	m.logger.Info().WithFields(log.Fields{
		"width":  m.width,
		"height": m.height,
	}).Log("Detected JPEG stream")
}

func (m *media) snapshot(index int) Media {
	m.lock.Lock()
	defer m.lock.Unlock()

	s := Media{
		Type:    m.info.Type,
		Codec:   m.codec,
		Control: trackControl(index),
		Width:   m.width,
		Height:  m.height,
		Packets: m.packets,
		Units:   m.units,
		Errors:  m.errors,
	}

	if d, ok := m.reassembler.(interface{ Dropped() uint64 }); ok {
		s.Dropped = d.Dropped()
	}

	return s
}

func trackControl(index int) string {
	return "trackID=" + strconv.Itoa(index)
}

// channel represents a stream that is sent to the server
type channel struct {
	path      string
	remote    string
	isPull    bool
	createdAt time.Time

	// The description as announced by the publisher and the base URL
	// of its control URLs
	desc *sdp.Description
	base string

	// The description as sent to players
	describe []byte

	medias []*media

	lock        sync.RWMutex
	session     string
	active      bool
	closed      bool
	subscribers map[string]*subscriber
	closedCh    chan struct{}
}

func newChannel(path, remote string, desc *sdp.Description, isPull bool, logger log.Logger) (*channel, error) {
	ch := &channel{
		path:        path,
		remote:      remote,
		isPull:      isPull,
		createdAt:   time.Now(),
		desc:        desc,
		subscribers: map[string]*subscriber{},
		closedCh:    make(chan struct{}),
	}

	logger = logger.WithField("path", path)

	// The players address the medias by their index
	out := &sdp.Description{
		SessionName: desc.SessionName,
		Attributes:  []sdp.Attribute{{Key: "control", Value: "*"}},
	}

	for _, a := range desc.Attributes {
		if a.Key == "control" {
			continue
		}
		out.Attributes = append(out.Attributes, a)
	}

	for i, m := range desc.Medias {
		ch.medias = append(ch.medias, newMedia(m, logger))

		om := m
		om.Attributes = []sdp.Attribute{}

		for _, a := range m.Attributes {
			if a.Key == "control" {
				continue
			}
			om.Attributes = append(om.Attributes, a)
		}

		om.Attributes = append(om.Attributes, sdp.Attribute{Key: "control", Value: trackControl(i)})

		out.Medias = append(out.Medias, om)
	}

	data, err := out.Marshal()
	if err != nil {
		return nil, err
	}

	ch.describe = data

	return ch, nil
}

// done is closed when the channel has been closed.
func (ch *channel) done() <-chan struct{} {
	return ch.closedCh
}

func (ch *channel) isActive() bool {
	ch.lock.RLock()
	defer ch.lock.RUnlock()

	return ch.active
}

// activate makes the channel available to players.
func (ch *channel) activate(session string) {
	ch.lock.Lock()
	defer ch.lock.Unlock()

	if ch.closed {
		return
	}

	ch.session = session
	ch.active = true
}

// write inspects the packet of the media and forwards it to the subscribers.
// raw is the marshalled packet. It is marshalled from pkt if it is nil.
func (ch *channel) write(index int, pkt *rtp.Packet, raw []byte) {
	if index < 0 || index >= len(ch.medias) {
		return
	}

	if !ch.isActive() {
		return
	}

	ch.medias[index].probe(pkt)

	if raw == nil {
		var err error
		if raw, err = pkt.Marshal(); err != nil {
			return
		}
	}

	ch.forward(packet{media: index, data: raw})
}

// writeRTCP forwards a control packet of the media to the subscribers.
func (ch *channel) writeRTCP(index int, data []byte) {
	if index < 0 || index >= len(ch.medias) {
		return
	}

	ch.forward(packet{media: index, rtcp: true, data: data})
}

func (ch *channel) forward(p packet) {
	ch.lock.RLock()
	defer ch.lock.RUnlock()

	if !ch.active {
		return
	}

	for _, sub := range ch.subscribers {
		sub.push(p)
	}
}

func (ch *channel) subscribe(sub *subscriber) error {
	ch.lock.Lock()
	defer ch.lock.Unlock()

	if ch.closed {
		return errChannelClosed
	}

	ch.subscribers[sub.session.id] = sub

	return nil
}

func (ch *channel) unsubscribe(id string) {
	ch.lock.Lock()
	defer ch.lock.Unlock()

	delete(ch.subscribers, id)
}

// close deactivates the channel and returns the sessions of its subscribers.
func (ch *channel) close() []*session {
	ch.lock.Lock()
	defer ch.lock.Unlock()

	if ch.closed {
		return nil
	}

	ch.closed = true
	ch.active = false
	close(ch.closedCh)

	sessions := make([]*session, 0, len(ch.subscribers))
	for _, sub := range ch.subscribers {
		sessions = append(sessions, sub.session)
	}

	ch.subscribers = map[string]*subscriber{}

	return sessions
}

func (ch *channel) snapshot() Channel {
	ch.lock.RLock()
	c := Channel{
		Path:        ch.path,
		Session:     ch.session,
		Remote:      ch.remote,
		IsPull:      ch.isPull,
		CreatedAt:   ch.createdAt,
		Subscribers: len(ch.subscribers),
	}
	ch.lock.RUnlock()

	for i, m := range ch.medias {
		c.Medias = append(c.Medias, m.snapshot(i))
	}

	return c
}

type packet struct {
	media int
	rtcp  bool
	data  []byte
}

// subscriber delivers packets to a player from its own goroutine. Packets
// are dropped if the player can't keep up.
type subscriber struct {
	session *session
	queue   chan packet
	done    chan struct{}
	once    sync.Once
	dropped atomic.Uint64
}

func newSubscriber(sess *session) *subscriber {
	sub := &subscriber{
		session: sess,
		queue:   make(chan packet, 1024),
		done:    make(chan struct{}),
	}

	go sub.run()

	return sub
}

func (sub *subscriber) push(p packet) {
	select {
	case sub.queue <- p:
	default:
		if sub.dropped.Add(1) == 1 {
			sub.session.logger.Warn().Log("Player is too slow, dropping packets")
		}
	}
}

func (sub *subscriber) run() {
	for {
		select {
		case <-sub.done:
			return
		case p := <-sub.queue:
			if err := sub.session.write(p); err != nil {
				sub.session.logger.Debug().WithError(err).Log("Sending packet failed")
			}
		}
	}
}

func (sub *subscriber) stop() {
	sub.once.Do(func() {
		close(sub.done)
	})
}
