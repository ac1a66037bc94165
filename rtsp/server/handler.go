package server

import (
	"net"
	"net/url"
	"strings"

	"github.com/datarhei/rtsp/event"
	"github.com/datarhei/rtsp/rtsp"
	"github.com/datarhei/rtsp/rtsp/auth"
	"github.com/datarhei/rtsp/sdp"

	"github.com/lithammer/shortuuid/v4"
)

const publicMethods = "OPTIONS, DESCRIBE, ANNOUNCE, SETUP, PLAY, PAUSE, RECORD, TEARDOWN, GET_PARAMETER, SET_PARAMETER"

// handle returns the response to the request and optionally a function that
// has to be called after the response has been sent.
func (c *connection) handle(req *rtsp.Request) (*rtsp.Response, func()) {
	if _, ok := req.CSeq(); !ok {
		return rtsp.NewResponseFor(req, rtsp.StatusBadRequest), nil
	}

	if id := req.Session(); len(id) != 0 {
		c.server.collector.Touch(id)
	}

	switch req.Method {
	case rtsp.Options:
		res := rtsp.NewResponseFor(req, rtsp.StatusOK)
		res.Header().Set("Public", publicMethods)
		return res, nil
	case rtsp.Describe:
		return c.handleDescribe(req), nil
	case rtsp.Announce:
		return c.handleAnnounce(req), nil
	case rtsp.Setup:
		return c.handleSetup(req), nil
	case rtsp.Play:
		return c.handlePlay(req)
	case rtsp.Pause:
		return c.handlePause(req), nil
	case rtsp.Record:
		return c.handleRecord(req)
	case rtsp.Teardown:
		return c.handleTeardown(req)
	case rtsp.GetParameter, rtsp.SetParameter:
		return c.handleParameter(req), nil
	case rtsp.Redirect:
		res := rtsp.NewResponseFor(req, rtsp.StatusMethodNotAllowed)
		res.Header().Set("Allow", publicMethods)
		return res, nil
	}

	return rtsp.NewResponseFor(req, rtsp.StatusNotImplemented), nil
}

// requestPath returns the path of the URL without trailing slash.
func requestPath(rawurl string) string {
	u, err := url.Parse(rawurl)
	if err != nil {
		return ""
	}

	p := strings.TrimSuffix(u.Path, "/")
	if len(p) == 0 {
		p = "/"
	}

	return p
}

// authorize returns a response if the request is not authorized for the path.
func (c *connection) authorize(req *rtsp.Request, path string) *rtsp.Response {
	if !c.server.isProtected(path) {
		return nil
	}

	if c.server.authenticator.Validate(req) {
		return nil
	}

	if req.Header().Has("Authorization") {
		c.server.log(req.Method.String(), "FORBIDDEN", path, "invalid credentials", c.remote)
	}

	return auth.Unauthorized(req, c.server.authenticator)
}

// session returns the session of the request, or an error response.
func (c *connection) session(req *rtsp.Request) (*session, *rtsp.Response) {
	id := req.Session()
	if len(id) == 0 {
		return nil, rtsp.NewResponseFor(req, rtsp.StatusSessionNotFound)
	}

	sess := c.server.session(id)
	if sess == nil || sess.conn != c {
		return nil, rtsp.NewResponseFor(req, rtsp.StatusSessionNotFound)
	}

	return sess, nil
}

func (c *connection) handleDescribe(req *rtsp.Request) *rtsp.Response {
	path := requestPath(req.URL)

	if res := c.authorize(req, path); res != nil {
		return res
	}

	ch := c.server.channel(path)
	if ch == nil {
		c.server.log("PLAY", "NOTFOUND", path, "", c.remote)
		return rtsp.NewResponseFor(req, rtsp.StatusNotFound)
	}

	res := rtsp.NewResponseFor(req, rtsp.StatusOK)
	res.Header().Set("Content-Type", "application/sdp")
	res.Header().Set("Content-Base", strings.TrimSuffix(req.URL, "/")+"/")
	res.SetBody(ch.describe)

	return res
}

func (c *connection) handleAnnounce(req *rtsp.Request) *rtsp.Response {
	path := requestPath(req.URL)

	if res := c.authorize(req, path); res != nil {
		return res
	}

	if ct := req.Header().Get("Content-Type"); len(ct) != 0 && !strings.HasPrefix(ct, "application/sdp") {
		return rtsp.NewResponseFor(req, rtsp.StatusUnsupportedMediaType)
	}

	desc, err := sdp.Parse(req.Body())
	if err != nil || len(desc.Medias) == 0 {
		c.server.log("PUBLISH", "INVALID", path, "invalid session description", c.remote)
		return rtsp.NewResponseFor(req, rtsp.StatusBadRequest)
	}

	ch, err := newChannel(path, c.remote, desc, false, c.logger)
	if err != nil {
		return rtsp.NewResponseFor(req, rtsp.StatusBadRequest)
	}

	ch.base = req.Header().Get("Content-Base")
	if len(ch.base) == 0 {
		ch.base = req.URL
	}

	if err := c.server.reserve(ch); err != nil {
		c.server.log("PUBLISH", "CONFLICT", path, "already publishing", c.remote)
		return rtsp.NewResponseFor(req, rtsp.StatusMethodNotValidInThisState)
	}

	if old, ok := c.announced[path]; ok {
		c.server.release(old)
	}

	c.announced[path] = ch

	return rtsp.NewResponseFor(req, rtsp.StatusOK)
}

// announcedMedia returns the announced channel and the index of the media the
// URL refers to.
func (c *connection) announcedMedia(rawurl string) (*channel, int) {
	path := requestPath(rawurl)

	for _, ch := range c.announced {
		for i, m := range ch.desc.Medias {
			if requestPath(sdp.ResolveControl(ch.base, m.Control())) == path {
				return ch, i
			}
		}
	}

	return nil, -1
}

// playMedia returns the channel and the index of the media the URL refers to.
func (c *connection) playMedia(rawurl string) (*channel, int) {
	path := requestPath(rawurl)

	if ch := c.server.channel(path); ch != nil {
		// The aggregate URL refers to the only media
		if len(ch.medias) == 1 {
			return ch, 0
		}

		return nil, -1
	}

	i := strings.LastIndex(path, "/")
	if i < 0 {
		return nil, -1
	}

	parent, control := path[:i], path[i+1:]
	if len(parent) == 0 {
		parent = "/"
	}

	ch := c.server.channel(parent)
	if ch == nil {
		return nil, -1
	}

	for index := range ch.medias {
		if trackControl(index) == control {
			return ch, index
		}
	}

	return nil, -1
}

func (c *connection) handleSetup(req *rtsp.Request) *rtsp.Response {
	transports, err := req.Transports()
	if err != nil || len(transports) == 0 {
		return rtsp.NewResponseFor(req, rtsp.StatusBadRequest)
	}

	var sess *session

	if len(req.Session()) != 0 {
		var res *rtsp.Response
		if sess, res = c.session(req); res != nil {
			return res
		}
	}

	publishing := true

	ch, index := c.announcedMedia(req.URL)
	if ch == nil {
		publishing = false
		ch, index = c.playMedia(req.URL)
	}

	if ch == nil {
		c.server.log("SETUP", "NOTFOUND", requestPath(req.URL), "", c.remote)
		return rtsp.NewResponseFor(req, rtsp.StatusNotFound)
	}

	if res := c.authorize(req, ch.path); res != nil {
		return res
	}

	if sess != nil && (sess.publishing != publishing || sess.channel != ch) {
		return rtsp.NewResponseFor(req, rtsp.StatusMethodNotValidInThisState)
	}

	if sess == nil && c.server.collector.IsSessionsExceeded() {
		c.server.log("SETUP", "FORBIDDEN", ch.path, "too many sessions", c.remote)
		return rtsp.NewResponseFor(req, rtsp.StatusServiceUnavailable)
	}

	// Pick the first transport that can be served
	var t rtsp.Transport
	found := false

	for _, candidate := range transports {
		if candidate.Multicast {
			continue
		}

		if candidate.Lower == rtsp.LowerUDP && (publishing || c.server.ports == nil || candidate.ClientPort == nil) {
			continue
		}

		t = candidate
		found = true
		break
	}

	if !found {
		return rtsp.NewResponseFor(req, rtsp.StatusUnsupportedTransport)
	}

	isNew := sess == nil
	if isNew {
		sess = newSession(shortuuid.New(), ch.path, publishing, ch, c)
	}

	tr := &track{
		media:   index,
		channel: -1,
	}

	reply := rtsp.Transport{
		Profile: t.Profile,
		Lower:   t.Lower,
		Mode:    t.Mode,
		SSRC:    t.SSRC,
	}

	if t.Lower == rtsp.LowerTCP {
		tr.channel = 2 * index
		if t.Interleaved != nil {
			tr.channel = t.Interleaved.First
		}

		if tr.channel > 254 {
			return rtsp.NewResponseFor(req, rtsp.StatusBadRequest)
		}

		reply.Interleaved = &rtsp.PortCouple{First: tr.channel, Second: tr.channel + 1, HasSecond: true}
	} else {
		host, _, err := net.SplitHostPort(c.remote)
		if err != nil {
			host = c.remote
		}

		sink, err := newUDPSink(c.server.ports, host, *t.ClientPort, func(n int) {
			c.server.collector.Ingress(sess.id, int64(n))
		})
		if err != nil {
			c.logger.Warn().WithError(err).Log("Can't set up UDP delivery")
			return rtsp.NewResponseFor(req, rtsp.StatusUnsupportedTransport)
		}

		tr.udp = sink

		ports := sink.serverPorts()
		reply.ClientPort = t.ClientPort
		reply.ServerPort = &ports
	}

	if err := sess.addTrack(tr); err != nil {
		if tr.udp != nil {
			tr.udp.close()
		}

		return rtsp.NewResponseFor(req, rtsp.StatusMethodNotValidInThisState)
	}

	if isNew {
		c.addSession(sess)
	}

	res := rtsp.NewResponseFor(req, rtsp.StatusOK)
	res.SetTransport(reply)
	res.SetSession(sess.id)
	res.SetTimeout(int(c.server.sessionTimeout.Seconds()))

	return res
}

func (c *connection) handlePlay(req *rtsp.Request) (*rtsp.Response, func()) {
	sess, res := c.session(req)
	if res != nil {
		return res, nil
	}

	if sess.publishing || sess.numTracks() == 0 {
		return rtsp.NewResponseFor(req, rtsp.StatusMethodNotValidInThisState), nil
	}

	if !sess.channel.isActive() {
		return rtsp.NewResponseFor(req, rtsp.StatusNotFound), nil
	}

	res = rtsp.NewResponseFor(req, rtsp.StatusOK)
	res.Header().Set("Range", "npt=0.000-")

	if sess.getState() == statePlaying {
		return res, nil
	}

	return res, func() {
		if err := sess.play(); err != nil {
			c.server.closeSession(sess, "unpublished")
			return
		}

		c.server.log("PLAY", "START", sess.path, "", c.remote)
		c.server.publishEvent(event.ActionPlay, sess.path, sess.id, c.remote)
	}
}

func (c *connection) handlePause(req *rtsp.Request) *rtsp.Response {
	sess, res := c.session(req)
	if res != nil {
		return res
	}

	if sess.publishing {
		return rtsp.NewResponseFor(req, rtsp.StatusMethodNotValidInThisState)
	}

	sess.pause()

	return rtsp.NewResponseFor(req, rtsp.StatusOK)
}

func (c *connection) handleRecord(req *rtsp.Request) (*rtsp.Response, func()) {
	sess, res := c.session(req)
	if res != nil {
		return res, nil
	}

	if !sess.publishing {
		return rtsp.NewResponseFor(req, rtsp.StatusMethodNotValidInThisState), nil
	}

	if err := sess.record(); err != nil {
		return rtsp.NewResponseFor(req, rtsp.StatusMethodNotValidInThisState), nil
	}

	// Players may find the channel as soon as the publisher got the response
	sess.channel.activate(sess.id)

	return rtsp.NewResponseFor(req, rtsp.StatusOK), func() {
		c.server.log("PUBLISH", "START", sess.path, "", c.remote)

		for _, m := range sess.channel.medias {
			c.server.log("PUBLISH", "STREAM", sess.path, m.info.Type+" "+m.codec, c.remote)
		}

		c.server.publishEvent(event.ActionPublish, sess.path, sess.id, c.remote)
	}
}

func (c *connection) handleTeardown(req *rtsp.Request) (*rtsp.Response, func()) {
	sess, res := c.session(req)
	if res != nil {
		return res, nil
	}

	return rtsp.NewResponseFor(req, rtsp.StatusOK), func() {
		if !sess.publishing && sess.getState() == statePlaying {
			c.server.log("PLAY", "STOP", sess.path, "", c.remote)
			c.server.publishEvent(event.ActionStop, sess.path, sess.id, c.remote)
		}

		c.server.closeSession(sess, "teardown")
	}
}

func (c *connection) handleParameter(req *rtsp.Request) *rtsp.Response {
	if len(req.Session()) != 0 {
		if _, res := c.session(req); res != nil {
			return res
		}
	}

	if req.Method == rtsp.SetParameter && len(req.Body()) != 0 {
		return rtsp.NewResponseFor(req, rtsp.StatusParameterNotUnderstood)
	}

	return rtsp.NewResponseFor(req, rtsp.StatusOK)
}
