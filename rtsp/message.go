package rtsp

import (
	"bytes"
	"strconv"
	"sync/atomic"
)

// DefaultProto is the protocol version written if a message doesn't set one.
const DefaultProto = "RTSP/1.0"

// ConnID identifies a connection. It is a handle only, it doesn't keep the
// connection alive.
type ConnID uint64

var lastConnID atomic.Uint64

func nextConnID() ConnID {
	return ConnID(lastConnID.Add(1))
}

// Message is either a *Request or a *Response.
type Message interface {
	Header() *Header
	Body() []byte
	SetBody(body []byte)
	Origin() ConnID
	SetOrigin(id ConnID)
	CSeq() (int, bool)
	SetCSeq(cseq int)
	Session() string
	SetSession(id string)
	Timeout() int
	SetTimeout(timeout int)
	ContentLength() (int, bool)
	AdjustContentLength()

	startLine() string
}

type message struct {
	header Header
	body   []byte
	origin ConnID
}

func (m *message) Header() *Header {
	return &m.header
}

func (m *message) Body() []byte {
	return m.body
}

func (m *message) SetBody(body []byte) {
	m.body = body
}

// Origin returns the connection that received the message, or the one it is going
// to be sent on.
func (m *message) Origin() ConnID {
	return m.origin
}

func (m *message) SetOrigin(id ConnID) {
	m.origin = id
}

// CSeq returns the sequence number and whether a valid one is present.
func (m *message) CSeq() (int, bool) {
	v, ok := m.header.Lookup("CSeq")
	if !ok {
		return 0, false
	}

	cseq, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}

	return cseq, true
}

func (m *message) SetCSeq(cseq int) {
	m.header.Set("CSeq", strconv.Itoa(cseq))
}

// Session returns the session id of the Session header.
func (m *message) Session() string {
	v, ok := m.header.Lookup("Session")
	if !ok {
		return ""
	}

	return ParseSessionHeader(v).ID
}

// SetSession sets the session id and keeps a present timeout.
func (m *message) SetSession(id string) {
	s := ParseSessionHeader(m.header.Get("Session"))
	s.ID = id

	m.header.Set("Session", s.String())
}

// Timeout returns the session timeout in seconds, DefaultSessionTimeout if the
// Session header has none.
func (m *message) Timeout() int {
	return ParseSessionHeader(m.header.Get("Session")).EffectiveTimeout()
}

// SetTimeout sets the session timeout and keeps the session id.
func (m *message) SetTimeout(timeout int) {
	s := ParseSessionHeader(m.header.Get("Session"))
	s.Timeout = timeout

	m.header.Set("Session", s.String())
}

// ContentLength returns the value of the Content-Length header, if it is present
// and numeric.
func (m *message) ContentLength() (int, bool) {
	v, ok := m.header.Lookup("Content-Length")
	if !ok {
		return 0, false
	}

	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}

	return n, true
}

// AdjustContentLength sets the Content-Length header to the length of the body. The
// header is removed for an empty body.
func (m *message) AdjustContentLength() {
	if len(m.body) == 0 {
		m.header.Del("Content-Length")
		return
	}

	m.header.Set("Content-Length", strconv.Itoa(len(m.body)))
}

func (m *message) clone() message {
	c := message{
		header: m.header.Clone(),
		origin: m.origin,
	}

	if m.body != nil {
		c.body = bytes.Clone(m.body)
	}

	return c
}

// Request is an RTSP request.
type Request struct {
	message

	Method Method

	// MethodName is the method token as received. It matters for Unknown methods.
	MethodName string

	// URL is the request target. It is empty for "*".
	URL   string
	Proto string
}

// NewRequest returns a request for the given method and target.
func NewRequest(method Method, url string) *Request {
	return &Request{
		Method:     method,
		MethodName: method.String(),
		URL:        url,
		Proto:      DefaultProto,
	}
}

// Transports returns the transports of the Transport header.
func (r *Request) Transports() ([]Transport, error) {
	return ParseTransports(r.header.Get("Transport"))
}

func (r *Request) SetTransport(t Transport) {
	r.header.Set("Transport", t.String())
}

func (r *Request) Clone() *Request {
	c := *r
	c.message = r.message.clone()

	return &c
}

func (r *Request) startLine() string {
	name := r.MethodName
	if r.Method != Unknown || len(name) == 0 {
		name = r.Method.String()
	}

	target := r.URL
	if len(target) == 0 {
		target = "*"
	}

	proto := r.Proto
	if len(proto) == 0 {
		proto = DefaultProto
	}

	return name + " " + target + " " + proto
}

// Response is an RTSP response.
type Response struct {
	message

	StatusCode int
	Reason     string
	Proto      string

	// Request is the request this response answers. It is only set by Conn.Do.
	Request *Request
}

// NewResponse returns a response with the default reason for the status code.
func NewResponse(code int) *Response {
	return &Response{
		StatusCode: code,
		Reason:     StatusText(code),
		Proto:      DefaultProto,
	}
}

// NewResponseFor returns a response to req with the CSeq and Session of req.
func NewResponseFor(req *Request, code int) *Response {
	res := NewResponse(code)
	res.origin = req.origin

	if cseq, ok := req.header.Lookup("CSeq"); ok {
		res.header.Set("CSeq", cseq)
	}

	if session, ok := req.header.Lookup("Session"); ok {
		res.header.Set("Session", session)
	}

	return res
}

// Transport returns the first transport of the Transport header.
func (r *Response) Transport() (Transport, error) {
	list, err := ParseTransports(r.header.Get("Transport"))
	if err != nil {
		return Transport{}, err
	}

	if len(list) == 0 {
		return DefaultTransport(), nil
	}

	return list[0], nil
}

func (r *Response) SetTransport(t Transport) {
	r.header.Set("Transport", t.String())
}

func (r *Response) Clone() *Response {
	c := *r
	c.message = r.message.clone()

	return &c
}

func (r *Response) startLine() string {
	proto := r.Proto
	if len(proto) == 0 {
		proto = DefaultProto
	}

	reason := r.Reason
	if len(reason) == 0 {
		reason = StatusText(r.StatusCode)
	}

	return proto + " " + strconv.Itoa(r.StatusCode) + " " + reason
}

// Clone returns a copy of the message with the same origin.
func Clone(m Message) Message {
	switch v := m.(type) {
	case *Request:
		return v.Clone()
	case *Response:
		return v.Clone()
	}

	return nil
}
