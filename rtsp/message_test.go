package rtsp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeader(t *testing.T) {
	h := Header{}

	h.Add("cseq", "1")
	h.Add("X-Foo", "a")
	h.Add("x-foo", "b")
	h.Add("Session", "123")

	require.Equal(t, 4, h.Len())
	require.Equal(t, []string{"CSeq", "X-Foo", "Session"}, h.Keys())
	require.Equal(t, "a", h.Get("X-FOO"))
	require.Equal(t, []string{"a", "b"}, h.Values("x-foo"))

	h.Set("X-FOO", "c")
	require.Equal(t, 3, h.Len())
	require.Equal(t, []string{"CSeq", "X-FOO", "Session"}, h.Keys())
	require.Equal(t, []string{"c"}, h.Values("x-foo"))

	h.Del("cSeQ")
	require.False(t, h.Has("CSeq"))
	require.Equal(t, 2, h.Len())

	_, ok := h.Lookup("missing")
	require.False(t, ok)
	require.Equal(t, "", h.Get("missing"))

	c := h.Clone()
	c.Set("Session", "456")
	require.Equal(t, "123", h.Get("Session"))
	require.Equal(t, "456", c.Get("Session"))
}

func TestSession(t *testing.T) {
	req := NewRequest(Play, "rtsp://example.com/live")

	req.SetSession("12345")
	require.Equal(t, "12345", req.Session())
	require.Equal(t, 60, req.Timeout())

	req.SetTimeout(10)
	require.Equal(t, "12345;timeout=10", req.Header().Get("Session"))
	require.Equal(t, 10, req.Timeout())

	req.SetSession("67890")
	require.Equal(t, "67890;timeout=10", req.Header().Get("Session"))
}

func TestParseSessionHeader(t *testing.T) {
	s := ParseSessionHeader(" abc ; timeout=30;foo=bar")
	require.Equal(t, "abc", s.ID)
	require.Equal(t, 30, s.Timeout)
	require.Equal(t, "abc;timeout=30;foo=bar", s.String())

	s = ParseSessionHeader("abc;timeout=x")
	require.Equal(t, 0, s.Timeout)
	require.Equal(t, 60, s.EffectiveTimeout())
}

func TestClone(t *testing.T) {
	req := NewRequest(Describe, "rtsp://example.com/live")
	req.SetOrigin(42)
	req.SetCSeq(1)
	req.SetBody([]byte("abc"))

	c := Clone(req).(*Request)
	require.Equal(t, ConnID(42), c.Origin())
	require.Equal(t, req.URL, c.URL)
	require.Equal(t, req.Body(), c.Body())

	c.SetCSeq(2)
	c.Body()[0] = 'x'

	cseq, _ := req.CSeq()
	require.Equal(t, 1, cseq)
	require.Equal(t, []byte("abc"), req.Body())

	res := NewResponseFor(req, StatusNotFound)
	require.Equal(t, "Not Found", res.Reason)
	require.Equal(t, ConnID(42), res.Origin())

	cres := Clone(res).(*Response)
	require.Equal(t, 404, cres.StatusCode)
	require.Equal(t, ConnID(42), cres.Origin())
}

func TestAdjustContentLength(t *testing.T) {
	res := NewResponse(StatusOK)
	res.SetBody([]byte("abc"))
	res.AdjustContentLength()

	n, ok := res.ContentLength()
	require.True(t, ok)
	require.Equal(t, 3, n)

	res.SetBody(nil)
	res.AdjustContentLength()
	require.False(t, res.Header().Has("Content-Length"))
}

func TestPortCouple(t *testing.T) {
	p, err := ParsePortCouple("1212")
	require.NoError(t, err)
	require.Equal(t, "1212", p.String())
	require.False(t, p.HasSecond)

	p, err = ParsePortCouple("1212-1215")
	require.NoError(t, err)
	require.Equal(t, "1212-1215", p.String())
	require.True(t, p.HasSecond)
	require.Equal(t, 1215, p.Second)

	for _, s := range []string{"", "abc", "-1", "70000", "1-70000", "1-"} {
		_, err = ParsePortCouple(s)
		require.ErrorIs(t, err, ErrInvalidPort, s)
	}

	_, err = NewPortCouple(65536)
	require.ErrorIs(t, err, ErrInvalidPort)

	p, err = NewPortCouple(5000, 5001)
	require.NoError(t, err)
	require.Equal(t, "5000-5001", p.String())
}

func TestTransport(t *testing.T) {
	d := DefaultTransport()
	require.Equal(t, LowerUDP, d.Lower)
	require.True(t, d.Multicast)
	require.Equal(t, "PLAY", d.Mode)

	tr, err := ParseTransport("RTP/AVP;unicast;client_port=5000-5001;server_port=6000-6001;ssrc=0000BEEF;mode=record")
	require.NoError(t, err)
	require.Equal(t, "RTP/AVP", tr.Profile)
	require.Equal(t, LowerUDP, tr.Lower)
	require.False(t, tr.Multicast)
	require.Equal(t, "5000-5001", tr.ClientPort.String())
	require.Equal(t, "6000-6001", tr.ServerPort.String())
	require.Equal(t, uint32(0xBEEF), *tr.SSRC)
	require.True(t, tr.IsRecord())
	require.Nil(t, tr.Interleaved)
	require.Equal(t, "RTP/AVP;unicast;client_port=5000-5001;server_port=6000-6001;ssrc=0000BEEF;mode=record", tr.String())

	tr, err = ParseTransport("RTP/AVP/TCP;unicast;interleaved=2-3")
	require.NoError(t, err)
	require.Equal(t, LowerTCP, tr.Lower)
	require.Equal(t, "PLAY", tr.Mode)
	require.Equal(t, "RTP/AVP/TCP;unicast;interleaved=2-3;mode=PLAY", tr.String())

	tr, err = ParseTransport("RTP/AVP;multicast;destination=224.2.0.1;ttl=16")
	require.NoError(t, err)
	require.True(t, tr.Multicast)
	require.Equal(t, "224.2.0.1", tr.Destination)
	require.Equal(t, 16, tr.TTL)

	_, err = ParseTransport("RTP/AVP;unicast;client_port=99999")
	require.ErrorIs(t, err, ErrInvalidPort)

	_, err = ParseTransport("RTP/AVP/SCTP;unicast")
	require.Error(t, err)

	list, err := ParseTransports("RTP/AVP/TCP;unicast;interleaved=0-1, RTP/AVP;unicast;client_port=5000-5001")
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, LowerTCP, list[0].Lower)
	require.Equal(t, LowerUDP, list[1].Lower)
}

func TestMethod(t *testing.T) {
	for m := Options; m <= Redirect; m++ {
		require.Equal(t, m, ParseMethod(m.String()))
	}

	require.Equal(t, Unknown, ParseMethod("UNKNOWN"))
	require.Equal(t, Unknown, ParseMethod("options"))
}
