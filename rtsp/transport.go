package rtsp

import (
	"fmt"
	"strconv"
	"strings"
)

// LowerTransport is the lower transport of a Transport header.
type LowerTransport int

const (
	LowerUDP LowerTransport = iota
	LowerTCP
)

func (l LowerTransport) String() string {
	if l == LowerTCP {
		return "TCP"
	}

	return "UDP"
}

// Transport is a single transport specification of a Transport header.
type Transport struct {
	Profile     string // e.g. "RTP/AVP"
	Lower       LowerTransport
	Multicast   bool
	Interleaved *PortCouple
	ClientPort  *PortCouple
	ServerPort  *PortCouple
	SSRC        *uint32
	Mode        string
	Destination string
	Source      string
	TTL         int
}

// DefaultTransport returns the transport assumed if none is given: multicast UDP for
// playing.
func DefaultTransport() Transport {
	return Transport{
		Profile:   "RTP/AVP",
		Lower:     LowerUDP,
		Multicast: true,
		Mode:      "PLAY",
	}
}

// IsRecord returns whether the transport is set up for receiving media from the client.
func (t Transport) IsRecord() bool {
	return strings.EqualFold(t.Mode, "record") || strings.EqualFold(t.Mode, "receive")
}

// ParseTransport parses a single transport specification. Unknown parameters are
// ignored.
func ParseTransport(s string) (Transport, error) {
	t := DefaultTransport()

	parts := strings.Split(strings.TrimSpace(s), ";")

	spec := strings.TrimSpace(parts[0])
	if len(spec) == 0 {
		return t, fmt.Errorf("missing transport specifier")
	}

	// RTP/AVP[/UDP|/TCP]
	elements := strings.Split(spec, "/")
	if len(elements) >= 3 {
		switch strings.ToUpper(elements[2]) {
		case "TCP":
			t.Lower = LowerTCP
		case "UDP":
			t.Lower = LowerUDP
		default:
			return t, fmt.Errorf("unknown lower transport '%s'", elements[2])
		}
		t.Profile = strings.Join(elements[:2], "/")
	} else {
		t.Profile = spec
	}

	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		if len(p) == 0 {
			continue
		}

		key, value, _ := strings.Cut(p, "=")
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.Trim(strings.TrimSpace(value), `"`)

		var err error

		switch key {
		case "unicast":
			t.Multicast = false
		case "multicast":
			t.Multicast = true
		case "interleaved":
			t.Interleaved, err = parsePortCoupleRef(value)
		case "client_port":
			t.ClientPort, err = parsePortCoupleRef(value)
		case "server_port":
			t.ServerPort, err = parsePortCoupleRef(value)
		case "ssrc":
			var ssrc uint64
			ssrc, err = strconv.ParseUint(value, 16, 32)
			if err == nil {
				v := uint32(ssrc)
				t.SSRC = &v
			}
		case "mode":
			t.Mode = value
		case "destination":
			t.Destination = value
		case "source":
			t.Source = value
		case "ttl":
			t.TTL, err = strconv.Atoi(value)
		}

		if err != nil {
			return t, fmt.Errorf("invalid transport parameter '%s': %w", p, err)
		}
	}

	// Interleaving implies TCP even if the specifier didn't say so.
	if t.Interleaved != nil {
		t.Lower = LowerTCP
		t.Multicast = false
	}

	return t, nil
}

// ParseTransports parses a Transport header with comma separated alternatives.
func ParseTransports(s string) ([]Transport, error) {
	list := []Transport{}

	for _, part := range strings.Split(s, ",") {
		if len(strings.TrimSpace(part)) == 0 {
			continue
		}

		t, err := ParseTransport(part)
		if err != nil {
			return nil, err
		}

		list = append(list, t)
	}

	return list, nil
}

func parsePortCoupleRef(s string) (*PortCouple, error) {
	p, err := ParsePortCouple(s)
	if err != nil {
		return nil, err
	}

	return &p, nil
}

func (t Transport) String() string {
	var b strings.Builder

	profile := t.Profile
	if len(profile) == 0 {
		profile = "RTP/AVP"
	}

	b.WriteString(profile)
	if t.Lower == LowerTCP {
		b.WriteString("/TCP")
	}

	if t.Multicast {
		b.WriteString(";multicast")
	} else {
		b.WriteString(";unicast")
	}

	if len(t.Destination) != 0 {
		b.WriteString(";destination=" + t.Destination)
	}

	if len(t.Source) != 0 {
		b.WriteString(";source=" + t.Source)
	}

	if t.Interleaved != nil {
		b.WriteString(";interleaved=" + t.Interleaved.String())
	}

	if t.ClientPort != nil {
		b.WriteString(";client_port=" + t.ClientPort.String())
	}

	if t.ServerPort != nil {
		b.WriteString(";server_port=" + t.ServerPort.String())
	}

	if t.TTL > 0 {
		b.WriteString(";ttl=" + strconv.Itoa(t.TTL))
	}

	if t.SSRC != nil {
		fmt.Fprintf(&b, ";ssrc=%08X", *t.SSRC)
	}

	if len(t.Mode) != 0 {
		b.WriteString(";mode=" + t.Mode)
	}

	return b.String()
}
