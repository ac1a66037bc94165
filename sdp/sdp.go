// Package sdp reads and writes the session descriptions exchanged with DESCRIBE
// and ANNOUNCE.
package sdp

import (
	"fmt"
	"strconv"
	"strings"

	psdp "github.com/pion/sdp/v3"
)

type Attribute struct {
	Key   string
	Value string
}

// Media is a single media section of a description.
type Media struct {
	Type       string // video, audio, application, ...
	Port       int
	Proto      string
	Formats    []string
	Attributes []Attribute
}

// Attribute returns the value of the first attribute with the given key.
func (m Media) Attribute(key string) (string, bool) {
	for _, a := range m.Attributes {
		if a.Key == key {
			return a.Value, true
		}
	}

	return "", false
}

// Control returns the control URL of the media, which may be relative.
func (m Media) Control() string {
	v, _ := m.Attribute("control")
	return v
}

// PayloadType returns the first payload type of the media.
func (m Media) PayloadType() (uint8, bool) {
	if len(m.Formats) == 0 {
		return 0, false
	}

	pt, err := strconv.ParseUint(m.Formats[0], 10, 8)
	if err != nil {
		return 0, false
	}

	return uint8(pt), true
}

// formatAttribute returns the value of an attribute of the form
// "<payload type> <value>" for the first payload type.
func (m Media) formatAttribute(key string) (string, bool) {
	if len(m.Formats) == 0 {
		return "", false
	}

	for _, a := range m.Attributes {
		if a.Key != key {
			continue
		}

		pt, value, _ := strings.Cut(a.Value, " ")
		if pt == m.Formats[0] {
			return strings.TrimSpace(value), true
		}
	}

	return "", false
}

// RTPMap returns the encoding name and clock rate of the first payload type.
func (m Media) RTPMap() (string, int, bool) {
	v, ok := m.formatAttribute("rtpmap")
	if !ok {
		return "", 0, false
	}

	parts := strings.Split(v, "/")
	if len(parts) < 2 {
		return parts[0], 0, true
	}

	rate, _ := strconv.Atoi(parts[1])

	return parts[0], rate, true
}

// Fmtp returns the format parameters of the first payload type.
func (m Media) Fmtp() string {
	v, _ := m.formatAttribute("fmtp")
	return v
}

var staticCodecs = map[uint8]string{
	0:  "PCMU",
	8:  "PCMA",
	14: "MPA",
	26: "JPEG",
	32: "MPV",
	33: "MP2T",
}

// Codec returns the upper-cased encoding name of the first payload type. Static
// payload types without an rtpmap are resolved by their number.
func (m Media) Codec() string {
	if name, _, ok := m.RTPMap(); ok {
		return strings.ToUpper(name)
	}

	if pt, ok := m.PayloadType(); ok {
		return staticCodecs[pt]
	}

	return ""
}

// Description is a parsed session description.
type Description struct {
	SessionName string
	Attributes  []Attribute
	Medias      []Media

	origin *psdp.SessionDescription
}

// Control returns the session level control URL.
func (d *Description) Control() string {
	for _, a := range d.Attributes {
		if a.Key == "control" {
			return a.Value
		}
	}

	return ""
}

// Parse parses a session description.
func Parse(data []byte) (*Description, error) {
	s := &psdp.SessionDescription{}

	if err := s.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("invalid session description: %w", err)
	}

	d := &Description{
		SessionName: string(s.SessionName),
		origin:      s,
	}

	for _, a := range s.Attributes {
		d.Attributes = append(d.Attributes, Attribute{Key: a.Key, Value: a.Value})
	}

	for _, md := range s.MediaDescriptions {
		m := Media{
			Type:    md.MediaName.Media,
			Port:    md.MediaName.Port.Value,
			Proto:   strings.Join(md.MediaName.Protos, "/"),
			Formats: append([]string{}, md.MediaName.Formats...),
		}

		for _, a := range md.Attributes {
			m.Attributes = append(m.Attributes, Attribute{Key: a.Key, Value: a.Value})
		}

		d.Medias = append(d.Medias, m)
	}

	return d, nil
}

// Marshal renders the description. The origin and timing of a parsed
// description are kept.
func (d *Description) Marshal() ([]byte, error) {
	s := &psdp.SessionDescription{
		Origin: psdp.Origin{
			Username:       "-",
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: "127.0.0.1",
		},
		TimeDescriptions: []psdp.TimeDescription{{}},
	}

	if d.origin != nil {
		s.Origin = d.origin.Origin
		s.ConnectionInformation = d.origin.ConnectionInformation
		s.TimeDescriptions = d.origin.TimeDescriptions
	}

	s.SessionName = psdp.SessionName(d.SessionName)
	if len(s.SessionName) == 0 {
		s.SessionName = "-"
	}

	for _, a := range d.Attributes {
		s.Attributes = append(s.Attributes, psdp.NewAttribute(a.Key, a.Value))
	}

	for _, m := range d.Medias {
		proto := m.Proto
		if len(proto) == 0 {
			proto = "RTP/AVP"
		}

		md := &psdp.MediaDescription{
			MediaName: psdp.MediaName{
				Media:   m.Type,
				Port:    psdp.RangedPort{Value: m.Port},
				Protos:  strings.Split(proto, "/"),
				Formats: m.Formats,
			},
		}

		for _, a := range m.Attributes {
			md.Attributes = append(md.Attributes, psdp.NewAttribute(a.Key, a.Value))
		}

		s.MediaDescriptions = append(s.MediaDescriptions, md)
	}

	return s.Marshal()
}

// ResolveControl returns the absolute control URL of a media given the base URL
// of the description.
func ResolveControl(base, control string) string {
	if len(control) == 0 || control == "*" {
		return base
	}

	if strings.HasPrefix(control, "rtsp://") || strings.HasPrefix(control, "rtsps://") {
		return control
	}

	if strings.HasSuffix(base, "/") {
		return base + control
	}

	return base + "/" + control
}
