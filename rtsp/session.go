package rtsp

import (
	"strconv"
	"strings"
)

// DefaultSessionTimeout is the session timeout in seconds if none is given.
const DefaultSessionTimeout = 60

// SessionHeader is the value of the Session header, "id[;timeout=N]".
type SessionHeader struct {
	ID      string
	Timeout int

	// Other parameters are kept in order and rendered after the timeout.
	params []string
}

// ParseSessionHeader parses the value of a Session header. Timeout is 0 if the
// header carries no valid timeout parameter.
func ParseSessionHeader(s string) SessionHeader {
	parts := strings.Split(s, ";")

	h := SessionHeader{
		ID: strings.TrimSpace(parts[0]),
	}

	hasTimeout := false

	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		if len(p) == 0 {
			continue
		}

		key, value, _ := strings.Cut(p, "=")
		if strings.EqualFold(key, "timeout") && !hasTimeout {
			if t, err := strconv.Atoi(value); err == nil && t > 0 {
				h.Timeout = t
				hasTimeout = true
				continue
			}
		}

		h.params = append(h.params, p)
	}

	return h
}

// EffectiveTimeout returns the timeout or DefaultSessionTimeout if none is set.
func (h SessionHeader) EffectiveTimeout() int {
	if h.Timeout <= 0 {
		return DefaultSessionTimeout
	}

	return h.Timeout
}

func (h SessionHeader) String() string {
	var b strings.Builder

	b.WriteString(h.ID)

	if h.Timeout > 0 {
		b.WriteString(";timeout=")
		b.WriteString(strconv.Itoa(h.Timeout))
	}

	for _, p := range h.params {
		b.WriteByte(';')
		b.WriteString(p)
	}

	return b.String()
}
