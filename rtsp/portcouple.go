package rtsp

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidPort = errors.New("invalid port")

// PortCouple is a port or channel number with an optional second one, "P" or "P1-P2".
type PortCouple struct {
	First     int
	Second    int
	HasSecond bool
}

// NewPortCouple returns a PortCouple for the given ports. A port outside of 0..65535
// is an error.
func NewPortCouple(ports ...int) (PortCouple, error) {
	if len(ports) == 0 || len(ports) > 2 {
		return PortCouple{}, fmt.Errorf("expecting one or two ports: %w", ErrInvalidPort)
	}

	for _, p := range ports {
		if p < 0 || p > 0xFFFF {
			return PortCouple{}, fmt.Errorf("%d: %w", p, ErrInvalidPort)
		}
	}

	pc := PortCouple{First: ports[0]}

	if len(ports) == 2 {
		pc.Second = ports[1]
		pc.HasSecond = true
	}

	return pc, nil
}

// ParsePortCouple parses "P" or "P1-P2".
func ParsePortCouple(s string) (PortCouple, error) {
	first, second, hasSecond := strings.Cut(strings.TrimSpace(s), "-")

	p1, err := parsePort(first)
	if err != nil {
		return PortCouple{}, err
	}

	if !hasSecond {
		return PortCouple{First: p1}, nil
	}

	p2, err := parsePort(second)
	if err != nil {
		return PortCouple{}, err
	}

	return PortCouple{First: p1, Second: p2, HasSecond: true}, nil
}

func parsePort(s string) (int, error) {
	p, err := strconv.Atoi(s)
	if err != nil || p < 0 || p > 0xFFFF {
		return 0, fmt.Errorf("%q: %w", s, ErrInvalidPort)
	}

	return p, nil
}

func (p PortCouple) String() string {
	if !p.HasSecond {
		return strconv.Itoa(p.First)
	}

	return strconv.Itoa(p.First) + "-" + strconv.Itoa(p.Second)
}
