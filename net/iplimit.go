package net

import (
	"fmt"
	"net"
	"strings"
)

// The IPLimiter interface allows to check whether a client address is allowed.
type IPLimiter interface {
	// IsAllowed accepts an IP or a host:port address.
	IsAllowed(addr string) bool
}

// iplimit implements the IPLimiter interface by having an allow and block list
// of CIDR ranges.
type iplimit struct {
	allowlist []*net.IPNet
	blocklist []*net.IPNet
}

// NewIPLimiter creates a new IPLimiter with the given ranges for the allowed and
// blocked addresses. A single IP is treated as a range with only that IP. Empty
// strings are ignored.
func NewIPLimiter(blocklist, allowlist []string) (IPLimiter, error) {
	ipl := &iplimit{}

	var err error

	ipl.blocklist, err = parseRanges(blocklist)
	if err != nil {
		return nil, fmt.Errorf("block list: %w", err)
	}

	ipl.allowlist, err = parseRanges(allowlist)
	if err != nil {
		return nil, fmt.Errorf("allow list: %w", err)
	}

	return ipl, nil
}

func parseRanges(list []string) ([]*net.IPNet, error) {
	ranges := []*net.IPNet{}

	for _, block := range list {
		block = strings.TrimSpace(block)
		if len(block) == 0 {
			continue
		}

		if !strings.Contains(block, "/") {
			ip := net.ParseIP(block)
			if ip == nil {
				return nil, fmt.Errorf("the IP %s is invalid", block)
			}

			if ip.To4() != nil {
				block += "/32"
			} else {
				block += "/128"
			}
		}

		_, cidr, err := net.ParseCIDR(block)
		if err != nil {
			return nil, fmt.Errorf("the IP block %s is invalid", block)
		}

		ranges = append(ranges, cidr)
	}

	return ranges, nil
}

func (ipl *iplimit) IsAllowed(addr string) bool {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}

	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}

	for _, r := range ipl.blocklist {
		if r.Contains(ip) {
			return false
		}
	}

	if len(ipl.allowlist) == 0 {
		return true
	}

	for _, r := range ipl.allowlist {
		if r.Contains(ip) {
			return true
		}
	}

	return false
}

type nulliplimiter struct{}

// NewNullIPLimiter returns an IPLimiter that allows every address.
func NewNullIPLimiter() IPLimiter {
	return &nulliplimiter{}
}

func (ipl *nulliplimiter) IsAllowed(addr string) bool {
	return true
}
