// Package payload reassembles access units from RTP packets.
package payload

import (
	"errors"

	"github.com/pion/rtp"
)

var (
	ErrMalformed   = errors.New("malformed payload")
	ErrUnsupported = errors.New("unsupported payload")
)

// Reassembler turns a stream of RTP packets into access units. Packets are
// expected in transmission order. A Reassembler is not safe for concurrent use.
type Reassembler interface {
	// Process consumes a packet and returns the access units it completed, if any.
	Process(pkt *rtp.Packet) ([][]byte, error)

	// Reset drops any frame in progress.
	Reset()
}

// Order classifies a sequence number relative to the previous one.
type Order int

const (
	// InOrder directly follows the previous sequence number.
	InOrder Order = iota
	// Gap follows the previous sequence number with packets missing in between.
	Gap
	// Late is a duplicate or a packet that arrived after a newer one. It should
	// be ignored.
	Late
)

// Sequencer detects gaps in RTP sequence numbers.
type Sequencer struct {
	last    uint16
	started bool
	lost    uint64
	late    uint64
}

// Next registers a sequence number and classifies it. The first call always
// reports InOrder. Late packets don't move the sequencer.
func (s *Sequencer) Next(seq uint16) Order {
	if !s.started {
		s.started = true
		s.last = seq
		return InOrder
	}

	diff := seq - s.last

	// A step of zero or of more than half the sequence space goes backwards.
	if diff == 0 || diff >= 0x8000 {
		s.late++
		return Late
	}

	s.last = seq

	if diff == 1 {
		return InOrder
	}

	s.lost += uint64(diff - 1)

	return Gap
}

// Late returns the number of duplicate or reordered packets seen so far.
func (s *Sequencer) Late() uint64 {
	return s.late
}

// Lost returns the number of packets that have been skipped so far.
func (s *Sequencer) Lost() uint64 {
	return s.lost
}

func (s *Sequencer) Reset() {
	*s = Sequencer{}
}
