// Package h264 reassembles H.264 NAL units from RTP packets (RFC 6184).
package h264

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/datarhei/rtsp/mem"
	"github.com/datarhei/rtsp/payload"

	"github.com/datarhei/joy4/codec/h264parser"
	"github.com/pion/rtp"
)

// NAL unit types
const (
	NALUSlice    = 1
	NALUIDR      = 5
	NALUSEI      = 6
	NALUSPS      = 7
	NALUPPS      = 8
	NALUAUD      = 9
	NALUSTAPA    = 24
	NALUSTAPB    = 25
	NALUMTAP16   = 26
	NALUMTAP24   = 27
	NALUFUA      = 28
	NALUFUB      = 29
	naluTypeMask = 0x1F
)

// StartCode is the prefix of every emitted NAL unit.
var StartCode = []byte{0x00, 0x00, 0x00, 0x01}

// Reassembler emits NAL units in Annex B format, each prefixed with StartCode.
type Reassembler struct {
	seq payload.Sequencer

	fragment   mem.Buffer
	inFragment bool
	dropped    uint64

	sps []byte
	pps []byte
}

func New() *Reassembler {
	return &Reassembler{}
}

func (r *Reassembler) Reset() {
	r.fragment.Reset()
	r.inFragment = false
}

// Dropped returns the number of fragmented units that have been dropped because of
// lost packets.
func (r *Reassembler) Dropped() uint64 {
	return r.dropped
}

func (r *Reassembler) Process(pkt *rtp.Packet) ([][]byte, error) {
	switch r.seq.Next(pkt.SequenceNumber) {
	case payload.Late:
		return nil, nil
	case payload.Gap:
		if r.inFragment {
			r.drop()
		}
	}

	data := pkt.Payload
	if len(data) == 0 {
		return nil, fmt.Errorf("empty packet: %w", payload.ErrMalformed)
	}

	typ := data[0] & naluTypeMask

	if typ != NALUFUA && r.inFragment {
		r.drop()
	}

	switch {
	case typ >= 1 && typ <= 23:
		r.cache(data)
		return [][]byte{annexB(data)}, nil
	case typ == NALUSTAPA:
		return r.processSTAPA(data[1:])
	case typ == NALUFUA:
		return r.processFUA(data)
	}

	return nil, fmt.Errorf("NAL unit type %d: %w", typ, payload.ErrUnsupported)
}

func (r *Reassembler) processSTAPA(data []byte) ([][]byte, error) {
	units := [][]byte{}

	for len(data) != 0 {
		if len(data) < 2 {
			return nil, fmt.Errorf("truncated STAP-A size: %w", payload.ErrMalformed)
		}

		size := int(binary.BigEndian.Uint16(data))
		data = data[2:]

		if size == 0 || size > len(data) {
			return nil, fmt.Errorf("STAP-A unit of %d bytes: %w", size, payload.ErrMalformed)
		}

		r.cache(data[:size])
		units = append(units, annexB(data[:size]))

		data = data[size:]
	}

	return units, nil
}

func (r *Reassembler) processFUA(data []byte) ([][]byte, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("truncated FU-A: %w", payload.ErrMalformed)
	}

	header := data[1]
	start := header&0x80 != 0
	end := header&0x40 != 0

	if start {
		if r.inFragment {
			r.drop()
		}

		r.fragment.Reset()
		r.fragment.Write(StartCode)
		r.fragment.WriteByte(data[0]&0xE0 | header&naluTypeMask)
		r.inFragment = true
	} else if !r.inFragment {
		// Continuation without a start, wait for the next unit.
		return nil, nil
	}

	r.fragment.Write(data[2:])

	if !end {
		return nil, nil
	}

	unit := r.fragment.Clone()
	r.Reset()

	r.cache(unit[len(StartCode):])

	return [][]byte{unit}, nil
}

func (r *Reassembler) drop() {
	r.dropped++
	r.Reset()
}

func (r *Reassembler) cache(nalu []byte) {
	switch nalu[0] & naluTypeMask {
	case NALUSPS:
		if !bytes.Equal(r.sps, nalu) {
			r.sps = bytes.Clone(nalu)
		}
	case NALUPPS:
		if !bytes.Equal(r.pps, nalu) {
			r.pps = bytes.Clone(nalu)
		}
	}
}

// SetParameterSets loads SPS and PPS that have been signalled out of band, e.g.
// from sprop-parameter-sets. Other units are ignored.
func (r *Reassembler) SetParameterSets(sets [][]byte) {
	for _, set := range sets {
		if len(set) != 0 {
			r.cache(set)
		}
	}
}

// ParameterSets returns the last seen SPS and PPS, without start code.
func (r *Reassembler) ParameterSets() (sps, pps []byte) {
	return r.sps, r.pps
}

// CodecData returns the decoder configuration for the known parameter sets.
func (r *Reassembler) CodecData() (h264parser.CodecData, error) {
	if len(r.sps) == 0 || len(r.pps) == 0 {
		return h264parser.CodecData{}, fmt.Errorf("parameter sets not known yet")
	}

	return h264parser.NewCodecDataFromSPSAndPPS(r.sps, r.pps)
}

func annexB(nalu []byte) []byte {
	unit := make([]byte, 0, len(StartCode)+len(nalu))
	unit = append(unit, StartCode...)
	unit = append(unit, nalu...)

	return unit
}
