// Package jpeg reassembles JPEG images from RTP packets (RFC 2435).
package jpeg

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/datarhei/rtsp/mem"
	"github.com/datarhei/rtsp/payload"

	"github.com/pion/rtp"
)

const (
	mainHeaderSize    = 8
	restartHeaderSize = 4
	quantHeaderSize   = 4

	// Fragments may leave a hole of at most this size in the frame data.
	maxOffsetGap = 64 << 10
)

type quantization struct {
	precision byte
	tables    []byte
}

type frame struct {
	typ    uint8
	q      uint8
	width  int
	height int
	dri    uint16
	quant  quantization
}

// Reassembler emits complete JPEG images, one per RTP frame.
type Reassembler struct {
	seq payload.Sequencer

	data    mem.Buffer
	frame   frame
	inFrame bool
	dropped uint64

	// Tables of dynamic Q values, by Q.
	quant map[uint8]quantization
}

func New() *Reassembler {
	return &Reassembler{
		quant: map[uint8]quantization{},
	}
}

func (r *Reassembler) Reset() {
	r.data.Reset()
	r.inFrame = false
}

// Dropped returns the number of frames that have been dropped because of lost
// packets.
func (r *Reassembler) Dropped() uint64 {
	return r.dropped
}

func (r *Reassembler) drop() {
	r.dropped++
	r.Reset()
}

func (r *Reassembler) Process(pkt *rtp.Packet) ([][]byte, error) {
	p := pkt.Payload
	if len(p) < mainHeaderSize {
		return nil, fmt.Errorf("truncated main header: %w", payload.ErrMalformed)
	}

	offset := int(p[1])<<16 | int(p[2])<<8 | int(p[3])
	f := frame{
		typ:    p[4],
		q:      p[5],
		width:  int(p[6]) * 8,
		height: int(p[7]) * 8,
	}

	p = p[mainHeaderSize:]

	if f.typ >= 64 && f.typ <= 127 {
		if len(p) < restartHeaderSize {
			return nil, fmt.Errorf("truncated restart marker header: %w", payload.ErrMalformed)
		}

		f.dri = binary.BigEndian.Uint16(p)
		p = p[restartHeaderSize:]
	}

	if f.typ&0x3F > 1 {
		return nil, fmt.Errorf("type %d: %w", f.typ, payload.ErrUnsupported)
	}

	switch r.seq.Next(pkt.SequenceNumber) {
	case payload.Late:
		return nil, nil
	case payload.Gap:
		if r.inFrame {
			r.drop()
		}
	}

	if offset == 0 {
		if r.inFrame {
			r.drop()
		}

		var err error

		f.quant, p, err = r.quantization(f.q, p)
		if err != nil {
			return nil, err
		}

		r.data.Reset()
		r.frame = f
		r.inFrame = true
	} else if !r.inFrame {
		// Fragment of a frame whose start is missing.
		return nil, nil
	}

	if offset > r.data.Len()+maxOffsetGap {
		r.drop()
		return nil, fmt.Errorf("fragment offset %d beyond %d bytes of frame data: %w", offset, r.data.Len(), payload.ErrMalformed)
	}

	r.data.WriteAt(p, offset)

	if !pkt.Marker {
		return nil, nil
	}

	image := r.image()
	r.Reset()

	return [][]byte{image}, nil
}

// quantization returns the tables for q, reading them from p if they are present.
func (r *Reassembler) quantization(q uint8, p []byte) (quantization, []byte, error) {
	if q < 128 {
		return quantization{tables: MakeTables(int(q))}, p, nil
	}

	if len(p) < quantHeaderSize {
		return quantization{}, nil, fmt.Errorf("truncated quantization table header: %w", payload.ErrMalformed)
	}

	precision := p[1]
	length := int(binary.BigEndian.Uint16(p[2:]))
	p = p[quantHeaderSize:]

	if length == 0 {
		quant, ok := r.quant[q]
		if !ok {
			return quantization{}, nil, fmt.Errorf("no quantization tables for Q %d: %w", q, payload.ErrMalformed)
		}

		return quant, p, nil
	}

	if length > len(p) {
		return quantization{}, nil, fmt.Errorf("truncated quantization tables: %w", payload.ErrMalformed)
	}

	quant := quantization{
		precision: precision,
		tables:    bytes.Clone(p[:length]),
	}

	// Q 255 tables are only valid for the current frame.
	if q != 255 {
		r.quant[q] = quant
	}

	return quant, p[length:], nil
}

func (r *Reassembler) image() []byte {
	buf := mem.Get()
	defer mem.Put(buf)

	writeHeader(buf, r.frame)
	buf.Write(r.data.Bytes())

	if !bytes.HasSuffix(r.data.Bytes(), []byte{0xFF, 0xD9}) {
		buf.Write([]byte{0xFF, 0xD9})
	}

	return buf.Clone()
}

func writeMarker(buf *mem.Buffer, marker byte, length int) {
	buf.Write([]byte{0xFF, marker, byte(length >> 8), byte(length)})
}

// writeHeader writes the JPEG headers up to and including the start of scan.
func writeHeader(buf *mem.Buffer, f frame) {
	buf.Write([]byte{0xFF, 0xD8})

	// DQT, one per table
	tables := f.quant.tables
	ntables := 0

	for id := 0; len(tables) != 0 && id < 4; id++ {
		size := 64
		precision := (f.quant.precision >> id) & 1
		if precision == 1 {
			size = 128
		}

		if size > len(tables) {
			break
		}

		writeMarker(buf, 0xDB, 2+1+size)
		buf.WriteByte(precision<<4 | byte(id))
		buf.Write(tables[:size])

		tables = tables[size:]
		ntables++
	}

	if f.dri != 0 {
		writeMarker(buf, 0xDD, 4)
		buf.Write([]byte{byte(f.dri >> 8), byte(f.dri)})
	}

	sampling := byte(0x21)
	if f.typ&0x3F == 1 {
		sampling = 0x22
	}

	chromaTable := byte(1)
	if ntables < 2 {
		chromaTable = 0
	}

	// SOF0, baseline
	writeMarker(buf, 0xC0, 17)
	buf.Write([]byte{
		8,
		byte(f.height >> 8), byte(f.height),
		byte(f.width >> 8), byte(f.width),
		3,
		0, sampling, 0,
		1, 0x11, chromaTable,
		2, 0x11, chromaTable,
	})

	for _, h := range huffmanTables {
		writeMarker(buf, 0xC4, 2+1+16+len(h.values))
		buf.WriteByte(h.class<<4 | h.id)
		buf.Write(h.counts[:])
		buf.Write(h.values)
	}

	// SOS
	writeMarker(buf, 0xDA, 12)
	buf.Write([]byte{
		3,
		0, 0x00,
		1, 0x11,
		2, 0x11,
		0, 63, 0,
	})
}
