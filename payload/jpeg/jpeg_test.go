package jpeg

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/datarhei/rtsp/mem"
	"github.com/datarhei/rtsp/payload"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/require"
)

// encode returns a 4:2:0 baseline JPEG of a gradient test image.
func encode(t *testing.T, width, height, quality int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 5), B: uint8((x + y) * 2), A: 255})
		}
	}

	buf := bytes.Buffer{}
	err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality})
	require.NoError(t, err)

	return buf.Bytes()
}

// split returns the quantization tables and the entropy coded scan of a JPEG.
func split(t *testing.T, data []byte) ([]byte, []byte) {
	require.Equal(t, []byte{0xFF, 0xD8}, data[:2])

	tables := []byte{}
	p := data[2:]

	for len(p) >= 4 {
		require.Equal(t, byte(0xFF), p[0])

		marker := p[1]
		length := int(binary.BigEndian.Uint16(p[2:]))
		segment := p[4 : 2+length]

		if marker == 0xDB {
			for len(segment) != 0 {
				require.Equal(t, byte(0), segment[0]>>4, "8 bit tables only")
				tables = append(tables, segment[1:65]...)
				segment = segment[65:]
			}
		}

		p = p[2+length:]

		if marker == 0xDA {
			require.Equal(t, []byte{0xFF, 0xD9}, p[len(p)-2:])
			return tables, p[:len(p)-2]
		}
	}

	require.FailNow(t, "no start of scan")

	return nil, nil
}

// packetize splits the scan into n packets. Tables are sent inline if q >= 128.
func packetize(scan []byte, typ, q uint8, width, height int, tables []byte, n int, seq uint16) []*rtp.Packet {
	size := (len(scan) + n - 1) / n
	packets := []*rtp.Packet{}

	for offset := 0; offset < len(scan); offset += size {
		end := offset + size
		if end > len(scan) {
			end = len(scan)
		}

		p := []byte{0, byte(offset >> 16), byte(offset >> 8), byte(offset), typ, q, byte(width / 8), byte(height / 8)}

		if offset == 0 && q >= 128 {
			p = append(p, 0, 0, byte(len(tables)>>8), byte(len(tables)))
			p = append(p, tables...)
		}

		p = append(p, scan[offset:end]...)

		packets = append(packets, &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				PayloadType:    26,
				SequenceNumber: seq,
				Timestamp:      1000,
				Marker:         end == len(scan),
			},
			Payload: p,
		})

		seq++
	}

	return packets
}

func decode(t *testing.T, data []byte) image.Image {
	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)

	return img
}

func TestMakeTables(t *testing.T) {
	for _, q := range []int{10, 50, 75, 90} {
		tables, _ := split(t, encode(t, 16, 16, q))
		require.Equal(t, tables, MakeTables(q), q)
	}
}

func TestInlineTables(t *testing.T) {
	reference := encode(t, 64, 48, 90)
	tables, scan := split(t, reference)

	packets := packetize(scan, 1, 255, 64, 48, tables, 3, 100)
	require.Len(t, packets, 3)

	r := New()
	results := [][][]byte{}

	for _, pkt := range packets {
		units, err := r.Process(pkt)
		require.NoError(t, err)
		results = append(results, units)
	}

	require.Empty(t, results[0])
	require.Empty(t, results[1])
	require.Len(t, results[2], 1)

	img := results[2][0]
	require.True(t, bytes.HasSuffix(img, append(bytes.Clone(scan), 0xFF, 0xD9)))
	require.Equal(t, decode(t, reference), decode(t, img))
}

func TestComputedTables(t *testing.T) {
	reference := encode(t, 64, 48, 75)
	_, scan := split(t, reference)

	r := New()

	var img []byte

	for _, pkt := range packetize(scan, 1, 75, 64, 48, nil, 4, 0) {
		units, err := r.Process(pkt)
		require.NoError(t, err)

		if len(units) != 0 {
			img = units[0]
		}
	}

	require.NotNil(t, img)
	require.Equal(t, decode(t, reference), decode(t, img))
}

func TestCachedTables(t *testing.T) {
	reference := encode(t, 32, 32, 60)
	tables, scan := split(t, reference)

	r := New()

	for _, pkt := range packetize(scan, 1, 200, 32, 32, tables, 2, 0) {
		_, err := r.Process(pkt)
		require.NoError(t, err)
	}

	// Same Q without tables uses the cached ones.
	var img []byte

	for _, pkt := range packetize(scan, 1, 200, 32, 32, []byte{}, 2, 2) {
		units, err := r.Process(pkt)
		require.NoError(t, err)

		if len(units) != 0 {
			img = units[0]
		}
	}

	require.Equal(t, decode(t, reference), decode(t, img))

	_, err := New().Process(packetize(scan, 1, 201, 32, 32, []byte{}, 1, 0)[0])
	require.ErrorIs(t, err, payload.ErrMalformed)
}

func TestLoss(t *testing.T) {
	reference := encode(t, 64, 48, 75)
	_, scan := split(t, reference)

	packets := packetize(scan, 1, 75, 64, 48, nil, 3, 10)

	r := New()

	units, err := r.Process(packets[0])
	require.NoError(t, err)
	require.Empty(t, units)

	units, err = r.Process(packets[2])
	require.NoError(t, err)
	require.Empty(t, units)
	require.Equal(t, uint64(1), r.Dropped())

	packets = packetize(scan, 1, 75, 64, 48, nil, 3, 13)

	for _, pkt := range packets {
		units, err = r.Process(pkt)
		require.NoError(t, err)
	}

	require.Len(t, units, 1)
	require.Equal(t, decode(t, reference), decode(t, units[0]))
}

func TestRestartHeader(t *testing.T) {
	f := frame{typ: 65, width: 16, height: 16, dri: 4, quant: quantization{tables: MakeTables(50)}}

	r := New()
	r.frame = f
	r.data.Write([]byte{0x00})

	img := r.image()
	require.True(t, bytes.Contains(img, []byte{0xFF, 0xDD, 0x00, 0x04, 0x00, 0x04}))
	require.True(t, bytes.HasSuffix(img, []byte{0x00, 0xFF, 0xD9}))
}

func TestMalformed(t *testing.T) {
	r := New()

	_, err := r.Process(&rtp.Packet{Payload: []byte{0, 0, 0}})
	require.ErrorIs(t, err, payload.ErrMalformed)

	_, err = r.Process(&rtp.Packet{Payload: []byte{0, 0, 0, 0, 2, 50, 2, 2, 0}})
	require.ErrorIs(t, err, payload.ErrUnsupported)

	_, err = r.Process(&rtp.Packet{Payload: []byte{0, 0, 0, 0, 64, 50, 2, 2, 0}})
	require.ErrorIs(t, err, payload.ErrMalformed)
}

func TestHeaderLayout(t *testing.T) {
	tables := []byte{}
	for i := 1; i <= 64; i++ {
		tables = append(tables, byte(i))
	}
	for i := 64; i >= 1; i-- {
		tables = append(tables, byte(i))
	}

	f := frame{typ: 65, width: 64, height: 48, dri: 4, quant: quantization{tables: tables}}

	golden := "" +
		// SOI
		"ffd8" +
		// DQT, luma
		"ffdb0043000102030405060708090a0b0c0d0e0f101112131415161718191a1b" +
		"1c1d1e1f202122232425262728292a2b2c2d2e2f303132333435363738393a3b" +
		"3c3d3e3f40" +
		// DQT, chroma
		"ffdb004301403f3e3d3c3b3a393837363534333231302f2e2d2c2b2a29282726" +
		"2524232221201f1e1d1c1b1a191817161514131211100f0e0d0c0b0a09080706" +
		"0504030201" +
		// DRI
		"ffdd00040004" +
		// SOF0, 64x48, 4:2:0
		"ffc00011080030004003002200011101021101" +
		// DHT, DC luma
		"ffc4001f0000010501010101010100000000000000000102030405060708090a" +
		"0b" +
		// DHT, AC luma
		"ffc400b5100002010303020403050504040000017d0102030004110512213141" +
		"0613516107227114328191a1082342b1c11552d1f02433627282090a16171819" +
		"1a25262728292a3435363738393a434445464748494a535455565758595a6364" +
		"65666768696a737475767778797a838485868788898a92939495969798999aa2" +
		"a3a4a5a6a7a8a9aab2b3b4b5b6b7b8b9bac2c3c4c5c6c7c8c9cad2d3d4d5d6d7" +
		"d8d9dae1e2e3e4e5e6e7e8e9eaf1f2f3f4f5f6f7f8f9fa" +
		// DHT, DC chroma
		"ffc4001f0100030101010101010101010000000000000102030405060708090a" +
		"0b" +
		// DHT, AC chroma
		"ffc400b511000201020404030407050404000102770001020311040521310612" +
		"41510761711322328108144291a1b1c109233352f0156272d10a162434e125f1" +
		"1718191a262728292a35363738393a434445464748494a535455565758595a63" +
		"6465666768696a737475767778797a82838485868788898a9293949596979899" +
		"9aa2a3a4a5a6a7a8a9aab2b3b4b5b6b7b8b9bac2c3c4c5c6c7c8c9cad2d3d4d5" +
		"d6d7d8d9dae2e3e4e5e6e7e8e9eaf2f3f4f5f6f7f8f9fa" +
		// SOS
		"ffda000c03000001110211003f00"

	expected, err := hex.DecodeString(golden)
	require.NoError(t, err)

	buf := mem.Buffer{}
	writeHeader(&buf, f)

	require.Equal(t, expected, buf.Bytes())
}

func TestOffsetBeyondFrame(t *testing.T) {
	reference := encode(t, 64, 48, 75)
	_, scan := split(t, reference)

	packets := packetize(scan, 1, 75, 64, 48, nil, 2, 0)

	r := New()

	units, err := r.Process(packets[0])
	require.NoError(t, err)
	require.Empty(t, units)

	p := packets[1]
	p.Payload[1], p.Payload[2], p.Payload[3] = 0xFF, 0xFF, 0xFF

	units, err = r.Process(p)
	require.ErrorIs(t, err, payload.ErrMalformed)
	require.Empty(t, units)
	require.Equal(t, uint64(1), r.Dropped())
	require.Zero(t, r.data.Len())

	// The next frame is reassembled as usual.
	for _, pkt := range packetize(scan, 1, 75, 64, 48, nil, 2, 2) {
		units, err = r.Process(pkt)
		require.NoError(t, err)
	}

	require.Len(t, units, 1)
	require.Equal(t, decode(t, reference), decode(t, units[0]))
}

func TestDuplicatePacket(t *testing.T) {
	reference := encode(t, 64, 48, 75)
	_, scan := split(t, reference)

	packets := packetize(scan, 1, 75, 64, 48, nil, 3, 40)

	r := New()

	var img []byte

	for _, pkt := range []*rtp.Packet{packets[0], packets[1], packets[1], packets[2]} {
		units, err := r.Process(pkt)
		require.NoError(t, err)

		if len(units) != 0 {
			img = units[0]
		}
	}

	require.Zero(t, r.Dropped())
	require.Equal(t, decode(t, reference), decode(t, img))
}
