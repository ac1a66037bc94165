package h264

import (
	"fmt"

	"github.com/datarhei/rtsp/bits"
	"github.com/datarhei/rtsp/payload"
)

// SPS holds the fields of a sequence parameter set that describe the picture.
type SPS struct {
	ProfileIDC uint8
	Constraint uint8
	LevelIDC   uint8
	Width      int
	Height     int
}

// ParseSPS parses a sequence parameter set NAL unit, including its header byte.
func ParseSPS(nalu []byte) (SPS, error) {
	sps := SPS{}

	if len(nalu) < 4 || nalu[0]&naluTypeMask != NALUSPS {
		return sps, fmt.Errorf("not a sequence parameter set: %w", payload.ErrMalformed)
	}

	b := bits.NewBufferFromBytes(removeEmulationPrevention(nalu[1:]))

	sps.ProfileIDC = uint8(b.Read(8))
	sps.Constraint = uint8(b.Read(8))
	sps.LevelIDC = uint8(b.Read(8))

	b.ReadUE() // seq_parameter_set_id

	chromaFormat := uint64(1)
	separateColourPlane := false

	switch sps.ProfileIDC {
	case 100, 110, 122, 244, 44, 83, 86, 118, 128, 138, 139, 134, 135:
		chromaFormat = b.ReadUE()
		if chromaFormat == 3 {
			separateColourPlane = b.ReadBool()
		}

		b.ReadUE() // bit_depth_luma_minus8
		b.ReadUE() // bit_depth_chroma_minus8
		b.Skip(1)  // qpprime_y_zero_transform_bypass_flag

		if b.ReadBool() {
			lists := 8
			if chromaFormat == 3 {
				lists = 12
			}

			for i := 0; i < lists; i++ {
				if !b.ReadBool() {
					continue
				}

				size := 16
				if i >= 6 {
					size = 64
				}

				skipScalingList(b, size)
			}
		}
	}

	b.ReadUE() // log2_max_frame_num_minus4

	switch b.ReadUE() {
	case 0:
		b.ReadUE() // log2_max_pic_order_cnt_lsb_minus4
	case 1:
		b.Skip(1)  // delta_pic_order_always_zero_flag
		b.ReadSE() // offset_for_non_ref_pic
		b.ReadSE() // offset_for_top_to_bottom_field
		n := b.ReadUE()
		for i := uint64(0); i < n && b.Len() > 0; i++ {
			b.ReadSE()
		}
	}

	b.ReadUE() // max_num_ref_frames
	b.Skip(1)  // gaps_in_frame_num_value_allowed_flag

	widthMbs := int(b.ReadUE()) + 1
	heightMapUnits := int(b.ReadUE()) + 1

	frameMbsOnly := b.ReadBool()
	if !frameMbsOnly {
		b.Skip(1) // mb_adaptive_frame_field_flag
	}

	b.Skip(1) // direct_8x8_inference_flag

	var cropLeft, cropRight, cropTop, cropBottom int

	if b.ReadBool() {
		cropLeft = int(b.ReadUE())
		cropRight = int(b.ReadUE())
		cropTop = int(b.ReadUE())
		cropBottom = int(b.ReadUE())
	}

	fieldFactor := 1
	if !frameMbsOnly {
		fieldFactor = 2
	}

	cropUnitX, cropUnitY := 1, fieldFactor
	if !separateColourPlane && chromaFormat != 0 {
		subWidth, subHeight := 2, 2
		switch chromaFormat {
		case 2:
			subHeight = 1
		case 3:
			subWidth, subHeight = 1, 1
		}

		cropUnitX = subWidth
		cropUnitY = subHeight * fieldFactor
	}

	sps.Width = widthMbs*16 - (cropLeft+cropRight)*cropUnitX
	sps.Height = heightMapUnits*16*fieldFactor - (cropTop+cropBottom)*cropUnitY

	if sps.Width <= 0 || sps.Height <= 0 {
		return sps, fmt.Errorf("invalid picture size %dx%d: %w", sps.Width, sps.Height, payload.ErrMalformed)
	}

	return sps, nil
}

func skipScalingList(b *bits.Buffer, size int) {
	last, next := int64(8), int64(8)

	for i := 0; i < size; i++ {
		if next != 0 {
			delta := b.ReadSE()
			next = (last + delta + 256) % 256
		}

		if next != 0 {
			last = next
		}
	}
}

// removeEmulationPrevention strips the 0x03 bytes following two zero bytes.
func removeEmulationPrevention(data []byte) []byte {
	out := make([]byte, 0, len(data))
	zeros := 0

	for _, c := range data {
		if zeros >= 2 && c == 0x03 {
			zeros = 0
			continue
		}

		if c == 0 {
			zeros++
		} else {
			zeros = 0
		}

		out = append(out, c)
	}

	return out
}
