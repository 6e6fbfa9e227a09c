// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package rfb

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scenario 5: a single 16x16 tile, subencoding 0x0A
// (HextileBackgroundSpecified|HextileAnySubrects), background pixel P,
// one subrect at xy=0x23 (x=2,y=3) wh=0x12 (w=2,h=3). Subrect colour is
// not flagged, so the subrect paints with the tile's foreground, which
// this tile never sets and so defaults to the zero pixel.
func TestHextileEncoding_Decode_BackgroundAndSubrect(t *testing.T) {
	format := *PixelFormat8BitIndexed
	fb := NewFramebuffer(16, 16, format, "test")
	ctx := &DecodeContext{FB: fb}

	const backgroundPixel = 5

	var wire bytes.Buffer
	wire.WriteByte(HextileBackgroundSpecified | HextileAnySubrects) // 0x0A
	wire.WriteByte(backgroundPixel)
	wire.WriteByte(1)    // numSubrects
	wire.WriteByte(0x23) // xy: subX=2, subY=3
	wire.WriteByte(0x12) // wh: subW=2, subH=3

	rect := &Rectangle{X: 0, Y: 0, Width: 16, Height: 16, EncodingType: EncodingHextile}
	require.NoError(t, (&HextileEncoding{}).Decode(ctx, rect, &wire))

	wantBackground := fb.ColorMap().Get(backgroundPixel).ARGB()
	wantSubrect := uint32(0) // foreground defaults to zero, never specified

	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			inSubrect := x >= 2 && x < 4 && y >= 3 && y < 6
			if inSubrect {
				assert.Equal(t, wantSubrect, fb.At(x, y), "(%d,%d) in subrect", x, y)
			} else {
				assert.Equal(t, wantBackground, fb.At(x, y), "(%d,%d) background", x, y)
			}
		}
	}
}

func TestHextileEncoding_Decode_RawTile(t *testing.T) {
	format := *PixelFormat8BitIndexed
	fb := NewFramebuffer(2, 2, format, "test")
	ctx := &DecodeContext{FB: fb}

	var wire bytes.Buffer
	wire.WriteByte(HextileRaw)
	wire.Write([]byte{1, 2, 3, 4}) // 4 raw 1-byte pixels, row-major

	rect := &Rectangle{X: 0, Y: 0, Width: 2, Height: 2, EncodingType: EncodingHextile}
	require.NoError(t, (&HextileEncoding{}).Decode(ctx, rect, &wire))

	assert.Equal(t, fb.ColorMap().Get(1).ARGB(), fb.At(0, 0))
	assert.Equal(t, fb.ColorMap().Get(2).ARGB(), fb.At(1, 0))
	assert.Equal(t, fb.ColorMap().Get(3).ARGB(), fb.At(0, 1))
	assert.Equal(t, fb.ColorMap().Get(4).ARGB(), fb.At(1, 1))
}

func TestHextileEncoding_Decode_PersistsBackgroundAcrossTiles(t *testing.T) {
	format := *PixelFormat8BitIndexed
	fb := NewFramebuffer(32, 16, format, "test")
	ctx := &DecodeContext{FB: fb}

	var wire bytes.Buffer
	wire.WriteByte(HextileBackgroundSpecified)
	wire.WriteByte(9) // first tile sets background = 9
	wire.WriteByte(0) // second tile: no flags, reuses persisted background

	rect := &Rectangle{X: 0, Y: 0, Width: 32, Height: 16, EncodingType: EncodingHextile}
	require.NoError(t, (&HextileEncoding{}).Decode(ctx, rect, &wire))

	want := fb.ColorMap().Get(9).ARGB()
	assert.Equal(t, want, fb.At(0, 0))
	assert.Equal(t, want, fb.At(16, 0))
}

func TestHextileEncoding_Decode_RejectsSubrectOutsideTile(t *testing.T) {
	format := *PixelFormat8BitIndexed
	fb := NewFramebuffer(16, 16, format, "test")
	ctx := &DecodeContext{FB: fb}

	var wire bytes.Buffer
	wire.WriteByte(HextileBackgroundSpecified | HextileAnySubrects)
	wire.WriteByte(1)
	wire.WriteByte(1)
	wire.WriteByte(0xF0) // subX=15, subY=0
	wire.WriteByte(0x10) // subW=2 (15+2 > 16 tile width)

	rect := &Rectangle{X: 0, Y: 0, Width: 16, Height: 16, EncodingType: EncodingHextile}
	err := (&HextileEncoding{}).Decode(ctx, rect, &wire)
	require.Error(t, err)
	assert.Equal(t, ErrEncoding, GetErrorCode(err))
}
