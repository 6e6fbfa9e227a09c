// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package rfb

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRREEncoding_Decode_BackgroundAndSubrect(t *testing.T) {
	format := *PixelFormat8BitIndexed
	fb := NewFramebuffer(10, 10, format, "test")
	ctx := &DecodeContext{FB: fb}

	var wire bytes.Buffer
	wire.Write([]byte{0, 0, 0, 1}) // numSubrects = 1 (u32)
	wire.WriteByte(5)              // background pixel index
	wire.WriteByte(9)              // subrect color index
	wire.Write([]byte{0, 2, 0, 3, 0, 4, 0, 2})

	rect := &Rectangle{X: 0, Y: 0, Width: 10, Height: 10, EncodingType: EncodingRRE}
	require.NoError(t, (&RREEncoding{}).Decode(ctx, rect, &wire))

	assert.Equal(t, fb.ColorMap().Get(5).ARGB(), fb.At(0, 0))
	assert.Equal(t, fb.ColorMap().Get(9).ARGB(), fb.At(2, 3))
	assert.Equal(t, fb.ColorMap().Get(9).ARGB(), fb.At(5, 4))
	assert.Equal(t, fb.ColorMap().Get(5).ARGB(), fb.At(6, 3))
}

func TestRREEncoding_Decode_RejectsOutOfBoundsSubrect(t *testing.T) {
	format := *PixelFormat8BitIndexed
	fb := NewFramebuffer(4, 4, format, "test")
	ctx := &DecodeContext{FB: fb}

	var wire bytes.Buffer
	wire.Write([]byte{0, 0, 0, 1})
	wire.WriteByte(1)
	wire.WriteByte(2)
	wire.Write([]byte{0, 2, 0, 2, 0, 10, 0, 10}) // subrect extends past the 4x4 rect

	rect := &Rectangle{X: 0, Y: 0, Width: 4, Height: 4, EncodingType: EncodingRRE}
	err := (&RREEncoding{}).Decode(ctx, rect, &wire)
	require.Error(t, err)
	assert.Equal(t, ErrEncoding, GetErrorCode(err))
}

func TestCoRREEncoding_Decode_ByteGeometry(t *testing.T) {
	format := *PixelFormat8BitIndexed
	fb := NewFramebuffer(10, 10, format, "test")
	ctx := &DecodeContext{FB: fb}

	var wire bytes.Buffer
	wire.Write([]byte{0, 0, 0, 1})
	wire.WriteByte(3)               // background
	wire.WriteByte(7)               // subrect color
	wire.Write([]byte{1, 1, 2, 2}) // x,y,w,h as single bytes

	rect := &Rectangle{X: 0, Y: 0, Width: 10, Height: 10, EncodingType: EncodingCoRRE}
	require.NoError(t, (&CoRREEncoding{}).Decode(ctx, rect, &wire))

	assert.Equal(t, fb.ColorMap().Get(7).ARGB(), fb.At(1, 1))
	assert.Equal(t, fb.ColorMap().Get(7).ARGB(), fb.At(2, 2))
	assert.Equal(t, fb.ColorMap().Get(3).ARGB(), fb.At(0, 0))
}
