// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package rfb

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// zrleFrame zlib-compresses raw (using the standard library writer, which
// produces an ordinary zlib stream the klauspost/compress reader consumes
// identically) and prefixes it with the big-endian u32 length ZRLE requires
// before each rectangle's compressed payload.
func zrleFrame(t *testing.T, raw []byte) []byte {
	t.Helper()

	var compressed bytes.Buffer
	w := zlib.NewWriter(&compressed)
	_, err := w.Write(raw)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	var frame bytes.Buffer
	require.NoError(t, binary.Write(&frame, binary.BigEndian, uint32(compressed.Len())))
	frame.Write(compressed.Bytes())
	return frame.Bytes()
}

// scenario 6: a tile subencoding byte of 17 falls in neither the packed-
// palette range (2-16) nor the RLE ranges (128, 130-255), so it must be
// rejected as an encoding error and leave the framebuffer untouched.
func TestZRLEEncoding_Decode_RejectsInvalidSubencoding(t *testing.T) {
	format := *PixelFormat8BitIndexed
	fb := NewFramebuffer(8, 8, format, "test")
	ctx := &DecodeContext{FB: fb, Zrle: newZRLEStream()}

	wire := zrleFrame(t, []byte{17})
	rect := &Rectangle{X: 0, Y: 0, Width: 8, Height: 8, EncodingType: EncodingZRLE}

	err := (&ZRLEEncoding{}).Decode(ctx, rect, bytes.NewReader(wire))
	require.Error(t, err)
	assert.Equal(t, ErrEncoding, GetErrorCode(err))

	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			assert.Equal(t, uint32(0), fb.At(x, y))
		}
	}
}

func TestZRLEEncoding_Decode_SolidTile(t *testing.T) {
	format := *PixelFormat8BitIndexed
	fb := NewFramebuffer(4, 4, format, "test")
	ctx := &DecodeContext{FB: fb, Zrle: newZRLEStream()}

	wire := zrleFrame(t, []byte{zrleSubencodingSolid, 6})
	rect := &Rectangle{X: 0, Y: 0, Width: 4, Height: 4, EncodingType: EncodingZRLE}

	require.NoError(t, (&ZRLEEncoding{}).Decode(ctx, rect, bytes.NewReader(wire)))

	want := fb.ColorMap().Get(6).ARGB()
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			assert.Equal(t, want, fb.At(x, y))
		}
	}
}

func TestZRLEEncoding_Decode_RawTile(t *testing.T) {
	format := *PixelFormat8BitIndexed
	fb := NewFramebuffer(2, 2, format, "test")
	ctx := &DecodeContext{FB: fb, Zrle: newZRLEStream()}

	wire := zrleFrame(t, []byte{zrleSubencodingRaw, 1, 2, 3, 4})
	rect := &Rectangle{X: 0, Y: 0, Width: 2, Height: 2, EncodingType: EncodingZRLE}

	require.NoError(t, (&ZRLEEncoding{}).Decode(ctx, rect, bytes.NewReader(wire)))

	assert.Equal(t, fb.ColorMap().Get(1).ARGB(), fb.At(0, 0))
	assert.Equal(t, fb.ColorMap().Get(2).ARGB(), fb.At(1, 0))
	assert.Equal(t, fb.ColorMap().Get(3).ARGB(), fb.At(0, 1))
	assert.Equal(t, fb.ColorMap().Get(4).ARGB(), fb.At(1, 1))
}

func TestZRLEEncoding_Decode_PlainRLE(t *testing.T) {
	format := *PixelFormat8BitIndexed
	fb := NewFramebuffer(4, 1, format, "test")
	ctx := &DecodeContext{FB: fb, Zrle: newZRLEStream()}

	// One pixel value (8), run length byte 3 (covers all 4 pixels: initial
	// implicit 1 + run length's encoded remainder of 3).
	wire := zrleFrame(t, []byte{zrlePlainRLE, 8, 3})
	rect := &Rectangle{X: 0, Y: 0, Width: 4, Height: 1, EncodingType: EncodingZRLE}

	require.NoError(t, (&ZRLEEncoding{}).Decode(ctx, rect, bytes.NewReader(wire)))

	want := fb.ColorMap().Get(8).ARGB()
	for x := 0; x < 4; x++ {
		assert.Equal(t, want, fb.At(x, 0))
	}
}

func TestZRLEEncoding_Decode_PackedPalette(t *testing.T) {
	format := *PixelFormat8BitIndexed
	fb := NewFramebuffer(4, 1, format, "test")
	ctx := &DecodeContext{FB: fb, Zrle: newZRLEStream()}

	// Palette of 2 entries -> 1 bit per index. Subencoding 2 means a
	// 2-entry palette follows, then ceil(4*1/8)=1 packed-index byte per row.
	// Index bits 1,0,1,0 packed MSB-first -> 0b1010_0000 = 0xA0.
	palette := []byte{3, 7}
	wire := zrleFrame(t, []byte{2, palette[0], palette[1], 0xA0})
	rect := &Rectangle{X: 0, Y: 0, Width: 4, Height: 1, EncodingType: EncodingZRLE}

	require.NoError(t, (&ZRLEEncoding{}).Decode(ctx, rect, bytes.NewReader(wire)))

	assert.Equal(t, fb.ColorMap().Get(7).ARGB(), fb.At(0, 0))
	assert.Equal(t, fb.ColorMap().Get(3).ARGB(), fb.At(1, 0))
	assert.Equal(t, fb.ColorMap().Get(7).ARGB(), fb.At(2, 0))
	assert.Equal(t, fb.ColorMap().Get(3).ARGB(), fb.At(3, 0))
}

func TestPackedPaletteBits(t *testing.T) {
	assert.Equal(t, 1, packedPaletteBits(2))
	assert.Equal(t, 2, packedPaletteBits(3))
	assert.Equal(t, 2, packedPaletteBits(4))
	assert.Equal(t, 4, packedPaletteBits(5))
	assert.Equal(t, 4, packedPaletteBits(16))
}

// TestZRLEStream_PersistsAcrossRectangles verifies that the inflate stream
// is never reset between rectangles: both tiles are compressed as one
// continuous deflate stream (flushed, not closed, between them), matching
// how a real server emits ZRLE data across a session.
func TestZRLEStream_PersistsAcrossRectangles(t *testing.T) {
	format := *PixelFormat8BitIndexed
	fb := NewFramebuffer(2, 2, format, "test")
	zrle := newZRLEStream()
	ctx := &DecodeContext{FB: fb, Zrle: zrle}

	var compressed bytes.Buffer
	w := zlib.NewWriter(&compressed)

	_, err := w.Write([]byte{zrleSubencodingSolid, 1})
	require.NoError(t, err)
	require.NoError(t, w.Flush())
	firstLen := compressed.Len()

	_, err = w.Write([]byte{zrleSubencodingSolid, 2})
	require.NoError(t, err)
	require.NoError(t, w.Close())
	allBytes := compressed.Bytes()

	var firstFrame bytes.Buffer
	require.NoError(t, binary.Write(&firstFrame, binary.BigEndian, uint32(firstLen)))
	firstFrame.Write(allBytes[:firstLen])

	var secondFrame bytes.Buffer
	require.NoError(t, binary.Write(&secondFrame, binary.BigEndian, uint32(len(allBytes)-firstLen)))
	secondFrame.Write(allBytes[firstLen:])

	rect := &Rectangle{X: 0, Y: 0, Width: 2, Height: 2, EncodingType: EncodingZRLE}

	require.NoError(t, (&ZRLEEncoding{}).Decode(ctx, rect, bytes.NewReader(firstFrame.Bytes())))
	require.NoError(t, (&ZRLEEncoding{}).Decode(ctx, rect, bytes.NewReader(secondFrame.Bytes())))

	assert.Equal(t, fb.ColorMap().Get(2).ARGB(), fb.At(0, 0))
}
