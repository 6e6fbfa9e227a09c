// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package rfb

import (
	"io"
)

// ZRLE tile geometry and subencoding ranges, per RFC 6143 Section 7.7.6.
const (
	zrleTileSize = 64

	zrleSubencodingRaw          = 0
	zrleSubencodingSolid        = 1
	zrlePackedPaletteMin        = 2
	zrlePackedPaletteMax        = 16
	zrlePlainRLE                = 128
	zrlePaletteRLEMin           = 130
	zrlePaletteRLEMax           = 255
	zrleMaxPaletteEntries       = 127
	zrleRunLengthContinueByte   = 255
	zrleRunLengthContinueFactor = 255
)

// ZRLEEncoding represents the ZRLE (Zlib Run-Length Encoding) defined in
// RFC 6143 Section 7.7.6: the rectangle is zlib-compressed, then divided
// into 64x64 tiles each carrying its own subencoding byte.
type ZRLEEncoding struct{}

// Type returns the encoding type identifier for ZRLE encoding.
func (*ZRLEEncoding) Type() int32 {
	return EncodingZRLE
}

// Decode reads the u32 compressed-length prefix, inflates the tile stream
// through ctx.Zrle (which persists across rectangles for the connection's
// lifetime), and walks the rectangle's 64x64 tiles row-major.
func (*ZRLEEncoding) Decode(ctx *DecodeContext, rect *Rectangle, r io.Reader) error {
	if ctx.Zrle == nil {
		return encodingError("ZRLEEncoding.Decode", "decode context has no ZRLE substream", nil)
	}

	if err := ctx.Zrle.BeginRect(r); err != nil {
		return err
	}
	defer ctx.Zrle.EndRect()

	pixels := NewPixelReader(ctx.FB.PixelFormat(), ctx.FB.ColorMap())
	bpp := pixels.BytesPerPixel()

	tilesX := (int(rect.Width) + zrleTileSize - 1) / zrleTileSize
	tilesY := (int(rect.Height) + zrleTileSize - 1) / zrleTileSize

	const maxTiles = 100000
	if tilesX*tilesY > maxTiles {
		return encodingError("ZRLEEncoding.Decode", "too many tiles for rectangle", nil)
	}

	for ty := 0; ty < tilesY; ty++ {
		tileHeight := zrleTileSize
		if ty*zrleTileSize+zrleTileSize > int(rect.Height) {
			tileHeight = int(rect.Height) - ty*zrleTileSize
		}

		for tx := 0; tx < tilesX; tx++ {
			tileWidth := zrleTileSize
			if tx*zrleTileSize+zrleTileSize > int(rect.Width) {
				tileWidth = int(rect.Width) - tx*zrleTileSize
			}

			originX := int(rect.X) + tx*zrleTileSize
			originY := int(rect.Y) + ty*zrleTileSize

			if err := decodeZRLETile(ctx, pixels, bpp, originX, originY, tileWidth, tileHeight); err != nil {
				return err
			}
		}
	}

	if err := ctx.Zrle.EndRect(); err != nil {
		return err
	}

	return nil
}

func decodeZRLETile(ctx *DecodeContext, pixels *PixelReader, bpp, originX, originY, width, height int) error {
	subencoding, err := ctx.Zrle.ReadByte()
	if err != nil {
		return encodingError("ZRLEEncoding.Decode", "failed to read tile subencoding", err)
	}

	switch {
	case subencoding == zrleSubencodingRaw:
		return decodeZRLERaw(ctx, pixels, originX, originY, width, height)

	case subencoding == zrleSubencodingSolid:
		color, err := readZRLECPixel(ctx, pixels, bpp)
		if err != nil {
			return encodingError("ZRLEEncoding.Decode", "failed to read solid tile pixel", err)
		}
		return ctx.FB.FillRect(originX, originY, width, height, color)

	case subencoding >= zrlePackedPaletteMin && subencoding <= zrlePackedPaletteMax:
		return decodeZRLEPackedPalette(ctx, pixels, bpp, int(subencoding), originX, originY, width, height)

	case subencoding == zrlePlainRLE:
		return decodeZRLERLE(ctx, pixels, bpp, originX, originY, width, height, nil)

	case subencoding >= zrlePaletteRLEMin && subencoding <= zrlePaletteRLEMax:
		paletteSize := int(subencoding) - 128
		palette := make([]uint32, paletteSize)
		for i := range palette {
			color, err := readZRLECPixel(ctx, pixels, bpp)
			if err != nil {
				return encodingError("ZRLEEncoding.Decode", "failed to read palette entry", err)
			}
			palette[i] = color
		}
		return decodeZRLERLE(ctx, pixels, bpp, originX, originY, width, height, palette)

	default:
		return encodingError("ZRLEEncoding.Decode", "invalid tile subencoding", nil)
	}
}

func decodeZRLERaw(ctx *DecodeContext, pixels *PixelReader, originX, originY, width, height int) error {
	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			color, err := readZRLECPixel(ctx, pixels, pixels.BytesPerPixel())
			if err != nil {
				return encodingError("ZRLEEncoding.Decode", "failed to read raw tile pixel", err)
			}
			ctx.FB.Set(originX+col, originY+row, color)
		}
	}
	return nil
}

func decodeZRLEPackedPalette(ctx *DecodeContext, pixels *PixelReader, bpp, paletteSize, originX, originY, width, height int) error {
	palette := make([]uint32, paletteSize)
	for i := range palette {
		color, err := readZRLECPixel(ctx, pixels, bpp)
		if err != nil {
			return encodingError("ZRLEEncoding.Decode", "failed to read palette entry", err)
		}
		palette[i] = color
	}

	bitsPerIndex := packedPaletteBits(paletteSize)
	rowBytes := (width*bitsPerIndex + 7) / 8

	rowBuf := make([]byte, rowBytes)
	for row := 0; row < height; row++ {
		if err := ctx.Zrle.ReadFull(rowBuf); err != nil {
			return encodingError("ZRLEEncoding.Decode", "failed to read packed palette row", err)
		}
		for col := 0; col < width; col++ {
			idx := extractPackedIndex(rowBuf, col, bitsPerIndex)
			if idx >= len(palette) {
				return encodingError("ZRLEEncoding.Decode", "packed palette index out of range", nil)
			}
			ctx.FB.Set(originX+col, originY+row, palette[idx])
		}
	}
	return nil
}

// packedPaletteBits returns the index bit width RFC 6143 assigns to a
// packed-palette tile for the given palette size: 1 bit for 2 colors, 2
// bits for 3-4, 4 bits for 5-16.
func packedPaletteBits(paletteSize int) int {
	switch {
	case paletteSize <= 2:
		return 1
	case paletteSize <= 4:
		return 2
	default:
		return 4
	}
}

func extractPackedIndex(row []byte, col, bitsPerIndex int) int {
	indicesPerByte := 8 / bitsPerIndex
	byteIdx := col / indicesPerByte
	shift := 8 - bitsPerIndex*((col%indicesPerByte)+1)
	mask := byte((1 << bitsPerIndex) - 1)
	return int((row[byteIdx] >> shift) & mask)
}

func decodeZRLERLE(ctx *DecodeContext, pixels *PixelReader, bpp, originX, originY, width, height int, palette []uint32) error {
	total := width * height
	painted := 0

	for painted < total {
		var color uint32
		var err error
		if palette != nil {
			idxByte, err := ctx.Zrle.ReadByte()
			if err != nil {
				return encodingError("ZRLEEncoding.Decode", "failed to read palette RLE index", err)
			}
			idx := int(idxByte & 0x7F)
			if idx >= len(palette) {
				return encodingError("ZRLEEncoding.Decode", "palette RLE index out of range", nil)
			}
			color = palette[idx]

			if idxByte&0x80 == 0 {
				paintZRLERun(ctx, originX, originY, width, painted, 1, color)
				painted++
				continue
			}
		} else {
			color, err = readZRLECPixel(ctx, pixels, bpp)
			if err != nil {
				return encodingError("ZRLEEncoding.Decode", "failed to read RLE run pixel", err)
			}
		}

		runLength, err := readZRLERunLength(ctx)
		if err != nil {
			return err
		}
		if painted+runLength > total {
			return encodingError("ZRLEEncoding.Decode", "RLE run exceeds tile bounds", nil)
		}

		paintZRLERun(ctx, originX, originY, width, painted, runLength, color)
		painted += runLength
	}

	return nil
}

func readZRLERunLength(ctx *DecodeContext) (int, error) {
	length := 1
	for {
		b, err := ctx.Zrle.ReadByte()
		if err != nil {
			return 0, encodingError("ZRLEEncoding.Decode", "failed to read run length byte", err)
		}
		length += int(b)
		if b != zrleRunLengthContinueByte {
			return length, nil
		}
	}
}

func paintZRLERun(ctx *DecodeContext, originX, originY, width, startIndex, count int, color uint32) {
	for i := 0; i < count; i++ {
		idx := startIndex + i
		row := idx / width
		col := idx % width
		ctx.FB.Set(originX+col, originY+row, color)
	}
}

// readZRLECPixel reads one compressed pixel (CPIXEL). Per the decision
// recorded for this client, CPIXEL is always read as a full pixel in the
// negotiated PixelFormat rather than the 24-bit truncated form RFC 6143
// allows for 32bpp/24-depth formats with unused high byte, since servers in
// the wild are inconsistent about emitting the truncated form.
func readZRLECPixel(ctx *DecodeContext, pixels *PixelReader, bpp int) (uint32, error) {
	buf := make([]byte, bpp)
	if err := ctx.Zrle.ReadFull(buf); err != nil {
		return 0, err
	}
	return pixels.decode(pixels.bytesToPixel(buf)), nil
}
