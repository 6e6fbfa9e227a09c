// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package rfb

import (
	"encoding/binary"
	"io"
)

// PixelReader decodes a single wire pixel into a 32-bit ARGB word according
// to the active pixel format: true-color channels are extracted via their
// shift/max triples and expanded to 8 bits by value*255/max; indexed pixels
// are looked up in the color map.
type PixelReader struct {
	pixelFormat PixelFormat
	colorMap    *ColorMap
	byteOrder   binary.ByteOrder
}

// NewPixelReader creates a new pixel reader for the given pixel format and color map.
func NewPixelReader(pixelFormat PixelFormat, colorMap *ColorMap) *PixelReader {
	var byteOrder binary.ByteOrder = binary.LittleEndian
	if pixelFormat.BigEndian {
		byteOrder = binary.BigEndian
	}

	return &PixelReader{
		pixelFormat: pixelFormat,
		colorMap:    colorMap,
		byteOrder:   byteOrder,
	}
}

// BytesPerPixel returns the number of bytes per pixel for the current pixel format.
func (pr *PixelReader) BytesPerPixel() int {
	return int(pr.pixelFormat.BPP / 8)
}

// ReadARGB reads a single pixel from r and returns it as a packed, opaque
// 32-bit ARGB word.
func (pr *PixelReader) ReadARGB(r io.Reader) (uint32, error) {
	bytesPerPixel := pr.BytesPerPixel()
	pixelBytes := make([]uint8, bytesPerPixel)

	if _, err := io.ReadFull(r, pixelBytes); err != nil {
		return 0, networkError("PixelReader.ReadARGB", "failed to read pixel bytes", err)
	}

	return pr.decode(pr.bytesToPixel(pixelBytes)), nil
}

// Decode converts an already-read raw wire pixel value into a packed ARGB word.
func (pr *PixelReader) Decode(rawPixel uint32) uint32 {
	return pr.decode(rawPixel)
}

func (pr *PixelReader) decode(rawPixel uint32) uint32 {
	if !pr.pixelFormat.TrueColor {
		return pr.colorMap.Get(uint8(rawPixel)).ARGB() // #nosec G115 - indexed pixels are always <= 255
	}

	r := expandChannel(rawPixel, pr.pixelFormat.RedShift, pr.pixelFormat.RedMax)
	g := expandChannel(rawPixel, pr.pixelFormat.GreenShift, pr.pixelFormat.GreenMax)
	b := expandChannel(rawPixel, pr.pixelFormat.BlueShift, pr.pixelFormat.BlueMax)

	return Color{R: r, G: g, B: b}.ARGB()
}

// expandChannel extracts a color channel from a raw pixel via its shift/max
// pair and expands it to an 8-bit value.
func expandChannel(rawPixel uint32, shift uint8, max uint16) uint8 {
	if max == 0 {
		return 0
	}
	value := (rawPixel >> shift) & uint32(max)
	return uint8((value * 255) / uint32(max)) // #nosec G115 - result is always <= 255
}

// bytesToPixel converts pixel bytes to a raw pixel value based on the pixel format.
func (pr *PixelReader) bytesToPixel(pixelBytes []uint8) uint32 {
	switch pr.pixelFormat.BPP {
	case 8:
		return uint32(pixelBytes[0])
	case 16:
		return uint32(pr.byteOrder.Uint16(pixelBytes))
	case 32:
		return pr.byteOrder.Uint32(pixelBytes)
	default:
		return 0
	}
}

// readARGBPixel is a convenience wrapper for call sites that don't already
// hold a PixelReader (the decoders construct one per rectangle).
func readARGBPixel(r io.Reader, pixelFormat PixelFormat, colorMap *ColorMap) (uint32, error) {
	reader := NewPixelReader(pixelFormat, colorMap)
	return reader.ReadARGB(r)
}

// calculatePixelDataSize calculates the byte size of w*h raw pixels in the given format.
func calculatePixelDataSize(width, height uint16, pixelFormat PixelFormat) int {
	bytesPerPixel := int(pixelFormat.BPP / 8)
	return int(width) * int(height) * bytesPerPixel
}
