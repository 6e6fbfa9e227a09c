// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package rfb

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// PixelFormat describes how pixel color data is encoded and interpreted in a VNC connection.
type PixelFormat struct {
	// BPP (bits-per-pixel) specifies how many bits are used to represent each pixel.
	BPP uint8

	// Depth specifies the number of useful bits within each pixel value.
	Depth uint8

	// BigEndian determines the byte order for multi-byte pixel values.
	BigEndian bool

	// TrueColor determines whether pixels represent direct RGB values (true)
	// or indices into a color map (false).
	TrueColor bool

	// RedMax specifies the maximum value for the red color component.
	RedMax uint16

	// GreenMax specifies the maximum value for the green color component.
	GreenMax uint16

	// BlueMax specifies the maximum value for the blue color component.
	BlueMax uint16

	// RedShift specifies how many bits to right-shift a pixel value
	// to position the red color component at the least significant bits.
	RedShift uint8

	// GreenShift specifies how many bits to right-shift a pixel value
	// to position the green color component at the least significant bits.
	GreenShift uint8

	// BlueShift specifies how many bits to right-shift a pixel value
	// to position the blue color component at the least significant bits.
	BlueShift uint8
}

// readPixelFormat reads a VNC pixel format from the wire format.
// Parses the 16-byte pixel format structure as defined in RFC 6143.
func readPixelFormat(r io.Reader, result *PixelFormat) error {
	var rawPixelFormat [16]byte
	if _, err := io.ReadFull(r, rawPixelFormat[:]); err != nil {
		return networkError("readPixelFormat", "failed to read pixel format data", err)
	}

	var pfBoolByte uint8
	brPF := bytes.NewReader(rawPixelFormat[:])
	if err := binary.Read(brPF, binary.BigEndian, &result.BPP); err != nil {
		return protocolError("readPixelFormat", "failed to read BPP field", err)
	}

	if err := binary.Read(brPF, binary.BigEndian, &result.Depth); err != nil {
		return protocolError("readPixelFormat", "failed to read depth field", err)
	}

	if err := binary.Read(brPF, binary.BigEndian, &pfBoolByte); err != nil {
		return protocolError("readPixelFormat", "failed to read big endian flag", err)
	}

	if pfBoolByte != 0 {
		// Big endian is true
		result.BigEndian = true
	}

	if err := binary.Read(brPF, binary.BigEndian, &pfBoolByte); err != nil {
		return protocolError("readPixelFormat", "failed to read true color flag", err)
	}

	if pfBoolByte != 0 {
		// True Color is true. So we also have to read all the color max & shifts.
		result.TrueColor = true

		if err := binary.Read(brPF, binary.BigEndian, &result.RedMax); err != nil {
			return protocolError("readPixelFormat", "failed to read red max value", err)
		}

		if err := binary.Read(brPF, binary.BigEndian, &result.GreenMax); err != nil {
			return protocolError("readPixelFormat", "failed to read green max value", err)
		}

		if err := binary.Read(brPF, binary.BigEndian, &result.BlueMax); err != nil {
			return protocolError("readPixelFormat", "failed to read blue max value", err)
		}

		if err := binary.Read(brPF, binary.BigEndian, &result.RedShift); err != nil {
			return protocolError("readPixelFormat", "failed to read red shift value", err)
		}

		if err := binary.Read(brPF, binary.BigEndian, &result.GreenShift); err != nil {
			return protocolError("readPixelFormat", "failed to read green shift value", err)
		}

		if err := binary.Read(brPF, binary.BigEndian, &result.BlueShift); err != nil {
			return protocolError("readPixelFormat", "failed to read blue shift value", err)
		}
	}

	return nil
}

// writePixelFormat converts a PixelFormat to its wire format representation.
// Returns the 16-byte pixel format structure as defined in RFC 6143.
func writePixelFormat(format *PixelFormat) ([]byte, error) {
	var buf bytes.Buffer

	// Byte 1
	if err := binary.Write(&buf, binary.BigEndian, format.BPP); err != nil {
		return nil, encodingError("writePixelFormat", "failed to write BPP field", err)
	}

	// Byte 2
	if err := binary.Write(&buf, binary.BigEndian, format.Depth); err != nil {
		return nil, encodingError("writePixelFormat", "failed to write depth field", err)
	}

	var boolByte byte
	if format.BigEndian {
		boolByte = 1
	} else {
		boolByte = 0
	}

	// Byte 3 (BigEndian)
	if err := binary.Write(&buf, binary.BigEndian, boolByte); err != nil {
		return nil, encodingError("writePixelFormat", "failed to write big endian flag", err)
	}

	if format.TrueColor {
		boolByte = 1
	} else {
		boolByte = 0
	}

	// Byte 4 (TrueColor)
	if err := binary.Write(&buf, binary.BigEndian, boolByte); err != nil {
		return nil, encodingError("writePixelFormat", "failed to write true color flag", err)
	}

	// If we have true color enabled then we have to fill in the rest of the
	// structure with the color values.
	if format.TrueColor {
		if err := binary.Write(&buf, binary.BigEndian, format.RedMax); err != nil {
			return nil, encodingError("writePixelFormat", "failed to write red max value", err)
		}

		if err := binary.Write(&buf, binary.BigEndian, format.GreenMax); err != nil {
			return nil, encodingError("writePixelFormat", "failed to write green max value", err)
		}

		if err := binary.Write(&buf, binary.BigEndian, format.BlueMax); err != nil {
			return nil, encodingError("writePixelFormat", "failed to write blue max value", err)
		}

		if err := binary.Write(&buf, binary.BigEndian, format.RedShift); err != nil {
			return nil, encodingError("writePixelFormat", "failed to write red shift value", err)
		}

		if err := binary.Write(&buf, binary.BigEndian, format.GreenShift); err != nil {
			return nil, encodingError("writePixelFormat", "failed to write green shift value", err)
		}

		if err := binary.Write(&buf, binary.BigEndian, format.BlueShift); err != nil {
			return nil, encodingError("writePixelFormat", "failed to write blue shift value", err)
		}
	}

	return buf.Bytes()[0:16], nil
}

// PixelFormatValidationError represents a pixel format validation error with detailed context.
type PixelFormatValidationError struct {
	Field   string
	Value   interface{}
	Rule    string
	Message string
}

// Error returns the formatted error message for pixel format validation errors.
func (e *PixelFormatValidationError) Error() string {
	return fmt.Sprintf("pixel format validation failed for field %s: %s (value: %v)",
		e.Field, e.Message, e.Value)
}

// Validate performs comprehensive validation of a pixel format according to RFC 6143.
// It checks all fields for consistency and validity, returning detailed error information
// if any validation rules are violated.
func (pf *PixelFormat) Validate() error {
	// Validate BPP (bits per pixel)
	if pf.BPP == 0 {
		return &PixelFormatValidationError{
			Field:   "BPP",
			Value:   pf.BPP,
			Rule:    "BPP must be greater than 0",
			Message: "bits per pixel cannot be zero",
		}
	}

	if pf.BPP != 8 && pf.BPP != 16 && pf.BPP != 32 {
		return &PixelFormatValidationError{
			Field:   "BPP",
			Value:   pf.BPP,
			Rule:    "BPP must be 8, 16, or 32",
			Message: "bits per pixel must be 8, 16, or 32",
		}
	}

	// Validate Depth
	if pf.Depth == 0 {
		return &PixelFormatValidationError{
			Field:   "Depth",
			Value:   pf.Depth,
			Rule:    "Depth must be greater than 0",
			Message: "color depth cannot be zero",
		}
	}

	if pf.Depth > pf.BPP {
		return &PixelFormatValidationError{
			Field:   "Depth",
			Value:   pf.Depth,
			Rule:    "Depth cannot exceed BPP",
			Message: fmt.Sprintf("color depth (%d) cannot exceed bits per pixel (%d)", pf.Depth, pf.BPP),
		}
	}

	// Validate TrueColor mode specific fields
	if pf.TrueColor {
		// Validate color maximums
		if pf.RedMax == 0 && pf.GreenMax == 0 && pf.BlueMax == 0 {
			return &PixelFormatValidationError{
				Field:   "ColorMax",
				Value:   fmt.Sprintf("R:%d G:%d B:%d", pf.RedMax, pf.GreenMax, pf.BlueMax),
				Rule:    "At least one color component must have non-zero maximum in TrueColor mode",
				Message: "all color maximums cannot be zero in true color mode",
			}
		}

		// Validate shifts don't exceed BPP
		maxShift := pf.BPP - 1
		if pf.RedShift > maxShift {
			return &PixelFormatValidationError{
				Field:   "RedShift",
				Value:   pf.RedShift,
				Rule:    fmt.Sprintf("RedShift cannot exceed %d for %d-bit pixels", maxShift, pf.BPP),
				Message: fmt.Sprintf("red shift (%d) exceeds maximum for %d-bit pixels", pf.RedShift, pf.BPP),
			}
		}
		if pf.GreenShift > maxShift {
			return &PixelFormatValidationError{
				Field:   "GreenShift",
				Value:   pf.GreenShift,
				Rule:    fmt.Sprintf("GreenShift cannot exceed %d for %d-bit pixels", maxShift, pf.BPP),
				Message: fmt.Sprintf("green shift (%d) exceeds maximum for %d-bit pixels", pf.GreenShift, pf.BPP),
			}
		}
		if pf.BlueShift > maxShift {
			return &PixelFormatValidationError{
				Field:   "BlueShift",
				Value:   pf.BlueShift,
				Rule:    fmt.Sprintf("BlueShift cannot exceed %d for %d-bit pixels", maxShift, pf.BPP),
				Message: fmt.Sprintf("blue shift (%d) exceeds maximum for %d-bit pixels", pf.BlueShift, pf.BPP),
			}
		}

		// Validate color component bit ranges don't overlap
		redBits := countBits(pf.RedMax)
		greenBits := countBits(pf.GreenMax)
		blueBits := countBits(pf.BlueMax)

		if redBits+greenBits+blueBits > pf.Depth {
			return &PixelFormatValidationError{
				Field:   "ColorBits",
				Value:   fmt.Sprintf("R:%d G:%d B:%d (total:%d)", redBits, greenBits, blueBits, redBits+greenBits+blueBits),
				Rule:    fmt.Sprintf("Total color bits cannot exceed depth (%d)", pf.Depth),
				Message: fmt.Sprintf("total color component bits (%d) exceed color depth (%d)", redBits+greenBits+blueBits, pf.Depth),
			}
		}
	}

	return nil
}

// countBits counts the number of bits needed to represent the given maximum value.
// Returns 0 for input 0, otherwise returns the position of the highest set bit + 1.
func countBits(maxVal uint16) uint8 {
	if maxVal == 0 {
		return 0
	}
	bits := uint8(0)
	for maxVal > 0 {
		maxVal >>= 1
		bits++
	}
	return bits
}

// pixelFormatPreset is one row of the (bits_per_pixel, depth) -> PixelFormat
// lookup table a client may request via SetPixelFormat.
type pixelFormatPreset struct {
	bpp, depth                      uint8
	redMax, greenMax, blueMax       uint16
	redShift, greenShift, blueShift uint8
}

// pixelFormatPresets is the complete, ordered table of recognized
// (bpp, depth) preset pairs. Every row is true_color=false even though
// RGB max/shift fields are populated. Those fields take no part in the
// wire message or in decoding: writePixelFormat sends them as zero for a
// non-true-color format, and PixelReader decodes such pixels as color-map
// indices. Any (bpp, depth) pair outside this table leaves the
// server-advertised pixel format unchanged.
var pixelFormatPresets = []pixelFormatPreset{
	{bpp: 16, depth: 16, redMax: 31, greenMax: 63, blueMax: 31, redShift: 11, greenShift: 5, blueShift: 0},
	{bpp: 16, depth: 8, redMax: 31, greenMax: 63, blueMax: 31, redShift: 11, greenShift: 5, blueShift: 0},
	{bpp: 8, depth: 8, redMax: 7, greenMax: 7, blueMax: 3, redShift: 0, greenShift: 3, blueShift: 6},
	{bpp: 8, depth: 6, redMax: 3, greenMax: 3, blueMax: 3, redShift: 4, greenShift: 2, blueShift: 0},
	{bpp: 8, depth: 3, redMax: 1, greenMax: 1, blueMax: 1, redShift: 2, greenShift: 1, blueShift: 0},
}

// PixelFormatForPreset looks up the preset PixelFormat for a given
// (bits_per_pixel, depth) pair. The second return is false when the pair
// does not match a recognized preset.
func PixelFormatForPreset(bitsPerPixel, depth uint8) (*PixelFormat, bool) {
	for _, p := range pixelFormatPresets {
		if p.bpp == bitsPerPixel && p.depth == depth {
			return &PixelFormat{
				BPP:        p.bpp,
				Depth:      p.depth,
				BigEndian:  false,
				TrueColor:  false,
				RedMax:     p.redMax,
				GreenMax:   p.greenMax,
				BlueMax:    p.blueMax,
				RedShift:   p.redShift,
				GreenShift: p.greenShift,
				BlueShift:  p.blueShift,
			}, true
		}
	}
	return nil, false
}

// Common pixel format presets, retained for direct use by callers that
// want a specific named format rather than looking one up by (bpp, depth).
var (
	// PixelFormat32BitRGBA represents high-quality 32-bit RGBA true color format.
	// This format provides the best color fidelity but uses the most bandwidth.
	// It is not one of the five SetPixelFormat presets (none cover 32bpp); a
	// client requesting it keeps the server's advertised true-color format.
	PixelFormat32BitRGBA = &PixelFormat{
		BPP:        32,
		Depth:      24,
		BigEndian:  false,
		TrueColor:  true,
		RedMax:     255,
		GreenMax:   255,
		BlueMax:    255,
		RedShift:   16,
		GreenShift: 8,
		BlueShift:  0,
	}

	// PixelFormat16BitRGB565 is the 16bpp/depth-16 preset.
	PixelFormat16BitRGB565, _ = PixelFormatForPreset(16, 16)

	// PixelFormat8BitIndexed is the 8bpp/depth-8 preset.
	PixelFormat8BitIndexed, _ = PixelFormatForPreset(8, 8)
)

