// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package rfb

import (
	"encoding/binary"
	"fmt"
	"io"
)

const maxRRESubrects = 1000000

// RREEncoding represents the RRE (Rise-and-Run-length Encoding) defined in
// RFC 6143 Section 7.7.3: a background color overlaid with solid-color
// subrectangles.
type RREEncoding struct{}

// Type returns the encoding type identifier for RRE encoding.
func (*RREEncoding) Type() int32 {
	return EncodingRRE
}

// Decode reads the u32 subrect count, the background pixel, then that many
// (pixel, x, y, w, h) records, filling the rectangle with the background
// and painting each subrect on top.
func (*RREEncoding) Decode(ctx *DecodeContext, rect *Rectangle, r io.Reader) error {
	return decodeRRELike(ctx, rect, r, readU32Count, readU16Geometry)
}

// CoRREEncoding is identical to RRE except the subrect count is still a
// u32 but coordinates and sizes are single bytes, and the rectangle's
// dimensions are guaranteed <= 255 (RFC 6143 CoRRE, encoding type 4).
type CoRREEncoding struct{}

// Type returns the encoding type identifier for CoRRE encoding.
func (*CoRREEncoding) Type() int32 {
	return EncodingCoRRE
}

// Decode reads the u32 subrect count, the background pixel, then that many
// (pixel, x, y, w, h) records with byte-sized geometry fields.
func (*CoRREEncoding) Decode(ctx *DecodeContext, rect *Rectangle, r io.Reader) error {
	return decodeRRELike(ctx, rect, r, readU32Count, readU8Geometry)
}

type subrectGeometryReader func(r io.Reader) (x, y, w, h uint16, err error)

func readU32Count(r io.Reader) (uint32, error) {
	var n uint32
	err := binary.Read(r, binary.BigEndian, &n)
	return n, err
}

func readU16Geometry(r io.Reader) (x, y, w, h uint16, err error) {
	for _, v := range []*uint16{&x, &y, &w, &h} {
		if err = binary.Read(r, binary.BigEndian, v); err != nil {
			return 0, 0, 0, 0, err
		}
	}
	return
}

func readU8Geometry(r io.Reader) (x, y, w, h uint16, err error) {
	var buf [4]byte
	if _, err = io.ReadFull(r, buf[:]); err != nil {
		return 0, 0, 0, 0, err
	}
	return uint16(buf[0]), uint16(buf[1]), uint16(buf[2]), uint16(buf[3]), nil
}

func decodeRRELike(ctx *DecodeContext, rect *Rectangle, r io.Reader, readCount func(io.Reader) (uint32, error), readGeometry subrectGeometryReader) error {
	pixels := NewPixelReader(ctx.FB.PixelFormat(), ctx.FB.ColorMap())

	numSubrects, err := readCount(r)
	if err != nil {
		return encodingError("RREEncoding.Decode", "failed to read number of subrectangles", err)
	}
	if numSubrects > maxRRESubrects {
		return encodingError("RREEncoding.Decode",
			fmt.Sprintf("too many subrectangles: %d (max %d)", numSubrects, maxRRESubrects), nil)
	}

	background, err := pixels.ReadARGB(r)
	if err != nil {
		return encodingError("RREEncoding.Decode", "failed to read background pixel", err)
	}

	if err := ctx.FB.FillRect(int(rect.X), int(rect.Y), int(rect.Width), int(rect.Height), background); err != nil {
		return encodingError("RREEncoding.Decode", "failed to fill background", err)
	}

	validator := newInputValidator()

	for i := uint32(0); i < numSubrects; i++ {
		color, err := pixels.ReadARGB(r)
		if err != nil {
			return encodingError("RREEncoding.Decode", "failed to read subrectangle color", err)
		}

		x, y, w, h, err := readGeometry(r)
		if err != nil {
			return encodingError("RREEncoding.Decode", "failed to read subrectangle geometry", err)
		}

		sub := Rectangle{X: x, Y: y, Width: w, Height: h}
		if err := validator.ValidateRectangle(sub, rect.Width, rect.Height); err != nil {
			return encodingError("RREEncoding.Decode", "invalid subrectangle bounds", err)
		}

		if err := ctx.FB.FillRect(int(rect.X)+int(x), int(rect.Y)+int(y), int(w), int(h), color); err != nil {
			return encodingError("RREEncoding.Decode", "failed to paint subrectangle", err)
		}
	}

	return nil
}
