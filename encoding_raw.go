// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package rfb

import (
	"io"
)

// RawEncoding represents the Raw encoding defined in RFC 6143 Section 7.7.1:
// w*h pixels, row-major, with no compression whatsoever.
type RawEncoding struct{}

// Type returns the encoding type identifier for Raw encoding.
func (*RawEncoding) Type() int32 {
	return EncodingRaw
}

// Decode reads rect.Width*rect.Height pixels row-major and writes them
// directly into the framebuffer.
func (*RawEncoding) Decode(ctx *DecodeContext, rect *Rectangle, r io.Reader) error {
	reader := NewPixelReader(ctx.FB.PixelFormat(), ctx.FB.ColorMap())

	for row := 0; row < int(rect.Height); row++ {
		for col := 0; col < int(rect.Width); col++ {
			pixel, err := reader.ReadARGB(r)
			if err != nil {
				return encodingError("RawEncoding.Decode", "failed to read pixel", err)
			}
			ctx.FB.Set(int(rect.X)+col, int(rect.Y)+row, pixel)
		}
	}

	return nil
}
