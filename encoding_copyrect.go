// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package rfb

import (
	"encoding/binary"
	"io"
)

// CopyRectEncoding represents the CopyRect encoding defined in RFC 6143
// Section 7.7.2: the server sends only a source coordinate pair and the
// client copies the existing w×h region already in its framebuffer to the
// rectangle's destination, rather than retransmitting pixel data.
type CopyRectEncoding struct{}

// Type returns the encoding type identifier for CopyRect encoding.
func (*CopyRectEncoding) Type() int32 {
	return EncodingCopyRect
}

// Decode reads the 4-byte source coordinate pair and copies the w×h region
// from (srcX,srcY) to the rectangle's destination, handling overlap via
// Framebuffer.CopyRect.
func (*CopyRectEncoding) Decode(ctx *DecodeContext, rect *Rectangle, r io.Reader) error {
	var srcX, srcY uint16

	if err := binary.Read(r, binary.BigEndian, &srcX); err != nil {
		return encodingError("CopyRectEncoding.Decode", "failed to read source X coordinate", err)
	}
	if err := binary.Read(r, binary.BigEndian, &srcY); err != nil {
		return encodingError("CopyRectEncoding.Decode", "failed to read source Y coordinate", err)
	}

	if err := ctx.FB.CopyRect(int(srcX), int(srcY), int(rect.X), int(rect.Y), int(rect.Width), int(rect.Height)); err != nil {
		return encodingError("CopyRectEncoding.Decode", "copy rectangle out of bounds", err)
	}

	return nil
}
