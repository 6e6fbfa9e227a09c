// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package rfb

import (
	"io"
)

// Rectangle is a positioned, sized, encoded screen region delivered by a
// FramebufferUpdate message. It is transient: consumed during decode and
// not retained afterward.
type Rectangle struct {
	X, Y, Width, Height uint16
	EncodingType        int32
}

// DecodeContext is the set of resources a rectangle decoder needs: the
// framebuffer to paint into, the pixel format/color map it carries, and the
// persistent ZRLE substream (lazily used only by the ZRLE decoder).
type DecodeContext struct {
	FB   *Framebuffer
	Zrle *zrleStream
}

// Encoding decodes one rectangle's wire payload and writes the result into
// the framebuffer. Implementations MUST NOT read past their declared
// on-wire size and MUST NOT write outside the rectangle's bounds.
type Encoding interface {
	// Type returns the RFB wire encoding identifier (RFC 6143 §7.7).
	Type() int32

	// Decode reads the rectangle's encoded payload from r and paints the
	// result into ctx.FB at (rect.X, rect.Y).
	Decode(ctx *DecodeContext, rect *Rectangle, r io.Reader) error
}

// encodingRegistry maps an RFB encoding type to a decoder instance, used by
// the session reader loop to dispatch each rectangle in a FramebufferUpdate.
func encodingRegistry() map[int32]Encoding {
	return map[int32]Encoding{
		EncodingRaw:      &RawEncoding{},
		EncodingCopyRect: &CopyRectEncoding{},
		EncodingRRE:      &RREEncoding{},
		EncodingCoRRE:    &CoRREEncoding{},
		EncodingHextile:  &HextileEncoding{},
		EncodingZRLE:     &ZRLEEncoding{},
	}
}

// RFB wire encoding type identifiers, per RFC 6143 §7.7.
const (
	EncodingRaw      int32 = 0
	EncodingCopyRect int32 = 1
	EncodingRRE      int32 = 2
	EncodingCoRRE    int32 = 4
	EncodingHextile  int32 = 5
	EncodingZRLE     int32 = 16
)

// preferredEncodings is the order SetEncodings advertises support in: ZRLE
// first (best compression), Raw last (guaranteed fallback). CoRRE is
// deliberately omitted from what the client advertises (some servers mishandle
// it) even though this client can decode it if a server sends it anyway.
var preferredEncodings = []int32{EncodingZRLE, EncodingHextile, EncodingRRE, EncodingCopyRect, EncodingRaw}
