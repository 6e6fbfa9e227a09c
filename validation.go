// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package rfb

import (
	"fmt"
	"math/bits"
	"unicode"
	"unicode/utf8"
)

// InputValidator checks that data a server sent, or data the caller is
// about to send, stays inside the bounds the RFB wire format and this
// session's Framebuffer actually allow. It holds no state; every check is
// a pure function of its arguments.
type InputValidator struct{}

func newInputValidator() *InputValidator {
	return &InputValidator{}
}

// ValidateProtocolVersion checks a 12-byte ProtocolVersion banner
// ("RFB XXX.YYY\n") for the fixed layout RFC 6143 §7.1.1 requires.
func (iv *InputValidator) ValidateProtocolVersion(version string) error {
	if len(version) != 12 || version[:4] != "RFB " || version[11] != '\n' {
		return validationError("InputValidator.ValidateProtocolVersion",
			fmt.Sprintf("malformed ProtocolVersion banner: %q", version), nil)
	}

	digits := version[4:11]
	if digits[3] != '.' {
		return validationError("InputValidator.ValidateProtocolVersion",
			"ProtocolVersion must be of the form XXX.YYY", nil)
	}
	for i, r := range digits {
		if i != 3 && !unicode.IsDigit(r) {
			return validationError("InputValidator.ValidateProtocolVersion",
				"ProtocolVersion major/minor must be decimal digits", nil)
		}
	}

	return nil
}

// ValidateSecurityType checks one server-offered security type. Type 0 is
// reserved to signal connection failure and is never a legal offer; every
// other value is accepted here and left for AuthRegistry to recognize or
// reject as unsupported.
func (iv *InputValidator) ValidateSecurityType(securityType uint8) error {
	if securityType == 0 {
		return validationError("InputValidator.ValidateSecurityType",
			"security type 0 signals connection failure, not a valid offer", nil)
	}
	return nil
}

// ValidateSecurityTypes checks a server's full list of offered security
// types, capped at the 255 entries the single length-prefix byte in the
// 3.7+ handshake can express.
func (iv *InputValidator) ValidateSecurityTypes(securityTypes []uint8) error {
	if len(securityTypes) == 0 {
		return validationError("InputValidator.ValidateSecurityTypes",
			"server offered no security types", nil)
	}
	if len(securityTypes) > 255 {
		return validationError("InputValidator.ValidateSecurityTypes",
			fmt.Sprintf("server offered %d security types, more than the wire format's 255-entry limit", len(securityTypes)), nil)
	}

	for i, secType := range securityTypes {
		if err := iv.ValidateSecurityType(secType); err != nil {
			return validationError("InputValidator.ValidateSecurityTypes",
				fmt.Sprintf("security type at offer index %d rejected", i), err)
		}
	}
	return nil
}

// ValidateFramebufferDimensions checks a ServerInit framebuffer-width/height
// pair against limits chosen to keep a decoded Framebuffer's backing pixel
// slice within one gigapixel, regardless of how a hostile or buggy server
// fills the width/height fields.
func (iv *InputValidator) ValidateFramebufferDimensions(width, height uint16) error {
	const maxDimension = 32768
	const maxArea = 1 << 30

	if width == 0 || height == 0 {
		return validationError("InputValidator.ValidateFramebufferDimensions",
			"ServerInit framebuffer dimensions cannot be zero", nil)
	}
	if width > maxDimension || height > maxDimension {
		return validationError("InputValidator.ValidateFramebufferDimensions",
			fmt.Sprintf("framebuffer %dx%d exceeds per-axis limit of %d", width, height, maxDimension), nil)
	}
	if area := uint64(width) * uint64(height); area > maxArea {
		return validationError("InputValidator.ValidateFramebufferDimensions",
			fmt.Sprintf("framebuffer area %d pixels exceeds limit of %d", area, uint64(maxArea)), nil)
	}

	return nil
}

// ValidateRectangle checks that rect lies entirely within a bound region of
// boundWidth x boundHeight, rejecting zero-sized rectangles and arithmetic
// that would overflow uint16 before the comparison. It serves two call
// sites with the same shape of check: a top-level FramebufferUpdate
// rectangle against the Framebuffer's dimensions, and an RRE/CoRRE
// subrectangle against the dimensions of the rectangle containing it.
func (iv *InputValidator) ValidateRectangle(rect Rectangle, boundWidth, boundHeight uint16) error {
	if rect.Width == 0 || rect.Height == 0 {
		return validationError("InputValidator.ValidateRectangle",
			"rectangle width and height cannot be zero", nil)
	}
	if rect.X > 0xFFFF-rect.Width || rect.Y > 0xFFFF-rect.Height {
		return validationError("InputValidator.ValidateRectangle",
			"rectangle coordinates overflow a 16-bit bound", nil)
	}
	if rect.X+rect.Width > boundWidth || rect.Y+rect.Height > boundHeight {
		return validationError("InputValidator.ValidateRectangle",
			fmt.Sprintf("rectangle (%d,%d)+(%dx%d) exceeds bound %dx%d",
				rect.X, rect.Y, rect.Width, rect.Height, boundWidth, boundHeight), nil)
	}

	return nil
}

// ValidatePixelFormat checks a PixelFormat for the internal consistency RFC
// 6143 §7.4 requires: a supported bits-per-pixel, a depth that fits within
// it, and, for true-color formats, non-zero component maximums whose bits
// fit in that depth and shifts below bit bits-per-pixel minus one.
func (iv *InputValidator) ValidatePixelFormat(pf *PixelFormat) error {
	if pf == nil {
		return validationError("InputValidator.ValidatePixelFormat", "pixel format is nil", nil)
	}

	if pf.BPP != 8 && pf.BPP != 16 && pf.BPP != 32 {
		return validationError("InputValidator.ValidatePixelFormat",
			fmt.Sprintf("bits-per-pixel %d is not one of 8, 16, 32", pf.BPP), nil)
	}
	if pf.Depth == 0 || pf.Depth > pf.BPP {
		return validationError("InputValidator.ValidatePixelFormat",
			fmt.Sprintf("depth %d does not fit in %d-bit pixels", pf.Depth, pf.BPP), nil)
	}

	if !pf.TrueColor {
		return nil
	}

	if pf.RedMax == 0 || pf.GreenMax == 0 || pf.BlueMax == 0 {
		return validationError("InputValidator.ValidatePixelFormat",
			"true-color format cannot have a zero component maximum", nil)
	}

	maxShift := pf.BPP - 1
	if pf.RedShift >= maxShift || pf.GreenShift >= maxShift || pf.BlueShift >= maxShift {
		return validationError("InputValidator.ValidatePixelFormat",
			fmt.Sprintf("a component shift reaches or exceeds bit %d of a %d-bit pixel", maxShift, pf.BPP), nil)
	}

	channelBits := bits.OnesCount32(uint32(pf.RedMax)) + bits.OnesCount32(uint32(pf.GreenMax)) + bits.OnesCount32(uint32(pf.BlueMax))
	if channelBits > int(pf.Depth) {
		return validationError("InputValidator.ValidatePixelFormat",
			fmt.Sprintf("color channels need %d bits, more than depth %d", channelBits, pf.Depth), nil)
	}

	return nil
}

// ValidateColorMapEntries checks a SetColourMapEntries range against the
// color map's fixed 256-entry size.
func (iv *InputValidator) ValidateColorMapEntries(firstColor, numColors, maxColors uint16) error {
	if numColors == 0 {
		return validationError("InputValidator.ValidateColorMapEntries", "color map update has zero entries", nil)
	}
	if numColors > maxColors || firstColor > maxColors-numColors {
		return validationError("InputValidator.ValidateColorMapEntries",
			fmt.Sprintf("color range [%d,%d) exceeds the %d-entry color map", firstColor, uint32(firstColor)+uint32(numColors), maxColors), nil)
	}

	return nil
}

// ValidateEncodingType checks that a rectangle header's encoding field is
// one this client can decode, or one of the negative pseudo-encoding
// identifiers it might request (none of which carry rectangle payload).
func (iv *InputValidator) ValidateEncodingType(encodingType int32) error {
	if _, decodable := encodingRegistry()[encodingType]; decodable {
		return nil
	}

	switch encodingType {
	case -1, -2, -223, -224, -232, -239, -240, -247, -314:
		return nil
	}

	return validationError("InputValidator.ValidateEncodingType",
		fmt.Sprintf("encoding type %d is neither decodable nor a recognized pseudo-encoding", encodingType), nil)
}

// ValidateMessageLength checks a wire length prefix against a caller-
// supplied ceiling, rejecting the zero-length case since every message
// this validates (error reasons, desktop names, clipboard text) is used
// only when non-empty.
func (iv *InputValidator) ValidateMessageLength(length, maxLength uint32) error {
	if length == 0 {
		return validationError("InputValidator.ValidateMessageLength", "length prefix is zero", nil)
	}
	if length > maxLength {
		return validationError("InputValidator.ValidateMessageLength",
			fmt.Sprintf("length %d exceeds maximum %d", length, maxLength), nil)
	}

	return nil
}

// ValidateKeySymbol checks an X11 keysym against the legal keysym range
// (RFC 6143 §7.5.4); zero is never a valid keysym.
func (iv *InputValidator) ValidateKeySymbol(keysym uint32) error {
	const maxKeysym = 0x1FFFFFF
	if keysym == 0 {
		return validationError("InputValidator.ValidateKeySymbol", "keysym is zero", nil)
	}
	if keysym > maxKeysym {
		return validationError("InputValidator.ValidateKeySymbol",
			fmt.Sprintf("keysym 0x%X exceeds the 25-bit keysym range", keysym), nil)
	}

	return nil
}

// ValidatePointerPosition checks a PointerEvent coordinate against the
// Framebuffer it addresses.
func (iv *InputValidator) ValidatePointerPosition(x, y, fbWidth, fbHeight uint16) error {
	if x >= fbWidth || y >= fbHeight {
		return validationError("InputValidator.ValidatePointerPosition",
			fmt.Sprintf("pointer (%d,%d) is outside the %dx%d framebuffer", x, y, fbWidth, fbHeight), nil)
	}

	return nil
}

// ValidateTextData checks clipboard/desktop-name text against a maximum
// byte length, well-formed UTF-8, and the absence of control characters
// other than tab, newline and carriage return.
func (iv *InputValidator) ValidateTextData(text string, maxLength int) error {
	if len(text) > maxLength {
		return validationError("InputValidator.ValidateTextData",
			fmt.Sprintf("text is %d bytes, exceeding the %d-byte limit", len(text), maxLength), nil)
	}
	if !utf8.ValidString(text) {
		return validationError("InputValidator.ValidateTextData", "text is not valid UTF-8", nil)
	}
	for i, r := range text {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return validationError("InputValidator.ValidateTextData",
				fmt.Sprintf("control character at byte offset %d", i), nil)
		}
	}

	return nil
}

// SanitizeText rewrites text so it is safe to hand to a terminal or GUI
// clipboard: tab/newline/CR pass through, other control characters become
// spaces, and non-printable runes become the Unicode replacement
// character. Used as a fallback when ValidateTextData rejects server-
// supplied text that the caller still wants to surface in some form.
func (iv *InputValidator) SanitizeText(text string) string {
	if text == "" {
		return text
	}

	sanitized := make([]rune, 0, len(text))
	for _, r := range text {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
			sanitized = append(sanitized, r)
		case r < 32:
			sanitized = append(sanitized, ' ')
		case unicode.IsPrint(r):
			sanitized = append(sanitized, r)
		default:
			sanitized = append(sanitized, '�')
		}
	}

	return string(sanitized)
}

// ValidateBinaryData checks a decoded byte slice's length against an exact
// expected length (when non-zero) and an upper bound.
func (iv *InputValidator) ValidateBinaryData(data []byte, expectedLength, maxLength int) error {
	if data == nil {
		return validationError("InputValidator.ValidateBinaryData", "binary data is nil", nil)
	}
	if expectedLength > 0 && len(data) != expectedLength {
		return validationError("InputValidator.ValidateBinaryData",
			fmt.Sprintf("binary data is %d bytes, expected exactly %d", len(data), expectedLength), nil)
	}
	if len(data) > maxLength {
		return validationError("InputValidator.ValidateBinaryData",
			fmt.Sprintf("binary data is %d bytes, exceeding the %d-byte limit", len(data), maxLength), nil)
	}

	return nil
}
