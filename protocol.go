// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package rfb

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
)

const protocolVersionLen = 12

// VersionQuirk maps a literal (major, minor) pair as parsed from a server's
// ProtocolVersion banner to the minor version this client should behave as
// having negotiated. Exposed as a table rather than a hardcoded switch so a
// caller can extend it (e.g. for a vendor banner not seen here) without
// forking the library.
type VersionQuirk struct {
	Major, Minor uint
	MapsTo       uint
}

// defaultVersionQuirks is the quirk table applied unless a session is built
// with WithVersionQuirks. It accepts the standard 3.3/3.7/3.8 banners, maps
// the undocumented Apple ScreenSharing "RFB 003.889\n" banner to 3.8, and
// treats "RFB 004.001\n" as 3.8.
var defaultVersionQuirks = []VersionQuirk{
	{Major: 3, Minor: 3, MapsTo: 3},
	{Major: 3, Minor: 6, MapsTo: 3},
	{Major: 3, Minor: 7, MapsTo: 7},
	{Major: 3, Minor: 8, MapsTo: 8},
	{Major: 3, Minor: 9, MapsTo: 8},
	{Major: 3, Minor: 889, MapsTo: 8},
	{Major: 4, Minor: 1, MapsTo: 8},
}

// resolveVersionQuirk finds the negotiated minor version for a parsed
// (major, minor) banner pair, returning false if no quirk table entry
// matches.
func resolveVersionQuirk(quirks []VersionQuirk, major, minor uint) (uint, bool) {
	for _, q := range quirks {
		if q.Major == major && q.Minor == minor {
			return q.MapsTo, true
		}
	}
	return 0, false
}

// parseProtocolVersion parses a 12-byte "RFB III.mmm\n" banner into its
// literal major and minor components.
func parseProtocolVersion(pv []byte) (uint, uint, error) {
	var major, minor uint

	if len(pv) < protocolVersionLen {
		return 0, 0, protocolError("parseProtocolVersion",
			fmt.Sprintf("protocol version message too short (%v < %v)", len(pv), protocolVersionLen), nil)
	}

	n, err := fmt.Sscanf(string(pv), "RFB %d.%d\n", &major, &minor)
	if err != nil {
		return 0, 0, protocolError("parseProtocolVersion", "failed to parse protocol version", err)
	}
	if n != 2 {
		return 0, 0, protocolError("parseProtocolVersion", "invalid protocol version format", nil)
	}

	return major, minor, nil
}

const repeaterFrameLen = 250

// negotiateVersion performs the ProtocolVersion exchange (RFC 6143 §7.1.1),
// including the UltraVNC repeater quirk (a literal "RFB 000.000\n" banner
// means the peer is a repeater expecting a 250-byte proxy address frame
// before it forwards to the real server and resends the banner).
func negotiateVersion(ctx context.Context, rw ioConn, quirks []VersionQuirk, repeaterID string) (uint, error) {
	validator := newInputValidator()

	for {
		var banner [protocolVersionLen]byte
		if err := readWithContext(ctx, rw, banner[:]); err != nil {
			return 0, networkError("negotiateVersion", "failed to read protocol version from server", err)
		}

		if err := validator.ValidateProtocolVersion(string(banner[:])); err != nil {
			return 0, protocolError("negotiateVersion", "server sent invalid protocol version format", err)
		}

		major, minor, err := parseProtocolVersion(banner[:])
		if err != nil {
			return 0, err
		}

		if major == 0 && minor == 0 {
			frame := make([]byte, repeaterFrameLen)
			copy(frame, []byte(fmt.Sprintf("ID:%s\n", repeaterID)))
			if err := writeWithContext(ctx, rw, frame); err != nil {
				return 0, networkError("negotiateVersion", "failed to write repeater proxy frame", err)
			}
			continue
		}

		negotiatedMinor, ok := resolveVersionQuirk(quirks, major, minor)
		if !ok {
			return 0, unsupportedError("negotiateVersion",
				fmt.Sprintf("unsupported protocol version: %d.%d", major, minor), nil)
		}

		reply := []byte(fmt.Sprintf("RFB 003.%03d\n", negotiatedMinor))
		if err := writeWithContext(ctx, rw, reply); err != nil {
			return 0, networkError("negotiateVersion", "failed to send protocol version response", err)
		}

		return negotiatedMinor, nil
	}
}

// readErrorReason reads a u32-length-prefixed UTF-8 failure reason, as sent
// after a rejected security handshake or a zero SecurityTypes count.
func readErrorReason(ctx context.Context, rw ioConn) string {
	validator := newInputValidator()

	var reasonLen uint32
	if err := readBinaryWithContext(ctx, rw, &reasonLen); err != nil {
		return "<failed to read error reason length>"
	}

	const maxErrorReasonLength = 64 * 1024
	if err := validator.ValidateMessageLength(reasonLen, maxErrorReasonLength); err != nil {
		return "<invalid error reason length>"
	}

	reason := make([]uint8, reasonLen)
	if err := readBinaryWithContext(ctx, rw, &reason); err != nil {
		return "<failed to read error reason>"
	}

	text := string(reason)
	if err := validator.ValidateTextData(text, maxErrorReasonLength); err != nil {
		text = validator.SanitizeText(text)
	}

	return text
}

// negotiateSecurity reads the server's offered security types (RFC 6143
// §7.1.2, both the 3.3 single-u32 form and the 3.7+ count-prefixed form)
// and picks one according to pref, preferring the registry/Auth list the
// session was configured with.
func negotiateSecurity(ctx context.Context, rw ioConn, minor uint, registry *AuthRegistry, authList []ClientAuth, pref SecurityPreference) (ClientAuth, uint8, error) {
	validator := newInputValidator()

	var securityTypes []uint8

	if minor == 3 {
		var chosen uint32
		if err := readBinaryWithContext(ctx, rw, &chosen); err != nil {
			return nil, 0, networkError("negotiateSecurity", "failed to read security type", err)
		}
		if chosen == 0 {
			reason := readErrorReason(ctx, rw)
			return nil, 0, authenticationError("negotiateSecurity", fmt.Sprintf("server rejected connection: %s", reason), nil)
		}
		securityTypes = []uint8{uint8(chosen)} // #nosec G115 - RFC 6143 3.3 security types are single-byte values
	} else {
		var numTypes uint8
		if err := readBinaryWithContext(ctx, rw, &numTypes); err != nil {
			return nil, 0, networkError("negotiateSecurity", "failed to read number of security types", err)
		}
		if numTypes == 0 {
			reason := readErrorReason(ctx, rw)
			return nil, 0, authenticationError("negotiateSecurity", fmt.Sprintf("no security types available: %s", reason), nil)
		}

		securityTypes = make([]uint8, numTypes)
		if err := readBinaryWithContext(ctx, rw, &securityTypes); err != nil {
			return nil, 0, networkError("negotiateSecurity", "failed to read security types", err)
		}
	}

	if err := validator.ValidateSecurityTypes(securityTypes); err != nil {
		return nil, 0, protocolError("negotiateSecurity", "server sent invalid security types", err)
	}

	var auth ClientAuth
	var selected uint8

	if registry != nil {
		var preferredOrder []uint8
		if authList != nil {
			preferredOrder = make([]uint8, len(authList))
			for i, a := range authList {
				preferredOrder[i] = a.SecurityType()
			}
		}
		if pref == SecurityPreferenceStrongest {
			preferredOrder = append([]uint8{2, 1}, preferredOrder...)
		}

		var err error
		auth, selected, err = registry.NegotiateAuth(ctx, securityTypes, preferredOrder)
		if err != nil {
			return nil, 0, authenticationError("negotiateSecurity", "authentication negotiation failed", err)
		}
	} else {
		candidates := authList
		if candidates == nil {
			candidates = []ClientAuth{&ClientAuthNone{}}
		}

	findAuth:
		for _, candidate := range candidates {
			for _, serverType := range securityTypes {
				if candidate.SecurityType() == serverType {
					auth = candidate
					selected = serverType
					break findAuth
				}
			}
		}

		if auth == nil {
			return nil, 0, authenticationError("negotiateSecurity",
				fmt.Sprintf("no suitable auth scheme found, server offered: %#v", securityTypes), nil)
		}
	}

	if minor > 3 {
		if err := writeBinaryWithContext(ctx, rw, selected); err != nil {
			return nil, 0, networkError("negotiateSecurity", "failed to send selected security type", err)
		}
	}

	return auth, selected, nil
}

// readSecurityResult reads the SecurityResult (RFC 6143 §7.1.3), returning
// an error carrying the server's failure reason when present.
func readSecurityResult(ctx context.Context, rw ioConn) error {
	var result uint32
	if err := readBinaryWithContext(ctx, rw, &result); err != nil {
		return networkError("readSecurityResult", "failed to read security result", err)
	}
	if result != 0 {
		reason := readErrorReason(ctx, rw)
		return authenticationError("readSecurityResult", fmt.Sprintf("security handshake failed: %s", reason), nil)
	}
	return nil
}

// writeClientInit writes the ClientInit message (RFC 6143 §7.3.1).
func writeClientInit(ctx context.Context, rw ioConn, shared bool) error {
	var sharedFlag uint8
	if shared {
		sharedFlag = 1
	}
	if err := writeBinaryWithContext(ctx, rw, sharedFlag); err != nil {
		return networkError("writeClientInit", "failed to send client init message", err)
	}
	return nil
}

// serverInit is the result of reading a ServerInit message.
type serverInit struct {
	Width, Height uint16
	PixelFormat   PixelFormat
	DesktopName   string
}

const maxDesktopNameLength = 1024 * 1024

// readServerInit reads the ServerInit message (RFC 6143 §7.3.2).
func readServerInit(ctx context.Context, rw ioConn) (*serverInit, error) {
	validator := newInputValidator()

	var result serverInit
	if err := readBinaryWithContext(ctx, rw, &result.Width); err != nil {
		return nil, networkError("readServerInit", "failed to read framebuffer width", err)
	}
	if err := readBinaryWithContext(ctx, rw, &result.Height); err != nil {
		return nil, networkError("readServerInit", "failed to read framebuffer height", err)
	}
	if err := validator.ValidateFramebufferDimensions(result.Width, result.Height); err != nil {
		return nil, protocolError("readServerInit", "server sent invalid framebuffer dimensions", err)
	}

	if err := readPixelFormatWithContext(ctx, rw, &result.PixelFormat); err != nil {
		return nil, protocolError("readServerInit", "failed to read pixel format", err)
	}
	if err := validator.ValidatePixelFormat(&result.PixelFormat); err != nil {
		return nil, protocolError("readServerInit", "server sent invalid pixel format", err)
	}

	var nameLength uint32
	if err := readBinaryWithContext(ctx, rw, &nameLength); err != nil {
		return nil, networkError("readServerInit", "failed to read desktop name length", err)
	}
	if err := validator.ValidateMessageLength(nameLength, maxDesktopNameLength); err != nil {
		return nil, protocolError("readServerInit", "server sent invalid desktop name length", err)
	}

	nameBytes := make([]uint8, nameLength)
	if err := readBinaryWithContext(ctx, rw, &nameBytes); err != nil {
		return nil, networkError("readServerInit", "failed to read desktop name", err)
	}

	name := string(nameBytes)
	if err := validator.ValidateTextData(name, maxDesktopNameLength); err != nil {
		name = validator.SanitizeText(name)
	}
	result.DesktopName = name

	return &result, nil
}

// writeSetPixelFormat writes the SetPixelFormat message (RFC 6143 §7.5.1).
func writeSetPixelFormat(ctx context.Context, rw ioConn, format *PixelFormat) error {
	validator := newInputValidator()
	if err := validator.ValidatePixelFormat(format); err != nil {
		return validationError("writeSetPixelFormat", "invalid pixel format", err)
	}

	pfBytes, err := writePixelFormat(format)
	if err != nil {
		return encodingError("writeSetPixelFormat", "failed to encode pixel format", err)
	}

	var msg [20]byte
	msg[0] = 0
	copy(msg[4:], pfBytes)

	if err := writeWithContext(ctx, rw, msg[:]); err != nil {
		return networkError("writeSetPixelFormat", "failed to send pixel format message", err)
	}
	return nil
}

const maxEncodingCount = 100

// writeSetEncodings writes the SetEncodings message (RFC 6143 §7.5.2) in
// the exact order given.
func writeSetEncodings(ctx context.Context, rw ioConn, encs []Encoding) error {
	validator := newInputValidator()

	if len(encs) > maxEncodingCount {
		return validationError("writeSetEncodings", fmt.Sprintf("too many encodings: %d (max %d)", len(encs), maxEncodingCount), nil)
	}

	for i, enc := range encs {
		if err := validator.ValidateEncodingType(enc.Type()); err != nil {
			return validationError("writeSetEncodings", fmt.Sprintf("invalid encoding type at index %d", i), err)
		}
	}

	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.BigEndian, uint8(2))
	_ = binary.Write(&buf, binary.BigEndian, uint8(0))
	_ = binary.Write(&buf, binary.BigEndian, uint16(len(encs))) // #nosec G115 - len(encs) bounded by maxEncodingCount
	for _, enc := range encs {
		_ = binary.Write(&buf, binary.BigEndian, enc.Type())
	}

	if err := writeWithContext(ctx, rw, buf.Bytes()); err != nil {
		return networkError("writeSetEncodings", "failed to send set encodings message", err)
	}
	return nil
}

// writeFramebufferUpdateRequest writes a FramebufferUpdateRequest (RFC 6143
// §7.5.3).
func writeFramebufferUpdateRequest(ctx context.Context, rw ioConn, incremental bool, x, y, width, height uint16) error {
	var incByte uint8
	if incremental {
		incByte = 1
	}

	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.BigEndian, uint8(3))
	_ = binary.Write(&buf, binary.BigEndian, incByte)
	_ = binary.Write(&buf, binary.BigEndian, x)
	_ = binary.Write(&buf, binary.BigEndian, y)
	_ = binary.Write(&buf, binary.BigEndian, width)
	_ = binary.Write(&buf, binary.BigEndian, height)

	if err := writeWithContext(ctx, rw, buf.Bytes()); err != nil {
		return networkError("writeFramebufferUpdateRequest", "failed to send framebuffer update request", err)
	}
	return nil
}

// writeKeyEvent writes a KeyEvent message (RFC 6143 §7.5.4).
func writeKeyEvent(ctx context.Context, rw ioConn, keysym uint32, down bool) error {
	validator := newInputValidator()
	if err := validator.ValidateKeySymbol(keysym); err != nil {
		return validationError("writeKeyEvent", "invalid keysym value", err)
	}

	var downFlag uint8
	if down {
		downFlag = 1
	}

	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.BigEndian, uint8(4))
	_ = binary.Write(&buf, binary.BigEndian, downFlag)
	_ = binary.Write(&buf, binary.BigEndian, uint16(0))
	_ = binary.Write(&buf, binary.BigEndian, keysym)

	if err := writeWithContext(ctx, rw, buf.Bytes()); err != nil {
		return networkError("writeKeyEvent", "failed to send key event", err)
	}
	return nil
}

// writePointerEvent writes a PointerEvent message (RFC 6143 §7.5.5).
func writePointerEvent(ctx context.Context, rw ioConn, mask ButtonMask, x, y, fbWidth, fbHeight uint16) error {
	validator := newInputValidator()
	if err := validator.ValidatePointerPosition(x, y, fbWidth, fbHeight); err != nil {
		return validationError("writePointerEvent", "invalid pointer coordinates", err)
	}

	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.BigEndian, uint8(5))
	_ = binary.Write(&buf, binary.BigEndian, uint8(mask))
	_ = binary.Write(&buf, binary.BigEndian, x)
	_ = binary.Write(&buf, binary.BigEndian, y)

	if err := writeWithContext(ctx, rw, buf.Bytes()); err != nil {
		return networkError("writePointerEvent", "failed to send pointer event", err)
	}
	return nil
}

// writeClientCutText writes a ClientCutText message (RFC 6143 §7.5.6),
// carried as Latin-1 text per the wire format.
func writeClientCutText(ctx context.Context, rw ioConn, text string) error {
	validator := newInputValidator()
	if err := validator.ValidateTextData(text, MaxClipboardLength); err != nil {
		return validationError("writeClientCutText", "invalid clipboard text", err)
	}

	sanitized := validator.SanitizeText(text)

	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.BigEndian, uint8(6))
	_ = binary.Write(&buf, binary.BigEndian, [3]byte{})
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(sanitized))) // #nosec G115 - bounded by MaxClipboardLength

	for _, char := range sanitized {
		if char > Latin1MaxCodePoint {
			return validationError("writeClientCutText", fmt.Sprintf("character '%c' is not valid Latin-1", char), nil)
		}
		_ = binary.Write(&buf, binary.BigEndian, uint8(char))
	}

	if err := writeWithContext(ctx, rw, buf.Bytes()); err != nil {
		return networkError("writeClientCutText", "failed to send cut text message", err)
	}
	return nil
}
