// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package rfb

import (
	"encoding/binary"
	"fmt"
	"io"
)

// VNC protocol constants.
const (
	ColorMapSize             = 256
	MaxClipboardLength       = 1024 * 1024
	Latin1MaxCodePoint       = 255
	MaxRectanglesPerUpdate   = 10000
	MaxServerClipboardLength = 10 * 1024 * 1024
)

// ServerMessage defines the interface for messages sent from a VNC server to
// the client. Read decodes the message body (the type byte has already been
// consumed by the reader loop) and, for FramebufferUpdate, paints the
// decoded rectangles directly into ctx.FB rather than returning them.
type ServerMessage interface {
	Type() uint8
	Read(ctx *DecodeContext, r io.Reader) (ServerMessage, error)
}

// FramebufferUpdateMessage represents a framebuffer update from the server
// (message type 0). Its rectangles have already been painted into the
// framebuffer by the time Read returns; Rectangles carries the decoded
// headers so callers can raise one update event per rectangle.
type FramebufferUpdateMessage struct {
	NumRectangles uint16
	Rectangles    []Rectangle
}

// Type returns the message type identifier for framebuffer update messages.
func (*FramebufferUpdateMessage) Type() uint8 {
	return 0
}

// Read parses a FramebufferUpdate message (RFC 6143 Section 7.6.1): a
// padding byte, a rectangle count, then that many (x, y, w, h, encoding)
// headers each followed by encoding-specific payload, dispatched to the
// registered Encoding and painted straight into ctx.FB.
func (*FramebufferUpdateMessage) Read(ctx *DecodeContext, r io.Reader) (ServerMessage, error) {
	validator := newInputValidator()
	registry := encodingRegistry()

	var padding [1]byte
	if _, err := io.ReadFull(r, padding[:]); err != nil {
		return nil, networkError("FramebufferUpdateMessage.Read", "failed to read padding", err)
	}

	var numRects uint16
	if err := binary.Read(r, binary.BigEndian, &numRects); err != nil {
		return nil, networkError("FramebufferUpdateMessage.Read", "failed to read number of rectangles", err)
	}
	if numRects > MaxRectanglesPerUpdate {
		return nil, protocolError("FramebufferUpdateMessage.Read",
			fmt.Sprintf("too many rectangles in update: %d (max %d)", numRects, MaxRectanglesPerUpdate), nil)
	}

	fbWidth, fbHeight := ctx.FB.Width, ctx.FB.Height
	rects := make([]Rectangle, 0, numRects)

	for i := uint16(0); i < numRects; i++ {
		var rect Rectangle

		fields := []interface{}{&rect.X, &rect.Y, &rect.Width, &rect.Height, &rect.EncodingType}
		for _, val := range fields {
			if err := binary.Read(r, binary.BigEndian, val); err != nil {
				return nil, networkError("FramebufferUpdateMessage.Read", "failed to read rectangle header", err)
			}
		}

		if err := validator.ValidateEncodingType(rect.EncodingType); err != nil {
			return nil, protocolError("FramebufferUpdateMessage.Read",
				fmt.Sprintf("invalid encoding type for rectangle %d", i), err)
		}

		if err := validator.ValidateRectangle(rect, uint16(fbWidth), uint16(fbHeight)); err != nil { // #nosec G115 - framebuffer dimensions are validated on ServerInit
			return nil, protocolError("FramebufferUpdateMessage.Read",
				fmt.Sprintf("invalid rectangle %d", i), err)
		}

		decoder, ok := registry[rect.EncodingType]
		if !ok {
			return nil, unsupportedError("FramebufferUpdateMessage.Read",
				fmt.Sprintf("unsupported encoding type: %d", rect.EncodingType), nil)
		}

		if err := decoder.Decode(ctx, &rect, r); err != nil {
			return nil, encodingError("FramebufferUpdateMessage.Read", "failed to decode rectangle", err)
		}

		rects = append(rects, rect)
	}

	return &FramebufferUpdateMessage{NumRectangles: numRects, Rectangles: rects}, nil
}

// SetColorMapEntriesMessage represents a color map update from the server
// (message type 1), used when the negotiated pixel format is indexed color.
type SetColorMapEntriesMessage struct {
	FirstColor uint16
	Colors     []Color
}

// Type returns the message type identifier for color map update messages.
func (*SetColorMapEntriesMessage) Type() uint8 {
	return 1
}

// Read parses a SetColourMapEntries message (RFC 6143 Section 7.6.2): a
// padding byte, the first color index, a count, then that many 16-bit-per-
// channel RGB triples, scaled to 8 bits and installed into ctx.FB's color map.
func (*SetColorMapEntriesMessage) Read(ctx *DecodeContext, r io.Reader) (ServerMessage, error) {
	validator := newInputValidator()

	var padding [1]byte
	if _, err := io.ReadFull(r, padding[:]); err != nil {
		return nil, networkError("SetColorMapEntriesMessage.Read", "failed to read padding", err)
	}

	var result SetColorMapEntriesMessage
	if err := binary.Read(r, binary.BigEndian, &result.FirstColor); err != nil {
		return nil, networkError("SetColorMapEntriesMessage.Read", "failed to read first color index", err)
	}

	var numColors uint16
	if err := binary.Read(r, binary.BigEndian, &numColors); err != nil {
		return nil, networkError("SetColorMapEntriesMessage.Read", "failed to read number of colors", err)
	}

	if err := validator.ValidateColorMapEntries(result.FirstColor, numColors, ColorMapSize); err != nil {
		return nil, protocolError("SetColorMapEntriesMessage.Read", "invalid color map entries", err)
	}

	result.Colors = make([]Color, numColors)
	for i := uint16(0); i < numColors; i++ {
		var r16, g16, b16 uint16
		fields := []interface{}{&r16, &g16, &b16}
		for _, val := range fields {
			if err := binary.Read(r, binary.BigEndian, val); err != nil {
				return nil, networkError("SetColorMapEntriesMessage.Read", "failed to read color data", err)
			}
		}
		result.Colors[i] = Color{R: scale16To8(r16), G: scale16To8(g16), B: scale16To8(b16)}
	}

	if err := ctx.FB.ColorMap().SetRange(result.FirstColor, result.Colors); err != nil {
		return nil, protocolError("SetColorMapEntriesMessage.Read", "failed to install color map entries", err)
	}

	return &result, nil
}

// BellMessage represents an audible bell notification from the server
// (message type 2) with no payload.
type BellMessage struct{}

// Type returns the message type identifier for bell messages.
func (*BellMessage) Type() uint8 {
	return 2
}

// Read processes a bell message from the server.
func (*BellMessage) Read(*DecodeContext, io.Reader) (ServerMessage, error) {
	return &BellMessage{}, nil
}

// ServerCutTextMessage represents clipboard data from the server (message
// type 3), carried as Latin-1 text.
type ServerCutTextMessage struct {
	Text string
}

// Type returns the message type identifier for server cut text messages.
func (*ServerCutTextMessage) Type() uint8 {
	return 3
}

// Read parses a ServerCutText message (RFC 6143 Section 7.6.4): 3 padding
// bytes, a u32 text length, then that many bytes of Latin-1 text.
func (*ServerCutTextMessage) Read(ctx *DecodeContext, r io.Reader) (ServerMessage, error) {
	validator := newInputValidator()

	var padding [3]byte
	if _, err := io.ReadFull(r, padding[:]); err != nil {
		return nil, networkError("ServerCutTextMessage.Read", "failed to read padding", err)
	}

	var textLength uint32
	if err := binary.Read(r, binary.BigEndian, &textLength); err != nil {
		return nil, networkError("ServerCutTextMessage.Read", "failed to read text length", err)
	}

	if err := validator.ValidateMessageLength(textLength, MaxServerClipboardLength); err != nil {
		return nil, protocolError("ServerCutTextMessage.Read", "invalid clipboard text length", err)
	}

	textBytes := make([]uint8, textLength)
	if _, err := io.ReadFull(r, textBytes); err != nil {
		return nil, networkError("ServerCutTextMessage.Read", "failed to read text data", err)
	}

	clipboardText := string(textBytes)
	if err := validator.ValidateTextData(clipboardText, MaxServerClipboardLength); err != nil {
		clipboardText = validator.SanitizeText(clipboardText)
	}

	return &ServerCutTextMessage{Text: clipboardText}, nil
}

// serverMessageRegistry maps an RFB server message type byte to a decoder
// instance, used by the session reader loop to dispatch each message.
func serverMessageRegistry() map[uint8]ServerMessage {
	return map[uint8]ServerMessage{
		0: &FramebufferUpdateMessage{},
		1: &SetColorMapEntriesMessage{},
		2: &BellMessage{},
		3: &ServerCutTextMessage{},
	}
}
