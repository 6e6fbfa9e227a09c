// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package rfb

import (
	"encoding/binary"
	"io"
)

// Hextile encoding constants, per RFC 6143 Section 7.7.4.
const (
	HextileRaw                 = 1
	HextileBackgroundSpecified = 2
	HextileForegroundSpecified = 4
	HextileAnySubrects         = 8
	HextileSubrectsColoured    = 16

	HextileTileSize    = 16
	MaxSubrectsPerTile = 255
)

// HextileEncoding represents the Hextile encoding defined in RFC 6143
// Section 7.7.4: the rectangle is divided into 16x16 tiles, each carrying a
// subencoding byte that selects raw pixels or a background/foreground/
// subrect scheme.
type HextileEncoding struct{}

// Type returns the encoding type identifier for Hextile encoding.
func (*HextileEncoding) Type() int32 {
	return EncodingHextile
}

// Decode walks the rectangle's 16x16 tiles row-major, painting each
// directly into the framebuffer. Background and foreground colors persist
// across tiles within the rectangle when a tile's subencoding does not
// override them.
func (*HextileEncoding) Decode(ctx *DecodeContext, rect *Rectangle, r io.Reader) error {
	pixels := NewPixelReader(ctx.FB.PixelFormat(), ctx.FB.ColorMap())

	tilesX := (rect.Width + HextileTileSize - 1) / HextileTileSize
	tilesY := (rect.Height + HextileTileSize - 1) / HextileTileSize

	const maxTiles = 100000
	if int(tilesX)*int(tilesY) > maxTiles {
		return encodingError("HextileEncoding.Decode", "too many tiles for rectangle", nil)
	}

	var background, foreground uint32

	for tileY := uint16(0); tileY < tilesY; tileY++ {
		tileHeight := uint16(HextileTileSize)
		if tileY*HextileTileSize+HextileTileSize > rect.Height {
			tileHeight = rect.Height - tileY*HextileTileSize
		}

		for tileX := uint16(0); tileX < tilesX; tileX++ {
			tileWidth := uint16(HextileTileSize)
			if tileX*HextileTileSize+HextileTileSize > rect.Width {
				tileWidth = rect.Width - tileX*HextileTileSize
			}

			originX := int(rect.X) + int(tileX)*HextileTileSize
			originY := int(rect.Y) + int(tileY)*HextileTileSize

			var subencoding uint8
			if err := binary.Read(r, binary.BigEndian, &subencoding); err != nil {
				return encodingError("HextileEncoding.Decode", "failed to read tile subencoding", err)
			}

			if subencoding&HextileRaw != 0 {
				for row := 0; row < int(tileHeight); row++ {
					for col := 0; col < int(tileWidth); col++ {
						pixel, err := pixels.ReadARGB(r)
						if err != nil {
							return encodingError("HextileEncoding.Decode", "failed to read raw tile pixel", err)
						}
						ctx.FB.Set(originX+col, originY+row, pixel)
					}
				}
				continue
			}

			if subencoding&HextileBackgroundSpecified != 0 {
				pixel, err := pixels.ReadARGB(r)
				if err != nil {
					return encodingError("HextileEncoding.Decode", "failed to read background color", err)
				}
				background = pixel
			}
			if err := ctx.FB.FillRect(originX, originY, int(tileWidth), int(tileHeight), background); err != nil {
				return encodingError("HextileEncoding.Decode", "failed to fill tile background", err)
			}

			if subencoding&HextileForegroundSpecified != 0 {
				pixel, err := pixels.ReadARGB(r)
				if err != nil {
					return encodingError("HextileEncoding.Decode", "failed to read foreground color", err)
				}
				foreground = pixel
			}

			if subencoding&HextileAnySubrects == 0 {
				continue
			}

			var numSubrects uint8
			if err := binary.Read(r, binary.BigEndian, &numSubrects); err != nil {
				return encodingError("HextileEncoding.Decode", "failed to read subrectangle count", err)
			}

			for i := uint8(0); i < numSubrects; i++ {
				subColor := foreground
				if subencoding&HextileSubrectsColoured != 0 {
					pixel, err := pixels.ReadARGB(r)
					if err != nil {
						return encodingError("HextileEncoding.Decode", "failed to read subrectangle color", err)
					}
					subColor = pixel
				}

				var xyData, whData uint8
				if err := binary.Read(r, binary.BigEndian, &xyData); err != nil {
					return encodingError("HextileEncoding.Decode", "failed to read subrectangle position", err)
				}
				if err := binary.Read(r, binary.BigEndian, &whData); err != nil {
					return encodingError("HextileEncoding.Decode", "failed to read subrectangle dimensions", err)
				}

				subX := (xyData >> 4) & 0x0F
				subY := xyData & 0x0F
				subW := ((whData >> 4) & 0x0F) + 1
				subH := (whData & 0x0F) + 1

				if uint16(subX)+uint16(subW) > tileWidth || uint16(subY)+uint16(subH) > tileHeight {
					return encodingError("HextileEncoding.Decode", "subrectangle extends outside tile bounds", nil)
				}

				if err := ctx.FB.FillRect(originX+int(subX), originY+int(subY), int(subW), int(subH), subColor); err != nil {
					return encodingError("HextileEncoding.Decode", "failed to paint subrectangle", err)
				}
			}
		}
	}

	return nil
}
