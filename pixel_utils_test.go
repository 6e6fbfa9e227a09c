// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package rfb

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPixelReader_ReadARGB_TrueColorBigEndian(t *testing.T) {
	format := PixelFormat{
		BPP: 32, Depth: 24, BigEndian: true, TrueColor: true,
		RedMax: 255, GreenMax: 255, BlueMax: 255,
		RedShift: 16, GreenShift: 8, BlueShift: 0,
	}
	reader := NewPixelReader(format, NewColorMap())

	pixel, err := reader.ReadARGB(bytes.NewReader([]byte{0x00, 0x10, 0x20, 0x30}))
	require.NoError(t, err)
	assert.Equal(t, Color{R: 0x10, G: 0x20, B: 0x30}.ARGB(), pixel)
}

func TestPixelReader_ReadARGB_TrueColorLittleEndian(t *testing.T) {
	format := *PixelFormat32BitRGBA // BigEndian: false
	reader := NewPixelReader(format, NewColorMap())

	// Little-endian word 0x00102030 read from bytes [30 20 10 00].
	pixel, err := reader.ReadARGB(bytes.NewReader([]byte{0x30, 0x20, 0x10, 0x00}))
	require.NoError(t, err)
	assert.Equal(t, Color{R: 0x10, G: 0x20, B: 0x30}.ARGB(), pixel)
}

func TestPixelReader_ReadARGB_Indexed(t *testing.T) {
	format := *PixelFormat8BitIndexed
	cm := NewColorMap()
	cm.Set(42, Color{R: 1, G: 2, B: 3})

	reader := NewPixelReader(format, cm)
	pixel, err := reader.ReadARGB(bytes.NewReader([]byte{42}))
	require.NoError(t, err)
	assert.Equal(t, Color{R: 1, G: 2, B: 3}.ARGB(), pixel)
}

func TestExpandChannel(t *testing.T) {
	assert.EqualValues(t, 255, expandChannel(0xFFFFFFFF, 0, 255))
	assert.EqualValues(t, 0, expandChannel(0, 0, 255))
	assert.EqualValues(t, 0, expandChannel(0xFF, 8, 0))
}

func TestCalculatePixelDataSize(t *testing.T) {
	format := PixelFormat{BPP: 32}
	assert.Equal(t, 4*10*5, calculatePixelDataSize(10, 5, format))
}
