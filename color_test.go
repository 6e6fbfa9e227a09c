// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package rfb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColor_ARGB_AlwaysOpaque(t *testing.T) {
	c := Color{R: 0x10, G: 0x20, B: 0x30}
	assert.Equal(t, uint32(0xFF102030), c.ARGB())
}

func TestScale16To8(t *testing.T) {
	assert.EqualValues(t, 0, scale16To8(0))
	assert.EqualValues(t, 255, scale16To8(65535))
	assert.EqualValues(t, 127, scale16To8(32639))
}

func TestColorMap_DefaultGrayscale(t *testing.T) {
	cm := NewColorMap()
	for _, i := range []uint8{0, 1, 128, 255} {
		c := cm.Get(i)
		assert.Equal(t, i, c.R)
		assert.Equal(t, i, c.G)
		assert.Equal(t, i, c.B)
	}
}

func TestColorMap_SetRange_BoundsChecked(t *testing.T) {
	cm := NewColorMap()

	err := cm.SetRange(254, []Color{{R: 1}, {G: 2}, {B: 3}})
	require.Error(t, err)

	colors := []Color{{R: 9, G: 9, B: 9}, {R: 8, G: 8, B: 8}}
	require.NoError(t, cm.SetRange(254, colors))
	assert.Equal(t, colors[0], cm.Get(254))
	assert.Equal(t, colors[1], cm.Get(255))
}

func TestColorMap_GetRange(t *testing.T) {
	cm := NewColorMap()
	colors, err := cm.GetRange(0, 3)
	require.NoError(t, err)
	require.Len(t, colors, 3)
	assert.Equal(t, Color{R: 0, G: 0, B: 0}, colors[0])

	_, err = cm.GetRange(255, 2)
	require.Error(t, err)
}

func TestColorMap_CopyIsIndependent(t *testing.T) {
	cm := NewColorMap()
	clone := cm.Copy()
	cm.Set(0, Color{R: 255, G: 255, B: 255})
	assert.NotEqual(t, cm.Get(0), clone.Get(0))
}

func TestColorMap_ToFromArray(t *testing.T) {
	cm := NewColorMap()
	arr := cm.ToArray()
	arr[0] = Color{R: 1, G: 2, B: 3}

	other := NewColorMap()
	other.FromArray(arr)
	assert.Equal(t, Color{R: 1, G: 2, B: 3}, other.Get(0))
}
