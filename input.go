// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package rfb

// ButtonMask represents the state of pointer buttons in a PointerEvent.
// Multiple bits may be set simultaneously to represent buttons held down
// together (e.g. during a drag).
type ButtonMask uint8

// Button mask constants, matching the bit layout of the wire PointerEvent
// button_mask field.
const (
	ButtonLeft     ButtonMask = 1 << 0
	ButtonMiddle   ButtonMask = 1 << 1
	ButtonRight    ButtonMask = 1 << 2
	ButtonWheelUp  ButtonMask = 1 << 3
	ButtonWheelDown ButtonMask = 1 << 4
)

// InputPolicy governs whether key and pointer events originating from the
// host are forwarded to the server. Clipboard text always forwards
// regardless of policy.
type InputPolicy interface {
	// AllowKeyEvent reports whether a KeyEvent should be forwarded.
	AllowKeyEvent() bool
	// AllowPointerEvent reports whether a PointerEvent should be forwarded.
	AllowPointerEvent() bool
}

// PolicyFull forwards all input to the server. This is the default policy.
type PolicyFull struct{}

// AllowKeyEvent always returns true.
func (PolicyFull) AllowKeyEvent() bool { return true }

// AllowPointerEvent always returns true.
func (PolicyFull) AllowPointerEvent() bool { return true }

// PolicyViewOnly drops key and pointer events, keeping the session usable
// purely as a read-only viewer. Clipboard text still forwards.
type PolicyViewOnly struct{}

// AllowKeyEvent always returns false.
func (PolicyViewOnly) AllowKeyEvent() bool { return false }

// AllowPointerEvent always returns false.
func (PolicyViewOnly) AllowPointerEvent() bool { return false }
