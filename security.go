// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package rfb

import (
	"crypto/des" // #nosec G502 - DES is required by VNC protocol specification (RFC 6143)
	"fmt"
)

// VNC Authentication (RFC 6143 §7.2.2) is DES-based with an 8-character,
// unsalted password and a fixed 16-byte challenge. DES is weak by modern
// standards; this module implements it because the wire protocol requires
// it, not because it's recommended. Hosts that need confidentiality should
// tunnel the connection (SSH, TLS) rather than rely on this handshake.

// VNC security constants.
const (
	VNCChallengeSize     = 16
	DESKeySize           = 8
	VNCMaxPasswordLength = 8
)

// zeroize overwrites data in place. It is a best-effort measure against a
// password or derived key lingering in a buffer the caller is done with; it
// cannot stop the Go runtime from having copied the bytes elsewhere (stack
// growth, GC compaction) before the caller got a chance to clear them.
func zeroize(data []byte) {
	for i := range data {
		data[i] = 0
	}
}

// clearedString returns "" after zeroizing a throwaway copy of s. Go strings
// are immutable, so this only prevents reuse of a copy the caller holds; the
// original backing array may persist until the garbage collector reclaims it.
func clearedString(s string) string {
	if s != "" {
		zeroize([]byte(s))
	}
	return ""
}

// vncDESCipher implements the VNC Authentication DES challenge-response.
type vncDESCipher struct{}

func newSecureDESCipher() *vncDESCipher {
	return &vncDESCipher{}
}

// EncryptVNCChallenge encrypts a 16-byte server challenge with a DES key
// derived from password, per RFC 6143 §7.2.2: the password (truncated or
// zero-padded to 8 bytes) has each byte's bits reversed to form the DES key,
// which then encrypts the challenge as two independent 8-byte ECB blocks.
func (c *vncDESCipher) EncryptVNCChallenge(password string, challenge []byte) ([]byte, error) {
	if len(challenge) != VNCChallengeSize {
		return nil, validationError("vncDESCipher.EncryptVNCChallenge",
			fmt.Sprintf("challenge must be exactly %d bytes", VNCChallengeSize), nil)
	}

	passwordBytes := []byte(password)
	defer zeroize(passwordBytes)

	keyBytes := make([]byte, DESKeySize)
	defer zeroize(keyBytes)

	keyLen := len(passwordBytes)
	if keyLen > VNCMaxPasswordLength {
		keyLen = VNCMaxPasswordLength
	}
	for i := 0; i < DESKeySize; i++ {
		if i < keyLen {
			keyBytes[i] = c.reverseBits(passwordBytes[i])
		}
	}

	block, err := des.NewCipher(keyBytes) // #nosec G405 - DES is required by VNC protocol specification
	if err != nil {
		return nil, authenticationError("vncDESCipher.EncryptVNCChallenge", "failed to create DES cipher", err)
	}

	result := make([]byte, VNCChallengeSize)
	block.Encrypt(result[0:DESKeySize], challenge[0:DESKeySize])
	block.Encrypt(result[DESKeySize:VNCChallengeSize], challenge[DESKeySize:VNCChallengeSize])

	return result, nil
}

// reverseBits reverses the bit order of a byte via lookup table, matching
// the VNC-specific (backwards relative to standard DES key conventions) bit
// ordering RFC 6143 requires for the password-derived key.
func (c *vncDESCipher) reverseBits(b byte) byte {
	return bitReverseTable[b]
}

var bitReverseTable = [256]byte{
	0x00, 0x80, 0x40, 0xc0, 0x20, 0xa0, 0x60, 0xe0,
	0x10, 0x90, 0x50, 0xd0, 0x30, 0xb0, 0x70, 0xf0,
	0x08, 0x88, 0x48, 0xc8, 0x28, 0xa8, 0x68, 0xe8,
	0x18, 0x98, 0x58, 0xd8, 0x38, 0xb8, 0x78, 0xf8,
	0x04, 0x84, 0x44, 0xc4, 0x24, 0xa4, 0x64, 0xe4,
	0x14, 0x94, 0x54, 0xd4, 0x34, 0xb4, 0x74, 0xf4,
	0x0c, 0x8c, 0x4c, 0xcc, 0x2c, 0xac, 0x6c, 0xec,
	0x1c, 0x9c, 0x5c, 0xdc, 0x3c, 0xbc, 0x7c, 0xfc,
	0x02, 0x82, 0x42, 0xc2, 0x22, 0xa2, 0x62, 0xe2,
	0x12, 0x92, 0x52, 0xd2, 0x32, 0xb2, 0x72, 0xf2,
	0x0a, 0x8a, 0x4a, 0xca, 0x2a, 0xaa, 0x6a, 0xea,
	0x1a, 0x9a, 0x5a, 0xda, 0x3a, 0xba, 0x7a, 0xfa,
	0x06, 0x86, 0x46, 0xc6, 0x26, 0xa6, 0x66, 0xe6,
	0x16, 0x96, 0x56, 0xd6, 0x36, 0xb6, 0x76, 0xf6,
	0x0e, 0x8e, 0x4e, 0xce, 0x2e, 0xae, 0x6e, 0xee,
	0x1e, 0x9e, 0x5e, 0xde, 0x3e, 0xbe, 0x7e, 0xfe,
	0x01, 0x81, 0x41, 0xc1, 0x21, 0xa1, 0x61, 0xe1,
	0x11, 0x91, 0x51, 0xd1, 0x31, 0xb1, 0x71, 0xf1,
	0x09, 0x89, 0x49, 0xc9, 0x29, 0xa9, 0x69, 0xe9,
	0x19, 0x99, 0x59, 0xd9, 0x39, 0xb9, 0x79, 0xf9,
	0x05, 0x85, 0x45, 0xc5, 0x25, 0xa5, 0x65, 0xe5,
	0x15, 0x95, 0x55, 0xd5, 0x35, 0xb5, 0x75, 0xf5,
	0x0d, 0x8d, 0x4d, 0xcd, 0x2d, 0xad, 0x6d, 0xed,
	0x1d, 0x9d, 0x5d, 0xdd, 0x3d, 0xbd, 0x7d, 0xfd,
	0x03, 0x83, 0x43, 0xc3, 0x23, 0xa3, 0x63, 0xe3,
	0x13, 0x93, 0x53, 0xd3, 0x33, 0xb3, 0x73, 0xf3,
	0x0b, 0x8b, 0x4b, 0xcb, 0x2b, 0xab, 0x6b, 0xeb,
	0x1b, 0x9b, 0x5b, 0xdb, 0x3b, 0xbb, 0x7b, 0xfb,
	0x07, 0x87, 0x47, 0xc7, 0x27, 0xa7, 0x67, 0xe7,
	0x17, 0x97, 0x57, 0xd7, 0x37, 0xb7, 0x77, 0xf7,
	0x0f, 0x8f, 0x4f, 0xcf, 0x2f, 0xaf, 0x6f, 0xef,
	0x1f, 0x9f, 0x5f, 0xdf, 0x3f, 0xbf, 0x7f, 0xff,
}

// protectedBuffer is a zeroed byte buffer meant to hold a challenge or
// response for the lifetime of one handshake step; Clear wipes it rather
// than leaving that to the garbage collector's schedule.
type protectedBuffer struct {
	data []byte
}

// newProtectedBuffer allocates a zeroed buffer of size bytes. Callers
// should defer Clear() immediately.
func newProtectedBuffer(size int) *protectedBuffer {
	return &protectedBuffer{data: make([]byte, size)}
}

// Data returns the underlying buffer.
func (b *protectedBuffer) Data() []byte {
	return b.data
}

// Clear wipes and releases the buffer. Safe to call more than once.
func (b *protectedBuffer) Clear() {
	if b.data != nil {
		zeroize(b.data)
		b.data = nil
	}
}

// Size returns the buffer length, or 0 if already cleared.
func (b *protectedBuffer) Size() int {
	return len(b.data)
}

// Copy copies src into the buffer. Fails if the buffer was cleared or src
// doesn't fit.
func (b *protectedBuffer) Copy(src []byte) error {
	if b.data == nil {
		return validationError("protectedBuffer.Copy", "buffer has been cleared", nil)
	}
	if len(src) > len(b.data) {
		return validationError("protectedBuffer.Copy", "source data larger than buffer", nil)
	}
	copy(b.data, src)
	return nil
}
