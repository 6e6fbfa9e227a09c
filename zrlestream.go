// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package rfb

import (
	"encoding/binary"
	"io"

	"github.com/klauspost/compress/zlib"
)

const maxZRLECompressedLen = 64 * 1024 * 1024

// zrleStream is the ZRLE substream: a zlib inflate session initialized once
// per connection and reused across every ZRLE rectangle for the life of the
// session. Each rectangle is preceded on the outer stream by a big-endian
// u32 compressed length; zrleStream reads exactly that many compressed
// bytes and exposes the inflated output to the tile decoder.
//
// The persistent zlib.Reader is fed through an io.Pipe rather than being
// closed or Reset between rectangles: RFC 6143 treats the zlib stream as
// one continuous stream for the whole session, so resetting it per
// rectangle (as some reference VNC clients do) would discard the inflate
// dictionary and desync the decoder on the very next compressed tile.
type zrleStream struct {
	pr      *io.PipeReader
	pw      *io.PipeWriter
	zr      io.Reader
	copyErr chan error
}

func newZRLEStream() *zrleStream {
	return &zrleStream{}
}

// BeginRect reads the u32 compressed-length prefix for one ZRLE rectangle
// from outer and arranges for exactly that many compressed bytes to feed
// the persistent inflate stream.
func (z *zrleStream) BeginRect(outer io.Reader) error {
	var compressedLen uint32
	if err := binary.Read(outer, binary.BigEndian, &compressedLen); err != nil {
		return encodingError("zrleStream.BeginRect", "failed to read compressed length", err)
	}
	if compressedLen > maxZRLECompressedLen {
		return encodingError("zrleStream.BeginRect", "compressed length exceeds sanity cap", nil)
	}

	if z.pr == nil {
		z.pr, z.pw = io.Pipe()
	}

	errCh := make(chan error, 1)
	z.copyErr = errCh
	go func() {
		_, err := io.CopyN(z.pw, outer, int64(compressedLen))
		errCh <- err
	}()

	if z.zr == nil {
		zr, err := zlib.NewReader(z.pr)
		if err != nil {
			return encodingError("zrleStream.BeginRect", "failed to initialize zlib stream", err)
		}
		z.zr = zr
	}

	return nil
}

// ReadByte reads a single inflated byte.
func (z *zrleStream) ReadByte() (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(z.zr, b[:]); err != nil {
		return 0, encodingError("zrleStream.ReadByte", "failed to read from inflate stream", err)
	}
	return b[0], nil
}

// ReadFull reads len(buf) inflated bytes into buf.
func (z *zrleStream) ReadFull(buf []byte) error {
	if _, err := io.ReadFull(z.zr, buf); err != nil {
		return encodingError("zrleStream.ReadFull", "failed to read from inflate stream", err)
	}
	return nil
}

// EndRect waits for the compressed-byte copy goroutine started by
// BeginRect to finish, surfacing any I/O error it hit.
func (z *zrleStream) EndRect() error {
	if z.copyErr == nil {
		return nil
	}
	err := <-z.copyErr
	z.copyErr = nil
	if err != nil {
		return networkError("zrleStream.EndRect", "failed to copy compressed rectangle data", err)
	}
	return nil
}

// Close releases the pipe. Safe to call on a stream that never decoded a
// ZRLE rectangle.
func (z *zrleStream) Close() {
	if z.pw != nil {
		_ = z.pw.Close()
	}
	if z.pr != nil {
		_ = z.pr.Close()
	}
}
