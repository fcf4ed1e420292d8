// Package wire implements the on-the-wire framing between camera clients
// and the detection server: each frame is exactly 3·H·W·4 bytes of
// host-endian IEEE-754 float32 in channel-major planar order, frames are
// back-to-back with no header, and in split mode each record is
// frame_bytes||prep_bytes. The read/write-all discipline and the
// io.EOF-vs-io.ErrUnexpectedEOF classification mirror a TLV wire codec
// elsewhere in this ecosystem, retargeted from CAN-frame TLVs to
// fixed-size tensors.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// ErrShortWrite is returned when a write-all loop cannot make progress.
var ErrShortWrite = errors.New("wire: short write")

// ErrTruncatedFrame is returned when a read ends mid-frame: a clean
// end-of-stream must land exactly on a frame boundary.
var ErrTruncatedFrame = errors.New("wire: truncated frame")

// FrameBytes returns the wire size in bytes of one frame at the given
// target dimensions: channels(3) * h * w * sizeof(float32).
func FrameBytes(h, w int) int { return 3 * h * w * 4 }

// WriteAll writes p to w in full, retrying on short writes, exactly as the
// source's writen() retries on partial progress. Any error other than a
// short write is returned immediately.
func WriteAll(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}

// EncodeFrame packs a planar float32 tensor into its wire byte
// representation (host-endian, 4 bytes per value).
func EncodeFrame(data []float32) []byte {
	buf := make([]byte, len(data)*4)
	for i, v := range data {
		binary.NativeEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// WriteFrame encodes and writes one tensor using the write-all discipline.
func WriteFrame(w io.Writer, data []float32) error {
	return WriteAll(w, EncodeFrame(data))
}

// ReadFrame reads exactly n bytes worth of floats (n must be a multiple of
// 4, typically wire.FrameBytes(h,w) or a prep_size) from r.
//
// A clean end-of-stream (zero bytes read right at the frame boundary)
// reports io.EOF. Any data read followed by a failure to complete the
// frame is ErrTruncatedFrame, matching the source's "EOF mid-frame is a
// fatal read error" rule (spec: EOF mid-frame is fatal for that session
// only, not the whole process).
func ReadFrame(r io.Reader, n int) ([]float32, error) {
	if n%4 != 0 {
		return nil, fmt.Errorf("wire: frame byte length %d not a multiple of 4", n)
	}
	buf := make([]byte, n)
	read, err := io.ReadFull(r, buf)
	if err != nil {
		if errors.Is(err, io.EOF) && read == 0 {
			return nil, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: got %d of %d bytes", ErrTruncatedFrame, read, n)
		}
		return nil, err
	}
	out := make([]float32, n/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.NativeEndian.Uint32(buf[i*4:]))
	}
	return out, nil
}
