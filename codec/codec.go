// Package codec implements the gRPC-Web wire framing.
//
// Every frame on the wire is a 5-byte header followed by the payload:
//   - 1 byte: compression flag (0 = uncompressed, 1 = compressed)
//   - 4 bytes: big-endian uint32 payload length
//   - N bytes: payload
//
// The encoder never produces compressed frames. The decoder recognizes the
// compressed flag but refuses it: there is no decompression support, and
// silently skipping such a frame would desynchronize the stream.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderSize is the size of the frame header: 1 byte for the compression
// flag plus 4 bytes for the payload length.
const HeaderSize = 5

const (
	flagUncompressed byte = 0x00
	flagCompressed   byte = 0x01
)

var (
	// ErrCompressed is returned when a frame arrives with the compression
	// flag set. Compressed payloads are not supported.
	ErrCompressed = errors.New("compressed payload unsupported")

	// ErrTruncated is returned by Close when the stream ended in the middle
	// of a frame.
	ErrTruncated = errors.New("truncated frame")
)

// EncodeFrame frames a payload for the wire. Any payload is valid,
// including an empty one.
func EncodeFrame(payload []byte) []byte {
	buf := make([]byte, HeaderSize+len(payload))
	buf[0] = flagUncompressed
	binary.BigEndian.PutUint32(buf[1:HeaderSize], uint32(len(payload)))
	copy(buf[HeaderSize:], payload)
	return buf
}

// Decoder reassembles frames from a chunked byte stream. Chunks have no
// alignment relationship to frame boundaries: a chunk may hold a fraction
// of a frame or several frames at once. Bytes that do not yet form a
// complete frame are carried over to the next call.
//
// A Decoder is not safe for concurrent use. The zero value is ready to use.
type Decoder struct {
	buf []byte
}

// Decode appends chunk to the carry-over buffer and returns every complete
// frame payload it now holds, in wire order. It keeps extracting until the
// remaining bytes cannot form another full frame, so a single chunk may
// yield zero, one, or many frames.
//
// A frame with an unknown compression flag, or with the compressed flag
// set, is a fatal error; frames decoded before it are still returned.
func (d *Decoder) Decode(chunk []byte) ([][]byte, error) {
	d.buf = append(d.buf, chunk...)
	var frames [][]byte
	for len(d.buf) >= HeaderSize {
		switch flag := d.buf[0]; flag {
		case flagUncompressed:
		case flagCompressed:
			return frames, fmt.Errorf("frame flag 0x01: %w", ErrCompressed)
		default:
			return frames, fmt.Errorf("invalid compression flag 0x%02x", flag)
		}
		length := binary.BigEndian.Uint32(d.buf[1:HeaderSize])
		end := HeaderSize + int(length)
		if len(d.buf) < end {
			break
		}
		payload := make([]byte, length)
		copy(payload, d.buf[HeaderSize:end])
		frames = append(frames, payload)
		d.buf = d.buf[end:]
	}
	return frames, nil
}

// Buffered returns the number of carried-over bytes awaiting the rest of
// a frame.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Close checks that the stream ended on a frame boundary. It must be
// called once the byte stream is exhausted; leftover bytes mean the peer
// ended the stream mid-frame.
func (d *Decoder) Close() error {
	if n := len(d.buf); n > 0 {
		return fmt.Errorf("stream ended with %d leftover bytes: %w", n, ErrTruncated)
	}
	return nil
}
