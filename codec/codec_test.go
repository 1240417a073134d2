package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeFrame(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    []byte
	}{
		{
			name:    "payload",
			payload: []byte("hello"),
			want:    []byte{0x00, 0x00, 0x00, 0x00, 0x05, 'h', 'e', 'l', 'l', 'o'},
		},
		{
			name:    "empty payload",
			payload: nil,
			want:    []byte{0x00, 0x00, 0x00, 0x00, 0x00},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EncodeFrame(tt.payload))
		})
	}
}

func TestRoundTrip(t *testing.T) {
	payloads := [][]byte{
		[]byte("hello"),
		{},
		bytes.Repeat([]byte{0xab}, 70000), // larger than one length byte can express
	}
	for _, p := range payloads {
		var d Decoder
		frames, err := d.Decode(EncodeFrame(p))
		require.NoError(t, err)
		require.Len(t, frames, 1)
		assert.Equal(t, p, frames[0])
		assert.NoError(t, d.Close())
	}
}

func TestDecodeChunkBoundaryIndependence(t *testing.T) {
	payloads := [][]byte{[]byte("first"), {}, []byte("third message")}
	var wire []byte
	for _, p := range payloads {
		wire = append(wire, EncodeFrame(p)...)
	}

	// Splitting the wire bytes at any boundary must yield the identical
	// frame sequence.
	for split := 0; split <= len(wire); split++ {
		var d Decoder
		frames, err := d.Decode(wire[:split])
		require.NoError(t, err)
		rest, err := d.Decode(wire[split:])
		require.NoError(t, err)
		frames = append(frames, rest...)
		require.NoError(t, d.Close())

		require.Len(t, frames, len(payloads), "split at %d", split)
		for i, p := range payloads {
			assert.Equal(t, p, frames[i], "split at %d, frame %d", split, i)
		}
	}

	// One byte at a time.
	var d Decoder
	var frames [][]byte
	for _, b := range wire {
		got, err := d.Decode([]byte{b})
		require.NoError(t, err)
		frames = append(frames, got...)
	}
	require.NoError(t, d.Close())
	require.Len(t, frames, len(payloads))
}

func TestDecodeManyFramesInOneChunk(t *testing.T) {
	payloads := [][]byte{[]byte("a"), []byte("bb"), []byte("ccc")}
	var wire []byte
	for _, p := range payloads {
		wire = append(wire, EncodeFrame(p)...)
	}

	var d Decoder
	frames, err := d.Decode(wire)
	require.NoError(t, err)
	require.Len(t, frames, 3, "all complete frames must be drained from a single chunk")
	for i, p := range payloads {
		assert.Equal(t, p, frames[i])
	}
	assert.Zero(t, d.Buffered())
}

func TestDecodeCompressedFrame(t *testing.T) {
	wire := EncodeFrame([]byte("data"))
	wire[0] = 0x01

	var d Decoder
	frames, err := d.Decode(wire)
	require.ErrorIs(t, err, ErrCompressed)
	assert.Empty(t, frames)
}

func TestDecodeInvalidFlag(t *testing.T) {
	wire := EncodeFrame([]byte("data"))
	wire[0] = 0x02

	var d Decoder
	frames, err := d.Decode(wire)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCompressed)
	assert.Empty(t, frames)
}

func TestDecodeBadFlagAfterGoodFrames(t *testing.T) {
	wire := EncodeFrame([]byte("ok"))
	bad := EncodeFrame([]byte("nope"))
	bad[0] = 0x02
	wire = append(wire, bad...)

	// Frames decoded before the bad one are still delivered.
	var d Decoder
	frames, err := d.Decode(wire)
	require.Error(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, []byte("ok"), frames[0])
}

func TestDecodeTruncated(t *testing.T) {
	// Header claims 100 bytes, only 10 follow.
	wire := []byte{0x00, 0x00, 0x00, 0x00, 100}
	wire = append(wire, bytes.Repeat([]byte{0x01}, 10)...)

	var d Decoder
	frames, err := d.Decode(wire)
	require.NoError(t, err)
	assert.Empty(t, frames)
	require.ErrorIs(t, d.Close(), ErrTruncated)
}

func TestDecodePartialHeader(t *testing.T) {
	var d Decoder
	frames, err := d.Decode([]byte{0x00, 0x00})
	require.NoError(t, err)
	assert.Empty(t, frames)
	require.ErrorIs(t, d.Close(), ErrTruncated)
}
