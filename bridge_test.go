package grpcweb

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceFromSlice(t *testing.T) {
	src := SourceFromSlice([]byte("a"), []byte("b"))

	m, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), m)

	m, err = src.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), m)

	_, err = src.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestSourceFromSliceCancelled(t *testing.T) {
	src := SourceFromSlice([]byte("a"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := src.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSourceFromChan(t *testing.T) {
	ch := make(chan any, 2)
	ch <- []byte("x")
	close(ch)
	src := SourceFromChan(ch)

	m, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), m)

	_, err = src.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestSourceFromChanCancelled(t *testing.T) {
	src := SourceFromChan(make(chan any))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := src.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
