package signals

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func awaitDone(t *testing.T, ctx context.Context) {
	t.Helper()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context never fired")
	}
}

func requireNotDone(t *testing.T, ctx context.Context) {
	t.Helper()
	select {
	case <-ctx.Done():
		t.Fatal("context fired early")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestRaceFirstWins(t *testing.T) {
	a, cancelA := context.WithCancel(context.Background())
	b, cancelB := context.WithCancel(context.Background())
	defer cancelB()

	out, cancel := Race(a, b)
	defer cancel(nil)

	requireNotDone(t, out)

	cancelA()
	awaitDone(t, out)
	require.ErrorIs(t, context.Cause(out), context.Canceled)

	// the loser firing afterwards has no further effect
	cancelB()
	require.ErrorIs(t, context.Cause(out), context.Canceled)
}

func TestRacePropagatesCause(t *testing.T) {
	cause := errors.New("operator hung up")
	a, cancelA := context.WithCancelCause(context.Background())
	b := context.Background()

	out, cancel := Race(a, b)
	defer cancel(nil)

	cancelA(cause)
	awaitDone(t, out)
	assert.ErrorIs(t, context.Cause(out), cause)
}

func TestRaceDeadline(t *testing.T) {
	d, cancelD := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancelD()

	out, cancel := Race(context.Background(), d)
	defer cancel(nil)

	awaitDone(t, out)
	assert.ErrorIs(t, context.Cause(out), context.DeadlineExceeded)
}

func TestRaceInheritsValues(t *testing.T) {
	type key struct{}
	parent := context.WithValue(context.Background(), key{}, "v")

	out, cancel := Race(parent, context.Background())
	defer cancel(nil)

	assert.Equal(t, "v", out.Value(key{}))
}

func TestAllWaitsForEveryInput(t *testing.T) {
	a, cancelA := context.WithCancel(context.Background())
	b, cancelB := context.WithCancel(context.Background())

	out, cancel := All(a, b)
	defer cancel(nil)

	requireNotDone(t, out)

	cancelA()
	requireNotDone(t, out)

	cancelB()
	awaitDone(t, out)
}

func TestAllCancelReleasesEarly(t *testing.T) {
	a, cancelA := context.WithCancel(context.Background())
	defer cancelA()

	out, cancel := All(a, context.Background())
	cancel(errors.New("teardown"))
	awaitDone(t, out)
}
