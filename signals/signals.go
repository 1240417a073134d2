// Package signals provides combinators over context cancellation: Race,
// which fires as soon as any input context is done, and All, which fires
// only once every input is. Race is how a call's deadline is merged with
// the caller's own cancellation into one effective signal.
package signals

import "context"

// Race returns a context that is cancelled as soon as the first of ctxs is
// done, carrying that context's cancellation cause. Once the first input
// fires (or the returned cancel is called), the watchers on the remaining
// inputs are released.
//
// Values are inherited from the first input, if any. The returned cancel
// must be called on every exit path to release the watchers.
func Race(ctxs ...context.Context) (context.Context, context.CancelCauseFunc) {
	out, cancel := context.WithCancelCause(valueParent(ctxs))
	for _, ctx := range ctxs {
		ctx := ctx
		go func() {
			select {
			case <-ctx.Done():
				cancel(context.Cause(ctx))
			case <-out.Done():
			}
		}()
	}
	return out, cancel
}

// All returns a context that is cancelled only once every one of ctxs is
// done, carrying the cause of the last input it observed. Calling the
// returned cancel releases the watcher early.
//
// Values are inherited from the first input, if any.
func All(ctxs ...context.Context) (context.Context, context.CancelCauseFunc) {
	out, cancel := context.WithCancelCause(valueParent(ctxs))
	go func() {
		var last context.Context
		for _, ctx := range ctxs {
			select {
			case <-ctx.Done():
				last = ctx
			case <-out.Done():
				return
			}
		}
		if last == nil {
			cancel(nil)
			return
		}
		cancel(context.Cause(last))
	}()
	return out, cancel
}

func valueParent(ctxs []context.Context) context.Context {
	if len(ctxs) == 0 {
		return context.Background()
	}
	return context.WithoutCancel(ctxs[0])
}
