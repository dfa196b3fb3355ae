package engine

// Deferred execution for schedule_action.  The dispatcher installs
// its own Delayer so deferred actions die with it on shutdown; the
// default detaches a plain timer.

import (
	"context"
	"time"
)

// Delayer runs a function once after a delay.
type Delayer interface {
	After(d time.Duration, f func(ctx context.Context))
}

// GoDelayer is the default Delayer: a detached time.AfterFunc.
type GoDelayer struct{}

func (GoDelayer) After(d time.Duration, f func(ctx context.Context)) {
	time.AfterFunc(d, func() {
		f(context.Background())
	})
}

func (ex *Executor) delayer() Delayer {
	if ex.Delay != nil {
		return ex.Delay
	}
	return GoDelayer{}
}
