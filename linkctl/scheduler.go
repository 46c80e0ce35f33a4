package linkctl

import (
	"fmt"
	"time"
)

// The controller is a single-threaded cooperative event loop (spec.md §5):
// every handler — transport-inbound, ping tick, beacon tick, event-bus
// message, ping response, switch-outbound — runs to completion on this
// goroutine. Dispatch/DispatchWait/ScheduleTask/RepeatTask are the only
// ways onto it, mirroring the teacher's state.Env scheduling helpers.

type dispatchResult struct {
	val any
	err error
}

// Dispatch queues fun to run on the loop goroutine without waiting. Once
// the controller's context is cancelled, fun is dropped instead of
// blocking forever on a loop that no longer runs.
func (c *Controller) Dispatch(fun func(*Controller) error) {
	defer func() {
		if r := recover(); r != nil {
			c.env.Cancel(fmt.Errorf("panic: %v", r))
		}
	}()
	select {
	case c.dispatch <- fun:
	case <-c.env.Context.Done():
	}
}

// DispatchWait queues fun and blocks the caller until it has run on the
// loop goroutine, returning its result. Used by the admin API, which is
// called from outside the loop.
func (c *Controller) DispatchWait(fun func(*Controller) (any, error)) (any, error) {
	ret := make(chan dispatchResult, 1)
	c.dispatch <- func(ctl *Controller) error {
		val, err := fun(ctl)
		ret <- dispatchResult{val, err}
		return nil
	}
	select {
	case r := <-ret:
		return r.val, r.err
	case <-c.env.Context.Done():
		return nil, c.env.Context.Err()
	}
}

// ScheduleTask dispatches fun once, after delay.
func (c *Controller) ScheduleTask(fun func(*Controller) error, delay time.Duration) {
	time.AfterFunc(delay, func() {
		c.Dispatch(fun)
	})
}

func (c *Controller) repeatedTask(fun func(*Controller) error, delay time.Duration) {
	for c.env.Context.Err() == nil {
		c.Dispatch(fun)
		time.Sleep(delay)
	}
}

// RepeatTask dispatches fun every delay until the controller's context is
// cancelled. Used for the ping tick and the beacon tick.
func (c *Controller) RepeatTask(fun func(*Controller) error, delay time.Duration) {
	go c.repeatedTask(fun, delay)
}

// MainLoop runs until the controller's context is cancelled, then tears
// down every remaining scope.
func (c *Controller) MainLoop() {
	c.env.Log.Debug("started controller loop")
	for {
		select {
		case fun := <-c.dispatch:
			if err := fun(c); err != nil {
				c.env.Log.Error("error occurred during dispatch", "error", err)
				c.env.Cancel(err)
			}
		case <-c.env.Context.Done():
			c.env.Log.Info("stopped controller loop", "reason", c.env.Context.Err())
			c.scope.Close()
			return
		}
	}
}
