package hm10

import (
	"context"
	"fmt"
	"time"
)

// request is a unit of work to run on the loop goroutine.
type request struct {
	fn       func(*Device) error
	respChan chan error
	ctx      context.Context
}

// Run drives the device until ctx is cancelled or the device is closed. It
// calls Tick every TickInterval, runs the activity timer and executes the
// work submitted with Do between ticks. Run must be called at most once at a
// time, after Begin.
//
// Usage:
//
//	dev, err := hm10.New(ctx, config)
//	if err != nil { return err }
//	if err := dev.Begin(true); err != nil { return err }
//
//	go dev.Run(ctx)
//
//	err = dev.Do(ctx, func(d *hm10.Device) error {
//		return d.WriteMessageText("hello")
//	})
func (d *Device) Run(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrAlreadyClosed
	}
	if d.loopRunning {
		d.mu.Unlock()
		return ErrLoopRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	d.loopRunning = true
	d.loopCancel = cancel
	d.mu.Unlock()

	defer func() {
		cancel()
		d.mu.Lock()
		d.loopRunning = false
		d.loopCancel = nil
		d.mu.Unlock()
	}()

	go d.activity.Run(ctx)

	ticker := time.NewTicker(d.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case req := <-d.commands:
			if err := req.ctx.Err(); err != nil {
				req.respChan <- err
				continue
			}
			req.respChan <- req.fn(d)

		case <-ticker.C:
			d.Tick()
		}
	}
}

// Do runs fn on the loop goroutine and returns its error. Run must be
// running; otherwise Do blocks until ctx is done.
func (d *Device) Do(ctx context.Context, fn func(*Device) error) error {
	if d.isClosed() {
		return ErrAlreadyClosed
	}

	req := &request{
		fn:       fn,
		respChan: make(chan error, 1),
		ctx:      ctx,
	}

	select {
	case d.commands <- req:
	case <-ctx.Done():
		return fmt.Errorf("request cancelled before running: %w", ctx.Err())
	}

	select {
	case err := <-req.respChan:
		return err
	case <-ctx.Done():
		return fmt.Errorf("request timeout: %w", ctx.Err())
	}
}
