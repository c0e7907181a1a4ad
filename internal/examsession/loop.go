package examsession

import (
	"context"
	"time"
)

// ioDrainTimeout bounds how long Run waits for I/O started by the attempt,
// enough for every automatic submission attempt and its delays.
func (c *Controller) ioDrainTimeout() time.Duration {
	n := time.Duration(c.settings.AutoSubmitRetries + 1)
	return n*c.settings.IOTimeout + (n-1)*c.settings.AutoSubmitRetryDelay
}

// Executor runs blocking work off the loop. work returns a continuation
// that must be applied on the loop; a nil continuation is skipped.
type Executor func(work func() func())

// Inline runs work and its continuation on the calling goroutine.
func Inline(work func() func()) {
	if cont := work(); cont != nil {
		cont()
	}
}

func (c *Controller) spawn(work func() func()) {
	c.io.Add(1)
	go func() {
		cont := work()
		c.io.Done()
		if cont == nil {
			return
		}
		select {
		case c.inbox <- cont:
		case <-c.quit:
		}
	}()
}

// Run owns the controller until the attempt ends or ctx is cancelled, in
// which case the attempt is closed without submitting. Before returning it
// waits for the attempt's pending I/O, such as the final progress save.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.quit)
	defer c.waitIO()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.Close()
			return ctx.Err()
		case <-c.finished:
			return nil
		case fn := <-c.inbox:
			fn()
		case <-ticker.C:
			c.Tick()
		}
	}
}

func (c *Controller) waitIO() {
	done := make(chan struct{})
	go func() {
		c.io.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(c.ioDrainTimeout()):
		c.log.Warn().Msg("Gave up waiting for pending I/O")
	}
}

// Dispatch queues fn to run on the loop. It returns false once Run has returned.
func (c *Controller) Dispatch(fn func(*Controller)) bool {
	select {
	case <-c.quit:
		return false
	default:
	}
	select {
	case c.inbox <- func() { fn(c) }:
		return true
	case <-c.quit:
		return false
	}
}

// Done is closed when the attempt has been torn down.
func (c *Controller) Done() <-chan struct{} {
	return c.finished
}
