package examsession

// Countdown is a whole-second countdown advanced by Tick.
// It never goes below zero and reports reaching zero exactly once.
type Countdown struct {
	remaining int
	running   bool
	fired     bool
}

// NewCountdown creates a stopped countdown of the given length.
func NewCountdown(seconds int) *Countdown {
	if seconds < 0 {
		seconds = 0
	}
	return &Countdown{remaining: seconds}
}

// Start resumes ticking. It has no effect once the countdown has fired.
func (c *Countdown) Start() {
	if !c.fired {
		c.running = true
	}
}

// Stop pauses the countdown.
func (c *Countdown) Stop() {
	c.running = false
}

// Running reports whether Tick currently advances the countdown.
func (c *Countdown) Running() bool {
	return c.running
}

// Remaining returns the seconds left.
func (c *Countdown) Remaining() int {
	return c.remaining
}

// Expired reports whether the countdown has fired.
func (c *Countdown) Expired() bool {
	return c.fired
}

// Tick advances one second and returns true on the single tick that reaches zero.
func (c *Countdown) Tick() bool {
	if !c.running || c.fired {
		return false
	}
	if c.remaining > 0 {
		c.remaining--
	}
	if c.remaining > 0 {
		return false
	}
	c.fired = true
	c.running = false
	return true
}
