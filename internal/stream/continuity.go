package stream

// ContinuityTracker counts samples lost in transit from gaps in the device
// sequence counter. Counters that go backwards are ignored; they come from
// reordering or a device restart, not loss.
type ContinuityTracker struct {
	last    uint64
	hasLast bool
	dropped uint64
}

// Observe records counter and returns the number of samples found missing
// immediately before it. modulus is the counter wrap modulus of the packet
// format the counter came from.
func (c *ContinuityTracker) Observe(counter uint32, modulus uint64) uint64 {
	next := uint64(counter)
	defer func() {
		c.last = next
		c.hasLast = true
	}()

	if !c.hasLast {
		return 0
	}

	expected := (c.last + 1) % modulus
	if next == expected || next <= c.last {
		return 0
	}

	gap := next - c.last - 1
	c.dropped += gap

	return gap
}

// Dropped returns the total number of missing samples seen since the last reset.
func (c *ContinuityTracker) Dropped() uint64 {
	return c.dropped
}

// Reset clears the tracker, making the next counter exempt from the gap check.
func (c *ContinuityTracker) Reset() {
	*c = ContinuityTracker{}
}
