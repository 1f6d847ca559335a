package stream

// wrapThreshold is how far a 16-bit device timestamp has to jump backwards
// before it is treated as a wrap rather than jitter.
const wrapThreshold = 30000

// TimestampUnwrapper extends 16-bit relative device timestamps into a
// monotonically increasing millisecond timeline.
type TimestampUnwrapper struct {
	last   uint32
	offset uint64
}

// Unwrap returns raw extended by the accumulated wrap offset.
func (u *TimestampUnwrapper) Unwrap(raw uint32) uint64 {
	if int64(raw) < int64(u.last)-wrapThreshold {
		u.offset += 1 << 16
	}
	u.last = raw

	return uint64(raw) + u.offset
}

// Reset clears the wrap state.
func (u *TimestampUnwrapper) Reset() {
	*u = TimestampUnwrapper{}
}
