package app

import "math"

const (
	defaultMinLevel = -100.0 // dB re 1 g
	defaultMaxLevel = 0.0    // dB re 1 g

	// Below this many levels the percentiles are meaningless and the
	// defaults are used instead.
	minimumLevelCount = 20

	lowPercentile  = 5
	highPercentile = 95

	minimumRange = 30.0 // dB
)

// LevelBounds are the levels mapped to the ends of the color scale.
type LevelBounds struct {
	Min  float64 // dB
	Max  float64 // dB
	Mean float64 // dB
}

func defaultLevelBounds() LevelBounds {
	return LevelBounds{
		Min:  defaultMinLevel,
		Max:  defaultMaxLevel,
		Mean: (defaultMinLevel + defaultMaxLevel) / 2,
	}
}

// LevelHistogram counts levels in 1 dB bins.
type LevelHistogram struct {
	bins           map[int]uint32
	total          uint64
	minBin, maxBin int
}

func NewLevelHistogram() *LevelHistogram {
	h := LevelHistogram{}
	h.Clear()
	return &h
}

// Update adds one level. Nil levels are ignored.
func (h *LevelHistogram) Update(level *float64) {
	if level == nil || math.IsInf(*level, 0) || math.IsNaN(*level) {
		return
	}

	bin := int(math.Floor(*level))
	if h.bins[bin] == math.MaxUint32 {
		h.halve()
	}

	h.bins[bin]++
	h.total++
	h.minBin = min(h.minBin, bin)
	h.maxBin = max(h.maxBin, bin)
}

// halve divides every count by two, keeping the shape of the distribution.
func (h *LevelHistogram) halve() {
	h.total = 0
	h.minBin, h.maxBin = math.MaxInt32, math.MinInt32

	for bin, count := range h.bins {
		if count /= 2; count == 0 {
			delete(h.bins, bin)
			continue
		}
		h.bins[bin] = count
		h.total += uint64(count)
		h.minBin = min(h.minBin, bin)
		h.maxBin = max(h.maxBin, bin)
	}
}

func (h *LevelHistogram) Clear() {
	h.bins = make(map[int]uint32)
	h.total = 0
	h.minBin, h.maxBin = math.MaxInt32, math.MinInt32
}

// Count returns the number of levels in the histogram.
func (h *LevelHistogram) Count() uint64 {
	return h.total
}

// PercentileBounds returns the 5th and 95th percentile levels, widened to at
// least 30 dB and padded by 10%.
func (h *LevelHistogram) PercentileBounds() LevelBounds {
	if h.total < minimumLevelCount {
		return defaultLevelBounds()
	}

	tail := h.total * lowPercentile / 100

	var count uint64
	low := h.minBin
	for bin := h.minBin; bin <= h.maxBin; bin++ {
		count += uint64(h.bins[bin])
		if count > tail {
			low = bin
			break
		}
	}

	count = 0
	tail = h.total * (100 - highPercentile) / 100
	high := h.maxBin
	for bin := h.maxBin; bin >= h.minBin; bin-- {
		count += uint64(h.bins[bin])
		if count > tail {
			high = bin
			break
		}
	}

	var sum float64
	for bin, n := range h.bins {
		sum += (float64(bin) + 0.5) * float64(n)
	}

	lo, hi := float64(low), float64(high+1)
	if hi-lo < minimumRange {
		center := (lo + hi) / 2
		lo, hi = center-minimumRange/2, center+minimumRange/2
	}
	margin := (hi - lo) / 10

	return LevelBounds{
		Min:  lo - margin,
		Max:  hi + margin,
		Mean: sum / float64(h.total),
	}
}

// SmoothBounds exponentially smooths the percentile bounds of a histogram as
// levels are added.
type SmoothBounds struct {
	hist    *LevelHistogram
	alpha   float64 // 0..1, weight of the newest bounds
	current LevelBounds
	fixed   *LevelBounds
}

func NewSmoothBounds(alpha float64) *SmoothBounds {
	return &SmoothBounds{
		hist:    NewLevelHistogram(),
		alpha:   min(max(alpha, 0), 1),
		current: defaultLevelBounds(),
	}
}

// Fix overrides the tracked bounds with the given ones. A nil value keeps
// the tracked bound.
func (s *SmoothBounds) Fix(minLevel, maxLevel *float64) {
	if minLevel == nil && maxLevel == nil {
		s.fixed = nil
		return
	}

	b := LevelBounds{Min: math.NaN(), Max: math.NaN()}
	if minLevel != nil {
		b.Min = *minLevel
	}
	if maxLevel != nil {
		b.Max = *maxLevel
	}
	s.fixed = &b
}

func (s *SmoothBounds) Update(level *float64) LevelBounds {
	if level == nil {
		return s.Current()
	}

	s.hist.Update(level)
	next := s.hist.PercentileBounds()

	s.current.Min = s.current.Min*(1-s.alpha) + next.Min*s.alpha
	s.current.Max = s.current.Max*(1-s.alpha) + next.Max*s.alpha
	s.current.Mean = next.Mean

	return s.Current()
}

// Current returns the smoothed bounds with any fixed bound applied.
func (s *SmoothBounds) Current() LevelBounds {
	b := s.current
	if s.fixed != nil {
		if !math.IsNaN(s.fixed.Min) {
			b.Min = s.fixed.Min
		}
		if !math.IsNaN(s.fixed.Max) {
			b.Max = s.fixed.Max
		}
	}
	return b
}

func (s *SmoothBounds) Clear() {
	s.hist.Clear()
	s.current = defaultLevelBounds()
}
