package mediagrid

import "time"

// DrawStats summarizes the most recent draw durations.
type DrawStats struct {
	Count int
	Avg   time.Duration
	Min   time.Duration
	Max   time.Duration
}

// drawTimings is a fixed-size ring of draw durations.
type drawTimings struct {
	buf  []time.Duration
	idx  int
	full bool
}

func newDrawTimings(size int) *drawTimings {
	if size <= 0 {
		size = 1
	}
	return &drawTimings{buf: make([]time.Duration, size)}
}

func (r *drawTimings) push(d time.Duration) {
	r.buf[r.idx] = d
	r.idx = (r.idx + 1) % len(r.buf)
	if r.idx == 0 {
		r.full = true
	}
}

func (r *drawTimings) len() int {
	if r.full {
		return len(r.buf)
	}
	return r.idx
}

// values returns the stored durations, oldest first.
func (r *drawTimings) values() []time.Duration {
	if !r.full {
		return append([]time.Duration(nil), r.buf[:r.idx]...)
	}
	out := make([]time.Duration, 0, len(r.buf))
	out = append(out, r.buf[r.idx:]...)
	return append(out, r.buf[:r.idx]...)
}

func (r *drawTimings) stats() DrawStats {
	n := r.len()
	if n == 0 {
		return DrawStats{}
	}
	s := DrawStats{Count: n, Min: r.buf[0], Max: r.buf[0]}
	var total time.Duration
	for _, d := range r.buf[:n] {
		total += d
		s.Min = min(s.Min, d)
		s.Max = max(s.Max, d)
	}
	s.Avg = total / time.Duration(n)
	return s
}
