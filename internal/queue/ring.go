package queue

import "time"

// ring is a fixed-capacity overwrite-oldest buffer of duration samples
// in seconds. Not goroutine safe: the scheduler's mutex guards it.
type ring struct {
	samples []float64
	head    int
	count   int
}

func newRing(capacity int) *ring {
	return &ring{samples: make([]float64, capacity)}
}

func (r *ring) push(v float64) {
	r.samples[r.head] = v
	r.head = (r.head + 1) % len(r.samples)
	if r.count < len(r.samples) {
		r.count++
	}
}

// mean returns the arithmetic mean of the stored samples, or fallback
// when nothing has been recorded yet.
func (r *ring) mean(fallback float64) float64 {
	if r.count == 0 {
		return fallback
	}
	sum := 0.0
	for i := 0; i < r.count; i++ {
		sum += r.samples[i]
	}
	return sum / float64(r.count)
}

// abandonment records one queued request given up by its client.
type abandonment struct {
	position int
	waitTime float64 // seconds spent queued
	at       time.Time
}

// abandonRing keeps the most recent abandonments, overwriting the
// oldest. Not goroutine safe: the scheduler's mutex guards it.
type abandonRing struct {
	entries []abandonment
	head    int
	count   int
}

func newAbandonRing(capacity int) *abandonRing {
	return &abandonRing{entries: make([]abandonment, capacity)}
}

func (r *abandonRing) push(a abandonment) {
	r.entries[r.head] = a
	r.head = (r.head + 1) % len(r.entries)
	if r.count < len(r.entries) {
		r.count++
	}
}

// countSince counts retained abandonments recorded after cutoff.
func (r *abandonRing) countSince(cutoff time.Time) int {
	n := 0
	for i := 0; i < r.count; i++ {
		if r.entries[i].at.After(cutoff) {
			n++
		}
	}
	return n
}
