package queue

import "time"

// Wait-time estimation. The estimate a polling client sees is rebuilt
// from its live queue position on every read: batches ahead of it each
// cost one cooldown, and its own batch costs its in-batch position
// times the per-request base. Clients known to give up early shrink
// the effective position.

const (
	// initialAvgProcessing seeds the mean before any completion.
	initialAvgProcessing = 8.0 // seconds

	// abandonStatsWindow is the lookback for the stats counter.
	abandonStatsWindow = time.Hour

	// abandonPredictWindow is the lookback feeding the prediction.
	abandonPredictWindow = 30 * time.Minute

	// minAbandonSample is the prediction's activation floor: with
	// fewer recent abandonments it predicts nothing.
	minAbandonSample = 5

	// maxAbandonRate caps the predicted per-position abandonment rate.
	maxAbandonRate = 0.2
)

// estimateWaitLocked estimates the wait in seconds for a request at
// 1-based queue position pos. Caller holds s.mu.
func (s *Scheduler) estimateWaitLocked(pos int) float64 {
	if pos <= 0 {
		return 0
	}

	avg := s.procTimes.mean(initialAvgProcessing)
	cooldown := s.cfg.CooldownPeriod.Seconds()
	base := avg + cooldown/float64(s.cfg.MaxConcurrent)

	effective := pos - s.predictedAbandonmentsLocked(pos)
	if effective < 1 {
		effective = 1
	}

	batch := effective / s.cfg.MaxConcurrent
	inBatch := effective % s.cfg.MaxConcurrent
	if inBatch == 0 {
		inBatch = s.cfg.MaxConcurrent
		batch--
	}

	est := float64(batch)*cooldown + float64(inBatch)*base
	if est < 1 {
		est = 1
	}
	return est
}

// predictedAbandonmentsLocked estimates how many of the pos requests
// ahead will be abandoned before they dispatch, based on the recent
// abandonment rate. Caller holds s.mu.
func (s *Scheduler) predictedAbandonmentsLocked(pos int) int {
	recent := s.abandons.countSince(time.Now().Add(-abandonPredictWindow))
	if recent < minAbandonSample {
		return 0
	}
	floor := pos
	if floor < 10 {
		floor = 10
	}
	rate := float64(recent) / float64(floor)
	if rate > maxAbandonRate {
		rate = maxAbandonRate
	}
	return int(float64(pos) * rate * 0.5)
}
