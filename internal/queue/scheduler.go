// Package queue implements the bounded in-process request scheduler:
// a heartbeat-aware FIFO that admits at most MaxConcurrent matrix
// computations at a time, paces successive batches with a cooldown,
// retries throttled workers, and reaps abandoned or expired requests.
//
// State lives only in memory. A restart loses every queued and
// completed request; clients are expected to resubmit.
package queue

import (
	"context"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trainseat/matrix/internal/model"
	"github.com/trainseat/matrix/internal/railapi"
)

// Worker computes one matrix. The scheduler invokes it from a
// dispatcher goroutine with a context cancelled on Stop.
type Worker func(ctx context.Context, params model.MatrixParams) (*model.Matrix, error)

// Config tunes the scheduler. Zero fields take the documented
// defaults, so Config{} is a valid production configuration.
type Config struct {
	MaxConcurrent         int           // simultaneous workers (default 1)
	CooldownPeriod        time.Duration // minimum gap between batch starts (default 3s)
	HeartbeatTimeout      time.Duration // queued entries staler than this are reaped (default 90s)
	CleanupInterval       time.Duration // stale-queue sweep period (default 45s)
	BatchCleanupThreshold int           // tombstone count forcing a queue compaction (default 10)
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 1
	}
	if c.CooldownPeriod <= 0 {
		c.CooldownPeriod = 3 * time.Second
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = 90 * time.Second
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = 45 * time.Second
	}
	if c.BatchCleanupThreshold <= 0 {
		c.BatchCleanupThreshold = 10
	}
	return c
}

const (
	// resultTTL bounds how long an unfetched terminal result is kept.
	resultTTL = 30 * time.Minute

	// idleSleep is the dispatcher's pause when the queue is empty.
	idleSleep = time.Second

	// maxAttempts caps the retry envelope around one worker call.
	maxAttempts = 3

	procRingSize    = 50
	abandonRingSize = 100
)

// request is one scheduled computation. createdAt carries Go's
// monotonic reading, so every age comparison below is wall-clock safe.
type request struct {
	id        string
	params    model.MatrixParams
	worker    Worker
	status    model.RequestStatus
	createdAt time.Time
	lastBeat  time.Time
}

// Scheduler is the process-wide request queue. One mutex guards the
// FIFO, the request and result tables, and both history rings; it is
// never held across a sleep or a worker call.
type Scheduler struct {
	cfg Config

	mu             sync.Mutex
	fifo           []string
	requests       map[string]*request
	results        map[string]*model.Result
	procTimes      *ring
	abandons       *abandonRing
	lastBatchStart time.Time
	tombstones     int // cancelled ids still occupying FIFO slots

	// backoff yields the sleep before retry attempt n. Tests shrink it.
	backoff func(attempt int) time.Duration

	ctx      context.Context
	cancelFn context.CancelFunc
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewScheduler creates a stopped scheduler; call Start to begin
// dispatching.
func NewScheduler(cfg Config) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cfg:       cfg.withDefaults(),
		requests:  make(map[string]*request),
		results:   make(map[string]*model.Result),
		procTimes: newRing(procRingSize),
		abandons:  newAbandonRing(abandonRingSize),
		backoff:   defaultBackoff,
		ctx:       ctx,
		cancelFn:  cancel,
	}
}

// defaultBackoff is the jittered sleep between retry attempts:
// 5 + 2·attempt seconds plus up to 2 seconds of jitter.
func defaultBackoff(attempt int) time.Duration {
	secs := 5 + 2*float64(attempt) + rand.Float64()*2
	return time.Duration(secs * float64(time.Second))
}

// Start launches the dispatcher and the stale-queue reaper.
func (s *Scheduler) Start() {
	s.wg.Add(2)
	go s.dispatchLoop()
	go s.reapLoop()
	log.Printf("[queue] scheduler started (max_concurrent=%d cooldown=%s heartbeat_timeout=%s)",
		s.cfg.MaxConcurrent, s.cfg.CooldownPeriod, s.cfg.HeartbeatTimeout)
}

// Stop halts dispatching and waits for the background goroutines.
// In-flight workers observe a cancelled context; queued and terminal
// state is simply dropped with the process.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(s.cancelFn)
	s.wg.Wait()
	log.Printf("[queue] scheduler stopped")
}

// ─── Client-facing operations ───────────────────────────────

// Submit appends a request to the FIFO and returns its opaque id.
func (s *Scheduler) Submit(worker Worker, params model.MatrixParams) string {
	id := uuid.New().String()
	now := time.Now()

	s.mu.Lock()
	s.requests[id] = &request{
		id:        id,
		params:    params,
		worker:    worker,
		status:    model.RequestQueued,
		createdAt: now,
		lastBeat:  now,
	}
	s.fifo = append(s.fifo, id)
	pos := s.positionLocked(id)
	s.mu.Unlock()

	log.Printf("[queue] submitted %s (position %d)", id, pos)
	return id
}

// GetStatus returns a snapshot of the request's lifecycle state.
// Position and estimated wait are recomputed on every read while the
// request is queued; they are 0 for every other status.
func (s *Scheduler) GetStatus(id string) (*model.StatusRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[id]
	if !ok {
		return nil, false
	}
	rec := &model.StatusRecord{
		Status:      req.status,
		CreatedAt:   req.createdAt,
		LastBeatAge: time.Since(req.lastBeat).Seconds(),
	}
	if req.status == model.RequestQueued {
		pos := s.positionLocked(id)
		rec.Position = pos
		rec.EstimatedTime = s.estimateWaitLocked(pos)
	}
	if req.status == model.RequestFailed {
		if res := s.results[id]; res != nil {
			rec.ErrorMessage = res.Error
		}
	}
	return rec, true
}

// GetResult returns the one-shot result. The first successful read
// removes the request from every table; later reads find nothing.
func (s *Scheduler) GetResult(id string) (*model.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, ok := s.results[id]
	if !ok {
		return nil, false
	}
	delete(s.results, id)
	delete(s.requests, id)
	return res, true
}

// Cancel removes the request from every table and reports whether
// anything was removed. A queued request is recorded as an
// abandonment; its FIFO slot is tombstoned and skipped at dispatch.
//
// A processing request is not interrupted: its worker runs to
// completion and still holds a concurrency slot until it returns, but
// the result is dropped on the floor.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := false
	if req, ok := s.requests[id]; ok {
		removed = true
		if req.status == model.RequestQueued {
			s.abandons.push(abandonment{
				position: s.positionLocked(id),
				waitTime: time.Since(req.createdAt).Seconds(),
				at:       time.Now(),
			})
			s.tombstones++
		}
		delete(s.requests, id)
	}
	if _, ok := s.results[id]; ok {
		removed = true
		delete(s.results, id)
	}
	if s.tombstones >= s.cfg.BatchCleanupThreshold {
		s.compactLocked()
	}
	return removed
}

// Heartbeat refreshes the request's keepalive and reports whether the
// id is still known.
func (s *Scheduler) Heartbeat(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[id]
	if !ok {
		return false
	}
	req.lastBeat = time.Now()
	return true
}

// Stats returns the scheduler's aggregate counters.
func (s *Scheduler) Stats() model.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := model.Stats{
		AvgProcessingTime:  s.procTimes.mean(initialAvgProcessing),
		RecentAbandonments: s.abandons.countSince(time.Now().Add(-abandonStatsWindow)),
		QueueSize:          len(s.fifo) - s.tombstones,
	}
	for _, req := range s.requests {
		switch req.status {
		case model.RequestQueued:
			st.Queued++
		case model.RequestProcessing:
			st.Processing++
		}
	}
	return st
}

// ForceCleanup synchronously runs both reaper passes once.
func (s *Scheduler) ForceCleanup() {
	s.reapStale()
	s.cleanupTerminalExpired()
}

// ─── Dispatch ───────────────────────────────────────────────

func (s *Scheduler) dispatchLoop() {
	defer s.wg.Done()

	for {
		s.mu.Lock()
		wait := s.cfg.CooldownPeriod - time.Since(s.lastBatchStart)
		s.mu.Unlock()
		if wait > 0 && !s.sleep(wait) {
			return
		}

		batch := s.takeBatch()
		if len(batch) == 0 {
			if !s.sleep(idleSleep) {
				return
			}
			s.cleanupTerminalExpired()
			continue
		}

		var wg sync.WaitGroup
		for _, req := range batch {
			wg.Add(1)
			go func(r *request) {
				defer wg.Done()
				s.run(r)
			}(req)
		}
		wg.Wait()

		select {
		case <-s.ctx.Done():
			return
		default:
		}
	}
}

// takeBatch drains up to MaxConcurrent live ids from the FIFO head,
// skipping tombstones, and marks the accepted ones processing. The
// batch start timestamp moves only when something was accepted.
func (s *Scheduler) takeBatch() []*request {
	s.mu.Lock()
	defer s.mu.Unlock()

	var batch []*request
	for len(s.fifo) > 0 && len(batch) < s.cfg.MaxConcurrent {
		id := s.fifo[0]
		s.fifo = s.fifo[1:]
		req, ok := s.requests[id]
		if !ok {
			if s.tombstones > 0 {
				s.tombstones--
			}
			continue
		}
		req.status = model.RequestProcessing
		batch = append(batch, req)
	}
	if len(batch) > 0 {
		s.lastBatchStart = time.Now()
	}
	return batch
}

// run executes one request inside the retry envelope and records the
// outcome, unless the request was cancelled mid-flight.
func (s *Scheduler) run(r *request) {
	start := time.Now()
	matrix, err := s.invokeWithRetry(r)
	elapsed := time.Since(start).Seconds()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.procTimes.push(elapsed)

	if cur, ok := s.requests[r.id]; !ok || cur != r {
		// Cancelled while processing: the worker ran to completion but
		// nobody is listening.
		log.Printf("[queue] %s cancelled mid-flight, result dropped (%.1fs)", r.id, elapsed)
		return
	}

	if err != nil {
		r.status = model.RequestFailed
		s.results[r.id] = &model.Result{Error: err.Error()}
		log.Printf("[queue] %s failed after %.1fs: %v", r.id, elapsed, err)
		return
	}
	r.status = model.RequestCompleted
	s.results[r.id] = &model.Result{
		Success:    true,
		Matrix:     matrix,
		FormValues: &r.params.FormValues,
	}
	log.Printf("[queue] %s completed in %.1fs", r.id, elapsed)
}

// invokeWithRetry calls the worker up to maxAttempts times. Only the
// throttling category is retried; every other failure is terminal on
// the first occurrence.
func (s *Scheduler) invokeWithRetry(r *request) (*model.Matrix, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		matrix, err := r.worker(s.ctx, r.params)
		if err == nil {
			return matrix, nil
		}
		lastErr = err
		if attempt == maxAttempts || !retryable(err) {
			return nil, err
		}
		delay := s.backoff(attempt)
		log.Printf("[queue] %s attempt %d throttled, retrying in %s: %v", r.id, attempt, delay.Round(time.Millisecond), err)
		if !s.sleep(delay) {
			return nil, err
		}
	}
	return nil, lastErr
}

// retryable reports whether a worker failure belongs to the throttling
// category. The typed check covers the upstream client; the text
// checks keep the documented contract for any other worker.
func retryable(err error) bool {
	if railapi.IsRetryable(err) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Rate limit exceeded") || strings.Contains(msg, "403")
}

// ─── Reapers ────────────────────────────────────────────────

func (s *Scheduler) reapLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.reapStale()
		}
	}
}

// reapStale evicts queued requests whose client stopped heartbeating.
// Each eviction counts as an abandonment.
func (s *Scheduler) reapStale() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	reaped := 0
	for id, req := range s.requests {
		if req.status != model.RequestQueued {
			continue
		}
		if now.Sub(req.lastBeat) <= s.cfg.HeartbeatTimeout {
			continue
		}
		s.abandons.push(abandonment{
			position: s.positionLocked(id),
			waitTime: now.Sub(req.createdAt).Seconds(),
			at:       now,
		})
		delete(s.requests, id)
		s.tombstones++
		reaped++
	}
	if s.tombstones >= s.cfg.BatchCleanupThreshold {
		s.compactLocked()
	}
	if reaped > 0 {
		log.Printf("[queue] reaped %d stale queued request(s)", reaped)
	}
}

// cleanupTerminalExpired drops terminal requests whose result was
// never fetched within resultTTL.
func (s *Scheduler) cleanupTerminalExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for id, req := range s.requests {
		if req.status != model.RequestCompleted && req.status != model.RequestFailed {
			continue
		}
		if now.Sub(req.createdAt) <= resultTTL {
			continue
		}
		delete(s.requests, id)
		delete(s.results, id)
	}
}

// ─── Internals ──────────────────────────────────────────────

// positionLocked returns the 1-based position of id among live queued
// entries, or 0 when id is not in the FIFO. Caller holds s.mu.
func (s *Scheduler) positionLocked(id string) int {
	pos := 0
	for _, qid := range s.fifo {
		req, ok := s.requests[qid]
		if !ok || req.status != model.RequestQueued {
			continue
		}
		pos++
		if qid == id {
			return pos
		}
	}
	return 0
}

// compactLocked rebuilds the FIFO without tombstones, preserving
// order. Caller holds s.mu.
func (s *Scheduler) compactLocked() {
	live := s.fifo[:0]
	for _, id := range s.fifo {
		if _, ok := s.requests[id]; ok {
			live = append(live, id)
		}
	}
	s.fifo = live
	s.tombstones = 0
}

// sleep pauses for d, returning false when the scheduler is stopping.
func (s *Scheduler) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-s.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
