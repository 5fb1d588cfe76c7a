// Package scheduler implements the timing wheel that fires checks on their
// configured interval, and the command loop that keeps it in sync with the
// live set of checks.
package scheduler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/pulsegrid/sentinel/pkg/checks"
	"github.com/pulsegrid/sentinel/pkg/log"
	"github.com/pulsegrid/sentinel/pkg/metrics"
	"github.com/pulsegrid/sentinel/pkg/probe"
	"github.com/rs/zerolog"
)

// Location is the reverse-index value identifying where a Job lives in a
// Wheel: which slot it was inserted into, and its stable index in that
// slot's slab. Created on add, consumed on remove.
type Location struct {
	Interval int64
	Slot     int
	Index    int
}

// slot is a slab-like container offering O(1) insert/remove with stable
// indices across other operations in the same slot — a free-index stack
// over a map, since no slab/arena library is available.
type slot struct {
	jobs     map[int]probe.Job
	nextFree []int
	nextIdx  int
}

func newSlot() *slot {
	return &slot{jobs: make(map[int]probe.Job)}
}

// insert returns the stable index the job was placed at.
func (s *slot) insert(job probe.Job) int {
	var idx int
	if n := len(s.nextFree); n > 0 {
		idx = s.nextFree[n-1]
		s.nextFree = s.nextFree[:n-1]
	} else {
		idx = s.nextIdx
		s.nextIdx++
	}
	s.jobs[idx] = job
	return idx
}

// remove drops idx from the slab and returns its index to the free list. A
// missing index is a no-op — callers log, they never panic.
func (s *slot) remove(idx int) {
	if _, ok := s.jobs[idx]; !ok {
		return
	}
	delete(s.jobs, idx)
	s.nextFree = append(s.nextFree, idx)
}

// ResultHandler consumes a ProbeResult produced by a tick's dispatch. The
// agent wires this to ResultSink.Enqueue.
type ResultHandler func(checks.ProbeResult)

// DefaultWorkers is the dispatch pool size used when NewWheel is called
// with workers <= 0.
const DefaultWorkers = 4

// dispatchQueueFactor sizes the bounded dispatch channel as a multiple of
// the worker count, so a tick can hand off a burst of jobs without
// blocking the driver loop on a busy pool.
const dispatchQueueFactor = 4

// Wheel is one Scheduler instance for a single interval I (seconds): a ring
// of I slots, each insert/remove O(1) amortized with stable indices.
type Wheel struct {
	interval   int64
	slots      []*slot
	fillCursor int
	freeSlots  []int

	pool     *probe.Pool[*http.Client]
	onResult ResultHandler
	logger   zerolog.Logger

	workers    int
	dispatchCh chan probe.Job
	workersWG  sync.WaitGroup

	mu         sync.Mutex
	tickCursor int
	stopCh     chan struct{}
	stopped    chan struct{}
	stopOnce   sync.Once
}

// NewWheel builds a Wheel of exactly `interval` slots, dispatching jobs
// across a fixed pool of `workers` goroutines (TASK_POOLS_SIZE) rather than
// spawning one goroutine per job.
func NewWheel(interval int64, workers int, pool *probe.Pool[*http.Client], onResult ResultHandler) *Wheel {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	w := &Wheel{
		interval:   interval,
		slots:      make([]*slot, interval),
		pool:       pool,
		onResult:   onResult,
		logger:     log.WithInterval(int(interval)),
		workers:    workers,
		dispatchCh: make(chan probe.Job, workers*dispatchQueueFactor),
		stopCh:     make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	for i := range w.slots {
		w.slots[i] = newSlot()
	}
	return w
}

// Start launches the driver loop and the fixed dispatch worker pool, all in
// their own goroutines.
func (w *Wheel) Start() {
	w.workersWG.Add(w.workers)
	for i := 0; i < w.workers; i++ {
		go w.worker()
	}
	go w.run()
}

// worker pulls jobs off dispatchCh until it's told to stop, running each to
// completion before picking up the next. This is the bounded pool: at most
// `workers` probes execute concurrently regardless of how many jobs a tick
// produces.
func (w *Wheel) worker() {
	defer w.workersWG.Done()
	for {
		select {
		case job := <-w.dispatchCh:
			w.dispatch(job)
		case <-w.stopCh:
			return
		}
	}
}

// Stop signals the driver loop and the dispatch workers to exit and waits
// for all of them to do so. Safe to call more than once.
func (w *Wheel) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	<-w.stopped
	w.workersWG.Wait()
}

// AddJob inserts job per the §4.3 round-robin fill policy: pop a free slot
// if any exist, else insert at fillCursor and advance it.
func (w *Wheel) AddJob(job probe.Job) Location {
	w.mu.Lock()
	defer w.mu.Unlock()

	var slotIdx int
	if n := len(w.freeSlots); n > 0 {
		slotIdx = w.freeSlots[n-1]
		w.freeSlots = w.freeSlots[:n-1]
	} else {
		slotIdx = w.fillCursor
		w.fillCursor = (w.fillCursor + 1) % int(w.interval)
	}

	idx := w.slots[slotIdx].insert(job)
	return Location{Interval: w.interval, Slot: slotIdx, Index: idx}
}

// RemoveJob erases the job at loc and frees the slot for reuse. A location
// naming an absent slab entry is logged and dropped, never panicked on.
func (w *Wheel) RemoveJob(loc Location) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if loc.Slot < 0 || loc.Slot >= len(w.slots) {
		w.logger.Warn().Int("slot", loc.Slot).Msg("remove_job: slot out of range")
		return
	}
	if _, ok := w.slots[loc.Slot].jobs[loc.Index]; !ok {
		w.logger.Warn().Int("slot", loc.Slot).Int("index", loc.Index).Msg("remove_job: no job at index")
		return
	}
	w.slots[loc.Slot].remove(loc.Index)
	w.freeSlots = append(w.freeSlots, loc.Slot)
}

// run is the driver loop: one tick per second, dispatching every job in the
// current slot without waiting on completion, then sleeping to the next
// wall-clock deadline rather than a fixed duration so drift never
// accumulates (REDESIGN FLAG, spec §4.3/§9).
func (w *Wheel) run() {
	defer close(w.stopped)

	nextDeadline := time.Now().Add(time.Second)
	for {
		select {
		case <-w.stopCh:
			return
		default:
		}

		w.tick()

		wait := time.Until(nextDeadline)
		nextDeadline = nextDeadline.Add(time.Second)
		if wait < 0 {
			// overran the deadline; skip the sleep and restart the deadline
			// from now, so missed cycles are not caught up
			nextDeadline = time.Now().Add(time.Second)
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-w.stopCh:
			timer.Stop()
			return
		}
	}
}

// tick snapshot-iterates the current slot and dispatches each job
// non-blockingly, then advances the cursor.
func (w *Wheel) tick() {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.SchedulerTickDuration, intervalLabel(w.interval))

	w.mu.Lock()
	cursor := w.tickCursor
	s := w.slots[cursor]
	jobs := make([]probe.Job, 0, len(s.jobs))
	// iterate in a stable order (ascending index) so same-slot jobs are
	// dispatched in insertion order, as §5 requires.
	for idx := 0; idx < s.nextIdx; idx++ {
		if job, ok := s.jobs[idx]; ok {
			jobs = append(jobs, job)
		}
	}
	w.tickCursor = (cursor + 1) % int(w.interval)
	w.mu.Unlock()

	for _, job := range jobs {
		select {
		case w.dispatchCh <- job:
		default:
			metrics.DispatchQueueDroppedTotal.Inc()
			w.logger.Warn().Str("check_id", job.CheckID).Msg("dispatch queue full, dropping job this tick")
		}
	}
}

// dispatch executes one job on the shared pool and forwards the result.
// Never called synchronously from the driver — the driver must never wait
// on a probe.
func (w *Wheel) dispatch(job probe.Job) {
	result := probe.Execute(context.Background(), job, w.pool)
	metrics.ClientPoolSize.Set(float64(w.pool.Size()))
	metrics.ProbeResultsTotal.WithLabelValues(string(job.Kind), outcomeLabel(result)).Inc()
	if w.onResult != nil {
		w.onResult(result)
	}
}

func outcomeLabel(r checks.ProbeResult) string {
	if r.StatusCode == checks.SentinelStatus {
		return "failed"
	}
	return "ok"
}

func intervalLabel(interval int64) string {
	return time.Duration(interval * int64(time.Second)).String()
}
