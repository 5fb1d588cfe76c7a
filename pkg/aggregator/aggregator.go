package aggregator

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pulsegrid/sentinel/pkg/checks"
	"github.com/pulsegrid/sentinel/pkg/log"
	"github.com/pulsegrid/sentinel/pkg/metrics"
)

// EmitFunc is called with a closed round, ready for AggregateSink.
type EmitFunc func(checks.AggregateMessage)

// buffer accumulates readings for one check_id across a round: one reading
// per distinct agent, until an agent reports a second time.
type buffer struct {
	timestamp   time.Time
	maxLatency  uint64
	statusCodes checks.StatusCodeCount
	seenAgents  map[string]bool
	seenDedup   map[string]bool
}

func newBuffer() *buffer {
	return &buffer{
		seenAgents: make(map[string]bool),
		seenDedup:  make(map[string]bool),
	}
}

func (b *buffer) merge(r Reading) {
	if len(b.seenAgents) == 0 {
		b.timestamp = r.Timestamp
	}
	if r.LatencyMs > b.maxLatency {
		b.maxLatency = r.LatencyMs
	}
	checks.BucketStatus(&b.statusCodes, r.StatusCode)
	b.seenAgents[r.AgentID] = true
}

func (b *buffer) message(checkID string) checks.AggregateMessage {
	return checks.AggregateMessage{
		CheckID:     checkID,
		Timestamp:   b.timestamp,
		LatencyMs:   b.maxLatency,
		StatusCodes: b.statusCodes,
	}
}

// Aggregator folds Readings for the same check_id into rounds. A round
// closes — and is emitted — the instant an agent that already reported in
// the current round reports again; the buffer then resets to start the next
// round with that reading. Per REDESIGN FLAGS, a (agent_id, timestamp) pair
// already seen in the current round is dropped rather than re-merged, so a
// redelivered message cannot inflate a bucket count.
type Aggregator struct {
	mu      sync.Mutex
	buffers map[string]*buffer
	emit    EmitFunc
	logger  zerolog.Logger
}

// NewAggregator builds an Aggregator that calls emit for every closed round.
func NewAggregator(emit EmitFunc) *Aggregator {
	return &Aggregator{
		buffers: make(map[string]*buffer),
		emit:    emit,
		logger:  log.Logger,
	}
}

// Ingest folds one reading into its check's current round, emitting and
// resetting the round first if the reading's agent already reported this
// round.
func (a *Aggregator) Ingest(r Reading) {
	a.mu.Lock()
	defer a.mu.Unlock()

	b, ok := a.buffers[r.CheckID]
	if !ok {
		b = newBuffer()
		a.buffers[r.CheckID] = b
	}

	dedupKey := r.AgentID + "|" + r.Timestamp.String()
	if b.seenDedup[dedupKey] {
		a.logger.Debug().Str("check_id", r.CheckID).Str("agent_id", r.AgentID).Msg("dropping duplicate reading")
		return
	}

	if b.seenAgents[r.AgentID] {
		a.closeRoundLocked(r.CheckID, b)
		b = newBuffer()
		a.buffers[r.CheckID] = b
	}

	b.seenDedup[dedupKey] = true
	b.merge(r)
	metrics.AggregatorBuffersActive.Set(float64(len(a.buffers)))
}

func (a *Aggregator) closeRoundLocked(checkID string, b *buffer) {
	if len(b.seenAgents) == 0 {
		return
	}
	metrics.AggregatesEmittedTotal.Inc()
	a.emit(b.message(checkID))
}

// Flush emits every buffer with at least one reading, regardless of whether
// a duplicate agent has arrived — used on shutdown so an in-flight round is
// not lost.
func (a *Aggregator) Flush() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for checkID, b := range a.buffers {
		a.closeRoundLocked(checkID, b)
		delete(a.buffers, checkID)
	}
}
