package scheduler

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/pulsegrid/sentinel/pkg/checks"
	"github.com/pulsegrid/sentinel/pkg/log"
	"github.com/pulsegrid/sentinel/pkg/metrics"
	"github.com/pulsegrid/sentinel/pkg/probe"
	"github.com/rs/zerolog"
)

// CommandLoop consumes Add/Remove commands and mutates the set of live
// Wheels accordingly. The reverse index (checkID -> Location) it maintains
// is the single source of truth for "is this check live?" — no other
// component reads or writes it (§5).
type CommandLoop struct {
	pool     *probe.Pool[*http.Client]
	workers  int
	onResult ResultHandler
	logger   zerolog.Logger

	mu     sync.Mutex
	wheels map[int64]*Wheel
	index  map[string]Location
}

// NewCommandLoop builds a CommandLoop that dispatches probes through pool
// and forwards every ProbeResult to onResult. workers sizes the bounded
// dispatch pool (TASK_POOLS_SIZE) each Wheel it creates runs.
func NewCommandLoop(pool *probe.Pool[*http.Client], workers int, onResult ResultHandler) *CommandLoop {
	return &CommandLoop{
		pool:     pool,
		workers:  workers,
		onResult: onResult,
		logger:   log.WithComponent("command_loop"),
		wheels:   make(map[int64]*Wheel),
		index:    make(map[string]Location),
	}
}

// Stop stops every wheel this loop has started. Idempotent-safe per wheel.
func (c *CommandLoop) Stop() {
	c.mu.Lock()
	wheels := make([]*Wheel, 0, len(c.wheels))
	for _, w := range c.wheels {
		wheels = append(wheels, w)
	}
	c.mu.Unlock()

	for _, w := range wheels {
		w.Stop()
	}
}

// Handle processes one Command. Validation failures, duplicate adds, and
// removes of unknown checks are all logged and swallowed — per §4.4/§7 the
// command stream is never poisoned by a bad entry.
func (c *CommandLoop) Handle(cmd checks.Command) {
	switch cmd.Kind {
	case checks.CommandAdd:
		c.handleAdd(cmd)
	case checks.CommandRemove:
		c.handleRemove(cmd)
	default:
		c.logger.Warn().Str("kind", string(cmd.Kind)).Msg("unknown command kind, dropping")
		metrics.CommandsProcessedTotal.WithLabelValues("unknown", "dropped").Inc()
	}
}

func (c *CommandLoop) handleAdd(cmd checks.Command) {
	if cmd.Check == nil {
		c.logger.Warn().Str("command_id", cmd.ID).Msg("add command missing check body, dropping")
		metrics.CommandsProcessedTotal.WithLabelValues("add", "invalid").Inc()
		return
	}
	check := *cmd.Check

	if err := check.Validate(); err != nil {
		c.logger.Warn().Err(err).Str("check_id", check.ID).Msg("invalid check, dropping")
		metrics.CommandsProcessedTotal.WithLabelValues("add", "invalid").Inc()
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.index[check.ID]; exists {
		err := fmt.Errorf("%w: %q", checks.ErrDuplicateCheck, check.ID)
		c.logger.Warn().Err(err).Str("check_id", check.ID).Msg("duplicate add rejected")
		metrics.CommandsProcessedTotal.WithLabelValues("add", "duplicate").Inc()
		return
	}

	wheel := c.wheelForIntervalLocked(check.Interval)
	job := probe.NewJob(check)
	loc := wheel.AddJob(job)
	c.index[check.ID] = loc

	metrics.CommandsProcessedTotal.WithLabelValues("add", "ok").Inc()
	c.logger.Info().Str("check_id", check.ID).Int64("interval", check.Interval).Msg("check added")
}

func (c *CommandLoop) handleRemove(cmd checks.Command) {
	c.mu.Lock()
	defer c.mu.Unlock()

	loc, ok := c.index[cmd.RemoveID]
	if !ok {
		c.logger.Warn().Str("check_id", cmd.RemoveID).Msg("remove of unknown check, ignoring")
		metrics.CommandsProcessedTotal.WithLabelValues("remove", "unknown").Inc()
		return
	}

	wheel, ok := c.wheels[loc.Interval]
	if ok {
		wheel.RemoveJob(loc)
	}
	delete(c.index, cmd.RemoveID)

	metrics.CommandsProcessedTotal.WithLabelValues("remove", "ok").Inc()
	c.logger.Info().Str("check_id", cmd.RemoveID).Msg("check removed")
}

// wheelForIntervalLocked returns the Wheel for interval, creating and
// starting it if this is the first check at that interval. Caller must
// hold c.mu.
func (c *CommandLoop) wheelForIntervalLocked(interval int64) *Wheel {
	if w, ok := c.wheels[interval]; ok {
		return w
	}
	w := NewWheel(interval, c.workers, c.pool, c.onResult)
	c.wheels[interval] = w
	w.Start()
	return w
}

// Len reports the number of live checks tracked by the reverse index, for
// tests and introspection.
func (c *CommandLoop) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.index)
}
