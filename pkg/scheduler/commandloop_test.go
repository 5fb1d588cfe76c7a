package scheduler

import (
	"testing"

	"github.com/pulsegrid/sentinel/pkg/checks"
	"github.com/stretchr/testify/assert"
)

func validHTTPCheck(id string, interval int64) checks.Check {
	return checks.Check{
		ID:         id,
		Interval:   interval,
		MaxLatency: 1,
		Kind:       checks.CheckKind{Kind: checks.KindHTTP, Http: &checks.HTTPCheck{URI: "http://localhost:8080/ping"}},
	}
}

func TestCommandLoopAddThenRemoveReturnsToEmpty(t *testing.T) {
	cl := NewCommandLoop(newTestPool(), 2, nil)
	defer cl.Stop()

	check := validHTTPCheck("c1", 5)
	cl.Handle(checks.Command{ID: "cmd1", Kind: checks.CommandAdd, Check: &check})
	assert.Equal(t, 1, cl.Len())

	cl.Handle(checks.Command{ID: "cmd2", Kind: checks.CommandRemove, RemoveID: "c1"})
	assert.Equal(t, 0, cl.Len())
}

func TestCommandLoopRejectsDuplicateAdd(t *testing.T) {
	cl := NewCommandLoop(newTestPool(), 2, nil)
	defer cl.Stop()

	check := validHTTPCheck("c1", 5)
	cl.Handle(checks.Command{ID: "cmd1", Kind: checks.CommandAdd, Check: &check})
	cl.Handle(checks.Command{ID: "cmd2", Kind: checks.CommandAdd, Check: &check})

	assert.Equal(t, 1, cl.Len())
}

func TestCommandLoopRemoveUnknownCheckIsNoOp(t *testing.T) {
	cl := NewCommandLoop(newTestPool(), 2, nil)
	defer cl.Stop()

	assert.NotPanics(t, func() {
		cl.Handle(checks.Command{ID: "cmd1", Kind: checks.CommandRemove, RemoveID: "never-added"})
	})
	assert.Equal(t, 0, cl.Len())
}

func TestCommandLoopDropsInvalidAdd(t *testing.T) {
	cl := NewCommandLoop(newTestPool(), 2, nil)
	defer cl.Stop()

	check := validHTTPCheck("c1", 0) // zero interval is invalid
	cl.Handle(checks.Command{ID: "cmd1", Kind: checks.CommandAdd, Check: &check})

	assert.Equal(t, 0, cl.Len())
}

func TestCommandLoopReaddAfterRemoveIsAccepted(t *testing.T) {
	cl := NewCommandLoop(newTestPool(), 2, nil)
	defer cl.Stop()

	check := validHTTPCheck("c1", 5)
	cl.Handle(checks.Command{ID: "cmd1", Kind: checks.CommandAdd, Check: &check})
	cl.Handle(checks.Command{ID: "cmd2", Kind: checks.CommandRemove, RemoveID: "c1"})
	cl.Handle(checks.Command{ID: "cmd3", Kind: checks.CommandAdd, Check: &check})

	assert.Equal(t, 1, cl.Len())
}

func TestCommandLoopSharesWheelAcrossSameInterval(t *testing.T) {
	cl := NewCommandLoop(newTestPool(), 2, nil)
	defer cl.Stop()

	c1 := validHTTPCheck("c1", 5)
	c2 := validHTTPCheck("c2", 5)
	cl.Handle(checks.Command{ID: "cmd1", Kind: checks.CommandAdd, Check: &c1})
	cl.Handle(checks.Command{ID: "cmd2", Kind: checks.CommandAdd, Check: &c2})

	cl.mu.Lock()
	wheelCount := len(cl.wheels)
	cl.mu.Unlock()
	assert.Equal(t, 1, wheelCount)
}
