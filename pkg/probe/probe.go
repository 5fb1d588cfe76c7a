package probe

import (
	"context"
	"net/http"
	"time"

	"github.com/pulsegrid/sentinel/pkg/checks"
)

// Job is the execution-ready form of a Check: a check_id plus a
// kind-specific, pre-validated execution context. Only HTTP carries a real
// context; the other kinds route straight to the dummy path.
type Job struct {
	CheckID    string
	Kind       checks.Kind
	HTTP       *HTTPContext
	MaxLatency time.Duration
}

// NewJob builds a Job from a validated Check, matching
// isok-agent's JobKind::from(CheckKind) fallback: only Http gets a real
// execution context, everything else becomes Dummy.
func NewJob(check checks.Check) Job {
	j := Job{CheckID: check.ID, MaxLatency: check.MaxLatencyDuration()}
	if check.Kind.Kind == checks.KindHTTP && check.Kind.Http != nil {
		ctx := NewHTTPContext(*check.Kind.Http, j.MaxLatency)
		j.Kind = checks.KindHTTP
		j.HTTP = &ctx
	} else {
		j.Kind = checks.KindDummy
	}
	return j
}

// Execute runs job against its kind's executor, checking out a client from
// pool when the job needs one. Dummy jobs (and any execution-less kind)
// produce a zero-latency, zero-status result — a log-only placeholder, never
// a dropped sample.
func Execute(ctx context.Context, job Job, clientPool *Pool[*http.Client]) checks.ProbeResult {
	switch job.Kind {
	case checks.KindHTTP:
		handle := clientPool.Checkout()
		defer handle.Release()
		return job.HTTP.Execute(ctx, job.CheckID, handle.Value())
	default:
		return checks.ProbeResult{
			CheckID:   job.CheckID,
			Timestamp: time.Now(),
		}
	}
}
