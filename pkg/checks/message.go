package checks

import (
	"encoding/json"
	"fmt"
	"time"
)

// CheckType names the topic-per-kind discriminant used to build raw-result
// and aggregate topic names. Only "http" is produced by this version.
type CheckType string

const (
	CheckTypeHTTP CheckType = "http"
	CheckTypeIcmp CheckType = "icmp"
	CheckTypeTCP  CheckType = "tcp"
	CheckTypeDNS  CheckType = "dns"
)

// String satisfies fmt.Stringer.
func (t CheckType) String() string {
	return string(t)
}

// ParseCheckType parses a topic-name discriminant back into a CheckType.
func ParseCheckType(s string) (CheckType, error) {
	switch CheckType(s) {
	case CheckTypeHTTP, CheckTypeIcmp, CheckTypeTCP, CheckTypeDNS:
		return CheckType(s), nil
	default:
		return "", fmt.Errorf("checks: unknown check type %q", s)
	}
}

// ProbeResult is what a single Probe execution produces: never a dropped
// result, never a silent error — failures are encoded as a sentinel status.
type ProbeResult struct {
	CheckID    string
	Timestamp  time.Time
	Latency    time.Duration
	StatusCode int // HTTP status, or the 500 sentinel on failure
}

// SentinelStatus is the status code a failed HTTP probe reports: the
// request never reached a server, so there is no real status to report.
const SentinelStatus = 500

// CheckMessage is the wire form of a ProbeResult published by ResultSink
// and consumed by AggregatorSource. Field layout matches spec §6 exactly.
type CheckMessage struct {
	CheckID   string          `json:"check_id"`
	AgentID   string          `json:"agent_id"`
	Timestamp time.Time       `json:"timestamp"`
	LatencyMs uint64          `json:"latency"`
	Fields    json.RawMessage `json:"fields"`
}

// HTTPFields is the Fields payload shape for CheckType http.
type HTTPFields struct {
	StatusCode uint16 `json:"status_code"`
}

// NewHTTPCheckMessage builds the wire CheckMessage for an HTTP ProbeResult,
// stamping the given agent id and encoding the status code into Fields.
func NewHTTPCheckMessage(agentID string, r ProbeResult) (CheckMessage, error) {
	fields, err := json.Marshal(HTTPFields{StatusCode: uint16(r.StatusCode)})
	if err != nil {
		return CheckMessage{}, fmt.Errorf("checks: encoding http fields: %w", err)
	}
	return CheckMessage{
		CheckID:   r.CheckID,
		AgentID:   agentID,
		Timestamp: r.Timestamp,
		LatencyMs: uint64(r.Latency.Milliseconds()),
		Fields:    fields,
	}, nil
}

// StatusCodeCount is the aggregate bucket tally: how many responses fell
// into each HTTP status class across a round.
type StatusCodeCount struct {
	Count200 int `json:"_200"`
	Count300 int `json:"_300"`
	Count400 int `json:"_400"`
	Count500 int `json:"_500"`
}

// BucketStatus maps a raw HTTP status code to the bucket it belongs in.
// Statuses 0..=299 count as _200; statuses outside 0..=599 are dropped
// and leave counts unchanged.
func BucketStatus(counts *StatusCodeCount, status int) {
	switch {
	case status >= 0 && status <= 299:
		counts.Count200++
	case status >= 300 && status <= 399:
		counts.Count300++
	case status >= 400 && status <= 499:
		counts.Count400++
	case status >= 500 && status <= 599:
		counts.Count500++
	}
}

// AggregateMessage is the wire form of a closed aggregation round, published
// by AggregateSink.
type AggregateMessage struct {
	CheckID     string          `json:"check_id"`
	Timestamp   time.Time       `json:"timestamp"`
	LatencyMs   uint64          `json:"latency"`
	StatusCodes StatusCodeCount `json:"status_codes"`
}
