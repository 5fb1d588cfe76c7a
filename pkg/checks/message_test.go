package checks

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHTTPCheckMessage(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := ProbeResult{CheckID: "c1", Timestamp: ts, Latency: 15 * time.Millisecond, StatusCode: 200}

	msg, err := NewHTTPCheckMessage("agent-1", r)
	require.NoError(t, err)
	assert.Equal(t, "c1", msg.CheckID)
	assert.Equal(t, "agent-1", msg.AgentID)
	assert.Equal(t, uint64(15), msg.LatencyMs)

	var fields HTTPFields
	require.NoError(t, json.Unmarshal(msg.Fields, &fields))
	assert.Equal(t, uint16(200), fields.StatusCode)
}

func TestCheckMessageJSONRoundTrip(t *testing.T) {
	ts := time.Date(2026, 1, 1, 12, 30, 0, 0, time.FixedZone("", -5*3600))
	msg := CheckMessage{
		CheckID:   "c1",
		AgentID:   "agent-1",
		Timestamp: ts,
		LatencyMs: 42,
		Fields:    json.RawMessage(`{"status_code":200}`),
	}

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var got CheckMessage
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, msg.CheckID, got.CheckID)
	assert.Equal(t, msg.AgentID, got.AgentID)
	assert.True(t, msg.Timestamp.Equal(got.Timestamp))
	assert.Equal(t, msg.LatencyMs, got.LatencyMs)
	assert.JSONEq(t, string(msg.Fields), string(got.Fields))
}

func TestBucketStatus(t *testing.T) {
	tests := []struct {
		status int
		want   StatusCodeCount
	}{
		{200, StatusCodeCount{Count200: 1}},
		{299, StatusCodeCount{Count200: 1}},
		{301, StatusCodeCount{Count300: 1}},
		{404, StatusCodeCount{Count400: 1}},
		{503, StatusCodeCount{Count500: 1}},
		{700, StatusCodeCount{}}, // dropped, no bucket
	}

	for _, tt := range tests {
		var counts StatusCodeCount
		BucketStatus(&counts, tt.status)
		assert.Equal(t, tt.want, counts)
	}
}

func TestBucketStatusAccumulates(t *testing.T) {
	var counts StatusCodeCount
	BucketStatus(&counts, 200)
	BucketStatus(&counts, 200)
	BucketStatus(&counts, 500)
	assert.Equal(t, StatusCodeCount{Count200: 2, Count500: 1}, counts)
}

func TestParseCheckType(t *testing.T) {
	got, err := ParseCheckType("http")
	require.NoError(t, err)
	assert.Equal(t, CheckTypeHTTP, got)

	_, err = ParseCheckType("bogus")
	assert.Error(t, err)
}

func TestAggregateMessageJSONRoundTrip(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	agg := AggregateMessage{
		CheckID:     "c1",
		Timestamp:   ts,
		LatencyMs:   30,
		StatusCodes: StatusCodeCount{Count200: 2, Count500: 1},
	}
	data, err := json.Marshal(agg)
	require.NoError(t, err)

	var got AggregateMessage
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, agg.CheckID, got.CheckID)
	assert.True(t, agg.Timestamp.Equal(got.Timestamp))
	assert.Equal(t, agg.LatencyMs, got.LatencyMs)
	assert.Equal(t, agg.StatusCodes, got.StatusCodes)
}
