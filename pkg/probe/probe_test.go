package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pulsegrid/sentinel/pkg/checks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJobHTTPGetsRealContext(t *testing.T) {
	check := checks.Check{
		ID:         "c1",
		Interval:   5,
		MaxLatency: 1,
		Kind:       checks.CheckKind{Kind: checks.KindHTTP, Http: &checks.HTTPCheck{URI: "http://localhost/ping"}},
	}
	job := NewJob(check)

	require.Equal(t, checks.KindHTTP, job.Kind)
	require.NotNil(t, job.HTTP)
	assert.Equal(t, "http://localhost/ping", job.HTTP.URL)
}

func TestNewJobNonHTTPFallsBackToDummy(t *testing.T) {
	check := checks.Check{
		ID:         "c1",
		Interval:   5,
		MaxLatency: 1,
		Kind:       checks.CheckKind{Kind: checks.KindTCP, Tcp: &checks.TCPCheck{Host: "x", Port: 80}},
	}
	job := NewJob(check)

	assert.Equal(t, checks.KindDummy, job.Kind)
	assert.Nil(t, job.HTTP)
}

func TestExecuteHTTPJobUsesPool(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer server.Close()

	pool := NewPoolWithCapacity(NewHTTPClient, 1, 1)
	check := checks.Check{ID: "c1", Interval: 1, MaxLatency: 1,
		Kind: checks.CheckKind{Kind: checks.KindHTTP, Http: &checks.HTTPCheck{URI: server.URL}}}
	job := NewJob(check)

	result := Execute(context.Background(), job, pool)
	assert.Equal(t, http.StatusTeapot, result.StatusCode)
}

func TestExecuteDummyJobNeverPanics(t *testing.T) {
	pool := NewPoolWithCapacity(NewHTTPClient, 1, 1)
	job := Job{CheckID: "c1", Kind: checks.KindDummy}

	result := Execute(context.Background(), job, pool)
	assert.Equal(t, "c1", result.CheckID)
	assert.Equal(t, 0, result.StatusCode)
}
