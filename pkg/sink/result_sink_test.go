package sink

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsegrid/sentinel/pkg/checks"
)

type fakeProducer struct {
	mu       sync.Mutex
	sent     []*pulsar.ProducerMessage
	failN    int // number of Send calls to fail before succeeding
	closed   bool
}

func (f *fakeProducer) Send(_ context.Context, msg *pulsar.ProducerMessage) (pulsar.MessageID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failN > 0 {
		f.failN--
		return nil, assert.AnError
	}
	f.sent = append(f.sent, msg)
	return nil, nil
}

func (f *fakeProducer) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeProducer) messages() []*pulsar.ProducerMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*pulsar.ProducerMessage, len(f.sent))
	copy(out, f.sent)
	return out
}

func TestResultSinkPublishesEnqueuedResult(t *testing.T) {
	fp := &fakeProducer{}
	newProd := func(topic string) (Producer, error) { return fp, nil }
	s := NewResultSink("agent-1", newProd, func(checks.CheckType) string { return "persistent://t/ns/http" })
	s.Start()
	defer s.Stop()

	s.Enqueue(checks.CheckTypeHTTP, checks.ProbeResult{CheckID: "c1", Timestamp: time.Now(), Latency: time.Millisecond, StatusCode: 200})

	require.Eventually(t, func() bool { return len(fp.messages()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, "c1", fp.messages()[0].Key)
}

func TestResultSinkDropsWhenQueueFull(t *testing.T) {
	fp := &fakeProducer{}
	blocking := make(chan struct{})
	newProd := func(topic string) (Producer, error) {
		<-blocking
		return fp, nil
	}
	s := NewResultSink("agent-1", newProd, func(checks.CheckType) string { return "t" })
	s.queue = make(chan queuedResult) // unbuffered: first enqueue is picked up immediately, second has nowhere to go
	s.Start()
	defer func() {
		close(blocking)
		s.Stop()
	}()

	s.Enqueue(checks.CheckTypeHTTP, checks.ProbeResult{CheckID: "c1"})
	time.Sleep(10 * time.Millisecond) // let run() pick up c1 and block in producerFor

	assert.NotPanics(t, func() {
		s.Enqueue(checks.CheckTypeHTTP, checks.ProbeResult{CheckID: "c2"})
	})
}

func TestResultSinkRetriesOnPublishFailure(t *testing.T) {
	fp := &fakeProducer{failN: 2}
	newProd := func(topic string) (Producer, error) { return fp, nil }
	s := NewResultSink("agent-1", newProd, func(checks.CheckType) string { return "t" })
	s.Start()
	defer s.Stop()

	s.Enqueue(checks.CheckTypeHTTP, checks.ProbeResult{CheckID: "c1"})

	require.Eventually(t, func() bool { return len(fp.messages()) == 1 }, 5*time.Second, 50*time.Millisecond)
}

func TestResultSinkStopIsIdempotent(t *testing.T) {
	fp := &fakeProducer{}
	newProd := func(topic string) (Producer, error) { return fp, nil }
	s := NewResultSink("agent-1", newProd, func(checks.CheckType) string { return "t" })
	s.Start()

	assert.NotPanics(t, func() {
		s.Stop()
		s.Stop()
	})
}

func TestResultSinkReusesProducerPerKind(t *testing.T) {
	var opens int
	fp := &fakeProducer{}
	newProd := func(topic string) (Producer, error) {
		opens++
		return fp, nil
	}
	s := NewResultSink("agent-1", newProd, func(checks.CheckType) string { return "t" })
	s.Start()
	defer s.Stop()

	s.Enqueue(checks.CheckTypeHTTP, checks.ProbeResult{CheckID: "c1"})
	s.Enqueue(checks.CheckTypeHTTP, checks.ProbeResult{CheckID: "c2"})

	require.Eventually(t, func() bool { return len(fp.messages()) == 2 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, opens)
}
