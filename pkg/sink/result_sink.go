// Package sink buffers probe results and closed aggregate rounds in a
// bounded, non-blocking queue and publishes them to the bus, retrying
// transient publish failures with an exponential backoff.
package sink

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/rs/zerolog"

	"github.com/pulsegrid/sentinel/pkg/checks"
	"github.com/pulsegrid/sentinel/pkg/log"
	"github.com/pulsegrid/sentinel/pkg/metrics"
)

const (
	// DefaultQueueSize bounds how many results may be enqueued awaiting
	// publish before new results are dropped rather than blocking the
	// scheduler that produced them.
	DefaultQueueSize = 4096

	minBackoff = time.Second
	maxBackoff = 30 * time.Second
)

// Producer is the narrow slice of pulsar.Producer the sinks need. A
// *pulsar.Producer satisfies it directly; tests substitute a fake.
type Producer interface {
	Send(ctx context.Context, msg *pulsar.ProducerMessage) (pulsar.MessageID, error)
	Close()
}

// ProducerFactory opens a producer for the given topic. Tests substitute a
// fake; production code wires pulsar.Client.CreateProducer.
type ProducerFactory func(topic string) (Producer, error)

// ResultSink owns one producer per check kind and drains a bounded queue of
// probe results onto it, tagging each with the agent's ID before it leaves
// the process.
type ResultSink struct {
	agentID   string
	newProd   ProducerFactory
	topicFor  func(kind checks.CheckType) string
	queue     chan queuedResult
	logger    zerolog.Logger
	producers map[checks.CheckType]Producer

	stopCh   chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

type queuedResult struct {
	kind   checks.CheckType
	result checks.ProbeResult
}

// NewResultSink constructs a ResultSink. topicFor maps a check kind to its
// wire topic name (see pkg/bus.ResultTopic).
func NewResultSink(agentID string, newProd ProducerFactory, topicFor func(checks.CheckType) string) *ResultSink {
	return &ResultSink{
		agentID:   agentID,
		newProd:   newProd,
		topicFor:  topicFor,
		queue:     make(chan queuedResult, DefaultQueueSize),
		logger:    log.WithAgentID(agentID),
		producers: make(map[checks.CheckType]Producer),
		stopCh:    make(chan struct{}),
		stopped:   make(chan struct{}),
	}
}

// Start launches the drain loop. Call Stop to shut it down.
func (s *ResultSink) Start() {
	go s.run()
}

// Stop signals the drain loop to exit and waits for it to finish, closing
// every producer it opened. Results still queued are published first, with
// one send attempt each. Safe to call more than once.
func (s *ResultSink) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		<-s.stopped
		for _, p := range s.producers {
			p.Close()
		}
	})
}

// Enqueue submits a probe result for publish. If the queue is full the
// result is dropped and ResultSinkDroppedTotal is incremented — a slow or
// unreachable bus must never stall the scheduler.
func (s *ResultSink) Enqueue(kind checks.CheckType, result checks.ProbeResult) {
	select {
	case s.queue <- queuedResult{kind: kind, result: result}:
	default:
		metrics.ResultSinkDroppedTotal.Inc()
		s.logger.Warn().Str("check_id", result.CheckID).Msg("result sink queue full, dropping result")
	}
}

func (s *ResultSink) run() {
	defer close(s.stopped)
	for {
		select {
		case <-s.stopCh:
			for {
				select {
				case qr := <-s.queue:
					s.publish(qr)
				default:
					return
				}
			}
		case qr := <-s.queue:
			s.publish(qr)
		}
	}
}

func (s *ResultSink) publish(qr queuedResult) {
	producer, err := s.producerFor(qr.kind)
	if err != nil {
		s.logger.Error().Err(err).Str("kind", string(qr.kind)).Msg("cannot open producer, dropping result")
		metrics.ResultSinkDroppedTotal.Inc()
		return
	}

	payload, err := s.encode(qr)
	if err != nil {
		s.logger.Error().Err(err).Msg("encoding result, dropping")
		metrics.ResultSinkDroppedTotal.Inc()
		return
	}

	backoff := minBackoff
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_, err := producer.Send(ctx, &pulsar.ProducerMessage{
			Payload: payload,
			Key:     qr.result.CheckID,
		})
		cancel()
		if err == nil {
			return
		}

		s.logger.Warn().Err(err).Dur("backoff", backoff).Msg("publish failed, retrying")
		select {
		case <-s.stopCh:
			return
		case <-time.After(backoff):
		}
		if backoff < maxBackoff {
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
}

func (s *ResultSink) encode(qr queuedResult) ([]byte, error) {
	switch qr.kind {
	case checks.CheckTypeHTTP:
		msg, err := checks.NewHTTPCheckMessage(s.agentID, qr.result)
		if err != nil {
			return nil, err
		}
		return json.Marshal(msg)
	default:
		msg := checks.CheckMessage{
			CheckID:   qr.result.CheckID,
			AgentID:   s.agentID,
			Timestamp: qr.result.Timestamp,
			LatencyMs: uint64(qr.result.Latency.Milliseconds()),
		}
		return json.Marshal(msg)
	}
}

func (s *ResultSink) producerFor(kind checks.CheckType) (Producer, error) {
	if p, ok := s.producers[kind]; ok {
		return p, nil
	}
	p, err := s.newProd(s.topicFor(kind))
	if err != nil {
		return nil, err
	}
	s.producers[kind] = p
	return p, nil
}
