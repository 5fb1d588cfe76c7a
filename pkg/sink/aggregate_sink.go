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

// AggregateSink is ResultSink's counterpart for the offloader side: it
// drains closed aggregation rounds onto the per-kind aggregated-<kind>
// topic, with the same bounded-queue, drop-newest, retry-with-backoff shape.
type AggregateSink struct {
	newProd  ProducerFactory
	topicFor func(kind checks.CheckType) string
	queue    chan queuedAggregate
	logger   zerolog.Logger
	producer Producer
	kind     checks.CheckType

	stopCh   chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

type queuedAggregate struct {
	kind checks.CheckType
	msg  checks.AggregateMessage
}

// NewAggregateSink constructs an AggregateSink bound to a single check kind;
// the offloader runs one per kind it aggregates.
func NewAggregateSink(kind checks.CheckType, newProd ProducerFactory, topicFor func(checks.CheckType) string) *AggregateSink {
	return &AggregateSink{
		newProd:  newProd,
		topicFor: topicFor,
		kind:     kind,
		queue:    make(chan queuedAggregate, DefaultQueueSize),
		logger:   log.Logger.With().Str("kind", string(kind)).Logger(),
		stopCh:   make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Start launches the drain loop.
func (s *AggregateSink) Start() {
	go s.run()
}

// Stop signals the drain loop to exit, waits for it, and closes the
// producer. Rounds still queued are published first, with one send attempt
// each. Safe to call more than once.
func (s *AggregateSink) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		<-s.stopped
		if s.producer != nil {
			s.producer.Close()
		}
	})
}

// Enqueue submits a closed aggregation round for publish, dropping it and
// incrementing AggregateSinkDroppedTotal if the queue is full.
func (s *AggregateSink) Enqueue(msg checks.AggregateMessage) {
	select {
	case s.queue <- queuedAggregate{kind: s.kind, msg: msg}:
	default:
		metrics.AggregateSinkDroppedTotal.Inc()
		s.logger.Warn().Str("check_id", msg.CheckID).Msg("aggregate sink queue full, dropping round")
	}
}

func (s *AggregateSink) run() {
	defer close(s.stopped)
	for {
		select {
		case <-s.stopCh:
			for {
				select {
				case qa := <-s.queue:
					s.publish(qa)
				default:
					return
				}
			}
		case qa := <-s.queue:
			s.publish(qa)
		}
	}
}

func (s *AggregateSink) publish(qa queuedAggregate) {
	producer, err := s.producerFor()
	if err != nil {
		s.logger.Error().Err(err).Msg("cannot open producer, dropping round")
		metrics.AggregateSinkDroppedTotal.Inc()
		return
	}

	payload, err := json.Marshal(qa.msg)
	if err != nil {
		s.logger.Error().Err(err).Msg("encoding round, dropping")
		metrics.AggregateSinkDroppedTotal.Inc()
		return
	}

	backoff := minBackoff
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_, err := producer.Send(ctx, &pulsar.ProducerMessage{
			Payload: payload,
			Key:     qa.msg.CheckID,
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

func (s *AggregateSink) producerFor() (Producer, error) {
	if s.producer != nil {
		return s.producer, nil
	}
	p, err := s.newProd(s.topicFor(s.kind))
	if err != nil {
		return nil, err
	}
	s.producer = p
	return p, nil
}
