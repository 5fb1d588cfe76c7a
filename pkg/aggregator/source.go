// Package aggregator consumes per-agent check results off the bus and
// folds them into per-check rounds, deduplicated and emitted on a close
// rule, per §4.6-§4.7.
package aggregator

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/rs/zerolog"

	"github.com/pulsegrid/sentinel/pkg/broadcast"
	"github.com/pulsegrid/sentinel/pkg/checks"
	"github.com/pulsegrid/sentinel/pkg/log"
)

// Consumer is the narrow slice of pulsar.Consumer the source needs. A
// *pulsar.Consumer created with a Failover subscription and ReadCompacted
// satisfies it directly; tests substitute a fake.
type Consumer interface {
	Receive(ctx context.Context) (pulsar.Message, error)
	Ack(pulsar.Message) error
	Close()
}

// Reading is a single deserialized check result, ready to be folded into an
// AggregateBuffer.
type Reading struct {
	CheckID    string
	AgentID    string
	Timestamp  time.Time
	LatencyMs  uint64
	StatusCode int
}

// AggregatorSource consumes CheckMessages off a failover subscription and
// fans valid readings into a bounded broadcast.Broker, so a slow Aggregator
// never stalls the consumer's Ack loop.
type AggregatorSource struct {
	consumer Consumer
	broker   *broadcast.Broker[Reading]
	logger   zerolog.Logger

	stopCh   chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// NewAggregatorSource builds a source over an already-subscribed consumer.
func NewAggregatorSource(consumer Consumer, kind checks.CheckType) *AggregatorSource {
	return &AggregatorSource{
		consumer: consumer,
		broker:   broadcast.NewBroker[Reading](),
		logger:   log.Logger.With().Str("kind", string(kind)).Logger(),
		stopCh:   make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Readings returns a subscription to every Reading the source decodes.
func (s *AggregatorSource) Readings() broadcast.Subscriber[Reading] {
	return s.broker.Subscribe()
}

// Start launches the receive loop.
func (s *AggregatorSource) Start() {
	go s.run()
}

// Stop signals the receive loop to exit, waits for it, and closes the
// underlying consumer. Safe to call more than once.
func (s *AggregatorSource) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		<-s.stopped
		s.consumer.Close()
	})
}

func (s *AggregatorSource) run() {
	defer close(s.stopped)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		<-s.stopCh
		cancel()
	}()

	for {
		msg, err := s.consumer.Receive(ctx)
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
				s.logger.Warn().Err(err).Msg("receive failed")
				continue
			}
		}

		reading, err := decode(msg)
		if err != nil {
			s.logger.Warn().Err(err).Msg("dropping malformed check message")
			_ = s.consumer.Ack(msg)
			continue
		}

		s.broker.Publish(reading)
		if err := s.consumer.Ack(msg); err != nil {
			s.logger.Warn().Err(err).Str("check_id", reading.CheckID).Msg("ack failed")
		}
	}
}

func decode(msg pulsar.Message) (Reading, error) {
	var wire checks.CheckMessage
	if err := json.Unmarshal(msg.Payload(), &wire); err != nil {
		return Reading{}, err
	}

	var fields checks.HTTPFields
	statusCode := 0
	if len(wire.Fields) > 0 {
		if err := json.Unmarshal(wire.Fields, &fields); err == nil {
			statusCode = int(fields.StatusCode)
		}
	}

	return Reading{
		CheckID:    wire.CheckID,
		AgentID:    wire.AgentID,
		Timestamp:  wire.Timestamp,
		LatencyMs:  wire.LatencyMs,
		StatusCode: statusCode,
	}, nil
}
