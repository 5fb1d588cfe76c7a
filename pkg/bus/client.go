// Package bus wires the process to the durable message bus: connection
// bootstrap and the topic-naming conventions every producer and consumer in
// this system shares.
package bus

import (
	"fmt"

	"github.com/apache/pulsar-client-go/pulsar"
)

// ConnectionConfig is the subset of process configuration client.go needs
// to open a connection, grounded on the original ping-agent pulsar_client.rs
// PulsarConnectionData.
type ConnectionConfig struct {
	Address   string
	Token     string
	Tenant    string
	Namespace string
}

// NewClient opens a connection to the bus. A non-empty Token enables
// token authentication; an empty one connects unauthenticated (local dev).
func NewClient(cfg ConnectionConfig) (pulsar.Client, error) {
	opts := pulsar.ClientOptions{URL: cfg.Address}
	if cfg.Token != "" {
		opts.Authentication = pulsar.NewAuthenticationToken(cfg.Token)
	}

	client, err := pulsar.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("bus: connecting to %s: %w", cfg.Address, err)
	}
	return client, nil
}

// CommandTopic is the topic the agent's CommandLoop consumes from.
func CommandTopic(cfg ConnectionConfig, name string) string {
	return fmt.Sprintf("persistent://%s/%s/%s", cfg.Tenant, cfg.Namespace, name)
}

// ResultTopic is the per-kind topic ResultSink publishes raw results to and
// AggregatorSource consumes from, per §6: persistent://tenant/namespace/kind.
func ResultTopic(cfg ConnectionConfig, kind string) string {
	return fmt.Sprintf("persistent://%s/%s/%s", cfg.Tenant, cfg.Namespace, kind)
}

// AggregateTopic is the per-kind topic AggregateSink publishes closed
// rounds to, per §6: persistent://tenant/namespace/aggregated-kind.
func AggregateTopic(cfg ConnectionConfig, kind string) string {
	return fmt.Sprintf("persistent://%s/%s/aggregated-%s", cfg.Tenant, cfg.Namespace, kind)
}
