package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/spf13/cobra"

	"github.com/pulsegrid/sentinel/pkg/aggregator"
	"github.com/pulsegrid/sentinel/pkg/bus"
	"github.com/pulsegrid/sentinel/pkg/checks"
	"github.com/pulsegrid/sentinel/pkg/config"
	"github.com/pulsegrid/sentinel/pkg/log"
	"github.com/pulsegrid/sentinel/pkg/metrics"
	"github.com/pulsegrid/sentinel/pkg/sink"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "sentinel-offloader",
	Short:   "Sentinel offloader: aggregates per-agent results into closed rounds",
	Version: Version,
	RunE:    runOffloader,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("sentinel-offloader %s (%s)\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.Flags().String("config", "", "Path to an optional YAML config overlay")
	rootCmd.Flags().String("metrics-addr", "127.0.0.1:9091", "Metrics/health HTTP listen address")

	cobra.OnInitialize(initLogging)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})
}

// aggregatedKinds lists the check kinds this offloader builds rounds for.
// Only http is produced today; the list exists so adding a kind is a
// one-line change, not a rewrite.
var aggregatedKinds = []checks.CheckType{checks.CheckTypeHTTP}

func runOffloader(cmd *cobra.Command, args []string) error {
	overlay, _ := cmd.Flags().GetString("config")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	cfg, err := config.Load(overlay)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Jobs > 0 {
		runtime.GOMAXPROCS(cfg.Jobs)
	}

	logger := log.WithComponent("offloader")
	metrics.SetVersion(Version)
	metrics.SetCriticalComponents([]string{"bus"})
	metrics.RegisterComponent("bus", false, "connecting")

	connCfg := bus.ConnectionConfig{
		Address:   cfg.PulsarAddress,
		Token:     cfg.PulsarToken,
		Tenant:    cfg.PulsarTenant,
		Namespace: cfg.PulsarNamespace,
	}
	client, err := bus.NewClient(connCfg)
	if err != nil {
		return fmt.Errorf("connecting to bus: %w", err)
	}
	defer client.Close()
	metrics.RegisterComponent("bus", true, "connected")

	var sources []*aggregator.AggregatorSource
	var sinks []*aggregate
	for _, kind := range aggregatedKinds {
		consumer, err := client.Subscribe(pulsar.ConsumerOptions{
			Topic:            bus.ResultTopic(connCfg, kind.String()),
			SubscriptionName: cfg.SubscriptionID,
			Type:             pulsar.Failover,
			ReadCompacted:    true,
		})
		if err != nil {
			return fmt.Errorf("subscribing to %s results: %w", kind, err)
		}

		src := aggregator.NewAggregatorSource(consumer, kind)
		aggSink := sink.NewAggregateSink(kind, producerFactory(client), func(k checks.CheckType) string {
			return bus.AggregateTopic(connCfg, k.String())
		})
		agg := aggregator.NewAggregator(func(m checks.AggregateMessage) { aggSink.Enqueue(m) })

		aggSink.Start()
		src.Start()
		go feed(agg, src.Readings())

		sources = append(sources, src)
		sinks = append(sinks, &aggregate{sink: aggSink, agg: agg})
	}

	defer func() {
		for _, src := range sources {
			src.Stop()
		}
		for _, s := range sinks {
			s.agg.Flush()
			s.sink.Stop()
		}
	}()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.Handle("/health", metrics.HealthHandler())
		mux.Handle("/ready", metrics.ReadyHandler())
		mux.Handle("/live", metrics.LivenessHandler())
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			logger.Error().Err(err).Msg("metrics server exited")
		}
	}()
	logger.Info().Str("addr", metricsAddr).Msg("metrics endpoint listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	logger.Info().Msg("shutting down")
	return nil
}

type aggregate struct {
	sink *sink.AggregateSink
	agg  *aggregator.Aggregator
}

func feed(agg *aggregator.Aggregator, readings <-chan aggregator.Reading) {
	for r := range readings {
		agg.Ingest(r)
	}
}

func producerFactory(client pulsar.Client) sink.ProducerFactory {
	return func(topic string) (sink.Producer, error) {
		return client.CreateProducer(pulsar.ProducerOptions{Topic: topic})
	}
}
