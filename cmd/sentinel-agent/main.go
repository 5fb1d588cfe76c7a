package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pulsegrid/sentinel/pkg/bus"
	"github.com/pulsegrid/sentinel/pkg/checks"
	"github.com/pulsegrid/sentinel/pkg/config"
	"github.com/pulsegrid/sentinel/pkg/log"
	"github.com/pulsegrid/sentinel/pkg/metrics"
	"github.com/pulsegrid/sentinel/pkg/probe"
	"github.com/pulsegrid/sentinel/pkg/scheduler"
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
	Use:     "sentinel-agent",
	Short:   "Sentinel regional agent: runs checks on a schedule and publishes results",
	Version: Version,
	RunE:    runAgent,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("sentinel-agent %s (%s)\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.Flags().String("config", "", "Path to an optional YAML config overlay")
	rootCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Metrics/health HTTP listen address")

	cobra.OnInitialize(initLogging)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})
}

func runAgent(cmd *cobra.Command, args []string) error {
	overlay, _ := cmd.Flags().GetString("config")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	cfg, err := config.Load(overlay)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Jobs > 0 {
		runtime.GOMAXPROCS(cfg.Jobs)
	}

	logger := log.WithAgentID(cfg.AgentID)
	metrics.SetVersion(Version)
	metrics.SetCriticalComponents([]string{"bus"})
	metrics.RegisterComponent("bus", false, "connecting")
	metrics.RegisterComponent("scheduler", true, "running")

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

	clientPool := probe.NewPool(probe.NewHTTPClient)
	metrics.ClientPoolSize.Set(float64(clientPool.Size()))

	resultSink := sink.NewResultSink(cfg.AgentID, producerFactory(client), func(kind checks.CheckType) string {
		return bus.ResultTopic(connCfg, kind.String())
	})
	resultSink.Start()
	defer resultSink.Stop()

	commandLoop := scheduler.NewCommandLoop(clientPool, cfg.TaskPoolsSize, func(r checks.ProbeResult) {
		resultSink.Enqueue(checks.CheckTypeHTTP, r)
	})
	defer commandLoop.Stop()

	consumer, err := client.Subscribe(pulsar.ConsumerOptions{
		Topic:            bus.CommandTopic(connCfg, cfg.PulsarTopic),
		SubscriptionName: cfg.SubscriptionID,
		Type:             pulsar.Failover,
	})
	if err != nil {
		return fmt.Errorf("subscribing to command topic: %w", err)
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go consumeCommands(ctx, consumer, commandLoop, logger)

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

func consumeCommands(ctx context.Context, consumer pulsar.Consumer, cl *scheduler.CommandLoop, logger zerolog.Logger) {
	for {
		msg, err := consumer.Receive(ctx)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				logger.Warn().Err(err).Msg("command receive failed")
				continue
			}
		}

		var cmd checks.Command
		if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
			logger.Warn().Err(err).Msg("dropping malformed command")
			_ = consumer.Ack(msg)
			continue
		}

		cl.Handle(cmd)
		if err := consumer.Ack(msg); err != nil {
			logger.Warn().Err(err).Str("command_id", cmd.ID).Msg("ack failed")
		}
	}
}

func producerFactory(client pulsar.Client) sink.ProducerFactory {
	return func(topic string) (sink.Producer, error) {
		return client.CreateProducer(pulsar.ProducerOptions{Topic: topic})
	}
}
