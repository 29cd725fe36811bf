// Package engine wires configuration, the compiled catalogue, the kafka
// source and the listeners into one process.
package engine

import (
	"context"
	"fmt"
	"net"

	"docgen/internal/config"
	"docgen/internal/fo"
	"docgen/internal/logging"
	"docgen/internal/pipeline"
	"docgen/internal/telemetry"
	"docgen/internal/template"
	"docgen/internal/transform"
	"docgen/internal/transport"
	"docgen/sink"
	_ "docgen/sink/file"
	_ "docgen/sink/kafka"
	"docgen/source/kafka"
)

func Bootstrap(ctx context.Context, cfg config.Server) (*Engine, error) {
	logging.Configure(cfg.Log)

	// 1. templates
	cache := template.NewCache(&transform.Xsltproc{Path: cfg.Xsltproc.Path})
	runner, err := pipeline.Compile(ctx, cfg.Catalogue, cache, pipeline.Options{
		Workers:  cfg.CompileWorkers,
		Renderer: &fo.FOP{Path: cfg.FOP.Path},
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	e := &Engine{runner: runner}

	// 2. kafka
	if cfg.KafkaEnabled() {
		if err := startKafka(ctx, cfg, runner); err != nil {
			_ = runner.Close()
			return nil, fmt.Errorf("kafka: %w", err)
		}
	}

	// 3. listeners
	if cfg.GRPCPort > 0 {
		if e.grpc, err = transport.StartServer(cfg.GRPCPort, runner); err != nil {
			_ = runner.Close()
			return nil, fmt.Errorf("grpc: %w", err)
		}
	}
	if cfg.HTTPPort > 0 {
		e.http = transport.NewHTTPServer(cfg.HTTPPort, runner, cfg.StreamHTTP)
		if e.httpLis, err = net.Listen("tcp", e.http.Addr); err != nil {
			if e.grpc != nil {
				e.grpc.Stop()
			}
			_ = runner.Close()
			return nil, fmt.Errorf("http: %w", err)
		}
	}

	// 4. metrics
	if cfg.MetricsPort > 0 {
		e.metrics = telemetry.Expose(cfg.MetricsPort)
	}

	logging.L().Info("engine: ready",
		"documents", len(runner.Names()),
		"problems", len(runner.Problems()),
		"grpc_port", cfg.GRPCPort,
		"http_port", cfg.HTTPPort,
		"kafka", cfg.KafkaEnabled())
	return e, nil
}

func startKafka(ctx context.Context, cfg config.Server, runner *pipeline.Runner) error {
	src, err := kafka.NewAdapter(cfg.Kafka.Source.Driver)
	if err != nil {
		return err
	}
	if err := src.Configure(cfg.Kafka.Source); err != nil {
		return err
	}
	runner.SetSource(src)

	out, err := newSink(cfg)
	if err != nil {
		return err
	}
	runner.SetSink(out)
	return runner.Start(ctx)
}

// newSink publishes to kafka when sink brokers are configured and writes
// files otherwise.
func newSink(cfg config.Server) (sink.Adapter, error) {
	name, c := "file", any(cfg.FileSink)
	if len(cfg.Kafka.Sink.Brokers) > 0 {
		name, c = "kafka", cfg.Kafka.Sink
	}
	s, err := sink.NewAdapter(name)
	if err != nil {
		return nil, err
	}
	if err := s.Configure(c); err != nil {
		return nil, err
	}
	return s, nil
}
