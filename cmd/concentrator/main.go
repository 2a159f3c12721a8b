// Command concentrator runs a measurement concentrator between NATS subjects.
//
// Measurement batches are read from -input, sorted into frames and every
// frame is published to the JetStream stream bound to -output.
//
//	concentrator -config concentrator.yaml -nats-url nats://localhost:4222
//	concentrator -embedded -simulate 12
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	concentrator "github.com/GridProtectionAlliance/gsf-sub046"
	"github.com/GridProtectionAlliance/gsf-sub046/internal/heartbeat"
	"github.com/GridProtectionAlliance/gsf-sub046/internal/kvutil"
	"github.com/GridProtectionAlliance/gsf-sub046/internal/logging"
	"github.com/GridProtectionAlliance/gsf-sub046/internal/natsutil"
	"github.com/GridProtectionAlliance/gsf-sub046/natsbus"
)

type options struct {
	configPath    string
	natsURL       string
	embedded      bool
	metricsAddr   string
	inputSubject  string
	outputSubject string
	streamName    string
	latestBucket  string
	queueGroup    string
	instance      string
	statusBucket  string
	simulate      int
	debug         bool
}

func parseFlags() options {
	var opts options

	flag.StringVar(&opts.configPath, "config", "", "Path to YAML configuration file (defaults when empty)")
	flag.StringVar(&opts.natsURL, "nats-url", nats.DefaultURL, "NATS server URL")
	flag.BoolVar(&opts.embedded, "embedded", false, "Start an in-process NATS server instead of connecting")
	flag.StringVar(&opts.metricsAddr, "metrics-addr", ":9090", "Prometheus listen address (disabled when empty)")
	flag.StringVar(&opts.inputSubject, "input", "measurements.>", "Subject carrying measurement batches")
	flag.StringVar(&opts.outputSubject, "output", "frames.concentrated", "Subject frames are published on")
	flag.StringVar(&opts.streamName, "stream", "FRAMES", "JetStream stream for published frames")
	flag.StringVar(&opts.latestBucket, "latest-bucket", "", "KV bucket receiving the latest value per signal")
	flag.StringVar(&opts.queueGroup, "queue-group", "", "Queue group shared by concentrator instances")
	flag.StringVar(&opts.instance, "instance", defaultInstance(), "Instance name used for the status heartbeat")
	flag.StringVar(&opts.statusBucket, "status-bucket", "", "KV bucket receiving periodic status heartbeats")
	flag.IntVar(&opts.simulate, "simulate", 0, "Publish synthetic measurements for this many signals")
	flag.BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	flag.Parse()

	return opts
}

func main() {
	opts := parseFlags()

	zl, err := newZap(opts.debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger := logging.NewZap(zl)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, logger); err != nil {
		logger.Error("concentrator exited", "error", err)
		_ = logger.Sync()
		os.Exit(1)
	}
}

func defaultInstance() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "concentrator"
	}

	return strings.ReplaceAll(host, ".", "-")
}

func newZap(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	return cfg.Build()
}

func loadConfig(path string) (concentrator.Config, error) {
	if path == "" {
		return concentrator.DefaultConfig(), nil
	}

	return concentrator.LoadConfig(path)
}

func connect(opts options, logger *logging.ZapLogger) (*nats.Conn, func(), error) {
	if opts.embedded {
		ns, nc, err := natsutil.StartEmbedded(natsutil.EmbeddedOptions{})
		if err != nil {
			return nil, nil, err
		}
		logger.Info("embedded NATS server started", "url", ns.ClientURL())

		return nc, func() {
			nc.Close()
			ns.Shutdown()
			ns.WaitForShutdown()
		}, nil
	}

	nc, err := nats.Connect(opts.natsURL,
		nats.Name("concentrator"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to %s: %w", opts.natsURL, err)
	}

	return nc, nc.Close, nil
}

func run(ctx context.Context, opts options, logger *logging.ZapLogger) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}

	nc, closeConn, err := connect(opts, logger)
	if err != nil {
		return err
	}
	defer closeConn()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := concentrator.NewPrometheusMetrics(reg, "concentrator")

	pubOpts := []natsbus.PublisherOption{
		natsbus.WithStreamName(opts.streamName),
		natsbus.WithPublisherLogger(logger.Named("publisher")),
		natsbus.WithPublisherMetrics(collector),
	}
	if opts.latestBucket != "" {
		pubOpts = append(pubOpts, natsbus.WithLatestValueBucket(opts.latestBucket))
	}
	pub := natsbus.NewFramePublisher(js, opts.outputSubject, pubOpts...)
	if err := pub.EnsureStream(ctx); err != nil {
		return err
	}

	hooks := &concentrator.Hooks{
		OnUnpublishedSamples: func(_ context.Context, seconds int) error {
			if seconds > 0 {
				logger.Warn("publication is falling behind", "unpublishedSeconds", seconds)
			}
			return nil
		},
	}

	conc, err := concentrator.NewConcentrator(&cfg, pub,
		concentrator.WithLogger(logger.Named("concentrator")),
		concentrator.WithMetrics(collector),
		concentrator.WithHooks(hooks),
	)
	if err != nil {
		return err
	}
	defer func() { _ = conc.Close() }()

	ingOpts := []natsbus.IngestorOption{
		natsbus.WithIngestLogger(logger.Named("ingestor")),
		natsbus.WithIngestMetrics(collector),
	}
	if opts.queueGroup != "" {
		ingOpts = append(ingOpts, natsbus.WithQueueGroup(opts.queueGroup))
	}
	ing := natsbus.NewIngestor(nc, opts.inputSubject, conc, ingOpts...)

	if err := conc.Start(); err != nil {
		return err
	}
	if err := ing.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = ing.Stop() }()

	if opts.statusBucket != "" {
		hb, err := startHeartbeat(ctx, js, opts, conc, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := hb.Stop(); err != nil {
				logger.Warn("failed to stop heartbeat", "error", err)
			}
		}()
	}

	g, gctx := errgroup.WithContext(ctx)

	if opts.metricsAddr != "" {
		srv := &http.Server{
			Addr:              opts.metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("metrics endpoint listening", "addr", opts.metricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if opts.simulate > 0 {
		sim, err := natsbus.NewSimulator(nc, natsbus.SimulatorConfig{
			Subject:         simulationSubject(opts.inputSubject),
			Signals:         opts.simulate,
			FramesPerSecond: cfg.FramesPerSecond,
			Shuffle:         true,
		}, nil, logger.Named("simulator"))
		if err != nil {
			return err
		}
		g.Go(func() error { return sim.Run(gctx) })
	}

	g.Go(func() error {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				st := conc.Statistics()
				logger.Info("concentrator statistics",
					"published", st.PublishedFrames,
					"discarded", st.DiscardedEntities,
					"avgPublish", st.AveragePublishTime,
					"queue", conc.QueueState())
			}
		}
	})

	logger.Info("concentrator running",
		"input", opts.inputSubject, "output", opts.outputSubject, "fps", cfg.FramesPerSecond)

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("shutting down")
	fmt.Fprint(os.Stderr, conc.Status())

	return nil
}

const heartbeatInterval = 5 * time.Second

func startHeartbeat(
	ctx context.Context,
	js jetstream.JetStream,
	opts options,
	conc *concentrator.Concentrator,
	logger *logging.ZapLogger,
) (*heartbeat.Publisher, error) {
	kv, err := kvutil.EnsureKVBucketWithRetry(ctx, js, jetstream.KeyValueConfig{
		Bucket:      opts.statusBucket,
		Description: "Concentrator instance status",
		History:     1,
		TTL:         3 * heartbeatInterval,
	}, 3)
	if err != nil {
		return nil, err
	}

	hb := heartbeat.New(kv, "status", opts.instance, heartbeatInterval, func() any {
		return map[string]any{
			"state":      conc.State().String(),
			"statistics": conc.Statistics(),
			"queue":      conc.QueueState(),
		}
	})
	hb.SetLogger(logger.Named("heartbeat"))

	if err := hb.Start(ctx); err != nil {
		return nil, err
	}

	return hb, nil
}

// simulationSubject turns a wildcard input subject into a concrete one.
func simulationSubject(input string) string {
	switch {
	case input == ">":
		return "simulated"
	case len(input) > 2 && input[len(input)-2:] == ".>":
		return input[:len(input)-1] + "simulated"
	case len(input) > 2 && input[len(input)-2:] == ".*":
		return input[:len(input)-1] + "simulated"
	default:
		return input
	}
}
