// Command xtts-server serves XTTS v2 voice-cloning synthesis over HTTP and,
// optionally, over NATS.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/champierre/saym/internal/config"
	"github.com/champierre/saym/internal/core"
	"github.com/champierre/saym/internal/gateway"
	"github.com/champierre/saym/internal/metrics"
	"github.com/champierre/saym/internal/objectstore"
	"github.com/champierre/saym/internal/scratch"
	"github.com/champierre/saym/internal/server"
	"github.com/champierre/saym/internal/tts"
	"github.com/champierre/saym/internal/worker"
	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"
)

const (
	bootstrapLogFile = "xtts-server-bootstrap.log"
	serverLogFile    = "xtts-server.log"
)

// Flag names and descriptions.
const (
	flagHost        = "host"
	flagPort        = "port"
	flagSpeaker     = "speaker"
	flagConfig      = "config"
	flagDebug       = "debug"
	flagHostDesc    = "Host to bind to"
	flagPortDesc    = "Port to bind to"
	flagSpeakerDesc = "Default speaker WAV file"
	flagConfigDesc  = "Path to a TOML config file (central configuration when empty)"
	flagDebugDesc   = "Run gin in debug mode"
)

type appFlags struct {
	overrides  config.Overrides
	configPath string
	debug      bool
}

func parseFlags() appFlags {
	var flags appFlags

	flag.StringVar(&flags.overrides.Host, flagHost, "", flagHostDesc+" (default \""+config.DefaultHost+"\")")
	flag.IntVar(&flags.overrides.Port, flagPort, 0, fmt.Sprintf("%s (default %d)", flagPortDesc, config.DefaultPort))
	flag.StringVar(&flags.overrides.Speaker, flagSpeaker, "", flagSpeakerDesc)
	flag.StringVar(&flags.configPath, flagConfig, "", flagConfigDesc)
	flag.BoolVar(&flags.debug, flagDebug, false, flagDebugDesc)
	flag.Parse()

	return flags
}

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger in %s: %w", logPath, err)
	}

	return log, nil
}

func run() error {
	flags := parseFlags()

	// 1. Bootstrap logger until the configured log directory is known.
	bootstrapLog, err := setupLogger(os.TempDir(), bootstrapLogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	defer func() {
		_ = bootstrapLog.Close()
	}()

	// 2. Configuration: defaults, file or central config, environment, flags.
	cfg, err := config.Load(flags.configPath, bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	cfg.Apply(flags.overrides)

	err = cfg.Validate()
	if err != nil {
		bootstrapLog.Error("Invalid configuration: %v", err)

		return fmt.Errorf("invalid configuration: %w", err)
	}

	// 3. Final logger.
	log, err := setupLogger(cfg.Paths.BaseLogsDir, serverLogFile)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := log.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, flags.debug, log)
}

func serve(ctx context.Context, cfg *config.Config, debug bool, log *logger.Logger) error {
	m := metrics.New()

	engine, err := buildEngine(ctx, cfg, log)
	if err != nil {
		return err
	}

	serialized := tts.NewSerialized(engine, m.ObserveQueueWait)

	scratchDir, err := scratch.New(cfg.Paths.TempDir, log)
	if err != nil {
		return err
	}

	// The startup speaker is taken as given; set_speaker validates later changes.
	if cfg.Speaker.Default != "" {
		_, statErr := os.Stat(cfg.Speaker.Default)
		if statErr != nil {
			log.Warn("Default speaker %s is not readable yet: %v", cfg.Speaker.Default, statErr)
		}

		log.Info("Default speaker set to %s", cfg.Speaker.Default)
	}

	gw := gateway.New(
		serialized,
		scratchDir,
		gateway.NewVoiceRegistry(cfg.Speaker.Default),
		gateway.Options{
			ModelID:         cfg.Engine.ModelID,
			DefaultLanguage: cfg.Engine.DefaultLanguage,
			EngineTimeout:   time.Duration(cfg.Engine.TimeoutSeconds) * time.Second,
			Recorder:        m,
		},
		log,
	)

	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router, err := server.NewRouter(server.Options{Gateway: gw, Logger: log, Metrics: m})
	if err != nil {
		return fmt.Errorf("failed to build router: %w", err)
	}

	var natsWorker *worker.NatsWorker

	if cfg.NATS.Enabled() {
		var closeNATS func()

		natsWorker, closeNATS, err = buildWorker(cfg, gw, m, log)
		if err != nil {
			return err
		}
		defer closeNATS()
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return server.New(cfg.Server.Address(), router, log).Run(groupCtx)
	})

	if natsWorker != nil {
		group.Go(func() error {
			return natsWorker.Run(groupCtx)
		})
	}

	log.System("XTTS server started: model=%s device=%s engine=%s address=%s",
		cfg.Engine.ModelID, serialized.Device(), cfg.Engine.Kind, cfg.Server.Address())

	err = group.Wait()
	if err != nil {
		log.Error("Server stopped with error: %v", err)

		return err
	}

	log.Info("Server stopped")

	return nil
}

// buildEngine selects the engine named by the configuration.
func buildEngine(ctx context.Context, cfg *config.Config, log *logger.Logger) (core.SynthesisEngine, error) {
	device := tts.ResolveDevice(cfg.Engine.Device, tts.CUDAAvailable)
	timeout := time.Duration(cfg.Engine.TimeoutSeconds) * time.Second

	switch cfg.Engine.Kind {
	case config.EngineCLI:
		log.Info("Using tts executable %s with model %s on %s",
			cfg.Engine.BinaryPath, cfg.Engine.ModelName, device)

		return tts.NewCLIEngine(cfg.Engine, device), nil
	case config.EngineHTTP:
		engine := tts.NewHTTPEngine(cfg.Engine.ServiceURL, timeout, device)

		probeCtx, cancel := context.WithTimeout(ctx, tts.HealthCheckTimeout)
		defer cancel()

		probeErr := engine.Probe(probeCtx)
		if probeErr != nil {
			log.Warn("Inference service at %s is not reachable yet: %v", cfg.Engine.ServiceURL, probeErr)
		}

		log.Info("Using inference service %s on %s", cfg.Engine.ServiceURL, engine.Device())

		return engine, nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownEngine, cfg.Engine.Kind)
	}
}

// buildWorker connects to NATS and prepares the object stores and worker.
func buildWorker(
	cfg *config.Config,
	gw *gateway.Gateway,
	m *metrics.Metrics,
	log *logger.Logger,
) (*worker.NatsWorker, func(), error) {
	natsConnection, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		natsConnection.Close()

		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	textStore, err := objectstore.New(jetstreamContext, cfg.NATS.TextObjectStoreBucket)
	if err != nil {
		natsConnection.Close()

		return nil, nil, err
	}

	audioStore, err := objectstore.New(jetstreamContext, cfg.NATS.AudioObjectStoreBucket)
	if err != nil {
		natsConnection.Close()

		return nil, nil, err
	}

	log.Info("NATS worker bound to buckets %s and %s", textStore.Bucket(), audioStore.Bucket())

	natsWorker := worker.NewNatsWorker(
		natsConnection,
		cfg.NATS.SynthesisSubject,
		textStore,
		audioStore,
		gw,
		worker.Options{
			AudioSubject: cfg.NATS.AudioChunkCreatedSubject,
			JobTimeout:   0,
			Recorder:     m,
		},
		log,
	)

	return natsWorker, natsConnection.Close, nil
}

func main() {
	err := run()
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
