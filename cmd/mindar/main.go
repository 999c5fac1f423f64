package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/navikt/mindar/pkg/config"
	"github.com/navikt/mindar/pkg/mindar"
	"github.com/navikt/mindar/pkg/retryhttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"
)

var (
	configFilePath = flag.String("config", "config.yaml", "path to config file")
	pushgatewayURL = flag.String("pushgateway", "", "push request metrics to this Prometheus pushgateway when done")
)

const (
	envPrefix = "MINDAR"
	jobName   = "mindar_cli"
)

func main() {
	flag.Usage = usage
	flag.SetInterspersed(false)
	flag.Parse()

	zlog := zerolog.New(os.Stderr).With().Timestamp().Logger()

	fileParts, err := config.ProcessConfigPath(*configFilePath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("processing config path")
	}

	cfg, err := config.NewFileSystemLoader().Load(fileParts.FileName, fileParts.Path, envPrefix, config.NewDefaultEnvBinder())
	if err != nil {
		zlog.Fatal().Err(err).Msg("loading config")
	}

	err = cfg.Validate()
	if err != nil {
		zlog.Fatal().Err(err).Msg("validating config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		zlog.Fatal().Err(err).Msg("parsing log level")
	}

	zlog = zlog.Level(level)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	reg := prometheus.NewRegistry()

	metrics := mindar.NewMetrics(jobName)
	err = metrics.Register(reg)
	if err != nil {
		zlog.Fatal().Err(err).Msg("registering metrics")
	}

	transportLog := zlog.With().Str("subsystem", "transport").Logger()

	// Exports are bounded by the stall timeout, not by a per attempt limit
	streamTransport := cfg.Transport
	streamTransport.TimeoutSec = 0

	client := mindar.New(
		cfg.Mindar.APIURL,
		cfg.Mindar.Username,
		cfg.Mindar.Password,
		retryhttp.NewClient(cfg.Transport, transportLog),
		zlog.With().Str("subsystem", "mindar").Logger(),
		mindar.WithStreamClient(retryhttp.NewClient(streamTransport, transportLog)),
		mindar.WithMetrics(metrics),
		mindar.WithExportTimeout(cfg.Export.Timeout()),
		mindar.WithDebug(cfg.Debug),
	)

	cli := &CLI{
		client: client,
		export: cfg.Export,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}

	runErr := cli.Run(ctx, flag.Args())

	if *pushgatewayURL != "" {
		err = push.New(*pushgatewayURL, jobName).Gatherer(reg).Push()
		if err != nil {
			zlog.Error().Err(err).Msg("pushing metrics")
		}
	}

	if runErr != nil {
		zlog.Fatal().Err(runErr).Msg("running command")
	}
}
