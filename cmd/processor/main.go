package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/sirupsen/logrus"

	"github.com/archivehq/evm-processor/internal/archive"
	"github.com/archivehq/evm-processor/internal/config"
	"github.com/archivehq/evm-processor/internal/database/memory"
	"github.com/archivehq/evm-processor/internal/database/pebblekv"
	"github.com/archivehq/evm-processor/internal/database/postgres"
	"github.com/archivehq/evm-processor/internal/httpserver"
	"github.com/archivehq/evm-processor/internal/metrics"
	"github.com/archivehq/evm-processor/internal/model"
	"github.com/archivehq/evm-processor/internal/processor"
	"github.com/archivehq/evm-processor/internal/query"
)

// cli mirrors config.Config's file-overridable fields as flags; values
// given on the command line win over config.yaml.
var cli struct {
	Config     string `help:"Path to the YAML configuration file." default:"config.yaml"`
	ArchiveURL string `help:"Override archive_url from the config file." optional:""`
	From       uint64 `help:"Override range.from_block." optional:""`
	To         *uint64 `help:"Override range.to_block." optional:""`
	Database   string `help:"Override database.type (postgres, pebble, memory)." optional:""`
}

func main() {
	kong.Parse(&cli, kong.Description("Pulls historical EVM block data from an archive service and hands it to a user handler."))

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load(cli.Config)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	applyOverrides(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logrus.Info("interrupt received, shutting down gracefully")
		cancel()
	}()

	m := metrics.New("evm_processor", "ingest")
	httpSrv := httpserver.New()
	if err := httpSrv.Start(ctx, cfg.PrometheusPort); err != nil {
		log.Fatalf("failed to start metrics server: %v", err)
	}

	client := archive.New(cfg.ArchiveURL, cfg.SquidID,
		archive.WithRetryObserver(func(err error, _ *query.Document, consecutive int, backoffMs int64) {
			logrus.WithFields(logrus.Fields{
				"errorsInRow": consecutive,
				"backoffMs":   backoffMs,
				"err":         err,
			}).Warn("archive: retrying")
		}),
	)

	db, closeDB, err := openDatabase(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer closeDB()

	handler := func(ctx context.Context, args processor.HandlerArgs) error {
		args.Log.WithField("blocks", len(args.Blocks)).Info("processor: handling batch")
		return nil
	}

	fullRange := model.Range{From: cfg.Range.FromBlock, To: cfg.Range.ToBlock}
	driverCfg := processor.Config{
		Range: fullRange,
		Registrations: []model.Batch{
			{Range: fullRange, Request: model.Request{IncludeAllBlocks: true}},
		},
		PollInterval: cfg.PollInterval,
		Chain:        processor.ChainInfo{ChainID: cfg.ChainID, Name: cfg.ChainName},
	}

	driver := processor.New(client, db, handler, m, logrus.StandardLogger(), driverCfg)
	if err := driver.Run(ctx); err != nil {
		log.Fatalf("processor terminated with error: %v", err)
	}
}

func applyOverrides(cfg *config.Config) {
	if cli.ArchiveURL != "" {
		cfg.ArchiveURL = cli.ArchiveURL
	}
	if cli.From != 0 {
		cfg.Range.FromBlock = cli.From
	}
	if cli.To != nil {
		cfg.Range.ToBlock = cli.To
	}
	if cli.Database != "" {
		cfg.Database.Type = cli.Database
	}
}

func openDatabase(ctx context.Context, cfg *config.Config) (processor.Database, func(), error) {
	switch cfg.Database.Type {
	case "postgres":
		db, err := postgres.Open(ctx, cfg.Database.Postgres.DSN, cfg.ChainName)
		if err != nil {
			return nil, nil, err
		}
		return db, db.Close, nil
	case "pebble":
		db, err := pebblekv.Open(cfg.Database.Pebble.Dir)
		if err != nil {
			return nil, nil, err
		}
		return db, func() { _ = db.Close() }, nil
	default:
		return memory.New(), func() {}, nil
	}
}
