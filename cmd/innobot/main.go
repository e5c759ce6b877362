package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/kelseyhightower/envconfig"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/innovaedu/wabot/core/bootstrap"
	"github.com/innovaedu/wabot/core/bot"
	"github.com/innovaedu/wabot/core/cmd"
	coreconfig "github.com/innovaedu/wabot/core/config"
	coredatabase "github.com/innovaedu/wabot/core/database"
	"github.com/innovaedu/wabot/core/flow"
	"github.com/innovaedu/wabot/core/recorder"
	"github.com/innovaedu/wabot/core/session"
	"github.com/innovaedu/wabot/core/webhook"
	"github.com/innovaedu/wabot/core/whatsapp"
	"github.com/innovaedu/wabot/core/whatsapp/sender"
)

// appConfig couples the reusable core configuration with the deployment
// specific database section. Database is optional; without it records
// are kept in memory only.
type appConfig struct {
	Core     coreconfig.Config   `yaml:",inline"`
	Database coredatabase.Config `yaml:"database"`
}

func (c *appConfig) CoreConfig() *coreconfig.Config { return &c.Core }

func loadConfig(path string) (cmd.ConfigCarrier, error) {
	var cfg appConfig

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}
	if err := coreconfig.Normalize(&cfg.Core); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type app struct {
	cfg        *appConfig
	db         *sqlx.DB
	dispatcher *sender.Dispatcher
	store      session.Store
	server     *webhook.Server
}

func buildApp(carrier cmd.ConfigCarrier) (cmd.App, error) {
	cfg, ok := carrier.(*appConfig)
	if !ok {
		return nil, fmt.Errorf("unexpected config type %T", carrier)
	}

	boot, err := bootstrap.Run(bootstrap.Options{
		Config:   &cfg.Core,
		Database: cfg.Database,
	})
	if err != nil {
		return nil, err
	}

	var primary recorder.Recorder
	if boot.DB != nil {
		primary = recorder.NewPostgres(boot.DB)
	} else {
		primary = recorder.NewMemory()
	}

	var records recorder.Recorder = primary
	if cfg.Core.Sheets.SpreadsheetID != "" {
		mirror, err := recorder.NewSheets(context.Background(), cfg.Core.Sheets)
		if err != nil {
			return nil, fmt.Errorf("sheets mirror init: %w", err)
		}
		records = recorder.NewFanout(primary, mirror)
	}

	client := whatsapp.NewClient(cfg.Core.WhatsApp)
	dispatcher := sender.NewDispatcher(client, sender.Options{
		PartDelay: time.Duration(cfg.Core.Flow.PartDelayMS) * time.Millisecond,
	})

	store := session.NewMemoryStore()
	engine := flow.New(flow.Options{
		GreetingResetsForms: cfg.Core.Flow.GreetingResetsForms,
	})
	processor := bot.New(store, engine, dispatcher, records).
		WithRateLimit(cfg.Core.RateLimit.MinInterval())
	server := webhook.NewServer(cfg.Core.Webhook, processor, store, records)

	return &app{
		cfg:        cfg,
		db:         boot.DB,
		dispatcher: dispatcher,
		store:      store,
		server:     server,
	}, nil
}

func (a *app) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.server.ListenAndServe(ctx)
	})
	g.Go(func() error {
		session.RunSweeper(ctx, a.store, a.cfg.Core.Sessions.SweepInterval(), a.cfg.Core.Sessions.IdleTTL())
		return nil
	})
	return g.Wait()
}

func (a *app) Close() error {
	a.dispatcher.Close()
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

func main() {
	if err := cmd.Run(cmd.Options{
		DefaultConfigPath: "config.yaml",
		LoadConfig:        loadConfig,
		Bootstrap:         buildApp,
	}); err != nil {
		log.Fatalf("innobot: %v", err)
	}
}
