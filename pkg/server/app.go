package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	drepo "TradeMind/internal/domain/repository"
	mid "TradeMind/internal/middleware"
	"TradeMind/internal/usecase"
	pkgcache "TradeMind/pkg/cache"
	pkgch "TradeMind/pkg/clickhouse"
	"TradeMind/pkg/config"
	xhttp "TradeMind/pkg/http"
	pkgkafka "TradeMind/pkg/kafka"
	"TradeMind/pkg/logger"
)

// Components is everything the app starts and stops. Infrastructure entries
// are nil when the matching backend is disabled in config.
type Components struct {
	Engine       *usecase.Engine
	Checkpointer *usecase.Checkpointer
	Processor    *usecase.BarProcessor
	Pipeline     *mid.RealtimePipeline
	Retrainer    *usecase.Retrainer
	HTTP         *xhttp.Server

	Consumer   *pkgkafka.Consumer
	Handlers   []pkgkafka.MessageHandler
	Collector  *usecase.BarCollector
	Producer   *pkgkafka.Producer
	ClickHouse *pkgch.Client
	Redis      *pkgcache.RedisCache
	History    drepo.BarHistory
	Decisions  drepo.DecisionStore
}

// App owns the lifecycle of one engine instance.
type App struct {
	cfg  *config.Config
	root *logger.Logger
	log  *logger.Logger
	c    Components
}

func New(cfg *config.Config, log *logger.Logger, c Components) *App {
	if log == nil {
		log = logger.Nop()
	}
	return &App{cfg: cfg, root: log, log: log.Named("app"), c: c}
}

// Run starts every component and blocks until SIGINT/SIGTERM or ctx ends.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := a.start(ctx); err != nil {
		a.shutdown()
		return err
	}
	a.log.Info("engine running",
		logger.String("instance", a.cfg.InstanceID),
		logger.Strings("symbols", a.cfg.Symbols),
		logger.String("primary_tf", a.cfg.Engine.PrimaryTimeframe))

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	a.shutdown()
	return nil
}

func (a *App) start(ctx context.Context) error {
	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if a.c.History != nil {
		if err := a.c.History.Init(initCtx); err != nil {
			return err
		}
	}
	if a.c.Decisions != nil {
		if err := a.c.Decisions.Init(initCtx); err != nil {
			return err
		}
	}

	a.c.Engine.LoadState(initCtx)
	if a.cfg.Warmup.Enabled && a.c.Retrainer != nil {
		if _, err := a.c.Retrainer.RunOnce(ctx); err != nil {
			a.log.Warn("startup warmup failed", logger.Error(err))
		}
	}

	a.c.Checkpointer.Start(ctx)
	a.c.Processor.Start(ctx)
	a.c.Pipeline.Start(ctx)
	if a.c.Retrainer != nil {
		go a.c.Retrainer.Run(ctx)
	}

	if a.c.Consumer != nil {
		for _, h := range a.c.Handlers {
			a.c.Consumer.RegisterHandler(h)
		}
		if err := a.c.Consumer.Start(); err != nil {
			return err
		}
	}
	if a.c.Collector != nil {
		if err := a.c.Collector.Start(ctx); err != nil {
			// the feed is optional; Kafka keeps the engine fed
			a.log.Error("bar feed start failed", logger.Error(err))
		}
	}
	return a.c.HTTP.Start()
}

// shutdown stops sources first, then drains and persists.
func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout+20*time.Second)
	defer cancel()

	step := func(name string, err error) {
		if err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("shutdown step failed", logger.String("step", name), logger.Error(err))
		}
	}

	if a.c.HTTP != nil {
		step("http", a.c.HTTP.Stop(ctx))
	}
	if a.c.Collector != nil {
		step("feed", a.c.Collector.Shutdown(ctx))
	}
	if a.c.Consumer != nil {
		step("kafka_consumer", a.c.Consumer.Stop(ctx))
	}
	if a.c.Pipeline != nil {
		a.c.Pipeline.Stop()
	}
	if a.c.Processor != nil {
		step("bar_processor", a.c.Processor.Close(ctx))
	}
	if a.c.Checkpointer != nil {
		step("checkpoint", a.c.Checkpointer.Close(ctx))
	}
	// pending error aggregates go out before the producer closes
	a.root.RemoveCollector()
	if a.c.Producer != nil {
		step("kafka_producer", a.c.Producer.Close())
	}
	if a.c.Redis != nil {
		step("redis", a.c.Redis.Close())
	}
	if a.c.ClickHouse != nil {
		step("clickhouse", a.c.ClickHouse.Close())
	}
	a.log.Info("shutdown complete")
}
