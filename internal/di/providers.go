package di

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"TradeMind/internal/domain/models"
	drepo "TradeMind/internal/domain/repository"
	"TradeMind/internal/domain/service"
	"TradeMind/internal/handler/api"
	mid "TradeMind/internal/middleware"
	internalrepo "TradeMind/internal/repository"
	"TradeMind/internal/service/feed"
	imetrics "TradeMind/internal/service/metrics"
	"TradeMind/internal/service/ratelimit"
	"TradeMind/internal/services/features"
	"TradeMind/internal/services/patterns"
	"TradeMind/internal/services/performance"
	"TradeMind/internal/services/rewards"
	"TradeMind/internal/services/rl"
	"TradeMind/internal/services/safeguards"
	"TradeMind/internal/services/timeframe"
	"TradeMind/internal/usecase"
	pkgcache "TradeMind/pkg/cache"
	pkgch "TradeMind/pkg/clickhouse"
	"TradeMind/pkg/config"
	xhttp "TradeMind/pkg/http"
	pkgkafka "TradeMind/pkg/kafka"
	"TradeMind/pkg/logger"
	"TradeMind/pkg/metrics"
	"TradeMind/pkg/server"
)

// ProvideLogger builds the root logger. Error records are aggregated and
// shipped to the logs topic when collection is on and Kafka is available.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*logger.Logger, error) {
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.Log.Collect && producer != nil {
		log.AddCollector(&logger.CollectionConfig{
			TimeInterval:   cfg.Log.CollectInterval,
			CountThreshold: cfg.Log.CollectThreshold,
			Topic:          cfg.Kafka.LogsTopic,
			Publisher:      producer,
		})
	}
	return log, nil
}

// ProvideClickHouseClient returns nil when ClickHouse is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(true, false),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.ReadTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, []string{
		"CREATE DATABASE IF NOT EXISTS " + cfg.ClickHouse.Database,
	}); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideKafkaProducer returns nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	p := cfg.Kafka.Producer
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(p.BatchSize, p.BatchBytes, p.Linger),
		pkgkafka.WithTimeouts(p.WriteTimeout, p.ReadTimeout),
		pkgkafka.WithMaxAttempts(p.MaxAttempts),
		pkgkafka.WithAsync(p.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideRedis returns nil when the checkpoint mirror is disabled.
func ProvideRedis(cfg *config.Config) (*pkgcache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisAddr(cfg.Redis.Addr),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPool(10, 2, 30*time.Second),
		pkgcache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return rc, nil
}

// ProvideMetrics creates the pipeline recorder.
func ProvideMetrics() drepo.Metrics {
	return metrics.New()
}

// ProvideDecisionMetrics creates the engine recorder.
func ProvideDecisionMetrics() service.DecisionMetrics {
	return imetrics.NewRecorder()
}

// ProvideCheckpointStore is the JSON file store, mirrored to Redis when a
// Redis client is configured.
func ProvideCheckpointStore(cfg *config.Config, rc *pkgcache.RedisCache, log *logger.Logger) drepo.CheckpointStore {
	file := internalrepo.NewFileCheckpointStore(cfg.Checkpoint.Path, log)
	if rc == nil {
		return file
	}
	return internalrepo.NewMirroredCheckpointStore(file, rc, cfg.InstanceID, log)
}

// The next three return an untyped nil so consumers can test the interface
// against nil.

func ProvideDecisionStore(ch *pkgch.Client, log *logger.Logger) drepo.DecisionStore {
	if ch == nil {
		return nil
	}
	return internalrepo.NewCHDecisionStore(ch, "decisions", log)
}

func ProvideBarHistory(ch *pkgch.Client, log *logger.Logger) drepo.BarHistory {
	if ch == nil {
		return nil
	}
	return internalrepo.NewCHBarHistory(ch, "bars", log)
}

func ProvideDecisionPublisher(cfg *config.Config, producer *pkgkafka.Producer) drepo.DecisionPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaDecisionPublisher(producer, cfg.Kafka.DecisionsTopic)
}

// ProvideEngine assembles the decision core from config.
func ProvideEngine(cfg *config.Config, store drepo.CheckpointStore, dm service.DecisionMetrics, log *logger.Logger) (*usecase.Engine, error) {
	primary, err := models.ParseTimeframe(cfg.Engine.PrimaryTimeframe)
	if err != nil {
		return nil, fmt.Errorf("engine.primary_timeframe: %w", err)
	}
	sg := cfg.Safeguards
	closeAt, loc, err := safeguards.ParseSessionClose(sg.SessionClose, sg.SessionTimezone)
	if err != nil {
		return nil, fmt.Errorf("safeguards: %w", err)
	}

	tfs := timeframe.NewManager(
		timeframe.WithMaxBars(cfg.Timeframes.MaxBars),
		timeframe.WithLogger(log),
	)
	pc := cfg.Patterns
	detector := patterns.NewDetector(
		patterns.WithThresholds(pc.DojiBodyRatio, pc.HammerWickRatio, pc.SpinningTopBodyRatio),
		patterns.WithVolumeConfirmation(pc.VolumeConfirmation),
		patterns.WithCacheSize(pc.CacheSize),
	)
	extractor := features.NewExtractor(
		features.WithTimeframes(tfs),
		features.WithPatterns(detector),
	)

	ac := cfg.Agent
	agent := rl.NewAgent(rl.Config{
		LearningRate:     ac.LearningRate,
		DiscountFactor:   ac.DiscountFactor,
		ExplorationRate:  ac.ExplorationRate,
		ExplorationDecay: ac.ExplorationDecay,
		MinExploration:   ac.MinExploration,
		Seed:             ac.Seed,
	})
	guards := safeguards.New(safeguards.Config{
		MaxTradesPerHour:     sg.MaxTradesPerHour,
		MaxTradesPerDay:      sg.MaxTradesPerDay,
		ChaseThresholdPct:    sg.ChaseThresholdPct,
		NewsVolumeMultiplier: sg.NewsVolumeMultiplier,
		NewsRangeMultiplier:  sg.NewsRangeMultiplier,
		EODBlockMinutes:      sg.EODBlockMinutes,
		EODWarnMinutes:       sg.EODWarnMinutes,
		SessionClose:         closeAt,
		Location:             loc,
	}, log)

	rc := cfg.Rewards
	calc := rewards.Calculator{
		RiskPenaltyFactor:     rc.RiskPenaltyFactor,
		TransactionCostFactor: rc.TransactionCostFactor,
		Enhanced:              rc.EnableEnhanced,
		Weights: rewards.Weights{
			Sharpe:   rc.SharpeWeight,
			Sortino:  rc.SortinoWeight,
			Drawdown: rc.DrawdownWeight,
			Streak:   rc.StreakWeight,
		},
	}
	tracker := rewards.NewTracker(rc.WindowSize)
	perf := performance.NewBook()

	dc := cfg.Decision
	decisions := usecase.NewDecisionMaker(usecase.DecisionConfig{
		MinConfidence:          dc.MinConfidence,
		MaxConcurrentPositions: dc.MaxConcurrentPositions,
		MaxCapitalPerPosition:  dc.MaxCapitalPerPosition,
		AdaptiveConfidence:     dc.AdaptiveConfidence,
		VolatilityBias:         dc.VolatilityBias,
	}, agent, guards, perf, log)
	learner := usecase.NewLearningCoordinator(agent, tracker, perf, guards, calc, cfg.Engine.InitialEquity, dm, log)
	simulator := usecase.NewWarmupSimulator(usecase.WarmupConfig{
		SimulatedCash:         cfg.Warmup.SimulatedCash,
		MaxCapitalPerPosition: dc.MaxCapitalPerPosition,
		Seed:                  ac.Seed,
	}, agent, extractor, calc, log)

	return usecase.NewEngine(usecase.EngineConfig{
		Symbols:          cfg.Symbols,
		PrimaryTimeframe: primary,
		Lookback:         cfg.Engine.Lookback,
		DecisionTTL:      cfg.Engine.DecisionTTL,
		Training:         cfg.Engine.Training,
		PersistRewards:   rc.EnableEnhanced,
	}, usecase.EngineDeps{
		Timeframes: tfs,
		Patterns:   detector,
		Extractor:  extractor,
		Agent:      agent,
		Tracker:    tracker,
		Perf:       perf,
		Decisions:  decisions,
		Learner:    learner,
		Simulator:  simulator,
		Portfolio:  usecase.NewPortfolio(decimal.NewFromFloat(cfg.Engine.InitialEquity)),
		Store:      store,
		Metrics:    dm,
		Log:        log,
	}), nil
}

func ProvideBarProcessor(
	engine *usecase.Engine,
	pub drepo.DecisionPublisher,
	decisions drepo.DecisionStore,
	history drepo.BarHistory,
	m drepo.Metrics,
	log *logger.Logger,
) *usecase.BarProcessor {
	return usecase.NewBarProcessor(engine, pub, decisions, history, m, 500, 2*time.Second, log)
}

func ProvidePipeline(cfg *config.Config, proc *usecase.BarProcessor, m drepo.Metrics) *mid.RealtimePipeline {
	return mid.NewRealtimePipeline(proc, m,
		mid.WithThrottleWindow(cfg.Engine.ThrottleWindow),
		mid.WithBufferSize(cfg.Engine.RetryBuffer),
	)
}

func ProvideCheckpointer(cfg *config.Config, engine *usecase.Engine, log *logger.Logger) *usecase.Checkpointer {
	return usecase.NewCheckpointer(engine, cfg.Checkpoint.Interval, log)
}

// ProvideRetrainer replays ClickHouse history through the warmup simulator.
// Without history there is nothing to replay and it returns nil.
func ProvideRetrainer(cfg *config.Config, engine *usecase.Engine, history drepo.BarHistory, log *logger.Logger) *usecase.Retrainer {
	if history == nil {
		return nil
	}
	return usecase.NewRetrainer(engine, history, usecase.RetrainConfig{
		Timeframe:           models.Timeframe(cfg.Engine.PrimaryTimeframe),
		Bars:                cfg.Warmup.HistoryBars,
		ObservationFraction: cfg.Warmup.ObservationFraction,
		Checkpoint:          true,
	}, log)
}

// ProvideKafkaConsumer returns nil when Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config, log *logger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	cc := cfg.Kafka.Consumer
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cc.GroupID),
		pkgkafka.WithConsumerWorkers(cc.Workers),
		pkgkafka.WithConsumerBufferSize(cc.BufferSize),
		pkgkafka.WithConsumerRetry(cc.RetryMax, cc.BackoffMin, cc.BackoffMax),
		pkgkafka.WithConsumerDLQ(cc.DLQTopic),
		pkgkafka.WithConsumerFetch(cc.MinBytes, cc.MaxBytes),
		pkgkafka.WithConsumerLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	hooks := []pkgkafka.ConsumerHook{pkgkafka.TraceHook()}
	if cc.MaxAge > 0 {
		hooks = append(hooks, pkgkafka.MaxAgeHook(cc.MaxAge, time.Now))
	}
	consumer.WithConsumerHook(pkgkafka.NewHookChain(hooks...))
	return consumer, nil
}

// ProvideKafkaHandlers routes bars through the pipeline and fills into the
// engine.
func ProvideKafkaHandlers(cfg *config.Config, pipe *mid.RealtimePipeline, engine *usecase.Engine, m drepo.Metrics, log *logger.Logger) []pkgkafka.MessageHandler {
	if !cfg.Kafka.Enabled {
		return nil
	}
	return []pkgkafka.MessageHandler{
		usecase.NewKafkaBarsHandler(cfg.Kafka.BarsTopic, pipe, m),
		usecase.NewKafkaFillsHandler(cfg.Kafka.FillsTopic, engine, m, log),
	}
}

// ProvideBarCollector connects the websocket feed. With Kafka on, feed bars
// are published to the bars topic and come back through the consumer, so
// every instance of the group sees the same stream; otherwise they go
// straight into the pipeline.
func ProvideBarCollector(cfg *config.Config, pipe *mid.RealtimePipeline, producer *pkgkafka.Producer, m drepo.Metrics, log *logger.Logger) (*usecase.BarCollector, error) {
	if !cfg.Feed.Enabled {
		return nil, nil
	}
	tf, err := models.ParseTimeframe(cfg.Feed.Timeframe)
	if err != nil {
		return nil, fmt.Errorf("feed.timeframe: %w", err)
	}
	stream := feed.New(cfg.Feed.URL, cfg.Symbols, tf, cfg.Feed.ReconnectDelay, cfg.Feed.PingInterval, log)
	if producer != nil {
		pub := internalrepo.NewKafkaBarPublisher(producer, cfg.Kafka.BarsTopic)
		return usecase.NewBarCollector(stream, nil, pub, m, log), nil
	}
	return usecase.NewBarCollector(stream, pipe, nil, m, log), nil
}

func ProvideHTTPServer(cfg *config.Config, engine *usecase.Engine, decisions drepo.DecisionStore, log *logger.Logger) (*xhttp.Server, error) {
	tracked := make([]models.Timeframe, 0, len(cfg.Timeframes.Tracked))
	for _, raw := range cfg.Timeframes.Tracked {
		tf, err := models.ParseTimeframe(raw)
		if err != nil {
			return nil, fmt.Errorf("timeframes.tracked: %w", err)
		}
		tracked = append(tracked, tf)
	}
	limiter := ratelimit.New(cfg.Server.OperatorRPS, cfg.Server.OperatorBurst)
	handler := api.NewEngineHandler(engine, decisions, tracked, cfg.Timeframes.MinBars, limiter, log)

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	sc := cfg.Server
	return xhttp.NewServer(handler,
		xhttp.WithHost(sc.Host),
		xhttp.WithPort(sc.Port),
		xhttp.WithTimeouts(sc.ReadTimeout, sc.WriteTimeout, sc.ShutdownTimeout),
		xhttp.WithCORSOrigins(sc.CORSOrigins),
		xhttp.WithSlowThreshold(sc.SlowThreshold),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithLogger(log),
	), nil
}

// ProvideApp collects everything the application starts and stops.
func ProvideApp(
	cfg *config.Config,
	log *logger.Logger,
	engine *usecase.Engine,
	checkpointer *usecase.Checkpointer,
	proc *usecase.BarProcessor,
	pipe *mid.RealtimePipeline,
	retrainer *usecase.Retrainer,
	httpServer *xhttp.Server,
	consumer *pkgkafka.Consumer,
	handlers []pkgkafka.MessageHandler,
	collector *usecase.BarCollector,
	producer *pkgkafka.Producer,
	ch *pkgch.Client,
	rc *pkgcache.RedisCache,
	history drepo.BarHistory,
	decisions drepo.DecisionStore,
) *server.App {
	return server.New(cfg, log, server.Components{
		Engine:       engine,
		Checkpointer: checkpointer,
		Processor:    proc,
		Pipeline:     pipe,
		Retrainer:    retrainer,
		HTTP:         httpServer,
		Consumer:     consumer,
		Handlers:     handlers,
		Collector:    collector,
		Producer:     producer,
		ClickHouse:   ch,
		Redis:        rc,
		History:      history,
		Decisions:    decisions,
	})
}
