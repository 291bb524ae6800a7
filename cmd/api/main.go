package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"

	"github.com/Ramsey-B/sage/config"
	"github.com/Ramsey-B/sage/internal/repositories/actionproposal"
	"github.com/Ramsey-B/sage/internal/repositories/aiinteraction"
	"github.com/Ramsey-B/sage/internal/repositories/audit"
	"github.com/Ramsey-B/sage/internal/repositories/category"
	"github.com/Ramsey-B/sage/internal/repositories/transaction"
	"github.com/Ramsey-B/sage/internal/repositories/webhookevent"
	"github.com/Ramsey-B/sage/internal/services/assistant"
	"github.com/Ramsey-B/sage/internal/services/confirmation"
	"github.com/Ramsey-B/sage/internal/services/ingestion"
	"github.com/Ramsey-B/sage/internal/services/ledger"
	"github.com/Ramsey-B/sage/pkg/citations"
	"github.com/Ramsey-B/sage/pkg/database"
	"github.com/Ramsey-B/sage/pkg/events"
	"github.com/Ramsey-B/sage/pkg/kafka"
	"github.com/Ramsey-B/sage/pkg/llm"
	"github.com/Ramsey-B/sage/pkg/middleware"
	"github.com/Ramsey-B/sage/pkg/routes/actions"
	"github.com/Ramsey-B/sage/pkg/routes/ai"
	"github.com/Ramsey-B/sage/pkg/routes/health"
	"github.com/Ramsey-B/sage/pkg/routes/transactions"
	"github.com/Ramsey-B/sage/pkg/routes/webhooks"
	"github.com/Ramsey-B/sage/pkg/tracing"
	"github.com/Ramsey-B/sage/pkg/tracing/exporters"
	"github.com/Ramsey-B/sage/pkg/validation"
)

func main() {
	_ = godotenv.Load()

	var cfg config.Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, flush := newLogger(cfg)
	defer flush()

	ctx := context.Background()

	if cfg.TracingEnabled {
		shutdown, err := initTracing(ctx, cfg)
		if err != nil {
			logger.WithError(err).Error("Failed to initialize tracing")
		} else {
			defer shutdown(ctx)
		}
	}

	db, err := database.Connect(ctx, database.ConnectionConfig{
		Host:            cfg.DatabaseHost,
		Port:            cfg.DatabasePort,
		UserName:        cfg.DatabaseUserName,
		Password:        cfg.DatabasePassword,
		Name:            cfg.DatabaseName,
		SSLMode:         cfg.DatabaseSSLMode,
		MaxOpenConns:    cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to database")
		os.Exit(1)
	}
	defer db.Close()

	if err := runMigrations(cfg, db, logger); err != nil {
		logger.WithError(err).Error("Failed to run migrations")
		os.Exit(1)
	}

	var producer *kafka.Producer
	if cfg.KafkaEnabled {
		producer = kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      cfg.KafkaBrokers,
			Topic:        cfg.KafkaOutputTopic,
			BatchSize:    cfg.KafkaBatchSize,
			BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
			RequiredAcks: cfg.KafkaRequiredAcks,
			Compression:  cfg.KafkaCompression,
		}, logger)
		defer producer.Close()
	}
	emitter := events.NewEmitter(producerOrNil(producer), logger)

	var llmClient llm.Client
	if cfg.GeminiAPIKey != "" {
		llmClient, err = llm.NewGeminiClient(ctx, llm.GeminiConfig{
			APIKey: cfg.GeminiAPIKey,
			Model:  cfg.GeminiModel,
		}, logger)
		if err != nil {
			logger.WithError(err).Error("Failed to create LLM client")
			os.Exit(1)
		}
	} else {
		logger.Warn("GEMINI_API_KEY is not set, assistant endpoints will report unavailable")
	}

	webhookEventRepo := webhookevent.NewRepository(db, logger)
	transactionRepo := transaction.NewRepository(db, logger)
	categoryRepo := category.NewRepository(db, logger)
	interactionRepo := aiinteraction.NewRepository(db, logger)
	proposalRepo := actionproposal.NewRepository(db, logger)
	auditRepo := audit.NewRepository(db, logger)

	verifier := citations.NewVerifier(transactionRepo, logger)
	ledgerService := ledger.NewService(db, logger, transactionRepo, auditRepo)
	ingestionService := ingestion.NewService(db, logger, webhookEventRepo, transactionRepo, auditRepo, emitter)
	assistantService := assistant.NewService(db, logger, llmClient, transactionRepo, categoryRepo,
		interactionRepo, proposalRepo, auditRepo, verifier)
	confirmationService := confirmation.NewService(db, logger, proposalRepo, categoryRepo,
		ledgerService, auditRepo, emitter)

	container, err := ectoinject.NewDIDefaultContainer()
	if err != nil {
		logger.WithError(err).Error("Failed to create DI container")
		os.Exit(1)
	}
	mustRegister(logger, ectoinject.RegisterInstance[ectologger.Logger](container, logger))
	mustRegister(logger, ectoinject.RegisterInstance[database.DB](container, db))
	mustRegister(logger, ectoinject.RegisterInstance[*ledger.Service](container, ledgerService))
	mustRegister(logger, ectoinject.RegisterInstance[*ingestion.Service](container, ingestionService))
	mustRegister(logger, ectoinject.RegisterInstance[*assistant.Service](container, assistantService))
	mustRegister(logger, ectoinject.RegisterInstance[*confirmation.Service](container, confirmationService))

	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second
	e.Server.MaxHeaderBytes = cfg.MaxHeaderBytes

	e.Validator = validation.NewRequestValidator()
	e.HTTPErrorHandler = middleware.Error(logger)

	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			reqCtx, err := ectoinject.SetActiveContainer(c.Request().Context(), container.GetContainerID())
			if err != nil {
				return err
			}
			c.SetRequest(c.Request().WithContext(reqCtx))
			return next(c)
		}
	})

	checker := health.NewChecker(db, cfg.Version)
	checker.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := e.Group("/api/v1")
	webhooks.Register(v1.Group("/webhooks"))
	transactions.Register(v1.Group("/transactions"))
	ai.Register(v1.Group("/ai"))
	actions.Register(v1.Group("/actions"))

	go func() {
		checker.SetReady(true)
		if err := e.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	checker.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Failed to shut down server cleanly")
	}
}

func newLogger(cfg config.Config) (ectologger.Logger, func()) {
	var zl *zap.Logger
	var err error
	if cfg.PrettyLogs {
		zl, err = zap.NewDevelopment()
	} else {
		zl, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}

	logger := ectologger.NewEctoLogger(func(msg ectologger.EctoLogMessage) {
		fields := make([]zap.Field, 0, len(msg.Fields)+1)
		for k, v := range msg.Fields {
			fields = append(fields, zap.Any(k, v))
		}
		if msg.Err != nil {
			fields = append(fields, zap.Error(msg.Err))
		}
		switch strings.ToLower(fmt.Sprint(msg.Level)) {
		case "debug":
			zl.Debug(msg.Message, fields...)
		case "warn", "warning":
			zl.Warn(msg.Message, fields...)
		case "error", "fatal":
			zl.Error(msg.Message, fields...)
		default:
			zl.Info(msg.Message, fields...)
		}
	})

	return logger, func() { _ = zl.Sync() }
}

func initTracing(ctx context.Context, cfg config.Config) (func(context.Context) error, error) {
	exporter, err := exporters.NewOTLPExporter(ctx, exporters.OTLPConfig{
		Endpoint: cfg.TracingEndpoint,
		Protocol: cfg.TracingProtocol,
		Insecure: !cfg.TracingTLSEnable,
		Timeout:  10 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	res, err := sdkresource.Merge(sdkresource.Default(), sdkresource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.AppName),
		semconv.ServiceVersion(cfg.Version),
	))
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	tracing.SetTracer(provider.Tracer(cfg.AppName))

	return provider.Shutdown, nil
}

func runMigrations(cfg config.Config, db database.DB, logger ectologger.Logger) error {
	instance, ok := db.(*database.DatabaseInstance)
	if !ok {
		return fmt.Errorf("database instance does not support migrations")
	}

	driver, err := migratepg.WithInstance(instance.DB.DB, &migratepg.Config{})
	if err != nil {
		return err
	}

	migrationService := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
	})
	return migrationService.Migrate(cfg.DatabaseName, driver)
}

// producerOrNil keeps the emitter's disabled path on a true nil interface
// when Kafka is off.
func producerOrNil(p *kafka.Producer) events.Publisher {
	if p == nil {
		return nil
	}
	return p
}

func mustRegister(logger ectologger.Logger, err error) {
	if err != nil {
		logger.WithError(err).Error("Failed to register dependency")
		os.Exit(1)
	}
}
