package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/gin-gonic/gin"
	"github.com/hkshop/storefront/common/auth"
	apperrors "github.com/hkshop/storefront/common/errors"
	"github.com/hkshop/storefront/common/logger"
	commonmw "github.com/hkshop/storefront/common/middleware"
	"github.com/hkshop/storefront/config"
	"github.com/hkshop/storefront/controllers"
	"github.com/hkshop/storefront/database"
	"github.com/hkshop/storefront/models"
	awspkg "github.com/hkshop/storefront/pkg/aws"
	"github.com/hkshop/storefront/repository"
	"github.com/hkshop/storefront/routes"
	"github.com/hkshop/storefront/services"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const serviceName = "storefront-checkout"

func main() {
	bootLogger, err := zap.NewProduction()
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	cfg, err := config.LoadConfig(ctx)
	if err != nil {
		bootLogger.Fatal("Config load failed", zap.Error(err))
	}

	// --- AWS setup ---
	awsCfg, err := awspkg.LoadAWSConfig(ctx)
	if err != nil {
		bootLogger.Fatal("Failed to load AWS config", zap.Error(err))
	}

	var logSink io.Writer
	if cfg.CloudWatchEnabled {
		cw, err := awspkg.NewCloudWatchLogsClient(ctx, awsCfg, cfg.CloudWatchLogGroup, serviceName, true)
		if err != nil {
			bootLogger.Warn("CloudWatch Logs init failed (non-fatal)", zap.Error(err))
		} else {
			logSink = cw
		}
	}
	log, err := logger.New(cfg.AppEnv, logSink)
	if err != nil {
		bootLogger.Fatal("Logger init failed", zap.Error(err))
	}
	defer log.Sync()
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// --- Database ---
	db, err := database.ConnectPostgres(cfg.Database.DSN(), log, &models.Order{}, &models.Product{})
	if err != nil {
		log.Fatal("DB connection failed", zap.Error(err))
	}

	// --- Catalog ---
	var catalog repository.ProductRepository
	switch cfg.CatalogBackend {
	case config.CatalogDynamoDB:
		catalog = repository.NewDynamoProductRepository(dynamodb.NewFromConfig(awsCfg), cfg.DynamoProductsTable)
	default:
		catalog = repository.NewGormProductRepository(db)
	}
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn("Redis unavailable, catalog cache will fall through", zap.Error(err))
		}
		catalog = repository.NewCachedProductRepository(catalog, redisClient, cfg.CatalogCacheTTL, log)
	}

	// --- Events and metrics ---
	metricsClient := awspkg.NewMetricsClient(awsCfg, cfg.MetricsNamespace, cfg.CloudWatchEnabled)

	var events services.EventPublisher = services.NoopEventPublisher{}
	var kafkaEvents *services.KafkaEventPublisher
	switch {
	case len(cfg.KafkaBrokers) > 0:
		kafkaEvents = services.NewKafkaEventPublisher(services.NewKafkaWriter(cfg.KafkaBrokers, cfg.OrderEventsTopic))
		events = kafkaEvents
	case cfg.OrderSNSTopicARN != "":
		events = services.NewSNSEventPublisher(awspkg.NewSNSClient(awsCfg), cfg.OrderSNSTopicARN)
	}

	// --- Checkout and settlement ---
	ledger := repository.NewGormOrderLedger(db)
	gateway := services.NewPayPalGateway(services.PayPalConfig{
		BaseURL:      cfg.PayPal.BaseURL,
		ClientID:     cfg.PayPal.ClientID,
		ClientSecret: cfg.PayPal.ClientSecret,
		Timeout:      cfg.PayPal.Timeout,
	}, log)

	checkoutService := services.NewCheckoutService(services.CheckoutServiceDeps{
		Verifier: services.NewCartVerifier(catalog, cfg.Currency, cfg.PayPal.BusinessEmail, log),
		Ledger:   ledger,
		Gateway:  gateway,
		Events:   events,
		Metrics:  metricsClient,
		Logger:   log,
	})
	listener := services.NewSettlementListener(services.SettlementListenerDeps{
		Verifier: services.NewIPNVerifier(cfg.PayPal.IPNURL, cfg.PayPal.Timeout),
		Guard:    services.NewIdempotencyGuard(),
		Ledger:   ledger,
		Events:   events,
		Metrics:  metricsClient,
		Logger:   log,
	})

	var dispatcher services.NotificationDispatcher
	var inProcess *services.InProcessDispatcher
	consumerDone := make(chan struct{})
	if cfg.IPNQueueURL != "" {
		queue := awspkg.NewSQSQueue(awsCfg, cfg.IPNQueueURL, log)
		dispatcher = services.NewSQSDispatcher(queue)
		consumer := services.NewSQSNotificationConsumer(queue, listener, log)
		go func() {
			defer close(consumerDone)
			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("IPN consumer stopped", zap.Error(err))
			}
		}()
	} else {
		inProcess = services.NewInProcessDispatcher(listener, cfg.NotificationWorkers, cfg.NotificationTimeout, metricsClient, log)
		dispatcher = inProcess
		close(consumerDone)
	}

	// --- HTTP router ---
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(commonmw.RequestID())
	r.Use(commonmw.RequestLogger(log))
	r.Use(commonmw.MetricsMiddleware(metricsClient, serviceName))
	r.Use(commonmw.SecurityHeaders())
	r.Use(commonmw.CORS(cfg.AllowedOrigins))
	r.Use(commonmw.RequestTimeout(30 * time.Second))
	r.Use(apperrors.ErrorMiddleware())

	limiter := commonmw.NewRateLimiter(rate.Limit(5), 10, 10*time.Minute)
	go limiter.Run(ctx)

	routes.RegisterRoutes(r, routes.Handlers{
		Checkout: controllers.NewCheckoutController(checkoutService, log),
		Webhook:  controllers.NewPaymentWebhookController(dispatcher, log),
		Orders:   controllers.NewOrderController(services.NewOrderHistoryService(ledger)),
	}, auth.NewTokenParser(cfg.JWTSecret), limiter)

	// --- HTTP server ---
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("Storefront checkout started",
			zap.String("port", cfg.Port),
			zap.String("paypal_mode", cfg.PayPal.Mode),
			zap.String("catalog", cfg.CatalogBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Initiating graceful shutdown...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", zap.Error(err))
	}
	stop()
	<-consumerDone
	if inProcess != nil {
		inProcess.Wait()
	}

	if kafkaEvents != nil {
		if err := kafkaEvents.Close(); err != nil {
			log.Error("Kafka writer close error", zap.Error(err))
		}
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if err := database.Close(db); err != nil {
		log.Error("Database close error", zap.Error(err))
	}
	log.Info("Storefront checkout stopped gracefully")
}
