package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/sirupsen/logrus"

	"github.com/imrishuroy/bitebuddy-orders/internal/aws"
	"github.com/imrishuroy/bitebuddy-orders/internal/config"
	"github.com/imrishuroy/bitebuddy-orders/internal/handlers"
	"github.com/imrishuroy/bitebuddy-orders/internal/idempotency"
	"github.com/imrishuroy/bitebuddy-orders/internal/lifecycle"
	"github.com/imrishuroy/bitebuddy-orders/internal/notify"
	"github.com/imrishuroy/bitebuddy-orders/internal/orders"
	"github.com/imrishuroy/bitebuddy-orders/internal/payment"
	"github.com/imrishuroy/bitebuddy-orders/internal/webhook"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		panic(err)
	}
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := config.NewLogger(cfg.LogLevel)
	log := logger.WithField("component", "api")

	if err := cfg.RequireAPI(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	clients, err := aws.NewAWSClients(context.Background())
	if err != nil {
		log.WithError(err).Fatal("failed to init aws clients")
	}

	idempStore := idempotency.NewStore(clients.DynamoDB, cfg.IdempotencyTable, cfg.IdempotencyTTL)
	ordersStore := orders.NewStore(clients.DynamoDB, cfg.OrdersTable, cfg.IdempotencyTable, cfg.IdempotencyTTL)
	metrics := aws.NewMetrics(clients.CloudWatch, cfg.MetricsNamespace, logger.WithField("component", "metrics"))
	dispatcher := notify.NewDispatcher(aws.NewPublisher(clients.SQS, cfg.NotificationsQueueURL), cfg.NotifyMaxInFlight, logrus.NewEntry(logger))
	gateway := payment.NewBreakerGateway(payment.NewStripeGateway(cfg.StripeSecretKey), cfg.BreakerTimeout, logger.WithField("component", "payment"))

	manager := lifecycle.NewManager(lifecycle.Deps{
		Store:    ordersStore,
		Keys:     idempStore,
		Gateway:  gateway,
		Notifier: dispatcher,
		Metrics:  metrics,
		Log:      logger.WithField("component", "lifecycle"),
	}, lifecycle.Options{
		Currency:    cfg.PaymentCurrency,
		DeliveryETA: cfg.DeliveryETA,
	})
	processor := webhook.NewProcessor(cfg.StripeWebhookSecret, manager, idempStore, metrics, logger.WithField("component", "webhook"))

	r := handlers.NewRouter(handlers.HandlerConfig{
		Orders:   manager,
		Webhooks: processor,
		Log:      log,
	})

	// if environment variable RUN_LOCAL is set to "true", run local HTTP server for development.
	if cfg.RunLocal {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		srv := &http.Server{Addr: ":" + cfg.Port, Handler: r, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			log.WithField("addr", srv.Addr).Info("running local server")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Fatal("failed to run local server")
			}
		}()

		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("server shutdown")
		}
		dispatcher.Wait()
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		resp, err := adapter.ProxyWithContext(ctx, req)
		// the execution environment freezes once we return; give queued notifications a short window
		if !dispatcher.WaitTimeout(cfg.NotifyDrainTimeout) {
			log.WithField("drain_timeout", cfg.NotifyDrainTimeout).Warn("responding before notifications were queued")
		}
		return resp, err
	})
}
