package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/imrishuroy/bitebuddy-orders/internal/aws"
	"github.com/imrishuroy/bitebuddy-orders/internal/config"
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
	log := logger.WithField("component", "notification-worker")

	if err := cfg.RequireWorker(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	clients, err := aws.NewAWSClients(context.Background())
	if err != nil {
		log.WithError(err).Fatal("failed to init aws clients")
	}

	metrics := aws.NewMetrics(clients.CloudWatch, cfg.MetricsNamespace, log.WithField("component", "metrics"))
	p := NewProcessor(aws.NewMailer(clients.SES, cfg.EmailFrom), metrics, log)

	// If RUN_LOCAL=true, process a single notification read from LOCAL_SQS_BODY.
	if cfg.RunLocal {
		body := os.Getenv("LOCAL_SQS_BODY")
		if body == "" {
			log.Fatal("LOCAL_SQS_BODY is required when RUN_LOCAL=true")
		}
		event := events.SQSEvent{
			Records: []events.SQSMessage{
				{MessageId: "local-1", Body: body},
			},
		}
		if err := p.Handle(context.Background(), event); err != nil {
			log.WithError(err).Fatal("local handler error")
		}
		return
	}

	lambda.Start(p.Handle)
}
