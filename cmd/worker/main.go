package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OFFIS-RIT/kiwi-live/internal/config"
	"github.com/OFFIS-RIT/kiwi-live/internal/queue"
	"github.com/OFFIS-RIT/kiwi-live/internal/session"
	"github.com/OFFIS-RIT/kiwi-live/internal/storage"
	"github.com/OFFIS-RIT/kiwi-live/internal/util"
	"github.com/OFFIS-RIT/kiwi-live/pkg/leaselock"
	"github.com/OFFIS-RIT/kiwi-live/pkg/logger"
	"github.com/OFFIS-RIT/kiwi-live/pkg/logger/console"
	pgstore "github.com/OFFIS-RIT/kiwi-live/pkg/store/pgx"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robfig/cron/v3"
)

func main() {
	cfg, err := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: util.GetEnvBool("DEBUG", false),
	})
	logger.Init(consoleLogger)

	if err != nil {
		logger.Fatal("Invalid configuration", "err", err)
	}

	deps, err := session.NewDependencies(cfg)
	if err != nil {
		logger.Fatal("Could not create pipeline dependencies", "err", err)
	}

	var opts []session.Option

	// Event log
	if cfg.Storage.DatabaseURL != "" {
		if err := pgstore.Migrate(cfg.Storage.DatabaseURL); err != nil {
			logger.Fatal("Database migration failed", "err", err)
		}
		pgConn, err := pgxpool.New(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			logger.Fatal("Unable to connect to database", "err", err)
		}
		defer pgConn.Close()

		eventLog := session.NewLogSink(pgstore.NewEventStore(pgConn), 4096)
		defer eventLog.Close()
		opts = append(opts, session.WithSinks(eventLog))

		hostname, _ := os.Hostname()
		leases, err := leaselock.New(pgConn, hostname, leaselock.WithTTL(cfg.Sessions.LeaseTTL))
		if err != nil {
			logger.Fatal("Could not create lease client", "err", err)
		}
		opts = append(opts, session.WithLeases(session.LeaseClient(leases)))
	}

	// Graph archive
	if cfg.Sessions.Archive {
		s3Client, err := storage.NewS3Client(ctx)
		if err != nil {
			logger.Fatal("Could not create S3 client", "err", err)
		}
		opts = append(opts, session.WithArchive(storage.NewGraphArchive(s3Client, cfg.Storage.Bucket)))
	}

	// Init rabbitmq
	conn, err := queue.Init(ctx)
	if err != nil {
		logger.Fatal("Could not connect to RabbitMQ", "err", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	queues := []string{cfg.Messaging.TranscriptQueue}
	if err := queue.SetupQueues(ch, queues, cfg.Messaging.EventExchange); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	if cfg.Messaging.PublishEvents {
		opts = append(opts, session.WithSinks(queue.NewEventPublisher(ch, cfg.Messaging.EventExchange)))
	}

	manager := session.NewManager(ctx, cfg.PipelineConfig(), deps, opts...)

	// Idle session reaper
	reaper := cron.New()
	if cfg.Sessions.ReapSchedule != "" && cfg.Sessions.MaxIdle > 0 {
		_, err := reaper.AddFunc(cfg.Sessions.ReapSchedule, func() {
			reaped := manager.StopIdle(ctx, cfg.Sessions.MaxIdle)
			logger.Debug("Idle session sweep", "stopped", len(reaped), "active", len(manager.List()))
		})
		if err != nil {
			logger.Fatal("Invalid reap schedule", "err", err)
		}
		reaper.Start()
	}

	// Fragments of one session must stay in order, so the worker consumes
	// one message at a time.
	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()

	err = consumerCh.Qos(1, 0, true)
	if err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	type queuedMessage struct {
		msg       amqp.Delivery
		queueName string
	}

	messageChan := make(chan queuedMessage)

	for _, queueName := range queues {
		go func(qName string) {
			consumerTag := fmt.Sprintf("%s_consumer", qName)
			msgs, err := consumerCh.Consume(
				qName,
				consumerTag,
				false, // autoAck
				false, // exclusive
				false, // noLocal
				false, // noWait
				nil,   // args
			)
			if err != nil {
				logger.Fatal("Failed to start consuming", "queue", qName, "err", err)
			}

			for {
				select {
				case <-ctx.Done():
					logger.Info("Stopping consumer", "queue", qName)
					return
				case msg, ok := <-msgs:
					if !ok {
						logger.Info("Message channel closed", "queue", qName)
						return
					}
					messageChan <- queuedMessage{msg: msg, queueName: qName}
				}
			}
		}(queueName)
	}

	logger.Info("Listening for transcript fragments", "queue", cfg.Messaging.TranscriptQueue)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				logger.Info("Stopping message processor")
				return
			case qm := <-messageChan:
				processingErr := queue.ProcessFragmentMessage(ctx, manager, qm.msg.Body)

				// If there was an error send to retry or dead-letter, otherwise ack the message
				if processingErr != nil {
					logger.Error("Error processing message", "queue", qm.queueName, "err", processingErr)
					queue.HandleProcessingError(consumerCh, qm.msg, qm.queueName, errors.Is(processingErr, queue.ErrMalformed))
					continue
				}
				if err := qm.msg.Ack(false); err != nil {
					logger.Error("Failed to ack message", "err", err)
				}
			}
		}
	}()

	<-ctx.Done()
	logger.Info("Shutdown signal received, stopping sessions...")
	<-done
	<-reaper.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	manager.StopAll(shutdownCtx)

	metrics := deps.AI.GetMetrics()
	logger.Info(
		"AI Metrics",
		"requests", metrics.Requests,
		"failures", metrics.Failures,
		"total_tokens", metrics.TotalTokens,
		"duration", time.Duration(metrics.DurationMs)*time.Millisecond,
	)
}
