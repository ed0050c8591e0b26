package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"assist-server/pkg/capture"
	"assist-server/pkg/config"
	"assist-server/pkg/httpsrv"
	"assist-server/pkg/messaging"
	"assist-server/pkg/metrics"
	"assist-server/pkg/session"
)

var logger = logrus.New()

func main() {
	// Basic logger setup, refined once the config is loaded
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	logger.SetOutput(os.Stdout)

	cfg, err := config.Load(logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if err := cfg.ApplyLogging(logger); err != nil {
		logger.WithError(err).Fatal("Failed to apply logging configuration")
	}

	metrics.Init(logger)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// Ticket publisher: disabled unless AMQP is configured
	var publisher messaging.TicketPublisher = messaging.NoopPublisher{}
	if cfg.Messaging.AMQPUrl != "" {
		client := messaging.NewAMQPClient(logger, messaging.AMQPConfig{
			URL:       cfg.Messaging.AMQPUrl,
			QueueName: cfg.Messaging.AMQPQueueName,
		})
		if err := client.Connect(); err != nil {
			logger.WithError(err).Warn("AMQP connection failed, tickets will not be published")
		} else {
			publisher = client
			defer client.Disconnect()
		}
	}

	hub := httpsrv.NewEventHub(logger)
	go hub.Run(rootCtx)

	var httpServer *httpsrv.Server
	if cfg.HTTP.Enabled {
		httpServer = httpsrv.NewServer(logger, cfg.HTTP, hub)
		httpServer.Start()
	} else {
		logger.Info("HTTP server is disabled by configuration")
	}

	// Scripted capture feed for the demo session
	var source string
	var steps []capture.Step
	switch cfg.Capture.Source {
	case "screen_share":
		source = capture.SourceScreenShare
		steps = capture.DemoScreenShareScript()
	default:
		source = capture.SourcePhone
		steps = capture.DemoCallScript()
	}
	scripted := capture.NewScripted(logger, source, steps)
	scripted.SetLoop(cfg.Capture.Loop)

	sessionCfg := session.Config{
		SampleInterval: cfg.Session.SampleInterval,
		SuggestionCap:  cfg.Suggestions.Cap,
		InsightEvery:   cfg.Insights.EmitEvery,
		InsightMax:     cfg.Insights.Max,
		Contact:        cfg.Session.DefaultContact,
	}
	ctrl := session.NewController(logger, sessionCfg, scripted, scripted)
	ctrl.SetEventSink(hub)
	if httpServer != nil {
		httpServer.SetSnapshotProvider(ctrl)
	}

	if err := ctrl.Start(rootCtx); err != nil {
		logger.WithError(err).Fatal("Failed to start session")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigChan
	logger.WithField("signal", sig.String()).Info("Received shutdown signal, cleaning up...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	// Synthesize before tearing infrastructure down so the ticket can
	// still reach the broker and connected clients
	record, err := ctrl.Complete()
	if err != nil {
		logger.WithError(err).Error("Failed to synthesize session ticket")
	} else {
		logger.WithFields(logrus.Fields{
			"ticket_id": record.ID,
			"topic":     record.Topic,
			"priority":  record.Priority,
		}).Info("Session ticket synthesized")

		if err := publisher.PublishTicket(record); err != nil {
			logger.WithError(err).Warn("Failed to publish ticket")
		}
	}

	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("Error shutting down HTTP server")
		} else {
			logger.Info("HTTP server shut down successfully")
		}
	}

	rootCancel()
	logger.Info("Shutdown complete")
}
