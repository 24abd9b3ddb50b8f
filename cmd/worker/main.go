package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zaldivarmena/mindy/internal/metrics"
	"github.com/zaldivarmena/mindy/internal/queue"
	"github.com/zaldivarmena/mindy/internal/util"
	"github.com/zaldivarmena/mindy/pkg/ai"
	oai "github.com/zaldivarmena/mindy/pkg/ai/ollama"
	gai "github.com/zaldivarmena/mindy/pkg/ai/openai"
	"github.com/zaldivarmena/mindy/pkg/logger"
	"github.com/zaldivarmena/mindy/pkg/logger/console"
	pgstore "github.com/zaldivarmena/mindy/pkg/store/pgx"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sony/gobreaker"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	// ContentAIClient
	adapter := util.GetEnv("AI_ADAPTER")
	var aiClient ai.ContentAIClient

	switch adapter {
	case "ollama":
		client, err := oai.NewContentOllamaClient(oai.NewContentOllamaClientParams{
			Model:                 util.GetEnv("AI_CHAT_MODEL"),
			BaseURL:               util.GetEnv("AI_CHAT_URL"),
			ApiKey:                util.GetEnv("AI_CHAT_KEY"),
			MaxConcurrentRequests: int64(util.GetEnvNumeric("AI_PARALLEL_REQ", 1)),
		})
		if err != nil {
			logger.Fatal("Could not create Ollama client", "err", err)
		}
		aiClient = client
	default:
		aiClient = gai.NewContentOpenAIClient(gai.NewContentOpenAIClientParams{
			Model:   util.GetEnv("AI_CHAT_MODEL"),
			ChatURL: util.GetEnv("AI_CHAT_URL"),
			ChatKey: util.GetEnv("AI_CHAT_KEY"),
		})
	}

	// Init pgx client
	pgConn, err := pgxpool.New(ctx, util.GetEnv("DATABASE_URL"))
	if err != nil {
		logger.Fatal("Unable to connect to database", "err", err)
	}
	defer pgConn.Close()

	collector := metrics.New()
	if addr := util.GetEnv("WORKER_METRICS_ADDR"); addr != "" {
		go serveMetrics(ctx, addr, collector)
	}

	generator := queue.NewGenerator(
		pgstore.NewStudyContentDBStorage(pgConn),
		aiClient,
		queue.WithBreaker(queue.NewAIBreaker("ai", func(name string, _, to gobreaker.State) {
			collector.ObserveBreaker(name, to)
		})),
		queue.WithRecorder(collector),
	)

	// Init rabbitmq
	conn := queue.Init()
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch, []string{queue.StudyContentQueue}); err != nil {
		logger.Fatal("Failed to declare queues", "err", err)
	}

	// One message at a time; generation is bounded by the model anyway.
	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()

	if err := consumerCh.Qos(1, 0, false); err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	msgs, err := consumerCh.Consume(
		queue.StudyContentQueue,
		queue.StudyContentQueue+"_consumer",
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,   // args
	)
	if err != nil {
		logger.Fatal("Failed to start consuming", "queue", queue.StudyContentQueue, "err", err)
	}

	logger.Info("Listening for messages", "queue", queue.StudyContentQueue)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutdown signal received, exiting...")
			return
		case msg, ok := <-msgs:
			if !ok {
				logger.Info("Message channel closed", "queue", queue.StudyContentQueue)
				return
			}
			handleMessage(ctx, generator, aiClient, consumerCh, msg)
		}
	}
}

func handleMessage(ctx context.Context, generator *queue.Generator, aiClient ai.ContentAIClient, ch *amqp.Channel, msg amqp.Delivery) {
	startTime := time.Now()
	logger.Info("Received message", "queue", queue.StudyContentQueue)

	if err := generator.ProcessGenerateMessage(ctx, msg.Body); err != nil {
		logger.Error("Error processing message", "queue", queue.StudyContentQueue, "err", err)
		if queue.HandleFailure(ctx, ch, msg, queue.StudyContentQueue, err) {
			if ferr := generator.FailMessage(ctx, msg.Body, err); ferr != nil {
				logger.Error("Failed to mark study content as failed", "err", ferr)
			}
		}
	} else {
		if err := msg.Ack(false); err != nil {
			logger.Error("Failed to ack message", "err", err)
		}
		logger.Info("Message processed successfully", "queue", queue.StudyContentQueue)
	}

	m := aiClient.GetMetrics()
	logger.Info(
		"AI Metrics",
		"input_tokens", m.InputTokens,
		"output_tokens", m.OutputTokens,
		"total_tokens", m.TotalTokens,
		"duration", clock(time.Duration(m.DurationMs)*time.Millisecond),
	)
	logger.Info("Processing time", "duration", clock(time.Since(startTime)))
	logger.Info("Waiting for next message")
	aiClient.ResetMetrics()
}

func clock(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d:%02d", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}

func serveMetrics(ctx context.Context, addr string, collector *metrics.Collector) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Serving worker metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Metrics server stopped", "err", err)
	}
}
