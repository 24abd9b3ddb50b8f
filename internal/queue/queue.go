package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/zaldivarmena/mindy/internal/util"
	"github.com/zaldivarmena/mindy/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

// StudyContentQueue carries GenerateStudyContentMsg jobs.
const StudyContentQueue = "study_content_queue"

const (
	retryDelay = 10 * time.Second
	maxRetries = 10
)

// Init dials RabbitMQ with the RABBITMQ_* environment variables.
func Init() *amqp091.Connection {
	connURL := fmt.Sprintf(
		"amqp://%s:%s@%s:%s/",
		util.GetEnv("RABBITMQ_USER"),
		util.GetEnv("RABBITMQ_PASSWORD"),
		util.GetEnvString("RABBITMQ_HOST", "localhost"),
		util.GetEnvString("RABBITMQ_PORT", "5672"),
	)

	conn, err := amqp091.Dial(connURL)
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", "err", err)
	}

	return conn
}

type queueDeclarer interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error)
}

// SetupQueues declares every queue together with its _retry queue, which
// dead-letters back into the main queue after a delay, and its _dlq.
func SetupQueues(ch queueDeclarer, queueNames []string) error {
	for _, name := range queueNames {
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare %s: %w", name, err)
		}

		dlqName := name + "_dlq"
		if _, err := ch.QueueDeclare(dlqName, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare %s: %w", dlqName, err)
		}

		retryName := name + "_retry"
		_, err := ch.QueueDeclare(
			retryName,
			true,
			false,
			false,
			false,
			amqp091.Table{
				"x-message-ttl":             int32(retryDelay.Milliseconds()),
				"x-dead-letter-exchange":    "",
				"x-dead-letter-routing-key": name,
			},
		)
		if err != nil {
			return fmt.Errorf("declare %s: %w", retryName, err)
		}
	}

	return nil
}

// Publisher enqueues a message body onto a named queue.
type Publisher interface {
	PublishFIFO(ctx context.Context, queueName string, data []byte) error
}

// ChannelPublisher publishes persistent messages on an AMQP channel.
type ChannelPublisher struct {
	Ch *amqp091.Channel
}

func (p ChannelPublisher) PublishFIFO(ctx context.Context, queueName string, data []byte) error {
	return PublishFIFO(ctx, p.Ch, queueName, data)
}

func PublishFIFO(ctx context.Context, ch *amqp091.Channel, queueName string, data []byte) error {
	q, err := ch.QueueDeclare(
		queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	publishing := amqp091.Publishing{
		ContentType:  "application/json",
		Body:         data,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
	}

	return ch.PublishWithContext(ctx, "", q.Name, false, false, publishing)
}
