package queue

import (
	"context"
	"errors"

	"github.com/zaldivarmena/mindy/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

const retriesHeader = "x-retries"

type amqpPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

// HandleFailure acks a failed delivery after re-publishing it to the retry
// queue of queueName, or to its dead-letter queue once maxRetries is reached
// or cause is ErrInvalidMessage. If re-publishing fails the delivery is
// nacked with requeue. It reports whether the message was dead-lettered.
func HandleFailure(ctx context.Context, ch amqpPublisher, msg amqp091.Delivery, queueName string, cause error) bool {
	retries := retryCount(msg.Headers)

	if retries >= maxRetries || errors.Is(cause, ErrInvalidMessage) {
		dlqName := queueName + "_dlq"
		logger.Warn("[Queue] Sending message to DLQ", "dlq", dlqName, "retries", retries, "err", cause)
		err := ch.PublishWithContext(ctx, "", dlqName, false, false, amqp091.Publishing{
			ContentType:  msg.ContentType,
			Body:         msg.Body,
			Headers:      msg.Headers,
			DeliveryMode: amqp091.Persistent,
		})
		if err != nil {
			logger.Error("[Queue] Failed to publish to DLQ", "dlq", dlqName, "err", err)
			_ = msg.Nack(false, true)
			return false
		}
		_ = msg.Ack(false)
		return true
	}

	retryName := queueName + "_retry"
	headers := amqp091.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers[retriesHeader] = int32(retries + 1)

	err := ch.PublishWithContext(ctx, "", retryName, false, false, amqp091.Publishing{
		ContentType:  msg.ContentType,
		Body:         msg.Body,
		Headers:      headers,
		DeliveryMode: amqp091.Persistent,
	})
	if err != nil {
		logger.Error("[Queue] Failed to publish to retry queue", "retry_queue", retryName, "err", err)
		_ = msg.Nack(false, true)
		return false
	}
	_ = msg.Ack(false)
	return false
}

func retryCount(headers amqp091.Table) int {
	switch v := headers[retriesHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}
