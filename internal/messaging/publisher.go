package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// TaskPublisher defines the interface for publishing synthesis tasks to the queue.
type TaskPublisher interface {
	PublishSynthesisTask(ctx context.Context, payload SynthesisTaskPayload) error
}

// rabbitMQPublisher implements TaskPublisher for RabbitMQ.
type rabbitMQPublisher struct {
	channel   *amqp.Channel
	queueName string
	logger    *zap.Logger
}

// NewRabbitMQTaskPublisher создает паблишер задач синтеза.
// Паблишер объявляет очередь сам (durable, lazy, с DLX) - это делает систему
// устойчивой к порядку запуска сервисов. Важно, чтобы параметры очереди
// совпадали с теми, что у консьюмера!
func NewRabbitMQTaskPublisher(conn *amqp.Connection, queueName string, logger *zap.Logger) (TaskPublisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named("TaskPublisher")

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("task publisher: не удалось открыть канал: %w", err)
	}

	args := amqp.Table{
		"x-queue-mode":              "lazy",
		"x-dead-letter-exchange":    DeadLetterExchange,
		"x-dead-letter-routing-key": DeadLetterRoutingKey,
	}
	_, err = ch.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		args,
	)
	if err != nil {
		log.Error("Не удалось объявить очередь задач", zap.String("queue", queueName), zap.Error(err))
		_ = ch.Close()
		return nil, fmt.Errorf("task publisher: не удалось объявить очередь '%s': %w", queueName, err)
	}
	log.Info("Очередь задач успешно объявлена/найдена", zap.String("queue", queueName))

	return &rabbitMQPublisher{channel: ch, queueName: queueName, logger: log}, nil
}

// PublishSynthesisTask публикует ровно одну задачу синтеза на генерацию.
func (p *rabbitMQPublisher) PublishSynthesisTask(ctx context.Context, payload SynthesisTaskPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("ошибка сериализации задачи синтеза %s: %w", payload.TaskID, err)
	}

	err = p.channel.PublishWithContext(ctx,
		"",          // exchange (default)
		p.queueName, // routing key
		false,       // mandatory
		false,       // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Timestamp:    time.Now(),
			AppId:        "tts-server",
			MessageId:    payload.TaskID,
		},
	)
	if err != nil {
		p.logger.Error("Ошибка публикации задачи синтеза",
			zap.String("taskID", payload.TaskID),
			zap.String("generationID", payload.GenerationID.String()),
			zap.Error(err))
		return fmt.Errorf("ошибка публикации задачи синтеза %s: %w", payload.TaskID, err)
	}

	p.logger.Debug("Задача синтеза опубликована",
		zap.String("taskID", payload.TaskID),
		zap.String("generationID", payload.GenerationID.String()),
		zap.String("queue", p.queueName))
	return nil
}
