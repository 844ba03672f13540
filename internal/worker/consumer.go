package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"tts-server/internal/messaging"
)

// Consumer читает задачи синтеза из RabbitMQ и передает их обработчику.
// Prefetch = 1: воркер обрабатывает одну генерацию за раз, остальные задачи
// остаются в очереди для других инстансов.
type Consumer struct {
	conn      *amqp.Connection
	queueName string
	handler   *TaskHandler
	logger    *zap.Logger

	channel *amqp.Channel
	wg      sync.WaitGroup
}

// NewConsumer создает консьюмер задач синтеза.
func NewConsumer(conn *amqp.Connection, queueName string, handler *TaskHandler, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{
		conn:      conn,
		queueName: queueName,
		handler:   handler,
		logger:    logger.Named("TaskConsumer"),
	}
}

// Start объявляет топологию очередей и запускает цикл обработки.
// Блокируется до отмены контекста или закрытия канала брокером.
func (c *Consumer) Start(ctx context.Context) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("task consumer: не удалось открыть канал: %w", err)
	}
	c.channel = ch

	if err := declareTopology(ch, c.queueName); err != nil {
		_ = ch.Close()
		return err
	}

	// По одной невыданной задаче на воркера
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		return fmt.Errorf("task consumer: не удалось установить QoS: %w", err)
	}

	deliveries, err := ch.Consume(
		c.queueName,
		"",    // consumer tag (сгенерирует брокер)
		false, // auto-ack выключен: подтверждаем только после записи итога
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("task consumer: не удалось подписаться на очередь '%s': %w", c.queueName, err)
	}

	c.logger.Info("Консьюмер задач синтеза запущен", zap.String("queue", c.queueName))

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Остановка консьюмера по сигналу")
			return nil
		case d, ok := <-deliveries:
			if !ok {
				c.logger.Warn("Канал доставки закрыт брокером")
				return fmt.Errorf("task consumer: канал доставки закрыт")
			}
			c.wg.Add(1)
			c.processDelivery(ctx, d)
			c.wg.Done()
		}
	}
}

// processDelivery разбирает и обрабатывает одно сообщение.
func (c *Consumer) processDelivery(ctx context.Context, d amqp.Delivery) {
	var payload messaging.SynthesisTaskPayload
	if err := json.Unmarshal(d.Body, &payload); err != nil {
		// Мусор в очереди уходит в DLQ без повторной доставки
		c.logger.Error("Не удалось разобрать задачу синтеза, сообщение уходит в DLQ",
			zap.Error(err),
			zap.ByteString("body", d.Body))
		if nackErr := d.Nack(false, false); nackErr != nil {
			c.logger.Error("Ошибка Nack для битого сообщения", zap.Error(nackErr))
		}
		return
	}

	log := c.logger.With(
		zap.String("taskID", payload.TaskID),
		zap.String("generationID", payload.GenerationID.String()))
	log.Info("Получена задача синтеза", zap.Bool("redelivered", d.Redelivered))

	if err := c.handler.HandleTask(ctx, payload.GenerationID); err != nil {
		// Обработчик вернул ошибку только если не смог даже начать
		// (например БД недоступна) - даем задаче шанс на другом воркере
		log.Error("Задача не обработана, возврат в очередь", zap.Error(err))
		if nackErr := d.Nack(false, !d.Redelivered); nackErr != nil {
			log.Error("Ошибка Nack", zap.Error(nackErr))
		}
		return
	}

	if err := d.Ack(false); err != nil {
		log.Error("Ошибка Ack", zap.Error(err))
	}
}

// Stop дожидается завершения текущей задачи и закрывает канал.
func (c *Consumer) Stop() {
	c.wg.Wait()
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			c.logger.Warn("Ошибка закрытия канала консьюмера", zap.Error(err))
		}
	}
	c.logger.Info("Консьюмер задач синтеза остановлен")
}

// declareTopology объявляет основную очередь, DLX и DLQ.
// Параметры основной очереди обязаны совпадать с паблишером.
func declareTopology(ch *amqp.Channel, queueName string) error {
	if err := ch.ExchangeDeclare(
		messaging.DeadLetterExchange,
		"direct",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("task consumer: не удалось объявить DLX: %w", err)
	}

	if _, err := ch.QueueDeclare(
		messaging.DeadLetterQueue,
		true, false, false, false,
		nil,
	); err != nil {
		return fmt.Errorf("task consumer: не удалось объявить DLQ: %w", err)
	}

	if err := ch.QueueBind(
		messaging.DeadLetterQueue,
		messaging.DeadLetterRoutingKey,
		messaging.DeadLetterExchange,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("task consumer: не удалось привязать DLQ к DLX: %w", err)
	}

	args := amqp.Table{
		"x-queue-mode":              "lazy",
		"x-dead-letter-exchange":    messaging.DeadLetterExchange,
		"x-dead-letter-routing-key": messaging.DeadLetterRoutingKey,
	}
	if _, err := ch.QueueDeclare(
		queueName,
		true, false, false, false,
		args,
	); err != nil {
		return fmt.Errorf("task consumer: не удалось объявить очередь '%s': %w", queueName, err)
	}
	return nil
}
