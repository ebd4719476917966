// Пакет mq — консьюмер запросов экспорта из RabbitMQ.
// Читает очередь exportRequests, валидирует сообщения по JSON-схеме и
// передаёт их сервису экспорта. Каждое сообщение подтверждается независимо
// от исхода обработки: доставка at-most-one-attempt, повторы не выполняются.
package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/bigkaa/goarchive/doa-module/internal/domain/model"
)

// Метрики консьюмера.
var (
	messagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "doa_mq_messages_total",
		Help: "Общее количество сообщений очереди экспорта (по статусу).",
	}, []string{"status"})

	reconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "doa_mq_reconnects_total",
		Help: "Общее количество переподключений к брокеру.",
	})
)

// Validator — валидация тела сообщения по JSON-схеме.
type Validator interface {
	Validate(body []byte) error
}

// ExportHandler — обработка одного запроса экспорта.
type ExportHandler interface {
	Handle(ctx context.Context, req model.ExportRequest) error
}

// Consumer — консьюмер очереди запросов экспорта.
type Consumer struct {
	uri               string
	queue             string
	reconnectInterval time.Duration
	validator         Validator
	handler           ExportHandler
	logger            *slog.Logger

	mu   sync.RWMutex
	conn *amqp.Connection
}

// NewConsumer создаёт консьюмер очереди экспорта.
func NewConsumer(
	uri, queue string,
	reconnectInterval time.Duration,
	validator Validator,
	handler ExportHandler,
	logger *slog.Logger,
) *Consumer {
	return &Consumer{
		uri:               uri,
		queue:             queue,
		reconnectInterval: reconnectInterval,
		validator:         validator,
		handler:           handler,
		logger:            logger.With(slog.String("component", "mq_consumer")),
	}
}

// Run подключается к брокеру и обрабатывает сообщения до отмены контекста.
// Потерянное соединение восстанавливается через reconnectInterval.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		err := c.consume(ctx)
		if ctx.Err() != nil {
			c.logger.Info("Консьюмер очереди экспорта остановлен")
			return nil
		}
		if err != nil {
			c.logger.Error("Соединение с брокером потеряно",
				slog.String("error", err.Error()),
				slog.Duration("reconnect_in", c.reconnectInterval),
			)
		}

		reconnectsTotal.Inc()
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.reconnectInterval):
		}
	}
}

// consume выполняет один цикл: подключение, подписка, обработка до обрыва.
func (c *Consumer) consume(ctx context.Context) error {
	conn, err := amqp.Dial(c.uri)
	if err != nil {
		return fmt.Errorf("подключение к брокеру: %w", err)
	}
	defer conn.Close()

	c.setConn(conn)
	defer c.setConn(nil)

	channel, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("открытие канала: %w", err)
	}
	defer channel.Close()

	// По одному сообщению за раз: экспорт датасета может длиться долго
	if err := channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("установка QoS: %w", err)
	}

	deliveries, err := channel.Consume(
		c.queue,      // queue
		"doa-module", // consumer tag
		false,        // autoAck — подтверждаем вручную после обработки
		false,        // exclusive
		false,        // noLocal
		false,        // noWait
		nil,          // args
	)
	if err != nil {
		return fmt.Errorf("подписка на очередь %s: %w", c.queue, err)
	}

	c.logger.Info("Консьюмер подписан на очередь",
		slog.String("queue", c.queue),
	)

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	for {
		select {
		case <-ctx.Done():
			return nil
		case amqpErr := <-closed:
			if amqpErr == nil {
				return fmt.Errorf("соединение закрыто")
			}
			return fmt.Errorf("соединение закрыто: %w", amqpErr)
		case delivery, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("канал доставки закрыт")
			}
			c.handleDelivery(ctx, delivery)
		}
	}
}

// handleDelivery обрабатывает одно сообщение очереди.
// Сообщение подтверждается всегда: невалидные и упавшие запросы не
// возвращаются в очередь, исход фиксируется в логе и метриках.
func (c *Consumer) handleDelivery(ctx context.Context, delivery amqp.Delivery) {
	defer func() {
		if err := delivery.Ack(false); err != nil {
			c.logger.Error("Ошибка подтверждения сообщения",
				slog.String("error", err.Error()),
			)
		}
	}()

	if err := c.validator.Validate(delivery.Body); err != nil {
		messagesTotal.WithLabelValues("invalid").Inc()
		c.logger.Warn("Сообщение не прошло валидацию по схеме",
			slog.String("error", err.Error()),
		)
		return
	}

	var req model.ExportRequest
	if err := json.Unmarshal(delivery.Body, &req); err != nil {
		messagesTotal.WithLabelValues("invalid").Inc()
		c.logger.Warn("Ошибка разбора сообщения",
			slog.String("error", err.Error()),
		)
		return
	}

	if err := c.handler.Handle(ctx, req); err != nil {
		messagesTotal.WithLabelValues("failed").Inc()
		c.logger.Error("Запрос экспорта завершился ошибкой",
			slog.String("dataset_id", req.DatasetID),
			slog.String("file_id", req.FileID),
			slog.String("error", err.Error()),
		)
		return
	}

	messagesTotal.WithLabelValues("handled").Inc()
}

// setConn сохраняет текущее соединение для readiness-проверки.
func (c *Consumer) setConn(conn *amqp.Connection) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

// CheckReady проверяет состояние соединения с брокером.
func (c *Consumer) CheckReady() (status, message string) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || conn.IsClosed() {
		return "fail", "нет соединения с брокером"
	}
	return "ok", "соединение с брокером установлено"
}
