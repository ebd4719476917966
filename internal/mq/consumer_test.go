package mq

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/bigkaa/goarchive/doa-module/internal/domain/model"
)

// mockValidator — mock Validator.
type mockValidator struct {
	validateFn func(body []byte) error
}

func (m *mockValidator) Validate(body []byte) error {
	if m.validateFn != nil {
		return m.validateFn(body)
	}
	return nil
}

// mockHandler — mock ExportHandler, запоминающий запросы.
type mockHandler struct {
	handleFn func(ctx context.Context, req model.ExportRequest) error
	requests []model.ExportRequest
}

func (m *mockHandler) Handle(ctx context.Context, req model.ExportRequest) error {
	m.requests = append(m.requests, req)
	if m.handleFn != nil {
		return m.handleFn(ctx, req)
	}
	return nil
}

// mockAcknowledger — mock amqp.Acknowledger, считающий подтверждения.
type mockAcknowledger struct {
	acks  int
	nacks int
}

func (m *mockAcknowledger) Ack(_ uint64, _ bool) error {
	m.acks++
	return nil
}

func (m *mockAcknowledger) Nack(_ uint64, _, _ bool) error {
	m.nacks++
	return nil
}

func (m *mockAcknowledger) Reject(_ uint64, _ bool) error {
	m.nacks++
	return nil
}

func newTestConsumer(validator Validator, handler ExportHandler) *Consumer {
	return NewConsumer("amqp://localhost", "exportRequests", time.Second, validator, handler, slog.Default())
}

// TestHandleDelivery_Valid проверяет обработку валидного сообщения: запрос
// передан обработчику, сообщение подтверждено.
func TestHandleDelivery_Valid(t *testing.T) {
	handler := &mockHandler{}
	c := newTestConsumer(&mockValidator{}, handler)

	acker := &mockAcknowledger{}
	body := []byte(`{"jwtToken":"token","fileId":"EGAF001","publicKey":"key","endCoordinate":"200"}`)
	c.handleDelivery(context.Background(), amqp.Delivery{Acknowledger: acker, Body: body})

	if len(handler.requests) != 1 {
		t.Fatalf("обработано запросов = %d, ожидался 1", len(handler.requests))
	}
	if handler.requests[0].FileID != "EGAF001" {
		t.Errorf("FileID = %q, ожидался EGAF001", handler.requests[0].FileID)
	}
	if handler.requests[0].EndCoordinate != 200 {
		t.Errorf("EndCoordinate = %d, ожидался 200", handler.requests[0].EndCoordinate)
	}
	if acker.acks != 1 {
		t.Errorf("подтверждений = %d, ожидалось 1", acker.acks)
	}
}

// TestHandleDelivery_Invalid проверяет, что невалидное сообщение
// подтверждается без передачи обработчику.
func TestHandleDelivery_Invalid(t *testing.T) {
	handler := &mockHandler{}
	validator := &mockValidator{
		validateFn: func(_ []byte) error {
			return errors.New("не соответствует схеме")
		},
	}
	c := newTestConsumer(validator, handler)

	acker := &mockAcknowledger{}
	c.handleDelivery(context.Background(), amqp.Delivery{Acknowledger: acker, Body: []byte(`{}`)})

	if len(handler.requests) != 0 {
		t.Errorf("обработано запросов = %d, ожидался 0", len(handler.requests))
	}
	if acker.acks != 1 {
		t.Errorf("подтверждений = %d, ожидалось 1", acker.acks)
	}
}

// TestHandleDelivery_HandlerError проверяет, что ошибка обработки не
// возвращает сообщение в очередь (at-most-one-attempt).
func TestHandleDelivery_HandlerError(t *testing.T) {
	handler := &mockHandler{
		handleFn: func(_ context.Context, _ model.ExportRequest) error {
			return errors.New("датасет не released")
		},
	}
	c := newTestConsumer(&mockValidator{}, handler)

	acker := &mockAcknowledger{}
	body := []byte(`{"jwtToken":"token","datasetId":"EGAD001","publicKey":"key"}`)
	c.handleDelivery(context.Background(), amqp.Delivery{Acknowledger: acker, Body: body})

	if acker.acks != 1 {
		t.Errorf("подтверждений = %d, ожидалось 1", acker.acks)
	}
	if acker.nacks != 0 {
		t.Errorf("nack = %d, ожидался 0", acker.nacks)
	}
}
